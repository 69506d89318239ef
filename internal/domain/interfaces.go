package domain

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// ClaimRequest is an atomic claim: the store must re-check the state and
// the cap and write the claim in one transaction.
type ClaimRequest struct {
	TaskID    string
	Assignee  string
	MaxActive int          // 0 disables the cap
	CapStates []TaskStatus // states counted toward MaxActive
}

// TaskStore persists tasks and the audit trail of overrides.
type TaskStore interface {
	InsertTask(t Task) error
	GetTask(id string) (*Task, error)
	ListTasks(f TaskFilter) ([]Task, error)

	// TransitionTask writes t only if the stored status still equals from.
	TransitionTask(from TaskStatus, t Task) error
	// ClaimTask moves an Unclaimed pool task to InProgress for the assignee.
	ClaimTask(req ClaimRequest) (*Task, error)
	// OverrideTask writes t unconditionally and records e, atomically.
	OverrideTask(t Task, e AuditEvent) error
	// PurgeTask deletes the task and records e, atomically.
	PurgeTask(id string, e AuditEvent) error

	AuditEvents(limit int) ([]AuditEvent, error)
}

// UserStore persists the team roster.
type UserStore interface {
	InsertUser(u User) error
	GetUser(username string) (*User, error)
	ListUsers(role Role) ([]User, error)
	DeleteUser(username string) error
}

// RecordStore persists penalties and rewards.
type RecordStore interface {
	InsertPenalty(p Penalty) error
	UpdatePenalty(p Penalty) error
	DeletePenalty(id string) error
	ListPenalties(username string) ([]Penalty, error)

	InsertReward(r Reward) error
	UpdateReward(r Reward) error
	DeleteReward(id string) error
	ListRewards(username string) ([]Reward, error)
}

// SnapshotReader loads the ledger inputs in one consistent read.
// An empty username loads every user's records.
type SnapshotReader interface {
	LoadSnapshot(username string) (Snapshot, error)
}
