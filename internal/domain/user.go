package domain

import "time"

// Role separates administrators (judges) from members (workers).
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// User is a roster entry. Credentials live outside this system.
type User struct {
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the caller identity passed explicitly into every operation.
type Actor struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the actor may judge, edit and administer records.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// ActorFor builds the actor for a roster user.
func ActorFor(u User) Actor {
	return Actor{Username: u.Username, Role: u.Role}
}

// AuditKind classifies an audit event.
type AuditKind string

const (
	AuditOverride AuditKind = "admin_override"
	AuditPurge    AuditKind = "admin_purge"
)

// AuditEvent records an administrative action outside the formal workflow.
type AuditEvent struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	TaskID  string    `json:"task_id"`
	Kind    AuditKind `json:"kind"`
	Detail  string    `json:"detail"`
	Flagged bool      `json:"flagged"`
}
