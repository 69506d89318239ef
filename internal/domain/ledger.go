package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Penalty is a single attendance infraction. Its effect reaches back over
// the fine window ending at OccurredAt.
type Penalty struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
	Reason     string    `json:"reason"`
}

// DefaultPenaltyReason is the label the original tool stamped on absences.
const DefaultPenaltyReason = "缺勤"

// Reward is a discretionary credit.
type Reward struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is one consistent read of the three ledger collections.
type Snapshot struct {
	Tasks     []Task
	Penalties []Penalty
	Rewards   []Reward
}

// Window is a closed time interval [Start, End].
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Balance is the breakdown of a net YVP figure.
type Balance struct {
	Username  string             `json:"username"`
	Window    *Window            `json:"window,omitempty"`
	Gross     decimal.Decimal    `json:"gross"`
	Fine      decimal.Decimal    `json:"fine"`
	Rewards   decimal.Decimal    `json:"rewards"`
	Net       decimal.Decimal    `json:"net"`
	Penalties int                `json:"penalties"`
	Warnings  []IntegrityWarning `json:"warnings,omitempty"`
}

// PeriodRow is one line of the payroll-style period report.
type PeriodRow struct {
	Username    string          `json:"username"`
	GrossOutput decimal.Decimal `json:"gross_output"`
	Fine        decimal.Decimal `json:"fine"`
	Reward      decimal.Decimal `json:"reward"`
	NetYVP      decimal.Decimal `json:"net_yvp"`
}

// PeriodReport is the result of a period aggregation.
type PeriodReport struct {
	Window   Window             `json:"window"`
	Rows     []PeriodRow        `json:"rows"`
	Warnings []IntegrityWarning `json:"warnings,omitempty"`
}

// Dashboard is the three standard balances the team board shows per member.
type Dashboard struct {
	Username string  `json:"username"`
	AllTime  Balance `json:"all_time"`
	Last7    Balance `json:"last_7_days"`
	Last30   Balance `json:"last_30_days"`
}

// LeaderboardEntry ranks one member by net YVP.
type LeaderboardEntry struct {
	Rank      int             `json:"rank"`
	Username  string          `json:"username"`
	Net       decimal.Decimal `json:"net"`
	Penalties int             `json:"penalties"`
}

// WarningKind classifies a data-integrity anomaly.
type WarningKind string

const (
	WarnMissingCompletion WarningKind = "done_without_completed_at"
	WarnNegativeValue     WarningKind = "negative_value"
	WarnInvalidValue      WarningKind = "invalid_value"
	WarnQualityRange      WarningKind = "quality_out_of_range"
	WarnNegativeReward    WarningKind = "negative_reward"
)

// IntegrityWarning is a non-fatal anomaly found while computing the ledger.
// The affected contribution has already been degraded to zero.
type IntegrityWarning struct {
	Kind     WarningKind `json:"kind"`
	RecordID string      `json:"record_id"`
	Detail   string      `json:"detail"`
}
