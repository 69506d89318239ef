package domain

import (
	"fmt"
	"time"
)

// Policy is the versioned set of rules the workflow and ledger run under.
// The team tool changed these rules several times; every variant is
// expressed here instead of at individual call sites.
type Policy struct {
	Version string `json:"version"`

	// FineRate is the share of the fine base deducted per penalty.
	FineRate float64 `json:"fine_rate"`
	// FineWindow is how far before a penalty the fine base reaches.
	FineWindow time.Duration `json:"fine_window"`
	// CumulativeFines fines a task once per covering penalty; otherwise once in total.
	CumulativeFines bool `json:"cumulative_fines"`
	// FineWindowedBalances applies fines to 7/30-day balances and period
	// reports, not only all-time balances.
	FineWindowedBalances bool `json:"fine_windowed_balances"`
	// RestrictPenaltiesToWindow only counts penalties that occurred inside a balance's lookback.
	RestrictPenaltiesToWindow bool `json:"restrict_penalties_to_window"`

	// MaxActiveClaims caps simultaneous claimed pool tasks; 0 disables the cap.
	MaxActiveClaims int `json:"max_active_claims"`
	// CapCountsRework includes Rework tasks when counting toward the cap.
	CapCountsRework bool `json:"cap_counts_rework"`
	// RequireAcceptFeedback rejects Judge-Accept without a written reason.
	RequireAcceptFeedback bool `json:"require_accept_feedback"`
}

const (
	PolicyCurrent = "v8-cumulative"
	PolicyLegacy  = "v7-alltime"
)

// DefaultPolicy returns the current rules.
func DefaultPolicy() Policy {
	return Policy{
		Version:                   PolicyCurrent,
		FineRate:                  0.2,
		FineWindow:                7 * 24 * time.Hour,
		CumulativeFines:           true,
		FineWindowedBalances:      true,
		RestrictPenaltiesToWindow: true,
		MaxActiveClaims:           2,
		CapCountsRework:           true,
		RequireAcceptFeedback:     true,
	}
}

// LegacyPolicy returns the earlier rules: fines only on all-time balances,
// each task fined at most once, Rework not counted toward the cap.
func LegacyPolicy() Policy {
	p := DefaultPolicy()
	p.Version = PolicyLegacy
	p.CumulativeFines = false
	p.FineWindowedBalances = false
	p.CapCountsRework = false
	p.RequireAcceptFeedback = false
	return p
}

// PolicyByName resolves a preset. The empty name selects the current rules.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyCurrent:
		return DefaultPolicy(), nil
	case PolicyLegacy:
		return LegacyPolicy(), nil
	}
	return Policy{}, fmt.Errorf("unknown ledger policy %q", name)
}

// CapStatuses returns the states counted toward the anti-hoarding cap.
func (p Policy) CapStatuses() []TaskStatus {
	if p.CapCountsRework {
		return []TaskStatus{StatusInProgress, StatusRework}
	}
	return []TaskStatus{StatusInProgress}
}
