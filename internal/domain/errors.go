package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Lookup errors
	ErrTaskNotFound    = errors.New("task not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrPenaltyNotFound = errors.New("penalty not found")
	ErrRewardNotFound  = errors.New("reward not found")

	// Workflow errors
	ErrStateConflict    = errors.New("state conflict: transition not allowed from current state")
	ErrCapacityExceeded = errors.New("capacity exceeded: too many active pool tasks")
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
)

// Transition names a workflow operation.
type Transition string

const (
	OpClaim    Transition = "claim"
	OpSubmit   Transition = "submit"
	OpAccept   Transition = "judge_accept"
	OpReject   Transition = "judge_reject"
	OpResubmit Transition = "resubmit"
)

// TransitionError reports an operation attempted from the wrong state.
type TransitionError struct {
	TaskID string
	Op     Transition
	From   TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot %s from state %s", e.TaskID, e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrStateConflict }

// CapacityError reports a claim blocked by the anti-hoarding cap.
type CapacityError struct {
	Username string
	Active   int
	Limit    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s already holds %d of %d pool tasks", e.Username, e.Active, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
