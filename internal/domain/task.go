// Package domain holds the YVP record types, policy and sentinel errors.
// A Task is a unit of team work that flows through the workflow:
// create → claim → submit → judge → (rework → resubmit →) done → paid.
package domain

import (
	"fmt"
	"time"
)

// TaskStatus tracks the task lifecycle. Values are the labels stored by
// the original team tool, so exported data stays readable to its members.
type TaskStatus string

const (
	StatusUnclaimed     TaskStatus = "待领取"
	StatusInProgress    TaskStatus = "进行中"
	StatusPendingReview TaskStatus = "待验收"
	StatusDone          TaskStatus = "完成"
	StatusRework        TaskStatus = "返工"
)

// Valid reports whether s is one of the five known states.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusUnclaimed, StatusInProgress, StatusPendingReview, StatusDone, StatusRework:
		return true
	}
	return false
}

// IsActive returns true for states in which the assignee still holds the work.
func (s TaskStatus) IsActive() bool {
	return s == StatusInProgress || s == StatusRework || s == StatusPendingReview
}

// TaskType governs how a task enters the workflow.
type TaskType string

const (
	TypePublicPool   TaskType = "公共任务池"
	TypeDirectAssign TaskType = "指定指派"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	return t == TypePublicPool || t == TypeDirectAssign
}

// InitialStatus returns the state a freshly created task of this type starts in.
func (t TaskType) InitialStatus() TaskStatus {
	if t == TypeDirectAssign {
		return StatusInProgress
	}
	return StatusUnclaimed
}

// Unassigned is the assignee sentinel for pool tasks nobody has claimed.
const Unassigned = "待定"

// Quality bounds set at judgment time.
const (
	MinQuality     = 0.0
	MaxQuality     = 3.0
	DefaultQuality = 1.0
)

// Task is a unit of work with a nominal value of Difficulty × StdTime.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Difficulty  float64    `json:"difficulty"`
	StdTime     float64    `json:"std_time"`
	Quality     float64    `json:"quality"`
	Status      TaskStatus `json:"status"`
	Assignee    string     `json:"assignee"`
	Type        TaskType   `json:"type"`
	IsRnD       bool       `json:"is_rnd"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Feedback    string     `json:"feedback,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsAssigned reports whether a real user holds the task.
func (t *Task) IsAssigned() bool {
	return t.Assignee != "" && t.Assignee != Unassigned
}

// NominalValue is D × T, the value shown on the pool board before judging.
func (t *Task) NominalValue() float64 {
	return t.Difficulty * t.StdTime
}

// CompletionConsistent reports whether completed_at is set iff the task is Done.
func (t *Task) CompletionConsistent() bool {
	return (t.Status == StatusDone) == (t.CompletedAt != nil)
}

// NewTask is the input for creating a task.
type NewTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  float64    `json:"difficulty"`
	StdTime     float64    `json:"std_time"`
	Type        TaskType   `json:"type"`
	Assignee    string     `json:"assignee,omitempty"`
	IsRnD       bool       `json:"is_rnd"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// Validate checks the creation input at the store boundary.
func (n NewTask) Validate() error {
	if n.Title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if n.Difficulty < 0 {
		return &ValidationError{Field: "difficulty", Reason: fmt.Sprintf("must be >= 0, got %v", n.Difficulty)}
	}
	if n.StdTime < 0 {
		return &ValidationError{Field: "std_time", Reason: fmt.Sprintf("must be >= 0, got %v", n.StdTime)}
	}
	if !n.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown task type %q", n.Type)}
	}
	if n.Type == TypeDirectAssign && (n.Assignee == "" || n.Assignee == Unassigned) {
		return &ValidationError{Field: "assignee", Reason: "direct assignment needs an assignee"}
	}
	return nil
}

// TaskPatch is an administrative override. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Difficulty  *float64    `json:"difficulty,omitempty"`
	StdTime     *float64    `json:"std_time,omitempty"`
	Quality     *float64    `json:"quality,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
	Assignee    *string     `json:"assignee,omitempty"`
	Type        *TaskType   `json:"type,omitempty"`
	IsRnD       *bool       `json:"is_rnd,omitempty"`
	Deadline    *time.Time  `json:"deadline,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Feedback    *string     `json:"feedback,omitempty"`

	// ClearCompletedAt nulls completed_at; a nil CompletedAt cannot express that.
	ClearCompletedAt bool `json:"clear_completed_at,omitempty"`
}

// Apply writes the non-nil patch fields onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Difficulty != nil {
		t.Difficulty = *p.Difficulty
	}
	if p.StdTime != nil {
		t.StdTime = *p.StdTime
	}
	if p.Quality != nil {
		t.Quality = *p.Quality
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.IsRnD != nil {
		t.IsRnD = *p.IsRnD
	}
	if p.Deadline != nil {
		d := *p.Deadline
		t.Deadline = &d
	}
	if p.CompletedAt != nil {
		c := *p.CompletedAt
		t.CompletedAt = &c
	}
	if p.ClearCompletedAt {
		t.CompletedAt = nil
	}
	if p.Feedback != nil {
		t.Feedback = *p.Feedback
	}
}

// TaskFilter narrows task listings. Zero fields match everything.
type TaskFilter struct {
	Statuses []TaskStatus
	Assignee string
	Type     TaskType
	Limit    int
}
