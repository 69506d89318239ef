// Package workflow implements the task state machine:
//
//	Unclaimed ─claim→ InProgress ─submit→ PendingReview ─accept→ Done
//	                                          │    ▲
//	                                     reject    resubmit
//	                                          ▼    │
//	                                          Rework
//
// Every call carries the caller as a domain.Actor. Illegal transitions fail
// with a *domain.TransitionError and leave the store untouched.
package workflow

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanzu-lab/yvp/internal/domain"
	"github.com/yanzu-lab/yvp/internal/infra/metrics"
)

// Service drives task transitions against a TaskStore under one Policy.
type Service struct {
	tasks  domain.TaskStore
	policy domain.Policy
	log    *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewService creates a workflow service. completed_at dates are taken in loc.
func NewService(tasks domain.TaskStore, policy domain.Policy, log *zap.Logger, loc *time.Location) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		tasks:  tasks,
		policy: policy,
		log:    log.Named("workflow"),
		loc:    loc,
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ─── Creation ───────────────────────────────────────────────────────────────

// Create adds a task. PublicPool tasks enter the pool unassigned;
// DirectAssign tasks start InProgress with their assignee.
func (s *Service) Create(actor domain.Actor, n domain.NewTask) (*domain.Task, error) {
	if !actor.IsAdmin() {
		return nil, denied(actor, "create tasks")
	}
	n.Title = strings.TrimSpace(n.Title)
	if err := n.Validate(); err != nil {
		return nil, err
	}

	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       n.Title,
		Description: n.Description,
		Difficulty:  n.Difficulty,
		StdTime:     n.StdTime,
		Quality:     domain.DefaultQuality,
		Status:      n.Type.InitialStatus(),
		Assignee:    domain.Unassigned,
		Type:        n.Type,
		IsRnD:       n.IsRnD,
		Deadline:    n.Deadline,
		CreatedAt:   s.now(),
	}
	if n.Type == domain.TypeDirectAssign {
		t.Assignee = n.Assignee
	}

	if err := s.tasks.InsertTask(t); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	metrics.TasksCreated.WithLabelValues(typeLabel(t.Type)).Inc()
	s.log.Info("task created",
		zap.String("actor", actor.Username),
		zap.String("task", t.ID),
		zap.String("title", t.Title),
		zap.String("type", string(t.Type)),
		zap.String("assignee", t.Assignee),
	)
	return &t, nil
}

// ─── Transitions ────────────────────────────────────────────────────────────

// Claim takes an Unclaimed pool task for the caller. Administrators cannot
// claim. The cap and the state are re-checked atomically by the store.
func (s *Service) Claim(actor domain.Actor, taskID string) (*domain.Task, error) {
	if actor.IsAdmin() {
		return nil, s.reject(domain.OpClaim, "role", denied(actor, "claim tasks"))
	}
	t, err := s.tasks.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusUnclaimed {
		return nil, s.reject(domain.OpClaim, "state", &domain.TransitionError{TaskID: t.ID, Op: domain.OpClaim, From: t.Status})
	}

	claimed, err := s.tasks.ClaimTask(domain.ClaimRequest{
		TaskID:    taskID,
		Assignee:  actor.Username,
		MaxActive: s.policy.MaxActiveClaims,
		CapStates: s.policy.CapStatuses(),
	})
	if err != nil {
		return nil, s.reject(domain.OpClaim, reasonOf(err), err)
	}
	s.transitioned(actor, domain.OpClaim, claimed, domain.StatusUnclaimed)
	return claimed, nil
}

// Submit hands InProgress work to review. Assignee only.
func (s *Service) Submit(actor domain.Actor, taskID string) (*domain.Task, error) {
	return s.deliver(actor, taskID, domain.OpSubmit, domain.StatusInProgress)
}

// Resubmit hands reworked work back to review. Assignee only.
func (s *Service) Resubmit(actor domain.Actor, taskID string) (*domain.Task, error) {
	return s.deliver(actor, taskID, domain.OpResubmit, domain.StatusRework)
}

func (s *Service) deliver(actor domain.Actor, taskID string, op domain.Transition, from domain.TaskStatus) (*domain.Task, error) {
	t, err := s.tasks.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != from {
		return nil, s.reject(op, "state", &domain.TransitionError{TaskID: t.ID, Op: op, From: t.Status})
	}
	if t.Assignee != actor.Username {
		return nil, s.reject(op, "role", fmt.Errorf("%s is not the assignee of task %s: %w",
			actor.Username, t.ID, domain.ErrPermissionDenied))
	}

	next := *t
	next.Status = domain.StatusPendingReview
	return s.commit(actor, op, from, next)
}

// Accept closes a reviewed task as Done with the given quality. The
// completion date is today in the service's location.
func (s *Service) Accept(actor domain.Actor, taskID string, quality float64, feedback string) (*domain.Task, error) {
	if !actor.IsAdmin() {
		return nil, s.reject(domain.OpAccept, "role", denied(actor, "judge tasks"))
	}
	t, err := s.pendingReview(taskID, domain.OpAccept)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(quality) || quality < domain.MinQuality || quality > domain.MaxQuality {
		return nil, s.reject(domain.OpAccept, "validation", &domain.ValidationError{
			Field: "quality", Reason: fmt.Sprintf("must be within [%v, %v], got %v", domain.MinQuality, domain.MaxQuality, quality),
		})
	}
	feedback = strings.TrimSpace(feedback)
	if feedback == "" && s.policy.RequireAcceptFeedback {
		return nil, s.reject(domain.OpAccept, "validation", &domain.ValidationError{Field: "feedback", Reason: "required when accepting"})
	}

	completed := startOfDay(s.now(), s.loc)
	next := *t
	next.Status = domain.StatusDone
	next.Quality = quality
	next.CompletedAt = &completed
	next.Feedback = feedback
	return s.commit(actor, domain.OpAccept, domain.StatusPendingReview, next)
}

// Reject sends a reviewed task back for rework. feedback is required.
func (s *Service) Reject(actor domain.Actor, taskID string, feedback string) (*domain.Task, error) {
	if !actor.IsAdmin() {
		return nil, s.reject(domain.OpReject, "role", denied(actor, "judge tasks"))
	}
	t, err := s.pendingReview(taskID, domain.OpReject)
	if err != nil {
		return nil, err
	}
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return nil, s.reject(domain.OpReject, "validation", &domain.ValidationError{Field: "feedback", Reason: "a rejection reason is required"})
	}

	next := *t
	next.Status = domain.StatusRework
	next.Quality = 0
	next.CompletedAt = nil
	next.Feedback = feedback
	return s.commit(actor, domain.OpReject, domain.StatusPendingReview, next)
}

func (s *Service) pendingReview(taskID string, op domain.Transition) (*domain.Task, error) {
	t, err := s.tasks.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusPendingReview {
		return nil, s.reject(op, "state", &domain.TransitionError{TaskID: t.ID, Op: op, From: t.Status})
	}
	return t, nil
}

// commit writes next only if the task is still in from.
func (s *Service) commit(actor domain.Actor, op domain.Transition, from domain.TaskStatus, next domain.Task) (*domain.Task, error) {
	if err := s.tasks.TransitionTask(from, next); err != nil {
		return nil, s.reject(op, reasonOf(err), err)
	}
	s.transitioned(actor, op, &next, from)
	return &next, nil
}

func (s *Service) transitioned(actor domain.Actor, op domain.Transition, t *domain.Task, from domain.TaskStatus) {
	metrics.TaskTransitions.WithLabelValues(string(op)).Inc()
	s.log.Info("task transition",
		zap.String("op", string(op)),
		zap.String("actor", actor.Username),
		zap.String("task", t.ID),
		zap.String("from", string(from)),
		zap.String("to", string(t.Status)),
	)
}

func (s *Service) reject(op domain.Transition, reason string, err error) error {
	metrics.TaskRejections.WithLabelValues(string(op), reason).Inc()
	s.log.Debug("task transition rejected", zap.String("op", string(op)), zap.String("reason", reason), zap.Error(err))
	return err
}

// ─── Administrative Overrides ───────────────────────────────────────────────

// Override forces any task fields outside the state machine. The edit is
// always audited; it is flagged when the result breaks the
// completed_at ⇔ Done invariant or carries out-of-range values.
func (s *Service) Override(actor domain.Actor, taskID string, patch domain.TaskPatch) (*domain.Task, error) {
	if !actor.IsAdmin() {
		return nil, denied(actor, "edit tasks")
	}
	t, err := s.tasks.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *patch.Status)}
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return nil, &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown task type %q", *patch.Type)}
	}

	before := t.Status
	next := *t
	patch.Apply(&next)

	problems := anomalies(&next)
	flagged := len(problems) > 0
	detail := fmt.Sprintf("status %s -> %s", before, next.Status)
	if flagged {
		detail += "; " + strings.Join(problems, "; ")
	}
	event := s.auditEvent(actor, domain.AuditOverride, taskID, detail, flagged)
	if err := s.tasks.OverrideTask(next, event); err != nil {
		return nil, fmt.Errorf("override task %s: %w", taskID, err)
	}

	metrics.AdminOverrides.WithLabelValues(fmt.Sprint(flagged)).Inc()
	fields := []zap.Field{
		zap.String("actor", actor.Username),
		zap.String("task", taskID),
		zap.String("from", string(before)),
		zap.String("to", string(next.Status)),
	}
	if flagged {
		s.log.Warn("administrative override breaks task invariants", append(fields, zap.Strings("problems", problems))...)
	} else {
		s.log.Warn("administrative override", fields...)
	}
	return &next, nil
}

// anomalies lists the ways t violates the record invariants.
func anomalies(t *domain.Task) []string {
	var out []string
	if !t.CompletionConsistent() {
		if t.Status == domain.StatusDone {
			out = append(out, "done without completed_at")
		} else {
			out = append(out, "completed_at set on a task that is not done")
		}
	}
	if t.Difficulty < 0 || math.IsNaN(t.Difficulty) {
		out = append(out, fmt.Sprintf("difficulty %v", t.Difficulty))
	}
	if t.StdTime < 0 || math.IsNaN(t.StdTime) {
		out = append(out, fmt.Sprintf("std_time %v", t.StdTime))
	}
	if t.Quality < domain.MinQuality || t.Quality > domain.MaxQuality || math.IsNaN(t.Quality) {
		out = append(out, fmt.Sprintf("quality %v", t.Quality))
	}
	if t.Type == domain.TypePublicPool && t.Status != domain.StatusUnclaimed && !t.IsAssigned() {
		out = append(out, "active pool task without assignee")
	}
	return out
}

// Purge deletes a task outright. Purged Done tasks vanish from every
// later balance.
func (s *Service) Purge(actor domain.Actor, taskID string) error {
	if !actor.IsAdmin() {
		return denied(actor, "purge tasks")
	}
	t, err := s.tasks.GetTask(taskID)
	if err != nil {
		return err
	}
	detail := fmt.Sprintf("purged %q (%s, assignee %s)", t.Title, t.Status, t.Assignee)
	if err := s.tasks.PurgeTask(taskID, s.auditEvent(actor, domain.AuditPurge, taskID, detail, false)); err != nil {
		return fmt.Errorf("purge task %s: %w", taskID, err)
	}
	s.log.Warn("task purged", zap.String("actor", actor.Username), zap.String("task", taskID), zap.String("status", string(t.Status)))
	return nil
}

func (s *Service) auditEvent(actor domain.Actor, kind domain.AuditKind, taskID, detail string, flagged bool) domain.AuditEvent {
	return domain.AuditEvent{
		ID:      uuid.NewString(),
		At:      s.now(),
		Actor:   actor.Username,
		TaskID:  taskID,
		Kind:    kind,
		Detail:  detail,
		Flagged: flagged,
	}
}

// Audit returns the most recent override and purge events. Administrators only.
func (s *Service) Audit(actor domain.Actor, limit int) ([]domain.AuditEvent, error) {
	if !actor.IsAdmin() {
		return nil, denied(actor, "read the audit trail")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.tasks.AuditEvents(limit)
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Get returns one task.
func (s *Service) Get(taskID string) (*domain.Task, error) {
	return s.tasks.GetTask(taskID)
}

// List returns tasks matching f.
func (s *Service) List(f domain.TaskFilter) ([]domain.Task, error) {
	return s.tasks.ListTasks(f)
}

// Pool returns the claimable public tasks.
func (s *Service) Pool() ([]domain.Task, error) {
	return s.tasks.ListTasks(domain.TaskFilter{
		Statuses: []domain.TaskStatus{domain.StatusUnclaimed},
		Type:     domain.TypePublicPool,
	})
}

// InFlight returns every task someone is holding.
func (s *Service) InFlight() ([]domain.Task, error) {
	return s.tasks.ListTasks(domain.TaskFilter{
		Statuses: []domain.TaskStatus{domain.StatusInProgress, domain.StatusRework, domain.StatusPendingReview},
	})
}

// PendingReview returns the judging queue.
func (s *Service) PendingReview() ([]domain.Task, error) {
	return s.tasks.ListTasks(domain.TaskFilter{Statuses: []domain.TaskStatus{domain.StatusPendingReview}})
}

// Open returns username's unfinished work.
func (s *Service) Open(username string) ([]domain.Task, error) {
	return s.tasks.ListTasks(domain.TaskFilter{
		Statuses: []domain.TaskStatus{domain.StatusInProgress, domain.StatusRework, domain.StatusPendingReview},
		Assignee: username,
	})
}

// History returns completed tasks, newest first. An empty username lists
// everyone's.
func (s *Service) History(username string, limit int) ([]domain.Task, error) {
	return s.tasks.ListTasks(domain.TaskFilter{
		Statuses: []domain.TaskStatus{domain.StatusDone},
		Assignee: username,
		Limit:    limit,
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func denied(actor domain.Actor, what string) error {
	return fmt.Errorf("%s (%s) may not %s: %w", actor.Username, actor.Role, what, domain.ErrPermissionDenied)
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, domain.ErrStateConflict):
		return "state"
	case errors.Is(err, domain.ErrTaskNotFound):
		return "not_found"
	}
	return "store"
}

func typeLabel(t domain.TaskType) string {
	if t == domain.TypeDirectAssign {
		return "direct"
	}
	return "pool"
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
