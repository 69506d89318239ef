package ledger

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanzu-lab/yvp/internal/domain"
	"github.com/yanzu-lab/yvp/internal/infra/metrics"
)

// Store is everything the ledger service reads and writes.
type Store interface {
	domain.SnapshotReader
	domain.UserStore
	domain.RecordStore
}

// Standard dashboard lookbacks, in days.
const (
	ShortLookback = 7
	LongLookback  = 30
)

// Service serves balances, reports and penalty/reward administration
// on top of a Store. Every call reloads the records it needs.
type Service struct {
	store  Store
	engine *Engine
	log    *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewService creates a ledger service. Day boundaries are taken in loc.
func NewService(store Store, policy domain.Policy, log *zap.Logger, loc *time.Location) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store:  store,
		engine: NewEngine(policy),
		log:    log.Named("ledger"),
		loc:    loc,
		now:    time.Now,
	}
}

// SetClock replaces the time source (tests, replaying a past report date).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Engine returns the pure engine the service delegates to.
func (s *Service) Engine() *Engine { return s.engine }

// StartOfDay truncates t to local midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// LookbackWindow covers the last days calendar days up to now: it starts at
// midnight days before today, matching the date-based history the team uses.
func LookbackWindow(now time.Time, days int, loc *time.Location) domain.Window {
	return domain.Window{Start: StartOfDay(now, loc).AddDate(0, 0, -days), End: now}
}

// PeriodWindow covers whole days from start through end inclusive.
func PeriodWindow(start, end time.Time, loc *time.Location) domain.Window {
	return domain.Window{
		Start: StartOfDay(start, loc),
		End:   StartOfDay(end, loc).AddDate(0, 0, 1).Add(-time.Nanosecond),
	}
}

// ─── Queries ────────────────────────────────────────────────────────────────

// NetYVP computes username's balance over the last lookbackDays days, or
// over all history when lookbackDays is nil. Members may only read their
// own balance; the leaderboard is the public view.
func (s *Service) NetYVP(actor domain.Actor, username string, lookbackDays *int) (domain.Balance, error) {
	if err := s.canRead(actor, username); err != nil {
		return domain.Balance{}, err
	}
	window, err := s.window(lookbackDays)
	if err != nil {
		return domain.Balance{}, err
	}

	start := time.Now()
	snap, err := s.store.LoadSnapshot(username)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("load ledger for %s: %w", username, err)
	}
	b := s.engine.Balance(snap, username, window)
	s.observe("balance", start, b.Warnings)
	return b, nil
}

// Dashboard returns the all-time, 7-day and 30-day balances from one read.
func (s *Service) Dashboard(actor domain.Actor, username string) (domain.Dashboard, error) {
	if err := s.canRead(actor, username); err != nil {
		return domain.Dashboard{}, err
	}

	start := time.Now()
	snap, err := s.store.LoadSnapshot(username)
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("load ledger for %s: %w", username, err)
	}
	now := s.now()
	short := LookbackWindow(now, ShortLookback, s.loc)
	long := LookbackWindow(now, LongLookback, s.loc)
	d := domain.Dashboard{
		Username: username,
		AllTime:  s.engine.Balance(snap, username, nil),
		Last7:    s.engine.Balance(snap, username, &short),
		Last30:   s.engine.Balance(snap, username, &long),
	}
	s.observe("dashboard", start, d.AllTime.Warnings)
	return d, nil
}

// Leaderboard ranks all members over the lookback (nil = all history).
func (s *Service) Leaderboard(actor domain.Actor, lookbackDays *int) ([]domain.LeaderboardEntry, error) {
	window, err := s.window(lookbackDays)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	users, err := s.memberNames()
	if err != nil {
		return nil, err
	}
	snap, err := s.store.LoadSnapshot("")
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	entries := s.engine.Leaderboard(snap, users, window)
	s.observe("leaderboard", start, nil)
	s.log.Debug("leaderboard computed", zap.String("actor", actor.Username), zap.Int("members", len(entries)))
	return entries, nil
}

// PeriodStats aggregates every member over [startDate, endDate], whole days
// inclusive. Payroll data: administrators only.
func (s *Service) PeriodStats(actor domain.Actor, startDate, endDate time.Time) (domain.PeriodReport, error) {
	if !actor.IsAdmin() {
		return domain.PeriodReport{}, fmt.Errorf("period report needs an administrator: %w", domain.ErrPermissionDenied)
	}
	if endDate.Before(startDate) {
		return domain.PeriodReport{}, &domain.ValidationError{Field: "end", Reason: "must not be before start"}
	}

	start := time.Now()
	users, err := s.memberNames()
	if err != nil {
		return domain.PeriodReport{}, err
	}
	snap, err := s.store.LoadSnapshot("")
	if err != nil {
		return domain.PeriodReport{}, fmt.Errorf("load ledger: %w", err)
	}
	report := s.engine.Period(snap, users, PeriodWindow(startDate, endDate, s.loc))
	s.observe("period", start, report.Warnings)
	s.log.Info("period report computed",
		zap.String("actor", actor.Username),
		zap.Time("start", report.Window.Start),
		zap.Time("end", report.Window.End),
		zap.Int("rows", len(report.Rows)),
	)
	return report, nil
}

func (s *Service) window(lookbackDays *int) (*domain.Window, error) {
	if lookbackDays == nil {
		return nil, nil
	}
	if *lookbackDays < 0 {
		return nil, &domain.ValidationError{Field: "days", Reason: fmt.Sprintf("must be >= 0, got %d", *lookbackDays)}
	}
	w := LookbackWindow(s.now(), *lookbackDays, s.loc)
	return &w, nil
}

func (s *Service) canRead(actor domain.Actor, username string) error {
	if username == "" {
		return &domain.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if !actor.IsAdmin() && actor.Username != username {
		return fmt.Errorf("%s may not read the ledger of %s: %w", actor.Username, username, domain.ErrPermissionDenied)
	}
	return nil
}

func (s *Service) memberNames() ([]string, error) {
	members, err := s.store.ListUsers(domain.RoleMember)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Username
	}
	return names, nil
}

func (s *Service) observe(kind string, start time.Time, warns []domain.IntegrityWarning) {
	metrics.LedgerComputations.WithLabelValues(kind).Inc()
	metrics.LedgerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	for _, w := range warns {
		metrics.IntegrityWarnings.WithLabelValues(string(w.Kind)).Inc()
		s.log.Warn("ledger data integrity",
			zap.String("kind", string(w.Kind)),
			zap.String("record", w.RecordID),
			zap.String("detail", w.Detail),
		)
	}
}

// ─── Penalty & Reward Administration ────────────────────────────────────────

// RecordPenalty appends an attendance infraction for a roster user.
func (s *Service) RecordPenalty(actor domain.Actor, username string, occurredAt time.Time, reason string) (*domain.Penalty, error) {
	if err := s.requireAdmin(actor, "record penalties"); err != nil {
		return nil, err
	}
	if err := s.requireUser(username); err != nil {
		return nil, err
	}
	if occurredAt.IsZero() {
		return nil, &domain.ValidationError{Field: "occurred_at", Reason: "must be set"}
	}
	if strings.TrimSpace(reason) == "" {
		reason = domain.DefaultPenaltyReason
	}

	p := domain.Penalty{ID: uuid.NewString(), Username: username, OccurredAt: occurredAt, Reason: reason}
	if err := s.store.InsertPenalty(p); err != nil {
		return nil, fmt.Errorf("insert penalty: %w", err)
	}
	metrics.LedgerRecords.WithLabelValues("penalty", "insert").Inc()
	s.log.Info("penalty recorded",
		zap.String("actor", actor.Username),
		zap.String("user", username),
		zap.Time("occurred_at", occurredAt),
		zap.String("reason", reason),
	)
	return &p, nil
}

// UpdatePenalty rewrites an infraction; later balances change retroactively.
func (s *Service) UpdatePenalty(actor domain.Actor, p domain.Penalty) error {
	if err := s.requireAdmin(actor, "edit penalties"); err != nil {
		return err
	}
	if p.OccurredAt.IsZero() {
		return &domain.ValidationError{Field: "occurred_at", Reason: "must be set"}
	}
	if err := s.store.UpdatePenalty(p); err != nil {
		return err
	}
	metrics.LedgerRecords.WithLabelValues("penalty", "update").Inc()
	s.log.Info("penalty updated", zap.String("actor", actor.Username), zap.String("id", p.ID))
	return nil
}

// DeletePenalty removes an infraction.
func (s *Service) DeletePenalty(actor domain.Actor, id string) error {
	if err := s.requireAdmin(actor, "delete penalties"); err != nil {
		return err
	}
	if err := s.store.DeletePenalty(id); err != nil {
		return err
	}
	metrics.LedgerRecords.WithLabelValues("penalty", "delete").Inc()
	s.log.Info("penalty deleted", zap.String("actor", actor.Username), zap.String("id", id))
	return nil
}

// Penalties lists infractions for one user, or everyone when username is empty.
func (s *Service) Penalties(username string) ([]domain.Penalty, error) {
	return s.store.ListPenalties(username)
}

// GrantReward appends a manual credit. createdAt defaults to now.
func (s *Service) GrantReward(actor domain.Actor, username string, amount float64, reason string, createdAt time.Time) (*domain.Reward, error) {
	if err := s.requireAdmin(actor, "grant rewards"); err != nil {
		return nil, err
	}
	if err := s.requireUser(username); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	r := domain.Reward{ID: uuid.NewString(), Username: username, Amount: amount, Reason: reason, CreatedAt: createdAt}
	if err := s.store.InsertReward(r); err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	metrics.LedgerRecords.WithLabelValues("reward", "insert").Inc()
	s.log.Info("reward granted",
		zap.String("actor", actor.Username),
		zap.String("user", username),
		zap.Float64("amount", amount),
	)
	return &r, nil
}

// UpdateReward rewrites a manual credit.
func (s *Service) UpdateReward(actor domain.Actor, r domain.Reward) error {
	if err := s.requireAdmin(actor, "edit rewards"); err != nil {
		return err
	}
	if err := validAmount(r.Amount); err != nil {
		return err
	}
	if err := s.store.UpdateReward(r); err != nil {
		return err
	}
	metrics.LedgerRecords.WithLabelValues("reward", "update").Inc()
	s.log.Info("reward updated", zap.String("actor", actor.Username), zap.String("id", r.ID))
	return nil
}

// DeleteReward removes a manual credit.
func (s *Service) DeleteReward(actor domain.Actor, id string) error {
	if err := s.requireAdmin(actor, "delete rewards"); err != nil {
		return err
	}
	if err := s.store.DeleteReward(id); err != nil {
		return err
	}
	metrics.LedgerRecords.WithLabelValues("reward", "delete").Inc()
	s.log.Info("reward deleted", zap.String("actor", actor.Username), zap.String("id", id))
	return nil
}

// Rewards lists credits for one user, or everyone when username is empty.
func (s *Service) Rewards(username string) ([]domain.Reward, error) {
	return s.store.ListRewards(username)
}

func (s *Service) requireAdmin(actor domain.Actor, what string) error {
	if actor.IsAdmin() {
		return nil
	}
	return fmt.Errorf("%s may not %s: %w", actor.Username, what, domain.ErrPermissionDenied)
}

func (s *Service) requireUser(username string) error {
	if username == "" {
		return &domain.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	_, err := s.store.GetUser(username)
	return err
}

func validAmount(amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return &domain.ValidationError{Field: "amount", Reason: fmt.Sprintf("must be a number >= 0, got %v", amount)}
	}
	return nil
}
