// Package ledger computes YVP balances from completed tasks, attendance
// penalties and manual rewards.
//
// Nothing is cached: every figure is recomputed from the records, so an
// edit to any task, penalty or reward changes all later results.
//
//	net = gross − fine + rewards
//	gross = Σ D×T×Q over Done, non-R&D tasks
//	fine  = Σ over penalties of rate × (earned value completed in the
//	        fine window ending at the penalty)
package ledger

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/yanzu-lab/yvp/internal/domain"
)

// Earned returns the YVP a task is worth: D × T × Q for a Done task,
// zero for R&D tasks and for anything not Done. Negative or non-finite
// factors count as zero.
func Earned(t domain.Task) decimal.Decimal {
	v, _ := earned(t)
	return v
}

func earned(t domain.Task) (decimal.Decimal, []domain.IntegrityWarning) {
	if t.Status != domain.StatusDone || t.IsRnD {
		return decimal.Zero, nil
	}

	var warns []domain.IntegrityWarning
	d := factor(t.ID, "difficulty", t.Difficulty, &warns)
	st := factor(t.ID, "std_time", t.StdTime, &warns)
	q := factor(t.ID, "quality", t.Quality, &warns)
	if q.GreaterThan(decimal.NewFromFloat(domain.MaxQuality)) {
		warns = append(warns, domain.IntegrityWarning{
			Kind:     domain.WarnQualityRange,
			RecordID: t.ID,
			Detail:   fmt.Sprintf("quality %v above %v, capped", t.Quality, domain.MaxQuality),
		})
		q = decimal.NewFromFloat(domain.MaxQuality)
	}
	return d.Mul(st).Mul(q), warns
}

func factor(id, field string, v float64, warns *[]domain.IntegrityWarning) decimal.Decimal {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		*warns = append(*warns, domain.IntegrityWarning{
			Kind: domain.WarnInvalidValue, RecordID: id, Detail: field + " is not a finite number",
		})
		return decimal.Zero
	case v < 0:
		*warns = append(*warns, domain.IntegrityWarning{
			Kind: domain.WarnNegativeValue, RecordID: id, Detail: fmt.Sprintf("%s is %v", field, v),
		})
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// Engine applies one Policy to snapshots. It is a pure function of its
// inputs and safe for concurrent use.
type Engine struct {
	policy domain.Policy
}

// NewEngine creates an engine for the given policy.
func NewEngine(p domain.Policy) *Engine {
	return &Engine{policy: p}
}

// Policy returns the rules this engine applies.
func (e *Engine) Policy() domain.Policy {
	return e.policy
}

// valued is a Done task with its earned value worked out once.
type valued struct {
	task  domain.Task
	value decimal.Decimal
}

// account groups one user's inputs from a snapshot.
type account struct {
	done      []valued
	penalties []domain.Penalty
	rewards   []domain.Reward
	warnings  []domain.IntegrityWarning
}

// index splits a snapshot per user, valuing each task once and collecting
// integrity warnings on the way.
func index(snap domain.Snapshot) map[string]*account {
	accounts := make(map[string]*account)
	get := func(user string) *account {
		a, ok := accounts[user]
		if !ok {
			a = &account{}
			accounts[user] = a
		}
		return a
	}

	for _, t := range snap.Tasks {
		if t.Status != domain.StatusDone {
			continue
		}
		a := get(t.Assignee)
		v, warns := earned(t)
		a.warnings = append(a.warnings, warns...)
		if t.CompletedAt == nil {
			a.warnings = append(a.warnings, domain.IntegrityWarning{
				Kind:     domain.WarnMissingCompletion,
				RecordID: t.ID,
				Detail:   "done task has no completed_at; excluded from dated sums",
			})
		}
		a.done = append(a.done, valued{task: t, value: v})
	}
	for _, p := range snap.Penalties {
		a := get(p.Username)
		a.penalties = append(a.penalties, p)
	}
	for _, r := range snap.Rewards {
		a := get(r.Username)
		if r.Amount < 0 || math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
			a.warnings = append(a.warnings, domain.IntegrityWarning{
				Kind:     domain.WarnNegativeReward,
				RecordID: r.ID,
				Detail:   fmt.Sprintf("reward amount %v ignored", r.Amount),
			})
			continue
		}
		a.rewards = append(a.rewards, r)
	}
	return accounts
}

// gross sums earned value, restricted to completion inside w when w is set.
// Tasks without completed_at only count toward unrestricted sums.
func gross(done []valued, w *domain.Window) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range done {
		if w != nil && (v.task.CompletedAt == nil || !w.Contains(*v.task.CompletedAt)) {
			continue
		}
		sum = sum.Add(v.value)
	}
	return sum
}

func penaltiesIn(ps []domain.Penalty, w domain.Window) []domain.Penalty {
	var out []domain.Penalty
	for _, p := range ps {
		if w.Contains(p.OccurredAt) {
			out = append(out, p)
		}
	}
	return out
}

func rewardsIn(rs []domain.Reward, w *domain.Window) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rs {
		if w != nil && !w.Contains(r.CreatedAt) {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(r.Amount))
	}
	return sum
}

// FineWindow returns the trailing window a penalty reaches back over.
func (e *Engine) FineWindow(p domain.Penalty) domain.Window {
	return domain.Window{Start: p.OccurredAt.Add(-e.policy.FineWindow), End: p.OccurredAt}
}

// fine computes the attendance deduction. The base is always the full
// completed history, never a caller's lookback view.
func (e *Engine) fine(done []valued, penalties []domain.Penalty) decimal.Decimal {
	rate := decimal.NewFromFloat(e.policy.FineRate)
	covered := make(map[string]bool)
	total := decimal.Zero

	for _, p := range penalties {
		w := e.FineWindow(p)
		for _, v := range done {
			if v.task.IsRnD || v.task.CompletedAt == nil || !w.Contains(*v.task.CompletedAt) {
				continue
			}
			if !e.policy.CumulativeFines {
				if covered[v.task.ID] {
					continue
				}
				covered[v.task.ID] = true
			}
			total = total.Add(v.value.Mul(rate))
		}
	}
	return total
}

// Balance computes one user's net YVP. A nil window means all history.
// Users with no records get a zero balance.
func (e *Engine) Balance(snap domain.Snapshot, username string, window *domain.Window) domain.Balance {
	a, ok := index(snap)[username]
	if !ok {
		a = &account{}
	}
	return e.balance(a, username, window)
}

func (e *Engine) balance(a *account, username string, window *domain.Window) domain.Balance {
	b := domain.Balance{
		Username: username,
		Window:   window,
		Gross:    gross(a.done, window),
		Fine:     decimal.Zero,
		Rewards:  rewardsIn(a.rewards, window),
		Warnings: a.warnings,
	}

	penalties := a.penalties
	if window != nil && e.policy.RestrictPenaltiesToWindow {
		penalties = penaltiesIn(penalties, *window)
	}
	b.Penalties = len(penalties)
	if window == nil || e.policy.FineWindowedBalances {
		b.Fine = e.fine(a.done, penalties)
	}

	b.Net = b.Gross.Sub(b.Fine).Add(b.Rewards).Round(2)
	return b
}

// Period aggregates every listed user over the closed window. Earnings,
// penalty events and rewards are restricted to the window; fine bases
// reach back into history as far as each penalty's fine window needs.
// A period is a windowed view, so it is fined only when the policy fines
// windowed balances.
func (e *Engine) Period(snap domain.Snapshot, users []string, window domain.Window) domain.PeriodReport {
	accounts := index(snap)
	report := domain.PeriodReport{Window: window, Rows: make([]domain.PeriodRow, 0, len(users))}

	for _, u := range users {
		a, ok := accounts[u]
		if !ok {
			a = &account{}
		}
		row := domain.PeriodRow{
			Username:    u,
			GrossOutput: gross(a.done, &window),
			Fine:        decimal.Zero,
			Reward:      rewardsIn(a.rewards, &window),
		}
		if e.policy.FineWindowedBalances {
			row.Fine = e.fine(a.done, penaltiesIn(a.penalties, window))
		}
		row.NetYVP = row.GrossOutput.Sub(row.Fine).Add(row.Reward).Round(2)
		report.Rows = append(report.Rows, row)
		report.Warnings = append(report.Warnings, a.warnings...)
	}
	return report
}

// Leaderboard ranks users by net YVP over the window, highest first.
// Ties keep alphabetical order and share no rank.
func (e *Engine) Leaderboard(snap domain.Snapshot, users []string, window *domain.Window) []domain.LeaderboardEntry {
	accounts := index(snap)
	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		a, ok := accounts[u]
		if !ok {
			a = &account{}
		}
		b := e.balance(a, u, window)
		entries = append(entries, domain.LeaderboardEntry{Username: u, Net: b.Net, Penalties: b.Penalties})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Net.Equal(entries[j].Net) {
			return entries[i].Net.GreaterThan(entries[j].Net)
		}
		return entries[i].Username < entries[j].Username
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
