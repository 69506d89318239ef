package ledger

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanzu-lab/yvp/internal/domain"
)

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return base.AddDate(0, 0, n-1) }

func doneTask(id, user string, d, st, q float64, completed time.Time) domain.Task {
	return domain.Task{
		ID: id, Title: id, Difficulty: d, StdTime: st, Quality: q,
		Status: domain.StatusDone, Assignee: user, Type: domain.TypePublicPool,
		CompletedAt: &completed,
	}
}

func penalty(id, user string, at time.Time) domain.Penalty {
	return domain.Penalty{ID: id, Username: user, OccurredAt: at, Reason: domain.DefaultPenaltyReason}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !decimal.RequireFromString(want).Equal(got) {
		assert.Fail(t, fmt.Sprintf("decimal mismatch: want %s, got %s", want, got), msgAndArgs...)
	}
}

// ─── Earned ─────────────────────────────────────────────────────────────────

func TestEarned_Formula(t *testing.T) {
	task := doneTask("t", "a", 2, 3, 1.5, day(1))
	assertDec(t, "9", Earned(task))

	task.IsRnD = true
	assertDec(t, "0", Earned(task))
}

func TestEarned_NotDone(t *testing.T) {
	for _, s := range []domain.TaskStatus{
		domain.StatusUnclaimed, domain.StatusInProgress, domain.StatusPendingReview, domain.StatusRework,
	} {
		task := doneTask("t", "a", 2, 3, 1.5, day(1))
		task.Status = s
		assertDec(t, "0", Earned(task), "status %s", s)
	}
}

func TestEarned_MalformedDegradesToZero(t *testing.T) {
	tests := []struct {
		name string
		d, q float64
		kind domain.WarningKind
		want string
	}{
		{"negative difficulty", -1, 1, domain.WarnNegativeValue, "0"},
		{"nan quality", 2, math.NaN(), domain.WarnInvalidValue, "0"},
		{"quality above max", 1, 5, domain.WarnQualityRange, "6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, warns := earned(doneTask("t", "a", tt.d, 2, tt.q, day(1)))
			assertDec(t, tt.want, v)
			require.Len(t, warns, 1)
			assert.Equal(t, tt.kind, warns[0].Kind)
		})
	}
}

// ─── Balance ────────────────────────────────────────────────────────────────

func TestBalance_EmptyIsZero(t *testing.T) {
	e := NewEngine(domain.DefaultPolicy())
	b := e.Balance(domain.Snapshot{}, "nobody", nil)
	assertDec(t, "0", b.Net)
	assert.Empty(t, b.Warnings)
}

func TestBalance_ScenarioPenaltyThenReward(t *testing.T) {
	e := NewEngine(domain.DefaultPolicy())
	snap := domain.Snapshot{
		Tasks:     []domain.Task{doneTask("t1", "A", 1, 2, 2, day(10))},
		Penalties: []domain.Penalty{penalty("p1", "A", day(12))},
	}

	b := e.Balance(snap, "A", nil)
	assertDec(t, "4", b.Gross)
	assertDec(t, "0.8", b.Fine)
	assertDec(t, "3.2", b.Net)

	snap.Rewards = []domain.Reward{{ID: "r1", Username: "A", Amount: 5, CreatedAt: day(13)}}
	assertDec(t, "8.2", e.Balance(snap, "A", nil).Net)
}

func TestBalance_Idempotent(t *testing.T) {
	e := NewEngine(domain.DefaultPolicy())
	snap := domain.Snapshot{
		Tasks: []domain.Task{
			doneTask("t1", "A", 1.3, 2.7, 1.1, day(3)),
			doneTask("t2", "A", 2, 0.5, 2.9, day(8)),
		},
		Penalties: []domain.Penalty{penalty("p1", "A", day(9))},
		Rewards:   []domain.Reward{{ID: "r1", Username: "A", Amount: 1.25, CreatedAt: day(9)}},
	}
	first := e.Balance(snap, "A", nil)
	second := e.Balance(snap, "A", nil)
	assert.True(t, first.Net.Equal(second.Net))
	assert.True(t, first.Fine.Equal(second.Fine))
}

func TestBalance_PenaltyNeverIncreasesNet(t *testing.T) {
	e := NewEngine(domain.DefaultPolicy())
	snap := domain.Snapshot{
		Tasks: []domain.Task{
			doneTask("t1", "A", 1, 2, 2, day(2)),
			doneTask("t2", "A", 3, 1, 1, day(6)),
			doneTask("t3", "A", 2, 2, 0, day(9)),
		},
	}
	prev := e.Balance(snap, "A", nil).Net
	for i, at := range []time.Time{day(1), day(7), day(9), day(30)} {
		snap.Penalties = append(snap.Penalties, penalty("p", "A", at))
		next := e.Balance(snap, "A", nil).Net
		assert.True(t, next.LessThanOrEqual(prev), "penalty %d raised net from %s to %s", i, prev, next)
		prev = next
	}
}

func TestBalance_FineWindowBoundary(t *testing.T) {
	e := NewEngine(domain.DefaultPolicy())
	at := day(20)
	p := penalty("p1", "A", at)

	edge := doneTask("edge", "A", 5, 2, 1, at.Add(-7*24*time.Hour))
	snap := domain.Snapshot{Tasks: []domain.Task{edge}, Penalties: []domain.Penalty{p}}
	assertDec(t, "2", e.Balance(snap, "A", nil).Fine, "exactly 7 days before is inside")

	outside := doneTask("out", "A", 5, 2, 1, at.Add(-7*24*time.Hour-time.Second))
	snap = domain.Snapshot{Tasks: []domain.Task{outside}, Penalties: []domain.Penalty{p}}
	assertDec(t, "0", e.Balance(snap, "A", nil).Fine, "7 days and 1s before is outside")

	same := doneTask("same", "A", 5, 2, 1, at)
	snap = domain.Snapshot{Tasks: []domain.Task{same}, Penalties: []domain.Penalty{p}}
	assertDec(t, "2", e.Balance(snap, "A", nil).Fine, "the penalty instant is inside")

	after := doneTask("after", "A", 5, 2, 1, at.Add(time.Second))
	snap = domain.Snapshot{Tasks: []domain.Task{after}, Penalties: []domain.Penalty{p}}
	assertDec(t, "0", e.Balance(snap, "A", nil).Fine, "work after the penalty is never fined")
}

func TestBalance_OverlappingPenalties(t *testing.T) {
	snap := domain.Snapshot{
		Tasks: []domain.Task{doneTask("t1", "A", 5, 2, 1, day(11))},
		Penalties: []domain.Penalty{
			penalty("p1", "A", day(12)),
			penalty("p2", "A", day(15)),
		},
	}

	cumulative := NewEngine(domain.DefaultPolicy()).Balance(snap, "A", nil)
	assertDec(t, "4", cumulative.Fine, "0.4 × 10 under cumulative fining")

	single := NewEngine(domain.LegacyPolicy()).Balance(snap, "A", nil)
	assertDec(t, "2", single.Fine, "0.2 × 10 when each task is fined once")
}

func TestBalance_RnDExcludedFromFineBase(t *testing.T) {
	rnd := doneTask("rnd", "A", 10, 10, 3, day(10))
	rnd.IsRnD = true
	snap := domain.Snapshot{
		Tasks:     []domain.Task{rnd, doneTask("t1", "A", 1, 1, 1, day(10))},
		Penalties: []domain.Penalty{penalty("p1", "A", day(11))},
	}
	b := NewEngine(domain.DefaultPolicy()).Balance(snap, "A", nil)
	assertDec(t, "1", b.Gross)
	assertDec(t, "0.2", b.Fine)
	assertDec(t, "0.8", b.Net)
}

func TestBalance_MissingCompletionFailsSafe(t *testing.T) {
	broken := doneTask("broken", "A", 2, 2, 1, day(1))
	broken.CompletedAt = nil
	snap := domain.Snapshot{
		Tasks:     []domain.Task{broken, doneTask("ok", "A", 1, 1, 1, day(10))},
		Penalties: []domain.Penalty{penalty("p1", "A", day(10))},
	}
	e := NewEngine(domain.DefaultPolicy())

	all := e.Balance(snap, "A", nil)
	assertDec(t, "5", all.Gross, "undated task still counts toward all-time earnings")
	assertDec(t, "0.2", all.Fine, "undated task is outside every fine window")
	require.Len(t, all.Warnings, 1)
	assert.Equal(t, domain.WarnMissingCompletion, all.Warnings[0].Kind)
	assert.Equal(t, "broken", all.Warnings[0].RecordID)

	w := domain.Window{Start: day(1), End: day(30)}
	windowed := e.Balance(snap, "A", &w)
	assertDec(t, "1", windowed.Gross, "undated task is outside every dated window")
}

func TestBalance_Windowed(t *testing.T) {
	snap := domain.Snapshot{
		Tasks: []domain.Task{
			doneTask("old", "A", 10, 1, 1, day(2)),
			doneTask("new", "A", 5, 1, 1, day(20)),
		},
		Penalties: []domain.Penalty{
			penalty("p-old", "A", day(3)),
			penalty("p-new", "A", day(21)),
		},
		Rewards: []domain.Reward{
			{ID: "r-old", Username: "A", Amount: 100, CreatedAt: day(1)},
			{ID: "r-new", Username: "A", Amount: 1, CreatedAt: day(21)},
		},
	}
	w := domain.Window{Start: day(15), End: day(22)}

	current := NewEngine(domain.DefaultPolicy()).Balance(snap, "A", &w)
	assertDec(t, "5", current.Gross)
	assertDec(t, "1", current.Fine, "only p-new counts, fining the day-20 task")
	assertDec(t, "1", current.Rewards)
	assertDec(t, "5", current.Net)
	assert.Equal(t, 1, current.Penalties)

	legacy := NewEngine(domain.LegacyPolicy()).Balance(snap, "A", &w)
	assertDec(t, "0", legacy.Fine, "legacy rules leave windowed balances unfined")
	assertDec(t, "6", legacy.Net)

	everyPenalty := domain.DefaultPolicy()
	everyPenalty.RestrictPenaltiesToWindow = false
	unrestricted := NewEngine(everyPenalty).Balance(snap, "A", &w)
	assertDec(t, "3", unrestricted.Fine, "p-old fines the day-2 task, p-new the day-20 task")
	assertDec(t, "3", unrestricted.Net)
	assert.Equal(t, 2, unrestricted.Penalties)
}

func TestBalance_FineBaseIgnoresLookback(t *testing.T) {
	// The penalty falls inside the lookback but fines work done before it.
	snap := domain.Snapshot{
		Tasks:     []domain.Task{doneTask("t1", "A", 10, 1, 1, day(13))},
		Penalties: []domain.Penalty{penalty("p1", "A", day(16))},
	}
	w := domain.Window{Start: day(15), End: day(22)}
	b := NewEngine(domain.DefaultPolicy()).Balance(snap, "A", &w)
	assertDec(t, "0", b.Gross)
	assertDec(t, "2", b.Fine)
	assertDec(t, "-2", b.Net)
}

func TestBalance_OtherUsersIgnored(t *testing.T) {
	snap := domain.Snapshot{
		Tasks:     []domain.Task{doneTask("t1", "B", 10, 1, 1, day(10))},
		Penalties: []domain.Penalty{penalty("p1", "A", day(11))},
	}
	b := NewEngine(domain.DefaultPolicy()).Balance(snap, "A", nil)
	assertDec(t, "0", b.Fine)
	assertDec(t, "0", b.Net)
}

func TestBalance_RoundsNet(t *testing.T) {
	snap := domain.Snapshot{Tasks: []domain.Task{doneTask("t1", "A", 1.111, 1, 1, day(1))}}
	b := NewEngine(domain.DefaultPolicy()).Balance(snap, "A", nil)
	assertDec(t, "1.11", b.Net)
}

// ─── Period & Leaderboard ───────────────────────────────────────────────────

func TestPeriod(t *testing.T) {
	snap := domain.Snapshot{
		Tasks: []domain.Task{
			doneTask("before", "A", 10, 1, 1, day(3)),
			doneTask("inside", "A", 5, 1, 1, day(8)),
			doneTask("b-in", "B", 2, 1, 1, day(9)),
		},
		Penalties: []domain.Penalty{
			penalty("p-in", "A", day(6)),
			penalty("p-out", "A", day(20)),
		},
		Rewards: []domain.Reward{
			{ID: "r-in", Username: "B", Amount: 3, CreatedAt: day(10)},
			{ID: "r-out", Username: "B", Amount: 50, CreatedAt: day(2)},
		},
	}
	w := domain.Window{Start: day(5), End: day(11)}
	report := NewEngine(domain.DefaultPolicy()).Period(snap, []string{"A", "B", "C"}, w)
	require.Len(t, report.Rows, 3)

	a := report.Rows[0]
	assertDec(t, "5", a.GrossOutput)
	assertDec(t, "2", a.Fine, "p-in reaches back to the day-3 task outside the period")
	assertDec(t, "3", a.NetYVP)

	b := report.Rows[1]
	assertDec(t, "2", b.GrossOutput)
	assertDec(t, "3", b.Reward)
	assertDec(t, "5", b.NetYVP)

	c := report.Rows[2]
	assert.Equal(t, "C", c.Username)
	assertDec(t, "0", c.NetYVP)
}

func TestLeaderboard(t *testing.T) {
	snap := domain.Snapshot{
		Tasks: []domain.Task{
			doneTask("t1", "A", 1, 1, 1, day(1)),
			doneTask("t2", "B", 5, 1, 1, day(1)),
			doneTask("t3", "C", 1, 1, 1, day(1)),
		},
		Penalties: []domain.Penalty{penalty("p1", "B", day(2))},
	}
	entries := NewEngine(domain.DefaultPolicy()).Leaderboard(snap, []string{"C", "A", "B"}, nil)
	require.Len(t, entries, 3)
	assert.Equal(t, "B", entries[0].Username)
	assert.Equal(t, 1, entries[0].Penalties)
	assertDec(t, "4", entries[0].Net)
	assert.Equal(t, "A", entries[1].Username, "ties sort by name")
	assert.Equal(t, "C", entries[2].Username)
	assert.Equal(t, 3, entries[2].Rank)
}

func TestPeriod_FollowsWindowedFinePolicy(t *testing.T) {
	snap := domain.Snapshot{
		Tasks:     []domain.Task{doneTask("t1", "A", 1, 2, 2, day(10))},
		Penalties: []domain.Penalty{penalty("p1", "A", day(12))},
	}
	w := domain.Window{Start: day(1), End: day(20)}

	tests := []struct {
		name   string
		policy domain.Policy
		fine   string
		net    string
	}{
		{"current", domain.DefaultPolicy(), "0.8", "3.2"},
		{"legacy", domain.LegacyPolicy(), "0", "4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.policy)
			row := e.Period(snap, []string{"A"}, w).Rows[0]
			balance := e.Balance(snap, "A", &w)

			assertDec(t, tt.fine, row.Fine)
			assertDec(t, tt.net, row.NetYVP)
			assert.True(t, balance.Fine.Equal(row.Fine), "period fine %s, windowed balance fine %s", row.Fine, balance.Fine)
		})
	}
}
