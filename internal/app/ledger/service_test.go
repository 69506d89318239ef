package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanzu-lab/yvp/internal/domain"
	"github.com/yanzu-lab/yvp/internal/infra/sqlite"
)

var (
	admin = domain.Actor{Username: "boss", Role: domain.RoleAdmin}
	alice = domain.Actor{Username: "alice", Role: domain.RoleMember}
	bob   = domain.Actor{Username: "bob", Role: domain.RoleMember}
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestService opens a store with a small roster and a clock fixed at
// noon on day 20.
func newTestService(t *testing.T) (*Service, *sqlite.DB) {
	t.Helper()
	db := newTestDB(t)
	for _, u := range []domain.User{
		{Username: "boss", Role: domain.RoleAdmin, CreatedAt: day(1)},
		{Username: "alice", Role: domain.RoleMember, CreatedAt: day(1)},
		{Username: "bob", Role: domain.RoleMember, CreatedAt: day(1)},
	} {
		require.NoError(t, db.InsertUser(u))
	}

	svc := NewService(db, domain.DefaultPolicy(), nil, time.UTC)
	svc.SetClock(func() time.Time { return day(20).Add(12 * time.Hour) })
	return svc, db
}

func insertDone(t *testing.T, db *sqlite.DB, task domain.Task) {
	t.Helper()
	require.NoError(t, db.InsertTask(task))
}

func TestLookbackWindow(t *testing.T) {
	now := day(20).Add(15 * time.Hour)
	w := LookbackWindow(now, 7, time.UTC)
	assert.Equal(t, day(13), w.Start)
	assert.Equal(t, now, w.End)
}

func TestPeriodWindow(t *testing.T) {
	w := PeriodWindow(day(5), day(11).Add(9*time.Hour), time.UTC)
	assert.Equal(t, day(5), w.Start)
	assert.True(t, w.Contains(day(11).Add(23*time.Hour+59*time.Minute)))
	assert.False(t, w.Contains(day(12)))
}

func TestService_NetYVPScenario(t *testing.T) {
	svc, db := newTestService(t)
	insertDone(t, db, doneTask("t1", "alice", 1, 2, 2, day(10)))

	_, err := svc.RecordPenalty(admin, "alice", day(12), "")
	require.NoError(t, err)

	b, err := svc.NetYVP(alice, "alice", nil)
	require.NoError(t, err)
	assertDec(t, "3.2", b.Net)

	_, err = svc.GrantReward(admin, "alice", 5, "helped on launch", day(13))
	require.NoError(t, err)

	b, err = svc.NetYVP(alice, "alice", nil)
	require.NoError(t, err)
	assertDec(t, "8.2", b.Net)
}

func TestService_EditsApplyRetroactively(t *testing.T) {
	svc, db := newTestService(t)
	insertDone(t, db, doneTask("t1", "alice", 1, 2, 2, day(10)))
	p, err := svc.RecordPenalty(admin, "alice", day(12), "")
	require.NoError(t, err)

	// Moving the penalty past the fine window frees the task.
	p.OccurredAt = day(19)
	require.NoError(t, svc.UpdatePenalty(admin, *p))
	b, _ := svc.NetYVP(admin, "alice", nil)
	assertDec(t, "4", b.Net)

	require.NoError(t, svc.DeletePenalty(admin, p.ID))
	b, _ = svc.NetYVP(admin, "alice", nil)
	assertDec(t, "4", b.Net)

	// Correcting quality on a Done task changes the balance immediately.
	task, _ := db.GetTask("t1")
	task.Quality = 3
	require.NoError(t, db.ReplaceTask(*task))
	b, _ = svc.NetYVP(admin, "alice", nil)
	assertDec(t, "6", b.Net)
}

func TestService_NetYVPLookback(t *testing.T) {
	svc, db := newTestService(t)
	insertDone(t, db, doneTask("old", "alice", 10, 1, 1, day(1)))
	insertDone(t, db, doneTask("recent", "alice", 3, 1, 1, day(13)))

	days := 7
	b, err := svc.NetYVP(alice, "alice", &days)
	require.NoError(t, err)
	assertDec(t, "3", b.Net, "day 13 is the first day of a 7-day lookback from day 20")

	b, err = svc.NetYVP(alice, "alice", nil)
	require.NoError(t, err)
	assertDec(t, "13", b.Net)
}

func TestService_EmptyUserIsZero(t *testing.T) {
	svc, _ := newTestService(t)
	b, err := svc.NetYVP(bob, "bob", nil)
	require.NoError(t, err)
	assertDec(t, "0", b.Net)
}

func TestService_Permissions(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.NetYVP(alice, "bob", nil)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.RecordPenalty(alice, "bob", day(1), "")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.GrantReward(bob, "bob", 100, "self-service", time.Time{})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.PeriodStats(alice, day(1), day(2))
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestService_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	neg := -1
	_, err := svc.NetYVP(alice, "alice", &neg)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.GrantReward(admin, "alice", -5, "", time.Time{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.RecordPenalty(admin, "ghost", day(1), "")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = svc.PeriodStats(admin, day(5), day(1))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestService_RewardDefaultsToNow(t *testing.T) {
	svc, _ := newTestService(t)
	r, err := svc.GrantReward(admin, "bob", 2, "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, day(20).Add(12*time.Hour), r.CreatedAt)

	rewards, err := svc.Rewards("bob")
	require.NoError(t, err)
	assert.Len(t, rewards, 1)
}

func TestService_PenaltyDefaultReason(t *testing.T) {
	svc, _ := newTestService(t)
	p, err := svc.RecordPenalty(admin, "bob", day(3), "  ")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPenaltyReason, p.Reason)

	list, err := svc.Penalties("")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_Dashboard(t *testing.T) {
	svc, db := newTestService(t)
	insertDone(t, db, doneTask("a", "alice", 1, 1, 1, day(1)))
	insertDone(t, db, doneTask("b", "alice", 2, 1, 1, day(15)))
	insertDone(t, db, doneTask("c", "alice", 4, 1, 1, day(19)))

	d, err := svc.Dashboard(alice, "alice")
	require.NoError(t, err)
	assertDec(t, "7", d.AllTime.Net)
	assertDec(t, "6", d.Last7.Net)
	assertDec(t, "7", d.Last30.Net)
}

func TestService_LeaderboardMembersOnly(t *testing.T) {
	svc, db := newTestService(t)
	insertDone(t, db, doneTask("a", "alice", 1, 1, 1, day(1)))
	insertDone(t, db, doneTask("b", "bob", 2, 1, 1, day(1)))

	entries, err := svc.Leaderboard(alice, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2, "administrators are not ranked")
	assert.Equal(t, "bob", entries[0].Username)
	assert.Equal(t, "alice", entries[1].Username)
}

func TestService_PeriodStats(t *testing.T) {
	svc, db := newTestService(t)
	insertDone(t, db, doneTask("before", "alice", 10, 1, 1, day(3)))
	insertDone(t, db, doneTask("inside", "alice", 5, 1, 1, day(8)))
	_, err := svc.RecordPenalty(admin, "alice", day(6), "")
	require.NoError(t, err)
	_, err = svc.GrantReward(admin, "bob", 3, "", day(10))
	require.NoError(t, err)

	report, err := svc.PeriodStats(admin, day(5), day(11))
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)

	rows := map[string]domain.PeriodRow{}
	for _, r := range report.Rows {
		rows[r.Username] = r
	}
	assertDec(t, "5", rows["alice"].GrossOutput)
	assertDec(t, "2", rows["alice"].Fine)
	assertDec(t, "3", rows["alice"].NetYVP)
	assertDec(t, "3", rows["bob"].Reward)
	assertDec(t, "3", rows["bob"].NetYVP)
}
