package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanzu-lab/yvp/internal/domain"
	"github.com/yanzu-lab/yvp/internal/infra/sqlite"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db, nil)
}

func TestSeed_Idempotent(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Seed([]string{"boss", " ", "lead"}))
	require.NoError(t, svc.Seed([]string{"boss"}))

	admins, err := svc.List(domain.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, admins, 2)

	actor, err := svc.Resolve("lead")
	require.NoError(t, err)
	assert.True(t, actor.IsAdmin())
}

func TestAddAndRemove(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Seed([]string{"boss"}))
	boss, err := svc.Resolve("boss")
	require.NoError(t, err)

	u, err := svc.Add(boss, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, u.Role)

	_, err = svc.Add(boss, "alice", domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrUserExists)

	alice, err := svc.Resolve("alice")
	require.NoError(t, err)
	assert.False(t, alice.IsAdmin())

	_, err = svc.Add(alice, "mallory", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	require.NoError(t, svc.Remove(boss, "alice"))
	_, err = svc.Resolve("alice")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestAdd_Validation(t *testing.T) {
	svc := newTestService(t)
	boss := domain.Actor{Username: "boss", Role: domain.RoleAdmin}

	for _, name := range []string{"", "  ", domain.Unassigned} {
		_, err := svc.Add(boss, name, domain.RoleMember)
		assert.ErrorIs(t, err, domain.ErrValidation, "name %q", name)
	}
	_, err := svc.Add(boss, "carol", "owner")
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.ErrorIs(t, svc.Remove(boss, "boss"), domain.ErrValidation)
	assert.ErrorIs(t, svc.Remove(boss, "ghost"), domain.ErrUserNotFound)
}
