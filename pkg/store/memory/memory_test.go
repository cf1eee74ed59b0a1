package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

func newRealm(t *testing.T, s *Store, name string) *iam.Realm {
	t.Helper()
	realm := &iam.Realm{Name: name, Enabled: true}
	require.NoError(t, s.CreateRealm(context.Background(), realm))
	require.NotEmpty(t, realm.ID)
	return realm
}

func newUser(t *testing.T, s *Store, realmID, username string) *iam.User {
	t.Helper()
	user := &iam.User{RealmID: realmID, Username: username, Email: username + "@example.com", Enabled: true}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func newRole(t *testing.T, s *Store, realmID, name string) *iam.Role {
	t.Helper()
	role := &iam.Role{RealmID: realmID, Name: name}
	require.NoError(t, s.CreateRole(context.Background(), role))
	return role
}

func newPermission(t *testing.T, s *Store, realmID, resource, action string) *iam.Permission {
	t.Helper()
	perm := &iam.Permission{RealmID: realmID, Resource: resource, Action: action}
	require.NoError(t, s.CreatePermission(context.Background(), perm))
	return perm
}

func TestRealmCRUD(t *testing.T) {
	s := New()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		realm := newRealm(t, s, "acme")

		got, err := s.GetRealm(ctx, realm.ID)
		require.NoError(t, err)
		assert.Equal(t, "acme", got.Name)
		assert.True(t, got.Enabled)

		byName, err := s.GetRealmByName(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, realm.ID, byName.ID)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		err := s.CreateRealm(ctx, &iam.Realm{Name: "acme"})
		require.Error(t, err)
		assert.ErrorIs(t, err, iam.ErrConflict)
	})

	t.Run("get unknown is not found", func(t *testing.T) {
		_, err := s.GetRealm(ctx, "missing")
		assert.ErrorIs(t, err, iam.ErrNotFound)
	})

	t.Run("set enabled", func(t *testing.T) {
		realm := newRealm(t, s, "toggle")
		require.NoError(t, s.SetRealmEnabled(ctx, realm.ID, false))

		got, err := s.GetRealm(ctx, realm.ID)
		require.NoError(t, err)
		assert.False(t, got.Enabled)
	})

	t.Run("delete", func(t *testing.T) {
		realm := newRealm(t, s, "doomed")
		require.NoError(t, s.DeleteRealm(ctx, realm.ID))

		_, err := s.GetRealm(ctx, realm.ID)
		assert.ErrorIs(t, err, iam.ErrNotFound)

		err = s.DeleteRealm(ctx, realm.ID)
		assert.ErrorIs(t, err, iam.ErrNotFound)
	})
}

func TestUserUniquenessPerRealm(t *testing.T) {
	s := New()
	ctx := context.Background()
	realmA := newRealm(t, s, "realm-a")
	realmB := newRealm(t, s, "realm-b")

	newUser(t, s, realmA.ID, "alice")

	t.Run("duplicate username in same realm conflicts", func(t *testing.T) {
		err := s.CreateUser(ctx, &iam.User{RealmID: realmA.ID, Username: "alice", Email: "other@example.com"})
		assert.ErrorIs(t, err, iam.ErrConflict)
	})

	t.Run("duplicate email in same realm conflicts", func(t *testing.T) {
		err := s.CreateUser(ctx, &iam.User{RealmID: realmA.ID, Username: "alice2", Email: "alice@example.com"})
		assert.ErrorIs(t, err, iam.ErrConflict)
	})

	t.Run("same username in another realm is fine", func(t *testing.T) {
		err := s.CreateUser(ctx, &iam.User{RealmID: realmB.ID, Username: "alice", Email: "alice@example.com"})
		assert.NoError(t, err)
	})

	t.Run("lookup by username is realm scoped", func(t *testing.T) {
		got, err := s.GetUserByUsername(ctx, realmA.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, realmA.ID, got.RealmID)

		_, err = s.GetUserByUsername(ctx, realmB.ID, "nobody")
		assert.ErrorIs(t, err, iam.ErrNotFound)
	})
}

func TestLinkIdempotency(t *testing.T) {
	s := New()
	ctx := context.Background()
	realm := newRealm(t, s, "links")
	user := newUser(t, s, realm.ID, "bob")
	role := newRole(t, s, realm.ID, "editor")

	t.Run("double add is a no-op", func(t *testing.T) {
		require.NoError(t, s.AddUserRole(ctx, user.ID, role.ID))
		require.NoError(t, s.AddUserRole(ctx, user.ID, role.ID))

		ids, err := s.UserRoleIDs(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{role.ID}, ids)
	})

	t.Run("remove absent pair is a no-op", func(t *testing.T) {
		require.NoError(t, s.RemoveUserRole(ctx, user.ID, role.ID))
		require.NoError(t, s.RemoveUserRole(ctx, user.ID, role.ID))

		ids, err := s.UserRoleIDs(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("add with missing side is not found", func(t *testing.T) {
		err := s.AddUserRole(ctx, "missing", role.ID)
		assert.ErrorIs(t, err, iam.ErrNotFound)

		err = s.AddUserRole(ctx, user.ID, "missing")
		assert.ErrorIs(t, err, iam.ErrNotFound)
	})
}

func TestCascadeDeletes(t *testing.T) {
	s := New()
	ctx := context.Background()
	realm := newRealm(t, s, "cascade")
	user := newUser(t, s, realm.ID, "carol")
	role := newRole(t, s, realm.ID, "auditor")
	perm := newPermission(t, s, realm.ID, "docs", "read")

	policy := &iam.Policy{RealmID: realm.ID, Type: iam.PolicyDeny, Expression: "true"}
	require.NoError(t, s.CreatePolicy(ctx, policy))

	require.NoError(t, s.AddUserRole(ctx, user.ID, role.ID))
	require.NoError(t, s.AddRolePermission(ctx, role.ID, perm.ID))
	require.NoError(t, s.BindPermissionPolicy(ctx, perm.ID, policy.ID))

	t.Run("deleting role drops its links", func(t *testing.T) {
		require.NoError(t, s.DeleteRole(ctx, role.ID))

		ids, err := s.UserRoleIDs(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)

		_, err = s.RolePermissionIDs(ctx, role.ID)
		assert.ErrorIs(t, err, iam.ErrNotFound)
	})

	t.Run("deleting policy unbinds it", func(t *testing.T) {
		require.NoError(t, s.DeletePolicy(ctx, policy.ID))

		ids, err := s.PermissionPolicyIDs(ctx, perm.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("deleting permission drops bindings", func(t *testing.T) {
		require.NoError(t, s.DeletePermission(ctx, perm.ID))

		_, err := s.PermissionPolicyIDs(ctx, perm.ID)
		assert.ErrorIs(t, err, iam.ErrNotFound)
	})
}

func TestConcurrentAssignIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	realm := newRealm(t, s, "concurrent")
	user := newUser(t, s, realm.ID, "grace")
	role := newRole(t, s, realm.ID, "operator")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AddUserRole(ctx, user.ID, role.ID))
		}()
	}
	wg.Wait()

	ids, err := s.UserRoleIDs(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{role.ID}, ids)
}

func TestDeleteUserDropsTokens(t *testing.T) {
	s := New()
	ctx := context.Background()
	realm := newRealm(t, s, "tokens-cascade")
	user := newUser(t, s, realm.ID, "erin")
	other := newUser(t, s, realm.ID, "frank")

	doomed := &iam.Token{RealmID: realm.ID, UserID: user.ID, TokenType: iam.TokenAccess, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.CreateToken(ctx, doomed))
	kept := &iam.Token{RealmID: realm.ID, UserID: other.ID, TokenType: iam.TokenAccess, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.CreateToken(ctx, kept))

	require.NoError(t, s.DeleteUser(ctx, user.ID))

	_, err := s.GetToken(ctx, doomed.ID)
	assert.ErrorIs(t, err, iam.ErrNotFound)

	_, err = s.GetToken(ctx, kept.ID)
	assert.NoError(t, err)

	counts, err := s.RealmCounts(ctx, realm.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Tokens)
}

func TestRealmCounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	realm := newRealm(t, s, "counted")

	counts, err := s.RealmCounts(ctx, realm.ID)
	require.NoError(t, err)
	assert.True(t, counts.Empty())

	newUser(t, s, realm.ID, "dave")
	newRole(t, s, realm.ID, "viewer")
	newPermission(t, s, realm.ID, "docs", "write")

	counts, err = s.RealmCounts(ctx, realm.ID)
	require.NoError(t, err)
	assert.False(t, counts.Empty())
	assert.Equal(t, int64(1), counts.Users)
	assert.Equal(t, int64(1), counts.Roles)
	assert.Equal(t, int64(1), counts.Permissions)

	_, err = s.RealmCounts(ctx, "missing")
	assert.ErrorIs(t, err, iam.ErrNotFound)
}

func TestTokenLifecycleInStore(t *testing.T) {
	s := New()
	ctx := context.Background()
	realm := newRealm(t, s, "tokens")
	user := newUser(t, s, realm.ID, "erin")

	issue := func(t *testing.T, expiresAt time.Time) *iam.Token {
		t.Helper()
		tok := &iam.Token{
			RealmID:   realm.ID,
			UserID:    user.ID,
			TokenType: iam.TokenAccess,
			ExpiresAt: expiresAt,
		}
		require.NoError(t, s.CreateToken(ctx, tok))
		return tok
	}

	t.Run("revoke is idempotent and silent on unknown", func(t *testing.T) {
		tok := issue(t, time.Now().Add(time.Hour))
		require.NoError(t, s.RevokeToken(ctx, tok.ID))
		require.NoError(t, s.RevokeToken(ctx, tok.ID))
		require.NoError(t, s.RevokeToken(ctx, "unknown"))

		got, err := s.GetToken(ctx, tok.ID)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
	})

	t.Run("revoke all for user counts transitions only", func(t *testing.T) {
		issue(t, time.Now().Add(time.Hour))
		issue(t, time.Now().Add(time.Hour))

		n, err := s.RevokeTokensForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.RevokeTokensForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("delete expired removes only past expiries", func(t *testing.T) {
		cutoff := time.Now()
		issue(t, cutoff.Add(-time.Minute))
		live := issue(t, cutoff.Add(time.Hour))

		_, err := s.DeleteExpiredTokens(ctx, cutoff)
		require.NoError(t, err)

		_, err = s.GetToken(ctx, live.ID)
		assert.NoError(t, err)
	})

	t.Run("count by realm", func(t *testing.T) {
		count, err := s.CountTokensByRealm(ctx, realm.ID)
		require.NoError(t, err)
		assert.Greater(t, count, int64(0))
	})
}

func TestPagination(t *testing.T) {
	s := New()
	ctx := context.Background()
	realm := newRealm(t, s, "paged")

	for _, name := range []string{"u1", "u2", "u3", "u4", "u5"} {
		newUser(t, s, realm.ID, name)
	}

	page, err := s.ListUsers(ctx, realm.ID, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := s.ListUsers(ctx, realm.ID, 4, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	none, err := s.ListUsers(ctx, realm.ID, 50, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClonesDoNotLeakInternalState(t *testing.T) {
	s := New()
	ctx := context.Background()
	realm := newRealm(t, s, "isolated")

	got, err := s.GetRealm(ctx, realm.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := s.GetRealm(ctx, realm.ID)
	require.NoError(t, err)
	assert.Equal(t, "isolated", again.Name)
}
