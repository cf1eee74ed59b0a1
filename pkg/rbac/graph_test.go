package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
	"github.com/gatehouse-io/gatehouse/pkg/store/memory"
)

type fixture struct {
	graph *Graph
	store *memory.Store
	realm *iam.Realm
	user  *iam.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	realm := &iam.Realm{Name: "acme", Enabled: true}
	require.NoError(t, st.CreateRealm(ctx, realm))

	user := &iam.User{RealmID: realm.ID, Username: "alice", Email: "alice@example.com", Enabled: true}
	require.NoError(t, st.CreateUser(ctx, user))

	return &fixture{graph: NewGraph(st), store: st, realm: realm, user: user}
}

func TestAssignRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	role, err := f.graph.CreateRole(ctx, f.realm.ID, "editor", "")
	require.NoError(t, err)

	t.Run("assign and list", func(t *testing.T) {
		require.NoError(t, f.graph.AssignRole(ctx, f.user.ID, role.ID))

		roles, err := f.graph.RolesOf(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{role.ID}, roles)
	})

	t.Run("assign twice is a no-op", func(t *testing.T) {
		require.NoError(t, f.graph.AssignRole(ctx, f.user.ID, role.ID))

		roles, err := f.graph.RolesOf(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Len(t, roles, 1)
	})

	t.Run("missing user or role is not found", func(t *testing.T) {
		assert.ErrorIs(t, f.graph.AssignRole(ctx, "ghost", role.ID), iam.ErrNotFound)
		assert.ErrorIs(t, f.graph.AssignRole(ctx, f.user.ID, "ghost"), iam.ErrNotFound)
	})

	t.Run("cross-realm assignment is rejected", func(t *testing.T) {
		other := &iam.Realm{Name: "other", Enabled: true}
		require.NoError(t, f.store.CreateRealm(ctx, other))
		foreign, err := f.graph.CreateRole(ctx, other.ID, "editor", "")
		require.NoError(t, err)

		err = f.graph.AssignRole(ctx, f.user.ID, foreign.ID)
		assert.ErrorIs(t, err, iam.ErrValidation)

		// Nothing mutated.
		roles, err := f.graph.RolesOf(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Len(t, roles, 1)
	})

	t.Run("remove absent pair is a no-op", func(t *testing.T) {
		require.NoError(t, f.graph.RemoveRole(ctx, f.user.ID, role.ID))
		require.NoError(t, f.graph.RemoveRole(ctx, f.user.ID, role.ID))

		roles, err := f.graph.RolesOf(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Empty(t, roles)
	})
}

func TestAssignPermissionCrossRealm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	role, err := f.graph.CreateRole(ctx, f.realm.ID, "editor", "")
	require.NoError(t, err)

	other := &iam.Realm{Name: "other", Enabled: true}
	require.NoError(t, f.store.CreateRealm(ctx, other))
	foreignPerm, err := f.graph.CreatePermission(ctx, other.ID, "docs", "write")
	require.NoError(t, err)

	err = f.graph.AssignPermission(ctx, role.ID, foreignPerm.ID)
	assert.ErrorIs(t, err, iam.ErrValidation)
}

func TestRawPermissionsUnion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	editor, err := f.graph.CreateRole(ctx, f.realm.ID, "editor", "")
	require.NoError(t, err)
	viewer, err := f.graph.CreateRole(ctx, f.realm.ID, "viewer", "")
	require.NoError(t, err)

	read, err := f.graph.CreatePermission(ctx, f.realm.ID, "docs", "read")
	require.NoError(t, err)
	write, err := f.graph.CreatePermission(ctx, f.realm.ID, "docs", "write")
	require.NoError(t, err)

	require.NoError(t, f.graph.AssignPermission(ctx, editor.ID, read.ID))
	require.NoError(t, f.graph.AssignPermission(ctx, editor.ID, write.ID))
	require.NoError(t, f.graph.AssignPermission(ctx, viewer.ID, read.ID))

	require.NoError(t, f.graph.AssignRole(ctx, f.user.ID, editor.ID))
	require.NoError(t, f.graph.AssignRole(ctx, f.user.ID, viewer.ID))

	t.Run("overlapping grants collapse to a set", func(t *testing.T) {
		perms, err := f.graph.RawPermissions(ctx, f.user.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"docs:read", "docs:write"}, Identifiers(perms))
	})

	t.Run("no roles means empty set", func(t *testing.T) {
		loner := &iam.User{RealmID: f.realm.ID, Username: "bob", Email: "bob@example.com", Enabled: true}
		require.NoError(t, f.store.CreateUser(ctx, loner))

		perms, err := f.graph.RawPermissions(ctx, loner.ID)
		require.NoError(t, err)
		assert.Empty(t, perms)
	})

	t.Run("removal is visible on the next call", func(t *testing.T) {
		require.NoError(t, f.graph.RemoveRole(ctx, f.user.ID, editor.ID))

		perms, err := f.graph.RawPermissions(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"docs:read"}, Identifiers(perms))
	})

	t.Run("deleting a role cascades out of the union", func(t *testing.T) {
		require.NoError(t, f.graph.DeleteRole(ctx, viewer.ID))

		perms, err := f.graph.RawPermissions(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Empty(t, perms)
	})
}

func TestRoleCRUD(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("create requires realm and name", func(t *testing.T) {
		_, err := f.graph.CreateRole(ctx, "", "editor", "")
		assert.ErrorIs(t, err, iam.ErrValidation)

		_, err = f.graph.CreateRole(ctx, f.realm.ID, "", "")
		assert.ErrorIs(t, err, iam.ErrValidation)

		_, err = f.graph.CreateRole(ctx, "missing", "editor", "")
		assert.ErrorIs(t, err, iam.ErrNotFound)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		_, err := f.graph.CreateRole(ctx, f.realm.ID, "editor", "")
		require.NoError(t, err)

		_, err = f.graph.CreateRole(ctx, f.realm.ID, "editor", "")
		assert.ErrorIs(t, err, iam.ErrConflict)
	})

	t.Run("update and delete", func(t *testing.T) {
		role, err := f.graph.CreateRole(ctx, f.realm.ID, "temp", "short lived")
		require.NoError(t, err)

		role.Name = "renamed"
		require.NoError(t, f.graph.UpdateRole(ctx, role))

		got, err := f.graph.GetRole(ctx, role.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)

		require.NoError(t, f.graph.DeleteRole(ctx, role.ID))
		assert.ErrorIs(t, f.graph.DeleteRole(ctx, role.ID), iam.ErrNotFound)
	})
}
