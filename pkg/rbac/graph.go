// Package rbac maintains the user-role and role-permission relationships and
// computes the raw, pre-policy permission set for a principal.
package rbac

import (
	"context"
	"sort"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
	"github.com/gatehouse-io/gatehouse/pkg/store"
)

// Graph resolves the two-hop user→role→permission join. Results are computed
// fresh on every call; nothing here caches derived sets, so a concurrent
// assignment or removal is visible to the next call.
type Graph struct {
	store store.Store
}

// NewGraph creates a role graph backed by the given store.
func NewGraph(st store.Store) *Graph {
	return &Graph{store: st}
}

// CreateRole creates a role in a realm.
func (g *Graph) CreateRole(ctx context.Context, realmID, name, description string) (*iam.Role, error) {
	if realmID == "" {
		return nil, iam.Validationf("realm id is required")
	}
	if name == "" {
		return nil, iam.Validationf("role name is required")
	}
	if _, err := g.store.GetRealm(ctx, realmID); err != nil {
		return nil, err
	}
	role := &iam.Role{RealmID: realmID, Name: name, Description: description}
	if err := g.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole retrieves a role by id.
func (g *Graph) GetRole(ctx context.Context, id string) (*iam.Role, error) {
	return g.store.GetRole(ctx, id)
}

// ListRoles lists roles in a realm with pagination.
func (g *Graph) ListRoles(ctx context.Context, realmID string, offset, limit int) ([]*iam.Role, error) {
	return g.store.ListRoles(ctx, realmID, offset, limit)
}

// UpdateRole updates a role's name and description.
func (g *Graph) UpdateRole(ctx context.Context, role *iam.Role) error {
	if role.ID == "" {
		return iam.Validationf("role id is required")
	}
	if role.Name == "" {
		return iam.Validationf("role name is required")
	}
	return g.store.UpdateRole(ctx, role)
}

// DeleteRole deletes a role; its user-role and role-permission rows cascade.
func (g *Graph) DeleteRole(ctx context.Context, id string) error {
	return g.store.DeleteRole(ctx, id)
}

// CreatePermission creates a permission in a realm.
func (g *Graph) CreatePermission(ctx context.Context, realmID, resource, action string) (*iam.Permission, error) {
	if realmID == "" {
		return nil, iam.Validationf("realm id is required")
	}
	if resource == "" || action == "" {
		return nil, iam.Validationf("resource and action are required")
	}
	if _, err := g.store.GetRealm(ctx, realmID); err != nil {
		return nil, err
	}
	perm := &iam.Permission{RealmID: realmID, Resource: resource, Action: action}
	if err := g.store.CreatePermission(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// GetPermission retrieves a permission by id.
func (g *Graph) GetPermission(ctx context.Context, id string) (*iam.Permission, error) {
	return g.store.GetPermission(ctx, id)
}

// ListPermissions lists permissions in a realm with pagination.
func (g *Graph) ListPermissions(ctx context.Context, realmID string, offset, limit int) ([]*iam.Permission, error) {
	return g.store.ListPermissions(ctx, realmID, offset, limit)
}

// DeletePermission deletes a permission; its link rows cascade.
func (g *Graph) DeletePermission(ctx context.Context, id string) error {
	return g.store.DeletePermission(ctx, id)
}

// AssignRole links a role to a user. Both must exist and belong to the same
// realm; assigning an already-assigned pair is a no-op.
func (g *Graph) AssignRole(ctx context.Context, userID, roleID string) error {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	role, err := g.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if user.RealmID != role.RealmID {
		return iam.Validationf("user %s and role %s belong to different realms", userID, roleID)
	}
	return g.store.AddUserRole(ctx, userID, roleID)
}

// RemoveRole unlinks a role from a user. Removing an absent pair is a no-op.
func (g *Graph) RemoveRole(ctx context.Context, userID, roleID string) error {
	return g.store.RemoveUserRole(ctx, userID, roleID)
}

// RolesOf returns the ids of the roles assigned to the user. Callers must
// treat the result as a set; ordering is not part of the contract.
func (g *Graph) RolesOf(ctx context.Context, userID string) ([]string, error) {
	return g.store.UserRoleIDs(ctx, userID)
}

// AssignPermission links a permission to a role with the same realm and
// idempotency rules as AssignRole.
func (g *Graph) AssignPermission(ctx context.Context, roleID, permissionID string) error {
	role, err := g.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	perm, err := g.store.GetPermission(ctx, permissionID)
	if err != nil {
		return err
	}
	if role.RealmID != perm.RealmID {
		return iam.Validationf("role %s and permission %s belong to different realms", roleID, permissionID)
	}
	return g.store.AddRolePermission(ctx, roleID, permissionID)
}

// RemovePermission unlinks a permission from a role. No-op when absent.
func (g *Graph) RemovePermission(ctx context.Context, roleID, permissionID string) error {
	return g.store.RemoveRolePermission(ctx, roleID, permissionID)
}

// PermissionsOf returns the permissions directly assigned to a role.
func (g *Graph) PermissionsOf(ctx context.Context, roleID string) ([]*iam.Permission, error) {
	permIDs, err := g.store.RolePermissionIDs(ctx, roleID)
	if err != nil {
		return nil, err
	}
	perms := make([]*iam.Permission, 0, len(permIDs))
	for _, id := range permIDs {
		perm, err := g.store.GetPermission(ctx, id)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, nil
}

// RawPermissions computes the union, over every role assigned to the user, of
// every permission assigned to those roles. Duplicates collapse by permission
// id. The join is evaluated against the store on each call.
func (g *Graph) RawPermissions(ctx context.Context, userID string) ([]*iam.Permission, error) {
	roleIDs, err := g.store.UserRoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*iam.Permission)
	for _, roleID := range roleIDs {
		permIDs, err := g.store.RolePermissionIDs(ctx, roleID)
		if err != nil {
			return nil, err
		}
		for _, permID := range permIDs {
			if _, ok := seen[permID]; ok {
				continue
			}
			perm, err := g.store.GetPermission(ctx, permID)
			if err != nil {
				return nil, err
			}
			seen[permID] = perm
		}
	}

	perms := make([]*iam.Permission, 0, len(seen))
	for _, perm := range seen {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

// Identifiers maps permissions to their canonical "resource:action" strings.
func Identifiers(perms []*iam.Permission) []string {
	ids := make([]string, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.Identifier())
	}
	sort.Strings(ids)
	return ids
}
