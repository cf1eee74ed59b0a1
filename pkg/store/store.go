package store

import (
	"context"
	"time"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

// Store is the persistence gateway for all gatehouse entities. Implementations
// must surface iam.ErrNotFound and iam.ErrConflict distinctly, make link-table
// inserts idempotent, and guarantee unique-key atomicity under concurrent
// writers.
type Store interface {
	RealmStore
	UserStore
	RoleStore
	PermissionStore
	PolicyStore
	LinkStore
	TokenStore

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases backing resources.
	Close() error
}

// RealmStore persists realms.
type RealmStore interface {
	// CreateRealm assigns an id and creation time and persists the realm.
	// Fails with iam.ErrConflict when the name is taken.
	CreateRealm(ctx context.Context, realm *iam.Realm) error
	GetRealm(ctx context.Context, id string) (*iam.Realm, error)
	GetRealmByName(ctx context.Context, name string) (*iam.Realm, error)
	ListRealms(ctx context.Context, offset, limit int) ([]*iam.Realm, error)
	UpdateRealm(ctx context.Context, realm *iam.Realm) error
	SetRealmEnabled(ctx context.Context, id string, enabled bool) error
	// DeleteRealm removes the realm row only; emptiness is enforced by the
	// realm service before calling this.
	DeleteRealm(ctx context.Context, id string) error
	// RealmCounts reports dependent entity counts for the realm.
	RealmCounts(ctx context.Context, realmID string) (iam.RealmCounts, error)
}

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, user *iam.User) error
	GetUser(ctx context.Context, id string) (*iam.User, error)
	GetUserByUsername(ctx context.Context, realmID, username string) (*iam.User, error)
	GetUserByEmail(ctx context.Context, realmID, email string) (*iam.User, error)
	ListUsers(ctx context.Context, realmID string, offset, limit int) ([]*iam.User, error)
	UpdateUser(ctx context.Context, user *iam.User) error
	SetUserEnabled(ctx context.Context, id string, enabled bool) error
	DeleteUser(ctx context.Context, id string) error
}

// RoleStore persists roles. Deleting a role cascades its link rows.
type RoleStore interface {
	CreateRole(ctx context.Context, role *iam.Role) error
	GetRole(ctx context.Context, id string) (*iam.Role, error)
	GetRoleByName(ctx context.Context, realmID, name string) (*iam.Role, error)
	ListRoles(ctx context.Context, realmID string, offset, limit int) ([]*iam.Role, error)
	UpdateRole(ctx context.Context, role *iam.Role) error
	DeleteRole(ctx context.Context, id string) error
}

// PermissionStore persists permissions. Deleting a permission cascades its
// link rows.
type PermissionStore interface {
	CreatePermission(ctx context.Context, perm *iam.Permission) error
	GetPermission(ctx context.Context, id string) (*iam.Permission, error)
	GetPermissionByKey(ctx context.Context, realmID, resource, action string) (*iam.Permission, error)
	ListPermissions(ctx context.Context, realmID string, offset, limit int) ([]*iam.Permission, error)
	DeletePermission(ctx context.Context, id string) error
}

// PolicyStore persists policies. Deleting a policy cascades its bindings.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, policy *iam.Policy) error
	GetPolicy(ctx context.Context, id string) (*iam.Policy, error)
	ListPolicies(ctx context.Context, realmID string, offset, limit int) ([]*iam.Policy, error)
	ListPoliciesByType(ctx context.Context, realmID string, typ iam.PolicyType) ([]*iam.Policy, error)
	UpdatePolicy(ctx context.Context, policy *iam.Policy) error
	DeletePolicy(ctx context.Context, id string) error
}

// LinkStore persists the many-to-many relationships. All Add/Bind operations
// are idempotent: inserting an existing pair succeeds without effect. All
// Remove/Unbind operations are no-ops when the pair is absent.
type LinkStore interface {
	AddUserRole(ctx context.Context, userID, roleID string) error
	RemoveUserRole(ctx context.Context, userID, roleID string) error
	UserRoleIDs(ctx context.Context, userID string) ([]string, error)

	AddRolePermission(ctx context.Context, roleID, permissionID string) error
	RemoveRolePermission(ctx context.Context, roleID, permissionID string) error
	RolePermissionIDs(ctx context.Context, roleID string) ([]string, error)

	BindPermissionPolicy(ctx context.Context, permissionID, policyID string) error
	UnbindPermissionPolicy(ctx context.Context, permissionID, policyID string) error
	PermissionPolicyIDs(ctx context.Context, permissionID string) ([]string, error)
}

// TokenStore persists issued tokens. Revocation is permanent; once a token's
// revoked flag is set it is never cleared.
type TokenStore interface {
	CreateToken(ctx context.Context, token *iam.Token) error
	GetToken(ctx context.Context, id string) (*iam.Token, error)
	ListTokensByUser(ctx context.Context, userID string, typ iam.TokenType) ([]*iam.Token, error)
	// RevokeToken marks the token revoked. Revoking an already-revoked or
	// unknown token succeeds silently.
	RevokeToken(ctx context.Context, id string) error
	// RevokeTokensForUser revokes every non-revoked token owned by the user
	// and returns how many were transitioned.
	RevokeTokensForUser(ctx context.Context, userID string) (int, error)
	// DeleteExpiredTokens removes tokens whose expiry is at or before the
	// given instant and returns the number removed.
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error)
	CountTokensByRealm(ctx context.Context, realmID string) (int64, error)
}
