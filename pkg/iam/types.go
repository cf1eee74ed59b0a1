package iam

import (
	"time"
)

// Realm is the tenant boundary. Every other entity belongs to exactly one realm.
type Realm struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a principal within a realm. Username and email are unique per realm.
type User struct {
	ID           string            `json:"id"`
	RealmID      string            `json:"realm_id"`
	Username     string            `json:"username"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"-"`
	FirstName    string            `json:"first_name,omitempty"`
	LastName     string            `json:"last_name,omitempty"`
	Enabled      bool              `json:"enabled"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Role groups permissions within a realm. Name is unique per realm.
type Role struct {
	ID          string    `json:"id"`
	RealmID     string    `json:"realm_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission is a resource/action pair. The (realm, resource, action) triple
// is unique; callers identify permissions by the "resource:action" string.
type Permission struct {
	ID        string    `json:"id"`
	RealmID   string    `json:"realm_id"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// Identifier returns the canonical "resource:action" form of the permission.
func (p Permission) Identifier() string {
	return p.Resource + ":" + p.Action
}

// PolicyType enumerates the supported policy kinds.
type PolicyType string

const (
	PolicyAllow     PolicyType = "ALLOW"
	PolicyDeny      PolicyType = "DENY"
	PolicyAttribute PolicyType = "ATTRIBUTE"
)

// Valid reports whether t is a known policy type.
func (t PolicyType) Valid() bool {
	switch t {
	case PolicyAllow, PolicyDeny, PolicyAttribute:
		return true
	}
	return false
}

// Policy is a named predicate bound to permissions. The expression is opaque
// to this package; it is handed verbatim to the configured predicate runner.
type Policy struct {
	ID          string     `json:"id"`
	RealmID     string     `json:"realm_id"`
	Type        PolicyType `json:"type"`
	Expression  string     `json:"expression"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TokenType enumerates credential kinds.
type TokenType string

const (
	TokenAccess  TokenType = "ACCESS"
	TokenRefresh TokenType = "REFRESH"
)

// Valid reports whether t is a known token type.
func (t TokenType) Valid() bool {
	switch t {
	case TokenAccess, TokenRefresh:
		return true
	}
	return false
}

// Token is an opaque time-bounded credential identifying a principal within a
// realm. It carries no permission data; permissions are always recomputed.
type Token struct {
	ID        string    `json:"id"`
	RealmID   string    `json:"realm_id"`
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id,omitempty"`
	TokenType TokenType `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`
}

// Expired reports whether the token is expired at the given instant.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// UserRole links a user to a role. Inserts are idempotent.
type UserRole struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RolePermission links a role to a permission. Inserts are idempotent.
type RolePermission struct {
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// PermissionPolicy binds a policy to a permission.
type PermissionPolicy struct {
	PermissionID string    `json:"permission_id"`
	PolicyID     string    `json:"policy_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// RealmCounts reports how many dependent entities a realm still owns. Used to
// enforce the reject-if-nonempty realm deletion policy.
type RealmCounts struct {
	Users       int64 `json:"users"`
	Roles       int64 `json:"roles"`
	Permissions int64 `json:"permissions"`
	Policies    int64 `json:"policies"`
	Tokens      int64 `json:"tokens"`
}

// Empty reports whether the realm owns no dependent entities.
func (c RealmCounts) Empty() bool {
	return c.Users == 0 && c.Roles == 0 && c.Permissions == 0 && c.Policies == 0 && c.Tokens == 0
}
