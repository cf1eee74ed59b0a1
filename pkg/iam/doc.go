// Package iam defines the domain model shared by every gatehouse component:
// realms, users, roles, permissions, policies, tokens, and the link rows that
// connect them, plus the typed error taxonomy surfaced to callers.
//
// All entities belong to exactly one realm. Uniqueness constraints are
// realm-scoped: (realm, username) and (realm, email) for users, (realm, name)
// for roles, and (realm, resource, action) for permissions. Realm names are
// unique globally.
//
// Errors are sentinel values matched with errors.Is. Service and store code
// wraps them with context via fmt.Errorf and %w so callers can branch on the
// kind without parsing messages.
package iam
