// Package realm implements the realm gate and lifecycle. Every other
// component consults the guard before touching realm-scoped data, so enabling
// or disabling a realm takes effect on the very next call.
package realm

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
	"github.com/gatehouse-io/gatehouse/pkg/store"
)

// Guard enforces realm existence and enabled state, and owns the realm
// lifecycle. It holds no state of its own; every check reads the store, so
// there is nothing to invalidate.
type Guard struct {
	store store.Store
}

// NewGuard creates a realm guard backed by the given store.
func NewGuard(st store.Store) *Guard {
	return &Guard{store: st}
}

// IsActive reports whether the realm exists and is enabled. A missing realm
// is simply inactive, not an error.
func (g *Guard) IsActive(ctx context.Context, realmID string) (bool, error) {
	realm, err := g.store.GetRealm(ctx, realmID)
	if errors.Is(err, iam.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return realm.Enabled, nil
}

// RequireActive fails with iam.ErrRealmDisabled when the realm is missing or
// disabled.
func (g *Guard) RequireActive(ctx context.Context, realmID string) error {
	active, err := g.IsActive(ctx, realmID)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("realm %s: %w", realmID, iam.ErrRealmDisabled)
	}
	return nil
}

// Create creates a realm. Names are unique globally.
func (g *Guard) Create(ctx context.Context, name string, enabled bool) (*iam.Realm, error) {
	if name == "" {
		return nil, iam.Validationf("realm name is required")
	}
	realm := &iam.Realm{Name: name, Enabled: enabled}
	if err := g.store.CreateRealm(ctx, realm); err != nil {
		return nil, err
	}
	return realm, nil
}

// Get retrieves a realm by id.
func (g *Guard) Get(ctx context.Context, id string) (*iam.Realm, error) {
	return g.store.GetRealm(ctx, id)
}

// GetByName retrieves a realm by its globally unique name.
func (g *Guard) GetByName(ctx context.Context, name string) (*iam.Realm, error) {
	return g.store.GetRealmByName(ctx, name)
}

// List returns realms with pagination.
func (g *Guard) List(ctx context.Context, offset, limit int) ([]*iam.Realm, error) {
	return g.store.ListRealms(ctx, offset, limit)
}

// Update renames a realm or toggles its enabled flag.
func (g *Guard) Update(ctx context.Context, realm *iam.Realm) error {
	if realm.ID == "" {
		return iam.Validationf("realm id is required")
	}
	if realm.Name == "" {
		return iam.Validationf("realm name is required")
	}
	return g.store.UpdateRealm(ctx, realm)
}

// Enable enables the realm, effective immediately for all subsequent calls.
func (g *Guard) Enable(ctx context.Context, id string) error {
	return g.store.SetRealmEnabled(ctx, id, true)
}

// Disable disables the realm, effective immediately for all subsequent calls.
func (g *Guard) Disable(ctx context.Context, id string) error {
	return g.store.SetRealmEnabled(ctx, id, false)
}

// Delete removes a realm. Deletion is rejected while the realm still owns
// users, roles, permissions, policies, or tokens.
func (g *Guard) Delete(ctx context.Context, id string) error {
	counts, err := g.store.RealmCounts(ctx, id)
	if err != nil {
		return err
	}
	if !counts.Empty() {
		return iam.Conflictf("realm %s still has dependent entities (users=%d roles=%d permissions=%d policies=%d tokens=%d)",
			id, counts.Users, counts.Roles, counts.Permissions, counts.Policies, counts.Tokens)
	}
	return g.store.DeleteRealm(ctx, id)
}
