// Package token issues, validates, and revokes the credentials that identify
// principals. Tokens never carry permissions; they reference the principal,
// and every authorization decision recomputes the effective set.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
	"github.com/gatehouse-io/gatehouse/pkg/realm"
	"github.com/gatehouse-io/gatehouse/pkg/store"
)

// Ledger manages the token lifecycle: active → expired (read-time, derived
// from expiresAt) or active → revoked (stored, permanent).
type Ledger struct {
	store store.Store
	guard *realm.Guard
	clock Clock

	// cache is an optional redis denylist; nil disables the fast path.
	cache *RevocationCache
}

// NewLedger creates a ledger. A nil clock defaults to the system clock; a nil
// cache disables the revocation fast path.
func NewLedger(st store.Store, guard *realm.Guard, clock Clock, cache *RevocationCache) *Ledger {
	if clock == nil {
		clock = SystemClock()
	}
	return &Ledger{store: st, guard: guard, clock: clock, cache: cache}
}

// Issue creates a token for the user. The realm must be active and the user
// must exist in it and be enabled. The store generates the identifier. A zero
// or negative ttl still issues; the token is simply expired from birth and
// every Validate on it fails.
func (l *Ledger) Issue(ctx context.Context, realmID, userID, clientID string, typ iam.TokenType, ttl time.Duration) (*iam.Token, error) {
	if !typ.Valid() {
		return nil, iam.Validationf("unknown token type %q", typ)
	}
	if err := l.guard.RequireActive(ctx, realmID); err != nil {
		return nil, err
	}
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.RealmID != realmID {
		return nil, iam.NewNotFound("user", userID)
	}
	if !user.Enabled {
		return nil, fmt.Errorf("user %s: %w", userID, iam.ErrUserDisabled)
	}

	now := l.clock.Now()
	tok := &iam.Token{
		RealmID:   realmID,
		UserID:    userID,
		ClientID:  clientID,
		TokenType: typ,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := l.store.CreateToken(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Validate returns the token when it is live: known, not revoked, not
// expired. Anything else fails with iam.ErrTokenInvalid; the reason is folded
// into the error but never distinguishes unknown from revoked for callers.
func (l *Ledger) Validate(ctx context.Context, tokenID string) (*iam.Token, error) {
	if l.cache != nil {
		revoked, err := l.cache.IsRevoked(ctx, tokenID)
		if err == nil && revoked {
			return nil, fmt.Errorf("token %s revoked: %w", tokenID, iam.ErrTokenInvalid)
		}
		// On cache failure fall through to the store.
	}

	tok, err := l.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("token %s unknown: %w", tokenID, iam.ErrTokenInvalid)
	}
	if tok.Revoked {
		return nil, fmt.Errorf("token %s revoked: %w", tokenID, iam.ErrTokenInvalid)
	}
	if tok.Expired(l.clock.Now()) {
		return nil, fmt.Errorf("token %s expired: %w", tokenID, iam.ErrTokenInvalid)
	}
	return tok, nil
}

// Revoke permanently revokes a token. The store write commits before the
// call returns, so a Validate issued afterwards observes the revocation.
// Revoking an already-revoked token succeeds; revoking an unknown one fails
// with NotFound.
func (l *Ledger) Revoke(ctx context.Context, tokenID string) error {
	tok, err := l.store.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if err := l.store.RevokeToken(ctx, tokenID); err != nil {
		return err
	}
	if l.cache != nil {
		// Best effort; the store already holds the truth.
		_ = l.cache.MarkRevoked(ctx, tokenID, tok.ExpiresAt.Sub(l.clock.Now()))
	}
	return nil
}

// RevokeAllForUser revokes every active token the user holds and returns how
// many were transitioned.
func (l *Ledger) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	tokens, err := l.store.ListTokensByUser(ctx, userID, "")
	if err != nil {
		return 0, err
	}
	n, err := l.store.RevokeTokensForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if l.cache != nil {
		now := l.clock.Now()
		for _, tok := range tokens {
			if tok.Revoked || tok.Expired(now) {
				continue
			}
			_ = l.cache.MarkRevoked(ctx, tok.ID, tok.ExpiresAt.Sub(now))
		}
	}
	return n, nil
}

// Get retrieves a token without liveness checks.
func (l *Ledger) Get(ctx context.Context, tokenID string) (*iam.Token, error) {
	return l.store.GetToken(ctx, tokenID)
}

// ListForUser lists a user's tokens, optionally filtered by type ("" for all).
func (l *Ledger) ListForUser(ctx context.Context, userID string, typ iam.TokenType) ([]*iam.Token, error) {
	if typ != "" && !typ.Valid() {
		return nil, iam.Validationf("unknown token type %q", typ)
	}
	return l.store.ListTokensByUser(ctx, userID, typ)
}

// PurgeExpired deletes tokens already expired at the current instant and
// returns the number removed. Revoked rows with future expiries are kept so
// revocation checks stay answerable.
func (l *Ledger) PurgeExpired(ctx context.Context) (int, error) {
	return l.store.DeleteExpiredTokens(ctx, l.clock.Now())
}

// CountByRealm reports how many tokens a realm currently owns.
func (l *Ledger) CountByRealm(ctx context.Context, realmID string) (int64, error) {
	return l.store.CountTokensByRealm(ctx, realmID)
}
