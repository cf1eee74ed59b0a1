package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
	"github.com/gatehouse-io/gatehouse/pkg/realm"
	"github.com/gatehouse-io/gatehouse/pkg/store/memory"
)

func newTestCache(t *testing.T) (*RevocationCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRevocationCache(client, ""), mr
}

func TestRevocationCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	t.Run("unknown token is not revoked", func(t *testing.T) {
		revoked, err := cache.IsRevoked(ctx, "tok-1")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("mark then check", func(t *testing.T) {
		require.NoError(t, cache.MarkRevoked(ctx, "tok-1", time.Hour))

		revoked, err := cache.IsRevoked(ctx, "tok-1")
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("entry expires with the token", func(t *testing.T) {
		require.NoError(t, cache.MarkRevoked(ctx, "tok-2", time.Minute))
		mr.FastForward(2 * time.Minute)

		revoked, err := cache.IsRevoked(ctx, "tok-2")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("non-positive ttl is skipped", func(t *testing.T) {
		require.NoError(t, cache.MarkRevoked(ctx, "tok-3", 0))

		revoked, err := cache.IsRevoked(ctx, "tok-3")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, cache.Ping(ctx))
	})
}

func TestLedgerWithRevocationCache(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	st := memory.New()
	guard := realm.NewGuard(st)
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	ledger := NewLedger(st, guard, clock, cache)

	rlm, err := guard.Create(ctx, "acme", true)
	require.NoError(t, err)
	user := &iam.User{RealmID: rlm.ID, Username: "alice", Email: "alice@example.com", Enabled: true}
	require.NoError(t, st.CreateUser(ctx, user))

	tok, err := ledger.Issue(ctx, rlm.ID, user.ID, "", iam.TokenAccess, time.Hour)
	require.NoError(t, err)

	_, err = ledger.Validate(ctx, tok.ID)
	require.NoError(t, err)

	require.NoError(t, ledger.Revoke(ctx, tok.ID))

	// The denylist answers before the store is consulted.
	revoked, err := cache.IsRevoked(ctx, tok.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = ledger.Validate(ctx, tok.ID)
	assert.ErrorIs(t, err, iam.ErrTokenInvalid)
}
