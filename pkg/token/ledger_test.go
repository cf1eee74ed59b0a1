package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
	"github.com/gatehouse-io/gatehouse/pkg/realm"
	"github.com/gatehouse-io/gatehouse/pkg/store/memory"
)

// fakeClock is a settable clock for expiry tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	ledger *Ledger
	store  *memory.Store
	guard  *realm.Guard
	clock  *fakeClock
	realm  *iam.Realm
	user   *iam.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	guard := realm.NewGuard(st)
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	rlm, err := guard.Create(ctx, "acme", true)
	require.NoError(t, err)

	user := &iam.User{RealmID: rlm.ID, Username: "alice", Email: "alice@example.com", Enabled: true}
	require.NoError(t, st.CreateUser(ctx, user))

	return &fixture{
		ledger: NewLedger(st, guard, clock, nil),
		store:  st,
		guard:  guard,
		clock:  clock,
		realm:  rlm,
		user:   user,
	}
}

func TestIssue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("success", func(t *testing.T) {
		tok, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "cli", iam.TokenAccess, time.Hour)
		require.NoError(t, err)
		assert.NotEmpty(t, tok.ID)
		assert.Equal(t, f.clock.now.Add(time.Hour), tok.ExpiresAt)
		assert.False(t, tok.Revoked)
	})

	t.Run("zero ttl issues a born-expired token", func(t *testing.T) {
		tok, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenAccess, 0)
		require.NoError(t, err)
		assert.Equal(t, f.clock.now, tok.ExpiresAt)

		_, err = f.ledger.Validate(ctx, tok.ID)
		assert.ErrorIs(t, err, iam.ErrTokenInvalid)
	})

	t.Run("negative ttl issues a born-expired token", func(t *testing.T) {
		tok, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenAccess, -time.Minute)
		require.NoError(t, err)

		_, err = f.ledger.Validate(ctx, tok.ID)
		assert.ErrorIs(t, err, iam.ErrTokenInvalid)
	})

	t.Run("disabled realm is rejected", func(t *testing.T) {
		require.NoError(t, f.guard.Disable(ctx, f.realm.ID))
		defer func() { require.NoError(t, f.guard.Enable(ctx, f.realm.ID)) }()

		_, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenAccess, time.Hour)
		assert.ErrorIs(t, err, iam.ErrRealmDisabled)
	})

	t.Run("disabled user is rejected", func(t *testing.T) {
		require.NoError(t, f.store.SetUserEnabled(ctx, f.user.ID, false))
		defer func() { require.NoError(t, f.store.SetUserEnabled(ctx, f.user.ID, true)) }()

		_, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenAccess, time.Hour)
		assert.ErrorIs(t, err, iam.ErrUserDisabled)
	})

	t.Run("user outside the realm is not found", func(t *testing.T) {
		other, err := f.guard.Create(ctx, "other", true)
		require.NoError(t, err)

		_, err = f.ledger.Issue(ctx, other.ID, f.user.ID, "", iam.TokenAccess, time.Hour)
		assert.ErrorIs(t, err, iam.ErrNotFound)
	})

	t.Run("unknown token type is rejected", func(t *testing.T) {
		_, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenType("SESSION"), time.Hour)
		assert.ErrorIs(t, err, iam.ErrValidation)
	})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tok, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenAccess, time.Hour)
	require.NoError(t, err)

	t.Run("live token validates", func(t *testing.T) {
		got, err := f.ledger.Validate(ctx, tok.ID)
		require.NoError(t, err)
		assert.Equal(t, f.user.ID, got.UserID)
		assert.Equal(t, f.realm.ID, got.RealmID)
	})

	t.Run("unknown token is invalid", func(t *testing.T) {
		_, err := f.ledger.Validate(ctx, "ghost")
		assert.ErrorIs(t, err, iam.ErrTokenInvalid)
	})

	t.Run("expiry boundary: now == expiresAt is expired", func(t *testing.T) {
		f.clock.advance(time.Hour)
		_, err := f.ledger.Validate(ctx, tok.ID)
		assert.ErrorIs(t, err, iam.ErrTokenInvalid)
		f.clock.advance(-time.Hour)
	})

	t.Run("revoked token is invalid immediately", func(t *testing.T) {
		require.NoError(t, f.ledger.Revoke(ctx, tok.ID))
		_, err := f.ledger.Validate(ctx, tok.ID)
		assert.ErrorIs(t, err, iam.ErrTokenInvalid)
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tok, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenAccess, time.Hour)
	require.NoError(t, err)

	t.Run("revoke twice succeeds", func(t *testing.T) {
		require.NoError(t, f.ledger.Revoke(ctx, tok.ID))
		require.NoError(t, f.ledger.Revoke(ctx, tok.ID))
	})

	t.Run("revoke unknown is not found", func(t *testing.T) {
		err := f.ledger.Revoke(ctx, "ghost")
		assert.ErrorIs(t, err, iam.ErrNotFound)
	})

	t.Run("revocation is permanent", func(t *testing.T) {
		got, err := f.ledger.Get(ctx, tok.ID)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
	})
}

func TestRevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenAccess, time.Hour)
		require.NoError(t, err)
	}

	n, err := f.ledger.RevokeAllForUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.ledger.RevokeAllForUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	short, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenAccess, time.Minute)
	require.NoError(t, err)
	long, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenRefresh, time.Hour)
	require.NoError(t, err)

	f.clock.advance(30 * time.Minute)

	n, err := f.ledger.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.ledger.Get(ctx, short.ID)
	assert.ErrorIs(t, err, iam.ErrNotFound)

	_, err = f.ledger.Get(ctx, long.ID)
	assert.NoError(t, err)
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenAccess, time.Hour)
	require.NoError(t, err)
	_, err = f.ledger.Issue(ctx, f.realm.ID, f.user.ID, "", iam.TokenRefresh, time.Hour)
	require.NoError(t, err)

	all, err := f.ledger.ListForUser(ctx, f.user.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	refresh, err := f.ledger.ListForUser(ctx, f.user.ID, iam.TokenRefresh)
	require.NoError(t, err)
	require.Len(t, refresh, 1)
	assert.Equal(t, iam.TokenRefresh, refresh[0].TokenType)

	_, err = f.ledger.ListForUser(ctx, f.user.ID, iam.TokenType("SESSION"))
	assert.ErrorIs(t, err, iam.ErrValidation)
}
