package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

func testToken() *iam.Token {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &iam.Token{
		ID:        "tok-1",
		RealmID:   "realm-1",
		UserID:    "user-1",
		ClientID:  "cli",
		TokenType: iam.TokenAccess,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestEncoderRoundTrip(t *testing.T) {
	enc, err := NewEncoder([]byte("test-secret"), "gatehouse", 16)
	require.NoError(t, err)

	signed, err := enc.Encode(testToken())
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := enc.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", claims.ID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "realm-1", claims.RealmID)
	assert.Equal(t, "cli", claims.ClientID)
	assert.Equal(t, iam.TokenAccess, claims.TokenType)
	assert.Equal(t, "gatehouse", claims.Issuer)
}

func TestEncoderRejectsTamperedCredential(t *testing.T) {
	enc, err := NewEncoder([]byte("test-secret"), "gatehouse", 0)
	require.NoError(t, err)

	signed, err := enc.Encode(testToken())
	require.NoError(t, err)

	tampered := signed[:len(signed)-2] + "xx"
	_, err = enc.Decode(tampered)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = enc.Decode("not-a-credential")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncoderRejectsWrongSecret(t *testing.T) {
	enc, err := NewEncoder([]byte("secret-a"), "gatehouse", 0)
	require.NoError(t, err)
	other, err := NewEncoder([]byte("secret-b"), "gatehouse", 0)
	require.NoError(t, err)

	signed, err := enc.Encode(testToken())
	require.NoError(t, err)

	_, err = other.Decode(signed)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncoderDecodesExpiredClaims(t *testing.T) {
	// Liveness is the ledger's job; decoding must not enforce expiry.
	enc, err := NewEncoder([]byte("test-secret"), "gatehouse", 0)
	require.NoError(t, err)

	tok := testToken()
	tok.ExpiresAt = time.Now().Add(-time.Hour)
	signed, err := enc.Encode(tok)
	require.NoError(t, err)

	claims, err := enc.Decode(signed)
	require.NoError(t, err)
	assert.Negative(t, claims.ExpiresIn(time.Now()))
}

func TestEncoderRequiresSecret(t *testing.T) {
	_, err := NewEncoder(nil, "gatehouse", 0)
	assert.Error(t, err)
}
