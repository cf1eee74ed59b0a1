package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrMalformed is returned when a signed credential cannot be parsed or its
// signature does not verify.
var ErrMalformed = errors.New("malformed credential")

// Claims is the signed wire form of a token. It carries identity only, never
// permissions; every authorization decision recomputes those.
type Claims struct {
	RealmID   string        `json:"realm"`
	ClientID  string        `json:"client,omitempty"`
	TokenType iam.TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Encoder signs tokens into compact credentials and parses them back. Parsed
// claims are kept in a small LRU so repeated validations of the same
// credential skip signature verification.
type Encoder struct {
	secret []byte
	issuer string
	cache  *lru.Cache[string, *Claims]
}

// NewEncoder creates an HMAC encoder. cacheSize bounds the parsed-claims LRU;
// zero or negative disables caching.
func NewEncoder(secret []byte, issuer string, cacheSize int) (*Encoder, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	e := &Encoder{secret: secret, issuer: issuer}
	if cacheSize > 0 {
		cache, err := lru.New[string, *Claims](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create claims cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// Encode signs the token's identity fields into a compact credential.
func (e *Encoder) Encode(tok *iam.Token) (string, error) {
	claims := &Claims{
		RealmID:   tok.RealmID,
		ClientID:  tok.ClientID,
		TokenType: tok.TokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tok.ID,
			Subject:   tok.UserID,
			Issuer:    e.issuer,
			IssuedAt:  jwt.NewNumericDate(tok.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token %s: %w", tok.ID, err)
	}
	return signed, nil
}

// Decode verifies a signed credential and returns its claims. Expiry is NOT
// checked here; the ledger decides liveness against its own clock and the
// store's revocation state.
func (e *Encoder) Decode(signed string) (*Claims, error) {
	if e.cache != nil {
		if claims, ok := e.cache.Get(signed); ok {
			return claims, nil
		}
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return e.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing id or subject", ErrMalformed)
	}

	if e.cache != nil {
		e.cache.Add(signed, claims)
	}
	return claims, nil
}

// ExpiresIn returns the remaining lifetime of the claims at the given instant.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}
