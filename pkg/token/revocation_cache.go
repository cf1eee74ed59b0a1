package token

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RevocationCache is a fast-path denylist consulted before the store on
// Validate. It is an optimization only; the store remains the source of
// truth, so cache misses and cache failures both fall through to the store.
type RevocationCache struct {
	client *redis.Client
	prefix string
}

// NewRevocationCache wraps a redis client as a revocation denylist.
func NewRevocationCache(client *redis.Client, prefix string) *RevocationCache {
	if prefix == "" {
		prefix = "gatehouse:revoked"
	}
	return &RevocationCache{client: client, prefix: prefix}
}

func (c *RevocationCache) key(tokenID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, tokenID)
}

// MarkRevoked records a token as revoked until it would have expired anyway.
// Entries for already-expired tokens are skipped; the read-time expiry check
// covers them.
func (c *RevocationCache) MarkRevoked(ctx context.Context, tokenID string, until time.Duration) error {
	if until <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.key(tokenID), "1", until).Err(); err != nil {
		return fmt.Errorf("failed to cache revocation for token %s: %w", tokenID, err)
	}
	return nil
}

// IsRevoked reports whether the denylist holds the token. A redis failure is
// returned so the caller can decide to fall through to the store.
func (c *RevocationCache) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := c.client.Get(ctx, c.key(tokenID)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check revocation cache for token %s: %w", tokenID, err)
	}
	return true, nil
}

// Ping verifies the redis connection.
func (c *RevocationCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
