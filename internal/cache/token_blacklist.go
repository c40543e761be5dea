package cache

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// TokenBlacklist stores revoked JWT ids until their natural expiry, backing
// logout. A token is revoked by jti with a TTL equal to its remaining
// lifetime, so the set never outgrows the live token population.
type TokenBlacklist struct {
	client *redisv9.Client
}

func NewTokenBlacklist(client *redisv9.Client) *TokenBlacklist {
	return &TokenBlacklist{client: client}
}

func (b *TokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set token blacklist failed: %w", err)
	}
	return nil
}

func (b *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := b.client.Exists(ctx, b.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check token blacklist failed: %w", err)
	}
	return exists > 0, nil
}

func (b *TokenBlacklist) key(jti string) string {
	return "token_blacklist:" + jti
}
