package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenRepo implements domain.TokenRepository using Redis.
type RedisTokenRepo struct {
	client *redis.Client
}

// NewRedisTokenRepo creates a new repository instance.
func NewRedisTokenRepo(client *redis.Client) *RedisTokenRepo {
	return &RedisTokenRepo{client: client}
}

func refreshKey(token string) string {
	return "auth:refresh:" + token
}

// StoreRefreshToken saves an opaque token in Redis with a specific TTL.
// The key pattern is "auth:refresh:<token>" -> value "userID", so the
// owner can be identified later.
func (r *RedisTokenRepo) StoreRefreshToken(ctx context.Context, userID string, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, refreshKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token in redis: %w", err)
	}
	return nil
}

// GetUserIDByRefreshToken validates that a refresh token exists and
// returns the associated user id.
func (r *RedisTokenRepo) GetUserIDByRefreshToken(ctx context.Context, token string) (string, error) {
	userID, err := r.client.Get(ctx, refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("refresh token expired or invalid")
		}
		return "", fmt.Errorf("redis error: %w", err)
	}
	return userID, nil
}

// DeleteRefreshToken removes a token immediately. Used for logout and
// token rotation.
func (r *RedisTokenRepo) DeleteRefreshToken(ctx context.Context, token string) error {
	return r.client.Del(ctx, refreshKey(token)).Err()
}
