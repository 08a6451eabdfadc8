package otp

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript compares the stored hash against the candidate hash and
// deletes the key only on a match, all inside Redis. Running server-side
// makes match-and-delete atomic across service instances sharing the
// store, so a code can be consumed at most once no matter how many
// processes race on it. Both values are HMAC outputs, so the comparison
// leaks nothing about the plaintext code.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

// RedisStore keeps OTP hashes in Redis with a native key TTL, so codes
// survive process restarts and are shared across instances.
// The key pattern is "auth:otp:<userID>" -> hashed code.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a store with the given code TTL (DefaultTTL when zero).
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(userID string) string {
	return "auth:otp:" + userID
}

// Issue generates a new code for the user, overwriting any prior record.
// Concurrent issues are last-writer-wins; SET is atomic so no lock is
// needed here.
func (s *RedisStore) Issue(ctx context.Context, userID string) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.key(userID), HashCode(code, userID), s.ttl).Err(); err != nil {
		return "", err
	}
	return code, nil
}

// Consume checks a candidate against the stored hash via consumeScript.
// Redis evicts expired keys on its own, so an expired record reads as
// missing. The candidate hash is always computed, so a missing record and
// a mismatch take comparable time; store errors also read as a failed
// verification, the caller only ever sees a generic rejection.
func (s *RedisStore) Consume(ctx context.Context, userID, candidate string) bool {
	hash := HashCode(candidate, userID)

	matched, err := consumeScript.Run(ctx, s.client, []string{s.key(userID)}, hash).Int()
	if err != nil {
		return false
	}
	return matched == 1
}
