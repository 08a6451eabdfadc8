package otp

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps OTP hashes in an expiring in-process cache. The cache
// janitor sweeps expired records in the background; correctness does not
// depend on it since lookups re-check expiry.
type MemoryStore struct {
	cache *gocache.Cache
	ttl   time.Duration
	locks sync.Map // userID -> *sync.Mutex
}

// NewMemoryStore builds a store with the given code TTL (DefaultTTL when
// zero). The janitor runs every minute.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		cache: gocache.New(ttl, time.Minute),
		ttl:   ttl,
	}
}

// userLock serializes Issue and Consume per user so an in-flight
// comparison is never invalidated by a concurrent reissue.
func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Issue generates a new code for the user, overwriting any prior record.
func (s *MemoryStore) Issue(_ context.Context, userID string) (string, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	s.cache.Set(userID, HashCode(code, userID), s.ttl)
	return code, nil
}

// Consume checks a candidate against the stored hash. See Store.Consume
// for the exact semantics. The candidate hash is computed before the
// lookup so the missing/expired path and the mismatch path take
// comparable time.
func (s *MemoryStore) Consume(_ context.Context, userID, candidate string) bool {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	hash := HashCode(candidate, userID)

	stored, found := s.cache.Get(userID)
	if !found {
		// Missing or expired; go-cache treats both the same, and eviction
		// of an already-gone record is idempotent.
		s.cache.Delete(userID)
		return false
	}

	if !matchCode(stored.(string), hash) {
		return false
	}

	s.cache.Delete(userID)
	return true
}
