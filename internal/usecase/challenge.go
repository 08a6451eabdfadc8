package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aphrodite-labs/phishguard/internal/domain"
)

// DefaultChallengeTTL times out a pending MFA session. The underlying
// OTP/TOTP checks expire on their own; this bound keeps an abandoned
// challenge from staying live indefinitely.
const DefaultChallengeTTL = 10 * time.Minute

const challengeSweepInterval = time.Minute

// challengeManager owns the pending MFA challenges for in-flight logins.
// All state transitions happen under one mutex, so for a given user a
// challenge can be completed at most once: concurrent completions race on
// complete() and only one wins.
type challengeManager struct {
	mu     sync.Mutex
	byUser map[string]*domain.MFAChallenge
	ttl    time.Duration
	now    func() time.Time
	stop   chan struct{}
}

func newChallengeManager(ttl time.Duration) *challengeManager {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	m := &challengeManager{
		byUser: make(map[string]*domain.MFAChallenge),
		ttl:    ttl,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	go m.sweep()
	return m
}

// create opens a fresh challenge for the user, superseding any prior one
// (a new login attempt invalidates the old pending session).
func (m *challengeManager) create(user *domain.User) *domain.MFAChallenge {
	methods := []domain.MFAMethod{domain.MethodBiometric}
	if user.TOTPEnabled {
		methods = append(methods, domain.MethodTOTP)
	}
	if user.EmailOTPEnabled {
		methods = append(methods, domain.MethodEmailOTP)
	}

	now := m.now()
	ch := &domain.MFAChallenge{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		IssuedAt:       now,
		ExpiresAt:      now.Add(m.ttl),
		AllowedMethods: methods,
	}

	m.mu.Lock()
	m.byUser[user.ID] = ch
	m.mu.Unlock()
	return ch
}

// get returns the live challenge for the user. An expired challenge is
// removed and reported via the second return so callers can audit the
// expiry distinctly while telling the user nothing specific.
func (m *challengeManager) get(userID string) (ch *domain.MFAChallenge, expired bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.byUser[userID]
	if !ok {
		return nil, false
	}
	if ch.Expired(m.now()) {
		delete(m.byUser, userID)
		return nil, true
	}
	return ch, false
}

// complete atomically consumes the challenge. It returns false when the
// challenge is gone, expired, or was already consumed by a concurrent
// completion (the id check rejects a challenge superseded by a new login).
func (m *challengeManager) complete(userID, challengeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.byUser[userID]
	if !ok || ch.ID != challengeID || ch.Expired(m.now()) {
		return false
	}
	delete(m.byUser, userID)
	return true
}

// sweep evicts expired challenges in the background. Not correctness
// critical: get() re-checks expiry on every access.
func (m *challengeManager) sweep() {
	ticker := time.NewTicker(challengeSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := m.now()
			for userID, ch := range m.byUser {
				if ch.Expired(now) {
					delete(m.byUser, userID)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *challengeManager) close() {
	close(m.stop)
}
