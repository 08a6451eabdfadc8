// Package otp manages the lifecycle of short-lived, single-use email OTP
// codes: issue, hash, store with TTL, and consume exactly once.
package otp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// DefaultTTL bounds the attack window for a stolen or guessed code.
const DefaultTTL = 5 * time.Minute

const codeDigits = 1_000_000 // 6-digit code space

// Store is the injectable OTP state abstraction. Implementations hold at
// most one live record per user: a new Issue supersedes the prior one
// (last-writer-wins).
type Store interface {
	// Issue generates a fresh 6-digit code for the user, stores its hash
	// with a TTL, and returns the plaintext code for delivery. The
	// plaintext is never persisted.
	Issue(ctx context.Context, userID string) (string, error)

	// Consume verifies a candidate code. It returns false when no record
	// exists or the record expired (deleting it), true and deletes the
	// record on a match, and false while keeping the record on a
	// mismatch. Keeping the record on mismatch allows retry after a typo;
	// the TTL still bounds the attack window.
	Consume(ctx context.Context, userID, candidate string) bool
}

// GenerateCode draws 6 uniform-random digits from a CSPRNG.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeDigits))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashCode computes hex HMAC-SHA256(code) keyed by the user id. Keying
// per user means a leaked store never exposes a single global secret that
// would unlock every user's codes.
func HashCode(code, userID string) string {
	mac := hmac.New(sha256.New, []byte(userID))
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// matchCode compares two hex hashes in constant time.
func matchCode(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}
