package domain

import (
	"context"
	"time"
)

// MFAMethod is the closed set of second-factor verification methods.
// CompleteMFA dispatches on this tag; adding a method means extending the
// switch in the orchestrator, which the compiler will surface.
type MFAMethod string

const (
	MethodTOTP      MFAMethod = "totp"
	MethodEmailOTP  MFAMethod = "email_otp"
	MethodBiometric MFAMethod = "biometric"
)

// Valid reports whether the method is one of the supported variants.
func (m MFAMethod) Valid() bool {
	switch m {
	case MethodTOTP, MethodEmailOTP, MethodBiometric:
		return true
	}
	return false
}

// MFAChallenge is the pending second-factor state created once per login
// attempt that requires MFA. It is destroyed on success or expiry.
type MFAChallenge struct {
	ID             string
	UserID         string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	AllowedMethods []MFAMethod
}

// Allows reports whether the given method may complete this challenge.
func (c *MFAChallenge) Allows(m MFAMethod) bool {
	for _, allowed := range c.AllowedMethods {
		if allowed == m {
			return true
		}
	}
	return false
}

// Expired reports whether the challenge has passed its TTL at the given time.
func (c *MFAChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// RequestMeta carries transport metadata for audit trails.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// AuditLogger records security-relevant events. Implementations must be
// fire-and-forget: a failed write never aborts the calling operation.
type AuditLogger interface {
	Record(ctx context.Context, userID, action string, details map[string]any, meta RequestMeta)
}

// BiometricOracle abstracts the (untrusted, possibly slow) biometric
// verification device. The reference implementation is a simulation.
type BiometricOracle interface {
	Attempt(ctx context.Context, userID string) (bool, error)
}
