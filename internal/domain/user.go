package domain

import (
	"context"
	"time"
)

// User represents the central identity entity of the system.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"` // Never expose the password hash in JSON
	Role            string    `json:"role"`
	EmailOTPEnabled bool      `json:"email_otp_enabled"`
	TOTPEnabled     bool      `json:"totp_enabled"`
	TOTPSecret      string    `json:"-"` // Base32 TOTP secret; unverified until TOTPEnabled is set
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MFAConfigured reports whether any second factor is enabled for the user.
func (u *User) MFAConfigured() bool {
	return u.EmailOTPEnabled || u.TOTPEnabled
}

// Identity is the minimal user view handed to callers during a pending
// MFA challenge. It is deliberately free of secrets.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Identity projects the user onto its public identity.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role}
}

// Session defines the payload returned after a fully verified login.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// UserRepository defines the contract for user data persistence.
// This interface is implemented in the 'internal/repository' package.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error

	// UpdateTOTP persists the TOTP secret and enabled flag for a user.
	// A secret is written with enabled=false during setup and flipped to
	// true only after a successful verification round-trip.
	UpdateTOTP(ctx context.Context, userID, secret string, enabled bool) error

	// UpdateEmailOTP toggles the email OTP factor for a user.
	UpdateEmailOTP(ctx context.Context, userID string, enabled bool) error
}

// TokenRepository defines how we handle opaque refresh tokens (usually in Redis).
type TokenRepository interface {
	StoreRefreshToken(ctx context.Context, userID string, token string, ttl time.Duration) error
	GetUserIDByRefreshToken(ctx context.Context, token string) (string, error)
	DeleteRefreshToken(ctx context.Context, token string) error
}
