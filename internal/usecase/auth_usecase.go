package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aphrodite-labs/phishguard/internal/domain"
	"github.com/aphrodite-labs/phishguard/internal/otp"
	"github.com/aphrodite-labs/phishguard/pkg/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidMFACode     = errors.New("invalid verification code")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTOTPNotConfigured  = errors.New("totp not set up")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// LoginResult is the outcome of the first authentication step. Either the
// session is set (login finalized) or MFARequired is true and PendingUser
// identifies who must complete a second factor. Never both.
type LoginResult struct {
	MFARequired bool               `json:"mfa_required"`
	PendingUser *domain.Identity   `json:"pending_user,omitempty"`
	Methods     []domain.MFAMethod `json:"methods,omitempty"`
	Session     *domain.Session    `json:"session,omitempty"`
}

// AuthConfig carries the orchestrator's tunables.
type AuthConfig struct {
	JWTSecret    string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	ChallengeTTL time.Duration
}

// AuthUsecase is the MFA challenge orchestrator. It turns a verified
// password login into a pending challenge, accepts exactly one
// verification method per completion call, and finalizes sessions.
type AuthUsecase struct {
	users      domain.UserRepository
	tokens     domain.TokenRepository
	otps       otp.Store
	oracle     domain.BiometricOracle
	auditor    domain.AuditLogger
	challenges *challengeManager
	cfg        AuthConfig
	logger     *zap.Logger
}

// NewAuthUsecase wires the orchestrator and starts its challenge sweeper.
func NewAuthUsecase(
	users domain.UserRepository,
	tokens domain.TokenRepository,
	otps otp.Store,
	oracle domain.BiometricOracle,
	auditor domain.AuditLogger,
	cfg AuthConfig,
	logger *zap.Logger,
) *AuthUsecase {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}
	return &AuthUsecase{
		users:      users,
		tokens:     tokens,
		otps:       otps,
		oracle:     oracle,
		auditor:    auditor,
		challenges: newChallengeManager(cfg.ChallengeTTL),
		cfg:        cfg,
		logger:     logger,
	}
}

// Close stops background work owned by the orchestrator.
func (u *AuthUsecase) Close() {
	u.challenges.close()
}

// Login handles the first step of authentication: validating credentials.
// If any second factor is configured the user gets a pending challenge
// instead of a session.
func (u *AuthUsecase) Login(ctx context.Context, email, password string, meta domain.RequestMeta) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !security.VerifyPassword(password, user.PasswordHash) {
		u.auditor.Record(ctx, user.ID, "login_failed", map[string]any{"email": email}, meta)
		return nil, ErrInvalidCredentials
	}

	if user.MFAConfigured() {
		ch := u.challenges.create(user)

		if user.EmailOTPEnabled {
			code, err := u.otps.Issue(ctx, user.ID)
			if err != nil {
				return nil, err
			}
			// Email delivery is an external concern; the code is logged
			// for the demo the way the mail hand-off would be.
			u.logger.Info("email otp issued",
				zap.String("user_id", user.ID),
				zap.String("code", code),
			)
		}

		u.auditor.Record(ctx, user.ID, "mfa_challenge_sent", map[string]any{
			"email":   email,
			"methods": ch.AllowedMethods,
		}, meta)

		identity := user.Identity()
		return &LoginResult{
			MFARequired: true,
			PendingUser: &identity,
			Methods:     ch.AllowedMethods,
		}, nil
	}

	session, err := u.finalizeSession(ctx, user)
	if err != nil {
		return nil, err
	}
	u.auditor.Record(ctx, user.ID, "user_login", map[string]any{"email": email}, meta)
	return &LoginResult{Session: session}, nil
}

// CompleteMFA verifies exactly one second factor for a pending challenge.
// On success the challenge is consumed and a session issued; on failure
// the challenge stays pending so the caller may retry, bounded by the
// challenge TTL and the factor's own expiry.
func (u *AuthUsecase) CompleteMFA(ctx context.Context, userID, candidate string, method domain.MFAMethod, meta domain.RequestMeta) (*domain.Session, error) {
	if userID == "" || !method.Valid() {
		return nil, ErrInvalidInput
	}

	ch, expired := u.challenges.get(userID)
	if ch == nil {
		if expired {
			// The caller only ever learns "invalid code"; the audit trail
			// keeps the real cause.
			u.auditor.Record(ctx, userID, "mfa_challenge_expired", map[string]any{"method": method}, meta)
		}
		return nil, ErrInvalidMFACode
	}

	if !ch.Allows(method) {
		u.auditor.Record(ctx, userID, "mfa_verification_failed", map[string]any{
			"method": method,
			"detail": "method not allowed for challenge",
		}, meta)
		return nil, ErrInvalidMFACode
	}

	ok, err := u.verifyFactor(ctx, userID, candidate, method)
	if err != nil {
		return nil, err
	}
	if !ok {
		u.auditor.Record(ctx, userID, "mfa_verification_failed", map[string]any{"method": method}, meta)
		return nil, ErrInvalidMFACode
	}

	// Atomic consume: of N concurrent completions, exactly one passes.
	if !u.challenges.complete(userID, ch.ID) {
		return nil, ErrInvalidMFACode
	}

	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	session, err := u.finalizeSession(ctx, user)
	if err != nil {
		return nil, err
	}
	u.auditor.Record(ctx, userID, "mfa_verification_success", map[string]any{"method": method}, meta)
	return session, nil
}

// verifyFactor dispatches to the verifier for the chosen method. The
// method set is closed; extending it means extending this switch.
func (u *AuthUsecase) verifyFactor(ctx context.Context, userID, candidate string, method domain.MFAMethod) (bool, error) {
	switch method {
	case domain.MethodEmailOTP:
		return u.otps.Consume(ctx, userID, candidate), nil

	case domain.MethodTOTP:
		user, err := u.users.GetByID(ctx, userID)
		if err != nil {
			return false, nil
		}
		if !user.TOTPEnabled || user.TOTPSecret == "" {
			return false, nil
		}
		return security.VerifyTOTPCode(candidate, user.TOTPSecret), nil

	case domain.MethodBiometric:
		ok, err := u.oracle.Attempt(ctx, userID)
		if err != nil {
			// Context cancellation aside, the oracle is untrusted; treat
			// errors as a failed attempt rather than surfacing them.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false, err
			}
			return false, nil
		}
		return ok, nil
	}
	return false, ErrInvalidInput
}

// RequestEmailOTP re-issues the email OTP for a pending or authenticated
// user, superseding any prior code.
func (u *AuthUsecase) RequestEmailOTP(ctx context.Context, userID string, meta domain.RequestMeta) error {
	code, err := u.otps.Issue(ctx, userID)
	if err != nil {
		return err
	}
	u.logger.Info("email otp issued", zap.String("user_id", userID), zap.String("code", code))
	u.auditor.Record(ctx, userID, "email_otp_generated", map[string]any{"method": "email"}, meta)
	return nil
}

// VerifyEmailOTP consumes a standalone email OTP outside of a login
// challenge (used by the security settings verification flow).
func (u *AuthUsecase) VerifyEmailOTP(ctx context.Context, userID, candidate string, meta domain.RequestMeta) bool {
	valid := u.otps.Consume(ctx, userID, candidate)
	u.auditor.Record(ctx, userID, "email_otp_verified", map[string]any{"success": valid}, meta)
	return valid
}

// SetupTOTP provisions a new TOTP secret. The secret is persisted
// disabled; EnableTOTP flips it on only after the user proves the device
// produces valid codes, so an unverified device is never bound.
func (u *AuthUsecase) SetupTOTP(ctx context.Context, userID string) (*security.TOTPProvision, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	provision, err := security.GenerateTOTPSecret(user.Email)
	if err != nil {
		return nil, err
	}
	if err := u.users.UpdateTOTP(ctx, userID, provision.Secret, false); err != nil {
		return nil, err
	}
	return provision, nil
}

// EnableTOTP completes the provisioning round-trip.
func (u *AuthUsecase) EnableTOTP(ctx context.Context, userID, code string, meta domain.RequestMeta) error {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return ErrInvalidCredentials
	}
	if user.TOTPSecret == "" {
		return ErrTOTPNotConfigured
	}
	if !security.VerifyTOTPCode(code, user.TOTPSecret) {
		u.auditor.Record(ctx, userID, "totp_enable_failed", nil, meta)
		return ErrInvalidMFACode
	}

	if err := u.users.UpdateTOTP(ctx, userID, user.TOTPSecret, true); err != nil {
		return err
	}
	u.auditor.Record(ctx, userID, "totp_enabled", nil, meta)
	return nil
}

// DisableTOTP removes the TOTP factor and its secret.
func (u *AuthUsecase) DisableTOTP(ctx context.Context, userID string, meta domain.RequestMeta) error {
	if err := u.users.UpdateTOTP(ctx, userID, "", false); err != nil {
		return err
	}
	u.auditor.Record(ctx, userID, "totp_disabled", nil, meta)
	return nil
}

// VerifyTOTP checks a code against the user's enabled secret without
// consuming anything (security settings self-test).
func (u *AuthUsecase) VerifyTOTP(ctx context.Context, userID, code string, meta domain.RequestMeta) (bool, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return false, ErrInvalidCredentials
	}
	if user.TOTPSecret == "" {
		return false, ErrTOTPNotConfigured
	}
	valid := security.VerifyTOTPCode(code, user.TOTPSecret)
	u.auditor.Record(ctx, userID, "totp_verified", map[string]any{"success": valid}, meta)
	return valid, nil
}

// SetEmailOTP toggles the email OTP factor.
func (u *AuthUsecase) SetEmailOTP(ctx context.Context, userID string, enabled bool, meta domain.RequestMeta) error {
	if err := u.users.UpdateEmailOTP(ctx, userID, enabled); err != nil {
		return err
	}
	action := "email_otp_disabled"
	if enabled {
		action = "email_otp_enabled"
	}
	u.auditor.Record(ctx, userID, action, nil, meta)
	return nil
}

// Refresh rotates a refresh token into a new session.
func (u *AuthUsecase) Refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	userID, err := u.tokens.GetUserIDByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// Rotation: the old token dies with the new issuance.
	_ = u.tokens.DeleteRefreshToken(ctx, refreshToken)
	return u.finalizeSession(ctx, user)
}

// Logout revokes a refresh token.
func (u *AuthUsecase) Logout(ctx context.Context, refreshToken string, meta domain.RequestMeta) error {
	userID, err := u.tokens.GetUserIDByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil // already gone; revocation is idempotent
	}
	if err := u.tokens.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return err
	}
	u.auditor.Record(ctx, userID, "user_logout", nil, meta)
	return nil
}

// finalizeSession creates the JWT access token and the opaque refresh token.
func (u *AuthUsecase) finalizeSession(ctx context.Context, user *domain.User) (*domain.Session, error) {
	accessToken, err := security.GenerateAccessToken(user.ID, user.Role, u.cfg.JWTSecret, u.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}

	refreshToken, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, err
	}
	if err := u.tokens.StoreRefreshToken(ctx, user.ID, refreshToken, u.cfg.RefreshTTL); err != nil {
		return nil, err
	}

	return &domain.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(u.cfg.AccessTTL.Seconds()),
	}, nil
}
