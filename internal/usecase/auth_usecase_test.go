package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aphrodite-labs/phishguard/internal/biometric"
	"github.com/aphrodite-labs/phishguard/internal/domain"
	otpstore "github.com/aphrodite-labs/phishguard/internal/otp"
	"github.com/aphrodite-labs/phishguard/pkg/security"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User // by id
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		cp := *u
		r.users[u.ID] = &cp
	}
	return r
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errors.New("user not found")
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) UpdateTOTP(_ context.Context, userID, secret string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.TOTPSecret = secret
	u.TOTPEnabled = enabled
	return nil
}

func (r *fakeUserRepo) UpdateEmailOTP(_ context.Context, userID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.EmailOTPEnabled = enabled
	return nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]string // token -> userID
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]string)}
}

func (r *fakeTokenRepo) StoreRefreshToken(_ context.Context, userID, token string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = userID
	return nil
}

func (r *fakeTokenRepo) GetUserIDByRefreshToken(_ context.Context, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.tokens[token]
	if !ok {
		return "", errors.New("token not found")
	}
	return userID, nil
}

func (r *fakeTokenRepo) DeleteRefreshToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}

// capturingOTPStore wraps a real store and remembers the last issued
// plaintext code, standing in for the email delivery hand-off.
type capturingOTPStore struct {
	otpstore.Store
	mu   sync.Mutex
	last string
}

func (s *capturingOTPStore) Issue(ctx context.Context, userID string) (string, error) {
	code, err := s.Store.Issue(ctx, userID)
	s.mu.Lock()
	s.last = code
	s.mu.Unlock()
	return code, err
}

func (s *capturingOTPStore) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Record(_ context.Context, _ string, action string, _ map[string]any, _ domain.RequestMeta) {
	a.mu.Lock()
	a.actions = append(a.actions, action)
	a.mu.Unlock()
}

func (a *recordingAuditor) seen(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}

// alwaysOracle accepts or rejects every attempt unconditionally.
type alwaysOracle struct{ outcome bool }

func (o alwaysOracle) Attempt(context.Context, string) (bool, error) { return o.outcome, nil }

type authFixture struct {
	uc      *AuthUsecase
	users   *fakeUserRepo
	tokens  *fakeTokenRepo
	otps    *capturingOTPStore
	auditor *recordingAuditor
}

func newAuthFixture(t *testing.T, cfg AuthConfig, oracle domain.BiometricOracle, users ...*domain.User) *authFixture {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-jwt-secret"
	}
	if oracle == nil {
		oracle = biometric.NewTestOracle(1)
	}

	userRepo := newFakeUserRepo(users...)
	tokenRepo := newFakeTokenRepo()
	otps := &capturingOTPStore{Store: otpstore.NewMemoryStore(0)}
	auditor := &recordingAuditor{}

	uc := NewAuthUsecase(userRepo, tokenRepo, otps, oracle, auditor, cfg, zap.NewNop())
	t.Cleanup(uc.Close)

	return &authFixture{uc: uc, users: userRepo, tokens: tokenRepo, otps: otps, auditor: auditor}
}

func testUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	return &domain.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Role:         "user",
	}
}

func totpCodeNow(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

var meta = domain.RequestMeta{IP: "127.0.0.1", UserAgent: "test"}

func TestLogin_NoMFAIssuesSession(t *testing.T) {
	user := testUser(t, "correct horse")
	fx := newAuthFixture(t, AuthConfig{}, nil, user)

	res, err := fx.uc.Login(context.Background(), user.Email, "correct horse", meta)
	require.NoError(t, err)

	assert.False(t, res.MFARequired)
	require.NotNil(t, res.Session)
	assert.NotEmpty(t, res.Session.AccessToken)
	assert.NotEmpty(t, res.Session.RefreshToken)
	assert.True(t, fx.auditor.seen("user_login"))

	claims, err := security.ValidateToken(res.Session.AccessToken, "test-jwt-secret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Role, claims.Role)
}

func TestLogin_WrongPassword(t *testing.T) {
	user := testUser(t, "correct horse")
	fx := newAuthFixture(t, AuthConfig{}, nil, user)

	_, err := fx.uc.Login(context.Background(), user.Email, "battery staple", meta)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, fx.auditor.seen("login_failed"))
}

func TestLogin_UnknownEmail(t *testing.T) {
	fx := newAuthFixture(t, AuthConfig{}, nil)

	_, err := fx.uc.Login(context.Background(), "nobody@example.com", "whatever", meta)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_EmptyInput(t *testing.T) {
	fx := newAuthFixture(t, AuthConfig{}, nil)

	_, err := fx.uc.Login(context.Background(), "", "pw", meta)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = fx.uc.Login(context.Background(), "a@b.c", "", meta)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLogin_EmailOTPChallengeAndCompletion(t *testing.T) {
	user := testUser(t, "pw")
	user.EmailOTPEnabled = true
	fx := newAuthFixture(t, AuthConfig{}, nil, user)
	ctx := context.Background()

	res, err := fx.uc.Login(ctx, user.Email, "pw", meta)
	require.NoError(t, err)

	assert.True(t, res.MFARequired)
	assert.Nil(t, res.Session)
	require.NotNil(t, res.PendingUser)
	assert.Equal(t, user.ID, res.PendingUser.ID)
	assert.Contains(t, res.Methods, domain.MethodEmailOTP)
	assert.Contains(t, res.Methods, domain.MethodBiometric)
	assert.NotContains(t, res.Methods, domain.MethodTOTP)
	assert.True(t, fx.auditor.seen("mfa_challenge_sent"))

	code := fx.otps.lastCode()
	require.NotEmpty(t, code)

	// A wrong code fails but leaves the challenge pending.
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	_, err = fx.uc.CompleteMFA(ctx, user.ID, wrong, domain.MethodEmailOTP, meta)
	assert.ErrorIs(t, err, ErrInvalidMFACode)
	assert.True(t, fx.auditor.seen("mfa_verification_failed"))

	session, err := fx.uc.CompleteMFA(ctx, user.ID, code, domain.MethodEmailOTP, meta)
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.True(t, fx.auditor.seen("mfa_verification_success"))

	// The challenge is consumed; replaying the flow fails.
	_, err = fx.uc.CompleteMFA(ctx, user.ID, code, domain.MethodEmailOTP, meta)
	assert.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestLogin_TOTPChallengeAndCompletion(t *testing.T) {
	provision, err := security.GenerateTOTPSecret("alice@example.com")
	require.NoError(t, err)

	user := testUser(t, "pw")
	user.TOTPEnabled = true
	user.TOTPSecret = provision.Secret
	fx := newAuthFixture(t, AuthConfig{}, nil, user)
	ctx := context.Background()

	res, err := fx.uc.Login(ctx, user.Email, "pw", meta)
	require.NoError(t, err)
	assert.True(t, res.MFARequired)
	assert.Contains(t, res.Methods, domain.MethodTOTP)

	_, err = fx.uc.CompleteMFA(ctx, user.ID, "123456", domain.MethodTOTP, meta)
	if err == nil {
		t.Skip("forged code collided with the live TOTP window")
	}
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	session, err := fx.uc.CompleteMFA(ctx, user.ID, totpCodeNow(t, provision.Secret), domain.MethodTOTP, meta)
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
}

func TestCompleteMFA_MethodNotAllowed(t *testing.T) {
	user := testUser(t, "pw")
	user.EmailOTPEnabled = true
	fx := newAuthFixture(t, AuthConfig{}, nil, user)
	ctx := context.Background()

	_, err := fx.uc.Login(ctx, user.Email, "pw", meta)
	require.NoError(t, err)

	// TOTP was never enabled, so it is not an allowed method.
	_, err = fx.uc.CompleteMFA(ctx, user.ID, "123456", domain.MethodTOTP, meta)
	assert.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestCompleteMFA_NoPendingChallenge(t *testing.T) {
	user := testUser(t, "pw")
	fx := newAuthFixture(t, AuthConfig{}, nil, user)

	_, err := fx.uc.CompleteMFA(context.Background(), user.ID, "123456", domain.MethodEmailOTP, meta)
	assert.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestCompleteMFA_InvalidMethod(t *testing.T) {
	fx := newAuthFixture(t, AuthConfig{}, nil)

	_, err := fx.uc.CompleteMFA(context.Background(), "user-1", "x", domain.MFAMethod("voice"), meta)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompleteMFA_ExpiredChallenge(t *testing.T) {
	user := testUser(t, "pw")
	user.EmailOTPEnabled = true
	fx := newAuthFixture(t, AuthConfig{ChallengeTTL: 10 * time.Millisecond}, nil, user)
	ctx := context.Background()

	_, err := fx.uc.Login(ctx, user.Email, "pw", meta)
	require.NoError(t, err)
	code := fx.otps.lastCode()

	time.Sleep(30 * time.Millisecond)

	_, err = fx.uc.CompleteMFA(ctx, user.ID, code, domain.MethodEmailOTP, meta)
	assert.ErrorIs(t, err, ErrInvalidMFACode)
	assert.True(t, fx.auditor.seen("mfa_challenge_expired"))
}

func TestCompleteMFA_BiometricSingleWinner(t *testing.T) {
	user := testUser(t, "pw")
	user.EmailOTPEnabled = true
	fx := newAuthFixture(t, AuthConfig{}, alwaysOracle{outcome: true}, user)
	ctx := context.Background()

	_, err := fx.uc.Login(ctx, user.Email, "pw", meta)
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	var won int32
	var mu sync.Mutex

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if _, err := fx.uc.CompleteMFA(ctx, user.ID, "", domain.MethodBiometric, meta); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won)
}

func TestCompleteMFA_BiometricRejection(t *testing.T) {
	user := testUser(t, "pw")
	user.EmailOTPEnabled = true
	fx := newAuthFixture(t, AuthConfig{}, alwaysOracle{outcome: false}, user)
	ctx := context.Background()

	_, err := fx.uc.Login(ctx, user.Email, "pw", meta)
	require.NoError(t, err)

	_, err = fx.uc.CompleteMFA(ctx, user.ID, "", domain.MethodBiometric, meta)
	assert.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestSetupAndEnableTOTP(t *testing.T) {
	user := testUser(t, "pw")
	fx := newAuthFixture(t, AuthConfig{}, nil, user)
	ctx := context.Background()

	provision, err := fx.uc.SetupTOTP(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, provision.Secret)
	assert.Len(t, provision.BackupCodes, 10)

	// Setup alone must not enable the factor.
	stored, err := fx.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.TOTPEnabled)
	assert.Equal(t, provision.Secret, stored.TOTPSecret)

	err = fx.uc.EnableTOTP(ctx, user.ID, "000000", meta)
	if err == nil {
		t.Skip("forged code collided with the live TOTP window")
	}
	assert.ErrorIs(t, err, ErrInvalidMFACode)

	require.NoError(t, fx.uc.EnableTOTP(ctx, user.ID, totpCodeNow(t, provision.Secret), meta))

	stored, err = fx.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.TOTPEnabled)
	assert.True(t, fx.auditor.seen("totp_enabled"))
}

func TestEnableTOTP_WithoutSetup(t *testing.T) {
	user := testUser(t, "pw")
	fx := newAuthFixture(t, AuthConfig{}, nil, user)

	err := fx.uc.EnableTOTP(context.Background(), user.ID, "123456", meta)
	assert.ErrorIs(t, err, ErrTOTPNotConfigured)
}

func TestDisableTOTP(t *testing.T) {
	provision, err := security.GenerateTOTPSecret("alice@example.com")
	require.NoError(t, err)

	user := testUser(t, "pw")
	user.TOTPEnabled = true
	user.TOTPSecret = provision.Secret
	fx := newAuthFixture(t, AuthConfig{}, nil, user)
	ctx := context.Background()

	require.NoError(t, fx.uc.DisableTOTP(ctx, user.ID, meta))

	stored, err := fx.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.TOTPEnabled)
	assert.Empty(t, stored.TOTPSecret)
	assert.True(t, fx.auditor.seen("totp_disabled"))
}

func TestRequestAndVerifyEmailOTP(t *testing.T) {
	user := testUser(t, "pw")
	fx := newAuthFixture(t, AuthConfig{}, nil, user)
	ctx := context.Background()

	require.NoError(t, fx.uc.RequestEmailOTP(ctx, user.ID, meta))
	code := fx.otps.lastCode()
	require.NotEmpty(t, code)

	assert.True(t, fx.uc.VerifyEmailOTP(ctx, user.ID, code, meta))
	// Consumed; second verification fails.
	assert.False(t, fx.uc.VerifyEmailOTP(ctx, user.ID, code, meta))
}

func TestSetEmailOTP(t *testing.T) {
	user := testUser(t, "pw")
	fx := newAuthFixture(t, AuthConfig{}, nil, user)
	ctx := context.Background()

	require.NoError(t, fx.uc.SetEmailOTP(ctx, user.ID, true, meta))
	stored, err := fx.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailOTPEnabled)
	assert.True(t, fx.auditor.seen("email_otp_enabled"))

	require.NoError(t, fx.uc.SetEmailOTP(ctx, user.ID, false, meta))
	stored, err = fx.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailOTPEnabled)
}

func TestRefresh_RotatesToken(t *testing.T) {
	user := testUser(t, "pw")
	fx := newAuthFixture(t, AuthConfig{}, nil, user)
	ctx := context.Background()

	res, err := fx.uc.Login(ctx, user.Email, "pw", meta)
	require.NoError(t, err)
	oldRefresh := res.Session.RefreshToken

	session, err := fx.uc.Refresh(ctx, oldRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, oldRefresh, session.RefreshToken)

	// The old token is revoked by rotation.
	_, err = fx.uc.Refresh(ctx, oldRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_UnknownToken(t *testing.T) {
	fx := newAuthFixture(t, AuthConfig{}, nil)

	_, err := fx.uc.Refresh(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogout(t *testing.T) {
	user := testUser(t, "pw")
	fx := newAuthFixture(t, AuthConfig{}, nil, user)
	ctx := context.Background()

	res, err := fx.uc.Login(ctx, user.Email, "pw", meta)
	require.NoError(t, err)

	require.NoError(t, fx.uc.Logout(ctx, res.Session.RefreshToken, meta))
	assert.True(t, fx.auditor.seen("user_logout"))

	_, err = fx.uc.Refresh(ctx, res.Session.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Idempotent: logging out an already revoked token is not an error.
	assert.NoError(t, fx.uc.Logout(ctx, res.Session.RefreshToken, meta))
}

func TestChallengeManager_NewLoginSupersedes(t *testing.T) {
	user := testUser(t, "pw")
	user.EmailOTPEnabled = true
	fx := newAuthFixture(t, AuthConfig{}, nil, user)
	ctx := context.Background()

	_, err := fx.uc.Login(ctx, user.Email, "pw", meta)
	require.NoError(t, err)
	firstCode := fx.otps.lastCode()

	_, err = fx.uc.Login(ctx, user.Email, "pw", meta)
	require.NoError(t, err)
	secondCode := fx.otps.lastCode()

	// The reissued code took over; the first one no longer verifies.
	if firstCode != secondCode {
		_, err = fx.uc.CompleteMFA(ctx, user.ID, firstCode, domain.MethodEmailOTP, meta)
		assert.ErrorIs(t, err, ErrInvalidMFACode)
	}

	session, err := fx.uc.CompleteMFA(ctx, user.ID, secondCode, domain.MethodEmailOTP, meta)
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
}
