package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpIssuer = "PhishGuard"
	totpPeriod = 30 // seconds per time step
	totpSkew   = 1  // accept the current step and one step either side

	backupCodeCount = 10
	backupCodeBytes = 4
)

// TOTPProvision is everything a client needs to bind an authenticator app.
type TOTPProvision struct {
	Secret      string   `json:"secret"`      // Base32, no padding
	URI         string   `json:"otpauth_uri"` // for QR rendering
	BackupCodes []string `json:"backup_codes"`
}

// GenerateTOTPSecret provisions a new TOTP secret for the given account
// label plus a set of one-time backup codes.
func GenerateTOTPSecret(email string) (*TOTPProvision, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: email,
		SecretSize:  20,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	codes := make([]string, backupCodeCount)
	for i := range codes {
		b := make([]byte, backupCodeBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = strings.ToUpper(hex.EncodeToString(b))
	}

	return &TOTPProvision{
		Secret:      key.Secret(),
		URI:         key.URL(),
		BackupCodes: codes,
	}, nil
}

// VerifyTOTPCode checks a 6-digit code against the secret, tolerating
// one 30-second step of clock drift in either direction. A wider window
// would increase replay risk.
func VerifyTOTPCode(code, secret string) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
