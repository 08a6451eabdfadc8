package security

import "errors"

var (
	// ErrInvalidKeyLength is returned when a symmetric key is not exactly
	// 32 bytes (AES-256).
	ErrInvalidKeyLength = errors.New("invalid key length: expected 32 bytes")

	// ErrAuthenticationFailed covers every decryption or verification
	// failure. Callers must not learn whether the cause was tampering,
	// a wrong key, or a malformed payload.
	ErrAuthenticationFailed = errors.New("authentication failed")
)
