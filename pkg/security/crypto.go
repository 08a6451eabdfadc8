package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// --- AES-256-GCM Configuration ---
const (
	keyLength = 32 // 256-bit keys
	ivLength  = 16 // 128-bit IV, drawn fresh per encryption
	tagLength = 16 // 128-bit authentication tag

	// aadContext binds every ciphertext to this application, so payloads
	// cannot be replayed into another system sharing the same key.
	aadContext = "phishguard-scan"

	// minKDFIterations is the floor for PBKDF2; lower requests are bumped.
	minKDFIterations = 100_000
)

// EncryptedPayload is the output of authenticated symmetric encryption.
// All fields are hex-encoded for storage.
type EncryptedPayload struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
}

// Encrypt seals plaintext with AES-256-GCM under the given 32-byte key.
// Every call draws a fresh random IV; IV reuse under the same key must
// never occur, so keys and payloads are only ever paired by this function.
func Encrypt(plaintext string, key []byte) (*EncryptedPayload, error) {
	if len(key) != keyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return nil, fmt.Errorf("gcm mode: %w", err)
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("random iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), []byte(aadContext))
	split := len(sealed) - tagLength

	return &EncryptedPayload{
		Ciphertext: hex.EncodeToString(sealed[:split]),
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(sealed[split:]),
	}, nil
}

// Decrypt opens an EncryptedPayload. Any failure (malformed fields, wrong
// key, flipped bit in ciphertext, IV or tag) collapses into
// ErrAuthenticationFailed so callers cannot distinguish the cause.
func Decrypt(payload *EncryptedPayload, key []byte) (string, error) {
	if len(key) != keyLength {
		return "", ErrInvalidKeyLength
	}

	ciphertext, err := hex.DecodeString(payload.Ciphertext)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	iv, err := hex.DecodeString(payload.IV)
	if err != nil || len(iv) != ivLength {
		return "", ErrAuthenticationFailed
	}
	tag, err := hex.DecodeString(payload.AuthTag)
	if err != nil || len(tag) != tagLength {
		return "", ErrAuthenticationFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return "", ErrAuthenticationFailed
	}

	plaintext, err := aead.Open(nil, iv, append(ciphertext, tag...), []byte(aadContext))
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plaintext), nil
}

// --- HMAC signing ---

// SignHMAC computes a hex-encoded HMAC-SHA256 signature over data.
func SignHMAC(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a signature produced by SignHMAC using a
// constant-time comparison.
func VerifyHMAC(data, signature, secret string) bool {
	expected := SignHMAC(data, secret)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

// --- Signed records ---

// SignedRecord attests a piece of data at a point in time. The signature
// covers the canonical JSON of {data, timestamp}.
type SignedRecord struct {
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

// signablePayload fixes the field order of the signed serialization.
type signablePayload struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// SignRecord serializes data and signs it together with the current
// timestamp.
func SignRecord(data any, secret string) (*SignedRecord, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal signable data: %w", err)
	}

	ts := time.Now().UnixMilli()
	payload, err := json.Marshal(signablePayload{Data: raw, Timestamp: ts})
	if err != nil {
		return nil, fmt.Errorf("marshal signable payload: %w", err)
	}

	return &SignedRecord{
		Data:      raw,
		Signature: SignHMAC(string(payload), secret),
		Timestamp: ts,
	}, nil
}

// VerifySignedRecord re-derives the canonical payload and checks the
// signature in constant time. Altering data, signature or timestamp, or
// verifying with a different secret, makes it return false.
func VerifySignedRecord(record *SignedRecord, secret string) bool {
	payload, err := json.Marshal(signablePayload{Data: record.Data, Timestamp: record.Timestamp})
	if err != nil {
		return false
	}
	return VerifyHMAC(string(payload), record.Signature, secret)
}

// --- Key material ---

// DeriveKey stretches a password into a 32-byte key via PBKDF2-SHA256.
// Iteration counts below 100,000 are raised to that floor.
func DeriveKey(password, salt string, iterations int) []byte {
	if iterations < minKDFIterations {
		iterations = minKDFIterations
	}
	return pbkdf2.Key([]byte(password), []byte(salt), iterations, keyLength, sha256.New)
}

// GenerateEncryptionKey returns a fresh random 32-byte AES key.
func GenerateEncryptionKey() ([]byte, error) {
	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("random key: %w", err)
	}
	return key, nil
}

// GenerateSecureToken returns n random bytes as a hex string.
func GenerateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SHA256Digest hashes data with a domain-separation suffix so digests from
// this service never collide with plain SHA-256 of the same input.
func SHA256Digest(data string) string {
	h := sha256.New()
	h.Write([]byte(data))
	h.Write([]byte(aadContext))
	return hex.EncodeToString(h.Sum(nil))
}
