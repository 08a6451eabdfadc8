package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

const rsaKeyBits = 2048

// HybridPayload combines an RSA-wrapped symmetric key with the
// AEAD-encrypted data it protects. RSA alone cannot carry arbitrarily
// large payloads, so the asymmetric operation is bounded to the 32-byte
// key while the bulk data goes through AES-256-GCM.
type HybridPayload struct {
	EncryptedKey  string            `json:"encrypted_key"` // base64 RSA-OAEP ciphertext
	EncryptedData *EncryptedPayload `json:"encrypted_data"`
}

// GenerateKeyPair creates a 2048-bit RSA key pair, PEM-encoded
// (PKIX public, PKCS8 private).
func GenerateKeyPair() (publicPEM, privatePEM string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return "", "", fmt.Errorf("generate rsa key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("marshal public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}

	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	return publicPEM, privatePEM, nil
}

// HybridEncrypt protects data for the holder of the private half of
// publicPEM: a fresh AES key encrypts the data, and RSA-OAEP wraps the key.
func HybridEncrypt(data, publicPEM string) (*HybridPayload, error) {
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}

	aesKey, err := GenerateEncryptionKey()
	if err != nil {
		return nil, err
	}

	encrypted, err := Encrypt(data, aesKey)
	if err != nil {
		return nil, err
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap key: %w", err)
	}

	return &HybridPayload{
		EncryptedKey:  base64.StdEncoding.EncodeToString(wrapped),
		EncryptedData: encrypted,
	}, nil
}

// HybridDecrypt is the inverse of HybridEncrypt. Either stage failing,
// the RSA unwrap or the AEAD open, yields ErrAuthenticationFailed.
func HybridDecrypt(payload *HybridPayload, privatePEM string) (string, error) {
	priv, err := parsePrivateKey(privatePEM)
	if err != nil {
		return "", err
	}

	wrapped, err := base64.StdEncoding.DecodeString(payload.EncryptedKey)
	if err != nil {
		return "", ErrAuthenticationFailed
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	if len(aesKey) != keyLength {
		return "", ErrAuthenticationFailed
	}

	return Decrypt(payload.EncryptedData, aesKey)
}

// WrapKey RSA-OAEP encrypts raw key material for the given public key.
// Used to seal a scan's symmetric key for its intended reader.
func WrapKey(key []byte, publicPEM string) (string, error) {
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return "", err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", fmt.Errorf("wrap key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey reverses WrapKey.
func UnwrapKey(wrappedB64, privatePEM string) ([]byte, error) {
	priv, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return key, nil
}

func parsePublicKey(publicPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return nil, errors.New("invalid public key PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}

func parsePrivateKey(privatePEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return nil, errors.New("invalid private key PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return priv, nil
}
