package security

import "golang.org/x/crypto/bcrypt"

// bcryptCost 12 keeps hashing slow enough to resist offline brute force
// while staying tolerable on login.
const bcryptCost = 12

// HashPassword generates a salted bcrypt hash from a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks if a hash matches a plaintext password.
// bcrypt's comparison is constant-time internally.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
