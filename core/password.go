package core

import "golang.org/x/crypto/bcrypt"

// bcryptCost is fixed; changing it only affects newly hashed passwords.
const bcryptCost = 10

// HashPassword returns a salted bcrypt hash of plaintext.
// Empty input is rejected with ErrInvalidInput.
func HashPassword(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches the stored hash.
// It never returns an error: a malformed hash simply verifies false.
func VerifyPassword(plaintext, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}
