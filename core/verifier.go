package core

import (
	"context"
	"fmt"
	"strings"
)

// CredentialVerifier authenticates email/password submissions against the
// user store.
type CredentialVerifier struct {
	users UserRepository
}

func NewCredentialVerifier(users UserRepository) *CredentialVerifier {
	return &CredentialVerifier{users: users}
}

// Authenticate checks a password submission. Unknown email, federated-only
// account (no stored hash), and wrong password all collapse into
// ErrInvalidCredentials so callers cannot enumerate accounts. Persistence
// faults are surfaced separately as internal errors.
func (v *CredentialVerifier) Authenticate(ctx context.Context, sub Submission) (Identity, error) {
	if sub.Method != MethodPassword {
		return Identity{}, ErrInvalidInput
	}
	email := NormalizeEmail(sub.Email)
	if email == "" || sub.Password == "" {
		return Identity{}, ErrInvalidCredentials
	}

	u, err := v.users.FindByEmail(ctx, email)
	if err != nil {
		return Identity{}, fmt.Errorf("find user by email: %w", err)
	}
	if u == nil || u.PasswordHash == nil {
		return Identity{}, ErrInvalidCredentials
	}
	if !VerifyPassword(sub.Password, *u.PasswordHash) {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}, nil
}

// NormalizeEmail lowercases and trims an email for exact-match lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
