package core

import (
	"context"
	"errors"
	"testing"
)

func TestCredentialVerifierSuccess(t *testing.T) {
	users := newFakeUserRepo()
	users.add("alice@example.com", "Alice", mustHash("Valid123"), userRoleID, DefaultRoleName)
	v := NewCredentialVerifier(users)

	ident, err := v.Authenticate(context.Background(), Submission{
		Method:   MethodPassword,
		Email:    "alice@example.com",
		Password: "Valid123",
	})
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if ident.Email != "alice@example.com" || ident.Role != DefaultRoleName {
		t.Fatalf("unexpected identity: %+v", ident)
	}
}

func TestCredentialVerifierNormalizesEmail(t *testing.T) {
	users := newFakeUserRepo()
	users.add("alice@example.com", "Alice", mustHash("Valid123"), userRoleID, DefaultRoleName)
	v := NewCredentialVerifier(users)

	ident, err := v.Authenticate(context.Background(), Submission{
		Method:   MethodPassword,
		Email:    "  Alice@Example.COM ",
		Password: "Valid123",
	})
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if ident.ID == 0 {
		t.Fatalf("expected resolved identity")
	}
}

// Unknown email, federated-only account, and wrong password must be
// indistinguishable to the caller.
func TestCredentialVerifierFailuresIndistinguishable(t *testing.T) {
	users := newFakeUserRepo()
	users.add("alice@example.com", "Alice", mustHash("Valid123"), userRoleID, DefaultRoleName)
	users.add("github-only@example.com", "Bob", nil, userRoleID, DefaultRoleName)
	v := NewCredentialVerifier(users)

	cases := []struct {
		name string
		sub  Submission
	}{
		{"unknown email", Submission{Method: MethodPassword, Email: "nobody@example.com", Password: "Valid123"}},
		{"wrong password", Submission{Method: MethodPassword, Email: "alice@example.com", Password: "Wrong123"}},
		{"no password hash", Submission{Method: MethodPassword, Email: "github-only@example.com", Password: "Valid123"}},
		{"empty password", Submission{Method: MethodPassword, Email: "alice@example.com", Password: ""}},
	}
	for _, tc := range cases {
		_, err := v.Authenticate(context.Background(), tc.sub)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", tc.name, err)
		}
	}
}

func TestCredentialVerifierRepositoryFault(t *testing.T) {
	users := newFakeUserRepo()
	users.findErr = errors.New("connection refused")
	v := NewCredentialVerifier(users)

	_, err := v.Authenticate(context.Background(), Submission{
		Method:   MethodPassword,
		Email:    "alice@example.com",
		Password: "Valid123",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	// A persistence fault is an internal failure, not a credential failure.
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("repository fault must not map to ErrInvalidCredentials: %v", err)
	}
}

func TestCredentialVerifierRejectsWrongMethod(t *testing.T) {
	v := NewCredentialVerifier(newFakeUserRepo())
	_, err := v.Authenticate(context.Background(), Submission{Method: MethodFederated, Code: "abc"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
