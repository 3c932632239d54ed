package core

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("Secret123")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if hash == "Secret123" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Fatalf("unexpected hash format: %s", hash)
	}
	if !VerifyPassword("Secret123", hash) {
		t.Fatalf("correct password did not verify")
	}
	if VerifyPassword("Secret124", hash) {
		t.Fatalf("wrong password verified")
	}
}

func TestHashPasswordSalted(t *testing.T) {
	h1, err := HashPassword("Secret123")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	h2, err := HashPassword("Secret123")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("two hashes of the same password must differ")
	}
	if !VerifyPassword("Secret123", h1) || !VerifyPassword("Secret123", h2) {
		t.Fatalf("both hashes should verify the original password")
	}
}

func TestHashPasswordEmpty(t *testing.T) {
	if _, err := HashPassword(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	if VerifyPassword("whatever", "not-a-bcrypt-hash") {
		t.Fatalf("malformed hash must not verify")
	}
}
