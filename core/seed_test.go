package core

import (
	"context"
	"testing"
)

func TestParseSeed(t *testing.T) {
	data := []byte(`
roles:
  - user
  - admin
users:
  - email: demo@example.com
    name: Demo User
    password: Demo1234
    role: user
`)
	seed, err := ParseSeed(data)
	if err != nil {
		t.Fatalf("ParseSeed error: %v", err)
	}
	if len(seed.Roles) != 2 || len(seed.Users) != 1 {
		t.Fatalf("unexpected seed: %+v", seed)
	}
	if seed.Users[0].Email != "demo@example.com" {
		t.Fatalf("unexpected user: %+v", seed.Users[0])
	}
}

func TestParseSeedDefaultsRoles(t *testing.T) {
	seed, err := ParseSeed([]byte(`users: []`))
	if err != nil {
		t.Fatalf("ParseSeed error: %v", err)
	}
	if len(seed.Roles) != 2 || seed.Roles[0] != DefaultRoleName || seed.Roles[1] != AdminRoleName {
		t.Fatalf("expected default roles, got %v", seed.Roles)
	}
}

func TestParseSeedRejectsIncompleteUser(t *testing.T) {
	if _, err := ParseSeed([]byte("users:\n  - email: a@b.com\n")); err == nil {
		t.Fatalf("expected error for user without password")
	}
}

func TestApplySeed(t *testing.T) {
	users := newFakeUserRepo()
	roles := newFakeRoleRepo()
	users.add("existing@example.com", "Existing", mustHash("Keep1234"), userRoleID, DefaultRoleName)
	before := *users.users[1].PasswordHash

	seed := SeedFile{
		Roles: []string{DefaultRoleName, AdminRoleName},
		Users: []SeedUser{
			{Email: "Existing@example.com", Name: "Changed", Password: "New12345"},
			{Email: "fresh@example.com", Name: "Fresh", Password: "Fresh123", Role: AdminRoleName},
		},
	}
	if err := ApplySeed(context.Background(), users, roles, seed); err != nil {
		t.Fatalf("ApplySeed error: %v", err)
	}

	// Existing users are untouched.
	existing, _ := users.FindByEmail(context.Background(), "existing@example.com")
	if existing.Name != "Existing" || *existing.PasswordHash != before {
		t.Fatalf("existing user was modified: %+v", existing)
	}

	fresh, _ := users.FindByEmail(context.Background(), "fresh@example.com")
	if fresh == nil {
		t.Fatalf("seeded user missing")
	}
	if fresh.PasswordHash == nil || !VerifyPassword("Fresh123", *fresh.PasswordHash) {
		t.Fatalf("seeded password not hashed correctly")
	}
	if fresh.RoleID != adminRoleID {
		t.Fatalf("seeded role mismatch: %+v", fresh)
	}
}

func TestApplySeedUnknownRole(t *testing.T) {
	seed := SeedFile{
		Roles: []string{DefaultRoleName},
		Users: []SeedUser{{Email: "x@example.com", Password: "Valid123", Role: "superuser"}},
	}
	err := ApplySeed(context.Background(), newFakeUserRepo(), newFakeRoleRepo(), seed)
	if err == nil {
		t.Fatalf("expected error for unknown role reference")
	}
}
