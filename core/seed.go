package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile describes roles and optional users to provision.
//
//	roles:
//	  - user
//	  - admin
//	users:
//	  - email: demo@example.com
//	    name: Demo User
//	    password: Demo1234
//	    role: user
type SeedFile struct {
	Roles []string   `yaml:"roles"`
	Users []SeedUser `yaml:"users"`
}

// SeedUser is one user entry; the plaintext password is hashed before
// persisting and never stored.
type SeedUser struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SeedFile{}, fmt.Errorf("%w: %s", ErrSeedFileMissing, path)
		}
		return SeedFile{}, err
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates seed YAML.
func ParseSeed(data []byte) (SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return SeedFile{}, fmt.Errorf("invalid seed yaml: %w", err)
	}
	if len(seed.Roles) == 0 {
		seed.Roles = []string{DefaultRoleName, AdminRoleName}
	}
	for i, u := range seed.Users {
		if u.Email == "" || u.Password == "" {
			return SeedFile{}, fmt.Errorf("seed user %d: email and password are required", i)
		}
	}
	return seed, nil
}

// ApplySeed upserts roles and creates listed users that do not exist yet.
// Existing users are left untouched.
func ApplySeed(ctx context.Context, users UserRepository, roles RoleRepository, seed SeedFile) error {
	roleIDs := map[string]int64{}
	for _, name := range seed.Roles {
		id, err := roles.Ensure(ctx, name)
		if err != nil {
			return fmt.Errorf("ensure role %q: %w", name, err)
		}
		roleIDs[name] = id
	}

	for _, su := range seed.Users {
		email := NormalizeEmail(su.Email)
		existing, err := users.FindByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("find user %s: %w", email, err)
		}
		if existing != nil {
			continue
		}

		roleName := su.Role
		if roleName == "" {
			roleName = DefaultRoleName
		}
		roleID, ok := roleIDs[roleName]
		if !ok {
			return fmt.Errorf("user %s references unknown role %q", email, roleName)
		}

		name := su.Name
		if name == "" {
			name = email
		}
		hash, err := HashPassword(su.Password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", email, err)
		}
		if _, err := users.Create(ctx, email, name, &hash, roleID); err != nil {
			if IsUniqueViolation(err) {
				// raced another seeder; fine
				continue
			}
			return fmt.Errorf("create user %s: %w", email, err)
		}
		log.Printf("seeded user %s (role=%s)", email, roleName)
	}

	return nil
}

// ErrSeedFileMissing distinguishes "nothing to seed" from a broken file.
var ErrSeedFileMissing = errors.New("seed file not found")
