package core

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// SignupInput is the structured payload of the signup endpoint.
type SignupInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,strongpassword"`
	Name     string `json:"name" validate:"required,min=2"`
}

// FieldIssue is one violated field with its user-facing message.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated field so the caller can render all
// errors at once.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		fields = append(fields, i.Field)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// SignupValidator checks signup input syntactically. Email-uniqueness is a
// persistence concern handled by SignupService, not here.
type SignupValidator struct {
	validate *validator.Validate
}

func NewSignupValidator() *SignupValidator {
	v := validator.New()
	// Passwords need at least one lowercase letter, one uppercase letter,
	// and one digit.
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		var lower, upper, digit bool
		for _, r := range fl.Field().String() {
			switch {
			case unicode.IsLower(r):
				lower = true
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		return lower && upper && digit
	})
	return &SignupValidator{validate: v}
}

// Validate returns the trimmed, normalized input on success, or a
// ValidationError listing every violated field.
func (v *SignupValidator) Validate(in SignupInput) (SignupInput, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)

	err := v.validate.Struct(in)
	if err == nil {
		return in, nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return SignupInput{}, err
	}
	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, FieldIssue{Field: strings.ToLower(fe.Field()), Message: signupMessage(fe)})
	}
	return SignupInput{}, &ValidationError{Issues: issues}
}

func signupMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Email":
		return "Invalid email address"
	case "Password":
		if fe.Tag() == "strongpassword" {
			return "Password must contain at least one uppercase letter, one lowercase letter, and one number"
		}
		return "Password must be at least 8 characters"
	case "Name":
		return "Name must be at least 2 characters"
	}
	return "Invalid value"
}

// SignupService orchestrates account creation: validate, uniqueness
// pre-check, hash, persist. The database unique constraint remains the
// backstop for concurrent signups; its violation maps to the same
// ErrUserExists the pre-check produces.
type SignupService struct {
	users     UserRepository
	roles     RoleRepository
	validator *SignupValidator
}

func NewSignupService(users UserRepository, roles RoleRepository) *SignupService {
	return &SignupService{users: users, roles: roles, validator: NewSignupValidator()}
}

// Signup creates a password-based account with the default role.
func (s *SignupService) Signup(ctx context.Context, in SignupInput) (Identity, error) {
	in, err := s.validator.Validate(in)
	if err != nil {
		return Identity{}, err
	}

	existing, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return Identity{}, fmt.Errorf("find user by email: %w", err)
	}
	if existing != nil {
		return Identity{}, ErrUserExists
	}

	role, err := s.roles.FindByName(ctx, DefaultRoleName)
	if err != nil {
		return Identity{}, fmt.Errorf("find default role: %w", err)
	}
	if role == nil {
		return Identity{}, fmt.Errorf("default role %q is not seeded", DefaultRoleName)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.users.Create(ctx, in.Email, in.Name, &hash, role.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return Identity{}, ErrUserExists
		}
		return Identity{}, fmt.Errorf("create user: %w", err)
	}
	return Identity{ID: id, Email: in.Email, Name: in.Name, Role: role.Name}, nil
}
