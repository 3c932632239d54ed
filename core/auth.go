package core

import (
	"context"
	"errors"
	"time"
)

// Identity is the resolved principal for the current request.
// A nil *Identity means the request is anonymous.
type Identity struct {
	ID    int64
	Email string
	Name  string
	Role  string
}

// Method tags how a submission authenticates.
type Method string

const (
	MethodPassword  Method = "password"
	MethodFederated Method = "federated"
)

// Submission is the transient credential presented for one authentication
// attempt. It is never persisted. Email/Password are used by the password
// method, Provider/Code by the federated method.
type Submission struct {
	Method   Method
	Email    string
	Password string
	Provider string
	Code     string
}

// Authenticator turns a submission into an identity or a failure.
// Password and federated login both implement this.
type Authenticator interface {
	Authenticate(ctx context.Context, sub Submission) (Identity, error)
}

var (
	// ErrInvalidCredentials is returned when email/password is wrong.
	// Unknown email and wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when signup hits an already-registered email.
	ErrUserExists = errors.New("user already exists")
	// ErrOAuth is returned when the federated provider or its transport fails.
	ErrOAuth = errors.New("oauth provider error")
	// ErrInvalidInput is returned for malformed input to a core operation.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	// DefaultRoleName is assigned on self-signup and first federated login.
	DefaultRoleName = "user"
	// AdminRoleName gates the admin API surface.
	AdminRoleName = "admin"
)

// SessionRecord is the server-held session state bound to a token.
type SessionRecord struct {
	UserID        int64     `json:"user_id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	Method        Method    `json:"method"`
	EstablishedAt time.Time `json:"established_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Identity projects the record back to the request-facing identity.
func (r SessionRecord) Identity() Identity {
	return Identity{ID: r.UserID, Email: r.Email, Name: r.Name, Role: r.Role}
}
