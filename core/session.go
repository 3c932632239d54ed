package core

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// SessionManager owns the session lifecycle: it issues opaque tokens bound
// to an identity, resolves incoming tokens back to identities, and
// invalidates them on sign-out.
type SessionManager struct {
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

func NewSessionManager(store SessionStore, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 5 * time.Hour
	}
	return &SessionManager{store: store, ttl: ttl, now: time.Now}
}

// Establish creates a new session bound to identity and returns its token.
// Every call issues a fresh token; expired or signed-out tokens are never
// resurrected.
func (m *SessionManager) Establish(ctx context.Context, ident Identity, method Method) (string, error) {
	if ident.ID == 0 {
		return "", ErrInvalidInput
	}
	token := uuid.NewString()
	now := m.now()
	rec := SessionRecord{
		UserID:        ident.ID,
		Email:         ident.Email,
		Name:          ident.Name,
		Role:          ident.Role,
		Method:        method,
		EstablishedAt: now,
		ExpiresAt:     now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, token, rec, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve maps session evidence to an identity, or nil for anonymous.
// Missing, malformed, expired, and invalidated tokens all degrade to
// anonymous; store failures are logged and also degrade rather than error.
func (m *SessionManager) Resolve(ctx context.Context, token string) *Identity {
	if token == "" {
		return nil
	}
	rec, err := m.store.Fetch(ctx, token)
	if err != nil {
		log.Printf("session resolve failed: %v", err)
		return nil
	}
	if rec == nil {
		return nil
	}
	// TTL owns expiry; the timestamp check only guards a store without TTL support.
	if !rec.ExpiresAt.IsZero() && m.now().After(rec.ExpiresAt) {
		return nil
	}
	ident := rec.Identity()
	return &ident
}

// ResolveRecord returns the full session record for an active token, or nil.
func (m *SessionManager) ResolveRecord(ctx context.Context, token string) *SessionRecord {
	if token == "" {
		return nil
	}
	rec, err := m.store.Fetch(ctx, token)
	if err != nil || rec == nil {
		return nil
	}
	if !rec.ExpiresAt.IsZero() && m.now().After(rec.ExpiresAt) {
		return nil
	}
	return rec
}

// SignOut invalidates the session. Signing out an already-invalid or
// unknown token is not an error.
func (m *SessionManager) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Invalidate(ctx, token)
}
