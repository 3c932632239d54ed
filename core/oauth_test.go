package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

type fakeProvider struct {
	profile OAuthProfile
	err     error
}

func (p *fakeProvider) Name() string {
	return "github"
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://example.com/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (OAuthProfile, error) {
	if p.err != nil {
		return OAuthProfile{}, p.err
	}
	return p.profile, nil
}

func TestFederatedFirstLoginProvisionsUser(t *testing.T) {
	users := newFakeUserRepo()
	provider := &fakeProvider{profile: OAuthProfile{ProviderUserID: "99", Email: "Octo@Example.com", Name: "Octo"}}
	a := NewFederatedAuthenticator(provider, users, newFakeRoleRepo())

	ident, err := a.Authenticate(context.Background(), Submission{Method: MethodFederated, Provider: "github", Code: "code"})
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if ident.Email != "octo@example.com" || ident.Role != DefaultRoleName {
		t.Fatalf("unexpected identity: %+v", ident)
	}

	stored, _ := users.FindByEmail(context.Background(), "octo@example.com")
	if stored == nil {
		t.Fatalf("user not provisioned")
	}
	if stored.PasswordHash != nil {
		t.Fatalf("federated user must have no password hash")
	}
	linked, _ := users.FindByFederated(context.Background(), "github", "99")
	if linked == nil || linked.ID != stored.ID {
		t.Fatalf("federated identity not linked")
	}
}

func TestFederatedRepeatLoginResolvesSameUser(t *testing.T) {
	users := newFakeUserRepo()
	provider := &fakeProvider{profile: OAuthProfile{ProviderUserID: "99", Email: "octo@example.com", Name: "Octo"}}
	a := NewFederatedAuthenticator(provider, users, newFakeRoleRepo())

	first, err := a.Authenticate(context.Background(), Submission{Method: MethodFederated, Code: "code"})
	if err != nil {
		t.Fatalf("first Authenticate error: %v", err)
	}
	second, err := a.Authenticate(context.Background(), Submission{Method: MethodFederated, Code: "code"})
	if err != nil {
		t.Fatalf("second Authenticate error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("repeat login created a new user: %d vs %d", first.ID, second.ID)
	}
	if len(users.users) != 1 {
		t.Fatalf("expected one user, got %d", len(users.users))
	}
}

func TestFederatedLinksExistingEmailAccount(t *testing.T) {
	users := newFakeUserRepo()
	existing := users.add("octo@example.com", "Octo", mustHash("Valid123"), userRoleID, DefaultRoleName)
	provider := &fakeProvider{profile: OAuthProfile{ProviderUserID: "99", Email: "octo@example.com", Name: "Octo"}}
	a := NewFederatedAuthenticator(provider, users, newFakeRoleRepo())

	ident, err := a.Authenticate(context.Background(), Submission{Method: MethodFederated, Code: "code"})
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if ident.ID != existing.ID {
		t.Fatalf("expected link to existing account, got %+v", ident)
	}
	if len(users.users) != 1 {
		t.Fatalf("account was duplicated")
	}
}

func TestFederatedProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("%w: token exchange refused", ErrOAuth)}
	a := NewFederatedAuthenticator(provider, newFakeUserRepo(), newFakeRoleRepo())

	_, err := a.Authenticate(context.Background(), Submission{Method: MethodFederated, Code: "code"})
	if !errors.Is(err, ErrOAuth) {
		t.Fatalf("expected ErrOAuth, got %v", err)
	}
}

func TestFederatedRejectsEmptyCode(t *testing.T) {
	a := NewFederatedAuthenticator(&fakeProvider{}, newFakeUserRepo(), newFakeRoleRepo())
	if _, err := a.Authenticate(context.Background(), Submission{Method: MethodFederated}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
