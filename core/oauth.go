package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

// OAuthProfile is the provider-side identity used to provision or resolve a
// local user.
type OAuthProfile struct {
	ProviderUserID string
	Email          string
	Name           string
}

// OAuthProvider abstracts the external identity collaborator. Exchange turns
// an authorization code into a profile.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (OAuthProfile, error)
}

// GitHubProvider implements OAuthProvider against the GitHub OAuth endpoints.
type GitHubProvider struct {
	conf        *oauth2.Config
	userInfoURL string
}

// NewGitHubProvider returns nil when no client id is configured, which
// disables federated login.
func NewGitHubProvider(cfg Config) *GitHubProvider {
	if cfg.GitHubClientID == "" {
		return nil
	}
	return &GitHubProvider{
		conf: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
			Scopes:       []string{"user:email"},
			Endpoint:     githuboauth.Endpoint,
		},
		userInfoURL: "https://api.github.com/user",
	}
}

func (p *GitHubProvider) Name() string { return "github" }

func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

// Exchange swaps the code for a token and fetches the user profile.
// Any provider or transport failure is wrapped in ErrOAuth.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (OAuthProfile, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return OAuthProfile{}, fmt.Errorf("%w: token exchange: %v", ErrOAuth, err)
	}

	client := p.conf.Client(ctx, tok)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return OAuthProfile{}, fmt.Errorf("%w: fetch profile: %v", ErrOAuth, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return OAuthProfile{}, fmt.Errorf("%w: profile status %d", ErrOAuth, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OAuthProfile{}, fmt.Errorf("%w: read profile: %v", ErrOAuth, err)
	}

	var raw struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return OAuthProfile{}, fmt.Errorf("%w: decode profile: %v", ErrOAuth, err)
	}
	if raw.ID == 0 {
		return OAuthProfile{}, fmt.Errorf("%w: profile missing id", ErrOAuth)
	}

	profile := OAuthProfile{
		ProviderUserID: strconv.FormatInt(raw.ID, 10),
		Email:          raw.Email,
		Name:           raw.Name,
	}
	// GitHub hides the email for private profiles; fall back to the noreply
	// address so the users.email unique constraint still holds.
	if profile.Email == "" {
		profile.Email = raw.Login + "@users.noreply.github.com"
	}
	if profile.Name == "" {
		profile.Name = raw.Login
	}
	return profile, nil
}

// FederatedAuthenticator resolves or provisions a local user for a federated
// login and returns its identity.
type FederatedAuthenticator struct {
	provider OAuthProvider
	users    UserRepository
	roles    RoleRepository
}

func NewFederatedAuthenticator(provider OAuthProvider, users UserRepository, roles RoleRepository) *FederatedAuthenticator {
	return &FederatedAuthenticator{provider: provider, users: users, roles: roles}
}

// Authenticate exchanges the submission code with the provider, then resolves
// the account link. First login provisions a user with no password hash and
// the default role; an existing account with the same email is linked
// instead of duplicated.
func (a *FederatedAuthenticator) Authenticate(ctx context.Context, sub Submission) (Identity, error) {
	if sub.Method != MethodFederated || sub.Code == "" {
		return Identity{}, ErrInvalidInput
	}

	profile, err := a.provider.Exchange(ctx, sub.Code)
	if err != nil {
		return Identity{}, err
	}

	u, err := a.users.FindByFederated(ctx, a.provider.Name(), profile.ProviderUserID)
	if err != nil {
		return Identity{}, fmt.Errorf("find federated user: %w", err)
	}
	if u != nil {
		return Identity{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}, nil
	}

	return a.provision(ctx, profile)
}

func (a *FederatedAuthenticator) provision(ctx context.Context, profile OAuthProfile) (Identity, error) {
	email := NormalizeEmail(profile.Email)

	// An account may already exist from password signup; link it rather
	// than creating a duplicate.
	existing, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		return Identity{}, fmt.Errorf("find user by email: %w", err)
	}
	if existing != nil {
		if err := a.users.LinkFederated(ctx, existing.ID, a.provider.Name(), profile.ProviderUserID); err != nil {
			return Identity{}, fmt.Errorf("link federated identity: %w", err)
		}
		return Identity{ID: existing.ID, Email: existing.Email, Name: existing.Name, Role: existing.Role}, nil
	}

	role, err := a.roles.FindByName(ctx, DefaultRoleName)
	if err != nil {
		return Identity{}, fmt.Errorf("find default role: %w", err)
	}
	if role == nil {
		return Identity{}, fmt.Errorf("default role %q is not seeded", DefaultRoleName)
	}

	id, err := a.users.Create(ctx, email, profile.Name, nil, role.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			// Lost a concurrent provisioning race; the row exists now.
			if existing, ferr := a.users.FindByEmail(ctx, email); ferr == nil && existing != nil {
				return Identity{ID: existing.ID, Email: existing.Email, Name: existing.Name, Role: existing.Role}, nil
			}
		}
		return Identity{}, fmt.Errorf("create federated user: %w", err)
	}
	if err := a.users.LinkFederated(ctx, id, a.provider.Name(), profile.ProviderUserID); err != nil {
		return Identity{}, fmt.Errorf("link federated identity: %w", err)
	}
	return Identity{ID: id, Email: email, Name: profile.Name, Role: role.Name}, nil
}
