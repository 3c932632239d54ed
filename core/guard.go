package core

import "strings"

// DecisionKind enumerates guard outcomes.
type DecisionKind int

const (
	DecisionAllow DecisionKind = iota
	DecisionDeny
	DecisionRedirect
)

// Decision is the guard's verdict for one request path.
type Decision struct {
	Kind   DecisionKind
	Target string // redirect target when Kind == DecisionRedirect
}

func Allow() Decision {
	return Decision{Kind: DecisionAllow}
}

func Deny() Decision {
	return Decision{Kind: DecisionDeny}
}

func RedirectTo(target string) Decision {
	return Decision{Kind: DecisionRedirect, Target: target}
}

// identityState says which resolution outcome a rule applies to.
type identityState int

const (
	whenAny identityState = iota
	whenAnonymous
	whenAuthenticated
)

// RouteRule is one entry of the ordered rule table. A rule fires when the
// path matches and the identity condition holds; the first firing rule wins.
// RequireRole rules fire when the identity is absent or lacks the role.
type RouteRule struct {
	Prefix      string
	Exact       bool
	When        identityState
	RequireRole string
	Action      Decision
}

func (r RouteRule) matchPath(path string) bool {
	if r.Exact {
		return path == r.Prefix
	}
	return strings.HasPrefix(path, r.Prefix)
}

// RouteGuard decides access from {path, identity} alone. It performs no I/O
// and holds no mutable state.
type RouteGuard struct {
	rules []RouteRule
}

func NewRouteGuard(rules []RouteRule) *RouteGuard {
	return &RouteGuard{rules: rules}
}

// DefaultGuardRules gates the dashboard behind login and bounces
// already-authenticated users away from the auth entry pages.
func DefaultGuardRules() []RouteRule {
	return []RouteRule{
		{Prefix: "/dashboard", When: whenAnonymous, Action: Deny()},
		{Prefix: "/auth/login", Exact: true, When: whenAuthenticated, Action: RedirectTo("/dashboard")},
		{Prefix: "/auth/signup", Exact: true, When: whenAuthenticated, Action: RedirectTo("/dashboard")},
	}
}

// Decide evaluates the rule table in order. No rule firing means Allow.
func (g *RouteGuard) Decide(path string, ident *Identity) Decision {
	for _, r := range g.rules {
		if !r.matchPath(path) {
			continue
		}
		if r.RequireRole != "" {
			if ident == nil || ident.Role != r.RequireRole {
				return r.Action
			}
			continue
		}
		switch r.When {
		case whenAnonymous:
			if ident == nil {
				return r.Action
			}
		case whenAuthenticated:
			if ident != nil {
				return r.Action
			}
		default:
			return r.Action
		}
	}
	return Allow()
}

// AdminRule expresses a role-gated prefix in the same rule table.
func AdminRule(prefix string) RouteRule {
	return RouteRule{Prefix: prefix, RequireRole: AdminRoleName, Action: Deny()}
}
