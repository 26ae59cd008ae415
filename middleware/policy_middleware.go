package middleware

import "strings"

// Access is the requirement a route places on the caller
type Access int

const (
	// AccessAuthenticated requires a valid session token
	AccessAuthenticated Access = iota
	// AccessPublic admits every request
	AccessPublic
	// AccessAdmin requires a valid session token with the ADMIN role
	AccessAdmin
)

func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessAdmin:
		return "admin"
	default:
		return "authenticated"
	}
}

// Rule maps a path prefix to an access requirement. A prefix ending in "/"
// also matches the path without the trailing slash.
type Rule struct {
	Prefix string
	Access Access
}

// Matches reports whether path falls under the rule
func (r Rule) Matches(path string) bool {
	if strings.HasSuffix(r.Prefix, "/") && path == strings.TrimSuffix(r.Prefix, "/") {
		return true
	}
	return strings.HasPrefix(path, r.Prefix)
}

// Policy is an ordered rule list; the first matching rule wins and paths
// matching no rule fall back to Default.
type Policy struct {
	Rules   []Rule
	Default Access
}

// AccessFor returns the access requirement for path
func (p Policy) AccessFor(path string) Access {
	for _, rule := range p.Rules {
		if rule.Matches(path) {
			return rule.Access
		}
	}
	return p.Default
}

// DefaultPolicy is the route policy of the auth server
func DefaultPolicy() Policy {
	return Policy{
		Rules: []Rule{
			{Prefix: "/api/auth/", Access: AccessPublic},
			{Prefix: "/oauth2/", Access: AccessPublic},
			{Prefix: "/login/oauth2/", Access: AccessPublic},
			{Prefix: "/v3/api-docs", Access: AccessPublic},
			{Prefix: "/swagger-ui", Access: AccessPublic},
			{Prefix: "/healthz", Access: AccessPublic},
			{Prefix: "/readyz", Access: AccessPublic},
			{Prefix: "/metrics", Access: AccessPublic},
			{Prefix: "/api/admin/", Access: AccessAdmin},
		},
		Default: AccessAuthenticated,
	}
}
