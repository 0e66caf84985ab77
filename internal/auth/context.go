// Package auth implements credential detection, scheme-specific validation,
// and tenant resolution (spec §4.1). A single Authenticate entry point turns
// a bearer credential into a Context or one of the three failure signals
// (Unauthenticated, Unauthorized, RateLimited) spec §4.1 names.
package auth

import (
	"context"
	"errors"

	"github.com/fleetwire/controlplane/internal/capability"
)

// Scheme identifies which credential family a bearer string belongs to.
type Scheme string

const (
	SchemeAPIKey      Scheme = "apikey"
	SchemeOAuthAccess Scheme = "oauth_access"
	SchemeIdentityJWT Scheme = "identity_jwt"
	SchemeUnknown     Scheme = "unknown"
)

const (
	prefixAPIKey      = "cb_"
	prefixOAuthAccess = "cbo_"
	prefixJWT         = "eyJ"
)

// DetectScheme performs the cheap prefix test spec §4.1 requires before any
// store lookup: "Scheme detection (cheap prefix test, no store lookup)".
func DetectScheme(credential string) Scheme {
	switch {
	case len(credential) >= len(prefixJWT) && credential[:len(prefixJWT)] == prefixJWT:
		return SchemeIdentityJWT
	case len(credential) >= len(prefixOAuthAccess) && credential[:len(prefixOAuthAccess)] == prefixOAuthAccess:
		return SchemeOAuthAccess
	case len(credential) >= len(prefixAPIKey) && credential[:len(prefixAPIKey)] == prefixAPIKey:
		return SchemeAPIKey
	default:
		return SchemeUnknown
	}
}

// Context is the authenticated request context spec §4.1 describes:
// "{tenant, program, capabilities, rate-limit tier, optional oauth scopes,
// derived payload key}".
type Context struct {
	TenantID     string
	ProgramID    string
	KeyHash      string // empty for identity-JWT credentials
	Capabilities map[string]bool
	OAuthScopes  map[capability.Scope]bool
	RateTier     string
	PayloadKey   []byte
}

// Grant projects Context down to the fields the capability gate needs.
func (c Context) Grant() capability.Grant {
	return capability.Grant{
		Capabilities: c.Capabilities,
		OAuthScopes:  c.OAuthScopes,
		ProgramClass: c.ProgramID,
	}
}

type ctxKey string

const authCtxKey ctxKey = "auth.context"

// WithContext attaches an authenticated Context to ctx.
func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, authCtxKey, ac)
}

// FromContext retrieves the authenticated Context, if any.
func FromContext(ctx context.Context) (Context, bool) {
	ac, ok := ctx.Value(authCtxKey).(Context)
	return ac, ok
}

// Failure signals (spec §4.1 "Failure signals").
var (
	ErrUnauthenticated = errors.New("auth: no or unknown credential")
	ErrUnauthorized    = errors.New("auth: validator rejected credential")
	ErrRateLimited     = errors.New("auth: rate limited")
)

// ProgramCapabilities is the program→capabilities default table spec §4.1
// references for API keys / identity JWTs that omit explicit capabilities.
var ProgramCapabilities = map[string]map[string]bool{
	"orchestrator": {capability.Wildcard: true},
	"admin":        {capability.Wildcard: true},
	"builder":      {"dispatch.read": true, "dispatch.claim": true, "relay.read": true, "relay.write": true},
	"legacy":       {"dispatch.read": true, "relay.read": true},
	"mobile":       {"dispatch.read": true, "relay.read": true, "session.write": true},
	"oauth":        {}, // OAuth contexts are gated purely by scope, not a capability table
}

func defaultCapabilities(programID string) map[string]bool {
	if caps, ok := ProgramCapabilities[programID]; ok {
		out := make(map[string]bool, len(caps))
		for k, v := range caps {
			out[k] = v
		}
		return out
	}
	return map[string]bool{}
}
