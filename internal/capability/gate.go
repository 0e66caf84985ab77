// Package capability implements the capability gate (spec §4.3): each tool
// declares a required capability string, and a request is rejected before
// its handler runs unless the authenticated context's granted set contains
// that capability or the wildcard "*". OAuth contexts are additionally
// checked against a coarser scope set.
package capability

import (
	"errors"
)

// Scope names the OAuth scope tiers spec §4.3 lists.
type Scope string

const (
	ScopeFull  Scope = "mcp:full"
	ScopeRead  Scope = "mcp:read"
	ScopeWrite Scope = "mcp:write"
	ScopeAdmin Scope = "mcp:admin"
)

// Wildcard grants every capability, matching the API-key "*" convention.
const Wildcard = "*"

// ErrMissingCapability is returned when the granted set lacks the tool's
// required capability.
var ErrMissingCapability = errors.New("capability: required capability not granted")

// ErrScopeInsufficient is returned when an OAuth context's granted scopes
// don't cover the tool.
var ErrScopeInsufficient = errors.New("capability: oauth scope does not cover tool")

// ErrAdminProgramClass is returned when an admin-guarded tool is invoked by
// a program outside the allow-listed classes.
var ErrAdminProgramClass = errors.New("capability: program class not allowed for admin tool")

// AdminProgramClasses is the allow-list spec §4.3 names for administrative
// tools, independent of capability/scope checks.
var AdminProgramClasses = map[string]bool{
	"orchestrator": true,
	"admin":        true,
	"legacy":       true,
	"mobile":       true,
}

// Grant is the subset of an authenticated request context the gate needs.
type Grant struct {
	Capabilities map[string]bool
	OAuthScopes  map[Scope]bool // nil/empty when the credential isn't OAuth
	ProgramClass string
}

// HasCapability reports whether g grants required, honoring the wildcard.
func (g Grant) HasCapability(required string) bool {
	if g.Capabilities[Wildcard] {
		return true
	}
	return g.Capabilities[required]
}

// scopeCoverage says which scopes satisfy which required tool-scope tier.
// mcp:full covers everything; mcp:admin covers admin+write+read by
// convention mirroring common OAuth scope hierarchies (broadest grant first).
func (g Grant) hasScope(required Scope) bool {
	if required == "" {
		return true
	}
	if g.OAuthScopes == nil {
		// Not an OAuth context — scope enforcement doesn't apply.
		return true
	}
	if g.OAuthScopes[ScopeFull] {
		return true
	}
	switch required {
	case ScopeRead:
		return g.OAuthScopes[ScopeRead] || g.OAuthScopes[ScopeWrite] || g.OAuthScopes[ScopeAdmin]
	case ScopeWrite:
		return g.OAuthScopes[ScopeWrite] || g.OAuthScopes[ScopeAdmin]
	case ScopeAdmin:
		return g.OAuthScopes[ScopeAdmin]
	default:
		return g.OAuthScopes[required]
	}
}

// Tool describes one gated operation (spec §4.3/§4.4 "each tool declares a
// required capability string").
type Tool struct {
	Name                string
	RequiredCapability  string
	RequiredScope       Scope
	AdminOnly           bool
}

// Check enforces the gate for one tool invocation.
func Check(g Grant, t Tool) error {
	if !g.HasCapability(t.RequiredCapability) {
		return ErrMissingCapability
	}
	if !g.hasScope(t.RequiredScope) {
		return ErrScopeInsufficient
	}
	if t.AdminOnly && !AdminProgramClasses[g.ProgramClass] {
		return ErrAdminProgramClass
	}
	return nil
}
