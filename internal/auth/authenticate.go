package auth

import (
	"context"

	"github.com/fleetwire/controlplane/internal/ratelimit"
	"github.com/fleetwire/controlplane/internal/store"
	"github.com/fleetwire/controlplane/internal/tenant"
)

// Authenticator ties scheme detection, the three scheme-specific validators,
// tenant resolution, and the rate-limit brake together into the single
// entry point spec §4.1 describes: "credential in, Context or a failure
// signal out".
type Authenticator struct {
	Store       store.DocStore
	Resolver    tenant.Resolver
	Identity    *IdentityVerifier
	FailedAuth  *ratelimit.IPBrake
}

func NewAuthenticator(ds store.DocStore, resolver tenant.Resolver, identity *IdentityVerifier) *Authenticator {
	return &Authenticator{
		Store:      ds,
		Resolver:   resolver,
		Identity:   identity,
		FailedAuth: ratelimit.DefaultFailedAuthBrake(),
	}
}

// Authenticate implements spec §4.1 end-to-end: cheap scheme detection,
// scheme-specific validation, then tenant canonicalization. callerIP is used
// only to throttle repeated failures; pass "" when unknown (internal calls).
func (a *Authenticator) Authenticate(ctx context.Context, credential, callerIP string) (Context, error) {
	var (
		ac  Context
		err error
	)

	switch DetectScheme(credential) {
	case SchemeAPIKey:
		ac, err = ValidateAPIKey(ctx, a.Store, credential)
	case SchemeOAuthAccess:
		ac, err = ValidateOAuthAccessToken(ctx, a.Store, credential)
	case SchemeIdentityJWT:
		ac, err = ValidateIdentityJWT(a.Identity, credential)
	default:
		err = ErrUnauthenticated
	}

	// The brake only charges on failure (successful auth does not charge,
	// internal ratelimit.IPBrake doc comment) — checked after validation so
	// a legitimate caller's own traffic volume never burns its budget.
	if err != nil {
		if callerIP != "" && a.FailedAuth != nil && !a.FailedAuth.Allow(callerIP) {
			return Context{}, ErrRateLimited
		}
		return Context{}, err
	}

	ac.TenantID = tenant.Resolve(ctx, a.Resolver, ac.TenantID)
	return ac, nil
}
