package httpapi

import (
	"github.com/fleetwire/controlplane/internal/audit"
	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/dispatch"
	"github.com/fleetwire/controlplane/internal/ratelimit"
	"github.com/fleetwire/controlplane/internal/relay"
	"github.com/fleetwire/controlplane/internal/session"
	"github.com/fleetwire/controlplane/internal/sideeffect"
	"github.com/fleetwire/controlplane/internal/store"
)

// Server holds the dependencies every handler needs, mirroring the
// teacher's httpapi.Server (internal/httpapi/router.go) but wired to this
// control plane's subsystems instead of the sync services.
type Server struct {
	Docs store.DocStore

	Authenticator *auth.Authenticator
	Identity      *auth.IdentityVerifier // verifies the token returned by the consent redirect (spec §4.7 GET /authorize/callback)
	Limiter       ratelimit.Limiter
	DCRBrake      *ratelimit.IPBrake

	Dispatch *dispatch.Store
	Breakers *dispatch.BreakerManager
	Relay    *relay.Store
	Sessions *session.Store

	AuditLog *audit.Log
	Ledger   *audit.Ledger
	Tracer   *audit.Tracer

	SideEffects *sideeffect.Queue

	OAuthIssuer string
}
