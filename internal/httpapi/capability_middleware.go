package httpapi

import (
	"net/http"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/capability"
)

// RequireCapability enforces spec §4.3's gate before a handler runs: the
// granted set must contain t.RequiredCapability (or the wildcard), OAuth
// contexts must carry a covering scope, and admin-only tools require an
// allow-listed program class.
func (s *Server) RequireCapability(t capability.Tool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				writeDomainError(w, r, auth.ErrUnauthenticated)
				return
			}
			if err := capability.Check(ac.Grant(), t); err != nil {
				writeDomainError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
