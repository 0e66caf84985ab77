package httpapi

import (
	"net/http"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/session"
)

// ComplianceMiddleware enforces spec §4.6's "Terminal DEREZED blocks every
// subsequent call with session_terminated". Only applies when the caller
// supplied an X-Session-ID; requests without one (most bootstrap/OAuth
// endpoints) pass through untouched. Read failures fail open per §4.6.
func (s *Server) ComplianceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := GetSessionID(r.Context())
		if sessionID == "" {
			next.ServeHTTP(w, r)
			return
		}
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := s.Sessions.Get(r.Context(), ac.TenantID, sessionID)
		if err != nil {
			// session.Store.Get already fails open and logs; nothing further
			// to enforce here.
			next.ServeHTTP(w, r)
			return
		}
		if err := session.RequireNotTerminated(sess.Compliance); err != nil {
			writeDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
