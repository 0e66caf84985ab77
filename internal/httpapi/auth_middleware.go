package httpapi

import (
	"net/http"
	"strings"

	"github.com/fleetwire/controlplane/internal/auth"
)

// AuthMiddleware implements spec §4.1's entry point: extract the bearer
// credential, authenticate it, attach the resulting Context, or reject with
// the appropriate failure signal before any handler runs.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := bearerToken(r.Header.Get("Authorization"))
		if credential == "" {
			writeDomainError(w, r, auth.ErrUnauthenticated)
			return
		}

		ac, err := s.Authenticator.Authenticate(r.Context(), credential, clientIP(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		ctx := auth.WithContext(r.Context(), ac)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// clientIP extracts the caller's address for the failed-auth brake and the
// DCR IP window. chi's middleware.RealIP has already normalized RemoteAddr
// by the time this runs.
func clientIP(r *http.Request) string {
	return r.RemoteAddr
}
