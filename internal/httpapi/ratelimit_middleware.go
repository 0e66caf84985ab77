package httpapi

import (
	"net/http"
	"strconv"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/ratelimit"
)

// RateLimitMiddleware enforces spec §4.2's per (tenant, key-hash, tool)
// sliding window, using the route's tool name as the third key component.
// Must run after AuthMiddleware so an authenticated Context is present.
func (s *Server) RateLimitMiddleware(tool string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				writeDomainError(w, r, auth.ErrUnauthenticated)
				return
			}

			tier := ratelimit.Tier(ac.RateTier)
			if tier == "" {
				tier = ratelimit.TierDefault
			}

			decision, err := s.Limiter.Allow(r.Context(), ac.TenantID, ac.KeyHash, tool, tier)
			if err != nil {
				writeDomainError(w, r, err)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
				writeAPIError(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
