package httpapi

import (
	"errors"
	"net/http"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/capability"
	"github.com/fleetwire/controlplane/internal/dispatch"
	"github.com/fleetwire/controlplane/internal/oauth"
	"github.com/fleetwire/controlplane/internal/relay"
	"github.com/fleetwire/controlplane/internal/session"
	"github.com/fleetwire/controlplane/internal/store"
)

// writeDomainError maps a domain error to the HTTP code spec §7's error
// taxonomy table names, logging anything that falls through to 500 with its
// correlation id.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeAPIError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeAPIError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, auth.ErrRateLimited):
		writeAPIError(w, r, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, capability.ErrMissingCapability),
		errors.Is(err, capability.ErrScopeInsufficient),
		errors.Is(err, capability.ErrAdminProgramClass):
		writeAPIError(w, r, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, session.ErrSessionTerminated):
		writeAPIError(w, r, http.StatusGone, "session_terminated", err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, dispatch.ErrNotFound):
		writeAPIError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, dispatch.ErrInvalidOutcome):
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
	case isNotClaimable(err):
		writeAPIError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, dispatch.ErrNotActive):
		writeAPIError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, oauth.ErrInvalidGrant),
		errors.Is(err, oauth.ErrStateRequired),
		errors.Is(err, oauth.ErrUnsupportedChallengeMethod),
		errors.Is(err, oauth.ErrPendingExpired),
		errors.Is(err, oauth.ErrPendingAlreadyConsumed),
		errors.Is(err, oauth.ErrInvalidRedirectURI),
		errors.Is(err, oauth.ErrServiceAccountRequiresSubject):
		writeAPIError(w, r, http.StatusBadRequest, "invalid_grant", err.Error())
	default:
		var unknownGroup *relay.ErrUnknownGroup
		if errors.As(err, &unknownGroup) {
			writeAPIError(w, r, http.StatusBadRequest, "invalid_argument", err.Error())
			return
		}
		log := GetCorrelationID(r.Context())
		writeAPIError(w, r, http.StatusInternalServerError, "internal", "internal error (correlation "+log+")")
	}
}

func isNotClaimable(err error) bool {
	var nc *dispatch.NotClaimableError
	return errors.As(err, &nc)
}
