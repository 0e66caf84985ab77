package httpapi

import (
	"net/http"
	"strings"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/oauth"
)

// oauthMetadata handles GET /.well-known/oauth-authorization-server (spec
// §4.7, RFC 8414).
func (s *Server) oauthMetadata(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, oauth.Metadata(s.OAuthIssuer))
}

type registerClientRequest struct {
	ClientName    string   `json:"client_name" validate:"required"`
	RedirectURIs  []string `json:"redirect_uris"`
	GrantTypes    []string `json:"grant_types"`
	ResponseTypes []string `json:"response_types"`
}

// registerClient handles POST /register (RFC 7591 dynamic client
// registration). client_credentials registrations require the caller to
// have already authenticated (spec §4.7: "requires an authenticated
// subject"); that subject's tenant becomes the service account's tenant.
func (s *Server) registerClient(w http.ResponseWriter, r *http.Request) {
	if ok := s.DCRBrake.Allow(clientIP(r)); !ok {
		writeAPIError(w, r, http.StatusTooManyRequests, "rate_limited", "too many registration attempts")
		return
	}

	var req registerClientRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}

	var tenant string
	if ac, ok := auth.FromContext(r.Context()); ok {
		tenant = ac.TenantID
	}

	client, secret, err := oauth.Register(r.Context(), s.Docs, oauth.RegisterInput{
		Name:                req.ClientName,
		RedirectURIs:        req.RedirectURIs,
		GrantTypes:          req.GrantTypes,
		ResponseTypes:       req.ResponseTypes,
		AuthenticatedTenant: tenant,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := map[string]any{
		"client_id":                  client.ID,
		"client_name":                client.Name,
		"redirect_uris":              client.RedirectURIs,
		"grant_types":                client.GrantTypes,
		"token_endpoint_auth_method": client.TokenEndpointAuthMethod,
	}
	if secret != "" {
		resp["client_secret"] = secret
	}
	writeData(w, r, http.StatusCreated, resp)
}

// authorize handles GET /authorize: validates the client/redirect pair and
// PKCE parameters, then parks a pending authorization awaiting consent
// (spec §4.7).
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")

	client, err := oauth.GetClient(r.Context(), s.Docs, clientID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := client.ValidateRedirectURI(redirectURI); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "invalid_grant", err.Error())
		return
	}

	var scope []string
	if raw := q.Get("scope"); raw != "" {
		scope = strings.Fields(raw)
	}

	pending, err := oauth.CreatePending(r.Context(), s.Docs, clientID, redirectURI,
		q.Get("state"), q.Get("code_challenge"), q.Get("code_challenge_method"), scope)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"pendingId": pending.ID, "scope": pending.Scope})
}

type consentRequest struct {
	PendingID string `json:"pendingId" validate:"required"`
	Approve   bool   `json:"approve"`
}

// consent handles GET|POST /oauth/consent: the resource owner's explicit
// allow/deny decision (spec §4.7 "explicit allow/deny form, no silent
// approval"). A deny terminates the flow immediately. An allow does NOT
// mint a code here — it only validates the pending authorization is still
// live and hands back the identity-provider callback the caller must
// complete next, carrying the pending id (spec §4.7: "redirect the browser
// through the configured identity provider to a callback endpoint carrying
// the pending id"). The code is only minted at /authorize/callback, after
// that identity token is verified.
func (s *Server) consent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.PendingID = q.Get("pendingId")
		req.Approve = q.Get("approve") == "true"
		if req.PendingID == "" {
			writeAPIError(w, r, http.StatusBadRequest, "validation", "pendingId is required")
			return
		}
	} else if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}

	pending, err := oauth.PeekPending(r.Context(), s.Docs, req.PendingID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if !req.Approve {
		// Deny terminates the flow now; consume the pending record so it
		// can't be approved later.
		if _, err := oauth.ConsumePending(r.Context(), s.Docs, pending.ID); err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, map[string]any{
			"redirectUri": pending.RedirectURI + "?error=access_denied&state=" + pending.State,
		})
		return
	}

	writeData(w, r, http.StatusOK, map[string]any{
		"identityAuthorizeUrl": s.OAuthIssuer + "/authorize/callback?pendingId=" + pending.ID,
		"pendingId":            pending.ID,
	})
}

// authorizeCallback handles GET /authorize/callback: verifies the identity
// token the provider redirect carried back (spec §4.7 "verify the returned
// identity token"), then atomically mints a single-use authorization code
// for the verified subject and deletes the pending record. The identity
// token is presented as a bearer credential, the same way it would be
// presented to any other endpoint.
func (s *Server) authorizeCallback(w http.ResponseWriter, r *http.Request) {
	if s.Identity == nil {
		writeAPIError(w, r, http.StatusServiceUnavailable, "server_error", "identity provider not configured")
		return
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeDomainError(w, r, auth.ErrUnauthenticated)
		return
	}
	subject, err := s.Identity.Verify(token)
	if err != nil {
		writeDomainError(w, r, auth.ErrUnauthorized)
		return
	}

	pendingID := r.URL.Query().Get("pendingId")
	pending, err := oauth.ConsumePending(r.Context(), s.Docs, pendingID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	code, err := oauth.MintCode(r.Context(), s.Docs, pending, subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{
		"redirectUri": pending.RedirectURI + "?code=" + code + "&state=" + pending.State,
	})
}

// token handles POST /token for the authorization_code and refresh_token
// grants (spec §4.7). Accepts form-encoded parameters per RFC 6749.
func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", "malformed form body")
		return
	}

	var tenant string
	if ac, ok := auth.FromContext(r.Context()); ok {
		tenant = ac.TenantID
	}

	var pair *oauth.TokenPair
	var err error
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		pair, err = oauth.ExchangeAuthorizationCode(r.Context(), s.Docs, tenant,
			r.PostForm.Get("client_id"), r.PostForm.Get("code"),
			r.PostForm.Get("redirect_uri"), r.PostForm.Get("code_verifier"))
	case "refresh_token":
		pair, err = oauth.RotateRefresh(r.Context(), s.Docs, tenant, r.PostForm.Get("refresh_token"))
	case "client_credentials":
		clientID, clientSecret := clientCredentialsFromRequest(r)
		var scope []string
		if raw := r.PostForm.Get("scope"); raw != "" {
			scope = strings.Fields(raw)
		}
		pair, err = oauth.ClientCredentials(r.Context(), s.Docs, clientID, clientSecret, scope)
	default:
		writeAPIError(w, r, http.StatusBadRequest, "invalid_grant", "unsupported grant_type")
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    pair.ExpiresIn,
		"scope":         strings.Join(pair.Scope, " "),
	})
}

// clientCredentialsFromRequest reads the confidential client's id/secret
// per RFC 6749's client_secret_basic method (the auth method DCR assigns
// confidential clients, oauth/client.go Register), falling back to
// client_secret_post form fields for callers that can't set Basic auth.
func clientCredentialsFromRequest(r *http.Request) (id, secret string) {
	if u, p, ok := r.BasicAuth(); ok {
		return u, p
	}
	return r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
}

// revokeToken handles POST /revoke (RFC 7009). Always responds 200
// regardless of whether the token was known, per spec §4.7.
func (s *Server) revokeToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", "malformed form body")
		return
	}
	oauth.Revoke(r.Context(), s.Docs, r.PostForm.Get("token"))
	writeData(w, r, http.StatusOK, map[string]any{"revoked": true})
}
