// Package oauth implements the OAuth 2.1 authorization server: dynamic
// client registration, PKCE-protected authorization code flow with
// explicit consent, refresh-token rotation with family revocation on
// replay, and atomic single-use codes (spec §4.7). Grounded on the
// teacher's oauth_metadata.go for the RFC 8414 metadata shape.
package oauth

// Metadata builds the RFC 8414 authorization-server metadata document
// served at GET /.well-known/oauth-authorization-server (spec §4.7).
func Metadata(issuer string) map[string]any {
	return map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/authorize",
		"token_endpoint":                         issuer + "/token",
		"registration_endpoint":                  issuer + "/register",
		"revocation_endpoint":                    issuer + "/revoke",
		"response_types_supported":               []string{"code"},
		"grant_types_supported":                  []string{"authorization_code", "refresh_token", "client_credentials"},
		"code_challenge_methods_supported":        []string{"S256"},
		"token_endpoint_auth_methods_supported":   []string{"none"},
		"scopes_supported":                        []string{"mcp:full", "mcp:read", "mcp:write", "mcp:admin"},
	}
}
