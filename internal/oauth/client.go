package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/fleetwire/controlplane/internal/crypto"
	"github.com/fleetwire/controlplane/internal/store"
	"github.com/google/uuid"
)

// ClientCollection is the global document collection backing spec §6's
// `oauthClients/{id}` path template.
const ClientCollection = "oauthClients"

// ClientType discriminates public clients (no secret, PKCE-only) from
// confidential clients (service accounts, holds a hashed secret).
type ClientType string

const (
	ClientPublic       ClientType = "public"
	ClientConfidential ClientType = "confidential"
)

// Client is spec §3's OAuth client entity.
type Client struct {
	ID                      string     `json:"id"`
	Name                    string     `json:"name"`
	Type                    ClientType `json:"type"`
	RedirectURIs            []string   `json:"redirectUris"`
	GrantTypes              []string   `json:"grantTypes"`
	ResponseTypes           []string   `json:"responseTypes"`
	TokenEndpointAuthMethod string     `json:"tokenEndpointAuthMethod"`
	SecretHash              string     `json:"secretHash,omitempty"`
	TenantID                string     `json:"tenantId,omitempty"` // service accounts only
	CreatedAt               time.Time  `json:"createdAt"`
	LastUsedAt              *time.Time `json:"lastUsedAt,omitempty"`
}

// ErrInvalidRedirectURI is returned when a DCR request's redirect URI is
// neither localhost nor HTTPS (spec §4.7).
var ErrInvalidRedirectURI = errors.New("oauth: redirect uri must be localhost or https")

// ErrServiceAccountRequiresSubject is returned when a client_credentials
// registration omits the authenticated subject spec §4.7 requires.
var ErrServiceAccountRequiresSubject = errors.New("oauth: client_credentials registration requires an authenticated subject")

// RegisterInput is spec §4.7's DCR request shape (RFC 7591 subset).
type RegisterInput struct {
	Name          string
	RedirectURIs  []string
	GrantTypes    []string
	ResponseTypes []string
	// AuthenticatedTenant is set when the caller presented a credential
	// (required for client_credentials registrations).
	AuthenticatedTenant string
}

func validRedirectURI(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme == "https" {
		return true
	}
	if u.Scheme == "http" {
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1" || host == "::1"
	}
	return false
}

func isServiceAccount(grantTypes []string) bool {
	for _, g := range grantTypes {
		if g == "client_credentials" {
			return true
		}
	}
	return false
}

// Register implements spec §4.7's POST /register. Returns the stored
// client and, for confidential clients, the one-shot plaintext secret
// (never persisted — only its digest is).
func Register(ctx context.Context, ds store.DocStore, in RegisterInput) (*Client, string, error) {
	for _, uri := range in.RedirectURIs {
		if !validRedirectURI(uri) {
			return nil, "", ErrInvalidRedirectURI
		}
	}

	serviceAccount := isServiceAccount(in.GrantTypes)
	if serviceAccount && in.AuthenticatedTenant == "" {
		return nil, "", ErrServiceAccountRequiresSubject
	}

	clientType := ClientPublic
	authMethod := "none"
	var secret, secretHash string
	if serviceAccount {
		clientType = ClientConfidential
		authMethod = "client_secret_basic"
		var err error
		secret, err = crypto.GenerateClientSecret()
		if err != nil {
			return nil, "", err
		}
		secretHash = crypto.SHA256Hex(secret)
	}

	c := Client{
		ID:                      uuid.NewString(),
		Name:                    in.Name,
		Type:                    clientType,
		RedirectURIs:            in.RedirectURIs,
		GrantTypes:              in.GrantTypes,
		ResponseTypes:           in.ResponseTypes,
		TokenEndpointAuthMethod: authMethod,
		SecretHash:              secretHash,
		TenantID:                in.AuthenticatedTenant,
		CreatedAt:               time.Now().UTC(),
	}

	doc, err := ds.Put(ctx, ClientCollection, store.GlobalTenant, c.ID, c)
	if err != nil {
		return nil, "", err
	}
	stored, err := decodeClient(doc)
	if err != nil {
		return nil, "", err
	}
	return stored, secret, nil
}

func decodeClient(d *store.Doc) (*Client, error) {
	var c Client
	if err := json.Unmarshal(d.Payload, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClient loads a registered client by id.
func GetClient(ctx context.Context, ds store.DocStore, clientID string) (*Client, error) {
	doc, err := ds.Get(ctx, ClientCollection, store.GlobalTenant, clientID)
	if err != nil {
		return nil, err
	}
	return decodeClient(doc)
}

// ValidateRedirectURI confirms uri is one of c's registered redirect URIs.
func (c *Client) ValidateRedirectURI(uri string) error {
	for _, r := range c.RedirectURIs {
		if r == uri {
			return nil
		}
	}
	return fmt.Errorf("oauth: redirect_uri %q not registered for client %s", uri, c.ID)
}

// ValidateSecret checks a presented client secret against the stored
// digest (confidential clients only), using a constant-time comparison.
func (c *Client) ValidateSecret(secret string) bool {
	if c.SecretHash == "" {
		return false
	}
	return crypto.ConstantTimeEqual(crypto.SHA256Hex(secret), c.SecretHash)
}
