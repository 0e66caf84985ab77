package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fleetwire/controlplane/internal/capability"
	"github.com/fleetwire/controlplane/internal/crypto"
	"github.com/fleetwire/controlplane/internal/store"
)

// TokenCollection is the global collection backing spec §6's
// `oauthTokens/{hash}` path template.
const TokenCollection = "oauthTokens"

// TokenType discriminates the two OAuth token kinds spec §3 names.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// TokenRecord is spec §3's "OAuth token record".
type TokenRecord struct {
	Type            TokenType  `json:"type"`
	TenantID        string     `json:"tenantId"`
	ClientID        string     `json:"clientId"`
	UserID          string     `json:"userId"`
	Scope           []string   `json:"scope"`
	FamilyID        string     `json:"familyId"`
	ParentRefresh   string     `json:"parentRefresh,omitempty"`
	Active          bool       `json:"active"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	RevokedAt       *time.Time `json:"revokedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

const (
	// AccessTTL and RefreshTTL are spec §3's fixed token lifetimes.
	AccessTTL  = time.Hour
	RefreshTTL = 30 * 24 * time.Hour
)

// ProgramOAuth is the literal program id spec §4.1 assigns OAuth contexts.
const ProgramOAuth = "oauth"

// ValidateOAuthAccessToken implements spec §4.1's OAuth access path: hash,
// look up, require type=access/active/not-revoked/not-expired, derive the
// payload key from the resolved user id.
func ValidateOAuthAccessToken(ctx context.Context, ds store.DocStore, rawToken string) (Context, error) {
	hash := crypto.SHA256Hex(rawToken)

	doc, err := ds.Get(ctx, TokenCollection, store.GlobalTenant, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Context{}, ErrUnauthenticated
		}
		return Context{}, err
	}

	var rec TokenRecord
	if err := json.Unmarshal(doc.Payload, &rec); err != nil {
		return Context{}, err
	}

	if rec.Type != TokenAccess || !rec.Active || rec.RevokedAt != nil {
		return Context{}, ErrUnauthorized
	}
	if !rec.ExpiresAt.After(time.Now()) {
		return Context{}, ErrUnauthorized
	}

	scopes := make(map[capability.Scope]bool, len(rec.Scope))
	for _, s := range rec.Scope {
		scopes[capability.Scope(s)] = true
	}

	return Context{
		TenantID:     rec.TenantID,
		ProgramID:    ProgramOAuth,
		KeyHash:      hash,
		Capabilities: defaultCapabilities(ProgramOAuth),
		OAuthScopes:  scopes,
		PayloadKey:   crypto.DeriveOAuthPayloadKey(rec.UserID),
	}, nil
}
