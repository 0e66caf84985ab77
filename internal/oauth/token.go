package oauth

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/crypto"
	"github.com/fleetwire/controlplane/internal/store"
	"github.com/google/uuid"
)

// TokenPair is an access+refresh token pair minted together, always under
// the same family id (spec §3 "OAuth token record").
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	FamilyID     string
	ExpiresIn    int
	Scope        []string
}

const refreshPrefix = "cbr_"

func mintPair(ctx context.Context, ds store.DocStore, tenantID, clientID, userID string, scope []string, familyID, parentRefreshHash string) (*TokenPair, error) {
	if familyID == "" {
		familyID = uuid.NewString()
	}

	rawAccess, err := crypto.GenerateAccessToken()
	if err != nil {
		return nil, err
	}
	rawRefresh, err := crypto.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	accessRec := auth.TokenRecord{
		Type: auth.TokenAccess, TenantID: tenantID, ClientID: clientID, UserID: userID,
		Scope: scope, FamilyID: familyID, ParentRefresh: parentRefreshHash,
		Active: true, ExpiresAt: now.Add(auth.AccessTTL), CreatedAt: now,
	}
	refreshRec := auth.TokenRecord{
		Type: auth.TokenRefresh, TenantID: tenantID, ClientID: clientID, UserID: userID,
		Scope: scope, FamilyID: familyID, ParentRefresh: parentRefreshHash,
		Active: true, ExpiresAt: now.Add(auth.RefreshTTL), CreatedAt: now,
	}

	if _, err := ds.Put(ctx, auth.TokenCollection, store.GlobalTenant, crypto.SHA256Hex(rawAccess), accessRec); err != nil {
		return nil, err
	}
	if _, err := ds.Put(ctx, auth.TokenCollection, store.GlobalTenant, crypto.SHA256Hex(rawRefresh), refreshRec); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  rawAccess,
		RefreshToken: rawRefresh,
		FamilyID:     familyID,
		ExpiresIn:    int(auth.AccessTTL.Seconds()),
		Scope:        scope,
	}, nil
}

// ExchangeAuthorizationCode implements spec §4.7's authorization_code
// grant: consume the code, verify PKCE, mint a fresh token family.
func ExchangeAuthorizationCode(ctx context.Context, ds store.DocStore, tenantID, clientID, code, redirectURI, verifier string) (*TokenPair, error) {
	rec, err := ConsumeCode(ctx, ds, code, clientID, redirectURI, verifier)
	if err != nil {
		return nil, err
	}
	return mintPair(ctx, ds, tenantID, clientID, rec.UserID, rec.Scope, "", "")
}

// ClientCredentials implements spec §4.7's client_credentials grant: a
// confidential (service-account) client authenticates with its secret and
// receives a token pair for its own registered tenant directly, with no
// authorization-code/user step (spec §4.7 metadata advertises this grant;
// §4.7 "Service accounts ... receive a one-shot cbs_-prefixed secret" for
// exactly this exchange).
func ClientCredentials(ctx context.Context, ds store.DocStore, clientID, clientSecret string, scope []string) (*TokenPair, error) {
	client, err := GetClient(ctx, ds, clientID)
	if err != nil {
		return nil, ErrInvalidGrant
	}
	if client.Type != ClientConfidential || !client.ValidateSecret(clientSecret) {
		return nil, ErrInvalidGrant
	}
	return mintPair(ctx, ds, client.TenantID, client.ID, "", scope, "", "")
}

// RotateRefresh implements spec §4.7's refresh_token grant: prefix-check,
// detect replay of an already-revoked token (triggering family revocation,
// spec §3 invariant 4 / §8 invariant 4), otherwise revoke the presented
// refresh and mint a new pair under the same family.
func RotateRefresh(ctx context.Context, ds store.DocStore, tenantID, rawRefresh string) (*TokenPair, error) {
	if !strings.HasPrefix(rawRefresh, refreshPrefix) {
		return nil, ErrInvalidGrant
	}
	hash := crypto.SHA256Hex(rawRefresh)

	doc, err := ds.Get(ctx, auth.TokenCollection, store.GlobalTenant, hash)
	if err != nil {
		return nil, ErrInvalidGrant
	}
	var rec auth.TokenRecord
	if err := json.Unmarshal(doc.Payload, &rec); err != nil {
		return nil, ErrInvalidGrant
	}
	if rec.Type != auth.TokenRefresh {
		return nil, ErrInvalidGrant
	}

	if !rec.Active || rec.RevokedAt != nil {
		// Replay of an already-rotated-or-revoked refresh: revoke the
		// whole family (spec §8 invariant 4).
		_ = RevokeFamily(ctx, ds, rec.FamilyID)
		return nil, ErrInvalidGrant
	}
	if time.Now().UTC().After(rec.ExpiresAt) {
		return nil, ErrInvalidGrant
	}

	if err := revokeToken(ctx, ds, hash); err != nil {
		return nil, err
	}

	return mintPair(ctx, ds, tenantID, rec.ClientID, rec.UserID, rec.Scope, rec.FamilyID, hash)
}

func revokeToken(ctx context.Context, ds store.DocStore, hash string) error {
	_, err := ds.CompareAndSwap(ctx, auth.TokenCollection, store.GlobalTenant, hash, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, nil
		}
		var rec auth.TokenRecord
		if err := json.Unmarshal(cur.Payload, &rec); err != nil {
			return nil, err
		}
		if !rec.Active {
			return nil, nil
		}
		now := time.Now().UTC()
		rec.Active = false
		rec.RevokedAt = &now
		return rec, nil
	})
	return err
}

// RevokeFamily marks every token record sharing familyID inactive+revoked
// (spec §3 invariant 4, §4.7 "Refresh-token revocation cascades to the
// family"). Scans the global token collection since tokens aren't indexed
// by family id.
func RevokeFamily(ctx context.Context, ds store.DocStore, familyID string) error {
	docs, err := ds.QueryAll(ctx, auth.TokenCollection, store.ListOpts{Limit: 5000})
	if err != nil {
		return err
	}
	for _, d := range docs {
		var rec auth.TokenRecord
		if err := json.Unmarshal(d.Payload, &rec); err != nil {
			continue
		}
		if rec.FamilyID != familyID || !rec.Active {
			continue
		}
		if err := revokeToken(ctx, ds, d.ID); err != nil {
			return err
		}
	}
	return nil
}

// Revoke implements RFC 7009: look up the presented token by prefix,
// revoke it (cascading to the family for refresh tokens). Always succeeds
// from the caller's perspective — an unknown token is simply a no-op
// (spec §4.7: "Always 200").
func Revoke(ctx context.Context, ds store.DocStore, rawToken string) {
	hash := crypto.SHA256Hex(rawToken)
	doc, err := ds.Get(ctx, auth.TokenCollection, store.GlobalTenant, hash)
	if err != nil {
		return
	}
	var rec auth.TokenRecord
	if err := json.Unmarshal(doc.Payload, &rec); err != nil {
		return
	}
	if rec.Type == auth.TokenRefresh {
		_ = RevokeFamily(ctx, ds, rec.FamilyID)
		return
	}
	_ = revokeToken(ctx, ds, hash)
}
