package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fleetwire/controlplane/internal/crypto"
	"github.com/fleetwire/controlplane/internal/store"
)

// CodeCollection is the global collection backing spec §6's
// `oauthCodes/{hash}` path template.
const CodeCollection = "oauthCodes"

// CodeTTL is spec §3's "short-lived (<= 10 min)" authorization code window.
const CodeTTL = 10 * time.Minute

// AuthorizationCode is spec §3's authorization-code entity, keyed by the
// SHA-256 hash of the code value.
type AuthorizationCode struct {
	ClientID            string    `json:"clientId"`
	UserID              string    `json:"userId"`
	RedirectURI         string    `json:"redirectUri"`
	CodeChallenge       string    `json:"codeChallenge"`
	CodeChallengeMethod string    `json:"codeChallengeMethod"`
	State               string    `json:"state"`
	Scope               []string  `json:"scope"`
	Used                bool      `json:"used"`
	CreatedAt           time.Time `json:"createdAt"`
	ExpiresAt           time.Time `json:"expiresAt"`
}

// ErrInvalidGrant is the generic, deliberately unspecific error spec §4.7
// requires for every exchange-path mismatch ("avoid probing").
var ErrInvalidGrant = errors.New("invalid_grant")

// MintCode implements spec §4.7's "atomically mint a 32-byte authorization
// code (keyed by SHA-256)" step of GET /authorize/callback. Returns the
// plaintext code (sent to the client) — only its hash is stored.
func MintCode(ctx context.Context, ds store.DocStore, p *PendingAuthorization, userID string) (string, error) {
	raw, err := crypto.GenerateAuthorizationCode()
	if err != nil {
		return "", err
	}
	hash := crypto.SHA256Hex(raw)

	now := time.Now().UTC()
	rec := AuthorizationCode{
		ClientID:            p.ClientID,
		UserID:              userID,
		RedirectURI:         p.RedirectURI,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		State:               p.State,
		Scope:               p.Scope,
		CreatedAt:           now,
		ExpiresAt:           now.Add(CodeTTL),
	}
	if _, err := ds.Put(ctx, CodeCollection, store.GlobalTenant, hash, rec); err != nil {
		return "", err
	}
	return raw, nil
}

// ConsumeCode implements spec §4.7's authorization_code grant: atomically
// mark the code row used under a transaction that also re-checks client
// id, redirect URI, PKCE verifier, and expiry. Any mismatch returns the
// generic ErrInvalidGrant (spec §4.7, §8 invariant 2/scenario 3).
func ConsumeCode(ctx context.Context, ds store.DocStore, rawCode, clientID, redirectURI, verifier string) (*AuthorizationCode, error) {
	hash := crypto.SHA256Hex(rawCode)

	var result *AuthorizationCode
	_, err := ds.CompareAndSwap(ctx, CodeCollection, store.GlobalTenant, hash, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, ErrInvalidGrant
		}
		var rec AuthorizationCode
		if err := json.Unmarshal(cur.Payload, &rec); err != nil {
			return nil, err
		}
		if rec.Used || time.Now().UTC().After(rec.ExpiresAt) {
			return nil, ErrInvalidGrant
		}
		if rec.ClientID != clientID || rec.RedirectURI != redirectURI {
			return nil, ErrInvalidGrant
		}
		if err := crypto.VerifyPKCE(verifier, rec.CodeChallenge); err != nil {
			return nil, ErrInvalidGrant
		}

		rec.Used = true
		result = &rec
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
