package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
	"github.com/google/uuid"
)

// PendingCollection is the global collection backing spec §6's
// `oauthPendingAuth/{id}` path template.
const PendingCollection = "oauthPendingAuth"

// PendingTTL is spec §3's "short-lived (<= 10 min)" pending-authorization
// window.
const PendingTTL = 10 * time.Minute

// PendingAuthorization is spec §3's pending-authorization entity, created
// by GET /authorize and consumed by GET /authorize/callback.
type PendingAuthorization struct {
	ID                  string    `json:"id"`
	ClientID            string    `json:"clientId"`
	RedirectURI         string    `json:"redirectUri"`
	CodeChallenge       string    `json:"codeChallenge"`
	CodeChallengeMethod string    `json:"codeChallengeMethod"`
	State               string    `json:"state"`
	Scope               []string  `json:"scope"`
	Consumed            bool      `json:"consumed"`
	CreatedAt           time.Time `json:"createdAt"`
	ExpiresAt           time.Time `json:"expiresAt"`
}

// ErrPendingAlreadyConsumed guards against a double callback on the same
// pending authorization id.
var ErrPendingAlreadyConsumed = errors.New("oauth: pending authorization already consumed")

// ErrStateRequired maps to spec §4.7/§8's "state mandatory" invariant.
var ErrStateRequired = errors.New("oauth: state parameter is required")

// ErrUnsupportedChallengeMethod is returned when a client requests a PKCE
// method other than S256 (spec §4.7: "PKCE mandatory (S256)").
var ErrUnsupportedChallengeMethod = errors.New("oauth: only S256 code_challenge_method is supported")

// ErrPendingExpired is returned when a pending authorization has aged out.
var ErrPendingExpired = errors.New("oauth: pending authorization expired")

// CreatePending persists a new pending authorization keyed by a fresh UUID
// (spec §4.7 GET /authorize).
func CreatePending(ctx context.Context, ds store.DocStore, clientID, redirectURI, state, challenge, challengeMethod string, scope []string) (*PendingAuthorization, error) {
	if state == "" {
		return nil, ErrStateRequired
	}
	if challengeMethod != "S256" {
		return nil, ErrUnsupportedChallengeMethod
	}

	now := time.Now().UTC()
	p := PendingAuthorization{
		ID:                  uuid.NewString(),
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		CodeChallenge:       challenge,
		CodeChallengeMethod: challengeMethod,
		State:               state,
		Scope:               scope,
		CreatedAt:           now,
		ExpiresAt:           now.Add(PendingTTL),
	}
	doc, err := ds.Put(ctx, PendingCollection, store.GlobalTenant, p.ID, p)
	if err != nil {
		return nil, err
	}
	return decodePending(doc)
}

func decodePending(d *store.Doc) (*PendingAuthorization, error) {
	var p PendingAuthorization
	if err := json.Unmarshal(d.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PeekPending reads a pending authorization without consuming it, used by
// the consent step (spec §4.7 `GET|POST /oauth/consent`) to validate a
// pending id before redirecting through the identity provider — the actual
// single-use consumption happens later, at the callback, via ConsumePending.
func PeekPending(ctx context.Context, ds store.DocStore, id string) (*PendingAuthorization, error) {
	doc, err := ds.Get(ctx, PendingCollection, store.GlobalTenant, id)
	if err != nil {
		return nil, err
	}
	p, err := decodePending(doc)
	if err != nil {
		return nil, err
	}
	if p.Consumed {
		return nil, ErrPendingAlreadyConsumed
	}
	if time.Now().UTC().After(p.ExpiresAt) {
		return nil, ErrPendingExpired
	}
	return p, nil
}

// ConsumePending atomically marks a pending authorization consumed under
// the row lock CompareAndSwap takes (spec §4.7: "atomically mint ... and
// delete the pending record") — the authoritative single-use guard is the
// Consumed flag flip; the row delete that follows is best-effort cleanup.
func ConsumePending(ctx context.Context, ds store.DocStore, id string) (*PendingAuthorization, error) {
	var result *PendingAuthorization
	_, err := ds.CompareAndSwap(ctx, PendingCollection, store.GlobalTenant, id, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, store.ErrNotFound
		}
		p, err := decodePending(cur)
		if err != nil {
			return nil, err
		}
		if p.Consumed {
			return nil, ErrPendingAlreadyConsumed
		}
		if time.Now().UTC().After(p.ExpiresAt) {
			return nil, ErrPendingExpired
		}
		p.Consumed = true
		result = p
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	_ = ds.Delete(ctx, PendingCollection, store.GlobalTenant, id)
	return result, nil
}
