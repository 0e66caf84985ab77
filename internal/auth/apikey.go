package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fleetwire/controlplane/internal/crypto"
	"github.com/fleetwire/controlplane/internal/store"
	"github.com/rs/zerolog/log"
)

// KeyCollection is the global document collection backing spec §6's
// `keyIndex/{hash}` path template.
const KeyCollection = "keyIndex"

// KeyRecord is spec §3's "API key record".
type KeyRecord struct {
	TenantID     string          `json:"tenantId"`
	ProgramID    string          `json:"programId"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
	Active       bool            `json:"active"`
	RevokedAt    *time.Time      `json:"revokedAt,omitempty"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
	RateTier     string          `json:"rateTier"`
	LastUsedAt   *time.Time      `json:"lastUsedAt,omitempty"`
}

// ValidateAPIKey implements spec §4.1's API key path: hash, look up, reject
// on missing/inactive/revoked/expired, derive the payload key, and
// fire-and-forget a lastUsedAt write.
func ValidateAPIKey(ctx context.Context, ds store.DocStore, rawKey string) (Context, error) {
	hash := crypto.SHA256Hex(rawKey)

	doc, err := ds.Get(ctx, KeyCollection, store.GlobalTenant, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Context{}, ErrUnauthenticated
		}
		return Context{}, err
	}

	var rec KeyRecord
	if err := json.Unmarshal(doc.Payload, &rec); err != nil {
		return Context{}, err
	}

	if !rec.Active {
		return Context{}, ErrUnauthorized
	}
	if rec.RevokedAt != nil {
		return Context{}, ErrUnauthorized
	}
	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(time.Now()) {
		return Context{}, ErrUnauthorized
	}

	caps := rec.Capabilities
	if len(caps) == 0 {
		caps = defaultCapabilities(rec.ProgramID)
	}

	go touchLastUsed(ds, hash, rec)

	return Context{
		TenantID:     rec.TenantID,
		ProgramID:    rec.ProgramID,
		KeyHash:      hash,
		Capabilities: caps,
		RateTier:     rec.RateTier,
		PayloadKey:   crypto.DeriveAPIKeyPayloadKey(rawKey),
	}, nil
}

// touchLastUsed fires a detached lastUsedAt write so the hot auth path
// never blocks on it (spec §4.1: "Fire-and-forget a lastUsedAt write").
func touchLastUsed(ds store.DocStore, hash string, rec KeyRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	now := time.Now().UTC()
	rec.LastUsedAt = &now
	if _, err := ds.Put(ctx, KeyCollection, store.GlobalTenant, hash, rec); err != nil {
		log.Error().Err(err).Str("keyHash", hash).Msg("failed to update api key lastUsedAt")
	}
}
