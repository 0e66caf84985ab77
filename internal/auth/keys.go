package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fleetwire/controlplane/internal/crypto"
	"github.com/fleetwire/controlplane/internal/store"
)

// CreateKeyInput is the REST surface's POST /v1/keys request shape.
type CreateKeyInput struct {
	TenantID     string
	ProgramID    string
	Capabilities map[string]bool
	RateTier     string
	ExpiresIn    time.Duration // zero means no expiry
}

// CreateKey mints a new opaque API key, storing only its digest (spec §3:
// "Raw key material is never stored"). Returns the plaintext key alongside
// the stored record; the plaintext is never persisted.
func CreateKey(ctx context.Context, ds store.DocStore, in CreateKeyInput) (string, *KeyRecord, error) {
	raw, err := crypto.GenerateOpaqueKey()
	if err != nil {
		return "", nil, err
	}
	hash := crypto.SHA256Hex(raw)

	rec := KeyRecord{
		TenantID:     in.TenantID,
		ProgramID:    in.ProgramID,
		Capabilities: in.Capabilities,
		Active:       true,
		RateTier:     in.RateTier,
	}
	if in.ExpiresIn > 0 {
		exp := time.Now().UTC().Add(in.ExpiresIn)
		rec.ExpiresAt = &exp
	}

	if _, err := ds.Put(ctx, KeyCollection, store.GlobalTenant, hash, rec); err != nil {
		return "", nil, err
	}
	return raw, &rec, nil
}

// RevokeKey marks a key record inactive+revoked by its hash. Idempotent:
// revoking an already-revoked key is a no-op success.
func RevokeKey(ctx context.Context, ds store.DocStore, hash string) error {
	_, err := ds.CompareAndSwap(ctx, KeyCollection, store.GlobalTenant, hash, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, store.ErrNotFound
		}
		var rec KeyRecord
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

// ListKeysForTenant scans the global key index for records owned by
// tenantID. The index is global (spec §3) so there is no tenant-scoped
// query to lean on; this mirrors dispatch's orphan-sweep QueryAll usage.
func ListKeysForTenant(ctx context.Context, ds store.DocStore, tenantID string) ([]KeyRecordView, error) {
	docs, err := ds.QueryAll(ctx, KeyCollection, store.ListOpts{Limit: 500})
	if err != nil {
		return nil, err
	}
	var out []KeyRecordView
	for _, d := range docs {
		var rec KeyRecord
		if err := json.Unmarshal(d.Payload, &rec); err != nil {
			continue
		}
		if rec.TenantID != tenantID {
			continue
		}
		out = append(out, KeyRecordView{Hash: d.ID, KeyRecord: rec})
	}
	return out, nil
}

// KeyRecordView pairs a KeyRecord with its lookup hash for list responses.
type KeyRecordView struct {
	Hash string
	KeyRecord
}

// RotateKey revokes the key at oldHash and mints a replacement carrying the
// same tenant/program/capabilities/tier (spec §6 "POST /v1/keys/rotate").
func RotateKey(ctx context.Context, ds store.DocStore, oldHash string) (string, *KeyRecord, error) {
	doc, err := ds.Get(ctx, KeyCollection, store.GlobalTenant, oldHash)
	if err != nil {
		return "", nil, err
	}
	var rec KeyRecord
	if err := json.Unmarshal(doc.Payload, &rec); err != nil {
		return "", nil, err
	}
	if err := RevokeKey(ctx, ds, oldHash); err != nil {
		return "", nil, err
	}
	return CreateKey(ctx, ds, CreateKeyInput{
		TenantID:     rec.TenantID,
		ProgramID:    rec.ProgramID,
		Capabilities: rec.Capabilities,
		RateTier:     rec.RateTier,
	})
}
