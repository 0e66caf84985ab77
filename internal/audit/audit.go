// Package audit implements the append-only audit log, cost ledger, and
// trace span support modules spec §3 names ("Audit entry, ledger entry,
// trace span... each carries correlation id, tenant, actor program, tool,
// endpoint, timing, outcome"). Grounded on the teacher's payload_json JSONB
// pattern — every entry is a Put into the shared documents store, never a
// dedicated table.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
	"github.com/google/uuid"
)

// Collection is the per-tenant path spec §6 names: `tenants/{tid}/audit`.
const Collection = "audit"

// Entry is one audit-log row.
type Entry struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId"`
	TenantID      string    `json:"tenantId"`
	ActorProgram  string    `json:"actorProgram"`
	Tool          string    `json:"tool"`
	Endpoint      string    `json:"endpoint"`
	Outcome       string    `json:"outcome"`
	DurationMS    int64     `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Log is the append-only writer/reader for audit entries.
type Log struct {
	Docs store.DocStore
}

func NewLog(ds store.DocStore) *Log { return &Log{Docs: ds} }

// Record appends one audit entry. Fire-and-forget by convention — callers
// invoke this after their transaction commits (spec §2 flow diagram), never
// inside it.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := l.Docs.Put(ctx, Collection, e.TenantID, e.ID, e)
	return err
}

// List returns the most recent audit entries for a tenant, newest first.
func (l *Log) List(ctx context.Context, tenantID string, limit int) ([]Entry, error) {
	docs, err := l.Docs.Query(ctx, Collection, tenantID, store.ListOpts{Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(docs))
	for _, d := range docs {
		var e Entry
		if err := json.Unmarshal(d.Payload, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
