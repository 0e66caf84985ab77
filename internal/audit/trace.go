package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
)

// TraceCollection is the per-tenant path spec §6 names:
// `tenants/{tid}/traces` (accessed via GET /v1/traces, /v1/traces/{traceId}).
const TraceCollection = "traces"

// Span is one trace span row.
type Span struct {
	ID            string    `json:"id"` // traceId
	CorrelationID string    `json:"correlationId"`
	TenantID      string    `json:"tenantId"`
	ActorProgram  string    `json:"actorProgram"`
	Endpoint      string    `json:"endpoint"`
	Outcome       string    `json:"outcome"`
	DurationMS    int64     `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Tracer is the append-only writer/reader for trace spans, keyed by
// traceId so a single GET /v1/traces/{traceId} is a direct document Get.
type Tracer struct {
	Docs store.DocStore
}

func NewTracer(ds store.DocStore) *Tracer { return &Tracer{Docs: ds} }

func (t *Tracer) Record(ctx context.Context, s Span) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := t.Docs.Put(ctx, TraceCollection, s.TenantID, s.ID, s)
	return err
}

func (t *Tracer) Get(ctx context.Context, tenantID, traceID string) (*Span, error) {
	doc, err := t.Docs.Get(ctx, TraceCollection, tenantID, traceID)
	if err != nil {
		return nil, err
	}
	var s Span
	if err := json.Unmarshal(doc.Payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *Tracer) List(ctx context.Context, tenantID string, limit int) ([]Span, error) {
	docs, err := t.Docs.Query(ctx, TraceCollection, tenantID, store.ListOpts{Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]Span, 0, len(docs))
	for _, d := range docs {
		var s Span
		if err := json.Unmarshal(d.Payload, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
