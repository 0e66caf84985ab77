package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
	"github.com/google/uuid"
)

// LedgerCollection is the per-tenant path spec §6 names:
// `tenants/{tid}/ledger`.
const LedgerCollection = "ledger"

// LedgerEntry is one cost-accounting row, fed by dispatch's Complete (token
// and cost numerics) and read back by the cost-summary metrics endpoint.
type LedgerEntry struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId"`
	TenantID      string    `json:"tenantId"`
	ActorProgram  string    `json:"actorProgram"`
	TaskID        string    `json:"taskId,omitempty"`
	Tokens        int64     `json:"tokens"`
	CostMicros    int64     `json:"costMicros"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Ledger is the append-only writer/reader for cost-ledger entries.
type Ledger struct {
	Docs store.DocStore
}

func NewLedger(ds store.DocStore) *Ledger { return &Ledger{Docs: ds} }

func (l *Ledger) Record(ctx context.Context, e LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := l.Docs.Put(ctx, LedgerCollection, e.TenantID, e.ID, e)
	return err
}

// CostSummary aggregates ledger entries for a tenant across all stored
// rows — bounded by the same 500-row query cap QueryAll-backed sweeps use.
type CostSummary struct {
	TotalTokens     int64 `json:"totalTokens"`
	TotalCostMicros int64 `json:"totalCostMicros"`
	EntryCount      int   `json:"entryCount"`
}

func (l *Ledger) Summary(ctx context.Context, tenantID string) (CostSummary, error) {
	docs, err := l.Docs.Query(ctx, LedgerCollection, tenantID, store.ListOpts{Limit: 500})
	if err != nil {
		return CostSummary{}, err
	}
	var sum CostSummary
	for _, d := range docs {
		var e LedgerEntry
		if err := json.Unmarshal(d.Payload, &e); err != nil {
			continue
		}
		sum.TotalTokens += e.Tokens
		sum.TotalCostMicros += e.CostMicros
		sum.EntryCount++
	}
	return sum, nil
}
