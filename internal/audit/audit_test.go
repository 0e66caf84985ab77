package audit

import (
	"context"
	"testing"

	"github.com/fleetwire/controlplane/internal/store"
)

func TestAuditRecordAndList(t *testing.T) {
	ds := store.NewMem()
	log := NewLog(ds)

	if err := log.Record(context.Background(), Entry{TenantID: "t1", Tool: "dispatch.claim", Outcome: "ok"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries, err := log.List(context.Background(), "t1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestLedgerSummary(t *testing.T) {
	ds := store.NewMem()
	ledger := NewLedger(ds)

	for i := 0; i < 3; i++ {
		if err := ledger.Record(context.Background(), LedgerEntry{TenantID: "t1", Tokens: 100, CostMicros: 5}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	sum, err := ledger.Summary(context.Background(), "t1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalTokens != 300 || sum.TotalCostMicros != 15 || sum.EntryCount != 3 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestTraceGetByID(t *testing.T) {
	ds := store.NewMem()
	tracer := NewTracer(ds)

	if err := tracer.Record(context.Background(), Span{ID: "trace-1", TenantID: "t1", Endpoint: "/v1/tasks"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	s, err := tracer.Get(context.Background(), "t1", "trace-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Endpoint != "/v1/tasks" {
		t.Fatalf("unexpected span: %+v", s)
	}
}
