package dispatch

import (
	"context"
	"sync"
	"testing"

	"github.com/fleetwire/controlplane/internal/store"
)

func newTestStore() *Store {
	return NewStore(store.NewMem())
}

func TestClaimUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	task, err := s.Create(ctx, Task{TenantID: "t1", Title: "x", TargetProgram: "builder"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Claim(ctx, "t1", task.ID, "builder.sess")
			results[i] = err
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}

	got, err := s.Get(ctx, "t1", task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
}

func TestUnclaimFlagsAtThreshold(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	task, _ := s.Create(ctx, Task{TenantID: "t1", Title: "x"})

	for i := 0; i < UnclaimFlagThreshold; i++ {
		if _, err := s.Claim(ctx, "t1", task.ID, "sess"); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		got, err := s.Unclaim(ctx, "t1", task.ID, UnclaimStaleRecovery)
		if err != nil {
			t.Fatalf("unclaim %d: %v", i, err)
		}
		if i+1 < UnclaimFlagThreshold {
			if got.Flagged {
				t.Fatalf("unexpected flag at count %d", got.UnclaimCount)
			}
		} else {
			if !got.Flagged || !got.RequiresAction {
				t.Fatalf("expected flagged+requiresAction at count %d", got.UnclaimCount)
			}
			if got.Status != StatusCreated {
				t.Fatalf("expected task to remain claimable, got status %s", got.Status)
			}
		}
	}

	if _, err := s.Claim(ctx, "t1", task.ID, "sess2"); err != nil {
		t.Fatalf("flagged task should still be claimable: %v", err)
	}
}

func TestCompleteRequiresActive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	task, _ := s.Create(ctx, Task{TenantID: "t1", Title: "x"})

	if _, err := s.Complete(ctx, "t1", task.ID, CompleteInput{Outcome: OutcomeSuccess}); err != ErrNotActive {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}

	if _, err := s.Claim(ctx, "t1", task.ID, "sess"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	got, err := s.Complete(ctx, "t1", task.ID, CompleteInput{Outcome: OutcomeSuccess, Result: "ok"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != StatusDone || got.Outcome == nil || *got.Outcome != OutcomeSuccess {
		t.Fatalf("unexpected completed task: %+v", got)
	}
}

func TestBatchClaimIsPartial(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	a, _ := s.Create(ctx, Task{TenantID: "t1", Title: "a"})
	b, _ := s.Create(ctx, Task{TenantID: "t1", Title: "b"})
	if _, err := s.Claim(ctx, "t1", b.ID, "other"); err != nil {
		t.Fatalf("pre-claim b: %v", err)
	}

	results := s.BatchClaim(ctx, "t1", "sess", []string{a.ID, b.ID, "missing"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("expected a to claim successfully: %+v", results[0])
	}
	if results[1].Success {
		t.Fatalf("expected b to fail (already active): %+v", results[1])
	}
	if results[2].Success {
		t.Fatalf("expected missing task to fail: %+v", results[2])
	}
}

func TestContentionMetrics(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	task, _ := s.Create(ctx, Task{TenantID: "t1", Title: "x"})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Claim(ctx, "t1", task.ID, "sess")
		}()
	}
	wg.Wait()

	report, err := s.ContentionMetrics(ctx, "t1", PeriodAll)
	if err != nil {
		t.Fatalf("contention metrics: %v", err)
	}
	if report.ClaimsAttempted != 2 || report.ClaimsWon != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.ContentionRate != 50.0 {
		t.Fatalf("expected 50%% contention rate, got %v", report.ContentionRate)
	}
}
