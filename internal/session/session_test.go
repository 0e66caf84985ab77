package session

import (
	"context"
	"testing"

	"github.com/fleetwire/controlplane/internal/store"
)

func newTestStore() *Store {
	return NewStore(store.NewMem())
}

func TestBootCheckpointsReachCompliant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	if _, err := s.Create(ctx, "t1", "builder.task1", "builder", "Builder One"); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, ev := range []Event{EventGotProgramState, EventGotTasks, EventGotMessages} {
		sess, err := s.ApplyEvent(ctx, "t1", "builder.task1", ev)
		if err != nil {
			t.Fatalf("apply %s: %v", ev, err)
		}
		if ev == EventGotMessages {
			if sess.Compliance.State != StateCompliant {
				t.Fatalf("expected COMPLIANT after all checkpoints, got %s", sess.Compliance.State)
			}
		}
	}
}

func TestJournalEscalation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.Create(ctx, "t1", "builder.task1", "builder", "Builder One")
	s.ApplyEvent(ctx, "t1", "builder.task1", EventGotProgramState)
	s.ApplyEvent(ctx, "t1", "builder.task1", EventGotTasks)
	s.ApplyEvent(ctx, "t1", "builder.task1", EventGotMessages)
	s.ApplyEvent(ctx, "t1", "builder.task1", EventClaimTask)

	var sess *Session
	for i := 0; i < JournalWarnThreshold; i++ {
		var err error
		sess, err = s.ApplyEvent(ctx, "t1", "builder.task1", EventNonExemptCall)
		if err != nil {
			t.Fatalf("apply non-exempt call %d: %v", i, err)
		}
	}
	if sess.Compliance.State != StateWarned {
		t.Fatalf("expected WARNED after %d non-exempt calls, got %s", JournalWarnThreshold, sess.Compliance.State)
	}

	for i := 0; i < JournalWarnThreshold; i++ {
		var err error
		sess, err = s.ApplyEvent(ctx, "t1", "builder.task1", EventNonExemptCall)
		if err != nil {
			t.Fatalf("apply non-exempt call: %v", err)
		}
	}
	if sess.Compliance.State != StateDegraded {
		t.Fatalf("expected DEGRADED after further non-exempt calls, got %s", sess.Compliance.State)
	}

	sess, err := s.ApplyEvent(ctx, "t1", "builder.task1", EventUpdateProgramState)
	if err != nil {
		t.Fatalf("apply update_program_state: %v", err)
	}
	if sess.Compliance.State != StateCompliant || sess.Compliance.JournalCounter != 0 {
		t.Fatalf("expected reset to COMPLIANT with counter 0, got %+v", sess.Compliance)
	}
}

func TestDerezIsTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.Create(ctx, "t1", "builder.task1", "builder", "Builder One")
	sess, err := s.ApplyEvent(ctx, "t1", "builder.task1", EventDerez)
	if err != nil {
		t.Fatalf("derez: %v", err)
	}
	if sess.Compliance.State != StateDerezzed {
		t.Fatalf("expected DEREZED, got %s", sess.Compliance.State)
	}

	sess, err = s.ApplyEvent(ctx, "t1", "builder.task1", EventUpdateProgramState)
	if err != nil {
		t.Fatalf("apply after derez: %v", err)
	}
	if sess.Compliance.State != StateDerezzed {
		t.Fatalf("expected DEREZED to remain terminal, got %s", sess.Compliance.State)
	}
}

func TestContextHistoryBounded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.Create(ctx, "t1", "builder.task1", "builder", "Builder One")

	var sess *Session
	for i := 0; i < ContextHistoryCap+50; i++ {
		var err error
		sess, err = s.Pulse(ctx, "t1", "builder.task1", i)
		if err != nil {
			t.Fatalf("pulse %d: %v", i, err)
		}
	}
	if len(sess.ContextHistory) != ContextHistoryCap {
		t.Fatalf("expected history capped at %d, got %d", ContextHistoryCap, len(sess.ContextHistory))
	}
	if sess.ContextHistory[len(sess.ContextHistory)-1] != ContextHistoryCap+49 {
		t.Fatalf("expected most recent entry preserved, got %d", sess.ContextHistory[len(sess.ContextHistory)-1])
	}
}

func TestSessionIDFormat(t *testing.T) {
	cases := []struct {
		id     string
		ok     bool
		legacy bool
	}{
		{"builder.task1", true, false},
		{"builder-prod.task1", true, false},
		{"legacyid", true, true},
		{"", false, false},
	}
	for _, c := range cases {
		ok, legacy, _ := ValidateID(c.id)
		if ok != c.ok || legacy != c.legacy {
			t.Errorf("ValidateID(%q) = (%v,%v), want (%v,%v)", c.id, ok, legacy, c.ok, c.legacy)
		}
	}
}
