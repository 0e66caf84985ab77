package relay

import (
	"context"
	"testing"

	"github.com/fleetwire/controlplane/internal/store"
)

func newTestStore() *Store {
	return NewStore(store.NewMem())
}

func TestSendIdempotency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	in := SendInput{Source: "orchestrator", Target: "builder", Type: TypeDirective, IdempotencyKey: "key-1"}
	first, err := s.Send(ctx, "t1", in)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if first.Cached {
		t.Fatalf("first send should not be cached")
	}

	second, err := s.Send(ctx, "t1", in)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if !second.Cached {
		t.Fatalf("second send should hit idempotency cache")
	}
	if len(second.Messages) != 1 || second.Messages[0].ID != first.Messages[0].ID {
		t.Fatalf("expected same message returned, got %+v vs %+v", first.Messages, second.Messages)
	}

	all, err := s.List(ctx, "t1", ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly 1 stored message for the idempotency key, got %d", len(all))
	}
}

func TestSendGroupFanout(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	result, err := s.Send(ctx, "t1", SendInput{Source: "orchestrator", Target: "all", Type: TypeStatus})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	members, _ := s.Groups.Members("all")
	if len(result.Messages) != len(members) {
		t.Fatalf("expected %d fanned-out messages, got %d", len(members), len(result.Messages))
	}
	threadID := result.Messages[0].ThreadID
	if threadID == "" {
		t.Fatalf("expected a shared thread id")
	}
	for _, m := range result.Messages {
		if m.ThreadID != threadID {
			t.Fatalf("expected all fanned-out messages to share a thread id")
		}
	}
}

func TestSendUnknownGroup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	_, err := s.Send(ctx, "t1", SendInput{Source: "orchestrator", Target: "nonexistent-group", Type: TypeStatus})
	if _, ok := err.(*ErrUnknownGroup); !ok {
		t.Fatalf("expected ErrUnknownGroup, got %v", err)
	}
}

func TestDirectiveAckCorrelation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	directive, err := s.Send(ctx, "t1", SendInput{Source: "orchestrator", Target: "builder", Type: TypeDirective})
	if err != nil {
		t.Fatalf("send directive: %v", err)
	}
	directiveID := directive.Messages[0].ID

	report, err := s.AckCompliance(ctx, "t1")
	if err != nil {
		t.Fatalf("ack compliance: %v", err)
	}
	if report.Total != 1 || report.Acknowledged != 0 {
		t.Fatalf("expected 1 unacked directive, got %+v", report)
	}

	if _, err := s.Send(ctx, "t1", SendInput{Source: "builder", Target: "orchestrator", Type: TypeAck, ReplyTo: directiveID}); err != nil {
		t.Fatalf("send ack: %v", err)
	}

	report, err = s.AckCompliance(ctx, "t1")
	if err != nil {
		t.Fatalf("ack compliance after ack: %v", err)
	}
	if report.Total != 1 || report.Acknowledged != 1 || report.Rate != 100.0 {
		t.Fatalf("expected fully acknowledged report, got %+v", report)
	}
}

func TestGetMessagesMarksRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	if _, err := s.Send(ctx, "t1", SendInput{Source: "orchestrator", Target: "builder", Type: TypeStatus}); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := s.GetMessages(ctx, "t1", "builder", true)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Status != StatusRead || msgs[0].ReadAt == nil {
		t.Fatalf("expected message marked read, got %+v", msgs)
	}

	again, err := s.GetMessages(ctx, "t1", "builder", false)
	if err != nil {
		t.Fatalf("get messages again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected already-read message excluded from pending/delivered view, got %d", len(again))
	}
}
