package sideeffect

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueueDrainsToHandler(t *testing.T) {
	var mu sync.Mutex
	var got []Message

	q := NewQueue(8, 2, map[Kind]Handler{
		KindPushFanout: func(_ context.Context, m Message) error {
			mu.Lock()
			got = append(got, m)
			mu.Unlock()
			return nil
		},
	})

	q.Enqueue(Message{Kind: KindPushFanout, TenantID: "t1", Payload: "hello"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected handler to run within 1s")
}

func TestQueueDropsWhenSaturated(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue(1, 1, map[Kind]Handler{
		KindGitHubMirror: func(_ context.Context, m Message) error {
			<-block
			return nil
		},
	})

	// First message occupies the single worker; queue capacity is 1 so a
	// second and third enqueue exercise the non-blocking drop path.
	q.Enqueue(Message{Kind: KindGitHubMirror, TenantID: "t1"})
	time.Sleep(10 * time.Millisecond) // let the worker pick it up
	q.Enqueue(Message{Kind: KindGitHubMirror, TenantID: "t1"})
	q.Enqueue(Message{Kind: KindGitHubMirror, TenantID: "t1"}) // must not block

	close(block)
}
