// Package sideeffect implements the bounded in-process queue §9's design
// note calls for: "a bounded in-process queue of typed side-effect messages
// consumed by dedicated workers. The primary handler returns before the
// queue drains; the queue is what makes failure open." Used for push
// fan-out and GitHub-mirror side effects triggered after a relay send or
// dispatch completion commits (spec §4.5 step 5, §7 "side effects... must
// fail open").
package sideeffect

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind discriminates the side-effect message types the queue carries.
type Kind string

const (
	KindPushFanout   Kind = "push_fanout"
	KindGitHubMirror Kind = "github_mirror"
)

// Message is one queued side effect.
type Message struct {
	Kind     Kind
	TenantID string
	Payload  any
	Attempt  int
}

// baseBackoff is the exponential retry base spec §9 names: "Retry backoff
// is exponential with base 1 s".
const baseBackoff = time.Second

const maxAttempts = 5

// Handler processes one side-effect message, returning an error to signal
// it should be retried.
type Handler func(ctx context.Context, m Message) error

// Queue is a bounded in-process worker pool draining side-effect messages.
// Unlike the relay/dispatch sweeps (invoked by an external scheduler), this
// queue's workers run for the lifetime of the process.
type Queue struct {
	ch       chan Message
	handlers map[Kind]Handler
}

// NewQueue builds a queue with the given capacity and worker count. capacity
// bounds memory; workers bounds concurrent side-effect execution.
func NewQueue(capacity, workers int, handlers map[Kind]Handler) *Queue {
	q := &Queue{ch: make(chan Message, capacity), handlers: handlers}
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Enqueue submits a message without blocking the caller's transaction path.
// If the queue is saturated, the message is dropped and logged rather than
// blocking the primary request — the same "fail open" contract the side
// effect itself must honor.
func (q *Queue) Enqueue(m Message) {
	select {
	case q.ch <- m:
	default:
		log.Warn().Str("kind", string(m.Kind)).Str("tenantId", m.TenantID).
			Msg("sideeffect queue saturated, dropping message")
	}
}

func (q *Queue) worker() {
	for m := range q.ch {
		h, ok := q.handlers[m.Kind]
		if !ok {
			log.Error().Str("kind", string(m.Kind)).Msg("sideeffect: no handler registered")
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := h(ctx, m)
		cancel()
		if err == nil {
			continue
		}
		m.Attempt++
		if m.Attempt >= maxAttempts {
			log.Error().Err(err).Str("kind", string(m.Kind)).Int("attempt", m.Attempt).
				Msg("sideeffect: giving up after max attempts")
			continue
		}
		delay := baseBackoff * time.Duration(1<<uint(m.Attempt-1))
		go func(msg Message, d time.Duration) {
			time.Sleep(d)
			q.Enqueue(msg)
		}(m, delay)
	}
}
