// Package session models session lifecycle, heartbeat/context telemetry,
// and the compliance state machine (spec §4.6). Grounded on the teacher's
// SessionStore (sessions.go) lifecycle/TTL bookkeeping, generalized from a
// fixed 30-minute sync session into the fuller compliance-bearing session.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
	"github.com/rs/zerolog/log"
)

// Collection is the tenant-scoped session document collection.
const Collection = "sessions"

// Status is the session lifecycle state (spec §3).
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
	StatusDone    Status = "done"
)

// Timeout is the policy constant (spec §5) a session is considered stale
// after, independent of the compliance machine.
const Timeout = 65 * time.Minute

// ContextHistoryCap bounds the rolling context-byte history (spec §3
// invariant 7, §4.6).
const ContextHistoryCap = 1000

// ContextWindowBytes is the fixed window spec §4.6 divides context bytes by
// to compute contextPercent.
const ContextWindowBytes = 200_000

// Session is spec §3's session entity.
type Session struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenantId"`
	ProgramID      string     `json:"programId"`
	Name           string     `json:"name"`
	Status         Status     `json:"status"`
	LastHeartbeat  time.Time  `json:"lastHeartbeat"`
	ContextHistory []int      `json:"contextHistory,omitempty"`
	Handoff        bool       `json:"handoff"`
	Archived       bool       `json:"archived"`
	Compliance     Compliance `json:"compliance"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ContextPercent reports the fraction of ContextWindowBytes the most recent
// history entry consumes.
func (s Session) ContextPercent() float64 {
	if len(s.ContextHistory) == 0 {
		return 0
	}
	return float64(s.ContextHistory[len(s.ContextHistory)-1]) / float64(ContextWindowBytes)
}

// Store persists sessions over a store.DocStore.
type Store struct {
	Docs store.DocStore
}

func NewStore(ds store.DocStore) *Store {
	return &Store{Docs: ds}
}

// Create starts a new session in PENDING_BOOT compliance with status=active.
func (s *Store) Create(ctx context.Context, tenantID, id, programID, name string) (*Session, error) {
	ok, legacy, err := ValidateID(id)
	if !ok {
		return nil, err
	}
	if legacy {
		log.Warn().Str("sessionId", id).Msg("session id uses legacy format, accepting with warning")
	}

	now := time.Now().UTC()
	sess := Session{
		ID:            id,
		TenantID:      tenantID,
		ProgramID:     programID,
		Name:          name,
		Status:        StatusActive,
		LastHeartbeat: now,
		Compliance:    NewCompliance(),
		CreatedAt:     now,
	}
	doc, err := s.Docs.Put(ctx, Collection, tenantID, id, sess)
	if err != nil {
		return nil, err
	}
	return decodeSession(doc)
}

func decodeSession(d *store.Doc) (*Session, error) {
	var s Session
	if err := json.Unmarshal(d.Payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// failOpenCompliance is what Get returns when the store read itself fails:
// a synthetic COMPLIANT record so the caller's compliance gate admits the
// request (spec §4.6: "Read failures against the compliance record fail
// open and emit a COMPLIANCE_CHECK_FAILED telemetry event").
func failOpenCompliance(tenantID, id string) *Session {
	return &Session{
		ID:         id,
		TenantID:   tenantID,
		Status:     StatusActive,
		Compliance: Compliance{State: StateCompliant},
	}
}

// Get loads a session, failing open (with a COMPLIANCE_CHECK_FAILED log
// event) rather than blocking the caller on a read error.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*Session, error) {
	doc, err := s.Docs.Get(ctx, Collection, tenantID, id)
	if err != nil {
		log.Error().Err(err).Str("event", "COMPLIANCE_CHECK_FAILED").Str("sessionId", id).
			Msg("compliance record read failed; failing open")
		return failOpenCompliance(tenantID, id), nil
	}
	return decodeSession(doc)
}

// SetStatus transitions a session's lifecycle status.
func (s *Store) SetStatus(ctx context.Context, tenantID, id string, status Status) (*Session, error) {
	var result *Session
	_, err := s.Docs.CompareAndSwap(ctx, Collection, tenantID, id, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, store.ErrNotFound
		}
		sess, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}
		sess.Status = status
		result = sess
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyEvent runs a compliance Transition and persists the result.
func (s *Store) ApplyEvent(ctx context.Context, tenantID, id string, event Event) (*Session, error) {
	var result *Session
	_, err := s.Docs.CompareAndSwap(ctx, Collection, tenantID, id, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, store.ErrNotFound
		}
		sess, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}
		sess.Compliance = Transition(sess.Compliance, event)
		result = sess
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
