package dispatch

import (
	"context"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
)

// Claim implements spec §4.4's transactional claim: read, require
// status=created, write status=active/sessionId/startedAt/lastHeartbeat.
// Every attempt is recorded as a claim_events row (outcome claimed or
// contention) for the contention-rate metric, whether or not the breaker
// is consulted by the caller first.
func (s *Store) Claim(ctx context.Context, tenantID, taskID, sessionID string) (*Task, error) {
	var result *Task
	_, err := s.Docs.CompareAndSwap(ctx, Collection, tenantID, taskID, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, ErrNotFound
		}
		t, err := decodeTask(cur)
		if err != nil {
			return nil, err
		}
		if t.Status != StatusCreated {
			return nil, &NotClaimableError{Status: t.Status}
		}
		now := time.Now().UTC()
		t.Status = StatusActive
		t.SessionID = sessionID
		t.StartedAt = &now
		t.LastHeartbeat = &now
		result = t
		return t, nil
	})

	outcome := "claimed"
	if err != nil {
		outcome = "contention"
	}
	s.recordClaimEvent(ctx, tenantID, taskID, outcome, sessionID)

	if err != nil {
		return nil, err
	}
	return result, nil
}
