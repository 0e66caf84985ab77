package dispatch

import (
	"context"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
)

// OrphanThreshold is the policy constant (spec §4.4, §5) at which an active
// task with a stale heartbeat is eligible for stale_recovery unclaim.
const OrphanThreshold = 30 * time.Minute

// Unclaim implements spec §4.4's transactional unclaim: require
// status=active, clear claim fields, bump unclaimCount, and flag the task
// once the counter reaches UnclaimFlagThreshold. The task remains claimable
// either way — "the circuit breaker marks but does not block" (spec §4.4).
func (s *Store) Unclaim(ctx context.Context, tenantID, taskID string, reason UnclaimReason) (*Task, error) {
	var result *Task
	_, err := s.Docs.CompareAndSwap(ctx, Collection, tenantID, taskID, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, ErrNotFound
		}
		t, err := decodeTask(cur)
		if err != nil {
			return nil, err
		}
		if t.Status != StatusActive {
			return nil, ErrNotActive
		}

		t.Status = StatusCreated
		t.SessionID = ""
		t.StartedAt = nil
		t.LastHeartbeat = nil
		t.UnclaimCount++
		r := reason
		t.LastUnclaimReason = &r
		if t.UnclaimCount >= UnclaimFlagThreshold {
			t.Flagged = true
			t.RequiresAction = true
		}
		result = t
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
