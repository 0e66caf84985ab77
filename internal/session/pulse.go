package session

import (
	"context"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
)

// Pulse implements the heartbeat operation (spec §4.6): stamp
// lastHeartbeat and append contextBytes to the rolling history, trimming
// to ContextHistoryCap from the front so the most recent entries survive
// (spec §3 invariant 7).
func (s *Store) Pulse(ctx context.Context, tenantID, id string, contextBytes int) (*Session, error) {
	var result *Session
	_, err := s.Docs.CompareAndSwap(ctx, Collection, tenantID, id, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, store.ErrNotFound
		}
		sess, err := decodeSession(cur)
		if err != nil {
			return nil, err
		}

		sess.LastHeartbeat = time.Now().UTC()
		sess.ContextHistory = append(sess.ContextHistory, contextBytes)
		if len(sess.ContextHistory) > ContextHistoryCap {
			sess.ContextHistory = sess.ContextHistory[len(sess.ContextHistory)-ContextHistoryCap:]
		}

		result = sess
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Stale reports whether sess hasn't heartbeat within Timeout.
func (sess Session) Stale(now time.Time) bool {
	return now.Sub(sess.LastHeartbeat) > Timeout
}
