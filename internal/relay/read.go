package relay

import (
	"context"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
)

// GetMessages implements spec §4.5's get_messages: pending/delivered
// messages for a target (or all, when target is empty), optionally marking
// them read and stamping readAt.
func (s *Store) GetMessages(ctx context.Context, tenantID, target string, markAsRead bool) ([]*Message, error) {
	msgs, err := s.List(ctx, tenantID, ListOpts{Target: target, Limit: 100})
	if err != nil {
		return nil, err
	}

	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Status != StatusPending && m.Status != StatusDelivered {
			continue
		}
		if markAsRead {
			updated, err := s.markRead(ctx, tenantID, m.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, updated)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) markRead(ctx context.Context, tenantID, id string) (*Message, error) {
	var result *Message
	_, err := s.Docs.CompareAndSwap(ctx, Collection, tenantID, id, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, store.ErrNotFound
		}
		m, err := decodeMessage(cur)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		m.Status = StatusRead
		m.ReadAt = &now
		if m.DeliveredAt == nil {
			m.DeliveredAt = &now
		}
		result = m
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
