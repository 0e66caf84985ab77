package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
	"github.com/google/uuid"
)

// IdempotencyCollection backs spec §3 invariant 5 ("for a given idempotency
// key + tenant, a relay send produces at most one stored message").
const IdempotencyCollection = "relay_idempotency"

type idempotencyRecord struct {
	MessageIDs []string  `json:"messageIds"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SendInput is the set of inputs spec §4.5's send operation accepts.
type SendInput struct {
	Source         string
	Target         string // program id or group name
	Type           Type
	Payload        json.RawMessage
	Priority       int
	TTL            time.Duration // zero = DefaultTTL
	IdempotencyKey string
	ThreadID       string
	ReplyTo        string
}

// SendResult is the outcome of Send: the messages actually (or previously)
// stored, and whether this call hit the idempotency cache.
type SendResult struct {
	Messages []*Message
	Cached   bool
}

// Send implements spec §4.5's resolution steps: group expansion, idempotency
// check, persistence, DIRECTIVE audit, and (by the caller, post-commit)
// fire-and-forget side effects.
func (s *Store) Send(ctx context.Context, tenantID string, in SendInput) (*SendResult, error) {
	targets := []string{in.Target}
	threadID := in.ThreadID
	if s.Groups.IsGroup(in.Target) {
		members, err := s.Groups.Members(in.Target)
		if err != nil {
			return nil, err
		}
		targets = members
		if threadID == "" {
			threadID = uuid.NewString()
		}
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	ids := make([]string, len(targets))
	for i := range targets {
		ids[i] = uuid.NewString()
	}

	if in.IdempotencyKey != "" {
		var claimedFirst bool
		doc, err := s.Docs.CompareAndSwap(ctx, IdempotencyCollection, tenantID, in.IdempotencyKey, func(cur *store.Doc) (any, error) {
			if cur != nil {
				return nil, nil
			}
			claimedFirst = true
			return idempotencyRecord{MessageIDs: ids, CreatedAt: time.Now().UTC()}, nil
		})
		if err != nil {
			return nil, err
		}
		if !claimedFirst {
			var rec idempotencyRecord
			if err := json.Unmarshal(doc.Payload, &rec); err != nil {
				return nil, err
			}
			msgs, err := s.fetchByIDs(ctx, tenantID, rec.MessageIDs)
			if err != nil {
				return nil, err
			}
			return &SendResult{Messages: msgs, Cached: true}, nil
		}
	}

	now := time.Now().UTC()
	msgs := make([]*Message, 0, len(targets))
	for i, target := range targets {
		m := Message{
			ID:             ids[i],
			TenantID:       tenantID,
			Source:         in.Source,
			Target:         target,
			Type:           in.Type,
			Payload:        in.Payload,
			Priority:       in.Priority,
			Status:         StatusPending,
			CreatedAt:      now,
			ExpiresAt:      now.Add(ttl),
			ThreadID:       threadID,
			IdempotencyKey: in.IdempotencyKey,
			ReplyTo:        in.ReplyTo,
		}
		doc, err := s.Docs.Put(ctx, Collection, tenantID, m.ID, m)
		if err != nil {
			return nil, err
		}
		stored, err := decodeMessage(doc)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, stored)

		if in.Type == TypeDirective {
			if err := s.recordDirective(ctx, tenantID, stored.ID); err != nil {
				return nil, err
			}
		}
		if in.Type == TypeAck && in.ReplyTo != "" {
			if err := s.correlateAck(ctx, tenantID, in.ReplyTo, stored.ID); err != nil {
				return nil, err
			}
		}
	}

	return &SendResult{Messages: msgs}, nil
}

func (s *Store) fetchByIDs(ctx context.Context, tenantID string, ids []string) ([]*Message, error) {
	out := make([]*Message, 0, len(ids))
	for _, id := range ids {
		m, err := s.Get(ctx, tenantID, id)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) recordDirective(ctx context.Context, tenantID, messageID string) error {
	rec := DirectiveAudit{MessageID: messageID, TenantID: tenantID, CreatedAt: time.Now().UTC()}
	_, err := s.Docs.Put(ctx, DirectiveAuditCollection, tenantID, messageID, rec)
	return err
}

// correlateAck implements spec §3 invariant 6 / §4.5's ACK correlation:
// mark the DIRECTIVE audit record acknowledged once an ACK with a matching
// reply-to is sent.
func (s *Store) correlateAck(ctx context.Context, tenantID, directiveID, ackMessageID string) error {
	_, err := s.Docs.CompareAndSwap(ctx, DirectiveAuditCollection, tenantID, directiveID, func(cur *store.Doc) (any, error) {
		if cur == nil {
			return nil, nil
		}
		var rec DirectiveAudit
		if err := json.Unmarshal(cur.Payload, &rec); err != nil {
			return nil, err
		}
		if rec.Acknowledged {
			return nil, nil
		}
		now := time.Now().UTC()
		rec.Acknowledged = true
		rec.AckedAt = &now
		rec.AckMessageID = ackMessageID
		return rec, nil
	})
	return err
}
