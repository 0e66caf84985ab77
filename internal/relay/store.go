package relay

import (
	"context"
	"encoding/json"

	"github.com/fleetwire/controlplane/internal/store"
)

// Store persists relay messages over a store.DocStore.
type Store struct {
	Docs   store.DocStore
	Groups *GroupRegistry
}

func NewStore(ds store.DocStore) *Store {
	return &Store{Docs: ds, Groups: NewGroupRegistry()}
}

func decodeMessage(d *store.Doc) (*Message, error) {
	var m Message
	if err := json.Unmarshal(d.Payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Get loads one message by id.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*Message, error) {
	doc, err := s.Docs.Get(ctx, Collection, tenantID, id)
	if err != nil {
		return nil, err
	}
	return decodeMessage(doc)
}

// ListOpts bounds an inbox List call.
type ListOpts struct {
	Target string // empty = any
	Limit  int
}

// List returns messages for tenantID, newest first, optionally scoped to a
// target program id (spec §5: "messages are retrievable in createdAt desc").
func (s *Store) List(ctx context.Context, tenantID string, opts ListOpts) ([]*Message, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	docs, err := s.Docs.Query(ctx, Collection, tenantID, store.ListOpts{Limit: 500})
	if err != nil {
		return nil, err
	}
	out := make([]*Message, 0, len(docs))
	for _, d := range docs {
		m, err := decodeMessage(d)
		if err != nil {
			return nil, err
		}
		if opts.Target != "" && m.Target != opts.Target {
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
