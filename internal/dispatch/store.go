package dispatch

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
	"github.com/google/uuid"
)

// Store persists tasks over a store.DocStore (spec §4.4's operations).
type Store struct {
	Docs store.DocStore
}

func NewStore(ds store.DocStore) *Store {
	return &Store{Docs: ds}
}

func decodeTask(d *store.Doc) (*Task, error) {
	var t Task
	if err := json.Unmarshal(d.Payload, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new task in status=created.
func (s *Store) Create(ctx context.Context, t Task) (*Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = StatusCreated
	t.CreatedAt = time.Now().UTC()
	doc, err := s.Docs.Put(ctx, Collection, t.TenantID, t.ID, t)
	if err != nil {
		return nil, err
	}
	return decodeTask(doc)
}

// Get loads one task by id.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*Task, error) {
	doc, err := s.Docs.Get(ctx, Collection, tenantID, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeTask(doc)
}

// Period is the calendar-window filter spec §4.4 names.
type Period string

const (
	PeriodToday     Period = "today"
	PeriodThisWeek  Period = "this_week"
	PeriodThisMonth Period = "this_month"
	PeriodAll       Period = "all"
)

// PeriodStart returns the lower bound of p relative to now, in UTC, nil for
// PeriodAll (spec §4.4: "clamp to today/this_week/this_month/all using
// calendar boundaries ... UTC by default").
func PeriodStart(p Period, now time.Time) *time.Time {
	now = now.UTC()
	switch p {
	case PeriodToday:
		t := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return &t
	case PeriodThisWeek:
		offset := int(now.Weekday())
		if offset == 0 {
			offset = 7 // treat Sunday as end of week, Monday start
		}
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(offset - 1))
		return &start
	case PeriodThisMonth:
		t := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return &t
	default:
		return nil
	}
}

// ListOpts bounds a List call.
type ListOpts struct {
	Limit  int
	Period Period
	Status Status // empty = any
}

// List returns tasks ordered by createdAt desc, tie-broken by id desc (spec
// §4.4 "Tie-breaks and ordering").
func (s *Store) List(ctx context.Context, tenantID string, opts ListOpts) ([]*Task, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	docs, err := s.Docs.Query(ctx, Collection, tenantID, store.ListOpts{Limit: 500})
	if err != nil {
		return nil, err
	}

	start := PeriodStart(opts.Period, time.Now())
	out := make([]*Task, 0, len(docs))
	for _, d := range docs {
		t, err := decodeTask(d)
		if err != nil {
			return nil, err
		}
		if start != nil && t.CreatedAt.Before(*start) {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// claimEvent is the record stamped per claim attempt (spec §4.4).
type claimEvent struct {
	TaskID    string    `json:"taskId"`
	Outcome   string    `json:"outcome"` // "claimed" | "contention"
	SessionID string    `json:"sessionId,omitempty"`
	At        time.Time `json:"at"`
}

func (s *Store) recordClaimEvent(ctx context.Context, tenantID, taskID, outcome, sessionID string) {
	ev := claimEvent{TaskID: taskID, Outcome: outcome, SessionID: sessionID, At: time.Now().UTC()}
	_, _ = s.Docs.Put(ctx, ClaimEventCollection, tenantID, uuid.NewString(), ev)
	ClaimAttemptsTotal.WithLabelValues(outcome).Inc()
}
