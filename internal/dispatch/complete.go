package dispatch

import (
	"context"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
)

// CompleteInput carries the fields a completion report may set (spec §4.4).
type CompleteInput struct {
	Outcome      Outcome
	ErrorCode    string
	ErrorClass   ErrorClass
	Tokens       int
	CostMicros   int64
	Result       string
	TTLExpired   bool // true when driven by the TTL sweep, not a caller report
}

func validOutcome(o Outcome) bool {
	switch o {
	case OutcomeSuccess, OutcomeFailed, OutcomeSkipped, OutcomeCancelled:
		return true
	default:
		return false
	}
}

// Complete implements spec §4.4's transactional complete: require
// status=active, transition to done (on SUCCESS/SKIPPED) or failed
// (FAILED/CANCELLED), recording the outcome enum, optional error
// code/class, usage numerics, and a truncated result string.
func (s *Store) Complete(ctx context.Context, tenantID, taskID string, in CompleteInput) (*Task, error) {
	if !validOutcome(in.Outcome) {
		return nil, ErrInvalidOutcome
	}

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

		now := time.Now().UTC()
		outcome := in.Outcome
		t.Outcome = &outcome
		t.ErrorCode = in.ErrorCode
		t.ErrorClass = in.ErrorClass
		t.Tokens = in.Tokens
		t.CostMicros = in.CostMicros
		t.ResultTruncated = truncateResult(in.Result)
		t.CompletedAt = &now
		if in.ErrorClass == ErrorClassTimeout && in.TTLExpired {
			t.ExpiryReason = ExpiryReasonTTLExpired
		}

		switch outcome {
		case OutcomeSuccess, OutcomeSkipped:
			t.Status = StatusDone
		case OutcomeFailed, OutcomeCancelled:
			t.Status = StatusFailed
		}

		result = t
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
