package dispatch

import "context"

// BatchResult is one member's outcome within a batch operation (spec §4.4:
// "Batch is not all-or-nothing ... return per-id result records").
type BatchResult struct {
	TaskID  string `json:"taskId"`
	Success bool   `json:"success"`
	Task    *Task  `json:"task,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// BatchClaim attempts Claim independently for every id in taskIDs.
func (s *Store) BatchClaim(ctx context.Context, tenantID, sessionID string, taskIDs []string) []BatchResult {
	out := make([]BatchResult, 0, len(taskIDs))
	for _, id := range taskIDs {
		t, err := s.Claim(ctx, tenantID, id, sessionID)
		if err != nil {
			out = append(out, BatchResult{TaskID: id, Success: false, Reason: err.Error()})
			continue
		}
		out = append(out, BatchResult{TaskID: id, Success: true, Task: t})
	}
	return out
}

// BatchComplete attempts Complete independently for every id in inputs.
func (s *Store) BatchComplete(ctx context.Context, tenantID string, inputs map[string]CompleteInput) []BatchResult {
	out := make([]BatchResult, 0, len(inputs))
	for id, in := range inputs {
		t, err := s.Complete(ctx, tenantID, id, in)
		if err != nil {
			out = append(out, BatchResult{TaskID: id, Success: false, Reason: err.Error()})
			continue
		}
		out = append(out, BatchResult{TaskID: id, Success: true, Task: t})
	}
	return out
}
