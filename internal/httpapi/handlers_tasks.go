package httpapi

import (
	"net/http"

	"github.com/fleetwire/controlplane/internal/audit"
	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/dispatch"
	"github.com/go-chi/chi/v5"
)

// ledgerEntryFor turns a completed task's usage numerics into a cost-ledger
// row; Complete itself stays ignorant of audit (spec §4.4's completion path
// only owns the task transition, not the ledger write).
func ledgerEntryFor(tenantID, actorProgram string, t *dispatch.Task, in dispatch.CompleteInput) audit.LedgerEntry {
	return audit.LedgerEntry{
		TenantID:     tenantID,
		ActorProgram: actorProgram,
		TaskID:       t.ID,
		Tokens:       int64(in.Tokens),
		CostMicros:   in.CostMicros,
	}
}

// createTaskRequest is the POST /v1/tasks body. The same shape backs
// /v1/questions, /v1/sprints, /v1/sprint-stories, and /v1/dream — those
// routes set Type before decoding and otherwise share this handler (spec
// §6: "representative, same semantics as tool layer").
type createTaskRequest struct {
	Title          string `json:"title" validate:"required"`
	Instructions   string `json:"instructions" validate:"required"`
	TargetProgram  string `json:"targetProgram" validate:"required"`
	Priority       int    `json:"priority"`
	DispatchAction string `json:"dispatchAction"`
	IdempotencyKey string `json:"idempotencyKey"`
}

func (s *Server) createTask(taskType dispatch.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, _ := auth.FromContext(r.Context())
		var req createTaskRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
			return
		}

		t := dispatch.Task{
			TenantID:       ac.TenantID,
			Title:          req.Title,
			Instructions:   req.Instructions,
			Type:           taskType,
			SourceProgram:  ac.ProgramID,
			TargetProgram:  req.TargetProgram,
			Priority:       req.Priority,
			DispatchAction: req.DispatchAction,
			IdempotencyKey: req.IdempotencyKey,
		}
		created, err := s.Dispatch.Create(r.Context(), t)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeData(w, r, http.StatusCreated, created)
	}
}

// listTasks handles GET /v1/tasks?period=&status=&limit=.
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	q := r.URL.Query()

	opts := dispatch.ListOpts{
		Limit:  parseLimit(q.Get("limit"), 50, 100),
		Period: dispatch.Period(q.Get("period")),
		Status: dispatch.Status(q.Get("status")),
	}
	tasks, err := s.Dispatch.List(r.Context(), ac.TenantID, opts)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	t, err := s.Dispatch.Get(r.Context(), ac.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, t)
}

// claimTask handles POST /v1/tasks/{id}/claim. Runs through the per
// (tenant, targetProgram) breaker so a hot task under heavy contention
// sheds load instead of hammering the store.
func (s *Server) claimTask(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	sessionID := GetSessionID(r.Context())

	t, err := s.Dispatch.Get(r.Context(), ac.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	claimed, err := s.Breakers.ClaimWithBreaker(r.Context(), s.Dispatch, ac.TenantID, t.TargetProgram, id, sessionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, claimed)
}

type unclaimRequest struct {
	Reason dispatch.UnclaimReason `json:"reason" validate:"required"`
}

func (s *Server) unclaimTask(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	var req unclaimRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	t, err := s.Dispatch.Unclaim(r.Context(), ac.TenantID, id, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, t)
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	var req dispatch.CompleteInput
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	t, err := s.Dispatch.Complete(r.Context(), ac.TenantID, id, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if s.Ledger != nil && (req.Tokens > 0 || req.CostMicros > 0) {
		_ = s.Ledger.Record(r.Context(), ledgerEntryFor(ac.TenantID, ac.ProgramID, t, req))
	}
	writeData(w, r, http.StatusOK, t)
}

type batchClaimRequest struct {
	TaskIDs []string `json:"taskIds" validate:"required,min=1,max=100"`
}

func (s *Server) batchClaimTasks(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	sessionID := GetSessionID(r.Context())
	var req batchClaimRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	results := s.Dispatch.BatchClaim(r.Context(), ac.TenantID, sessionID, req.TaskIDs)
	writeData(w, r, http.StatusOK, results)
}

type batchCompleteRequest struct {
	Completions map[string]dispatch.CompleteInput `json:"completions" validate:"required,min=1,max=100"`
}

func (s *Server) batchCompleteTasks(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var req batchCompleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	results := s.Dispatch.BatchComplete(r.Context(), ac.TenantID, req.Completions)
	writeData(w, r, http.StatusOK, results)
}
