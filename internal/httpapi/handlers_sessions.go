package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/session"
	"github.com/fleetwire/controlplane/internal/store"
	"github.com/go-chi/chi/v5"
)

type createSessionRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	sess, err := s.Sessions.Create(r.Context(), ac.TenantID, req.ID, ac.ProgramID, req.Name)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	writeData(w, r, http.StatusCreated, sess)
}

// listSessions handles GET /v1/sessions — a direct query over the tenant's
// session collection, since session.Store has no List of its own (spec §6:
// listing is a thin read, not a distinct compliance operation).
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 100)
	docs, err := s.Docs.Query(r.Context(), session.Collection, ac.TenantID, store.ListOpts{Limit: limit})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]session.Session, 0, len(docs))
	for _, d := range docs {
		var sess session.Session
		if err := json.Unmarshal(d.Payload, &sess); err != nil {
			continue
		}
		out = append(out, sess)
	}
	writeData(w, r, http.StatusOK, out)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	sess, err := s.Sessions.Get(r.Context(), ac.TenantID, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, sess)
}

// patchSessionRequest carries every field PATCH /v1/sessions/{id} may
// update. Exactly one of the optional operations is expected per call;
// a heartbeat pulse and a compliance event may both be reported together.
type patchSessionRequest struct {
	Status          *session.Status `json:"status,omitempty"`
	ContextBytes    *int            `json:"contextBytes,omitempty"`
	ComplianceEvent *session.Event  `json:"complianceEvent,omitempty"`
}

func (s *Server) patchSession(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	id := chi.URLParam(r, "id")
	var req patchSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}

	var sess *session.Session
	var err error
	if req.ContextBytes != nil {
		sess, err = s.Sessions.Pulse(r.Context(), ac.TenantID, id, *req.ContextBytes)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	if req.ComplianceEvent != nil {
		sess, err = s.Sessions.ApplyEvent(r.Context(), ac.TenantID, id, *req.ComplianceEvent)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	if req.Status != nil {
		sess, err = s.Sessions.SetStatus(r.Context(), ac.TenantID, id, *req.Status)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	if sess == nil {
		sess, err = s.Sessions.Get(r.Context(), ac.TenantID, id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	writeData(w, r, http.StatusOK, sess)
}
