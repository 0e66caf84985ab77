package httpapi

import (
	"net/http"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/go-chi/chi/v5"
)

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 100)
	entries, err := s.AuditLog.List(r.Context(), ac.TenantID, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, entries)
}

func (s *Server) listTraces(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 100)
	spans, err := s.Tracer.List(r.Context(), ac.TenantID, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, spans)
}

func (s *Server) getTrace(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	traceID := chi.URLParam(r, "traceId")
	span, err := s.Tracer.Get(r.Context(), ac.TenantID, traceID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, span)
}
