package httpapi

import (
	"net/http"
	"time"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/capability"
	"github.com/go-chi/chi/v5"
)

type createKeyRequest struct {
	ProgramID        string   `json:"programId" validate:"required"`
	Capabilities     []string `json:"capabilities"`
	RateTier         string   `json:"rateTier"`
	ExpiresInSeconds int      `json:"expiresInSeconds"`
}

// createKey handles POST /v1/keys. Admin-only: gated by RequireCapability
// with an admin-only tool in the router, not here.
func (s *Server) createKey(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var req createKeyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}

	caps := make(map[string]bool, len(req.Capabilities))
	for _, c := range req.Capabilities {
		caps[c] = true
	}
	var ttl time.Duration
	if req.ExpiresInSeconds > 0 {
		ttl = time.Duration(req.ExpiresInSeconds) * time.Second
	}

	raw, rec, err := auth.CreateKey(r.Context(), s.Docs, auth.CreateKeyInput{
		TenantID:     ac.TenantID,
		ProgramID:    req.ProgramID,
		Capabilities: caps,
		RateTier:     req.RateTier,
		ExpiresIn:    ttl,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, map[string]any{"key": raw, "record": rec})
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	views, err := auth.ListKeysForTenant(r.Context(), s.Docs, ac.TenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, views)
}

func (s *Server) revokeKey(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if err := auth.RevokeKey(r.Context(), s.Docs, hash); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"revoked": true})
}

type rotateKeyRequest struct {
	Hash string `json:"hash" validate:"required"`
}

func (s *Server) rotateKey(w http.ResponseWriter, r *http.Request) {
	var req rotateKeyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	raw, rec, err := auth.RotateKey(r.Context(), s.Docs, req.Hash)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{"key": raw, "record": rec})
}

// adminKeysTool gates key-management endpoints to admin program classes
// (spec §4.3: admin-only tools).
var adminKeysTool = capability.Tool{Name: "manage_keys", RequiredCapability: "admin", RequiredScope: capability.ScopeAdmin, AdminOnly: true}
