package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/relay"
	"github.com/fleetwire/controlplane/internal/store"
)

type sendMessageRequest struct {
	Target         string          `json:"target" validate:"required"`
	Type           relay.Type      `json:"type" validate:"required"`
	Payload        json.RawMessage `json:"payload"`
	Priority       int             `json:"priority"`
	TTLSeconds     int             `json:"ttlSeconds"`
	IdempotencyKey string          `json:"idempotencyKey"`
	ThreadID       string          `json:"threadId"`
	ReplyTo        string          `json:"replyTo"`
}

// sendMessage handles POST /v1/messages, fanning out to a registered group
// when target names one (spec §4.5).
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}

	var ttl time.Duration
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	result, err := s.Relay.Send(r.Context(), ac.TenantID, relay.SendInput{
		Source:         ac.ProgramID,
		Target:         req.Target,
		Type:           req.Type,
		Payload:        req.Payload,
		Priority:       req.Priority,
		TTL:            ttl,
		IdempotencyKey: req.IdempotencyKey,
		ThreadID:       req.ThreadID,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, result)
}

// listMessages handles GET /v1/messages and its target-scoped variants
// (sent/history/unread share the same List query, filtered client-side by
// the caller's own target/source convention — spec §6 "representative,
// same semantics as tool layer").
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	q := r.URL.Query()
	target := q.Get("target")
	if target == "" {
		target = ac.ProgramID
	}
	msgs, err := s.Relay.List(r.Context(), ac.TenantID, relay.ListOpts{
		Target: target,
		Limit:  parseLimit(q.Get("limit"), 50, 100),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, msgs)
}

type markReadRequest struct {
	Target string `json:"target" validate:"required"`
}

// getUnreadAndMarkRead handles GET /v1/messages/unread?markAsRead=true and
// POST /v1/messages/mark_read, both backed by relay.GetMessages.
func (s *Server) getUnreadMessages(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	q := r.URL.Query()
	target := q.Get("target")
	if target == "" {
		target = ac.ProgramID
	}
	markAsRead := q.Get("markAsRead") == "true"
	msgs, err := s.Relay.GetMessages(r.Context(), ac.TenantID, target, markAsRead)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, msgs)
}

func (s *Server) markMessagesRead(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var req markReadRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "validation", err.Error())
		return
	}
	msgs, err := s.Relay.GetMessages(r.Context(), ac.TenantID, req.Target, true)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, msgs)
}

// listDeadLetters handles GET /v1/dead-letters, reading straight off the
// dead-letter collection rather than the live relay inbox.
func (s *Server) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 100)
	docs, err := s.Docs.Query(r.Context(), relay.DeadLetterCollection, ac.TenantID, store.ListOpts{Limit: limit})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]relay.Message, 0, len(docs))
	for _, d := range docs {
		var m relay.Message
		if err := json.Unmarshal(d.Payload, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	writeData(w, r, http.StatusOK, out)
}
