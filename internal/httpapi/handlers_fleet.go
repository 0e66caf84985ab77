package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/dispatch"
	"github.com/fleetwire/controlplane/internal/session"
	"github.com/fleetwire/controlplane/internal/store"
	"github.com/google/uuid"
)

// fleetHealthReport is a thin read view combining session liveness and
// dispatch contention — not a new store, per SPEC_FULL §9.
type fleetHealthReport struct {
	ActiveSessions int                        `json:"activeSessions"`
	StaleSessions  int                        `json:"staleSessions"`
	Contention     dispatch.ContentionReport  `json:"contention"`
}

func (s *Server) fleetHealth(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	docs, err := s.Docs.Query(r.Context(), session.Collection, ac.TenantID, store.ListOpts{Limit: 500})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	now := time.Now().UTC()
	var report fleetHealthReport
	for _, d := range docs {
		var sess session.Session
		if err := json.Unmarshal(d.Payload, &sess); err != nil {
			continue
		}
		if sess.Status != session.StatusActive {
			continue
		}
		if sess.Stale(now) {
			report.StaleSessions++
			continue
		}
		report.ActiveSessions++
	}

	contention, err := s.Dispatch.ContentionMetrics(r.Context(), ac.TenantID, dispatch.PeriodToday)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	report.Contention = contention
	writeData(w, r, http.StatusOK, report)
}

// fleetTimelineEntry is one row of the fleet activity timeline, assembled
// from task lifecycle timestamps rather than a dedicated event log.
type fleetTimelineEntry struct {
	TaskID    string           `json:"taskId"`
	Status    dispatch.Status  `json:"status"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (s *Server) fleetTimeline(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 100)
	tasks, err := s.Dispatch.List(r.Context(), ac.TenantID, dispatch.ListOpts{Limit: limit})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]fleetTimelineEntry, 0, len(tasks))
	for _, t := range tasks {
		updated := t.CreatedAt
		if t.CompletedAt != nil {
			updated = *t.CompletedAt
		} else if t.StartedAt != nil {
			updated = *t.StartedAt
		}
		out = append(out, fleetTimelineEntry{TaskID: t.ID, Status: t.Status, UpdatedAt: updated})
	}
	writeData(w, r, http.StatusOK, out)
}

// fleetSnapshotCollection stores point-in-time fleet snapshots, keyed by a
// generated id (spec §6 POST /v1/fleet/snapshots).
const fleetSnapshotCollection = "fleet_snapshots"

type fleetSnapshot struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Health    fleetHealthReport `json:"health"`
	CreatedAt time.Time         `json:"createdAt"`
}

// fleetSnapshotRequest is POST /v1/fleet/snapshots's (empty) body; present
// for symmetry with the other handlers and future annotation fields.
type fleetSnapshotRequest struct {
	Label string `json:"label"`
}

func (s *Server) createFleetSnapshot(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	var req fleetSnapshotRequest
	_ = decodeBody(w, r, &req) // snapshot label is optional; ignore decode errors on an empty body

	docs, err := s.Docs.Query(r.Context(), session.Collection, ac.TenantID, store.ListOpts{Limit: 500})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	now := time.Now().UTC()
	var health fleetHealthReport
	for _, d := range docs {
		var sess session.Session
		if err := json.Unmarshal(d.Payload, &sess); err != nil {
			continue
		}
		if sess.Status != session.StatusActive {
			continue
		}
		if sess.Stale(now) {
			health.StaleSessions++
			continue
		}
		health.ActiveSessions++
	}
	contention, err := s.Dispatch.ContentionMetrics(r.Context(), ac.TenantID, dispatch.PeriodToday)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	health.Contention = contention

	snap := fleetSnapshot{ID: uuid.NewString(), TenantID: ac.TenantID, Health: health, CreatedAt: now}
	if _, err := s.Docs.Put(r.Context(), fleetSnapshotCollection, ac.TenantID, snap.ID, snap); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, snap)
}
