package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/dispatch"
	"github.com/fleetwire/controlplane/internal/relay"
	"github.com/fleetwire/controlplane/internal/session"
	"github.com/fleetwire/controlplane/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) costSummary(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	summary, err := s.Ledger.Summary(r.Context(), ac.TenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, summary)
}

func (s *Server) contentionMetrics(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	period := dispatch.Period(r.URL.Query().Get("period"))
	report, err := s.Dispatch.ContentionMetrics(r.Context(), ac.TenantID, period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, report)
}

func (s *Server) ackCompliance(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	report, err := s.Relay.AckCompliance(r.Context(), ac.TenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, report)
}

// commsReport counts relay traffic by message type, feeding /v1/metrics/comms.
type commsReport struct {
	ByType map[relay.Type]int `json:"byType"`
	Total  int                `json:"total"`
}

func (s *Server) commsMetrics(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	msgs, err := s.Relay.List(r.Context(), ac.TenantID, relay.ListOpts{Limit: 100})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	report := commsReport{ByType: make(map[relay.Type]int)}
	for _, m := range msgs {
		report.ByType[m.Type]++
		report.Total++
	}
	writeData(w, r, http.StatusOK, report)
}

// operationalReport counts tasks by lifecycle status, feeding
// /v1/metrics/operational.
type operationalReport struct {
	ByStatus map[dispatch.Status]int `json:"byStatus"`
	Flagged  int                     `json:"flagged"`
	Total    int                     `json:"total"`
}

func (s *Server) operationalMetrics(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	tasks, err := s.Dispatch.List(r.Context(), ac.TenantID, dispatch.ListOpts{Limit: 100})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	report := operationalReport{ByStatus: make(map[dispatch.Status]int)}
	for _, t := range tasks {
		report.ByStatus[t.Status]++
		report.Total++
		if t.Flagged {
			report.Flagged++
		}
	}
	writeData(w, r, http.StatusOK, report)
}

// contextUtilizationReport averages live sessions' context window usage,
// feeding /v1/metrics/context-utilization (spec §4.6's contextPercent).
type contextUtilizationReport struct {
	AveragePercent float64 `json:"averagePercent"`
	MaxPercent     float64 `json:"maxPercent"`
	SessionCount   int     `json:"sessionCount"`
}

func (s *Server) contextUtilizationMetrics(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	docs, err := s.Docs.Query(r.Context(), session.Collection, ac.TenantID, store.ListOpts{Limit: 500})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var report contextUtilizationReport
	var sum float64
	for _, d := range docs {
		var sess session.Session
		if err := json.Unmarshal(d.Payload, &sess); err != nil {
			continue
		}
		pct := sess.ContextPercent()
		sum += pct
		if pct > report.MaxPercent {
			report.MaxPercent = pct
		}
		report.SessionCount++
	}
	if report.SessionCount > 0 {
		report.AveragePercent = sum / float64(report.SessionCount)
	}
	writeData(w, r, http.StatusOK, report)
}

// prometheusHandler serves /metrics for the Prometheus counters dispatch
// and the rest of the domain stack register.
func prometheusHandler() http.Handler {
	return promhttp.Handler()
}
