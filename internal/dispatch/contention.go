package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ClaimAttemptsTotal and ClaimsWonTotal feed /v1/metrics/contention
	// (spec §4.4: "Contention counters are exported as Prometheus
	// gauges/counters").
	ClaimAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_dispatch_claim_attempts_total",
		Help: "Total claim attempts, labeled by outcome (claimed|contention).",
	}, []string{"outcome"})

	BreakerOpenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_dispatch_breaker_open_total",
		Help: "Total times a (tenant, target program) reclaim breaker tripped open.",
	}, []string{"target_program"})
)

func init() {
	prometheus.MustRegister(ClaimAttemptsTotal, BreakerOpenTotal)
}

// ContentionReport is the response shape for get_contention_metrics
// (spec §8 scenario 1: "claimsAttempted=2, claimsWon=1, contentionRate=50.0").
type ContentionReport struct {
	ClaimsAttempted int     `json:"claimsAttempted"`
	ClaimsWon       int     `json:"claimsWon"`
	ContentionRate  float64 `json:"contentionRate"`
}

// ContentionMetrics computes the contention report over claim_events for
// tenantID within the given period.
func (s *Store) ContentionMetrics(ctx context.Context, tenantID string, period Period) (ContentionReport, error) {
	docs, err := s.Docs.Query(ctx, ClaimEventCollection, tenantID, store.ListOpts{Limit: 5000})
	if err != nil {
		return ContentionReport{}, err
	}

	start := PeriodStart(period, time.Now())
	var attempted, won int
	for _, d := range docs {
		var ev claimEvent
		if err := json.Unmarshal(d.Payload, &ev); err != nil {
			continue
		}
		if start != nil && ev.At.Before(*start) {
			continue
		}
		attempted++
		if ev.Outcome == "claimed" {
			won++
		}
	}

	rate := 0.0
	if attempted > 0 {
		rate = float64(attempted-won) / float64(attempted) * 100
	}
	return ContentionReport{ClaimsAttempted: attempted, ClaimsWon: won, ContentionRate: rate}, nil
}
