package relay

import (
	"context"
	"encoding/json"

	"github.com/fleetwire/controlplane/internal/store"
)

// AckComplianceReport is spec §4.5's "acknowledged / total per period"
// compliance reporter output.
type AckComplianceReport struct {
	Total        int     `json:"total"`
	Acknowledged int     `json:"acknowledged"`
	Rate         float64 `json:"rate"`
}

// AckCompliance computes the acknowledged/total ratio over every DIRECTIVE
// audit record for tenantID.
func (s *Store) AckCompliance(ctx context.Context, tenantID string) (AckComplianceReport, error) {
	docs, err := s.Docs.Query(ctx, DirectiveAuditCollection, tenantID, store.ListOpts{Limit: 5000})
	if err != nil {
		return AckComplianceReport{}, err
	}

	var total, acked int
	for _, d := range docs {
		var rec DirectiveAudit
		if err := json.Unmarshal(d.Payload, &rec); err != nil {
			continue
		}
		total++
		if rec.Acknowledged {
			acked++
		}
	}

	rate := 0.0
	if total > 0 {
		rate = float64(acked) / float64(total) * 100
	}
	return AckComplianceReport{Total: total, Acknowledged: acked, Rate: rate}, nil
}
