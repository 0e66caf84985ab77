package dispatch

import (
	"context"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
	"github.com/rs/zerolog/log"
)

// OrphanSweep scans every tenant's active tasks and unclaims any whose
// heartbeat is older than OrphanThreshold, recording reason=stale_recovery
// (spec §4.4 "Orphan sweep semantics"). Intended to be invoked periodically
// by an external scheduler (cmd/cleanupd).
func OrphanSweep(ctx context.Context, s *Store) (swept int, err error) {
	docs, err := s.Docs.QueryAll(ctx, Collection, store.ListOpts{Limit: 500})
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-OrphanThreshold)
	for _, d := range docs {
		t, err := decodeTask(d)
		if err != nil {
			log.Error().Err(err).Str("taskId", d.ID).Msg("orphan sweep: failed to decode task")
			continue
		}
		if t.Status != StatusActive || t.LastHeartbeat == nil || t.LastHeartbeat.After(cutoff) {
			continue
		}
		if _, err := s.Unclaim(ctx, t.TenantID, t.ID, UnclaimStaleRecovery); err != nil {
			log.Warn().Err(err).Str("taskId", t.ID).Msg("orphan sweep: unclaim failed")
			continue
		}
		swept++
	}
	return swept, nil
}
