package relay

import (
	"context"
	"time"

	"github.com/fleetwire/controlplane/internal/store"
	"github.com/rs/zerolog/log"
)

// TTLSweep implements spec §4.5's TTL sweep pump: delete expired pending
// rows and delivered rows older than 2x the default TTL. Intended to be
// invoked periodically by an external scheduler (cmd/cleanupd).
func TTLSweep(ctx context.Context, s *Store) (deleted int, err error) {
	docs, err := s.Docs.QueryAll(ctx, Collection, store.ListOpts{Limit: SweepBatchLimit})
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, d := range docs {
		m, err := decodeMessage(d)
		if err != nil {
			log.Error().Err(err).Str("messageId", d.ID).Msg("ttl sweep: failed to decode message")
			continue
		}

		var expired bool
		switch m.Status {
		case StatusPending:
			expired = now.After(m.ExpiresAt)
		case StatusDelivered:
			expired = now.Sub(m.CreatedAt) > DeliveredRetention
		}
		if !expired {
			continue
		}
		if err := s.Docs.Delete(ctx, Collection, m.TenantID, m.ID); err != nil {
			log.Warn().Err(err).Str("messageId", m.ID).Msg("ttl sweep: delete failed")
			continue
		}
		deleted++
	}
	return deleted, nil
}

// DLQSweep implements spec §4.5's dead-letter sweep pump: bump
// deliveryAttempts on aged pending rows, moving rows that exhaust
// MaxDeliveryAttempts into DeadLetterCollection.
func DLQSweep(ctx context.Context, s *Store) (moved int, err error) {
	docs, err := s.Docs.QueryAll(ctx, Collection, store.ListOpts{Limit: SweepBatchLimit})
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-DLQAge)
	for _, d := range docs {
		m, err := decodeMessage(d)
		if err != nil {
			log.Error().Err(err).Str("messageId", d.ID).Msg("dlq sweep: failed to decode message")
			continue
		}
		if m.Status != StatusPending || m.CreatedAt.After(cutoff) {
			continue
		}

		m.DeliveryAttempts++
		if m.DeliveryAttempts < MaxDeliveryAttempts {
			if _, err := s.Docs.Put(ctx, Collection, m.TenantID, m.ID, m); err != nil {
				log.Warn().Err(err).Str("messageId", m.ID).Msg("dlq sweep: attempt bump failed")
			}
			continue
		}

		m.Status = StatusDeadLetter
		if _, err := s.Docs.Put(ctx, DeadLetterCollection, m.TenantID, m.ID, m); err != nil {
			log.Warn().Err(err).Str("messageId", m.ID).Msg("dlq sweep: move failed")
			continue
		}
		if err := s.Docs.Delete(ctx, Collection, m.TenantID, m.ID); err != nil {
			log.Warn().Err(err).Str("messageId", m.ID).Msg("dlq sweep: cleanup delete failed")
			continue
		}
		moved++
	}
	return moved, nil
}
