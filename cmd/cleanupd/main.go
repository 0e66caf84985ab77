// Command cleanupd stands in for the external scheduler SPEC_FULL §9 calls
// for: a thin binary invoking only the exported sweep operations on a
// fixed interval, with no business logic of its own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetwire/controlplane/internal/config"
	"github.com/fleetwire/controlplane/internal/dispatch"
	"github.com/fleetwire/controlplane/internal/relay"
	"github.com/fleetwire/controlplane/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "cleanupd").Logger()

	cfg := config.Load()
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	var ds store.DocStore
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	} else {
		pool, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()
		ds = store.NewPG(pool)
	}

	dispatchStore := dispatch.NewStore(ds)
	relayStore := relay.NewStore(ds)

	c := cron.New()
	spec := "@every " + cfg.CleanupInterval.String()

	if _, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if n, err := dispatch.OrphanSweep(runCtx, dispatchStore); err != nil {
			log.Error().Err(err).Msg("orphan sweep failed")
		} else if n > 0 {
			log.Info().Int("swept", n).Msg("orphan sweep")
		}

		if n, err := relay.TTLSweep(runCtx, relayStore); err != nil {
			log.Error().Err(err).Msg("relay ttl sweep failed")
		} else if n > 0 {
			log.Info().Int("deleted", n).Msg("relay ttl sweep")
		}

		if n, err := relay.DLQSweep(runCtx, relayStore); err != nil {
			log.Error().Err(err).Msg("relay dlq sweep failed")
		} else if n > 0 {
			log.Info().Int("moved", n).Msg("relay dlq sweep")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule sweep")
	}

	c.Start()
	log.Info().Str("interval", cfg.CleanupInterval.String()).Msg("cleanupd started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("cleanupd shutting down")
	stopCtx := c.Stop()
	<-stopCtx.Done()
}
