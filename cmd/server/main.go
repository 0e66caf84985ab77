package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetwire/controlplane/internal/audit"
	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/config"
	"github.com/fleetwire/controlplane/internal/dispatch"
	"github.com/fleetwire/controlplane/internal/httpapi"
	"github.com/fleetwire/controlplane/internal/ratelimit"
	"github.com/fleetwire/controlplane/internal/relay"
	"github.com/fleetwire/controlplane/internal/session"
	"github.com/fleetwire/controlplane/internal/sideeffect"
	"github.com/fleetwire/controlplane/internal/store"
	"github.com/fleetwire/controlplane/internal/tenant"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "controlplane").Logger()

	cfg := config.Load()
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	var ds store.DocStore
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store (dev only)")
		ds = store.NewMem()
	} else {
		pool, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()
		ds = store.NewPG(pool)
	}

	resolver := tenant.NewAlternateMap()

	var identity *auth.IdentityVerifier
	if cfg.IdentityIssuer != "" && cfg.IdentityJWKSURL != "" {
		identity = auth.NewIdentityVerifier(auth.IdentityProviderConfig{
			Issuer:       cfg.IdentityIssuer,
			JWKSURL:      cfg.IdentityJWKSURL,
			Audience:     cfg.IdentityAud,
			ProgramAlias: cfg.IdentityAlias,
		})
		log.Info().Str("issuer", cfg.IdentityIssuer).Msg("identity JWT verification enabled")
	} else {
		log.Warn().Msg("IDENTITY_ISSUER/IDENTITY_JWKS_URL not set, identity JWT auth disabled")
	}

	authenticator := auth.NewAuthenticator(ds, resolver, identity)

	var limiter ratelimit.Limiter
	if cfg.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, using in-memory rate limiter")
		limiter = ratelimit.NewInMemoryLimiter(nil)
	} else {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		limiter = ratelimit.NewRedisLimiter(rdb, nil, "")
		log.Info().Msg("redis-backed rate limiter enabled")
	}

	dispatchStore := dispatch.NewStore(ds)
	breakers := dispatch.NewBreakerManager()
	relayStore := relay.NewStore(ds)
	sessionStore := session.NewStore(ds)

	auditLog := audit.NewLog(ds)
	ledger := audit.NewLedger(ds)
	tracer := audit.NewTracer(ds)

	sideEffects := sideeffect.NewQueue(256, 4, map[sideeffect.Kind]sideeffect.Handler{
		sideeffect.KindPushFanout: func(ctx context.Context, m sideeffect.Message) error {
			log.Debug().Str("tenantId", m.TenantID).Msg("push fanout (no-op, external collaborator)")
			return nil
		},
		sideeffect.KindGitHubMirror: func(ctx context.Context, m sideeffect.Message) error {
			log.Debug().Str("tenantId", m.TenantID).Msg("github mirror (no-op, external collaborator)")
			return nil
		},
	})

	srv := &httpapi.Server{
		Docs:          ds,
		Authenticator: authenticator,
		Identity:      identity,
		Limiter:       limiter,
		DCRBrake:      ratelimit.DefaultDCRBrake(),
		Dispatch:      dispatchStore,
		Breakers:      breakers,
		Relay:         relayStore,
		Sessions:      sessionStore,
		AuditLog:      auditLog,
		Ledger:        ledger,
		Tracer:        tracer,
		SideEffects:   sideEffects,
		OAuthIssuer:   cfg.Issuer,
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
}
