// Package store provides the document-store abstraction the rest of the
// control plane programs against. The underlying document store is out of
// scope for this system (see spec §1 Non-goals); this package implements
// just enough of one, on top of Postgres, to give the dispatch, relay, and
// OAuth subsystems the transactional single-winner semantics they require.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Open creates a new PostgreSQL connection pool backing the document store.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("postgres connection pool created")

	return pool, nil
}

// Schema is the DDL for the generic document table. Applied by operators at
// deploy time (no migration framework is wired here; the teacher's repo does
// not carry one either).
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection  text NOT NULL,
	tenant_id   text NOT NULL,
	id          text NOT NULL,
	payload     jsonb NOT NULL,
	version     int NOT NULL DEFAULT 1,
	created_at  timestamptz NOT NULL DEFAULT now(),
	updated_at  timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, tenant_id, id)
);
CREATE INDEX IF NOT EXISTS documents_tenant_collection_created_idx
	ON documents (collection, tenant_id, created_at DESC);
`

// GlobalTenant is the pseudo tenant used for entities that are keyed only by
// their own id (key index, OAuth client/pending-auth/code/token) per spec §3.
const GlobalTenant = "_global"
