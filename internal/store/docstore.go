package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a document lookup misses.
var ErrNotFound = errors.New("store: document not found")

// ErrVersionConflict is returned by CompareAndSwap when the stored version
// no longer matches the caller's expected version — the signal dispatch and
// OAuth code/token mutations use to detect a lost race.
var ErrVersionConflict = errors.New("store: version conflict")

// Doc is one row of the generic document table.
type Doc struct {
	Collection string
	TenantID   string
	ID         string
	Payload    json.RawMessage
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListOpts bounds a Query call.
type ListOpts struct {
	Limit  int
	Before *time.Time // paginate strictly older than this createdAt
}

// DocStore is the narrow persistence interface every subsystem programs
// against. A single Postgres-backed implementation lives in this package;
// callers never issue SQL directly.
type DocStore interface {
	Get(ctx context.Context, collection, tenantID, id string) (*Doc, error)
	Put(ctx context.Context, collection, tenantID, id string, payload any) (*Doc, error)
	// CompareAndSwap loads the document, calls mutate with the decoded
	// payload (nil if absent) inside a transaction, and writes back
	// whatever mutate returns unless mutate returns (nil, nil) to signal
	// "no write, but treat as success" (used by idempotent sends).
	CompareAndSwap(ctx context.Context, collection, tenantID, id string, mutate func(cur *Doc) (any, error)) (*Doc, error)
	Delete(ctx context.Context, collection, tenantID, id string) error
	Query(ctx context.Context, collection, tenantID string, opts ListOpts) ([]*Doc, error)
	// QueryAll scans a collection across all tenants (used by sweep pumps).
	QueryAll(ctx context.Context, collection string, opts ListOpts) ([]*Doc, error)
}

// PG is the Postgres-backed DocStore implementation.
type PG struct {
	Pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG { return &PG{Pool: pool} }

func scanDoc(row interface {
	Scan(dest ...any) error
}, collection, tenantID string) (*Doc, error) {
	d := &Doc{Collection: collection, TenantID: tenantID}
	if err := row.Scan(&d.ID, &d.Payload, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (p *PG) Get(ctx context.Context, collection, tenantID, id string) (*Doc, error) {
	row := p.Pool.QueryRow(ctx, `
		SELECT id, payload, version, created_at, updated_at
		FROM documents WHERE collection=$1 AND tenant_id=$2 AND id=$3
	`, collection, tenantID, id)
	return scanDoc(row, collection, tenantID)
}

func (p *PG) Put(ctx context.Context, collection, tenantID, id string, payload any) (*Doc, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	row := p.Pool.QueryRow(ctx, `
		INSERT INTO documents (collection, tenant_id, id, payload, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, now(), now())
		ON CONFLICT (collection, tenant_id, id) DO UPDATE SET
			payload = EXCLUDED.payload,
			version = documents.version + 1,
			updated_at = now()
		RETURNING id, payload, version, created_at, updated_at
	`, collection, tenantID, id, raw)
	return scanDoc(row, collection, tenantID)
}

// CompareAndSwap runs mutate under SELECT ... FOR UPDATE so that concurrent
// callers serialize on the same row — this is the primitive the dispatch
// engine's claim/unclaim/complete and the OAuth code/token exchanges build
// their atomicity on (spec §5: "OAuth code/token mutations are always
// transactional reads-then-writes").
func (p *PG) CompareAndSwap(ctx context.Context, collection, tenantID, id string, mutate func(cur *Doc) (any, error)) (*Doc, error) {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var cur *Doc
	row := tx.QueryRow(ctx, `
		SELECT id, payload, version, created_at, updated_at
		FROM documents WHERE collection=$1 AND tenant_id=$2 AND id=$3
		FOR UPDATE
	`, collection, tenantID, id)
	cur, err = scanDoc(row, collection, tenantID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if errors.Is(err, ErrNotFound) {
		cur = nil
	}

	next, err := mutate(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return cur, nil
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}

	var out *Doc
	if cur == nil {
		row = tx.QueryRow(ctx, `
			INSERT INTO documents (collection, tenant_id, id, payload, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 1, now(), now())
			RETURNING id, payload, version, created_at, updated_at
		`, collection, tenantID, id, raw)
	} else {
		row = tx.QueryRow(ctx, `
			UPDATE documents SET payload=$4, version=version+1, updated_at=now()
			WHERE collection=$1 AND tenant_id=$2 AND id=$3
			RETURNING id, payload, version, created_at, updated_at
		`, collection, tenantID, id, raw)
	}
	out, err = scanDoc(row, collection, tenantID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PG) Delete(ctx context.Context, collection, tenantID, id string) error {
	_, err := p.Pool.Exec(ctx, `DELETE FROM documents WHERE collection=$1 AND tenant_id=$2 AND id=$3`,
		collection, tenantID, id)
	return err
}

func (p *PG) Query(ctx context.Context, collection, tenantID string, opts ListOpts) ([]*Doc, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	before := time.Now().UTC()
	if opts.Before != nil {
		before = *opts.Before
	}
	rows, err := p.Pool.Query(ctx, `
		SELECT id, payload, version, created_at, updated_at
		FROM documents
		WHERE collection=$1 AND tenant_id=$2 AND created_at <= $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, collection, tenantID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocs(rows, collection, tenantID)
}

func (p *PG) QueryAll(ctx context.Context, collection string, opts ListOpts) ([]*Doc, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	before := time.Now().UTC()
	if opts.Before != nil {
		before = *opts.Before
	}
	rows, err := p.Pool.Query(ctx, `
		SELECT id, tenant_id, payload, version, created_at, updated_at
		FROM documents
		WHERE collection=$1 AND created_at <= $2
		ORDER BY created_at ASC
		LIMIT $3
	`, collection, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Doc
	for rows.Next() {
		d := &Doc{Collection: collection}
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Payload, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func collectDocs(rows pgx.Rows, collection, tenantID string) ([]*Doc, error) {
	var out []*Doc
	for rows.Next() {
		d := &Doc{Collection: collection, TenantID: tenantID}
		if err := rows.Scan(&d.ID, &d.Payload, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
