// Package tenant resolves an authenticated subject to its canonical tenant
// id. Per spec §9's design note, the resolution strategy is a small
// interface so alternate-identity schemes are pluggable without touching
// callers; only an in-memory implementation ships here.
package tenant

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Resolver maps a non-canonical identifier (an IdP subject, a legacy
// organization id, ...) to the canonical tenant id the rest of the system
// uses to scope documents.
type Resolver interface {
	// Canonical returns the canonical tenant id for subject. ok is false
	// when no alternate mapping exists — callers should fall back to
	// treating subject itself as canonical (spec §4.1: "Resolution errors
	// must log but never fail authentication").
	Canonical(ctx context.Context, subject string) (tenantID string, ok bool)
	// ReverseEnumerate lists every alternate identifier that maps to a
	// canonical tenant id, used by admin tooling and tests.
	ReverseEnumerate(ctx context.Context, tenantID string) []string
}

// AlternateMap is an in-memory Resolver backed by a two-way map. Safe for
// concurrent use.
type AlternateMap struct {
	mu        sync.RWMutex
	toCanon   map[string]string
	fromCanon map[string][]string
}

func NewAlternateMap() *AlternateMap {
	return &AlternateMap{
		toCanon:   make(map[string]string),
		fromCanon: make(map[string][]string),
	}
}

// Register records that alternateID resolves to canonicalTenantID.
func (m *AlternateMap) Register(alternateID, canonicalTenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toCanon[alternateID] = canonicalTenantID
	m.fromCanon[canonicalTenantID] = append(m.fromCanon[canonicalTenantID], alternateID)
}

func (m *AlternateMap) Canonical(ctx context.Context, subject string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.toCanon[subject]
	if !ok {
		log.Ctx(ctx).Debug().Str("subject", subject).Msg("no alternate-identity mapping; using subject as tenant id")
	}
	return id, ok
}

func (m *AlternateMap) ReverseEnumerate(_ context.Context, tenantID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.fromCanon[tenantID]))
	copy(out, m.fromCanon[tenantID])
	return out
}

// Resolve applies a Resolver, falling back to subject itself when no
// mapping exists, and never failing — matching spec §4.1's "resolution
// failure never blocks authentication, only tenant scoping".
func Resolve(ctx context.Context, r Resolver, subject string) string {
	if r == nil {
		return subject
	}
	if canon, ok := r.Canonical(ctx, subject); ok {
		return canon
	}
	return subject
}

var _ Resolver = (*AlternateMap)(nil)
