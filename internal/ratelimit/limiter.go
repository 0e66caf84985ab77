// Package ratelimit implements the two sliding windows spec §4.2 calls for:
// per (tenant, key-hash, tool) request limiting by tier, and a per-client-IP
// brake on failed authentications. The Limiter interface is deliberately
// narrow so a distributed backend (see redislimiter.go) can replace the
// in-memory one without any caller changes (spec §9).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Tier names a rate-limit tier assigned to an API key or OAuth context
// (spec §3 "rate-limit tier").
type Tier string

const (
	TierDefault Tier = "default"
	TierBasic   Tier = "basic"
	TierPro     Tier = "pro"
	TierAdmin   Tier = "admin"
)

// TierLimit is the ceiling for one tier: MaxRequests per WindowSeconds.
type TierLimit struct {
	WindowSeconds int
	MaxRequests   int
}

// DefaultTiers mirrors the teacher's DefaultRateLimitConfig /
// DefaultAuthRateLimitConfig split (sync endpoints vs. auth/bootstrap
// endpoints get different ceilings) generalized to a tier table.
var DefaultTiers = map[Tier]TierLimit{
	TierDefault: {WindowSeconds: 60, MaxRequests: 120},
	TierBasic:   {WindowSeconds: 60, MaxRequests: 600},
	TierPro:     {WindowSeconds: 60, MaxRequests: 3000},
	TierAdmin:   {WindowSeconds: 60, MaxRequests: 6000},
}

// Decision is the result of a rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter enforces the per (tenant, keyHash, tool) sliding window.
type Limiter interface {
	Allow(ctx context.Context, tenantID, keyHash, tool string, tier Tier) (Decision, error)
}

// slidingWindow tracks request timestamps for one (tenant,keyHash,tool)
// bucket inside a single window, trimming entries older than the window on
// every check — a true sliding window rather than the teacher's fixed-bucket
// token refill, per spec §4.2/§5 ("fine-grained locking per
// (tenant,key-hash,tool). No global lock").
type slidingWindow struct {
	mu    sync.Mutex
	times []time.Time
}

// InMemoryLimiter is the default single-process Limiter.
type InMemoryLimiter struct {
	tiers map[Tier]TierLimit

	mu      sync.RWMutex
	buckets map[string]*slidingWindow
}

func NewInMemoryLimiter(tiers map[Tier]TierLimit) *InMemoryLimiter {
	if tiers == nil {
		tiers = DefaultTiers
	}
	l := &InMemoryLimiter{tiers: tiers, buckets: make(map[string]*slidingWindow)}
	go l.cleanupLoop()
	return l
}

func bucketKey(tenantID, keyHash, tool string) string {
	return tenantID + "\x00" + keyHash + "\x00" + tool
}

func (l *InMemoryLimiter) bucket(k string) *slidingWindow {
	l.mu.RLock()
	b, ok := l.buckets[k]
	l.mu.RUnlock()
	if ok {
		return b
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[k]; ok {
		return b
	}
	b = &slidingWindow{}
	l.buckets[k] = b
	return b
}

func (l *InMemoryLimiter) Allow(_ context.Context, tenantID, keyHash, tool string, tier Tier) (Decision, error) {
	limit, ok := l.tiers[tier]
	if !ok {
		limit = l.tiers[TierDefault]
	}
	window := time.Duration(limit.WindowSeconds) * time.Second

	b := l.bucket(bucketKey(tenantID, keyHash, tool))
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	kept := b.times[:0]
	for _, t := range b.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.times = kept

	if len(b.times) >= limit.MaxRequests {
		oldest := b.times[0]
		resetAt := oldest.Add(window)
		return Decision{
			Allowed:    false,
			Limit:      limit.MaxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}

	b.times = append(b.times, now)
	remaining := limit.MaxRequests - len(b.times)
	return Decision{
		Allowed:   true,
		Limit:     limit.MaxRequests,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}, nil
}

// cleanupLoop evicts buckets that have gone quiet, bounding memory growth.
func (l *InMemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		for k, b := range l.buckets {
			b.mu.Lock()
			stale := len(b.times) == 0
			b.mu.Unlock()
			if stale {
				delete(l.buckets, k)
			}
		}
		l.mu.Unlock()
	}
}

var _ Limiter = (*InMemoryLimiter)(nil)
