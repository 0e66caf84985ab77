package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPBrake rate-limits by client IP independent of tenant/key, used for two
// purposes the spec calls out:
//   - §4.2: a brake on failed authentications only (successful auth does not
//     charge), so offline attackers can't distinguish unknown credentials
//     from valid-but-throttled ones.
//   - §4.7: DCR is capped at 10 registrations/hour/IP.
//
// Built on golang.org/x/time/rate, a real token-bucket-with-refill
// implementation rather than another hand-rolled one — this is the
// "distributed backend must be able to replace it without touching call
// sites" seam applied to a single-IP-keyed window (§9).
type IPBrake struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPBrake builds a brake allowing `burst` immediate hits and refilling
// at perWindow/window thereafter.
func NewIPBrake(perWindow int, window time.Duration, burst int) *IPBrake {
	b := &IPBrake{
		limiters: make(map[string]*ipEntry),
		rate:     rate.Every(window / time.Duration(perWindow)),
		burst:    burst,
		idleTTL:  window * 4,
	}
	go b.cleanupLoop()
	return b
}

// Allow reports whether ip may proceed, consuming one token if so.
func (b *IPBrake) Allow(ip string) bool {
	host := ip
	if h, _, err := net.SplitHostPort(ip); err == nil {
		host = h
	}

	b.mu.Lock()
	entry, ok := b.limiters[host]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(b.rate, b.burst)}
		b.limiters[host] = entry
	}
	entry.lastSeen = time.Now()
	limiter := entry.limiter
	b.mu.Unlock()

	return limiter.Allow()
}

func (b *IPBrake) cleanupLoop() {
	ticker := time.NewTicker(b.idleTTL)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-b.idleTTL)
		b.mu.Lock()
		for ip, e := range b.limiters {
			if e.lastSeen.Before(cutoff) {
				delete(b.limiters, ip)
			}
		}
		b.mu.Unlock()
	}
}

// DefaultFailedAuthBrake matches spec §4.2's failed-authentication window.
func DefaultFailedAuthBrake() *IPBrake {
	return NewIPBrake(20, time.Minute, 5)
}

// DefaultDCRBrake matches spec §4.7's 10 registrations/hour/IP.
func DefaultDCRBrake() *IPBrake {
	return NewIPBrake(10, time.Hour, 3)
}
