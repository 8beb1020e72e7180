package ratelimit

import (
	"context"
	"sync"
	"time"
)

// tokenBucket tracks the spendable budget for one key. remaining is allowed
// to go fractional between refills.
type tokenBucket struct {
	remaining float64
	refilled  time.Time
}

// MemoryLimiter implements Limiter with one token bucket per key, held
// entirely in process memory.
//
// Agora is single-tenant: the key space is the set of registered agents plus
// a handful of client IPs, so instead of a background eviction goroutine the
// map is swept inline whenever it grows past a watermark. Close is a no-op;
// there is nothing to release.
type MemoryLimiter struct {
	rate  float64 // tokens refilled per second
	burst float64 // bucket capacity

	mu      sync.Mutex
	buckets map[string]*tokenBucket
	sweepAt int // sweep when the map reaches this size
}

const (
	// A bucket idle this long is full again and can be dropped.
	idleEviction = 10 * time.Minute
	minSweepSize = 1024
)

// NewMemoryLimiter creates a token bucket limiter.
//   - rate: sustained requests per second per key
//   - burst: maximum burst size (bucket capacity)
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*tokenBucket),
		sweepAt: minSweepSize,
	}
}

// Allow spends one token from key's bucket. Returns true if a token was
// available (request should proceed), false otherwise (rate limited).
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok {
		if len(m.buckets) >= m.sweepAt {
			m.sweep(now)
		}
		// An unseen key starts with a full bucket.
		b = &tokenBucket{remaining: m.burst, refilled: now}
		m.buckets[key] = b
	} else {
		b.remaining += now.Sub(b.refilled).Seconds() * m.rate
		if b.remaining > m.burst {
			b.remaining = m.burst
		}
		b.refilled = now
	}

	if b.remaining < 1 {
		return false, nil
	}
	b.remaining--
	return true, nil
}

// sweep drops buckets idle long enough to have refilled completely, then
// moves the watermark so steady growth keeps sweeps rare. Called with m.mu
// held.
func (m *MemoryLimiter) sweep(now time.Time) {
	cutoff := now.Add(-idleEviction)
	for key, b := range m.buckets {
		if b.refilled.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
	m.sweepAt = 2 * len(m.buckets)
	if m.sweepAt < minSweepSize {
		m.sweepAt = minSweepSize
	}
}

// Close implements Limiter. The in-memory limiter holds no resources beyond
// the bucket map.
func (m *MemoryLimiter) Close() error { return nil }
