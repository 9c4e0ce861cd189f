package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting operations
type Limiter interface {
	// Allow consumes one token for key. resetTime is when a denied caller
	// may retry, or when the window rolls over for an allowed one.
	Allow(ctx context.Context, key string) (allowed bool, remaining int, resetTime time.Time, err error)

	// Reset clears the bucket for a key
	Reset(ctx context.Context, key string) error

	// GetLimit returns the configured rate for a key
	GetLimit(key string) int
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// MemoryLimiter is a process-local token bucket limiter
type MemoryLimiter struct {
	mu      sync.Mutex
	config  Config
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter
func NewMemoryLimiter(config Config) *MemoryLimiter {
	return &MemoryLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// WithClock overrides the time source
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, int, time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rate := l.config.refillRate(key)
	capacity := float64(l.config.GetBurst(key))

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.tokens+elapsed*rate, capacity)
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens), now.Add(l.config.Window), nil
	}

	retryAfter := math.Ceil((1 - b.tokens) / rate)
	return false, 0, now.Add(time.Duration(retryAfter) * time.Second), nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	return nil
}

func (l *MemoryLimiter) GetLimit(key string) int {
	return l.config.GetLimit(key)
}
