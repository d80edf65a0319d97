// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket keyed by provider. The send pipeline asks it
// before every recipient send so one run cannot exceed the provider's
// accepted rate.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
	rate     float64 // tokens per second
}

func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// Allow reports whether one send may proceed for the given provider.
// A rate of 0 means unlimited.
func (l *Limiter) Allow(provider string, ratePerSec int) bool {
	if ratePerSec <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[provider]
	if b == nil {
		b = &bucket{tokens: float64(ratePerSec), lastFill: time.Now(), rate: float64(ratePerSec)}
		l.buckets[provider] = b
	}
	b.rate = float64(ratePerSec)
	b.refill()

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context, provider string, ratePerSec int) error {
	if ratePerSec <= 0 {
		return nil
	}
	for {
		if l.Allow(provider, ratePerSec) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(float64(time.Second) / float64(ratePerSec))):
		}
	}
}

func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.lastFill = now

	b.tokens += elapsed * b.rate
	if b.tokens > b.rate {
		b.tokens = b.rate
	}
}
