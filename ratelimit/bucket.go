// Package ratelimit implements the token-bucket rate limiter used to pace
// outbound IRC traffic, grounded on irc2.utils.TokenBucket: tokens accrue
// at one per fill_interval, refilled lazily on every query rather than by
// a background ticker, with last-refill time advanced only when the token
// count actually changed.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a token bucket: up to Capacity tokens, refilling one per
// FillInterval of wall-clock time. It starts full.
type Bucket struct {
	capacity     int
	fillInterval time.Duration

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time

	now func() time.Time
}

// New returns a Bucket with the given capacity and fill interval, starting
// full as spec requires.
func New(capacity int, fillInterval time.Duration) *Bucket {
	return &Bucket{
		capacity:     capacity,
		fillInterval: fillInterval,
		tokens:       capacity,
		lastRefill:   time.Now(),
		now:          time.Now,
	}
}

// ClientDefaults are the client core's default limiter parameters (spec
// §4.5): burst of 4, refilling one token every 2 seconds.
func ClientDefaults() *Bucket {
	return New(4, 2*time.Second)
}

// refill advances tokens toward capacity by one per elapsed fillInterval,
// and moves lastRefill forward only when the count changed. Must be called
// with mu held.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	add := int(elapsed / b.fillInterval)
	if add <= 0 {
		return
	}
	newTokens := b.tokens + add
	if newTokens > b.capacity {
		newTokens = b.capacity
	}
	if newTokens != b.tokens {
		b.tokens = newTokens
		b.lastRefill = now
	}
}

// Tokens returns the current number of available tokens, refilling first.
// It does not take one.
func (b *Bucket) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

// take attempts to consume one token without blocking. Must be called with
// mu held; refill must have already run.
func (b *Bucket) take() bool {
	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// nextRefill returns how long until the next token is available. Must be
// called with mu held.
func (b *Bucket) nextRefill() time.Duration {
	elapsed := b.now().Sub(b.lastRefill)
	return b.fillInterval - elapsed
}

// Wait blocks until a token is available, then takes it. Cancelling ctx
// before a token becomes available returns ctx.Err() without consuming a
// token.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refill()
		if b.take() {
			b.mu.Unlock()
			return nil
		}
		wait := b.nextRefill()
		b.mu.Unlock()

		if wait <= 0 {
			// Refill math says a token should already exist; avoid a
			// busy loop on clock skew by yielding briefly.
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
