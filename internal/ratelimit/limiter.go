// Package ratelimit implements named dual token-bucket limiters: a minute
// bucket and an hour bucket, both refilling continuously (fractional
// tokens, not step refill). An acquire only succeeds when both buckets have
// at least one token.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Limits configures one named limiter.
type Limits struct {
	CallsPerMinute float64
	CallsPerHour   float64
	BurstSize      float64
}

// LLMLimits is the named limiter configuration for the rationale generator's
// LLM calls (spec §4.2).
var LLMLimits = Limits{CallsPerMinute: 50, CallsPerHour: 500, BurstSize: 10}

type bucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	updatedAt  time.Time
}

func newBucket(capacity, refillRate float64, now time.Time) *bucket {
	return &bucket{capacity: capacity, refillRate: refillRate, tokens: capacity, updatedAt: now}
}

// refill advances the bucket to now, adding fractional tokens, capped at
// capacity. Must be called with the owning limiter's lock held.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.updatedAt).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
	b.updatedAt = now
}

// timeUntilToken returns how long until the bucket holds at least 1 token.
func (b *bucket) timeUntilToken() time.Duration {
	if b.tokens >= 1 {
		return 0
	}
	need := 1 - b.tokens
	secs := need / b.refillRate
	return time.Duration(secs * float64(time.Second))
}

// Limiter is one named dual token-bucket rate limiter. Safe for concurrent
// use; acquire is atomic under a single mutex with no I/O under the lock.
type Limiter struct {
	mu     sync.Mutex
	minute *bucket
	hour   *bucket
}

// New constructs a Limiter from Limits. The minute bucket's capacity is
// max(CallsPerMinute, BurstSize) so a burst can exceed the steady rate
// while the refill rate stays pinned to CallsPerMinute/60 per second.
func New(l Limits) *Limiter {
	now := time.Now()
	minuteCapacity := math.Max(l.CallsPerMinute, l.BurstSize)
	return &Limiter{
		minute: newBucket(minuteCapacity, l.CallsPerMinute/60, now),
		hour:   newBucket(l.CallsPerHour, l.CallsPerHour/3600, now),
	}
}

// Acquire attempts to take one token from both buckets. It never blocks: on
// failure it returns the seconds the caller should wait before retrying.
func (lim *Limiter) Acquire() (ok bool, retryAfterSeconds float64) {
	return lim.acquireAt(time.Now())
}

func (lim *Limiter) acquireAt(now time.Time) (bool, float64) {
	lim.mu.Lock()
	defer lim.mu.Unlock()

	lim.minute.refill(now)
	lim.hour.refill(now)

	if lim.minute.tokens >= 1 && lim.hour.tokens >= 1 {
		lim.minute.tokens--
		lim.hour.tokens--
		return true, 0
	}

	wait := lim.minute.timeUntilToken()
	if h := lim.hour.timeUntilToken(); h > wait {
		wait = h
	}
	return false, wait.Seconds()
}
