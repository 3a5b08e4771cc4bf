package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireConsumesBurstThenRefuses(t *testing.T) {
	lim := New(Limits{CallsPerMinute: 50, CallsPerHour: 500, BurstSize: 10})
	now := time.Now()

	// minute bucket capacity is max(CallsPerMinute, BurstSize) = 50
	for i := 0; i < 50; i++ {
		ok, _ := lim.acquireAt(now)
		require.True(t, ok, "call %d should succeed within minute-bucket capacity", i)
	}
	ok, retryAfter := lim.acquireAt(now)
	require.False(t, ok)
	require.Greater(t, retryAfter, 0.0)
}

func TestAcquireRefillsContinuously(t *testing.T) {
	lim := New(Limits{CallsPerMinute: 60, CallsPerHour: 1000, BurstSize: 1})
	now := time.Now()

	// minute bucket capacity is max(60, 1) = 60; drain it first.
	for i := 0; i < 60; i++ {
		ok, _ := lim.acquireAt(now)
		require.True(t, ok)
	}

	ok, _ := lim.acquireAt(now)
	require.False(t, ok, "a drained minute bucket must refuse an immediate call")

	later := now.Add(1100 * time.Millisecond) // > 1s at 1 token/sec refill
	ok, _ = lim.acquireAt(later)
	require.True(t, ok, "bucket should have refilled at least one token after ~1.1s")
}

func TestHourBucketBindsEvenWithMinuteCapacity(t *testing.T) {
	lim := New(Limits{CallsPerMinute: 50, CallsPerHour: 1, BurstSize: 10})
	now := time.Now()

	ok, _ := lim.acquireAt(now)
	require.True(t, ok)

	ok, retryAfter := lim.acquireAt(now)
	require.False(t, ok, "hour bucket with capacity 1 must refuse the second call")
	require.Greater(t, retryAfter, 0.0)
}

func TestConcurrentAcquireNeverOversells(t *testing.T) {
	lim := New(Limits{CallsPerMinute: 50, CallsPerHour: 500, BurstSize: 10})
	var successes int
	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			ok, _ := lim.Acquire()
			done <- ok
		}()
	}
	for i := 0; i < 100; i++ {
		if <-done {
			successes++
		}
	}
	require.LessOrEqual(t, successes, 50, "no more than the minute bucket's capacity, max(50, 10), can succeed instantaneously")
}
