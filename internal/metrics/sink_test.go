package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"selinfer/internal/config"
)

func TestRecordAndRecentOrdersNewestFirst(t *testing.T) {
	s := New(config.RedisConfig{Enabled: false})
	ctx := context.Background()
	base := time.Now()

	s.Record(ctx, Record{StudentID: "s1", Success: true, LatencyMS: 10, Timestamp: base})
	s.Record(ctx, Record{StudentID: "s2", Success: true, LatencyMS: 20, Timestamp: base.Add(time.Second)})

	recent := s.Recent(10)
	require.Len(t, recent, 2)
	require.Equal(t, "s2", recent[0].StudentID)
	require.Equal(t, "s1", recent[1].StudentID)
}

func TestRecordEvictsOldestPastNMax(t *testing.T) {
	s := New(config.RedisConfig{Enabled: false})
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < NMax+10; i++ {
		s.Record(ctx, Record{StudentID: "s", Success: true, Timestamp: base.Add(time.Duration(i) * time.Millisecond)})
	}
	require.Len(t, s.Recent(NMax+100), NMax)
}

func TestSummaryComputesAggregates(t *testing.T) {
	s := New(config.RedisConfig{Enabled: false})
	ctx := context.Background()
	base := time.Now()

	for i, lat := range []float64{10, 20, 30, 40, 100} {
		s.Record(ctx, Record{StudentID: "s", Success: i != 4, LatencyMS: lat, Timestamp: base.Add(time.Duration(i) * time.Millisecond)})
	}

	sum := s.Summary()
	require.Equal(t, 5, sum.Total)
	require.Equal(t, 4, sum.Successful)
	require.Equal(t, 1, sum.Failed)
	require.InDelta(t, 0.8, sum.SuccessRate, 1e-9)
	require.InDelta(t, 40.0, sum.AvgLatencyMS, 1e-9)
}

func TestSummaryEmptyStore(t *testing.T) {
	s := New(config.RedisConfig{Enabled: false})
	sum := s.Summary()
	require.Equal(t, 0, sum.Total)
	require.Equal(t, 0.0, sum.SuccessRate)
}

func TestSinkDegradesWhenRedisUnreachable(t *testing.T) {
	// An address with nothing listening: ping fails at construction, so New
	// must fall back to the in-memory path rather than returning an error.
	s := New(config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"})
	require.Nil(t, s.redis)
	s.Record(context.Background(), Record{StudentID: "s1", Success: true})
	require.Len(t, s.Recent(10), 1)
}
