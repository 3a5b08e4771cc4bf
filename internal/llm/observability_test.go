package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenTotalsForWindow(t *testing.T) {
	resetTokenMetricsState()
	defer resetTokenMetricsState()

	base := time.Date(2026, 1, 12, 12, 0, 0, 0, time.UTC)
	prevNow := timeNow
	timeNow = func() time.Time { return base }
	defer func() { timeNow = prevNow }()

	recordTokenMetrics("gpt-4.1", 100, 50, base.Add(-30*time.Minute))
	recordTokenMetrics("gpt-4.1", 200, 150, base.Add(-90*time.Minute))
	recordTokenMetrics("claude-3-7-sonnet", 10, 10, base.Add(-10*time.Minute))

	totals, applied := TokenTotalsForWindow(time.Hour)
	require.Len(t, totals, 2)
	require.Equal(t, "gpt-4.1", totals[0].Model)
	require.Equal(t, int64(100), totals[0].Prompt)
	require.Equal(t, int64(50), totals[0].Completion)
	require.Equal(t, "claude-3-7-sonnet", totals[1].Model)
	require.Greater(t, applied, time.Duration(0))
	require.LessOrEqual(t, applied, time.Hour)

	totalsAll, appliedAll := TokenTotalsForWindow(0)
	require.Zero(t, appliedAll)
	require.Len(t, totalsAll, 2)
	require.Equal(t, int64(500), totalsAll[0].Total)
}

func TestTokenTotalsRetention(t *testing.T) {
	resetTokenMetricsState()
	defer resetTokenMetricsState()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	prevNow := timeNow
	timeNow = func() time.Time { return base }
	defer func() { timeNow = prevNow }()

	old := base.Add(-60 * 24 * time.Hour)
	recent := base.Add(-2 * time.Hour)

	recordTokenMetrics("gpt-4.1", 500, 500, old)
	recordTokenMetrics("gpt-4.1", 100, 100, recent)

	totals, applied := TokenTotalsForWindow(30 * 24 * time.Hour)
	require.Len(t, totals, 1)
	require.Equal(t, int64(200), totals[0].Total)
	require.Greater(t, applied, time.Duration(0))
	require.LessOrEqual(t, applied, 30*24*time.Hour)
}

func TestTokenTotalsSnapshotSortsDescendingByTotal(t *testing.T) {
	resetTokenMetricsState()
	defer resetTokenMetricsState()

	recordTokenMetrics("small-model", 10, 10, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	recordTokenMetrics("big-model", 900, 100, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	snap := TokenTotalsSnapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "big-model", snap[0].Model)
	require.Equal(t, int64(1000), snap[0].Total)
}
