package evidence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"selinfer/internal/fusionconfig"
	"selinfer/internal/sel"
)

type fakeStore struct {
	ling *sel.LinguisticRecord
	beh  *sel.BehavioralRecord
}

func (f *fakeStore) FetchLinguistic(ctx context.Context, studentID string) (*sel.LinguisticRecord, error) {
	return f.ling, nil
}

func (f *fakeStore) FetchBehavioral(ctx context.Context, studentID string) (*sel.BehavioralRecord, error) {
	return f.beh, nil
}

func testConfigStore(t *testing.T, weights sel.FusionWeights) *fusionconfig.Store {
	t.Helper()
	cfg := &sel.FusionConfig{Version: "1.0.0", Description: "test", Weights: map[sel.Skill]sel.FusionWeights{}}
	for _, sk := range sel.Skills {
		cfg.Weights[sk] = weights
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fusion.yaml")
	b, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	store, err := fusionconfig.Load(path)
	require.NoError(t, err)
	return store
}

func defaultWeights() sel.FusionWeights {
	return sel.FusionWeights{
		sel.FusionSourceMLInference:         0.50,
		sel.FusionSourceLinguisticFeatures:   0.25,
		sel.FusionSourceBehavioralFeatures:   0.15,
		sel.FusionSourceConfidenceAdjustment: 0.10,
	}
}

func TestFuseDegradesWhenOnlyModelAvailable(t *testing.T) {
	store := &fakeStore{} // no linguistic or behavioral records
	cfgStore := testConfigStore(t, defaultWeights())
	fuser := New(store, nil, cfgStore)

	pred := sel.Prediction{Skill: sel.SkillEmpathy, RawScore: 0.72, Confidence: 0.8, ModelVersion: "1.0.0"}
	result, err := fuser.Fuse(context.Background(), "student-1", pred)
	require.NoError(t, err)
	require.True(t, result.DegradedFusion)
	require.Equal(t, 0.72, result.FusedScore)
	require.Equal(t, 0.8, result.FusedConfidence)
}

func TestFuseCombinesWeightedSources(t *testing.T) {
	store := &fakeStore{
		ling: &sel.LinguisticRecord{Values: map[string]float64{"positive_sentiment": 0.9}, CapturedAt: time.Now()},
		beh:  &sel.BehavioralRecord{Values: map[string]float64{"task_completion_rate": 0.9}, CapturedAt: time.Now()},
	}
	cfgStore := testConfigStore(t, defaultWeights())
	fuser := New(store, nil, cfgStore)

	pred := sel.Prediction{Skill: sel.SkillEmpathy, RawScore: 0.72, Confidence: 0.8, ModelVersion: "1.0.0"}
	result, err := fuser.Fuse(context.Background(), "student-1", pred)
	require.NoError(t, err)
	require.False(t, result.DegradedFusion)
	require.GreaterOrEqual(t, result.FusedScore, 0.0)
	require.LessOrEqual(t, result.FusedScore, 1.0)
}

func TestFuseTopEvidenceBoundedAndSorted(t *testing.T) {
	store := &fakeStore{
		ling: &sel.LinguisticRecord{Values: map[string]float64{"positive_sentiment": 0.95, "social_processes": 0.9}, CapturedAt: time.Now()},
		beh:  &sel.BehavioralRecord{Values: map[string]float64{"task_completion_rate": 0.95}, CapturedAt: time.Now()},
	}
	cfgStore := testConfigStore(t, defaultWeights())
	fuser := New(store, nil, cfgStore)

	pred := sel.Prediction{Skill: sel.SkillEmpathy, RawScore: 0.72, Confidence: 0.8, ModelVersion: "1.0.0"}
	result, err := fuser.Fuse(context.Background(), "student-1", pred)
	require.NoError(t, err)
	require.LessOrEqual(t, len(result.TopEvidence), 10)
	// Every source contributed, so the ranking weights are the configured ones.
	weights := defaultWeights()
	rank := func(e sel.Evidence) float64 {
		key, hasWeight := sourceKeyFor(e.Source)
		if !hasWeight {
			return e.Relevance
		}
		return e.Relevance * weights[key]
	}
	for i := 1; i < len(result.TopEvidence); i++ {
		prevRank := rank(result.TopEvidence[i-1])
		curRank := rank(result.TopEvidence[i])
		require.GreaterOrEqual(t, prevRank+1e-9, curRank)
	}
}

func TestFuseWeightRedistributionWhenOneSourceMissing(t *testing.T) {
	store := &fakeStore{
		ling: &sel.LinguisticRecord{Values: map[string]float64{"positive_sentiment": 0.9}, CapturedAt: time.Now()},
		// no behavioral record -> redistribute its weight across contributing sources
	}
	cfgStore := testConfigStore(t, defaultWeights())
	fuser := New(store, nil, cfgStore)

	pred := sel.Prediction{Skill: sel.SkillEmpathy, RawScore: 0.72, Confidence: 0.8, ModelVersion: "1.0.0"}
	result, err := fuser.Fuse(context.Background(), "student-1", pred)
	require.NoError(t, err)
	require.False(t, result.DegradedFusion)
}
