package inference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"selinfer/internal/config"
	"selinfer/internal/metrics"
	"selinfer/internal/models"
	"selinfer/internal/sel"
)

type fakeStore struct {
	ling    *sel.LinguisticRecord
	beh     *sel.BehavioralRecord
	lingErr error
	behErr  error
}

func (f *fakeStore) FetchLinguistic(ctx context.Context, studentID string) (*sel.LinguisticRecord, error) {
	return f.ling, f.lingErr
}

func (f *fakeStore) FetchBehavioral(ctx context.Context, studentID string) (*sel.BehavioralRecord, error) {
	return f.beh, f.behErr
}

type fakePredictor struct {
	result models.PredictResult
	err    error
}

func (f *fakePredictor) Predict(skill sel.Skill, vector sel.FeatureVector) (models.PredictResult, error) {
	return f.result, f.err
}

func TestInferHappyPath(t *testing.T) {
	store := &fakeStore{
		ling: &sel.LinguisticRecord{Values: map[string]float64{"empathy_markers": 8, "positive_sentiment": 0.7, "social_processes": 0.6, "word_count": 120}},
		beh:  &sel.BehavioralRecord{Values: map[string]float64{"task_completion_rate": 0.9, "focus_duration": 25.0, "event_count": 40}},
	}
	predictor := &fakePredictor{result: models.PredictResult{
		RawScore:          0.72,
		FeatureImportance: map[string]float64{"word_count": 1.0},
		EnsembleOutputs:   []float64{0.70, 0.71, 0.72, 0.73, 0.74}, // stdev ~0.0158
		ModelVersion:      "1.0.0",
	}}
	sink := metrics.New(config.RedisConfig{Enabled: false})
	engine := New(store, predictor, sink)

	pred, err := engine.Infer(context.Background(), "student-1", sel.SkillEmpathy)
	require.NoError(t, err)
	require.Equal(t, 0.72, pred.RawScore)
	require.GreaterOrEqual(t, pred.Confidence, 0.3)
	require.LessOrEqual(t, pred.Confidence, 0.95)

	sum := sink.Summary()
	require.Equal(t, 1, sum.Total)
	require.Equal(t, 1, sum.Successful)
}

func TestInferUpstreamFailureSurfacedNotSubstituted(t *testing.T) {
	store := &fakeStore{lingErr: &sel.UpstreamUnavailable{Upstream: "feature_store"}}
	predictor := &fakePredictor{}
	sink := metrics.New(config.RedisConfig{Enabled: false})
	engine := New(store, predictor, sink)

	_, err := engine.Infer(context.Background(), "student-1", sel.SkillEmpathy)
	require.Error(t, err)
	var upErr *sel.UpstreamUnavailable
	require.ErrorAs(t, err, &upErr)

	sum := sink.Summary()
	require.Equal(t, 1, sum.Total)
	require.Equal(t, 1, sum.Failed)
}

func TestComputeConfidenceAllZeroFeaturesFloorsAtMin(t *testing.T) {
	c := computeConfidence([]float64{0.5, 0.5, 0.5}, 0.5, 0.0)
	require.InDelta(t, 0.3, c, 1e-9)
}

func TestComputeConfidenceDegenerateEnsembleUsesAltWeights(t *testing.T) {
	// All predictions equal 0.55 exactly -> sigma == 0 -> degenerate path.
	c := computeConfidence([]float64{0.55, 0.55, 0.55}, 0.55, 0.9)
	// 0.20*1.0 + 0.60*(2*0.05) + 0.20*0.9 = 0.20 + 0.06 + 0.18 = 0.44
	require.InDelta(t, 0.44, c, 1e-6)
}
