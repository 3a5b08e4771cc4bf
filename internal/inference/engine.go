// Package inference implements the inference engine (C6): parallel feature
// fetch, feature vector assembly, model prediction, and three-component
// confidence calibration.
package inference

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"gonum.org/v1/gonum/stat"

	"selinfer/internal/features"
	"selinfer/internal/metrics"
	"selinfer/internal/models"
	"selinfer/internal/sel"
)

// sigmaRef is the calibration constant for the ensemble-variance subscore.
const sigmaRef = 0.2

// degenerateThreshold below which an ensemble is treated as degenerate
// (near-zero disagreement among base learners).
const degenerateThreshold = 1e-6

// confidence blend weights, spec §4.6.
const (
	weightVariance     = 0.50
	weightExtremity    = 0.30
	weightCompleteness = 0.20

	degenerateWeightVariance     = 0.20
	degenerateWeightExtremity    = 0.60
	degenerateWeightCompleteness = 0.20
)

const (
	confidenceFloor   = 0.3
	confidenceCeiling = 0.95
)

// FeatureFetcher is the subset of features.StoreClient the engine needs;
// narrowed to an interface so tests can substitute a fake feature store.
type FeatureFetcher interface {
	FetchLinguistic(ctx context.Context, studentID string) (*sel.LinguisticRecord, error)
	FetchBehavioral(ctx context.Context, studentID string) (*sel.BehavioralRecord, error)
}

// Predictor is the subset of models.Registry the engine needs.
type Predictor interface {
	Predict(skill sel.Skill, vector sel.FeatureVector) (models.PredictResult, error)
}

// Engine runs the per-(student, skill) inference pipeline.
type Engine struct {
	store    FeatureFetcher
	registry Predictor
	sink     *metrics.Sink
}

func New(store FeatureFetcher, registry Predictor, sink *metrics.Sink) *Engine {
	return &Engine{store: store, registry: registry, sink: sink}
}

// Infer runs C6's pipeline for one (studentID, skill) pair. Feature-store
// errors are surfaced as *sel.UpstreamUnavailable and never substituted
// with defaults. A metrics record is written regardless of outcome.
func (e *Engine) Infer(ctx context.Context, studentID string, skill sel.Skill) (sel.Prediction, error) {
	start := time.Now()

	ling, beh, err := e.fetchFeaturesParallel(ctx, studentID)
	if err != nil {
		e.record(ctx, studentID, skill, start, false, "upstream_unavailable")
		return sel.Prediction{}, err
	}

	vector := features.Assemble(skill, ling, beh)

	result, err := e.registry.Predict(skill, vector)
	if err != nil {
		category := "prediction_failure"
		if _, ok := err.(*sel.FeatureShapeError); ok {
			category = "feature_shape_error"
		}
		e.record(ctx, studentID, skill, start, false, category)
		return sel.Prediction{}, &sel.PredictionFailure{Skill: skill, Cause: err}
	}

	completeness := features.Completeness(vector)
	confidence := computeConfidence(result.EnsembleOutputs, result.RawScore, completeness)

	pred := sel.Prediction{
		Skill:             skill,
		RawScore:          result.RawScore,
		Confidence:        confidence,
		FeatureImportance: result.FeatureImportance,
		ModelVersion:      result.ModelVersion,
		LatencyMS:         float64(time.Since(start).Microseconds()) / 1000.0,
		EnsembleOutputs:   result.EnsembleOutputs,
	}

	e.record(ctx, studentID, skill, start, true, "")
	return pred, nil
}

func (e *Engine) fetchFeaturesParallel(ctx context.Context, studentID string) (*sel.LinguisticRecord, *sel.BehavioralRecord, error) {
	var ling *sel.LinguisticRecord
	var beh *sel.BehavioralRecord

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.store.FetchLinguistic(gctx, studentID)
		if err != nil {
			return err
		}
		ling = r
		return nil
	})
	g.Go(func() error {
		r, err := e.store.FetchBehavioral(gctx, studentID)
		if err != nil {
			return err
		}
		beh = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return ling, beh, nil
}

func (e *Engine) record(ctx context.Context, studentID string, skill sel.Skill, start time.Time, success bool, category string) {
	if e.sink == nil {
		return
	}
	e.sink.Record(ctx, metrics.Record{
		StudentID:     studentID,
		Skill:         string(skill),
		LatencyMS:     float64(time.Since(start).Microseconds()) / 1000.0,
		Success:       success,
		ErrorCategory: category,
		Timestamp:     time.Now().UTC(),
	})
}

// computeConfidence blends the three confidence subscores per spec §4.6,
// using the degenerate-ensemble weighting when the ensemble's stdev is
// near zero.
func computeConfidence(ensembleOutputs []float64, rawScore, completeness float64) float64 {
	sigma := 0.0
	if len(ensembleOutputs) > 1 {
		sigma = stat.StdDev(ensembleOutputs, nil)
	}

	cVariance := 1 - clip(sigma/sigmaRef, 0, 1)
	cExtremity := 2 * math.Abs(rawScore-0.5)
	cCompleteness := clip(completeness, 0, 1)

	wv, we, wc := weightVariance, weightExtremity, weightCompleteness
	if sigma < degenerateThreshold {
		wv, we, wc = degenerateWeightVariance, degenerateWeightExtremity, degenerateWeightCompleteness
	}

	confidence := wv*cVariance + we*cExtremity + wc*cCompleteness
	return clip(confidence, confidenceFloor, confidenceCeiling)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
