// Package evidence implements evidence fusion (C7): parallel multi-source
// evidence collection with per-source failure isolation, normalization,
// skill-specific weighting under the active FusionConfig, and top-N
// evidence selection.
package evidence

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"selinfer/internal/features"
	"selinfer/internal/fusionconfig"
	"selinfer/internal/sel"
)

const topEvidenceLimit = 10

// ObservationFetcher fetches optional teacher_observation / peer_feedback
// records for a student and skill. A fetch failure does not fail fusion: Fuse
// logs it and treats it as an empty evidence list. These two
// sources have no dedicated slot in FusionWeights (the recognized set is
// {ml_inference, linguistic_features, behavioral_features,
// confidence_adjustment}); they contribute to the evidence pool used for
// top_evidence and citations, but not to the weighted score sum.
type ObservationFetcher interface {
	FetchTeacherObservations(ctx context.Context, studentID string, skill sel.Skill) ([]sel.ObservationRecord, error)
	FetchPeerFeedback(ctx context.Context, studentID string, skill sel.Skill) ([]sel.ObservationRecord, error)
}

// FeatureFetcher mirrors inference.FeatureFetcher; evidence fusion needs the
// same raw records the engine already fetched, refetched independently so
// normalization can run against the config snapshot taken for this call.
type FeatureFetcher interface {
	FetchLinguistic(ctx context.Context, studentID string) (*sel.LinguisticRecord, error)
	FetchBehavioral(ctx context.Context, studentID string) (*sel.BehavioralRecord, error)
}

// Fuser combines a Prediction with raw feature records and optional
// observation sources into a FusedAssessment.
type Fuser struct {
	store        FeatureFetcher
	observations ObservationFetcher
	config       *fusionconfig.Store
}

func New(store FeatureFetcher, observations ObservationFetcher, config *fusionconfig.Store) *Fuser {
	return &Fuser{store: store, observations: observations, config: config}
}

// weightedResult is what each of the four recognized fusion sources
// contributed to one Fuse call.
type weightedResult struct {
	items []sel.Evidence
	ok    bool
}

// Fuse runs C7's pipeline for one prediction. The active FusionConfig is
// read once at the start of the call to guarantee a consistent weight
// snapshot for the whole fusion (spec §4.7).
func (f *Fuser) Fuse(ctx context.Context, studentID string, pred sel.Prediction) (sel.FusedAssessment, error) {
	cfg := f.config.Get()
	weights := cfg.Weights[pred.Skill]

	weighted, observationEvidence := f.collectParallel(ctx, studentID, pred)

	contributing := map[sel.FusionSourceKey]bool{}
	var allEvidence []sel.Evidence
	for key, res := range weighted {
		if res.ok && len(res.items) > 0 {
			contributing[key] = true
		}
		allEvidence = append(allEvidence, res.items...)
	}
	allEvidence = append(allEvidence, observationEvidence...)

	if !contributing[sel.FusionSourceLinguisticFeatures] && !contributing[sel.FusionSourceBehavioralFeatures] {
		return sel.FusedAssessment{
			Skill:           pred.Skill,
			FusedScore:      pred.RawScore,
			FusedConfidence: pred.Confidence,
			TopEvidence:     rankByRelevance(allEvidence),
			ModelVersion:    pred.ModelVersion,
			WeightsSnapshot: weights,
			DegradedFusion:  true,
		}, nil
	}

	effectiveWeights := redistribute(weights, contributing)

	var fusedScore, confidenceSum, weightSum float64
	for key, res := range weighted {
		w := effectiveWeights[key]
		if w == 0 || !res.ok || len(res.items) == 0 {
			continue
		}
		fusedScore += w * averageScore(res.items)
		confidenceSum += w * averageRelevance(key, res.items, pred)
		weightSum += w
	}
	fusedConfidence := pred.Confidence
	if weightSum > 0 {
		fusedConfidence = confidenceSum / weightSum
	}

	return sel.FusedAssessment{
		Skill:           pred.Skill,
		FusedScore:      clip01(fusedScore),
		FusedConfidence: clip01(fusedConfidence),
		TopEvidence:     rankWeighted(allEvidence, effectiveWeights),
		ModelVersion:    pred.ModelVersion,
		WeightsSnapshot: weights,
		DegradedFusion:  false,
	}, nil
}

// redistribute proportionally spreads the weight of any non-contributing
// source across the sources that did contribute, for this call only.
func redistribute(weights sel.FusionWeights, contributing map[sel.FusionSourceKey]bool) sel.FusionWeights {
	var missingWeight, contributingWeight float64
	for key, w := range weights {
		if contributing[key] {
			contributingWeight += w
		} else {
			missingWeight += w
		}
	}
	out := make(sel.FusionWeights, len(weights))
	if contributingWeight <= 0 {
		return out
	}
	for key, w := range weights {
		if !contributing[key] {
			continue
		}
		out[key] = w + missingWeight*(w/contributingWeight)
	}
	return out
}

func averageScore(items []sel.Evidence) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += it.NormalizedScore
	}
	return sum / float64(len(items))
}

// averageRelevance computes the per-source confidence contribution.
// confidence_adjustment is always scored as the model's own confidence
// (never 1.0), per spec §4.7, rather than averaged from its (synthetic)
// evidence item.
func averageRelevance(key sel.FusionSourceKey, items []sel.Evidence, pred sel.Prediction) float64 {
	if key == sel.FusionSourceConfidenceAdjustment {
		return pred.Confidence
	}
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += it.Relevance
	}
	return sum / float64(len(items))
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// rankByRelevance sorts by relevance desc, tie-broken by captured_at desc,
// used when fusion is degraded and there is no per-source weight to factor
// into ranking.
func rankByRelevance(items []sel.Evidence) []sel.Evidence {
	sorted := append([]sel.Evidence{}, items...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Relevance != sorted[j].Relevance {
			return sorted[i].Relevance > sorted[j].Relevance
		}
		return sorted[i].CapturedAt.After(sorted[j].CapturedAt)
	})
	if len(sorted) > topEvidenceLimit {
		sorted = sorted[:topEvidenceLimit]
	}
	return sorted
}

// rankWeighted ranks by relevance * weight_of_source descending, then
// captured_at descending, per spec §4.7. Sources with no weight slot
// (teacher_observation, peer_feedback) rank by relevance alone.
func rankWeighted(items []sel.Evidence, weights sel.FusionWeights) []sel.Evidence {
	sorted := append([]sel.Evidence{}, items...)
	rank := func(e sel.Evidence) float64 {
		key, hasWeight := sourceKeyFor(e.Source)
		if !hasWeight {
			return e.Relevance
		}
		return e.Relevance * weights[key]
	}
	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := rank(sorted[i]), rank(sorted[j])
		if ri != rj {
			return ri > rj
		}
		return sorted[i].CapturedAt.After(sorted[j].CapturedAt)
	})
	if len(sorted) > topEvidenceLimit {
		sorted = sorted[:topEvidenceLimit]
	}
	return sorted
}

func sourceKeyFor(source sel.EvidenceSource) (sel.FusionSourceKey, bool) {
	switch source {
	case sel.SourceModel:
		return sel.FusionSourceMLInference, true
	case sel.SourceLinguisticFeatures:
		return sel.FusionSourceLinguisticFeatures, true
	case sel.SourceBehavioralFeatures:
		return sel.FusionSourceBehavioralFeatures, true
	default:
		return "", false
	}
}

// collectParallel fans out the weighted source fetches (linguistic,
// behavioral) plus the observation sources concurrently. A per-source
// failure is isolated: it yields {ok:false} rather than failing the call.
// ml_inference and confidence_adjustment need no fetch; they are derived
// directly from pred and are always available.
func (f *Fuser) collectParallel(ctx context.Context, studentID string, pred sel.Prediction) (map[sel.FusionSourceKey]weightedResult, []sel.Evidence) {
	now := time.Now().UTC()
	weighted := map[sel.FusionSourceKey]weightedResult{
		sel.FusionSourceMLInference: {ok: true, items: []sel.Evidence{{
			Source: sel.SourceModel, Skill: pred.Skill,
			NormalizedScore: pred.RawScore, Relevance: pred.Confidence,
			Provenance: "model:" + pred.ModelVersion, CapturedAt: now,
		}}},
		sel.FusionSourceConfidenceAdjustment: {ok: true, items: []sel.Evidence{{
			Source: sel.SourceModel, Skill: pred.Skill,
			NormalizedScore: pred.Confidence, Relevance: pred.Confidence,
			Provenance: "model_confidence:" + pred.ModelVersion, CapturedAt: now,
		}}},
	}
	var mu sync.Mutex
	var observationEvidence []sel.Evidence

	var g errgroup.Group
	g.Go(func() error {
		ling, err := f.store.FetchLinguistic(ctx, studentID)
		res := weightedResult{ok: false}
		if err == nil && ling != nil {
			res = weightedResult{ok: true, items: normalizeLinguistic(pred.Skill, ling)}
		}
		mu.Lock()
		weighted[sel.FusionSourceLinguisticFeatures] = res
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		beh, err := f.store.FetchBehavioral(ctx, studentID)
		res := weightedResult{ok: false}
		if err == nil && beh != nil {
			res = weightedResult{ok: true, items: normalizeBehavioral(pred.Skill, beh)}
		}
		mu.Lock()
		weighted[sel.FusionSourceBehavioralFeatures] = res
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		if f.observations == nil {
			return nil
		}
		teacherObs, err := f.observations.FetchTeacherObservations(ctx, studentID, pred.Skill)
		if err != nil {
			log.Warn().Err(err).Str("student_id", studentID).Msg("teacher_observation_fetch_failed")
		}
		peerObs, err := f.observations.FetchPeerFeedback(ctx, studentID, pred.Skill)
		if err != nil {
			log.Warn().Err(err).Str("student_id", studentID).Msg("peer_feedback_fetch_failed")
		}
		items := normalizeObservations(pred.Skill, teacherObs, peerObs)
		mu.Lock()
		observationEvidence = items
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	return weighted, observationEvidence
}

func normalizeLinguistic(skill sel.Skill, rec *sel.LinguisticRecord) []sel.Evidence {
	items := make([]sel.Evidence, 0, len(sel.LinguisticFields))
	for _, name := range sel.LinguisticFields {
		stats, ok := features.LinguisticReferenceStats[name]
		if !ok {
			continue
		}
		mean, stdev := stats[0], stats[1]
		if stdev == 0 {
			continue
		}
		z := (rec.Values[name] - mean) / stdev
		score := 1 / (1 + math.Exp(-z))
		relevance := clip01(math.Abs(z) / 3)
		items = append(items, sel.Evidence{
			Source: sel.SourceLinguisticFeatures, Skill: skill,
			NormalizedScore: score, Relevance: relevance,
			Provenance: "linguistic:" + name, CapturedAt: rec.CapturedAt,
		})
	}
	return items
}

func normalizeBehavioral(skill sel.Skill, rec *sel.BehavioralRecord) []sel.Evidence {
	items := make([]sel.Evidence, 0, len(sel.BehavioralFields))
	present := 0
	for _, name := range sel.BehavioralFields {
		if _, ok := rec.Values[name]; ok {
			present++
		}
	}
	relevance := 0.0
	if len(sel.BehavioralFields) > 0 {
		relevance = float64(present) / float64(len(sel.BehavioralFields))
	}
	for _, name := range sel.BehavioralFields {
		bounds, ok := features.BehavioralBounds[name]
		if !ok {
			continue
		}
		lo, hi := bounds[0], bounds[1]
		v := rec.Values[name]
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		score := 0.0
		if hi > lo {
			score = (v - lo) / (hi - lo)
		}
		items = append(items, sel.Evidence{
			Source: sel.SourceBehavioralFeatures, Skill: skill,
			NormalizedScore: score, Relevance: relevance,
			Provenance: "behavioral:" + name, CapturedAt: rec.CapturedAt,
		})
	}
	return items
}

func normalizeObservations(skill sel.Skill, teacherObs, peerObs []sel.ObservationRecord) []sel.Evidence {
	items := make([]sel.Evidence, 0, len(teacherObs)+len(peerObs))
	add := func(source sel.EvidenceSource, recs []sel.ObservationRecord) {
		for _, r := range recs {
			if r.Score < 0 || r.Score > 1 {
				continue // rejected per spec §4.7
			}
			items = append(items, sel.Evidence{
				Source: source, Skill: skill,
				NormalizedScore: r.Score, Relevance: 1.0,
				Provenance: r.Provenance, CapturedAt: r.CapturedAt,
			})
		}
	}
	add(sel.SourceTeacherObservation, teacherObs)
	add(sel.SourcePeerFeedback, peerObs)
	return items
}
