package models

import (
	"fmt"
	"sync"

	"selinfer/internal/sel"
)

// predictor is an in-memory, immutable per-skill ensemble ready to serve.
type predictor struct {
	artifact *sel.ModelArtifact
	doc      *artifactDocument
}

// Registry holds every skill's predictor, loaded once at startup and
// immutable thereafter. Replacement (re-registration) is a whole-registry
// atomic swap performed by constructing a new Registry.
type Registry struct {
	mu         sync.RWMutex // guards nothing on the read path; predictors map is never mutated post-load
	predictors map[sel.Skill]*predictor
}

// Load reads every skill's artifact and feature manifest from root,
// verifies content hashes against the manifest index (when present), and
// registers each predictor. Any integrity mismatch aborts the whole load.
func Load(root string) (*Registry, error) {
	index, err := loadManifestIndex(root)
	if err != nil {
		return nil, err
	}

	reg := &Registry{predictors: make(map[sel.Skill]*predictor, len(sel.Skills))}
	for _, skill := range sel.Skills {
		doc, hash, err := loadArtifactDocument(root, skill, index)
		if err != nil {
			return nil, err
		}
		reg.predictors[skill] = &predictor{
			artifact: &sel.ModelArtifact{
				Skill:           skill,
				Version:         doc.Version,
				ContentHash:     hash,
				FeatureManifest: doc.FeatureManifest,
			},
			doc: doc,
		}
	}
	return reg, nil
}

// Count returns the number of registered predictors, for health checks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.predictors)
}

// Manifest returns the ordered feature names for skill.
func (r *Registry) Manifest(skill sel.Skill) ([]string, error) {
	p, err := r.lookup(skill)
	if err != nil {
		return nil, err
	}
	return p.artifact.FeatureManifest, nil
}

// Version returns the registered predictor version for skill.
func (r *Registry) Version(skill sel.Skill) (string, error) {
	p, err := r.lookup(skill)
	if err != nil {
		return "", err
	}
	return p.artifact.Version, nil
}

func (r *Registry) lookup(skill sel.Skill) (*predictor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predictors[skill]
	if !ok {
		return nil, fmt.Errorf("no predictor registered for skill %s", skill)
	}
	return p, nil
}

// PredictResult is the output of one Predict call.
type PredictResult struct {
	RawScore          float64
	FeatureImportance map[string]float64 // sums to 1.0
	EnsembleOutputs    []float64          // one value per base tree, for confidence calibration
	ModelVersion       string
}

// Predict evaluates skill's ensemble against vector. Rejects with
// *sel.FeatureShapeError if the vector's length does not match the
// registered manifest length.
func (r *Registry) Predict(skill sel.Skill, vector sel.FeatureVector) (PredictResult, error) {
	p, err := r.lookup(skill)
	if err != nil {
		return PredictResult{}, err
	}
	if len(vector.Values) != len(p.artifact.FeatureManifest) {
		return PredictResult{}, &sel.FeatureShapeError{
			Skill:    skill,
			Got:      len(vector.Values),
			Expected: len(p.artifact.FeatureManifest),
		}
	}

	outputs := make([]float64, len(p.doc.Trees))
	var sum float64
	for i, t := range p.doc.Trees {
		v := t.eval(vector.Values) * p.doc.LearningRate
		outputs[i] = v
		sum += v
	}
	raw := p.doc.BaseScore + sum
	if raw < 0 {
		raw = 0
	} else if raw > 1 {
		raw = 1
	}

	importance := normalizedImportance(p.doc, p.artifact.FeatureManifest)

	return PredictResult{
		RawScore:          raw,
		FeatureImportance: importance,
		EnsembleOutputs:   outputs,
		ModelVersion:      p.artifact.Version,
	}, nil
}

// normalizedImportance sums each tree's per-feature split gain and
// normalizes the accumulator to sum to 1.0 over the feature set. A model
// with no recorded gains (every leaf, no splits) yields an all-zero map,
// which is acceptable only for a degenerate/linear predictor per spec §4.5.
func normalizedImportance(doc *artifactDocument, manifest []string) map[string]float64 {
	acc := make([]float64, len(manifest))
	for _, t := range doc.Trees {
		t.accumulateGain(acc)
	}
	var total float64
	for _, g := range acc {
		total += g
	}
	out := make(map[string]float64, len(manifest))
	if total <= 0 {
		for _, name := range manifest {
			out[name] = 0
		}
		return out
	}
	for i, name := range manifest {
		out[name] = acc[i] / total
	}
	return out
}
