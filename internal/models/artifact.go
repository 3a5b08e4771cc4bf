// Package models implements the per-skill model registry: loading
// serialized gradient-boosted tree ensembles and their feature manifests
// from a configured artifact root, verifying content hashes, and serving a
// versioned predict contract.
//
// No third-party gradient-boosting runtime exists in the example pack (the
// pack's ML-adjacent dependencies are vector databases and embedding
// clients, not model-serving runtimes), so the tree-ensemble evaluator
// below is hand-built. gonum/stat is still used downstream, in
// internal/inference, for the ensemble-variance confidence subscore.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"selinfer/internal/sel"
)

// treeNode is one node of a regression tree. Leaf nodes have Left == -1.
type treeNode struct {
	FeatureIndex int       `json:"feature_index"`
	Threshold    float64   `json:"threshold"`
	Left         int       `json:"left"`
	Right        int       `json:"right"`
	LeafValue    float64   `json:"leaf_value"`
	Gain         float64   `json:"gain"` // split importance contribution, 0 on leaves
}

// tree is one base learner: a flat node array rooted at index 0.
type tree struct {
	Nodes []treeNode `json:"nodes"`
}

// eval walks the tree for one feature vector and returns the leaf value.
func (t tree) eval(features []float64) float64 {
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.Left < 0 {
			return n.LeafValue
		}
		if features[n.FeatureIndex] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// accumulateGain adds this tree's split gains into the per-feature-index
// importance accumulator.
func (t tree) accumulateGain(acc []float64) {
	for _, n := range t.Nodes {
		if n.Left >= 0 && n.FeatureIndex >= 0 && n.FeatureIndex < len(acc) {
			acc[n.FeatureIndex] += n.Gain
		}
	}
}

// artifactDocument is the on-disk JSON shape of one skill's model artifact.
type artifactDocument struct {
	Skill           sel.Skill `json:"skill"`
	Version         string    `json:"version"`
	FeatureManifest []string  `json:"feature_manifest"`
	BaseScore       float64   `json:"base_score"`
	LearningRate    float64   `json:"learning_rate"`
	Trees           []tree    `json:"trees"`
}

// manifestIndex maps skill -> recorded content hash, used to verify
// artifact integrity at load time.
type manifestIndex map[sel.Skill]string

func loadManifestIndex(root string) (manifestIndex, error) {
	path := filepath.Join(root, "manifest_index.json")
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return manifestIndex{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest index: %w", err)
	}
	var idx manifestIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("parse manifest index: %w", err)
	}
	return idx, nil
}

func artifactPath(root string, skill sel.Skill) string {
	return filepath.Join(root, string(skill)+".model.json")
}

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadArtifactDocument(root string, skill sel.Skill, index manifestIndex) (*artifactDocument, string, error) {
	path := artifactPath(root, skill)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read artifact %s: %w", path, err)
	}
	hash := contentHash(raw)
	if expected, ok := index[skill]; ok && expected != hash {
		return nil, "", &sel.ArtifactIntegrityError{Skill: skill, Got: hash, Expected: expected}
	}

	var doc artifactDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if len(doc.FeatureManifest) != sel.FeatureVectorLen {
		return nil, "", fmt.Errorf("artifact %s: manifest has %d features, want %d", path, len(doc.FeatureManifest), sel.FeatureVectorLen)
	}
	return &doc, hash, nil
}
