// Package sel holds the domain types shared across the inference pipeline:
// skills, feature vectors, predictions, evidence, fusion weights, and
// rationales. Nothing in here talks to a backend; it is pure data plus the
// small set of invariants the rest of the packages depend on.
package sel

import "time"

// Skill is the closed set of assessed social-emotional competencies.
type Skill string

const (
	SkillEmpathy         Skill = "empathy"
	SkillProblemSolving  Skill = "problem_solving"
	SkillSelfRegulation  Skill = "self_regulation"
	SkillResilience      Skill = "resilience"
)

// Skills is the stable, ordered enumeration of every recognized skill.
var Skills = []Skill{SkillEmpathy, SkillProblemSolving, SkillSelfRegulation, SkillResilience}

// Valid reports whether s is one of the recognized skills.
func (s Skill) Valid() bool {
	for _, k := range Skills {
		if k == s {
			return true
		}
	}
	return false
}

// LinguisticFields is the fixed, ordered set of linguistic feature names.
var LinguisticFields = []string{
	"empathy_markers", "problem_solving_language", "perseverance_indicators",
	"social_processes", "cognitive_processes", "positive_sentiment",
	"negative_sentiment", "avg_sentence_length", "syntactic_complexity",
	"word_count", "unique_word_count", "readability_score",
	"noun_count", "verb_count", "adj_count", "adv_count",
}

// BehavioralFields is the fixed, ordered set of behavioral feature names.
var BehavioralFields = []string{
	"task_completion_rate", "time_efficiency", "retry_count", "recovery_rate",
	"distraction_resistance", "focus_duration", "collaboration_indicators",
	"leadership_indicators", "event_count",
}

// FeatureVectorLen is the dimensionality of every assembled feature vector:
// 16 linguistic + 9 behavioral + 1 skill-specific derived field.
var FeatureVectorLen = len(LinguisticFields) + len(BehavioralFields) + 1

// EvidenceSource is the closed set of evidence origins.
type EvidenceSource string

const (
	SourceModel              EvidenceSource = "model"
	SourceLinguisticFeatures EvidenceSource = "linguistic_features"
	SourceBehavioralFeatures EvidenceSource = "behavioral_features"
	SourceTeacherObservation EvidenceSource = "teacher_observation"
	SourcePeerFeedback       EvidenceSource = "peer_feedback"
)

// FusionSourceKey is the closed set of keys recognized in a FusionWeights map.
type FusionSourceKey string

const (
	FusionSourceMLInference         FusionSourceKey = "ml_inference"
	FusionSourceLinguisticFeatures   FusionSourceKey = "linguistic_features"
	FusionSourceBehavioralFeatures   FusionSourceKey = "behavioral_features"
	FusionSourceConfidenceAdjustment FusionSourceKey = "confidence_adjustment"
)

// FusionSourceKeys is the fixed, recognized set of FusionWeights source keys.
var FusionSourceKeys = []FusionSourceKey{
	FusionSourceMLInference, FusionSourceLinguisticFeatures,
	FusionSourceBehavioralFeatures, FusionSourceConfidenceAdjustment,
}

// LinguisticRecord is a raw linguistic feature record for one student.
type LinguisticRecord struct {
	StudentID string
	Values    map[string]float64 // keyed by LinguisticFields entries; missing -> 0.0
	CapturedAt time.Time
}

// BehavioralRecord is a raw behavioral feature record for one student.
type BehavioralRecord struct {
	StudentID  string
	Values     map[string]float64 // keyed by BehavioralFields entries; missing -> 0.0
	CapturedAt time.Time
}

// ObservationRecord is a teacher_observation or peer_feedback record, already
// expected to carry a score in [0,1].
type ObservationRecord struct {
	StudentID  string
	Score      float64
	Provenance string
	CapturedAt time.Time
}

// FeatureVector is the dense, ordered numeric input to a skill's predictor.
type FeatureVector struct {
	Skill  Skill
	Values []float64 // length == FeatureVectorLen, in the fixed order features.Assemble produces
}

// Prediction is the output of a single model invocation.
type Prediction struct {
	Skill             Skill
	RawScore          float64
	Confidence        float64
	FeatureImportance map[string]float64 // sums to 1.0
	ModelVersion      string
	LatencyMS         float64
	EnsembleOutputs   []float64 // member predictions, kept for confidence calibration
}

// Evidence is one normalized signal contributing to a fused score.
type Evidence struct {
	Source          EvidenceSource `json:"source"`
	Skill           Skill          `json:"skill"`
	NormalizedScore float64        `json:"normalized_score"`
	Relevance       float64        `json:"relevance"`
	Provenance      string         `json:"provenance"`
	CapturedAt      time.Time      `json:"captured_at"`
}

// FusionWeights maps a recognized source key to its weight in [0,1].
type FusionWeights map[FusionSourceKey]float64

// FusionConfig is the full, versioned per-skill weight document.
type FusionConfig struct {
	Version     string                  `yaml:"version" json:"version"`
	Description string                  `yaml:"description" json:"description"`
	Weights     map[Skill]FusionWeights `yaml:"weights" json:"weights"`
}

// FusedAssessment is the result of combining a Prediction with evidence
// under the active FusionConfig.
type FusedAssessment struct {
	Skill           Skill
	FusedScore      float64
	FusedConfidence float64
	TopEvidence     []Evidence // len <= 10, sorted relevance desc, captured_at desc
	ModelVersion    string
	WeightsSnapshot FusionWeights
	DegradedFusion  bool
}

// Generator identifies which code path produced a Rationale.
type Generator string

const (
	GeneratorLLM      Generator = "llm"
	GeneratorTemplate Generator = "template"
)

// Rationale is the short human-readable narrative returned alongside scores.
type Rationale struct {
	Narrative         string    `json:"narrative"`
	Strengths         []string  `json:"strengths"`          // len <= 3
	GrowthSuggestions []string  `json:"growth_suggestions"` // len <= 3
	Generator         Generator `json:"generator"`
	TokensConsumed    int       `json:"tokens_consumed"`
}

// ModelArtifact is a loaded, immutable per-skill predictor plus its manifest.
type ModelArtifact struct {
	Skill           Skill
	Version         string
	ContentHash     string
	FeatureManifest []string // ordered feature names, length == FeatureVectorLen
}
