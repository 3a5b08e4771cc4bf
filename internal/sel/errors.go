package sel

import "fmt"

// Error taxonomy (spec §7). Each kind is a distinct sentinel or wrapper type
// so callers can errors.Is/errors.As at the HTTP boundary.

// FeatureShapeError means an assembled feature vector's length did not match
// the target skill's manifest length.
type FeatureShapeError struct {
	Skill    Skill
	Got      int
	Expected int
}

func (e *FeatureShapeError) Error() string {
	return fmt.Sprintf("feature shape mismatch for %s: got %d, expected %d", e.Skill, e.Got, e.Expected)
}

// ArtifactIntegrityError means a loaded model artifact's content hash did
// not match the recorded hash in the manifest index. This aborts startup.
type ArtifactIntegrityError struct {
	Skill    Skill
	Got      string
	Expected string
}

func (e *ArtifactIntegrityError) Error() string {
	return fmt.Sprintf("artifact integrity mismatch for %s: got %s, expected %s", e.Skill, e.Got, e.Expected)
}

// InvalidConfigError means a FusionConfig failed validation. FieldPath
// identifies the offending location (e.g. "weights.empathy.ml_inference").
type InvalidConfigError struct {
	FieldPath string
	Reason    string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config at %s: %s", e.FieldPath, e.Reason)
}

// UpstreamUnavailable means the feature store or secret backend was
// unreachable. Never substituted with defaults.
type UpstreamUnavailable struct {
	Upstream string
	Cause    error
}

func (e *UpstreamUnavailable) Error() string {
	return fmt.Sprintf("upstream unavailable: %s: %v", e.Upstream, e.Cause)
}

func (e *UpstreamUnavailable) Unwrap() error { return e.Cause }

// PredictionFailure means the predictor itself errored.
type PredictionFailure struct {
	Skill Skill
	Cause error
}

func (e *PredictionFailure) Error() string {
	return fmt.Sprintf("prediction failure for %s: %v", e.Skill, e.Cause)
}

func (e *PredictionFailure) Unwrap() error { return e.Cause }

// RateLimited means the named limiter refused to issue a token.
// Locally recovered: callers fall back to the template rationale.
type RateLimited struct {
	Limiter        string
	RetryAfterSecs float64
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %.2fs", e.Limiter, e.RetryAfterSecs)
}

// LLMTransportFailure covers network errors, deadline breaches, and parse
// failures when calling the rationale LLM. Locally recovered via template.
type LLMTransportFailure struct {
	Cause error
}

func (e *LLMTransportFailure) Error() string {
	return fmt.Sprintf("llm transport failure: %v", e.Cause)
}

func (e *LLMTransportFailure) Unwrap() error { return e.Cause }

// InsufficientEvidence means no non-model source contributed evidence;
// fusion proceeds in degraded mode rather than failing.
type InsufficientEvidence struct {
	Skill Skill
}

func (e *InsufficientEvidence) Error() string {
	return fmt.Sprintf("insufficient evidence for %s: only model source available", e.Skill)
}

// DeadlineExceeded means a batch or per-call budget was hit before
// completion.
type DeadlineExceeded struct {
	Stage string
}

func (e *DeadlineExceeded) Error() string {
	return fmt.Sprintf("deadline exceeded at %s", e.Stage)
}

// FatalConfigError aborts process startup: a required secret or config
// value could not be resolved from any source.
type FatalConfigError struct {
	Name   string
	Reason string
}

func (e *FatalConfigError) Error() string {
	return fmt.Sprintf("fatal config error: %s: %s", e.Name, e.Reason)
}
