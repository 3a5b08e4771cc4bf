package rationale

import (
	"fmt"

	"selinfer/internal/sel"
)

const (
	bucketEmerging   = "emerging"
	bucketDeveloping = "developing"
	bucketStrong     = "strong"
)

// scoreBucket classifies a fused score into the three template tiers per
// spec §4.8's deterministic fallback table.
func scoreBucket(score float64) string {
	switch {
	case score < 0.4:
		return bucketEmerging
	case score <= 0.7:
		return bucketDeveloping
	default:
		return bucketStrong
	}
}

var bucketNarratives = map[string]string{
	bucketEmerging:   "You're just starting to build this skill. With practice, you'll keep growing.",
	bucketDeveloping: "You're making steady progress with this skill and showing it in several situations.",
	bucketStrong:     "You consistently show this skill across many situations.",
}

var bucketGrowth = map[string]string{
	bucketEmerging:   "Try practicing this skill in one small situation each day.",
	bucketDeveloping: "Look for chances to use this skill in new or harder situations.",
	bucketStrong:     "Look for chances to help others build this same skill.",
}

// template produces the deterministic, never-failing fallback rationale.
// It never calls an LLM and always reports zero tokens consumed.
func template(in Input) sel.Rationale {
	bucket := scoreBucket(in.FusedScore)

	strengths := make([]string, 0, 2)
	for i, e := range rankEvidence(in.Evidence) {
		if i >= 2 {
			break
		}
		strengths = append(strengths, fmt.Sprintf("Evidence from %s supports this skill.", e.Source))
	}
	if len(strengths) == 0 {
		strengths = []string{"Keep showing this skill in everyday situations."}
	}

	return sel.Rationale{
		Narrative:         bucketNarratives[bucket],
		Strengths:         strengths,
		GrowthSuggestions: []string{bucketGrowth[bucket]},
		Generator:         sel.GeneratorTemplate,
		TokensConsumed:    0,
	}
}
