package rationale

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"selinfer/internal/llm"
	"selinfer/internal/ratelimit"
	"selinfer/internal/sel"
)

type fakeProvider struct {
	reply string
	usage llm.Usage
	err   error
}

func (f *fakeProvider) Chat(ctx context.Context, model string, msgs []llm.Message) (string, llm.Usage, error) {
	return f.reply, f.usage, f.err
}

func sampleEvidence() []sel.Evidence {
	return []sel.Evidence{
		{Source: sel.SourceModel, NormalizedScore: 0.7, Relevance: 0.9, Provenance: "model"},
		{Source: sel.SourceLinguisticFeatures, NormalizedScore: 0.6, Relevance: 0.5, Provenance: "linguistic"},
	}
}

func TestGenerateHappyPathUsesLLM(t *testing.T) {
	provider := &fakeProvider{
		reply: `{"narrative":"You are doing great.","strengths":["listens well"],"growth_suggestions":["try sharing more"]}`,
		usage: llm.Usage{PromptTokens: 100, CompletionTokens: 20},
	}
	limiter := ratelimit.New(ratelimit.Limits{CallsPerMinute: 50, CallsPerHour: 500, BurstSize: 10})
	gen := New(provider, "gpt-4o-mini", limiter)

	r := gen.Generate(context.Background(), Input{
		Skill:           sel.SkillEmpathy,
		FusedScore:      0.72,
		FusedConfidence: 0.8,
		Evidence:        sampleEvidence(),
	})

	require.Equal(t, sel.GeneratorLLM, r.Generator)
	require.Equal(t, "You are doing great.", r.Narrative)
	require.Equal(t, 120, r.TokensConsumed)
}

func TestGenerateRateLimitExhaustedFallsBackToTemplate(t *testing.T) {
	provider := &fakeProvider{reply: `{"narrative":"x","strengths":[],"growth_suggestions":[]}`}
	limiter := ratelimit.New(ratelimit.Limits{CallsPerMinute: 1, CallsPerHour: 500, BurstSize: 1})
	// exhaust the burst
	ok, _ := limiter.Acquire()
	require.True(t, ok)

	gen := New(provider, "gpt-4o-mini", limiter)
	r := gen.Generate(context.Background(), Input{
		Skill:      sel.SkillEmpathy,
		FusedScore: 0.72,
		Evidence:   sampleEvidence(),
	})

	require.Equal(t, sel.GeneratorTemplate, r.Generator)
	require.Equal(t, 0, r.TokensConsumed)
}

func TestGenerateProviderErrorFallsBackToTemplate(t *testing.T) {
	provider := &fakeProvider{err: errors.New("upstream down")}
	limiter := ratelimit.New(ratelimit.Limits{CallsPerMinute: 50, CallsPerHour: 500, BurstSize: 10})
	gen := New(provider, "gpt-4o-mini", limiter)

	r := gen.Generate(context.Background(), Input{
		Skill:      sel.SkillEmpathy,
		FusedScore: 0.5,
		Evidence:   sampleEvidence(),
	})

	require.Equal(t, sel.GeneratorTemplate, r.Generator)
}

func TestGenerateNoProviderUsesTemplate(t *testing.T) {
	gen := New(nil, "", nil)
	r := gen.Generate(context.Background(), Input{
		Skill:      sel.SkillEmpathy,
		FusedScore: 0.2,
		Evidence:   sampleEvidence(),
	})
	require.Equal(t, sel.GeneratorTemplate, r.Generator)
	require.Equal(t, "emerging", scoreBucket(0.2))
}

func TestScoreBucketBoundaries(t *testing.T) {
	require.Equal(t, bucketEmerging, scoreBucket(0.0))
	require.Equal(t, bucketEmerging, scoreBucket(0.39))
	require.Equal(t, bucketDeveloping, scoreBucket(0.4))
	require.Equal(t, bucketDeveloping, scoreBucket(0.7))
	require.Equal(t, bucketStrong, scoreBucket(0.71))
	require.Equal(t, bucketStrong, scoreBucket(1.0))
}

func TestNextKSchedule(t *testing.T) {
	require.Equal(t, 5, nextK(10))
	require.Equal(t, 3, nextK(5))
	require.Equal(t, 2, nextK(3))
	require.Equal(t, 1, nextK(2))
	require.Equal(t, 1, nextK(1))
}

func TestRankEvidenceDescendingByRelevance(t *testing.T) {
	items := []sel.Evidence{
		{Relevance: 0.2},
		{Relevance: 0.9},
		{Relevance: 0.5},
	}
	ranked := rankEvidence(items)
	require.Equal(t, 0.9, ranked[0].Relevance)
	require.Equal(t, 0.5, ranked[1].Relevance)
	require.Equal(t, 0.2, ranked[2].Relevance)
}

func TestTrimNarrativeTruncatesLongText(t *testing.T) {
	long := make([]byte, maxNarrativeLen+50)
	for i := range long {
		long[i] = 'a'
	}
	trimmed := trimNarrative(string(long))
	require.LessOrEqual(t, len([]rune(trimmed)), maxNarrativeLen)
}
