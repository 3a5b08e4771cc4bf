// Package rationale implements the rationale generator (C8): evidence
// ranking, prompt assembly, token budgeting, rate-limited LLM calls with a
// hard deadline, structured output parsing, and a deterministic template
// fallback that never fails.
package rationale

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"selinfer/internal/llm"
	"selinfer/internal/ratelimit"
	"selinfer/internal/sel"
)

const (
	maxNarrativeLen  = 600
	maxListItems     = 3
	llmHardDeadline  = 15 * time.Second
	initialTopK      = 10
)

// modelFamily identifies a token-budget bucket, keyed by LLM_MODEL.
type modelFamily struct {
	name            string
	safeInputTokens int
}

var (
	familySmallLongContext = modelFamily{name: "small-long-context", safeInputTokens: 120_000}
	familyLegacy8K         = modelFamily{name: "legacy-8k", safeInputTokens: 6_000}
)

// familyFor classifies a model name into a safe-token-budget family (spec
// §4.8). Unrecognized models are treated conservatively as legacy-8k.
func familyFor(model string) modelFamily {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "gpt-4o"), strings.Contains(m, "gpt-4.1"), strings.Contains(m, "claude-3"), strings.Contains(m, "claude-sonnet"), strings.Contains(m, "claude-opus"):
		return familySmallLongContext
	default:
		return familyLegacy8K
	}
}

// Generator produces Rationales, always returning a value (never blocking
// indefinitely and never propagating an LLM error to the caller).
type Generator struct {
	provider llm.Provider
	model    string
	limiter  *ratelimit.Limiter
}

func New(provider llm.Provider, model string, limiter *ratelimit.Limiter) *Generator {
	return &Generator{provider: provider, model: model, limiter: limiter}
}

// Input carries everything the prompt needs beyond evidence.
type Input struct {
	Skill           sel.Skill
	FusedScore      float64
	FusedConfidence float64
	Evidence        []sel.Evidence
	StudentGrade    string // optional
}

// structuredOutput is the three-field shape the LLM is asked to return.
type structuredOutput struct {
	Narrative         string   `json:"narrative"`
	Strengths         []string `json:"strengths"`
	GrowthSuggestions []string `json:"growth_suggestions"`
}

// Generate runs C8's control flow. ctx's caller-supplied deadline is
// intersected with the hard 15s LLM deadline; the function itself never
// blocks past that.
func (g *Generator) Generate(ctx context.Context, in Input) sel.Rationale {
	if g.provider == nil || g.limiter == nil {
		return template(in)
	}

	ranked := rankEvidence(in.Evidence)
	family := familyFor(g.model)

	for k := initialTopK; k >= 1; {
		prompt := buildPrompt(in, ranked, k)
		tokenCount := llm.EstimateTokensForMessages(prompt)
		if tokenCount <= family.safeInputTokens {
			return g.callLLM(ctx, in, prompt)
		}
		if k == 1 {
			break
		}
		k = nextK(k)
	}

	return template(in)
}

// nextK implements the successive-halving schedule 10->5->3->2->1.
func nextK(k int) int {
	switch {
	case k > 5:
		return 5
	case k > 3:
		return 3
	case k > 2:
		return 2
	case k > 1:
		return 1
	default:
		return 1
	}
}

func (g *Generator) callLLM(ctx context.Context, in Input, prompt []llm.Message) sel.Rationale {
	ok, _ := g.limiter.Acquire()
	if !ok {
		return template(in)
	}

	ctx, cancel := context.WithTimeout(ctx, llmHardDeadline)
	defer cancel()

	reply, usage, err := g.provider.Chat(ctx, g.model, prompt)
	if err != nil {
		return template(in)
	}

	var out structuredOutput
	if jsonErr := json.Unmarshal([]byte(extractJSON(reply)), &out); jsonErr != nil {
		return template(in)
	}
	if !validStructured(out) {
		return template(in)
	}

	return sel.Rationale{
		Narrative:         trimNarrative(out.Narrative),
		Strengths:         capList(out.Strengths),
		GrowthSuggestions: capList(out.GrowthSuggestions),
		Generator:         sel.GeneratorLLM,
		TokensConsumed:    usage.PromptTokens + usage.CompletionTokens,
	}
}

func validStructured(out structuredOutput) bool {
	return strings.TrimSpace(out.Narrative) != "" && len(out.Strengths) <= maxListItems && len(out.GrowthSuggestions) <= maxListItems
}

// trimNarrative enforces the ≤600-character bound (characters, not bytes:
// a multi-byte rune must never be sliced in half). The ellipsis occupies one
// of the 600 characters, so the kept prefix is maxNarrativeLen-1 runes.
func trimNarrative(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxNarrativeLen {
		return s
	}
	return string(runes[:maxNarrativeLen-1]) + "…"
}

func capList(items []string) []string {
	if len(items) > maxListItems {
		return items[:maxListItems]
	}
	return items
}

// extractJSON pulls the first top-level JSON object out of a reply, in case
// the model wraps it in prose or code fences.
func extractJSON(reply string) string {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < 0 || end < start {
		return reply
	}
	return reply[start : end+1]
}

// rankEvidence orders evidence by Relevance descending; the sort is stable,
// so ties keep their input order. Relevance carries neither the source's
// fusion weight nor a separate source confidence, and neither is factored
// into this ranking.
func rankEvidence(items []sel.Evidence) []sel.Evidence {
	sorted := append([]sel.Evidence{}, items...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Relevance < sorted[j].Relevance; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted
}

func buildPrompt(in Input, ranked []sel.Evidence, k int) []llm.Message {
	if k > len(ranked) {
		k = len(ranked)
	}
	top := ranked[:k]

	var body strings.Builder
	fmt.Fprintf(&body, "skill: %s\n", in.Skill)
	fmt.Fprintf(&body, "fused_score: %.3f\n", in.FusedScore)
	fmt.Fprintf(&body, "fused_confidence: %.3f\n", in.FusedConfidence)
	if in.StudentGrade != "" {
		fmt.Fprintf(&body, "student_grade: %s\n", in.StudentGrade)
	}
	body.WriteString("evidence:\n")
	for _, e := range top {
		fmt.Fprintf(&body, "- source=%s score=%.3f relevance=%.3f provenance=%s\n", e.Source, e.NormalizedScore, e.Relevance, e.Provenance)
	}
	body.WriteString("\nRespond with a JSON object: {\"narrative\": string, \"strengths\": [string], \"growth_suggestions\": [string]}.")

	return []llm.Message{
		{Role: "system", Content: systemPreamble},
		{Role: "user", Content: body.String()},
	}
}

const systemPreamble = "You write short, growth-oriented, age-appropriate feedback for a student's " +
	"social-emotional skill assessment. Address the student directly in the second person. Be concise, " +
	"specific, and encouraging. Never mention scores, models, or data sources by name in the narrative."
