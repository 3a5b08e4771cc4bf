// Package openai adapts the OpenAI Chat Completions API to the llm.Provider
// contract used by the rationale generator.
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"selinfer/internal/llm"
	"selinfer/internal/observability"
)

// Client wraps the OpenAI SDK behind llm.Provider.
type Client struct {
	sdk     sdk.Client
	model   string
	baseURL string
}

// Config carries the fields New needs; kept narrow since the rationale
// generator has no use for the teacher's broader agentic client options.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{sdk: sdk.NewClient(opts...), model: model, baseURL: base}
}

// Chat implements llm.Provider.
func (c *Client) Chat(ctx context.Context, model string, msgs []llm.Message) (string, llm.Usage, error) {
	effectiveModel := model
	if effectiveModel == "" {
		effectiveModel = c.model
	}

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(effectiveModel),
		Messages: adaptMessages(msgs),
	}

	log := observability.LoggerWithTrace(ctx)
	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Chat", effectiveModel, 0, len(msgs))
	defer span.End()

	llm.LogRedactedPrompt(ctx, msgs)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("llm_chat_completion_error")
		span.RecordError(err)
		return "", llm.Usage{}, err
	}
	llm.LogRedactedResponse(ctx, comp.Choices)

	usage := llm.Usage{
		PromptTokens:     int(comp.Usage.PromptTokens),
		CompletionTokens: int(comp.Usage.CompletionTokens),
	}
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.PromptTokens+usage.CompletionTokens)
	llm.RecordTokenMetrics(effectiveModel, usage.PromptTokens, usage.CompletionTokens)

	if len(comp.Choices) == 0 {
		return "", usage, nil
	}
	return comp.Choices[0].Message.Content, usage, nil
}

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}
