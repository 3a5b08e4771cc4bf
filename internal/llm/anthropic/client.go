// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// contract used by the rationale generator.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"selinfer/internal/llm"
	"selinfer/internal/observability"
)

const defaultMaxTokens int64 = 1024

// Client wraps the Anthropic SDK behind llm.Provider.
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

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
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Client{sdk: anthropic.NewClient(opts...), model: model, maxTokens: defaultMaxTokens}
}

// Chat implements llm.Provider.
func (c *Client) Chat(ctx context.Context, model string, msgs []llm.Message) (string, llm.Usage, error) {
	effectiveModel := model
	if effectiveModel == "" {
		effectiveModel = c.model
	}

	var sys string
	converted := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if sys != "" {
				sys += "\n"
			}
			sys += m.Content
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(effectiveModel),
		Messages:  converted,
		MaxTokens: c.maxTokens,
	}
	if sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}

	log := observability.LoggerWithTrace(ctx)
	ctx, span := llm.StartRequestSpan(ctx, "Anthropic Messages", effectiveModel, 0, len(msgs))
	defer span.End()

	llm.LogRedactedPrompt(ctx, msgs)

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("llm_chat_completion_error")
		span.RecordError(err)
		return "", llm.Usage{}, err
	}
	llm.LogRedactedResponse(ctx, resp)

	usage := llm.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	llm.RecordTokenAttributes(span, usage.PromptTokens, usage.CompletionTokens, usage.PromptTokens+usage.CompletionTokens)
	llm.RecordTokenMetrics(effectiveModel, usage.PromptTokens, usage.CompletionTokens)

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), usage, nil
}
