package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicResponder talks to the Anthropic messages API using the
// official SDK.
type AnthropicResponder struct {
	client anthropic.Client
	model  string
}

func newAnthropic(cfg Config) (*AnthropicResponder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &AnthropicResponder{client: client, model: cfg.Model}, nil
}

func (r *AnthropicResponder) ShortAnswer(ctx context.Context, question string) (string, error) {
	return r.complete(ctx, promptShort, question)
}

func (r *AnthropicResponder) AlternativeStrategy(ctx context.Context, question, previousAnswer string) (string, error) {
	return r.complete(ctx, promptAlternative, alternativeInput(question, previousAnswer))
}

func (r *AnthropicResponder) FollowUpQuestion(ctx context.Context, question, previousAnswer string) (string, error) {
	return r.complete(ctx, promptFollowUp, alternativeInput(question, previousAnswer))
}

func (r *AnthropicResponder) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("anthropic: empty response")
	}
	return out, nil
}
