package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIResponder talks to the OpenAI chat completions API using the
// official SDK.
type OpenAIResponder struct {
	client openai.Client
	model  string
}

func newOpenAI(cfg Config) (*OpenAIResponder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &OpenAIResponder{client: client, model: cfg.Model}, nil
}

func (r *OpenAIResponder) ShortAnswer(ctx context.Context, question string) (string, error) {
	return r.complete(ctx, promptShort, question)
}

func (r *OpenAIResponder) AlternativeStrategy(ctx context.Context, question, previousAnswer string) (string, error) {
	return r.complete(ctx, promptAlternative, alternativeInput(question, previousAnswer))
}

func (r *OpenAIResponder) FollowUpQuestion(ctx context.Context, question, previousAnswer string) (string, error) {
	return r.complete(ctx, promptFollowUp, alternativeInput(question, previousAnswer))
}

func (r *OpenAIResponder) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(maxTokens),
		Temperature:         openai.Float(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("openai: empty response")
	}
	return out, nil
}
