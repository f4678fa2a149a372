package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiResponder talks to the Gemini API. Unlike the other providers the
// client holds a connection and must be created with a context.
type GeminiResponder struct {
	client *genai.Client
	model  string
}

func newGemini(cfg Config) (*GeminiResponder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &GeminiResponder{client: client, model: cfg.Model}, nil
}

func (r *GeminiResponder) ShortAnswer(ctx context.Context, question string) (string, error) {
	return r.complete(ctx, promptShort, question)
}

func (r *GeminiResponder) AlternativeStrategy(ctx context.Context, question, previousAnswer string) (string, error) {
	return r.complete(ctx, promptAlternative, alternativeInput(question, previousAnswer))
}

func (r *GeminiResponder) FollowUpQuestion(ctx context.Context, question, previousAnswer string) (string, error) {
	return r.complete(ctx, promptFollowUp, alternativeInput(question, previousAnswer))
}

func (r *GeminiResponder) Close() error {
	return r.client.Close()
}

func (r *GeminiResponder) complete(ctx context.Context, system, user string) (string, error) {
	model := r.client.GenerativeModel(r.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	temp := float32(temperature)
	model.Temperature = &temp
	tokens := int32(maxTokens)
	model.MaxOutputTokens = &tokens

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return out, nil
}
