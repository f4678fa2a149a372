package responder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaResponder runs against a local Ollama instance using the official
// SDK. Inference can be slow on modest hardware, hence the generous client
// timeout.
type OllamaResponder struct {
	client *api.Client
	model  string
}

func newOllama(cfg Config) (*OllamaResponder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: bad base url %q: %w", baseURL, err)
	}
	httpClient := &http.Client{Timeout: 5 * time.Minute}
	return &OllamaResponder{
		client: api.NewClient(parsedURL, httpClient),
		model:  cfg.Model,
	}, nil
}

func (r *OllamaResponder) ShortAnswer(ctx context.Context, question string) (string, error) {
	return r.complete(ctx, promptShort, question)
}

func (r *OllamaResponder) AlternativeStrategy(ctx context.Context, question, previousAnswer string) (string, error) {
	return r.complete(ctx, promptAlternative, alternativeInput(question, previousAnswer))
}

func (r *OllamaResponder) FollowUpQuestion(ctx context.Context, question, previousAnswer string) (string, error) {
	return r.complete(ctx, promptFollowUp, alternativeInput(question, previousAnswer))
}

func (r *OllamaResponder) complete(ctx context.Context, system, user string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: r.model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}

	var sb strings.Builder
	err := r.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("ollama: empty response")
	}
	return out, nil
}
