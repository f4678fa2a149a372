// Package responder generates the model-backed replies of the consultation
// branch. Each supported vendor lives in its own file behind the Responder
// interface; the engine never sees vendor types.
package responder

import (
	"context"
	"fmt"
	"strings"
)

// Responder produces the three reply variants the dialog needs. All calls
// are synchronous; implementations honour ctx cancellation.
type Responder interface {
	// ShortAnswer answers a user question concisely.
	ShortAnswer(ctx context.Context, question string) (string, error)
	// AlternativeStrategy re-answers a repeated question with a different
	// approach than previousAnswer.
	AlternativeStrategy(ctx context.Context, question, previousAnswer string) (string, error)
	// FollowUpQuestion asks one clarifying question about a problem the
	// user keeps repeating.
	FollowUpQuestion(ctx context.Context, question, previousAnswer string) (string, error)
}

const (
	maxTokens   = 220
	temperature = 0.2
)

const promptShort = "Ты — вежливый специалист технической поддержки сервисного центра. " +
	"Отвечай на вопрос пользователя кратко и по делу, на русском языке, " +
	"не более 3-4 предложений. Не задавай встречных вопросов."

const promptAlternative = "Ты — специалист технической поддержки. Пользователь повторяет " +
	"вопрос: предыдущий ответ ему не помог. Предложи другой способ решения, " +
	"не повторяя прежний совет. Отвечай кратко, на русском языке."

const promptFollowUp = "Ты — специалист технической поддержки. Пользователь несколько раз " +
	"повторил одну и ту же проблему. Задай ОДИН короткий уточняющий вопрос, " +
	"который поможет диагностировать её. Только вопрос, без вступлений."

// alternativeInput folds the previous answer into the user message so the
// model knows what not to repeat.
func alternativeInput(question, previousAnswer string) string {
	prev := strings.TrimSpace(previousAnswer)
	if prev == "" {
		return question
	}
	return fmt.Sprintf("Вопрос: %s\n\nПредыдущий ответ, который не помог:\n%s", question, prev)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL is used by the ollama provider; empty means the default
	// local endpoint.
	BaseURL string
}

// New builds the configured provider. An unknown provider name is a
// configuration error, not a fallback.
func New(cfg Config) (Responder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAI(cfg)
	case "anthropic":
		return newAnthropic(cfg)
	case "ollama":
		return newOllama(cfg)
	case "gemini":
		return newGemini(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
