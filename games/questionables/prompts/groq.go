// Package prompts provides the prompt sources used by Questionables rounds:
// a Groq-hosted language model, a SQLite question bank, and a chain that
// falls through them in order.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1/"
	DefaultGroqModel   = "llama-3.1-8b-instant"

	groqInstruction = "Generate a funny or interesting question suitable for a Quiplash-style game. Reply with the question only."
	groqMaxTokens   = 50
)

var ErrNotConfigured = errors.New("prompt source not configured")

// Groq asks an OpenAI-compatible chat completion endpoint for a prompt.
type Groq struct {
	client openai.Client
	model  string
	ok     bool
}

type GroqConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
}

func NewGroq(cfg GroqConfig) *Groq {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGroqBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGroqModel
	}

	return &Groq{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(cfg.MaxRetries),
		),
		model: cfg.Model,
		ok:    cfg.APIKey != "",
	}
}

// IsAvailable reports whether an API key was configured.
func (g *Groq) IsAvailable() bool {
	return g != nil && g.ok
}

func (g *Groq) Prompt(ctx context.Context) (string, error) {
	if !g.IsAvailable() {
		return "", fmt.Errorf("groq: %w", ErrNotConfigured)
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(groqInstruction),
		},
		MaxTokens: openai.Int(groqMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("groq: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", errors.New("groq: no choices in completion")
	}

	text := cleanPrompt(completion.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("groq: empty completion")
	}

	return text, nil
}

// cleanPrompt strips whitespace and the quotes models like to wrap
// questions in.
func cleanPrompt(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'")

	return strings.TrimSpace(s)
}
