package questionables

import (
	"context"
	"errors"
	"strings"
	"time"
)

// FallbackPrompt is used whenever the prompt source fails, times out or
// returns nothing usable.
const FallbackPrompt = "Default prompt if AI fails."

// DefaultPromptTimeout bounds a single prompt fetch.
const DefaultPromptTimeout = 5 * time.Second

// PromptSource supplies the prompt for a round.
type PromptSource interface {
	Prompt(ctx context.Context) (string, error)
}

// PromptFunc adapts a function to PromptSource.
type PromptFunc func(ctx context.Context) (string, error)

func (f PromptFunc) Prompt(ctx context.Context) (string, error) {
	return f(ctx)
}

var errEmptyPrompt = errors.New("prompt source returned an empty prompt")

// fetchPrompt never fails: any error or slow fetch is converted into the
// fallback prompt. It must be called without the store lock held.
func (s *Store) fetchPrompt(ctx context.Context) string {
	if s.prompts == nil {
		return FallbackPrompt
	}

	ctx, cancel := context.WithTimeout(ctx, s.promptTimeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}

	ch := make(chan result, 1)

	go func() {
		text, err := s.prompts.Prompt(ctx)
		ch <- result{text, err}
	}()

	var r result

	select {
	case r = <-ch:
	case <-ctx.Done():
		r.err = ctx.Err()
	}

	if r.err == nil && strings.TrimSpace(r.text) == "" {
		r.err = errEmptyPrompt
	}

	if r.err != nil {
		s.logf("PROMPT: Falling back to default prompt: %v", r.err)

		return FallbackPrompt
	}

	return strings.TrimSpace(r.text)
}
