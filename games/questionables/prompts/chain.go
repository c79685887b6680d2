package prompts

import (
	"context"
	"errors"
	"strings"

	"github.com/antlaw0/partygame/games/questionables"
)

// Chain tries each source in order and returns the first non-empty prompt.
// Nil sources are skipped.
type Chain []questionables.PromptSource

func (c Chain) Prompt(ctx context.Context) (string, error) {
	var errs []error

	for _, src := range c {
		if src == nil {
			continue
		}

		text, err := src.Prompt(ctx)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = errors.New("empty prompt")
		}
		errs = append(errs, err)

		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 0 {
		return "", ErrNotConfigured
	}

	return "", errors.Join(errs...)
}

// Reset clears used flags on every source that tracks them. It is called
// when a new session is created.
func (c Chain) Reset(ctx context.Context) error {
	var errs []error

	for _, src := range c {
		if r, ok := src.(interface{ ResetUsed(context.Context) error }); ok {
			errs = append(errs, r.ResetUsed(ctx))
		}
	}

	return errors.Join(errs...)
}
