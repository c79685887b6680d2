package prompts

import (
	"context"
	"errors"
	"testing"

	"github.com/antlaw0/partygame/games/questionables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(msg string) questionables.PromptSource {
	return questionables.PromptFunc(func(context.Context) (string, error) {
		return "", errors.New(msg)
	})
}

func static(text string) questionables.PromptSource {
	return questionables.PromptFunc(func(context.Context) (string, error) {
		return text, nil
	})
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	text, err := Chain{failing("groq down"), nil, static(" "), static("Why not?")}.Prompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Why not?", text)

	_, err = Chain{failing("groq down"), failing("bank locked")}.Prompt(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "groq down")
	assert.Contains(t, err.Error(), "bank locked")

	_, err = Chain{}.Prompt(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	called := false
	chain := Chain{
		questionables.PromptFunc(func(context.Context) (string, error) {
			cancel()
			return "", context.Canceled
		}),
		questionables.PromptFunc(func(context.Context) (string, error) {
			called = true
			return "unreachable", nil
		}),
	}

	_, err := chain.Prompt(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestChainReset(t *testing.T) {
	ctx := context.Background()
	b := openTestBank(t, ":memory:")

	for range starterQuestions {
		_, err := b.RandomUnused(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, Chain{static("x"), b}.Reset(ctx))

	var unused int
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE used = 0`).Scan(&unused))
	assert.Equal(t, len(starterQuestions), unused)
}

func TestChainAsStorePrompts(t *testing.T) {
	b := openTestBank(t, ":memory:")
	s := questionables.NewStore(questionables.Config{
		Prompts: Chain{NewGroq(GroqConfig{}), b},
		Random:  questionables.NewRandom(1),
	})

	_, err := s.CreateSession("l", "L", 1)
	require.NoError(t, err)

	started, err := s.StartRound(context.Background(), "l")
	require.NoError(t, err)
	assert.Contains(t, starterQuestions, started.Prompt)
}
