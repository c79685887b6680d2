package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antlaw0/partygame/games/questionables/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptSourceLoadsQuestionFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	questions := "What is the worst thing to bring to a picnic?\nWhat would a cat put on its resume?\n"
	file := filepath.Join(dir, "questions.txt")
	require.NoError(t, os.WriteFile(file, []byte(questions), 0o644))

	cfg := validConfig()
	cfg.questionDB = filepath.Join(dir, "questions.db")
	cfg.questionFile = file

	chain, closeSource, err := newPromptSource(ctx, &cfg)
	require.NoError(t, err)
	require.Len(t, chain, 1)

	text, err := chain.Prompt(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
	require.NoError(t, closeSource())

	bank, err := prompts.OpenBank(ctx, cfg.questionDB)
	require.NoError(t, err)
	defer bank.Close()

	added, err := bank.Load(ctx, strings.NewReader(questions))
	require.NoError(t, err)
	assert.Zero(t, added, "questions from the file were not stored")
}

func TestPromptSourceMissingQuestionFile(t *testing.T) {
	cfg := validConfig()
	cfg.questionDB = filepath.Join(t.TempDir(), "questions.db")
	cfg.questionFile = filepath.Join(t.TempDir(), "missing.txt")

	_, _, err := newPromptSource(context.Background(), &cfg)
	assert.Error(t, err)
}
