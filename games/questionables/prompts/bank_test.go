package prompts

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBank(t *testing.T, dsn string) *Bank {
	t.Helper()

	b, err := OpenBank(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return b
}

func TestBankServesEachQuestionOnce(t *testing.T) {
	ctx := context.Background()
	b := openTestBank(t, ":memory:")

	seen := make(map[string]bool)
	for range starterQuestions {
		q, err := b.RandomUnused(ctx)
		require.NoError(t, err)
		assert.False(t, seen[q], "question %q served twice", q)
		seen[q] = true
	}
	assert.Len(t, seen, len(starterQuestions))

	// Exhausted: the bank resets and keeps serving.
	q, err := b.Prompt(ctx)
	require.NoError(t, err)
	assert.Contains(t, starterQuestions, q)
}

func TestBankSeedOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	b := openTestBank(t, ":memory:")

	n, err := b.Seed(ctx, "Never inserted?")
	require.NoError(t, err)
	assert.Zero(t, n)

	added, err := b.Add(ctx, "What is the best thing to shout in a library?")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = b.Add(ctx, starterQuestions[0])
	require.NoError(t, err)
	assert.False(t, added)

	var count int
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count))
	assert.Equal(t, len(starterQuestions)+1, count)
}

func TestBankEmpty(t *testing.T) {
	ctx := context.Background()
	b := openTestBank(t, ":memory:")

	_, err := b.db.ExecContext(ctx, `DELETE FROM questions`)
	require.NoError(t, err)

	_, err = b.RandomUnused(ctx)
	assert.ErrorIs(t, err, ErrEmptyBank)
}

func TestBankResetUsed(t *testing.T) {
	ctx := context.Background()
	b := openTestBank(t, ":memory:")

	for range 3 {
		_, err := b.RandomUnused(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, b.ResetUsed(ctx))

	var used int
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE used = 1`).Scan(&used))
	assert.Zero(t, used)
}

func TestBankPersists(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "questions.db")

	b, err := OpenBank(ctx, dsn)
	require.NoError(t, err)
	first, err := b.RandomUnused(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b = openTestBank(t, dsn)

	var total, unused int
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&total))
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE used = 0`).Scan(&unused))
	assert.Equal(t, len(starterQuestions), total)
	assert.Equal(t, len(starterQuestions)-1, unused)

	for range unused {
		q, err := b.RandomUnused(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, first, q)
	}
}

func TestBankLoad(t *testing.T) {
	ctx := context.Background()
	b := openTestBank(t, ":memory:")

	questions := strings.Join([]string{
		"# party questions",
		"What is the worst smell for a candle?",
		"",
		"   ",
		starterQuestions[1],
		"  What should never be said at a wedding?  ",
		"What is the worst smell for a candle?",
	}, "\n")

	n, err := b.Load(ctx, strings.NewReader(questions))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var count int
	require.NoError(t, b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE text = ?`, "What should never be said at a wedding?",
	).Scan(&count))
	assert.Equal(t, 1, count)

	n, err = b.Load(ctx, strings.NewReader(questions))
	require.NoError(t, err)
	assert.Zero(t, n)
}
