package prompts

import (
	"bufio"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// starterQuestions seed an empty bank.
var starterQuestions = []string{
	"What's the worst thing to say during a job interview?",
	"If animals could talk, which would be the rudest?",
	"What's the real reason aliens haven't contacted Earth?",
	"What would be the worst flavor for toothpaste?",
	"What would be a terrible slogan for a funeral home?",
}

var ErrEmptyBank = errors.New("question bank is empty")

// Bank is a SQLite-backed store of questions, each flagged once used so a
// session does not see the same question twice until the bank runs dry.
type Bank struct {
	db *sql.DB
}

// OpenBank opens (or creates) the question bank at dsn, applies the schema
// and seeds the starter questions if the bank is empty.
func OpenBank(ctx context.Context, dsn string) (*Bank, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open question bank: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply question bank schema: %w", err)
	}

	b := &Bank{db: db}

	if _, err := b.Seed(ctx, starterQuestions...); err != nil {
		_ = db.Close()
		return nil, err
	}

	return b, nil
}

func (b *Bank) Close() error {
	return b.db.Close()
}

// Seed inserts questions, but only into an empty bank. It returns the number
// of questions inserted.
func (b *Bank) Seed(ctx context.Context, questions ...string) (int, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed questions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	for _, q := range questions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO questions (text) VALUES (?)`, q); err != nil {
			return 0, fmt.Errorf("insert question: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed questions: %w", err)
	}

	return len(questions), nil
}

// Add inserts a question unless the bank already holds the same text, and
// reports whether it was inserted.
func (b *Bank) Add(ctx context.Context, text string) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		`INSERT INTO questions (text) SELECT ? WHERE NOT EXISTS (SELECT 1 FROM questions WHERE text = ?)`,
		text, text,
	)
	if err != nil {
		return false, fmt.Errorf("insert question: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert question: %w", err)
	}

	return n > 0, nil
}

// Load adds one question per line from r. Blank lines and lines starting
// with '#' are skipped. It returns the number of new questions.
func (b *Bank) Load(ctx context.Context, r io.Reader) (int, error) {
	added := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ok, err := b.Add(ctx, line)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}

	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("read questions: %w", err)
	}

	return added, nil
}

// RandomUnused returns a random question that has not been used since the
// last reset and marks it used. When every question has been used, the
// bank is reset and one more attempt is made.
func (b *Bank) RandomUnused(ctx context.Context) (string, error) {
	text, err := b.takeUnused(ctx)
	if !errors.Is(err, sql.ErrNoRows) {
		return text, err
	}

	if err := b.ResetUsed(ctx); err != nil {
		return "", err
	}

	text, err = b.takeUnused(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrEmptyBank
	}

	return text, err
}

func (b *Bank) takeUnused(ctx context.Context) (string, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("pick question: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id   int64
		text string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, text FROM questions WHERE used = 0 ORDER BY RANDOM() LIMIT 1`,
	).Scan(&id, &text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("pick question: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE questions SET used = 1 WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("mark question used: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("pick question: %w", err)
	}

	return text, nil
}

// ResetUsed marks every question unused again.
func (b *Bank) ResetUsed(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `UPDATE questions SET used = 0`); err != nil {
		return fmt.Errorf("reset used questions: %w", err)
	}

	return nil
}

// Prompt implements questionables.PromptSource.
func (b *Bank) Prompt(ctx context.Context) (string, error) {
	return b.RandomUnused(ctx)
}
