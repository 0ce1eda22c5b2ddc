package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/satheeshds/invoicedesk/titles"
)

// LatestSequence returns the highest sequence among titles under prefix.
func (s *Store) LatestSequence(ctx context.Context, prefix string) (int, error) {
	var title string
	err := s.db.QueryRowContext(ctx, `SELECT title FROM documents WHERE title LIKE $1
		ORDER BY title DESC LIMIT 1`, prefix+"-____").Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest title for %s: %w", prefix, err)
	}
	_, seq, err := titles.ParseTitle(title)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Sequence is a titles.Sequence backed by a counter row per prefix. The
// upsert is atomic, so concurrent instances never receive the same value.
type Sequence struct {
	db *sql.DB
}

func NewSequence(db *sql.DB) *Sequence {
	return &Sequence{db: db}
}

func (q *Sequence) Next(ctx context.Context, prefix string, floor int) (int, error) {
	var next int
	err := q.db.QueryRowContext(ctx, `INSERT INTO title_sequences (prefix, last_value) VALUES ($1, $2 + 1)
		ON CONFLICT (prefix) DO UPDATE SET last_value = GREATEST(title_sequences.last_value, $2) + 1
		RETURNING last_value`, prefix, floor).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next title sequence for %s: %w", prefix, err)
	}
	return next, nil
}

var (
	_ titles.Directory = (*Store)(nil)
	_ titles.Sequence  = (*Sequence)(nil)
)
