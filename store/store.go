// Package store is the Postgres implementation of the persistence
// interfaces used by ingest and titles.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/ingest"
)

// Postgres error codes the store translates.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store implements ingest.Repository, titles.Directory and ledger CRUD over
// a *sql.DB opened with the pgx driver.
type Store struct {
	db *sql.DB
}

// New returns a Store over db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface{ Scan(...any) error }

// pgCode returns the SQLSTATE of err, or "".
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// notFound maps sql.ErrNoRows to a not_found error and anything else to internal.
func notFound(op, what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(op, what+" not found")
	}
	return apperr.Internal(op, err)
}

// requireAffected turns a zero-row update into a not_found error.
func requireAffected(op, what string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal(op, fmt.Errorf("rows affected: %w", err))
	}
	if n == 0 {
		return apperr.NotFound(op, what+" not found")
	}
	return nil
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// CustomerIDForUser resolves the customer record of an authenticated user.
func (s *Store) CustomerIDForUser(ctx context.Context, userID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM customers WHERE user_id = $1", userID).Scan(&id)
	if err != nil {
		return 0, notFound("store.CustomerIDForUser", "customer", err)
	}
	return id, nil
}

var _ ingest.Repository = (*Store)(nil)
