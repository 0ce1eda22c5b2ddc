package store

import (
	"context"
	"fmt"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
)

const ledgerSelectQuery = `SELECT id, name, description, created_by, updated_by, created_at, updated_at FROM ledgers`

func scanLedger(row scanner) (models.Ledger, error) {
	var l models.Ledger
	err := row.Scan(&l.ID, &l.Name, &l.Description, &l.CreatedBy, &l.UpdatedBy, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// ListLedgers returns every ledger ordered by name, optionally filtered by a
// case-insensitive substring.
func (s *Store) ListLedgers(ctx context.Context, search string) ([]models.Ledger, error) {
	const op = "store.ListLedgers"
	query := ledgerSelectQuery
	var args []any
	if search != "" {
		query += " WHERE name ILIKE $1"
		args = append(args, "%"+search+"%")
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	defer rows.Close()

	ledgers := []models.Ledger{}
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		ledgers = append(ledgers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return ledgers, nil
}

func (s *Store) GetLedger(ctx context.Context, id int64) (models.Ledger, error) {
	l, err := scanLedger(s.db.QueryRowContext(ctx, ledgerSelectQuery+" WHERE id = $1", id))
	if err != nil {
		return models.Ledger{}, notFound("store.GetLedger", "ledger", err)
	}
	return l, nil
}

// CreateLedger inserts a ledger. Names are unique.
func (s *Store) CreateLedger(ctx context.Context, in models.LedgerInput, actor string) (models.Ledger, error) {
	const op = "store.CreateLedger"
	l, err := scanLedger(s.db.QueryRowContext(ctx, `INSERT INTO ledgers (name, description, created_by, updated_by)
		VALUES ($1, $2, $3, $3)
		RETURNING id, name, description, created_by, updated_by, created_at, updated_at`,
		in.Name, in.Description, actor))
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return models.Ledger{}, apperr.Conflict(op, "name", "ledger name already exists")
		}
		return models.Ledger{}, apperr.Internal(op, fmt.Errorf("inserting ledger: %w", err))
	}
	return l, nil
}

// UpdateLedger renames a ledger and replaces its description.
func (s *Store) UpdateLedger(ctx context.Context, id int64, in models.LedgerInput, actor string) (models.Ledger, error) {
	const op = "store.UpdateLedger"
	l, err := scanLedger(s.db.QueryRowContext(ctx, `UPDATE ledgers SET name = $2, description = $3, updated_by = $4, updated_at = now()
		WHERE id = $1
		RETURNING id, name, description, created_by, updated_by, created_at, updated_at`,
		id, in.Name, in.Description, actor))
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return models.Ledger{}, apperr.Conflict(op, "name", "ledger name already exists")
		}
		return models.Ledger{}, notFound(op, "ledger", err)
	}
	return l, nil
}

// DeleteLedger removes a ledger no invoice references.
func (s *Store) DeleteLedger(ctx context.Context, id int64) error {
	const op = "store.DeleteLedger"
	res, err := s.db.ExecContext(ctx, "DELETE FROM ledgers WHERE id = $1", id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return apperr.Conflict(op, "", "ledger is in use by invoices")
		}
		return apperr.Internal(op, err)
	}
	return requireAffected(op, "ledger", res)
}

func (s *Store) LedgerExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, "SELECT EXISTS(SELECT 1 FROM ledgers WHERE id = $1)", id)
}
