package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
)

// The ledger name is resolved at read time so renames and deletions of a
// ledger never leave a stale copy on the row.
const invoiceSelectQuery = `SELECT i.id, i.document_id, i.invoice_number, i.trn_number,
	i.gross_amount, i.vat_total, i.total_amount, i.company_name, i.invoice_date,
	i.image_url, i.file_type, i.bill_type, i.bill_status, i.ledger_id, i.payment_mode,
	i.duplicate_status, i.status_updated_by, i.updated_by, i.customer_id, i.created_at, i.updated_at,
	COALESCE(l.name, 'not selected') AS ledger
	FROM invoice_data i
	LEFT JOIN ledgers l ON l.id = i.ledger_id`

func scanInvoice(row scanner) (models.InvoiceData, error) {
	var inv models.InvoiceData
	err := row.Scan(&inv.ID, &inv.DocumentID, &inv.InvoiceNumber, &inv.TRNNumber,
		&inv.GrossAmount, &inv.VATTotal, &inv.TotalAmount, &inv.CompanyName, &inv.InvoiceDate,
		&inv.ImageURL, &inv.FileType, &inv.BillType, &inv.BillStatus, &inv.LedgerID, &inv.PaymentMode,
		&inv.DuplicateStatus, &inv.StatusUpdatedBy, &inv.UpdatedBy, &inv.CustomerID, &inv.CreatedAt, &inv.UpdatedAt,
		&inv.LedgerName)
	return inv, err
}

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertInvoice(ctx context.Context, q queryRower, inv *models.InvoiceData) error {
	const op = "store.InsertInvoice"
	err := q.QueryRowContext(ctx, `INSERT INTO invoice_data (document_id, invoice_number, trn_number,
		gross_amount, vat_total, total_amount, company_name, invoice_date, image_url, file_type,
		bill_type, bill_status, ledger_id, payment_mode, duplicate_status, status_updated_by, updated_by, customer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at`,
		inv.DocumentID, inv.InvoiceNumber, inv.TRNNumber,
		inv.GrossAmount, inv.VATTotal, inv.TotalAmount, inv.CompanyName, inv.InvoiceDate, inv.ImageURL, inv.FileType,
		inv.BillType, inv.BillStatus, inv.LedgerID, inv.PaymentMode, inv.DuplicateStatus, inv.StatusUpdatedBy, inv.UpdatedBy, inv.CustomerID,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return apperr.NotFound(op, "referenced document, customer or ledger not found")
		}
		return apperr.Internal(op, fmt.Errorf("inserting invoice: %w", err))
	}
	if inv.LedgerID == nil {
		inv.LedgerName = models.LedgerNotSelected
	}
	return nil
}

func (s *Store) InsertInvoice(ctx context.Context, inv *models.InvoiceData) error {
	return insertInvoice(ctx, s.db, inv)
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (models.InvoiceData, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, invoiceSelectQuery+" WHERE i.id = $1", id))
	if err != nil {
		return models.InvoiceData{}, notFound("store.GetInvoice", "invoice", err)
	}
	return inv, nil
}

func (s *Store) ListInvoicesByDocument(ctx context.Context, documentID int64) ([]models.InvoiceData, error) {
	const op = "store.ListInvoicesByDocument"
	rows, err := s.db.QueryContext(ctx, invoiceSelectQuery+" WHERE i.document_id = $1 ORDER BY i.id", documentID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	defer rows.Close()

	invoices := []models.InvoiceData{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return invoices, nil
}

// UpdateInvoice applies the non-nil fields of in and records actor as the
// last editor.
func (s *Store) UpdateInvoice(ctx context.Context, id int64, in models.InvoiceUpdateInput, actor string) (models.InvoiceData, error) {
	const op = "store.UpdateInvoice"
	res, err := s.db.ExecContext(ctx, `UPDATE invoice_data SET
		invoice_number = COALESCE($2, invoice_number),
		trn_number = COALESCE($3, trn_number),
		company_name = COALESCE($4, company_name),
		invoice_date = COALESCE($5, invoice_date),
		gross_amount = COALESCE($6, gross_amount),
		vat_total = COALESCE($7, vat_total),
		total_amount = COALESCE($8, total_amount),
		payment_mode = COALESCE($9, payment_mode),
		updated_by = $10,
		updated_at = now()
		WHERE id = $1`,
		id, in.InvoiceNumber, in.TRNNumber, in.CompanyName, in.InvoiceDate,
		in.GrossAmount, in.VATTotal, in.TotalAmount, in.PaymentMode, actor)
	if err != nil {
		return models.InvoiceData{}, apperr.Internal(op, err)
	}
	if err := requireAffected(op, "invoice", res); err != nil {
		return models.InvoiceData{}, err
	}
	return s.GetInvoice(ctx, id)
}

// UpdateInvoiceStatus sets the review status. A nil ledgerID keeps the
// current ledger.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, id int64, status models.BillStatus, ledgerID *int64, actor string) (models.InvoiceData, error) {
	const op = "store.UpdateInvoiceStatus"
	res, err := s.db.ExecContext(ctx, `UPDATE invoice_data SET bill_status = $2,
		ledger_id = COALESCE($3, ledger_id), status_updated_by = $4, updated_at = now()
		WHERE id = $1`, id, status, ledgerID, actor)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return models.InvoiceData{}, apperr.Validation(op, "ledger_id", "ledger not found")
		}
		return models.InvoiceData{}, apperr.Internal(op, err)
	}
	if err := requireAffected(op, "invoice", res); err != nil {
		return models.InvoiceData{}, err
	}
	return s.GetInvoice(ctx, id)
}

func (s *Store) DeleteInvoice(ctx context.Context, id int64) error {
	const op = "store.DeleteInvoice"
	res, err := s.db.ExecContext(ctx, "DELETE FROM invoice_data WHERE id = $1", id)
	if err != nil {
		return apperr.Internal(op, err)
	}
	return requireAffected(op, "invoice", res)
}

// HasDuplicate matches the (date, number, company) triple exactly.
func (s *Store) HasDuplicate(ctx context.Context, invoiceDate, invoiceNumber, companyName string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM invoice_data
		WHERE invoice_date = $1 AND invoice_number = $2 AND company_name = $3)`,
		invoiceDate, invoiceNumber, companyName)
}
