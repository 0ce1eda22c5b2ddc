package store

import (
	"context"
	"fmt"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
)

const documentColumns = `id, document_number, title, description, document_type, customer_id,
	payment_status, uploaded_by, updated_by, created_at, updated_at,
	gross_amount, total_amount, total_vat, number_of_uploaded_files`

const documentSelectQuery = `SELECT ` + documentColumns + ` FROM documents`

func scanDocument(row scanner) (models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.DocumentNumber, &d.Title, &d.Description, &d.DocumentType, &d.CustomerID,
		&d.PaymentStatus, &d.UploadedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt,
		&d.GrossAmount, &d.TotalAmount, &d.TotalVAT, &d.NumberOfUploadedFiles)
	return d, err
}

func (s *Store) GetDocument(ctx context.Context, id int64) (models.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, documentSelectQuery+" WHERE id = $1", id))
	if err != nil {
		return models.Document{}, notFound("store.GetDocument", "document", err)
	}
	return d, nil
}

func (s *Store) TitleExists(ctx context.Context, title string) (bool, error) {
	return s.exists(ctx, "SELECT EXISTS(SELECT 1 FROM documents WHERE title = $1)", title)
}

// CreateDocumentWithInvoice inserts the document and its first row in one
// transaction.
func (s *Store) CreateDocumentWithInvoice(ctx context.Context, doc *models.Document, inv *models.InvoiceData) error {
	const op = "store.CreateDocumentWithInvoice"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `INSERT INTO documents (document_number, title, description, document_type,
		customer_id, payment_status, uploaded_by, updated_by, gross_amount, total_amount, total_vat, number_of_uploaded_files)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		doc.DocumentNumber, doc.Title, doc.Description, doc.DocumentType,
		doc.CustomerID, doc.PaymentStatus, doc.UploadedBy, doc.UpdatedBy,
		doc.GrossAmount, doc.TotalAmount, doc.TotalVAT, doc.NumberOfUploadedFiles,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		switch pgCode(err) {
		case codeUniqueViolation:
			return apperr.Conflict(op, "title", "document title already exists")
		case codeForeignKeyViolation:
			return apperr.NotFound(op, "customer not found")
		}
		return apperr.Internal(op, fmt.Errorf("inserting document: %w", err))
	}

	id := doc.ID
	inv.DocumentID = &id
	if err := insertInvoice(ctx, tx, inv); err != nil {
		return apperr.Wrap(op, err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Internal(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// UpdateDocument applies the non-nil fields of in.
func (s *Store) UpdateDocument(ctx context.Context, id int64, in models.DocumentUpdateInput, actor string) (models.Document, error) {
	const op = "store.UpdateDocument"
	d, err := scanDocument(s.db.QueryRowContext(ctx, `UPDATE documents SET
		title = COALESCE($2, title),
		document_number = COALESCE($2, document_number),
		description = COALESCE($3, description),
		document_type = COALESCE($4, document_type),
		customer_id = COALESCE($5, customer_id),
		updated_by = $6,
		updated_at = now()
		WHERE id = $1
		RETURNING `+documentColumns,
		id, in.Title, in.Description, in.DocumentType, in.CustomerID, actor))
	if err != nil {
		switch pgCode(err) {
		case codeUniqueViolation:
			return models.Document{}, apperr.Conflict(op, "title", "document title already exists")
		case codeForeignKeyViolation:
			return models.Document{}, apperr.Validation(op, "customer_id", "customer not found")
		}
		return models.Document{}, notFound(op, "document", err)
	}
	return d, nil
}

func (s *Store) UpdateDocumentPaymentStatus(ctx context.Context, id int64, status models.PaymentStatus, actor string) (models.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `UPDATE documents SET payment_status = $2, updated_by = $3, updated_at = now()
		WHERE id = $1 RETURNING `+documentColumns, id, status, actor))
	if err != nil {
		return models.Document{}, notFound("store.UpdateDocumentPaymentStatus", "document", err)
	}
	return d, nil
}

// DeleteDocumentIfEmpty deletes the document unless invoice rows still
// reference it.
func (s *Store) DeleteDocumentIfEmpty(ctx context.Context, id int64) error {
	const op = "store.DeleteDocument"
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1
		AND NOT EXISTS (SELECT 1 FROM invoice_data WHERE document_id = $1)`, id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return apperr.Conflict(op, "", "document still has invoices")
		}
		return apperr.Internal(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	found, err := s.exists(ctx, "SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)", id)
	if err != nil {
		return apperr.Internal(op, err)
	}
	if !found {
		return apperr.NotFound(op, "document not found")
	}
	return apperr.Conflict(op, "", "document still has invoices")
}

// RecomputeAggregates sets the document totals to the sums over its rows and
// clears its stale marker.
func (s *Store) RecomputeAggregates(ctx context.Context, id int64) (models.Document, error) {
	const op = "store.RecomputeAggregates"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Document{}, apperr.Internal(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	d, err := scanDocument(tx.QueryRowContext(ctx, `UPDATE documents SET
		gross_amount = s.gross, total_amount = s.total, total_vat = s.vat,
		number_of_uploaded_files = s.files, updated_at = now()
		FROM (SELECT COALESCE(SUM(gross_amount), 0) AS gross,
			COALESCE(SUM(total_amount), 0) AS total,
			COALESCE(SUM(vat_total), 0) AS vat,
			COUNT(*) AS files
			FROM invoice_data WHERE document_id = $1) s
		WHERE documents.id = $1
		RETURNING `+documentColumns, id))
	if err != nil {
		return models.Document{}, notFound(op, "document", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM stale_documents WHERE document_id = $1", id); err != nil {
		return models.Document{}, apperr.Internal(op, fmt.Errorf("clearing stale marker: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return models.Document{}, apperr.Internal(op, fmt.Errorf("commit: %w", err))
	}
	return d, nil
}

// MarkStale queues a document for aggregate reconciliation.
func (s *Store) MarkStale(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO stale_documents (document_id, reason) VALUES ($1, $2)
		ON CONFLICT (document_id) DO UPDATE SET reason = EXCLUDED.reason, marked_at = now()`, id, reason)
	if err != nil {
		return apperr.Internal("store.MarkStale", err)
	}
	return nil
}

func (s *Store) ListStale(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, "store.ListStale", "SELECT document_id FROM stale_documents ORDER BY document_id")
}

func (s *Store) ListDocumentIDs(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, "store.ListDocumentIDs", "SELECT id FROM documents ORDER BY id")
}

func (s *Store) listIDs(ctx context.Context, op, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Internal(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return ids, nil
}
