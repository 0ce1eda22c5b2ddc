// Package ingest turns uploaded files and manual entries into invoice rows
// filed under documents, and keeps document aggregates consistent with the
// rows beneath them.
package ingest

import (
	"context"

	"github.com/satheeshds/invoicedesk/models"
)

// Documents persists documents and their derived aggregates.
type Documents interface {
	GetDocument(ctx context.Context, id int64) (models.Document, error)
	TitleExists(ctx context.Context, title string) (bool, error)
	// CreateDocumentWithInvoice inserts doc and then inv referencing it in a
	// single transaction, filling in both IDs. A taken title is a conflict.
	CreateDocumentWithInvoice(ctx context.Context, doc *models.Document, inv *models.InvoiceData) error
	UpdateDocument(ctx context.Context, id int64, in models.DocumentUpdateInput, actor string) (models.Document, error)
	UpdateDocumentPaymentStatus(ctx context.Context, id int64, status models.PaymentStatus, actor string) (models.Document, error)
	// DeleteDocumentIfEmpty removes the document only when no invoice rows
	// reference it, and reports a conflict otherwise.
	DeleteDocumentIfEmpty(ctx context.Context, id int64) error
	// RecomputeAggregates sets the aggregates to the sums over the attached
	// rows and clears any stale marker. It is idempotent.
	RecomputeAggregates(ctx context.Context, id int64) (models.Document, error)
	MarkStale(ctx context.Context, id int64, reason string) error
	ListStale(ctx context.Context) ([]int64, error)
	ListDocumentIDs(ctx context.Context) ([]int64, error)
}

// Invoices persists invoice rows.
type Invoices interface {
	InsertInvoice(ctx context.Context, inv *models.InvoiceData) error
	GetInvoice(ctx context.Context, id int64) (models.InvoiceData, error)
	ListInvoicesByDocument(ctx context.Context, documentID int64) ([]models.InvoiceData, error)
	UpdateInvoice(ctx context.Context, id int64, in models.InvoiceUpdateInput, actor string) (models.InvoiceData, error)
	// UpdateInvoiceStatus keeps the current ledger when ledgerID is nil.
	UpdateInvoiceStatus(ctx context.Context, id int64, status models.BillStatus, ledgerID *int64, actor string) (models.InvoiceData, error)
	DeleteInvoice(ctx context.Context, id int64) error
	// HasDuplicate reports whether a row with exactly these values exists.
	HasDuplicate(ctx context.Context, invoiceDate, invoiceNumber, companyName string) (bool, error)
}

// Directory resolves references owned by other services.
type Directory interface {
	// CustomerIDForUser returns a not_found error when the user has no customer record.
	CustomerIDForUser(ctx context.Context, userID string) (int64, error)
	LedgerExists(ctx context.Context, id int64) (bool, error)
}

// Repository is everything ingest needs from persistence.
type Repository interface {
	Documents
	Invoices
	Directory
}

// Actor is the verified caller, supplied by the auth middleware.
type Actor struct {
	UserID string
	Role   string
}
