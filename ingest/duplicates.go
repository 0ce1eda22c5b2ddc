package ingest

import (
	"context"
	"log/slog"

	"github.com/satheeshds/invoicedesk/models"
)

// DuplicateDetector flags rows that repeat an existing (date, number,
// company) triple. Matching is exact string equality. It never blocks.
type DuplicateDetector struct {
	invoices Invoices
	log      *slog.Logger
}

func NewDuplicateDetector(invoices Invoices) *DuplicateDetector {
	return &DuplicateDetector{invoices: invoices, log: slog.With("component", "duplicates")}
}

// Check reports whether f matches an existing row. Rows without an invoice
// number are never flagged, and lookup errors count as "not a duplicate".
func (d *DuplicateDetector) Check(ctx context.Context, f models.InvoiceFields) bool {
	if f.InvoiceNumber == "" || f.InvoiceNumber == models.NotAvailable {
		return false
	}
	dup, err := d.invoices.HasDuplicate(ctx, f.InvoiceDate, f.InvoiceNumber, f.CompanyName)
	if err != nil {
		d.log.Warn("duplicate lookup failed", "invoice_number", f.InvoiceNumber, "error", err)
		return false
	}
	return dup
}
