package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/satheeshds/invoicedesk/storage"
)

// Review holds the post-ingestion operations: reading, editing, status
// changes and deletion of documents and invoice rows.
type Review struct {
	repo  Repository
	files storage.FileStore
	agg   *Aggregator
	log   *slog.Logger
}

// NewReview returns a Review over repo. files is used to remove the stored
// file of a deleted invoice row.
func NewReview(repo Repository, files storage.FileStore) *Review {
	return &Review{
		repo:  repo,
		files: files,
		agg:   NewAggregator(repo),
		log:   slog.With("component", "review"),
	}
}

// DocumentDetail is a document with its attached rows.
type DocumentDetail struct {
	models.Document
	Invoices []models.InvoiceData `json:"invoices"`
}

func (r *Review) GetDocument(ctx context.Context, id int64) (DocumentDetail, error) {
	const op = "review.GetDocument"
	doc, err := r.repo.GetDocument(ctx, id)
	if err != nil {
		return DocumentDetail{}, apperr.Wrap(op, err)
	}
	invoices, err := r.repo.ListInvoicesByDocument(ctx, id)
	if err != nil {
		return DocumentDetail{}, apperr.Wrap(op, err)
	}
	return DocumentDetail{Document: doc, Invoices: invoices}, nil
}

func (r *Review) ListDocumentInvoices(ctx context.Context, id int64) ([]models.InvoiceData, error) {
	const op = "review.ListDocumentInvoices"
	if _, err := r.repo.GetDocument(ctx, id); err != nil {
		return nil, apperr.Wrap(op, err)
	}
	invoices, err := r.repo.ListInvoicesByDocument(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	return invoices, nil
}

// UpdateDocument edits document metadata. A new title must not belong to
// another document.
func (r *Review) UpdateDocument(ctx context.Context, id int64, in models.DocumentUpdateInput, actor Actor) (models.Document, error) {
	const op = "review.UpdateDocument"
	if msg := in.Validate(); msg != "" {
		return models.Document{}, apperr.Validation(op, "", msg)
	}
	doc, err := r.repo.GetDocument(ctx, id)
	if err != nil {
		return models.Document{}, apperr.Wrap(op, err)
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return models.Document{}, apperr.Validation(op, "title", "title must not be empty")
		}
		in.Title = &title
		if title != doc.Title {
			taken, err := r.repo.TitleExists(ctx, title)
			if err != nil {
				return models.Document{}, apperr.Internal(op, err)
			}
			if taken {
				return models.Document{}, apperr.Conflict(op, "title", "document title already exists")
			}
		}
	}
	updated, err := r.repo.UpdateDocument(ctx, id, in, actor.UserID)
	if err != nil {
		return models.Document{}, apperr.Wrap(op, err)
	}
	return updated, nil
}

func (r *Review) ChangeDocumentStatus(ctx context.Context, id int64, in models.DocumentStatusInput, actor Actor) (models.Document, error) {
	const op = "review.ChangeDocumentStatus"
	if msg := in.Validate(); msg != "" {
		return models.Document{}, apperr.Validation(op, "payment_status", msg)
	}
	doc, err := r.repo.UpdateDocumentPaymentStatus(ctx, id, in.PaymentStatus, actor.UserID)
	if err != nil {
		return models.Document{}, apperr.Wrap(op, err)
	}
	return doc, nil
}

// DeleteDocument removes a document that has no invoice rows left.
func (r *Review) DeleteDocument(ctx context.Context, id int64) error {
	if err := r.repo.DeleteDocumentIfEmpty(ctx, id); err != nil {
		return apperr.Wrap("review.DeleteDocument", err)
	}
	r.log.Info("document deleted", "document_id", id)
	return nil
}

// InvoiceDetail is an invoice row with a summary of its parent document.
type InvoiceDetail struct {
	models.InvoiceData
	Document *DocumentSummary `json:"document,omitempty"`
}

type DocumentSummary struct {
	ID            int64                `json:"id"`
	Title         string               `json:"title"`
	DocumentType  models.DocumentKind  `json:"document_type"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

func (r *Review) GetInvoice(ctx context.Context, id int64) (InvoiceDetail, error) {
	const op = "review.GetInvoice"
	inv, err := r.repo.GetInvoice(ctx, id)
	if err != nil {
		return InvoiceDetail{}, apperr.Wrap(op, err)
	}
	detail := InvoiceDetail{InvoiceData: inv}
	if inv.DocumentID != nil {
		doc, err := r.repo.GetDocument(ctx, *inv.DocumentID)
		if err != nil {
			return InvoiceDetail{}, apperr.Wrap(op, err)
		}
		detail.Document = &DocumentSummary{
			ID:            doc.ID,
			Title:         doc.Title,
			DocumentType:  doc.DocumentType,
			PaymentStatus: doc.PaymentStatus,
		}
	}
	return detail, nil
}

// UpdateInvoice edits an invoice row and refreshes its document's totals
// when an amount changed.
func (r *Review) UpdateInvoice(ctx context.Context, id int64, in models.InvoiceUpdateInput, actor Actor) (models.InvoiceData, error) {
	const op = "review.UpdateInvoice"
	if msg := in.Validate(); msg != "" {
		return models.InvoiceData{}, apperr.Validation(op, "", msg)
	}
	inv, err := r.repo.UpdateInvoice(ctx, id, in, actor.UserID)
	if err != nil {
		return models.InvoiceData{}, apperr.Wrap(op, err)
	}
	if in.ChangesAmounts() && inv.DocumentID != nil {
		r.agg.Refresh(ctx, *inv.DocumentID)
	}
	return inv, nil
}

// ChangeInvoiceStatus moves a row through pending, reviewed and approved.
// Leaving pending requires an existing ledger.
func (r *Review) ChangeInvoiceStatus(ctx context.Context, id int64, in models.InvoiceStatusInput, actor Actor) (models.InvoiceData, error) {
	const op = "review.ChangeInvoiceStatus"
	if msg := in.Validate(); msg != "" {
		return models.InvoiceData{}, apperr.Validation(op, "ledger_id", msg)
	}
	if in.LedgerID != nil {
		ok, err := r.repo.LedgerExists(ctx, *in.LedgerID)
		if err != nil {
			return models.InvoiceData{}, apperr.Internal(op, err)
		}
		if !ok {
			return models.InvoiceData{}, apperr.Validation(op, "ledger_id", "ledger not found")
		}
	}
	inv, err := r.repo.UpdateInvoiceStatus(ctx, id, in.BillStatus, in.LedgerID, actor.UserID)
	if err != nil {
		return models.InvoiceData{}, apperr.Wrap(op, err)
	}
	r.log.Info("invoice status changed", "invoice_id", id, "status", in.BillStatus, "by", actor.UserID)
	return inv, nil
}

// DeleteInvoice removes the row and its stored file, then refreshes the
// parent document's totals.
func (r *Review) DeleteInvoice(ctx context.Context, id int64) error {
	const op = "review.DeleteInvoice"
	inv, err := r.repo.GetInvoice(ctx, id)
	if err != nil {
		return apperr.Wrap(op, err)
	}
	if err := r.repo.DeleteInvoice(ctx, id); err != nil {
		return apperr.Wrap(op, err)
	}

	if inv.ImageURL != nil {
		if name := storage.NameFromPath(*inv.ImageURL); name != "" {
			if err := r.files.Delete(ctx, name); err != nil {
				r.log.Warn("failed to delete stored file", "invoice_id", id, "file", name, "error", err)
			}
		}
	}
	if inv.DocumentID != nil {
		r.agg.Refresh(ctx, *inv.DocumentID)
	}
	r.log.Info("invoice deleted", "invoice_id", id, "document_id", deref(inv.DocumentID))
	return nil
}
