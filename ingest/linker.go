package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
)

// LinkRequest says where a new invoice row should be filed.
type LinkRequest struct {
	Kind        models.DocumentKind
	DocumentID  *int64  // attach to this document when set
	Title       string  // required when DocumentID is nil
	Description *string // used on create only
	CustomerID  *int64  // explicit customer, otherwise resolved
	PaymentMode models.PaymentMode
	Actor       Actor
}

// Target is a validated LinkRequest. Preparing a target performs no writes.
type Target struct {
	req        LinkRequest
	document   *models.Document // nil when a new document will be created
	customerID int64
}

// CustomerID is the customer the new row will belong to.
func (t *Target) CustomerID() int64 { return t.customerID }

// Creates reports whether committing will create a new document.
func (t *Target) Creates() bool { return t.document == nil }

// Result is a successfully linked row.
type Result struct {
	Document models.Document    `json:"document"`
	Invoice  models.InvoiceData `json:"invoice"`
	Created  bool               `json:"created"`
	// AggregatesStale is set when the row was saved but the document totals
	// could not be refreshed. The document is queued for reconciliation.
	AggregatesStale bool `json:"aggregates_stale"`
}

// Linker files invoice rows under documents. Every entry path goes through
// it, so documents are created and aggregated the same way regardless of
// where the fields came from.
type Linker struct {
	repo Repository
	agg  *Aggregator
	log  *slog.Logger
}

// NewLinker returns a Linker over repo.
func NewLinker(repo Repository) *Linker {
	return &Linker{
		repo: repo,
		agg:  NewAggregator(repo),
		log:  slog.With("component", "linker"),
	}
}

// Prepare validates req and loads what Commit needs. Validation, not_found
// and conflict failures happen here, before any file is stored or any row
// is written.
func (l *Linker) Prepare(ctx context.Context, req LinkRequest) (*Target, error) {
	const op = "ingest.Prepare"

	kind, ok := models.ParseDocumentKind(string(req.Kind))
	if !ok {
		return nil, apperr.Validation(op, "documentType", "invalid document type")
	}
	req.Kind = kind
	if req.PaymentMode == "" {
		req.PaymentMode = models.PaymentOther
	}
	if !req.PaymentMode.Valid() {
		return nil, apperr.Validation(op, "paymentMode", "invalid payment mode")
	}

	t := &Target{req: req}

	if req.DocumentID != nil {
		doc, err := l.repo.GetDocument(ctx, *req.DocumentID)
		if err != nil {
			return nil, apperr.Wrap(op, err)
		}
		t.document = &doc
	} else {
		t.req.Title = strings.TrimSpace(req.Title)
		if t.req.Title == "" {
			return nil, apperr.Validation(op, "title", "title is required")
		}
		taken, err := l.repo.TitleExists(ctx, t.req.Title)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		if taken {
			return nil, apperr.Conflict(op, "title", "document title already exists")
		}
	}

	switch {
	case req.CustomerID != nil:
		t.customerID = *req.CustomerID
	case t.document != nil:
		t.customerID = t.document.CustomerID
	default:
		if req.Actor.UserID == "" {
			return nil, apperr.Validation(op, "customerId", "customer context is required")
		}
		id, err := l.repo.CustomerIDForUser(ctx, req.Actor.UserID)
		if err != nil {
			return nil, apperr.Wrap(op, err)
		}
		t.customerID = id
	}
	return t, nil
}

// Commit persists inv under the prepared target.
//
// On attach the row is inserted first and the document aggregates are then
// recomputed from all attached rows. If the recompute fails the row stays
// saved, the document is marked stale for the reconciler and the result
// reports AggregatesStale.
//
// On create the document, seeded with the row's amounts, and the row are
// written in one transaction.
func (l *Linker) Commit(ctx context.Context, t *Target, inv models.InvoiceData) (Result, error) {
	const op = "ingest.Commit"

	inv.BillType = t.req.Kind
	inv.CustomerID = t.customerID
	inv.PaymentMode = t.req.PaymentMode
	if inv.BillStatus == "" {
		inv.BillStatus = models.StatusPending
	}
	inv.StatusUpdatedBy = t.req.Actor.UserID
	inv.UpdatedBy = t.req.Actor.UserID

	if t.document == nil {
		doc := models.Document{
			DocumentNumber:        t.req.Title,
			Title:                 t.req.Title,
			Description:           t.req.Description,
			DocumentType:          t.req.Kind,
			CustomerID:            t.customerID,
			PaymentStatus:         models.PaymentPending,
			UploadedBy:            t.req.Actor.UserID,
			UpdatedBy:             t.req.Actor.UserID,
			GrossAmount:           inv.GrossAmount,
			TotalAmount:           inv.TotalAmount,
			TotalVAT:              inv.VATTotal,
			NumberOfUploadedFiles: 1,
		}
		if err := l.repo.CreateDocumentWithInvoice(ctx, &doc, &inv); err != nil {
			return Result{}, apperr.Wrap(op, err)
		}
		docID := doc.ID
		inv.DocumentID = &docID
		l.log.Info("document created", "document_id", doc.ID, "invoice_id", inv.ID, "title", doc.Title)
		return Result{Document: doc, Invoice: inv, Created: true}, nil
	}

	docID := t.document.ID
	inv.DocumentID = &docID
	if err := l.repo.InsertInvoice(ctx, &inv); err != nil {
		return Result{}, apperr.Wrap(op, err)
	}

	doc, stale := l.agg.Refresh(ctx, docID)
	if stale {
		doc = *t.document
	}
	l.log.Info("invoice attached", "document_id", docID, "invoice_id", inv.ID, "aggregates_stale", stale)
	return Result{Document: doc, Invoice: inv, AggregatesStale: stale}, nil
}

// Aggregator refreshes document totals and queues failures for repair.
type Aggregator struct {
	docs Documents
	log  *slog.Logger
}

// NewAggregator returns an Aggregator over docs.
func NewAggregator(docs Documents) *Aggregator {
	return &Aggregator{docs: docs, log: slog.With("component", "aggregates")}
}

// Refresh recomputes the aggregates of document id. When that fails the
// document is marked stale and stale is true; the caller's write has
// already succeeded and must not be reported as failed.
func (a *Aggregator) Refresh(ctx context.Context, id int64) (doc models.Document, stale bool) {
	doc, err := a.docs.RecomputeAggregates(ctx, id)
	if err == nil {
		return doc, false
	}
	a.log.Error("document aggregates out of date", "document_id", id, "reconcile", true, "error", err)
	if err := a.docs.MarkStale(ctx, id, err.Error()); err != nil {
		a.log.Error("failed to queue document for reconciliation", "document_id", id, "reconcile", true, "error", err)
	}
	return models.Document{}, true
}
