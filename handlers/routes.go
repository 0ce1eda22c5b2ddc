package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/satheeshds/invoicedesk/ingest"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/satheeshds/invoicedesk/storage"
	"github.com/satheeshds/invoicedesk/titles"
)

// LedgerStore is the ledger directory used by the ledger handlers.
type LedgerStore interface {
	ListLedgers(ctx context.Context, search string) ([]models.Ledger, error)
	CreateLedger(ctx context.Context, in models.LedgerInput, actor string) (models.Ledger, error)
	UpdateLedger(ctx context.Context, id int64, in models.LedgerInput, actor string) (models.Ledger, error)
	DeleteLedger(ctx context.Context, id int64) error
}

// Shared services used by all handlers, set once at startup.
var (
	Pipeline *ingest.Pipeline
	Review   *ingest.Review
	Titles   *titles.Allocator
	Ledgers  LedgerStore
	Limits   = storage.Limits{MaxBytes: storage.DefaultMaxBytes, MaxFiles: storage.DefaultMaxFiles}
)

// Routes mounts the API on r. Every route requires a token signed with
// jwtSecret and the listed permission.
func Routes(r chi.Router, jwtSecret string) {
	r.Use(JWTAuth(jwtSecret))

	can := RequirePermission

	// Documents
	r.With(can("documents", "create")).Post("/documents/upload", UploadDocument)
	r.With(can("documents", "create")).Get("/documents/next-title", NextTitle)
	r.With(can("documents", "view")).Get("/documents/{id}", GetDocument)
	r.With(can("documents", "view")).Get("/documents/{id}/invoices", ListDocumentInvoices)
	r.With(can("documents", "edit")).Patch("/documents/{id}", UpdateDocument)
	r.With(can("documentStatus", "edit")).Patch("/documents/{id}/status", ChangeDocumentStatus)
	r.With(can("documents", "delete")).Delete("/documents/{id}", DeleteDocument)

	// Invoices
	r.With(can("documents", "create")).Post("/invoices/manual", CreateManualInvoice)
	r.With(can("documents", "view")).Get("/invoices/{id}", GetInvoice)
	r.With(can("documents", "edit")).Patch("/invoices/{id}", UpdateInvoice)
	r.With(can("documentStatus", "edit")).Patch("/invoices/{id}/status", ChangeInvoiceStatus)
	r.With(can("documents", "delete")).Delete("/invoices/{id}", DeleteInvoice)

	// Ledgers
	r.With(can("ledger", "view")).Get("/ledgers", ListLedgers)
	r.With(can("ledger", "create")).Post("/ledgers", CreateLedger)
	r.With(can("ledger", "edit")).Patch("/ledgers/{id}", UpdateLedger)
	r.With(can("ledger", "delete")).Delete("/ledgers/{id}", DeleteLedger)
}

// Health reports that the process is serving.
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  Response{data=map[string]string}
// @Router       /healthz [get]
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
