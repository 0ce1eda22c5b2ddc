package ingest

import (
	"context"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
)

// Manual files a caller-supplied invoice row without any file, extraction
// or conversion. It shares the linker with uploads, so the document rules
// are identical.
func (p *Pipeline) Manual(ctx context.Context, in models.ManualInvoiceInput, actor Actor) (Result, error) {
	const op = "ingest.Manual"

	if msg := in.Validate(); msg != "" {
		return Result{}, apperr.Validation(op, "", msg)
	}
	kind := models.DocumentKind(in.DocumentType)

	target, err := p.linker.Prepare(ctx, LinkRequest{
		Kind:        kind,
		DocumentID:  in.DocumentID,
		Title:       in.Title,
		Description: in.Description,
		CustomerID:  in.CustomerID,
		PaymentMode: models.PaymentMode(in.PaymentMode),
		Actor:       actor,
	})
	if err != nil {
		return Result{}, err
	}

	fields := models.ZeroFields()
	if kind.Monetary() {
		fields = in.Fields().WithDefaults()
	}
	return p.commit(ctx, target, fields, nil)
}
