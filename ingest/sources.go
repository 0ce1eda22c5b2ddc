package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/satheeshds/invoicedesk/storage"
)

// Extractor reads invoice fields out of an image.
type Extractor interface {
	ExtractFields(ctx context.Context, image []byte, mimeType string) (models.InvoiceFields, error)
}

// SourceInput is what a FieldSource may draw on.
type SourceInput struct {
	File     *storage.StoredFile  // normalized upload, nil when none was sent
	Supplied models.InvoiceFields // caller-supplied form fields
}

// FieldSource produces the fields of a new invoice row for one document kind.
type FieldSource interface {
	RequiresFile() bool
	Fields(ctx context.Context, in SourceInput) (models.InvoiceFields, error)
}

// Sources maps every document kind to its field source.
type Sources map[models.DocumentKind]FieldSource

// NewSources returns the standard mapping: sales rows are self-reported,
// purchase and expense rows are read from the image, legal and other
// documents carry no amounts.
func NewSources(ex Extractor, files storage.FileStore) Sources {
	extracted := extractedFields{ex: ex, files: files}
	return Sources{
		models.KindSales:    formFields{},
		models.KindPurchase: extracted,
		models.KindExpense:  extracted,
		models.KindLegal:    zeroFields{},
		models.KindOther:    zeroFields{},
	}
}

// For returns the source registered for kind.
func (s Sources) For(kind models.DocumentKind) (FieldSource, error) {
	src, ok := s[kind]
	if !ok {
		return nil, apperr.Validation("ingest.Sources", "documentType", "unsupported document type")
	}
	return src, nil
}

type formFields struct{}

func (formFields) RequiresFile() bool { return false }

func (formFields) Fields(_ context.Context, in SourceInput) (models.InvoiceFields, error) {
	return in.Supplied.WithDefaults(), nil
}

type zeroFields struct{}

func (zeroFields) RequiresFile() bool { return true }

func (zeroFields) Fields(context.Context, SourceInput) (models.InvoiceFields, error) {
	return models.ZeroFields(), nil
}

type extractedFields struct {
	ex    Extractor
	files storage.FileStore
}

func (extractedFields) RequiresFile() bool { return true }

func (e extractedFields) Fields(ctx context.Context, in SourceInput) (models.InvoiceFields, error) {
	const op = "ingest.extractedFields"
	if in.File == nil {
		return models.InvoiceFields{}, apperr.Validation(op, "image", "a file is required")
	}
	rc, err := e.files.Open(ctx, in.File.Name)
	if err != nil {
		return models.InvoiceFields{}, apperr.Internal(op, fmt.Errorf("opening stored file: %w", err))
	}
	defer rc.Close()
	image, err := io.ReadAll(rc)
	if err != nil {
		return models.InvoiceFields{}, apperr.Internal(op, fmt.Errorf("reading stored file: %w", err))
	}
	return e.ex.ExtractFields(ctx, image, in.File.ContentType)
}
