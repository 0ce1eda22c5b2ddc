package ingest

import (
	"context"
	"log/slog"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/satheeshds/invoicedesk/storage"
)

// Normalizer turns a stored upload into the image the extraction step reads.
type Normalizer interface {
	Normalize(ctx context.Context, f storage.StoredFile) (storage.StoredFile, error)
}

// Pipeline runs one upload through storage, normalization, field sourcing,
// duplicate detection and linking.
type Pipeline struct {
	uploader   *storage.Uploader
	normalizer Normalizer
	sources    Sources
	linker     *Linker
	dupes      *DuplicateDetector
	log        *slog.Logger
}

// NewPipeline wires a Pipeline.
func NewPipeline(repo Repository, uploader *storage.Uploader, normalizer Normalizer, sources Sources) *Pipeline {
	return &Pipeline{
		uploader:   uploader,
		normalizer: normalizer,
		sources:    sources,
		linker:     NewLinker(repo),
		dupes:      NewDuplicateDetector(repo),
		log:        slog.With("component", "pipeline"),
	}
}

// Ingest files one upload, or a file-less sales entry when file is nil.
// Nothing is persisted when it fails: the stored file is removed and no
// row is written.
func (p *Pipeline) Ingest(ctx context.Context, req LinkRequest, supplied models.InvoiceFields, file *storage.Incoming) (Result, error) {
	const op = "ingest.Ingest"

	kind, ok := models.ParseDocumentKind(string(req.Kind))
	if !ok {
		return Result{}, apperr.Validation(op, "documentType", "invalid document type")
	}
	req.Kind = kind
	src, err := p.sources.For(kind)
	if err != nil {
		return Result{}, err
	}
	if src.RequiresFile() && file == nil {
		return Result{}, apperr.Validation(op, "image", "a file is required for "+string(kind)+" documents")
	}

	target, err := p.linker.Prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}

	var stored *storage.StoredFile
	if file != nil {
		f, err := p.uploader.Save(ctx, *file)
		if err != nil {
			return Result{}, err
		}
		stored = &f
	}
	log := p.log.With("file", fileName(stored), "document_type", kind)

	success := false
	defer func() {
		if !success && stored != nil {
			if err := p.uploader.Delete(context.WithoutCancel(ctx), stored.Name); err != nil {
				log.Warn("failed to remove stored file after error", "error", err)
			}
		}
	}()

	if stored != nil {
		f, err := p.normalizer.Normalize(ctx, *stored)
		if err != nil {
			log.Error("file conversion failed", "error", err)
			return Result{}, err
		}
		*stored = f
	}

	fields, err := src.Fields(ctx, SourceInput{File: stored, Supplied: supplied})
	if err != nil {
		log.Error("field extraction failed", "error", err, "kind", apperr.KindOf(err))
		return Result{}, err
	}

	res, err := p.commit(ctx, target, fields, stored)
	if err != nil {
		return Result{}, err
	}
	success = true
	return res, nil
}

func (p *Pipeline) commit(ctx context.Context, target *Target, fields models.InvoiceFields, stored *storage.StoredFile) (Result, error) {
	inv := models.InvoiceData{
		InvoiceNumber: fields.InvoiceNumber,
		TRNNumber:     fields.TRNNumber,
		CompanyName:   fields.CompanyName,
		InvoiceDate:   fields.InvoiceDate,
		GrossAmount:   fields.GrossAmount,
		VATTotal:      fields.VATTotal,
		TotalAmount:   fields.TotalAmount,
		FileType:      models.FileNone,
		BillStatus:    models.StatusPending,
	}
	if stored != nil {
		path := stored.Path
		inv.ImageURL = &path
		inv.FileType = stored.Kind
	}
	if target.req.Kind.Monetary() {
		inv.DuplicateStatus = p.dupes.Check(ctx, fields)
	}
	return p.linker.Commit(ctx, target, inv)
}

// Prepare exposes the linker's fail-fast validation.
func (p *Pipeline) Prepare(ctx context.Context, req LinkRequest) (*Target, error) {
	return p.linker.Prepare(ctx, req)
}

// FileReport is the outcome of one file in a multi-file upload.
type FileReport struct {
	Index           int                 `json:"index"`
	Filename        string              `json:"filename"`
	OK              bool                `json:"ok"`
	DocumentID      int64               `json:"document_id,omitempty"`
	InvoiceID       int64               `json:"invoice_id,omitempty"`
	Duplicate       bool                `json:"duplicate"`
	AggregatesStale bool                `json:"aggregates_stale"`
	ErrorKind       apperr.Kind         `json:"error_kind,omitempty"`
	Error           string              `json:"error,omitempty"`
	Invoice         *models.InvoiceData `json:"invoice,omitempty"`
}

// BatchReport summarizes a multi-file upload. Files are independent: a
// failed file does not undo the files committed before it.
type BatchReport struct {
	DocumentID *int64           `json:"document_id"`
	Document   *models.Document `json:"document,omitempty"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Files      []FileReport     `json:"files"`
}

// IngestBatch processes files strictly in order. When no document is given
// the first successful file creates it and the remaining files attach to
// it. The returned error is non-nil only when nothing was committed.
func (p *Pipeline) IngestBatch(ctx context.Context, req LinkRequest, supplied models.InvoiceFields, files []storage.Incoming) (BatchReport, error) {
	if err := p.uploader.CheckCount(len(files)); err != nil {
		return BatchReport{}, err
	}
	if len(files) == 0 {
		res, err := p.Ingest(ctx, req, supplied, nil)
		if err != nil {
			return BatchReport{}, err
		}
		id := res.Document.ID
		return BatchReport{
			DocumentID: &id,
			Document:   &res.Document,
			Succeeded:  1,
			Files:      []FileReport{reportOf(0, "", res)},
		}, nil
	}

	var report BatchReport
	var firstErr error
	for i := range files {
		if err := ctx.Err(); err != nil {
			report.Files = append(report.Files, failedReport(i, files[i].Filename, err))
			report.Failed++
			continue
		}
		res, err := p.Ingest(ctx, req, supplied, &files[i])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			report.Files = append(report.Files, failedReport(i, files[i].Filename, err))
			report.Failed++
			continue
		}
		report.Files = append(report.Files, reportOf(i, files[i].Filename, res))
		report.Succeeded++
		doc := res.Document
		if !res.AggregatesStale {
			report.Document = &doc
		}
		if req.DocumentID == nil {
			id := res.Document.ID
			req.DocumentID = &id
		}
	}
	report.DocumentID = req.DocumentID
	if report.Failed > 0 {
		p.log.Warn("multi-file upload partially failed",
			"document_id", deref(report.DocumentID), "succeeded", report.Succeeded, "failed", report.Failed)
	}
	if report.Succeeded == 0 {
		return report, firstErr
	}
	return report, nil
}

func reportOf(i int, name string, res Result) FileReport {
	inv := res.Invoice
	r := FileReport{
		Index:           i,
		Filename:        name,
		OK:              true,
		InvoiceID:       inv.ID,
		Duplicate:       inv.DuplicateStatus,
		AggregatesStale: res.AggregatesStale,
		Invoice:         &inv,
	}
	if inv.DocumentID != nil {
		r.DocumentID = *inv.DocumentID
	}
	return r
}

func failedReport(i int, name string, err error) FileReport {
	return FileReport{
		Index:     i,
		Filename:  name,
		ErrorKind: apperr.KindOf(err),
		Error:     apperr.PublicMessage(err),
	}
}

func fileName(f *storage.StoredFile) string {
	if f == nil {
		return ""
	}
	return f.Name
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
