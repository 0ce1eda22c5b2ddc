package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/ingest"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/satheeshds/invoicedesk/storage"
	"github.com/shopspring/decimal"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// UploadDocument files one or more uploaded invoices
// @Summary      Upload invoice files
// @Description  Stores up to 5 files (field "image"), converts PDFs to images, extracts invoice fields
// @Description  for purchase and expense documents and files every row under a new or existing document.
// @Description  Files are processed in order; the report lists the outcome of each one.
// @Tags         documents
// @Accept       multipart/form-data
// @Produce      json
// @Param        documentType   formData  string  true   "sales, purchase, expense, legalDocuments or otherDocuments"
// @Param        documentId     formData  int     false  "Attach to this document"
// @Param        title          formData  string  false  "Title of the new document (required without documentId)"
// @Param        description    formData  string  false  "Description of the new document"
// @Param        customerId     formData  int     false  "Customer (defaults to the caller's)"
// @Param        paymentMode    formData  string  false  "cash, credit, bank or other"
// @Param        invoiceNumber  formData  string  false  "Sales only"
// @Param        TRNnumber      formData  string  false  "Sales only"
// @Param        companyName    formData  string  false  "Sales only"
// @Param        invoiceDate    formData  string  false  "Sales only"
// @Param        grossAmount    formData  string  false  "Sales only"
// @Param        VATtotal       formData  string  false  "Sales only"
// @Param        totalAmount    formData  string  false  "Sales only"
// @Param        image          formData  file    false  "Invoice image or PDF (repeatable)"
// @Success      201  {object}  Response{data=ingest.BatchReport}
// @Success      207  {object}  Response{data=ingest.BatchReport}
// @Failure      400  {object}  Response{error=string}
// @Failure      404  {object}  Response{error=string}
// @Failure      409  {object}  Response{error=string}
// @Failure      422  {object}  Response{error=string}
// @Failure      502  {object}  Response{error=string}
// @Router       /documents/upload [post]
// @Security     BearerAuth
func UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit(Limits))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, supplied, err := uploadRequest(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	req.Actor = actorFrom(r)

	var files []storage.Incoming
	for _, fh := range r.MultipartForm.File["image"] {
		files = append(files, incoming(fh))
	}

	report, err := Pipeline.IngestBatch(r.Context(), req, supplied, files)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	status := http.StatusCreated
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, report)
}

// bodyLimit bounds a whole upload request: every file at its maximum plus
// room for the form fields.
func bodyLimit(l storage.Limits) int64 {
	maxBytes, maxFiles := l.MaxBytes, int64(l.MaxFiles)
	if maxBytes <= 0 {
		maxBytes = storage.DefaultMaxBytes
	}
	if maxFiles <= 0 {
		maxFiles = storage.DefaultMaxFiles
	}
	return maxBytes*maxFiles + multipartMemory
}

func incoming(fh *multipart.FileHeader) storage.Incoming {
	return storage.Incoming{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open:        func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// uploadRequest reads the form fields of an upload.
func uploadRequest(r *http.Request) (ingest.LinkRequest, models.InvoiceFields, error) {
	const op = "handlers.UploadDocument"
	form := func(key string) string { return strings.TrimSpace(r.FormValue(key)) }

	req := ingest.LinkRequest{
		Kind:        models.DocumentKind(form("documentType")),
		Title:       form("title"),
		PaymentMode: models.PaymentMode(form("paymentMode")),
	}
	if v := form("description"); v != "" {
		req.Description = &v
	}
	var err error
	if req.DocumentID, err = optionalID(form("documentId")); err != nil {
		return req, models.InvoiceFields{}, apperr.Validation(op, "documentId", "documentId must be a positive integer")
	}
	if req.CustomerID, err = optionalID(form("customerId")); err != nil {
		return req, models.InvoiceFields{}, apperr.Validation(op, "customerId", "customerId must be a positive integer")
	}

	supplied := models.InvoiceFields{
		InvoiceNumber: form("invoiceNumber"),
		TRNNumber:     firstOf(form, "TRNnumber", "trnNumber"),
		CompanyName:   form("companyName"),
		InvoiceDate:   form("invoiceDate"),
	}
	for _, f := range []struct {
		keys []string
		dst  *decimal.Decimal
	}{
		{[]string{"grossAmount"}, &supplied.GrossAmount},
		{[]string{"VATtotal", "vatTotal"}, &supplied.VATTotal},
		{[]string{"totalAmount"}, &supplied.TotalAmount},
	} {
		v := firstOf(form, f.keys...)
		if v == "" {
			continue
		}
		key := f.keys[0]
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			return req, supplied, apperr.Validation(op, key, key+" must be a non-negative number")
		}
		fitted, ok := models.FitAmount(d)
		if !ok {
			return req, supplied, apperr.Validation(op, key, key+" is too large")
		}
		*f.dst = fitted
	}
	return req, supplied, nil
}

// firstOf returns the first non-empty form value among keys.
func firstOf(form func(string) string, keys ...string) string {
	for _, k := range keys {
		if v := form(k); v != "" {
			return v
		}
	}
	return ""
}

func optionalID(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.New("invalid id")
	}
	return &id, nil
}

// NextTitle suggests the next free document title
// @Summary      Suggest document title
// @Description  Returns the next unused title of the form DOC<ddmmyy>-<nnnn>. The title is a hint;
// @Description  creating a document with it may still conflict.
// @Tags         documents
// @Produce      json
// @Success      200  {object}  Response{data=map[string]string}
// @Failure      409  {object}  Response{error=string}
// @Router       /documents/next-title [get]
// @Security     BearerAuth
func NextTitle(w http.ResponseWriter, r *http.Request) {
	title, err := Titles.Next(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

// GetDocument retrieves a document with its invoices
// @Summary      Get document
// @Tags         documents
// @Produce      json
// @Param        id   path      int  true  "Document ID"
// @Success      200  {object}  Response{data=ingest.DocumentDetail}
// @Failure      404  {object}  Response{error=string}
// @Router       /documents/{id} [get]
// @Security     BearerAuth
func GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := Review.GetDocument(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ListDocumentInvoices lists the invoices of a document
// @Summary      List document invoices
// @Tags         documents
// @Produce      json
// @Param        id   path      int  true  "Document ID"
// @Success      200  {object}  Response{data=[]models.InvoiceData}
// @Failure      404  {object}  Response{error=string}
// @Router       /documents/{id}/invoices [get]
// @Security     BearerAuth
func ListDocumentInvoices(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	invoices, err := Review.ListDocumentInvoices(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// UpdateDocument edits document metadata
// @Summary      Update document
// @Description  Edit title, description, type or customer. A new title must be unique.
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        id        path      int                         true  "Document ID"
// @Param        document  body      models.DocumentUpdateInput  true  "Fields to change"
// @Success      200       {object}  Response{data=models.Document}
// @Failure      400       {object}  Response{error=string}
// @Failure      404       {object}  Response{error=string}
// @Failure      409       {object}  Response{error=string}
// @Router       /documents/{id} [patch]
// @Security     BearerAuth
func UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input models.DocumentUpdateInput
	if !decodeJSON(w, r, &input) {
		return
	}
	doc, err := Review.UpdateDocument(r.Context(), id, input, actorFrom(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ChangeDocumentStatus sets a document's payment status
// @Summary      Change document payment status
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        id      path      int                         true  "Document ID"
// @Param        status  body      models.DocumentStatusInput  true  "pending, partial or paid"
// @Success      200     {object}  Response{data=models.Document}
// @Failure      400     {object}  Response{error=string}
// @Failure      404     {object}  Response{error=string}
// @Router       /documents/{id}/status [patch]
// @Security     BearerAuth
func ChangeDocumentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input models.DocumentStatusInput
	if !decodeJSON(w, r, &input) {
		return
	}
	doc, err := Review.ChangeDocumentStatus(r.Context(), id, input, actorFrom(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument deletes an empty document
// @Summary      Delete document
// @Description  Only documents without invoices can be deleted.
// @Tags         documents
// @Param        id  path  int  true  "Document ID"
// @Success      204
// @Failure      404  {object}  Response{error=string}
// @Failure      409  {object}  Response{error=string}
// @Router       /documents/{id} [delete]
// @Security     BearerAuth
func DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := Review.DeleteDocument(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
