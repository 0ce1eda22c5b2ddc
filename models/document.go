package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document is one filing unit (a sales submission, a purchase batch, ...)
// grouping one or more InvoiceData rows.
type Document struct {
	ID             int64         `json:"id"`
	DocumentNumber string        `json:"document_number"`
	Title          string        `json:"title"`
	Description    *string       `json:"description"`
	DocumentType   DocumentKind  `json:"document_type"`
	CustomerID     int64         `json:"customer_id"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	UploadedBy     string        `json:"uploaded_by"`
	UpdatedBy      string        `json:"updated_by"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	// Aggregates, always the sums over the attached rows
	GrossAmount           decimal.Decimal `json:"gross_amount"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	TotalVAT              decimal.Decimal `json:"total_vat"`
	NumberOfUploadedFiles int             `json:"number_of_uploaded_files"`
}

// DocumentUpdateInput is used for editing document metadata. Nil fields are left unchanged.
type DocumentUpdateInput struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	DocumentType *string `json:"document_type"`
	CustomerID   *int64  `json:"customer_id"`
}

func (d *DocumentUpdateInput) Validate() string {
	if d.Title != nil && *d.Title == "" {
		return "title must not be empty"
	}
	if d.DocumentType != nil {
		kind, ok := ParseDocumentKind(*d.DocumentType)
		if !ok {
			return "document_type must be one of: sales, purchase, expense, legalDocuments, otherDocuments"
		}
		s := string(kind)
		d.DocumentType = &s
	}
	if d.CustomerID != nil && *d.CustomerID <= 0 {
		return "customer_id must be positive"
	}
	return ""
}

// DocumentStatusInput changes a document's payment status.
type DocumentStatusInput struct {
	PaymentStatus PaymentStatus `json:"payment_status"`
}

func (d *DocumentStatusInput) Validate() string {
	if !d.PaymentStatus.Valid() {
		return "payment_status must be one of: pending, partial, paid"
	}
	return ""
}
