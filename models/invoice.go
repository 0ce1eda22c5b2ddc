package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceData is one extracted or manually entered invoice/receipt row.
type InvoiceData struct {
	ID              int64           `json:"id"`
	DocumentID      *int64          `json:"document_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	TRNNumber       string          `json:"trn_number"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	VATTotal        decimal.Decimal `json:"vat_total"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CompanyName     string          `json:"company_name"`
	InvoiceDate     string          `json:"invoice_date"`
	ImageURL        *string         `json:"image_url"`
	FileType        FileKind        `json:"file_type"`
	BillType        DocumentKind    `json:"bill_type"`
	BillStatus      BillStatus      `json:"bill_status"`
	LedgerID        *int64          `json:"ledger_id"`
	PaymentMode     PaymentMode     `json:"payment_mode"`
	DuplicateStatus bool            `json:"duplicate_status"`
	StatusUpdatedBy string          `json:"status_updated_by"`
	UpdatedBy       string          `json:"updated_by"`
	CustomerID      int64           `json:"customer_id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	// Computed fields
	LedgerName string `json:"ledger"`
}

// InvoiceFields are the descriptive and monetary fields of an invoice,
// independent of whether they came from extraction, a form, or manual entry.
type InvoiceFields struct {
	InvoiceNumber string          `json:"invoice_number"`
	TRNNumber     string          `json:"trn_number"`
	CompanyName   string          `json:"company_name"`
	InvoiceDate   string          `json:"invoice_date"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	VATTotal      decimal.Decimal `json:"vat_total"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// WithDefaults fills absent descriptive fields with their sentinels.
func (f InvoiceFields) WithDefaults() InvoiceFields {
	f.InvoiceNumber = orDefault(f.InvoiceNumber, NotAvailable)
	f.TRNNumber = orDefault(f.TRNNumber, NotAvailable)
	f.CompanyName = orDefault(f.CompanyName, UnknownCompany)
	f.InvoiceDate = orDefault(f.InvoiceDate, NotAvailable)
	return f
}

// ZeroFields returns the field set used for kinds that carry no amounts.
func ZeroFields() InvoiceFields {
	return InvoiceFields{}.WithDefaults()
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

const amountRangeMessage = "amounts must be non-negative and below 100000000000000"

// ManualInvoiceInput is used for the non-file entry path.
type ManualInvoiceInput struct {
	DocumentID    *int64          `json:"document_id"`
	CustomerID    *int64          `json:"customer_id"`
	DocumentType  string          `json:"document_type"`
	Title         string          `json:"title"`
	Description   *string         `json:"description"`
	InvoiceNumber string          `json:"invoice_number"`
	TRNNumber     string          `json:"trn_number"`
	CompanyName   string          `json:"company_name"`
	InvoiceDate   string          `json:"invoice_date"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	VATTotal      decimal.Decimal `json:"vat_total"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMode   string          `json:"payment_mode"`
}

func (m *ManualInvoiceInput) Validate() string {
	if m.DocumentType == "" {
		m.DocumentType = string(KindPurchase)
	}
	kind, ok := ParseDocumentKind(m.DocumentType)
	if !ok {
		return "document_type must be one of: sales, purchase, expense, legalDocuments, otherDocuments"
	}
	m.DocumentType = string(kind)
	for _, amt := range []*decimal.Decimal{&m.GrossAmount, &m.VATTotal, &m.TotalAmount} {
		if !validAmount(amt) {
			return amountRangeMessage
		}
	}
	if m.PaymentMode == "" {
		m.PaymentMode = string(PaymentOther)
	}
	if !PaymentMode(m.PaymentMode).Valid() {
		return "payment_mode must be one of: cash, credit, bank, other"
	}
	if m.DocumentID != nil && *m.DocumentID <= 0 {
		return "document_id must be positive"
	}
	return ""
}

// Fields returns the caller-supplied invoice fields.
func (m *ManualInvoiceInput) Fields() InvoiceFields {
	return InvoiceFields{
		InvoiceNumber: m.InvoiceNumber,
		TRNNumber:     m.TRNNumber,
		CompanyName:   m.CompanyName,
		InvoiceDate:   m.InvoiceDate,
		GrossAmount:   m.GrossAmount,
		VATTotal:      m.VATTotal,
		TotalAmount:   m.TotalAmount,
	}
}

// InvoiceUpdateInput is used for editing an invoice row. Nil fields are left unchanged.
type InvoiceUpdateInput struct {
	InvoiceNumber *string          `json:"invoice_number"`
	TRNNumber     *string          `json:"trn_number"`
	CompanyName   *string          `json:"company_name"`
	InvoiceDate   *string          `json:"invoice_date"`
	GrossAmount   *decimal.Decimal `json:"gross_amount"`
	VATTotal      *decimal.Decimal `json:"vat_total"`
	TotalAmount   *decimal.Decimal `json:"total_amount"`
	PaymentMode   *string          `json:"payment_mode"`
}

func (i *InvoiceUpdateInput) Validate() string {
	for _, amt := range []*decimal.Decimal{i.GrossAmount, i.VATTotal, i.TotalAmount} {
		if amt != nil && !validAmount(amt) {
			return amountRangeMessage
		}
	}
	if i.PaymentMode != nil && !PaymentMode(*i.PaymentMode).Valid() {
		return "payment_mode must be one of: cash, credit, bank, other"
	}
	return ""
}

// ChangesAmounts reports whether the update touches a monetary field.
func (i *InvoiceUpdateInput) ChangesAmounts() bool {
	return i.GrossAmount != nil || i.VATTotal != nil || i.TotalAmount != nil
}

// InvoiceStatusInput moves an invoice through the review workflow.
type InvoiceStatusInput struct {
	BillStatus BillStatus `json:"bill_status"`
	LedgerID   *int64     `json:"ledger_id"`
}

func (s *InvoiceStatusInput) Validate() string {
	if !s.BillStatus.Valid() {
		return "bill_status must be one of: pending, reviewed, approved"
	}
	if s.BillStatus != StatusPending && (s.LedgerID == nil || *s.LedgerID <= 0) {
		return "ledger not selected"
	}
	return ""
}
