package models

import "strings"

// DocumentKind tags a Document and the InvoiceData rows filed under it.
type DocumentKind string

const (
	KindSales    DocumentKind = "sales"
	KindPurchase DocumentKind = "purchase"
	KindExpense  DocumentKind = "expense"
	KindLegal    DocumentKind = "legalDocuments"
	KindOther    DocumentKind = "otherDocuments"
)

// DocumentKinds lists every accepted kind.
var DocumentKinds = []DocumentKind{KindSales, KindPurchase, KindExpense, KindLegal, KindOther}

// ParseDocumentKind accepts the wire values plus the short aliases "legal" and "other".
func ParseDocumentKind(s string) (DocumentKind, bool) {
	switch strings.TrimSpace(s) {
	case "sales":
		return KindSales, true
	case "purchase":
		return KindPurchase, true
	case "expense":
		return KindExpense, true
	case "legalDocuments", "legal":
		return KindLegal, true
	case "otherDocuments", "other":
		return KindOther, true
	}
	return "", false
}

// Monetary reports whether rows of this kind carry amounts.
// Legal and other documents are filed without any monetary fields.
func (k DocumentKind) Monetary() bool {
	return k != KindLegal && k != KindOther
}

// BillStatus is the review workflow state of an InvoiceData row.
type BillStatus string

const (
	StatusPending  BillStatus = "pending"
	StatusReviewed BillStatus = "reviewed"
	StatusApproved BillStatus = "approved"
)

func (s BillStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusApproved:
		return true
	}
	return false
}

// PaymentMode records how an invoice was settled.
type PaymentMode string

const (
	PaymentCash   PaymentMode = "cash"
	PaymentCredit PaymentMode = "credit"
	PaymentBank   PaymentMode = "bank"
	PaymentOther  PaymentMode = "other"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentCash, PaymentCredit, PaymentBank, PaymentOther:
		return true
	}
	return false
}

// PaymentStatus is the settlement state of a whole Document.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPartial, PaymentPaid:
		return true
	}
	return false
}

// FileKind is the detected kind of an uploaded file. A PDF keeps kind "pdf"
// even though the stored file is the JPEG rendering of its first page.
type FileKind string

const (
	FileNone  FileKind = ""
	FileImage FileKind = "image"
	FilePDF   FileKind = "pdf"
)

// Sentinels stored when a descriptive field is absent.
const (
	NotAvailable      = "N/A"
	UnknownCompany    = "Unknown"
	LedgerNotSelected = "not selected"
)
