// Package apperr defines the error kinds surfaced by the ingestion pipeline
// and the review operations. Every failure that leaves the core carries a
// Kind so transports can map it without inspecting message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-distinguishable class of an error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindConversion        Kind = "conversion"
	KindExtractionService Kind = "extraction_service"
	KindExtractionParse   Kind = "extraction_parse"
	KindInternal          Kind = "internal"
)

// Error is a classified failure.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op is the operation that failed (e.g. "ingest.Link", "pdfconv.Normalize").
	Op string

	// Field names the offending input field for validation and conflict errors.
	Field string

	// Message is safe to show to API clients.
	Message string

	// Detail carries diagnostics that must stay server side, such as a raw
	// model response.
	Detail string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports bad caller input. Nothing has been persisted.
func Validation(op, field, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Message: message}
}

// NotFound reports a missing referenced entity.
func NotFound(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

// Conflict reports a uniqueness or state conflict, e.g. a duplicate document title.
func Conflict(op, field, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Field: field, Message: message}
}

// Conversion reports a PDF rasterization or re-encoding failure.
func Conversion(op string, err error) *Error {
	return &Error{Kind: KindConversion, Op: op, Message: "PDF conversion failed", Err: err}
}

// ExtractionService reports that the extraction capability was unreachable,
// timed out, or answered with an error.
func ExtractionService(op string, err error) *Error {
	return &Error{Kind: KindExtractionService, Op: op, Message: "extraction service unavailable", Err: err}
}

// ExtractionParse reports a response that could not be decoded as an invoice
// record. raw is kept for diagnosis and is never returned to clients.
func ExtractionParse(op, raw string, err error) *Error {
	return &Error{Kind: KindExtractionParse, Op: op, Message: "could not parse extraction response", Detail: raw, Err: err}
}

// Internal wraps an unexpected failure, typically from the database.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// Wrap classifies err as internal unless it already carries a Kind.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Internal(op, err)
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns a message that may be shown to an API client.
// Internal errors never expose their text.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind == KindInternal {
		return "an unexpected error occurred"
	}
	if ae.Message == "" {
		return string(ae.Kind)
	}
	return ae.Message
}
