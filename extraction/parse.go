package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/shopspring/decimal"
)

// rawExtraction mirrors the field names requested in the prompt. Decoding is
// case-insensitive, so "trnNumber" or "vatTotal" also match.
type rawExtraction struct {
	InvoiceNumber json.RawMessage `json:"invoiceNumber"`
	TRNNumber     json.RawMessage `json:"TRNnumber"`
	TotalAmount   json.RawMessage `json:"totalAmount"`
	VATTotal      json.RawMessage `json:"VATtotal"`
	CompanyName   json.RawMessage `json:"companyName"`
	InvoiceDate   json.RawMessage `json:"invoiceDate"`
	GrossAmount   json.RawMessage `json:"grossAmount"`
}

// Parse decodes a model response into invoice fields. Only an undecodable
// response fails; each field is coerced independently and missing
// descriptive fields take their sentinel values.
func Parse(raw string) (models.InvoiceFields, error) {
	const op = "extraction.Parse"

	body := jsonObject(StripCodeFence(raw))
	if body == "" {
		return models.InvoiceFields{}, apperr.ExtractionParse(op, raw, errors.New("no JSON object in response"))
	}

	var r rawExtraction
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return models.InvoiceFields{}, apperr.ExtractionParse(op, raw, err)
	}

	return models.InvoiceFields{
		InvoiceNumber: rawString(r.InvoiceNumber),
		TRNNumber:     rawString(r.TRNNumber),
		CompanyName:   rawString(r.CompanyName),
		InvoiceDate:   rawString(r.InvoiceDate),
		GrossAmount:   rawAmount(r.GrossAmount),
		VATTotal:      rawAmount(r.VATTotal),
		TotalAmount:   rawAmount(r.TotalAmount),
	}.WithDefaults(), nil
}

// StripCodeFence removes a surrounding markdown code fence such as ```json ... ```.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string ("json", "JSON", ...) up to the first newline
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	} else {
		s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// jsonObject returns s if it already is an object, otherwise the span from
// the first '{' to the last '}' to tolerate chatter around the payload.
func jsonObject(s string) string {
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func rawString(m json.RawMessage) string {
	m = bytes.TrimSpace(m)
	if len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return strings.TrimSpace(s)
	}
	// numbers and booleans keep their literal text
	if m[0] != '{' && m[0] != '[' {
		return string(m)
	}
	return ""
}

func rawAmount(m json.RawMessage) decimal.Decimal {
	m = bytes.TrimSpace(m)
	if len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return decimal.Zero
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return CleanAmount(s)
	}
	if d, err := decimal.NewFromString(string(m)); err == nil {
		return fit(d.Abs())
	}
	return decimal.Zero
}

// fit rounds d to the stored scale; values too large to store are treated
// as unreadable and become zero.
func fit(d decimal.Decimal) decimal.Decimal {
	r, _ := models.FitAmount(d)
	return r
}

// CleanAmount coerces a noisy monetary string into a non-negative decimal.
// Digits and the first decimal point are kept; everything else, including
// later decimal points, is dropped. "$1,234.56" is 1234.56, "1234.56.78" is
// 1234.5678 and "abc" is 0. The result is rounded to four places, and a
// value too large for the amount columns (a phone or TRN number read as an
// amount) is 0. It never fails.
func CleanAmount(s string) decimal.Decimal {
	var b strings.Builder
	seenDot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSuffix(b.String(), ".")
	if strings.HasPrefix(cleaned, ".") {
		cleaned = "0" + cleaned
	}
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return fit(d)
}
