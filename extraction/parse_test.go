package extraction

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$1,234.56", "1234.56"},
		{"1234.56.78", "1234.5678"},
		{"abc", "0"},
		{"", "0"},
		{"AED 500", "500"},
		{"1.234,50 €", "1.23450"},
		{".75", "0.75"},
		{"12.", "12"},
		{"-42.10", "42.1"},
		{"...", "0"},
		{"1 000 000", "1000000"},
		{"Tel: 0501234567890123", "0"},
		{"AED 1,234.56 (TRN 100234567800003)", "1234.561"},
		{"99999999999999.9999", "99999999999999.9999"},
		{"12.34567", "12.3457"},
	}
	for _, tt := range tests {
		got := CleanAmount(tt.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "CleanAmount(%q) = %s, want %s", tt.in, got, tt.want)
	}
}

func TestCleanAmount_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("never negative for any input", prop.ForAll(
		func(s string) bool {
			return !CleanAmount(s).IsNegative()
		},
		gen.AnyString(),
	))

	properties.Property("digit strings round-trip when they fit the columns", prop.ForAll(
		func(s string) bool {
			if s == "" {
				return CleanAmount(s).IsZero()
			}
			want := decimal.RequireFromString(s)
			if want.GreaterThanOrEqual(models.MaxAmount) {
				return CleanAmount(s).IsZero()
			}
			return CleanAmount(s).Equal(want)
		},
		gen.NumString(),
	))

	properties.Property("result always fits the amount columns", prop.ForAll(
		func(s string) bool {
			d := CleanAmount(s)
			return d.LessThan(models.MaxAmount) && d.Exponent() >= -models.AmountScale
		},
		gen.AnyString(),
	))

	properties.Property("currency noise is ignored", prop.ForAll(
		func(whole, frac string) bool {
			if whole == "" {
				whole = "0"
			}
			plain := whole + "." + frac
			noisy := "USD $" + whole + "," + "." + frac + " "
			return CleanAmount(noisy).Equal(CleanAmount(plain))
		},
		gen.NumString(),
		gen.NumString(),
	))

	properties.TestingRun(t)
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```JSON\n{\"a\":1}```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```json {\"a\":1} ```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripCodeFence(tt.in))
	}
}

func TestParse(t *testing.T) {
	raw := "```json\n" + `{
		"invoiceNumber": "INV-100",
		"TRNnumber": "100234567800003",
		"totalAmount": "AED 1,050.00",
		"VATtotal": "50.00",
		"companyName": "Acme Trading LLC",
		"invoiceDate": "12-01-2024",
		"grossAmount": 1000
	}` + "\n```"

	f, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "INV-100", f.InvoiceNumber)
	assert.Equal(t, "100234567800003", f.TRNNumber)
	assert.Equal(t, "Acme Trading LLC", f.CompanyName)
	assert.Equal(t, "12-01-2024", f.InvoiceDate)
	assert.True(t, f.TotalAmount.Equal(decimal.RequireFromString("1050")))
	assert.True(t, f.VATTotal.Equal(decimal.RequireFromString("50")))
	assert.True(t, f.GrossAmount.Equal(decimal.RequireFromString("1000")))
}

func TestParse_PartialFieldsTakeDefaults(t *testing.T) {
	f, err := Parse(`Here is the data: {"invoiceNumber": 4411, "totalAmount": "n/a", "companyName": null} hope it helps`)
	require.NoError(t, err)
	assert.Equal(t, "4411", f.InvoiceNumber)
	assert.Equal(t, models.NotAvailable, f.TRNNumber)
	assert.Equal(t, models.UnknownCompany, f.CompanyName)
	assert.Equal(t, models.NotAvailable, f.InvoiceDate)
	assert.True(t, f.TotalAmount.IsZero())
	assert.True(t, f.GrossAmount.IsZero())
}

func TestParse_AmountsOutsideColumnRangeBecomeZero(t *testing.T) {
	f, err := Parse(`{"invoiceNumber": "INV-9", "totalAmount": "Tel: 0501234567890123", "grossAmount": 123456789012345678, "VATtotal": 5.123456}`)
	require.NoError(t, err)
	assert.Equal(t, "INV-9", f.InvoiceNumber)
	assert.True(t, f.TotalAmount.IsZero(), "total = %s", f.TotalAmount)
	assert.True(t, f.GrossAmount.IsZero(), "gross = %s", f.GrossAmount)
	assert.Equal(t, "5.1235", f.VATTotal.String())
}

func TestParse_CaseInsensitiveKeys(t *testing.T) {
	f, err := Parse(`{"trnNumber": "TRN-1", "vatTotal": "5"}`)
	require.NoError(t, err)
	assert.Equal(t, "TRN-1", f.TRNNumber)
	assert.True(t, f.VATTotal.Equal(decimal.NewFromInt(5)))
}

func TestParse_Undecodable(t *testing.T) {
	for _, raw := range []string{"", "I could not read this invoice.", "```json\n{\"invoiceNumber\": \n```", "[1,2,3]"} {
		_, err := Parse(raw)
		require.Error(t, err, "raw: %q", raw)
		assert.True(t, apperr.Is(err, apperr.KindExtractionParse))
		assert.Equal(t, "could not parse extraction response", apperr.PublicMessage(err))
	}
}
