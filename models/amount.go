package models

import "github.com/shopspring/decimal"

// AmountScale is the number of decimal places stored for every amount.
const AmountScale = 4

// MaxAmount is the smallest magnitude the NUMERIC(18,4) amount columns
// cannot hold.
var MaxAmount = decimal.New(1, 18-AmountScale)

// FitAmount rounds d to the stored scale and reports whether the result
// fits the amount columns.
func FitAmount(d decimal.Decimal) (decimal.Decimal, bool) {
	r := d.Round(AmountScale)
	if r.Abs().GreaterThanOrEqual(MaxAmount) {
		return decimal.Zero, false
	}
	return r, true
}

// validAmount rounds *d in place and reports whether it is a storable,
// non-negative amount.
func validAmount(d *decimal.Decimal) bool {
	if d.IsNegative() {
		return false
	}
	r, ok := FitAmount(*d)
	if ok {
		*d = r
	}
	return ok
}
