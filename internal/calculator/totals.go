package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
)

// ChargesFromText parses tax, tip and card fee as typed by the user.
// Anything that is not a non-negative number counts as zero.
func ChargesFromText(tax, tip, ccFee string) models.Charges {
	return models.Charges{
		Tax:   money.ParseNonNegativeDecimalOrZero(tax),
		Tip:   money.ParseNonNegativeDecimalOrZero(tip),
		CCFee: money.ParseNonNegativeDecimalOrZero(ccFee),
	}
}

// ComputeTotals derives a receipt's subtotal and total.
//
//	subtotal = Σ unit_price × quantity
//	total    = subtotal + tax + tip + cc_fee
//
// Negative charges are clamped to zero. The result is recomputed on every call
// and must not be cached across edits to items.
func ComputeTotals(items []models.LineItem, charges models.Charges) models.Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal())
	}

	tax := money.NonNegative(charges.Tax)
	tip := money.NonNegative(charges.Tip)
	ccFee := money.NonNegative(charges.CCFee)

	return models.Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Tip:      tip,
		CCFee:    ccFee,
		Total:    subtotal.Add(tax).Add(tip).Add(ccFee),
	}
}

// RoundTotals rounds each component to cents and sums the rounded parts into
// Total, so a displayed total always equals the displayed components.
func RoundTotals(t models.Totals) models.Totals {
	r := models.Totals{
		Subtotal: money.Round(t.Subtotal),
		Tax:      money.Round(t.Tax),
		Tip:      money.Round(t.Tip),
		CCFee:    money.Round(t.CCFee),
	}
	r.Total = r.Subtotal.Add(r.Tax).Add(r.Tip).Add(r.CCFee)
	return r
}
