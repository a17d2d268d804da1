package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/money"
)

// ReceiptType records how a receipt was captured.
type ReceiptType string

const (
	ReceiptManual  ReceiptType = "manual"
	ReceiptScanned ReceiptType = "scanned"
)

// LineItem is a single line on a receipt.
// Items are immutable once added to a draft; edits replace the item.
type LineItem struct {
	// ID is the unique identifier for the item (UUID format).
	ID string

	// Name is the item label as entered or scanned (e.g., "Coffee").
	Name string

	// UnitPrice is the price of one unit. Always positive.
	UnitPrice decimal.Decimal

	// Quantity is the number of units. Always at least 1.
	Quantity int64
}

// Subtotal returns UnitPrice × Quantity.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// Charges are the amounts added on top of the item subtotal.
type Charges struct {
	Tax   decimal.Decimal
	Tip   decimal.Decimal
	CCFee decimal.Decimal
}

// Totals is the computed money summary of a receipt.
//
// Total is always Subtotal + Tax + Tip + CCFee. Totals values are produced by
// calculator.ComputeTotals and are never persisted; they are rebuilt from the
// items and charges whenever a receipt is loaded or edited.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Tip      decimal.Decimal
	CCFee    decimal.Decimal
	Total    decimal.Decimal
}

// Receipt is a saved receipt as handed to review and save flows.
type Receipt struct {
	// ID is the unique identifier for the receipt (UUID format).
	ID string

	// Merchant is the store name. Auto-generated from the items when empty.
	Merchant string

	// Currency is the currency the receipt amounts are expressed in.
	Currency money.Currency

	// Items are the receipt lines in entry order.
	Items []LineItem

	// Charges are tax, tip and card fee as entered.
	Charges Charges

	// Totals is derived from Items and Charges.
	Totals Totals

	// Date is when the purchase happened.
	Date time.Time

	// Type is manual or scanned.
	Type ReceiptType

	// CreatedAt is the Unix timestamp when the receipt was saved.
	CreatedAt int64
}
