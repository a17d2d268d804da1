// Package draft implements the in-progress receipt a user builds before saving.
//
// A draft moves through Empty → ItemsAdded → TotalsEntered → Saved. Totals are
// never stored on the draft; every read recomputes them from the current items
// and charges.
package draft

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/calculator"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
)

// State is the lifecycle position of a draft.
type State int

const (
	Empty State = iota
	ItemsAdded
	TotalsEntered
	Saved
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case ItemsAdded:
		return "items_added"
	case TotalsEntered:
		return "totals_entered"
	case Saved:
		return "saved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrDraftSaved is returned when a saved draft is modified.
	ErrDraftSaved = errors.New("receipt draft already saved")

	// ErrItemNotFound is returned by RemoveItem for an unknown item ID.
	ErrItemNotFound = errors.New("item not found")
)

// Draft is a receipt being entered. It is not safe for concurrent use.
type Draft struct {
	state    State
	items    []models.LineItem
	charges  models.Charges
	merchant string
	currency money.Currency
	date     time.Time
	now      func() time.Time
}

// New returns an Empty draft in currency.
func New(currency money.Currency) *Draft {
	return &Draft{currency: currency, now: time.Now}
}

// State returns the current lifecycle state.
func (d *Draft) State() State { return d.state }

// Items returns a copy of the draft's items in entry order.
func (d *Draft) Items() []models.LineItem {
	out := make([]models.LineItem, len(d.items))
	copy(out, d.items)
	return out
}

// AddItem parses and appends an item as typed by the user.
//
// Name and price are required and the price must be greater than zero.
// Only the leading integer of the quantity is read. A blank, unparsable or
// zero quantity counts as 1; a negative one is rejected.
func (d *Draft) AddItem(name, priceText, quantityText string) (models.LineItem, error) {
	if d.state == Saved {
		return models.LineItem{}, ErrDraftSaved
	}
	name = strings.TrimSpace(name)
	priceText = strings.TrimSpace(priceText)
	if name == "" || priceText == "" {
		return models.LineItem{}, models.NewValidationError("item", "please enter item name and price")
	}
	price, err := decimal.NewFromString(strings.TrimPrefix(priceText, "$"))
	if err != nil || !price.IsPositive() {
		return models.LineItem{}, models.NewValidationError("price", "please enter a valid price")
	}
	quantity, err := parseQuantity(quantityText)
	if err != nil {
		return models.LineItem{}, err
	}
	return d.add(models.LineItem{Name: name, UnitPrice: price, Quantity: quantity})
}

// AddLineItem appends an already structured item, e.g. from a scan.
func (d *Draft) AddLineItem(item models.LineItem) (models.LineItem, error) {
	if d.state == Saved {
		return models.LineItem{}, ErrDraftSaved
	}
	if strings.TrimSpace(item.Name) == "" {
		return models.LineItem{}, models.NewValidationError("item", "please enter item name and price")
	}
	if !item.UnitPrice.IsPositive() {
		return models.LineItem{}, models.NewValidationError("price", "please enter a valid price")
	}
	if item.Quantity < 1 {
		return models.LineItem{}, models.NewValidationError("quantity", "quantity must be at least 1")
	}
	item.Name = strings.TrimSpace(item.Name)
	return d.add(item)
}

func (d *Draft) add(item models.LineItem) (models.LineItem, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	d.items = append(d.items, item)
	if d.state == Empty {
		d.state = ItemsAdded
	}
	return item, nil
}

// RemoveItem drops the item with the given ID.
// Removing the last item returns the draft to Empty.
func (d *Draft) RemoveItem(id string) error {
	if d.state == Saved {
		return ErrDraftSaved
	}
	for i, item := range d.items {
		if item.ID == id {
			d.items = append(d.items[:i], d.items[i+1:]...)
			if len(d.items) == 0 {
				d.state = Empty
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrItemNotFound, id)
}

// SetCharges records tax, tip and card fee from user-entered text.
// Values that do not parse as non-negative numbers count as zero.
func (d *Draft) SetCharges(tax, tip, ccFee string) error {
	return d.SetChargeAmounts(calculator.ChargesFromText(tax, tip, ccFee))
}

// SetChargeAmounts records already parsed charges.
func (d *Draft) SetChargeAmounts(charges models.Charges) error {
	if d.state == Saved {
		return ErrDraftSaved
	}
	d.charges = charges
	if d.state == ItemsAdded {
		d.state = TotalsEntered
	}
	return nil
}

// SetMerchant records the merchant name.
func (d *Draft) SetMerchant(merchant string) error {
	if d.state == Saved {
		return ErrDraftSaved
	}
	d.merchant = strings.TrimSpace(merchant)
	return nil
}

// SetCurrency changes the currency the receipt is expressed in.
func (d *Draft) SetCurrency(currency money.Currency) error {
	if d.state == Saved {
		return ErrDraftSaved
	}
	d.currency = currency
	return nil
}

// SetDate records the purchase date. Zero means "when saved".
func (d *Draft) SetDate(date time.Time) error {
	if d.state == Saved {
		return ErrDraftSaved
	}
	d.date = date
	return nil
}

// Totals recomputes subtotal and total from the current items and charges.
func (d *Draft) Totals() models.Totals {
	return calculator.ComputeTotals(d.items, d.charges)
}

// Save finalizes the draft into a receipt. A draft without items cannot be
// saved. After Save the draft rejects further changes.
func (d *Draft) Save(receiptType models.ReceiptType) (*models.Receipt, error) {
	if d.state == Saved {
		return nil, ErrDraftSaved
	}
	if len(d.items) == 0 {
		return nil, models.NewValidationError("items", "please add at least one item")
	}
	receipt := d.Preview(receiptType)
	if receipt.Date.IsZero() {
		receipt.Date = d.now().UTC()
	}
	d.state = Saved
	return receipt, nil
}

// Preview returns the receipt as it currently stands, for review before
// saving. It does not validate and does not change the draft's state.
func (d *Draft) Preview(receiptType models.ReceiptType) *models.Receipt {
	totals := d.Totals()
	return &models.Receipt{
		Merchant: d.merchant,
		Currency: d.currency,
		Items:    d.Items(),
		Charges:  models.Charges{Tax: totals.Tax, Tip: totals.Tip, CCFee: totals.CCFee},
		Totals:   totals,
		Date:     d.date,
		Type:     receiptType,
	}
}

// parseQuantity mirrors the entry form: the leading integer is used, so
// "2.5" and "3 cups" read as 2 and 3. Blank, unparsable or zero is 1.
func parseQuantity(text string) (int64, error) {
	text = strings.TrimSpace(text)
	end := 0
	if end < len(text) && (text[end] == '+' || text[end] == '-') {
		end++
	}
	digits := end
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	if end == digits {
		return 1, nil
	}

	q, err := strconv.ParseInt(text[:end], 10, 64)
	if err != nil {
		return 0, models.NewValidationError("quantity", "quantity %q is too large", text)
	}
	if q == 0 {
		return 1, nil
	}
	if q < 0 {
		return 0, models.NewValidationError("quantity", "quantity must be at least 1")
	}
	return q, nil
}
