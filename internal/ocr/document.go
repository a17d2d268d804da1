package ocr

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/draft"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
)

// dateLayout is the provider's document date format.
const dateLayout = "2006-01-02 15:04:05"

// Document is the subset of the OCR response this service uses.
type Document struct {
	ID           int64               `json:"id"`
	Vendor       Vendor              `json:"vendor"`
	Date         string              `json:"date"`
	CurrencyCode string              `json:"currency_code"`
	LineItems    []LineItem          `json:"line_items"`
	Subtotal     decimal.NullDecimal `json:"subtotal"`
	Tax          decimal.NullDecimal `json:"tax"`
	Tip          decimal.NullDecimal `json:"tip"`
	Total        decimal.NullDecimal `json:"total"`
}

// Vendor is the merchant block of a document.
type Vendor struct {
	Name string `json:"name"`
}

// LineItem is one extracted receipt line. Price is the unit price and may be
// missing, in which case Total is the line amount.
type LineItem struct {
	Description string              `json:"description"`
	Quantity    float64             `json:"quantity"`
	Price       decimal.NullDecimal `json:"price"`
	Total       decimal.NullDecimal `json:"total"`
}

// Draft converts the document into a receipt draft for review.
//
// Lines without a positive amount (discounts, voids, blank rows) are skipped.
// The document's own subtotal and total are not copied: the draft recomputes
// them from the items, tax and tip. fallback is used when the document has no
// currency or one outside currencies.
func (d *Document) Draft(currencies *money.Set, fallback money.Currency) *draft.Draft {
	currency := money.Normalize(d.CurrencyCode)
	if !currencies.Contains(currency) {
		currency = fallback
	}

	dr := draft.New(currency)
	_ = dr.SetMerchant(d.Vendor.Name)
	if date, err := time.Parse(dateLayout, d.Date); err == nil {
		_ = dr.SetDate(date)
	}

	for _, line := range d.LineItems {
		item, ok := line.toLineItem()
		if !ok {
			continue
		}
		_, _ = dr.AddLineItem(item)
	}

	_ = dr.SetChargeAmounts(models.Charges{
		Tax: valueOrZero(d.Tax),
		Tip: valueOrZero(d.Tip),
	})
	return dr
}

// ReportedTotal is the total printed on the receipt, if the service found one.
func (d *Document) ReportedTotal() (decimal.Decimal, bool) {
	return d.Total.Decimal, d.Total.Valid
}

func (l LineItem) toLineItem() (models.LineItem, bool) {
	quantity := int64(math.Round(l.Quantity))
	if quantity < 1 {
		quantity = 1
	}

	var unit decimal.Decimal
	switch {
	case l.Price.Valid && l.Price.Decimal.IsPositive():
		unit = l.Price.Decimal
	case l.Total.Valid && l.Total.Decimal.IsPositive():
		unit = l.Total.Decimal.Div(decimal.NewFromInt(quantity)).Round(4)
	default:
		return models.LineItem{}, false
	}

	name := strings.TrimSpace(l.Description)
	if name == "" {
		name = "Item"
	}
	return models.LineItem{Name: name, UnitPrice: unit, Quantity: quantity}, true
}

func valueOrZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}
