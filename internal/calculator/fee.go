package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
)

// ApplyFee adds the payer's card-fee surcharge to amount.
// feePercentage is a percentage (3 means 3%). A zero fee returns amount as is;
// callers map an absent fee to zero. Negative fees are rejected.
func ApplyFee(amount, feePercentage decimal.Decimal) (decimal.Decimal, error) {
	if feePercentage.IsNegative() {
		return decimal.Zero, models.NewValidationError("payerCardFeePercentage", "card fee cannot be negative")
	}
	if feePercentage.IsZero() {
		return amount, nil
	}
	return amount.Mul(decimal.NewFromInt(1).Add(money.Percent(feePercentage))), nil
}
