package models

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/money"
)

// Participant is one person sharing a bill.
// The caller owns participants; the settlement code only reads them.
type Participant struct {
	ID                string
	DisplayName       string
	PreferredCurrency money.Currency
}

// SplitResult is one participant's share after fee and conversion.
type SplitResult struct {
	ParticipantID string
	DisplayName   string

	// AmountOwed is rounded to cents in Currency.
	AmountOwed decimal.Decimal
	Currency   money.Currency
}

// SplitOutcome is the full result of a split.
type SplitOutcome struct {
	OriginalAmount    decimal.Decimal
	SourceCurrency    money.Currency
	CardFeePercentage decimal.Decimal

	// TotalWithFee is the fee-adjusted total rounded to cents.
	TotalWithFee decimal.Decimal

	// Splits has one entry per participant, in input order.
	Splits []SplitResult
}
