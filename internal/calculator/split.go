package calculator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
)

// defaultMaxConcurrent bounds the number of conversions in flight per split.
const defaultMaxConcurrent = 8

// Converter converts an amount between two currencies.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to money.Currency) (decimal.Decimal, error)
}

// SplitRequest is the input to Splitter.Split.
type SplitRequest struct {
	TotalAmount  decimal.Decimal
	Currency     money.Currency
	Participants []models.Participant

	// FeePercentage is the payer's card fee in percent. Zero means no fee.
	FeePercentage decimal.Decimal
}

// Splitter divides a bill evenly and converts each share into the
// participant's preferred currency.
type Splitter struct {
	conv          Converter
	currencies    *money.Set
	maxConcurrent int
}

// NewSplitter creates a Splitter. currencies is the set of codes accepted for
// both the bill and the participants.
func NewSplitter(conv Converter, currencies *money.Set) *Splitter {
	return &Splitter{
		conv:          conv,
		currencies:    currencies,
		maxConcurrent: defaultMaxConcurrent,
	}
}

// Split computes each participant's share of req.TotalAmount.
//
// Algorithm:
//   - adjusted_total = total × (1 + fee/100)
//   - per_person     = adjusted_total / len(participants)
//   - each share     = round(convert(per_person, currency, preferred), 2)
//
// Conversions run concurrently. The split is all-or-nothing: if any
// conversion fails, every result is discarded and the first error is
// returned. Shares are rounded independently and the remainder is not
// redistributed, so their sum may differ from the rounded adjusted total by a
// few cents.
func (s *Splitter) Split(ctx context.Context, req SplitRequest) (*models.SplitOutcome, error) {
	if len(req.Participants) == 0 {
		return nil, fmt.Errorf("%w: must have at least one participant", models.ErrInvalidSplit)
	}
	if !req.TotalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: total amount must be greater than zero", models.ErrInvalidSplit)
	}
	if err := s.validateCurrencies(req); err != nil {
		return nil, err
	}

	adjustedTotal, err := ApplyFee(req.TotalAmount, req.FeePercentage)
	if err != nil {
		return nil, err
	}
	perPerson := adjustedTotal.Div(decimal.NewFromInt(int64(len(req.Participants))))

	splits := make([]models.SplitResult, len(req.Participants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for i, p := range req.Participants {
		g.Go(func() error {
			converted, err := s.conv.Convert(gctx, perPerson, req.Currency, p.PreferredCurrency)
			if err != nil {
				return fmt.Errorf("failed to convert share for participant %s: %w", p.ID, err)
			}
			splits[i] = models.SplitResult{
				ParticipantID: p.ID,
				DisplayName:   p.DisplayName,
				AmountOwed:    money.Round(converted),
				Currency:      p.PreferredCurrency,
			}
			slog.Debug("Participant share",
				"participant_id", p.ID,
				"amount_owed", splits[i].AmountOwed.StringFixed(money.Cents),
				"currency", p.PreferredCurrency,
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.SplitOutcome{
		OriginalAmount:    req.TotalAmount,
		SourceCurrency:    req.Currency,
		CardFeePercentage: req.FeePercentage,
		TotalWithFee:      money.Round(adjustedTotal),
		Splits:            splits,
	}, nil
}

// validateCurrencies rejects unsupported codes before any conversion runs.
func (s *Splitter) validateCurrencies(req SplitRequest) error {
	if !s.currencies.Contains(req.Currency) {
		return models.NewValidationError("currency", "unsupported currency %q", req.Currency)
	}
	for _, p := range req.Participants {
		if !s.currencies.Contains(p.PreferredCurrency) {
			return models.NewValidationError("participants",
				"unsupported currency %q for participant %s", p.PreferredCurrency, p.ID)
		}
	}
	return nil
}
