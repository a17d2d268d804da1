package service

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/calculator"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
)

type participantRequest struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	PreferredCurrency string `json:"preferredCurrency"`
}

type splitBillRequest struct {
	TotalAmount  float64              `json:"totalAmount"`
	Currency     string               `json:"currency"`
	Participants []participantRequest `json:"participants"`
	// Absent means no card fee.
	PayerCardFeePercentage *float64 `json:"payerCardFeePercentage"`
}

type splitEntry struct {
	UserID     string         `json:"userId"`
	Name       string         `json:"name"`
	AmountOwed float64        `json:"amountOwed"`
	Currency   money.Currency `json:"currency"`
}

type splitBillResponse struct {
	Success           bool         `json:"success"`
	OriginalAmount    float64      `json:"originalAmount"`
	TotalWithFee      float64      `json:"totalWithFee"`
	CardFeePercentage float64      `json:"cardFeePercentage"`
	Splits            []splitEntry `json:"splits"`
}

// handleSplitBill splits a bill evenly between participants and converts each
// share into that participant's preferred currency.
func (s *Server) handleSplitBill(w http.ResponseWriter, r *http.Request) {
	var req splitBillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to split bill")
		return
	}

	splitReq := calculator.SplitRequest{
		TotalAmount:  decimal.NewFromFloat(req.TotalAmount),
		Currency:     money.Normalize(req.Currency),
		Participants: make([]models.Participant, len(req.Participants)),
	}
	if req.PayerCardFeePercentage != nil {
		splitReq.FeePercentage = decimal.NewFromFloat(*req.PayerCardFeePercentage)
	}
	for i, p := range req.Participants {
		splitReq.Participants[i] = models.Participant{
			ID:                p.ID,
			DisplayName:       p.Name,
			PreferredCurrency: money.Normalize(p.PreferredCurrency),
		}
	}

	slog.Debug("Split requested",
		"total_amount", splitReq.TotalAmount.String(),
		"currency", splitReq.Currency,
		"participants", len(splitReq.Participants),
		"card_fee_percentage", splitReq.FeePercentage.String(),
	)

	outcome, err := s.splitter.Split(r.Context(), splitReq)
	if err != nil {
		s.metrics.IncrementSplits(splitOutcomeLabel(err))
		writeError(w, r, err, "Failed to split bill")
		return
	}
	s.metrics.IncrementSplits("ok")

	resp := splitBillResponse{
		Success:           true,
		OriginalAmount:    outcome.OriginalAmount.InexactFloat64(),
		TotalWithFee:      outcome.TotalWithFee.InexactFloat64(),
		CardFeePercentage: outcome.CardFeePercentage.InexactFloat64(),
		Splits:            make([]splitEntry, len(outcome.Splits)),
	}
	for i, split := range outcome.Splits {
		resp.Splits[i] = splitEntry{
			UserID:     split.ParticipantID,
			Name:       split.DisplayName,
			AmountOwed: split.AmountOwed.InexactFloat64(),
			Currency:   split.Currency,
		}
	}

	slog.Info("Bill split",
		"currency", outcome.SourceCurrency,
		"total_with_fee", outcome.TotalWithFee.StringFixed(money.Cents),
		"participants", len(outcome.Splits),
	)
	writeJSON(w, http.StatusOK, resp)
}

func splitOutcomeLabel(err error) string {
	var vErr *models.ValidationError
	if errors.Is(err, models.ErrInvalidSplit) || errors.As(err, &vErr) {
		return "invalid"
	}
	return "failed"
}

type convertRequest struct {
	Amount float64 `json:"amount"`
	From   string  `json:"from"`
	To     string  `json:"to"`
}

type convertResponse struct {
	Success         bool           `json:"success"`
	Amount          float64        `json:"amount"`
	From            money.Currency `json:"from"`
	To              money.Currency `json:"to"`
	Rate            float64        `json:"rate"`
	ConvertedAmount float64        `json:"convertedAmount"`
}

// handleConvert converts a single amount at the cached or freshly fetched rate.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to convert currency")
		return
	}

	from, to := money.Normalize(req.From), money.Normalize(req.To)
	if !s.currencies.Contains(from) {
		writeError(w, r, models.NewValidationError("from", "unsupported currency %q", from), "")
		return
	}
	if !s.currencies.Contains(to) {
		writeError(w, r, models.NewValidationError("to", "unsupported currency %q", to), "")
		return
	}

	rate, err := s.rates.Rate(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err, "Failed to convert currency")
		return
	}
	amount := decimal.NewFromFloat(req.Amount)

	writeJSON(w, http.StatusOK, convertResponse{
		Success:         true,
		Amount:          req.Amount,
		From:            from,
		To:              to,
		Rate:            rate.InexactFloat64(),
		ConvertedAmount: money.Round(amount.Mul(rate)).InexactFloat64(),
	})
}
