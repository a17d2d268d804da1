package service

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/receiptsplit/internal/calculator"
	"github.com/mmynk/receiptsplit/internal/draft"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
	"github.com/mmynk/receiptsplit/internal/ocr"
)

const dateLayout = "2006-01-02"

type itemRequest struct {
	Name     string    `json:"name"`
	Price    formValue `json:"price"`
	Quantity formValue `json:"quantity"`
}

type receiptRequest struct {
	Merchant string        `json:"merchant"`
	Currency string        `json:"currency"`
	Items    []itemRequest `json:"items"`
	Tax      formValue     `json:"tax"`
	Tip      formValue     `json:"tip"`
	CCFee    formValue     `json:"ccFee"`
	Date     string        `json:"date"`
	Type     string        `json:"type"`
}

type itemResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Subtotal float64 `json:"subtotal"`
}

type receiptResponse struct {
	ID        string             `json:"id,omitempty"`
	Items     []itemResponse     `json:"items"`
	Merchant  string             `json:"merchant"`
	Currency  money.Currency     `json:"currency"`
	Subtotal  float64            `json:"subtotal"`
	Tax       float64            `json:"tax"`
	Tip       float64            `json:"tip"`
	CCFee     float64            `json:"ccFee"`
	Total     float64            `json:"total"`
	Date      string             `json:"date,omitempty"`
	Type      models.ReceiptType `json:"type"`
	CreatedAt int64              `json:"createdAt,omitempty"`
}

type receiptEnvelope struct {
	Success bool            `json:"success"`
	Receipt receiptResponse `json:"receipt"`
}

type receiptListResponse struct {
	Success  bool              `json:"success"`
	Receipts []receiptResponse `json:"receipts"`
}

type totalsResponse struct {
	Success  bool    `json:"success"`
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Tip      float64 `json:"tip"`
	CCFee    float64 `json:"ccFee"`
	Total    float64 `json:"total"`
}

type scanResponse struct {
	Success bool            `json:"success"`
	Receipt receiptResponse `json:"receipt"`
	// ReportedTotal is the total printed on the receipt, when the scan found
	// one. It can differ from Receipt.Total if lines were misread.
	ReportedTotal *float64 `json:"reportedTotal,omitempty"`
}

type scanURLRequest struct {
	ImageURL string `json:"imageUrl"`
}

func toReceiptResponse(receipt *models.Receipt) receiptResponse {
	totals := calculator.RoundTotals(receipt.Totals)
	resp := receiptResponse{
		ID:        receipt.ID,
		Items:     make([]itemResponse, len(receipt.Items)),
		Merchant:  receipt.Merchant,
		Currency:  receipt.Currency,
		Subtotal:  totals.Subtotal.InexactFloat64(),
		Tax:       totals.Tax.InexactFloat64(),
		Tip:       totals.Tip.InexactFloat64(),
		CCFee:     totals.CCFee.InexactFloat64(),
		Total:     totals.Total.InexactFloat64(),
		Type:      receipt.Type,
		CreatedAt: receipt.CreatedAt,
	}
	if !receipt.Date.IsZero() {
		resp.Date = receipt.Date.Format(dateLayout)
	}
	for i, item := range receipt.Items {
		resp.Items[i] = itemResponse{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.UnitPrice.InexactFloat64(),
			Quantity: item.Quantity,
			Subtotal: money.Round(item.Subtotal()).InexactFloat64(),
		}
	}
	return resp
}

// withTotals recomputes totals for a receipt loaded from the store.
func withTotals(receipt *models.Receipt) *models.Receipt {
	receipt.Totals = calculator.ComputeTotals(receipt.Items, receipt.Charges)
	return receipt
}

// buildDraft replays a posted form into a draft, applying the same rules as
// manual entry. fallbackDate is used when the form has no date; a zero
// fallback leaves the date unset.
func (s *Server) buildDraft(req receiptRequest, fallbackDate time.Time) (*draft.Draft, error) {
	currency := money.USD
	if req.Currency != "" {
		currency = money.Normalize(req.Currency)
	}
	if !s.currencies.Contains(currency) {
		return nil, models.NewValidationError("currency", "unsupported currency %q", currency)
	}

	d := draft.New(currency)
	for _, item := range req.Items {
		if _, err := d.AddItem(item.Name, string(item.Price), string(item.Quantity)); err != nil {
			return nil, err
		}
	}
	if err := d.SetCharges(string(req.Tax), string(req.Tip), string(req.CCFee)); err != nil {
		return nil, err
	}
	if err := d.SetMerchant(req.Merchant); err != nil {
		return nil, err
	}
	date := fallbackDate
	if req.Date != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			return nil, err
		}
		date = parsed
	}
	if !date.IsZero() {
		if err := d.SetDate(date); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func parseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if t, err := time.Parse(dateLayout, text); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, models.NewValidationError("date", "date must be YYYY-MM-DD")
}

func parseReceiptType(text string) (models.ReceiptType, error) {
	switch models.ReceiptType(strings.ToLower(strings.TrimSpace(text))) {
	case "", models.ReceiptManual:
		return models.ReceiptManual, nil
	case models.ReceiptScanned:
		return models.ReceiptScanned, nil
	default:
		return "", models.NewValidationError("type", "type must be manual or scanned")
	}
}

// handleReceiptTotals computes totals for an unsaved receipt form.
func (s *Server) handleReceiptTotals(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to compute totals")
		return
	}
	d, err := s.buildDraft(req, time.Time{})
	if err != nil {
		writeError(w, r, err, "Failed to compute totals")
		return
	}

	totals := calculator.RoundTotals(d.Totals())
	writeJSON(w, http.StatusOK, totalsResponse{
		Success:  true,
		Subtotal: totals.Subtotal.InexactFloat64(),
		Tax:      totals.Tax.InexactFloat64(),
		Tip:      totals.Tip.InexactFloat64(),
		CCFee:    totals.CCFee.InexactFloat64(),
		Total:    totals.Total.InexactFloat64(),
	})
}

// handleCreateReceipt saves a reviewed receipt.
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to save receipt")
		return
	}
	receiptType, err := parseReceiptType(req.Type)
	if err != nil {
		writeError(w, r, err, "Failed to save receipt")
		return
	}
	d, err := s.buildDraft(req, time.Time{})
	if err != nil {
		writeError(w, r, err, "Failed to save receipt")
		return
	}
	receipt, err := d.Save(receiptType)
	if err != nil {
		writeError(w, r, err, "Failed to save receipt")
		return
	}

	if err := s.store.CreateReceipt(r.Context(), receipt); err != nil {
		writeError(w, r, err, "Failed to save receipt")
		return
	}
	s.metrics.IncrementReceiptsSaved(string(receipt.Type))
	slog.Info("Receipt saved",
		"receipt_id", receipt.ID,
		"type", receipt.Type,
		"items", len(receipt.Items),
		"total", receipt.Totals.Total.StringFixed(money.Cents),
	)

	writeJSON(w, http.StatusCreated, receiptEnvelope{Success: true, Receipt: toReceiptResponse(receipt)})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.store.GetReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "Failed to get receipt")
		return
	}
	writeJSON(w, http.StatusOK, receiptEnvelope{Success: true, Receipt: toReceiptResponse(withTotals(receipt))})
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.store.ListReceipts(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to list receipts")
		return
	}
	resp := receiptListResponse{Success: true, Receipts: make([]receiptResponse, len(receipts))}
	for i, receipt := range receipts {
		resp.Receipts[i] = toReceiptResponse(withTotals(receipt))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpdateReceipt replaces a saved receipt's items and charges. The
// receipt keeps its ID, type and creation time.
func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "Failed to update receipt")
		return
	}

	var req receiptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to update receipt")
		return
	}
	d, err := s.buildDraft(req, existing.Date)
	if err != nil {
		writeError(w, r, err, "Failed to update receipt")
		return
	}
	receipt, err := d.Save(existing.Type)
	if err != nil {
		writeError(w, r, err, "Failed to update receipt")
		return
	}
	receipt.ID = existing.ID
	receipt.CreatedAt = existing.CreatedAt

	if err := s.store.UpdateReceipt(r.Context(), receipt); err != nil {
		writeError(w, r, err, "Failed to update receipt")
		return
	}
	slog.Info("Receipt updated", "receipt_id", receipt.ID, "items", len(receipt.Items))
	writeJSON(w, http.StatusOK, receiptEnvelope{Success: true, Receipt: toReceiptResponse(receipt)})
}

func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteReceipt(r.Context(), id); err != nil {
		writeError(w, r, err, "Failed to delete receipt")
		return
	}
	slog.Info("Receipt deleted", "receipt_id", id)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleScanFile runs OCR on an uploaded image (multipart field "receipt")
// and returns the resulting draft for review. Nothing is saved.
func (s *Server) handleScanFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireScanner(w) {
		return
	}

	// Leave room for multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, ocr.MaxUploadSize+64<<10)
	if err := r.ParseMultipartForm(ocr.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "receipt file is too large"})
			return
		}
		writeError(w, r, models.NewValidationError("receipt", "receipt file is required"), "")
		return
	}
	file, header, err := r.FormFile("receipt")
	if err != nil {
		writeError(w, r, models.NewValidationError("receipt", "receipt file is required"), "")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err, "Failed to scan receipt")
		return
	}

	doc, err := s.scanner.ScanFile(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, r, err, "Failed to scan receipt")
		return
	}
	s.writeScan(w, doc)
}

// handleScanURL runs OCR on an image the provider fetches itself.
func (s *Server) handleScanURL(w http.ResponseWriter, r *http.Request) {
	if !s.requireScanner(w) {
		return
	}
	var req scanURLRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, "Failed to scan receipt")
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		writeError(w, r, models.NewValidationError("imageUrl", "imageUrl is required"), "")
		return
	}

	doc, err := s.scanner.ScanURL(r.Context(), req.ImageURL)
	if err != nil {
		writeError(w, r, err, "Failed to scan receipt")
		return
	}
	s.writeScan(w, doc)
}

func (s *Server) requireScanner(w http.ResponseWriter) bool {
	if s.scanner == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "receipt scanning is not configured"})
		return false
	}
	return true
}

func (s *Server) writeScan(w http.ResponseWriter, doc *ocr.Document) {
	preview := doc.Draft(s.currencies, money.USD).Preview(models.ReceiptScanned)
	resp := scanResponse{Success: true, Receipt: toReceiptResponse(preview)}
	if total, ok := doc.ReportedTotal(); ok {
		f := money.Round(total).InexactFloat64()
		resp.ReportedTotal = &f
	}
	writeJSON(w, http.StatusOK, resp)
}
