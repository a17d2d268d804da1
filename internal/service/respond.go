package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mmynk/receiptsplit/internal/draft"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/ocr"
	"github.com/mmynk/receiptsplit/internal/rates"
	"github.com/mmynk/receiptsplit/internal/storage"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps err to a status code and writes the error envelope.
// Server-side failures show failMsg instead of the cause, which is logged.
func writeError(w http.ResponseWriter, r *http.Request, err error, failMsg string) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), failMsg, "path", r.URL.Path, "error", err)
		msg = failMsg
	}
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func errorStatus(err error) (int, string) {
	var (
		vErr *models.ValidationError
		cErr *rates.ConversionError
		sErr *ocr.ScanError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Message
	case errors.Is(err, models.ErrInvalidSplit):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "receipt not found"
	case errors.Is(err, draft.ErrDraftSaved):
		return http.StatusConflict, err.Error()
	case errors.As(err, &cErr), errors.As(err, &sErr):
		return http.StatusBadGateway, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.NewValidationError("body", "invalid request body")
	}
	return nil
}

// formValue is a form field sent either as a JSON string or a JSON number.
// Manual entry forms post whatever the user typed.
type formValue string

func (v *formValue) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = formValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = formValue(n.String())
	return nil
}
