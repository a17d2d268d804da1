package rates

import (
	"fmt"

	"github.com/mmynk/receiptsplit/internal/money"
)

// ProviderError is returned when the exchange rate provider answers with a
// non-2xx status or a payload whose result is not "success".
type ProviderError struct {
	Base  money.Currency
	Quote money.Currency

	// StatusCode is the HTTP status, or 0 when the request never completed.
	StatusCode int

	// Result is the provider's result field, and ErrorType its "error-type"
	// field, when a payload was decoded.
	Result    string
	ErrorType string

	Err error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("exchange rate provider failed for %s/%s", e.Base, e.Quote)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.ErrorType != "" {
		msg += ": " + e.ErrorType
	} else if e.Result != "" && e.Result != resultSuccess {
		msg += ": result " + e.Result
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ConversionError is returned by Converter when a rate could not be obtained.
type ConversionError struct {
	From money.Currency
	To   money.Currency
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to convert %s to %s: %v", e.From, e.To, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
