package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/money"
)

const (
	// DefaultBaseURL is the exchangerate-api v6 endpoint.
	DefaultBaseURL = "https://v6.exchangerate-api.com/v6"

	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 10 * time.Second

	resultSuccess   = "success"
	maxResponseSize = 1 << 20
)

// pairResponse is the provider's /pair/{from}/{to} payload.
type pairResponse struct {
	Result         string          `json:"result"`
	ErrorType      string          `json:"error-type"`
	BaseCode       string          `json:"base_code"`
	TargetCode     string          `json:"target_code"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
}

// Client fetches single pair rates from the exchange rate provider.
// It performs no caching and no retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithClientMetrics records fetch latency and outcome.
func WithClientMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a provider client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs one round trip for the (base, quote) rate.
// Any failure is returned as a *ProviderError.
func (c *Client) Fetch(ctx context.Context, base, quote money.Currency) (decimal.Decimal, error) {
	start := time.Now()
	rate, err := c.fetch(ctx, base, quote)
	c.metrics.ObserveProviderFetch(time.Since(start), err)
	if err != nil {
		slog.Error("Exchange rate fetch failed", "pair", Pair{base, quote}.String(), "error", err)
		return decimal.Zero, err
	}
	slog.Debug("Exchange rate fetched",
		"pair", Pair{base, quote}.String(),
		"rate", rate.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, base, quote money.Currency) (decimal.Decimal, error) {
	providerErr := func(status int, err error) *ProviderError {
		return &ProviderError{Base: base, Quote: quote, StatusCode: status, Err: err}
	}

	endpoint, err := url.JoinPath(c.baseURL, c.apiKey, "pair", string(base), string(quote))
	if err != nil {
		return decimal.Zero, providerErr(0, fmt.Errorf("failed to build request url: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, providerErr(0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, providerErr(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return decimal.Zero, providerErr(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	var payload pairResponse
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pErr := providerErr(resp.StatusCode, nil)
		if decodeErr == nil {
			pErr.Result = payload.Result
			pErr.ErrorType = payload.ErrorType
		}
		return decimal.Zero, pErr
	}
	if decodeErr != nil {
		return decimal.Zero, providerErr(resp.StatusCode, fmt.Errorf("failed to decode response: %w", decodeErr))
	}
	if payload.Result != resultSuccess {
		pErr := providerErr(resp.StatusCode, nil)
		pErr.Result = payload.Result
		pErr.ErrorType = payload.ErrorType
		return decimal.Zero, pErr
	}
	if !payload.ConversionRate.IsPositive() {
		return decimal.Zero, providerErr(resp.StatusCode, fmt.Errorf("invalid conversion rate %s", payload.ConversionRate))
	}
	return payload.ConversionRate, nil
}
