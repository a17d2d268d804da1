// Package ocr talks to the external receipt OCR service and turns its
// documents into receipt drafts. Image processing itself happens remotely.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmynk/receiptsplit/internal/metrics"
)

const (
	// DefaultEndpoint is the Veryfi partner documents endpoint.
	DefaultEndpoint = "https://api.veryfi.com/api/v8/partner/documents"

	// DefaultTimeout bounds a single scan. OCR is slow; this is generous.
	DefaultTimeout = 60 * time.Second

	// MaxUploadSize is the largest accepted image.
	MaxUploadSize = 8 << 20

	maxResponseSize = 4 << 20
	defaultFileName = "receipt.jpg"
)

// Scanner extracts structured receipt data from an image.
type Scanner interface {
	ScanFile(ctx context.Context, fileName string, data []byte) (*Document, error)
	ScanURL(ctx context.Context, imageURL string) (*Document, error)
}

// Credentials authenticate against the OCR service.
type Credentials struct {
	ClientID string
	Username string
	APIKey   string
}

// ScanError is returned when the OCR service rejects a document or cannot be
// reached.
type ScanError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Body is the start of the provider's response, for logging.
	Body string
	Err  error
}

func (e *ScanError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("receipt scan failed (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("receipt scan failed: %v", e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Client is a Veryfi-compatible Scanner.
type Client struct {
	endpoint   string
	creds      Credentials
	httpClient *http.Client
	metrics    *metrics.Metrics
}

var _ Scanner = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records scan outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates an OCR client. An empty endpoint uses DefaultEndpoint.
func NewClient(endpoint string, creds Credentials, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   endpoint,
		creds:      creds,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type scanRequest struct {
	FileName   string   `json:"file_name,omitempty"`
	FileData   string   `json:"file_data,omitempty"`
	FileURL    string   `json:"file_url,omitempty"`
	Categories []string `json:"categories"`
}

// ScanFile uploads image bytes for extraction.
func (c *Client) ScanFile(ctx context.Context, fileName string, data []byte) (*Document, error) {
	if fileName == "" {
		fileName = defaultFileName
	}
	return c.scan(ctx, scanRequest{
		FileName:   fileName,
		FileData:   base64.StdEncoding.EncodeToString(data),
		Categories: []string{"Receipts"},
	})
}

// ScanURL asks the service to fetch and extract the image at imageURL.
func (c *Client) ScanURL(ctx context.Context, imageURL string) (*Document, error) {
	return c.scan(ctx, scanRequest{
		FileURL:    imageURL,
		Categories: []string{"Receipts"},
	})
}

func (c *Client) scan(ctx context.Context, body scanRequest) (*Document, error) {
	doc, err := c.do(ctx, body)
	if err != nil {
		c.metrics.IncrementScans("error")
		slog.Error("Receipt scan failed", "error", err)
		return nil, err
	}
	c.metrics.IncrementScans("ok")
	slog.Info("Receipt scanned", "vendor", doc.Vendor.Name, "line_items", len(doc.LineItems))
	return doc, nil
}

func (c *Client) do(ctx context.Context, body scanRequest) (*Document, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ScanError{Err: fmt.Errorf("failed to encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &ScanError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Client-Id", c.creds.ClientID)
	req.Header.Set("Authorization", fmt.Sprintf("apikey %s:%s", c.creds.Username, c.creds.APIKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ScanError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &ScanError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ScanError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ScanError{Err: fmt.Errorf("failed to decode document: %w", err)}
	}
	return &doc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
