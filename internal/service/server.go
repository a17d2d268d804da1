// Package service exposes the settlement engine over a JSON HTTP API.
package service

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/mmynk/receiptsplit/internal/calculator"
	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/middleware"
	"github.com/mmynk/receiptsplit/internal/money"
	"github.com/mmynk/receiptsplit/internal/ocr"
	"github.com/mmynk/receiptsplit/internal/storage"
)

const (
	// requestTimeout bounds a single API request, including rate fetches and OCR.
	requestTimeout = 90 * time.Second
	scanBurst      = 5
)

// RateSource converts amounts and exposes the underlying rate.
type RateSource interface {
	calculator.Converter
	Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error)
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	splitter   *calculator.Splitter
	rates      RateSource
	store      storage.Store
	currencies *money.Set
	scanner    ocr.Scanner
	scanLimit  *rate.Limiter
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithScanner enables the scan endpoints. Without a scanner they answer 503.
func WithScanner(scanner ocr.Scanner) Option {
	return func(s *Server) { s.scanner = scanner }
}

// WithScanLimit caps the scan endpoints at perMinute requests, with short
// bursts allowed. Zero or less leaves them unlimited.
func WithScanLimit(perMinute int) Option {
	return func(s *Server) {
		if perMinute > 0 {
			s.scanLimit = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), scanBurst)
		}
	}
}

// WithMetrics records request metrics and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// NewServer creates a Server.
func NewServer(rates RateSource, store storage.Store, currencies *money.Set, opts ...Option) *Server {
	s := &Server{
		splitter:   calculator.NewSplitter(rates, currencies),
		rates:      rates,
		store:      store,
		currencies: currencies,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(middleware.CORS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/currencies", s.handleCurrencies)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/split-bill", s.handleSplitBill)
			r.Post("/convert", s.handleConvert)
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Get("/", s.handleListReceipts)
			r.Post("/", s.handleCreateReceipt)
			r.Post("/totals", s.handleReceiptTotals)
			r.Group(func(r chi.Router) {
				if s.scanLimit != nil {
					r.Use(middleware.RateLimit(s.scanLimit))
				}
				r.Post("/scan", s.handleScanFile)
				r.Post("/scan-url", s.handleScanURL)
			})
			r.Get("/{id}", s.handleGetReceipt)
			r.Put("/{id}", s.handleUpdateReceipt)
			r.Delete("/{id}", s.handleDeleteReceipt)
		})
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Server is running!"})
}

type currenciesResponse struct {
	Success    bool             `json:"success"`
	Currencies []money.Currency `json:"currencies"`
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currenciesResponse{Success: true, Currencies: s.currencies.Codes()})
}
