package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/ocr"
	"github.com/mmynk/receiptsplit/internal/service"
	"github.com/mmynk/receiptsplit/internal/storage/sqlite"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			currencies, err := cfg.Rates.CurrencySet()
			if err != nil {
				return err
			}
			if cfg.Rates.APIKey == "" {
				slog.Warn("EXCHANGE_RATE_API_KEY is not set; cross-currency splits will fail")
			}

			store, err := sqlite.New(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()
			slog.Info("Storage initialized", "database", cfg.Database.Path)

			m := metrics.New(prometheus.DefaultRegisterer)
			opts := []service.Option{service.WithMetrics(m, prometheus.DefaultGatherer)}
			if cfg.OCR.Enabled() {
				scanner := ocr.NewClient(cfg.OCR.Endpoint,
					ocr.Credentials{ClientID: cfg.OCR.ClientID, Username: cfg.OCR.Username, APIKey: cfg.OCR.APIKey},
					ocr.WithHTTPClient(&http.Client{Timeout: cfg.OCR.TimeoutDuration()}),
					ocr.WithMetrics(m),
				)
				opts = append(opts, service.WithScanner(scanner), service.WithScanLimit(cfg.OCR.ScansPerMinute))
			} else {
				slog.Warn("OCR credentials are not set; receipt scanning is disabled")
			}

			srv := service.NewServer(newConverter(cfg, m), store, currencies, opts...)

			// Wrap with h2c for HTTP/2 without TLS
			httpServer := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           h2c.NewHandler(srv.Handler(), &http2.Server{}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				slog.Info("Server starting", "address", cfg.Server.Addr)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down: %w", err)
			}
			return nil
		},
	}
}
