package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mmynk/receiptsplit/internal/config"
	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/rates"
	"github.com/mmynk/receiptsplit/pkg/logging"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "receiptsplit",
		Short: "Receipt totals and multi-currency bill splitting",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnv("CONFIG_PATH", ""), "path to a TOML config file")

	load := func() (config.Config, error) {
		// A missing .env is normal; the OS environment and defaults apply.
		envErr := godotenv.Load()
		cfg, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		logging.Setup(cfg.Log.Level, cfg.Log.Format)
		if envErr == nil {
			slog.Debug("Loaded .env file")
		}
		return cfg, nil
	}

	rootCmd.AddCommand(
		newServeCmd(load),
		newSplitCmd(load),
		newConvertCmd(load),
		newTotalsCmd(load),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

type configLoader func() (config.Config, error)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// newConverter builds the rate cache, provider client and converter from cfg.
// m may be nil.
func newConverter(cfg config.Config, m *metrics.Metrics) *rates.Converter {
	cache := rates.NewCache(rates.WithTTL(cfg.Rates.CacheTTLDuration()))
	client := rates.NewClient(cfg.Rates.BaseURL, cfg.Rates.APIKey,
		rates.WithTimeout(cfg.Rates.TimeoutDuration()),
		rates.WithClientMetrics(m),
	)
	return rates.NewConverter(cache, client, m)
}
