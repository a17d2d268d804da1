// Package config loads the service configuration from a TOML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mmynk/receiptsplit/internal/money"
	"github.com/mmynk/receiptsplit/internal/ocr"
	"github.com/mmynk/receiptsplit/internal/rates"
)

const defaultScansPerMinute = 30

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Rates    RatesConfig    `toml:"rates"`
	OCR      OCRConfig      `toml:"ocr"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// DatabaseConfig configures the receipt store.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LogConfig configures logging. Format is "text" or "json".
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// RatesConfig configures the exchange rate provider and cache.
// Durations are Go duration strings such as "1h" or "10s".
type RatesConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	CacheTTL   string   `toml:"cache_ttl"`
	Timeout    string   `toml:"timeout"`
	Currencies []string `toml:"currencies"`
}

// OCRConfig configures the receipt scanning provider. ScansPerMinute caps
// the scan endpoints; zero disables the cap.
type OCRConfig struct {
	Endpoint       string `toml:"endpoint"`
	ClientID       string `toml:"client_id"`
	Username       string `toml:"username"`
	APIKey         string `toml:"api_key"`
	Timeout        string `toml:"timeout"`
	ScansPerMinute int    `toml:"scans_per_minute"`
}

// Enabled reports whether every credential needed for scanning is set.
func (c OCRConfig) Enabled() bool {
	return c.ClientID != "" && c.Username != "" && c.APIKey != ""
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "./data/receipts.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Rates: RatesConfig{
			BaseURL:    rates.DefaultBaseURL,
			CacheTTL:   rates.DefaultTTL.String(),
			Timeout:    rates.DefaultTimeout.String(),
			Currencies: currencyStrings(money.DefaultCurrencies),
		},
		OCR: OCRConfig{
			Endpoint:       ocr.DefaultEndpoint,
			Timeout:        ocr.DefaultTimeout.String(),
			ScansPerMinute: defaultScansPerMinute,
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("ADDR", c.Server.Addr)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Rates.BaseURL = getEnv("EXCHANGE_RATE_BASE_URL", c.Rates.BaseURL)
	c.Rates.APIKey = getEnv("EXCHANGE_RATE_API_KEY", c.Rates.APIKey)
	c.OCR.ClientID = getEnv("VERYFI_CLIENT_ID", c.OCR.ClientID)
	c.OCR.Username = getEnv("VERYFI_USERNAME", c.OCR.Username)
	c.OCR.APIKey = getEnv("VERYFI_API_KEY", c.OCR.APIKey)
}

// Validate checks durations and currency codes.
func (c Config) Validate() error {
	var errs []error
	for field, value := range map[string]string{
		"rates.cache_ttl": c.Rates.CacheTTL,
		"rates.timeout":   c.Rates.Timeout,
		"ocr.timeout":     c.OCR.Timeout,
	} {
		if _, err := parsePositiveDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}
	if _, err := money.NewSet(c.Rates.Currencies); err != nil {
		errs = append(errs, fmt.Errorf("rates.currencies: %w", err))
	}
	if c.OCR.ScansPerMinute < 0 {
		errs = append(errs, fmt.Errorf("ocr.scans_per_minute: must not be negative, got %d", c.OCR.ScansPerMinute))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr: must not be empty"))
	}
	return errors.Join(errs...)
}

// CacheTTLDuration returns the parsed cache TTL.
func (c RatesConfig) CacheTTLDuration() time.Duration {
	return durationOr(c.CacheTTL, rates.DefaultTTL)
}

// TimeoutDuration returns the parsed provider timeout.
func (c RatesConfig) TimeoutDuration() time.Duration {
	return durationOr(c.Timeout, rates.DefaultTimeout)
}

// CurrencySet returns the supported currencies.
func (c RatesConfig) CurrencySet() (*money.Set, error) {
	return money.NewSet(c.Currencies)
}

// TimeoutDuration returns the parsed scan timeout.
func (c OCRConfig) TimeoutDuration() time.Duration {
	return durationOr(c.Timeout, ocr.DefaultTimeout)
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := parsePositiveDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func currencyStrings(codes []money.Currency) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}
