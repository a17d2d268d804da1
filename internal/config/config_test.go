package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/receiptsplit/internal/money"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "./data/receipts.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, time.Hour, cfg.Rates.CacheTTLDuration())
	assert.Equal(t, 10*time.Second, cfg.Rates.TimeoutDuration())
	assert.False(t, cfg.OCR.Enabled())
	assert.Equal(t, 30, cfg.OCR.ScansPerMinute)
	require.NoError(t, cfg.Validate())

	set, err := cfg.Rates.CurrencySet()
	require.NoError(t, err)
	assert.Equal(t, money.DefaultCurrencies, set.Codes())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9000"

[log]
level = "debug"
format = "json"

[rates]
api_key = "file-key"
cache_ttl = "30m"
currencies = ["usd", "eur"]

[ocr]
client_id = "cid"
username = "user"
api_key = "key"
timeout = "45s"
scans_per_minute = 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "./data/receipts.db", cfg.Database.Path, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "file-key", cfg.Rates.APIKey)
	assert.Equal(t, 30*time.Minute, cfg.Rates.CacheTTLDuration())
	assert.Equal(t, 45*time.Second, cfg.OCR.TimeoutDuration())
	assert.True(t, cfg.OCR.Enabled())
	assert.Zero(t, cfg.OCR.ScansPerMinute)

	set, err := cfg.Rates.CurrencySet()
	require.NoError(t, err)
	assert.Equal(t, []money.Currency{money.USD, money.EUR}, set.Codes())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[rates]
api_key = "file-key"
`)
	t.Setenv("EXCHANGE_RATE_API_KEY", "env-key")
	t.Setenv("DB_PATH", "/tmp/other.db")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("VERYFI_CLIENT_ID", "cid")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Rates.APIKey)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "cid", cfg.OCR.ClientID)
	assert.False(t, cfg.OCR.Enabled(), "username and key are still missing")
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("ADDR", ":7000")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad duration", content: "[rates]\ncache_ttl = \"soon\"", wantErr: "rates.cache_ttl"},
		{name: "negative duration", content: "[ocr]\ntimeout = \"-5s\"", wantErr: "ocr.timeout"},
		{name: "negative scan limit", content: "[ocr]\nscans_per_minute = -1", wantErr: "ocr.scans_per_minute"},
		{name: "bad currency", content: "[rates]\ncurrencies = [\"DOLLAR\"]", wantErr: "rates.currencies"},
		{name: "unknown key", content: "[rates]\nttl = \"1h\"", wantErr: "unknown config keys"},
		{name: "invalid toml", content: "[rates\n", wantErr: "failed to read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
