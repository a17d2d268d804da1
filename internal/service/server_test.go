package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/money"
	"github.com/mmynk/receiptsplit/internal/ocr"
	"github.com/mmynk/receiptsplit/internal/rates"
	"github.com/mmynk/receiptsplit/internal/storage/sqlite"
)

// testRates are the pair rates served by the fake provider. Pairs not listed
// fail with a 500.
var testRates = map[string]float64{
	"USD/EUR": 0.9,
	"USD/GBP": 0.8,
	"EUR/USD": 1.1,
}

type testEnv struct {
	server        *httptest.Server
	handler       http.Handler
	providerCalls *atomic.Int32
	registry      *prometheus.Registry
}

// fakeScanner returns a canned document or error.
type fakeScanner struct {
	doc      *ocr.Document
	err      error
	lastName string
	lastURL  string
}

func (f *fakeScanner) ScanFile(ctx context.Context, fileName string, data []byte) (*ocr.Document, error) {
	f.lastName = fileName
	return f.doc, f.err
}

func (f *fakeScanner) ScanURL(ctx context.Context, imageURL string) (*ocr.Document, error) {
	f.lastURL = imageURL
	return f.doc, f.err
}

// setupTestServer wires the real converter, cache and SQLite store behind a
// fake exchange rate provider.
func setupTestServer(t *testing.T, scanner ocr.Scanner) *testEnv {
	t.Helper()

	var calls atomic.Int32
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var key, from, to string
		// Path is /{key}/pair/{from}/{to}
		parts := splitPath(r.URL.Path)
		if len(parts) == 4 {
			key, from, to = parts[0], parts[2], parts[3]
		}
		rate, ok := testRates[from+"/"+to]
		if key != "test-key" || !ok {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"result":"error","error-type":"unsupported-code"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "success", "conversion_rate": rate})
	}))
	t.Cleanup(provider.Close)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	currencies, err := money.NewSet(nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	conv := rates.NewConverter(rates.NewCache(), rates.NewClient(provider.URL, "test-key", rates.WithClientMetrics(m)), m)

	opts := []Option{WithMetrics(m, reg)}
	if scanner != nil {
		opts = append(opts, WithScanner(scanner))
	}
	h := NewServer(conv, store, currencies, opts...).Handler()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, handler: h, providerCalls: &calls, registry: reg}
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t, nil)
	status, body := doJSON(t, http.MethodGet, env.server.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Server is running!", body["message"])
}

func TestCurrencies(t *testing.T) {
	env := setupTestServer(t, nil)
	status, body := doJSON(t, http.MethodGet, env.server.URL+"/api/currencies", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["currencies"], len(money.DefaultCurrencies))
	assert.Contains(t, body["currencies"], "USD")
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, nil)
	doJSON(t, http.MethodPost, env.server.URL+"/api/payments/split-bill", map[string]any{
		"totalAmount": 10, "currency": "USD",
		"participants": []map[string]string{{"id": "1", "name": "A", "preferredCurrency": "USD"}},
	})

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `receiptsplit_splits_total{outcome="ok"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestServer(t, nil)
	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/payments/split-bill", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
