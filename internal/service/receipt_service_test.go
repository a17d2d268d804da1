package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
	"github.com/mmynk/receiptsplit/internal/ocr"
)

func coffeeReceipt() map[string]any {
	return map[string]any{
		"merchant": "Corner Cafe",
		"currency": "USD",
		"date":     "2025-04-12",
		"items": []map[string]any{
			{"name": "Coffee", "price": "3.50", "quantity": "2"},
			{"name": "Muffin", "price": 2.25, "quantity": ""},
		},
		"tax": "0.50",
		"tip": 1,
	}
}

func TestReceiptTotals(t *testing.T) {
	tests := []struct {
		name         string
		body         any
		wantStatus   int
		validateFunc func(t *testing.T, body map[string]any)
	}{
		{
			name:       "coffee and muffin",
			body:       coffeeReceipt(),
			wantStatus: http.StatusOK,
			validateFunc: func(t *testing.T, body map[string]any) {
				assert.Equal(t, 9.25, body["subtotal"])
				assert.Equal(t, 0.5, body["tax"])
				assert.Equal(t, 1.0, body["tip"])
				assert.Equal(t, 0.0, body["ccFee"])
				assert.Equal(t, 10.75, body["total"])
			},
		},
		{
			name: "unparsable charges count as zero",
			body: map[string]any{
				"items": []map[string]any{{"name": "Tea", "price": "4", "quantity": 1}},
				"tax":   "abc",
				"tip":   "-2",
				"ccFee": "$0.25",
			},
			wantStatus: http.StatusOK,
			validateFunc: func(t *testing.T, body map[string]any) {
				assert.Equal(t, 0.0, body["tax"])
				assert.Equal(t, 0.0, body["tip"])
				assert.Equal(t, 4.25, body["total"])
			},
		},
		{
			name: "sub-cent amounts add up after rounding",
			body: map[string]any{
				"items": []map[string]any{{"name": "Gum", "price": "0.335"}},
				"tax":   "0.335",
			},
			wantStatus: http.StatusOK,
			validateFunc: func(t *testing.T, body map[string]any) {
				assert.Equal(t, 0.34, body["subtotal"])
				assert.Equal(t, 0.34, body["tax"])
				assert.Equal(t, 0.68, body["total"])
			},
		},
		{
			name:       "no items is zero, not an error",
			body:       map[string]any{"tax": 1},
			wantStatus: http.StatusOK,
			validateFunc: func(t *testing.T, body map[string]any) {
				assert.Equal(t, 0.0, body["subtotal"])
				assert.Equal(t, 1.0, body["total"])
			},
		},
		{
			name: "item without price",
			body: map[string]any{
				"items": []map[string]any{{"name": "Tea", "price": ""}},
			},
			wantStatus: http.StatusBadRequest,
			validateFunc: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "please enter item name and price", body["error"])
			},
		},
		{
			name: "unsupported currency",
			body: map[string]any{
				"currency": "ZZZ",
				"items":    []map[string]any{{"name": "Tea", "price": "1"}},
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, nil)
			status, body := doJSON(t, http.MethodPost, env.server.URL+"/api/receipts/totals", tt.body)
			assert.Equal(t, tt.wantStatus, status)
			if tt.validateFunc != nil {
				tt.validateFunc(t, body)
			}
		})
	}
}

func TestReceiptLifecycle(t *testing.T) {
	env := setupTestServer(t, nil)
	base := env.server.URL + "/api/receipts"

	status, body := doJSON(t, http.MethodPost, base, coffeeReceipt())
	require.Equal(t, http.StatusCreated, status)
	created := body["receipt"].(map[string]any)
	id := created["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "manual", created["type"])
	assert.Equal(t, "2025-04-12", created["date"])
	assert.Equal(t, 10.75, created["total"])

	items := created["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, 3.5, first["price"])
	assert.Equal(t, 2.0, first["quantity"])
	assert.Equal(t, 7.0, first["subtotal"])

	t.Run("get recomputes totals", func(t *testing.T) {
		status, body := doJSON(t, http.MethodGet, base+"/"+id, nil)
		require.Equal(t, http.StatusOK, status)
		receipt := body["receipt"].(map[string]any)
		assert.Equal(t, "Corner Cafe", receipt["merchant"])
		assert.Equal(t, 9.25, receipt["subtotal"])
		assert.Equal(t, 10.75, receipt["total"])
	})

	t.Run("update replaces items and keeps identity", func(t *testing.T) {
		update := coffeeReceipt()
		update["items"] = []map[string]any{{"name": "Espresso", "price": "2.80", "quantity": 3}}
		update["tip"] = "0"
		delete(update, "date")

		status, body := doJSON(t, http.MethodPut, base+"/"+id, update)
		require.Equal(t, http.StatusOK, status)
		receipt := body["receipt"].(map[string]any)
		assert.Equal(t, id, receipt["id"])
		assert.Equal(t, created["createdAt"], receipt["createdAt"])
		assert.Equal(t, "2025-04-12", receipt["date"], "date is kept when omitted")
		assert.Equal(t, 8.4, receipt["subtotal"])
		assert.Equal(t, 8.9, receipt["total"])

		status, body = doJSON(t, http.MethodGet, base+"/"+id, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, 8.9, body["receipt"].(map[string]any)["total"])
	})

	t.Run("list", func(t *testing.T) {
		second := coffeeReceipt()
		second["merchant"] = ""
		second["date"] = "2025-05-01"
		status, _ := doJSON(t, http.MethodPost, base, second)
		require.Equal(t, http.StatusCreated, status)

		status, body := doJSON(t, http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, status)
		receipts := body["receipts"].([]any)
		require.Len(t, receipts, 2)
		newest := receipts[0].(map[string]any)
		assert.Equal(t, "Receipt for Coffee, Muffin", newest["merchant"])
		assert.Equal(t, 10.75, newest["total"])
	})

	t.Run("delete", func(t *testing.T) {
		status, _ := doJSON(t, http.MethodDelete, base+"/"+id, nil)
		require.Equal(t, http.StatusOK, status)

		status, body := doJSON(t, http.MethodGet, base+"/"+id, nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, false, body["success"])

		status, _ = doJSON(t, http.MethodDelete, base+"/"+id, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestCreateReceipt_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		wantErr string
	}{
		{
			name:    "no items",
			body:    map[string]any{"merchant": "Empty", "tax": "1"},
			wantErr: "please add at least one item",
		},
		{
			name:    "bad price",
			body:    map[string]any{"items": []map[string]any{{"name": "Tea", "price": "free"}}},
			wantErr: "please enter a valid price",
		},
		{
			name:    "bad date",
			body:    map[string]any{"items": []map[string]any{{"name": "Tea", "price": "1"}}, "date": "12/04/2025"},
			wantErr: "date must be YYYY-MM-DD",
		},
		{
			name:    "bad type",
			body:    map[string]any{"items": []map[string]any{{"name": "Tea", "price": "1"}}, "type": "imported"},
			wantErr: "type must be manual or scanned",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, nil)
			status, body := doJSON(t, http.MethodPost, env.server.URL+"/api/receipts", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.wantErr, body["error"])
		})
	}
}

func TestUpdateReceipt_NotFound(t *testing.T) {
	env := setupTestServer(t, nil)
	status, _ := doJSON(t, http.MethodPut, env.server.URL+"/api/receipts/missing", coffeeReceipt())
	assert.Equal(t, http.StatusNotFound, status)
}

func scannedDocument() *ocr.Document {
	var doc ocr.Document
	raw := `{
		"vendor": {"name": "Market"},
		"date": "2025-06-01 10:00:00",
		"currency_code": "EUR",
		"line_items": [
			{"description": "Apples", "quantity": 2, "price": 1.25, "total": 2.5},
			{"description": "Bread", "quantity": 1, "price": null, "total": 3}
		],
		"tax": 0.55,
		"total": 6.05
	}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(err)
	}
	return &doc
}

func multipartBody(t *testing.T, field, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postMultipart(t *testing.T, url, field, fileName string, data []byte) (int, map[string]any) {
	t.Helper()
	body, contentType := multipartBody(t, field, fileName, data)
	resp, err := http.Post(url, contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestScanFile(t *testing.T) {
	scanner := &fakeScanner{doc: scannedDocument()}
	env := setupTestServer(t, scanner)

	status, body := postMultipart(t, env.server.URL+"/api/receipts/scan", "receipt", "shop.jpg", []byte("jpeg"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "shop.jpg", scanner.lastName)

	receipt := body["receipt"].(map[string]any)
	assert.Empty(t, receipt["id"], "scans are previews, not saved receipts")
	assert.Equal(t, "scanned", receipt["type"])
	assert.Equal(t, "Market", receipt["merchant"])
	assert.Equal(t, "EUR", receipt["currency"])
	assert.Equal(t, "2025-06-01", receipt["date"])
	assert.Len(t, receipt["items"], 2)
	assert.Equal(t, 5.5, receipt["subtotal"])
	assert.Equal(t, 6.05, receipt["total"])
	assert.Equal(t, 6.05, body["reportedTotal"])

	status, body = doJSON(t, http.MethodGet, env.server.URL+"/api/receipts", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["receipts"])
}

func TestScanFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		env := setupTestServer(t, &fakeScanner{doc: scannedDocument()})
		status, body := postMultipart(t, env.server.URL+"/api/receipts/scan", "", "", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "receipt file is required", body["error"])
	})

	t.Run("too large", func(t *testing.T) {
		env := setupTestServer(t, &fakeScanner{doc: scannedDocument()})
		big := bytes.Repeat([]byte("x"), ocr.MaxUploadSize+128<<10)
		reqBody, contentType := multipartBody(t, "receipt", "big.jpg", big)
		req := httptest.NewRequest(http.MethodPost, "/api/receipts/scan", reqBody)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "receipt file is too large", body["error"])
	})

	t.Run("provider failure", func(t *testing.T) {
		env := setupTestServer(t, &fakeScanner{err: &ocr.ScanError{StatusCode: http.StatusUnauthorized, Body: "bad key"}})
		status, body := postMultipart(t, env.server.URL+"/api/receipts/scan", "receipt", "r.jpg", []byte("x"))
		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, "Failed to scan receipt", body["error"])
	})

	t.Run("not configured", func(t *testing.T) {
		env := setupTestServer(t, nil)
		status, body := postMultipart(t, env.server.URL+"/api/receipts/scan", "receipt", "r.jpg", []byte("x"))
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, false, body["success"])
	})
}

func TestScanURL(t *testing.T) {
	scanner := &fakeScanner{doc: scannedDocument()}
	env := setupTestServer(t, scanner)

	status, body := doJSON(t, http.MethodPost, env.server.URL+"/api/receipts/scan-url", map[string]string{"imageUrl": "https://example.com/r.jpg"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://example.com/r.jpg", scanner.lastURL)
	assert.Equal(t, 6.05, body["receipt"].(map[string]any)["total"])

	status, body = doJSON(t, http.MethodPost, env.server.URL+"/api/receipts/scan-url", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "imageUrl is required", body["error"])

	scanner.err = &ocr.ScanError{Err: errors.New("connection refused")}
	status, body = doJSON(t, http.MethodPost, env.server.URL+"/api/receipts/scan-url", map[string]string{"imageUrl": "https://example.com/r.jpg"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "Failed to scan receipt", body["error"])
}

func TestScan_RateLimited(t *testing.T) {
	currencies, err := money.NewSet(nil)
	require.NoError(t, err)
	h := NewServer(nil, nil, currencies,
		WithScanner(&fakeScanner{doc: scannedDocument()}),
		WithScanLimit(1),
	).Handler()

	var codes []int
	for range scanBurst + 1 {
		req := httptest.NewRequest(http.MethodPost, "/api/receipts/scan-url", strings.NewReader(`{"imageUrl":"https://example.com/r.jpg"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	for i := range scanBurst {
		assert.Equal(t, http.StatusOK, codes[i], "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, codes[scanBurst])

	// Other routes are not limited.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildDraft_Date(t *testing.T) {
	currencies, err := money.NewSet(nil)
	require.NoError(t, err)
	s := NewServer(nil, nil, currencies)
	fallback := time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC)
	items := []itemRequest{{Name: "Tea", Price: "2"}}

	tests := []struct {
		name     string
		date     string
		fallback time.Time
		want     time.Time
	}{
		{name: "form date wins", date: "2025-05-01", fallback: fallback, want: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
		{name: "fallback when omitted", fallback: fallback, want: fallback},
		{name: "unset without fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := s.buildDraft(receiptRequest{Items: items, Date: tt.date}, tt.fallback)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(d.Preview(models.ReceiptManual).Date), "date = %v", d.Preview(models.ReceiptManual).Date)
		})
	}
}

func TestFormValue(t *testing.T) {
	var req itemRequest
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Tea","price":2.5,"quantity":null}`), &req))
	assert.Equal(t, formValue("2.5"), req.Price)
	assert.Equal(t, formValue(""), req.Quantity)

	require.NoError(t, json.Unmarshal([]byte(`{"price":"$3"}`), &req))
	assert.Equal(t, formValue("$3"), req.Price)

	assert.Error(t, json.Unmarshal([]byte(`{"price":true}`), &req))

	// Large numbers keep their exact text.
	require.NoError(t, json.Unmarshal([]byte(`{"price":12345678901234.55}`), &req))
	assert.True(t, decimal.RequireFromString(string(req.Price)).Equal(decimal.RequireFromString("12345678901234.55")))
}
