// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
	"github.com/mmynk/receiptsplit/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys so deleting a receipt cascades to its items
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateReceipt persists a new receipt and its items.
func (s *SQLiteStore) CreateReceipt(ctx context.Context, receipt *models.Receipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.New().String()
	}
	if receipt.CreatedAt == 0 {
		receipt.CreatedAt = s.now().Unix()
	}
	if receipt.Date.IsZero() {
		receipt.Date = s.now().UTC()
	}
	if receipt.Type == "" {
		receipt.Type = models.ReceiptManual
	}
	if receipt.Merchant == "" {
		receipt.Merchant = generateMerchant(receipt.Items, receipt.Date)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO receipts (id, merchant, currency, tax, tip, cc_fee, receipt_type, purchased_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID, receipt.Merchant, string(receipt.Currency),
		receipt.Charges.Tax, receipt.Charges.Tip, receipt.Charges.CCFee,
		string(receipt.Type), receipt.Date.Unix(), receipt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}

	if err := insertItems(ctx, tx, receipt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetReceipt retrieves a receipt by ID, including its items in entry order.
func (s *SQLiteStore) GetReceipt(ctx context.Context, receiptID string) (*models.Receipt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, merchant, currency, tax, tip, cc_fee, receipt_type, purchased_at, created_at
		 FROM receipts WHERE id = ?`,
		receiptID,
	)
	receipt, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, receiptID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	if receipt.Items, err = s.loadItems(ctx, receipt.ID); err != nil {
		return nil, err
	}
	return receipt, nil
}

// UpdateReceipt replaces a receipt's fields and its full item list.
func (s *SQLiteStore) UpdateReceipt(ctx context.Context, receipt *models.Receipt) error {
	if receipt.Merchant == "" {
		receipt.Merchant = generateMerchant(receipt.Items, receipt.Date)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE receipts SET merchant = ?, currency = ?, tax = ?, tip = ?, cc_fee = ?, purchased_at = ?
		 WHERE id = ?`,
		receipt.Merchant, string(receipt.Currency),
		receipt.Charges.Tax, receipt.Charges.Tip, receipt.Charges.CCFee,
		receipt.Date.Unix(), receipt.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update receipt: %w", err)
	}
	if err := requireRow(result, receipt.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM receipt_items WHERE receipt_id = ?", receipt.ID); err != nil {
		return fmt.Errorf("failed to clear receipt items: %w", err)
	}
	if err := insertItems(ctx, tx, receipt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteReceipt removes a receipt. Items are removed by cascade.
func (s *SQLiteStore) DeleteReceipt(ctx context.Context, receiptID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM receipts WHERE id = ?", receiptID)
	if err != nil {
		return fmt.Errorf("failed to delete receipt: %w", err)
	}
	return requireRow(result, receiptID)
}

// ListReceipts returns every receipt with its items, most recent purchase first.
func (s *SQLiteStore) ListReceipts(ctx context.Context) ([]*models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, merchant, currency, tax, tip, cc_fee, receipt_type, purchased_at, created_at
		 FROM receipts ORDER BY purchased_at DESC, created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	rows.Close()

	for _, receipt := range receipts {
		if receipt.Items, err = s.loadItems(ctx, receipt.ID); err != nil {
			return nil, err
		}
	}
	return receipts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*models.Receipt, error) {
	var (
		receipt     models.Receipt
		currency    string
		receiptType string
		purchasedAt int64
	)
	err := row.Scan(
		&receipt.ID, &receipt.Merchant, &currency,
		&receipt.Charges.Tax, &receipt.Charges.Tip, &receipt.Charges.CCFee,
		&receiptType, &purchasedAt, &receipt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	receipt.Currency = money.Currency(currency)
	receipt.Type = models.ReceiptType(receiptType)
	receipt.Date = time.Unix(purchasedAt, 0).UTC()
	return &receipt, nil
}

func (s *SQLiteStore) loadItems(ctx context.Context, receiptID string) ([]models.LineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, unit_price, quantity FROM receipt_items WHERE receipt_id = ? ORDER BY position",
		receiptID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.ID, &item.Name, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, receipt *models.Receipt) error {
	for i := range receipt.Items {
		item := &receipt.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO receipt_items (id, receipt_id, position, name, unit_price, quantity) VALUES (?, ?, ?, ?, ?, ?)",
			item.ID, receipt.ID, i, item.Name, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
	}
	return nil
}

func requireRow(result sql.Result, receiptID string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, receiptID)
	}
	return nil
}

// generateMerchant labels a receipt that was saved without a merchant name.
func generateMerchant(items []models.LineItem, date time.Time) string {
	if len(items) == 0 {
		return fmt.Sprintf("Receipt - %s", date.Format("Jan 2, 2006"))
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	if len(names) <= 3 {
		return fmt.Sprintf("Receipt for %s", strings.Join(names, ", "))
	}
	return fmt.Sprintf("Receipt for %s and %d more",
		strings.Join(names[:2], ", "),
		len(names)-2,
	)
}
