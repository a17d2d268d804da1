// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/receiptsplit/internal/models"
)

// ErrNotFound is returned when a receipt does not exist.
var ErrNotFound = errors.New("receipt not found")

// Store defines the interface for receipt storage operations.
//
// Stores persist items and charges only. Receipt.Totals is never written and
// comes back zero; callers recompute it with calculator.ComputeTotals.
type Store interface {
	// CreateReceipt persists a new receipt.
	// The receipt.ID and item IDs are populated by the store when empty.
	CreateReceipt(ctx context.Context, receipt *models.Receipt) error

	// GetReceipt retrieves a receipt and its items by ID.
	// Returns ErrNotFound if the receipt does not exist.
	GetReceipt(ctx context.Context, receiptID string) (*models.Receipt, error)

	// UpdateReceipt replaces an existing receipt's fields and items.
	// Returns ErrNotFound if the receipt does not exist.
	UpdateReceipt(ctx context.Context, receipt *models.Receipt) error

	// DeleteReceipt removes a receipt and its items.
	// Returns ErrNotFound if the receipt does not exist.
	DeleteReceipt(ctx context.Context, receiptID string) error

	// ListReceipts returns all receipts, newest purchase date first.
	ListReceipts(ctx context.Context) ([]*models.Receipt, error)

	// Close releases any resources held by the store.
	Close() error
}
