package sqlite

import "database/sql"

// schema sets up the receipt tables. It runs on every open.
// Money columns hold decimal strings. Subtotal and total are derived values
// and deliberately have no column.
const schema = `
CREATE TABLE IF NOT EXISTS receipts (
    id TEXT PRIMARY KEY,
    merchant TEXT NOT NULL,
    currency TEXT NOT NULL,
    tax TEXT NOT NULL DEFAULT '0',
    tip TEXT NOT NULL DEFAULT '0',
    cc_fee TEXT NOT NULL DEFAULT '0',
    receipt_type TEXT NOT NULL,
    purchased_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS receipt_items (
    id TEXT PRIMARY KEY,
    receipt_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    unit_price TEXT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity >= 1),
    FOREIGN KEY (receipt_id) REFERENCES receipts(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_receipt_items_receipt_id ON receipt_items(receipt_id);
CREATE INDEX IF NOT EXISTS idx_receipts_purchased_at ON receipts(purchased_at);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
