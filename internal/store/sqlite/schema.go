package sqlite

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('admin', 'manager', 'secretary', 'salesperson')),
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		contact_info TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_path TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category_id INTEGER NOT NULL REFERENCES product_categories(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		size TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		price_per_unit_bought TEXT NOT NULL DEFAULT '0',
		price_per_unit_sold TEXT NOT NULL DEFAULT '0',
		quantity_bought INTEGER NOT NULL DEFAULT 0,
		quantity_sold INTEGER NOT NULL DEFAULT 0,
		weight TEXT NOT NULL DEFAULT '0',
		weight_unit TEXT NOT NULL DEFAULT '',
		total_price_bought TEXT NOT NULL DEFAULT '0',
		image_path TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		CHECK (quantity_sold >= 0 AND quantity_sold <= quantity_bought)
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
		total_price TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		price_per_unit TEXT NOT NULL,
		discount_per_unit TEXT NOT NULL DEFAULT '0',
		total_price TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		linked_action_id INTEGER,
		linked_action_table TEXT NOT NULL,
		old_data TEXT,
		new_data TEXT,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales(customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_items_sale ON sales_items(sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_items_product ON sales_items(product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_user_history_created_at ON user_history(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_user_history_account ON user_history(account_id)`,
}

// migrate creates any missing table and stamps user_version. Statements are
// idempotent, so reopening an existing file is a no-op.
func migrate(ctx context.Context, db *sqlx.DB) error {
	var version int
	if err := db.GetContext(ctx, &version, `PRAGMA user_version`); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if version < schemaVersion {
		log.Printf("[store] schema migrated from version %d to %d", version, schemaVersion)
	}
	return nil
}
