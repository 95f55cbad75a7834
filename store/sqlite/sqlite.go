/*
Package sqlite provides a SQLite-backed implementation of inventory.TxStore.

PURPOSE:
  Default storage for a single shop. All statements live in store/sqldb; this
  package opens the database, migrates the schema and supplies the dialect.

KEY TABLES:
  products: Stocked items. initial_balance is written once
  entries:  Ledger lines (in/out), FK to products
  sales:    Sales. transaction_id names the paired entry (no FK)

INDEXES:
  - idx_entries_product_date: Balance projection (hot path)
  - idx_sales_date_location: Per-day sales, delete-by-date, sale dates
  - idx_sales_transaction: Entry to sale lookup for cascades

CONCURRENCY:
  The pool is capped at one connection. SQLite allows a single writer
  anyway, and ":memory:" databases are per-connection, so one connection
  keeps every caller on the same data. A WithTx callback owns that
  connection until it returns.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/stockbook.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New() with idempotent CREATE statements.

SEE ALSO:
  - store/sqldb/sqldb.go: Shared statements
  - inventory/store.go: Interface definitions
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/store/sqldb"
)

// driverName is go-sqlite3 with a "fold" function registered on every
// connection. SQLite's LOWER only folds ASCII.
const driverName = "sqlite3_stockbook"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

// Store implements inventory.TxStore using SQLite.
type Store struct {
	*sqldb.Store
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open(driverName, dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{Store: sqldb.New(db, Dialect())}, nil
}

// Dialect returns the SQLite flavour of the shared statements.
func Dialect() sqldb.Dialect {
	return sqldb.Dialect{
		Name:           "sqlite",
		Fold:           "fold",
		TranslateError: translateError,
	}
}

// migrate creates the database schema.
func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL,
		initial_balance TEXT NOT NULL,
		price TEXT NOT NULL,
		date_added TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_location
		ON products(location);

	-- Ledger lines. Quantity is always positive; type carries direction.
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		type TEXT NOT NULL CHECK (type IN ('in', 'out')),
		quantity TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		opening BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_product_date
		ON entries(product_id, entry_date);
	CREATE INDEX IF NOT EXISTS idx_entries_date_type
		ON entries(entry_date, type);

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		sale_date TEXT NOT NULL,
		location TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		total TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		receiver TEXT NOT NULL DEFAULT '',
		transaction_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_date_location
		ON sales(sale_date, location);
	CREATE INDEX IF NOT EXISTS idx_sales_product
		ON sales(product_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sales_transaction
		ON sales(transaction_id) WHERE transaction_id IS NOT NULL;
	`

	_, err := db.Exec(schema)
	return err
}

func translateError(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %v", inventory.ErrDuplicate, err)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: referenced product: %v", inventory.ErrNotFound, err)
	}
	if se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked {
		return fmt.Errorf("%w: %v", inventory.ErrConcurrentModification, err)
	}
	return err
}
