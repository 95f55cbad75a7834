/*
Package postgres provides a PostgreSQL-backed implementation of inventory.TxStore.

PURPOSE:
  Server deployment with several app instances sharing one database. Uses
  the pgx driver through database/sql; statements live in store/sqldb.

CONCURRENCY:
  WithTx runs at SERIALIZABLE isolation and GetProductForUpdate takes a
  row lock (SELECT ... FOR UPDATE), so the balance check and the writes
  that depend on it cannot interleave with another instance's sale of the
  same product. Serialization failures surface as
  inventory.ErrConcurrentModification and are safe to retry.

SEE ALSO:
  - store/sqldb/sqldb.go: Shared statements
  - store/sqlite/sqlite.go: Single-node alternative
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/store/sqldb"
)

// Store implements inventory.TxStore using PostgreSQL.
type Store struct {
	*sqldb.Store
}

// New connects to databaseURL, verifies the connection and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{Store: sqldb.New(db, Dialect())}, nil
}

// Dialect returns the PostgreSQL flavour of the shared statements.
func Dialect() sqldb.Dialect {
	return sqldb.Dialect{
		Name:           "postgres",
		NumberedParams: true,
		ForUpdate:      " FOR UPDATE",
		TxOptions:      &sql.TxOptions{Isolation: sql.LevelSerializable},
		TranslateError: translateError,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	location TEXT NOT NULL,
	initial_balance NUMERIC NOT NULL,
	price NUMERIC NOT NULL,
	date_added DATE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_location ON products(location);

CREATE TABLE IF NOT EXISTS entries (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL REFERENCES products(id),
	type TEXT NOT NULL CHECK (type IN ('in', 'out')),
	quantity NUMERIC NOT NULL CHECK (quantity > 0),
	entry_date DATE NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	opening BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_product_date ON entries(product_id, entry_date);
CREATE INDEX IF NOT EXISTS idx_entries_date_type ON entries(entry_date, type);

CREATE TABLE IF NOT EXISTS sales (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL REFERENCES products(id),
	product_name TEXT NOT NULL,
	sale_date DATE NOT NULL,
	location TEXT NOT NULL,
	quantity NUMERIC NOT NULL CHECK (quantity > 0),
	price NUMERIC NOT NULL,
	total NUMERIC NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	receiver TEXT NOT NULL DEFAULT '',
	transaction_id TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sales_date_location ON sales(sale_date, location);
CREATE INDEX IF NOT EXISTS idx_sales_product ON sales(product_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sales_transaction
	ON sales(transaction_id) WHERE transaction_id IS NOT NULL;
`

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %v", inventory.ErrDuplicate, err)
	case "23503":
		return fmt.Errorf("%w: referenced product: %v", inventory.ErrNotFound, err)
	case "40001", "40P01":
		return fmt.Errorf("%w: %v", inventory.ErrConcurrentModification, err)
	}
	return err
}
