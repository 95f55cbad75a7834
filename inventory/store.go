/*
store.go - Persistence interfaces for products, ledger entries and sales

PURPOSE:
  Defines the boundary between the tracker's rules and the database. Stores
  persist records and answer filtered queries; they never compute balances
  and never decide whether a movement is allowed.

KEY INTERFACES:
  Store:    CRUD over the three tables
  TxStore:  Store plus WithTx for atomic multi-record writes
  Resetter: Optional. Wipes all data (demo scenarios)

ATOMIC DUAL WRITES:
  A sale is an "out" entry plus a Sale record. Both are written through the
  Store handed to WithTx's callback so either both commit or neither does.

NOT FOUND:
  Get*, Update* and Delete* return a *NotFoundError (errors.Is ErrNotFound)
  when the record is missing.

IMPLEMENTATIONS:
  - inventory/store/memory.go: In-memory for tests and dev
  - store/sqlite: SQLite (default)
  - store/postgres: PostgreSQL

SEE ALSO:
  - tracker/: The only writer
*/
package inventory

import "context"

// =============================================================================
// FILTERS
// =============================================================================

// ProductFilter narrows ListProducts. Zero fields match everything.
type ProductFilter struct {
	Location Location
	Search   string // case-insensitive substring of Name
	IDs      []ProductID
}

// EntryFilter narrows ListEntries. Zero fields match everything.
type EntryFilter struct {
	ProductID ProductID
	Location  Location // location of the owning product
	Date      *Date
	Type      EntryType
	Search    string // case-insensitive substring of Description
}

// SaleFilter narrows ListSales. Zero fields match everything.
type SaleFilter struct {
	ProductID ProductID
	Date      *Date
	Location  Location
	Search    string // case-insensitive substring of ProductName, Description or Receiver
}

// =============================================================================
// STORE
// =============================================================================

// Store persists products, ledger entries and sales.
type Store interface {
	CreateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id ProductID) (*Product, error)
	// GetProductForUpdate reads a product and, where the backend supports it,
	// row-locks it until the surrounding transaction ends.
	GetProductForUpdate(ctx context.Context, id ProductID) (*Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id ProductID) error
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)

	AppendEntry(ctx context.Context, e Entry) error
	GetEntry(ctx context.Context, id EntryID) (*Entry, error)
	UpdateEntry(ctx context.Context, e Entry) error
	DeleteEntry(ctx context.Context, id EntryID) error
	// DeleteEntriesByProduct removes every entry of a product and returns how many.
	DeleteEntriesByProduct(ctx context.Context, id ProductID) (int, error)
	// ListEntries returns matches ordered by date, then creation time.
	ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error)

	CreateSale(ctx context.Context, s Sale) error
	GetSale(ctx context.Context, id SaleID) (*Sale, error)
	// GetSaleByEntry returns the sale paired with an entry, or nil when the
	// entry is a bare stock movement.
	GetSaleByEntry(ctx context.Context, id EntryID) (*Sale, error)
	UpdateSale(ctx context.Context, s Sale) error
	DeleteSale(ctx context.Context, id SaleID) error
	// DeleteSalesByProduct removes every sale of a product and returns how many.
	DeleteSalesByProduct(ctx context.Context, id ProductID) (int, error)
	// ListSales returns matches ordered by date, then creation time.
	ListSales(ctx context.Context, f SaleFilter) ([]Sale, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Resetter is implemented by stores that can drop all data.
type Resetter interface {
	Reset(ctx context.Context) error
}
