/*
Package sqldb implements inventory.TxStore on top of database/sql.

PURPOSE:
  The SQLite and PostgreSQL backends run the same statements. This package
  holds them once; each backend supplies a Dialect (placeholder style, row
  locking clause, transaction options, error translation) and its own schema.

KEY TABLES:
  products: One row per stocked item. initial_balance never changes
  entries:  Ledger lines (in/out), FK to products
  sales:    Sales, FK to products. transaction_id names the paired entry
            but carries no FK so a cleared history leaves it dangling

QUERY SHAPE:
  Statements are written with "?" placeholders and rebound per dialect.
  Methods live on queries, which wraps either *sql.DB or *sql.Tx, so the
  same code serves plain calls and WithTx callbacks.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite dialect and schema
  - store/postgres/postgres.go: PostgreSQL dialect and schema
  - inventory/store.go: Interface definitions
*/
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/stockbook/inventory"
)

// =============================================================================
// DIALECT
// =============================================================================

// Dialect captures what differs between SQL backends.
type Dialect struct {
	Name string
	// NumberedParams rewrites "?" to "$1", "$2", ...
	NumberedParams bool
	// ForUpdate is appended to the product read inside transactions.
	ForUpdate string
	// Fold names the SQL function used for case-insensitive search. Empty
	// means LOWER.
	Fold string
	// TxOptions are used by WithTx. Nil means driver defaults.
	TxOptions *sql.TxOptions
	// TranslateError maps driver errors onto inventory sentinels. It must
	// return err unchanged when it has nothing to say.
	TranslateError func(error) error
}

func (d Dialect) rebind(query string) string {
	if !d.NumberedParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// contains is a case-insensitive substring match of column against one
// likePattern argument.
func (d Dialect) contains(column string) string {
	fold := d.Fold
	if fold == "" {
		fold = "LOWER"
	}
	return fold + "(" + column + `) LIKE ? ESCAPE '\'`
}

func (d Dialect) translate(err error) error {
	if err == nil || d.TranslateError == nil {
		return err
	}
	return d.TranslateError(err)
}

// =============================================================================
// STORE
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements inventory.TxStore.
type Store struct {
	queries
	db *sql.DB
}

// New wraps an open, migrated database.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{queries: queries{q: db, d: d}, db: db}
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.d.TxOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", s.d.translate(err))
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx, d: s.d}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", s.d.translate(err))
	}
	return nil
}

// Reset deletes all rows. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, table := range []string{"sales", "entries", "products"} {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return sqlTx.Commit()
}

type queries struct {
	q querier
	d Dialect
}

func (s *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.q.ExecContext(ctx, s.d.rebind(query), args...)
	return res, s.d.translate(err)
}

func (s *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.q.QueryContext(ctx, s.d.rebind(query), args...)
	return rows, s.d.translate(err)
}

func (s *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.d.rebind(query), args...)
}

// mustAffect turns a zero-row UPDATE/DELETE into notFound.
func mustAffect(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, name, location, initial_balance, price, date_added, created_at, updated_at`

func (s *queries) CreateProduct(ctx context.Context, p inventory.Product) error {
	_, err := s.exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(p.ID), p.Name, string(p.Location), p.InitialBalance, p.Price, p.DateAdded,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (s *queries) GetProduct(ctx context.Context, id inventory.ProductID) (*inventory.Product, error) {
	return s.getProduct(ctx, id, "")
}

func (s *queries) GetProductForUpdate(ctx context.Context, id inventory.ProductID) (*inventory.Product, error) {
	return s.getProduct(ctx, id, s.d.ForUpdate)
}

func (s *queries) getProduct(ctx context.Context, id inventory.ProductID, suffix string) (*inventory.Product, error) {
	row := s.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`+suffix, string(id))
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.ProductNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", s.d.translate(err))
	}
	return &p, nil
}

func (s *queries) UpdateProduct(ctx context.Context, p inventory.Product) error {
	res, err := s.exec(ctx, `
		UPDATE products SET name = ?, location = ?, price = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, string(p.Location), p.Price, p.UpdatedAt.UTC(), string(p.ID))
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return mustAffect(res, inventory.ProductNotFound(p.ID))
}

func (s *queries) DeleteProduct(ctx context.Context, id inventory.ProductID) error {
	res, err := s.exec(ctx, `DELETE FROM products WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return mustAffect(res, inventory.ProductNotFound(id))
}

func (s *queries) ListProducts(ctx context.Context, f inventory.ProductFilter) ([]inventory.Product, error) {
	var where []string
	var args []any
	if f.Location != "" {
		where = append(where, "location = ?")
		args = append(args, string(f.Location))
	}
	if f.Search != "" {
		where = append(where, s.d.contains("name"))
		args = append(args, likePattern(f.Search))
	}
	if len(f.IDs) > 0 {
		marks := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			marks[i] = "?"
			args = append(args, string(id))
		}
		where = append(where, "id IN ("+strings.Join(marks, ", ")+")")
	}

	rows, err := s.query(ctx, `SELECT `+productColumns+` FROM products`+whereClause(where)+
		` ORDER BY LOWER(name), id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []inventory.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// ENTRIES
// =============================================================================

const entryColumns = `e.id, e.product_id, e.type, e.quantity, e.entry_date, e.description, e.opening, e.created_at, e.updated_at`

func (s *queries) AppendEntry(ctx context.Context, e inventory.Entry) error {
	_, err := s.exec(ctx, `
		INSERT INTO entries (id, product_id, type, quantity, entry_date, description, opening, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(e.ID), string(e.ProductID), string(e.Type), e.Quantity, e.Date, e.Description, e.Opening,
		e.CreatedAt.UTC(), e.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (s *queries) GetEntry(ctx context.Context, id inventory.EntryID) (*inventory.Entry, error) {
	row := s.queryRow(ctx, `SELECT `+entryColumns+` FROM entries e WHERE e.id = ?`, string(id))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.EntryNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entry: %w", s.d.translate(err))
	}
	return &e, nil
}

func (s *queries) UpdateEntry(ctx context.Context, e inventory.Entry) error {
	res, err := s.exec(ctx, `
		UPDATE entries SET type = ?, quantity = ?, entry_date = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, string(e.Type), e.Quantity, e.Date, e.Description, e.UpdatedAt.UTC(), string(e.ID))
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return mustAffect(res, inventory.EntryNotFound(e.ID))
}

func (s *queries) DeleteEntry(ctx context.Context, id inventory.EntryID) error {
	res, err := s.exec(ctx, `DELETE FROM entries WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return mustAffect(res, inventory.EntryNotFound(id))
}

func (s *queries) DeleteEntriesByProduct(ctx context.Context, id inventory.ProductID) (int, error) {
	res, err := s.exec(ctx, `DELETE FROM entries WHERE product_id = ?`, string(id))
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *queries) ListEntries(ctx context.Context, f inventory.EntryFilter) ([]inventory.Entry, error) {
	var where []string
	var args []any
	if f.ProductID != "" {
		where = append(where, "e.product_id = ?")
		args = append(args, string(f.ProductID))
	}
	if f.Location != "" {
		where = append(where, "p.location = ?")
		args = append(args, string(f.Location))
	}
	if f.Date != nil {
		where = append(where, "e.entry_date = ?")
		args = append(args, *f.Date)
	}
	if f.Type != "" {
		where = append(where, "e.type = ?")
		args = append(args, string(f.Type))
	}
	if f.Search != "" {
		where = append(where, s.d.contains("e.description"))
		args = append(args, likePattern(f.Search))
	}

	rows, err := s.query(ctx, `
		SELECT `+entryColumns+`
		FROM entries e JOIN products p ON p.id = e.product_id`+whereClause(where)+`
		ORDER BY e.entry_date, e.created_at, e.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	entries := []inventory.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SALES
// =============================================================================

const saleColumns = `id, product_id, product_name, sale_date, location, quantity, price, total,
	description, receiver, transaction_id, created_at, updated_at`

func (s *queries) CreateSale(ctx context.Context, sale inventory.Sale) error {
	_, err := s.exec(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(sale.ID), string(sale.ProductID), sale.ProductName, sale.Date, string(sale.Location),
		sale.Quantity, sale.Price, sale.Total, sale.Description, sale.Receiver,
		nullString(string(sale.TransactionID)), sale.CreatedAt.UTC(), sale.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	return nil
}

func (s *queries) GetSale(ctx context.Context, id inventory.SaleID) (*inventory.Sale, error) {
	row := s.queryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, string(id))
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.SaleNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sale: %w", s.d.translate(err))
	}
	return &sale, nil
}

func (s *queries) GetSaleByEntry(ctx context.Context, id inventory.EntryID) (*inventory.Sale, error) {
	row := s.queryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE transaction_id = ?`, string(id))
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sale by entry: %w", s.d.translate(err))
	}
	return &sale, nil
}

func (s *queries) UpdateSale(ctx context.Context, sale inventory.Sale) error {
	res, err := s.exec(ctx, `
		UPDATE sales SET product_name = ?, sale_date = ?, location = ?, quantity = ?, price = ?, total = ?,
			description = ?, receiver = ?, transaction_id = ?, updated_at = ?
		WHERE id = ?
	`, sale.ProductName, sale.Date, string(sale.Location), sale.Quantity, sale.Price, sale.Total,
		sale.Description, sale.Receiver, nullString(string(sale.TransactionID)), sale.UpdatedAt.UTC(),
		string(sale.ID))
	if err != nil {
		return fmt.Errorf("failed to update sale: %w", err)
	}
	return mustAffect(res, inventory.SaleNotFound(sale.ID))
}

func (s *queries) DeleteSale(ctx context.Context, id inventory.SaleID) error {
	res, err := s.exec(ctx, `DELETE FROM sales WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	return mustAffect(res, inventory.SaleNotFound(id))
}

func (s *queries) DeleteSalesByProduct(ctx context.Context, id inventory.ProductID) (int, error) {
	res, err := s.exec(ctx, `DELETE FROM sales WHERE product_id = ?`, string(id))
	if err != nil {
		return 0, fmt.Errorf("failed to delete sales: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *queries) ListSales(ctx context.Context, f inventory.SaleFilter) ([]inventory.Sale, error) {
	var where []string
	var args []any
	if f.ProductID != "" {
		where = append(where, "product_id = ?")
		args = append(args, string(f.ProductID))
	}
	if f.Date != nil {
		where = append(where, "sale_date = ?")
		args = append(args, *f.Date)
	}
	if f.Location != "" {
		where = append(where, "location = ?")
		args = append(args, string(f.Location))
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		where = append(where, "("+s.d.contains("product_name")+" OR "+
			s.d.contains("description")+" OR "+s.d.contains("receiver")+")")
		args = append(args, pattern, pattern, pattern)
	}

	rows, err := s.query(ctx, `SELECT `+saleColumns+` FROM sales`+whereClause(where)+
		` ORDER BY sale_date, created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	sales := []inventory.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (inventory.Product, error) {
	var p inventory.Product
	var id, location string
	err := row.Scan(&id, &p.Name, &location, &p.InitialBalance, &p.Price, &p.DateAdded,
		&p.CreatedAt, &p.UpdatedAt)
	p.ID = inventory.ProductID(id)
	p.Location = inventory.Location(location)
	return p, err
}

func scanEntry(row scanner) (inventory.Entry, error) {
	var e inventory.Entry
	var id, productID, typ string
	err := row.Scan(&id, &productID, &typ, &e.Quantity, &e.Date, &e.Description, &e.Opening,
		&e.CreatedAt, &e.UpdatedAt)
	e.ID = inventory.EntryID(id)
	e.ProductID = inventory.ProductID(productID)
	e.Type = inventory.EntryType(typ)
	return e, err
}

func scanSale(row scanner) (inventory.Sale, error) {
	var sale inventory.Sale
	var id, productID, location string
	var transactionID sql.NullString
	err := row.Scan(&id, &productID, &sale.ProductName, &sale.Date, &location, &sale.Quantity,
		&sale.Price, &sale.Total, &sale.Description, &sale.Receiver, &transactionID,
		&sale.CreatedAt, &sale.UpdatedAt)
	sale.ID = inventory.SaleID(id)
	sale.ProductID = inventory.ProductID(productID)
	sale.Location = inventory.Location(location)
	sale.TransactionID = inventory.EntryID(transactionID.String)
	return sale, err
}

// =============================================================================
// HELPERS
// =============================================================================

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// likePattern matches term literally anywhere in a folded column.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
