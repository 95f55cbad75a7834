// Package storetest is a conformance suite every inventory.TxStore must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/inventory"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) inventory.TxStore

// Run exercises newStore against the inventory.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("Products", func(t *testing.T) { testProducts(t, newStore(t)) })
	t.Run("ProductFilters", func(t *testing.T) { testProductFilters(t, newStore(t)) })
	t.Run("SearchIsLiteral", func(t *testing.T) { testSearchIsLiteral(t, newStore(t)) })
	t.Run("Entries", func(t *testing.T) { testEntries(t, newStore(t)) })
	t.Run("EntryFilters", func(t *testing.T) { testEntryFilters(t, newStore(t)) })
	t.Run("Sales", func(t *testing.T) { testSales(t, newStore(t)) })
	t.Run("SaleFilters", func(t *testing.T) { testSaleFilters(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("Reset", func(t *testing.T) { testReset(t, newStore(t)) })
}

// =============================================================================
// FIXTURES
// =============================================================================

var (
	base    = time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	day10   = inventory.NewDate(2024, time.March, 10)
	day11   = inventory.NewDate(2024, time.March, 11)
	errOops = errors.New("oops")
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

func product(id, name string, loc inventory.Location) inventory.Product {
	return inventory.Product{
		ID:             inventory.ProductID(id),
		Name:           name,
		Location:       loc,
		InitialBalance: dec("10"),
		Price:          dec("2.5"),
		DateAdded:      day10,
		CreatedAt:      at(0),
		UpdatedAt:      at(0),
	}
}

func entry(id string, p inventory.ProductID, typ inventory.EntryType, qty string, d inventory.Date, sec int) inventory.Entry {
	return inventory.Entry{
		ID:          inventory.EntryID(id),
		ProductID:   p,
		Type:        typ,
		Quantity:    dec(qty),
		Date:        d,
		Description: fmt.Sprintf("entry %s", id),
		CreatedAt:   at(sec),
		UpdatedAt:   at(sec),
	}
}

func sale(id string, p inventory.Product, e inventory.Entry, price string) inventory.Sale {
	return inventory.Sale{
		ID:            inventory.SaleID(id),
		ProductID:     p.ID,
		ProductName:   p.Name,
		Date:          e.Date,
		Location:      p.Location,
		Quantity:      e.Quantity,
		Price:         dec(price),
		Total:         inventory.SaleTotal(e.Quantity, dec(price)),
		TransactionID: e.ID,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func entryIDs(entries []inventory.Entry) []inventory.EntryID {
	ids := make([]inventory.EntryID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func saleIDs(sales []inventory.Sale) []inventory.SaleID {
	ids := make([]inventory.SaleID, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
	}
	return ids
}

func productNames(products []inventory.Product) []string {
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.Name
	}
	return names
}

// =============================================================================
// PRODUCTS
// =============================================================================

func testProducts(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	p := product("p1", "Rice", "Main Store")

	require.NoError(t, s.CreateProduct(ctx, p))
	assert.ErrorIs(t, s.CreateProduct(ctx, p), inventory.ErrDuplicate)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Location, got.Location)
	assert.True(t, p.InitialBalance.Equal(got.InitialBalance))
	assert.True(t, p.Price.Equal(got.Price))
	assert.True(t, p.DateAdded.Equal(got.DateAdded))
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))

	p.Name = "Rice 5kg"
	p.Price = dec("3.75")
	p.UpdatedAt = at(5)
	require.NoError(t, s.UpdateProduct(ctx, p))

	got, err = s.GetProductForUpdate(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rice 5kg", got.Name)
	assert.True(t, dec("3.75").Equal(got.Price))

	_, err = s.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	assert.ErrorIs(t, s.UpdateProduct(ctx, product("missing", "x", "Main Store")), inventory.ErrNotFound)

	require.NoError(t, s.DeleteProduct(ctx, p.ID))
	assert.ErrorIs(t, s.DeleteProduct(ctx, p.ID), inventory.ErrNotFound)
	_, err = s.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func testProductFilters(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	for _, p := range []inventory.Product{
		product("p1", "banana", "Main Store"),
		product("p2", "Apple", "Main Store"),
		product("p3", "Anchor", "Warehouse"),
	} {
		require.NoError(t, s.CreateProduct(ctx, p))
	}

	all, err := s.ListProducts(ctx, inventory.ProductFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Anchor", "Apple", "banana"}, productNames(all))

	main, err := s.ListProducts(ctx, inventory.ProductFilter{Location: "Main Store"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple", "banana"}, productNames(main))

	search, err := s.ListProducts(ctx, inventory.ProductFilter{Search: "AN"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Anchor", "banana"}, productNames(search))

	byID, err := s.ListProducts(ctx, inventory.ProductFilter{IDs: []inventory.ProductID{"p1", "p3", "nope"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Anchor", "banana"}, productNames(byID))

	none, err := s.ListProducts(ctx, inventory.ProductFilter{Location: "Kiosk"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// testSearchIsLiteral pins search terms to plain substrings: LIKE
// metacharacters in the term match only themselves.
func testSearchIsLiteral(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	rice := product("p1", "Rice 5kg", "Main Store")
	beans := product("p2", "Beans", "Main Store")
	flour := product("p3", "Flour 100%", "Main Store")
	for _, p := range []inventory.Product{rice, beans, flour} {
		require.NoError(t, s.CreateProduct(ctx, p))
	}

	for search, want := range map[string][]string{
		"_":      nil,
		"%":      {"Flour 100%"},
		"0%":     {"Flour 100%"},
		`\`:     nil,
		"r%e":    nil,
		"BEANS":  {"Beans"},
		"ice 5k": {"Rice 5kg"},
	} {
		got, err := s.ListProducts(ctx, inventory.ProductFilter{Search: search})
		require.NoError(t, err)
		if want == nil {
			assert.Empty(t, got, "search %q", search)
			continue
		}
		assert.Equal(t, want, productNames(got), "search %q", search)
	}

	e1 := entry("e1", rice.ID, inventory.EntryIn, "1", day10, 1)
	e1.Description = "Top-up 50% off"
	e2 := entry("e2", rice.ID, inventory.EntryOut, "1", day10, 2)
	e2.Description = "Sold"
	for _, e := range []inventory.Entry{e1, e2} {
		require.NoError(t, s.AppendEntry(ctx, e))
	}
	entries, err := s.ListEntries(ctx, inventory.EntryFilter{ProductID: rice.ID, Search: "%"})
	require.NoError(t, err)
	assert.Equal(t, []inventory.EntryID{"e1"}, entryIDs(entries))

	sl := sale("s1", rice, e2, "2")
	require.NoError(t, s.CreateSale(ctx, sl))
	sales, err := s.ListSales(ctx, inventory.SaleFilter{Search: "_"})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

// =============================================================================
// ENTRIES
// =============================================================================

func testEntries(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	p := product("p1", "Rice", "Main Store")
	require.NoError(t, s.CreateProduct(ctx, p))

	e := entry("e1", p.ID, inventory.EntryIn, "5.5", day10, 1)
	e.Opening = true
	require.NoError(t, s.AppendEntry(ctx, e))
	assert.ErrorIs(t, s.AppendEntry(ctx, e), inventory.ErrDuplicate)
	assert.ErrorIs(t, s.AppendEntry(ctx, entry("e2", "ghost", inventory.EntryIn, "1", day10, 2)), inventory.ErrNotFound)

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.EntryIn, got.Type)
	assert.True(t, dec("5.5").Equal(got.Quantity))
	assert.True(t, day10.Equal(got.Date))
	assert.Equal(t, "entry e1", got.Description)
	assert.True(t, got.Opening)

	e.Quantity = dec("6")
	e.Date = day11
	e.Type = inventory.EntryOut
	require.NoError(t, s.UpdateEntry(ctx, e))
	got, err = s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, dec("6").Equal(got.Quantity))
	assert.True(t, day11.Equal(got.Date))
	assert.Equal(t, inventory.EntryOut, got.Type)

	assert.ErrorIs(t, s.UpdateEntry(ctx, entry("missing", p.ID, inventory.EntryIn, "1", day10, 3)), inventory.ErrNotFound)

	require.NoError(t, s.DeleteEntry(ctx, e.ID))
	assert.ErrorIs(t, s.DeleteEntry(ctx, e.ID), inventory.ErrNotFound)
	_, err = s.GetEntry(ctx, e.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEntry(ctx, entry(fmt.Sprintf("x%d", i), p.ID, inventory.EntryIn, "1", day10, 10+i)))
	}
	n, err := s.DeleteEntriesByProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.DeleteEntriesByProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testEntryFilters(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	a := product("a", "Apple", "Main Store")
	w := product("w", "Crate", "Warehouse")
	require.NoError(t, s.CreateProduct(ctx, a))
	require.NoError(t, s.CreateProduct(ctx, w))

	// Inserted out of order on purpose.
	for _, e := range []inventory.Entry{
		entry("e3", a.ID, inventory.EntryOut, "1", day11, 1),
		entry("e1", a.ID, inventory.EntryIn, "5", day10, 2),
		entry("e2", a.ID, inventory.EntryOut, "2", day10, 3),
		entry("w1", w.ID, inventory.EntryIn, "9", day10, 4),
	} {
		require.NoError(t, s.AppendEntry(ctx, e))
	}

	all, err := s.ListEntries(ctx, inventory.EntryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []inventory.EntryID{"e1", "e2", "w1", "e3"}, entryIDs(all))

	byProduct, err := s.ListEntries(ctx, inventory.EntryFilter{ProductID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, []inventory.EntryID{"e1", "e2", "e3"}, entryIDs(byProduct))

	selector, err := s.ListEntries(ctx, inventory.EntryFilter{Location: "Main Store", Date: &day10, Type: inventory.EntryOut})
	require.NoError(t, err)
	assert.Equal(t, []inventory.EntryID{"e2"}, entryIDs(selector))

	warehouse, err := s.ListEntries(ctx, inventory.EntryFilter{Location: "Warehouse"})
	require.NoError(t, err)
	assert.Equal(t, []inventory.EntryID{"w1"}, entryIDs(warehouse))

	search, err := s.ListEntries(ctx, inventory.EntryFilter{Search: "ENTRY E"})
	require.NoError(t, err)
	assert.Equal(t, []inventory.EntryID{"e1", "e2", "e3"}, entryIDs(search))
}

// =============================================================================
// SALES
// =============================================================================

func testSales(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	p := product("p1", "Rice", "Main Store")
	require.NoError(t, s.CreateProduct(ctx, p))
	e := entry("e1", p.ID, inventory.EntryOut, "3", day10, 1)
	require.NoError(t, s.AppendEntry(ctx, e))

	sl := sale("s1", p, e, "2.5")
	sl.Receiver = "Ana"
	require.NoError(t, s.CreateSale(ctx, sl))
	assert.ErrorIs(t, s.CreateSale(ctx, sl), inventory.ErrDuplicate)

	got, err := s.GetSale(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rice", got.ProductName)
	assert.Equal(t, inventory.Location("Main Store"), got.Location)
	assert.True(t, dec("7.5").Equal(got.Total))
	assert.Equal(t, e.ID, got.TransactionID)
	assert.Equal(t, "Ana", got.Receiver)

	byEntry, err := s.GetSaleByEntry(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, byEntry)
	assert.Equal(t, sl.ID, byEntry.ID)

	plain := entry("e2", p.ID, inventory.EntryIn, "1", day10, 2)
	require.NoError(t, s.AppendEntry(ctx, plain))
	none, err := s.GetSaleByEntry(ctx, plain.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	sl.Quantity = dec("4")
	sl.Price = dec("20")
	sl.Total = dec("80")
	sl.Description = "edited"
	require.NoError(t, s.UpdateSale(ctx, sl))
	got, err = s.GetSale(ctx, sl.ID)
	require.NoError(t, err)
	assert.True(t, dec("80").Equal(got.Total))
	assert.Equal(t, "edited", got.Description)

	require.NoError(t, s.DeleteSale(ctx, sl.ID))
	assert.ErrorIs(t, s.DeleteSale(ctx, sl.ID), inventory.ErrNotFound)
	_, err = s.GetSale(ctx, sl.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	assert.ErrorIs(t, s.UpdateSale(ctx, sl), inventory.ErrNotFound)

	// A sale may outlive its entry.
	dangling := sale("s2", p, e, "1")
	require.NoError(t, s.CreateSale(ctx, dangling))
	_, err = s.DeleteEntriesByProduct(ctx, p.ID)
	require.NoError(t, err)
	_, err = s.GetSale(ctx, dangling.ID)
	require.NoError(t, err)

	n, err := s.DeleteSalesByProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testSaleFilters(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	a := product("a", "Apple", "Main Store")
	w := product("w", "Crate", "Warehouse")
	require.NoError(t, s.CreateProduct(ctx, a))
	require.NoError(t, s.CreateProduct(ctx, w))

	e1 := entry("e1", a.ID, inventory.EntryOut, "1", day11, 1)
	e2 := entry("e2", a.ID, inventory.EntryOut, "2", day10, 2)
	e3 := entry("e3", w.ID, inventory.EntryOut, "3", day10, 3)
	e4 := entry("e4", a.ID, inventory.EntryOut, "4", day10, 4)
	for _, e := range []inventory.Entry{e1, e2, e3, e4} {
		require.NoError(t, s.AppendEntry(ctx, e))
	}

	s1 := sale("s1", a, e1, "1")
	s2 := sale("s2", a, e2, "1")
	s2.Receiver = "Mrs. Okafor"
	s3 := sale("s3", w, e3, "1")
	s4 := sale("s4", a, e4, "1")
	s4.Description = "Staff lunch"
	for _, sl := range []inventory.Sale{s1, s2, s3, s4} {
		require.NoError(t, s.CreateSale(ctx, sl))
	}

	all, err := s.ListSales(ctx, inventory.SaleFilter{})
	require.NoError(t, err)
	assert.Equal(t, []inventory.SaleID{"s2", "s3", "s4", "s1"}, saleIDs(all))

	day, err := s.ListSales(ctx, inventory.SaleFilter{Date: &day10, Location: "Main Store"})
	require.NoError(t, err)
	assert.Equal(t, []inventory.SaleID{"s2", "s4"}, saleIDs(day))

	byProduct, err := s.ListSales(ctx, inventory.SaleFilter{ProductID: w.ID})
	require.NoError(t, err)
	assert.Equal(t, []inventory.SaleID{"s3"}, saleIDs(byProduct))

	for search, want := range map[string][]inventory.SaleID{
		"okafor": {"s2"},
		"LUNCH":  {"s4"},
		"crate":  {"s3"},
	} {
		got, err := s.ListSales(ctx, inventory.SaleFilter{Search: search})
		require.NoError(t, err)
		assert.Equal(t, want, saleIDs(got), "search %q", search)
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func testTransactions(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	p := product("p1", "Rice", "Main Store")
	e := entry("e1", p.ID, inventory.EntryOut, "1", day10, 1)

	// GIVEN: A transaction that writes a product, an entry and a sale, then fails
	// WHEN: It returns an error
	// THEN: Nothing it wrote is visible

	err := s.WithTx(ctx, func(tx inventory.Store) error {
		require.NoError(t, tx.CreateProduct(ctx, p))
		require.NoError(t, tx.AppendEntry(ctx, e))
		require.NoError(t, tx.CreateSale(ctx, sale("s1", p, e, "1")))

		_, err := tx.GetProductForUpdate(ctx, p.ID)
		require.NoError(t, err, "writes are visible inside the transaction")
		return errOops
	})
	assert.ErrorIs(t, err, errOops)

	_, err = s.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	_, err = s.GetSale(ctx, "s1")
	assert.ErrorIs(t, err, inventory.ErrNotFound)

	// Committed writes stick.
	err = s.WithTx(ctx, func(tx inventory.Store) error {
		if err := tx.CreateProduct(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, e); err != nil {
			return err
		}
		return tx.CreateSale(ctx, sale("s1", p, e, "1"))
	})
	require.NoError(t, err)

	_, err = s.GetSale(ctx, "s1")
	require.NoError(t, err)

	// A store error inside a transaction rolls back earlier writes too.
	err = s.WithTx(ctx, func(tx inventory.Store) error {
		if err := tx.AppendEntry(ctx, entry("e2", p.ID, inventory.EntryIn, "3", day10, 2)); err != nil {
			return err
		}
		return tx.CreateSale(ctx, sale("s1", p, e, "1"))
	})
	assert.ErrorIs(t, err, inventory.ErrDuplicate)
	_, err = s.GetEntry(ctx, "e2")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func testReset(t *testing.T, s inventory.TxStore) {
	r, ok := s.(inventory.Resetter)
	if !ok {
		t.Skip("store does not support Reset")
	}
	ctx := context.Background()
	p := product("p1", "Rice", "Main Store")
	e := entry("e1", p.ID, inventory.EntryOut, "1", day10, 1)
	require.NoError(t, s.CreateProduct(ctx, p))
	require.NoError(t, s.AppendEntry(ctx, e))
	require.NoError(t, s.CreateSale(ctx, sale("s1", p, e, "1")))

	require.NoError(t, r.Reset(ctx))

	products, err := s.ListProducts(ctx, inventory.ProductFilter{})
	require.NoError(t, err)
	assert.Empty(t, products)
	entries, err := s.ListEntries(ctx, inventory.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	sales, err := s.ListSales(ctx, inventory.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}
