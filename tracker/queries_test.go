package tracker_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/cache"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/tracker"
)

// =============================================================================
// PRODUCTS WITH BALANCE
// =============================================================================

func TestListProductsWithBalance_SortedAndFiltered(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	createProduct(t, tr, "banana", mainStore, "1", "1")
	createProduct(t, tr, "Apple", mainStore, "2", "1")
	createProduct(t, tr, "Cherry", mainStore, "3", "1")
	createProduct(t, tr, "Anchor", warehouse, "4", "1")

	all, err := tr.ListProductsWithBalance(ctx, tracker.ProductQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"Anchor", "Apple", "banana", "Cherry"}, productNames(all))

	main, err := tr.ListProductsWithBalance(ctx, tracker.ProductQuery{Location: mainStore})
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple", "banana", "Cherry"}, productNames(main))

	search, err := tr.ListProductsWithBalance(ctx, tracker.ProductQuery{Search: "AN"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Anchor", "banana"}, productNames(search))
	assertDecimal(t, "4", search[0].Balance.Balance)
}

func TestListProductsWithBalance_IdempotentReread(t *testing.T) {
	// GIVEN: Products with mixed history
	// WHEN: Listing twice with no writes in between
	// THEN: Identical figures

	ctx := context.Background()
	tr := newTracker(t)
	a := createProduct(t, tr, "Apple", mainStore, "10", "1")
	b := createProduct(t, tr, "Banana", mainStore, "5", "1")
	addStock(t, tr, a.ID, "3", march10)
	sell(t, tr, a, "4")
	sell(t, tr, b, "5")

	first, err := tr.ListProductsWithBalance(ctx, tracker.ProductQuery{})
	require.NoError(t, err)
	second, err := tr.ListProductsWithBalance(ctx, tracker.ProductQuery{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assertDecimal(t, "9", first[0].Balance.Balance)
	assertDecimal(t, "0", first[1].Balance.Balance)
}

func TestListProductsWithBalance_AsOf(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	a := createProduct(t, tr, "Apple", mainStore, "10", "1")
	addStock(t, tr, a.ID, "3", march10)
	addStock(t, tr, a.ID, "4", march11)

	list, err := tr.ListProductsWithBalance(ctx, tracker.ProductQuery{AsOf: &march10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assertDecimal(t, "13", list[0].Balance.Balance)
}

func productNames(list []inventory.ProductBalance) []string {
	names := make([]string, len(list))
	for i, pb := range list {
		names[i] = pb.Name
	}
	return names
}

// =============================================================================
// BALANCE CACHE
// =============================================================================

func TestBalanceCache_WritesInvalidate(t *testing.T) {
	// GIVEN: A tracker with a memory balance cache
	// WHEN: Reading a balance, then selling
	// THEN: The read fills the cache, the sale empties it, the next read is fresh

	ctx := context.Background()
	c := cache.NewMemory()
	tr := newTracker(t, tracker.WithCache(c, time.Minute))
	p := createProduct(t, tr, "Tea", mainStore, "10", "1")

	assertDecimal(t, "10", balanceOf(t, tr, p.ID))
	assert.Equal(t, 1, c.Len())

	r := sell(t, tr, p, "4")
	assert.Equal(t, 0, c.Len(), "sale invalidates")
	assertDecimal(t, "6", balanceOf(t, tr, p.ID))

	_, err := tr.UpdateSale(ctx, r.Sale.ID, tracker.UpdateSaleInput{Quantity: decPtr("5")})
	require.NoError(t, err)
	assertDecimal(t, "5", balanceOf(t, tr, p.ID))

	_, err = tr.ClearProductHistory(ctx, p.ID)
	require.NoError(t, err)
	assertDecimal(t, "10", balanceOf(t, tr, p.ID))
}

func TestBalanceCache_ListUsesAndFillsCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	tr := newTracker(t, tracker.WithCache(c, time.Minute))
	a := createProduct(t, tr, "Apple", mainStore, "10", "1")
	createProduct(t, tr, "Banana", mainStore, "5", "1")

	list, err := tr.ListProductsWithBalance(ctx, tracker.ProductQuery{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 2, c.Len())

	sell(t, tr, a, "3")
	assert.Equal(t, 1, c.Len())

	list, err = tr.ListProductsWithBalance(ctx, tracker.ProductQuery{})
	require.NoError(t, err)
	assertDecimal(t, "7", list[0].Balance.Balance)
	assertDecimal(t, "5", list[1].Balance.Balance)
	assert.Equal(t, 2, c.Len())
}

// =============================================================================
// SALES AND TRANSACTIONS
// =============================================================================

func TestListSales_NewestFirstAndPaged(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	p := createProduct(t, tr, "Gum", mainStore, "100", "1")

	var ids []inventory.SaleID
	for i := 0; i < 5; i++ {
		ids = append(ids, sell(t, tr, p, "1").Sale.ID)
	}
	late, err := tr.RecordSale(ctx, tracker.SaleInput{ProductID: p.ID, Location: mainStore, Date: march11, Quantity: dec("1")})
	require.NoError(t, err)

	page, err := tr.ListSales(ctx, tracker.SaleQuery{}, inventory.PageRequest{Page: 1, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Items, 4)
	assert.Equal(t, late.Sale.ID, page.Items[0].ID, "later date first")
	assert.Equal(t, ids[4], page.Items[1].ID, "then newest on the same day")

	page2, err := tr.ListSales(ctx, tracker.SaleQuery{}, inventory.PageRequest{Page: 2, Limit: 4})
	require.NoError(t, err)
	require.Len(t, page2.Items, 2)
	assert.Equal(t, ids[0], page2.Items[1].ID)

	byDate, err := tr.ListSales(ctx, tracker.SaleQuery{Date: &march11}, inventory.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, byDate.Total)
	assert.Equal(t, inventory.DefaultPageLimit, byDate.Limit)
}

func TestListSales_Search(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	p := createProduct(t, tr, "Gum", mainStore, "100", "1")
	q := createProduct(t, tr, "Mints", mainStore, "100", "1")

	_, err := tr.RecordSale(ctx, tracker.SaleInput{ProductID: p.ID, Location: mainStore, Quantity: dec("1"), Receiver: "Mrs. Okafor"})
	require.NoError(t, err)
	_, err = tr.RecordSale(ctx, tracker.SaleInput{ProductID: q.ID, Location: mainStore, Quantity: dec("1"), Description: "staff lunch"})
	require.NoError(t, err)

	for _, tc := range []struct {
		search string
		want   int
	}{{"okafor", 1}, {"MINTS", 1}, {"LUNCH", 1}, {"", 2}, {"zzz", 0}} {
		page, err := tr.ListSales(ctx, tracker.SaleQuery{Search: tc.search}, inventory.PageRequest{})
		require.NoError(t, err)
		assert.Equal(t, tc.want, page.Total, "search %q", tc.search)
	}
}

func TestListTransactionsForProduct(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	p := createProduct(t, tr, "Gum", mainStore, "0", "1")
	for i := 0; i < 3; i++ {
		_, err := tr.AddStockEntry(ctx, tracker.StockEntryInput{ProductID: p.ID, Quantity: dec("1"), Description: fmt.Sprintf("delivery %d", i)})
		require.NoError(t, err)
	}
	_, err := tr.AddStockEntry(ctx, tracker.StockEntryInput{ProductID: p.ID, Quantity: dec("1"), Description: "return", Date: march11})
	require.NoError(t, err)

	page, err := tr.ListTransactionsForProduct(ctx, p.ID, "", inventory.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 4, page.Total)
	assert.Equal(t, "return", page.Items[0].Description)
	assert.Equal(t, "delivery 2", page.Items[1].Description)

	page, err = tr.ListTransactionsForProduct(ctx, p.ID, "DELIVERY", inventory.PageRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)

	_, err = tr.ListTransactionsForProduct(ctx, "missing", "", inventory.PageRequest{})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestListTransactions_ByLocationDateAndType(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	a := createProduct(t, tr, "Gum", mainStore, "10", "1")
	w := createProduct(t, tr, "Crate", warehouse, "10", "1")
	addStock(t, tr, a.ID, "1", march10)
	addStock(t, tr, w.ID, "1", march10)
	sell(t, tr, a, "2")

	entries, err := tr.ListTransactions(ctx, tracker.EntryQuery{Location: mainStore, Date: &march10, Type: inventory.EntryIn})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, a.ID, entries[0].ProductID)

	entries, err = tr.ListTransactions(ctx, tracker.EntryQuery{Location: mainStore, Date: &march10, Type: inventory.EntryOut})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assertDecimal(t, "2", entries[0].Quantity)
}

func TestListTransactions_RequiresProductOrFullSelector(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	_, err := tr.ListTransactions(ctx, tracker.EntryQuery{Location: mainStore})
	var verr *inventory.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "date")
	assert.Contains(t, verr.Fields, "type")
	assert.NotContains(t, verr.Fields, "location")

	_, err = tr.ListTransactions(ctx, tracker.EntryQuery{Location: mainStore, Date: &march10, Type: "both"})
	assert.ErrorIs(t, err, inventory.ErrValidation)

	_, err = tr.ListTransactions(ctx, tracker.EntryQuery{ProductID: "missing"})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

// =============================================================================
// SALE DATES
// =============================================================================

func TestListAvailableSaleDates_IgnoresDatesWithoutValidSales(t *testing.T) {
	// GIVEN: A product with a stock entry on 2024-01-01 and no sale
	// WHEN: Listing sale dates for the location
	// THEN: The list is empty

	ctx := context.Background()
	tr := newTracker(t)
	p := createProduct(t, tr, "Gum", mainStore, "10", "1")
	addStock(t, tr, p.ID, "5", inventory.NewDate(2024, time.January, 1))

	dates, err := tr.ListAvailableSaleDates(ctx, mainStore)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestListAvailableSaleDates_CountsAndSorts(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	p := createProduct(t, tr, "Gum", mainStore, "20", "2")
	free := createProduct(t, tr, "Sample", mainStore, "20", "0")
	w := createProduct(t, tr, "Crate", warehouse, "20", "2")

	sell(t, tr, p, "1")
	sell(t, tr, p, "2")
	sell(t, tr, w, "1")
	_, err := tr.RecordSale(ctx, tracker.SaleInput{ProductID: p.ID, Location: mainStore, Date: march11, Quantity: dec("1")})
	require.NoError(t, err)
	_, err = tr.RecordSale(ctx, tracker.SaleInput{ProductID: free.ID, Location: mainStore, Date: inventory.NewDate(2024, time.March, 12), Quantity: dec("1")})
	require.NoError(t, err)

	dates, err := tr.ListAvailableSaleDates(ctx, mainStore)
	require.NoError(t, err)
	require.Len(t, dates, 2, "a zero-total day is not a sale date")

	assert.Equal(t, march11, dates[0].Date)
	assert.Equal(t, 1, dates[0].Count)
	assertDecimal(t, "2", dates[0].Total)

	assert.Equal(t, march10, dates[1].Date)
	assert.Equal(t, 2, dates[1].Count)
	assertDecimal(t, "6", dates[1].Total)

	_, err = tr.ListAvailableSaleDates(ctx, "")
	assert.ErrorIs(t, err, inventory.ErrValidation)
}

func TestSalesForDate_Totals(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	p := createProduct(t, tr, "Gum", mainStore, "20", "2")
	q := createProduct(t, tr, "Mints", mainStore, "20", "0.5")
	sell(t, tr, p, "3")
	sell(t, tr, q, "4")

	day, err := tr.SalesForDate(ctx, march10, mainStore)
	require.NoError(t, err)
	require.Len(t, day.Sales, 2)
	assert.Equal(t, "Gum", day.Sales[0].ProductName)
	assertDecimal(t, "7", day.Quantity)
	assertDecimal(t, "8", day.Total)

	empty, err := tr.SalesForDate(ctx, march11, mainStore)
	require.NoError(t, err)
	assert.NotNil(t, empty.Sales)
	assert.Empty(t, empty.Sales)
}
