package tracker_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/store/sqlite"
	"github.com/warp/stockbook/tracker"
)

func newSQLiteTracker(t *testing.T) *tracker.Tracker {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return newTrackerWithStore(t, s)
}

func TestSQLite_SaleLifecycle(t *testing.T) {
	// GIVEN: A SQLite-backed tracker
	// WHEN: Receiving stock, selling, updating and deleting the sale
	// THEN: Balances and the ledger behave exactly like the memory store

	ctx := context.Background()
	tr := newSQLiteTracker(t)
	p := createProduct(t, tr, "Honey", mainStore, "10", "4.25")
	addStock(t, tr, p.ID, "2", march10)

	r := sell(t, tr, p, "3")
	assertDecimal(t, "12.75", r.Sale.Total)
	assertDecimal(t, "9", balanceOf(t, tr, p.ID))

	_, err := tr.RecordSale(ctx, tracker.SaleInput{ProductID: p.ID, Location: mainStore, Quantity: dec("10")})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	_, err = tr.UpdateSale(ctx, r.Sale.ID, tracker.UpdateSaleInput{Quantity: decPtr("3"), Price: decPtr("20")})
	require.NoError(t, err)
	sale, err := tr.GetSale(ctx, r.Sale.ID)
	require.NoError(t, err)
	assertDecimal(t, "60", sale.Total)
	assert.Equal(t, march10, sale.Date)

	require.NoError(t, tr.DeleteSale(ctx, r.Sale.ID))
	assertDecimal(t, "12", balanceOf(t, tr, p.ID))

	report, err := tr.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestSQLite_BatchRollsBack(t *testing.T) {
	ctx := context.Background()
	tr := newSQLiteTracker(t)
	a := createProduct(t, tr, "Honey", mainStore, "10", "4")
	b := createProduct(t, tr, "Wax", mainStore, "1", "2")

	_, err := tr.RecordSalesBatch(ctx, tracker.SalesBatchInput{
		Location: mainStore,
		Items: []tracker.SalesBatchItem{
			{ProductID: a.ID, Quantity: dec("2")},
			{ProductID: b.ID, Quantity: dec("2")},
		},
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Empty(t, allSales(t, tr))
	assertDecimal(t, "10", balanceOf(t, tr, a.ID))
}

func TestSQLite_ClearHistoryAndDeleteByDate(t *testing.T) {
	ctx := context.Background()
	tr := newSQLiteTracker(t)
	p := createProduct(t, tr, "Honey", mainStore, "10", "4")
	sell(t, tr, p, "1")
	sell(t, tr, p, "2")

	_, err := tr.ClearProductHistory(ctx, p.ID)
	require.NoError(t, err)

	report, err := tr.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Len(t, report.DanglingSales, 2)

	result, err := tr.DeleteAllSalesForDate(ctx, march10, mainStore)
	require.NoError(t, err)
	assert.Equal(t, 2, result.DeletedCount)
	assert.Empty(t, result.Errors)
	assertDecimal(t, "10", balanceOf(t, tr, p.ID))
}

func TestSQLite_ConcurrentSales(t *testing.T) {
	ctx := context.Background()
	tr := newSQLiteTracker(t)
	p := createProduct(t, tr, "Honey", mainStore, "5", "4")

	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.RecordSale(ctx, tracker.SaleInput{ProductID: p.ID, Location: mainStore, Quantity: dec("1")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	sold := 0
	for err := range errs {
		if err == nil {
			sold++
			continue
		}
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	}
	assert.Equal(t, 5, sold)
	assertDecimal(t, "0", balanceOf(t, tr, p.ID))
}
