package tracker_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/inventory/store"
	"github.com/warp/stockbook/lock"
	"github.com/warp/stockbook/tracker"
)

func TestAddStockBatch_ForeignLocationWritesNothing(t *testing.T) {
	// GIVEN: Two products at Main Store and one at Warehouse
	// WHEN: A Main Store batch includes the Warehouse product
	// THEN: The batch is rejected and no entry is created for anyone

	ctx := context.Background()
	tr := newTracker(t)
	a := createProduct(t, tr, "Tape", mainStore, "1", "1")
	b := createProduct(t, tr, "Twine", mainStore, "1", "1")
	w := createProduct(t, tr, "Pallet", warehouse, "1", "1")

	_, err := tr.AddStockBatch(ctx, tracker.StockBatchInput{
		Date:     march10,
		Location: mainStore,
		Items: []tracker.StockBatchItem{
			{ProductID: a.ID, Quantity: dec("5")},
			{ProductID: w.ID, Quantity: dec("5")},
			{ProductID: b.ID, Quantity: dec("5")},
		},
	})
	require.Error(t, err)
	var verr *inventory.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items[1].productId", verr.Field)

	for _, id := range []inventory.ProductID{a.ID, b.ID, w.ID} {
		assert.Empty(t, entriesOf(t, tr, id))
	}
}

func TestAddStockBatch_UnknownProduct(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	a := createProduct(t, tr, "Tape", mainStore, "1", "1")

	_, err := tr.AddStockBatch(ctx, tracker.StockBatchInput{
		Location: mainStore,
		Items: []tracker.StockBatchItem{
			{ProductID: a.ID, Quantity: dec("5")},
			{ProductID: "ghost", Quantity: dec("5")},
		},
	})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	assert.Empty(t, entriesOf(t, tr, a.ID))
}

func TestAddStockBatch_CreatesAllEntries(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	a := createProduct(t, tr, "Tape", mainStore, "1", "1")
	b := createProduct(t, tr, "Twine", mainStore, "0", "1")

	entries, err := tr.AddStockBatch(ctx, tracker.StockBatchInput{
		Date:        march11,
		Location:    mainStore,
		Description: "Delivery #42",
		Items: []tracker.StockBatchItem{
			{ProductID: a.ID, Quantity: dec("5")},
			{ProductID: b.ID, Quantity: dec("3"), Description: "Short delivery"},
			{ProductID: a.ID, Quantity: dec("1")},
		},
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Delivery #42", entries[0].Description)
	assert.Equal(t, "Short delivery", entries[1].Description)
	assert.Equal(t, march11, entries[2].Date)

	assertDecimal(t, "7", balanceOf(t, tr, a.ID))
	assertDecimal(t, "3", balanceOf(t, tr, b.ID))
}

func TestAddStockBatch_RequiresItems(t *testing.T) {
	tr := newTracker(t)
	_, err := tr.AddStockBatch(context.Background(), tracker.StockBatchInput{Location: mainStore})

	var verr *inventory.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "items")
}

func TestRecordSalesBatch_AllOrNothingOnShortage(t *testing.T) {
	// GIVEN: Product A with 10 and product B with 1
	// WHEN: A batch sells 2 A and 2 B
	// THEN: Insufficient stock for B, and A keeps its 10

	ctx := context.Background()
	tr := newTracker(t)
	a := createProduct(t, tr, "Cola", mainStore, "10", "1.5")
	b := createProduct(t, tr, "Chips", mainStore, "1", "2")

	_, err := tr.RecordSalesBatch(ctx, tracker.SalesBatchInput{
		Date:     march10,
		Location: mainStore,
		Items: []tracker.SalesBatchItem{
			{ProductID: a.ID, Quantity: dec("2")},
			{ProductID: b.ID, Quantity: dec("2")},
		},
	})
	var ierr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, b.ID, ierr.ProductID)

	assertDecimal(t, "10", balanceOf(t, tr, a.ID))
	assertDecimal(t, "1", balanceOf(t, tr, b.ID))
	assert.Empty(t, allSales(t, tr))
	assert.Empty(t, entriesOf(t, tr, a.ID))
}

func TestRecordSalesBatch_AggregatesLinesPerProduct(t *testing.T) {
	// GIVEN: A product with balance 5
	// WHEN: Two lines of 3 each for that product
	// THEN: Rejected even though each line alone would fit

	ctx := context.Background()
	tr := newTracker(t)
	a := createProduct(t, tr, "Cola", mainStore, "5", "1.5")

	_, err := tr.RecordSalesBatch(ctx, tracker.SalesBatchInput{
		Location: mainStore,
		Items: []tracker.SalesBatchItem{
			{ProductID: a.ID, Quantity: dec("3")},
			{ProductID: a.ID, Quantity: dec("3")},
		},
	})
	var ierr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &ierr)
	assertDecimal(t, "6", ierr.Requested)
	assertDecimal(t, "5", ierr.Available)
	assertDecimal(t, "5", balanceOf(t, tr, a.ID))
}

func TestRecordSalesBatch_Success(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	a := createProduct(t, tr, "Cola", mainStore, "10", "1.5")
	b := createProduct(t, tr, "Chips", mainStore, "4", "2")

	receipts, err := tr.RecordSalesBatch(ctx, tracker.SalesBatchInput{
		Date:        march10,
		Location:    mainStore,
		Description: "Party order",
		Items: []tracker.SalesBatchItem{
			{ProductID: a.ID, Quantity: dec("4")},
			{ProductID: b.ID, Quantity: dec("4"), Price: decPtr("1.75"), Receiver: "Lee"},
			{ProductID: a.ID, Quantity: dec("6"), Description: "Second crate"},
		},
	})
	require.NoError(t, err)
	require.Len(t, receipts, 3)

	assert.Equal(t, "Party order", receipts[0].Sale.Description)
	assertDecimal(t, "6", receipts[0].Sale.Total)
	assertDecimal(t, "7", receipts[1].Sale.Total)
	assert.Equal(t, "Lee", receipts[1].Sale.Receiver)
	assert.Equal(t, "Second crate", receipts[2].Sale.Description)

	assertDecimal(t, "0", balanceOf(t, tr, a.ID))
	assertDecimal(t, "0", balanceOf(t, tr, b.ID))

	report, err := tr.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestRecordSalesBatch_ItemValidation(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)
	a := createProduct(t, tr, "Cola", mainStore, "10", "1.5")

	_, err := tr.RecordSalesBatch(ctx, tracker.SalesBatchInput{
		Location: mainStore,
		Items: []tracker.SalesBatchItem{
			{ProductID: a.ID, Quantity: dec("1")},
			{Quantity: dec("1")},
		},
	})
	var verr *inventory.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["items[1].productId"])

	_, err = tr.RecordSalesBatch(ctx, tracker.SalesBatchInput{
		Location: mainStore,
		Items:    []tracker.SalesBatchItem{{ProductID: a.ID, Quantity: dec("0")}},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items[0].quantity", verr.Field)

	assert.Empty(t, allSales(t, tr))
}

// movingLocker moves a product to another location the first time its lock
// is requested, between the batch pre-check and the locked write.
type movingLocker struct {
	lock.Locker
	store inventory.TxStore
	id    inventory.ProductID
	to    inventory.Location
	once  sync.Once
}

func (m *movingLocker) Obtain(ctx context.Context, key string) (lock.Lock, error) {
	var err error
	if key != lock.ProductKey(string(m.id)) {
		return m.Locker.Obtain(ctx, key)
	}
	m.once.Do(func() {
		var p *inventory.Product
		if p, err = m.store.GetProduct(ctx, m.id); err == nil {
			p.Location = m.to
			err = m.store.UpdateProduct(ctx, *p)
		}
	})
	if err != nil {
		return nil, err
	}
	return m.Locker.Obtain(ctx, key)
}

func TestBatches_RejectProductMovedBeforeLock(t *testing.T) {
	// GIVEN: A product that moves to the Warehouse after the batch pre-check
	// WHEN: Recording a Main Store sales batch or stock batch for it
	// THEN: The locked re-check rejects the batch and nothing is written

	for _, kind := range []string{"sales", "stock"} {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			s := store.NewTxMemory()
			mover := &movingLocker{Locker: lock.NewLocal(), store: s, to: warehouse}
			tr := newTrackerWithStore(t, s, tracker.WithLocker(mover))
			p := createProduct(t, tr, "Cola", mainStore, "10", "1.5")
			mover.id = p.ID

			var err error
			if kind == "sales" {
				_, err = tr.RecordSalesBatch(ctx, tracker.SalesBatchInput{
					Location: mainStore,
					Items:    []tracker.SalesBatchItem{{ProductID: p.ID, Quantity: dec("1")}},
				})
			} else {
				_, err = tr.AddStockBatch(ctx, tracker.StockBatchInput{
					Location: mainStore,
					Items:    []tracker.StockBatchItem{{ProductID: p.ID, Quantity: dec("1")}},
				})
			}

			var verr *inventory.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "items[0].productId", verr.Field)
			assert.Empty(t, allSales(t, tr))
			assert.Empty(t, entriesOf(t, tr, p.ID))
		})
	}
}
