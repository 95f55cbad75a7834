package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stockbook/inventory"
)

// SalesBatchItem is one line of a sales batch.
type SalesBatchItem struct {
	ProductID   inventory.ProductID `json:"productId" validate:"required"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Price       *decimal.Decimal    `json:"price"`
	Receiver    string              `json:"receiver" validate:"max=100"`
	Description string              `json:"description" validate:"max=200"`
}

// SalesBatchInput records several sales of one day at one location.
type SalesBatchInput struct {
	Date        inventory.Date     `json:"date"`
	Location    inventory.Location `json:"location" validate:"required"`
	Description string             `json:"description" validate:"max=200"`
	Items       []SalesBatchItem   `json:"items" validate:"required,min=1,dive"`
}

// StockBatchItem is one line of a stock batch.
type StockBatchItem struct {
	ProductID   inventory.ProductID `json:"productId" validate:"required"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Description string              `json:"description" validate:"max=200"`
}

// StockBatchInput receives stock for several products at one location.
type StockBatchInput struct {
	Date        inventory.Date     `json:"date"`
	Location    inventory.Location `json:"location" validate:"required"`
	Description string             `json:"description" validate:"max=200"`
	Items       []StockBatchItem   `json:"items" validate:"required,min=1,dive"`
}

// RecordSalesBatch records every line or none. Lines of the same product
// are summed before the stock check.
func (t *Tracker) RecordSalesBatch(ctx context.Context, in SalesBatchInput) ([]inventory.Receipt, error) {
	in.Description = strings.TrimSpace(in.Description)
	ids := make([]inventory.ProductID, len(in.Items))
	for i := range in.Items {
		in.Items[i].Receiver = strings.TrimSpace(in.Items[i].Receiver)
		in.Items[i].Description = strings.TrimSpace(in.Items[i].Description)
		ids[i] = in.Items[i].ProductID
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := t.checkLocation("location", in.Location); err != nil {
		return nil, err
	}
	for i, item := range in.Items {
		if err := positive(itemField(i, "quantity"), item.Quantity); err != nil {
			return nil, err
		}
		if item.Price != nil {
			if err := nonNegative(itemField(i, "price"), *item.Price); err != nil {
				return nil, err
			}
		}
	}
	if err := t.checkBatchProducts(ctx, in.Location, ids); err != nil {
		return nil, err
	}

	release, err := t.lockProducts(ctx, ids...)
	if err != nil {
		return nil, err
	}
	defer release()

	date := t.dateOrToday(in.Date)
	receipts := make([]inventory.Receipt, 0, len(in.Items))
	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		receipts = receipts[:0]

		requested := make(map[inventory.ProductID]decimal.Decimal, len(ids))
		for _, item := range in.Items {
			requested[item.ProductID] = requested[item.ProductID].Add(item.Quantity)
		}

		products := make(map[inventory.ProductID]*inventory.Product, len(requested))
		for _, id := range uniqueIDs(ids) {
			p, err := s.GetProductForUpdate(ctx, id)
			if err != nil {
				return err
			}
			b, err := project(ctx, s, *p, nil)
			if err != nil {
				return err
			}
			if requested[id].GreaterThan(b.Balance) {
				return insufficient(*p, b.Balance, requested[id])
			}
			products[id] = p
		}
		if err := checkBatchLocation(in.Location, ids, products); err != nil {
			return err
		}

		for _, item := range in.Items {
			description := item.Description
			if description == "" {
				description = in.Description
			}
			r, err := t.writeSale(ctx, s, *products[item.ProductID], saleLine{
				date:        date,
				location:    in.Location,
				quantity:    item.Quantity,
				price:       item.Price,
				description: description,
				receiver:    item.Receiver,
			})
			if err != nil {
				return err
			}
			receipts = append(receipts, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.invalidate(ctx, ids...)

	t.log.WithFields(logrus.Fields{
		"op":       "record_sales_batch",
		"location": in.Location,
		"date":     date.String(),
		"lines":    len(receipts),
		"products": len(uniqueIDs(ids)),
	}).Info("sales batch recorded")
	return receipts, nil
}

// AddStockBatch receives stock for every line or none.
func (t *Tracker) AddStockBatch(ctx context.Context, in StockBatchInput) ([]inventory.Entry, error) {
	in.Description = strings.TrimSpace(in.Description)
	ids := make([]inventory.ProductID, len(in.Items))
	for i := range in.Items {
		in.Items[i].Description = strings.TrimSpace(in.Items[i].Description)
		ids[i] = in.Items[i].ProductID
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := t.checkLocation("location", in.Location); err != nil {
		return nil, err
	}
	for i, item := range in.Items {
		if err := positive(itemField(i, "quantity"), item.Quantity); err != nil {
			return nil, err
		}
	}
	if err := t.checkBatchProducts(ctx, in.Location, ids); err != nil {
		return nil, err
	}

	release, err := t.lockProducts(ctx, ids...)
	if err != nil {
		return nil, err
	}
	defer release()

	date := t.dateOrToday(in.Date)
	now := t.timestamp()
	entries := make([]inventory.Entry, len(in.Items))
	for i, item := range in.Items {
		description := item.Description
		if description == "" {
			description = in.Description
		}
		entries[i] = inventory.Entry{
			ID:          inventory.EntryID(t.newID()),
			ProductID:   item.ProductID,
			Type:        inventory.EntryIn,
			Quantity:    item.Quantity,
			Date:        date,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		products := make(map[inventory.ProductID]*inventory.Product, len(ids))
		for _, id := range uniqueIDs(ids) {
			p, err := s.GetProductForUpdate(ctx, id)
			if err != nil {
				return err
			}
			products[id] = p
		}
		if err := checkBatchLocation(in.Location, ids, products); err != nil {
			return err
		}
		for _, e := range entries {
			if err := s.AppendEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.invalidate(ctx, ids...)

	t.log.WithFields(logrus.Fields{
		"op":       "add_stock_batch",
		"location": in.Location,
		"date":     date.String(),
		"lines":    len(entries),
	}).Info("stock batch recorded")
	return entries, nil
}

// checkBatchProducts verifies every line names an existing product stocked
// at loc. It runs before any lock is taken.
func (t *Tracker) checkBatchProducts(ctx context.Context, loc inventory.Location, ids []inventory.ProductID) error {
	products, err := t.store.ListProducts(ctx, inventory.ProductFilter{IDs: uniqueIDs(ids)})
	if err != nil {
		return err
	}
	byID := make(map[inventory.ProductID]inventory.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for i, id := range ids {
		p, ok := byID[id]
		if !ok {
			return inventory.ProductNotFound(id)
		}
		if p.Location != loc {
			return inventory.NewValidationError(itemField(i, "productId"), "product %s is stocked at %s, not %s", p.Name, p.Location, loc)
		}
	}
	return nil
}

// checkBatchLocation repeats the location check on rows read under lock, so a
// product moved after checkBatchProducts is still rejected.
func checkBatchLocation(loc inventory.Location, ids []inventory.ProductID, products map[inventory.ProductID]*inventory.Product) error {
	for i, id := range ids {
		if p := products[id]; p.Location != loc {
			return inventory.NewValidationError(itemField(i, "productId"), "product %s is stocked at %s, not %s", p.Name, p.Location, loc)
		}
	}
	return nil
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}
