package tracker

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stockbook/inventory"
)

// SaleInput records one sale. A nil Price sells at the product's price.
type SaleInput struct {
	ProductID   inventory.ProductID `json:"productId" validate:"required"`
	Date        inventory.Date      `json:"date"`
	Location    inventory.Location  `json:"location" validate:"required"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Price       *decimal.Decimal    `json:"price"`
	Description string              `json:"description" validate:"max=200"`
	Receiver    string              `json:"receiver" validate:"max=100"`
}

// UpdateSaleInput edits a sale. Nil fields are left alone.
type UpdateSaleInput struct {
	Quantity    *decimal.Decimal `json:"quantity"`
	Price       *decimal.Decimal `json:"price"`
	Date        *inventory.Date  `json:"date"`
	Description *string          `json:"description"`
	Receiver    *string          `json:"receiver"`
}

// saleLine is a validated sale ready to be written.
type saleLine struct {
	date        inventory.Date
	location    inventory.Location
	quantity    decimal.Decimal
	price       *decimal.Decimal
	description string
	receiver    string
}

// saleEntryDescription labels the ledger line a sale produces.
func saleEntryDescription(description, receiver string) string {
	switch {
	case description != "":
		return description
	case receiver != "":
		return "Sale to " + receiver
	default:
		return "Sale"
	}
}

// writeSale appends the "out" entry and the sale through s. Callers have
// already checked stock.
func (t *Tracker) writeSale(ctx context.Context, s inventory.Store, p inventory.Product, line saleLine) (inventory.Receipt, error) {
	price := p.Price
	if line.price != nil {
		price = *line.price
	}

	now := t.timestamp()
	entry := inventory.Entry{
		ID:          inventory.EntryID(t.newID()),
		ProductID:   p.ID,
		Type:        inventory.EntryOut,
		Quantity:    line.quantity,
		Date:        line.date,
		Description: saleEntryDescription(line.description, line.receiver),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sale := inventory.Sale{
		ID:            inventory.SaleID(t.newID()),
		ProductID:     p.ID,
		ProductName:   p.Name,
		Date:          line.date,
		Location:      line.location,
		Quantity:      line.quantity,
		Price:         price,
		Total:         inventory.SaleTotal(line.quantity, price),
		Description:   line.description,
		Receiver:      line.receiver,
		TransactionID: entry.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.AppendEntry(ctx, entry); err != nil {
		return inventory.Receipt{}, err
	}
	if err := s.CreateSale(ctx, sale); err != nil {
		return inventory.Receipt{}, err
	}
	return inventory.Receipt{Sale: sale, Entry: entry}, nil
}

// RecordSale sells stock. The product must be at the given location and
// hold at least the requested quantity. The ledger entry and the sale are
// written in one transaction.
func (t *Tracker) RecordSale(ctx context.Context, in SaleInput) (*inventory.Receipt, error) {
	in.Description = strings.TrimSpace(in.Description)
	in.Receiver = strings.TrimSpace(in.Receiver)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := firstError(
		positive("quantity", in.Quantity),
		t.checkLocation("location", in.Location),
	); err != nil {
		return nil, err
	}
	if in.Price != nil {
		if err := nonNegative("price", *in.Price); err != nil {
			return nil, err
		}
	}

	release, err := t.lockProducts(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	defer release()

	var receipt inventory.Receipt
	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		p, err := s.GetProductForUpdate(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if p.Location != in.Location {
			return inventory.NewValidationError("location", "product %s is stocked at %s, not %s", p.Name, p.Location, in.Location)
		}

		b, err := project(ctx, s, *p, nil)
		if err != nil {
			return err
		}
		if in.Quantity.GreaterThan(b.Balance) {
			return insufficient(*p, b.Balance, in.Quantity)
		}

		receipt, err = t.writeSale(ctx, s, *p, saleLine{
			date:        t.dateOrToday(in.Date),
			location:    in.Location,
			quantity:    in.Quantity,
			price:       in.Price,
			description: in.Description,
			receiver:    in.Receiver,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	t.invalidate(ctx, in.ProductID)

	t.log.WithFields(logrus.Fields{
		"op":         "record_sale",
		"product_id": receipt.Sale.ProductID,
		"sale_id":    receipt.Sale.ID,
		"entry_id":   receipt.Entry.ID,
		"quantity":   receipt.Sale.Quantity.String(),
		"total":      receipt.Sale.Total.String(),
	}).Info("sale recorded")
	return &receipt, nil
}

// GetSale returns a sale.
func (t *Tracker) GetSale(ctx context.Context, id inventory.SaleID) (*inventory.Sale, error) {
	return t.store.GetSale(ctx, id)
}

// UpdateSale edits a sale and its paired entry together and recomputes the
// total. Raising the quantity requires the extra stock to be available.
func (t *Tracker) UpdateSale(ctx context.Context, id inventory.SaleID, in UpdateSaleInput) (*inventory.Receipt, error) {
	if err := firstError(
		optionalText("description", in.Description, 200),
		optionalText("receiver", in.Receiver, 100),
	); err != nil {
		return nil, err
	}
	if in.Quantity != nil {
		if err := positive("quantity", *in.Quantity); err != nil {
			return nil, err
		}
	}
	if in.Price != nil {
		if err := nonNegative("price", *in.Price); err != nil {
			return nil, err
		}
	}

	current, err := t.store.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := t.lockProducts(ctx, current.ProductID)
	if err != nil {
		return nil, err
	}
	defer release()

	var receipt inventory.Receipt
	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		sale, err := s.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if sale.TransactionID == "" {
			return inventory.EntryNotFound("")
		}
		entry, err := s.GetEntry(ctx, sale.TransactionID)
		if err != nil {
			return err
		}

		if in.Quantity != nil && in.Quantity.GreaterThan(sale.Quantity) {
			p, err := s.GetProductForUpdate(ctx, sale.ProductID)
			if err != nil {
				return err
			}
			b, err := project(ctx, s, *p, nil)
			if err != nil {
				return err
			}
			extra := in.Quantity.Sub(sale.Quantity)
			if extra.GreaterThan(b.Balance) {
				return insufficient(*p, b.Balance.Add(sale.Quantity), *in.Quantity)
			}
		}

		if in.Quantity != nil {
			sale.Quantity = *in.Quantity
		}
		if in.Price != nil {
			sale.Price = *in.Price
		}
		if in.Date != nil && !in.Date.IsZero() {
			sale.Date = *in.Date
		}
		if in.Description != nil {
			sale.Description = *in.Description
		}
		if in.Receiver != nil {
			sale.Receiver = *in.Receiver
		}
		now := t.timestamp()
		sale.Total = inventory.SaleTotal(sale.Quantity, sale.Price)
		sale.UpdatedAt = now

		entry.Quantity = sale.Quantity
		entry.Date = sale.Date
		entry.Description = saleEntryDescription(sale.Description, sale.Receiver)
		entry.UpdatedAt = now

		if err := s.UpdateEntry(ctx, *entry); err != nil {
			return err
		}
		if err := s.UpdateSale(ctx, *sale); err != nil {
			return err
		}
		receipt = inventory.Receipt{Sale: *sale, Entry: *entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.invalidate(ctx, current.ProductID)

	t.log.WithFields(logrus.Fields{
		"op":         "update_sale",
		"product_id": receipt.Sale.ProductID,
		"sale_id":    id,
		"quantity":   receipt.Sale.Quantity.String(),
		"total":      receipt.Sale.Total.String(),
	}).Info("sale updated")
	return &receipt, nil
}

// DeleteSale deletes a sale and its paired entry, restoring the stock.
// A paired entry already removed by ClearProductHistory is not an error.
func (t *Tracker) DeleteSale(ctx context.Context, id inventory.SaleID) error {
	current, err := t.store.GetSale(ctx, id)
	if err != nil {
		return err
	}

	release, err := t.lockProducts(ctx, current.ProductID)
	if err != nil {
		return err
	}
	defer release()

	danglingEntry := false
	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		sale, err := s.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if sale.TransactionID != "" {
			err := s.DeleteEntry(ctx, sale.TransactionID)
			if inventory.IsNotFound(err) {
				danglingEntry = true
			} else if err != nil {
				return err
			}
		}
		return s.DeleteSale(ctx, id)
	})
	if err != nil {
		return err
	}
	t.invalidate(ctx, current.ProductID)

	fields := logrus.Fields{
		"op":         "delete_sale",
		"product_id": current.ProductID,
		"sale_id":    id,
		"entry_id":   current.TransactionID,
	}
	if danglingEntry {
		t.log.WithFields(fields).Warn("sale deleted; its ledger entry was already gone")
	} else {
		t.log.WithFields(fields).Info("sale deleted")
	}
	return nil
}

// DeleteAllSalesForDate deletes every sale of one day at one location. Each
// sale is deleted on its own; a failure is recorded and the rest continue.
// The returned error is only set when the sales could not be listed.
func (t *Tracker) DeleteAllSalesForDate(ctx context.Context, date inventory.Date, location inventory.Location) (*inventory.BulkDeleteResult, error) {
	if date.IsZero() {
		return nil, inventory.NewValidationError("date", "is required")
	}
	if err := t.checkLocation("location", location); err != nil {
		return nil, err
	}

	sales, err := t.store.ListSales(ctx, inventory.SaleFilter{Date: &date, Location: location})
	if err != nil {
		return nil, err
	}

	result := &inventory.BulkDeleteResult{Errors: []inventory.ItemError{}}
	for _, sale := range sales {
		result.Record(string(sale.ID), t.DeleteSale(ctx, sale.ID))
	}

	t.log.WithFields(logrus.Fields{
		"op":       "delete_sales_for_date",
		"date":     date.String(),
		"location": location,
		"deleted":  result.DeletedCount,
		"failed":   len(result.Errors),
	}).Info("sales for date deleted")
	return result, nil
}
