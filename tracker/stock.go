package tracker

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stockbook/inventory"
)

// StockEntryInput is a single stock movement.
type StockEntryInput struct {
	ProductID   inventory.ProductID `json:"productId" validate:"required"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Date        inventory.Date      `json:"date"`
	Description string              `json:"description" validate:"max=200"`
}

// UpdateEntryInput edits a ledger entry. Nil fields are left alone.
type UpdateEntryInput struct {
	Type        *inventory.EntryType `json:"type" validate:"omitempty,oneof=in out"`
	Quantity    *decimal.Decimal     `json:"quantity"`
	Date        *inventory.Date      `json:"date"`
	Description *string              `json:"description"`
}

func (in *StockEntryInput) validate() error {
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return err
	}
	return positive("quantity", in.Quantity)
}

// AddStockEntry records stock coming in. There is no upper bound.
func (t *Tracker) AddStockEntry(ctx context.Context, in StockEntryInput) (*inventory.Entry, error) {
	return t.addEntry(ctx, inventory.EntryIn, in)
}

// RemoveStock records stock going out without a sale (breakage, transfer,
// correction). It fails with InsufficientStockError like a sale would.
func (t *Tracker) RemoveStock(ctx context.Context, in StockEntryInput) (*inventory.Entry, error) {
	return t.addEntry(ctx, inventory.EntryOut, in)
}

func (t *Tracker) addEntry(ctx context.Context, typ inventory.EntryType, in StockEntryInput) (*inventory.Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	release, err := t.lockProducts(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := t.timestamp()
	e := inventory.Entry{
		ID:          inventory.EntryID(t.newID()),
		ProductID:   in.ProductID,
		Type:        typ,
		Quantity:    in.Quantity,
		Date:        t.dateOrToday(in.Date),
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		p, err := s.GetProductForUpdate(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if typ == inventory.EntryOut {
			b, err := project(ctx, s, *p, nil)
			if err != nil {
				return err
			}
			if in.Quantity.GreaterThan(b.Balance) {
				return insufficient(*p, b.Balance, in.Quantity)
			}
		}
		return s.AppendEntry(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	t.invalidate(ctx, in.ProductID)

	t.log.WithFields(logrus.Fields{
		"op":         "add_entry",
		"product_id": e.ProductID,
		"entry_id":   e.ID,
		"type":       e.Type,
		"quantity":   e.Quantity.String(),
	}).Info("stock entry recorded")
	return &e, nil
}

// UpdateStockEntry edits an entry in place. Sufficiency is not re-checked.
// Entries paired with a sale must be changed through UpdateSale, and an
// opening entry only accepts date and description edits.
func (t *Tracker) UpdateStockEntry(ctx context.Context, id inventory.EntryID, in UpdateEntryInput) (*inventory.Entry, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := optionalText("description", in.Description, 200); err != nil {
		return nil, err
	}
	if in.Quantity != nil {
		if err := positive("quantity", *in.Quantity); err != nil {
			return nil, err
		}
	}

	current, err := t.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := t.lockProducts(ctx, current.ProductID)
	if err != nil {
		return nil, err
	}
	defer release()

	var updated inventory.Entry
	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		e, err := s.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		sale, err := s.GetSaleByEntry(ctx, id)
		if err != nil {
			return err
		}
		if sale != nil {
			return inventory.NewValidationError("id", "entry %s belongs to sale %s; update the sale instead", id, sale.ID)
		}
		if e.Opening && (in.Quantity != nil || in.Type != nil) {
			return inventory.NewValidationError("quantity", "the opening entry mirrors the initial balance and cannot change quantity or type")
		}

		if in.Type != nil {
			e.Type = *in.Type
		}
		if in.Quantity != nil {
			e.Quantity = *in.Quantity
		}
		if in.Date != nil && !in.Date.IsZero() {
			e.Date = *in.Date
		}
		if in.Description != nil {
			e.Description = *in.Description
		}
		e.UpdatedAt = t.timestamp()
		updated = *e
		return s.UpdateEntry(ctx, *e)
	})
	if err != nil {
		return nil, err
	}
	t.invalidate(ctx, current.ProductID)

	t.log.WithFields(logrus.Fields{
		"op":         "update_entry",
		"product_id": updated.ProductID,
		"entry_id":   id,
		"quantity":   updated.Quantity.String(),
	}).Info("stock entry updated")
	return &updated, nil
}

// DeleteStockEntry deletes an entry. When a sale is paired with it the sale
// goes too, in the same transaction.
func (t *Tracker) DeleteStockEntry(ctx context.Context, id inventory.EntryID) error {
	current, err := t.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}

	release, err := t.lockProducts(ctx, current.ProductID)
	if err != nil {
		return err
	}
	defer release()

	var saleID inventory.SaleID
	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		sale, err := s.GetSaleByEntry(ctx, id)
		if err != nil {
			return err
		}
		if sale != nil {
			saleID = sale.ID
			if err := s.DeleteSale(ctx, sale.ID); err != nil {
				return err
			}
		}
		return s.DeleteEntry(ctx, id)
	})
	if err != nil {
		return err
	}
	t.invalidate(ctx, current.ProductID)

	t.log.WithFields(logrus.Fields{
		"op":         "delete_entry",
		"product_id": current.ProductID,
		"entry_id":   id,
		"sale_id":    saleID,
	}).Info("stock entry deleted")
	return nil
}
