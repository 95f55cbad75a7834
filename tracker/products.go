package tracker

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stockbook/inventory"
)

// CreateProductInput describes a new product.
type CreateProductInput struct {
	Name           string             `json:"name" validate:"required,max=100"`
	Location       inventory.Location `json:"location" validate:"required"`
	InitialBalance decimal.Decimal    `json:"initialBalance"`
	Price          decimal.Decimal    `json:"price"`
	DateAdded      inventory.Date     `json:"dateAdded"`
	// RecordOpeningEntry writes an "Initial balance" ledger line for a
	// nonzero InitialBalance. It does not change the projected balance.
	RecordOpeningEntry bool `json:"recordOpeningEntry"`
}

// UpdateProductInput edits a product. Nil fields are left alone.
// InitialBalance cannot be edited.
type UpdateProductInput struct {
	Name     *string             `json:"name"`
	Location *inventory.Location `json:"location"`
	Price    *decimal.Decimal    `json:"price"`
}

// CreateProduct adds a product. Its balance starts at InitialBalance.
func (t *Tracker) CreateProduct(ctx context.Context, in CreateProductInput) (*inventory.ProductBalance, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := firstError(
		t.checkLocation("location", in.Location),
		nonNegative("initialBalance", in.InitialBalance),
		nonNegative("price", in.Price),
	); err != nil {
		return nil, err
	}

	now := t.timestamp()
	p := inventory.Product{
		ID:             inventory.ProductID(t.newID()),
		Name:           in.Name,
		Location:       in.Location,
		InitialBalance: in.InitialBalance,
		Price:          in.Price,
		DateAdded:      t.dateOrToday(in.DateAdded),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var entries []inventory.Entry
	if in.RecordOpeningEntry && p.InitialBalance.IsPositive() {
		entries = append(entries, inventory.Entry{
			ID:          inventory.EntryID(t.newID()),
			ProductID:   p.ID,
			Type:        inventory.EntryIn,
			Quantity:    p.InitialBalance,
			Date:        p.DateAdded,
			Description: inventory.OpeningDescription,
			Opening:     true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	err := t.store.WithTx(ctx, func(s inventory.Store) error {
		if err := s.CreateProduct(ctx, p); err != nil {
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

	t.log.WithFields(logrus.Fields{
		"op":              "create_product",
		"product_id":      p.ID,
		"location":        p.Location,
		"initial_balance": p.InitialBalance.String(),
	}).Info("product created")

	return &inventory.ProductBalance{
		Product: p,
		Balance: inventory.ComputeBalance(p, entries, nil),
	}, nil
}

// UpdateProduct edits name, location or price.
func (t *Tracker) UpdateProduct(ctx context.Context, id inventory.ProductID, in UpdateProductInput) (*inventory.ProductBalance, error) {
	if in.Name != nil {
		if err := optionalText("name", in.Name, 100); err != nil {
			return nil, err
		}
		if *in.Name == "" {
			return nil, inventory.NewValidationError("name", "must not be empty")
		}
	}
	if in.Location != nil {
		if err := t.checkLocation("location", *in.Location); err != nil {
			return nil, err
		}
	}
	if in.Price != nil {
		if err := nonNegative("price", *in.Price); err != nil {
			return nil, err
		}
	}

	release, err := t.lockProducts(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var result inventory.ProductBalance
	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		p, err := s.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			p.Name = *in.Name
		}
		if in.Location != nil {
			p.Location = *in.Location
		}
		if in.Price != nil {
			p.Price = *in.Price
		}
		p.UpdatedAt = t.timestamp()
		if err := s.UpdateProduct(ctx, *p); err != nil {
			return err
		}

		b, err := project(ctx, s, *p, nil)
		if err != nil {
			return err
		}
		result = inventory.ProductBalance{Product: *p, Balance: b}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.log.WithFields(logrus.Fields{"op": "update_product", "product_id": id}).Info("product updated")
	return &result, nil
}

// DeleteProduct removes a product with its ledger entries and sales.
func (t *Tracker) DeleteProduct(ctx context.Context, id inventory.ProductID) error {
	release, err := t.lockProducts(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	var entries, sales int
	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		if _, err := s.GetProductForUpdate(ctx, id); err != nil {
			return err
		}
		if sales, err = s.DeleteSalesByProduct(ctx, id); err != nil {
			return err
		}
		if entries, err = s.DeleteEntriesByProduct(ctx, id); err != nil {
			return err
		}
		return s.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	t.invalidate(ctx, id)

	t.log.WithFields(logrus.Fields{
		"op":              "delete_product",
		"product_id":      id,
		"deleted_entries": entries,
		"deleted_sales":   sales,
	}).Info("product deleted")
	return nil
}

// ClearProductHistory deletes every ledger entry of a product. The balance
// falls back to InitialBalance. Sales that pointed at the deleted entries are
// left in place and show up as dangling in CheckConsistency.
func (t *Tracker) ClearProductHistory(ctx context.Context, id inventory.ProductID) (*inventory.ProductBalance, error) {
	release, err := t.lockProducts(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var p *inventory.Product
	var deleted int
	err = t.store.WithTx(ctx, func(s inventory.Store) error {
		if p, err = s.GetProductForUpdate(ctx, id); err != nil {
			return err
		}
		deleted, err = s.DeleteEntriesByProduct(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.invalidate(ctx, id)

	t.log.WithFields(logrus.Fields{
		"op":              "clear_history",
		"product_id":      id,
		"deleted_entries": deleted,
	}).Info("product history cleared")

	return &inventory.ProductBalance{
		Product: *p,
		Balance: inventory.ComputeBalance(*p, nil, nil),
	}, nil
}

// GetProduct returns a product with its balance, as of a date when asOf is set.
func (t *Tracker) GetProduct(ctx context.Context, id inventory.ProductID, asOf *inventory.Date) (*inventory.ProductBalance, error) {
	p, err := t.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := t.balanceOf(ctx, *p, asOf)
	if err != nil {
		return nil, err
	}
	return &inventory.ProductBalance{Product: *p, Balance: b}, nil
}
