package tracker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/stockbook/inventory"
)

// Mismatch is a sale whose paired entry disagrees with it, or whose total
// is not quantity × price.
type Mismatch struct {
	SaleID  inventory.SaleID  `json:"saleId"`
	EntryID inventory.EntryID `json:"entryId"`
	Reason  string            `json:"reason"`
}

// ConsistencyReport is the result of auditing sales against the ledger.
type ConsistencyReport struct {
	CheckedAt        time.Time                  `json:"checkedAt"`
	DanglingSales    []inventory.Sale           `json:"danglingSales"`
	Mismatches       []Mismatch                 `json:"mismatches"`
	NegativeBalances []inventory.ProductBalance `json:"negativeBalances"`
}

// OK reports whether the audit found nothing.
func (r *ConsistencyReport) OK() bool {
	return len(r.DanglingSales) == 0 && len(r.Mismatches) == 0 && len(r.NegativeBalances) == 0
}

// CheckConsistency audits every sale against its paired entry and every
// product against a negative balance. It only reads.
func (t *Tracker) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	products, err := t.store.ListProducts(ctx, inventory.ProductFilter{})
	if err != nil {
		return nil, err
	}
	entries, err := t.store.ListEntries(ctx, inventory.EntryFilter{})
	if err != nil {
		return nil, err
	}
	sales, err := t.store.ListSales(ctx, inventory.SaleFilter{})
	if err != nil {
		return nil, err
	}

	report := &ConsistencyReport{
		CheckedAt:        t.timestamp(),
		DanglingSales:    []inventory.Sale{},
		Mismatches:       []Mismatch{},
		NegativeBalances: []inventory.ProductBalance{},
	}

	byID := make(map[inventory.EntryID]inventory.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	for _, s := range sales {
		if !inventory.TotalMatches(s.Quantity, s.Price, s.Total) {
			report.Mismatches = append(report.Mismatches, Mismatch{SaleID: s.ID, EntryID: s.TransactionID, Reason: "total is not quantity × price"})
		}

		e, ok := byID[s.TransactionID]
		if !ok {
			report.DanglingSales = append(report.DanglingSales, s)
			continue
		}
		switch {
		case e.Type != inventory.EntryOut:
			report.Mismatches = append(report.Mismatches, Mismatch{SaleID: s.ID, EntryID: e.ID, Reason: "paired entry is not an out entry"})
		case e.ProductID != s.ProductID:
			report.Mismatches = append(report.Mismatches, Mismatch{SaleID: s.ID, EntryID: e.ID, Reason: "paired entry belongs to another product"})
		case !e.Quantity.Equal(s.Quantity):
			report.Mismatches = append(report.Mismatches, Mismatch{SaleID: s.ID, EntryID: e.ID, Reason: "quantity differs from paired entry"})
		case !e.Date.Equal(s.Date):
			report.Mismatches = append(report.Mismatches, Mismatch{SaleID: s.ID, EntryID: e.ID, Reason: "date differs from paired entry"})
		}
	}

	for _, pb := range inventory.ComputeBalances(products, entries, nil) {
		if pb.Balance.Balance.IsNegative() {
			report.NegativeBalances = append(report.NegativeBalances, pb)
		}
	}

	fields := logrus.Fields{
		"op":                "check_consistency",
		"sales":             len(sales),
		"dangling_sales":    len(report.DanglingSales),
		"mismatches":        len(report.Mismatches),
		"negative_balances": len(report.NegativeBalances),
	}
	if report.OK() {
		t.log.WithFields(fields).Info("ledger consistent")
	} else {
		t.log.WithFields(fields).Warn("ledger inconsistencies found")
	}
	return report, nil
}
