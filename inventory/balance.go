/*
balance.go - Balance projection over the ledger

PURPOSE:
  A product's stock level is never stored. It is recomputed from the
  product's baseline and its ledger entries every time it is needed:

    TotalIn  = InitialBalance + Σ(in quantities)
    TotalOut = Σ(out quantities)
    Balance  = TotalIn - TotalOut

  With an as-of date only entries dated on or before that day count.

PURITY:
  ComputeBalance does no I/O and never clamps. A negative balance means the
  ledger is inconsistent and must stay visible to callers.

SEE ALSO:
  - types.go: Entry, Product
  - tracker/: Uses the projection for stock sufficiency checks
*/
package inventory

import (
	"github.com/shopspring/decimal"
)

// Balance is the derived stock position of a product.
type Balance struct {
	Balance  decimal.Decimal `json:"balance"`
	TotalIn  decimal.Decimal `json:"totalIn"`
	TotalOut decimal.Decimal `json:"totalOut"`
}

// ComputeBalance projects p's balance over entries. A nil asOf counts every entry.
func ComputeBalance(p Product, entries []Entry, asOf *Date) Balance {
	in := decimal.Zero
	out := decimal.Zero
	for _, e := range entries {
		if e.Opening {
			continue
		}
		if asOf != nil && e.Date.After(*asOf) {
			continue
		}
		switch e.Type {
		case EntryIn:
			in = in.Add(e.Quantity)
		case EntryOut:
			out = out.Add(e.Quantity)
		}
	}

	totalIn := p.InitialBalance.Add(in)
	return Balance{
		Balance:  totalIn.Sub(out),
		TotalIn:  totalIn,
		TotalOut: out,
	}
}

// ComputeBalances projects every product over a mixed entry list, grouping
// entries by ProductID. Entries of products not in the list are ignored.
func ComputeBalances(products []Product, entries []Entry, asOf *Date) []ProductBalance {
	byProduct := make(map[ProductID][]Entry, len(products))
	for _, e := range entries {
		byProduct[e.ProductID] = append(byProduct[e.ProductID], e)
	}

	result := make([]ProductBalance, 0, len(products))
	for _, p := range products {
		result = append(result, ProductBalance{
			Product: p,
			Balance: ComputeBalance(p, byProduct[p.ID], asOf),
		})
	}
	return result
}

// totalTolerance bounds rounding noise when a stored total is compared against
// quantity × price, e.g. after a round trip through a float column.
var totalTolerance = decimal.New(1, -6)

// TotalMatches reports whether total equals quantity × price within 1e-6.
func TotalMatches(quantity, price, total decimal.Decimal) bool {
	return SaleTotal(quantity, price).Sub(total).Abs().LessThanOrEqual(totalTolerance)
}
