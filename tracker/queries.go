package tracker

import (
	"context"
	"slices"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/stockbook/inventory"
)

// ProductQuery narrows ListProductsWithBalance.
type ProductQuery struct {
	Location inventory.Location
	Search   string
	AsOf     *inventory.Date
}

// SaleQuery narrows ListSales.
type SaleQuery struct {
	ProductID inventory.ProductID
	Date      *inventory.Date
	Location  inventory.Location
	Search    string
}

// EntryQuery selects ledger entries either for one product or for one
// location, date and type.
type EntryQuery struct {
	ProductID inventory.ProductID
	Location  inventory.Location
	Date      *inventory.Date
	Type      inventory.EntryType
}

// ListProductsWithBalance returns matching products sorted by name, each
// with its projected balance.
func (t *Tracker) ListProductsWithBalance(ctx context.Context, q ProductQuery) ([]inventory.ProductBalance, error) {
	products, err := t.store.ListProducts(ctx, inventory.ProductFilter{Location: q.Location, Search: q.Search})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return []inventory.ProductBalance{}, nil
	}

	if q.AsOf != nil || !t.cacheEnabled() {
		entries, err := t.store.ListEntries(ctx, inventory.EntryFilter{Location: q.Location})
		if err != nil {
			return nil, err
		}
		return inventory.ComputeBalances(products, entries, q.AsOf), nil
	}

	out := make([]inventory.ProductBalance, len(products))
	var missing []int
	for i, p := range products {
		out[i].Product = p
		if b, ok := t.cachedBalance(ctx, p.ID); ok {
			out[i].Balance = b
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	ids := make([]inventory.ProductID, len(missing))
	stale := make([]inventory.Product, len(missing))
	for j, i := range missing {
		ids[j] = products[i].ID
		stale[j] = products[i]
	}

	release, err := t.lockProducts(ctx, ids...)
	if err != nil {
		return nil, err
	}
	defer release()

	entries, err := t.store.ListEntries(ctx, inventory.EntryFilter{Location: q.Location})
	if err != nil {
		return nil, err
	}
	for j, pb := range inventory.ComputeBalances(stale, entries, nil) {
		out[missing[j]].Balance = pb.Balance
		t.storeBalance(ctx, pb.ID, pb.Balance)
	}
	return out, nil
}

// ListSales pages through sales, newest first.
func (t *Tracker) ListSales(ctx context.Context, q SaleQuery, page inventory.PageRequest) (inventory.Page[inventory.Sale], error) {
	sales, err := t.store.ListSales(ctx, inventory.SaleFilter{
		ProductID: q.ProductID,
		Date:      q.Date,
		Location:  q.Location,
		Search:    q.Search,
	})
	if err != nil {
		return inventory.Page[inventory.Sale]{}, err
	}
	slices.Reverse(sales)
	return inventory.Paginate(sales, page), nil
}

// ListTransactionsForProduct pages through one product's ledger, newest
// first. search matches the entry description.
func (t *Tracker) ListTransactionsForProduct(ctx context.Context, id inventory.ProductID, search string, page inventory.PageRequest) (inventory.Page[inventory.Entry], error) {
	if _, err := t.store.GetProduct(ctx, id); err != nil {
		return inventory.Page[inventory.Entry]{}, err
	}
	entries, err := t.store.ListEntries(ctx, inventory.EntryFilter{ProductID: id, Search: search})
	if err != nil {
		return inventory.Page[inventory.Entry]{}, err
	}
	slices.Reverse(entries)
	return inventory.Paginate(entries, page), nil
}

// ListTransactions returns ledger entries newest first. Without a product
// the location, date and type are all required.
func (t *Tracker) ListTransactions(ctx context.Context, q EntryQuery) ([]inventory.Entry, error) {
	if q.Type != "" && !q.Type.Valid() {
		return nil, inventory.NewValidationError("type", "must be %q or %q", inventory.EntryIn, inventory.EntryOut)
	}

	if q.ProductID != "" {
		if _, err := t.store.GetProduct(ctx, q.ProductID); err != nil {
			return nil, err
		}
	} else {
		missing := map[string]string{}
		if q.Location == "" {
			missing["location"] = "required"
		}
		if q.Date == nil || q.Date.IsZero() {
			missing["date"] = "required"
		}
		if q.Type == "" {
			missing["type"] = "required"
		}
		if len(missing) > 0 {
			return nil, &inventory.ValidationError{
				Message: "productId or location, date and type are required",
				Fields:  missing,
			}
		}
	}

	entries, err := t.store.ListEntries(ctx, inventory.EntryFilter{
		ProductID: q.ProductID,
		Location:  q.Location,
		Date:      q.Date,
		Type:      q.Type,
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// ListAvailableSaleDates returns the days at loc holding at least one sale
// with a positive quantity and total, newest first.
func (t *Tracker) ListAvailableSaleDates(ctx context.Context, loc inventory.Location) ([]inventory.SaleDate, error) {
	if loc == "" {
		return nil, inventory.NewValidationError("location", "is required")
	}
	sales, err := t.store.ListSales(ctx, inventory.SaleFilter{Location: loc})
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*inventory.SaleDate)
	for _, s := range sales {
		if !s.Quantity.IsPositive() || !s.Total.IsPositive() {
			continue
		}
		d, ok := byDate[s.Date.String()]
		if !ok {
			d = &inventory.SaleDate{Date: s.Date, Total: decimal.Zero}
			byDate[s.Date.String()] = d
		}
		d.Count++
		d.Total = d.Total.Add(s.Total)
	}

	out := make([]inventory.SaleDate, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// SalesForDate returns every sale of one day at loc in recording order,
// with quantity and value totals.
func (t *Tracker) SalesForDate(ctx context.Context, date inventory.Date, loc inventory.Location) (*inventory.DailySales, error) {
	if date.IsZero() {
		return nil, inventory.NewValidationError("date", "is required")
	}
	if loc == "" {
		return nil, inventory.NewValidationError("location", "is required")
	}
	sales, err := t.store.ListSales(ctx, inventory.SaleFilter{Date: &date, Location: loc})
	if err != nil {
		return nil, err
	}

	day := &inventory.DailySales{
		Date:     date,
		Location: loc,
		Sales:    sales,
		Quantity: decimal.Zero,
		Total:    decimal.Zero,
	}
	if day.Sales == nil {
		day.Sales = []inventory.Sale{}
	}
	for _, s := range sales {
		day.Quantity = day.Quantity.Add(s.Quantity)
		day.Total = day.Total.Add(s.Total)
	}
	return day, nil
}
