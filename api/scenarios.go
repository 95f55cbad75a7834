/*
scenarios.go - Demo datasets for testing and demonstrations

PURPOSE:
  Provides pre-built datasets that populate the store with realistic
  products, deliveries and sales. Every dataset goes through the tracker,
  so the data obeys the same rules as data entered by hand.

AVAILABLE SCENARIOS:
  corner-shop:     One location, five staples, a week of deliveries and sales
  multi-location:  Stock spread over every configured location, with
                   breakage adjustments
  low-stock:       Products at or near zero to try insufficient-stock errors

HOW SCENARIOS WORK:
  1. Reset the store (clear all data)
  2. Create products at the configured locations
  3. Add stock batches on past dates
  4. Record sale batches on past dates

USAGE VIA API:
  POST /api/scenarios/load
  {"scenarioId": "corner-shop"}

ADDING NEW SCENARIOS:
  1. Add an entry to 'scenarios' with ID, name, description and loader
  2. Write the loader against h.Tracker only

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Shared helpers
  - tracker/: Operations the loaders call
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/tracker"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, t *tracker.Tracker) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "corner-shop",
			Name:        "Corner Shop",
			Description: "One location, five staples, a week of deliveries and daily sales",
		},
		load: loadCornerShop,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "multi-location",
			Name:        "Multi-Location",
			Description: "Stock spread over every configured location, with breakage adjustments",
		},
		load: loadMultiLocation,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "low-stock",
			Name:        "Low Stock",
			Description: "Products at or near zero balance for trying insufficient-stock errors",
		},
		load: loadLowStock,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the store and loads a predefined dataset.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		h.fail(w, r, inventory.NewValidationError("scenarioId", "unknown scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Tracker.Reset(ctx); err != nil {
		h.fail(w, r, fmt.Errorf("reset store: %w", err))
		return
	}
	if err := s.load(ctx, h.Tracker); err != nil {
		h.fail(w, r, fmt.Errorf("load scenario %s: %w", s.ID, err))
		return
	}
	h.currentScenario = s.ID

	h.log.WithField("scenario", s.ID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": s.ID})
}

// ResetDatabase deletes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Tracker.Reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type seedProduct struct {
	name    string
	initial string
	price   string
}

// seedProducts creates products at loc, opening entries included, and
// returns their ids in order.
func seedProducts(ctx context.Context, t *tracker.Tracker, loc inventory.Location, dateAdded inventory.Date, seeds []seedProduct) ([]inventory.ProductID, error) {
	ids := make([]inventory.ProductID, len(seeds))
	for i, s := range seeds {
		pb, err := t.CreateProduct(ctx, tracker.CreateProductInput{
			Name:               s.name,
			Location:           loc,
			InitialBalance:     decimal.RequireFromString(s.initial),
			Price:              decimal.RequireFromString(s.price),
			DateAdded:          dateAdded,
			RecordOpeningEntry: true,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", s.name, err)
		}
		ids[i] = pb.ID
	}
	return ids, nil
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// locationAt picks a configured location, wrapping when fewer are configured.
func locationAt(t *tracker.Tracker, i int) (inventory.Location, error) {
	locs := t.Locations()
	if len(locs) == 0 {
		return "", errors.New("no locations configured")
	}
	return locs[i%len(locs)], nil
}

func loadCornerShop(ctx context.Context, t *tracker.Tracker) error {
	loc, err := locationAt(t, 0)
	if err != nil {
		return err
	}
	today := inventory.Today()

	ids, err := seedProducts(ctx, t, loc, today.AddDays(-7), []seedProduct{
		{"Rice 5kg", "40", "12.50"},
		{"Cooking Oil 1L", "24", "4.20"},
		{"Sugar 1kg", "30", "1.80"},
		{"Eggs (tray)", "15", "3.60"},
		{"Bread", "20", "1.10"},
	})
	if err != nil {
		return err
	}
	rice, oil, sugar, eggs, bread := ids[0], ids[1], ids[2], ids[3], ids[4]

	deliveries := []tracker.StockBatchInput{
		{
			Date:        today.AddDays(-6),
			Location:    loc,
			Description: "Weekly delivery",
			Items: []tracker.StockBatchItem{
				{ProductID: rice, Quantity: qty("10")},
				{ProductID: eggs, Quantity: qty("12")},
				{ProductID: bread, Quantity: qty("30")},
			},
		},
		{
			Date:        today.AddDays(-3),
			Location:    loc,
			Description: "Top-up delivery",
			Items: []tracker.StockBatchItem{
				{ProductID: bread, Quantity: qty("25")},
				{ProductID: oil, Quantity: qty("6"), Description: "Supplier short by 6"},
			},
		},
	}
	for _, d := range deliveries {
		if _, err := t.AddStockBatch(ctx, d); err != nil {
			return err
		}
	}

	for day := 5; day >= 1; day-- {
		_, err := t.RecordSalesBatch(ctx, tracker.SalesBatchInput{
			Date:     today.AddDays(-day),
			Location: loc,
			Items: []tracker.SalesBatchItem{
				{ProductID: bread, Quantity: qty("8")},
				{ProductID: rice, Quantity: qty("3")},
				{ProductID: sugar, Quantity: qty("2")},
				{ProductID: eggs, Quantity: qty("2"), Receiver: "Café Lumen"},
			},
		})
		if err != nil {
			return fmt.Errorf("sales for day -%d: %w", day, err)
		}
	}

	_, err = t.RecordSale(ctx, tracker.SaleInput{
		ProductID:   oil,
		Date:        today.AddDays(-2),
		Location:    loc,
		Quantity:    qty("4"),
		Price:       decPtr("3.90"),
		Description: "Bulk discount",
		Receiver:    "Mrs. Okafor",
	})
	return err
}

func loadMultiLocation(ctx context.Context, t *tracker.Tracker) error {
	today := inventory.Today()

	store, err := locationAt(t, 0)
	if err != nil {
		return err
	}
	warehouse, err := locationAt(t, 1)
	if err != nil {
		return err
	}
	kiosk, err := locationAt(t, 2)
	if err != nil {
		return err
	}

	storeIDs, err := seedProducts(ctx, t, store, today.AddDays(-10), []seedProduct{
		{"Bottled Water 1.5L", "48", "0.90"},
		{"Soap Bar", "36", "1.25"},
	})
	if err != nil {
		return err
	}
	warehouseIDs, err := seedProducts(ctx, t, warehouse, today.AddDays(-10), []seedProduct{
		{"Bottled Water (case of 12)", "80", "9.00"},
		{"Soap (box of 24)", "20", "25.00"},
	})
	if err != nil {
		return err
	}
	kioskIDs, err := seedProducts(ctx, t, kiosk, today.AddDays(-10), []seedProduct{
		{"Newspaper", "30", "1.50"},
		{"Chewing Gum", "60", "0.50"},
	})
	if err != nil {
		return err
	}

	// Cases leave the warehouse for the store.
	if _, err := t.RemoveStock(ctx, tracker.StockEntryInput{
		ProductID:   warehouseIDs[0],
		Quantity:    qty("4"),
		Date:        today.AddDays(-4),
		Description: "Transfer to " + string(store),
	}); err != nil {
		return err
	}
	if _, err := t.AddStockEntry(ctx, tracker.StockEntryInput{
		ProductID:   storeIDs[0],
		Quantity:    qty("48"),
		Date:        today.AddDays(-4),
		Description: "Transfer from " + string(warehouse),
	}); err != nil {
		return err
	}
	if _, err := t.RemoveStock(ctx, tracker.StockEntryInput{
		ProductID:   warehouseIDs[1],
		Quantity:    qty("1"),
		Date:        today.AddDays(-3),
		Description: "Damaged in storage",
	}); err != nil {
		return err
	}

	batches := []tracker.SalesBatchInput{
		{
			Date:     today.AddDays(-2),
			Location: store,
			Items: []tracker.SalesBatchItem{
				{ProductID: storeIDs[0], Quantity: qty("20")},
				{ProductID: storeIDs[1], Quantity: qty("6")},
			},
		},
		{
			Date:     today.AddDays(-2),
			Location: warehouse,
			Items: []tracker.SalesBatchItem{
				{ProductID: warehouseIDs[0], Quantity: qty("10"), Price: decPtr("8.50"), Receiver: "Hotel Mirador"},
			},
		},
		{
			Date:     today.AddDays(-1),
			Location: kiosk,
			Items: []tracker.SalesBatchItem{
				{ProductID: kioskIDs[0], Quantity: qty("18")},
				{ProductID: kioskIDs[1], Quantity: qty("25")},
			},
		},
	}
	for _, b := range batches {
		if _, err := t.RecordSalesBatch(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func loadLowStock(ctx context.Context, t *tracker.Tracker) error {
	loc, err := locationAt(t, 0)
	if err != nil {
		return err
	}
	today := inventory.Today()

	ids, err := seedProducts(ctx, t, loc, today.AddDays(-3), []seedProduct{
		{"Batteries AA (4-pack)", "3", "4.50"},
		{"Light Bulb", "1", "2.75"},
		{"Matches", "0", "0.30"},
	})
	if err != nil {
		return err
	}

	_, err = t.RecordSalesBatch(ctx, tracker.SalesBatchInput{
		Date:     today.AddDays(-1),
		Location: loc,
		Items: []tracker.SalesBatchItem{
			{ProductID: ids[0], Quantity: qty("2")},
			{ProductID: ids[1], Quantity: qty("1")},
		},
	})
	return err
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
