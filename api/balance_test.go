/*
balance_test.go - Balance invariant over HTTP

CORE DESIGN:
- Balance is never stored; every response recomputes it from the ledger
- balance = initialBalance + Σ in − Σ out, for any mix of endpoints
*/
package api

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/inventory"
)

func TestBalance_MatchesLedgerAfterMixedOperations(t *testing.T) {
	// GIVEN: A product with initial balance 20
	// WHEN: Stock in, adjustments, sales, a sale edit and a deletion go through the API
	// THEN: The reported balance equals initial + Σ in − Σ out over the listed ledger

	s := newTestServer(t)
	p := s.createProduct("Flour", mainStore, "20", "1.2")
	path := "/api/products/" + string(p.ID)

	expect[EntryDTO](t, s.do(http.MethodPost, path+"/transactions", map[string]any{"quantity": "7.5", "date": "2024-03-02"}), http.StatusCreated)
	expect[EntryDTO](t, s.do(http.MethodPost, path+"/adjustments", map[string]any{"quantity": "0.5", "date": "2024-03-03"}), http.StatusCreated)
	first := s.sell(string(p.ID), "4", "2024-03-04")
	second := s.sell(string(p.ID), "2.25", "2024-03-05")
	expect[ReceiptDTO](t, s.do(http.MethodPut, "/api/sales/"+string(first.Sale.ID), map[string]any{"quantity": "6"}), http.StatusOK)
	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/sales/"+string(second.Sale.ID), nil).Code)

	page := expect[PageDTO[EntryDTO]](t, s.do(http.MethodGet, path+"/transactions?limit=100", nil), http.StatusOK)
	want := decimal.RequireFromString("20")
	for _, e := range page.Items {
		if e.Type == inventory.EntryIn {
			want = want.Add(e.Quantity)
		} else {
			want = want.Sub(e.Quantity)
		}
	}

	got := expect[ProductDTO](t, s.do(http.MethodGet, path, nil), http.StatusOK)
	assertDecimal(t, "21", got.Balance)
	assert.True(t, want.Equal(got.Balance), "ledger says %s, balance says %s", want, got.Balance)
}

func TestBalance_AsOfIgnoresLaterEntries(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("Flour", mainStore, "20", "1.2")
	s.sell(string(p.ID), "5", "2024-03-04")
	s.sell(string(p.ID), "5", "2024-03-08")

	for date, want := range map[string]string{
		"2024-03-03": "20",
		"2024-03-04": "15",
		"2024-03-07": "15",
		"2024-03-08": "10",
	} {
		got := expect[ProductDTO](t, s.do(http.MethodGet, "/api/products/"+string(p.ID)+"?asOf="+date, nil), http.StatusOK)
		assertDecimal(t, want, got.Balance)
	}
}
