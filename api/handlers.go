/*
handlers.go - HTTP API handlers for the inventory tracker

PURPOSE:
  Exposes the tracker via REST API. Handles HTTP request/response, JSON
  serialization and query parsing, and delegates every rule to the
  tracker package.

ENDPOINTS:
  Products:
    GET    /api/products                       List with balances (?location&search&asOf)
    POST   /api/products                       Create product
    GET    /api/products/{id}                  Product with balance (?asOf)
    PUT    /api/products/{id}                  Update name, location, price
    DELETE /api/products/{id}                  Delete product, its entries and sales
    DELETE /api/products/{id}/history          Clear ledger entries
    GET    /api/products/{id}/transactions     Paged ledger (?page&limit&search)
    POST   /api/products/{id}/transactions     Stock in
    POST   /api/products/{id}/adjustments      Stock out without a sale

  Ledger:
    GET    /api/transactions                   ?productId or ?location&date&type
    POST   /api/transactions/batch             Stock in for many products
    PUT    /api/transactions/{id}              Edit entry
    DELETE /api/transactions/{id}              Delete entry (and its sale)

  Sales:
    GET    /api/sales                          Paged (?date&location&search&page&limit)
    POST   /api/sales                          Record sale
    POST   /api/sales/batch                    Record many sales, all or nothing
    GET    /api/sales/dates                    Days with sales (?location)
    DELETE /api/sales                          Delete a day's sales (?date&location)
    GET    /api/sales/{id}                     Get sale
    PUT    /api/sales/{id}                     Update sale and its entry
    DELETE /api/sales/{id}                     Delete sale and its entry

  Reports:
    GET    /api/reports/sales.xlsx             Daily sales workbook
    GET    /api/reports/stock.xlsx             Stock summary workbook

REQUEST FLOW:
  1. Parse path, query and body
  2. Call the tracker
  3. Map the result to DTOs
  4. Map errors to status codes (errors.go)

ERROR HANDLING:
  Errors are returned as JSON {error, kind, details?, fields?}:
  - 400: Validation errors, insufficient stock
  - 404: Resource not found
  - 409: Concurrent modification, duplicate
  - 500: Internal errors (logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo dataset loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/warp/stockbook/config"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/report"
	"github.com/warp/stockbook/tracker"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tracker *tracker.Tracker
	log     logrus.FieldLogger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler serving t.
func NewHandler(t *tracker.Tracker, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Tracker: t, log: log}
}

// ListLocations returns the configured locations.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LocationsDTO{Locations: h.Tracker.Locations()})
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns products with their balances.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf, err := queryDate(r, "asOf")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	products, err := h.Tracker.ListProductsWithBalance(r.Context(), tracker.ProductQuery{
		Location: inventory.Location(q.Get("location")),
		Search:   q.Get("search"),
		AsOf:     asOf,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(products))
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req tracker.CreateProductInput
	if !decode(w, r, &req) {
		return
	}
	pb, err := h.Tracker.CreateProduct(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(*pb))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "asOf")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pb, err := h.Tracker.GetProduct(r.Context(), productID(r), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*pb))
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req tracker.UpdateProductInput
	if !decode(w, r, &req) {
		return
	}
	pb, err := h.Tracker.UpdateProduct(r.Context(), productID(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*pb))
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.DeleteProduct(r.Context(), productID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearProductHistory deletes every ledger entry of the product and returns
// it at its initial balance.
func (h *Handler) ClearProductHistory(w http.ResponseWriter, r *http.Request) {
	pb, err := h.Tracker.ClearProductHistory(r.Context(), productID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*pb))
}

// ListProductTransactions returns one page of a product's ledger, newest first.
func (h *Handler) ListProductTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.Tracker.ListTransactionsForProduct(r.Context(), productID(r), r.URL.Query().Get("search"), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(result, toEntryDTOs))
}

func (h *Handler) AddStockEntry(w http.ResponseWriter, r *http.Request) {
	var req StockEntryRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.Tracker.AddStockEntry(r.Context(), req.input(productID(r)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// RemoveStock records an out entry that is not a sale (breakage, transfer).
func (h *Handler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	var req StockEntryRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.Tracker.RemoveStock(r.Context(), req.input(productID(r)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListTransactions selects entries by product, or by location, date and type.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := queryDate(r, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.Tracker.ListTransactions(r.Context(), tracker.EntryQuery{
		ProductID: inventory.ProductID(q.Get("productId")),
		Location:  inventory.Location(q.Get("location")),
		Date:      date,
		Type:      inventory.EntryType(q.Get("type")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

func (h *Handler) AddStockBatch(w http.ResponseWriter, r *http.Request) {
	var req tracker.StockBatchInput
	if !decode(w, r, &req) {
		return
	}
	entries, err := h.Tracker.AddStockBatch(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTOs(entries))
}

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req tracker.UpdateEntryInput
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.Tracker.UpdateStockEntry(r.Context(), inventory.EntryID(chi.URLParam(r, "id")), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.DeleteStockEntry(r.Context(), inventory.EntryID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := queryDate(r, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := pageRequest(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.Tracker.ListSales(r.Context(), tracker.SaleQuery{
		ProductID: inventory.ProductID(q.Get("productId")),
		Date:      date,
		Location:  inventory.Location(q.Get("location")),
		Search:    q.Get("search"),
	}, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(result, toSaleDTOs))
}

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req tracker.SaleInput
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Tracker.RecordSale(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(*receipt))
}

func (h *Handler) RecordSalesBatch(w http.ResponseWriter, r *http.Request) {
	var req tracker.SalesBatchInput
	if !decode(w, r, &req) {
		return
	}
	receipts, err := h.Tracker.RecordSalesBatch(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTOs(receipts))
}

func (h *Handler) ListSaleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.Tracker.ListAvailableSaleDates(r.Context(), inventory.Location(r.URL.Query().Get("location")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDateDTOs(dates))
}

// DeleteSalesForDate answers 200 with the per-sale outcome even when some
// deletions failed.
func (h *Handler) DeleteSalesForDate(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if date == nil {
		h.fail(w, r, inventory.NewValidationError("date", "is required"))
		return
	}

	result, err := h.Tracker.DeleteAllSalesForDate(r.Context(), *date, inventory.Location(r.URL.Query().Get("location")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for i, e := range result.Errors {
		h.log.WithFields(logrus.Fields{"sale_id": e.ID, "kind": e.Kind}).Warn(e.Message)
		if e.Kind == inventory.KindInternal {
			result.Errors[i].Message = internalErrorMessage
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.Tracker.GetSale(r.Context(), saleID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(*sale))
}

func (h *Handler) UpdateSale(w http.ResponseWriter, r *http.Request) {
	var req tracker.UpdateSaleInput
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Tracker.UpdateSale(r.Context(), saleID(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(*receipt))
}

func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.DeleteSale(r.Context(), saleID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// SalesReport streams the day's sales at one location as a workbook.
func (h *Handler) SalesReport(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if date == nil {
		today := inventory.Today()
		date = &today
	}

	loc := inventory.Location(r.URL.Query().Get("location"))
	day, err := h.Tracker.SalesForDate(r.Context(), *date, loc)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteDailySales(&buf, *day); err != nil {
		h.fail(w, r, fmt.Errorf("write sales workbook: %w", err))
		return
	}
	writeWorkbook(w, fmt.Sprintf("sales-%s-%s.xlsx", slug(string(loc)), date), buf.Bytes())
}

// StockReport streams products and balances as a workbook.
func (h *Handler) StockReport(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "asOf")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	loc := inventory.Location(r.URL.Query().Get("location"))

	products, err := h.Tracker.ListProductsWithBalance(r.Context(), tracker.ProductQuery{Location: loc, AsOf: asOf})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	day := inventory.Today()
	if asOf != nil {
		day = *asOf
	}
	scope := "all"
	if loc != "" {
		scope = slug(string(loc))
	}

	var buf bytes.Buffer
	title := fmt.Sprintf("Stock %s %s", scope, day)
	if err := report.WriteStockSummary(&buf, title, products); err != nil {
		h.fail(w, r, fmt.Errorf("write stock workbook: %w", err))
		return
	}
	writeWorkbook(w, fmt.Sprintf("stock-%s-%s.xlsx", scope, day), buf.Bytes())
}

// CheckConsistency audits sales against their ledger entries.
func (h *Handler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Tracker.CheckConsistency(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsistencyDTO(rep))
}

// =============================================================================
// HELPERS
// =============================================================================

func productID(r *http.Request) inventory.ProductID {
	return inventory.ProductID(chi.URLParam(r, "id"))
}

func saleID(r *http.Request) inventory.SaleID {
	return inventory.SaleID(chi.URLParam(r, "id"))
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, key string) (*inventory.Date, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	d, err := inventory.ParseDate(raw)
	if err != nil {
		return nil, inventory.NewValidationError(key, "must be YYYY-MM-DD")
	}
	return &d, nil
}

func pageRequest(r *http.Request) (inventory.PageRequest, error) {
	var req inventory.PageRequest
	for key, dst := range map[string]*int{"page": &req.Page, "limit": &req.Limit} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return req, inventory.NewValidationError(key, "must be a positive integer")
		}
		*dst = n
	}
	return req, nil
}

// decode reads the JSON body into dst, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Kind: kindFor(status)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail answers with the status and kind of a tracker error. Server-side
// failures are logged; their details stay out of the response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		config.LogError(h.log, "api", r.Method+" "+routePattern(r), "request failed",
			map[string]string{"request_id": middleware.GetReqID(r.Context())}, err)
		writeError(w, status, internalErrorMessage, nil)
		return
	}
	writeJSON(w, status, ErrorResponse{
		Error:  err.Error(),
		Kind:   inventory.Kind(err),
		Fields: validationFields(err),
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func writeWorkbook(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// slug lowercases s and replaces anything but letters and digits with '-'.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
