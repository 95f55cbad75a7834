package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/inventory/store"
	"github.com/warp/stockbook/tracker"
)

const (
	mainStore = "Main Store"
	warehouse = "Warehouse"
)

type testServer struct {
	t       *testing.T
	router  *chi.Mux
	handler *Handler
	hook    *test.Hook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithStore(t, store.NewTxMemory())
}

func newTestServerWithStore(t *testing.T, s inventory.TxStore) *testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()
	tr := tracker.New(s,
		tracker.WithLogger(logger),
		tracker.WithLocations(mainStore, warehouse),
	)
	h := NewHandler(tr, logger)
	return &testServer{t: t, router: NewRouter(h, []string{"http://localhost:5173"}), handler: h, hook: hook}
}

// do sends body (JSON encoded unless it is a string) and returns the recorder.
func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// expect asserts the status and decodes the body.
func expect[T any](t *testing.T, rec *httptest.ResponseRecorder, status int) T {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	return decodeAs[T](t, rec)
}

func (s *testServer) createProduct(name, location, initial, price string) ProductDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/products", map[string]any{
		"name":           name,
		"location":       location,
		"initialBalance": initial,
		"price":          price,
		"dateAdded":      "2024-03-01",
	})
	return expect[ProductDTO](s.t, rec, http.StatusCreated)
}

func (s *testServer) sell(productID, qty, date string) ReceiptDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/sales", map[string]any{
		"productId": productID,
		"location":  mainStore,
		"quantity":  qty,
		"date":      date,
	})
	return expect[ReceiptDTO](s.t, rec, http.StatusCreated)
}

func (s *testServer) balance(productID string) decimal.Decimal {
	s.t.Helper()
	return expect[ProductDTO](s.t, s.do(http.MethodGet, "/api/products/"+productID, nil), http.StatusOK).Balance
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}
