/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. RealIP:     Client address behind a proxy
  3. Logger:     One logrus line per request (status, bytes, duration)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/locations        Configured locations
  /api/products/*       Products, balances, per-product ledger
  /api/transactions/*   Ledger entries
  /api/sales/*          Sales
  /api/reports/*        Excel exports
  /api/admin/*          Consistency audit
  /api/scenarios/*      Demo datasets

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/locations", h.ListLocations)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
			r.Delete("/{id}/history", h.ClearProductHistory)
			r.Get("/{id}/transactions", h.ListProductTransactions)
			r.Post("/{id}/transactions", h.AddStockEntry)
			r.Post("/{id}/adjustments", h.RemoveStock)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/batch", h.AddStockBatch)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListSales)
			r.Post("/", h.RecordSale)
			r.Delete("/", h.DeleteSalesForDate)
			r.Post("/batch", h.RecordSalesBatch)
			r.Get("/dates", h.ListSaleDates)
			r.Get("/{id}", h.GetSale)
			r.Put("/{id}", h.UpdateSale)
			r.Delete("/{id}", h.DeleteSale)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/sales.xlsx", h.SalesReport)
			r.Get("/stock.xlsx", h.StockReport)
		})

		r.Get("/admin/consistency", h.CheckConsistency)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs one line per request once the handler returns.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				entry := log.WithFields(logrus.Fields{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      status,
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(start).Milliseconds(),
					"remote":      r.RemoteAddr,
					"request_id":  middleware.GetReqID(r.Context()),
				})
				if status >= http.StatusInternalServerError {
					entry.Warn("request")
					return
				}
				entry.Info("request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
