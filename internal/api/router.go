/**
 * @description
 * This file sets up the HTTP router for the settlement-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/prometheus/client_golang/prometheus/promhttp: Metrics exposition.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SettlementRoutes creates and returns a new router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, internalAPIKey string, staleAfter time.Duration) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Prometheus metrics exposition.
	r.Handle("/metrics", promhttp.Handler())

	// Group routes that act on behalf of a gateway-authenticated user.
	r.Group(func(r chi.Router) {
		r.Use(UserContextMiddleware)

		r.Post("/quotes", h.CreateQuoteHandler)
		r.Post("/swaps", h.SwapHandler)
		r.Post("/purchases", h.PurchaseHandler)
		r.Get("/purchases/{orderID}", h.PurchaseStatusHandler)
		r.Get("/balances", h.ListBalancesHandler)
		r.Get("/transactions", h.ListHistoryHandler)
	})

	// Internal endpoints for the provider callback and ops actions.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/callbacks/bills", h.BillCallbackHandler)
		r.Post("/internal/sweep", h.SweepHandler(staleAfter))
		r.Get("/internal/purchases/processing", h.ListProcessingPurchasesHandler)
	})

	return r
}
