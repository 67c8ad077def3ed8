/**
 * @description
 * This file contains the HTTP handlers for the settlement-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 * - github.com/prometheus/client_golang/prometheus: Request instrumentation.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/app"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementHandlers holds the application service that handlers will use.
type SettlementHandlers struct {
	service *app.Service
}

// NewSettlementHandlers creates a new instance of SettlementHandlers.
func NewSettlementHandlers(service *app.Service) *SettlementHandlers {
	return &SettlementHandlers{service: service}
}

// CreateQuoteHandler builds a short-lived, price-locked conversion quote.
func (h *SettlementHandlers) CreateQuoteHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(settlementRequestDuration.WithLabelValues("create_quote"))
	defer timer.ObserveDuration()

	var req domain.CreateQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		settlementRequestsTotal.WithLabelValues("create_quote", "bad_request").Inc()
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	quote, err := h.service.CreateQuote(r.Context(), req)
	if err != nil {
		settlementRequestsTotal.WithLabelValues("create_quote", "error").Inc()
		h.handleServiceError(w, "create_quote", err)
		return
	}

	settlementRequestsTotal.WithLabelValues("create_quote", "success").Inc()
	h.writeJSON(w, http.StatusCreated, quote)
}

// SwapHandler settles a previously created quote against the user's balances.
func (h *SettlementHandlers) SwapHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(settlementRequestDuration.WithLabelValues("swap"))
	defer timer.ObserveDuration()

	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		settlementRequestsTotal.WithLabelValues("swap", "bad_request").Inc()
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.QuoteID == uuid.Nil {
		settlementRequestsTotal.WithLabelValues("swap", "bad_request").Inc()
		h.writeError(w, http.StatusBadRequest, "quote_id is required")
		return
	}

	result, err := h.service.Swap(r.Context(), userID, req.QuoteID)
	if err != nil {
		settlementRequestsTotal.WithLabelValues("swap", "error").Inc()
		h.handleServiceError(w, "swap", err)
		return
	}

	settlementRequestsTotal.WithLabelValues("swap", "success").Inc()
	h.writeJSON(w, http.StatusOK, result)
}

// PurchaseHandler initiates a provider-fulfilled bill purchase. Processing
// purchases reply 202; ones the provider completed inline reply 200.
func (h *SettlementHandlers) PurchaseHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(settlementRequestDuration.WithLabelValues("purchase"))
	defer timer.ObserveDuration()

	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	var req domain.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		settlementRequestsTotal.WithLabelValues("purchase", "bad_request").Inc()
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Purchase(r.Context(), userID, req)
	if err != nil {
		settlementRequestsTotal.WithLabelValues("purchase", "error").Inc()
		h.handleServiceError(w, "purchase", err)
		return
	}

	settlementRequestsTotal.WithLabelValues("purchase", "success").Inc()
	purchasesByStatus.WithLabelValues(result.Status).Inc()

	status := http.StatusOK
	if result.Status == domain.PurchaseStatusProcessing {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, result)
}

// PurchaseStatusHandler returns the current state of a purchase by order id.
func (h *SettlementHandlers) PurchaseStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	purchase, err := h.service.GetPurchase(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrPurchaseNotFound) {
			h.writeError(w, http.StatusNotFound, "Purchase not found")
			return
		}
		log.Printf("level=error component=api endpoint=purchase_status msg=\"lookup failed\" order_id=%s err=%v", orderID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch purchase")
		return
	}
	if purchase.UserID != userID {
		h.writeError(w, http.StatusNotFound, "Purchase not found")
		return
	}

	h.writeJSON(w, http.StatusOK, purchase)
}

// ListBalancesHandler returns every currency balance the user holds.
func (h *SettlementHandlers) ListBalancesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	balances, err := h.service.ListBalances(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=balances msg=\"listing failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch balances")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

// ListHistoryHandler returns a page of the user's transaction records.
func (h *SettlementHandlers) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return
	}

	limit := parseQueryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := parseQueryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, err := h.service.ListHistory(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=history msg=\"listing failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch transaction history")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"records": records, "limit": limit, "offset": offset})
}

// BillCallbackHandler receives the provider's HTTP status callback for a
// purchase left processing. It shares the idempotent resolution path with the
// broker consumer, so replays are harmless.
func (h *SettlementHandlers) BillCallbackHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(settlementRequestDuration.WithLabelValues("bill_callback"))
	defer timer.ObserveDuration()

	var event domain.BillStatusEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		settlementRequestsTotal.WithLabelValues("bill_callback", "bad_request").Inc()
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if event.RequestID == "" {
		settlementRequestsTotal.WithLabelValues("bill_callback", "bad_request").Inc()
		h.writeError(w, http.StatusBadRequest, "request_id is required")
		return
	}

	if err := h.service.ResolvePurchase(r.Context(), event); err != nil {
		var postProvider *app.BalancePostProviderError
		if errors.As(err, &postProvider) {
			// Acknowledged so the provider stops retrying; the failure is
			// already flagged for manual intervention.
			settlementRequestsTotal.WithLabelValues("bill_callback", "manual_intervention").Inc()
			h.writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
			return
		}
		settlementRequestsTotal.WithLabelValues("bill_callback", "error").Inc()
		log.Printf("level=error component=api endpoint=bill_callback msg=\"resolution failed\" request_id=%s err=%v", event.RequestID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to process callback")
		return
	}

	settlementRequestsTotal.WithLabelValues("bill_callback", "success").Inc()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

// SweepHandler triggers an immediate stale-purchase sweep, outside the cron
// schedule. Ops use only.
func (h *SettlementHandlers) SweepHandler(staleAfter time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resolved := h.service.SweepStalePurchases(r.Context(), staleAfter)
		evicted := h.service.EvictExpiredQuotes(r.Context())
		h.writeJSON(w, http.StatusOK, map[string]int{"purchases_resolved": resolved, "quotes_evicted": evicted})
	}
}

// ListProcessingPurchasesHandler lists purchases still awaiting asynchronous
// resolution. Ops use only.
func (h *SettlementHandlers) ListProcessingPurchasesHandler(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", 100)
	purchases, err := h.service.ListProcessingPurchases(r.Context(), limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=processing_purchases msg=\"listing failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list processing purchases")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases, "count": len(purchases)})
}

// handleServiceError maps application errors onto HTTP status codes.
func (h *SettlementHandlers) handleServiceError(w http.ResponseWriter, endpoint string, err error) {
	var validation *app.ValidationError
	if errors.As(err, &validation) {
		h.writeError(w, http.StatusBadRequest, validation.Error())
		return
	}

	var insufficient *app.InsufficientFundsError
	if errors.As(err, &insufficient) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "insufficient funds",
			"currency":  insufficient.Currency,
			"available": insufficient.Available,
			"required":  insufficient.Required,
		})
		return
	}

	var postProvider *app.BalancePostProviderError
	if errors.As(err, &postProvider) {
		log.Printf("level=error component=api endpoint=%s msg=\"post-provider balance failure\" order_id=%s err=%v", endpoint, postProvider.OrderID, err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":    "purchase failed after provider commitment; support has been notified",
			"order_id": postProvider.OrderID,
		})
		return
	}

	switch {
	case errors.Is(err, app.ErrQuoteNotFound):
		h.writeError(w, http.StatusNotFound, "Quote not found or already used")
	case errors.Is(err, app.ErrQuoteExpired):
		h.writeError(w, http.StatusGone, "Quote has expired, please request a new one")
	case errors.Is(err, app.ErrUnsupportedPair):
		h.writeError(w, http.StatusBadRequest, "Currency pair not supported")
	case errors.Is(err, app.ErrDuplicateRequest):
		var duplicate *app.DuplicateRequestError
		if errors.As(err, &duplicate) && duplicate.OrderID != uuid.Nil {
			h.writeJSON(w, http.StatusConflict, map[string]any{
				"error":    "duplicate request",
				"order_id": duplicate.OrderID,
			})
			return
		}
		h.writeError(w, http.StatusConflict, "Duplicate request")
	case errors.Is(err, app.ErrProviderUnavailable):
		h.writeError(w, http.StatusBadGateway, "Provider unavailable, please retry")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled service error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseQueryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// writeJSON is a helper for writing JSON responses.
func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
