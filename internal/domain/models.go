/**
 * @description
 * This file defines the core domain models for the settlement-service. These
 * structs represent the main entities and data transfer objects (DTOs) used
 * throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts and exchange rates use `decimal.Decimal` (stored as NUMERIC) because
 *   crypto legs need sub-cent precision that int64 minor units cannot represent.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Supported balance currencies. NGNZ is the fiat-pegged stable balance; every
// conversion pair must have NGNZ on one side.
const (
	CurrencyNGNZ = "NGNZ"
	CurrencyBTC  = "BTC"
	CurrencyETH  = "ETH"
	CurrencyUSDT = "USDT"
)

// Quote sides. BUY converts stable balance into crypto, SELL the reverse.
const (
	QuoteSideBuy  = "BUY"
	QuoteSideSell = "SELL"
)

// Transaction record statuses.
const (
	RecordStatusPending    = "PENDING"
	RecordStatusSuccessful = "SUCCESSFUL"
	RecordStatusFailed     = "FAILED"
)

// Purchase lifecycle statuses. completed, failed and refunded are terminal.
const (
	PurchaseStatusInitiated  = "initiated"
	PurchaseStatusProcessing = "processing"
	PurchaseStatusCompleted  = "completed"
	PurchaseStatusFailed     = "failed"
	PurchaseStatusRefunded   = "refunded"
)

// Bill types a purchase can be fulfilled against.
const (
	BillTypeAirtime     = "airtime"
	BillTypeBetting     = "betting"
	BillTypeCableTV     = "cable_tv"
	BillTypeElectricity = "electricity"
)

// Quote is a time-bounded, price-locked conversion offer. Quotes live only in
// the quote cache and are consumed at most once.
type Quote struct {
	ID             uuid.UUID       `json:"id"`
	SourceCurrency string          `json:"source_currency"`
	DestCurrency   string          `json:"dest_currency"`
	SourceAmount   decimal.Decimal `json:"source_amount"`
	DestAmount     decimal.Decimal `json:"dest_amount"`
	Rate           decimal.Decimal `json:"rate"`
	Side           string          `json:"side"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CorrelationID  uuid.UUID       `json:"correlation_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Expired reports whether the quote is past its expiry at the given instant.
// Wall-clock comparison is the source of truth; cache TTLs are cleanup only.
func (q *Quote) Expired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// Balance is the authoritative per-user, per-currency balance pair. Both legs
// are never negative; they are mutated only through the store primitives.
type Balance struct {
	UserID    uuid.UUID       `json:"user_id"`
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Pending   decimal.Decimal `json:"pending"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TransactionRecord is one immutable leg of the transaction history. A swap
// produces two records (negative OUT leg, positive IN leg) sharing one
// reference; a plain debit or credit produces a single record.
type TransactionRecord struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	Currency          string          `json:"currency"`
	Amount            decimal.Decimal `json:"amount"` // signed: negative = debit
	Status            string          `json:"status"`
	Reference         uuid.UUID       `json:"reference"`
	ExternalReference *string         `json:"external_reference,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Purchase represents a provider-fulfilled bill purchase. OrderID doubles as
// the primary key; RequestID is the idempotency key sent to the provider and
// reused verbatim on every retry so the provider can deduplicate.
type Purchase struct {
	OrderID           uuid.UUID       `json:"order_id"`
	RequestID         string          `json:"request_id"`
	UserID            uuid.UUID       `json:"user_id"`
	BillType          string          `json:"bill_type"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	BalanceReserved   bool            `json:"balance_reserved"`
	BalanceCompleted  bool            `json:"balance_completed"`
	ProcessingErrors  []string        `json:"processing_errors,omitempty"`
	ExternalReference *string         `json:"external_reference,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Terminal reports whether the purchase is in a final state.
func (p *Purchase) Terminal() bool {
	switch p.Status {
	case PurchaseStatusCompleted, PurchaseStatusFailed, PurchaseStatusRefunded:
		return true
	}
	return false
}

// AuditEvent is one best-effort, append-only entry in the audit trail. All
// events of one logical operation share a correlation id, including its
// asynchronous continuation via callback or sweep.
type AuditEvent struct {
	EventType     string         `json:"event_type"`
	Status        string         `json:"status"`
	Before        map[string]any `json:"before,omitempty"`
	After         map[string]any `json:"after,omitempty"`
	CorrelationID uuid.UUID      `json:"correlation_id"`
	Duration      time.Duration  `json:"duration_ns"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// CreateQuoteRequest is the DTO for incoming quote creation API requests.
type CreateQuoteRequest struct {
	SourceCurrency string          `json:"source_currency"`
	DestCurrency   string          `json:"dest_currency"`
	Amount         decimal.Decimal `json:"amount"`
	Side           string          `json:"side"`
}

// SwapRequest accepts a previously created quote by id.
type SwapRequest struct {
	QuoteID uuid.UUID `json:"quote_id"`
}

// SwapResult is returned after a successful synchronous swap settlement.
type SwapResult struct {
	Reference      uuid.UUID       `json:"reference"`
	SourceCurrency string          `json:"source_currency"`
	DestCurrency   string          `json:"dest_currency"`
	SourceAmount   decimal.Decimal `json:"source_amount"`
	DestAmount     decimal.Decimal `json:"dest_amount"`
	NewBalances    []Balance       `json:"new_balances"`
}

// PurchaseRequest is the DTO for provider-fulfilled purchase API requests.
// ProviderPayload is passed through to the adapter opaquely; shaping it per
// bill type is the adapter's concern, not the settlement engine's.
type PurchaseRequest struct {
	BillType        string            `json:"bill_type"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	RequestRef      string            `json:"request_ref"`
	ProviderPayload map[string]string `json:"provider_payload,omitempty"`
}

// PurchaseResult summarizes the synchronous outcome of a purchase request. A
// processing purchase has the amount moved to pending and completes later via
// callback or sweep.
type PurchaseResult struct {
	OrderID           uuid.UUID `json:"order_id"`
	RequestID         string    `json:"request_id"`
	Status            string    `json:"status"`
	BalanceReserved   bool      `json:"balance_reserved"`
	ExternalReference *string   `json:"external_reference,omitempty"`
	NewBalance        *Balance  `json:"new_balance,omitempty"`
}

// BillStatusEvent is the asynchronous provider status delivery for a purchase
// that was left processing. It arrives over the message broker or the HTTP
// callback endpoint and must be idempotent against replay.
type BillStatusEvent struct {
	RequestID         string `json:"request_id"`
	ExternalReference string `json:"external_reference,omitempty"`
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
}

// LiquidityReconcileJob is enqueued after a swap settles so a decoupled worker
// can rebalance upstream liquidity without blocking the user response.
type LiquidityReconcileJob struct {
	CorrelationID  uuid.UUID       `json:"correlation_id"`
	SourceCurrency string          `json:"source_currency"`
	DestCurrency   string          `json:"dest_currency"`
	SourceAmount   decimal.Decimal `json:"source_amount"`
	DestAmount     decimal.Decimal `json:"dest_amount"`
	Attempt        int             `json:"attempt"`
}
