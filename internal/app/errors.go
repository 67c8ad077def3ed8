/**
 * @description
 * This file defines the settlement error taxonomy. Validation, quote and funds
 * errors are side-effect free; provider errors carry no balance side effect
 * because the provider call always precedes any balance mutation; the
 * post-provider balance error is the single fatal, manual-intervention case.
 */

package app

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrQuoteNotFound    = errors.New("quote not found")
	ErrQuoteExpired     = errors.New("quote expired")
	ErrUnsupportedPair  = errors.New("currency pair not supported")
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrProviderUnavailable is the only error surfaced to callers for any
	// provider-side failure; the full provider detail stays in logs and audit.
	ErrProviderUnavailable = errors.New("provider unavailable, please retry")
)

// DuplicateRequestError rejects a replayed request reference and points the
// caller at the purchase the original request created. It unwraps to
// ErrDuplicateRequest.
type DuplicateRequestError struct {
	OrderID uuid.UUID
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("duplicate request: original order %s", e.OrderID)
}

func (e *DuplicateRequestError) Unwrap() error {
	return ErrDuplicateRequest
}

// ValidationError is a side-effect-free rejection of a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// InsufficientFundsError carries the actionable detail callers need: what was
// available versus what the operation required.
type InsufficientFundsError struct {
	Currency  string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %s available %s, required %s", e.Currency, e.Available, e.Required)
}

// BalancePostProviderError is fatal: the provider already committed but the
// local ledger could not record it. It is never retried automatically and
// triggers operational alerting via the audit trail.
type BalancePostProviderError struct {
	OrderID uuid.UUID
	Cause   error
}

func (e *BalancePostProviderError) Error() string {
	return fmt.Sprintf("manual intervention required: provider committed but ledger update failed for order %s: %v", e.OrderID, e.Cause)
}

func (e *BalancePostProviderError) Unwrap() error {
	return e.Cause
}
