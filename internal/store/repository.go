/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the settlement-service. By defining an
 * interface, we decouple the settlement logic from the specific database
 * implementation (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - github.com/shopspring/decimal: For NUMERIC amounts.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Balance ledger primitives. Every mutation is a single conditional SQL
	// statement; available and pending can never go negative.
	GetBalance(ctx context.Context, userID uuid.UUID, currency string) (*domain.Balance, error)
	ListBalances(ctx context.Context, userID uuid.UUID) ([]domain.Balance, error)
	Reserve(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal) error

	// SwapWithRecords performs the atomic currency swap: conditional debit of
	// the source currency, credit of the destination currency, and both history
	// legs written in one database transaction.
	SwapWithRecords(ctx context.Context, params SwapParams) error

	// Transaction history.
	CreateSimpleRecord(ctx context.Context, rec *domain.TransactionRecord) error
	FinalizeRecord(ctx context.Context, recordID uuid.UUID, status string, externalReference *string) error
	FindRecordsByReference(ctx context.Context, reference uuid.UUID) ([]domain.TransactionRecord, error)
	ListRecordsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransactionRecord, error)

	// Purchases.
	// CreatePurchaseWithKey claims the client idempotency key and inserts the
	// purchase row in one transaction; returns false without writing anything
	// when the key is already claimed.
	CreatePurchaseWithKey(ctx context.Context, p *domain.Purchase) (bool, error)
	FindPurchaseByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Purchase, error)
	FindPurchaseByRequestID(ctx context.Context, requestID string) (*domain.Purchase, error)
	UpdatePurchase(ctx context.Context, orderID uuid.UUID, params UpdatePurchaseParams) error
	// FinalizePurchase moves a purchase into a terminal state only if it is not
	// terminal already; returns false when another path finalized it first.
	FinalizePurchase(ctx context.Context, orderID uuid.UUID, status string, externalReference *string, processingError *string) (bool, error)
	// FinalizePurchaseWithBalance runs the terminal transition and its balance
	// statement in one transaction, predicated on the purchase not being
	// terminal yet. Exactly one of any set of concurrent resolvers gets true;
	// the rest see false and must leave the balance alone.
	FinalizePurchaseWithBalance(ctx context.Context, params ResolvePurchaseParams) (bool, error)
	AppendPurchaseError(ctx context.Context, orderID uuid.UUID, message string) error
	ListStalePurchases(ctx context.Context, cutoff time.Time, limit int) ([]domain.Purchase, error)
	ListProcessingPurchases(ctx context.Context, limit int) ([]domain.Purchase, error)

	// Idempotency keys.
	FindOrderIDByIdempotencyKey(ctx context.Context, key string) (uuid.UUID, error)

	// Audit log. Best effort; callers never propagate a failure here.
	InsertAuditEvent(ctx context.Context, ev domain.AuditEvent) error
}

// SwapParams carries everything needed for one atomic swap settlement.
type SwapParams struct {
	UserID         uuid.UUID
	SourceCurrency string
	DestCurrency   string
	SourceAmount   decimal.Decimal
	DestAmount     decimal.Decimal
	Reference      uuid.UUID
	CorrelationID  uuid.UUID
}

// Balance statements FinalizePurchaseWithBalance can run inside the claiming
// transaction.
const (
	BalanceOpNone    = ""
	BalanceOpDebit   = "debit"
	BalanceOpSettle  = "settle"
	BalanceOpRelease = "release"
)

// ResolvePurchaseParams carries one terminal purchase transition together with
// the balance statement that must commit with it.
type ResolvePurchaseParams struct {
	OrderID           uuid.UUID
	Status            string
	ExternalReference *string
	ProcessingError   *string
	UserID            uuid.UUID
	Currency          string
	Amount            decimal.Decimal
	BalanceOp         string
}

// UpdatePurchaseParams is a partial update for a purchase row; nil fields are
// left untouched.
type UpdatePurchaseParams struct {
	Status            *string
	ExternalReference *string
	BalanceReserved   *bool
	BalanceCompleted  *bool
}
