/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to balances, transaction records, purchases, idempotency keys and the
 * audit log.
 *
 * The ledger primitives are deliberately single conditional statements
 * (`UPDATE ... WHERE available >= $n`) rather than read-then-write sequences:
 * the row-level atomicity of the statement is the only mutual exclusion the
 * service relies on for balance safety.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: NUMERIC amounts.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrBalanceNotFound        = errors.New("balance not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientPending    = errors.New("insufficient pending balance")
	ErrRecordNotFound         = errors.New("transaction record not found")
	ErrRecordFinalized        = errors.New("transaction record already finalized")
	ErrPurchaseNotFound       = errors.New("purchase not found")
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetBalance retrieves the balance pair for one (user, currency).
func (r *PostgresRepository) GetBalance(ctx context.Context, userID uuid.UUID, currency string) (*domain.Balance, error) {
	var b domain.Balance
	query := `SELECT user_id, currency, available, pending, updated_at FROM balances WHERE user_id = $1 AND currency = $2`
	err := r.db.QueryRow(ctx, query, userID, currency).Scan(&b.UserID, &b.Currency, &b.Available, &b.Pending, &b.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ListBalances retrieves all currency balances held by a user.
func (r *PostgresRepository) ListBalances(ctx context.Context, userID uuid.UUID) ([]domain.Balance, error) {
	query := `SELECT user_id, currency, available, pending, updated_at FROM balances WHERE user_id = $1 ORDER BY currency`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.UserID, &b.Currency, &b.Available, &b.Pending, &b.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// Reserve moves amount from available to pending in one conditional statement.
// A lost race and genuinely missing funds are indistinguishable: both surface
// as ErrInsufficientFunds and are not retried.
func (r *PostgresRepository) Reserve(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal) error {
	query := `
		UPDATE balances
		SET available = available - $3, pending = pending + $3, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2 AND available >= $3
	`
	tag, err := r.db.Exec(ctx, query, userID, currency, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// SwapWithRecords executes the atomic swap settlement: conditional debit of
// the source currency, credit of the destination, and the two history legs,
// all inside one database transaction so balance and history are never
// observably inconsistent.
func (r *PostgresRepository) SwapWithRecords(ctx context.Context, params SwapParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin swap transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	debit := `
		UPDATE balances
		SET available = available - $3, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2 AND available >= $3
	`
	tag, err := tx.Exec(ctx, debit, params.UserID, params.SourceCurrency, params.SourceAmount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}

	credit := `
		INSERT INTO balances (user_id, currency, available, pending, updated_at)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (user_id, currency)
		DO UPDATE SET available = balances.available + EXCLUDED.available, updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, credit, params.UserID, params.DestCurrency, params.DestAmount); err != nil {
		return err
	}

	metadata, err := json.Marshal(map[string]any{"correlation_id": params.CorrelationID})
	if err != nil {
		return err
	}

	// Both legs share the reference: negative OUT leg, positive IN leg.
	insert := `
		INSERT INTO transaction_records (id, user_id, currency, amount, status, reference, metadata, created_at, updated_at)
		VALUES
			($1, $3, $4, $5, $8, $9, $10, NOW(), NOW()),
			($2, $3, $6, $7, $8, $9, $10, NOW(), NOW())
	`
	_, err = tx.Exec(ctx, insert,
		uuid.New(), uuid.New(), params.UserID,
		params.SourceCurrency, params.SourceAmount.Neg(),
		params.DestCurrency, params.DestAmount,
		domain.RecordStatusSuccessful, params.Reference, metadata,
	)
	if err != nil {
		return fmt.Errorf("insert swap records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit swap transaction: %w", err)
	}
	return nil
}

// CreateSimpleRecord writes a single-leg history record for a plain debit or credit.
func (r *PostgresRepository) CreateSimpleRecord(ctx context.Context, rec *domain.TransactionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO transaction_records (id, user_id, currency, amount, status, reference, external_reference, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err = r.db.Exec(ctx, query, rec.ID, rec.UserID, rec.Currency, rec.Amount, rec.Status, rec.Reference, rec.ExternalReference, metadata)
	return err
}

// FinalizeRecord transitions a PENDING record to SUCCESSFUL or FAILED exactly
// once. Records already in a terminal state are immutable.
func (r *PostgresRepository) FinalizeRecord(ctx context.Context, recordID uuid.UUID, status string, externalReference *string) error {
	query := `
		UPDATE transaction_records
		SET status = $2, external_reference = COALESCE($3, external_reference), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, recordID, status, externalReference, domain.RecordStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if checkErr := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transaction_records WHERE id = $1)`, recordID).Scan(&exists); checkErr != nil {
			return checkErr
		}
		if !exists {
			return ErrRecordNotFound
		}
		return ErrRecordFinalized
	}
	return nil
}

// FindRecordsByReference returns all legs sharing one reference.
func (r *PostgresRepository) FindRecordsByReference(ctx context.Context, reference uuid.UUID) ([]domain.TransactionRecord, error) {
	query := `
		SELECT id, user_id, currency, amount, status, reference, external_reference, metadata, created_at, updated_at
		FROM transaction_records
		WHERE reference = $1
		ORDER BY amount ASC
	`
	rows, err := r.db.Query(ctx, query, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecordsByUser returns a page of a user's transaction history, newest first.
func (r *PostgresRepository) ListRecordsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransactionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT id, user_id, currency, amount, status, reference, external_reference, metadata, created_at, updated_at
		FROM transaction_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]domain.TransactionRecord, error) {
	var records []domain.TransactionRecord
	for rows.Next() {
		var rec domain.TransactionRecord
		var metadata []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Currency, &rec.Amount, &rec.Status, &rec.Reference, &rec.ExternalReference, &metadata, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode record metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CreatePurchaseWithKey claims the client's idempotency key and inserts the
// purchase row in one transaction. A duplicate key returns (false, nil) with
// nothing written; any later failure rolls the key claim back too, so a
// legitimate retry of the same request is never locked out by a half-created
// purchase.
func (r *PostgresRepository) CreatePurchaseWithKey(ctx context.Context, p *domain.Purchase) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin purchase transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	claim := `INSERT INTO idempotency_keys (key, user_id, bill_type, order_id, created_at) VALUES ($1, $2, $3, $4, NOW())`
	if _, err := tx.Exec(ctx, claim, p.RequestID, p.UserID, p.BillType, p.OrderID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}

	insert := `
		INSERT INTO purchases (order_id, request_id, user_id, bill_type, status, amount, currency, balance_reserved, balance_completed, processing_errors, external_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`
	_, err = tx.Exec(ctx, insert,
		p.OrderID, p.RequestID, p.UserID, p.BillType, p.Status,
		p.Amount, p.Currency, p.BalanceReserved, p.BalanceCompleted,
		p.ProcessingErrors, p.ExternalReference,
	)
	if err != nil {
		return false, fmt.Errorf("insert purchase: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit purchase transaction: %w", err)
	}
	return true, nil
}

// FindPurchaseByOrderID retrieves a purchase by its order id.
func (r *PostgresRepository) FindPurchaseByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Purchase, error) {
	return r.findPurchase(ctx, `order_id = $1`, orderID)
}

// FindPurchaseByRequestID retrieves a purchase by the idempotency key sent to
// the provider; callbacks and sweeps are keyed by it.
func (r *PostgresRepository) FindPurchaseByRequestID(ctx context.Context, requestID string) (*domain.Purchase, error) {
	return r.findPurchase(ctx, `request_id = $1`, requestID)
}

func (r *PostgresRepository) findPurchase(ctx context.Context, where string, arg any) (*domain.Purchase, error) {
	var p domain.Purchase
	query := `
		SELECT order_id, request_id, user_id, bill_type, status, amount, currency, balance_reserved, balance_completed, processing_errors, external_reference, created_at, updated_at
		FROM purchases
		WHERE ` + where
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.OrderID, &p.RequestID, &p.UserID, &p.BillType, &p.Status,
		&p.Amount, &p.Currency, &p.BalanceReserved, &p.BalanceCompleted,
		&p.ProcessingErrors, &p.ExternalReference, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdatePurchase applies a partial update; nil params leave columns untouched.
// Terminal rows are immutable, so a late update can never reopen a purchase a
// concurrent resolver already finalized.
func (r *PostgresRepository) UpdatePurchase(ctx context.Context, orderID uuid.UUID, params UpdatePurchaseParams) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{orderID}
	idx := 2
	if params.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *params.Status)
		idx++
	}
	if params.ExternalReference != nil {
		sets = append(sets, fmt.Sprintf("external_reference = $%d", idx))
		args = append(args, *params.ExternalReference)
		idx++
	}
	if params.BalanceReserved != nil {
		sets = append(sets, fmt.Sprintf("balance_reserved = $%d", idx))
		args = append(args, *params.BalanceReserved)
		idx++
	}
	if params.BalanceCompleted != nil {
		sets = append(sets, fmt.Sprintf("balance_completed = $%d", idx))
		args = append(args, *params.BalanceCompleted)
		idx++
	}

	query := fmt.Sprintf("UPDATE purchases SET %s WHERE order_id = $1 AND status NOT IN ('completed', 'failed', 'refunded')", strings.Join(sets, ", "))
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

// FinalizePurchase moves a purchase into a terminal state only when it is not
// terminal yet, which keeps callback replays and the sweep idempotent.
func (r *PostgresRepository) FinalizePurchase(ctx context.Context, orderID uuid.UUID, status string, externalReference *string, processingError *string) (bool, error) {
	query := `
		UPDATE purchases
		SET status = $2,
		    external_reference = COALESCE($3, external_reference),
		    processing_errors = CASE WHEN $4::text IS NULL THEN processing_errors ELSE array_append(processing_errors, $4::text) END,
		    balance_completed = (CASE WHEN $2 = 'completed' THEN TRUE ELSE balance_completed END),
		    balance_reserved = FALSE,
		    updated_at = NOW()
		WHERE order_id = $1 AND status NOT IN ('completed', 'failed', 'refunded')
	`
	tag, err := r.db.Exec(ctx, query, orderID, status, externalReference, processingError)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FinalizePurchaseWithBalance claims the terminal transition and applies the
// matching balance statement in one transaction. The conditional status flip
// runs first: when a concurrent resolver already finalized the purchase it
// affects zero rows and the transaction rolls back before any balance is
// touched, so a reservation is settled or released at most once no matter how
// many callbacks, sweeps or redeliveries race on the same purchase.
func (r *PostgresRepository) FinalizePurchaseWithBalance(ctx context.Context, params ResolvePurchaseParams) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin resolve transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	claim := `
		UPDATE purchases
		SET status = $2,
		    external_reference = COALESCE($3, external_reference),
		    processing_errors = CASE WHEN $4::text IS NULL THEN processing_errors ELSE array_append(processing_errors, $4::text) END,
		    balance_completed = (CASE WHEN $2 = 'completed' THEN TRUE ELSE balance_completed END),
		    balance_reserved = FALSE,
		    updated_at = NOW()
		WHERE order_id = $1 AND status NOT IN ('completed', 'failed', 'refunded')
	`
	tag, err := tx.Exec(ctx, claim, params.OrderID, params.Status, params.ExternalReference, params.ProcessingError)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	var balance string
	var emptyErr error
	switch params.BalanceOp {
	case BalanceOpDebit:
		balance = `UPDATE balances SET available = available - $3, updated_at = NOW() WHERE user_id = $1 AND currency = $2 AND available >= $3`
		emptyErr = ErrInsufficientFunds
	case BalanceOpSettle:
		balance = `UPDATE balances SET pending = pending - $3, updated_at = NOW() WHERE user_id = $1 AND currency = $2 AND pending >= $3`
		emptyErr = ErrInsufficientPending
	case BalanceOpRelease:
		balance = `UPDATE balances SET available = available + $3, pending = pending - $3, updated_at = NOW() WHERE user_id = $1 AND currency = $2 AND pending >= $3`
		emptyErr = ErrInsufficientPending
	case BalanceOpNone:
	default:
		return false, fmt.Errorf("unknown balance op %q", params.BalanceOp)
	}
	if balance != "" {
		tag, err := tx.Exec(ctx, balance, params.UserID, params.Currency, params.Amount)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() == 0 {
			return false, emptyErr
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit resolve transaction: %w", err)
	}
	return true, nil
}

// AppendPurchaseError records a non-fatal processing error against a purchase.
func (r *PostgresRepository) AppendPurchaseError(ctx context.Context, orderID uuid.UUID, message string) error {
	query := `UPDATE purchases SET processing_errors = array_append(processing_errors, $2), updated_at = NOW() WHERE order_id = $1`
	_, err := r.db.Exec(ctx, query, orderID, message)
	return err
}

// ListStalePurchases returns non-terminal purchases created before the cutoff,
// oldest first, for the sweep to force-resolve.
func (r *PostgresRepository) ListStalePurchases(ctx context.Context, cutoff time.Time, limit int) ([]domain.Purchase, error) {
	query := `
		SELECT order_id, request_id, user_id, bill_type, status, amount, currency, balance_reserved, balance_completed, processing_errors, external_reference, created_at, updated_at
		FROM purchases
		WHERE status IN ('initiated', 'processing') AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPurchases(rows)
}

// ListProcessingPurchases returns purchases awaiting asynchronous resolution,
// used by the operational reconcile endpoint.
func (r *PostgresRepository) ListProcessingPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	query := `
		SELECT order_id, request_id, user_id, bill_type, status, amount, currency, balance_reserved, balance_completed, processing_errors, external_reference, created_at, updated_at
		FROM purchases
		WHERE status = 'processing'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPurchases(rows)
}

func scanPurchases(rows pgx.Rows) ([]domain.Purchase, error) {
	var purchases []domain.Purchase
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(
			&p.OrderID, &p.RequestID, &p.UserID, &p.BillType, &p.Status,
			&p.Amount, &p.Currency, &p.BalanceReserved, &p.BalanceCompleted,
			&p.ProcessingErrors, &p.ExternalReference, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// FindOrderIDByIdempotencyKey resolves a previously claimed key to its purchase.
func (r *PostgresRepository) FindOrderIDByIdempotencyKey(ctx context.Context, key string) (uuid.UUID, error) {
	var orderID uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT order_id FROM idempotency_keys WHERE key = $1`, key).Scan(&orderID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrIdempotencyKeyNotFound
		}
		return uuid.Nil, err
	}
	return orderID, nil
}

// InsertAuditEvent appends one audit trail row. The audit table carries a
// serialized before/after snapshot; write failures are the caller's to swallow.
func (r *PostgresRepository) InsertAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	before, err := json.Marshal(ev.Before)
	if err != nil {
		return err
	}
	after, err := json.Marshal(ev.After)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO audit_events (event_type, status, before_state, after_state, correlation_id, duration_ns, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query, ev.EventType, ev.Status, before, after, ev.CorrelationID, ev.Duration.Nanoseconds(), ev.OccurredAt)
	return err
}
