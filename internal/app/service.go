/**
 * @description
 * This file contains the settlement orchestrator. The `Service` struct
 * coordinates validation, the provider call, balance mutation and rollback for
 * the two settlement shapes: the synchronous internal swap and the
 * asynchronous provider-fulfilled purchase.
 *
 * Key invariants:
 * - The provider call always precedes any balance mutation in the purchase
 *   shape; a failed call therefore needs no compensation.
 * - In the swap shape, the balance mutation and both history legs commit in
 *   one database transaction with no observable intermediate state.
 * - A purchase is finalized by exactly one resolver: the terminal status flip
 *   and the matching balance statement commit together, conditional on the
 *   purchase not being terminal yet.
 * - Audit emission and liquidity reconciliation are dispatched off the
 *   response path and can never fail a settlement.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/providerclient, pkg/priceoracle, pkg/rabbitmq: External collaborators.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/internal/store"
	"github.com/kudipay/settlement-service/pkg/priceoracle"
	"github.com/kudipay/settlement-service/pkg/providerclient"
	"github.com/kudipay/settlement-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

const (
	// EventsExchange carries audit events and reconciliation jobs.
	EventsExchange = "settlement.events"

	routingLiquidityReconcile = "liquidity.reconcile.requested"
)

// ProviderClient is the slice of the provider adapter the orchestrator uses.
type ProviderClient interface {
	Submit(ctx context.Context, req providerclient.SubmitRequest) (*providerclient.SubmitResult, error)
	QueryStatus(ctx context.Context, requestID string) (*providerclient.SubmitResult, error)
	RebalanceLiquidity(ctx context.Context, correlationID, sourceCurrency, destCurrency string, sourceAmount, destAmount decimal.Decimal) error
}

// PriceSource is the read-only price oracle contract.
type PriceSource interface {
	GetPrice(ctx context.Context, code string) (*priceoracle.Price, error)
	GetFiatRate(ctx context.Context, direction string) (*priceoracle.FiatRate, error)
}

// AuditSink receives audit events without ever blocking or failing the caller.
type AuditSink interface {
	Emit(event domain.AuditEvent)
}

// Service provides the settlement engine's business logic.
type Service struct {
	repo            store.Repository
	provider        ProviderClient
	prices          PriceSource
	quotes          QuoteCache
	audit           AuditSink
	eventProducer   rabbitmq.Publisher
	quoteTTL        time.Duration
	markdownPercent decimal.Decimal
}

// NewService creates a new settlement service instance.
func NewService(
	repo store.Repository,
	provider ProviderClient,
	prices PriceSource,
	quotes QuoteCache,
	audit AuditSink,
	producer rabbitmq.Publisher,
	quoteTTL time.Duration,
	markdownPercent decimal.Decimal,
) *Service {
	if quoteTTL <= 0 {
		quoteTTL = 15 * time.Second
	}
	return &Service{
		repo:            repo,
		provider:        provider,
		prices:          prices,
		quotes:          quotes,
		audit:           audit,
		eventProducer:   producer,
		quoteTTL:        quoteTTL,
		markdownPercent: markdownPercent,
	}
}

// Swap settles an accepted quote: the atomic swap of balances plus the
// double-entry record pair, followed by the non-blocking liquidity
// reconciliation dispatch.
func (s *Service) Swap(ctx context.Context, userID uuid.UUID, quoteID uuid.UUID) (*domain.SwapResult, error) {
	started := time.Now()

	quote, err := s.acceptQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	reference := uuid.New()
	params := store.SwapParams{
		UserID:         userID,
		SourceCurrency: quote.SourceCurrency,
		DestCurrency:   quote.DestCurrency,
		SourceAmount:   quote.SourceAmount,
		DestAmount:     quote.DestAmount,
		Reference:      reference,
		CorrelationID:  quote.CorrelationID,
	}

	if err := s.repo.SwapWithRecords(ctx, params); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			s.emitAudit("swap", "FAILED", quote.CorrelationID, started, map[string]any{
				"quote_id": quote.ID, "reason": "insufficient funds",
			})
			return nil, s.insufficientFunds(ctx, userID, quote.SourceCurrency, quote.SourceAmount)
		}
		s.emitAudit("swap", "FAILED", quote.CorrelationID, started, map[string]any{
			"quote_id": quote.ID, "reason": err.Error(),
		})
		return nil, fmt.Errorf("swap settlement failed: %w", err)
	}

	s.emitAudit("swap", "SUCCESS", quote.CorrelationID, started, map[string]any{
		"quote_id":  quote.ID,
		"reference": reference,
		"pair":      quote.SourceCurrency + "/" + quote.DestCurrency,
	})

	// Upstream liquidity reconciliation is queue-driven; a publish failure
	// affects only audit, never the settled swap or the user response.
	if s.eventProducer != nil {
		job := domain.LiquidityReconcileJob{
			CorrelationID:  quote.CorrelationID,
			SourceCurrency: quote.SourceCurrency,
			DestCurrency:   quote.DestCurrency,
			SourceAmount:   quote.SourceAmount,
			DestAmount:     quote.DestAmount,
		}
		if err := s.eventProducer.Publish(ctx, EventsExchange, routingLiquidityReconcile, job); err != nil {
			log.Printf("level=warn component=service flow=swap msg=\"liquidity reconcile enqueue failed\" correlation_id=%s err=%v", quote.CorrelationID, err)
			s.emitAudit("liquidity_reconcile_enqueue", "FAILED", quote.CorrelationID, started, map[string]any{"reason": err.Error()})
		}
	}

	result := &domain.SwapResult{
		Reference:      reference,
		SourceCurrency: quote.SourceCurrency,
		DestCurrency:   quote.DestCurrency,
		SourceAmount:   quote.SourceAmount,
		DestAmount:     quote.DestAmount,
	}
	for _, currency := range []string{quote.SourceCurrency, quote.DestCurrency} {
		if balance, balErr := s.repo.GetBalance(ctx, userID, currency); balErr == nil {
			result.NewBalances = append(result.NewBalances, *balance)
		}
	}
	return result, nil
}

// Purchase runs the asynchronous settlement shape: record the intent, call the
// provider, then branch the balance action on the provider's status. The
// provider call always comes before any balance mutation.
func (s *Service) Purchase(ctx context.Context, userID uuid.UUID, req domain.PurchaseRequest) (*domain.PurchaseResult, error) {
	started := time.Now()

	if err := validatePurchaseRequest(req); err != nil {
		return nil, err
	}

	// Read-only sufficiency check before touching the provider. The actual
	// debit is still conditional; this only keeps obviously underfunded
	// requests from consuming a provider round trip.
	balance, err := s.repo.GetBalance(ctx, userID, req.Currency)
	if err != nil {
		if errors.Is(err, store.ErrBalanceNotFound) {
			return nil, &InsufficientFundsError{Currency: req.Currency, Available: decimal.Zero, Required: req.Amount}
		}
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance.Available.Cmp(req.Amount) < 0 {
		return nil, &InsufficientFundsError{Currency: req.Currency, Available: balance.Available, Required: req.Amount}
	}

	orderID := uuid.New()
	purchase := &domain.Purchase{
		OrderID:   orderID,
		RequestID: req.RequestRef,
		UserID:    userID,
		BillType:  req.BillType,
		Status:    domain.PurchaseStatusInitiated,
		Amount:    req.Amount,
		Currency:  req.Currency,
	}

	// The idempotency key and the purchase row commit in one transaction,
	// before any provider call. A replayed client request never reaches the
	// provider twice from here, and a failed insert rolls the key claim back
	// so the client can retry the same request reference.
	created, err := s.repo.CreatePurchaseWithKey(ctx, purchase)
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	if !created {
		existing, lookupErr := s.repo.FindOrderIDByIdempotencyKey(ctx, req.RequestRef)
		if lookupErr != nil {
			log.Printf("level=warn component=service flow=purchase msg=\"duplicate key but original order lookup failed\" request_id=%s err=%v", req.RequestRef, lookupErr)
		}
		return nil, &DuplicateRequestError{OrderID: existing}
	}

	s.emitAudit("purchase", "INITIATED", orderID, started, map[string]any{
		"bill_type": req.BillType, "amount": req.Amount, "request_id": req.RequestRef,
	})

	submitResult, err := s.provider.Submit(ctx, providerclient.SubmitRequest{
		RequestID: req.RequestRef,
		BillType:  req.BillType,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Payload:   req.ProviderPayload,
	})
	if err != nil {
		// No provider-side commitment, so no balance action was taken and
		// none needs compensating. Full detail stays in logs and audit.
		reason := fmt.Sprintf("provider call failed: %v", err)
		if _, finErr := s.repo.FinalizePurchase(ctx, orderID, domain.PurchaseStatusFailed, nil, &reason); finErr != nil {
			log.Printf("level=error component=service flow=purchase msg=\"failed to persist provider-call failure\" order_id=%s err=%v", orderID, finErr)
		}
		s.emitAudit("purchase", "PROVIDER_FAILED", orderID, started, map[string]any{"reason": reason})
		log.Printf("level=warn component=service flow=purchase msg=\"provider call failed\" order_id=%s err=%v", orderID, err)
		return nil, ErrProviderUnavailable
	}

	externalRef := strings.TrimSpace(submitResult.ExternalReference)
	var externalRefPtr *string
	if externalRef != "" {
		externalRefPtr = &externalRef
	}

	switch submitResult.Status {
	case providerclient.StatusCompleted:
		return s.completePurchaseInline(ctx, purchase, externalRefPtr, started)

	case providerclient.StatusProcessing, providerclient.StatusInitiated:
		return s.reservePurchase(ctx, purchase, externalRefPtr, started)

	case providerclient.StatusRefunded:
		// Provider refunded before we took any balance action; nothing to move.
		if _, finErr := s.repo.FinalizePurchase(ctx, orderID, domain.PurchaseStatusRefunded, externalRefPtr, nil); finErr != nil {
			log.Printf("level=error component=service flow=purchase msg=\"failed to persist refunded status\" order_id=%s err=%v", orderID, finErr)
		}
		s.emitAudit("purchase", "REFUNDED", orderID, started, map[string]any{"external_reference": externalRef})
		return &domain.PurchaseResult{
			OrderID: orderID, RequestID: purchase.RequestID,
			Status: domain.PurchaseStatusRefunded, ExternalReference: externalRefPtr,
		}, nil

	default:
		reason := fmt.Sprintf("unexpected provider status %q", submitResult.Status)
		if _, finErr := s.repo.FinalizePurchase(ctx, orderID, domain.PurchaseStatusFailed, externalRefPtr, &reason); finErr != nil {
			log.Printf("level=error component=service flow=purchase msg=\"failed to persist unexpected-status failure\" order_id=%s err=%v", orderID, finErr)
		}
		s.emitAudit("purchase", "PROVIDER_FAILED", orderID, started, map[string]any{"reason": reason})
		return nil, ErrProviderUnavailable
	}
}

// completePurchaseInline handles the provider's synchronous completed status:
// the conditional debit and the terminal completed state commit together,
// then the single-leg history record is written.
func (s *Service) completePurchaseInline(ctx context.Context, purchase *domain.Purchase, externalRef *string, started time.Time) (*domain.PurchaseResult, error) {
	claimed, err := s.repo.FinalizePurchaseWithBalance(ctx, store.ResolvePurchaseParams{
		OrderID:           purchase.OrderID,
		Status:            domain.PurchaseStatusCompleted,
		ExternalReference: externalRef,
		UserID:            purchase.UserID,
		Currency:          purchase.Currency,
		Amount:            purchase.Amount,
		BalanceOp:         store.BalanceOpDebit,
	})
	if err != nil {
		return nil, s.failPostProvider(ctx, purchase, err, started)
	}
	if !claimed {
		// A callback or the sweep resolved this purchase before the submit
		// response landed; report whatever state won.
		current, curErr := s.repo.FindPurchaseByOrderID(ctx, purchase.OrderID)
		if curErr != nil {
			return nil, fmt.Errorf("failed to read resolved purchase: %w", curErr)
		}
		return &domain.PurchaseResult{
			OrderID: current.OrderID, RequestID: current.RequestID,
			Status: current.Status, ExternalReference: current.ExternalReference,
		}, nil
	}

	record := &domain.TransactionRecord{
		UserID:            purchase.UserID,
		Currency:          purchase.Currency,
		Amount:            purchase.Amount.Neg(),
		Status:            domain.RecordStatusSuccessful,
		Reference:         purchase.OrderID,
		ExternalReference: externalRef,
		Metadata:          map[string]any{"bill_type": purchase.BillType, "request_id": purchase.RequestID},
	}
	if err := s.repo.CreateSimpleRecord(ctx, record); err != nil {
		// Balance is already correct; history is recoverable from the purchase row.
		log.Printf("level=error component=service flow=purchase msg=\"debit recorded on purchase but history insert failed\" order_id=%s err=%v", purchase.OrderID, err)
		_ = s.repo.AppendPurchaseError(ctx, purchase.OrderID, fmt.Sprintf("history insert failed: %v", err))
	}

	s.emitAudit("purchase", "COMPLETED", purchase.OrderID, started, map[string]any{"external_reference": externalRef})

	result := &domain.PurchaseResult{
		OrderID: purchase.OrderID, RequestID: purchase.RequestID,
		Status: domain.PurchaseStatusCompleted, ExternalReference: externalRef,
	}
	if balance, err := s.repo.GetBalance(ctx, purchase.UserID, purchase.Currency); err == nil {
		result.NewBalance = balance
	}
	return result, nil
}

// reservePurchase handles the provider's processing status: the amount moves
// available to pending and the purchase waits for the callback or the sweep.
func (s *Service) reservePurchase(ctx context.Context, purchase *domain.Purchase, externalRef *string, started time.Time) (*domain.PurchaseResult, error) {
	if err := s.repo.Reserve(ctx, purchase.UserID, purchase.Currency, purchase.Amount); err != nil {
		return nil, s.failPostProvider(ctx, purchase, err, started)
	}

	record := &domain.TransactionRecord{
		UserID:            purchase.UserID,
		Currency:          purchase.Currency,
		Amount:            purchase.Amount.Neg(),
		Status:            domain.RecordStatusPending,
		Reference:         purchase.OrderID,
		ExternalReference: externalRef,
		Metadata:          map[string]any{"bill_type": purchase.BillType, "request_id": purchase.RequestID},
	}
	if err := s.repo.CreateSimpleRecord(ctx, record); err != nil {
		log.Printf("level=error component=service flow=purchase msg=\"pending history insert failed\" order_id=%s err=%v", purchase.OrderID, err)
		_ = s.repo.AppendPurchaseError(ctx, purchase.OrderID, fmt.Sprintf("pending history insert failed: %v", err))
	}

	status := domain.PurchaseStatusProcessing
	reserved := true
	if err := s.repo.UpdatePurchase(ctx, purchase.OrderID, store.UpdatePurchaseParams{
		Status:            &status,
		ExternalReference: externalRef,
		BalanceReserved:   &reserved,
	}); err != nil {
		log.Printf("level=error component=service flow=purchase msg=\"failed to persist processing status\" order_id=%s err=%v", purchase.OrderID, err)
	}

	s.emitAudit("purchase", "PROCESSING", purchase.OrderID, started, map[string]any{
		"external_reference": externalRef, "balance_reserved": true,
	})

	result := &domain.PurchaseResult{
		OrderID: purchase.OrderID, RequestID: purchase.RequestID,
		Status: domain.PurchaseStatusProcessing, BalanceReserved: true, ExternalReference: externalRef,
	}
	if balance, err := s.repo.GetBalance(ctx, purchase.UserID, purchase.Currency); err == nil {
		result.NewBalance = balance
	}
	return result, nil
}

// failPostProvider covers the one fatal branch: the provider committed but the
// local ledger could not follow. The purchase is marked failed and a distinct,
// never-retried error is surfaced; the audit event is the alerting hook.
func (s *Service) failPostProvider(ctx context.Context, purchase *domain.Purchase, cause error, started time.Time) error {
	reason := fmt.Sprintf("balance step failed after provider commitment: %v", cause)
	if _, finErr := s.repo.FinalizePurchase(ctx, purchase.OrderID, domain.PurchaseStatusFailed, nil, &reason); finErr != nil {
		log.Printf("level=error component=service flow=purchase msg=\"failed to persist post-provider failure\" order_id=%s err=%v", purchase.OrderID, finErr)
	}
	s.emitAudit("purchase", "BALANCE_POST_PROVIDER_FAILED", purchase.OrderID, started, map[string]any{
		"reason": reason, "severity": "critical",
	})
	log.Printf("level=error component=service flow=purchase msg=\"manual intervention required\" order_id=%s err=%v", purchase.OrderID, cause)
	return &BalancePostProviderError{OrderID: purchase.OrderID, Cause: cause}
}

// ResolvePurchase applies a late provider status to a processing purchase. It
// is shared by the broker consumer, the HTTP callback and the sweep, and is
// idempotent: a replay against an already-terminal purchase changes nothing.
func (s *Service) ResolvePurchase(ctx context.Context, event domain.BillStatusEvent) error {
	started := time.Now()

	purchase, err := s.repo.FindPurchaseByRequestID(ctx, event.RequestID)
	if err != nil {
		if errors.Is(err, store.ErrPurchaseNotFound) {
			log.Printf("level=warn component=service flow=resolve msg=\"no purchase for request id\" request_id=%s", event.RequestID)
			return nil
		}
		return fmt.Errorf("failed to look up purchase: %w", err)
	}
	if purchase.Terminal() {
		// Replayed callback for a finalized purchase; balances and status stay untouched.
		return nil
	}

	externalRef := strings.TrimSpace(event.ExternalReference)
	var externalRefPtr *string
	if externalRef != "" {
		externalRefPtr = &externalRef
	}

	// The terminal transition and the balance statement commit in one
	// transaction, predicated on the purchase not being terminal yet. When the
	// callback, the sweep and a redelivered broker message race on the same
	// purchase, exactly one of them gets the claim; the losers see false and
	// leave the balance alone.
	switch normalizeBillStatus(event.Status) {
	case providerclient.StatusCompleted:
		op := store.BalanceOpDebit
		if purchase.BalanceReserved {
			op = store.BalanceOpSettle
		}
		claimed, err := s.repo.FinalizePurchaseWithBalance(ctx, store.ResolvePurchaseParams{
			OrderID:           purchase.OrderID,
			Status:            domain.PurchaseStatusCompleted,
			ExternalReference: externalRefPtr,
			UserID:            purchase.UserID,
			Currency:          purchase.Currency,
			Amount:            purchase.Amount,
			BalanceOp:         op,
		})
		if err != nil {
			reason := fmt.Sprintf("balance settlement failed: %v", err)
			if _, finErr := s.repo.FinalizePurchase(ctx, purchase.OrderID, domain.PurchaseStatusFailed, externalRefPtr, &reason); finErr != nil {
				log.Printf("level=error component=service flow=resolve msg=\"failed to persist settlement failure\" order_id=%s err=%v", purchase.OrderID, finErr)
			}
			s.emitAudit("purchase_resolve", "BALANCE_POST_PROVIDER_FAILED", purchase.OrderID, started, map[string]any{"reason": reason, "severity": "critical"})
			return &BalancePostProviderError{OrderID: purchase.OrderID, Cause: err}
		}
		if !claimed {
			return nil
		}
		s.finalizeRecords(ctx, purchase.OrderID, domain.RecordStatusSuccessful, externalRefPtr)
		s.emitAudit("purchase_resolve", "COMPLETED", purchase.OrderID, started, map[string]any{"external_reference": externalRef})
		return nil

	case providerclient.StatusFailed, providerclient.StatusRefunded:
		terminal := domain.PurchaseStatusFailed
		if normalizeBillStatus(event.Status) == providerclient.StatusRefunded {
			terminal = domain.PurchaseStatusRefunded
		}
		op := store.BalanceOpNone
		if purchase.BalanceReserved {
			op = store.BalanceOpRelease
		}
		var reasonPtr *string
		if reason := strings.TrimSpace(event.Reason); reason != "" {
			reasonPtr = &reason
		}
		claimed, err := s.repo.FinalizePurchaseWithBalance(ctx, store.ResolvePurchaseParams{
			OrderID:           purchase.OrderID,
			Status:            terminal,
			ExternalReference: externalRefPtr,
			ProcessingError:   reasonPtr,
			UserID:            purchase.UserID,
			Currency:          purchase.Currency,
			Amount:            purchase.Amount,
			BalanceOp:         op,
		})
		if err != nil {
			return fmt.Errorf("failed to finalize purchase: %w", err)
		}
		if !claimed {
			return nil
		}
		s.finalizeRecords(ctx, purchase.OrderID, domain.RecordStatusFailed, externalRefPtr)
		s.emitAudit("purchase_resolve", strings.ToUpper(terminal), purchase.OrderID, started, map[string]any{"reason": event.Reason})
		return nil

	default:
		// Still processing upstream; nothing to do yet.
		return nil
	}
}

// finalizeRecords transitions the purchase's pending history legs exactly once.
func (s *Service) finalizeRecords(ctx context.Context, reference uuid.UUID, status string, externalRef *string) {
	records, err := s.repo.FindRecordsByReference(ctx, reference)
	if err != nil {
		log.Printf("level=warn component=service flow=resolve msg=\"record lookup failed\" reference=%s err=%v", reference, err)
		return
	}
	for _, rec := range records {
		if rec.Status != domain.RecordStatusPending {
			continue
		}
		if err := s.repo.FinalizeRecord(ctx, rec.ID, status, externalRef); err != nil && !errors.Is(err, store.ErrRecordFinalized) {
			log.Printf("level=warn component=service flow=resolve msg=\"record finalize failed\" record_id=%s err=%v", rec.ID, err)
		}
	}
}

// ListBalances returns every currency balance the user holds.
func (s *Service) ListBalances(ctx context.Context, userID uuid.UUID) ([]domain.Balance, error) {
	return s.repo.ListBalances(ctx, userID)
}

// GetPurchase returns a purchase by order id.
func (s *Service) GetPurchase(ctx context.Context, orderID uuid.UUID) (*domain.Purchase, error) {
	return s.repo.FindPurchaseByOrderID(ctx, orderID)
}

// ListProcessingPurchases returns purchases still awaiting asynchronous
// resolution, for operational inspection.
func (s *Service) ListProcessingPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListProcessingPurchases(ctx, limit)
}

// ListHistory returns a page of the user's transaction records.
func (s *Service) ListHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.TransactionRecord, error) {
	return s.repo.ListRecordsByUser(ctx, userID, limit, offset)
}

func (s *Service) insufficientFunds(ctx context.Context, userID uuid.UUID, currency string, required decimal.Decimal) error {
	available := decimal.Zero
	if balance, err := s.repo.GetBalance(ctx, userID, currency); err == nil {
		available = balance.Available
	}
	return &InsufficientFundsError{Currency: currency, Available: available, Required: required}
}

func (s *Service) emitAudit(eventType, status string, correlationID uuid.UUID, started time.Time, after map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(domain.AuditEvent{
		EventType:     eventType,
		Status:        status,
		After:         after,
		CorrelationID: correlationID,
		Duration:      time.Since(started),
		OccurredAt:    time.Now().UTC(),
	})
}

func validatePurchaseRequest(req domain.PurchaseRequest) error {
	switch req.BillType {
	case domain.BillTypeAirtime, domain.BillTypeBetting, domain.BillTypeCableTV, domain.BillTypeElectricity:
	default:
		return &ValidationError{Field: "bill_type", Reason: "unknown bill type"}
	}
	if req.Amount.Cmp(decimal.Zero) <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if req.Currency != domain.CurrencyNGNZ {
		return &ValidationError{Field: "currency", Reason: "purchases settle from the stable balance"}
	}
	if strings.TrimSpace(req.RequestRef) == "" {
		return &ValidationError{Field: "request_ref", Reason: "required"}
	}
	return nil
}

func normalizeBillStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	switch status {
	case "successful", "success", "completed":
		return providerclient.StatusCompleted
	case "failed", "failure", "timeout", "expired":
		return providerclient.StatusFailed
	case "refunded", "reversed":
		return providerclient.StatusRefunded
	case "initiated", "pending", "processing":
		return providerclient.StatusProcessing
	default:
		return status
	}
}
