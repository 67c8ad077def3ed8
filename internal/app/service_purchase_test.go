package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/internal/store"
	"github.com/kudipay/settlement-service/pkg/providerclient"
	"github.com/shopspring/decimal"
)

type purchaseRepoStub struct {
	store.Repository

	available decimal.Decimal

	keyDuplicate    bool
	createErr       error
	existingOrderID uuid.UUID
	createdCount    int
	created         *domain.Purchase

	resolveParams []store.ResolvePurchaseParams
	resolveErr    error
	reserveCalls  int
	reserveErr    error

	records []domain.TransactionRecord

	finalizedStatus string
	finalizedReason *string
	updatedParams   *store.UpdatePurchaseParams
}

func (s *purchaseRepoStub) GetBalance(ctx context.Context, userID uuid.UUID, currency string) (*domain.Balance, error) {
	return &domain.Balance{UserID: userID, Currency: currency, Available: s.available}, nil
}

func (s *purchaseRepoStub) CreatePurchaseWithKey(ctx context.Context, p *domain.Purchase) (bool, error) {
	if s.createErr != nil {
		// Transaction rolled back; the key claim does not survive the failure.
		return false, s.createErr
	}
	if s.keyDuplicate {
		return false, nil
	}
	s.createdCount++
	s.created = p
	return true, nil
}

func (s *purchaseRepoStub) FindOrderIDByIdempotencyKey(ctx context.Context, key string) (uuid.UUID, error) {
	return s.existingOrderID, nil
}

func (s *purchaseRepoStub) FinalizePurchaseWithBalance(ctx context.Context, params store.ResolvePurchaseParams) (bool, error) {
	if s.resolveErr != nil {
		return false, s.resolveErr
	}
	s.resolveParams = append(s.resolveParams, params)
	return true, nil
}

func (s *purchaseRepoStub) Reserve(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal) error {
	s.reserveCalls++
	return s.reserveErr
}

func (s *purchaseRepoStub) CreateSimpleRecord(ctx context.Context, rec *domain.TransactionRecord) error {
	s.records = append(s.records, *rec)
	return nil
}

func (s *purchaseRepoStub) UpdatePurchase(ctx context.Context, orderID uuid.UUID, params store.UpdatePurchaseParams) error {
	s.updatedParams = &params
	return nil
}

func (s *purchaseRepoStub) FinalizePurchase(ctx context.Context, orderID uuid.UUID, status string, externalReference *string, processingError *string) (bool, error) {
	s.finalizedStatus = status
	s.finalizedReason = processingError
	return true, nil
}

func (s *purchaseRepoStub) AppendPurchaseError(ctx context.Context, orderID uuid.UUID, message string) error {
	return nil
}

func newPurchaseTestService(repo store.Repository, provider *stubProvider, audit *stubAudit) *Service {
	return NewService(
		repo,
		provider,
		&stubPrices{usdPrice: decimal.NewFromInt(1), fiatRate: decimal.NewFromInt(1500)},
		NewMemoryQuoteCache(),
		audit,
		&stubPublisher{},
		time.Minute,
		decimal.Zero,
	)
}

func airtimeRequest(amount int64) domain.PurchaseRequest {
	return domain.PurchaseRequest{
		BillType:   domain.BillTypeAirtime,
		Amount:     decimal.NewFromInt(amount),
		Currency:   domain.CurrencyNGNZ,
		RequestRef: "req-" + uuid.NewString(),
		ProviderPayload: map[string]string{
			"phone": "+2348012345678",
		},
	}
}

func TestPurchase_InsufficientBalanceRejectedBeforeProviderCall(t *testing.T) {
	repo := &purchaseRepoStub{available: decimal.NewFromInt(40000)}
	provider := &stubProvider{}
	svc := newPurchaseTestService(repo, provider, &stubAudit{})

	_, err := svc.Purchase(context.Background(), uuid.New(), airtimeRequest(50000))
	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if provider.submitCalls != 0 {
		t.Fatal("underfunded purchase must not reach the provider")
	}
	if repo.createdCount != 0 {
		t.Fatal("underfunded purchase must not be persisted")
	}
}

func TestPurchase_DuplicateRequestRejected(t *testing.T) {
	originalOrder := uuid.New()
	repo := &purchaseRepoStub{available: decimal.NewFromInt(100000), keyDuplicate: true, existingOrderID: originalOrder}
	provider := &stubProvider{}
	svc := newPurchaseTestService(repo, provider, &stubAudit{})

	_, err := svc.Purchase(context.Background(), uuid.New(), airtimeRequest(5000))
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	var duplicate *DuplicateRequestError
	if !errors.As(err, &duplicate) || duplicate.OrderID != originalOrder {
		t.Fatalf("expected the original order id surfaced, got %v", err)
	}
	if provider.submitCalls != 0 {
		t.Fatal("duplicate request must not reach the provider")
	}
}

func TestPurchase_CompletedInlineDebitsAndRecords(t *testing.T) {
	repo := &purchaseRepoStub{available: decimal.NewFromInt(100000)}
	provider := &stubProvider{submitResult: &providerclient.SubmitResult{
		Status:            providerclient.StatusCompleted,
		ExternalReference: "prov-123",
	}}
	svc := newPurchaseTestService(repo, provider, &stubAudit{})

	req := airtimeRequest(5000)
	result, err := svc.Purchase(context.Background(), uuid.New(), req)
	if err != nil {
		t.Fatalf("Purchase returned error: %v", err)
	}
	if result.Status != domain.PurchaseStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if len(repo.resolveParams) != 1 || repo.resolveParams[0].BalanceOp != store.BalanceOpDebit {
		t.Fatal("expected an immediate debit for a completed purchase")
	}
	if repo.resolveParams[0].Status != domain.PurchaseStatusCompleted {
		t.Fatalf("expected the debit committed with the completed status, got %q", repo.resolveParams[0].Status)
	}
	if repo.reserveCalls != 0 {
		t.Fatal("completed purchase must not reserve")
	}
	if len(repo.records) != 1 || repo.records[0].Status != domain.RecordStatusSuccessful {
		t.Fatalf("expected one successful history record, got %+v", repo.records)
	}
	if !repo.records[0].Amount.Equal(decimal.NewFromInt(-5000)) {
		t.Fatalf("expected negative debit leg, got %s", repo.records[0].Amount)
	}
	if provider.lastSubmit.RequestID != req.RequestRef {
		t.Fatal("provider must receive the client request reference for dedup")
	}
}

func TestPurchase_ProcessingReservesAndWaits(t *testing.T) {
	repo := &purchaseRepoStub{available: decimal.NewFromInt(100000)}
	provider := &stubProvider{submitResult: &providerclient.SubmitResult{
		Status:            providerclient.StatusProcessing,
		ExternalReference: "prov-456",
	}}
	svc := newPurchaseTestService(repo, provider, &stubAudit{})

	result, err := svc.Purchase(context.Background(), uuid.New(), airtimeRequest(5000))
	if err != nil {
		t.Fatalf("Purchase returned error: %v", err)
	}
	if result.Status != domain.PurchaseStatusProcessing {
		t.Fatalf("expected processing, got %s", result.Status)
	}
	if !result.BalanceReserved {
		t.Fatal("expected the amount reserved")
	}
	if repo.reserveCalls != 1 {
		t.Fatalf("expected one reservation, got %d", repo.reserveCalls)
	}
	if len(repo.resolveParams) != 0 {
		t.Fatal("processing purchase must not debit yet")
	}
	if len(repo.records) != 1 || repo.records[0].Status != domain.RecordStatusPending {
		t.Fatalf("expected one pending history record, got %+v", repo.records)
	}
	if repo.updatedParams == nil || repo.updatedParams.Status == nil || *repo.updatedParams.Status != domain.PurchaseStatusProcessing {
		t.Fatal("expected purchase marked processing")
	}
	if repo.finalizedStatus != "" {
		t.Fatal("processing purchase must not be finalized yet")
	}
}

func TestPurchase_ProviderFailureLeavesBalanceUntouched(t *testing.T) {
	repo := &purchaseRepoStub{available: decimal.NewFromInt(100000)}
	provider := &stubProvider{submitErr: errors.New("connection refused")}
	audit := &stubAudit{}
	svc := newPurchaseTestService(repo, provider, audit)

	_, err := svc.Purchase(context.Background(), uuid.New(), airtimeRequest(5000))
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if len(repo.resolveParams) != 0 || repo.reserveCalls != 0 {
		t.Fatal("provider failure must not touch the balance")
	}
	if repo.finalizedStatus != domain.PurchaseStatusFailed {
		t.Fatalf("expected purchase finalized failed, got %q", repo.finalizedStatus)
	}
	if len(audit.byStatus("PROVIDER_FAILED")) != 1 {
		t.Fatal("expected a PROVIDER_FAILED audit event")
	}
}

func TestPurchase_BalanceFailureAfterProviderCommitIsFatal(t *testing.T) {
	repo := &purchaseRepoStub{
		available:  decimal.NewFromInt(100000),
		resolveErr: store.ErrInsufficientFunds,
	}
	provider := &stubProvider{submitResult: &providerclient.SubmitResult{
		Status: providerclient.StatusCompleted,
	}}
	audit := &stubAudit{}
	svc := newPurchaseTestService(repo, provider, audit)

	_, err := svc.Purchase(context.Background(), uuid.New(), airtimeRequest(5000))
	var postProvider *BalancePostProviderError
	if !errors.As(err, &postProvider) {
		t.Fatalf("expected BalancePostProviderError, got %v", err)
	}
	if repo.finalizedStatus != domain.PurchaseStatusFailed {
		t.Fatalf("expected purchase finalized failed, got %q", repo.finalizedStatus)
	}
	if repo.finalizedReason == nil {
		t.Fatal("expected the failure reason recorded on the purchase")
	}
	if len(audit.byStatus("BALANCE_POST_PROVIDER_FAILED")) != 1 {
		t.Fatal("expected a critical audit event for the post-provider failure")
	}
}

func TestPurchase_RetryAfterCreateFailureIsNotDuplicate(t *testing.T) {
	repo := &purchaseRepoStub{
		available: decimal.NewFromInt(100000),
		createErr: errors.New("connection reset by peer"),
	}
	provider := &stubProvider{submitResult: &providerclient.SubmitResult{
		Status: providerclient.StatusCompleted,
	}}
	svc := newPurchaseTestService(repo, provider, &stubAudit{})

	userID := uuid.New()
	req := airtimeRequest(5000)
	if _, err := svc.Purchase(context.Background(), userID, req); err == nil {
		t.Fatal("expected the first attempt to fail on the create error")
	}
	if provider.submitCalls != 0 {
		t.Fatal("a failed create must not reach the provider")
	}

	// The key claim rolled back with the failed insert, so the identical
	// request reference is accepted on retry instead of rejected as a
	// duplicate of an order that was never created.
	repo.createErr = nil
	result, err := svc.Purchase(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("retry after a transient create failure must succeed, got %v", err)
	}
	if result.Status != domain.PurchaseStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if provider.submitCalls != 1 {
		t.Fatalf("expected exactly one provider call, got %d", provider.submitCalls)
	}
}

func TestPurchase_InitiatedProviderStatusReservesLikeProcessing(t *testing.T) {
	repo := &purchaseRepoStub{available: decimal.NewFromInt(100000)}
	provider := &stubProvider{submitResult: &providerclient.SubmitResult{
		Status:            providerclient.StatusInitiated,
		ExternalReference: "prov-early-1",
	}}
	svc := newPurchaseTestService(repo, provider, &stubAudit{})

	result, err := svc.Purchase(context.Background(), uuid.New(), airtimeRequest(5000))
	if err != nil {
		t.Fatalf("Purchase returned error: %v", err)
	}
	if result.Status != domain.PurchaseStatusProcessing {
		t.Fatalf("expected processing, got %s", result.Status)
	}
	if repo.reserveCalls != 1 {
		t.Fatalf("expected one reservation, got %d", repo.reserveCalls)
	}
}

func TestPurchase_RejectsUnknownBillType(t *testing.T) {
	repo := &purchaseRepoStub{available: decimal.NewFromInt(100000)}
	svc := newPurchaseTestService(repo, &stubProvider{}, &stubAudit{})

	req := airtimeRequest(5000)
	req.BillType = "lottery"
	_, err := svc.Purchase(context.Background(), uuid.New(), req)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
