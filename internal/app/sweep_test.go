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

type sweepRepoStub struct {
	store.Repository

	stale []domain.Purchase

	resolved []store.ResolvePurchaseParams
}

func (s *sweepRepoStub) ListStalePurchases(ctx context.Context, cutoff time.Time, limit int) ([]domain.Purchase, error) {
	return s.stale, nil
}

func (s *sweepRepoStub) FindPurchaseByRequestID(ctx context.Context, requestID string) (*domain.Purchase, error) {
	for i := range s.stale {
		if s.stale[i].RequestID == requestID {
			return &s.stale[i], nil
		}
	}
	return nil, store.ErrPurchaseNotFound
}

func (s *sweepRepoStub) FinalizePurchaseWithBalance(ctx context.Context, params store.ResolvePurchaseParams) (bool, error) {
	s.resolved = append(s.resolved, params)
	return true, nil
}

func (s *sweepRepoStub) FindRecordsByReference(ctx context.Context, reference uuid.UUID) ([]domain.TransactionRecord, error) {
	return nil, nil
}

func stalePurchase() domain.Purchase {
	return domain.Purchase{
		OrderID:         uuid.New(),
		RequestID:       "req-stale-1",
		UserID:          uuid.New(),
		BillType:        domain.BillTypeCableTV,
		Status:          domain.PurchaseStatusProcessing,
		Amount:          decimal.NewFromInt(8000),
		Currency:        domain.CurrencyNGNZ,
		BalanceReserved: true,
		CreatedAt:       time.Now().Add(-time.Hour),
	}
}

func newSweepTestService(repo store.Repository, provider *stubProvider) *Service {
	return NewService(
		repo,
		provider,
		&stubPrices{usdPrice: decimal.NewFromInt(1), fiatRate: decimal.NewFromInt(1500)},
		NewMemoryQuoteCache(),
		&stubAudit{},
		&stubPublisher{},
		time.Minute,
		decimal.Zero,
	)
}

func TestSweep_CompletedUpstreamSettlesReservation(t *testing.T) {
	repo := &sweepRepoStub{stale: []domain.Purchase{stalePurchase()}}
	provider := &stubProvider{queryResult: &providerclient.SubmitResult{
		Status:            providerclient.StatusCompleted,
		ExternalReference: "prov-late-1",
	}}
	svc := newSweepTestService(repo, provider)

	resolved := svc.SweepStalePurchases(context.Background(), 30*time.Minute)
	if resolved != 1 {
		t.Fatalf("expected one purchase resolved, got %d", resolved)
	}
	if provider.queryCalls != 1 {
		t.Fatal("expected the provider queried before resolution")
	}
	if len(repo.resolved) != 1 {
		t.Fatalf("expected one terminal transition, got %d", len(repo.resolved))
	}
	if repo.resolved[0].BalanceOp != store.BalanceOpSettle {
		t.Fatal("expected the reservation settled for an upstream-completed purchase")
	}
	if repo.resolved[0].Status != domain.PurchaseStatusCompleted {
		t.Fatalf("expected purchase completed, got %q", repo.resolved[0].Status)
	}
}

func TestSweep_UnreachableProviderForcesFailureAndRelease(t *testing.T) {
	repo := &sweepRepoStub{stale: []domain.Purchase{stalePurchase()}}
	provider := &stubProvider{queryErr: errors.New("timeout")}
	svc := newSweepTestService(repo, provider)

	resolved := svc.SweepStalePurchases(context.Background(), 30*time.Minute)
	if resolved != 1 {
		t.Fatalf("expected one purchase resolved, got %d", resolved)
	}
	if len(repo.resolved) != 1 {
		t.Fatalf("expected one terminal transition, got %d", len(repo.resolved))
	}
	if repo.resolved[0].BalanceOp != store.BalanceOpRelease {
		t.Fatal("expected the reservation released when the provider cannot confirm")
	}
	if repo.resolved[0].Status != domain.PurchaseStatusFailed {
		t.Fatalf("expected purchase failed, got %q", repo.resolved[0].Status)
	}
	if repo.resolved[0].ProcessingError == nil || *repo.resolved[0].ProcessingError != "settlement window exceeded" {
		t.Fatalf("expected the forced-failure reason recorded, got %v", repo.resolved[0].ProcessingError)
	}
}

func TestSweep_StillProcessingUpstreamForcesFailure(t *testing.T) {
	repo := &sweepRepoStub{stale: []domain.Purchase{stalePurchase()}}
	provider := &stubProvider{queryResult: &providerclient.SubmitResult{
		Status: providerclient.StatusProcessing,
	}}
	svc := newSweepTestService(repo, provider)

	if resolved := svc.SweepStalePurchases(context.Background(), 30*time.Minute); resolved != 1 {
		t.Fatalf("expected one purchase resolved, got %d", resolved)
	}
	if len(repo.resolved) != 1 || repo.resolved[0].BalanceOp != store.BalanceOpRelease {
		t.Fatal("a purchase processing past the window must release its reservation")
	}
	if repo.resolved[0].Status != domain.PurchaseStatusFailed {
		t.Fatalf("expected purchase failed, got %q", repo.resolved[0].Status)
	}
}
