package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/shopspring/decimal"
)

func newQuoteTestService(prices PriceSource, markdownPercent float64, ttl time.Duration) *Service {
	return NewService(
		nil,
		&stubProvider{},
		prices,
		NewMemoryQuoteCache(),
		&stubAudit{},
		&stubPublisher{},
		ttl,
		decimal.NewFromFloat(markdownPercent),
	)
}

func TestCreateQuote_BuyComputesDestFromLiveRate(t *testing.T) {
	// 1 BTC = 50,000 USD, 1 USD = 1,500 NGNZ, so rate = 75,000,000 NGNZ/BTC.
	prices := &stubPrices{usdPrice: decimal.NewFromInt(50000), fiatRate: decimal.NewFromInt(1500)}
	svc := newQuoteTestService(prices, 0, 15*time.Second)

	quote, err := svc.CreateQuote(context.Background(), domain.CreateQuoteRequest{
		SourceCurrency: "NGNZ",
		DestCurrency:   "BTC",
		Amount:         decimal.NewFromInt(7500000),
		Side:           "BUY",
	})
	if err != nil {
		t.Fatalf("CreateQuote returned error: %v", err)
	}
	if got, want := quote.Rate.String(), "75000000"; got != want {
		t.Fatalf("expected rate %s, got %s", want, got)
	}
	if got, want := quote.DestAmount.String(), "0.1"; got != want {
		t.Fatalf("expected dest amount %s, got %s", want, got)
	}
	if quote.Expired(time.Now().UTC()) {
		t.Fatal("fresh quote must not be expired")
	}
}

func TestCreateQuote_MarkdownReducesDestAmount(t *testing.T) {
	prices := &stubPrices{usdPrice: decimal.NewFromInt(1), fiatRate: decimal.NewFromInt(1500)}
	svc := newQuoteTestService(prices, 1.0, 15*time.Second)

	quote, err := svc.CreateQuote(context.Background(), domain.CreateQuoteRequest{
		SourceCurrency: "USDT",
		DestCurrency:   "NGNZ",
		Amount:         decimal.NewFromInt(100),
		Side:           "SELL",
	})
	if err != nil {
		t.Fatalf("CreateQuote returned error: %v", err)
	}
	// 100 USDT * 1500 = 150,000 minus 1% markdown.
	if got, want := quote.DestAmount.String(), "148500"; got != want {
		t.Fatalf("expected marked-down dest amount %s, got %s", want, got)
	}
}

func TestCreateQuote_RejectsCryptoToCrypto(t *testing.T) {
	prices := &stubPrices{usdPrice: decimal.NewFromInt(1), fiatRate: decimal.NewFromInt(1500)}
	svc := newQuoteTestService(prices, 0, 15*time.Second)

	_, err := svc.CreateQuote(context.Background(), domain.CreateQuoteRequest{
		SourceCurrency: "BTC",
		DestCurrency:   "ETH",
		Amount:         decimal.NewFromInt(1),
		Side:           "BUY",
	})
	if !errors.Is(err, ErrUnsupportedPair) {
		t.Fatalf("expected ErrUnsupportedPair, got %v", err)
	}
}

func TestCreateQuote_RejectsNonPositiveAmount(t *testing.T) {
	svc := newQuoteTestService(&stubPrices{}, 0, 15*time.Second)

	_, err := svc.CreateQuote(context.Background(), domain.CreateQuoteRequest{
		SourceCurrency: "NGNZ",
		DestCurrency:   "BTC",
		Amount:         decimal.Zero,
		Side:           "BUY",
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validation.Field != "amount" {
		t.Fatalf("expected amount validation failure, got field %q", validation.Field)
	}
}

func TestAcceptQuote_UnknownIDReportsNotFound(t *testing.T) {
	svc := newQuoteTestService(&stubPrices{usdPrice: decimal.NewFromInt(1), fiatRate: decimal.NewFromInt(1)}, 0, 15*time.Second)

	_, err := svc.acceptQuote(context.Background(), uuid.New())
	if !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("expected ErrQuoteNotFound, got %v", err)
	}
}

func TestAcceptQuote_ExpiredQuoteIsRejectedByWallClock(t *testing.T) {
	prices := &stubPrices{usdPrice: decimal.NewFromInt(1), fiatRate: decimal.NewFromInt(1500)}
	svc := newQuoteTestService(prices, 0, 15*time.Second)

	quote, err := svc.CreateQuote(context.Background(), domain.CreateQuoteRequest{
		SourceCurrency: "NGNZ",
		DestCurrency:   "USDT",
		Amount:         decimal.NewFromInt(3000),
		Side:           "BUY",
	})
	if err != nil {
		t.Fatalf("CreateQuote returned error: %v", err)
	}

	// Force expiry regardless of how generous the cache TTL is.
	quote.ExpiresAt = time.Now().UTC().Add(-time.Second)
	if err := svc.quotes.Put(context.Background(), quote, time.Minute); err != nil {
		t.Fatalf("failed to reseed cache: %v", err)
	}

	if _, err := svc.acceptQuote(context.Background(), quote.ID); !errors.Is(err, ErrQuoteExpired) {
		t.Fatalf("expected ErrQuoteExpired, got %v", err)
	}
}

func TestAcceptQuote_SecondAcceptanceFails(t *testing.T) {
	prices := &stubPrices{usdPrice: decimal.NewFromInt(1), fiatRate: decimal.NewFromInt(1500)}
	svc := newQuoteTestService(prices, 0, time.Minute)

	quote, err := svc.CreateQuote(context.Background(), domain.CreateQuoteRequest{
		SourceCurrency: "NGNZ",
		DestCurrency:   "USDT",
		Amount:         decimal.NewFromInt(3000),
		Side:           "BUY",
	})
	if err != nil {
		t.Fatalf("CreateQuote returned error: %v", err)
	}

	if _, err := svc.acceptQuote(context.Background(), quote.ID); err != nil {
		t.Fatalf("first acceptance failed: %v", err)
	}
	if _, err := svc.acceptQuote(context.Background(), quote.ID); !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("expected second acceptance to fail with ErrQuoteNotFound, got %v", err)
	}
}
