package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/domain"
)

func cachedQuote(expiresIn time.Duration) *domain.Quote {
	return &domain.Quote{
		ID:        uuid.New(),
		ExpiresAt: time.Now().UTC().Add(expiresIn),
	}
}

func TestMemoryQuoteCache_TakeRemovesEntry(t *testing.T) {
	cache := NewMemoryQuoteCache()
	quote := cachedQuote(time.Minute)

	if err := cache.Put(context.Background(), quote, time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	got, err := cache.Take(context.Background(), quote.ID)
	if err != nil {
		t.Fatalf("Take returned error: %v", err)
	}
	if got.ID != quote.ID {
		t.Fatalf("expected quote %s, got %s", quote.ID, got.ID)
	}

	if _, err := cache.Take(context.Background(), quote.ID); !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("expected ErrQuoteNotFound on second take, got %v", err)
	}
}

func TestMemoryQuoteCache_EvictExpiredOnlyRemovesPastExpiry(t *testing.T) {
	cache := NewMemoryQuoteCache()
	live := cachedQuote(time.Minute)
	expired := cachedQuote(-time.Minute)

	_ = cache.Put(context.Background(), live, time.Minute)
	_ = cache.Put(context.Background(), expired, time.Minute)

	if evicted := cache.EvictExpired(context.Background(), time.Now().UTC()); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if _, err := cache.Take(context.Background(), live.ID); err != nil {
		t.Fatalf("live quote must survive eviction, got %v", err)
	}
	if _, err := cache.Take(context.Background(), expired.ID); !errors.Is(err, ErrQuoteNotFound) {
		t.Fatalf("expected expired quote gone, got %v", err)
	}
}
