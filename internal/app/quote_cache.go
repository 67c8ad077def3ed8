/**
 * @description
 * Quote cache abstraction. Quotes are explicitly ephemeral: they live behind a
 * TTL-capable store and are consumed at most once. Validity is always decided
 * by wall-clock comparison against the quote's own expiry; the cache TTL is
 * cleanup, never the source of truth.
 */

package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/domain"
)

// QuoteCache stores quotes for their short lifetime. Take must remove and
// return atomically so a quote id can never be accepted twice.
type QuoteCache interface {
	Put(ctx context.Context, quote *domain.Quote, ttl time.Duration) error
	Take(ctx context.Context, id uuid.UUID) (*domain.Quote, error)
	// EvictExpired removes quotes past their expiry; stores with native TTL
	// may treat it as a no-op.
	EvictExpired(ctx context.Context, now time.Time) int
}

// MemoryQuoteCache is the in-process fallback used when Redis is not
// configured, and the implementation the tests run against. Quote loss on
// restart is an accepted property of the quote cache.
type MemoryQuoteCache struct {
	mu     sync.Mutex
	quotes map[uuid.UUID]*domain.Quote
}

func NewMemoryQuoteCache() *MemoryQuoteCache {
	return &MemoryQuoteCache{quotes: make(map[uuid.UUID]*domain.Quote)}
}

func (c *MemoryQuoteCache) Put(ctx context.Context, quote *domain.Quote, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[quote.ID] = quote
	return nil
}

// Take removes and returns the quote in one critical section; a second Take of
// the same id reports ErrQuoteNotFound.
func (c *MemoryQuoteCache) Take(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	quote, ok := c.quotes[id]
	if !ok {
		return nil, ErrQuoteNotFound
	}
	delete(c.quotes, id)
	return quote, nil
}

func (c *MemoryQuoteCache) EvictExpired(ctx context.Context, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for id, quote := range c.quotes {
		if quote.Expired(now) {
			delete(c.quotes, id)
			evicted++
		}
	}
	return evicted
}
