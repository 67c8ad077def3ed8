package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisQuoteCache stores quotes in Redis with a TTL slightly past their
// expiry. GETDEL gives the atomic remove-and-return that single consumption
// requires even with multiple service instances.
type RedisQuoteCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisQuoteCache(client redis.UniversalClient, prefix string) *RedisQuoteCache {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "settlement:quotes"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisQuoteCache{client: client, prefix: trimmedPrefix}
}

func (c *RedisQuoteCache) key(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", c.prefix, id)
}

func (c *RedisQuoteCache) Put(ctx context.Context, quote *domain.Quote, ttl time.Duration) error {
	payload, err := json.Marshal(quote)
	if err != nil {
		return err
	}
	// TTL padding tolerates clock skew between instances; expiry is still
	// checked by wall clock at acceptance.
	return c.client.Set(ctx, c.key(quote.ID), payload, ttl+5*time.Second).Err()
}

func (c *RedisQuoteCache) Take(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	payload, err := c.client.GetDel(ctx, c.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrQuoteNotFound
		}
		return nil, err
	}

	var quote domain.Quote
	if err := json.Unmarshal(payload, &quote); err != nil {
		return nil, fmt.Errorf("decode cached quote: %w", err)
	}
	return &quote, nil
}

// EvictExpired is a no-op: Redis TTLs handle cleanup natively.
func (c *RedisQuoteCache) EvictExpired(ctx context.Context, now time.Time) int {
	return 0
}
