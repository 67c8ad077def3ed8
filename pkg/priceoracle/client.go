/**
 * @description
 * This package provides a client for the price oracle: current USD prices per
 * currency and the fiat onramp/offramp rates. Reads are cached; when the oracle
 * is unreachable the client serves the last good value flagged as low
 * reliability instead of failing the quote.
 */
package priceoracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Fiat rate directions.
const (
	DirectionOnramp  = "onramp"
	DirectionOfframp = "offramp"
)

// Rate sources, reported so callers can tell a live price from a fallback.
const (
	SourceLive  = "live"
	SourceCache = "cache"
)

var ErrPriceUnavailable = errors.New("price unavailable")

// Price is a USD price for one currency code.
type Price struct {
	Code      string          `json:"code"`
	USDPrice  decimal.Decimal `json:"usd_price"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// FiatRate is the stable-balance conversion rate for one direction.
type FiatRate struct {
	Direction   string          `json:"direction"`
	Rate        decimal.Decimal `json:"rate"`
	Source      string          `json:"source"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Client is a read-only client for the price oracle service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu         sync.RWMutex
	lastPrices map[string]Price
	lastRates  map[string]FiatRate
}

// NewClient creates a new price oracle client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		lastPrices: make(map[string]Price),
		lastRates:  make(map[string]FiatRate),
	}
}

// GetPrice returns the current USD price for a currency code. On oracle
// failure the last good price is returned with Source set to "cache"; only
// when no cached value exists does the call fail.
func (c *Client) GetPrice(ctx context.Context, code string) (*Price, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	var body struct {
		USDPrice decimal.Decimal `json:"usd_price"`
	}
	if err := c.get(ctx, "/v1/prices/"+code, &body); err != nil {
		if cached, ok := c.cachedPrice(code); ok {
			return cached, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, code, err)
	}

	price := Price{Code: code, USDPrice: body.USDPrice, Source: SourceLive, FetchedAt: time.Now().UTC()}
	c.mu.Lock()
	c.lastPrices[code] = price
	c.mu.Unlock()
	return &price, nil
}

// GetFiatRate returns the onramp or offramp rate for the stable balance, with
// the same cached fallback behavior as GetPrice.
func (c *Client) GetFiatRate(ctx context.Context, direction string) (*FiatRate, error) {
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != DirectionOnramp && direction != DirectionOfframp {
		return nil, fmt.Errorf("unknown fiat rate direction: %q", direction)
	}

	var body struct {
		Rate        decimal.Decimal `json:"rate"`
		Source      string          `json:"source"`
		LastUpdated time.Time       `json:"last_updated"`
	}
	if err := c.get(ctx, "/v1/rates/"+direction, &body); err != nil {
		if cached, ok := c.cachedRate(direction); ok {
			return cached, nil
		}
		return nil, fmt.Errorf("%w: fiat %s: %v", ErrPriceUnavailable, direction, err)
	}

	rate := FiatRate{Direction: direction, Rate: body.Rate, Source: SourceLive, LastUpdated: body.LastUpdated}
	if rate.LastUpdated.IsZero() {
		rate.LastUpdated = time.Now().UTC()
	}
	c.mu.Lock()
	c.lastRates[direction] = rate
	c.mu.Unlock()
	return &rate, nil
}

func (c *Client) cachedPrice(code string) (*Price, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.lastPrices[code]
	if !ok {
		return nil, false
	}
	price.Source = SourceCache
	return &price, true
}

func (c *Client) cachedRate(direction string) (*FiatRate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rate, ok := c.lastRates[direction]
	if !ok {
		return nil, false
	}
	rate.Source = SourceCache
	return &rate, true
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return errors.New("price oracle base url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("price oracle returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
