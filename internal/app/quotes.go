/**
 * @description
 * Quote builder: prices a conversion between the stable balance and a
 * supported cryptocurrency, issues a short-lived quote, and enforces single
 * consumption at acceptance time.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/pkg/priceoracle"
	"github.com/shopspring/decimal"
)

var supportedCrypto = map[string]bool{
	domain.CurrencyBTC:  true,
	domain.CurrencyETH:  true,
	domain.CurrencyUSDT: true,
}

var oneHundred = decimal.NewFromInt(100)

// cryptoDestScale bounds the precision of crypto legs so quotes stay stable
// across serialization round trips.
const cryptoDestScale = 8

// CreateQuote prices a conversion and stores the resulting quote in the TTL
// cache. Only crypto against the stable balance is quotable; crypto-to-crypto
// is rejected.
func (s *Service) CreateQuote(ctx context.Context, req domain.CreateQuoteRequest) (*domain.Quote, error) {
	if req.Amount.Cmp(decimal.Zero) <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	side := strings.ToUpper(strings.TrimSpace(req.Side))
	if side != domain.QuoteSideBuy && side != domain.QuoteSideSell {
		return nil, &ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}

	source := strings.ToUpper(strings.TrimSpace(req.SourceCurrency))
	dest := strings.ToUpper(strings.TrimSpace(req.DestCurrency))
	if err := validatePair(source, dest, side); err != nil {
		return nil, err
	}

	rate, destAmount, err := s.priceConversion(ctx, source, dest, side, req.Amount)
	if err != nil {
		return nil, err
	}

	quote := &domain.Quote{
		ID:             uuid.New(),
		SourceCurrency: source,
		DestCurrency:   dest,
		SourceAmount:   req.Amount,
		DestAmount:     destAmount,
		Rate:           rate,
		Side:           side,
		ExpiresAt:      time.Now().UTC().Add(s.quoteTTL),
		CorrelationID:  uuid.New(),
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.quotes.Put(ctx, quote, s.quoteTTL); err != nil {
		return nil, fmt.Errorf("failed to store quote: %w", err)
	}

	log.Printf("level=info component=quotes msg=\"quote created\" quote_id=%s pair=%s/%s side=%s rate=%s expires_at=%s",
		quote.ID, source, dest, side, rate, quote.ExpiresAt.Format(time.RFC3339))
	return quote, nil
}

// acceptQuote consumes a quote: absent ids report not-found, expired quotes are
// evicted and report expired, and a live quote is removed so a second
// acceptance of the same id deterministically fails.
func (s *Service) acceptQuote(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	quote, err := s.quotes.Take(ctx, id)
	if err != nil {
		return nil, err
	}
	if quote.Expired(time.Now().UTC()) {
		// Already removed from the cache by Take; nothing to evict.
		return nil, ErrQuoteExpired
	}
	return quote, nil
}

func validatePair(source, dest, side string) error {
	if source == dest {
		return ErrUnsupportedPair
	}
	switch side {
	case domain.QuoteSideBuy:
		// Stable balance buys crypto.
		if source != domain.CurrencyNGNZ || !supportedCrypto[dest] {
			return ErrUnsupportedPair
		}
	case domain.QuoteSideSell:
		// Crypto sells back into the stable balance.
		if dest != domain.CurrencyNGNZ || !supportedCrypto[source] {
			return ErrUnsupportedPair
		}
	}
	return nil
}

// priceConversion computes the NGNZ-per-unit rate for the crypto leg and the
// destination amount, applying the configured markdown in the user's
// disfavor so the USD-equivalent of the pair never increases.
func (s *Service) priceConversion(ctx context.Context, source, dest, side string, amount decimal.Decimal) (rate, destAmount decimal.Decimal, err error) {
	var cryptoCode, direction string
	if side == domain.QuoteSideBuy {
		cryptoCode = dest
		direction = priceoracle.DirectionOnramp
	} else {
		cryptoCode = source
		direction = priceoracle.DirectionOfframp
	}

	price, err := s.prices.GetPrice(ctx, cryptoCode)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to price %s: %w", cryptoCode, err)
	}
	fiatRate, err := s.prices.GetFiatRate(ctx, direction)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to fetch fiat %s rate: %w", direction, err)
	}
	if price.Source == priceoracle.SourceCache || fiatRate.Source == priceoracle.SourceCache {
		log.Printf("level=warn component=quotes msg=\"pricing from cached oracle data\" crypto=%s price_source=%s rate_source=%s",
			cryptoCode, price.Source, fiatRate.Source)
	}

	// rate is stable units per one crypto unit.
	rate = price.USDPrice.Mul(fiatRate.Rate)
	if rate.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("non-positive rate for %s", cryptoCode)
	}

	markdownFactor := decimal.NewFromInt(1).Sub(s.markdownPercent.Div(oneHundred))
	if side == domain.QuoteSideBuy {
		destAmount = amount.Div(rate).Mul(markdownFactor).Truncate(cryptoDestScale)
	} else {
		destAmount = amount.Mul(rate).Mul(markdownFactor).Truncate(2)
	}
	if destAmount.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, decimal.Zero, &ValidationError{Field: "amount", Reason: "too small to convert at current rate"}
	}
	return rate, destAmount, nil
}
