package app

import (
	"context"
	"sync"

	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/pkg/priceoracle"
	"github.com/kudipay/settlement-service/pkg/providerclient"
	"github.com/shopspring/decimal"
)

// stubProvider satisfies ProviderClient with scripted responses.
type stubProvider struct {
	submitResult *providerclient.SubmitResult
	submitErr    error
	submitCalls  int
	lastSubmit   providerclient.SubmitRequest

	queryResult *providerclient.SubmitResult
	queryErr    error
	queryCalls  int

	rebalanceErr   error
	rebalanceCalls int
}

func (p *stubProvider) Submit(ctx context.Context, req providerclient.SubmitRequest) (*providerclient.SubmitResult, error) {
	p.submitCalls++
	p.lastSubmit = req
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	return p.submitResult, nil
}

func (p *stubProvider) QueryStatus(ctx context.Context, requestID string) (*providerclient.SubmitResult, error) {
	p.queryCalls++
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.queryResult, nil
}

func (p *stubProvider) RebalanceLiquidity(ctx context.Context, correlationID, sourceCurrency, destCurrency string, sourceAmount, destAmount decimal.Decimal) error {
	p.rebalanceCalls++
	return p.rebalanceErr
}

// stubPrices returns a fixed USD price and fiat rate as live data.
type stubPrices struct {
	usdPrice decimal.Decimal
	fiatRate decimal.Decimal
	priceErr error
	rateErr  error
}

func (p *stubPrices) GetPrice(ctx context.Context, code string) (*priceoracle.Price, error) {
	if p.priceErr != nil {
		return nil, p.priceErr
	}
	return &priceoracle.Price{Code: code, USDPrice: p.usdPrice, Source: priceoracle.SourceLive}, nil
}

func (p *stubPrices) GetFiatRate(ctx context.Context, direction string) (*priceoracle.FiatRate, error) {
	if p.rateErr != nil {
		return nil, p.rateErr
	}
	return &priceoracle.FiatRate{Direction: direction, Rate: p.fiatRate, Source: priceoracle.SourceLive}, nil
}

// stubAudit records emitted events synchronously.
type stubAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *stubAudit) Emit(event domain.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *stubAudit) byStatus(status string) []domain.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range a.events {
		if ev.Status == status {
			out = append(out, ev)
		}
	}
	return out
}

// stubPublisher records published messages.
type stubPublisher struct {
	mu         sync.Mutex
	publishErr error
	published  []publishedMessage
}

type publishedMessage struct {
	exchange   string
	routingKey string
	body       interface{}
}

func (p *stubPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.published = append(p.published, publishedMessage{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *stubPublisher) Close() {}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}
