/**
 * @description
 * This file contains the scheduled sweep: the safety net for purchases whose
 * provider callback never arrived. Each run picks up processing purchases past
 * the staleness cutoff, asks the provider for their real status, and resolves
 * them through the same idempotent path the callback uses. A purchase the
 * provider cannot account for is forced failed so its reservation returns to
 * the available balance. The run also evicts expired quotes from the cache.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - internal/domain: Event payloads.
 * - pkg/providerclient: Status query.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/pkg/providerclient"
)

const sweepBatchSize = 100

// SweepStalePurchases resolves processing purchases older than staleAfter.
// It returns how many purchases were resolved this run.
func (s *Service) SweepStalePurchases(ctx context.Context, staleAfter time.Duration) int {
	cutoff := time.Now().Add(-staleAfter)
	stale, err := s.repo.ListStalePurchases(ctx, cutoff, sweepBatchSize)
	if err != nil {
		log.Printf("level=error component=sweep msg=\"failed to list stale purchases\" err=%v", err)
		return 0
	}
	if len(stale) == 0 {
		return 0
	}
	log.Printf("level=info component=sweep msg=\"sweeping stale purchases\" count=%d cutoff=%s", len(stale), cutoff.Format(time.RFC3339))

	resolved := 0
	for _, purchase := range stale {
		if ctx.Err() != nil {
			break
		}
		if s.sweepOne(ctx, purchase) {
			resolved++
		}
	}
	return resolved
}

func (s *Service) sweepOne(ctx context.Context, purchase domain.Purchase) bool {
	event := domain.BillStatusEvent{RequestID: purchase.RequestID}

	result, err := s.provider.QueryStatus(ctx, purchase.RequestID)
	switch {
	case err == nil && result.Status != providerclient.StatusProcessing:
		event.Status = result.Status
		event.ExternalReference = result.ExternalReference
		event.Reason = "resolved by settlement sweep"
	default:
		// The provider either cannot be reached or still reports processing
		// past the settlement window. Force the terminal failed state so the
		// reservation returns to the user.
		if err != nil {
			log.Printf("level=warn component=sweep msg=\"provider status query failed\" request_id=%s err=%v", purchase.RequestID, err)
		}
		event.Status = providerclient.StatusFailed
		event.Reason = "settlement window exceeded"
	}

	if err := s.ResolvePurchase(ctx, event); err != nil {
		log.Printf("level=error component=sweep msg=\"failed to resolve stale purchase\" order_id=%s err=%v", purchase.OrderID, err)
		return false
	}
	return true
}

// EvictExpiredQuotes clears expired entries from the quote cache.
func (s *Service) EvictExpiredQuotes(ctx context.Context) int {
	return s.quotes.EvictExpired(ctx, time.Now())
}
