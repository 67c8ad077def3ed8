/**
 * @description
 * This file contains the liquidity reconciliation worker logic. After every
 * settled swap the engine owes the upstream provider a rebalance of the pool
 * the swap drew from. The work is queue-driven and bounded-retry; it is
 * deliberately decoupled from the swap itself, which is final regardless of
 * how reconciliation fares.
 *
 * @dependencies
 * - context, log: Standard Go libraries.
 * - internal/domain: Job payload.
 */

package app

import (
	"context"
	"log"

	"github.com/kudipay/settlement-service/internal/domain"
)

const maxReconcileAttempts = 5

// ReconcileLiquidity performs one rebalance attempt against the provider.
// Retry scheduling belongs to the queue handler, not here.
func (s *Service) ReconcileLiquidity(ctx context.Context, job domain.LiquidityReconcileJob) error {
	err := s.provider.RebalanceLiquidity(ctx, job.CorrelationID.String(), job.SourceCurrency, job.DestCurrency, job.SourceAmount, job.DestAmount)
	if err != nil {
		log.Printf("level=warn component=reconcile msg=\"rebalance attempt failed\" correlation_id=%s attempt=%d err=%v", job.CorrelationID, job.Attempt, err)
		return err
	}
	log.Printf("level=info component=reconcile msg=\"liquidity rebalanced\" correlation_id=%s pair=%s/%s", job.CorrelationID, job.SourceCurrency, job.DestCurrency)
	return nil
}
