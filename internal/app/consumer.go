/**
 * @description
 * This file contains the message handlers bound to the RabbitMQ consumer. Each
 * handler takes a raw message body and returns true to ack or false to nack
 * and requeue. Handlers are thin: they decode, delegate to the service, and
 * translate the error into an ack decision.
 *
 * @dependencies
 * - context, encoding/json, errors, log, time: Standard Go libraries.
 * - internal/domain: Event payloads.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/kudipay/settlement-service/internal/domain"
)

// HandleBillStatusMessage applies an asynchronous provider status update to
// its purchase. Unparseable messages and permanently failed resolutions are
// acked so they do not poison the queue.
func (s *Service) HandleBillStatusMessage(body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var event domain.BillStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=consumer msg=\"failed to unmarshal bill status event\" err=%v", err)
		return true
	}
	if event.RequestID == "" {
		log.Printf("level=warn component=consumer msg=\"bill status event missing request id\"")
		return true
	}

	if err := s.ResolvePurchase(ctx, event); err != nil {
		var postProvider *BalancePostProviderError
		if errors.As(err, &postProvider) {
			// Terminal on our side; a redelivery cannot fix the ledger.
			log.Printf("level=error component=consumer msg=\"purchase needs manual intervention\" request_id=%s err=%v", event.RequestID, err)
			return true
		}
		log.Printf("level=warn component=consumer msg=\"failed to resolve purchase, requeueing\" request_id=%s err=%v", event.RequestID, err)
		return false
	}
	return true
}

// HandleLiquidityReconcileMessage asks the provider to rebalance upstream
// liquidity after a swap. Failures are retried by requeue up to a bounded
// attempt count; beyond that the job is dropped with an audit event. A stuck
// reconciliation never affects the already-settled swap.
func (s *Service) HandleLiquidityReconcileMessage(body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var job domain.LiquidityReconcileJob
	if err := json.Unmarshal(body, &job); err != nil {
		log.Printf("level=error component=consumer msg=\"failed to unmarshal reconcile job\" err=%v", err)
		return true
	}

	if err := s.ReconcileLiquidity(ctx, job); err != nil {
		if job.Attempt+1 >= maxReconcileAttempts {
			log.Printf("level=error component=consumer msg=\"reconcile attempts exhausted\" correlation_id=%s attempts=%d err=%v", job.CorrelationID, job.Attempt+1, err)
			s.emitAudit("liquidity_reconcile", "FAILED", job.CorrelationID, time.Now(), map[string]any{
				"reason": err.Error(), "attempts": job.Attempt + 1,
			})
			return true
		}
		job.Attempt++
		if s.eventProducer != nil {
			if pubErr := s.eventProducer.Publish(ctx, EventsExchange, routingLiquidityReconcile, job); pubErr == nil {
				return true
			}
		}
		// Could not re-enqueue with the bumped counter; fall back to requeue.
		return false
	}
	return true
}
