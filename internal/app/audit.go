/**
 * @description
 * This file contains the asynchronous audit trail emitter. Settlement code
 * hands events to a buffered channel and moves on; a single worker goroutine
 * persists each event and mirrors it to the message broker. Audit is strictly
 * best effort: a full buffer drops the event with a warning rather than block
 * a settlement, and sink failures are logged and forgotten.
 *
 * @dependencies
 * - context, log, sync, time: Standard Go libraries.
 * - internal/domain, internal/store: Event model and persistence.
 * - pkg/rabbitmq: Broker mirror of the audit stream.
 */

package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/internal/store"
	"github.com/kudipay/settlement-service/pkg/rabbitmq"
)

const routingAuditEvent = "audit.event"

// AuditEmitter is the buffered, non-blocking AuditSink implementation.
type AuditEmitter struct {
	repo     store.Repository
	producer rabbitmq.Publisher
	events   chan domain.AuditEvent
	done     chan struct{}
	wg       sync.WaitGroup
	closed   sync.Once
}

// NewAuditEmitter starts the emitter's worker goroutine. bufferSize bounds how
// many events can be in flight before Emit starts dropping.
func NewAuditEmitter(repo store.Repository, producer rabbitmq.Publisher, bufferSize int) *AuditEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	e := &AuditEmitter{
		repo:     repo,
		producer: producer,
		events:   make(chan domain.AuditEvent, bufferSize),
		done:     make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

// Emit enqueues an event for persistence. It never blocks: when the buffer is
// full the event is dropped and counted in the log.
func (e *AuditEmitter) Emit(event domain.AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.events <- event:
	default:
		log.Printf("level=warn component=audit msg=\"audit buffer full, event dropped\" event_type=%s correlation_id=%s", event.EventType, event.CorrelationID)
	}
}

// Close stops accepting events and drains whatever is already buffered.
func (e *AuditEmitter) Close() {
	e.closed.Do(func() {
		close(e.done)
	})
	e.wg.Wait()
}

func (e *AuditEmitter) run() {
	defer e.wg.Done()
	for {
		select {
		case event := <-e.events:
			e.persist(event)
		case <-e.done:
			for {
				select {
				case event := <-e.events:
					e.persist(event)
				default:
					return
				}
			}
		}
	}
}

func (e *AuditEmitter) persist(event domain.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.repo.InsertAuditEvent(ctx, event); err != nil {
		log.Printf("level=warn component=audit msg=\"failed to persist audit event\" event_type=%s correlation_id=%s err=%v", event.EventType, event.CorrelationID, err)
	}
	if e.producer != nil {
		if err := e.producer.Publish(ctx, EventsExchange, routingAuditEvent, event); err != nil {
			log.Printf("level=warn component=audit msg=\"failed to publish audit event\" event_type=%s err=%v", event.EventType, err)
		}
	}
}
