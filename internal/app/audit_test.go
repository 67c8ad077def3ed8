package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/internal/store"
)

type auditRepoStub struct {
	store.Repository

	mu      sync.Mutex
	block   chan struct{}
	events  []domain.AuditEvent
	lastErr error
}

func (s *auditRepoStub) InsertAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.lastErr
}

func (s *auditRepoStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestAuditEmitter_PersistsAndPublishesEvents(t *testing.T) {
	repo := &auditRepoStub{}
	publisher := &stubPublisher{}
	emitter := NewAuditEmitter(repo, publisher, 16)

	for i := 0; i < 5; i++ {
		emitter.Emit(domain.AuditEvent{EventType: "swap", Status: "SUCCESS", CorrelationID: uuid.New()})
	}
	emitter.Close()

	if repo.count() != 5 {
		t.Fatalf("expected 5 events persisted, got %d", repo.count())
	}
	if publisher.count() != 5 {
		t.Fatalf("expected 5 events published, got %d", publisher.count())
	}
}

func TestAuditEmitter_NeverBlocksWhenBufferIsFull(t *testing.T) {
	block := make(chan struct{})
	repo := &auditRepoStub{block: block}
	emitter := NewAuditEmitter(repo, &stubPublisher{}, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more events than the buffer holds while the worker is stuck.
		for i := 0; i < 50; i++ {
			emitter.Emit(domain.AuditEvent{EventType: "purchase", Status: "INITIATED"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}

	close(block)
	emitter.Close()
}

func TestAuditEmitter_EmitAfterCloseIsDropped(t *testing.T) {
	repo := &auditRepoStub{}
	emitter := NewAuditEmitter(repo, &stubPublisher{}, 4)
	emitter.Close()

	// Must not panic or deadlock.
	emitter.Emit(domain.AuditEvent{EventType: "swap", Status: "SUCCESS"})
	if repo.count() != 0 {
		t.Fatalf("expected no events after close, got %d", repo.count())
	}
}
