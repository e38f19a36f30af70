package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type outboxEntry struct {
	msg       domain.OutboxMessage
	createdAt time.Time
	closed    bool
}

// outboxRepositoryInMemory: outbox в порядке постановки. Закрытые записи (sent или failed)
// остаются в журнале, но не попадают в PullPending и Stats.
type outboxRepositoryInMemory struct {
	mu      sync.RWMutex
	byID    map[string]*outboxEntry
	journal []*outboxEntry
	now     func() time.Time
}

func NewOutboxRepository() *outboxRepositoryInMemory {
	return &outboxRepositoryInMemory{
		byID: make(map[string]*outboxEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *outboxRepositoryInMemory) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, dup := r.byID[msg.ID]; dup {
		return domain.OutboxMessage{}, fmt.Errorf("outbox message %s already enqueued: %w", msg.ID, domain.ErrAlreadyInUse)
	}
	e := &outboxEntry{msg: msg, createdAt: r.now()}
	r.byID[msg.ID] = e
	r.journal = append(r.journal, e)
	return msg, nil
}

func (r *outboxRepositoryInMemory) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.pending(limit), nil
}

func (r *outboxRepositoryInMemory) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, e := range r.journal {
		if e.closed {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = e.createdAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *outboxRepositoryInMemory) MarkSent(_ context.Context, id string) error {
	return r.close(id)
}

func (r *outboxRepositoryInMemory) MarkFailed(_ context.Context, id string) error {
	return r.close(id)
}

func (r *outboxRepositoryInMemory) close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok || e.closed {
		return fmt.Errorf("outbox message %s is not pending: %w", id, domain.ErrOutboxPublish)
	}
	e.closed = true
	return nil
}

// AllPending возвращает все незакрытые сообщения в порядке постановки.
func (r *outboxRepositoryInMemory) AllPending() []domain.OutboxMessage {
	return r.pending(0)
}

// pending возвращает до limit незакрытых сообщений, limit<=0 снимает ограничение.
func (r *outboxRepositoryInMemory) pending(limit int) []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.OutboxMessage, 0)
	for _, e := range r.journal {
		if e.closed {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, e.msg)
	}
	return out
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
