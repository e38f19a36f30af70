// Package outbox доставляет события журнала действий и транзакций из outbox в брокер.
// Запись в outbox делается в той же операции, что и переход состояния, поэтому событие
// не теряется при падении процесса между переходом и публикацией.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
	"github.com/vladislavdragonenkov/ticketing/internal/resilience"
)

// Значения label result у ticketing_outbox_publish_attempts_total.
const (
	ResultSent      = "sent"
	ResultRetry     = "retry_error"
	ResultFailed    = "failed"
	ResultDLQFailed = "dlq_failed"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
)

// DeadLetter: запись, уходящая в DLQ после исчерпания попыток.
// cmd/dlq-reprocess восстанавливает по ней исходный envelope.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger       *log.Entry
	Metrics      *metrics.TicketingMetrics
	DLQPublisher domain.OutboxPublisher
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Retry        resilience.RetryConfig
	Now          func() time.Time
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

func WithMetrics(m *metrics.TicketingMetrics) Option {
	return func(opts *WorkerOptions) { opts.Metrics = m }
}

// WithDLQPublisher задаёт publisher для сообщений, исчерпавших попытки.
// Без него такие сообщения только помечаются failed.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) { opts.DLQPublisher = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации одного сообщения за цикл.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = maxAttempts }
}

// WithRetry задаёт задержки между попытками публикации.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(opts *WorkerOptions) { opts.Retry = cfg }
}

// WithRetryBaseDelay задаёт начальную задержку с удвоением на каждой попытке.
// Нулевая задержка отключает ожидание.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.Retry = resilience.RetryConfig{InitialDelay: delay, MaxDelay: 30 * delay, BackoffFactor: 2}
	}
}

func WithClock(now func() time.Time) Option {
	return func(opts *WorkerOptions) { opts.Now = now }
}

// Result: итог одного цикла.
type Result struct {
	Sent   int
	Failed int
}

// Worker публикует события из outbox.
type Worker struct {
	repo         domain.OutboxRepository
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
	logger       *log.Entry
	metrics      *metrics.TicketingMetrics
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retry        resilience.RetryConfig
	now          func() time.Time
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval: defaultPollInterval,
		BatchSize:    defaultBatchSize,
		MaxAttempts:  defaultMaxAttempts,
		Retry:        resilience.RetryConfig{InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2},
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Worker{
		repo:         repo,
		publisher:    publisher,
		dlqPublisher: opts.DLQPublisher,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		maxAttempts:  opts.MaxAttempts,
		retry:        opts.Retry,
		now:          opts.Now,
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce публикует одну пачку ожидающих сообщений.
// Сообщение, не опубликованное за maxAttempts попыток, уходит в DLQ и помечается failed.
func (w *Worker) ProcessOnce(ctx context.Context) Result {
	var res Result
	if ctx.Err() != nil {
		return res
	}

	pending, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return res
	}

	for _, msg := range pending {
		if ctx.Err() != nil {
			break
		}
		entry := w.logger.WithFields(log.Fields{
			"outbox_id":      msg.ID,
			"aggregate_type": msg.AggregateType,
			"event_type":     msg.EventType,
		})

		if err := w.publish(ctx, msg); err != nil {
			if ctx.Err() != nil {
				break
			}
			res.Failed++
			entry.WithError(err).Error("outbox publish failed after retries")
			w.metrics.RecordOutboxPublish(ResultFailed)

			if dlqErr := w.deadLetter(ctx, msg, err); dlqErr != nil {
				entry.WithError(dlqErr).Warn("failed to publish to DLQ")
				w.metrics.RecordOutboxPublish(ResultDLQFailed)
			}
			if markErr := w.repo.MarkFailed(ctx, msg.ID); markErr != nil {
				entry.WithError(markErr).Warn("failed to mark outbox message as failed")
			}
			continue
		}

		res.Sent++
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("failed to mark outbox message as sent")
		}
	}

	w.refreshBacklog(ctx)
	return res
}

func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		lastErr = w.publisher.Publish(ctx, msg)
		if lastErr == nil {
			w.metrics.RecordOutboxPublish(ResultSent)
			return nil
		}
		w.metrics.RecordOutboxPublish(ResultRetry)
		if attempt == w.maxAttempts {
			break
		}

		delay := w.retry.Backoff(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetOutboxBacklog(stats.PendingCount, age)
}

func (w *Worker) deadLetter(ctx context.Context, msg domain.OutboxMessage, publishErr error) error {
	if w.dlqPublisher == nil {
		return nil
	}

	payload, err := json.Marshal(DeadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        json.RawMessage(msg.Payload),
		PublishError:   publishErr.Error(),
		DLQPublishedAt: w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	dead := msg
	dead.Payload = payload
	if err := w.dlqPublisher.Publish(ctx, dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
