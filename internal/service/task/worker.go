// Package task исполняет задачи очереди: захватывает готовые, вызывает
// исполнителя по имени задачи и записывает итог попытки.
package task

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
	"github.com/vladislavdragonenkov/ticketing/internal/resilience"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 10
)

// Handler исполняет одну задачу. Ошибка означает неудачную попытку.
type Handler func(ctx context.Context, task domain.Task) error

// Handlers: исполнители по имени задачи.
type Handlers map[domain.TaskName]Handler

// WorkerOptions задаёт параметры воркера задач.
type WorkerOptions struct {
	Logger       *log.Entry
	Metrics      *metrics.TicketingMetrics
	PollInterval time.Duration
	BatchSize    int
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

// WithPollInterval задаёт частоту опроса очереди.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

// WithBatchSize задаёт число задач, захватываемых за один цикл.
func WithBatchSize(size int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = size }
}

// WithRetry задаёт задержку перед повторной попыткой.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(opts *WorkerOptions) { opts.Retry = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(opts *WorkerOptions) { opts.Now = now }
}

// Worker: воркер очереди задач.
type Worker struct {
	repo         domain.TaskRepository
	handlers     Handlers
	logger       *log.Entry
	metrics      *metrics.TicketingMetrics
	pollInterval time.Duration
	batchSize    int
	retry        resilience.RetryConfig
	now          func() time.Time
}

// NewWorker создаёт воркер задач.
func NewWorker(repo domain.TaskRepository, handlers Handlers, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval: defaultPollInterval,
		BatchSize:    defaultBatchSize,
		Retry:        resilience.DefaultRetryConfig(),
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "task-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Worker{
		repo:         repo,
		handlers:     handlers,
		logger:       logger,
		metrics:      opts.Metrics,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		retry:        opts.Retry,
		now:          now,
	}
}

// Run опрашивает очередь до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("task worker is disabled: repo is nil")
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

// ProcessOnce захватывает и исполняет одну пачку задач. Возвращает число исполненных попыток.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	tasks, err := w.repo.ClaimReady(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to claim ready tasks")
		return 0
	}

	processed := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		w.execute(ctx, task)
		processed++
	}
	return processed
}

func (w *Worker) execute(ctx context.Context, task domain.Task) {
	fields := log.Fields{
		"task_id":        task.ID,
		"task_name":      task.Name,
		"transaction_id": task.Data.TransactionID,
		"attempt":        task.NumberOfTried,
	}

	var err error
	handler, ok := w.handlers[task.Name]
	if ok {
		err = w.invoke(ctx, handler, task)
	} else {
		err = domain.NotImplemented(fmt.Sprintf("task %q not implemented", task.Name))
	}

	now := w.now()
	result := domain.TaskExecutionResult{ExecutedAt: now}
	status := domain.TaskStatusExecuted
	runsAt := task.RunsAt
	outcome := "executed"

	if err != nil {
		actionErr := domain.NewActionError(err)
		result.Error = &actionErr
		switch {
		case !ok:
			status = domain.TaskStatusAborted
			outcome = "aborted"
		case task.RemainingNumberOfTries > 0:
			status = domain.TaskStatusReady
			runsAt = now.Add(w.retry.Backoff(task.NumberOfTried))
			outcome = "retry"
		default:
			status = domain.TaskStatusAborted
			outcome = "aborted"
		}
		w.logger.WithError(err).WithFields(fields).WithField("next_status", status).Warn("task attempt failed")
	}

	if finishErr := w.repo.Finish(ctx, task.ID, status, runsAt, result); finishErr != nil {
		w.logger.WithError(finishErr).WithFields(fields).Error("failed to record task result")
	}
	w.metrics.RecordTask(string(task.Name), outcome)
	if err == nil {
		w.logger.WithFields(fields).Debug("task executed")
	}
}

// invoke защищает воркер от паники исполнителя: паника считается неудачной попыткой.
func (w *Worker) invoke(ctx context.Context, handler Handler, task domain.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return handler(ctx, task)
}
