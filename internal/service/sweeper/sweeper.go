// Package sweeper периодически переводит просроченные транзакции в Expired,
// экспортирует задачи завершённых транзакций в очередь и возвращает в неё зависшие задачи.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
)

const (
	defaultInterval         = 10 * time.Second
	defaultBatchSize        = 100
	defaultReexportInterval = 10 * time.Minute
	defaultRetryInterval    = 10 * time.Minute
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_sweeper_runs_total",
		Help: "Total number of sweeper runs grouped by result.",
	}, []string{"result"})
	sweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketing_sweeper_expired_transactions_total",
		Help: "Total number of transactions moved to Expired by the sweeper.",
	})
	sweepExportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_sweeper_exported_transactions_total",
		Help: "Total number of transactions whose tasks were exported, grouped by type and status.",
	}, []string{"transaction_type", "status"})
	sweepRetriedTasksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketing_sweeper_retried_tasks_total",
		Help: "Total number of tasks stuck in Running that the sweeper returned to the queue.",
	})
)

// Exporter экспортирует задачи одной транзакции заданного статуса; nil, если экспортировать нечего.
type Exporter interface {
	ExportTasks(ctx context.Context, status domain.TransactionStatus) (*domain.Transaction, error)
}

// EventRecorder записывает событие транзакции в outbox.
type EventRecorder interface {
	RecordTransaction(ctx context.Context, eventType kafka.EventType, tx domain.Transaction, metadata map[string]interface{})
}

// Target: экспортёр одного типа транзакций и статусы, которые он обслуживает.
type Target struct {
	Type     domain.TransactionType
	Exporter Exporter
	Statuses []domain.TransactionStatus
}

// Options задаёт параметры Sweeper.
type Options struct {
	Logger           *log.Entry
	Events           EventRecorder
	Interval         time.Duration
	BatchSize        int
	ReexportInterval time.Duration
	Tasks            domain.TaskRepository
	RetryInterval    time.Duration
	Now              func() time.Time
}

// Option настраивает Sweeper.
type Option func(*Options)

// WithLogger задаёт logger для sweeper.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithEvents задаёт получателя событий Expired.
func WithEvents(events EventRecorder) Option {
	return func(opts *Options) { opts.Events = events }
}

// WithInterval задаёт интервал между циклами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) { opts.Interval = interval }
}

// WithBatchSize ограничивает число экспортов одного статуса за цикл.
func WithBatchSize(size int) Option {
	return func(opts *Options) { opts.BatchSize = size }
}

// WithReexportInterval задаёт, через сколько зависший экспорт возвращается в очередь.
func WithReexportInterval(interval time.Duration) Option {
	return func(opts *Options) { opts.ReexportInterval = interval }
}

// WithTasks включает возврат зависших в Running задач: через interval после
// последней попытки задача снова становится Ready.
func WithTasks(tasks domain.TaskRepository, interval time.Duration) Option {
	return func(opts *Options) {
		opts.Tasks = tasks
		opts.RetryInterval = interval
	}
}

func WithClock(now func() time.Time) Option {
	return func(opts *Options) { opts.Now = now }
}

// Sweeper: периодическая уборка транзакций.
type Sweeper struct {
	transactions     domain.TransactionRepository
	targets          []Target
	events           EventRecorder
	logger           *log.Entry
	interval         time.Duration
	batchSize        int
	reexportInterval time.Duration
	tasks            domain.TaskRepository
	retryInterval    time.Duration
	now              func() time.Time
}

// New создаёт sweeper.
func New(transactions domain.TransactionRepository, targets []Target, options ...Option) *Sweeper {
	opts := Options{
		Interval:         defaultInterval,
		BatchSize:        defaultBatchSize,
		ReexportInterval: defaultReexportInterval,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "sweeper")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.ReexportInterval <= 0 {
		opts.ReexportInterval = defaultReexportInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Sweeper{
		transactions:     transactions,
		targets:          targets,
		events:           opts.Events,
		logger:           logger,
		interval:         opts.Interval,
		batchSize:        opts.BatchSize,
		reexportInterval: opts.ReexportInterval,
		tasks:            opts.Tasks,
		retryInterval:    opts.RetryInterval,
		now:              now,
	}
}

// Run запускает циклы до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.transactions == nil {
		s.logger.Warn("sweeper is disabled: transactions repo is nil")
		return
	}

	s.run(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Sweeper) run(ctx context.Context) {
	if err := s.SweepOnce(ctx); err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("sweep finished with errors")
		return
	}
	sweepRunsTotal.WithLabelValues("success").Inc()
}

// SweepOnce выполняет один цикл: просрочка, возврат зависших экспортов и задач, экспорт задач.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	var errs []error

	expired, err := s.transactions.MakeExpired(ctx, s.now())
	if err != nil {
		errs = append(errs, err)
	}
	for _, tx := range expired {
		sweepExpiredTotal.Inc()
		if s.events != nil {
			s.events.RecordTransaction(ctx, kafka.EventTypeTransactionExpired, tx, nil)
		}
	}
	if len(expired) > 0 {
		s.logger.WithField("count", len(expired)).Info("transactions expired")
	}

	reexported, err := s.transactions.ReexportTasks(ctx, s.reexportInterval)
	if err != nil {
		errs = append(errs, err)
	}
	if reexported > 0 {
		s.logger.WithField("count", reexported).Warn("stale task exports returned to queue")
	}

	if s.tasks != nil {
		retried, err := s.tasks.RetryStuck(ctx, s.now(), s.retryInterval)
		if err != nil {
			errs = append(errs, err)
		}
		if retried > 0 {
			sweepRetriedTasksTotal.Add(float64(retried))
			s.logger.WithField("count", retried).Warn("stuck running tasks returned to queue")
		}
	}

	for _, target := range s.targets {
		for _, status := range target.Statuses {
			if err := s.export(ctx, target, status); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Sweeper) export(ctx context.Context, target Target, status domain.TransactionStatus) error {
	for i := 0; i < s.batchSize; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tx, err := target.Exporter.ExportTasks(ctx, status)
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"transaction_type": target.Type,
				"status":           status,
			}).Warn("failed to export tasks")
			return err
		}
		if tx == nil {
			return nil
		}
		sweepExportedTotal.WithLabelValues(string(target.Type), string(status)).Inc()
	}
	return nil
}
