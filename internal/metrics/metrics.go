package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label outcome.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// TicketingMetrics содержит метрики журнала действий, исполнителей и шлюзов.
// Все методы безопасны для nil-получателя: тесты могут работать без метрик.
type TicketingMetrics struct {
	// Переходы действий журнала
	actions        *prometheus.CounterVec
	giveUpFailures *prometheus.CounterVec

	// Переходы транзакций
	transactions *prometheus.CounterVec

	// Исполнители и задачи
	executorDuration  *prometheus.HistogramVec
	executorsInFlight prometheus.Gauge
	tasks             *prometheus.CounterVec

	// Внешние сервисы
	gatewayCalls *prometheus.CounterVec

	// Transactional outbox
	outboxEvents          prometheus.Counter
	outboxPublishAttempts *prometheus.CounterVec
	outboxPending         prometheus.Gauge
	outboxOldestAge       prometheus.Gauge
}

// NewTicketingMetrics создаёт метрики в DefaultRegisterer.
func NewTicketingMetrics() *TicketingMetrics {
	return NewTicketingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTicketingMetricsWithRegisterer создаёт метрики в заданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewTicketingMetricsWithRegisterer(registerer prometheus.Registerer) *TicketingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &TicketingMetrics{
		actions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ticketing_actions_total",
			Help: "Total number of action ledger transitions",
		}, []string{"action_type", "object_type", "status"}),
		giveUpFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ticketing_action_give_up_failures_total",
			Help: "Total number of failed attempts to record an action failure",
		}, []string{"action_type"}),
		transactions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ticketing_transactions_total",
			Help: "Total number of transaction status transitions",
		}, []string{"transaction_type", "status"}),
		executorDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ticketing_executor_duration_seconds",
			Help:    "Duration of settlement and compensation executors in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"executor", "outcome"}),
		executorsInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ticketing_executors_in_flight",
			Help: "Number of executors currently running",
		}),
		tasks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ticketing_tasks_total",
			Help: "Total number of task executions grouped by outcome",
		}, []string{"name", "outcome"}),
		gatewayCalls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ticketing_gateway_calls_total",
			Help: "Total number of external gateway calls",
		}, []string{"gateway", "operation", "outcome"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ticketing_outbox_events_total",
			Help: "Total number of events enqueued to the outbox",
		}),
		outboxPublishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ticketing_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ticketing_outbox_pending_records",
			Help: "Current number of pending records in the outbox",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ticketing_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordAction учитывает переход действия в журнале.
func (m *TicketingMetrics) RecordAction(actionType, objectType, status string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(actionType, objectType, status).Inc()
}

// RecordGiveUpFailure учитывает потерянную запись об ошибке действия.
func (m *TicketingMetrics) RecordGiveUpFailure(actionType string) {
	if m == nil {
		return
	}
	m.giveUpFailures.WithLabelValues(actionType).Inc()
}

// RecordTransaction учитывает переход статуса транзакции.
func (m *TicketingMetrics) RecordTransaction(transactionType, status string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(transactionType, status).Inc()
}

// ExecutorStarted увеличивает количество выполняющихся исполнителей.
func (m *TicketingMetrics) ExecutorStarted() {
	if m == nil {
		return
	}
	m.executorsInFlight.Inc()
}

// ExecutorFinished записывает длительность исполнителя и уменьшает gauge.
func (m *TicketingMetrics) ExecutorFinished(executor, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.executorsInFlight.Dec()
	m.executorDuration.WithLabelValues(executor, outcome).Observe(duration.Seconds())
}

// RecordTask учитывает попытку исполнения задачи.
func (m *TicketingMetrics) RecordTask(name, outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(name, outcome).Inc()
}

// RecordGatewayCall учитывает вызов внешнего сервиса.
func (m *TicketingMetrics) RecordGatewayCall(gateway, operation, outcome string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(gateway, operation, outcome).Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *TicketingMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// RecordOutboxPublish учитывает попытку публикации из outbox.
func (m *TicketingMetrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublishAttempts.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер очереди outbox и возраст самой старой записи.
func (m *TicketingMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.outboxPending.Set(float64(pending))
	m.outboxOldestAge.Set(oldestAge.Seconds())
}

// Outcome переводит ошибку в значение label outcome.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
