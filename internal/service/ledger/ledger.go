package ledger

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
)

// Options задаёт зависимости журнала.
type Options struct {
	Outbox  domain.OutboxRepository
	Metrics *metrics.TicketingMetrics
	Logger  *log.Entry
}

// Option настраивает Ledger.
type Option func(*Options)

// WithOutbox включает публикацию переходов через transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(opts *Options) {
		opts.Outbox = outbox
	}
}

// WithMetrics задаёт коллекторы метрик.
func WithMetrics(m *metrics.TicketingMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// Ledger: журнал действий поверх ActionRepository.
// Каждый переход учитывается в метриках и ставится в outbox как событие.
type Ledger struct {
	actions domain.ActionRepository
	outbox  domain.OutboxRepository
	metrics *metrics.TicketingMetrics
	logger  *log.Entry
}

// New создаёт журнал действий.
func New(actions domain.ActionRepository, options ...Option) *Ledger {
	var opts Options
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "action-ledger")
	}
	return &Ledger{
		actions: actions,
		outbox:  opts.Outbox,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Metrics возвращает коллекторы, которыми пользуется журнал (может быть nil).
func (l *Ledger) Metrics() *metrics.TicketingMetrics {
	return l.metrics
}

// Start создаёт действие в статусе Active.
func (l *Ledger) Start(ctx context.Context, attrs domain.ActionAttributes) (domain.Action, error) {
	action, err := l.actions.Start(ctx, attrs)
	if err != nil {
		return domain.Action{}, err
	}
	l.recorded(ctx, action)
	return action, nil
}

// Complete переводит действие в Completed с результатом.
func (l *Ledger) Complete(ctx context.Context, typeOf domain.ActionType, actionID string, result domain.ActionResult) (domain.Action, error) {
	action, err := l.actions.Complete(ctx, typeOf, actionID, result)
	if err != nil {
		return domain.Action{}, err
	}
	l.recorded(ctx, action)
	return action, nil
}

// Cancel переводит действие в Canceled.
func (l *Ledger) Cancel(ctx context.Context, typeOf domain.ActionType, actionID string) (domain.Action, error) {
	action, err := l.actions.Cancel(ctx, typeOf, actionID)
	if err != nil {
		return domain.Action{}, err
	}
	l.recorded(ctx, action)
	return action, nil
}

// CancelAuthorization отзывает завершённую авторизацию транзакции.
func (l *Ledger) CancelAuthorization(ctx context.Context, objectType domain.ObjectType, actionID, transactionID string) (domain.Action, error) {
	action, err := l.actions.CancelAuthorization(ctx, objectType, actionID, transactionID)
	if err != nil {
		return domain.Action{}, err
	}
	l.recorded(ctx, action)
	return action, nil
}

// GiveUp переводит действие в Failed со снимком ошибки.
func (l *Ledger) GiveUp(ctx context.Context, typeOf domain.ActionType, actionID string, actionErr domain.ActionError) (domain.Action, error) {
	action, err := l.actions.GiveUp(ctx, typeOf, actionID, actionErr)
	if err != nil {
		return domain.Action{}, err
	}
	l.recorded(ctx, action)
	return action, nil
}

// Abandon фиксирует отказ действия и всегда возвращает исходную ошибку cause.
// Ошибка записи Failed не подменяет cause: она логируется и учитывается в метриках.
func (l *Ledger) Abandon(ctx context.Context, action domain.Action, cause error) error {
	_, err := l.GiveUp(ctx, action.TypeOf, action.ID, domain.NewActionError(cause))
	if err != nil {
		l.metrics.RecordGiveUpFailure(string(action.TypeOf))
		l.logger.WithError(err).WithFields(log.Fields{
			"action_id":      action.ID,
			"action_type":    action.TypeOf,
			"original_error": cause.Error(),
		}).Error("failed to record action failure")
	}
	return cause
}

// UpdateObjectAndResultByID меняет объект и результат завершённой брони мест.
func (l *Ledger) UpdateObjectAndResultByID(
	ctx context.Context,
	actionID, transactionID string,
	object domain.SeatReservationObject,
	result domain.SeatReservationResult,
) (domain.Action, error) {
	return l.actions.UpdateObjectAndResultByID(ctx, actionID, transactionID, object, result)
}

func (l *Ledger) FindByID(ctx context.Context, typeOf domain.ActionType, actionID string) (domain.Action, error) {
	return l.actions.FindByID(ctx, typeOf, actionID)
}

func (l *Ledger) FindAuthorizeByTransactionID(ctx context.Context, transactionID string) ([]domain.Action, error) {
	return l.actions.FindAuthorizeByTransactionID(ctx, transactionID)
}

func (l *Ledger) SearchByTransactionID(ctx context.Context, params domain.SearchActionsParams) ([]domain.Action, error) {
	return l.actions.SearchByTransactionID(ctx, params)
}

func (l *Ledger) FindByOrderNumber(ctx context.Context, orderNumber string) ([]domain.Action, error) {
	return l.actions.FindByOrderNumber(ctx, orderNumber)
}

// RecordTransaction публикует переход транзакции.
func (l *Ledger) RecordTransaction(ctx context.Context, eventType kafka.EventType, tx domain.Transaction, metadata map[string]interface{}) {
	l.metrics.RecordTransaction(string(tx.TypeOf), string(tx.Status))
	l.logger.WithFields(log.Fields{
		"transaction_id":   tx.ID,
		"transaction_type": tx.TypeOf,
		"status":           tx.Status,
	}).Info("transaction transition recorded")
	l.enqueue(ctx, kafka.AggregateTransaction, tx.ID, eventType, kafka.NewTransactionEvent(eventType, tx, metadata))
}

func (l *Ledger) recorded(ctx context.Context, action domain.Action) {
	var objectType domain.ObjectType
	if action.Object != nil {
		objectType = action.Object.ObjectType()
	}
	l.metrics.RecordAction(string(action.TypeOf), string(objectType), string(action.ActionStatus))
	l.logger.WithFields(log.Fields{
		"action_id":      action.ID,
		"action_type":    action.TypeOf,
		"object_type":    objectType,
		"action_status":  action.ActionStatus,
		"transaction_id": action.TransactionID(),
	}).Debug("action transition recorded")

	event := kafka.NewActionEvent(action)
	l.enqueue(ctx, kafka.AggregateAction, action.ID, event.EventType, event)
}

func (l *Ledger) enqueue(ctx context.Context, aggregateType, aggregateID string, eventType kafka.EventType, event interface{}) {
	if l.outbox == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		l.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := l.outbox.Enqueue(ctx, msg); err != nil {
		l.logger.WithError(err).WithFields(log.Fields{
			"aggregate_id": aggregateID,
			"event":        eventType,
		}).Error("enqueue event failed")
		return
	}
	l.metrics.RecordOutboxEvent()
}
