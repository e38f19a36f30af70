package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// События журнала действий
	EventTypeActionStarted   EventType = "action.started"
	EventTypeActionCompleted EventType = "action.completed"
	EventTypeActionCanceled  EventType = "action.canceled"
	EventTypeActionFailed    EventType = "action.failed"

	// События транзакций
	EventTypeTransactionConfirmed EventType = "transaction.confirmed"
	EventTypeTransactionCanceled  EventType = "transaction.canceled"
	EventTypeTransactionExpired   EventType = "transaction.expired"
	EventTypeTasksExported        EventType = "transaction.tasks_exported"
)

// Topics для Kafka
const (
	TopicActions         = "ticketing.actions"
	TopicTransactions    = "ticketing.transactions"
	TopicDeadLetterQueue = "ticketing.dlq" // Dead Letter Queue для failed messages
)

// Типы агрегатов outbox-сообщений.
const (
	AggregateAction      = "action"
	AggregateTransaction = "transaction"
)

// Заголовки сообщений, повторно отправленных из DLQ.
const (
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// TopicForAggregate выбирает topic по типу агрегата; неизвестные типы идут в fallback.
func TopicForAggregate(aggregateType, fallback string) string {
	switch aggregateType {
	case AggregateAction:
		return TopicActions
	case AggregateTransaction:
		return TopicTransactions
	default:
		return fallback
	}
}

// ActionEvent представляет переход действия в журнале
type ActionEvent struct {
	EventType     EventType           `json:"event_type"`
	ActionID      string              `json:"action_id"`
	ActionType    domain.ActionType   `json:"action_type"`
	ObjectType    domain.ObjectType   `json:"object_type"`
	Status        domain.ActionStatus `json:"status"`
	TransactionID string              `json:"transaction_id,omitempty"`
	OrderNumber   string              `json:"order_number,omitempty"`
	Error         *domain.ActionError `json:"error,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}

// TransactionEvent представляет переход статуса транзакции
type TransactionEvent struct {
	EventType       EventType                `json:"event_type"`
	TransactionID   string                   `json:"transaction_id"`
	TransactionType domain.TransactionType   `json:"transaction_type"`
	Status          domain.TransactionStatus `json:"status"`
	OrderNumber     string                   `json:"order_number,omitempty"`
	Metadata        map[string]interface{}   `json:"metadata,omitempty"`
	Timestamp       time.Time                `json:"timestamp"`
}

// ActionEventType возвращает тип события для статуса действия.
func ActionEventType(status domain.ActionStatus) EventType {
	switch status {
	case domain.ActionStatusCompleted:
		return EventTypeActionCompleted
	case domain.ActionStatusCanceled:
		return EventTypeActionCanceled
	case domain.ActionStatusFailed:
		return EventTypeActionFailed
	default:
		return EventTypeActionStarted
	}
}

// NewActionEvent создает событие по текущему состоянию действия
func NewActionEvent(action domain.Action) *ActionEvent {
	ev := &ActionEvent{
		EventType:     ActionEventType(action.ActionStatus),
		ActionID:      action.ID,
		ActionType:    action.TypeOf,
		Status:        action.ActionStatus,
		TransactionID: action.TransactionID(),
		OrderNumber:   action.OrderNumber(),
		Error:         action.Error,
		Timestamp:     time.Now().UTC(),
	}
	if action.Object != nil {
		ev.ObjectType = action.Object.ObjectType()
	}
	return ev
}

// NewTransactionEvent создает событие транзакции
func NewTransactionEvent(eventType EventType, tx domain.Transaction, metadata map[string]interface{}) *TransactionEvent {
	ev := &TransactionEvent{
		EventType:       eventType,
		TransactionID:   tx.ID,
		TransactionType: tx.TypeOf,
		Status:          tx.Status,
		Metadata:        metadata,
		Timestamp:       time.Now().UTC(),
	}
	switch {
	case tx.Result != nil && tx.Result.Order != nil:
		ev.OrderNumber = tx.Result.Order.OrderNumber
	case tx.Object.Order != nil:
		ev.OrderNumber = tx.Object.Order.OrderNumber
	}
	return ev
}
