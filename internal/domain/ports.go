package domain

import (
	"context"
	"time"
)

// CreditCardGateway описывает вызовы к кредитному шлюзу GMO.
type CreditCardGateway interface {
	// EntryTran регистрирует сделку и возвращает ключи доступа.
	EntryTran(ctx context.Context, args EntryTranArgs) (EntryTranResult, error)
	// ExecTran выполняет авторизацию по зарегистрированной сделке.
	ExecTran(ctx context.Context, args ExecTranArgs) (ExecTranResult, error)
	// AlterTran меняет статус сделки (Sales, Void).
	AlterTran(ctx context.Context, args AlterTranArgs) (AlterTranResult, error)
	// ChangeTran меняет сумму подтверждённой сделки.
	ChangeTran(ctx context.Context, args ChangeTranArgs) (AlterTranResult, error)
	// SearchTrade возвращает текущее состояние сделки.
	SearchTrade(ctx context.Context, args SearchTradeArgs) (Trade, error)
}

// PecorinoTransactionService: сервис транзакций одного вида в журнале баллов.
type PecorinoTransactionService interface {
	Start(ctx context.Context, params PecorinoStartParams) (PecorinoTransaction, error)
	Confirm(ctx context.Context, transactionID string) error
	Cancel(ctx context.Context, transactionID string) error
}

// PecorinoGateway выдаёт сервисы транзакций журнала баллов.
// Endpoint хранится в результате авторизации, поэтому сервис строится по нему.
type PecorinoGateway interface {
	Service(kind PecorinoTransactionType, endpoint string) PecorinoTransactionService
	// Endpoint: адрес, используемый для новых авторизаций.
	Endpoint() string
}

// SeatReservationGateway описывает временную бронь мест во внешней системе.
type SeatReservationGateway interface {
	Hold(ctx context.Context, req SeatHoldRequest) (SeatHold, error)
	Release(ctx context.Context, req SeatHoldRequest, holdNumber string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
