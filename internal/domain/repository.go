package domain

import (
	"context"
	"time"
)

// SortDirection задаёт порядок сортировки выборок журнала.
type SortDirection int

const (
	SortAscending  SortDirection = 1
	SortDescending SortDirection = -1
)

// ActionSort: поле и направление сортировки.
type ActionSort struct {
	StartDate SortDirection
	EndDate   SortDirection
}

// SearchActionsParams: выборка действий по транзакции-владельцу.
type SearchActionsParams struct {
	TransactionType TransactionType
	TransactionID   string
	Sort            *ActionSort
}

// ActionRepository описывает журнал действий.
type ActionRepository interface {
	// Start создаёт действие в статусе Active с startDate = now.
	Start(ctx context.Context, attrs ActionAttributes) (Action, error)
	// Complete переводит Active действие в Completed; NotFound, если такого нет.
	Complete(ctx context.Context, typeOf ActionType, actionID string, result ActionResult) (Action, error)
	// Cancel переводит Active действие в Canceled; NotFound, если такого нет.
	Cancel(ctx context.Context, typeOf ActionType, actionID string) (Action, error)
	// CancelAuthorization отзывает завершённую авторизацию транзакции.
	// Результат сохраняется: по нему потом отменяется внешний резерв.
	CancelAuthorization(ctx context.Context, objectType ObjectType, actionID, transactionID string) (Action, error)
	// GiveUp переводит Active действие в Failed и сохраняет снимок ошибки.
	GiveUp(ctx context.Context, typeOf ActionType, actionID string, actionErr ActionError) (Action, error)
	FindByID(ctx context.Context, typeOf ActionType, actionID string) (Action, error)
	// FindAuthorizeByTransactionID возвращает все авторизации транзакции.
	FindAuthorizeByTransactionID(ctx context.Context, transactionID string) ([]Action, error)
	SearchByTransactionID(ctx context.Context, params SearchActionsParams) ([]Action, error)
	// FindByOrderNumber возвращает действия заказа, отсортированные по endDate по убыванию.
	FindByOrderNumber(ctx context.Context, orderNumber string) ([]Action, error)
	// UpdateObjectAndResultByID меняет объект и результат завершённой брони мест.
	UpdateObjectAndResultByID(ctx context.Context, actionID, transactionID string, object SeatReservationObject, result SeatReservationResult) (Action, error)
}

// TransactionRepository описывает хранилище транзакций.
// Все переходы статуса выполняются атомарными условные обновления по текущему статусу.
type TransactionRepository interface {
	// Start сохраняет новую транзакцию; AlreadyInUse при нарушении уникальности.
	Start(ctx context.Context, tx Transaction) (Transaction, error)
	FindByID(ctx context.Context, typeOf TransactionType, id string) (Transaction, error)
	// FindInProgressByID возвращает NotFound, если транзакция не в статусе InProgress.
	FindInProgressByID(ctx context.Context, typeOf TransactionType, id string) (Transaction, error)
	SetCustomerContact(ctx context.Context, typeOf TransactionType, id string, contact CustomerContact) (Transaction, error)
	// Confirm атомарно переводит InProgress в Confirmed вместе с result и potentialActions.
	// AlreadyInUse, если транзакция уже подтверждена; NotFound в остальных случаях.
	Confirm(ctx context.Context, params ConfirmParams) (Transaction, error)
	Cancel(ctx context.Context, typeOf TransactionType, id string) (Transaction, error)
	// MakeExpired переводит просроченные InProgress транзакции в Expired.
	MakeExpired(ctx context.Context, now time.Time) ([]Transaction, error)
	// StartExportTasks захватывает одну транзакцию для экспорта задач; nil, если нечего.
	StartExportTasks(ctx context.Context, typeOf TransactionType, status TransactionStatus) (*Transaction, error)
	SetTasksExportedByID(ctx context.Context, id string) error
	// ReexportTasks возвращает в Unexported зависшие в Exporting дольше interval.
	ReexportTasks(ctx context.Context, interval time.Duration) (int, error)
}

// OrderRepository описывает хранилище заказов.
type OrderRepository interface {
	// Create сохраняет заказ; AlreadyInUse, если номер занят.
	Create(ctx context.Context, order Order) error
	FindByOrderNumber(ctx context.Context, orderNumber string) (Order, error)
	ChangeStatus(ctx context.Context, orderNumber string, status OrderStatus) error
}

// TaskRepository: очередь задач.
type TaskRepository interface {
	Save(ctx context.Context, attrs TaskAttributes) (Task, error)
	// ClaimReady захватывает до limit задач Ready с runsAt <= now и переводит их в Running.
	ClaimReady(ctx context.Context, now time.Time, limit int) ([]Task, error)
	// Finish записывает итог попытки и новый статус задачи.
	Finish(ctx context.Context, id string, status TaskStatus, runsAt time.Time, result TaskExecutionResult) error
	// RetryStuck возвращает в Ready задачи, оставшиеся в Running дольше interval с момента
	// последней попытки. Задачи без оставшихся попыток переводятся в Aborted.
	RetryStuck(ctx context.Context, now time.Time, interval time.Duration) (int, error)
	FindByID(ctx context.Context, id string) (Task, error)
}

// OrganizationRepository: справочник продавцов.
type OrganizationRepository interface {
	FindByID(ctx context.Context, typeOf, id string) (Organization, error)
}

// OwnershipInfoRepository: владение членствами в программах лояльности.
type OwnershipInfoRepository interface {
	// SearchProgramMemberships возвращает членства ownedBy, действующие в момент at.
	SearchProgramMemberships(ctx context.Context, ownedBy string, at time.Time) ([]OwnershipInfo, error)
}
