package task

import (
	"context"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// Executors: исполнители шаблонов транзакций покупки и возврата.
type Executors interface {
	PayCreditCard(ctx context.Context, transactionID string) error
	PayPecorino(ctx context.Context, transactionID string) error
	UseMvtk(ctx context.Context, transactionID string) error
	GivePecorinoAward(ctx context.Context, transactionID string) error
	SendOrder(ctx context.Context, transactionID string) error
	CancelSeatReservationAuth(ctx context.Context, transactionID string) error
	CancelCreditCardAuth(ctx context.Context, transactionID string) error
	CancelPecorinoAuth(ctx context.Context, transactionID string) error
	CancelPecorinoAward(ctx context.Context, transactionID string) error
	CancelMvtk(ctx context.Context, transactionID string) error
	RefundCreditCard(ctx context.Context, transactionID string) error
	RefundPecorino(ctx context.Context, transactionID string) error
	ReturnPecorinoAward(ctx context.Context, transactionID string) error
}

// Returner исполняет ReturnAction транзакции возврата.
type Returner interface {
	ExecuteReturn(ctx context.Context, transactionID string) error
}

// EmailSender отправляет письмо из шаблона SendAction.
type EmailSender interface {
	SendEmailMessage(ctx context.Context, attrs domain.ActionAttributes) error
}

// NewHandlers связывает имена задач с исполнителями.
func NewHandlers(executors Executors, returner Returner, sender EmailSender) Handlers {
	byTransaction := func(fn func(context.Context, string) error) Handler {
		return func(ctx context.Context, task domain.Task) error {
			if task.Data.TransactionID == "" {
				return domain.Argument("data.transactionId", "Transaction ID is required.")
			}
			return fn(ctx, task.Data.TransactionID)
		}
	}

	return Handlers{
		domain.TaskPayCreditCard:         byTransaction(executors.PayCreditCard),
		domain.TaskPayPecorino:           byTransaction(executors.PayPecorino),
		domain.TaskUseMvtk:               byTransaction(executors.UseMvtk),
		domain.TaskGivePecorinoAward:     byTransaction(executors.GivePecorinoAward),
		domain.TaskSendOrder:             byTransaction(executors.SendOrder),
		domain.TaskCancelSeatReservation: byTransaction(executors.CancelSeatReservationAuth),
		domain.TaskCancelCreditCard:      byTransaction(executors.CancelCreditCardAuth),
		domain.TaskCancelPecorino:        byTransaction(executors.CancelPecorinoAuth),
		domain.TaskCancelPecorinoAward:   byTransaction(executors.CancelPecorinoAward),
		domain.TaskCancelMvtk:            byTransaction(executors.CancelMvtk),
		domain.TaskRefundCreditCard:      byTransaction(executors.RefundCreditCard),
		domain.TaskRefundPecorino:        byTransaction(executors.RefundPecorino),
		domain.TaskReturnPecorinoAward:   byTransaction(executors.ReturnPecorinoAward),
		domain.TaskReturnOrder:           byTransaction(returner.ExecuteReturn),
		domain.TaskSendEmailMessage: func(ctx context.Context, task domain.Task) error {
			if task.Data.ActionAttributes == nil {
				return domain.Argument("data.actionAttributes", "Email action attributes are required.")
			}
			return sender.SendEmailMessage(ctx, *task.Data.ActionAttributes)
		},
	}
}
