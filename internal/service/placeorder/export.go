package placeorder

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
)

// cancelTasks снимают резервы просроченной или отменённой транзакции.
var cancelTasks = []domain.TaskName{
	domain.TaskCancelSeatReservation,
	domain.TaskCancelCreditCard,
	domain.TaskCancelPecorino,
	domain.TaskCancelPecorinoAward,
	domain.TaskCancelMvtk,
}

// ExportTasks захватывает одну транзакцию в статусе status и ставит её задачи в очередь.
// Возвращает nil, если экспортировать нечего.
func (s *Service) ExportTasks(ctx context.Context, status domain.TransactionStatus) (*domain.Transaction, error) {
	switch status {
	case domain.TransactionStatusConfirmed, domain.TransactionStatusExpired, domain.TransactionStatusCanceled:
	default:
		return nil, domain.NotImplemented(fmt.Sprintf("transaction status %q not implemented", status))
	}

	tx, err := s.transactions.StartExportTasks(ctx, domain.TransactionTypePlaceOrder, status)
	if err != nil || tx == nil {
		return nil, err
	}

	names := cancelTasks
	if status == domain.TransactionStatusConfirmed {
		names = confirmedTasks(*tx)
	}

	now := s.now()
	for _, name := range names {
		attrs := domain.NewTaskAttributes(name, domain.TaskData{TransactionID: tx.ID}, domain.DefaultTaskTries, now)
		if _, err := s.tasks.Save(ctx, attrs); err != nil {
			// Транзакция останется в Exporting и вернётся в очередь через ReexportTasks.
			return nil, fmt.Errorf("save task %s for transaction %s: %w", name, tx.ID, err)
		}
	}
	if err := s.transactions.SetTasksExportedByID(ctx, tx.ID); err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"status":         status,
		"tasks":          len(names),
	}).Info("place order tasks exported")
	s.ledger.RecordTransaction(ctx, kafka.EventTypeTasksExported, *tx, map[string]interface{}{
		"tasks": len(names),
	})
	return tx, nil
}

// confirmedTasks: задачи исполнения по шаблонам, которые есть у заказа.
func confirmedTasks(tx domain.Transaction) []domain.TaskName {
	names := make([]domain.TaskName, 0, 5)
	if tx.PotentialActions == nil || tx.PotentialActions.Order == nil || tx.PotentialActions.Order.PotentialActions == nil {
		return names
	}
	pa := tx.PotentialActions.Order.PotentialActions
	if pa.PayCreditCard != nil {
		names = append(names, domain.TaskPayCreditCard)
	}
	if len(pa.PayPecorino) > 0 {
		names = append(names, domain.TaskPayPecorino)
	}
	if pa.UseMvtk != nil {
		names = append(names, domain.TaskUseMvtk)
	}
	if len(pa.GivePecorinoAward) > 0 {
		names = append(names, domain.TaskGivePecorinoAward)
	}
	if pa.SendOrder != nil {
		names = append(names, domain.TaskSendOrder)
	}
	return names
}
