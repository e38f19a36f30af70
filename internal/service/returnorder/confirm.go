package returnorder

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/service/notification"
)

// Confirm подтверждает возврат: по каждой завершённой оплате заказа строится шаблон
// возврата средств с общим письмом, по каждому бонусу шаблон его отзыва.
func (s *Service) Confirm(ctx context.Context, agentID, transactionID string) (domain.Transaction, error) {
	tx, err := s.inProgress(ctx, agentID, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if tx.Object.Order == nil || tx.Object.Transaction == nil {
		return domain.Transaction{}, domain.NotFound("transaction.object")
	}
	order := *tx.Object.Order

	placeOrder, err := s.transactions.FindByID(ctx, domain.TransactionTypePlaceOrder, tx.Object.Transaction.ID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if placeOrder.Object.CustomerContact == nil {
		return domain.Transaction{}, domain.NotFound("transaction.object.customerContact")
	}
	payActions, err := s.payActions(ctx, order.OrderNumber)
	if err != nil {
		return domain.Transaction{}, err
	}
	if len(payActions) == 0 {
		return domain.Transaction{}, domain.NotFound("payActions")
	}

	seller, err := s.orgs.FindByID(ctx, tx.Seller.TypeOf, tx.Seller.ID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("load seller %s: %w", tx.Seller.ID, err)
	}
	email, err := s.renderer.Message(notification.KindRefundOrder, notification.OrderMail{
		Order:           order,
		Contact:         *placeOrder.Object.CustomerContact,
		Seller:          seller,
		CancellationFee: tx.Object.CancellationFee,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	template, err := returnTemplate(tx, placeOrder, payActions, email)
	if err != nil {
		return domain.Transaction{}, err
	}
	confirmed, err := s.transactions.Confirm(ctx, domain.ConfirmParams{
		TypeOf:           domain.TransactionTypeReturnOrder,
		ID:               tx.ID,
		Result:           domain.TransactionResult{Order: &order},
		PotentialActions: domain.TransactionPotentialActions{ReturnOrder: &template},
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.ledger.RecordTransaction(ctx, kafka.EventTypeTransactionConfirmed, confirmed, map[string]interface{}{
		"order_number":     order.OrderNumber,
		"cancellation_fee": tx.Object.CancellationFee,
	})
	return confirmed, nil
}

func returnTemplate(tx, placeOrder domain.Transaction, payActions []domain.Action, email domain.EmailMessage) (domain.ActionAttributes, error) {
	order := *tx.Object.Order
	orderRef := domain.OrderRef(order.OrderNumber)
	customer := placeOrder.Agent

	sendEmail := &domain.ActionAttributes{
		TypeOf:    domain.ActionTypeSend,
		Object:    email,
		Agent:     tx.Seller,
		Recipient: customer,
		Purpose:   orderRef,
	}
	refundActions := func() *domain.ActionPotentialActions {
		return &domain.ActionPotentialActions{SendEmailMessage: sendEmail}
	}

	pa := &domain.ActionPotentialActions{}
	for _, pay := range latestPerAuthorization(payActions) {
		switch pay.Object.(type) {
		case domain.CreditCardSettlement:
			if pa.RefundCreditCard != nil {
				return domain.ActionAttributes{}, domain.Argument("payActions", "Only one credit card payment per order is supported.")
			}
			pa.RefundCreditCard = &domain.ActionAttributes{
				TypeOf:           domain.ActionTypeRefund,
				Object:           domain.CreditCardRefund{PayAction: pay, CancellationFee: tx.Object.CancellationFee},
				Agent:            tx.Seller,
				Recipient:        customer,
				Purpose:          orderRef,
				PotentialActions: refundActions(),
			}
		case domain.PecorinoSettlement:
			pa.RefundPecorino = append(pa.RefundPecorino, domain.ActionAttributes{
				TypeOf:           domain.ActionTypeRefund,
				Object:           domain.PecorinoRefund{PayAction: pay},
				Agent:            tx.Seller,
				Recipient:        customer,
				Purpose:          orderRef,
				PotentialActions: refundActions(),
			})
		default:
			return domain.ActionAttributes{}, domain.NotImplemented(fmt.Sprintf("refund of %q not implemented", pay.Object.ObjectType()))
		}
	}

	for _, award := range domain.CompletedAuthorizeActions(placeOrder.Object.AuthorizeActions, domain.ObjectTypePecorinoAward) {
		pa.ReturnPecorinoAward = append(pa.ReturnPecorinoAward, domain.ActionAttributes{
			TypeOf:    domain.ActionTypeReturn,
			Object:    domain.PecorinoAwardReturn{AuthorizeAction: award},
			Agent:     customer,
			Recipient: tx.Seller,
			Purpose:   orderRef,
		})
	}

	return domain.ActionAttributes{
		TypeOf:           domain.ActionTypeReturn,
		Object:           domain.OrderObject{Order: order},
		Agent:            customer,
		Recipient:        tx.Seller,
		Purpose:          orderRef,
		PotentialActions: pa,
	}, nil
}

// latestPerAuthorization оставляет по одному PayAction на авторизацию: повторно исполненная
// оплата даёт несколько завершённых действий, возвращается только последнее по endDate.
// Порядок первых вхождений сохраняется.
func latestPerAuthorization(payActions []domain.Action) []domain.Action {
	index := make(map[string]int, len(payActions))
	out := make([]domain.Action, 0, len(payActions))
	for _, pay := range payActions {
		key, ok := authorizationKey(pay)
		if !ok {
			out = append(out, pay)
			continue
		}
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, pay)
			continue
		}
		if endedAfter(pay, out[i]) {
			out[i] = pay
		}
	}
	return out
}

func authorizationKey(pay domain.Action) (string, bool) {
	switch obj := pay.Object.(type) {
	case domain.CreditCardSettlement:
		return string(domain.ObjectTypeCreditCardSettlement) + ":" + obj.AuthorizeActionID, obj.AuthorizeActionID != ""
	case domain.PecorinoSettlement:
		return string(domain.ObjectTypePecorinoSettlement) + ":" + obj.AuthorizeActionID, obj.AuthorizeActionID != ""
	}
	return "", false
}

func endedAfter(a, b domain.Action) bool {
	switch {
	case a.EndDate == nil:
		return false
	case b.EndDate == nil:
		return true
	}
	return a.EndDate.After(*b.EndDate)
}

// ExecuteReturn исполняет ReturnAction из шаблона: заказ переходит в OrderReturned,
// затем в очередь ставятся задачи возврата средств и бонусов.
func (s *Service) ExecuteReturn(ctx context.Context, transactionID string) error {
	tx, err := s.transactions.FindByID(ctx, domain.TransactionTypeReturnOrder, transactionID)
	if err != nil {
		return err
	}
	if tx.PotentialActions == nil || tx.PotentialActions.ReturnOrder == nil {
		return domain.NotFound("transaction.potentialActions.returnOrder")
	}
	attrs := *tx.PotentialActions.ReturnOrder
	obj, ok := domain.ObjectAs[domain.OrderObject](attrs)
	if !ok {
		return domain.Argument("returnOrder.object", "Order is required.")
	}

	action, err := s.ledger.Start(ctx, attrs)
	if err != nil {
		return err
	}
	if err := s.orders.ChangeStatus(ctx, obj.Order.OrderNumber, domain.OrderStatusReturned); err != nil {
		return s.ledger.Abandon(ctx, action, err)
	}
	if _, err := s.ledger.Complete(ctx, action.TypeOf, action.ID, domain.EmptyResult{}); err != nil {
		return err
	}

	names := refundTasks(attrs.PotentialActions)
	var errs []error
	for _, name := range names {
		task := domain.NewTaskAttributes(name, domain.TaskData{TransactionID: tx.ID}, domain.DefaultTaskTries, s.now())
		if _, err := s.tasks.Save(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("save task %s: %w", name, err))
		}
	}
	s.logger.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"order_number":   obj.Order.OrderNumber,
		"tasks":          len(names),
	}).Info("order returned")
	return errors.Join(errs...)
}

func refundTasks(pa *domain.ActionPotentialActions) []domain.TaskName {
	var names []domain.TaskName
	if pa == nil {
		return names
	}
	if pa.RefundCreditCard != nil {
		names = append(names, domain.TaskRefundCreditCard)
	}
	if len(pa.RefundPecorino) > 0 {
		names = append(names, domain.TaskRefundPecorino)
	}
	if len(pa.ReturnPecorinoAward) > 0 {
		names = append(names, domain.TaskReturnPecorinoAward)
	}
	return names
}

// ExportTasks ставит в очередь задачу ReturnOrder для подтверждённого возврата.
// Просроченный возврат только отмечается экспортированным.
func (s *Service) ExportTasks(ctx context.Context, status domain.TransactionStatus) (*domain.Transaction, error) {
	switch status {
	case domain.TransactionStatusConfirmed, domain.TransactionStatusExpired:
	default:
		return nil, domain.NotImplemented(fmt.Sprintf("transaction status %q not implemented", status))
	}

	tx, err := s.transactions.StartExportTasks(ctx, domain.TransactionTypeReturnOrder, status)
	if err != nil || tx == nil {
		return nil, err
	}
	if status == domain.TransactionStatusConfirmed {
		task := domain.NewTaskAttributes(domain.TaskReturnOrder, domain.TaskData{TransactionID: tx.ID}, domain.ReturnOrderTries, s.now())
		if _, err := s.tasks.Save(ctx, task); err != nil {
			return nil, fmt.Errorf("save return order task for transaction %s: %w", tx.ID, err)
		}
	}
	if err := s.transactions.SetTasksExportedByID(ctx, tx.ID); err != nil {
		return nil, err
	}
	s.ledger.RecordTransaction(ctx, kafka.EventTypeTasksExported, *tx, nil)
	return tx, nil
}
