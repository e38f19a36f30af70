package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

const (
	refundExpiry = 5 * time.Minute
	refundNotes  = "refund"
	returnNotes  = "award return"
)

// PayPecorino подтверждает транзакции Pay или Transfer, открытые при авторизации.
// Авторизации, по которым уже есть завершённый PayAction, повторно не подтверждаются.
func (s *Service) PayPecorino(ctx context.Context, transactionID string) error {
	_, pa, err := s.orderActions(ctx, transactionID)
	if err != nil {
		return err
	}
	settled, err := s.settledPecorino(ctx, pa.PayPecorino)
	if err != nil {
		return err
	}
	pending := make([]domain.ActionAttributes, 0, len(pa.PayPecorino))
	for _, attrs := range pa.PayPecorino {
		settlement, _ := domain.ObjectAs[domain.PecorinoSettlement](attrs)
		if settled[settlement.AuthorizeActionID] {
			s.logger.WithFields(log.Fields{
				"authorize_action_id": settlement.AuthorizeActionID,
				"order_number":        attrs.OrderNumber(),
			}).Info("pecorino payment already settled")
			continue
		}
		pending = append(pending, attrs)
	}
	return s.each(ctx, "payPecorino", pending, func(ctx context.Context, action domain.Action) (domain.ActionResult, error) {
		settlement, ok := domain.ObjectAs[domain.PecorinoSettlement](action.ActionAttributes)
		if !ok {
			return nil, domain.Argument("payPecorino.object", "Pecorino settlement is required.")
		}
		ptx := settlement.PecorinoTransaction
		switch ptx.TypeOf {
		case domain.PecorinoPay, domain.PecorinoTransfer:
		default:
			return nil, domain.NotImplemented(fmt.Sprintf("pecorino transaction type %q not implemented", ptx.TypeOf))
		}
		if err := s.pecorino.Service(ptx.TypeOf, settlement.PecorinoEndpoint).Confirm(ctx, ptx.ID); err != nil {
			return nil, err
		}
		return domain.EmptyResult{}, nil
	})
}

// settledPecorino: id авторизаций баллами, по которым у заказа есть завершённый PayAction.
func (s *Service) settledPecorino(ctx context.Context, templates []domain.ActionAttributes) (map[string]bool, error) {
	settled := make(map[string]bool)
	if len(templates) == 0 {
		return settled, nil
	}
	orderNumber := templates[0].OrderNumber()
	actions, err := s.ledger.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("find actions of order %s: %w", orderNumber, err)
	}
	for _, a := range actions {
		if a.TypeOf != domain.ActionTypePay || a.ActionStatus != domain.ActionStatusCompleted {
			continue
		}
		if settlement, ok := domain.ObjectAs[domain.PecorinoSettlement](a.ActionAttributes); ok {
			settled[settlement.AuthorizeActionID] = true
		}
	}
	return settled, nil
}

// CancelPecorinoAuth отменяет транзакции оплаты баллами отменённой или просроченной транзакции.
func (s *Service) CancelPecorinoAuth(ctx context.Context, transactionID string) error {
	actions, err := s.authorizations(ctx, transactionID, domain.ObjectTypePecorinoPayment)
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range actions {
		result, ok := domain.ResultAs[domain.PecorinoPaymentResult](a)
		if !ok {
			errs = append(errs, fmt.Errorf("pecorino authorization %s: %w", a.ID, domain.NotFound("action.result")))
			continue
		}
		ptx := result.PecorinoTransaction
		if err := s.pecorino.Service(ptx.TypeOf, result.PecorinoEndpoint).Cancel(ctx, ptx.ID); err != nil {
			errs = append(errs, fmt.Errorf("cancel pecorino authorization %s: %w", a.ID, err))
		}
	}
	return errors.Join(errs...)
}

// RefundPecorino возвращает баллы по транзакции возврата.
// Оплата Pay возвращается депозитом на счёт покупателя, Transfer встречным переводом.
func (s *Service) RefundPecorino(ctx context.Context, transactionID string) error {
	_, pa, err := s.returnActions(ctx, transactionID)
	if err != nil {
		return err
	}

	var errs []error
	for _, attrs := range pa.RefundPecorino {
		_, err := s.run(ctx, "refundPecorino", attrs, s.refundPecorino)
		if err == nil {
			err = s.scheduleEmail(ctx, attrs)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) refundPecorino(ctx context.Context, action domain.Action) (domain.ActionResult, error) {
	refund, ok := domain.ObjectAs[domain.PecorinoRefund](action.ActionAttributes)
	if !ok {
		return nil, domain.Argument("refundPecorino.object", "Pecorino refund is required.")
	}
	settlement, ok := domain.ObjectAs[domain.PecorinoSettlement](refund.PayAction.ActionAttributes)
	if !ok {
		return nil, domain.Argument("refundPecorino.object.payAction", "Pecorino pay action is required.")
	}
	paid := settlement.PecorinoTransaction

	params := domain.PecorinoStartParams{
		Expires:   s.now().Add(refundExpiry),
		Agent:     paid.Recipient,
		Recipient: paid.Agent,
		Amount:    paid.Object.Amount,
		Notes:     refundNotes,
	}
	var kind domain.PecorinoTransactionType
	switch paid.TypeOf {
	case domain.PecorinoPay:
		kind = domain.PecorinoDeposit
		params.ToAccountNumber = paid.Object.FromAccountNumber
	case domain.PecorinoTransfer:
		kind = domain.PecorinoTransfer
		params.FromAccountNumber = paid.Object.ToAccountNumber
		params.ToAccountNumber = paid.Object.FromAccountNumber
	default:
		return nil, domain.NotImplemented(fmt.Sprintf("pecorino transaction type %q not implemented", paid.TypeOf))
	}

	svc := s.pecorino.Service(kind, settlement.PecorinoEndpoint)
	ptx, err := svc.Start(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := svc.Confirm(ctx, ptx.ID); err != nil {
		return nil, err
	}
	return domain.PecorinoRefundResult{PecorinoTransaction: ptx}, nil
}

// GivePecorinoAward подтверждает депозиты бонусов, открытые при авторизации.
func (s *Service) GivePecorinoAward(ctx context.Context, transactionID string) error {
	_, pa, err := s.orderActions(ctx, transactionID)
	if err != nil {
		return err
	}
	return s.each(ctx, "givePecorinoAward", pa.GivePecorinoAward, func(ctx context.Context, action domain.Action) (domain.ActionResult, error) {
		grant, ok := domain.ObjectAs[domain.PecorinoAwardGrant](action.ActionAttributes)
		if !ok {
			return nil, domain.Argument("givePecorinoAward.object", "Pecorino award grant is required.")
		}
		ptx := grant.PecorinoTransaction
		if err := s.pecorino.Service(domain.PecorinoDeposit, grant.PecorinoEndpoint).Confirm(ctx, ptx.ID); err != nil {
			return nil, err
		}
		return domain.EmptyResult{}, nil
	})
}

// CancelPecorinoAward отменяет депозиты бонусов отменённой или просроченной транзакции.
func (s *Service) CancelPecorinoAward(ctx context.Context, transactionID string) error {
	actions, err := s.authorizations(ctx, transactionID, domain.ObjectTypePecorinoAward)
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range actions {
		result, ok := domain.ResultAs[domain.PecorinoAwardResult](a)
		if !ok {
			errs = append(errs, fmt.Errorf("pecorino award %s: %w", a.ID, domain.NotFound("action.result")))
			continue
		}
		if err := s.pecorino.Service(domain.PecorinoDeposit, result.PecorinoEndpoint).Cancel(ctx, result.PecorinoTransaction.ID); err != nil {
			errs = append(errs, fmt.Errorf("cancel pecorino award %s: %w", a.ID, err))
		}
	}
	return errors.Join(errs...)
}

// ReturnPecorinoAward списывает начисленный бонус по транзакции возврата.
func (s *Service) ReturnPecorinoAward(ctx context.Context, transactionID string) error {
	_, pa, err := s.returnActions(ctx, transactionID)
	if err != nil {
		return err
	}
	return s.each(ctx, "returnPecorinoAward", pa.ReturnPecorinoAward, func(ctx context.Context, action domain.Action) (domain.ActionResult, error) {
		ret, ok := domain.ObjectAs[domain.PecorinoAwardReturn](action.ActionAttributes)
		if !ok {
			return nil, domain.Argument("returnPecorinoAward.object", "Pecorino award return is required.")
		}
		award, ok := domain.ResultAs[domain.PecorinoAwardResult](ret.AuthorizeAction)
		if !ok {
			return nil, domain.NotFound("returnPecorinoAward.object.authorizeAction.result")
		}
		deposit := award.PecorinoTransaction

		svc := s.pecorino.Service(domain.PecorinoWithdraw, award.PecorinoEndpoint)
		ptx, err := svc.Start(ctx, domain.PecorinoStartParams{
			Expires:           s.now().Add(refundExpiry),
			Agent:             deposit.Recipient,
			Recipient:         deposit.Agent,
			Amount:            deposit.Object.Amount,
			Notes:             returnNotes,
			AccountType:       domain.PecorinoAccountTypePoint,
			FromAccountNumber: deposit.Object.ToAccountNumber,
		})
		if err != nil {
			return nil, err
		}
		if err := svc.Confirm(ctx, ptx.ID); err != nil {
			return nil, err
		}
		return domain.EmptyResult{}, nil
	})
}
