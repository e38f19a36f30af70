package payment

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// UseMvtk фиксирует использование ваучеров. Внешнего резерва у ваучеров нет,
// действие только записывается в журнал.
func (s *Service) UseMvtk(ctx context.Context, transactionID string) error {
	_, pa, err := s.orderActions(ctx, transactionID)
	if err != nil {
		return err
	}
	if pa.UseMvtk == nil {
		return nil
	}
	_, err = s.run(ctx, "useMvtk", *pa.UseMvtk, func(context.Context, domain.Action) (domain.ActionResult, error) {
		return domain.EmptyResult{}, nil
	})
	return err
}

// CancelMvtk ничего не отменяет во внешних системах: ваучеры резервируются только в журнале.
func (s *Service) CancelMvtk(ctx context.Context, transactionID string) error {
	actions, err := s.authorizations(ctx, transactionID, domain.ObjectTypeMvtk)
	if err != nil {
		return err
	}
	if len(actions) > 0 {
		s.logger.WithFields(log.Fields{
			"transaction_id": transactionID,
			"authorizations": len(actions),
		}).Debug("mvtk authorizations need no external cancel")
	}
	return nil
}

// CancelSeatReservationAuth снимает временные брони мест отменённой или просроченной транзакции.
func (s *Service) CancelSeatReservationAuth(ctx context.Context, transactionID string) error {
	actions, err := s.authorizations(ctx, transactionID, domain.ObjectTypeSeatReservation)
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range actions {
		result, ok := domain.ResultAs[domain.SeatReservationResult](a)
		if !ok {
			errs = append(errs, fmt.Errorf("seat reservation %s: %w", a.ID, domain.NotFound("action.result")))
			continue
		}
		if err := s.seats.Release(ctx, result.HoldRequest, result.Hold.HoldNumber); err != nil {
			errs = append(errs, fmt.Errorf("release seat reservation %s: %w", a.ID, err))
			continue
		}
		s.logger.WithFields(log.Fields{
			"action_id":   a.ID,
			"hold_number": result.Hold.HoldNumber,
		}).Info("seat reservation released")
	}
	return errors.Join(errs...)
}

// SendOrder доставляет заказ покупателю: создаёт его при отсутствии,
// переводит в OrderDelivered и ставит в очередь письмо.
func (s *Service) SendOrder(ctx context.Context, transactionID string) error {
	_, pa, err := s.orderActions(ctx, transactionID)
	if err != nil {
		return err
	}
	if pa.SendOrder == nil {
		return domain.NotFound("transaction.potentialActions.order.potentialActions.sendOrder")
	}
	attrs := *pa.SendOrder
	obj, ok := domain.ObjectAs[domain.OrderObject](attrs)
	if !ok {
		return domain.Argument("sendOrder.object", "Order is required.")
	}

	_, err = s.run(ctx, "sendOrder", attrs, func(ctx context.Context, _ domain.Action) (domain.ActionResult, error) {
		if err := s.orders.Create(ctx, obj.Order); err != nil && !errors.Is(err, domain.ErrAlreadyInUse) {
			return nil, err
		}
		if err := s.orders.ChangeStatus(ctx, obj.Order.OrderNumber, domain.OrderStatusDelivered); err != nil {
			return nil, err
		}
		return domain.EmptyResult{}, nil
	})
	if err != nil {
		return err
	}
	return s.scheduleEmail(ctx, attrs)
}
