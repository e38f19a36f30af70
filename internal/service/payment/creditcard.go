package payment

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// PayCreditCard подтверждает продажу по авторизации карты.
// Если шлюз уже показывает Sales, повторная продажа не выполняется.
func (s *Service) PayCreditCard(ctx context.Context, transactionID string) error {
	tx, pa, err := s.orderActions(ctx, transactionID)
	if err != nil {
		return err
	}
	if pa.PayCreditCard == nil {
		return nil
	}
	attrs := *pa.PayCreditCard
	settlement, ok := domain.ObjectAs[domain.CreditCardSettlement](attrs)
	if !ok {
		return domain.Argument("payCreditCard.object", "Credit card settlement is required.")
	}
	shop, err := s.shop(ctx, tx.Seller)
	if err != nil {
		return err
	}

	_, err = s.run(ctx, "payCreditCard", attrs, func(ctx context.Context, _ domain.Action) (domain.ActionResult, error) {
		auth := settlement.Authorization
		trade, err := s.cards.SearchTrade(ctx, domain.SearchTradeArgs{
			ShopID:   shop.ShopID,
			ShopPass: shop.ShopPass,
			OrderID:  auth.EntryTranArgs.OrderID,
		})
		if err != nil {
			return nil, err
		}
		if trade.Status == domain.TradeStatusSales {
			s.logger.WithField("order_id", trade.OrderID).Info("trade already captured")
			return domain.CreditCardSettlementResult{CreditCardSales: domain.AlterTranResultFromTrade(trade)}, nil
		}

		sales, err := s.cards.AlterTran(ctx, domain.AlterTranArgs{
			ShopID:     shop.ShopID,
			ShopPass:   shop.ShopPass,
			AccessID:   auth.EntryTran.AccessID,
			AccessPass: auth.EntryTran.AccessPass,
			JobCd:      domain.JobCdSales,
			Amount:     auth.Amount,
		})
		if err != nil {
			return nil, err
		}
		return domain.CreditCardSettlementResult{CreditCardSales: sales}, nil
	})
	return err
}

// CancelCreditCardAuth аннулирует авторизации карты отменённой или просроченной транзакции.
// Уже аннулированные сделки пропускаются.
func (s *Service) CancelCreditCardAuth(ctx context.Context, transactionID string) error {
	tx, err := s.transactions.FindByID(ctx, domain.TransactionTypePlaceOrder, transactionID)
	if err != nil {
		return err
	}
	actions, err := s.authorizations(ctx, transactionID, domain.ObjectTypeCreditCard)
	if err != nil || len(actions) == 0 {
		return err
	}
	shop, err := s.shop(ctx, tx.Seller)
	if err != nil {
		return err
	}

	var errs []error
	for _, a := range actions {
		if err := s.voidAuthorization(ctx, shop, a); err != nil {
			errs = append(errs, fmt.Errorf("void credit card authorization %s: %w", a.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) voidAuthorization(ctx context.Context, shop domain.GMOShopInfo, a domain.Action) error {
	result, ok := domain.ResultAs[domain.CreditCardAuthResult](a)
	if !ok {
		return domain.NotFound("action.result")
	}
	trade, err := s.cards.SearchTrade(ctx, domain.SearchTradeArgs{
		ShopID:   shop.ShopID,
		ShopPass: shop.ShopPass,
		OrderID:  result.EntryTranArgs.OrderID,
	})
	if err != nil {
		return err
	}
	if trade.Status == domain.TradeStatusVoid {
		return nil
	}
	_, err = s.cards.AlterTran(ctx, domain.AlterTranArgs{
		ShopID:     shop.ShopID,
		ShopPass:   shop.ShopPass,
		AccessID:   result.EntryTran.AccessID,
		AccessPass: result.EntryTran.AccessPass,
		JobCd:      domain.JobCdVoid,
	})
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{
		"action_id": a.ID,
		"order_id":  result.EntryTranArgs.OrderID,
	}).Info("credit card authorization voided")
	return nil
}

// RefundCreditCard возвращает оплату картой по транзакции возврата.
// Уже аннулированная сделка не трогается. Без сбора сделка аннулируется,
// со сбором сумма сделки меняется на размер сбора.
func (s *Service) RefundCreditCard(ctx context.Context, transactionID string) error {
	tx, pa, err := s.returnActions(ctx, transactionID)
	if err != nil {
		return err
	}
	if pa.RefundCreditCard == nil {
		return nil
	}
	attrs := *pa.RefundCreditCard
	refund, ok := domain.ObjectAs[domain.CreditCardRefund](attrs)
	if !ok {
		return domain.Argument("refundCreditCard.object", "Credit card refund is required.")
	}
	settlement, ok := domain.ObjectAs[domain.CreditCardSettlement](refund.PayAction.ActionAttributes)
	if !ok {
		return domain.Argument("refundCreditCard.object.payAction", "Credit card pay action is required.")
	}
	shop, err := s.shop(ctx, tx.Seller)
	if err != nil {
		return err
	}

	_, err = s.run(ctx, "refundCreditCard", attrs, func(ctx context.Context, _ domain.Action) (domain.ActionResult, error) {
		auth := settlement.Authorization
		trade, err := s.cards.SearchTrade(ctx, domain.SearchTradeArgs{
			ShopID:   shop.ShopID,
			ShopPass: shop.ShopPass,
			OrderID:  auth.EntryTranArgs.OrderID,
		})
		if err != nil {
			return nil, err
		}
		if trade.Status == domain.TradeStatusVoid {
			s.logger.WithField("order_id", trade.OrderID).Info("trade already voided")
			return domain.CreditCardRefundResult{AlterTranResult: domain.AlterTranResultFromTrade(trade)}, nil
		}

		var altered domain.AlterTranResult
		if refund.CancellationFee > 0 {
			altered, err = s.cards.ChangeTran(ctx, domain.ChangeTranArgs{
				ShopID:     shop.ShopID,
				ShopPass:   shop.ShopPass,
				AccessID:   auth.EntryTran.AccessID,
				AccessPass: auth.EntryTran.AccessPass,
				JobCd:      domain.JobCdCapture,
				Amount:     refund.CancellationFee,
			})
		} else {
			altered, err = s.cards.AlterTran(ctx, domain.AlterTranArgs{
				ShopID:     shop.ShopID,
				ShopPass:   shop.ShopPass,
				AccessID:   auth.EntryTran.AccessID,
				AccessPass: auth.EntryTran.AccessPass,
				JobCd:      domain.JobCdVoid,
			})
		}
		if err != nil {
			return nil, err
		}
		return domain.CreditCardRefundResult{AlterTranResult: altered}, nil
	})
	if err != nil {
		return err
	}
	return s.scheduleEmail(ctx, attrs)
}
