package placeorder

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/service/notification"
)

const (
	priceCurrency      = "JPY"
	creditCardName     = "Credit card"
	pecorinoName       = "Pecorino"
	mvtkDiscountName   = "Movie voucher"
	mvtkDiscountPrefix = "mvtk"
)

// authorizations: завершённые авторизации транзакции, разложенные по видам.
type authorizations struct {
	all             []domain.Action
	seat            domain.Action
	creditCard      *domain.Action
	mvtk            *domain.Action
	pecorinoPayment []domain.Action
	pecorinoAward   []domain.Action
}

// Confirm подтверждает транзакцию: строит заказ и дерево potentialActions.
// Запись статуса, результата и шаблонов атомарна; повторное подтверждение даёт AlreadyInUse.
func (s *Service) Confirm(ctx context.Context, agentID, transactionID string) (domain.Order, error) {
	tx, err := s.inProgress(ctx, agentID, transactionID)
	if err != nil {
		return domain.Order{}, err
	}
	if tx.Object.CustomerContact == nil {
		return domain.Order{}, domain.Argument("customerContact", "Customer contact required.")
	}

	actions, err := s.ledger.FindAuthorizeByTransactionID(ctx, tx.ID)
	if err != nil {
		return domain.Order{}, err
	}
	auth, err := partition(actions)
	if err != nil {
		return domain.Order{}, err
	}
	if err := validatePrices(tx, auth); err != nil {
		return domain.Order{}, err
	}

	seller, err := s.orgs.FindByID(ctx, tx.Seller.TypeOf, tx.Seller.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load seller %s: %w", tx.Seller.ID, err)
	}

	order := s.buildOrder(tx, auth)
	email, err := s.renderer.Message(notification.KindPlaceOrder, notification.OrderMail{
		Order:   order,
		Contact: *tx.Object.CustomerContact,
		Seller:  seller,
	})
	if err != nil {
		return domain.Order{}, err
	}

	confirmed, err := s.transactions.Confirm(ctx, domain.ConfirmParams{
		TypeOf:           domain.TransactionTypePlaceOrder,
		ID:               tx.ID,
		AuthorizeActions: auth.all,
		Result:           domain.TransactionResult{Order: &order},
		PotentialActions: potentialActions(tx, order, auth, email),
	})
	if err != nil {
		return domain.Order{}, err
	}

	// SendOrder создаёт заказ, если его нет, поэтому сбой здесь не отменяет подтверждение.
	if err := s.orders.Create(ctx, order); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"transaction_id": tx.ID,
			"order_number":   order.OrderNumber,
		}).Error("failed to create order")
	}

	s.ledger.RecordTransaction(ctx, kafka.EventTypeTransactionConfirmed, confirmed, map[string]interface{}{
		"order_number": order.OrderNumber,
		"price":        order.Price,
	})
	return order, nil
}

func partition(actions []domain.Action) (authorizations, error) {
	var auth authorizations
	auth.all = domain.CompletedAuthorizeActions(actions, "")

	var seats []domain.Action
	for i := range auth.all {
		a := auth.all[i]
		switch a.Object.ObjectType() {
		case domain.ObjectTypeSeatReservation:
			seats = append(seats, a)
		case domain.ObjectTypeCreditCard:
			if auth.creditCard != nil {
				return authorizations{}, domain.Argument("transactionId", "Only one credit card authorization is allowed.")
			}
			auth.creditCard = &a
		case domain.ObjectTypeMvtk:
			if auth.mvtk != nil {
				return authorizations{}, domain.Argument("transactionId", "Only one mvtk authorization is allowed.")
			}
			auth.mvtk = &a
		case domain.ObjectTypePecorinoPayment:
			auth.pecorinoPayment = append(auth.pecorinoPayment, a)
		case domain.ObjectTypePecorinoAward:
			auth.pecorinoAward = append(auth.pecorinoAward, a)
		}
	}
	if len(seats) != 1 {
		return authorizations{}, domain.Argument("transactionId", "Exactly one seat reservation authorization is required.")
	}
	auth.seat = seats[0]
	return auth, nil
}

// validatePrices сверяет цену, выставленную продавцом, с суммой авторизаций покупателя.
func validatePrices(tx domain.Transaction, auth authorizations) error {
	bySeller, byAgent := 0, 0
	for _, a := range auth.all {
		price, ok := domain.AuthorizedPrice(a)
		if !ok {
			continue
		}
		switch a.Agent.ID {
		case tx.Seller.ID:
			bySeller += price
		case tx.Agent.ID:
			byAgent += price
		}
	}
	if bySeller != byAgent {
		return domain.Argument("transactionId", fmt.Sprintf("Required authorizations not satisfied: seller price %d, agent price %d.", bySeller, byAgent))
	}
	return nil
}

func (s *Service) buildOrder(tx domain.Transaction, auth authorizations) domain.Order {
	seatObject, _ := domain.ObjectAs[domain.SeatReservationObject](auth.seat.ActionAttributes)
	seatResult, _ := domain.ResultAs[domain.SeatReservationResult](auth.seat)
	contact := tx.Object.CustomerContact
	now := s.now()

	order := domain.Order{
		OrderNumber:        fmt.Sprintf("%s%s-%s", now.Format("20060102"), seatObject.Event.TheaterCode, seatResult.Hold.HoldNumber),
		ConfirmationNumber: seatResult.Hold.HoldNumber,
		OrderStatus:        domain.OrderStatusProcessing,
		Price:              seatResult.Price,
		PriceCurrency:      priceCurrency,
		Seller:             tx.Seller,
		Customer: domain.Customer{
			TypeOf:    tx.Agent.TypeOf,
			ID:        tx.Agent.ID,
			Name:      strings.TrimSpace(contact.FamilyName + " " + contact.GivenName),
			Email:     contact.Email,
			Telephone: contact.Telephone,
		},
		Event:          seatObject.Event,
		AcceptedOffers: seatObject.Offers,
		PaymentMethods: []domain.OrderPaymentMethod{},
		OrderDate:      now,
	}

	if auth.creditCard != nil {
		pm := creditCardMethod(*auth.creditCard)
		order.PaymentMethods = append(order.PaymentMethods, domain.OrderPaymentMethod(pm))
	}
	for _, a := range auth.pecorinoPayment {
		pm := pecorinoMethod(a)
		order.PaymentMethods = append(order.PaymentMethods, domain.OrderPaymentMethod(pm))
	}
	if auth.mvtk != nil {
		obj, _ := domain.ObjectAs[domain.MvtkObject](auth.mvtk.ActionAttributes)
		result, _ := domain.ResultAs[domain.MvtkResult](*auth.mvtk)
		codes := make([]string, 0, len(obj.Tickets))
		for _, t := range obj.Tickets {
			codes = append(codes, t.KnyknrNo)
		}
		order.Discounts = append(order.Discounts, domain.OrderDiscount{
			Name:         mvtkDiscountName,
			Identifier:   mvtkDiscountPrefix + "-" + auth.mvtk.ID,
			DiscountCode: strings.Join(codes, ","),
			Amount:       result.Price,
		})
	}
	return order
}

func creditCardMethod(a domain.Action) domain.PaymentMethod {
	obj, _ := domain.ObjectAs[domain.CreditCardObject](a.ActionAttributes)
	result, _ := domain.ResultAs[domain.CreditCardAuthResult](a)
	return domain.PaymentMethod{
		TypeOf:          domain.PaymentMethodCreditCard,
		Name:            creditCardName,
		PaymentMethodID: obj.OrderID,
		TotalPaymentDue: result.Amount,
	}
}

func pecorinoMethod(a domain.Action) domain.PaymentMethod {
	result, _ := domain.ResultAs[domain.PecorinoPaymentResult](a)
	return domain.PaymentMethod{
		TypeOf:          domain.PaymentMethodPecorino,
		Name:            pecorinoName,
		PaymentMethodID: result.PecorinoTransaction.ID,
		TotalPaymentDue: result.Amount,
	}
}

// potentialActions строит шаблоны исполнения: по одному на каждую завершённую авторизацию.
// Каждый шаблон самодостаточен: исполнитель не перечитывает авторизацию.
func potentialActions(tx domain.Transaction, order domain.Order, auth authorizations, email domain.EmailMessage) domain.TransactionPotentialActions {
	orderRef := domain.OrderRef(order.OrderNumber)
	pa := &domain.ActionPotentialActions{}

	if auth.creditCard != nil {
		result, _ := domain.ResultAs[domain.CreditCardAuthResult](*auth.creditCard)
		pa.PayCreditCard = &domain.ActionAttributes{
			TypeOf: domain.ActionTypePay,
			Object: domain.CreditCardSettlement{
				PaymentMethod:     creditCardMethod(*auth.creditCard),
				AuthorizeActionID: auth.creditCard.ID,
				Authorization:     result,
			},
			Agent:     tx.Agent,
			Recipient: tx.Seller,
			Purpose:   orderRef,
		}
	}

	for _, a := range auth.pecorinoPayment {
		result, _ := domain.ResultAs[domain.PecorinoPaymentResult](a)
		pa.PayPecorino = append(pa.PayPecorino, domain.ActionAttributes{
			TypeOf: domain.ActionTypePay,
			Object: domain.PecorinoSettlement{
				PaymentMethod:       pecorinoMethod(a),
				AuthorizeActionID:   a.ID,
				PecorinoTransaction: result.PecorinoTransaction,
				PecorinoEndpoint:    result.PecorinoEndpoint,
			},
			Agent:     tx.Agent,
			Recipient: tx.Seller,
			Purpose:   orderRef,
		})
	}

	if auth.mvtk != nil {
		obj, _ := domain.ObjectAs[domain.MvtkObject](auth.mvtk.ActionAttributes)
		pa.UseMvtk = &domain.ActionAttributes{
			TypeOf:    domain.ActionTypeUse,
			Object:    domain.MvtkUse{AuthorizeActionID: auth.mvtk.ID, Tickets: obj.Tickets},
			Agent:     tx.Agent,
			Recipient: tx.Seller,
			Purpose:   orderRef,
		}
	}

	for _, a := range auth.pecorinoAward {
		obj, _ := domain.ObjectAs[domain.PecorinoAwardObject](a.ActionAttributes)
		result, _ := domain.ResultAs[domain.PecorinoAwardResult](a)
		pa.GivePecorinoAward = append(pa.GivePecorinoAward, domain.ActionAttributes{
			TypeOf: domain.ActionTypeGive,
			Object: domain.PecorinoAwardGrant{
				AuthorizeActionID:   a.ID,
				Amount:              result.Amount,
				ToAccountNumber:     obj.ToAccountNumber,
				PecorinoTransaction: result.PecorinoTransaction,
				PecorinoEndpoint:    result.PecorinoEndpoint,
			},
			Agent:     tx.Seller,
			Recipient: tx.Agent,
			Purpose:   orderRef,
		})
	}

	pa.SendOrder = &domain.ActionAttributes{
		TypeOf:    domain.ActionTypeSend,
		Object:    domain.OrderObject{Order: order},
		Agent:     tx.Seller,
		Recipient: tx.Agent,
		Purpose:   orderRef,
		PotentialActions: &domain.ActionPotentialActions{
			SendEmailMessage: &domain.ActionAttributes{
				TypeOf:    domain.ActionTypeSend,
				Object:    email,
				Agent:     tx.Seller,
				Recipient: tx.Agent,
				Purpose:   orderRef,
			},
		},
	}

	return domain.TransactionPotentialActions{
		Order: &domain.OrderActionTemplate{
			TypeOf:           domain.ActionTypeOrder,
			Object:           *orderRef,
			PotentialActions: pa,
		},
	}
}
