// Package returnorder: транзакция возврата заказа: старт, подтверждение
// с построением шаблонов возврата средств, исполнение возврата и экспорт задач.
package returnorder

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/service/ledger"
	"github.com/vladislavdragonenkov/ticketing/internal/service/notification"
)

const msgNotYours = "A specified transaction is not yours."

// Dependencies: зависимости сервиса возвратов.
type Dependencies struct {
	Ledger        *ledger.Ledger
	Transactions  domain.TransactionRepository
	Orders        domain.OrderRepository
	Organizations domain.OrganizationRepository
	Tasks         domain.TaskRepository
	Renderer      *notification.Renderer
	Logger        *log.Entry
	Now           func() time.Time
}

// Service управляет транзакциями ReturnOrder.
type Service struct {
	ledger       *ledger.Ledger
	transactions domain.TransactionRepository
	orders       domain.OrderRepository
	orgs         domain.OrganizationRepository
	tasks        domain.TaskRepository
	renderer     *notification.Renderer
	logger       *log.Entry
	now          func() time.Time
}

// NewService создаёт сервис возвратов.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "return-order")
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		ledger:       deps.Ledger,
		transactions: deps.Transactions,
		orders:       deps.Orders,
		orgs:         deps.Organizations,
		tasks:        deps.Tasks,
		renderer:     deps.Renderer,
		logger:       logger,
		now:          now,
	}
}

// StartParams: параметры транзакции возврата.
type StartParams struct {
	Agent      domain.Participant
	ClientUser domain.ClientUser
	// TransactionID: подтверждённая транзакция покупки.
	TransactionID   string
	CancellationFee int
	Reason          domain.ReturnReason
	// Forcible отключает деловые проверки (начало сеанса), но не структурные.
	Forcible bool
	Expires  time.Time
}

// Start открывает возврат. На одну покупку допускается один неотменённый возврат.
func (s *Service) Start(ctx context.Context, p StartParams) (domain.Transaction, error) {
	now := s.now()
	if p.Agent.ID == "" {
		return domain.Transaction{}, domain.Argument("agent", "Agent ID is required.")
	}
	if !p.Expires.After(now) {
		return domain.Transaction{}, domain.Argument("expires", "Expiration must be in the future.")
	}
	if p.Reason == "" {
		p.Reason = domain.ReturnReasonCustomer
	}

	placeOrder, err := s.transactions.FindByID(ctx, domain.TransactionTypePlaceOrder, p.TransactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if placeOrder.Status != domain.TransactionStatusConfirmed {
		return domain.Transaction{}, domain.Argument("transactionId", "Status not Confirmed.")
	}
	if placeOrder.Result == nil || placeOrder.Result.Order == nil {
		return domain.Transaction{}, domain.NotFound("transaction.result")
	}

	order, err := s.orders.FindByOrderNumber(ctx, placeOrder.Result.Order.OrderNumber)
	if err != nil {
		return domain.Transaction{}, err
	}
	if order.OrderStatus != domain.OrderStatusDelivered {
		return domain.Transaction{}, domain.Argument("transactionId", "Order status not delivered.")
	}
	payActions, err := s.payActions(ctx, order.OrderNumber)
	if err != nil {
		return domain.Transaction{}, err
	}
	if len(payActions) == 0 {
		return domain.Transaction{}, domain.NotFound("payActions")
	}
	if p.CancellationFee < 0 || p.CancellationFee > order.Price {
		return domain.Transaction{}, domain.Argument("cancellationFee", "Cancellation fee must be between zero and the order price.")
	}
	if !p.Forcible {
		if err := validateEvent(order.Event, now); err != nil {
			return domain.Transaction{}, err
		}
	}

	tx, err := s.transactions.Start(ctx, domain.Transaction{
		TypeOf: domain.TransactionTypeReturnOrder,
		Agent:  p.Agent,
		Seller: placeOrder.Seller,
		Object: domain.TransactionObject{
			ClientUser:      p.ClientUser,
			Order:           &order,
			Transaction:     placeOrder.Ref(),
			CancellationFee: p.CancellationFee,
			Reason:          p.Reason,
		},
		Expires:   p.Expires,
		StartDate: now,
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	s.logger.WithFields(log.Fields{
		"transaction_id":   tx.ID,
		"place_order_id":   placeOrder.ID,
		"order_number":     order.OrderNumber,
		"cancellation_fee": p.CancellationFee,
		"forcible":         p.Forcible,
		"reason":           p.Reason,
		"pay_actions":      len(payActions),
	}).Info("return order transaction started")
	return tx, nil
}

// validateEvent не даёт вернуть билеты на уже начавшийся сеанс.
func validateEvent(event domain.ScreeningEvent, now time.Time) error {
	if event.StartDate == "" {
		return nil
	}
	start, err := time.Parse(time.RFC3339, event.StartDate)
	if err != nil {
		return nil
	}
	if !start.After(now) {
		return domain.Argument("event", "Event already started.")
	}
	return nil
}

// payActions: завершённые PayAction заказа.
func (s *Service) payActions(ctx context.Context, orderNumber string) ([]domain.Action, error) {
	actions, err := s.ledger.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("find actions of order %s: %w", orderNumber, err)
	}
	pays := make([]domain.Action, 0, len(actions))
	for _, a := range actions {
		if a.TypeOf == domain.ActionTypePay && a.ActionStatus == domain.ActionStatusCompleted {
			pays = append(pays, a)
		}
	}
	return pays, nil
}

func (s *Service) inProgress(ctx context.Context, agentID, transactionID string) (domain.Transaction, error) {
	tx, err := s.transactions.FindInProgressByID(ctx, domain.TransactionTypeReturnOrder, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if tx.Agent.ID != agentID {
		return domain.Transaction{}, domain.Forbidden(msgNotYours)
	}
	return tx, nil
}

// Cancel отменяет возврат, пока он не подтверждён.
func (s *Service) Cancel(ctx context.Context, agentID, transactionID string) error {
	if _, err := s.inProgress(ctx, agentID, transactionID); err != nil {
		return err
	}
	tx, err := s.transactions.Cancel(ctx, domain.TransactionTypeReturnOrder, transactionID)
	if err != nil {
		return err
	}
	s.ledger.RecordTransaction(ctx, kafka.EventTypeTransactionCanceled, tx, nil)
	return nil
}
