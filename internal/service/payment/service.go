// Package payment исполняет шаблоны действий подтверждённых транзакций:
// списание и возврат по карте и баллам, использование ваучеров, бонусы,
// доставку заказа, а также снятие резервов просроченных транзакций.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/metrics"
	"github.com/vladislavdragonenkov/ticketing/internal/service/ledger"
	"github.com/vladislavdragonenkov/ticketing/internal/tracing"
)

// Dependencies: зависимости исполнителей.
type Dependencies struct {
	Ledger        *ledger.Ledger
	Transactions  domain.TransactionRepository
	Orders        domain.OrderRepository
	Organizations domain.OrganizationRepository
	Tasks         domain.TaskRepository
	CreditCards   domain.CreditCardGateway
	Pecorino      domain.PecorinoGateway
	Seats         domain.SeatReservationGateway
	Logger        *log.Entry
	Now           func() time.Time
}

// Service: исполнители шаблонов PlaceOrder и ReturnOrder.
// Каждая операция принимает id транзакции и сама находит свой шаблон.
type Service struct {
	ledger       *ledger.Ledger
	transactions domain.TransactionRepository
	orders       domain.OrderRepository
	orgs         domain.OrganizationRepository
	tasks        domain.TaskRepository
	cards        domain.CreditCardGateway
	pecorino     domain.PecorinoGateway
	seats        domain.SeatReservationGateway
	metrics      *metrics.TicketingMetrics
	logger       *log.Entry
	now          func() time.Time
}

// NewService создаёт исполнителей.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "payment")
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	var m *metrics.TicketingMetrics
	if deps.Ledger != nil {
		m = deps.Ledger.Metrics()
	}
	return &Service{
		ledger:       deps.Ledger,
		transactions: deps.Transactions,
		orders:       deps.Orders,
		orgs:         deps.Organizations,
		tasks:        deps.Tasks,
		cards:        deps.CreditCards,
		pecorino:     deps.Pecorino,
		seats:        deps.Seats,
		metrics:      m,
		logger:       logger,
		now:          now,
	}
}

type executeFunc func(ctx context.Context, action domain.Action) (domain.ActionResult, error)

// run: общий цикл исполнителя: Start из шаблона, внешний вызов, Complete или GiveUp.
// Ошибка внешнего вызова возвращается как есть: решение о повторе принимает очередь задач.
func (s *Service) run(ctx context.Context, executor string, attrs domain.ActionAttributes, execute executeFunc) (action domain.Action, err error) {
	started := time.Now()
	s.metrics.ExecutorStarted()
	ctx, span := tracing.Start(ctx, "executor."+executor,
		attribute.String("order.number", attrs.OrderNumber()),
	)
	defer func() {
		tracing.End(span, err)
		s.metrics.ExecutorFinished(executor, metrics.Outcome(err), time.Since(started))
	}()

	action, err = s.ledger.Start(ctx, attrs)
	if err != nil {
		return domain.Action{}, fmt.Errorf("start %s: %w", executor, err)
	}

	result, err := execute(ctx, action)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"action_id":    action.ID,
			"executor":     executor,
			"order_number": attrs.OrderNumber(),
		}).Warn("executor failed")
		return domain.Action{}, s.ledger.Abandon(ctx, action, err)
	}

	action, err = s.ledger.Complete(ctx, action.TypeOf, action.ID, result)
	if err != nil {
		return domain.Action{}, err
	}
	s.logger.WithFields(log.Fields{
		"action_id":    action.ID,
		"executor":     executor,
		"order_number": attrs.OrderNumber(),
	}).Info("executor completed")
	return action, nil
}

// each исполняет run для каждого шаблона; ошибки собираются, остальные шаблоны не прерываются.
func (s *Service) each(ctx context.Context, executor string, templates []domain.ActionAttributes, execute executeFunc) error {
	var errs []error
	for _, attrs := range templates {
		if _, err := s.run(ctx, executor, attrs, execute); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// orderActions возвращает шаблоны подтверждённой транзакции покупки.
func (s *Service) orderActions(ctx context.Context, transactionID string) (domain.Transaction, *domain.ActionPotentialActions, error) {
	tx, err := s.transactions.FindByID(ctx, domain.TransactionTypePlaceOrder, transactionID)
	if err != nil {
		return domain.Transaction{}, nil, err
	}
	if tx.PotentialActions == nil {
		return domain.Transaction{}, nil, domain.NotFound("transaction.potentialActions")
	}
	if tx.PotentialActions.Order == nil {
		return domain.Transaction{}, nil, domain.NotFound("transaction.potentialActions.order")
	}
	pa := tx.PotentialActions.Order.PotentialActions
	if pa == nil {
		pa = &domain.ActionPotentialActions{}
	}
	return tx, pa, nil
}

// returnActions возвращает шаблоны подтверждённой транзакции возврата.
func (s *Service) returnActions(ctx context.Context, transactionID string) (domain.Transaction, *domain.ActionPotentialActions, error) {
	tx, err := s.transactions.FindByID(ctx, domain.TransactionTypeReturnOrder, transactionID)
	if err != nil {
		return domain.Transaction{}, nil, err
	}
	if tx.PotentialActions == nil {
		return domain.Transaction{}, nil, domain.NotFound("transaction.potentialActions")
	}
	if tx.PotentialActions.ReturnOrder == nil {
		return domain.Transaction{}, nil, domain.NotFound("transaction.potentialActions.returnOrder")
	}
	pa := tx.PotentialActions.ReturnOrder.PotentialActions
	if pa == nil {
		pa = &domain.ActionPotentialActions{}
	}
	return tx, pa, nil
}

// authorizations: завершённые авторизации транзакции покупки заданного вида.
func (s *Service) authorizations(ctx context.Context, transactionID string, objectType domain.ObjectType) ([]domain.Action, error) {
	actions, err := s.ledger.FindAuthorizeByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return domain.CompletedAuthorizeActions(actions, objectType), nil
}

func (s *Service) shop(ctx context.Context, seller domain.Participant) (domain.GMOShopInfo, error) {
	org, err := s.orgs.FindByID(ctx, seller.TypeOf, seller.ID)
	if err != nil {
		return domain.GMOShopInfo{}, fmt.Errorf("load seller %s: %w", seller.ID, err)
	}
	if org.GMOInfo == nil {
		return domain.GMOShopInfo{}, domain.NotFound("seller.gmoInfo")
	}
	return *org.GMOInfo, nil
}

// scheduleEmail ставит в очередь задачу отправки письма из вложенного шаблона.
func (s *Service) scheduleEmail(ctx context.Context, attrs domain.ActionAttributes) error {
	if attrs.PotentialActions == nil || attrs.PotentialActions.SendEmailMessage == nil {
		return nil
	}
	task := domain.NewTaskAttributes(domain.TaskSendEmailMessage, domain.TaskData{
		ActionAttributes: attrs.PotentialActions.SendEmailMessage,
	}, domain.SendEmailMessageTries, s.now())
	if _, err := s.tasks.Save(ctx, task); err != nil {
		return fmt.Errorf("save email task: %w", err)
	}
	return nil
}
