// Package authorize реализует авторизации транзакции PlaceOrder:
// бронь мест, кредитную карту, оплату и начисление баллов Pecorino, ваучеры mvtk.
//
// Каждая авторизация проходит один путь: проверка владельца транзакции,
// Start действия, предварительный вызов внешней системы, затем Complete
// или GiveUp с исходной ошибкой. Отмена сначала отмечает действие в журнале,
// потом снимает внешний резерв по данным из result.
package authorize

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/service/ledger"
	"github.com/vladislavdragonenkov/ticketing/internal/tracing"
)

const msgNotYours = "A specified transaction is not yours."

// GMOSite: сайт GMO, через который проводятся сохранённые карты участников.
type GMOSite struct {
	ID   string
	Pass string
}

// Dependencies: внешние зависимости сервиса авторизаций.
type Dependencies struct {
	Ledger        *ledger.Ledger
	Transactions  domain.TransactionRepository
	Organizations domain.OrganizationRepository
	Ownership     domain.OwnershipInfoRepository
	Seats         domain.SeatReservationGateway
	CreditCards   domain.CreditCardGateway
	Pecorino      domain.PecorinoGateway
	GMOSite       GMOSite
	Logger        *log.Entry
	Now           func() time.Time
}

// Service: обработчики авторизаций.
type Service struct {
	ledger       *ledger.Ledger
	transactions domain.TransactionRepository
	orgs         domain.OrganizationRepository
	ownership    domain.OwnershipInfoRepository
	seats        domain.SeatReservationGateway
	creditCards  domain.CreditCardGateway
	pecorino     domain.PecorinoGateway
	site         GMOSite
	logger       *log.Entry
	now          func() time.Time
}

// NewService создаёт сервис авторизаций.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "authorize")
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		ledger:       deps.Ledger,
		transactions: deps.Transactions,
		orgs:         deps.Organizations,
		ownership:    deps.Ownership,
		seats:        deps.Seats,
		creditCards:  deps.CreditCards,
		pecorino:     deps.Pecorino,
		site:         deps.GMOSite,
		logger:       logger,
		now:          now,
	}
}

// inProgress возвращает транзакцию PlaceOrder, если она открыта и принадлежит агенту.
func (s *Service) inProgress(ctx context.Context, agentID, transactionID string) (domain.Transaction, error) {
	tx, err := s.transactions.FindInProgressByID(ctx, domain.TransactionTypePlaceOrder, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if tx.Agent.ID != agentID {
		return domain.Transaction{}, domain.Forbidden(msgNotYours)
	}
	return tx, nil
}

type provisionFunc func(ctx context.Context) (domain.ActionResult, error)

// authorize стартует действие, вызывает внешнюю систему и завершает действие.
// Ошибка внешнего вызова записывается в действие как есть, наружу уходит normalize(err).
func (s *Service) authorize(ctx context.Context, attrs domain.ActionAttributes, provision provisionFunc, normalize func(error) error) (action domain.Action, err error) {
	objectType := attrs.Object.ObjectType()
	ctx, span := tracing.Start(ctx, "authorize."+string(objectType),
		attribute.String("transaction.id", attrs.TransactionID()),
	)
	defer func() { tracing.End(span, err) }()

	action, err = s.ledger.Start(ctx, attrs)
	if err != nil {
		return domain.Action{}, fmt.Errorf("start %s authorization: %w", objectType, err)
	}

	result, err := provision(ctx)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"action_id":      action.ID,
			"object_type":    objectType,
			"transaction_id": attrs.TransactionID(),
		}).Warn("authorization failed")
		err = s.ledger.Abandon(ctx, action, err)
		if normalize != nil {
			err = normalize(err)
		}
		return domain.Action{}, err
	}

	return s.ledger.Complete(ctx, action.TypeOf, action.ID, result)
}

type releaseFunc func(ctx context.Context, action domain.Action) error

// cancel отзывает авторизацию в журнале и затем снимает внешний резерв.
// Запись в журнале идёт первой: повтор снятия резерва безопасен и выполняется отдельно.
func (s *Service) cancel(ctx context.Context, agentID, transactionID, actionID string, objectType domain.ObjectType, release releaseFunc) error {
	if _, err := s.inProgress(ctx, agentID, transactionID); err != nil {
		return err
	}
	action, err := s.ledger.CancelAuthorization(ctx, objectType, actionID, transactionID)
	if err != nil {
		return err
	}
	if release == nil {
		return nil
	}
	if action.Result == nil {
		return domain.NotFound("action.result")
	}
	if err := release(ctx, action); err != nil {
		return fmt.Errorf("release %s authorization %s: %w", objectType, actionID, err)
	}
	s.logger.WithFields(log.Fields{
		"action_id":      actionID,
		"object_type":    objectType,
		"transaction_id": transactionID,
	}).Info("authorization canceled")
	return nil
}

func (s *Service) seller(ctx context.Context, tx domain.Transaction) (domain.Organization, error) {
	org, err := s.orgs.FindByID(ctx, tx.Seller.TypeOf, tx.Seller.ID)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("load seller %s: %w", tx.Seller.ID, err)
	}
	return org, nil
}

func pecorinoParty(p domain.Participant) domain.PecorinoParty {
	return domain.PecorinoParty{TypeOf: p.TypeOf, ID: p.ID, Name: p.Name, URL: p.URL}
}
