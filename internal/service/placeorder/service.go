// Package placeorder: транзакция покупки билетов: старт, контакты покупателя,
// отмена, подтверждение с построением заказа и экспорт задач исполнения.
package placeorder

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ticketing/internal/service/ledger"
	"github.com/vladislavdragonenkov/ticketing/internal/service/notification"
)

const msgNotYours = "A specified transaction is not yours."

// Dependencies: зависимости сервиса транзакций покупки.
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

// Service управляет транзакциями PlaceOrder.
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

// NewService создаёт сервис транзакций покупки.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "place-order")
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

// StartParams: параметры новой транзакции покупки.
type StartParams struct {
	Agent      domain.Participant
	SellerID   string
	ClientUser domain.ClientUser
	Expires    time.Time
}

// Start открывает транзакцию у продавца-кинотеатра.
func (s *Service) Start(ctx context.Context, p StartParams) (domain.Transaction, error) {
	now := s.now()
	if p.Agent.ID == "" {
		return domain.Transaction{}, domain.Argument("agent", "Agent ID is required.")
	}
	if !p.Expires.After(now) {
		return domain.Transaction{}, domain.Argument("expires", "Expiration must be in the future.")
	}
	seller, err := s.orgs.FindByID(ctx, domain.ParticipantMovieTheater, p.SellerID)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx, err := s.transactions.Start(ctx, domain.Transaction{
		TypeOf:    domain.TransactionTypePlaceOrder,
		Agent:     p.Agent,
		Seller:    seller.Participant(),
		Object:    domain.TransactionObject{ClientUser: p.ClientUser},
		Expires:   p.Expires,
		StartDate: now,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("start place order transaction: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"seller_id":      seller.ID,
		"expires":        tx.Expires,
	}).Info("place order transaction started")
	return tx, nil
}

// SetCustomerContact сохраняет контакты покупателя; телефон нормализуется.
func (s *Service) SetCustomerContact(ctx context.Context, agentID, transactionID string, contact domain.CustomerContact) (domain.CustomerContact, error) {
	if _, err := s.inProgress(ctx, agentID, transactionID); err != nil {
		return domain.CustomerContact{}, err
	}
	normalized, err := normalizeContact(contact)
	if err != nil {
		return domain.CustomerContact{}, err
	}
	if _, err := s.transactions.SetCustomerContact(ctx, domain.TransactionTypePlaceOrder, transactionID, normalized); err != nil {
		return domain.CustomerContact{}, err
	}
	return normalized, nil
}

// Cancel отменяет транзакцию по требованию покупателя.
// Резервы снимают задачи Cancel*, экспортируемые по статусу Canceled.
func (s *Service) Cancel(ctx context.Context, agentID, transactionID string) error {
	if _, err := s.inProgress(ctx, agentID, transactionID); err != nil {
		return err
	}
	tx, err := s.transactions.Cancel(ctx, domain.TransactionTypePlaceOrder, transactionID)
	if err != nil {
		return err
	}
	s.ledger.RecordTransaction(ctx, kafka.EventTypeTransactionCanceled, tx, nil)
	return nil
}

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

func normalizeContact(c domain.CustomerContact) (domain.CustomerContact, error) {
	c.FamilyName = strings.TrimSpace(c.FamilyName)
	c.GivenName = strings.TrimSpace(c.GivenName)
	c.Email = strings.TrimSpace(c.Email)
	if c.FamilyName == "" || c.GivenName == "" {
		return domain.CustomerContact{}, domain.Argument("contact", "Family name and given name are required.")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return domain.CustomerContact{}, domain.Argument("contact.email", "Invalid email address.")
	}

	var digits strings.Builder
	for i, r := range strings.TrimSpace(c.Telephone) {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
			digits.WriteRune(r)
		case r == '-' || r == ' ' || r == '(' || r == ')':
		default:
			return domain.CustomerContact{}, domain.Argument("contact.telephone", "Invalid phone number format.")
		}
	}
	c.Telephone = digits.String()
	if len(strings.TrimPrefix(c.Telephone, "+")) < 10 {
		return domain.CustomerContact{}, domain.Argument("contact.telephone", "Invalid phone number format.")
	}
	return c, nil
}
