// Package testkit собирает in-memory окружение для тестов сервисов:
// репозитории, симуляторы шлюзов, журнал и сервисы транзакции покупки.
package testkit

import (
	"context"
	"fmt"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway/coa"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway/gmo"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway/pecorino"
	"github.com/vladislavdragonenkov/ticketing/internal/service/authorize"
	"github.com/vladislavdragonenkov/ticketing/internal/service/ledger"
	"github.com/vladislavdragonenkov/ticketing/internal/service/notification"
	"github.com/vladislavdragonenkov/ticketing/internal/service/payment"
	"github.com/vladislavdragonenkov/ticketing/internal/service/placeorder"
	"github.com/vladislavdragonenkov/ticketing/internal/service/returnorder"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/memory"
)

const (
	AgentID      = "user-1"
	SellerID     = "seller-1"
	MemberNumber = "member-1"
	// SeatPrice: цена двух мест из Offers.
	SeatPrice = 3600
)

// Now: фиксированное время всех тестовых сценариев.
var Now = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type actionStore interface {
	domain.ActionRepository
	All() []domain.Action
}

type taskStore interface {
	domain.TaskRepository
	All() []domain.Task
	ByName(name domain.TaskName) []domain.Task
}

type outboxStore interface {
	domain.OutboxRepository
	AllPending() []domain.OutboxMessage
}

type ownershipStore interface {
	domain.OwnershipInfoRepository
	Add(info domain.OwnershipInfo)
}

// Env: окружение одного теста.
type Env struct {
	Actions      actionStore
	Transactions domain.TransactionRepository
	Orders       domain.OrderRepository
	Tasks        taskStore
	Outbox       outboxStore
	Orgs         domain.OrganizationRepository
	Ownership    ownershipStore

	Seats    *coa.Simulator
	GMO      *gmo.Simulator
	Pecorino *pecorino.Simulator

	Ledger      *ledger.Ledger
	Renderer    *notification.Renderer
	Authorize   *authorize.Service
	PlaceOrder  *placeorder.Service
	ReturnOrder *returnorder.Service
	Payment     *payment.Service
	Logger      *log.Entry

	reservations int
}

// New создаёт окружение с одним кинотеатром-продавцом.
func New(t *testing.T) *Env {
	t.Helper()

	base := log.New()
	base.SetLevel(log.WarnLevel)
	logger := base.WithField("component", "test")

	renderer, err := notification.NewRenderer()
	require.NoError(t, err)

	e := &Env{
		Actions:      memory.NewActionRepository(),
		Transactions: memory.NewTransactionRepository(),
		Orders:       memory.NewOrderRepository(),
		Tasks:        memory.NewTaskRepository(),
		Outbox:       memory.NewOutboxRepository(),
		Orgs:         memory.NewOrganizationRepository(Seller()),
		Ownership:    memory.NewOwnershipInfoRepository(),
		Seats:        coa.NewSimulator(),
		GMO:          gmo.NewSimulator(),
		Pecorino:     pecorino.NewSimulator(),
		Renderer:     renderer,
		Logger:       logger,
	}
	e.Ledger = ledger.New(e.Actions, ledger.WithOutbox(e.Outbox), ledger.WithLogger(logger))
	e.Authorize = authorize.NewService(authorize.Dependencies{
		Ledger:        e.Ledger,
		Transactions:  e.Transactions,
		Organizations: e.Orgs,
		Ownership:     e.Ownership,
		Seats:         e.Seats,
		CreditCards:   e.GMO,
		Pecorino:      e.Pecorino,
		Logger:        logger,
		Now:           Clock,
	})
	e.PlaceOrder = placeorder.NewService(placeorder.Dependencies{
		Ledger:        e.Ledger,
		Transactions:  e.Transactions,
		Orders:        e.Orders,
		Organizations: e.Orgs,
		Tasks:         e.Tasks,
		Renderer:      renderer,
		Logger:        logger,
		Now:           Clock,
	})
	e.ReturnOrder = returnorder.NewService(returnorder.Dependencies{
		Ledger:        e.Ledger,
		Transactions:  e.Transactions,
		Orders:        e.Orders,
		Organizations: e.Orgs,
		Tasks:         e.Tasks,
		Renderer:      renderer,
		Logger:        logger,
		Now:           Clock,
	})
	e.Payment = payment.NewService(payment.Dependencies{
		Ledger:        e.Ledger,
		Transactions:  e.Transactions,
		Orders:        e.Orders,
		Organizations: e.Orgs,
		Tasks:         e.Tasks,
		CreditCards:   e.GMO,
		Pecorino:      e.Pecorino,
		Seats:         e.Seats,
		Logger:        logger,
		Now:           Clock,
	})
	return e
}

// Clock возвращает Now.
func Clock() time.Time { return Now }

// Seller: продавец со шлюзом GMO.
func Seller() domain.Organization {
	return domain.Organization{
		ID:        SellerID,
		TypeOf:    domain.ParticipantMovieTheater,
		Name:      "Cinema",
		Telephone: "0312345678",
		Email:     "noreply@cinema.example",
		GMOInfo:   &domain.GMOShopInfo{ShopID: "shop-1", ShopPass: "pass-1"},
	}
}

// Member: покупатель с картой программы лояльности.
func Member() domain.Participant {
	return domain.Participant{
		TypeOf:   domain.ParticipantPerson,
		ID:       AgentID,
		MemberOf: &domain.MembershipCard{MembershipNumber: MemberNumber},
	}
}

// Event: тестовый сеанс.
func Event() domain.ScreeningEvent {
	return domain.ScreeningEvent{Identifier: "ev-1", TheaterCode: "118", Name: "Feature", StartDate: "2026-10-14T21:00:00+09:00"}
}

// Offers: два места по 1800.
func Offers() []domain.SeatOffer {
	return []domain.SeatOffer{
		{SeatSection: "A", SeatNumber: "1", TicketCode: "10", TicketName: "Adult", Price: 1800},
		{SeatSection: "A", SeatNumber: "2", TicketCode: "10", TicketName: "Adult", Price: 1800},
	}
}

// Contact: контакты покупателя.
func Contact() domain.CustomerContact {
	return domain.CustomerContact{FamilyName: "Yamada", GivenName: "Taro", Email: "taro@example.com", Telephone: "090-1234-5678"}
}

// Start открывает транзакцию покупки и сохраняет контакты.
func (e *Env) Start(t *testing.T) domain.Transaction {
	t.Helper()
	ctx := context.Background()
	tx, err := e.PlaceOrder.Start(ctx, placeorder.StartParams{
		Agent:      Member(),
		SellerID:   SellerID,
		ClientUser: domain.ClientUser{ClientID: "client-1"},
		Expires:    Now.Add(15 * time.Minute),
	})
	require.NoError(t, err)
	_, err = e.PlaceOrder.SetCustomerContact(ctx, AgentID, tx.ID, Contact())
	require.NoError(t, err)
	return tx
}

// ReserveSeats авторизует Offers. Каждая следующая бронь окружения идёт на отдельный сеанс,
// чтобы места не пересекались.
func (e *Env) ReserveSeats(t *testing.T, txID string) domain.Action {
	t.Helper()
	e.reservations++
	event := Event()
	if e.reservations > 1 {
		event.Identifier = fmt.Sprintf("ev-%d", e.reservations)
	}
	action, err := e.Authorize.CreateSeatReservation(context.Background(), authorize.SeatReservationParams{
		AgentID:       AgentID,
		TransactionID: txID,
		Event:         event,
		Offers:        Offers(),
	})
	require.NoError(t, err)
	return action
}

// AuthorizeCreditCard авторизует оплату картой на amount.
func (e *Env) AuthorizeCreditCard(t *testing.T, txID, orderID string, amount int) domain.Action {
	t.Helper()
	action, err := e.Authorize.CreateCreditCard(context.Background(), authorize.CreditCardParams{
		AgentID:       AgentID,
		TransactionID: txID,
		OrderID:       orderID,
		Amount:        amount,
		CreditCard:    domain.CreditCardInput{Token: "tok-1"},
	})
	require.NoError(t, err)
	return action
}

// AuthorizePecorino авторизует оплату баллами со счёта account.
func (e *Env) AuthorizePecorino(t *testing.T, txID, account string, amount int) domain.Action {
	t.Helper()
	action, err := e.Authorize.CreatePecorinoPayment(context.Background(), authorize.PecorinoPaymentParams{
		AgentID:           AgentID,
		TransactionID:     txID,
		Amount:            amount,
		FromAccountNumber: account,
	})
	require.NoError(t, err)
	return action
}

// AuthorizeAward авторизует начисление бонуса; у покупателя появляется подходящее членство.
func (e *Env) AuthorizeAward(t *testing.T, txID, account string, amount int) domain.Action {
	t.Helper()
	e.Ownership.Add(domain.OwnershipInfo{
		ID:           "own-1",
		OwnedBy:      MemberNumber,
		ProgramName:  "cinema-points",
		Awards:       []string{domain.AwardPecorinoPayment},
		OwnedFrom:    Now.Add(-24 * time.Hour),
		OwnedThrough: Now.Add(365 * 24 * time.Hour),
	})
	action, err := e.Authorize.CreatePecorinoAward(context.Background(), authorize.PecorinoAwardParams{
		AgentID:         AgentID,
		TransactionID:   txID,
		Amount:          amount,
		ToAccountNumber: account,
	})
	require.NoError(t, err)
	return action
}

// Confirm подтверждает транзакцию и возвращает её из хранилища.
func (e *Env) Confirm(t *testing.T, txID string) domain.Transaction {
	t.Helper()
	ctx := context.Background()
	_, err := e.PlaceOrder.Confirm(ctx, AgentID, txID)
	require.NoError(t, err)
	tx, err := e.Transactions.FindByID(ctx, domain.TransactionTypePlaceOrder, txID)
	require.NoError(t, err)
	return tx
}

// ConfirmedByCard: подтверждённая транзакция с местами и оплатой картой.
func (e *Env) ConfirmedByCard(t *testing.T) domain.Transaction {
	t.Helper()
	tx := e.Start(t)
	e.ReserveSeats(t, tx.ID)
	e.AuthorizeCreditCard(t, tx.ID, "order-"+tx.ID[:8], SeatPrice)
	return e.Confirm(t, tx.ID)
}

// Delivered: транзакция, оплаченная картой, с доставленным заказом.
func (e *Env) Delivered(t *testing.T) domain.Transaction {
	t.Helper()
	ctx := context.Background()
	tx := e.ConfirmedByCard(t)
	require.NoError(t, e.Payment.PayCreditCard(ctx, tx.ID))
	require.NoError(t, e.Payment.SendOrder(ctx, tx.ID))
	return tx
}

// StartReturn открывает возврат заказа транзакции placeOrderID.
func (e *Env) StartReturn(t *testing.T, placeOrderID string, fee int) domain.Transaction {
	t.Helper()
	tx, err := e.ReturnOrder.Start(context.Background(), returnorder.StartParams{
		Agent:           Member(),
		ClientUser:      domain.ClientUser{ClientID: "client-1"},
		TransactionID:   placeOrderID,
		CancellationFee: fee,
		Expires:         Now.Add(15 * time.Minute),
	})
	require.NoError(t, err)
	return tx
}
