package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/ticketing/internal/app"
	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/service/authorize"
	"github.com/vladislavdragonenkov/ticketing/internal/service/placeorder"
	"github.com/vladislavdragonenkov/ticketing/internal/service/returnorder"
)

// OrderLifecycleTestSuite прогоняет покупку и возврат через собранное приложение:
// сервисы, sweeper, task worker и служебный HTTP API на in-memory хранилище и симуляторах.
type OrderLifecycleTestSuite struct {
	suite.Suite
	app   *app.App
	agent domain.Participant
}

func (s *OrderLifecycleTestSuite) SetupSuite() {
	log.SetLevel(log.WarnLevel)
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	cfg := app.DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.Sellers = []app.SellerConfig{{
		ID:       "seller-1",
		Name:     "Cinema",
		Email:    "noreply@cinema.example",
		ShopID:   "shop-1",
		ShopPass: "pass-1",
	}}

	a, err := app.New(context.Background(), cfg)
	s.Require().NoError(err)
	s.app = a
	s.agent = domain.Participant{TypeOf: domain.ParticipantPerson, ID: "user-1"}
}

func (s *OrderLifecycleTestSuite) TearDownTest() {
	s.app.Close()
}

// drain выполняет фоновые шаги, пока очередь задач не опустеет.
func (s *OrderLifecycleTestSuite) drain(ctx context.Context) {
	s.Require().NoError(s.app.Sweeper.SweepOnce(ctx))
	for i := 0; i < 5; i++ {
		if s.app.Tasks.ProcessOnce(ctx) == 0 {
			return
		}
	}
}

func (s *OrderLifecycleTestSuite) placeOrder(ctx context.Context) (domain.Transaction, domain.Order) {
	tx, err := s.app.Services.PlaceOrder.Start(ctx, placeorder.StartParams{
		Agent:      s.agent,
		SellerID:   "seller-1",
		ClientUser: domain.ClientUser{ClientID: "client-1"},
		Expires:    time.Now().Add(15 * time.Minute),
	})
	s.Require().NoError(err)

	_, err = s.app.Services.PlaceOrder.SetCustomerContact(ctx, s.agent.ID, tx.ID, domain.CustomerContact{
		FamilyName: "Yamada",
		GivenName:  "Taro",
		Email:      "taro@example.com",
		Telephone:  "090-1234-5678",
	})
	s.Require().NoError(err)

	_, err = s.app.Services.Authorize.CreateSeatReservation(ctx, authorize.SeatReservationParams{
		AgentID:       s.agent.ID,
		TransactionID: tx.ID,
		Event:         domain.ScreeningEvent{Identifier: "ev-1", TheaterCode: "118", Name: "Feature", StartDate: "2099-01-01T10:00:00+09:00"},
		Offers: []domain.SeatOffer{
			{SeatSection: "A", SeatNumber: "1", TicketCode: "10", TicketName: "Adult", Price: 1800},
			{SeatSection: "A", SeatNumber: "2", TicketCode: "10", TicketName: "Adult", Price: 1800},
		},
	})
	s.Require().NoError(err)

	_, err = s.app.Services.Authorize.CreateCreditCard(ctx, authorize.CreditCardParams{
		AgentID:       s.agent.ID,
		TransactionID: tx.ID,
		OrderID:       "order-" + tx.ID,
		Amount:        3600,
		CreditCard:    domain.CreditCardInput{Token: "tok-1"},
	})
	s.Require().NoError(err)

	order, err := s.app.Services.PlaceOrder.Confirm(ctx, s.agent.ID, tx.ID)
	s.Require().NoError(err)
	s.Equal(3600, order.Price)
	s.Equal(domain.OrderStatusProcessing, order.OrderStatus)
	return tx, order
}

func (s *OrderLifecycleTestSuite) orderActions(orderNumber string) map[domain.ActionType]domain.Action {
	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orders/"+orderNumber+"/actions", nil))
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Actions []domain.Action `json:"actions"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	byType := make(map[domain.ActionType]domain.Action, len(body.Actions))
	for _, a := range body.Actions {
		byType[a.TypeOf] = a
	}
	return byType
}

func (s *OrderLifecycleTestSuite) TestPlaceOrderIsPaidAndDelivered() {
	ctx := context.Background()
	_, order := s.placeOrder(ctx)

	s.drain(ctx)

	actions := s.orderActions(order.OrderNumber)
	s.Require().Contains(actions, domain.ActionTypePay)
	s.Require().Contains(actions, domain.ActionTypeSend)
	s.Equal(domain.ActionStatusCompleted, actions[domain.ActionTypePay].ActionStatus)
	s.Equal(domain.ActionStatusCompleted, actions[domain.ActionTypeSend].ActionStatus)
}

func (s *OrderLifecycleTestSuite) TestReturnRefundsDeliveredOrder() {
	ctx := context.Background()
	placeTx, order := s.placeOrder(ctx)
	s.drain(ctx)

	returnTx, err := s.app.Services.ReturnOrder.Start(ctx, returnorder.StartParams{
		Agent:         s.agent,
		TransactionID: placeTx.ID,
		Expires:       time.Now().Add(15 * time.Minute),
	})
	s.Require().NoError(err)
	_, err = s.app.Services.ReturnOrder.Confirm(ctx, s.agent.ID, returnTx.ID)
	s.Require().NoError(err)

	s.drain(ctx)

	actions := s.orderActions(order.OrderNumber)
	s.Require().Contains(actions, domain.ActionTypeReturn)
	s.Require().Contains(actions, domain.ActionTypeRefund)
	s.Equal(domain.ActionStatusCompleted, actions[domain.ActionTypeReturn].ActionStatus)
	s.Equal(domain.ActionStatusCompleted, actions[domain.ActionTypeRefund].ActionStatus)

	rec := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transactions/returnorder/"+returnTx.ID, nil))
	s.Require().Equal(http.StatusOK, rec.Code)
	var stored domain.Transaction
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &stored))
	s.Equal(domain.TransactionStatusConfirmed, stored.Status)
	s.Equal(domain.TasksExported, stored.TasksExportationStatus)
}

func (s *OrderLifecycleTestSuite) TestSecondReturnIsRejected() {
	ctx := context.Background()
	placeTx, _ := s.placeOrder(ctx)
	s.drain(ctx)

	first, err := s.app.Services.ReturnOrder.Start(ctx, returnorder.StartParams{
		Agent:         s.agent,
		TransactionID: placeTx.ID,
		Expires:       time.Now().Add(15 * time.Minute),
	})
	s.Require().NoError(err)
	_, err = s.app.Services.ReturnOrder.Confirm(ctx, s.agent.ID, first.ID)
	s.Require().NoError(err)
	s.drain(ctx)

	_, err = s.app.Services.ReturnOrder.Start(ctx, returnorder.StartParams{
		Agent:         s.agent,
		TransactionID: placeTx.ID,
		Expires:       time.Now().Add(15 * time.Minute),
	})
	s.Error(err, "returned order must not be returned again")
}

func TestOrderLifecycleSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	suite.Run(t, new(OrderLifecycleTestSuite))
}
