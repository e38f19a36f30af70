package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/gateway/gmo"
	"github.com/vladislavdragonenkov/ticketing/internal/testkit"
)

func actionsOf(env *testkit.Env, typeOf domain.ActionType) []domain.Action {
	var out []domain.Action
	for _, a := range env.Actions.All() {
		if a.TypeOf == typeOf {
			out = append(out, a)
		}
	}
	return out
}

func TestPayCreditCardCapturesTrade(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	tx := env.ConfirmedByCard(t)

	require.NoError(t, env.Payment.PayCreditCard(ctx, tx.ID))

	assert.Equal(t, 1, env.GMO.Calls().AlterTran)
	trade, ok := env.GMO.Trade("order-" + tx.ID[:8])
	require.True(t, ok)
	assert.Equal(t, domain.TradeStatusSales, trade.Status)

	pays := actionsOf(env, domain.ActionTypePay)
	require.Len(t, pays, 1)
	assert.Equal(t, domain.ActionStatusCompleted, pays[0].ActionStatus)
	result, ok := domain.ResultAs[domain.CreditCardSettlementResult](pays[0])
	require.True(t, ok)
	assert.Equal(t, trade.TranID, result.CreditCardSales.TranID)
}

func TestPayCreditCardSkipsAlreadyCapturedTrade(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	tx := env.ConfirmedByCard(t)

	require.NoError(t, env.Payment.PayCreditCard(ctx, tx.ID))
	require.NoError(t, env.Payment.PayCreditCard(ctx, tx.ID))

	assert.Equal(t, 1, env.GMO.Calls().AlterTran, "the second run must see Sales and skip AlterTran")
	assert.Len(t, actionsOf(env, domain.ActionTypePay), 2)
}

func TestPayCreditCardGatewayFailureFailsAction(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	tx := env.ConfirmedByCard(t)
	outage := errors.New("gmo unavailable")
	env.GMO.SetFailures(func(s *gmo.Simulator) { s.AlterTranErr = outage })

	err := env.Payment.PayCreditCard(ctx, tx.ID)
	require.ErrorIs(t, err, outage)

	pays := actionsOf(env, domain.ActionTypePay)
	require.Len(t, pays, 1)
	assert.Equal(t, domain.ActionStatusFailed, pays[0].ActionStatus)
	require.NotNil(t, pays[0].Error)
}

func TestPayCreditCardWithoutTemplateIsNoop(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	env.Pecorino.OpenAccount("acc-1", 10000)
	tx := env.Start(t)
	env.ReserveSeats(t, tx.ID)
	env.AuthorizePecorino(t, tx.ID, "acc-1", testkit.SeatPrice)
	env.Confirm(t, tx.ID)

	require.NoError(t, env.Payment.PayCreditCard(ctx, tx.ID))
	assert.Equal(t, 0, env.GMO.Calls().SearchTrade)
	assert.Empty(t, actionsOf(env, domain.ActionTypePay))
}

func TestPayPecorinoAndAwardMoveBalances(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	env.Pecorino.OpenAccount("acc-1", 10000)
	tx := env.Start(t)
	env.ReserveSeats(t, tx.ID)
	env.AuthorizePecorino(t, tx.ID, "acc-1", testkit.SeatPrice)
	env.AuthorizeAward(t, tx.ID, "acc-1", 50)
	env.Confirm(t, tx.ID)

	require.NoError(t, env.Payment.PayPecorino(ctx, tx.ID))
	require.NoError(t, env.Payment.GivePecorinoAward(ctx, tx.ID))

	assert.Equal(t, 10000-testkit.SeatPrice+50, env.Pecorino.Balance("acc-1"))
	assert.Equal(t, 1, env.Pecorino.Calls(domain.PecorinoPay).Confirm)
	assert.Equal(t, 1, env.Pecorino.Calls(domain.PecorinoDeposit).Confirm)
	assert.Len(t, actionsOf(env, domain.ActionTypePay), 1)
	assert.Len(t, actionsOf(env, domain.ActionTypeGive), 1)
}

func TestPayPecorinoTwiceConfirmsOnce(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	env.Pecorino.OpenAccount("acc-1", 10000)
	tx := env.Start(t)
	env.ReserveSeats(t, tx.ID)
	env.AuthorizePecorino(t, tx.ID, "acc-1", testkit.SeatPrice)
	env.Confirm(t, tx.ID)

	require.NoError(t, env.Payment.PayPecorino(ctx, tx.ID))
	require.NoError(t, env.Payment.PayPecorino(ctx, tx.ID))

	assert.Equal(t, 10000-testkit.SeatPrice, env.Pecorino.Balance("acc-1"))
	assert.Equal(t, 1, env.Pecorino.Calls(domain.PecorinoPay).Confirm)
	assert.Len(t, actionsOf(env, domain.ActionTypePay), 1, "settled authorization gets no second pay action")
}

func TestSendOrderDeliversAndSchedulesEmail(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	tx := env.ConfirmedByCard(t)

	require.NoError(t, env.Payment.SendOrder(ctx, tx.ID))

	order, err := env.Orders.FindByOrderNumber(ctx, tx.Result.Order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, order.OrderStatus)

	emails := env.Tasks.ByName(domain.TaskSendEmailMessage)
	require.Len(t, emails, 1)
	assert.Equal(t, domain.SendEmailMessageTries, emails[0].RemainingNumberOfTries)
	require.NotNil(t, emails[0].Data.ActionAttributes)
	_, ok := domain.ObjectAs[domain.EmailMessage](*emails[0].Data.ActionAttributes)
	assert.True(t, ok)
}

func TestSendOrderTwiceKeepsOrderDelivered(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	tx := env.ConfirmedByCard(t)

	require.NoError(t, env.Payment.SendOrder(ctx, tx.ID))
	require.NoError(t, env.Payment.SendOrder(ctx, tx.ID))

	order, err := env.Orders.FindByOrderNumber(ctx, tx.Result.Order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, order.OrderStatus)
}

func TestCancelTasksReleaseReservations(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	env.Pecorino.OpenAccount("acc-1", 10000)
	tx := env.Start(t)
	env.ReserveSeats(t, tx.ID)
	env.AuthorizeCreditCard(t, tx.ID, "order-cancel", 1800)
	env.AuthorizePecorino(t, tx.ID, "acc-1", 1800)
	require.Equal(t, 1, env.Seats.ActiveHolds())

	require.NoError(t, env.Payment.CancelSeatReservationAuth(ctx, tx.ID))
	require.NoError(t, env.Payment.CancelCreditCardAuth(ctx, tx.ID))
	require.NoError(t, env.Payment.CancelPecorinoAuth(ctx, tx.ID))
	require.NoError(t, env.Payment.CancelPecorinoAward(ctx, tx.ID))
	require.NoError(t, env.Payment.CancelMvtk(ctx, tx.ID))

	assert.Zero(t, env.Seats.ActiveHolds())
	trade, ok := env.GMO.Trade("order-cancel")
	require.True(t, ok)
	assert.Equal(t, domain.TradeStatusVoid, trade.Status)
	assert.Equal(t, 1, env.Pecorino.Calls(domain.PecorinoPay).Cancel)
	assert.Equal(t, 10000, env.Pecorino.Balance("acc-1"))
}

func TestCancelCreditCardSkipsVoidedTrade(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	tx := env.Start(t)
	env.AuthorizeCreditCard(t, tx.ID, "order-void", 1800)

	require.NoError(t, env.Payment.CancelCreditCardAuth(ctx, tx.ID))
	require.NoError(t, env.Payment.CancelCreditCardAuth(ctx, tx.ID))

	assert.Equal(t, 1, env.GMO.Calls().AlterTran)
}

func TestCancelSeatReservationIsRepeatable(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	tx := env.Start(t)
	env.ReserveSeats(t, tx.ID)

	require.NoError(t, env.Payment.CancelSeatReservationAuth(ctx, tx.ID))
	require.NoError(t, env.Payment.CancelSeatReservationAuth(ctx, tx.ID))
	assert.Zero(t, env.Seats.ActiveHolds())
}

func TestExecutorsRequireConfirmedTemplates(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	tx := env.Start(t)

	err := env.Payment.PayCreditCard(ctx, tx.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = env.Payment.SendOrder(ctx, tx.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = env.Payment.RefundCreditCard(ctx, tx.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
