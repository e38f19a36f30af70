package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

func creditCardAuthorizeAction() domain.Action {
	end := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return domain.Action{
		ActionAttributes: domain.ActionAttributes{
			TypeOf:    domain.ActionTypeAuthorize,
			Agent:     domain.Participant{TypeOf: domain.ParticipantPerson, ID: "agent-1"},
			Recipient: domain.Participant{TypeOf: domain.ParticipantMovieTheater, ID: "seller-1"},
			Purpose:   domain.TransactionRef(domain.TransactionTypePlaceOrder, "tx-1"),
			Object: domain.CreditCardObject{
				OrderID: "order-1",
				Amount:  123,
				Method:  "1",
			},
		},
		ID:           "action-1",
		ActionStatus: domain.ActionStatusCompleted,
		Result: domain.CreditCardAuthResult{
			Price:         123,
			Amount:        123,
			EntryTranArgs: domain.EntryTranArgs{ShopID: "shop", ShopPass: "pass", OrderID: "order-1", JobCd: domain.JobCdAuth, Amount: 123},
			ExecTranArgs:  domain.ExecTranArgs{AccessID: "access", AccessPass: "access-pass", OrderID: "order-1", Method: "1"},
		},
		StartDate: end.Add(-time.Minute),
		EndDate:   &end,
	}
}

func TestActionJSONKeepsVariantTypes(t *testing.T) {
	action := creditCardAuthorizeAction()

	raw, err := json.Marshal(action)
	require.NoError(t, err)

	var decoded domain.Action
	require.NoError(t, json.Unmarshal(raw, &decoded))

	obj, ok := domain.ObjectAs[domain.CreditCardObject](decoded.ActionAttributes)
	require.True(t, ok, "object variant must survive the round trip")
	require.Equal(t, 123, obj.Amount)

	res, ok := domain.ResultAs[domain.CreditCardAuthResult](decoded)
	require.True(t, ok, "result variant is derived from object type")
	require.Equal(t, "access", res.ExecTranArgs.AccessID)
	require.Equal(t, action.StartDate, decoded.StartDate)
	require.Equal(t, "tx-1", decoded.TransactionID())
}

func TestNestedPayActionInsideRefundTemplate(t *testing.T) {
	pay := domain.Action{
		ActionAttributes: domain.ActionAttributes{
			TypeOf:  domain.ActionTypePay,
			Purpose: domain.OrderRef("ORD-1"),
			Object: domain.PecorinoSettlement{
				PaymentMethod: domain.PaymentMethod{TypeOf: domain.PaymentMethodPecorino, TotalPaymentDue: 100},
				PecorinoTransaction: domain.PecorinoTransaction{
					ID:     "pecorino-1",
					TypeOf: domain.PecorinoPay,
				},
			},
		},
		ID:           "pay-1",
		ActionStatus: domain.ActionStatusCompleted,
		Result:       domain.EmptyResult{},
	}
	refund := domain.ActionAttributes{
		TypeOf:  domain.ActionTypeRefund,
		Purpose: domain.OrderRef("ORD-1"),
		Object:  domain.PecorinoRefund{PayAction: pay},
	}

	raw, err := json.Marshal(refund)
	require.NoError(t, err)

	var decoded domain.ActionAttributes
	require.NoError(t, json.Unmarshal(raw, &decoded))

	obj, ok := domain.ObjectAs[domain.PecorinoRefund](decoded)
	require.True(t, ok)
	settlement, ok := domain.ObjectAs[domain.PecorinoSettlement](obj.PayAction.ActionAttributes)
	require.True(t, ok)
	require.Equal(t, "pecorino-1", settlement.PecorinoTransaction.ID)
	require.Equal(t, "ORD-1", decoded.OrderNumber())
}

func TestDecodeUnknownObjectType(t *testing.T) {
	_, err := domain.DecodeActionObject("Bitcoin", json.RawMessage(`{}`))
	require.True(t, errors.Is(err, domain.ErrNotImplemented))
}

func TestActionValidate(t *testing.T) {
	actionErr := &domain.ActionError{Name: "Error", Message: "boom"}

	tests := []struct {
		name    string
		mut     func(a *domain.Action)
		wantErr bool
	}{
		{name: "completed with result", mut: func(a *domain.Action) {}},
		{name: "active clean", mut: func(a *domain.Action) {
			a.ActionStatus = domain.ActionStatusActive
			a.Result = nil
		}},
		{name: "active with result", mut: func(a *domain.Action) {
			a.ActionStatus = domain.ActionStatusActive
		}, wantErr: true},
		{name: "failed with result and error", mut: func(a *domain.Action) {
			a.ActionStatus = domain.ActionStatusFailed
			a.Error = actionErr
		}, wantErr: true},
		{name: "failed with error only", mut: func(a *domain.Action) {
			a.ActionStatus = domain.ActionStatusFailed
			a.Result = nil
			a.Error = actionErr
		}},
		{name: "completed with error", mut: func(a *domain.Action) {
			a.Error = actionErr
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := creditCardAuthorizeAction()
			tt.mut(&a)
			err := a.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCompletedAuthorizeActionsFiltersByObjectType(t *testing.T) {
	card := creditCardAuthorizeAction()
	canceled := creditCardAuthorizeAction()
	canceled.ActionStatus = domain.ActionStatusCanceled
	award := creditCardAuthorizeAction()
	award.Object = domain.PecorinoAwardObject{Amount: 10}
	award.Result = domain.PecorinoAwardResult{Amount: 10}

	all := []domain.Action{card, canceled, award}

	require.Len(t, domain.CompletedAuthorizeActions(all, ""), 2)
	cards := domain.CompletedAuthorizeActions(all, domain.ObjectTypeCreditCard)
	require.Len(t, cards, 1)
	require.Equal(t, card.ID, cards[0].ID)

	price, ok := domain.AuthorizedPrice(card)
	require.True(t, ok)
	require.Equal(t, 123, price)
}
