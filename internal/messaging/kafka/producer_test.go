package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := newProducer(mockProducer)

	mockProducer.ExpectSendMessageAndSucceed()

	event := NewActionEvent(domain.Action{
		ActionAttributes: domain.ActionAttributes{
			TypeOf:  domain.ActionTypeAuthorize,
			Purpose: domain.TransactionRef(domain.TransactionTypePlaceOrder, "tx-1"),
			Object:  domain.CreditCardObject{OrderID: "order-1", Amount: 100},
		},
		ID:           "action-1",
		ActionStatus: domain.ActionStatusActive,
	})

	if err := producer.PublishEvent(context.Background(), TopicActions, "action-1", event, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := newProducer(mockProducer)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewTransactionEvent(EventTypeTransactionConfirmed, domain.Transaction{ID: "tx-1"}, nil)

	if err := producer.PublishEvent(context.Background(), TopicTransactions, "tx-1", event, nil); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewActionEvent(t *testing.T) {
	end := time.Now().UTC()
	action := domain.Action{
		ActionAttributes: domain.ActionAttributes{
			TypeOf:  domain.ActionTypePay,
			Purpose: domain.OrderRef("ORD-1"),
			Object:  domain.CreditCardSettlement{AuthorizeActionID: "auth-1"},
		},
		ID:           "pay-1",
		ActionStatus: domain.ActionStatusFailed,
		Error:        &domain.ActionError{Name: "GMOError", Message: "declined"},
		EndDate:      &end,
	}

	event := NewActionEvent(action)

	if event.EventType != EventTypeActionFailed {
		t.Errorf("expected event type %s, got %s", EventTypeActionFailed, event.EventType)
	}
	if event.ObjectType != domain.ObjectTypeCreditCardSettlement {
		t.Errorf("unexpected object type %s", event.ObjectType)
	}
	if event.OrderNumber != "ORD-1" {
		t.Errorf("expected order number ORD-1, got %q", event.OrderNumber)
	}
	if event.TransactionID != "" {
		t.Errorf("order-scoped action must not carry a transaction id, got %q", event.TransactionID)
	}
	if event.Error == nil || event.Error.Name != "GMOError" {
		t.Error("error snapshot not propagated")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}

func TestNewTransactionEvent(t *testing.T) {
	tx := domain.Transaction{
		ID:     "tx-1",
		TypeOf: domain.TransactionTypeReturnOrder,
		Status: domain.TransactionStatusConfirmed,
		Object: domain.TransactionObject{Order: &domain.Order{OrderNumber: "ORD-7"}},
	}

	event := NewTransactionEvent(EventTypeTransactionConfirmed, tx, map[string]interface{}{"tasks": 1})

	if event.TransactionType != domain.TransactionTypeReturnOrder {
		t.Errorf("unexpected transaction type %s", event.TransactionType)
	}
	if event.OrderNumber != "ORD-7" {
		t.Errorf("expected order number from return object, got %q", event.OrderNumber)
	}
	if event.Metadata["tasks"] != 1 {
		t.Error("metadata not set correctly")
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
}

func TestTopicForAggregate(t *testing.T) {
	cases := map[string]string{
		AggregateAction:      TopicActions,
		AggregateTransaction: TopicTransactions,
		"unknown":            TopicDeadLetterQueue,
	}
	for aggregate, want := range cases {
		if got := TopicForAggregate(aggregate, TopicDeadLetterQueue); got != want {
			t.Errorf("TopicForAggregate(%q) = %s, want %s", aggregate, got, want)
		}
	}
}
