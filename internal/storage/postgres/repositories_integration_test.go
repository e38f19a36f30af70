package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

func TestActionRepository_PostgresLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewActionRepository(store)

	attrs := domain.ActionAttributes{
		TypeOf:  domain.ActionTypeAuthorize,
		Agent:   domain.Participant{TypeOf: domain.ParticipantPerson, ID: "agent-1"},
		Purpose: domain.TransactionRef(domain.TransactionTypePlaceOrder, "tx-1"),
		Object:  domain.CreditCardObject{OrderID: "order-1", Amount: 123, Method: "1"},
	}
	action, err := repo.Start(ctx, attrs)
	if err != nil {
		t.Fatalf("start action: %v", err)
	}

	completed, err := repo.Complete(ctx, domain.ActionTypeAuthorize, action.ID, domain.CreditCardAuthResult{Price: 123, Amount: 123})
	if err != nil {
		t.Fatalf("complete action: %v", err)
	}
	if completed.ActionStatus != domain.ActionStatusCompleted || completed.EndDate == nil {
		t.Fatalf("unexpected completed action: %+v", completed)
	}
	if _, err := repo.Complete(ctx, domain.ActionTypeAuthorize, action.ID, domain.CreditCardAuthResult{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound for second completion, got %v", err)
	}

	auths, err := repo.FindAuthorizeByTransactionID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("find authorize actions: %v", err)
	}
	if len(auths) != 1 {
		t.Fatalf("expected one authorize action, got %d", len(auths))
	}
	if price, ok := domain.AuthorizedPrice(auths[0]); !ok || price != 123 {
		t.Fatalf("unexpected authorized price %d", price)
	}

	canceled, err := repo.CancelAuthorization(ctx, domain.ObjectTypeCreditCard, action.ID, "tx-1")
	if err != nil {
		t.Fatalf("cancel authorization: %v", err)
	}
	if canceled.Result == nil {
		t.Fatal("canceled authorization must keep its result")
	}
}

func TestTransactionRepository_PostgresConfirmAndReturnUniqueness(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewTransactionRepository(store)

	placeOrder, err := repo.Start(ctx, domain.Transaction{
		TypeOf:  domain.TransactionTypePlaceOrder,
		Agent:   domain.Participant{TypeOf: domain.ParticipantPerson, ID: "agent-1"},
		Seller:  domain.Participant{TypeOf: domain.ParticipantMovieTheater, ID: "seller-1"},
		Expires: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("start place order: %v", err)
	}

	params := domain.ConfirmParams{
		TypeOf: domain.TransactionTypePlaceOrder,
		ID:     placeOrder.ID,
		Result: domain.TransactionResult{Order: &domain.Order{OrderNumber: "ORD-1"}},
	}
	if _, err := repo.Confirm(ctx, params); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := repo.Confirm(ctx, params); !errors.Is(err, domain.ErrAlreadyInUse) {
		t.Fatalf("expected AlreadyInUse for second confirm, got %v", err)
	}

	ret := domain.Transaction{
		TypeOf:  domain.TransactionTypeReturnOrder,
		Expires: time.Now().Add(time.Hour),
		Object:  domain.TransactionObject{Transaction: placeOrder.Ref()},
	}
	if _, err := repo.Start(ctx, ret); err != nil {
		t.Fatalf("start return: %v", err)
	}
	if _, err := repo.Start(ctx, ret); !errors.Is(err, domain.ErrAlreadyInUse) {
		t.Fatalf("expected AlreadyInUse for duplicate return, got %v", err)
	}

	claimed, err := repo.StartExportTasks(ctx, domain.TransactionTypePlaceOrder, domain.TransactionStatusConfirmed)
	if err != nil || claimed == nil {
		t.Fatalf("claim export: %v %v", claimed, err)
	}
	if err := repo.SetTasksExportedByID(ctx, claimed.ID); err != nil {
		t.Fatalf("set exported: %v", err)
	}
}

func TestTaskRepository_PostgresClaim(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewTaskRepository(store)
	now := time.Now().UTC()

	saved, err := repo.Save(ctx, domain.NewTaskAttributes(domain.TaskReturnOrder, domain.TaskData{TransactionID: "tx-1"}, domain.ReturnOrderTries, now))
	if err != nil {
		t.Fatalf("save task: %v", err)
	}

	claimed, err := repo.ClaimReady(ctx, now.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].RemainingNumberOfTries != domain.ReturnOrderTries-1 {
		t.Fatalf("unexpected claimed tasks: %+v", claimed)
	}

	if err := repo.Finish(ctx, saved.ID, domain.TaskStatusExecuted, now, domain.TaskExecutionResult{ExecutedAt: now}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	stored, err := repo.FindByID(ctx, saved.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != domain.TaskStatusExecuted || len(stored.ExecutionResults) != 1 {
		t.Fatalf("unexpected stored task: %+v", stored)
	}
}

func TestTaskRepository_PostgresRetryStuck(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewTaskRepository(store)
	now := time.Now().UTC().Truncate(time.Millisecond)

	retried, err := repo.Save(ctx, domain.NewTaskAttributes(domain.TaskPayCreditCard, domain.TaskData{TransactionID: "tx-1"}, 2, now))
	if err != nil {
		t.Fatalf("save task: %v", err)
	}
	lastTry, err := repo.Save(ctx, domain.NewTaskAttributes(domain.TaskSendOrder, domain.TaskData{TransactionID: "tx-2"}, 1, now))
	if err != nil {
		t.Fatalf("save task: %v", err)
	}
	if claimed, err := repo.ClaimReady(ctx, now, 10); err != nil || len(claimed) != 2 {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	if count, err := repo.RetryStuck(ctx, now.Add(time.Minute), 10*time.Minute); err != nil || count != 0 {
		t.Fatalf("recent attempts must stay running: count=%d err=%v", count, err)
	}
	count, err := repo.RetryStuck(ctx, now.Add(time.Hour), 10*time.Minute)
	if err != nil || count != 2 {
		t.Fatalf("retry stuck: count=%d err=%v", count, err)
	}

	for id, want := range map[string]domain.TaskStatus{retried.ID: domain.TaskStatusReady, lastTry.ID: domain.TaskStatusAborted} {
		stored, err := repo.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if stored.Status != want {
			t.Fatalf("task %s: expected %s, got %s", id, want, stored.Status)
		}
	}
}

func TestOrderRepository_PostgresStatus(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOrderRepository(store)

	order := domain.Order{OrderNumber: "ORD-1", OrderStatus: domain.OrderStatusProcessing, Price: 1800, OrderDate: time.Now().UTC()}
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, order); !errors.Is(err, domain.ErrAlreadyInUse) {
		t.Fatalf("expected AlreadyInUse, got %v", err)
	}
	if err := repo.ChangeStatus(ctx, "ORD-1", domain.OrderStatusDelivered); err != nil {
		t.Fatalf("change status: %v", err)
	}
	got, err := repo.FindByOrderNumber(ctx, "ORD-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.OrderStatus != domain.OrderStatusDelivered {
		t.Fatalf("unexpected status %s", got.OrderStatus)
	}
}
