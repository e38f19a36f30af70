package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
	"github.com/vladislavdragonenkov/ticketing/internal/storage/memory"
)

func newOrder() domain.Order {
	return domain.Order{
		OrderNumber:        "ORD-1",
		ConfirmationNumber: "123456",
		OrderStatus:        domain.OrderStatusProcessing,
		Price:              1800,
		PriceCurrency:      "JPY",
		OrderDate:          time.Now().UTC(),
	}
}

func TestOrderRepository_CreateFind(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder()

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.FindByOrderNumber(ctx, order.OrderNumber)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if stored.Price != order.Price {
		t.Fatalf("unexpected price %d", stored.Price)
	}

	if err := repo.Create(ctx, order); !errors.Is(err, domain.ErrAlreadyInUse) {
		t.Fatalf("expected AlreadyInUse on duplicate order number, got %v", err)
	}
}

func TestOrderRepository_ChangeStatus(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder()
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := repo.ChangeStatus(ctx, order.OrderNumber, domain.OrderStatusDelivered); err != nil {
		t.Fatalf("change status failed: %v", err)
	}
	stored, _ := repo.FindByOrderNumber(ctx, order.OrderNumber)
	if stored.OrderStatus != domain.OrderStatusDelivered {
		t.Fatalf("unexpected status %s", stored.OrderStatus)
	}

	if err := repo.ChangeStatus(ctx, "missing", domain.OrderStatusReturned); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := repo.FindByOrderNumber(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
