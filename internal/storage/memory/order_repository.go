package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

// orderRepositoryInMemory: простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если номер ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.OrderNumber]; exists {
		return domain.AlreadyInUse("order", []string{"orderNumber"}, "order number already exists")
	}
	r.items[order.OrderNumber] = order
	return nil
}

// FindByOrderNumber возвращает заказ или NotFound, если его нет.
func (r *orderRepositoryInMemory) FindByOrderNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[orderNumber]
	if !ok {
		return domain.Order{}, domain.NotFound("order")
	}
	return order, nil
}

// ChangeStatus меняет статус заказа.
func (r *orderRepositoryInMemory) ChangeStatus(_ context.Context, orderNumber string, status domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderNumber]
	if !ok {
		return domain.NotFound("order")
	}
	order.OrderStatus = status
	r.items[orderNumber] = order
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
