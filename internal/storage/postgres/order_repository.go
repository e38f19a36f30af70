package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc, err := marshalJSONB(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (order_number, order_status, doc, order_date)
		VALUES ($1,$2,$3,$4)
	`, order.OrderNumber, string(order.OrderStatus), doc, order.OrderDate)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.AlreadyInUse("order", []string{"orderNumber"}, "order number already exists")
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		status string
		doc    []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT order_status, doc FROM orders WHERE order_number = $1
	`, orderNumber).Scan(&status, &doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.NotFound("order")
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	var order domain.Order
	if err := json.Unmarshal(doc, &order); err != nil {
		return domain.Order{}, fmt.Errorf("decode order: %w", err)
	}
	// Статус хранится в отдельной колонке и является источником истины.
	order.OrderStatus = domain.OrderStatus(status)
	return order, nil
}

func (r *orderRepository) ChangeStatus(ctx context.Context, orderNumber string, status domain.OrderStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET order_status = $2,
		    doc = jsonb_set(doc, '{orderStatus}', to_jsonb($2::text))
		WHERE order_number = $1
	`, orderNumber, string(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NotFound("order")
	}
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
