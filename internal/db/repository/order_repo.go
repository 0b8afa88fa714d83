package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/bellyrush/marketplace/internal/models"
)

const orderColumns = `id, buyer_id, vendor_id, delivery_id, items, address, contact, scheduled_at, total_amount, status, created_at, updated_at`

// OrderRepository handles order data access
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts an order with its item snapshot
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (:id, :buyer_id, :vendor_id, :delivery_id, :items, :address, :contact, :scheduled_at, :total_amount, :status, :created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, order); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrDuplicate) {
			return mapped
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order models.Order
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// List retrieves orders matching the filter, newest first
func (r *OrderRepository) List(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	builder := psql.Select(orderColumns).From("orders").OrderBy("created_at DESC")

	eq := sq.Eq{}
	if filter.BuyerID != "" {
		eq["buyer_id"] = filter.BuyerID
	}
	if filter.VendorID != "" {
		eq["vendor_id"] = filter.VendorID
	}
	if filter.DeliveryID != "" {
		eq["delivery_id"] = filter.DeliveryID
	}
	if filter.Status != "" {
		eq["status"] = filter.Status
	}
	if filter.Unassigned {
		eq["delivery_id"] = ""
	}
	if len(eq) > 0 {
		builder = builder.Where(eq)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build order query: %w", err)
	}

	orders := []models.Order{}
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus sets the status of an order
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + orderColumns

	var order models.Order
	if err := r.db.GetContext(ctx, &order, query, status, now(), id); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	return &order, nil
}

// Assign gives an unassigned order to a rider in a single conditional update
func (r *OrderRepository) Assign(ctx context.Context, id, riderID string, from, to models.OrderStatus) (*models.Order, error) {
	query := `
		UPDATE orders
		SET delivery_id = $1, status = $2, updated_at = $3
		WHERE id = $4 AND delivery_id = '' AND status = $5
		RETURNING ` + orderColumns

	var order models.Order
	err := r.db.GetContext(ctx, &order, query, riderID, to, now(), id, from)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(mapPQError(err), ErrNotFound) {
		return nil, fmt.Errorf("failed to assign order: %w", err)
	}

	// Nothing matched: tell a missing order apart from one already taken
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrNotAvailable
}

// Delete removes an order and returns the removed record
func (r *OrderRepository) Delete(ctx context.Context, id string) (*models.Order, error) {
	query := `DELETE FROM orders WHERE id = $1 RETURNING ` + orderColumns

	var order models.Order
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to delete order: %w", err)
	}
	return &order, nil
}

func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM orders`); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

// Revenue sums order totals in the given status
func (r *OrderRepository) Revenue(ctx context.Context, status models.OrderStatus) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(total_amount), 0) FROM orders WHERE status = $1`
	if err := r.db.GetContext(ctx, &total, query, status); err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return total, nil
}
