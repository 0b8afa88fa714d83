package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bellyrush/marketplace/internal/db/repository"
	"github.com/bellyrush/marketplace/internal/events"
	"github.com/bellyrush/marketplace/internal/models"
)

// MaxStatusLength bounds free-form status labels
const MaxStatusLength = 32

// Actor is the authenticated caller of an operation
type Actor struct {
	ID   string
	Role models.Role
}

// OrderService handles order placement and fulfilment
type OrderService struct {
	orders    repository.OrderStore
	menus     repository.MenuStore
	accounts  repository.AccountStore
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(orders repository.OrderStore, menus repository.MenuStore, accounts repository.AccountStore, publisher events.Publisher, log *zap.Logger) *OrderService {
	return &OrderService{
		orders:    orders,
		menus:     menus,
		accounts:  accounts,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// publish notifies subscribers; delivery problems never fail the request
func (s *OrderService) publish(ctx context.Context, typ string, order *models.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.FromOrder(typ, order)); err != nil {
		s.log.Warn("failed to publish order event",
			zap.String("type", typ), zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) getOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: order", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// Place creates a pending order. Prices come from the current menu, never
// from the request.
func (s *OrderService) Place(ctx context.Context, buyerID string, req models.OrderRequest) (*models.Order, error) {
	if _, err := verifiedAccount(ctx, s.accounts, models.RoleBuyer, buyerID); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", ErrBadRequest)
	}

	vendor, err := lookupAccount(ctx, s.accounts, models.RoleVendor, req.VendorID)
	if err != nil {
		return nil, err
	}
	if !vendor.Verified {
		return nil, fmt.Errorf("%w: vendor", ErrNotFound)
	}

	items := make(models.OrderItems, 0, len(req.Items))
	var total int64
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", ErrBadRequest)
		}
		menu, err := s.menus.GetByID(ctx, line.MenuID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: menu item %s does not exist", ErrBadRequest, line.MenuID)
			}
			return nil, fmt.Errorf("failed to get menu item: %w", err)
		}
		if menu.VendorID != vendor.ID {
			return nil, fmt.Errorf("%w: menu item %s is not sold by this vendor", ErrBadRequest, menu.ID)
		}
		if !menu.Available {
			return nil, fmt.Errorf("%w: %s is not available", ErrBadRequest, menu.Name)
		}

		items = append(items, models.OrderItem{
			MenuID:   menu.ID,
			Name:     menu.Name,
			Price:    menu.Price,
			Quantity: line.Quantity,
		})
		total += menu.Price * int64(line.Quantity)
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:          uuid.NewString(),
		BuyerID:     buyerID,
		VendorID:    vendor.ID,
		Items:       items,
		Address:     strings.TrimSpace(req.Address),
		Contact:     strings.TrimSpace(req.Contact),
		ScheduledAt: req.ScheduledAt,
		TotalAmount: total,
		Status:      models.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if order.Address == "" || order.Contact == "" {
		return nil, fmt.Errorf("%w: address and contact are required", ErrBadRequest)
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.publish(ctx, events.OrderCreated, order)
	return order, nil
}

// BuyerOrders lists the buyer's own orders
func (s *OrderService) BuyerOrders(ctx context.Context, buyerID string) ([]models.Order, error) {
	return s.orders.List(ctx, repository.OrderFilter{BuyerID: buyerID})
}

// VendorOrders lists the orders placed with the vendor
func (s *OrderService) VendorOrders(ctx context.Context, vendorID string) ([]models.Order, error) {
	return s.orders.List(ctx, repository.OrderFilter{VendorID: vendorID})
}

// Available lists ready orders no rider has taken yet
func (s *OrderService) Available(ctx context.Context) ([]models.Order, error) {
	return s.orders.List(ctx, repository.OrderFilter{Status: models.OrderStatusReady, Unassigned: true})
}

// Accept assigns a ready order to the rider. Of two riders racing for the
// same order exactly one wins; the other gets ErrConflict.
func (s *OrderService) Accept(ctx context.Context, riderID, orderID string) (*models.Order, error) {
	if _, err := verifiedAccount(ctx, s.accounts, models.RoleDelivery, riderID); err != nil {
		return nil, err
	}

	order, err := s.orders.Assign(ctx, orderID, riderID, models.OrderStatusReady, models.OrderStatusOutForDelivery)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: order", ErrNotFound)
		case errors.Is(err, repository.ErrNotAvailable):
			return nil, fmt.Errorf("%w: order is not available for pickup", ErrConflict)
		}
		return nil, fmt.Errorf("failed to accept order: %w", err)
	}

	s.publish(ctx, events.OrderAssigned, order)
	return order, nil
}

// Deliver marks an order delivered by its assigned rider
func (s *OrderService) Deliver(ctx context.Context, riderID, orderID string) (*models.Order, error) {
	if _, err := verifiedAccount(ctx, s.accounts, models.RoleDelivery, riderID); err != nil {
		return nil, err
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.DeliveryID != riderID {
		return nil, fmt.Errorf("%w: order is assigned to another rider", ErrForbidden)
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: order is already %s", ErrConflict, order.Status)
	}

	return s.setStatus(ctx, orderID, models.OrderStatusDelivered)
}

// UpdateStatus sets any status label. Vendors may update their own orders,
// riders the orders assigned to them, admins every order.
func (s *OrderService) UpdateStatus(ctx context.Context, actor Actor, req models.OrderStatusRequest) (*models.Order, error) {
	status := models.OrderStatus(strings.TrimSpace(string(req.Status)))
	if req.OrderID == "" || status == "" {
		return nil, fmt.Errorf("%w: orderId and status are required", ErrBadRequest)
	}
	if len(status) > MaxStatusLength {
		return nil, fmt.Errorf("%w: status is longer than %d characters", ErrBadRequest, MaxStatusLength)
	}

	if _, err := verifiedAccount(ctx, s.accounts, actor.Role, actor.ID); err != nil {
		return nil, err
	}

	order, err := s.getOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleVendor:
		if order.VendorID != actor.ID {
			return nil, fmt.Errorf("%w: order belongs to another vendor", ErrForbidden)
		}
	case models.RoleDelivery:
		if order.DeliveryID != actor.ID {
			return nil, fmt.Errorf("%w: order is assigned to another rider", ErrForbidden)
		}
	default:
		return nil, ErrForbidden
	}

	return s.setStatus(ctx, order.ID, status)
}

func (s *OrderService) setStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	order, err := s.orders.UpdateStatus(ctx, orderID, status)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: order", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	s.publish(ctx, events.OrderStatusChanged, order)
	return order, nil
}
