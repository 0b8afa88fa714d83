package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bellyrush/marketplace/internal/models"
)

var (
	// ErrNotFound is returned when no record matches
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique index rejects a write
	ErrDuplicate = errors.New("duplicate key")
	// ErrNotAvailable is returned when a conditional update matched nothing
	ErrNotAvailable = errors.New("record not available")
)

// AccountStore persists accounts of every role, one collection per role.
// Email and phone are unique within a role.
type AccountStore interface {
	Create(ctx context.Context, acct *models.Account) error
	GetByID(ctx context.Context, role models.Role, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, role models.Role, email string) (*models.Account, error)
	List(ctx context.Context, role models.Role) ([]models.Account, error)
	Update(ctx context.Context, acct *models.Account) error
	Delete(ctx context.Context, role models.Role, id string) (*models.Account, error)
	Count(ctx context.Context, role models.Role) (int64, error)
}

// MenuFilter narrows a menu listing; zero values match everything
type MenuFilter struct {
	VendorID      string
	AvailableOnly bool
}

type MenuStore interface {
	Create(ctx context.Context, item *models.MenuItem) error
	GetByID(ctx context.Context, id string) (*models.MenuItem, error)
	List(ctx context.Context, filter MenuFilter) ([]models.MenuItem, error)
	Update(ctx context.Context, item *models.MenuItem) error
	Delete(ctx context.Context, id string) (*models.MenuItem, error)
	Count(ctx context.Context) (int64, error)
}

// OrderFilter narrows an order listing; zero values match everything
type OrderFilter struct {
	BuyerID    string
	VendorID   string
	DeliveryID string
	Status     models.OrderStatus
	Unassigned bool
}

type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error)
	// Assign sets the rider and status only if the order has no rider yet and
	// is in the from status; otherwise ErrNotAvailable.
	Assign(ctx context.Context, id, riderID string, from, to models.OrderStatus) (*models.Order, error)
	Delete(ctx context.Context, id string) (*models.Order, error)
	Count(ctx context.Context) (int64, error)
	// Revenue sums the totals of orders in the given status
	Revenue(ctx context.Context, status models.OrderStatus) (int64, error)
}

var now = func() time.Time { return time.Now().UTC() }

// Repositories provides access to all repository instances
type Repositories struct {
	Accounts AccountStore
	Menus    MenuStore
	Orders   OrderStore

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ping checks the backing store
func (r *Repositories) Ping(ctx context.Context) error {
	if r.ping == nil {
		return nil
	}
	return r.ping(ctx)
}

// Close releases the backing store
func (r *Repositories) Close(ctx context.Context) error {
	if r.close == nil {
		return nil
	}
	return r.close(ctx)
}
