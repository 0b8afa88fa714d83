package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bellyrush/marketplace/internal/models"
)

// NewMemory returns repositories backed by process memory. Uniqueness rules
// match the database drivers so services behave the same in tests.
func NewMemory() *Repositories {
	return &Repositories{
		Accounts: &memoryAccounts{byRole: make(map[models.Role]map[string]*models.Account)},
		Menus:    &memoryMenus{items: make(map[string]*models.MenuItem)},
		Orders:   &memoryOrders{orders: make(map[string]*models.Order)},
	}
}

// Stored records never share pointers with callers.
func cloneAccount(a *models.Account) *models.Account {
	c := *a
	if a.OTP != nil {
		v := *a.OTP
		c.OTP = &v
	}
	if a.OTPExpiry != nil {
		v := *a.OTPExpiry
		c.OTPExpiry = &v
	}
	c.Profile = cloneProfile(a.Profile)
	return &c
}

func cloneProfile(p models.Profile) models.Profile {
	var out models.Profile
	if p.Vendor != nil {
		v := *p.Vendor
		out.Vendor = &v
	}
	if p.Delivery != nil {
		d := *p.Delivery
		out.Delivery = &d
	}
	if p.Buyer != nil {
		b := *p.Buyer
		b.Payments = append([]models.Payment(nil), p.Buyer.Payments...)
		out.Buyer = &b
	}
	return out
}

type memoryAccounts struct {
	mu     sync.RWMutex
	byRole map[models.Role]map[string]*models.Account
}

func (m *memoryAccounts) table(role models.Role) map[string]*models.Account {
	t, ok := m.byRole[role]
	if !ok {
		t = make(map[string]*models.Account)
		m.byRole[role] = t
	}
	return t
}

// conflicts reports whether another account of the role holds the email or phone
func (m *memoryAccounts) conflicts(acct *models.Account) bool {
	for id, other := range m.table(acct.Role) {
		if id == acct.ID {
			continue
		}
		if strings.EqualFold(other.Email, acct.Email) {
			return true
		}
		if acct.Phone != "" && other.Phone == acct.Phone {
			return true
		}
	}
	return false
}

func (m *memoryAccounts) Create(_ context.Context, acct *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(acct.Role)
	if _, ok := t[acct.ID]; ok || m.conflicts(acct) {
		return ErrDuplicate
	}
	t[acct.ID] = cloneAccount(acct)
	return nil
}

func (m *memoryAccounts) GetByID(_ context.Context, role models.Role, id string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byRole[role][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(a), nil
}

func (m *memoryAccounts) GetByEmail(_ context.Context, role models.Role, email string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.byRole[role] {
		if strings.EqualFold(a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryAccounts) List(_ context.Context, role models.Role) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Account, 0, len(m.byRole[role]))
	for _, a := range m.byRole[role] {
		out = append(out, *cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryAccounts) Update(_ context.Context, acct *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(acct.Role)
	if _, ok := t[acct.ID]; !ok {
		return ErrNotFound
	}
	if m.conflicts(acct) {
		return ErrDuplicate
	}
	t[acct.ID] = cloneAccount(acct)
	return nil
}

func (m *memoryAccounts) Delete(_ context.Context, role models.Role, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byRole[role][id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.byRole[role], id)
	return cloneAccount(a), nil
}

func (m *memoryAccounts) Count(_ context.Context, role models.Role) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.byRole[role])), nil
}

type memoryMenus struct {
	mu    sync.RWMutex
	items map[string]*models.MenuItem
}

func cloneMenu(i *models.MenuItem) *models.MenuItem {
	c := *i
	c.Ingredients = append(models.StringList(nil), i.Ingredients...)
	return &c
}

func (m *memoryMenus) Create(_ context.Context, item *models.MenuItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; ok {
		return ErrDuplicate
	}
	m.items[item.ID] = cloneMenu(item)
	return nil
}

func (m *memoryMenus) GetByID(_ context.Context, id string) (*models.MenuItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMenu(i), nil
}

func (m *memoryMenus) List(_ context.Context, filter MenuFilter) ([]models.MenuItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.MenuItem, 0)
	for _, i := range m.items {
		if filter.VendorID != "" && i.VendorID != filter.VendorID {
			continue
		}
		if filter.AvailableOnly && !i.Available {
			continue
		}
		out = append(out, *cloneMenu(i))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Category != out[b].Category {
			return out[a].Category < out[b].Category
		}
		return out[a].Name < out[b].Name
	})
	return out, nil
}

func (m *memoryMenus) Update(_ context.Context, item *models.MenuItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; !ok {
		return ErrNotFound
	}
	m.items[item.ID] = cloneMenu(item)
	return nil
}

func (m *memoryMenus) Delete(_ context.Context, id string) (*models.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.items, id)
	return i, nil
}

func (m *memoryMenus) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.items)), nil
}

type memoryOrders struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append(models.OrderItems(nil), o.Items...)
	if o.ScheduledAt != nil {
		v := *o.ScheduledAt
		c.ScheduledAt = &v
	}
	return &c
}

func (m *memoryOrders) Create(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return ErrDuplicate
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *memoryOrders) GetByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memoryOrders) List(_ context.Context, filter OrderFilter) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Order, 0)
	for _, o := range m.orders {
		switch {
		case filter.BuyerID != "" && o.BuyerID != filter.BuyerID,
			filter.VendorID != "" && o.VendorID != filter.VendorID,
			filter.DeliveryID != "" && o.DeliveryID != filter.DeliveryID,
			filter.Status != "" && o.Status != filter.Status,
			filter.Unassigned && o.DeliveryID != "":
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryOrders) UpdateStatus(_ context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = now()
	return cloneOrder(o), nil
}

func (m *memoryOrders) Assign(_ context.Context, id, riderID string, from, to models.OrderStatus) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.DeliveryID != "" || o.Status != from {
		return nil, ErrNotAvailable
	}
	o.DeliveryID = riderID
	o.Status = to
	o.UpdatedAt = now()
	return cloneOrder(o), nil
}

func (m *memoryOrders) Delete(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.orders, id)
	return o, nil
}

func (m *memoryOrders) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.orders)), nil
}

func (m *memoryOrders) Revenue(_ context.Context, status models.OrderStatus) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, o := range m.orders {
		if o.Status == status {
			total += o.TotalAmount
		}
	}
	return total, nil
}
