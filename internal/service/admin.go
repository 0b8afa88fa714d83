package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bellyrush/marketplace/internal/db/repository"
	"github.com/bellyrush/marketplace/internal/models"
)

// AdminService lists and prunes every entity. Deletes never cascade.
// Every method takes the calling admin's id; the admin must still exist and
// be verified.
type AdminService struct {
	repos *repository.Repositories
}

func NewAdminService(repos *repository.Repositories) *AdminService {
	return &AdminService{repos: repos}
}

func (s *AdminService) authorize(ctx context.Context, adminID string) error {
	_, err := verifiedAccount(ctx, s.repos.Accounts, models.RoleAdmin, adminID)
	return err
}

func (s *AdminService) Accounts(ctx context.Context, adminID string, role models.Role) ([]models.Account, error) {
	if err := s.authorize(ctx, adminID); err != nil {
		return nil, err
	}
	accounts, err := s.repos.Accounts.List(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s accounts: %w", role, err)
	}
	return accounts, nil
}

func (s *AdminService) DeleteAccount(ctx context.Context, adminID string, role models.Role, id string) (*models.Account, error) {
	if err := s.authorize(ctx, adminID); err != nil {
		return nil, err
	}
	acct, err := s.repos.Accounts.Delete(ctx, role, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, role)
		}
		return nil, fmt.Errorf("failed to delete %s: %w", role, err)
	}
	return acct, nil
}

func (s *AdminService) Menus(ctx context.Context, adminID string) ([]models.MenuItem, error) {
	if err := s.authorize(ctx, adminID); err != nil {
		return nil, err
	}
	return s.repos.Menus.List(ctx, repository.MenuFilter{})
}

func (s *AdminService) DeleteMenu(ctx context.Context, adminID, id string) (*models.MenuItem, error) {
	if err := s.authorize(ctx, adminID); err != nil {
		return nil, err
	}
	item, err := s.repos.Menus.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: menu item", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to delete menu item: %w", err)
	}
	return item, nil
}

func (s *AdminService) Orders(ctx context.Context, adminID string) ([]models.Order, error) {
	if err := s.authorize(ctx, adminID); err != nil {
		return nil, err
	}
	return s.repos.Orders.List(ctx, repository.OrderFilter{})
}

func (s *AdminService) DeleteOrder(ctx context.Context, adminID, id string) (*models.Order, error) {
	if err := s.authorize(ctx, adminID); err != nil {
		return nil, err
	}
	order, err := s.repos.Orders.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: order", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to delete order: %w", err)
	}
	return order, nil
}

// Stats counts every entity and sums delivered order totals
func (s *AdminService) Stats(ctx context.Context, adminID string) (*models.Stats, error) {
	if err := s.authorize(ctx, adminID); err != nil {
		return nil, err
	}

	var stats models.Stats
	var err error

	counts := []struct {
		role models.Role
		dst  *int64
	}{
		{models.RoleVendor, &stats.Vendors},
		{models.RoleBuyer, &stats.Buyers},
		{models.RoleDelivery, &stats.Deliveries},
	}
	for _, c := range counts {
		if *c.dst, err = s.repos.Accounts.Count(ctx, c.role); err != nil {
			return nil, err
		}
	}
	if stats.Menus, err = s.repos.Menus.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Orders, err = s.repos.Orders.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Revenue, err = s.repos.Orders.Revenue(ctx, models.OrderStatusDelivered); err != nil {
		return nil, err
	}
	return &stats, nil
}
