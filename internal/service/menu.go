package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bellyrush/marketplace/internal/db/repository"
	"github.com/bellyrush/marketplace/internal/models"
	"github.com/bellyrush/marketplace/internal/storage"
)

const menuImageFolder = "menus"

// MenuService handles menu-related business logic
type MenuService struct {
	menus    repository.MenuStore
	accounts repository.AccountStore
	images   storage.ImageStore
	now      func() time.Time
}

// NewMenuService creates a new menu service
func NewMenuService(menus repository.MenuStore, accounts repository.AccountStore, images storage.ImageStore) *MenuService {
	return &MenuService{menus: menus, accounts: accounts, images: images, now: time.Now}
}

func (s *MenuService) getItem(ctx context.Context, id string) (*models.MenuItem, error) {
	item, err := s.menus.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: menu item", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get menu item: %w", err)
	}
	return item, nil
}

// ownedItem loads an item the vendor is allowed to change
func (s *MenuService) ownedItem(ctx context.Context, vendorID, itemID string) (*models.MenuItem, error) {
	if _, err := verifiedAccount(ctx, s.accounts, models.RoleVendor, vendorID); err != nil {
		return nil, err
	}
	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.VendorID != vendorID {
		return nil, fmt.Errorf("%w: menu item belongs to another vendor", ErrForbidden)
	}
	return item, nil
}

func (s *MenuService) saveImage(ctx context.Context, image io.Reader) (string, error) {
	return saveImage(ctx, s.images, menuImageFolder, image)
}

// dropImage removes an upload no item refers to. Leftover files are
// harmless, so failures are ignored.
func (s *MenuService) dropImage(ctx context.Context, url string) {
	_ = discardImage(ctx, s.images, url)
}

// Create adds an item to the vendor's menu. A vendor id in the request body
// must match the caller.
func (s *MenuService) Create(ctx context.Context, vendorID string, req models.MenuItemRequest, image io.Reader) (*models.MenuItem, error) {
	if req.VendorID != "" && req.VendorID != vendorID {
		return nil, fmt.Errorf("%w: cannot create menu items for another vendor", ErrForbidden)
	}
	if _, err := verifiedAccount(ctx, s.accounts, models.RoleVendor, vendorID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	item := &models.MenuItem{
		ID:          uuid.NewString(),
		VendorID:    vendorID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Price:       req.Price,
		Ingredients: cleanList(req.Ingredients),
		Available:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Available != nil {
		item.Available = *req.Available
	}
	if item.Name == "" || item.Category == "" || item.Price <= 0 {
		return nil, fmt.Errorf("%w: foodname, category and a positive price are required", ErrBadRequest)
	}

	if image != nil {
		url, err := s.saveImage(ctx, image)
		if err != nil {
			return nil, err
		}
		item.Image = url
	}

	if err := s.menus.Create(ctx, item); err != nil {
		s.dropImage(ctx, item.Image)
		return nil, fmt.Errorf("failed to create menu item: %w", err)
	}
	return item, nil
}

// Update changes the non-nil fields of an item owned by the vendor
func (s *MenuService) Update(ctx context.Context, vendorID, itemID string, req models.MenuItemUpdateRequest, image io.Reader) (*models.MenuItem, error) {
	item, err := s.ownedItem(ctx, vendorID, itemID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		item.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		item.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		item.Price = *req.Price
	}
	if req.Ingredients != nil {
		item.Ingredients = cleanList(*req.Ingredients)
	}
	if req.Available != nil {
		item.Available = *req.Available
	}
	if item.Name == "" || item.Category == "" || item.Price <= 0 {
		return nil, fmt.Errorf("%w: foodname, category and a positive price are required", ErrBadRequest)
	}

	previous := item.Image
	if image != nil {
		url, err := s.saveImage(ctx, image)
		if err != nil {
			return nil, err
		}
		item.Image = url
	}

	item.UpdatedAt = s.now().UTC()
	if err := s.menus.Update(ctx, item); err != nil {
		if item.Image != previous {
			s.dropImage(ctx, item.Image)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: menu item", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update menu item: %w", err)
	}
	if item.Image != previous {
		s.dropImage(ctx, previous)
	}
	return item, nil
}

// Delete removes an item owned by the vendor
func (s *MenuService) Delete(ctx context.Context, vendorID, itemID string) (*models.MenuItem, error) {
	if _, err := s.ownedItem(ctx, vendorID, itemID); err != nil {
		return nil, err
	}
	item, err := s.menus.Delete(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: menu item", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to delete menu item: %w", err)
	}
	return item, nil
}

// VendorMenu lists every item of the vendor, available or not
func (s *MenuService) VendorMenu(ctx context.Context, vendorID string) ([]models.MenuItem, error) {
	return s.menus.List(ctx, repository.MenuFilter{VendorID: vendorID})
}

// Vendors lists the verified vendors buyers can order from
func (s *MenuService) Vendors(ctx context.Context) ([]models.Account, error) {
	all, err := s.accounts.List(ctx, models.RoleVendor)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	vendors := make([]models.Account, 0, len(all))
	for _, v := range all {
		if v.Verified {
			vendors = append(vendors, v)
		}
	}
	return vendors, nil
}

// PublicMenu lists the available items of a verified vendor
func (s *MenuService) PublicMenu(ctx context.Context, vendorID string) ([]models.MenuItem, error) {
	vendor, err := lookupAccount(ctx, s.accounts, models.RoleVendor, vendorID)
	if err != nil {
		return nil, err
	}
	if !vendor.Verified {
		return nil, fmt.Errorf("%w: vendor", ErrNotFound)
	}
	return s.menus.List(ctx, repository.MenuFilter{VendorID: vendorID, AvailableOnly: true})
}

func cleanList(in []string) models.StringList {
	out := make(models.StringList, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
