package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellyrush/marketplace/internal/models"
)

func newMenuService(env *testEnv) *MenuService {
	s := NewMenuService(env.repos.Menus, env.repos.Accounts, env.images)
	s.now = env.clock.now
	return s
}

func menuRequest(name string, price int64) models.MenuItemRequest {
	return models.MenuItemRequest{
		Name: name, Category: "Mains", Price: price,
		Ingredients: []string{" rice ", "", "egg"},
	}
}

func TestMenuCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vendorID := env.verified(t, models.RoleVendor, "v@x.com", "0211111111")
	menus := newMenuService(env)

	item, err := menus.Create(ctx, vendorID, menuRequest("Fried rice", 1450), pngBytes())
	require.NoError(t, err)
	assert.Equal(t, vendorID, item.VendorID)
	assert.True(t, item.Available)
	assert.Equal(t, models.StringList{"rice", "egg"}, item.Ingredients)
	assert.Equal(t, "/uploads/menus/img1.jpg", item.Image)

	own, err := menus.VendorMenu(ctx, vendorID)
	require.NoError(t, err)
	assert.Len(t, own, 1)
}

func TestMenuCreateRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vendorA := env.verified(t, models.RoleVendor, "a@x.com", "0211111111")
	vendorB := env.verified(t, models.RoleVendor, "b@x.com", "0212222222")
	menus := newMenuService(env)

	req := menuRequest("Pad thai", 1600)
	req.VendorID = vendorB
	_, err := menus.Create(ctx, vendorA, req, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = menus.Create(ctx, vendorA, menuRequest("  ", 1600), nil)
	assert.ErrorIs(t, err, ErrBadRequest)

	vendors := env.accounts(models.RoleVendor)
	res, err := vendors.Register(ctx, models.RegisterRequest{
		Name: "New Place", Email: "new@x.com", Password: "secret1", Phone: "0213333333",
	}, nil)
	require.NoError(t, err)
	vendors.Wait()

	_, err = menus.Create(ctx, res.Account.ID, menuRequest("Soup", 900), nil)
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestMenuOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vendorA := env.verified(t, models.RoleVendor, "a@x.com", "0211111111")
	vendorB := env.verified(t, models.RoleVendor, "b@x.com", "0212222222")
	menus := newMenuService(env)

	item, err := menus.Create(ctx, vendorA, menuRequest("Laksa", 1800), nil)
	require.NoError(t, err)

	price := int64(1)
	_, err = menus.Update(ctx, vendorB, item.ID, models.MenuItemUpdateRequest{Price: &price}, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = menus.Delete(ctx, vendorB, item.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	stored, err := env.repos.Menus.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), stored.Price)

	_, err = menus.Update(ctx, vendorA, "missing", models.MenuItemUpdateRequest{Price: &price}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMenuUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vendorID := env.verified(t, models.RoleVendor, "v@x.com", "0211111111")
	menus := newMenuService(env)

	item, err := menus.Create(ctx, vendorID, menuRequest("Laksa", 1800), nil)
	require.NoError(t, err)

	price := int64(1900)
	off := false
	ingredients := []string{"noodles"}
	updated, err := menus.Update(ctx, vendorID, item.ID, models.MenuItemUpdateRequest{
		Price: &price, Available: &off, Ingredients: &ingredients,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1900), updated.Price)
	assert.False(t, updated.Available)
	assert.Equal(t, "Laksa", updated.Name)
	assert.Equal(t, models.StringList{"noodles"}, updated.Ingredients)

	public, err := menus.PublicMenu(ctx, vendorID)
	require.NoError(t, err)
	assert.Empty(t, public)

	deleted, err := menus.Delete(ctx, vendorID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, deleted.ID)

	_, err = menus.Delete(ctx, vendorID, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMenuUpdateReplacesImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vendorID := env.verified(t, models.RoleVendor, "v@x.com", "0211111111")
	menus := newMenuService(env)

	item, err := menus.Create(ctx, vendorID, menuRequest("Laksa", 1800), pngBytes())
	require.NoError(t, err)

	updated, err := menus.Update(ctx, vendorID, item.ID, models.MenuItemUpdateRequest{}, pngBytes())
	require.NoError(t, err)
	assert.Equal(t, "/uploads/menus/img2.jpg", updated.Image)
	assert.Equal(t, map[string]bool{"/uploads/menus/img2.jpg": true}, env.images.stored)

	env.images.err = errors.New("disk full")
	_, err = menus.Update(ctx, vendorID, item.ID, models.MenuItemUpdateRequest{}, pngBytes())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadRequest)

	stored, err := env.repos.Menus.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/menus/img2.jpg", stored.Image)
}

func TestVendorsListsVerifiedOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifiedID := env.verified(t, models.RoleVendor, "a@x.com", "0211111111")

	vendors := env.accounts(models.RoleVendor)
	pending, err := vendors.Register(ctx, models.RegisterRequest{
		Name: "Pending", Email: "p@x.com", Password: "secret1", Phone: "0212222222",
	}, nil)
	require.NoError(t, err)
	vendors.Wait()

	menus := newMenuService(env)
	list, err := menus.Vendors(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, verifiedID, list[0].ID)

	_, err = menus.PublicMenu(ctx, pending.Account.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
