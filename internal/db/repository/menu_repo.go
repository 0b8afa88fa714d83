package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/bellyrush/marketplace/internal/models"
)

const menuColumns = `id, vendor_id, name, description, category, price, ingredients, image, available, created_at, updated_at`

// MenuRepository handles menu data access
type MenuRepository struct {
	db *sqlx.DB
}

// NewMenuRepository creates a new menu repository
func NewMenuRepository(db *sqlx.DB) *MenuRepository {
	return &MenuRepository{db: db}
}

// Create inserts a menu item
func (r *MenuRepository) Create(ctx context.Context, item *models.MenuItem) error {
	query := `
		INSERT INTO menus (` + menuColumns + `)
		VALUES (:id, :vendor_id, :name, :description, :category, :price, :ingredients, :image, :available, :created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrDuplicate) {
			return mapped
		}
		return fmt.Errorf("failed to create menu item: %w", err)
	}
	return nil
}

// GetByID retrieves a menu item by ID
func (r *MenuRepository) GetByID(ctx context.Context, id string) (*models.MenuItem, error) {
	query := `SELECT ` + menuColumns + ` FROM menus WHERE id = $1`

	var item models.MenuItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get menu item: %w", err)
	}
	return &item, nil
}

// List retrieves menu items, optionally for one vendor or only available ones
func (r *MenuRepository) List(ctx context.Context, filter MenuFilter) ([]models.MenuItem, error) {
	builder := psql.Select(menuColumns).From("menus").OrderBy("category ASC", "name ASC")
	if filter.VendorID != "" {
		builder = builder.Where(sq.Eq{"vendor_id": filter.VendorID})
	}
	if filter.AvailableOnly {
		builder = builder.Where(sq.Eq{"available": true})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build menu query: %w", err)
	}

	items := []models.MenuItem{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list menu items: %w", err)
	}
	return items, nil
}

// Update replaces the mutable columns of a menu item
func (r *MenuRepository) Update(ctx context.Context, item *models.MenuItem) error {
	query, args, err := psql.Update("menus").
		SetMap(map[string]any{
			"name":        item.Name,
			"description": item.Description,
			"category":    item.Category,
			"price":       item.Price,
			"ingredients": item.Ingredients,
			"image":       item.Image,
			"available":   item.Available,
			"updated_at":  item.UpdatedAt,
		}).
		Where(sq.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build menu update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update menu item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a menu item and returns the removed record
func (r *MenuRepository) Delete(ctx context.Context, id string) (*models.MenuItem, error) {
	query := `DELETE FROM menus WHERE id = $1 RETURNING ` + menuColumns

	var item models.MenuItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to delete menu item: %w", err)
	}
	return &item, nil
}

func (r *MenuRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM menus`); err != nil {
		return 0, fmt.Errorf("failed to count menu items: %w", err)
	}
	return n, nil
}
