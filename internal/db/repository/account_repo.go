package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bellyrush/marketplace/internal/models"
)

// psql builds postgres statements with $n placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const accountColumns = `id, role, name, email, phone, password_hash, otp, otp_expiry, verified, image, profile, created_at, updated_at`

// AccountRepository handles account data access in postgres. All roles share
// one table; uniqueness is scoped by the role column.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// mapPQError translates driver errors into repository errors
func mapPQError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, acct *models.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES (:id, :role, :name, :email, :phone, :password_hash, :otp, :otp_expiry, :verified, :image, :profile, :created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, acct); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrDuplicate) {
			return mapped
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account of the role by ID
func (r *AccountRepository) GetByID(ctx context.Context, role models.Role, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE role = $1 AND id = $2`

	var acct models.Account
	if err := r.db.GetContext(ctx, &acct, query, role, id); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

// GetByEmail retrieves an account of the role by email
func (r *AccountRepository) GetByEmail(ctx context.Context, role models.Role, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE role = $1 AND email = $2`

	var acct models.Account
	if err := r.db.GetContext(ctx, &acct, query, role, email); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return &acct, nil
}

// List retrieves all accounts of the role, newest first
func (r *AccountRepository) List(ctx context.Context, role models.Role) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE role = $1 ORDER BY created_at DESC`

	accounts := []models.Account{}
	if err := r.db.SelectContext(ctx, &accounts, query, role); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// Update replaces the mutable columns of an account
func (r *AccountRepository) Update(ctx context.Context, acct *models.Account) error {
	query, args, err := psql.Update("accounts").
		SetMap(map[string]any{
			"name":          acct.Name,
			"email":         acct.Email,
			"phone":         acct.Phone,
			"password_hash": acct.PasswordHash,
			"otp":           acct.OTP,
			"otp_expiry":    acct.OTPExpiry,
			"verified":      acct.Verified,
			"image":         acct.Image,
			"profile":       acct.Profile,
			"updated_at":    acct.UpdatedAt,
		}).
		Where(sq.Eq{"role": acct.Role, "id": acct.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build account update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrDuplicate) {
			return mapped
		}
		return fmt.Errorf("failed to update account: %w", err)
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

// Delete removes an account and returns the removed record
func (r *AccountRepository) Delete(ctx context.Context, role models.Role, id string) (*models.Account, error) {
	query := `DELETE FROM accounts WHERE role = $1 AND id = $2 RETURNING ` + accountColumns

	var acct models.Account
	if err := r.db.GetContext(ctx, &acct, query, role, id); err != nil {
		if mapped := mapPQError(err); errors.Is(mapped, ErrNotFound) {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to delete account: %w", err)
	}
	return &acct, nil
}

// Count returns the number of accounts of the role
func (r *AccountRepository) Count(ctx context.Context, role models.Role) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM accounts WHERE role = $1`, role); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}
