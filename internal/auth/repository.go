package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigdesk/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.DisplayName, a.Role, a.PasswordHash).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// GetByEmail returns the account for login. Returns nil, nil if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, role, password_hash, daily_spend_cap_cents, created_at, updated_at
		FROM accounts WHERE email = $1
	`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, role, password_hash, daily_spend_cap_cents, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id))
}

// Update persists the mutable profile fields.
func (r *Repository) Update(ctx context.Context, a *models.Account) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET email = $2, display_name = $3, daily_spend_cap_cents = $4, updated_at = now()
		WHERE id = $1
	`, a.ID, a.Email, a.DisplayName, a.DailySpendCapCents)
	return err
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.Role, &a.PasswordHash,
		&a.DailySpendCapCents, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
