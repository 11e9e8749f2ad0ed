package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigdesk/backend/internal/models"
)

const orderColumns = `id, payer_id, earner_id, type, package_tier, title, amount_cents, currency,
	platform_fee_cents, status, revisions_used, revision_limit, revision_note, escrow_status, payment_ref,
	delivery_deadline, completed_at, created_at, updated_at`

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func (r *OrderRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	return tx.QueryRow(ctx, `
		INSERT INTO orders (id, payer_id, earner_id, type, package_tier, title, amount_cents, currency,
			platform_fee_cents, status, revisions_used, revision_limit, escrow_status, payment_ref, delivery_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`, o.ID, o.PayerID, o.EarnerID, o.Type, o.PackageTier, o.Title, o.AmountCents, o.Currency,
		o.PlatformFeeCents, o.Status, o.RevisionsUsed, o.RevisionLimit, o.EscrowStatus, o.PaymentRef,
		o.DeliveryDeadline).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.PayerID, &o.EarnerID, &o.Type, &o.PackageTier, &o.Title, &o.AmountCents,
		&o.Currency, &o.PlatformFeeCents, &o.Status, &o.RevisionsUsed, &o.RevisionLimit, &o.RevisionNote,
		&o.EscrowStatus, &o.PaymentRef, &o.DeliveryDeadline, &o.CompletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *OrderRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE payer_id = $1 OR earner_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// ListDeliveredBefore returns ids of orders sitting in delivered since before
// the cutoff. Consumed by the auto-complete sweep.
func (r *OrderRepo) ListDeliveredBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM orders WHERE status = $1 AND updated_at < $2
	`, models.OrderStatusDelivered, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Every transition below is a conditional update: the status guard is part of
// the same statement as the write, so two racing callers cannot both succeed.
// A false return means the guard failed.

func (r *OrderRepo) ActivateIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, deadline *time.Time) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, delivery_deadline = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, models.OrderStatusActive, deadline, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *OrderRepo) DeliverIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, id, models.OrderStatusDelivered, []string{models.OrderStatusActive, models.OrderStatusRevision})
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// RevisionIf increments revisions_used only while it is still under the
// limit, inside the same conditional update as the status flip.
func (r *OrderRepo) RevisionIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, note string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, revisions_used = revisions_used + 1, revision_note = $3, updated_at = now()
		WHERE id = $1 AND status = $4 AND revisions_used < revision_limit
	`, id, models.OrderStatusRevision, note, models.OrderStatusDelivered)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ConsumeRevisionIf spends one unit of the order's revision budget without
// touching order status. Used by milestone-scoped revision requests.
func (r *OrderRepo) ConsumeRevisionIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, note string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET revisions_used = revisions_used + 1, revision_note = $2, updated_at = now()
		WHERE id = $1 AND revisions_used < revision_limit
	`, id, note)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *OrderRepo) CompleteIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []string) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, escrow_status = $3, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = ANY($4) AND escrow_status = $5
	`, id, models.OrderStatusCompleted, models.EscrowReleased, from, models.EscrowHeld)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *OrderRepo) CancelIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, escrow_status = $3, updated_at = now()
		WHERE id = $1 AND status <> ALL($4) AND escrow_status = $5
	`, id, models.OrderStatusCancelled, models.EscrowRefunded,
		[]string{models.OrderStatusCompleted, models.OrderStatusCancelled, models.OrderStatusDisputed},
		models.EscrowHeld)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// DisputeIf freezes the order; escrow stays held pending arbitration.
func (r *OrderRepo) DisputeIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status <> ALL($3)
	`, id, models.OrderStatusDisputed,
		[]string{models.OrderStatusCompleted, models.OrderStatusCancelled, models.OrderStatusDisputed})
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
