package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigdesk/backend/internal/models"
)

type MilestoneRepo struct {
	pool *pgxpool.Pool
}

func NewMilestoneRepo(pool *pgxpool.Pool) *MilestoneRepo {
	return &MilestoneRepo{pool: pool}
}

// CreateBatch inserts the order's milestones at order creation. Count and
// amounts are immutable afterwards.
func (r *MilestoneRepo) CreateBatch(ctx context.Context, tx pgx.Tx, ms []*models.OrderMilestone) error {
	for _, m := range ms {
		err := tx.QueryRow(ctx, `
			INSERT INTO order_milestones (id, order_id, position, title, amount_cents, fee_cents, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`, m.ID, m.OrderID, m.Position, m.Title, m.AmountCents, m.FeeCents, m.Status).Scan(&m.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *MilestoneRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error) {
	var m models.OrderMilestone
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_id, position, title, amount_cents, fee_cents, status, delivered_at, created_at
		FROM order_milestones WHERE id = $1
	`, id).Scan(&m.ID, &m.OrderID, &m.Position, &m.Title, &m.AmountCents, &m.FeeCents, &m.Status, &m.DeliveredAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MilestoneRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.OrderMilestone, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, position, title, amount_cents, fee_cents, status, delivered_at, created_at
		FROM order_milestones WHERE order_id = $1 ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.OrderMilestone
	for rows.Next() {
		var m models.OrderMilestone
		if err := rows.Scan(&m.ID, &m.OrderID, &m.Position, &m.Title, &m.AmountCents, &m.FeeCents, &m.Status, &m.DeliveredAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

func (r *MilestoneRepo) CountByOrder(ctx context.Context, orderID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_milestones WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}

// CountUnapproved counts milestones not yet approved, inside the caller's
// transaction so an approval can atomically detect "this was the last one".
func (r *MilestoneRepo) CountUnapproved(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM order_milestones WHERE order_id = $1 AND status <> $2
	`, orderID, models.MilestoneStatusApproved).Scan(&n)
	return n, err
}

// closedOrderStatuses are parent-order states that freeze the milestone
// machine. The milestone conditional updates re-check them in the same
// statement, so a dispute or cancel committing after the service's read
// still blocks the transition.
var closedOrderStatuses = []string{
	models.OrderStatusCompleted, models.OrderStatusCancelled, models.OrderStatusDisputed,
}

func (r *MilestoneRepo) DeliverIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE order_milestones m SET status = $2, delivered_at = now()
		WHERE m.id = $1 AND m.status = ANY($3)
		  AND EXISTS (SELECT 1 FROM orders o WHERE o.id = m.order_id AND o.status <> ALL($4))
	`, id, models.MilestoneStatusDelivered,
		[]string{models.MilestoneStatusActive, models.MilestoneStatusRevision},
		closedOrderStatuses)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *MilestoneRepo) ReviseIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE order_milestones m SET status = $2
		WHERE m.id = $1 AND m.status = $3
		  AND EXISTS (SELECT 1 FROM orders o WHERE o.id = m.order_id AND o.status <> ALL($4))
	`, id, models.MilestoneStatusRevision, models.MilestoneStatusDelivered, closedOrderStatuses)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *MilestoneRepo) ApproveIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE order_milestones m SET status = $2
		WHERE m.id = $1 AND m.status = $3
		  AND EXISTS (SELECT 1 FROM orders o WHERE o.id = m.order_id AND o.status <> ALL($4))
	`, id, models.MilestoneStatusApproved, models.MilestoneStatusDelivered, closedOrderStatuses)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// ActivateNext moves the lowest-position pending milestone to active.
func (r *MilestoneRepo) ActivateNext(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE order_milestones SET status = $2
		WHERE id = (
			SELECT id FROM order_milestones
			WHERE order_id = $1 AND status = $3
			ORDER BY position ASC LIMIT 1
		)
	`, orderID, models.MilestoneStatusActive, models.MilestoneStatusPending)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
