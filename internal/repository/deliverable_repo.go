package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigdesk/backend/internal/models"
)

type DeliverableRepo struct {
	pool *pgxpool.Pool
}

func NewDeliverableRepo(pool *pgxpool.Pool) *DeliverableRepo {
	return &DeliverableRepo{pool: pool}
}

func (r *DeliverableRepo) Create(ctx context.Context, tx pgx.Tx, d *models.Deliverable) error {
	return tx.QueryRow(ctx, `
		INSERT INTO deliverables (id, order_id, milestone_id, submitter_id, message, file_refs)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, d.ID, d.OrderID, d.MilestoneID, d.SubmitterID, d.Message, d.FileRefs).Scan(&d.CreatedAt)
}

func (r *DeliverableRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Deliverable, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, milestone_id, submitter_id, message, file_refs, created_at
		FROM deliverables WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Deliverable
	for rows.Next() {
		var d models.Deliverable
		if err := rows.Scan(&d.ID, &d.OrderID, &d.MilestoneID, &d.SubmitterID, &d.Message, &d.FileRefs, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}
