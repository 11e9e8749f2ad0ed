package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigdesk/backend/internal/models"
)

type WorkRequestRepo struct {
	pool *pgxpool.Pool
}

func NewWorkRequestRepo(pool *pgxpool.Pool) *WorkRequestRepo {
	return &WorkRequestRepo{pool: pool}
}

func (r *WorkRequestRepo) Create(ctx context.Context, wr *models.WorkRequest) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO work_requests (id, requester_id, kind, title, description, status, response_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING created_at, updated_at
	`, wr.ID, wr.RequesterID, wr.Kind, wr.Title, wr.Description, wr.Status).Scan(&wr.CreatedAt, &wr.UpdatedAt)
}

func (r *WorkRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkRequest, error) {
	var wr models.WorkRequest
	err := r.pool.QueryRow(ctx, `
		SELECT id, requester_id, kind, title, description, status, response_count, created_at, updated_at
		FROM work_requests WHERE id = $1
	`, id).Scan(&wr.ID, &wr.RequesterID, &wr.Kind, &wr.Title, &wr.Description, &wr.Status, &wr.ResponseCount, &wr.CreatedAt, &wr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wr, nil
}

// AcceptIf flips the request open -> accepted. Returns false when the request
// was not open, i.e. a concurrent acceptance already won.
func (r *WorkRequestRepo) AcceptIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE work_requests SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, models.RequestStatusAccepted, models.RequestStatusOpen)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *WorkRequestRepo) ListOpen(ctx context.Context) ([]*models.WorkRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, requester_id, kind, title, description, status, response_count, created_at, updated_at
		FROM work_requests WHERE status = $1 ORDER BY created_at DESC
	`, models.RequestStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WorkRequest
	for rows.Next() {
		var wr models.WorkRequest
		if err := rows.Scan(&wr.ID, &wr.RequesterID, &wr.Kind, &wr.Title, &wr.Description, &wr.Status, &wr.ResponseCount, &wr.CreatedAt, &wr.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &wr)
	}
	return list, rows.Err()
}

func (r *WorkRequestRepo) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*models.WorkRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, requester_id, kind, title, description, status, response_count, created_at, updated_at
		FROM work_requests WHERE requester_id = $1 ORDER BY created_at DESC
	`, requesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WorkRequest
	for rows.Next() {
		var wr models.WorkRequest
		if err := rows.Scan(&wr.ID, &wr.RequesterID, &wr.Kind, &wr.Title, &wr.Description, &wr.Status, &wr.ResponseCount, &wr.CreatedAt, &wr.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &wr)
	}
	return list, rows.Err()
}
