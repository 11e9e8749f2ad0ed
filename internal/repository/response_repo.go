package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigdesk/backend/internal/models"
)

type ResponseRepo struct {
	pool *pgxpool.Pool
}

func NewResponseRepo(pool *pgxpool.Pool) *ResponseRepo {
	return &ResponseRepo{pool: pool}
}

// Create inserts the response and bumps the parent request's response_count in
// the same transaction. The count bump is conditional on the request still
// being open, so it doubles as the guard; returns false when the request has
// already been accepted or closed.
func (r *ResponseRepo) Create(ctx context.Context, resp *models.Response) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE work_requests SET response_count = response_count + 1, updated_at = now()
		WHERE id = $1 AND status = $2
	`, resp.RequestID, models.RequestStatusOpen)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO responses (id, request_id, responder_id, amount_cents, currency, estimated_days, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, resp.ID, resp.RequestID, resp.ResponderID, resp.AmountCents, resp.Currency, resp.EstimatedDays, resp.Message, resp.Status).Scan(&resp.CreatedAt)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *ResponseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Response, error) {
	var resp models.Response
	err := r.pool.QueryRow(ctx, `
		SELECT id, request_id, responder_id, amount_cents, currency, estimated_days, message, status, created_at
		FROM responses WHERE id = $1
	`, id).Scan(&resp.ID, &resp.RequestID, &resp.ResponderID, &resp.AmountCents, &resp.Currency, &resp.EstimatedDays, &resp.Message, &resp.Status, &resp.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *ResponseRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Response, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, request_id, responder_id, amount_cents, currency, estimated_days, message, status, created_at
		FROM responses WHERE request_id = $1 ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Response
	for rows.Next() {
		var resp models.Response
		if err := rows.Scan(&resp.ID, &resp.RequestID, &resp.ResponderID, &resp.AmountCents, &resp.Currency, &resp.EstimatedDays, &resp.Message, &resp.Status, &resp.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &resp)
	}
	return list, rows.Err()
}

// AcceptIf flips the response pending -> accepted; false means it was no
// longer pending.
func (r *ResponseRepo) AcceptIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE responses SET status = $2 WHERE id = $1 AND status = $3
	`, id, models.ResponseStatusAccepted, models.ResponseStatusPending)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// RejectSiblings marks every other pending response on the request rejected
// and returns the responder ids so the caller can notify them.
func (r *ResponseRepo) RejectSiblings(ctx context.Context, tx pgx.Tx, requestID, acceptedID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `
		UPDATE responses SET status = $3
		WHERE request_id = $1 AND id <> $2 AND status = $4
		RETURNING responder_id
	`, requestID, acceptedID, models.ResponseStatusRejected, models.ResponseStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var responders []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		responders = append(responders, id)
	}
	return responders, rows.Err()
}
