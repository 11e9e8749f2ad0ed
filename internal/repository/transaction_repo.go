package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigdesk/backend/internal/models"
)

const txColumns = `id, order_id, milestone_id, payee_id, amount_cents, platform_fee_cents, type, status, reference, created_at`

// TransactionRepo writes and folds the append-only ledger. Entries are never
// updated or deleted.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, order_id, milestone_id, payee_id, amount_cents, platform_fee_cents, type, status, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, t.ID, t.OrderID, t.MilestoneID, t.PayeeID, t.AmountCents, t.PlatformFeeCents, t.Type, t.Status, t.Reference).Scan(&t.CreatedAt)
}

// HasPayout reports whether an order-level payout already exists. Detection is
// by (order_id, type) with no milestone, never by amount.
func (r *TransactionRepo) HasPayout(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE order_id = $1 AND type = $2 AND milestone_id IS NULL)
	`, orderID, models.TxTypePayout).Scan(&exists)
	return exists, err
}

func (r *TransactionRepo) HasPayoutForMilestone(ctx context.Context, tx pgx.Tx, milestoneID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE milestone_id = $1 AND type = $2)
	`, milestoneID, models.TxTypePayout).Scan(&exists)
	return exists, err
}

func (r *TransactionRepo) HasRefund(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE order_id = $1 AND type = $2)
	`, orderID, models.TxTypeRefund).Scan(&exists)
	return exists, err
}

// Payout entries carry the net earner credit in amount_cents and the retained
// platform fee in platform_fee_cents; both left escrow, so the fold subtracts
// their sum.
const balanceQuery = `
	SELECT COALESCE(SUM(CASE WHEN type = 'payment' THEN amount_cents ELSE -(amount_cents + platform_fee_cents) END), 0)
	FROM transactions WHERE order_id = $1`

// Balance folds the order's entries: payments minus payouts minus refunds.
func (r *TransactionRepo) Balance(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, balanceQuery, orderID).Scan(&balance)
	return balance, err
}

// BalanceTx is Balance inside the caller's transaction, for the non-negativity
// check that must be atomic with the insert.
func (r *TransactionRepo) BalanceTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, balanceQuery, orderID).Scan(&balance)
	return balance, err
}

func (r *TransactionRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+txColumns+` FROM transactions WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// ListByAccount returns ledger entries on orders where the account is either
// side of the deal.
func (r *TransactionRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.order_id, t.milestone_id, t.payee_id, t.amount_cents, t.platform_fee_cents, t.type, t.status, t.reference, t.created_at
		FROM transactions t
		JOIN orders o ON o.id = t.order_id
		WHERE o.payer_id = $1 OR o.earner_id = $1
		ORDER BY t.created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.OrderID, &t.MilestoneID, &t.PayeeID, &t.AmountCents, &t.PlatformFeeCents, &t.Type, &t.Status, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
