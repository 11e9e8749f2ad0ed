package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigdesk/backend/internal/models"
)

// EscrowTxRepo is the minimal ledger repository interface for escrow
// bookkeeping.
type EscrowTxRepo interface {
	Create(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	HasPayout(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error)
	HasPayoutForMilestone(ctx context.Context, tx pgx.Tx, milestoneID uuid.UUID) (bool, error)
	HasRefund(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error)
	BalanceTx(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int64, error)
}

// EscrowLedger derives per-order held balances from the transaction log and
// enforces that release operations happen at most once. All methods run inside
// the caller's transaction so the existence and balance checks are atomic with
// the insert.
type EscrowLedger struct {
	Tx     EscrowTxRepo
	Logger *slog.Logger
}

func NewEscrowLedger(txRepo EscrowTxRepo, logger *slog.Logger) *EscrowLedger {
	return &EscrowLedger{Tx: txRepo, Logger: logger}
}

// RecordPayment inserts a payment entry when checkout capture succeeds. This
// is the only operation that increases an order's held balance.
func (l *EscrowLedger) RecordPayment(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, amountCents int64, ref string) error {
	if amountCents <= 0 {
		return fmt.Errorf("%w: payment amount must be > 0", ErrInvalid)
	}
	return l.Tx.Create(ctx, tx, &models.Transaction{
		ID:          uuid.New(),
		OrderID:     orderID,
		AmountCents: amountCents,
		Type:        models.TxTypePayment,
		Status:      models.TxStatusCompleted,
		Reference:   strPtr(ref),
	})
}

// RecordPayout inserts a payout entry crediting the payee amountCents net,
// with feeCents retained by the platform. milestoneID scopes the payout to a
// single milestone slice; nil means the whole order. A second payout for the
// same scope is a conflict, detected by existence check rather than by amount.
func (l *EscrowLedger) RecordPayout(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, milestoneID *uuid.UUID, payeeID uuid.UUID, amountCents, feeCents int64, ref string) error {
	if amountCents < 0 || feeCents < 0 {
		return fmt.Errorf("%w: payout amounts must be >= 0", ErrInvalid)
	}

	if milestoneID != nil {
		exists, err := l.Tx.HasPayoutForMilestone(ctx, tx, *milestoneID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: milestone already paid out", ErrConflict)
		}
	} else {
		exists, err := l.Tx.HasPayout(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: order already paid out", ErrConflict)
		}
		refunded, err := l.Tx.HasRefund(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if refunded {
			return fmt.Errorf("%w: order already refunded", ErrConflict)
		}
	}

	balance, err := l.Tx.BalanceTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if balance < amountCents+feeCents {
		l.Logger.Error("payout would drive escrow balance negative",
			"order_id", orderID, "balance", balance, "payout", amountCents, "fee", feeCents)
		return ErrLedgerInvariant
	}

	return l.Tx.Create(ctx, tx, &models.Transaction{
		ID:               uuid.New(),
		OrderID:          orderID,
		MilestoneID:      milestoneID,
		PayeeID:          &payeeID,
		AmountCents:      amountCents,
		PlatformFeeCents: feeCents,
		Type:             models.TxTypePayout,
		Status:           models.TxStatusCompleted,
		Reference:        strPtr(ref),
	})
}

// RecordRefund inserts a refund entry returning held funds to the payer.
// Mutually exclusive with an order-level payout.
func (l *EscrowLedger) RecordRefund(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, amountCents int64, ref string) error {
	if amountCents <= 0 {
		return fmt.Errorf("%w: refund amount must be > 0", ErrInvalid)
	}

	refunded, err := l.Tx.HasRefund(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if refunded {
		return fmt.Errorf("%w: order already refunded", ErrConflict)
	}
	paid, err := l.Tx.HasPayout(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if paid {
		return fmt.Errorf("%w: order already paid out", ErrConflict)
	}

	balance, err := l.Tx.BalanceTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if balance < amountCents {
		l.Logger.Error("refund would drive escrow balance negative",
			"order_id", orderID, "balance", balance, "refund", amountCents)
		return ErrLedgerInvariant
	}

	return l.Tx.Create(ctx, tx, &models.Transaction{
		ID:          uuid.New(),
		OrderID:     orderID,
		AmountCents: amountCents,
		Type:        models.TxTypeRefund,
		Status:      models.TxStatusCompleted,
		Reference:   strPtr(ref),
	})
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
