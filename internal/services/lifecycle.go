package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigdesk/backend/internal/gateway"
	"github.com/gigdesk/backend/internal/models"
	"github.com/gigdesk/backend/internal/notify"
)

// LifecycleOrderRepo is the order repository interface for the state machine.
// The *If methods are compare-and-set: the status guard runs in the same
// atomic statement as the write.
type LifecycleOrderRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	DeliverIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	RevisionIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, note string) (bool, error)
	CompleteIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []string) (bool, error)
	CancelIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	DisputeIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// DeliverableWriter appends delivery records.
type DeliverableWriter interface {
	Create(ctx context.Context, tx pgx.Tx, d *models.Deliverable) error
}

// MilestoneCounter reports whether an order is milestone-based.
type MilestoneCounter interface {
	CountByOrder(ctx context.Context, orderID uuid.UUID) (int, error)
}

// Lifecycle owns the canonical order state machine: which transitions exist,
// who may trigger them, and what each one does to the ledger.
type Lifecycle struct {
	Pool         TxBeginner
	Orders       LifecycleOrderRepo
	Deliverables DeliverableWriter
	Milestones   MilestoneCounter
	Escrow       *EscrowLedger
	Gateway      gateway.PaymentGateway
	Enqueue      notify.EnqueueTxFunc
	Logger       *slog.Logger
}

func (s *Lifecycle) getOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, err := s.Orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
		}
		return nil, err
	}
	return o, nil
}

// Deliver moves an active or revision order to delivered and appends the
// deliverable. Earner only; the delivery message is required. Milestone-based
// orders deliver per milestone instead.
func (s *Lifecycle) Deliver(ctx context.Context, orderID, actorID uuid.UUID, message string, fileRefs []string) (*models.Deliverable, error) {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.EarnerID != actorID {
		return nil, fmt.Errorf("%w: only the freelancer may deliver", ErrForbidden)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: delivery message is required", ErrInvalid)
	}
	n, err := s.Milestones.CountByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: milestone orders are delivered per milestone", ErrConflict)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.Orders.DeliverIf(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: order is not in a deliverable state", ErrConflict)
	}

	d := &models.Deliverable{
		ID:          uuid.New(),
		OrderID:     orderID,
		SubmitterID: actorID,
		Message:     message,
		FileRefs:    fileRefs,
	}
	if err := s.Deliverables.Create(ctx, tx, d); err != nil {
		return nil, err
	}

	s.enqueue(ctx, tx, notify.SendNotificationArgs{
		UserID: o.PayerID,
		Type:   models.NotifyOrderDelivered,
		Title:  "Order delivered",
		Body:   fmt.Sprintf("%q has been delivered and is awaiting your review.", o.Title),
		Link:   "/orders/" + o.ID.String(),
	})

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// RequestRevision moves a delivered order back to revision, spending one unit
// of the revision budget. Exceeding the budget fails with
// ErrRevisionsExhausted, never a silent clamp.
func (s *Lifecycle) RequestRevision(ctx context.Context, orderID, actorID uuid.UUID, note string) error {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.PayerID != actorID {
		return fmt.Errorf("%w: only the client may request a revision", ErrForbidden)
	}
	if note == "" {
		return fmt.Errorf("%w: a revision note is required", ErrInvalid)
	}
	if o.Status == models.OrderStatusDelivered && o.RevisionsUsed >= o.RevisionLimit {
		return ErrRevisionsExhausted
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ok, err := s.Orders.RevisionIf(ctx, tx, orderID, note)
	if err != nil {
		return err
	}
	if !ok {
		// The conditional update folds two guards; re-read to report the right one.
		cur, err := s.getOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if cur.Status == models.OrderStatusDelivered && cur.RevisionsUsed >= cur.RevisionLimit {
			return ErrRevisionsExhausted
		}
		return fmt.Errorf("%w: order is not delivered", ErrConflict)
	}

	s.enqueue(ctx, tx, notify.SendNotificationArgs{
		UserID: o.EarnerID,
		Type:   models.NotifyRevisionRequested,
		Title:  "Revision requested",
		Body:   fmt.Sprintf("The client requested changes on %q: %s", o.Title, note),
		Link:   "/orders/" + o.ID.String(),
	})

	return tx.Commit(ctx)
}

// Complete is the payer's approval of a delivered order: release escrow, pay
// out the earner minus the platform fee, and close the order.
func (s *Lifecycle) Complete(ctx context.Context, orderID, actorID uuid.UUID) error {
	return s.complete(ctx, orderID, &actorID)
}

// AutoComplete is Complete on behalf of the payer, triggered by the sweep
// when a delivered order has gone unreviewed past the timeout.
func (s *Lifecycle) AutoComplete(ctx context.Context, orderID uuid.UUID) error {
	return s.complete(ctx, orderID, nil)
}

func (s *Lifecycle) complete(ctx context.Context, orderID uuid.UUID, actorID *uuid.UUID) error {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if actorID != nil && o.PayerID != *actorID {
		return fmt.Errorf("%w: only the client may approve completion", ErrForbidden)
	}
	n, err := s.Milestones.CountByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: milestone orders complete through milestone approval", ErrConflict)
	}
	if o.PaymentRef == nil {
		return fmt.Errorf("order %s has no payment ref", orderID)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// CAS before the gateway call so a racing second completion conflicts
	// here instead of releasing twice.
	ok, err := s.Orders.CompleteIf(ctx, tx, orderID, []string{models.OrderStatusDelivered})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: order is not delivered", ErrConflict)
	}

	net := o.AmountCents - o.PlatformFeeCents
	payoutRef, err := s.Gateway.ReleaseEscrow(ctx, *o.PaymentRef, o.EarnerID, o.AmountCents, o.PlatformFeeCents)
	if err != nil {
		return fmt.Errorf("%w: release: %v", ErrUpstream, err)
	}
	if err := s.Escrow.RecordPayout(ctx, tx, orderID, nil, o.EarnerID, net, o.PlatformFeeCents, payoutRef); err != nil {
		return err
	}

	s.enqueue(ctx, tx, notify.SendNotificationArgs{
		UserID: o.EarnerID,
		Type:   models.NotifyOrderCompleted,
		Title:  "Order completed",
		Body:   fmt.Sprintf("%q was approved. Your payout is on its way.", o.Title),
		Link:   "/orders/" + o.ID.String(),
	})

	return tx.Commit(ctx)
}

// Cancel refunds whatever is still held and closes the order. Either party
// may cancel while the order is non-terminal and not disputed.
func (s *Lifecycle) Cancel(ctx context.Context, orderID, actorID uuid.UUID) error {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.PayerID != actorID && o.EarnerID != actorID {
		return fmt.Errorf("%w: not a party to this order", ErrForbidden)
	}
	if o.PaymentRef == nil {
		return fmt.Errorf("order %s has no payment ref", orderID)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ok, err := s.Orders.CancelIf(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: order cannot be cancelled", ErrConflict)
	}

	// Milestone orders may have released slices already; refund the remainder.
	held, err := s.Escrow.Tx.BalanceTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if held > 0 {
		refundRef, err := s.Gateway.RefundEscrow(ctx, *o.PaymentRef, held)
		if err != nil {
			return fmt.Errorf("%w: refund: %v", ErrUpstream, err)
		}
		if err := s.Escrow.RecordRefund(ctx, tx, orderID, held, refundRef); err != nil {
			return err
		}
	}

	counterparty := o.EarnerID
	if actorID == o.EarnerID {
		counterparty = o.PayerID
	}
	s.enqueue(ctx, tx, notify.SendNotificationArgs{
		UserID: counterparty,
		Type:   models.NotifyOrderCancelled,
		Title:  "Order cancelled",
		Body:   fmt.Sprintf("%q was cancelled and held funds were refunded.", o.Title),
		Link:   "/orders/" + o.ID.String(),
	})

	return tx.Commit(ctx)
}

// Dispute freezes a non-terminal order pending external arbitration. Escrow
// stays held; no ledger movement happens here.
func (s *Lifecycle) Dispute(ctx context.Context, orderID, actorID uuid.UUID) error {
	o, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.PayerID != actorID && o.EarnerID != actorID {
		return fmt.Errorf("%w: not a party to this order", ErrForbidden)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ok, err := s.Orders.DisputeIf(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: order cannot be disputed", ErrConflict)
	}

	counterparty := o.EarnerID
	if actorID == o.EarnerID {
		counterparty = o.PayerID
	}
	s.enqueue(ctx, tx, notify.SendNotificationArgs{
		UserID: counterparty,
		Type:   models.NotifyOrderDisputed,
		Title:  "Order disputed",
		Body:   fmt.Sprintf("%q was escalated to dispute resolution. Funds stay in escrow.", o.Title),
		Link:   "/orders/" + o.ID.String(),
	})

	return tx.Commit(ctx)
}

func (s *Lifecycle) enqueue(ctx context.Context, tx pgx.Tx, args notify.SendNotificationArgs) {
	if s.Enqueue == nil {
		return
	}
	if err := s.Enqueue(ctx, tx, args); err != nil {
		s.Logger.Warn("enqueue notification failed", "user_id", args.UserID, "type", args.Type, "error", err)
	}
}
