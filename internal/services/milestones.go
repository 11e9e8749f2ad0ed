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

// MilestoneTxRepo is the milestone repository interface for the sub-ledger.
type MilestoneTxRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error)
	CountUnapproved(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int, error)
	DeliverIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	ReviseIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	ApproveIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	ActivateNext(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error)
}

// MilestoneOrderRepo is the slice of the order repository that milestone
// transitions touch.
type MilestoneOrderRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ConsumeRevisionIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, note string) (bool, error)
	CompleteIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []string) (bool, error)
}

// Milestones runs the per-milestone state machine for milestone-based orders.
// Each approval releases that milestone's slice of escrow; the last approval
// also completes the parent order.
type Milestones struct {
	Pool         TxBeginner
	Orders       MilestoneOrderRepo
	Items        MilestoneTxRepo
	Deliverables DeliverableWriter
	Escrow       *EscrowLedger
	Gateway      gateway.PaymentGateway
	Enqueue      notify.EnqueueTxFunc
	Logger       *slog.Logger
}

// load resolves the milestone and its parent order, mapping missing rows to
// ErrNotFound.
func (s *Milestones) load(ctx context.Context, milestoneID uuid.UUID) (*models.OrderMilestone, *models.Order, error) {
	m, err := s.Items.GetByID(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: milestone %s", ErrNotFound, milestoneID)
		}
		return nil, nil, err
	}
	o, err := s.Orders.GetByID(ctx, m.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: order %s", ErrNotFound, m.OrderID)
		}
		return nil, nil, err
	}
	return m, o, nil
}

// Deliver marks an active or revision milestone delivered and appends the
// deliverable, scoped to the milestone.
func (s *Milestones) Deliver(ctx context.Context, milestoneID, actorID uuid.UUID, message string, fileRefs []string) (*models.Deliverable, error) {
	m, o, err := s.load(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if o.EarnerID != actorID {
		return nil, fmt.Errorf("%w: only the freelancer may deliver", ErrForbidden)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: delivery message is required", ErrInvalid)
	}
	if o.Terminal() || o.Status == models.OrderStatusDisputed {
		return nil, fmt.Errorf("%w: order is closed", ErrConflict)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.Items.DeliverIf(ctx, tx, milestoneID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: milestone is not in a deliverable state", ErrConflict)
	}

	d := &models.Deliverable{
		ID:          uuid.New(),
		OrderID:     o.ID,
		MilestoneID: &m.ID,
		SubmitterID: actorID,
		Message:     message,
		FileRefs:    fileRefs,
	}
	if err := s.Deliverables.Create(ctx, tx, d); err != nil {
		return nil, err
	}

	s.enqueue(ctx, tx, notify.SendNotificationArgs{
		UserID: o.PayerID,
		Type:   models.NotifyMilestoneDelivered,
		Title:  "Milestone delivered",
		Body:   fmt.Sprintf("%q on %q has been delivered and is awaiting your review.", m.Title, o.Title),
		Link:   "/orders/" + o.ID.String(),
	})

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// RequestRevision sends a delivered milestone back to the freelancer. Each
// milestone revision spends one unit of the parent order's shared revision
// budget.
func (s *Milestones) RequestRevision(ctx context.Context, milestoneID, actorID uuid.UUID, note string) error {
	m, o, err := s.load(ctx, milestoneID)
	if err != nil {
		return err
	}
	if o.PayerID != actorID {
		return fmt.Errorf("%w: only the client may request a revision", ErrForbidden)
	}
	if note == "" {
		return fmt.Errorf("%w: a revision note is required", ErrInvalid)
	}
	if o.Terminal() || o.Status == models.OrderStatusDisputed {
		return fmt.Errorf("%w: order is closed", ErrConflict)
	}
	if m.Status != models.MilestoneStatusDelivered {
		return fmt.Errorf("%w: milestone is not delivered", ErrConflict)
	}
	if o.RevisionsUsed >= o.RevisionLimit {
		return ErrRevisionsExhausted
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Spend the budget first so a concurrent spender cannot push us past the
	// limit; the conditional update is the authoritative check.
	ok, err := s.Orders.ConsumeRevisionIf(ctx, tx, o.ID, note)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRevisionsExhausted
	}
	ok, err = s.Items.ReviseIf(ctx, tx, milestoneID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: milestone is not delivered", ErrConflict)
	}

	s.enqueue(ctx, tx, notify.SendNotificationArgs{
		UserID: o.EarnerID,
		Type:   models.NotifyRevisionRequested,
		Title:  "Revision requested",
		Body:   fmt.Sprintf("The client requested changes on %q: %s", m.Title, note),
		Link:   "/orders/" + o.ID.String(),
	})

	return tx.Commit(ctx)
}

// Approve releases the milestone's escrow slice to the freelancer and, when
// it was the last unapproved milestone, completes the parent order. Partial
// approvals leave the order open and escrow held for the remainder.
func (s *Milestones) Approve(ctx context.Context, milestoneID, actorID uuid.UUID) error {
	m, o, err := s.load(ctx, milestoneID)
	if err != nil {
		return err
	}
	if o.PayerID != actorID {
		return fmt.Errorf("%w: only the client may approve", ErrForbidden)
	}
	if o.Terminal() || o.Status == models.OrderStatusDisputed {
		return fmt.Errorf("%w: order is closed", ErrConflict)
	}
	if o.PaymentRef == nil {
		return fmt.Errorf("order %s has no payment ref", o.ID)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// CAS before the gateway call so a racing second approval conflicts here
	// instead of releasing the slice twice.
	ok, err := s.Items.ApproveIf(ctx, tx, milestoneID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: milestone is not delivered", ErrConflict)
	}

	net := m.AmountCents - m.FeeCents
	payoutRef, err := s.Gateway.ReleaseEscrow(ctx, *o.PaymentRef, o.EarnerID, m.AmountCents, m.FeeCents)
	if err != nil {
		return fmt.Errorf("%w: release: %v", ErrUpstream, err)
	}
	if err := s.Escrow.RecordPayout(ctx, tx, o.ID, &m.ID, o.EarnerID, net, m.FeeCents, payoutRef); err != nil {
		return err
	}

	remaining, err := s.Items.CountUnapproved(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		ok, err := s.Orders.CompleteIf(ctx, tx, o.ID, []string{
			models.OrderStatusActive, models.OrderStatusDelivered, models.OrderStatusRevision,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order cannot complete", ErrConflict)
		}
		s.enqueue(ctx, tx, notify.SendNotificationArgs{
			UserID: o.EarnerID,
			Type:   models.NotifyOrderCompleted,
			Title:  "Order completed",
			Body:   fmt.Sprintf("All milestones on %q were approved. Your final payout is on its way.", o.Title),
			Link:   "/orders/" + o.ID.String(),
		})
	} else {
		if _, err := s.Items.ActivateNext(ctx, tx, o.ID); err != nil {
			return err
		}
		s.enqueue(ctx, tx, notify.SendNotificationArgs{
			UserID: o.EarnerID,
			Type:   models.NotifyMilestoneApproved,
			Title:  "Milestone approved",
			Body:   fmt.Sprintf("%q on %q was approved and its payout released.", m.Title, o.Title),
			Link:   "/orders/" + o.ID.String(),
		})
	}

	return tx.Commit(ctx)
}

func (s *Milestones) enqueue(ctx context.Context, tx pgx.Tx, args notify.SendNotificationArgs) {
	if s.Enqueue == nil {
		return
	}
	if err := s.Enqueue(ctx, tx, args); err != nil {
		s.Logger.Warn("enqueue notification failed", "user_id", args.UserID, "type", args.Type, "error", err)
	}
}
