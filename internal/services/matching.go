package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigdesk/backend/internal/gateway"
	"github.com/gigdesk/backend/internal/models"
	"github.com/gigdesk/backend/internal/notify"
)

// DefaultRevisionLimit applies to quote and project orders, whose revision
// allowance is not negotiated per tier the way package orders are.
const DefaultRevisionLimit = 1

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MatchRequestRepo is the minimal work-request interface for matching.
type MatchRequestRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkRequest, error)
	AcceptIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// MatchResponseRepo is the minimal response interface for matching.
type MatchResponseRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Response, error)
	AcceptIf(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	RejectSiblings(ctx context.Context, tx pgx.Tx, requestID, acceptedID uuid.UUID) ([]uuid.UUID, error)
}

// MatchOrderRepo creates and activates the order produced by acceptance.
type MatchOrderRepo interface {
	Create(ctx context.Context, tx pgx.Tx, o *models.Order) error
	ActivateIf(ctx context.Context, tx pgx.Tx, id uuid.UUID, deadline *time.Time) (bool, error)
}

// MatchMilestoneRepo creates the milestone plan at checkout.
type MatchMilestoneRepo interface {
	CreateBatch(ctx context.Context, tx pgx.Tx, ms []*models.OrderMilestone) error
}

// Matcher converts an accepted proposal into the one order it is entitled to:
// either a response accepted against a work request, or a direct package
// checkout. Every path captures escrow before the order exists and activates
// the order in the same atomic unit that creates it.
type Matcher struct {
	Pool       TxBeginner
	Requests   MatchRequestRepo
	Responses  MatchResponseRepo
	Orders     MatchOrderRepo
	Milestones MatchMilestoneRepo
	Escrow     *EscrowLedger
	Gateway    gateway.PaymentGateway
	Enqueue    notify.EnqueueTxFunc
	FeePct     int
	Logger     *slog.Logger
}

// AcceptResponse atomically accepts one response, rejects its pending
// siblings, closes the request, and creates the resulting order with funds
// already captured. Exactly one of N racing acceptances wins; the rest
// observe ErrConflict.
func (m *Matcher) AcceptResponse(ctx context.Context, requestID, responseID, actorID uuid.UUID, payerMethod string) (*models.Order, error) {
	wr, err := m.Requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: work request %s", ErrNotFound, requestID)
		}
		return nil, err
	}
	if wr.RequesterID != actorID {
		return nil, fmt.Errorf("%w: only the requester may accept a response", ErrForbidden)
	}
	if wr.Status != models.RequestStatusOpen {
		return nil, fmt.Errorf("%w: request is %s", ErrConflict, wr.Status)
	}

	resp, err := m.Responses.GetByID(ctx, responseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: response %s", ErrNotFound, responseID)
		}
		return nil, err
	}
	if resp.RequestID != requestID {
		return nil, fmt.Errorf("%w: response does not belong to request", ErrNotFound)
	}
	if resp.Status != models.ResponseStatusPending {
		return nil, fmt.Errorf("%w: response is %s", ErrConflict, resp.Status)
	}

	// Capture is load-bearing: without held funds there is no order.
	paymentRef, err := m.Gateway.CaptureEscrow(ctx, resp.AmountCents, resp.Currency, payerMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: capture: %v", ErrUpstream, err)
	}

	tx, err := m.Pool.Begin(ctx)
	if err != nil {
		m.voidCapture(ctx, paymentRef, resp.AmountCents)
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := m.Requests.AcceptIf(ctx, tx, requestID)
	if err != nil {
		m.voidCapture(ctx, paymentRef, resp.AmountCents)
		return nil, err
	}
	if !ok {
		m.voidCapture(ctx, paymentRef, resp.AmountCents)
		return nil, fmt.Errorf("%w: request already closed", ErrConflict)
	}

	ok, err = m.Responses.AcceptIf(ctx, tx, responseID)
	if err != nil {
		m.voidCapture(ctx, paymentRef, resp.AmountCents)
		return nil, err
	}
	if !ok {
		m.voidCapture(ctx, paymentRef, resp.AmountCents)
		return nil, fmt.Errorf("%w: response no longer pending", ErrConflict)
	}

	rejected, err := m.Responses.RejectSiblings(ctx, tx, requestID, responseID)
	if err != nil {
		m.voidCapture(ctx, paymentRef, resp.AmountCents)
		return nil, err
	}

	orderType := models.OrderTypeQuote
	if wr.Kind == models.RequestKindProject {
		orderType = models.OrderTypeProject
	}
	order := &models.Order{
		ID:               uuid.New(),
		PayerID:          wr.RequesterID,
		EarnerID:         resp.ResponderID,
		Type:             orderType,
		Title:            wr.Title,
		AmountCents:      resp.AmountCents,
		Currency:         resp.Currency,
		PlatformFeeCents: PlatformFee(resp.AmountCents, m.FeePct),
		Status:           models.OrderStatusPending,
		RevisionLimit:    DefaultRevisionLimit,
		EscrowStatus:     models.EscrowHeld,
		PaymentRef:       &paymentRef,
	}
	if err := m.Orders.Create(ctx, tx, order); err != nil {
		m.voidCapture(ctx, paymentRef, resp.AmountCents)
		return nil, err
	}

	if err := m.Escrow.RecordPayment(ctx, tx, order.ID, order.AmountCents, paymentRef); err != nil {
		m.voidCapture(ctx, paymentRef, resp.AmountCents)
		return nil, err
	}

	// Funds are confirmed held, so the order starts its clock immediately.
	deadline := time.Now().AddDate(0, 0, resp.EstimatedDays)
	if _, err := m.Orders.ActivateIf(ctx, tx, order.ID, &deadline); err != nil {
		m.voidCapture(ctx, paymentRef, resp.AmountCents)
		return nil, err
	}
	order.Status = models.OrderStatusActive
	order.DeliveryDeadline = &deadline

	m.enqueue(ctx, tx, notify.SendNotificationArgs{
		UserID: resp.ResponderID,
		Type:   models.NotifyResponseAccepted,
		Title:  "Your proposal was accepted",
		Body:   fmt.Sprintf("Your proposal on %q was accepted. An order has been created.", wr.Title),
		Link:   "/orders/" + order.ID.String(),
	})
	for _, responderID := range rejected {
		m.enqueue(ctx, tx, notify.SendNotificationArgs{
			UserID: responderID,
			Type:   models.NotifyResponseRejected,
			Title:  "Proposal not selected",
			Body:   fmt.Sprintf("The request %q went to another freelancer.", wr.Title),
		})
	}

	if err := tx.Commit(ctx); err != nil {
		m.voidCapture(ctx, paymentRef, resp.AmountCents)
		return nil, err
	}
	return order, nil
}

// MilestoneInput is one checkpoint of a package checkout.
type MilestoneInput struct {
	Title       string
	AmountCents int64
}

type CheckoutPackageInput struct {
	PayerID       uuid.UUID
	EarnerID      uuid.UUID
	Tier          string
	Title         string
	AmountCents   int64
	Currency      string
	DeliveryDays  int
	RevisionLimit int
	PayerMethod   string
	Milestones    []MilestoneInput
}

// CheckoutPackage creates a package order directly, capturing escrow at
// checkout. When milestones are given, their amounts must sum to the order
// amount; the plan is immutable afterwards and the first milestone starts
// active.
func (m *Matcher) CheckoutPackage(ctx context.Context, in CheckoutPackageInput) (*models.Order, error) {
	if in.PayerID == in.EarnerID {
		return nil, fmt.Errorf("%w: payer and earner must differ", ErrInvalid)
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if in.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be > 0", ErrInvalid)
	}
	if in.RevisionLimit < 0 {
		return nil, fmt.Errorf("%w: revision limit must be >= 0", ErrInvalid)
	}
	var milestoneSum int64
	for _, ms := range in.Milestones {
		if ms.Title == "" {
			return nil, fmt.Errorf("%w: milestone title is required", ErrInvalid)
		}
		if ms.AmountCents <= 0 {
			return nil, fmt.Errorf("%w: milestone amount must be > 0", ErrInvalid)
		}
		milestoneSum += ms.AmountCents
	}
	if len(in.Milestones) > 0 && milestoneSum != in.AmountCents {
		return nil, fmt.Errorf("%w: milestone amounts must sum to the order amount", ErrInvalid)
	}

	paymentRef, err := m.Gateway.CaptureEscrow(ctx, in.AmountCents, in.Currency, in.PayerMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: capture: %v", ErrUpstream, err)
	}

	tx, err := m.Pool.Begin(ctx)
	if err != nil {
		m.voidCapture(ctx, paymentRef, in.AmountCents)
		return nil, err
	}
	defer tx.Rollback(ctx)

	order := &models.Order{
		ID:               uuid.New(),
		PayerID:          in.PayerID,
		EarnerID:         in.EarnerID,
		Type:             models.OrderTypePackage,
		Title:            in.Title,
		AmountCents:      in.AmountCents,
		Currency:         in.Currency,
		Status:           models.OrderStatusPending,
		RevisionLimit:    in.RevisionLimit,
		EscrowStatus:     models.EscrowHeld,
		PaymentRef:       &paymentRef,
	}
	if in.Tier != "" {
		order.PackageTier = &in.Tier
	}

	var milestones []*models.OrderMilestone
	if len(in.Milestones) > 0 {
		// Per-milestone fees, fixed at creation; the order fee is their sum so
		// the ledger closes to exactly zero after the last slice is released.
		var feeSum int64
		for i, ms := range in.Milestones {
			fee := PlatformFee(ms.AmountCents, m.FeePct)
			feeSum += fee
			status := models.MilestoneStatusPending
			if i == 0 {
				status = models.MilestoneStatusActive
			}
			milestones = append(milestones, &models.OrderMilestone{
				ID:          uuid.New(),
				OrderID:     order.ID,
				Position:    i + 1,
				Title:       ms.Title,
				AmountCents: ms.AmountCents,
				FeeCents:    fee,
				Status:      status,
			})
		}
		order.PlatformFeeCents = feeSum
	} else {
		order.PlatformFeeCents = PlatformFee(in.AmountCents, m.FeePct)
	}

	if err := m.Orders.Create(ctx, tx, order); err != nil {
		m.voidCapture(ctx, paymentRef, in.AmountCents)
		return nil, err
	}
	if len(milestones) > 0 {
		if err := m.Milestones.CreateBatch(ctx, tx, milestones); err != nil {
			m.voidCapture(ctx, paymentRef, in.AmountCents)
			return nil, err
		}
	}
	if err := m.Escrow.RecordPayment(ctx, tx, order.ID, order.AmountCents, paymentRef); err != nil {
		m.voidCapture(ctx, paymentRef, in.AmountCents)
		return nil, err
	}

	deadline := time.Now().AddDate(0, 0, in.DeliveryDays)
	if _, err := m.Orders.ActivateIf(ctx, tx, order.ID, &deadline); err != nil {
		m.voidCapture(ctx, paymentRef, in.AmountCents)
		return nil, err
	}
	order.Status = models.OrderStatusActive
	order.DeliveryDeadline = &deadline

	m.enqueue(ctx, tx, notify.SendNotificationArgs{
		UserID: in.EarnerID,
		Type:   models.NotifyResponseAccepted,
		Title:  "New order",
		Body:   fmt.Sprintf("A client purchased %q.", in.Title),
		Link:   "/orders/" + order.ID.String(),
	})

	if err := tx.Commit(ctx); err != nil {
		m.voidCapture(ctx, paymentRef, in.AmountCents)
		return nil, err
	}
	return order, nil
}

// enqueue inserts a notification job; failures are logged and never gate the
// transition.
func (m *Matcher) enqueue(ctx context.Context, tx pgx.Tx, args notify.SendNotificationArgs) {
	if m.Enqueue == nil {
		return
	}
	if err := m.Enqueue(ctx, tx, args); err != nil {
		m.Logger.Warn("enqueue notification failed", "user_id", args.UserID, "type", args.Type, "error", err)
	}
}

// voidCapture returns captured funds when the surrounding transaction cannot
// be completed. Best-effort: a failed void is logged for manual reconciliation.
func (m *Matcher) voidCapture(ctx context.Context, paymentRef string, amountCents int64) {
	if _, err := m.Gateway.RefundEscrow(ctx, paymentRef, amountCents); err != nil {
		m.Logger.Error("voiding capture failed, funds need manual reconciliation",
			"payment_ref", paymentRef, "amount", amountCents, "error", err)
	}
}
