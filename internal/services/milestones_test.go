package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/gigdesk/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type milestoneFixture struct {
	svc     *Milestones
	orders  *memOrderMachine
	items   *memMilestoneSet
	dels    *memDeliverables
	ledger  *memLedger
	gateway *mockGateway
	sink    *notifySink
}

func newMilestoneFixture() *milestoneFixture {
	orders := newMemOrderMachine()
	f := &milestoneFixture{
		orders:  orders,
		items:   newMemMilestoneSet(orders),
		dels:    &memDeliverables{},
		ledger:  &memLedger{},
		gateway: &mockGateway{},
		sink:    &notifySink{},
	}
	f.svc = &Milestones{
		Pool:         mockPool{},
		Orders:       f.orders,
		Items:        f.items,
		Deliverables: f.dels,
		Escrow:       NewEscrowLedger(f.ledger, slog.Default()),
		Gateway:      f.gateway,
		Enqueue:      f.sink.enqueue,
		Logger:       slog.Default(),
	}
	return f
}

// seedMilestoneOrder creates a funded three-milestone package order. The
// total is split evenly and the first milestone starts active.
func (f *milestoneFixture) seedMilestoneOrder(t *testing.T) (*models.Order, []*models.OrderMilestone) {
	t.Helper()
	ref := "pay_" + uuid.NewString()
	tier := "standard"
	o := &models.Order{
		ID:               uuid.New(),
		PayerID:          uuid.New(),
		EarnerID:         uuid.New(),
		Type:             models.OrderTypePackage,
		PackageTier:      &tier,
		Title:            "Brand identity kit",
		AmountCents:      12000,
		Currency:         "USD",
		PlatformFeeCents: 1200,
		Status:           models.OrderStatusActive,
		RevisionLimit:    1,
		EscrowStatus:     models.EscrowHeld,
		PaymentRef:       &ref,
	}
	f.orders.m[o.ID] = o

	var ms []*models.OrderMilestone
	for i := 1; i <= 3; i++ {
		status := models.MilestoneStatusPending
		if i == 1 {
			status = models.MilestoneStatusActive
		}
		m := &models.OrderMilestone{
			ID:          uuid.New(),
			OrderID:     o.ID,
			Position:    i,
			Title:       "Phase " + string(rune('0'+i)),
			AmountCents: 4000,
			FeeCents:    400,
			Status:      status,
		}
		f.items.m[m.ID] = m
		ms = append(ms, m)
	}

	if err := f.svc.Escrow.RecordPayment(context.Background(), noopTx{}, o.ID, o.AmountCents, ref); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return o, ms
}

func (f *milestoneFixture) deliver(t *testing.T, m *models.OrderMilestone, earnerID uuid.UUID) {
	t.Helper()
	if _, err := f.svc.Deliver(context.Background(), m.ID, earnerID, "done", nil); err != nil {
		t.Fatalf("deliver milestone %d: %v", m.Position, err)
	}
}

// =====================================================================
// Deliver
// =====================================================================

func TestMilestoneDeliver_MovesActiveToDelivered(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)

	d, err := f.svc.Deliver(context.Background(), ms[0].ID, o.EarnerID, "phase one done", []string{"s3://bucket/p1.zip"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got := f.items.m[ms[0].ID].Status; got != models.MilestoneStatusDelivered {
		t.Errorf("milestone status = %s, want delivered", got)
	}
	if d.MilestoneID == nil || *d.MilestoneID != ms[0].ID {
		t.Error("deliverable is not scoped to the milestone")
	}
	if len(f.sink.byType(models.NotifyMilestoneDelivered)) != 1 {
		t.Error("payer was not notified")
	}
}

func TestMilestoneDeliver_PendingMilestoneConflicts(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)

	_, err := f.svc.Deliver(context.Background(), ms[1].ID, o.EarnerID, "out of order", nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMilestoneDeliver_OnlyEarner(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)

	_, err := f.svc.Deliver(context.Background(), ms[0].ID, o.PayerID, "nope", nil)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestMilestoneDeliver_UnknownMilestone(t *testing.T) {
	f := newMilestoneFixture()

	_, err := f.svc.Deliver(context.Background(), uuid.New(), uuid.New(), "ghost", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// =====================================================================
// RequestRevision
// =====================================================================

// Milestone revisions draw on the parent order's shared budget.
func TestMilestoneRevision_SpendsSharedOrderBudget(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t) // order limit 1
	f.deliver(t, ms[0], o.EarnerID)

	if err := f.svc.RequestRevision(context.Background(), ms[0].ID, o.PayerID, "wrong palette"); err != nil {
		t.Fatalf("first revision: %v", err)
	}
	if got := f.items.m[ms[0].ID].Status; got != models.MilestoneStatusRevision {
		t.Errorf("milestone status = %s, want revision", got)
	}
	if got := f.orders.m[o.ID].RevisionsUsed; got != 1 {
		t.Errorf("order revisions used = %d, want 1", got)
	}

	// Budget is gone; a revision on a later milestone must fail.
	f.deliver(t, ms[0], o.EarnerID)
	if err := f.svc.Approve(context.Background(), ms[0].ID, o.PayerID); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	f.deliver(t, ms[1], o.EarnerID)
	err := f.svc.RequestRevision(context.Background(), ms[1].ID, o.PayerID, "one more round")
	if !errors.Is(err, ErrRevisionsExhausted) {
		t.Fatalf("expected ErrRevisionsExhausted, got %v", err)
	}
}

func TestMilestoneRevision_RequiresDelivered(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)

	err := f.svc.RequestRevision(context.Background(), ms[0].ID, o.PayerID, "too soon")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMilestoneRevision_OnlyPayer(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)
	f.deliver(t, ms[0], o.EarnerID)

	err := f.svc.RequestRevision(context.Background(), ms[0].ID, o.EarnerID, "self-serve")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// A dispute freezes the whole order, milestones included. Revisions on a
// frozen order must not flip the milestone or spend budget.
func TestMilestoneRevision_DisputedOrderConflicts(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)
	f.deliver(t, ms[0], o.EarnerID)
	f.orders.m[o.ID].Status = models.OrderStatusDisputed

	err := f.svc.RequestRevision(context.Background(), ms[0].ID, o.PayerID, "still want changes")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := f.items.m[ms[0].ID].Status; got != models.MilestoneStatusDelivered {
		t.Errorf("milestone status = %s, want delivered untouched", got)
	}
	if got := f.orders.m[o.ID].RevisionsUsed; got != 0 {
		t.Errorf("order revisions used = %d, want 0", got)
	}
}

func TestMilestoneRevision_CancelledOrderConflicts(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)
	f.deliver(t, ms[0], o.EarnerID)
	f.orders.m[o.ID].Status = models.OrderStatusCancelled

	err := f.svc.RequestRevision(context.Background(), ms[0].ID, o.PayerID, "too late")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := f.items.m[ms[0].ID].Status; got != models.MilestoneStatusDelivered {
		t.Errorf("milestone status = %s, want delivered untouched", got)
	}
	if got := f.orders.m[o.ID].RevisionsUsed; got != 0 {
		t.Errorf("order revisions used = %d, want 0", got)
	}
}

// =====================================================================
// Approve
// =====================================================================

func TestMilestoneApprove_ReleasesSliceAndActivatesNext(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)
	f.deliver(t, ms[0], o.EarnerID)

	if err := f.svc.Approve(context.Background(), ms[0].ID, o.PayerID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got := f.items.m[ms[0].ID].Status; got != models.MilestoneStatusApproved {
		t.Errorf("first milestone = %s, want approved", got)
	}
	if got := f.items.m[ms[1].ID].Status; got != models.MilestoneStatusActive {
		t.Errorf("second milestone = %s, want active", got)
	}
	if got := f.orders.m[o.ID].Status; got != models.OrderStatusActive {
		t.Errorf("order = %s, want still active", got)
	}
	if f.gateway.releases != 1 {
		t.Errorf("gateway releases = %d, want 1", f.gateway.releases)
	}

	// The slice left escrow; the rest stays held.
	balance, _ := f.ledger.BalanceTx(context.Background(), noopTx{}, o.ID)
	if balance != 8000 {
		t.Errorf("escrow balance = %d, want 8000", balance)
	}
	payouts := 0
	for _, tx := range f.ledger.entries {
		if tx.Type == models.TxTypePayout {
			payouts++
			if tx.MilestoneID == nil || *tx.MilestoneID != ms[0].ID {
				t.Error("payout is not tagged with the milestone")
			}
			if tx.AmountCents != 3600 || tx.PlatformFeeCents != 400 {
				t.Errorf("payout = %d net + %d fee, want 3600 + 400", tx.AmountCents, tx.PlatformFeeCents)
			}
		}
	}
	if payouts != 1 {
		t.Errorf("payout entries = %d, want 1", payouts)
	}
	if len(f.sink.byType(models.NotifyMilestoneApproved)) != 1 {
		t.Error("earner was not notified")
	}
}

func TestMilestoneApprove_AtMostOncePerMilestone(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)
	f.deliver(t, ms[0], o.EarnerID)

	if err := f.svc.Approve(context.Background(), ms[0].ID, o.PayerID); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	err := f.svc.Approve(context.Background(), ms[0].ID, o.PayerID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second approve: expected ErrConflict, got %v", err)
	}
	if f.gateway.releases != 1 {
		t.Errorf("gateway releases = %d, want exactly 1", f.gateway.releases)
	}
}

func TestMilestoneApprove_RequiresDelivered(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)

	err := f.svc.Approve(context.Background(), ms[0].ID, o.PayerID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if f.gateway.releases != 0 {
		t.Errorf("gateway releases = %d, want 0", f.gateway.releases)
	}
}

func TestMilestoneApprove_OnlyPayer(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)
	f.deliver(t, ms[0], o.EarnerID)

	err := f.svc.Approve(context.Background(), ms[0].ID, o.EarnerID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

// Approving every milestone completes the parent order and drains escrow.
func TestMilestoneApprove_LastApprovalCompletesOrder(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)
	ctx := context.Background()

	for _, m := range ms {
		f.deliver(t, m, o.EarnerID)
		if err := f.svc.Approve(ctx, m.ID, o.PayerID); err != nil {
			t.Fatalf("approve milestone %d: %v", m.Position, err)
		}
	}

	got := f.orders.m[o.ID]
	if got.Status != models.OrderStatusCompleted {
		t.Errorf("order = %s, want completed", got.Status)
	}
	if got.EscrowStatus != models.EscrowReleased {
		t.Errorf("escrow = %s, want released", got.EscrowStatus)
	}
	if f.gateway.releases != 3 {
		t.Errorf("gateway releases = %d, want 3", f.gateway.releases)
	}
	balance, _ := f.ledger.BalanceTx(ctx, noopTx{}, o.ID)
	if balance != 0 {
		t.Errorf("final escrow balance = %d, want 0", balance)
	}
	if len(f.sink.byType(models.NotifyOrderCompleted)) != 1 {
		t.Error("completion was not announced")
	}
	if len(f.sink.byType(models.NotifyMilestoneApproved)) != 2 {
		t.Error("intermediate approvals were not announced")
	}
}

func TestMilestoneApprove_ClosedOrderConflicts(t *testing.T) {
	f := newMilestoneFixture()
	o, ms := f.seedMilestoneOrder(t)
	f.deliver(t, ms[0], o.EarnerID)
	f.orders.m[o.ID].Status = models.OrderStatusDisputed

	err := f.svc.Approve(context.Background(), ms[0].ID, o.PayerID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if f.gateway.releases != 0 {
		t.Errorf("gateway releases = %d, want 0", f.gateway.releases)
	}
}
