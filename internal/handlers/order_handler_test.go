package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigdesk/backend/internal/models"
	"github.com/gigdesk/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type fakeOrders struct {
	byID map[uuid.UUID]*models.Order
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byID: make(map[uuid.UUID]*models.Order)}
}

func (f *fakeOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeOrders) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range f.byID {
		if o.PayerID == accountID || o.EarnerID == accountID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeDeliverables struct{ list []*models.Deliverable }

func (f *fakeDeliverables) ListByOrder(context.Context, uuid.UUID) ([]*models.Deliverable, error) {
	return f.list, nil
}

type fakeMilestones struct{ list []*models.OrderMilestone }

func (f *fakeMilestones) ListByOrder(context.Context, uuid.UUID) ([]*models.OrderMilestone, error) {
	return f.list, nil
}

type fakeTransactions struct{ list []*models.Transaction }

func (f *fakeTransactions) ListByOrder(context.Context, uuid.UUID) ([]*models.Transaction, error) {
	return f.list, nil
}

type fakeCheckout struct {
	in    services.CheckoutPackageInput
	order *models.Order
	err   error
}

func (f *fakeCheckout) CheckoutPackage(_ context.Context, in services.CheckoutPackageInput) (*models.Order, error) {
	f.in = in
	return f.order, f.err
}

type fakeLifecycle struct {
	deliverable *models.Deliverable
	err         error
	ops         []string
}

func (f *fakeLifecycle) Deliver(_ context.Context, _, _ uuid.UUID, _ string, _ []string) (*models.Deliverable, error) {
	f.ops = append(f.ops, "deliver")
	return f.deliverable, f.err
}

func (f *fakeLifecycle) RequestRevision(context.Context, uuid.UUID, uuid.UUID, string) error {
	f.ops = append(f.ops, "revision")
	return f.err
}

func (f *fakeLifecycle) Complete(context.Context, uuid.UUID, uuid.UUID) error {
	f.ops = append(f.ops, "complete")
	return f.err
}

func (f *fakeLifecycle) Cancel(context.Context, uuid.UUID, uuid.UUID) error {
	f.ops = append(f.ops, "cancel")
	return f.err
}

func (f *fakeLifecycle) Dispute(context.Context, uuid.UUID, uuid.UUID) error {
	f.ops = append(f.ops, "dispute")
	return f.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type orderHandlerFixture struct {
	h         *OrderHandler
	orders    *fakeOrders
	checkout  *fakeCheckout
	lifecycle *fakeLifecycle
}

func newOrderHandlerFixture() *orderHandlerFixture {
	f := &orderHandlerFixture{
		orders:    newFakeOrders(),
		checkout:  &fakeCheckout{},
		lifecycle: &fakeLifecycle{},
	}
	f.h = &OrderHandler{
		Orders:       f.orders,
		Deliverables: &fakeDeliverables{},
		Milestones:   &fakeMilestones{},
		Transactions: &fakeTransactions{},
		Checkout:     f.checkout,
		Lifecycle:    f.lifecycle,
		Logger:       slog.Default(),
	}
	return f
}

func (f *orderHandlerFixture) seedOrder(payer, earner *models.Account) *models.Order {
	o := &models.Order{
		ID:       uuid.New(),
		PayerID:  payer.ID,
		EarnerID: earner.ID,
		Type:     models.OrderTypeProject,
		Title:    "Landing page",
		Status:   models.OrderStatusActive,
	}
	f.orders.byID[o.ID] = o
	return o
}

func orderRequest(method, target, body string, acc *models.Account, orderID uuid.UUID) *http.Request {
	req := authedRequest(method, target, body, acc)
	req.SetPathValue("id", orderID.String())
	return req
}

// =====================================================================
// CheckoutPackage
// =====================================================================

func TestCheckoutPackage_Created(t *testing.T) {
	f := newOrderHandlerFixture()
	acc := clientAcc()
	freelancer := freelancerAcc()
	f.checkout.order = &models.Order{ID: uuid.New(), PayerID: acc.ID, Status: models.OrderStatusActive}

	body := fmt.Sprintf(`{
		"freelancer_id": %q,
		"tier": "standard",
		"title": "Brand kit",
		"amount_cents": 12000,
		"currency": "USD",
		"revision_limit": 1,
		"milestones": [
			{"title": "Phase 1", "amount_cents": 6000},
			{"title": "Phase 2", "amount_cents": 6000}
		]
	}`, freelancer.ID)
	rr := httptest.NewRecorder()
	f.h.CheckoutPackage(rr, authedRequest(http.MethodPost, "/v1/orders/checkout", body, acc))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	in := f.checkout.in
	if in.PayerID != acc.ID || in.EarnerID != freelancer.ID {
		t.Error("parties not passed through")
	}
	if len(in.Milestones) != 2 || in.Milestones[0].AmountCents != 6000 {
		t.Error("milestone plan not passed through")
	}
}

func TestCheckoutPackage_FreelancersForbidden(t *testing.T) {
	f := newOrderHandlerFixture()

	rr := httptest.NewRecorder()
	f.h.CheckoutPackage(rr, authedRequest(http.MethodPost, "/v1/orders/checkout",
		`{"freelancer_id":"x"}`, freelancerAcc()))
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestCheckoutPackage_BadFreelancerID(t *testing.T) {
	f := newOrderHandlerFixture()

	rr := httptest.NewRecorder()
	f.h.CheckoutPackage(rr, authedRequest(http.MethodPost, "/v1/orders/checkout",
		`{"freelancer_id":"not-a-uuid","amount_cents":5000}`, clientAcc()))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

// =====================================================================
// GetOrder / list endpoints
// =====================================================================

func TestGetOrder_PartiesOnly(t *testing.T) {
	f := newOrderHandlerFixture()
	payer, earner := clientAcc(), freelancerAcc()
	o := f.seedOrder(payer, earner)

	for _, acc := range []*models.Account{payer, earner} {
		rr := httptest.NewRecorder()
		f.h.GetOrder(rr, orderRequest(http.MethodGet, "/v1/orders/x", "", acc, o.ID))
		if rr.Code != http.StatusOK {
			t.Errorf("party %s: status = %d, want 200", acc.Role, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	f.h.GetOrder(rr, orderRequest(http.MethodGet, "/v1/orders/x", "", clientAcc(), o.ID))
	if rr.Code != http.StatusForbidden {
		t.Errorf("stranger: status = %d, want 403", rr.Code)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newOrderHandlerFixture()

	rr := httptest.NewRecorder()
	f.h.GetOrder(rr, orderRequest(http.MethodGet, "/v1/orders/x", "", clientAcc(), uuid.New()))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestListOrders_EmptyIsAnArray(t *testing.T) {
	f := newOrderHandlerFixture()

	rr := httptest.NewRecorder()
	f.h.ListOrders(rr, authedRequest(http.MethodGet, "/v1/orders", "", clientAcc()))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestListTransactions_PartyGate(t *testing.T) {
	f := newOrderHandlerFixture()
	payer, earner := clientAcc(), freelancerAcc()
	o := f.seedOrder(payer, earner)

	rr := httptest.NewRecorder()
	f.h.ListTransactions(rr, orderRequest(http.MethodGet, "/v1/orders/x/transactions", "", freelancerAcc(), o.ID))
	if rr.Code != http.StatusForbidden {
		t.Errorf("stranger: status = %d, want 403", rr.Code)
	}

	rr = httptest.NewRecorder()
	f.h.ListTransactions(rr, orderRequest(http.MethodGet, "/v1/orders/x/transactions", "", earner, o.ID))
	if rr.Code != http.StatusOK {
		t.Errorf("earner: status = %d, want 200", rr.Code)
	}
}

// =====================================================================
// Deliver / RequestRevision / transitions
// =====================================================================

func TestDeliver_ReturnsDeliverable(t *testing.T) {
	f := newOrderHandlerFixture()
	earner := freelancerAcc()
	f.lifecycle.deliverable = &models.Deliverable{ID: uuid.New(), Message: "v1"}

	rr := httptest.NewRecorder()
	f.h.Deliver(rr, orderRequest(http.MethodPost, "/v1/orders/x/deliver",
		`{"message":"v1","file_refs":["s3://bucket/v1.zip"]}`, earner, uuid.New()))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var got models.Deliverable
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != f.lifecycle.deliverable.ID {
		t.Error("deliverable not returned")
	}
}

// Exhausting the revision budget surfaces a machine-readable code so the
// client UI can distinguish it from a plain state conflict.
func TestRequestRevision_ExhaustedCarriesCode(t *testing.T) {
	f := newOrderHandlerFixture()
	f.lifecycle.err = services.ErrRevisionsExhausted

	rr := httptest.NewRecorder()
	f.h.RequestRevision(rr, orderRequest(http.MethodPost, "/v1/orders/x/revision",
		`{"note":"one more pass"}`, clientAcc(), uuid.New()))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "revisions_exhausted" {
		t.Errorf("code = %q, want revisions_exhausted", body["code"])
	}
}

func TestTransitions_ReportNewStatus(t *testing.T) {
	cases := []struct {
		name string
		call func(f *orderHandlerFixture, rr *httptest.ResponseRecorder, req *http.Request)
		want string
	}{
		{"complete", func(f *orderHandlerFixture, rr *httptest.ResponseRecorder, req *http.Request) {
			f.h.Complete(rr, req)
		}, models.OrderStatusCompleted},
		{"cancel", func(f *orderHandlerFixture, rr *httptest.ResponseRecorder, req *http.Request) {
			f.h.Cancel(rr, req)
		}, models.OrderStatusCancelled},
		{"dispute", func(f *orderHandlerFixture, rr *httptest.ResponseRecorder, req *http.Request) {
			f.h.Dispute(rr, req)
		}, models.OrderStatusDisputed},
	}
	for _, c := range cases {
		f := newOrderHandlerFixture()
		rr := httptest.NewRecorder()
		c.call(f, rr, orderRequest(http.MethodPost, "/v1/orders/x/"+c.name, "", clientAcc(), uuid.New()))

		if rr.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", c.name, rr.Code)
			continue
		}
		var body map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s decode: %v", c.name, err)
		}
		if body["status"] != c.want {
			t.Errorf("%s: status field = %q, want %q", c.name, body["status"], c.want)
		}
	}
}

func TestTransitions_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: order", services.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: not a party", services.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: order is not delivered", services.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: release: boom", services.ErrUpstream), http.StatusBadGateway},
	}
	for _, c := range cases {
		f := newOrderHandlerFixture()
		f.lifecycle.err = c.err

		rr := httptest.NewRecorder()
		f.h.Complete(rr, orderRequest(http.MethodPost, "/v1/orders/x/complete", "", clientAcc(), uuid.New()))
		if rr.Code != c.want {
			t.Errorf("%v: status = %d, want %d", c.err, rr.Code, c.want)
		}
	}
}
