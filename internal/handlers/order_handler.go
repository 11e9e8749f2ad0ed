package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigdesk/backend/internal/middleware"
	"github.com/gigdesk/backend/internal/models"
	"github.com/gigdesk/backend/internal/services"
)

// OrderRepoForHandler is the subset of the order repository needed by the
// handler.
type OrderRepoForHandler interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Order, error)
}

// DeliverableLister lists an order's delivery records.
type DeliverableLister interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Deliverable, error)
}

// MilestoneLister lists an order's milestones.
type MilestoneLister interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.OrderMilestone, error)
}

// TransactionLister lists an order's ledger entries.
type TransactionLister interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.Transaction, error)
}

// CheckoutService creates a package order directly, without a work request.
type CheckoutService interface {
	CheckoutPackage(ctx context.Context, in services.CheckoutPackageInput) (*models.Order, error)
}

// LifecycleService is the order state machine.
type LifecycleService interface {
	Deliver(ctx context.Context, orderID, actorID uuid.UUID, message string, fileRefs []string) (*models.Deliverable, error)
	RequestRevision(ctx context.Context, orderID, actorID uuid.UUID, note string) error
	Complete(ctx context.Context, orderID, actorID uuid.UUID) error
	Cancel(ctx context.Context, orderID, actorID uuid.UUID) error
	Dispute(ctx context.Context, orderID, actorID uuid.UUID) error
}

// OrderHandler serves /v1/orders endpoints.
type OrderHandler struct {
	Orders       OrderRepoForHandler
	Deliverables DeliverableLister
	Milestones   MilestoneLister
	Transactions TransactionLister
	Checkout     CheckoutService
	Lifecycle    LifecycleService
	Logger       *slog.Logger
}

// loadOwned resolves the order and checks the caller is a party to it.
func (h *OrderHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid order id"}`, http.StatusBadRequest)
		return nil, false
	}
	o, err := h.Orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
			return nil, false
		}
		h.Logger.Error("get order", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return nil, false
	}
	if o.PayerID != acc.ID && o.EarnerID != acc.ID {
		http.Error(w, `{"error":"not a party to this order"}`, http.StatusForbidden)
		return nil, false
	}
	return o, true
}

// --- POST /v1/orders/checkout ---

type checkoutMilestone struct {
	Title       string `json:"title"`
	AmountCents int64  `json:"amount_cents"`
}

type checkoutRequest struct {
	FreelancerID  string              `json:"freelancer_id"`
	Tier          string              `json:"tier"`
	Title         string              `json:"title"`
	AmountCents   int64               `json:"amount_cents"`
	Currency      string              `json:"currency"`
	DeliveryDays  int                 `json:"delivery_days"`
	RevisionLimit int                 `json:"revision_limit"`
	PayerMethod   string              `json:"payer_method"`
	Milestones    []checkoutMilestone `json:"milestones"`
}

// CheckoutPackage handles POST /v1/orders/checkout.
// Auth -> CheckoutGuard (via middleware) -> capture escrow -> order active.
func (h *OrderHandler) CheckoutPackage(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if acc.Role != models.RoleClient {
		http.Error(w, `{"error":"only clients may checkout"}`, http.StatusForbidden)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	freelancerID, err := uuid.Parse(req.FreelancerID)
	if err != nil {
		http.Error(w, `{"error":"invalid freelancer_id"}`, http.StatusBadRequest)
		return
	}

	in := services.CheckoutPackageInput{
		PayerID:       acc.ID,
		EarnerID:      freelancerID,
		Tier:          req.Tier,
		Title:         req.Title,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		DeliveryDays:  req.DeliveryDays,
		RevisionLimit: req.RevisionLimit,
		PayerMethod:   req.PayerMethod,
	}
	for _, m := range req.Milestones {
		in.Milestones = append(in.Milestones, services.MilestoneInput{Title: m.Title, AmountCents: m.AmountCents})
	}

	order, err := h.Checkout.CheckoutPackage(r.Context(), in)
	if err != nil {
		respondError(w, h.Logger, "checkout package", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// --- GET /v1/orders ---

// ListOrders handles GET /v1/orders: every order the caller is a party to,
// on either side.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.Orders.ListByAccount(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list orders", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- GET /v1/orders/{id} ---

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// --- POST /v1/orders/{id}/deliver ---

type deliverRequest struct {
	Message  string   `json:"message"`
	FileRefs []string `json:"file_refs"`
}

func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid order id"}`, http.StatusBadRequest)
		return
	}
	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	d, err := h.Lifecycle.Deliver(r.Context(), id, acc.ID, req.Message, req.FileRefs)
	if err != nil {
		respondError(w, h.Logger, "deliver order", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// --- POST /v1/orders/{id}/revision ---

type revisionRequest struct {
	Note string `json:"note"`
}

func (h *OrderHandler) RequestRevision(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid order id"}`, http.StatusBadRequest)
		return
	}
	var req revisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Lifecycle.RequestRevision(r.Context(), id, acc.ID, req.Note); err != nil {
		respondError(w, h.Logger, "request revision", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.OrderStatusRevision})
}

// --- POST /v1/orders/{id}/complete ---

func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "complete order", h.Lifecycle.Complete, models.OrderStatusCompleted)
}

// --- POST /v1/orders/{id}/cancel ---

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel order", h.Lifecycle.Cancel, models.OrderStatusCancelled)
}

// --- POST /v1/orders/{id}/dispute ---

func (h *OrderHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "dispute order", h.Lifecycle.Dispute, models.OrderStatusDisputed)
}

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, uuid.UUID, uuid.UUID) error, status string) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid order id"}`, http.StatusBadRequest)
		return
	}
	if err := fn(r.Context(), id, acc.ID); err != nil {
		respondError(w, h.Logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// --- GET /v1/orders/{id}/deliverables ---

func (h *OrderHandler) ListDeliverables(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	list, err := h.Deliverables.ListByOrder(r.Context(), o.ID)
	if err != nil {
		h.Logger.Error("list deliverables", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Deliverable{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- GET /v1/orders/{id}/milestones ---

func (h *OrderHandler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	list, err := h.Milestones.ListByOrder(r.Context(), o.ID)
	if err != nil {
		h.Logger.Error("list milestones", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.OrderMilestone{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- GET /v1/orders/{id}/transactions ---

func (h *OrderHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	list, err := h.Transactions.ListByOrder(r.Context(), o.ID)
	if err != nil {
		h.Logger.Error("list transactions", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, list)
}
