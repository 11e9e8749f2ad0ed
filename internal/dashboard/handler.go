package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gigdesk/backend/internal/auth"
	"github.com/gigdesk/backend/internal/models"
)

// AccountStore is the slice of the auth repository the dashboard mutates.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	Update(ctx context.Context, a *models.Account) error
}

// OrderLister lists the caller's orders, both sides.
type OrderLister interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Order, error)
}

// TransactionLister lists ledger entries for orders the caller is a party to.
type TransactionLister interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error)
}

// NotificationStore lists and acknowledges the caller's notifications.
type NotificationStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
}

type Handler struct {
	authSvc       auth.Service
	accounts      AccountStore
	orders        OrderLister
	transactions  TransactionLister
	notifications NotificationStore
	log           *slog.Logger
}

func NewHandler(
	authSvc auth.Service,
	accounts AccountStore,
	orders OrderLister,
	transactions TransactionLister,
	notifications NotificationStore,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		authSvc:       authSvc,
		accounts:      accounts,
		orders:        orders,
		transactions:  transactions,
		notifications: notifications,
		log:           log,
	}
}

func (h *Handler) accountIDFromRequest(r *http.Request) (uuid.UUID, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return uuid.Nil, fmt.Errorf("missing authorization")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, fmt.Errorf("bad authorization format")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return uuid.Nil, fmt.Errorf("empty token")
	}
	id, _, err := h.authSvc.ValidateToken(r.Context(), token)
	return id, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountIDFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	acc, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		h.log.Error("get account failed", "error", err)
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                    acc.ID,
		"email":                 acc.Email,
		"display_name":          acc.DisplayName,
		"role":                  acc.Role,
		"daily_spend_cap_cents": acc.DailySpendCapCents,
		"created_at":            acc.CreatedAt,
	})
}

// PATCH /api/v1/account/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountIDFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	acc, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	var body struct {
		DisplayName        *string `json:"display_name"`
		Email              *string `json:"email"`
		DailySpendCapCents *int64  `json:"daily_spend_cap_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if body.DisplayName != nil {
		acc.DisplayName = *body.DisplayName
	}
	if body.Email != nil {
		acc.Email = *body.Email
	}
	if body.DailySpendCapCents != nil {
		acc.DailySpendCapCents = body.DailySpendCapCents
	}
	if err := h.accounts.Update(r.Context(), acc); err != nil {
		h.log.Error("update settings failed", "error", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/v1/orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountIDFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	orders, err := h.orders.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.log.Error("list orders failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GET /api/v1/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountIDFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	entries, err := h.transactions.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.log.Error("list transactions failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /api/v1/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountIDFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.notifications.ListByUser(r.Context(), accountID)
	if err != nil {
		h.log.Error("list notifications failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/v1/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountIDFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/read")
	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	id, err := uuid.Parse(parts[len(parts)-1])
	if err != nil {
		http.Error(w, "invalid notification ID", http.StatusBadRequest)
		return
	}
	ok, err := h.notifications.MarkRead(r.Context(), id, accountID)
	if err != nil {
		h.log.Error("mark notification read failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
