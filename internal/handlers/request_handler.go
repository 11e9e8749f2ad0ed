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
)

// RequestRepoForHandler is the subset of the work request repository needed
// by the handler.
type RequestRepoForHandler interface {
	Create(ctx context.Context, wr *models.WorkRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkRequest, error)
	ListOpen(ctx context.Context) ([]*models.WorkRequest, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*models.WorkRequest, error)
}

// ResponseRepoForHandler is the subset of the response repository needed by
// the handler.
type ResponseRepoForHandler interface {
	Create(ctx context.Context, resp *models.Response) (bool, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Response, error)
}

// MatchingService runs the acceptance flow that turns a response into an
// order.
type MatchingService interface {
	AcceptResponse(ctx context.Context, requestID, responseID, actorID uuid.UUID, payerMethod string) (*models.Order, error)
}

// RequestHandler serves /v1/requests endpoints.
type RequestHandler struct {
	Requests  RequestRepoForHandler
	Responses ResponseRepoForHandler
	Matcher   MatchingService
	Logger    *slog.Logger
}

// --- POST /v1/requests ---

type createRequestRequest struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateRequest handles POST /v1/requests. Clients only.
func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if acc.Role != models.RoleClient {
		http.Error(w, `{"error":"only clients may post work requests"}`, http.StatusForbidden)
		return
	}

	var req createRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Kind != models.RequestKindProject && req.Kind != models.RequestKindQuote {
		http.Error(w, `{"error":"kind must be project or quote"}`, http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, `{"error":"title is required"}`, http.StatusBadRequest)
		return
	}

	wr := &models.WorkRequest{
		ID:          uuid.New(),
		RequesterID: acc.ID,
		Kind:        req.Kind,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.RequestStatusOpen,
	}
	if err := h.Requests.Create(r.Context(), wr); err != nil {
		h.Logger.Error("create request", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}

// --- GET /v1/requests ---

// ListRequests handles GET /v1/requests. Default is the open board; ?mine=true
// returns the caller's own requests regardless of status.
func (h *RequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var (
		list []*models.WorkRequest
		err  error
	)
	if r.URL.Query().Get("mine") == "true" {
		list, err = h.Requests.ListByRequester(r.Context(), acc.ID)
	} else {
		list, err = h.Requests.ListOpen(r.Context())
	}
	if err != nil {
		h.Logger.Error("list requests", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.WorkRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- GET /v1/requests/{id} ---

func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid request id"}`, http.StatusBadRequest)
		return
	}
	wr, err := h.Requests.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"request not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("get request", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

// --- POST /v1/requests/{id}/responses ---

type submitResponseRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	EstimatedDays int    `json:"estimated_days"`
	Message       string `json:"message"`
}

// SubmitResponse handles POST /v1/requests/{id}/responses. Freelancers only;
// the request must still be open.
func (h *RequestHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if acc.Role != models.RoleFreelancer {
		http.Error(w, `{"error":"only freelancers may respond"}`, http.StatusForbidden)
		return
	}

	requestID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid request id"}`, http.StatusBadRequest)
		return
	}

	var req submitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.AmountCents <= 0 {
		http.Error(w, `{"error":"amount_cents must be > 0"}`, http.StatusBadRequest)
		return
	}
	if req.EstimatedDays <= 0 {
		http.Error(w, `{"error":"estimated_days must be > 0"}`, http.StatusBadRequest)
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	wr, err := h.Requests.GetByID(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"request not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("get request", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if wr.RequesterID == acc.ID {
		http.Error(w, `{"error":"cannot respond to your own request"}`, http.StatusForbidden)
		return
	}

	resp := &models.Response{
		ID:            uuid.New(),
		RequestID:     requestID,
		ResponderID:   acc.ID,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		EstimatedDays: req.EstimatedDays,
		Message:       req.Message,
		Status:        models.ResponseStatusPending,
	}
	ok, err := h.Responses.Create(r.Context(), resp)
	if err != nil {
		h.Logger.Error("create response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"request is no longer open"}`, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// --- GET /v1/requests/{id}/responses ---

// ListResponses handles GET /v1/requests/{id}/responses. Requester only.
func (h *RequestHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	requestID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid request id"}`, http.StatusBadRequest)
		return
	}

	wr, err := h.Requests.GetByID(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"request not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("get request", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if wr.RequesterID != acc.ID {
		http.Error(w, `{"error":"only the requester may view responses"}`, http.StatusForbidden)
		return
	}

	list, err := h.Responses.ListByRequest(r.Context(), requestID)
	if err != nil {
		h.Logger.Error("list responses", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Response{}
	}
	writeJSON(w, http.StatusOK, list)
}

// --- POST /v1/requests/{id}/responses/{rid}/accept ---

type acceptResponseRequest struct {
	PayerMethod string `json:"payer_method"`
}

// AcceptResponse handles POST /v1/requests/{id}/responses/{rid}/accept.
// Captures escrow and creates the order; at most one response per request can
// ever succeed here.
func (h *RequestHandler) AcceptResponse(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	requestID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid request id"}`, http.StatusBadRequest)
		return
	}
	responseID, err := uuid.Parse(r.PathValue("rid"))
	if err != nil {
		http.Error(w, `{"error":"invalid response id"}`, http.StatusBadRequest)
		return
	}

	// Body is optional.
	var req acceptResponseRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	order, err := h.Matcher.AcceptResponse(r.Context(), requestID, responseID, acc.ID, req.PayerMethod)
	if err != nil {
		respondError(w, h.Logger, "accept response", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}
