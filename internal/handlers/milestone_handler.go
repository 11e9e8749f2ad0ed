package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gigdesk/backend/internal/middleware"
	"github.com/gigdesk/backend/internal/models"
)

// MilestoneService is the per-milestone state machine.
type MilestoneService interface {
	Deliver(ctx context.Context, milestoneID, actorID uuid.UUID, message string, fileRefs []string) (*models.Deliverable, error)
	RequestRevision(ctx context.Context, milestoneID, actorID uuid.UUID, note string) error
	Approve(ctx context.Context, milestoneID, actorID uuid.UUID) error
}

// MilestoneHandler serves /v1/milestones endpoints.
type MilestoneHandler struct {
	Service MilestoneService
	Logger  *slog.Logger
}

// --- POST /v1/milestones/{id}/deliver ---

func (h *MilestoneHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid milestone id"}`, http.StatusBadRequest)
		return
	}
	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	d, err := h.Service.Deliver(r.Context(), id, acc.ID, req.Message, req.FileRefs)
	if err != nil {
		respondError(w, h.Logger, "deliver milestone", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// --- POST /v1/milestones/{id}/revision ---

func (h *MilestoneHandler) RequestRevision(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid milestone id"}`, http.StatusBadRequest)
		return
	}
	var req revisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Service.RequestRevision(r.Context(), id, acc.ID, req.Note); err != nil {
		respondError(w, h.Logger, "milestone revision", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneStatusRevision})
}

// --- POST /v1/milestones/{id}/approve ---

func (h *MilestoneHandler) Approve(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid milestone id"}`, http.StatusBadRequest)
		return
	}
	if err := h.Service.Approve(r.Context(), id, acc.ID); err != nil {
		respondError(w, h.Logger, "approve milestone", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneStatusApproved})
}
