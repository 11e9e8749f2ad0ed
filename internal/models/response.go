package models

import (
	"time"

	"github.com/google/uuid"
)

// Response statuses. At most one response per request reaches accepted;
// accepted and rejected are immutable.
const (
	ResponseStatusPending  = "pending"
	ResponseStatusAccepted = "accepted"
	ResponseStatusRejected = "rejected"
)

type Response struct {
	ID            uuid.UUID `json:"id"`
	RequestID     uuid.UUID `json:"request_id"`
	ResponderID   uuid.UUID `json:"responder_id"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	EstimatedDays int       `json:"estimated_days"`
	Message       string    `json:"message,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
