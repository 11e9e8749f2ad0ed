package models

import (
	"time"

	"github.com/google/uuid"
)

// Work request statuses. A request is closed exactly once, by acceptance of
// one of its responses.
const (
	RequestStatusOpen     = "open"
	RequestStatusAccepted = "accepted"
	RequestStatusClosed   = "closed"
)

// Work request kinds map to the order type the acceptance produces.
const (
	RequestKindProject = "project"
	RequestKindQuote   = "quote"
)

type WorkRequest struct {
	ID            uuid.UUID `json:"id"`
	RequesterID   uuid.UUID `json:"requester_id"`
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Status        string    `json:"status"`
	ResponseCount int       `json:"response_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
