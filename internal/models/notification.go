package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification types emitted by engine transitions. Dispatch is best-effort:
// a failed send never reverses the transition that produced it.
const (
	NotifyResponseAccepted   = "response_accepted"
	NotifyResponseRejected   = "response_rejected"
	NotifyOrderDelivered     = "order_delivered"
	NotifyRevisionRequested  = "revision_requested"
	NotifyOrderCompleted     = "order_completed"
	NotifyOrderCancelled     = "order_cancelled"
	NotifyOrderDisputed      = "order_disputed"
	NotifyMilestoneApproved  = "milestone_approved"
	NotifyMilestoneDelivered = "milestone_delivered"
)

type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      *string    `json:"link,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
