package models

import (
	"time"

	"github.com/google/uuid"
)

// Milestone statuses: pending -> active -> delivered -> approved, with an
// optional delivered -> revision -> delivered loop.
const (
	MilestoneStatusPending   = "pending"
	MilestoneStatusActive    = "active"
	MilestoneStatusDelivered = "delivered"
	MilestoneStatusRevision  = "revision"
	MilestoneStatusApproved  = "approved"
)

// Milestones are created with the order and immutable in count and amount
// thereafter. Position is creation order, starting at 1.
type OrderMilestone struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     uuid.UUID  `json:"order_id"`
	Position    int        `json:"position"`
	Title       string     `json:"title"`
	AmountCents int64      `json:"amount_cents"`
	FeeCents    int64      `json:"fee_cents"`
	Status      string     `json:"status"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
