package models

import (
	"time"

	"github.com/google/uuid"
)

// Order lifecycle statuses. completed and cancelled are terminal; disputed is
// frozen until arbitration resolves it out of band.
const (
	OrderStatusPending   = "pending"
	OrderStatusActive    = "active"
	OrderStatusDelivered = "delivered"
	OrderStatusRevision  = "revision"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusDisputed  = "disputed"
)

// Order types. Package orders come straight from a service-package checkout;
// project and quote orders come from an accepted response on a work request.
const (
	OrderTypePackage = "package"
	OrderTypeProject = "project"
	OrderTypeQuote   = "quote"
)

// Escrow status of the order's held funds. Transitions only held -> released
// or held -> refunded, never reversed.
const (
	EscrowHeld     = "held"
	EscrowReleased = "released"
	EscrowRefunded = "refunded"
)

type Order struct {
	ID               uuid.UUID  `json:"id"`
	PayerID          uuid.UUID  `json:"payer_id"`
	EarnerID         uuid.UUID  `json:"earner_id"`
	Type             string     `json:"type"`
	PackageTier      *string    `json:"package_tier,omitempty"` // set only when Type == package
	Title            string     `json:"title"`
	AmountCents      int64      `json:"amount_cents"`
	Currency         string     `json:"currency"`
	PlatformFeeCents int64      `json:"platform_fee_cents"`
	Status           string     `json:"status"`
	RevisionsUsed    int        `json:"revisions_used"`
	RevisionLimit    int        `json:"revision_limit"`
	RevisionNote     *string    `json:"revision_note,omitempty"` // latest revision request note
	EscrowStatus     string     `json:"escrow_status"`
	PaymentRef       *string    `json:"payment_ref,omitempty"`
	DeliveryDeadline *time.Time `json:"delivery_deadline,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Terminal reports whether the order can no longer transition.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}
