package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry types. The transactions table is an append-only audit trail;
// the current escrow balance of an order is always derived by folding its
// entries, never read from a separately-mutated counter.
const (
	TxTypePayment = "payment"
	TxTypePayout  = "payout"
	TxTypeRefund  = "refund"
)

const (
	TxStatusCompleted = "completed"
)

type Transaction struct {
	ID               uuid.UUID  `json:"id"`
	OrderID          uuid.UUID  `json:"order_id"`
	MilestoneID      *uuid.UUID `json:"milestone_id,omitempty"`
	PayeeID          *uuid.UUID `json:"payee_id,omitempty"`
	AmountCents      int64      `json:"amount_cents"`
	PlatformFeeCents int64      `json:"platform_fee_cents"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	Reference        *string    `json:"reference,omitempty"` // gateway payment/payout/refund ref
	CreatedAt        time.Time  `json:"created_at"`
}
