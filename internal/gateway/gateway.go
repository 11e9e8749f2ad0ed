// Package gateway defines the contract the order engine requires from an
// escrow-capable payment processor, plus an offline implementation for
// development and tests. Calls are synchronous and fallible; a gateway
// success is required before the corresponding ledger entry is written.
package gateway

import (
	"context"

	"github.com/google/uuid"
)

type PaymentGateway interface {
	// CaptureEscrow charges the payer's method and holds the funds.
	CaptureEscrow(ctx context.Context, amountCents int64, currency, payerMethod string) (paymentRef string, err error)

	// ReleaseEscrow routes a split of previously captured funds: amountCents
	// minus feeCents to the destination, feeCents retained by the platform.
	ReleaseEscrow(ctx context.Context, paymentRef string, destinationID uuid.UUID, amountCents, feeCents int64) (payoutRef string, err error)

	// RefundEscrow returns held funds to the payer.
	RefundEscrow(ctx context.Context, paymentRef string, amountCents int64) (refundRef string, err error)
}
