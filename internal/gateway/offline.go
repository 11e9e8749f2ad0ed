package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Offline is a gateway that settles everything instantly and keeps no state.
// Used when ESCROW_GATEWAY=offline (development, tests). Refs are prefixed so
// they are recognizable in the transactions log.
type Offline struct{}

var _ PaymentGateway = Offline{}

func (Offline) CaptureEscrow(_ context.Context, amountCents int64, currency, _ string) (string, error) {
	if amountCents <= 0 {
		return "", fmt.Errorf("capture amount must be > 0, got %d %s", amountCents, currency)
	}
	return "pay_" + uuid.NewString(), nil
}

func (Offline) ReleaseEscrow(_ context.Context, paymentRef string, _ uuid.UUID, amountCents, feeCents int64) (string, error) {
	if paymentRef == "" {
		return "", fmt.Errorf("release requires a payment ref")
	}
	if feeCents < 0 || feeCents > amountCents {
		return "", fmt.Errorf("fee %d out of range for amount %d", feeCents, amountCents)
	}
	return "po_" + uuid.NewString(), nil
}

func (Offline) RefundEscrow(_ context.Context, paymentRef string, amountCents int64) (string, error) {
	if paymentRef == "" {
		return "", fmt.Errorf("refund requires a payment ref")
	}
	if amountCents <= 0 {
		return "", fmt.Errorf("refund amount must be > 0, got %d", amountCents)
	}
	return "re_" + uuid.NewString(), nil
}
