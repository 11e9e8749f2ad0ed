package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/gigdesk/backend/internal/services"
)

// DefaultAutoCompleteDays is how long a delivered order waits for client
// review before the sweep approves it, overridable via AUTO_COMPLETE_DAYS.
const DefaultAutoCompleteDays = 7

type AutoCompleteArgs struct{}

func (AutoCompleteArgs) Kind() string { return "auto_complete_sweep" }

// OrderLister finds delivered orders whose review window has lapsed.
type OrderLister interface {
	ListDeliveredBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// Completer approves an order on the client's behalf.
type Completer interface {
	AutoComplete(ctx context.Context, orderID uuid.UUID) error
}

// Worker is the periodic auto-complete sweep: any order still sitting in
// delivered past the review window is completed as if the client approved it.
type Worker struct {
	river.WorkerDefaults[AutoCompleteArgs]
	orders    OrderLister
	lifecycle Completer
	after     time.Duration
	logger    *slog.Logger
}

func NewWorker(orders OrderLister, lifecycle Completer, after time.Duration, logger *slog.Logger) *Worker {
	return &Worker{orders: orders, lifecycle: lifecycle, after: after, logger: logger}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[AutoCompleteArgs]) error {
	cutoff := time.Now().Add(-w.after)
	ids, err := w.orders.ListDeliveredBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, id := range ids {
		err := w.lifecycle.AutoComplete(ctx, id)
		switch {
		case err == nil:
			w.logger.Info("auto-completed order", "order_id", id)
		case errors.Is(err, services.ErrConflict):
			// The client acted between the list and the completion. Fine.
		default:
			// Leave the order for the next sweep rather than failing the batch.
			w.logger.Error("auto-complete failed", "order_id", id, "error", err)
		}
	}
	return nil
}
