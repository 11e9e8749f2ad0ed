// Package notify delivers best-effort notifications to counterparties on
// order transitions. Transitions enqueue a send_notification job in the same
// database transaction as their state change; a separate River worker
// consumes the job, so a notification outage can never affect transition
// atomicity.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SendNotificationArgs struct {
	UserID uuid.UUID `json:"user_id"`
	Type   string    `json:"type"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Link   string    `json:"link,omitempty"`
}

func (SendNotificationArgs) Kind() string { return "send_notification" }

// EnqueueTxFunc enqueues a send_notification job within the given transaction.
// Provided by main using river.Client.InsertTx.
type EnqueueTxFunc func(ctx context.Context, tx pgx.Tx, args SendNotificationArgs) error
