package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/gigdesk/backend/internal/models"
)

// Store persists notifications for the in-app feed.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
}

// EmailSender sends the email copy of a notification. Failures are logged and
// swallowed; email is not load-bearing.
type EmailSender interface {
	Send(ctx context.Context, userID uuid.UUID, subject, body string) error
}

type Worker struct {
	river.WorkerDefaults[SendNotificationArgs]
	store  Store
	email  EmailSender
	logger *slog.Logger
}

func NewWorker(store Store, email EmailSender, logger *slog.Logger) *Worker {
	return &Worker{store: store, email: email, logger: logger}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[SendNotificationArgs]) error {
	args := job.Args

	n := &models.Notification{
		ID:     uuid.New(),
		UserID: args.UserID,
		Type:   args.Type,
		Title:  args.Title,
		Body:   args.Body,
	}
	if args.Link != "" {
		n.Link = &args.Link
	}
	if err := w.store.Create(ctx, n); err != nil {
		// Retried by River; duplicates on retry are tolerated.
		return fmt.Errorf("store notification: %w", err)
	}

	if w.email != nil {
		if err := w.email.Send(ctx, args.UserID, args.Title, args.Body); err != nil {
			w.logger.Warn("notification email failed", "user_id", args.UserID, "type", args.Type, "error", err)
		}
	}
	return nil
}

// LogEmailSender is the development EmailSender: it only logs the send.
type LogEmailSender struct {
	Logger *slog.Logger
}

func (s LogEmailSender) Send(_ context.Context, userID uuid.UUID, subject, _ string) error {
	s.Logger.Info("email notification", "user_id", userID, "subject", subject)
	return nil
}
