package main

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigdesk/backend/internal/auth"
	"github.com/gigdesk/backend/internal/handlers"
	"github.com/gigdesk/backend/internal/middleware"
	"github.com/gigdesk/backend/internal/repository"
	"github.com/gigdesk/backend/internal/services"
)

// RegisterV1Routes adds the /v1/ engine endpoints to the given mux.
// Middleware chain: JWTAuth -> (CheckoutGuard on POST /v1/orders/checkout only) -> handler.
func RegisterV1Routes(
	mux *http.ServeMux,
	pool *pgxpool.Pool,
	authSvc auth.Service,
	requestRepo *repository.WorkRequestRepo,
	responseRepo *repository.ResponseRepo,
	orderRepo *repository.OrderRepo,
	milestoneRepo *repository.MilestoneRepo,
	transactionRepo *repository.TransactionRepo,
	deliverableRepo *repository.DeliverableRepo,
	matcher *services.Matcher,
	lifecycle *services.Lifecycle,
	milestones *services.Milestones,
	logger *slog.Logger,
) {
	rh := &handlers.RequestHandler{
		Requests:  requestRepo,
		Responses: responseRepo,
		Matcher:   matcher,
		Logger:    logger,
	}
	oh := &handlers.OrderHandler{
		Orders:       orderRepo,
		Deliverables: deliverableRepo,
		Milestones:   milestoneRepo,
		Transactions: transactionRepo,
		Checkout:     matcher,
		Lifecycle:    lifecycle,
		Logger:       logger,
	}
	mh := &handlers.MilestoneHandler{
		Service: milestones,
		Logger:  logger,
	}

	authn := middleware.JWTAuth(authSvc, authSvc)
	checkout := middleware.CheckoutGuard(pool)

	// Work requests and responses
	mux.Handle("POST /v1/requests", authn(http.HandlerFunc(rh.CreateRequest)))
	mux.Handle("GET /v1/requests", authn(http.HandlerFunc(rh.ListRequests)))
	mux.Handle("GET /v1/requests/{id}", authn(http.HandlerFunc(rh.GetRequest)))
	mux.Handle("POST /v1/requests/{id}/responses", authn(http.HandlerFunc(rh.SubmitResponse)))
	mux.Handle("GET /v1/requests/{id}/responses", authn(http.HandlerFunc(rh.ListResponses)))
	mux.Handle("POST /v1/requests/{id}/responses/{rid}/accept", authn(http.HandlerFunc(rh.AcceptResponse)))

	// Orders
	mux.Handle("POST /v1/orders/checkout", authn(checkout(http.HandlerFunc(oh.CheckoutPackage))))
	mux.Handle("GET /v1/orders", authn(http.HandlerFunc(oh.ListOrders)))
	mux.Handle("GET /v1/orders/{id}", authn(http.HandlerFunc(oh.GetOrder)))
	mux.Handle("POST /v1/orders/{id}/deliver", authn(http.HandlerFunc(oh.Deliver)))
	mux.Handle("POST /v1/orders/{id}/revision", authn(http.HandlerFunc(oh.RequestRevision)))
	mux.Handle("POST /v1/orders/{id}/complete", authn(http.HandlerFunc(oh.Complete)))
	mux.Handle("POST /v1/orders/{id}/cancel", authn(http.HandlerFunc(oh.Cancel)))
	mux.Handle("POST /v1/orders/{id}/dispute", authn(http.HandlerFunc(oh.Dispute)))
	mux.Handle("GET /v1/orders/{id}/deliverables", authn(http.HandlerFunc(oh.ListDeliverables)))
	mux.Handle("GET /v1/orders/{id}/milestones", authn(http.HandlerFunc(oh.ListMilestones)))
	mux.Handle("GET /v1/orders/{id}/transactions", authn(http.HandlerFunc(oh.ListTransactions)))

	// Milestones
	mux.Handle("POST /v1/milestones/{id}/deliver", authn(http.HandlerFunc(mh.Deliver)))
	mux.Handle("POST /v1/milestones/{id}/revision", authn(http.HandlerFunc(mh.RequestRevision)))
	mux.Handle("POST /v1/milestones/{id}/approve", authn(http.HandlerFunc(mh.Approve)))
}
