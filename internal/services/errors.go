package services

import "errors"

// Engine error taxonomy. Handlers map these onto HTTP status codes; none of
// them are retried automatically. Callers that hit Conflict must re-fetch
// state before trying again.
var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor is not allowed to perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when a state precondition fails, including lost
	// races on compare-and-set transitions.
	ErrConflict = errors.New("state conflict")

	// ErrInvalid is returned for malformed input, e.g. an empty delivery message.
	ErrInvalid = errors.New("invalid input")

	// ErrRevisionsExhausted is returned when a revision request would exceed
	// the order's revision limit. The request is rejected, never clamped.
	ErrRevisionsExhausted = errors.New("all revisions used")

	// ErrLedgerInvariant signals a ledger write that would drive an order's
	// derived balance negative. It is always a defect, never expected in
	// correct operation, and is logged distinctly from business rejections.
	ErrLedgerInvariant = errors.New("ledger invariant violation")

	// ErrUpstream wraps payment gateway failures. The triggering transition is
	// aborted and the order stays in its prior state, so the call is retryable.
	ErrUpstream = errors.New("payment gateway failure")
)
