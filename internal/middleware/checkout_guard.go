package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ctxCheckoutKey contextKey = "parsed_checkout"

// AllowedCurrencies is the set of settlement currencies the gateway supports.
// CheckoutGuard rejects requests with unknown currencies early.
var AllowedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
}

// parsedCheckout is stored in context so the handler can read the amount
// without re-parsing the body.
type parsedCheckout struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// CheckoutAmountFromCtx returns the amount parsed by CheckoutGuard, or 0 if
// not set.
func CheckoutAmountFromCtx(ctx context.Context) int64 {
	if c, ok := ctx.Value(ctxCheckoutKey).(*parsedCheckout); ok {
		return c.AmountCents
	}
	return 0
}

// CheckoutGuard validates amount, currency and the account's daily spend cap
// before an escrow capture is attempted. Reads the body to extract the
// checkout fields, then replaces r.Body so downstream handlers can re-read it.
func CheckoutGuard(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc := AccountFromCtx(r.Context())
			if acc == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedCheckout
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.AmountCents <= 0 {
				http.Error(w, `{"error":"amount_cents must be > 0"}`, http.StatusBadRequest)
				return
			}
			if peek.Currency != "" && !AllowedCurrencies[peek.Currency] {
				http.Error(w, fmt.Sprintf(`{"error":"currency %q is not supported"}`, peek.Currency), http.StatusBadRequest)
				return
			}

			if acc.DailySpendCapCents != nil {
				spent, err := dailySpendFn(r.Context(), pool, acc.ID)
				if err != nil {
					http.Error(w, `{"error":"failed to check daily spend"}`, http.StatusInternalServerError)
					return
				}
				if spent+peek.AmountCents > *acc.DailySpendCapCents {
					http.Error(w, fmt.Sprintf(`{"error":"daily spend %d + amount %d exceeds cap %d"}`, spent, peek.AmountCents, *acc.DailySpendCapCents), http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxCheckoutKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// dailySpendFn is the function used to compute today's spend.
// Tests can replace this to avoid hitting a real database.
var dailySpendFn = defaultDailySpend

// defaultDailySpend sums payment captures for the account today (UTC).
func defaultDailySpend(ctx context.Context, pool *pgxpool.Pool, accountID uuid.UUID) (int64, error) {
	var total int64
	err := pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(t.amount_cents), 0)
		FROM transactions t
		JOIN orders o ON o.id = t.order_id
		WHERE o.payer_id = $1 AND t.type = 'payment'
		  AND t.created_at >= CURRENT_DATE
	`, accountID).Scan(&total)
	return total, err
}
