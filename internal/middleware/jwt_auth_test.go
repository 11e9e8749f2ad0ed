package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/gigdesk/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubValidator struct {
	id   uuid.UUID
	role string
	err  error
}

func (s stubValidator) ValidateToken(_ context.Context, _ string) (uuid.UUID, string, error) {
	return s.id, s.role, s.err
}

type stubAccounts struct {
	acc *models.Account
	err error
}

func (s stubAccounts) GetAccount(_ context.Context, _ uuid.UUID) (*models.Account, error) {
	return s.acc, s.err
}

// =====================================================================
// JWTAuth
// =====================================================================

func TestJWTAuth_MissingHeader(t *testing.T) {
	mw := JWTAuth(stubValidator{}, stubAccounts{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	for _, header := range []string{"", "Basic abc123", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rr.Code)
		}
	}
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	mw := JWTAuth(stubValidator{err: errors.New("signature mismatch")}, stubAccounts{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a bad token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

// A valid token whose account no longer exists must not pass.
func TestJWTAuth_DeletedAccount(t *testing.T) {
	id := uuid.New()
	mw := JWTAuth(stubValidator{id: id, role: models.RoleClient}, stubAccounts{err: errors.New("not found")})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a deleted account")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer stale-but-valid")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestJWTAuth_LoadsAccountIntoContext(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Email: "client@example.com", Role: models.RoleClient}
	mw := JWTAuth(stubValidator{id: acc.ID, role: acc.Role}, stubAccounts{acc: acc})

	var seen *models.Account
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AccountFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if seen == nil || seen.ID != acc.ID {
		t.Error("account was not loaded into request context")
	}
}

func TestJWTAuth_CaseInsensitiveScheme(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Role: models.RoleFreelancer}
	mw := JWTAuth(stubValidator{id: acc.ID, role: acc.Role}, stubAccounts{acc: acc})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	req.Header.Set("Authorization", "bearer good-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for lowercase scheme", rr.Code)
	}
}
