package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gigdesk/backend/internal/models"
)

// =====================================================================
// Tokens
// =====================================================================

func TestToken_RoundTrip(t *testing.T) {
	svc := NewService(nil, "test-secret")
	id := uuid.New()

	token, err := svc.issueToken(id, models.RoleClient)
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	gotID, gotRole, err := svc.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if gotID != id {
		t.Errorf("subject = %s, want %s", gotID, id)
	}
	if gotRole != models.RoleClient {
		t.Errorf("role = %q, want client", gotRole)
	}
}

func TestToken_WrongSecretRejected(t *testing.T) {
	issuer := NewService(nil, "secret-a")
	verifier := NewService(nil, "secret-b")

	token, err := issuer.issueToken(uuid.New(), models.RoleFreelancer)
	if err != nil {
		t.Fatalf("issueToken: %v", err)
	}
	if _, _, err := verifier.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("token signed with another secret must not validate")
	}
}

func TestToken_ExpiredRejected(t *testing.T) {
	svc := NewService(nil, "test-secret")

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-25 * time.Hour)),
		},
		Role: models.RoleClient,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(svc.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("expired token must not validate")
	}
}

func TestToken_GarbageRejected(t *testing.T) {
	svc := NewService(nil, "test-secret")

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, _, err := svc.ValidateToken(context.Background(), token); err == nil {
			t.Errorf("token %q must not validate", token)
		}
	}
}

func TestToken_BadSubjectRejected(t *testing.T) {
	svc := NewService(nil, "test-secret")

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: models.RoleClient,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(svc.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("token with a non-uuid subject must not validate")
	}
}
