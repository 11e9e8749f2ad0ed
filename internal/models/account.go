package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles. Clients pay for work; freelancers earn from it.
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
)

type Account struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	DisplayName        string    `json:"display_name"`
	Role               string    `json:"role"`
	PasswordHash       string    `json:"-"`
	DailySpendCapCents *int64    `json:"daily_spend_cap_cents,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
