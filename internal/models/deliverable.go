package models

import (
	"time"

	"github.com/google/uuid"
)

// Deliverable is an append-only delivery record; never mutated or deleted.
// MilestoneID is set when the delivery targets a single milestone.
type Deliverable struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     uuid.UUID  `json:"order_id"`
	MilestoneID *uuid.UUID `json:"milestone_id,omitempty"`
	SubmitterID uuid.UUID  `json:"submitter_id"`
	Message     string     `json:"message"`
	FileRefs    []string   `json:"file_refs,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
