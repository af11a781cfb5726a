// Package auditevent records insurance verification status transitions.
// Writes are fire-and-forget from the verification flow's perspective: a
// failed audit write never fails the operation that triggered it.
package auditevent

import (
	"time"

	"github.com/google/uuid"
)

// StatusTransition is one audit entry: a single verification status change
// on an insurance record.
type StatusTransition struct {
	ID             uuid.UUID `db:"id" json:"id"`
	InsuranceID    uuid.UUID `db:"insurance_id" json:"insurance_id"`
	PreviousStatus string    `db:"previous_status" json:"previous_status"`
	NewStatus      string    `db:"new_status" json:"new_status"`
	At             time.Time `db:"at" json:"at"`
}
