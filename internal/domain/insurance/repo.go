package insurance

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record exists for the given ID.
var ErrNotFound = errors.New("insurance: record not found")

// Repository persists insurance records. The verification core treats this
// as a simple get/set surface; concurrent writers for the same record are
// the caller's responsibility to serialize.
type Repository interface {
	Create(ctx context.Context, rec *InsuranceRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*InsuranceRecord, error)
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*InsuranceRecord, error)
	Update(ctx context.Context, rec *InsuranceRecord) error

	// UpdateStatus writes only the status column.
	UpdateStatus(ctx context.Context, id uuid.UUID, status VerificationStatus) error

	// SaveVerification writes the new status and the full stored result in
	// a single transaction.
	SaveVerification(ctx context.Context, id uuid.UUID, status VerificationStatus, result *StoredResult) error

	// AppendRetryHistory atomically increments the retry counter, appends
	// the history entry to the stored result, and moves the record to the
	// given status. The three writes commit together.
	AppendRetryHistory(ctx context.Context, id uuid.UUID, entry RetryEntry, status VerificationStatus) error

	// ResetRetryAttempts is the explicit administrative reset of the retry
	// counter.
	ResetRetryAttempts(ctx context.Context, id uuid.UUID) error
}
