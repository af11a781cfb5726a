package auditevent

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists status transitions.
type Repository interface {
	Create(ctx context.Context, t *StatusTransition) error
	ListByInsurance(ctx context.Context, insuranceID uuid.UUID, limit, offset int) ([]*StatusTransition, int, error)
}
