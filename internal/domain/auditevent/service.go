package auditevent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service writes and reads the status-transition audit trail.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// RecordTransition writes one audit entry. It never returns an error to the
// caller: audit storage failure must not fail the verification operation,
// so failures are logged and dropped.
func (s *Service) RecordTransition(ctx context.Context, insuranceID uuid.UUID, previous, next string) {
	t := &StatusTransition{
		InsuranceID:    insuranceID,
		PreviousStatus: previous,
		NewStatus:      next,
		At:             s.now().UTC(),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		s.logger.Error().Err(err).
			Str("insurance_id", insuranceID.String()).
			Str("previous_status", previous).
			Str("new_status", next).
			Msg("audit write failed")
	}
}

// ListByInsurance returns the transitions recorded for one record, oldest
// first.
func (s *Service) ListByInsurance(ctx context.Context, insuranceID uuid.UUID, limit, offset int) ([]*StatusTransition, int, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListByInsurance(ctx, insuranceID, limit, offset)
}
