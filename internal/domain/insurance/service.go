package insurance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sprouthealth/intake/internal/domain/auditevent"
	"github.com/sprouthealth/intake/internal/eligibility"
	"github.com/sprouthealth/intake/internal/platform/payers"
	"github.com/sprouthealth/intake/internal/platform/verifycache"
)

const (
	// MaxRetryAttempts bounds explicit retries per record.
	MaxRetryAttempts = 3
	// ResultValidity is the staleness window for a verification result.
	ResultValidity = 24 * time.Hour

	cacheKeyPrefix = "verify:"
)

var (
	ErrVerificationNotAllowed = errors.New("insurance: record is not ready for verification")
	ErrRetryNotAllowed        = errors.New("insurance: retry not allowed for this record")
	ErrInvalidTransition      = errors.New("insurance: invalid status transition")
	ErrUnknownPayer           = errors.New("insurance: payer is not in the known-payer list")
)

// statusReadyForVerification lists the states in which all prerequisite
// data is present and RequestVerification may run.
var statusReadyForVerification = map[VerificationStatus]bool{
	StatusPending:             true,
	StatusOCRComplete:         true,
	StatusManualEntryComplete: true,
}

// Service drives the verification state machine. Concurrent calls for the
// same record must be serialized by the caller (one in-flight verification
// per record); calls for different records are safe to run concurrently.
type Service struct {
	repo    Repository
	factory *eligibility.Factory
	audit   *auditevent.Service
	cache   verifycache.Store
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, factory *eligibility.Factory, audit *auditevent.Service, cache verifycache.Store, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		factory: factory,
		audit:   audit,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create registers a new record in the pending state.
func (s *Service) Create(ctx context.Context, rec *InsuranceRecord) error {
	rec.VerificationStatus = StatusPending
	rec.RetryAttempts = 0
	return s.repo.Create(ctx, rec)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*InsuranceRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetBySession(ctx context.Context, sessionID uuid.UUID) (*InsuranceRecord, error) {
	return s.repo.GetBySession(ctx, sessionID)
}

// BeginOCR moves a pending record into processing while card-image OCR runs.
func (s *Service) BeginOCR(ctx context.Context, id uuid.UUID) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.transition(ctx, rec, StatusInProgress)
}

// CompleteOCR records the outcome of the OCR phase.
func (s *Service) CompleteOCR(ctx context.Context, id uuid.UUID, needsReview bool) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	next := StatusOCRComplete
	if needsReview {
		next = StatusOCRNeedsReview
	}
	return s.transition(ctx, rec, next)
}

// BeginManualEntry opens the manual-entry phase for a record whose OCR
// output needs correction.
func (s *Service) BeginManualEntry(ctx context.Context, id uuid.UUID) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.transition(ctx, rec, StatusManualEntry)
}

// ManualEntry carries the operator-corrected card fields.
type ManualEntry struct {
	SubscriberFirstName string
	SubscriberLastName  string
	MemberID            string
	GroupNumber         string
	DateOfBirth         *time.Time
	PayerName           string
	PayerID             string
}

// CompleteManualEntry validates and applies manually entered card fields,
// then marks the record ready for verification.
func (s *Service) CompleteManualEntry(ctx context.Context, id uuid.UUID, entry ManualEntry) error {
	if entry.MemberID == "" {
		return fmt.Errorf("insurance: member ID is required")
	}
	if entry.PayerName == "" {
		return fmt.Errorf("insurance: payer name is required")
	}
	if !payers.IsKnown(entry.PayerName) {
		return ErrUnknownPayer
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(rec.VerificationStatus, StatusManualEntryComplete) {
		return ErrInvalidTransition
	}

	rec.SubscriberFirstName = entry.SubscriberFirstName
	rec.SubscriberLastName = entry.SubscriberLastName
	rec.MemberID = entry.MemberID
	rec.GroupNumber = entry.GroupNumber
	rec.DateOfBirth = entry.DateOfBirth
	rec.PayerName = payers.CanonicalName(entry.PayerName)
	rec.PayerID = entry.PayerID

	previous := rec.VerificationStatus
	rec.VerificationStatus = StatusManualEntryComplete
	if err := s.repo.Update(ctx, rec); err != nil {
		return err
	}
	s.audit.RecordTransition(ctx, rec.ID, string(previous), string(StatusManualEntryComplete))
	return nil
}

// RequestVerification runs one eligibility check for a record whose
// prerequisite data is present. When the last result is still inside the
// staleness window the cached result is returned and the transport is not
// invoked.
func (s *Service) RequestVerification(ctx context.Context, id uuid.UUID) (*StoredResult, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.CachedResultValid(rec) {
		return rec.VerificationResult, nil
	}
	if cached := s.cachedResult(ctx, rec.ID); cached != nil {
		return cached, nil
	}

	if !statusReadyForVerification[rec.VerificationStatus] {
		return nil, ErrVerificationNotAllowed
	}
	if err := s.transition(ctx, rec, StatusInProgress); err != nil {
		return nil, err
	}

	return s.verify(ctx, rec)
}

// Retry re-runs verification after a failed or ambiguous attempt. It
// increments the retry counter and appends the history entry exactly once,
// atomically with the move back to in_progress.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*StoredResult, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.CanRetry(rec) {
		return nil, ErrRetryNotAllowed
	}

	entry := RetryEntry{
		Attempt:   rec.RetryAttempts + 1,
		Timestamp: s.now().UTC(),
	}
	if last := rec.LastError(); last != nil {
		entry.PreviousErrorCode = last.Code
	}

	previous := rec.VerificationStatus
	if err := s.repo.AppendRetryHistory(ctx, rec.ID, entry, StatusInProgress); err != nil {
		return nil, err
	}
	s.audit.RecordTransition(ctx, rec.ID, string(previous), string(StatusInProgress))

	rec, err = s.repo.GetByID(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, rec)
}

// verify invokes the adapter for an in_progress record and persists the
// outcome. The result write and the terminal status transition commit
// together.
func (s *Service) verify(ctx context.Context, rec *InsuranceRecord) (*StoredResult, error) {
	adapter := s.factory.AdapterFor(rec.PayerName)
	result := adapter.VerifyEligibility(ctx, rec.Snapshot())

	stored := &StoredResult{VerificationResult: *result}
	if rec.VerificationResult != nil {
		stored.RetryHistory = rec.VerificationResult.RetryHistory
	}

	next := recordStatusFor(result.Status)
	if err := s.repo.SaveVerification(ctx, rec.ID, next, stored); err != nil {
		return nil, err
	}
	s.audit.RecordTransition(ctx, rec.ID, string(rec.VerificationStatus), string(next))
	s.storeInCache(ctx, rec.ID, stored)

	s.logger.Info().
		Str("insurance_id", rec.ID.String()).
		Str("status", string(result.Status)).
		Str("eligible", result.Eligible.String()).
		Msg("eligibility verification completed")

	return stored, nil
}

// ElectSelfPay opts the family out of insurance billing. Reachable from any
// non-terminal state.
func (s *Service) ElectSelfPay(ctx context.Context, id uuid.UUID) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.transition(ctx, rec, StatusSelfPay)
}

// ResetRetryAttempts is the explicit administrative reset of the retry
// counter; nothing in the verification flow calls it.
func (s *Service) ResetRetryAttempts(ctx context.Context, id uuid.UUID) error {
	return s.repo.ResetRetryAttempts(ctx, id)
}

// CanRetry reports whether an explicit retry may be invoked for the record.
// Only a failed or ambiguous attempt can be retried; records that never
// reached verification (pending, mid-OCR, mid-entry) take the normal
// RequestVerification path instead.
func (s *Service) CanRetry(rec *InsuranceRecord) bool {
	switch rec.VerificationStatus {
	case StatusFailed, StatusManualReview:
	default:
		return false
	}
	if rec.RetryAttempts >= MaxRetryAttempts {
		return false
	}
	last := rec.LastError()
	if eligibility.SeverityOf(last) == eligibility.SeverityHigh {
		return false
	}
	if last != nil && !last.Retryable {
		return false
	}
	return true
}

// CachedResultValid reports whether the record's last result is still
// inside the staleness window. Callers use it to avoid redundant adapter
// calls.
func (s *Service) CachedResultValid(rec *InsuranceRecord) bool {
	if rec.VerificationResult == nil || rec.VerificationResult.VerifiedAt.IsZero() {
		return false
	}
	return s.now().UTC().Sub(rec.VerificationResult.VerifiedAt) < ResultValidity
}

func (s *Service) transition(ctx context.Context, rec *InsuranceRecord, to VerificationStatus) error {
	if !CanTransition(rec.VerificationStatus, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.VerificationStatus, to)
	}
	if err := s.repo.UpdateStatus(ctx, rec.ID, to); err != nil {
		return err
	}
	s.audit.RecordTransition(ctx, rec.ID, string(rec.VerificationStatus), string(to))
	rec.VerificationStatus = to
	return nil
}

// recordStatusFor maps an adapter result status onto the record lifecycle.
func recordStatusFor(status eligibility.Status) VerificationStatus {
	switch status {
	case eligibility.StatusVerified:
		return StatusVerified
	case eligibility.StatusManualReview:
		return StatusManualReview
	default:
		return StatusFailed
	}
}

// cachedResult consults the shared result cache. Any cache failure is
// treated as a miss.
func (s *Service) cachedResult(ctx context.Context, id uuid.UUID) *StoredResult {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, cacheKeyPrefix+id.String())
	if err != nil {
		if !errors.Is(err, verifycache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Msg("verification cache read failed")
		}
		return nil
	}
	result, err := UnmarshalStoredResult([]byte(raw))
	if err != nil {
		return nil
	}
	if s.now().UTC().Sub(result.VerifiedAt) >= ResultValidity {
		return nil
	}
	return result
}

func (s *Service) storeInCache(ctx context.Context, id uuid.UUID, result *StoredResult) {
	if s.cache == nil {
		return
	}
	raw, err := result.Marshal()
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKeyPrefix+id.String(), string(raw), ResultValidity); err != nil {
		s.logger.Warn().Err(err).Msg("verification cache write failed")
	}
}
