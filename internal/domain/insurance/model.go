// Package insurance owns the insurance record's verification lifecycle:
// the status state machine across OCR, manual entry, and eligibility
// checking, plus retry-attempt tracking and result caching.
package insurance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sprouthealth/intake/internal/eligibility"
)

// VerificationStatus is the insurance record's lifecycle state. It is a
// closed set with an explicit string encoding for storage; unknown values
// are rejected on load, never coerced.
type VerificationStatus string

const (
	StatusPending             VerificationStatus = "pending"
	StatusInProgress          VerificationStatus = "in_progress"
	StatusOCRComplete         VerificationStatus = "ocr_complete"
	StatusOCRNeedsReview      VerificationStatus = "ocr_needs_review"
	StatusManualEntry         VerificationStatus = "manual_entry"
	StatusManualEntryComplete VerificationStatus = "manual_entry_complete"
	StatusVerified            VerificationStatus = "verified"
	StatusFailed              VerificationStatus = "failed"
	StatusManualReview        VerificationStatus = "manual_review"
	StatusSelfPay             VerificationStatus = "self_pay"
)

var allStatuses = map[VerificationStatus]bool{
	StatusPending: true, StatusInProgress: true,
	StatusOCRComplete: true, StatusOCRNeedsReview: true,
	StatusManualEntry: true, StatusManualEntryComplete: true,
	StatusVerified: true, StatusFailed: true,
	StatusManualReview: true, StatusSelfPay: true,
}

// ParseVerificationStatus decodes a stored status string, rejecting unknown
// values.
func ParseVerificationStatus(s string) (VerificationStatus, error) {
	status := VerificationStatus(s)
	if !allStatuses[status] {
		return "", fmt.Errorf("insurance: unknown verification status %q", s)
	}
	return status, nil
}

// Terminal reports whether the status ends the flow. A failed record is
// terminal only until a retry is explicitly invoked, which re-enters
// in_progress.
func (s VerificationStatus) Terminal() bool {
	switch s {
	case StatusVerified, StatusFailed, StatusSelfPay:
		return true
	}
	return false
}

// transitions is the allowed-successor table for the state machine.
// self_pay is additionally reachable from every non-terminal state and is
// handled in CanTransition rather than listed per state.
var transitions = map[VerificationStatus][]VerificationStatus{
	StatusPending:             {StatusInProgress},
	StatusInProgress:          {StatusOCRComplete, StatusOCRNeedsReview, StatusVerified, StatusFailed, StatusManualReview},
	StatusOCRComplete:         {StatusInProgress, StatusManualEntry},
	StatusOCRNeedsReview:      {StatusManualEntry},
	StatusManualEntry:         {StatusManualEntryComplete},
	StatusManualEntryComplete: {StatusInProgress},
	StatusFailed:              {StatusInProgress}, // explicit retry only
	StatusManualReview:        {StatusInProgress, StatusManualEntry},
	StatusVerified:            {},
	StatusSelfPay:             {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to VerificationStatus) bool {
	if to == StatusSelfPay {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RetryEntry is one element of a record's retry history. Entries are
// appended, never edited.
type RetryEntry struct {
	Attempt           int       `json:"attempt"`
	Timestamp         time.Time `json:"timestamp"`
	PreviousErrorCode string    `json:"previous_error_code,omitempty"`
}

// StoredResult is the persisted superset of the last verification result:
// the adapter's output plus the record's accumulated retry history.
type StoredResult struct {
	eligibility.VerificationResult
	RetryHistory []RetryEntry `json:"retry_history,omitempty"`
}

// Marshal serializes a stored result for the database or the cache.
func (r *StoredResult) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalStoredResult decodes a stored result blob.
func UnmarshalStoredResult(b []byte) (*StoredResult, error) {
	var r StoredResult
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("insurance: decode verification result: %w", err)
	}
	return &r, nil
}

// InsuranceRecord is one family's captured insurance card/member record.
// The record belongs to a single onboarding session; this package reads and
// writes only the verification-related fields.
type InsuranceRecord struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SessionID uuid.UUID `db:"session_id" json:"session_id"`

	SubscriberFirstName string     `db:"subscriber_first_name" json:"subscriber_first_name"`
	SubscriberLastName  string     `db:"subscriber_last_name" json:"subscriber_last_name"`
	MemberID            string     `db:"member_id" json:"member_id"`
	GroupNumber         string     `db:"group_number" json:"group_number,omitempty"`
	DateOfBirth         *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	PayerName           string     `db:"payer_name" json:"payer_name"`
	PayerID             string     `db:"payer_id" json:"payer_id,omitempty"`

	VerificationStatus VerificationStatus `db:"verification_status" json:"verification_status"`
	VerificationResult *StoredResult      `db:"verification_result" json:"verification_result,omitempty"`
	// RetryAttempts only ever grows; it is reset solely by explicit
	// administrative action.
	RetryAttempts int `db:"retry_attempts" json:"retry_attempts"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Snapshot produces the read-only view the eligibility adapter consumes.
func (r *InsuranceRecord) Snapshot() eligibility.Snapshot {
	return eligibility.Snapshot{
		SubscriberFirstName: r.SubscriberFirstName,
		SubscriberLastName:  r.SubscriberLastName,
		MemberID:            r.MemberID,
		GroupNumber:         r.GroupNumber,
		DateOfBirth:         r.DateOfBirth,
		PayerName:           r.PayerName,
		PayerID:             r.PayerID,
	}
}

// LastError returns the error of the last verification attempt, if any.
func (r *InsuranceRecord) LastError() *eligibility.VerificationError {
	if r.VerificationResult == nil {
		return nil
	}
	return r.VerificationResult.Error
}
