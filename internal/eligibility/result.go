// Package eligibility turns a captured insurance member record into a
// confirmed, rejected, or ambiguous coverage determination by driving one
// X12 270/271 round trip through a clearinghouse transport.
package eligibility

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the outcome of one verification attempt.
type Status string

const (
	StatusVerified     Status = "VERIFIED"
	StatusFailed       Status = "FAILED"
	StatusManualReview Status = "MANUAL_REVIEW"
)

// Tristate is a three-valued eligibility determination. The zero value is
// unknown. It serializes as true / false / null so "payer did not say" is
// distinguishable from "payer said no".
type Tristate int

const (
	TriUnknown Tristate = iota
	TriFalse
	TriTrue
)

func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case TriTrue:
		return []byte("true"), nil
	case TriFalse:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (t *Tristate) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true":
		*t = TriTrue
	case "false":
		*t = TriFalse
	case "null":
		*t = TriUnknown
	default:
		return fmt.Errorf("eligibility: invalid tristate value %q", string(b))
	}
	return nil
}

func (t Tristate) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Money is a monetary amount with its currency, rounded to two decimal
// places on extraction.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Deductible carries the plan deductible and, when the payer disclosed it,
// the portion already met.
type Deductible struct {
	Amount    float64  `json:"amount"`
	AmountMet *float64 `json:"amount_met,omitempty"`
	Currency  string   `json:"currency"`
}

// Coverage is the normalized benefit structure extracted from a 271. Every
// optional field means "not disclosed by the payer" when absent, never zero.
type Coverage struct {
	MentalHealthCovered bool        `json:"mental_health_covered"`
	Copay               *Money      `json:"copay,omitempty"`
	Deductible          *Deductible `json:"deductible,omitempty"`
	CoinsurancePercent  *int        `json:"coinsurance_percent,omitempty"`
	EffectiveDate       *time.Time  `json:"effective_date,omitempty"`
	TerminationDate     *time.Time  `json:"termination_date,omitempty"`
}

// Category is the stable error taxonomy. Payer-specific codes are classified
// into exactly one category.
type Category string

const (
	CategoryInvalidMemberID   Category = "invalid_member_id"
	CategoryCoverageNotActive Category = "coverage_not_active"
	CategoryServiceNotCovered Category = "service_not_covered"
	CategoryNetworkError      Category = "network_error"
	CategoryTimeout           Category = "timeout"
	CategoryUnknown           Category = "unknown"
)

// VerificationError describes one failed or ambiguous attempt. It is created
// once and never mutated; a new attempt produces a new error.
type VerificationError struct {
	Code      string   `json:"code"`
	Category  Category `json:"category"`
	Message   string   `json:"message"`
	Retryable bool     `json:"retryable"`
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Category, e.Message)
}

// VerificationResult is the output of one verification attempt.
//
// Invariants:
//   - StatusVerified implies Eligible == TriTrue and Error == nil.
//   - StatusManualReview carries TriUnknown eligibility from an explicitly
//     ambiguous response (mental-health coverage unclear while general
//     coverage exists).
//   - StatusFailed implies Eligible == TriFalse or a populated Error.
type VerificationResult struct {
	Status     Status             `json:"status"`
	Eligible   Tristate           `json:"eligible"`
	Coverage   *Coverage          `json:"coverage,omitempty"`
	Error      *VerificationError `json:"error,omitempty"`
	VerifiedAt time.Time          `json:"verified_at"`
	ResponseID string             `json:"response_id"`
}

// MarshalResult serializes a result for storage or caching.
func MarshalResult(r *VerificationResult) ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalResult is the inverse of MarshalResult.
func UnmarshalResult(b []byte) (*VerificationResult, error) {
	var r VerificationResult
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("eligibility: decode stored result: %w", err)
	}
	return &r, nil
}
