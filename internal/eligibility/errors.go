package eligibility

import (
	"fmt"
	"strings"

	"github.com/sprouthealth/intake/internal/platform/x12"
)

// AAA positional fields. AAA03 carries the reject reason code.
const aaaRejectReason = 3

// Internal error codes synthesized by this package (not payer AAA codes).
const (
	CodeMentalHealthUnclear = "MENTAL_HEALTH_UNCLEAR"
	CodeCoverageInactive    = "COVERAGE_INACTIVE"
	CodeNoActiveCoverage    = "NO_ACTIVE_COVERAGE"
	CodeMissingFields       = "MISSING_REQUIRED_FIELDS"
	CodeTransportTimeout    = "TRANSPORT_TIMEOUT"
	CodeTransportFailure    = "TRANSPORT_FAILURE"
	CodeMalformedResponse   = "MALFORMED_RESPONSE"
)

type classification struct {
	category  Category
	message   string
	retryable bool
}

// aaaCodeTable maps AAA reject reason codes to the stable taxonomy.
var aaaCodeTable = map[string]classification{
	"42": {CategoryNetworkError, "payer unable to respond at current time", true},
	"80": {CategoryTimeout, "no response received, transaction terminated", true},
	"43": {CategoryUnknown, "invalid or missing provider identification", false},
	"72": {CategoryInvalidMemberID, "invalid or missing subscriber ID", false},
	"73": {CategoryInvalidMemberID, "invalid or missing subscriber name", false},
	"75": {CategoryInvalidMemberID, "subscriber not found", false},
	"76": {CategoryInvalidMemberID, "duplicate subscriber ID", false},
	"78": {CategoryCoverageNotActive, "subscriber not in group or plan identified", false},
	"58": {CategoryUnknown, "invalid or missing date of birth", false},
	"71": {CategoryInvalidMemberID, "patient birth date does not match payer records", false},
	"57": {CategoryUnknown, "invalid or missing date of service", false},
	"79": {CategoryServiceNotCovered, "invalid participant identification", false},
	"33": {CategoryInvalidMemberID, "input errors in subscriber identification", false},
}

// ClassifyErrorSegments maps the AAA segments of a 271 to a single
// VerificationError. The first recognized code wins; when no code is
// recognized the raw code is preserved in the message rather than silently
// dropped. Timeout and network categories are always retryable.
func ClassifyErrorSegments(segments []x12.Segment) *VerificationError {
	var firstCode string
	for i := range segments {
		code := strings.TrimSpace(segments[i].Element(aaaRejectReason))
		if code == "" {
			continue
		}
		if firstCode == "" {
			firstCode = code
		}
		if c, ok := aaaCodeTable[code]; ok {
			return &VerificationError{
				Code:      code,
				Category:  c.category,
				Message:   c.message,
				Retryable: c.retryable || alwaysRetryable(c.category),
			}
		}
	}

	if firstCode == "" {
		firstCode = "AAA"
	}
	return &VerificationError{
		Code:      firstCode,
		Category:  CategoryUnknown,
		Message:   fmt.Sprintf("unrecognized payer rejection code %q", firstCode),
		Retryable: false,
	}
}

func alwaysRetryable(c Category) bool {
	return c == CategoryTimeout || c == CategoryNetworkError
}

// Severity is an adapter-facing derivation used only to decide retry
// eligibility. It is never stored on the error.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// highSeverityCodes indicate coverage is genuinely inactive, terminated,
// out of network, or the payer is unsupported. Never retried.
var highSeverityCodes = map[string]bool{
	CodeCoverageInactive: true,
	CodeNoActiveCoverage: true,
	"78":                 true,
	"79":                 true,
	"43":                 true,
}

// SeverityOf derives the retry severity for an error. A nil error (status
// ambiguous without an explicit failure) defaults to medium.
func SeverityOf(err *VerificationError) Severity {
	if err == nil {
		return SeverityMedium
	}
	if highSeverityCodes[err.Code] {
		return SeverityHigh
	}
	if err.Category == CategoryTimeout || err.Category == CategoryNetworkError {
		return SeverityLow
	}
	return SeverityMedium
}
