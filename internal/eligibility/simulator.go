package eligibility

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sprouthealth/intake/internal/platform/x12"
)

// Member-ID substrings that trigger canned simulator responses.
const (
	simTriggerInvalid  = "INVALID"
	simTriggerInactive = "INACTIVE"
	simTriggerNoMental = "NOMENTAL"
	simTriggerTimeout  = "TIMEOUT"
)

// SimulatedTransport is a deterministic Transport keyed by member-ID
// substring patterns. It lets the adapter and the verification flow be
// exercised without network access. Anything that does not match a trigger
// pattern yields a canned success response with active mental-health
// coverage.
type SimulatedTransport struct {
	// TimeoutDelay is how long a TIMEOUT-triggered call blocks before
	// responding. The adapter's deadline is expected to fire first.
	TimeoutDelay time.Duration

	calls atomic.Int64
}

// NewSimulatedTransport returns a simulator whose TIMEOUT scenario blocks
// for 60 seconds, past the adapter's default deadline.
func NewSimulatedTransport() *SimulatedTransport {
	return &SimulatedTransport{TimeoutDelay: 60 * time.Second}
}

// Calls returns how many times Send has been invoked. Used by tests to
// assert that cached results short-circuit the transport.
func (s *SimulatedTransport) Calls() int {
	return int(s.calls.Load())
}

func (s *SimulatedTransport) Send(ctx context.Context, raw []byte) ([]byte, error) {
	s.calls.Add(1)

	tx, err := x12.Decode(raw)
	if err != nil {
		return nil, err
	}
	memberID := x12.SubscriberMemberID(tx)

	switch {
	case strings.Contains(memberID, simTriggerTimeout):
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.TimeoutDelay):
		}
		return s.respond(cannedSuccess()), nil
	case strings.Contains(memberID, simTriggerInvalid):
		return s.respond(cannedRejection("72")), nil
	case strings.Contains(memberID, simTriggerInactive):
		return s.respond(cannedInactive()), nil
	case strings.Contains(memberID, simTriggerNoMental):
		return s.respond(cannedGeneralOnly()), nil
	default:
		return s.respond(cannedSuccess()), nil
	}
}

func (s *SimulatedTransport) respond(tx *x12.Transaction) []byte {
	return tx.Marshal()
}

func canned271(body ...x12.Segment) *x12.Transaction {
	tx := &x12.Transaction{}
	tx.Segments = append(tx.Segments, x12.Segment{Tag: "ST", Elements: []string{"271", "000000001"}})
	tx.Segments = append(tx.Segments, body...)
	tx.Segments = append(tx.Segments, x12.Segment{Tag: "SE", Elements: []string{"", "000000001"}})
	return tx
}

// cannedSuccess: active mental-health coverage with a 25.00 copay, a
// partially met 500.00 deductible, 20% coinsurance, and an effective date.
func cannedSuccess() *x12.Transaction {
	return canned271(
		x12.Segment{Tag: "EB", Elements: []string{"1", "IND", x12.ServiceTypeMentalHealth}},
		x12.Segment{Tag: "EB", Elements: []string{"B", "IND", x12.ServiceTypeMentalHealth, "", "", "27", "25.00"}},
		x12.Segment{Tag: "EB", Elements: []string{"C", "IND", "30", "", "", "23", "500.00"}},
		x12.Segment{Tag: "EB", Elements: []string{"C", "IND", "30", "", "", "29", "350.00"}},
		x12.Segment{Tag: "EB", Elements: []string{"A", "IND", "30", "", "", "", "", "0.20"}},
		x12.Segment{Tag: "DTP", Elements: []string{x12.DateQualifierEffective, "D8", "20250101"}},
	)
}

// cannedRejection: an AAA validation error with the given reject reason code.
func cannedRejection(code string) *x12.Transaction {
	return canned271(
		x12.Segment{Tag: "AAA", Elements: []string{"N", "", code, "C"}},
	)
}

// cannedInactive: coverage exists but is inactive.
func cannedInactive() *x12.Transaction {
	return canned271(
		x12.Segment{Tag: "EB", Elements: []string{"6", "IND", "30"}},
		x12.Segment{Tag: "DTP", Elements: []string{x12.DateQualifierTermination, "D8", "20250630"}},
	)
}

// cannedGeneralOnly: active general coverage, nothing mental-health-specific.
func cannedGeneralOnly() *x12.Transaction {
	return canned271(
		x12.Segment{Tag: "EB", Elements: []string{"1", "IND", "30"}},
		x12.Segment{Tag: "EB", Elements: []string{"B", "IND", "30", "", "", "27", "40.00"}},
	)
}
