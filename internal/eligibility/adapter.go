package eligibility

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sprouthealth/intake/internal/platform/x12"
)

// DefaultTimeout bounds one transport round trip. Enforced by the adapter,
// not the transport, so a misbehaving transport cannot hang the caller.
const DefaultTimeout = 30 * time.Second

// Snapshot is the read-only view of an insurance record the adapter needs
// to build an inquiry. The adapter never writes back to the record.
type Snapshot struct {
	SubscriberFirstName string
	SubscriberLastName  string
	MemberID            string
	GroupNumber         string
	DateOfBirth         *time.Time
	PayerName           string
	PayerID             string
}

// Adapter is the public contract of the eligibility subsystem: one call,
// one transport round trip, one result. Expected failure modes (timeout,
// network failure, payer rejections, malformed responses) are returned as
// results, never as errors or panics.
type Adapter interface {
	VerifyEligibility(ctx context.Context, snap Snapshot) *VerificationResult
}

// AdapterConfig configures an X12Adapter. Transport is required; everything
// else has defaults.
type AdapterConfig struct {
	Transport    Transport
	Timeout      time.Duration
	ProviderName string
	ProviderNPI  string
	Logger       zerolog.Logger
	Now          func() time.Time
}

// X12Adapter is the generic adapter: it drives the 270/271 pair through the
// configured transport for any payer without a per-payer override.
type X12Adapter struct {
	transport    Transport
	timeout      time.Duration
	providerName string
	providerNPI  string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewX12Adapter builds the generic adapter. A nil transport is a programmer
// error and panics.
func NewX12Adapter(cfg AdapterConfig) *X12Adapter {
	if cfg.Transport == nil {
		panic("eligibility: adapter requires a transport")
	}
	a := &X12Adapter{
		transport:    cfg.Transport,
		timeout:      cfg.Timeout,
		providerName: cfg.ProviderName,
		providerNPI:  cfg.ProviderNPI,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// VerifyEligibility runs one verification attempt: build the 270, send it,
// decode the 271, and assemble a result. It has no side effects beyond the
// transport call; persisting the result is the caller's responsibility.
func (a *X12Adapter) VerifyEligibility(ctx context.Context, snap Snapshot) *VerificationResult {
	if snap.MemberID == "" || snap.PayerName == "" {
		return a.result(StatusFailed, TriUnknown, nil, &VerificationError{
			Code:      CodeMissingFields,
			Category:  CategoryUnknown,
			Message:   "member ID and payer name are required before verification",
			Retryable: false,
		})
	}

	inquiry := x12.EncodeInquiry(x12.Inquiry{
		SubscriberFirstName: snap.SubscriberFirstName,
		SubscriberLastName:  snap.SubscriberLastName,
		MemberID:            snap.MemberID,
		GroupNumber:         snap.GroupNumber,
		DateOfBirth:         snap.DateOfBirth,
		PayerName:           snap.PayerName,
		PayerID:             snap.PayerID,
		ProviderName:        a.providerName,
		ProviderNPI:         a.providerNPI,
		ServiceDate:         a.now().UTC(),
	})

	raw, err := a.send(ctx, inquiry.Marshal())
	if err != nil {
		return a.transportFailure(err)
	}

	response, err := x12.Decode(raw)
	if err != nil {
		a.logger.Warn().Err(err).Msg("eligibility response did not decode")
		return a.result(StatusFailed, TriUnknown, nil, &VerificationError{
			Code:      CodeMalformedResponse,
			Category:  CategoryUnknown,
			Message:   "payer response could not be decoded",
			Retryable: true,
		})
	}

	// Error segments take precedence: no coverage is extracted from a
	// transaction carrying explicit errors.
	if aaa := response.SegmentsByTag("AAA"); len(aaa) > 0 {
		verr := ClassifyErrorSegments(aaa)
		eligible := TriUnknown
		if !verr.Retryable {
			eligible = TriFalse
		}
		return a.result(StatusFailed, eligible, nil, verr)
	}

	ex := ExtractCoverage(response)
	switch {
	case ex.Eligible == TriTrue:
		return a.result(StatusVerified, TriTrue, ex.Coverage, nil)
	case ex.Unclear:
		return a.result(StatusManualReview, TriUnknown, ex.Coverage, &VerificationError{
			Code:      CodeMentalHealthUnclear,
			Category:  CategoryServiceNotCovered,
			Message:   "general coverage is active but mental-health benefits were not disclosed",
			Retryable: true,
		})
	default:
		code, msg := CodeNoActiveCoverage, "no active coverage found for member"
		if ex.InactiveSeen {
			code, msg = CodeCoverageInactive, "payer reports coverage is inactive"
		}
		return a.result(StatusFailed, TriFalse, ex.Coverage, &VerificationError{
			Code:      code,
			Category:  CategoryCoverageNotActive,
			Message:   msg,
			Retryable: false,
		})
	}
}

// send performs the transport call under the adapter deadline. The call is
// not cancelled mid-flight beyond the context deadline; an abandoned call
// finishes in the background and its result is discarded.
func (a *X12Adapter) send(ctx context.Context, raw []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type reply struct {
		raw []byte
		err error
	}
	done := make(chan reply, 1)
	go func() {
		resp, err := a.transport.Send(ctx, raw)
		done <- reply{raw: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.raw, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *X12Adapter) transportFailure(err error) *VerificationResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return a.result(StatusFailed, TriUnknown, nil, &VerificationError{
			Code:      CodeTransportTimeout,
			Category:  CategoryTimeout,
			Message:   "eligibility check timed out waiting for the payer",
			Retryable: true,
		})
	}
	a.logger.Warn().Err(err).Msg("eligibility transport failed")

	var netErr net.Error
	if errors.As(err, &netErr) {
		return a.result(StatusFailed, TriUnknown, nil, &VerificationError{
			Code:      CodeTransportFailure,
			Category:  CategoryNetworkError,
			Message:   "could not reach the eligibility network",
			Retryable: true,
		})
	}
	return a.result(StatusFailed, TriUnknown, nil, &VerificationError{
		Code:      CodeTransportFailure,
		Category:  CategoryUnknown,
		Message:   "eligibility check failed unexpectedly",
		Retryable: true,
	})
}

func (a *X12Adapter) result(status Status, eligible Tristate, cov *Coverage, verr *VerificationError) *VerificationResult {
	return &VerificationResult{
		Status:     status,
		Eligible:   eligible,
		Coverage:   cov,
		Error:      verr,
		VerifiedAt: a.now().UTC(),
		ResponseID: uuid.New().String(),
	}
}
