package insurance

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sprouthealth/intake/internal/domain/auditevent"
	"github.com/sprouthealth/intake/internal/eligibility"
	"github.com/sprouthealth/intake/internal/platform/verifycache"
)

// flakyTransport fails its first n calls with a network error, then delegates
// to the simulator.
type flakyTransport struct {
	failures int
	inner    eligibility.Transport
	calls    int
}

func (f *flakyTransport) Send(ctx context.Context, raw []byte) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}
	return f.inner.Send(ctx, raw)
}

type testEnv struct {
	svc   *Service
	repo  *MemoryRepo
	audit *auditevent.Service
	sim   *eligibility.SimulatedTransport
}

func newTestEnv(t *testing.T, transport eligibility.Transport) *testEnv {
	t.Helper()
	sim := eligibility.NewSimulatedTransport()
	if transport == nil {
		transport = sim
	}
	adapter := eligibility.NewX12Adapter(eligibility.AdapterConfig{
		Transport:    transport,
		ProviderName: "Sprout Health",
		ProviderNPI:  "1234567890",
		Logger:       zerolog.Nop(),
	})
	factory := eligibility.NewFactory(adapter, zerolog.Nop())
	repo := NewMemoryRepo()
	audit := auditevent.NewService(auditevent.NewMemoryRepo(), zerolog.Nop())
	svc := NewService(repo, factory, audit, verifycache.NewMemoryStore(), zerolog.Nop())
	return &testEnv{svc: svc, repo: repo, audit: audit, sim: sim}
}

func newRecord(t *testing.T, env *testEnv, memberID string) *InsuranceRecord {
	t.Helper()
	rec := &InsuranceRecord{
		SessionID:           uuid.New(),
		SubscriberFirstName: "Sam",
		SubscriberLastName:  "Rivera",
		MemberID:            memberID,
		PayerName:           "Aetna",
		PayerID:             "60054",
	}
	if err := env.svc.Create(context.Background(), rec); err != nil {
		t.Fatalf("failed to create record: %v", err)
	}
	return rec
}

func auditTrail(t *testing.T, env *testEnv, id uuid.UUID) []string {
	t.Helper()
	entries, _, err := env.audit.ListByInsurance(context.Background(), id, 100, 0)
	if err != nil {
		t.Fatalf("failed to list audit trail: %v", err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.PreviousStatus + "->" + e.NewStatus
	}
	return out
}

func TestRequestVerification_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := newRecord(t, env, "W123456789")

	result, err := env.svc.RequestVerification(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != eligibility.StatusVerified {
		t.Fatalf("expected VERIFIED, got %s", result.Status)
	}

	stored, err := env.svc.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.VerificationStatus != StatusVerified {
		t.Errorf("expected record status verified, got %s", stored.VerificationStatus)
	}
	if stored.VerificationResult == nil || !stored.VerificationResult.Coverage.MentalHealthCovered {
		t.Error("expected coverage persisted on the record")
	}
	if env.sim.Calls() != 1 {
		t.Errorf("expected 1 transport call, got %d", env.sim.Calls())
	}

	trail := auditTrail(t, env, rec.ID)
	want := []string{"pending->in_progress", "in_progress->verified"}
	if len(trail) != len(want) {
		t.Fatalf("expected %v, got %v", want, trail)
	}
	for i := range want {
		if trail[i] != want[i] {
			t.Errorf("audit entry %d: expected %s, got %s", i, want[i], trail[i])
		}
	}
}

func TestRequestVerification_Idempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := newRecord(t, env, "W123456789")

	first, err := env.svc.RequestVerification(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := env.svc.RequestVerification(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.sim.Calls() != 1 {
		t.Errorf("expected cached result to short-circuit the transport, got %d calls", env.sim.Calls())
	}
	if second.ResponseID != first.ResponseID {
		t.Errorf("expected the same stored result, got %s and %s", first.ResponseID, second.ResponseID)
	}
}

func TestRequestVerification_NotReady(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := newRecord(t, env, "W1")
	if err := env.repo.UpdateStatus(context.Background(), rec.ID, StatusManualEntry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := env.svc.RequestVerification(context.Background(), rec.ID)
	if !errors.Is(err, ErrVerificationNotAllowed) {
		t.Errorf("expected ErrVerificationNotAllowed, got %v", err)
	}
	if env.sim.Calls() != 0 {
		t.Errorf("expected no transport call, got %d", env.sim.Calls())
	}
}

func TestRequestVerification_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.RequestVerification(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestVerification_InvalidMember(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := newRecord(t, env, "INVALID-001")

	result, err := env.svc.RequestVerification(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != eligibility.StatusFailed {
		t.Fatalf("expected FAILED, got %s", result.Status)
	}

	stored, _ := env.svc.Get(context.Background(), rec.ID)
	if stored.VerificationStatus != StatusFailed {
		t.Errorf("expected record status failed, got %s", stored.VerificationStatus)
	}
	if env.svc.CanRetry(stored) {
		t.Error("expected non-retryable rejection to block retry")
	}
}

func TestRequestVerification_ManualReview(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := newRecord(t, env, "NOMENTAL-001")

	result, err := env.svc.RequestVerification(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != eligibility.StatusManualReview {
		t.Fatalf("expected MANUAL_REVIEW, got %s", result.Status)
	}

	stored, _ := env.svc.Get(context.Background(), rec.ID)
	if stored.VerificationStatus != StatusManualReview {
		t.Errorf("expected record status manual_review, got %s", stored.VerificationStatus)
	}
	if !env.svc.CanRetry(stored) {
		t.Error("expected ambiguous result to allow retry")
	}
}

func TestRetry(t *testing.T) {
	flaky := &flakyTransport{failures: 1, inner: eligibility.NewSimulatedTransport()}
	env := newTestEnv(t, flaky)
	rec := newRecord(t, env, "W123456789")

	result, err := env.svc.RequestVerification(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != eligibility.StatusFailed {
		t.Fatalf("expected first attempt to fail, got %s", result.Status)
	}
	if result.Error == nil || result.Error.Code != eligibility.CodeTransportFailure {
		t.Fatalf("expected TRANSPORT_FAILURE, got %+v", result.Error)
	}

	stored, _ := env.svc.Get(context.Background(), rec.ID)
	if !env.svc.CanRetry(stored) {
		t.Fatal("expected network failure to be retryable")
	}

	result, err = env.svc.Retry(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != eligibility.StatusVerified {
		t.Fatalf("expected retry to succeed, got %s (error: %+v)", result.Status, result.Error)
	}

	stored, _ = env.svc.Get(context.Background(), rec.ID)
	if stored.VerificationStatus != StatusVerified {
		t.Errorf("expected record status verified, got %s", stored.VerificationStatus)
	}
	if stored.RetryAttempts != 1 {
		t.Errorf("expected 1 retry attempt, got %d", stored.RetryAttempts)
	}
	history := stored.VerificationResult.RetryHistory
	if len(history) != 1 {
		t.Fatalf("expected exactly one history entry, got %d", len(history))
	}
	if history[0].Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", history[0].Attempt)
	}
	if history[0].PreviousErrorCode != eligibility.CodeTransportFailure {
		t.Errorf("expected previous error code recorded, got %q", history[0].PreviousErrorCode)
	}
	if history[0].Timestamp.IsZero() {
		t.Error("expected history timestamp")
	}

	trail := auditTrail(t, env, rec.ID)
	want := []string{
		"pending->in_progress",
		"in_progress->failed",
		"failed->in_progress",
		"in_progress->verified",
	}
	if len(trail) != len(want) {
		t.Fatalf("expected %v, got %v", want, trail)
	}
	for i := range want {
		if trail[i] != want[i] {
			t.Errorf("audit entry %d: expected %s, got %s", i, want[i], trail[i])
		}
	}
}

func TestRetry_NotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := newRecord(t, env, "W1")
	if _, err := env.svc.RequestVerification(context.Background(), rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.svc.Retry(context.Background(), rec.ID); !errors.Is(err, ErrRetryNotAllowed) {
		t.Errorf("expected ErrRetryNotAllowed for a verified record, got %v", err)
	}

	if _, err := env.svc.Retry(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// Retry is only for re-running a failed or ambiguous attempt; records that
// have not been verified yet must go through RequestVerification and must
// not accrue retry attempts.
func TestRetry_RequiresPriorAttempt(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, status := range []VerificationStatus{
		StatusPending, StatusInProgress, StatusOCRComplete,
		StatusOCRNeedsReview, StatusManualEntry, StatusManualEntryComplete,
	} {
		rec := newRecord(t, env, "W1")
		if err := env.repo.UpdateStatus(ctx, rec.ID, status); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := env.svc.Retry(ctx, rec.ID); !errors.Is(err, ErrRetryNotAllowed) {
			t.Errorf("status %s: expected ErrRetryNotAllowed, got %v", status, err)
		}

		stored, _ := env.svc.Get(ctx, rec.ID)
		if stored.VerificationStatus != status {
			t.Errorf("status %s: expected record untouched, got %s", status, stored.VerificationStatus)
		}
		if stored.RetryAttempts != 0 {
			t.Errorf("status %s: expected no retry attempts, got %d", status, stored.RetryAttempts)
		}
		if stored.VerificationResult != nil {
			t.Errorf("status %s: expected no retry history, got %+v", status, stored.VerificationResult)
		}
	}
	if env.sim.Calls() != 0 {
		t.Errorf("expected no transport calls, got %d", env.sim.Calls())
	}
}

func TestCanRetry(t *testing.T) {
	env := newTestEnv(t, nil)

	retryableErr := &eligibility.VerificationError{
		Code: eligibility.CodeTransportTimeout, Category: eligibility.CategoryTimeout, Retryable: true,
	}
	highErr := &eligibility.VerificationError{
		Code: eligibility.CodeCoverageInactive, Category: eligibility.CategoryCoverageNotActive, Retryable: false,
	}
	nonRetryableErr := &eligibility.VerificationError{
		Code: "72", Category: eligibility.CategoryInvalidMemberID, Retryable: false,
	}

	tests := []struct {
		name string
		rec  InsuranceRecord
		want bool
	}{
		{
			"failed with retryable error",
			InsuranceRecord{VerificationStatus: StatusFailed, VerificationResult: &StoredResult{VerificationResult: eligibility.VerificationResult{Error: retryableErr}}},
			true,
		},
		{
			"verified never retries",
			InsuranceRecord{VerificationStatus: StatusVerified},
			false,
		},
		{
			"self_pay never retries",
			InsuranceRecord{VerificationStatus: StatusSelfPay},
			false,
		},
		{
			"attempts exhausted",
			InsuranceRecord{VerificationStatus: StatusFailed, RetryAttempts: MaxRetryAttempts, VerificationResult: &StoredResult{VerificationResult: eligibility.VerificationResult{Error: retryableErr}}},
			false,
		},
		{
			"one attempt left",
			InsuranceRecord{VerificationStatus: StatusFailed, RetryAttempts: MaxRetryAttempts - 1, VerificationResult: &StoredResult{VerificationResult: eligibility.VerificationResult{Error: retryableErr}}},
			true,
		},
		{
			"high severity blocks",
			InsuranceRecord{VerificationStatus: StatusFailed, VerificationResult: &StoredResult{VerificationResult: eligibility.VerificationResult{Error: highErr}}},
			false,
		},
		{
			"non-retryable blocks",
			InsuranceRecord{VerificationStatus: StatusFailed, VerificationResult: &StoredResult{VerificationResult: eligibility.VerificationResult{Error: nonRetryableErr}}},
			false,
		},
		{
			"no prior error",
			InsuranceRecord{VerificationStatus: StatusFailed},
			true,
		},
		{
			"pending has nothing to retry",
			InsuranceRecord{VerificationStatus: StatusPending},
			false,
		},
		{
			"manual entry has nothing to retry",
			InsuranceRecord{VerificationStatus: StatusManualEntry, VerificationResult: &StoredResult{VerificationResult: eligibility.VerificationResult{Error: retryableErr}}},
			false,
		},
		{
			"in progress cannot retry mid-flight",
			InsuranceRecord{VerificationStatus: StatusInProgress},
			false,
		},
		{
			"manual review retries",
			InsuranceRecord{VerificationStatus: StatusManualReview, VerificationResult: &StoredResult{VerificationResult: eligibility.VerificationResult{Error: &eligibility.VerificationError{Code: eligibility.CodeMentalHealthUnclear, Category: eligibility.CategoryServiceNotCovered, Retryable: true}}}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			if got := env.svc.CanRetry(&rec); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCachedResultValid(t *testing.T) {
	env := newTestEnv(t, nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := &InsuranceRecord{
		VerificationStatus: StatusVerified,
		VerificationResult: &StoredResult{
			VerificationResult: eligibility.VerificationResult{
				Status: eligibility.StatusVerified, VerifiedAt: base,
			},
		},
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just verified", base, true},
		{"one minute before expiry", base.Add(24*time.Hour - time.Minute), true},
		{"at expiry", base.Add(24 * time.Hour), false},
		{"past expiry", base.Add(24*time.Hour + time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.svc.SetClock(func() time.Time { return tt.now })
			if got := env.svc.CachedResultValid(rec); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	env.svc.SetClock(time.Now)
	if env.svc.CachedResultValid(&InsuranceRecord{}) {
		t.Error("expected no result to be invalid")
	}
}

func TestElectSelfPay(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := newRecord(t, env, "W1")
	if err := env.svc.ElectSelfPay(context.Background(), rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := env.svc.Get(context.Background(), rec.ID)
	if stored.VerificationStatus != StatusSelfPay {
		t.Errorf("expected self_pay, got %s", stored.VerificationStatus)
	}

	// Terminal records cannot opt out.
	rec2 := newRecord(t, env, "W2")
	if _, err := env.svc.RequestVerification(context.Background(), rec2.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.ElectSelfPay(context.Background(), rec2.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from verified, got %v", err)
	}
}

func TestOCRFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := newRecord(t, env, "W1")

	if err := env.svc.BeginOCR(ctx, rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.CompleteOCR(ctx, rec.ID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := env.svc.Get(ctx, rec.ID)
	if stored.VerificationStatus != StatusOCRNeedsReview {
		t.Fatalf("expected ocr_needs_review, got %s", stored.VerificationStatus)
	}

	if err := env.svc.BeginManualEntry(ctx, rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verification is not available mid-entry.
	if _, err := env.svc.RequestVerification(ctx, rec.ID); !errors.Is(err, ErrVerificationNotAllowed) {
		t.Errorf("expected ErrVerificationNotAllowed, got %v", err)
	}
}

func TestCompleteManualEntry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec := newRecord(t, env, "W1")
	if err := env.svc.BeginOCR(ctx, rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.CompleteOCR(ctx, rec.ID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.BeginManualEntry(ctx, rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := ManualEntry{
		SubscriberFirstName: "Sam",
		SubscriberLastName:  "Rivera",
		MemberID:            "W987654321",
		PayerName:           "oscar   health",
		PayerID:             "OSCAR",
	}

	bad := entry
	bad.MemberID = ""
	if err := env.svc.CompleteManualEntry(ctx, rec.ID, bad); err == nil {
		t.Error("expected error for missing member ID")
	}

	bad = entry
	bad.PayerName = "Not A Real Payer"
	if err := env.svc.CompleteManualEntry(ctx, rec.ID, bad); !errors.Is(err, ErrUnknownPayer) {
		t.Errorf("expected ErrUnknownPayer, got %v", err)
	}

	if err := env.svc.CompleteManualEntry(ctx, rec.ID, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := env.svc.Get(ctx, rec.ID)
	if stored.VerificationStatus != StatusManualEntryComplete {
		t.Errorf("expected manual_entry_complete, got %s", stored.VerificationStatus)
	}
	if stored.PayerName != "Oscar Health" {
		t.Errorf("expected canonical payer name, got %q", stored.PayerName)
	}
	if stored.MemberID != "W987654321" {
		t.Errorf("expected updated member ID, got %q", stored.MemberID)
	}

	// And the record is now verifiable.
	result, err := env.svc.RequestVerification(ctx, rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != eligibility.StatusVerified {
		t.Errorf("expected VERIFIED, got %s", result.Status)
	}
}

func TestResetRetryAttempts(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := newRecord(t, env, "W1")

	if err := env.repo.AppendRetryHistory(context.Background(), rec.ID, RetryEntry{Attempt: 1, Timestamp: time.Now()}, StatusFailed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.ResetRetryAttempts(context.Background(), rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := env.svc.Get(context.Background(), rec.ID)
	if stored.RetryAttempts != 0 {
		t.Errorf("expected retry attempts reset, got %d", stored.RetryAttempts)
	}
	if len(stored.VerificationResult.RetryHistory) != 1 {
		t.Error("expected retry history preserved across a counter reset")
	}
}
