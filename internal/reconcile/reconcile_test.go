package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCheck_WithinToleranceIsOK(t *testing.T) {
	cfg := Config{ToleranceUSD: decimal.NewFromInt(5)}
	r := Check(cfg, decimal.NewFromInt(100), decimal.NewFromInt(103), true, decimal.Zero)
	require.True(t, r.OK)
}

func TestCheck_ExceedsToleranceIsMismatch(t *testing.T) {
	cfg := Config{ToleranceUSD: decimal.NewFromInt(5)}
	r := Check(cfg, decimal.NewFromInt(100), decimal.NewFromInt(200), true, decimal.Zero)
	require.False(t, r.OK)
	require.Equal(t, "RECONCILE_MISMATCH", r.ReasonCode)
}

func TestCheck_FallsBackWhenNoRemote(t *testing.T) {
	cfg := Config{ToleranceUSD: decimal.NewFromInt(1)}
	r := Check(cfg, decimal.NewFromInt(100), decimal.Zero, false, decimal.NewFromInt(100))
	require.True(t, r.OK)
}

func TestOnAcquisitionFailure_GraceWindowDefers(t *testing.T) {
	s := NewState(Config{GraceTicks: 10, MismatchConfirmations: 3})
	out := s.OnAcquisitionFailure(5, 0)
	require.True(t, out.Deferred)
	require.Equal(t, "RECONCILE_GRACE", out.DeferredReason)
}

func TestOnAcquisitionFailure_AutoResyncAfterCooldown(t *testing.T) {
	s := NewState(Config{GraceTicks: 0, AutoResyncCooldownTicks: 5, MismatchConfirmations: 10})
	out := s.OnAcquisitionFailure(100, 0)
	require.True(t, out.ShouldAutoResync)
}

func TestOnCheckResult_HardHaltAfterMismatchConfirmations(t *testing.T) {
	s := NewState(Config{AutoResyncCooldownTicks: 1000, MismatchConfirmations: 3})
	mismatch := CheckResult{OK: false}
	s.OnCheckResult(1, mismatch)
	s.OnCheckResult(2, mismatch)
	out := s.OnCheckResult(3, mismatch)
	require.True(t, out.ShouldHardHalt)
}

func TestAnomalyEscalation_ReduceOnlyThenHaltThenResume(t *testing.T) {
	cfg := Config{AutoResyncCooldownTicks: 1000, MismatchConfirmations: 1000, AnomalyReduceOnlyStreak: 2, AnomalyHaltStreak: 4, AnomalyResumeStreak: 2}
	s := NewState(cfg)
	mismatch := CheckResult{OK: false}
	ok := CheckResult{OK: true}

	s.OnCheckResult(1, mismatch)
	out := s.OnCheckResult(2, mismatch)
	require.True(t, out.EnterAnomalyReduceOnly)
	require.True(t, s.AnomalyReduceOnly())

	s.OnCheckResult(3, mismatch)
	out = s.OnCheckResult(4, mismatch)
	require.True(t, out.EnterAnomalyHalt)
	require.True(t, s.AnomalyHalted())

	s.ClearAnomalyHalt()
	s.OnCheckResult(5, ok)
	out = s.OnCheckResult(6, ok)
	// anomalyReduceOnly was cleared only by explicit path; since ClearAnomalyHalt
	// doesn't touch anomalyReduceOnly flag directly it should have already been
	// set true from streak 2; confirm healthy streak eventually releases it.
	require.True(t, out.ReleaseAnomalyReduceOnly || !s.AnomalyReduceOnly())
}

func TestIsStale_NoEnqueuedMsIsStale(t *testing.T) {
	stale, reason := IsStale(PendingOrderCheck{HasEnqueuedMs: false})
	require.True(t, stale)
	require.Equal(t, StaleUnknownEnqueue, reason)
}

func TestIsStale_AbsentFromRemoteOpenOrdersIsStale(t *testing.T) {
	stale, reason := IsStale(PendingOrderCheck{HasEnqueuedMs: true, EnqueuedMs: 0, NowMs: 10, StaleMs: 100000, RemoteOpenIDsKnown: true, IsRemoteOpen: false})
	require.True(t, stale)
	require.Equal(t, StaleNotOpenRemote, reason)
}

func TestIsStale_FreshOrderIsNotStale(t *testing.T) {
	stale, _ := IsStale(PendingOrderCheck{HasEnqueuedMs: true, EnqueuedMs: 1000, NowMs: 1500, StaleMs: 5000, RemoteOpenIDsKnown: true, IsRemoteOpen: true})
	require.False(t, stale)
}
