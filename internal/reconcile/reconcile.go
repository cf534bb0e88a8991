// Package reconcile compares the locally accounted notional against the
// venue's reported notional and drives the controller's two-phase
// reconcile protocol: grace-window tolerance for transient acquisition
// failures, auto-resync on sustained failure, a hard-halt counter for
// confirmed mismatches, and an orthogonal anomaly-streak state machine
// for forced reduce-only/halt. Grounded on the teacher's reconciler.go
// shape (compare local vs remote, tolerate then escalate) generalized to
// spec.md §4.9's exact escalation ladder.
package reconcile

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Config holds the reconciler's tunables.
type Config struct {
	ToleranceUSD            decimal.Decimal
	GraceTicks              int64
	AutoResyncCooldownTicks int64
	MismatchConfirmations   int64
	AnomalyReduceOnlyStreak int64
	AnomalyHaltStreak       int64
	AnomalyResumeStreak     int64
}

// CheckResult is the output of a single notional comparison.
type CheckResult struct {
	OK               bool
	DeltaNotionalUSD decimal.Decimal
	ReasonCode       string
}

// Check computes expected notional (preferring remote when available) and
// compares it against the locally accounted notional.
func Check(cfg Config, localNotionalUSD decimal.Decimal, remoteNotionalUSD decimal.Decimal, haveRemote bool, fallbackNotionalUSD decimal.Decimal) CheckResult {
	expected := fallbackNotionalUSD
	if haveRemote {
		expected = remoteNotionalUSD
	}
	delta := localNotionalUSD.Sub(expected)
	if delta.Abs().LessThanOrEqual(cfg.ToleranceUSD) {
		return CheckResult{OK: true, DeltaNotionalUSD: delta}
	}
	return CheckResult{OK: false, DeltaNotionalUSD: delta, ReasonCode: "RECONCILE_MISMATCH"}
}

// Outcome is the controller-facing decision after folding a tick's check
// result into the reconciler's escalation state.
type Outcome struct {
	Deferred            bool
	DeferredReason      string
	ShouldAutoResync    bool
	ShouldHardHalt      bool
	EnterAnomalyReduceOnly bool
	EnterAnomalyHalt       bool
	ReleaseAnomalyReduceOnly bool
}

// State is the reconciler's escalation-ladder bookkeeping, owned by the
// controller across ticks.
type State struct {
	mu                 sync.Mutex
	cfg                Config
	reconcileStreak    int64
	anomalyStreak      int64
	healthyStreak      int64
	lastAutoResyncTick int64
	anomalyReduceOnly  bool
	anomalyHalted      bool
}

// NewState constructs reconciler escalation state.
func NewState(cfg Config) *State {
	return &State{cfg: cfg}
}

// OnAcquisitionFailure handles the "acquire remote notional failed" path:
// grace window first, then auto-resync after cooldown, else streak++.
func (s *State) OnAcquisitionFailure(tick, lastFillTick int64) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tick-lastFillTick <= s.cfg.GraceTicks {
		s.reconcileStreak = 0
		return Outcome{Deferred: true, DeferredReason: "RECONCILE_GRACE"}
	}

	if tick-s.lastAutoResyncTick >= s.cfg.AutoResyncCooldownTicks {
		s.reconcileStreak = 0
		s.lastAutoResyncTick = tick
		return s.foldAnomaly(true, Outcome{ShouldAutoResync: true})
	}

	s.reconcileStreak++
	outcome := s.foldAnomaly(true, Outcome{})
	if s.reconcileStreak >= s.cfg.MismatchConfirmations {
		outcome.ShouldHardHalt = true
	}
	return outcome
}

// OnCheckResult handles a completed Check() comparison.
func (s *State) OnCheckResult(tick int64, result CheckResult) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.OK {
		s.reconcileStreak = 0
		return s.foldAnomaly(false, Outcome{})
	}

	if tick-s.lastAutoResyncTick >= s.cfg.AutoResyncCooldownTicks {
		s.reconcileStreak = 0
		s.lastAutoResyncTick = tick
		return s.foldAnomaly(true, Outcome{ShouldAutoResync: true})
	}

	s.reconcileStreak++
	outcome := s.foldAnomaly(true, Outcome{})
	if s.reconcileStreak >= s.cfg.MismatchConfirmations {
		outcome.ShouldHardHalt = true
	}
	return outcome
}

// foldAnomaly updates the orthogonal anomaly-streak state machine and
// annotates outcome with any resulting state-transition requests. Caller
// must hold s.mu.
func (s *State) foldAnomaly(anomalous bool, outcome Outcome) Outcome {
	if anomalous {
		s.anomalyStreak++
		s.healthyStreak = 0
		if s.anomalyStreak == s.cfg.AnomalyReduceOnlyStreak {
			s.anomalyReduceOnly = true
			outcome.EnterAnomalyReduceOnly = true
		}
		if s.anomalyStreak == s.cfg.AnomalyHaltStreak {
			s.anomalyHalted = true
			outcome.EnterAnomalyHalt = true
		}
		return outcome
	}

	s.anomalyStreak = 0
	s.healthyStreak++
	if s.healthyStreak >= s.cfg.AnomalyResumeStreak && s.anomalyReduceOnly && !s.anomalyHalted {
		s.anomalyReduceOnly = false
		outcome.ReleaseAnomalyReduceOnly = true
	}
	return outcome
}

// AnomalyReduceOnly reports whether anomaly-driven forced reduce-only is
// currently active.
func (s *State) AnomalyReduceOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anomalyReduceOnly
}

// AnomalyHalted reports whether anomaly-driven halt is active; halt
// requires an operator to clear, so there is no automatic release path.
func (s *State) AnomalyHalted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anomalyHalted
}

// ClearAnomalyHalt is the operator-only release of an anomaly halt.
func (s *State) ClearAnomalyHalt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalyHalted = false
	s.anomalyStreak = 0
	s.healthyStreak = 0
}

// StaleReason classifies why a pending net-position order is considered
// stale during the two-phase protocol's pre-check.
type StaleReason string

const (
	StaleNotOpenRemote StaleReason = "NOT_OPEN_REMOTE"
	StaleTimedOut      StaleReason = "STALE_TIMED_OUT"
	StaleUnknownEnqueue StaleReason = "UNKNOWN_ENQUEUE_MS"
)

// PendingOrderCheck captures the inputs needed to classify one pending
// net-position order during the reconcile pre-check.
type PendingOrderCheck struct {
	ClientOrderID      string
	EnqueuedMs         int64
	HasEnqueuedMs      bool
	RemoteOpenIDsKnown bool
	IsRemoteOpen       bool
	NowMs              int64
	StaleMs            int64
}

// IsStale implements spec.md §4.9's pre-check classification: (a) remote
// open-orders known and id absent, (b) enqueue age exceeds stale_ms, or
// (c) no enqueued_ms known (WAL-restored).
func IsStale(c PendingOrderCheck) (bool, StaleReason) {
	if !c.HasEnqueuedMs {
		return true, StaleUnknownEnqueue
	}
	if c.RemoteOpenIDsKnown && !c.IsRemoteOpen {
		return true, StaleNotOpenRemote
	}
	if c.NowMs-c.EnqueuedMs > c.StaleMs {
		return true, StaleTimedOut
	}
	return false, ""
}
