// Package gatemonitor audits decision-loop activity over rolling windows
// and optionally enforces a runtime reduce-only/halt state when activity
// falls below expectation. Grounded on the teacher's internal/risk daily
// counter-reset discipline, generalized to a tick-windowed audit per
// spec.md §4.10.
package gatemonitor

// Counters accumulate within one window.
type Counters struct {
	RawSignals       int64
	OrderIntents     int64
	EffectiveSignals int64
	Fills            int64
}

// Config holds the gate monitor's tunables.
type Config struct {
	WindowTicks               int64
	MinEffectiveSignals       int64
	MinFills                  int64
	HeartbeatEmptySignalTicks int64

	FailToReduceOnlyWindows int64
	FailToHaltWindows       int64
	PassToResumeWindows     int64
	RuntimeCooldownTicks    int64
	AutoResumeFlatTicks     int64
}

// WindowResult is produced at window close.
type WindowResult struct {
	Pass        bool
	Counters    Counters
	FailReasons []string
}

const (
	FailLowActivitySignals = "FAIL_LOW_ACTIVITY_SIGNALS"
	FailLowActivityFills   = "FAIL_LOW_ACTIVITY_FILLS"
)

// Monitor tracks the current window plus runtime-enforcement streaks.
type Monitor struct {
	cfg Config

	tickInWindow int64
	counters     Counters

	consecutiveNoEffectiveSignalTicks int64

	consecutiveFailWindows int64
	consecutivePassWindows int64

	reduceOnly         bool
	halted             bool
	cooldownUntilTick  int64

	flatSinceTick     int64
	hasFlatSinceTick  bool
}

// New constructs a Monitor.
func New(cfg Config) *Monitor {
	return &Monitor{cfg: cfg}
}

// OnTick records one decision tick's activity. heartbeatGap is true
// exactly when the no-effective-signal streak reaches the configured
// threshold (emit WARN_SIGNAL_HEARTBEAT_GAP at the caller).
func (m *Monitor) OnTick(tick int64, c Counters) (heartbeatGap bool) {
	m.tickInWindow++
	m.counters.RawSignals += c.RawSignals
	m.counters.OrderIntents += c.OrderIntents
	m.counters.EffectiveSignals += c.EffectiveSignals
	m.counters.Fills += c.Fills

	if c.EffectiveSignals > 0 {
		m.consecutiveNoEffectiveSignalTicks = 0
	} else {
		m.consecutiveNoEffectiveSignalTicks++
	}
	return m.consecutiveNoEffectiveSignalTicks == m.cfg.HeartbeatEmptySignalTicks
}

// WindowClosed reports whether the current tick completes a window.
func (m *Monitor) WindowClosed() bool {
	return m.tickInWindow == m.cfg.WindowTicks
}

// CloseWindow produces the window result and resets window state.
func (m *Monitor) CloseWindow() WindowResult {
	result := WindowResult{Counters: m.counters, Pass: true}
	if m.counters.EffectiveSignals < m.cfg.MinEffectiveSignals {
		result.Pass = false
		result.FailReasons = append(result.FailReasons, FailLowActivitySignals)
	}
	if m.counters.Fills < m.cfg.MinFills {
		result.Pass = false
		result.FailReasons = append(result.FailReasons, FailLowActivityFills)
	}

	m.tickInWindow = 0
	m.counters = Counters{}

	if result.Pass {
		m.consecutivePassWindows++
		m.consecutiveFailWindows = 0
	} else {
		m.consecutiveFailWindows++
		m.consecutivePassWindows = 0
	}
	return result
}

// RuntimeOutcome captures enforcement state transitions after CloseWindow.
type RuntimeOutcome struct {
	EnterReduceOnly bool
	EnterHalt       bool
	ReleaseState    bool
}

// ApplyRuntimeEnforcement folds the just-closed window's pass/fail streak
// into the optional runtime reduce-only/halt state machine.
func (m *Monitor) ApplyRuntimeEnforcement(tick int64) RuntimeOutcome {
	var out RuntimeOutcome
	if m.consecutiveFailWindows == m.cfg.FailToReduceOnlyWindows && !m.reduceOnly {
		m.reduceOnly = true
		m.cooldownUntilTick = tick + m.cfg.RuntimeCooldownTicks
		out.EnterReduceOnly = true
	}
	if m.consecutiveFailWindows == m.cfg.FailToHaltWindows && !m.halted {
		m.halted = true
		out.EnterHalt = true
	}
	if m.consecutivePassWindows >= m.cfg.PassToResumeWindows && tick >= m.cooldownUntilTick && (m.reduceOnly || m.halted) {
		m.reduceOnly = false
		m.halted = false
		out.ReleaseState = true
	}
	return out
}

// OnAccountFlat tracks the auto-resume-on-flat condition: if the account
// is flat and there are no pending net orders for auto_resume_flat_ticks,
// release gate reduce-only/halt regardless of the window-pass streak.
func (m *Monitor) OnAccountFlat(tick int64, flatNoPending bool) RuntimeOutcome {
	var out RuntimeOutcome
	if !flatNoPending {
		m.hasFlatSinceTick = false
		return out
	}
	if !m.hasFlatSinceTick {
		m.hasFlatSinceTick = true
		m.flatSinceTick = tick
	}
	if tick-m.flatSinceTick >= m.cfg.AutoResumeFlatTicks && (m.reduceOnly || m.halted) {
		m.reduceOnly = false
		m.halted = false
		out.ReleaseState = true
	}
	return out
}

func (m *Monitor) ReduceOnly() bool { return m.reduceOnly }
func (m *Monitor) Halted() bool     { return m.halted }
