// Package throttle enforces the per-symbol min-submit-interval and
// reverse-direction cooldown rules of spec.md §4.7. Grounded on the
// teacher's order-throttle-free execution path generalized with an
// explicit per-symbol state map in the style of internal/risk's
// per-symbol circuit-breaker bookkeeping.
package throttle

import (
	"fmt"
	"sync"

	"github.com/nvquant/tradecore/internal/types"
)

// Config holds the throttle's tunables.
type Config struct {
	MinOrderIntervalMs       int64
	ReverseSignalCooldownTicks int64
}

type symbolState struct {
	lastSubmitMs      int64
	lastSubmitTick    int64
	lastEntryDirection types.Direction
	hasLastEntry      bool
}

// Throttle tracks per-symbol submit cadence.
type Throttle struct {
	mu     sync.Mutex
	cfg    Config
	states map[string]*symbolState
}

// New constructs a Throttle.
func New(cfg Config) *Throttle {
	return &Throttle{cfg: cfg, states: make(map[string]*symbolState)}
}

// Check returns (allowed, rejectReason). rejectReason is empty when allowed.
func (t *Throttle) Check(intent types.OrderIntent, nowMs, tick int64) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[intent.Symbol]
	if !ok {
		return true, ""
	}

	if t.cfg.MinOrderIntervalMs > 0 {
		elapsed := nowMs - st.lastSubmitMs
		if elapsed < t.cfg.MinOrderIntervalMs {
			remaining := t.cfg.MinOrderIntervalMs - elapsed
			return false, fmt.Sprintf("min_order_interval_ms_remaining=%d", remaining)
		}
	}

	if !intent.ReduceOnly && st.hasLastEntry && intent.Direction != st.lastEntryDirection {
		if tick-st.lastSubmitTick < t.cfg.ReverseSignalCooldownTicks {
			return false, "reverse_signal_cooldown"
		}
	}

	return true, ""
}

// OnAccepted records a successful submission's timing state.
func (t *Throttle) OnAccepted(intent types.OrderIntent, nowMs, tick int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[intent.Symbol]
	if !ok {
		st = &symbolState{}
		t.states[intent.Symbol] = st
	}
	st.lastSubmitMs = nowMs
	st.lastSubmitTick = tick
	if !intent.ReduceOnly {
		st.lastEntryDirection = intent.Direction
		st.hasLastEntry = true
	}
}
