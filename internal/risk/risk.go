// Package risk implements the drawdown-to-mode mapping that gatekeeps
// every order intent before it reaches the execution engine. Grounded on
// the teacher's RiskManager ("no trade happens without risk approval")
// generalized from confidence/bet-size filtering to the notional-clamp
// and mode-scaling algorithm of spec.md §4.11.
package risk

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/types"
)

// Config holds the risk engine's drawdown thresholds, expressed as
// fractions (0.05 = 5%).
type Config struct {
	MaxAbsNotionalUSD decimal.Decimal
	DegradedDrawdownPct decimal.Decimal
	CooldownDrawdownPct decimal.Decimal
	FuseDrawdownPct     decimal.Decimal
	DegradedScale       decimal.Decimal // e.g. 0.5
}

// Engine is the gatekeeper. It is safe for concurrent use; ForceReduceOnly
// may be toggled by the reconciler or gate monitor from the main loop.
type Engine struct {
	mu               sync.Mutex
	cfg              Config
	forcedReduceOnly bool
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	if cfg.DegradedScale.IsZero() {
		cfg.DegradedScale = decimal.NewFromFloat(0.5)
	}
	return &Engine{cfg: cfg}
}

// SetForcedReduceOnly is toggled by the controller in response to
// reconcile anomalies or gate-monitor runtime enforcement.
func (e *Engine) SetForcedReduceOnly(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forcedReduceOnly = on
}

func (e *Engine) forcedReduceOnlyLocked() bool {
	return e.forcedReduceOnly
}

// ModeFor maps the current drawdown and trade-ok flag to a RiskMode.
func (e *Engine) ModeFor(tradeOk bool, drawdownPct decimal.Decimal) types.RiskMode {
	e.mu.Lock()
	forced := e.forcedReduceOnlyLocked()
	e.mu.Unlock()

	switch {
	case !tradeOk || forced:
		return types.RiskReduceOnly
	case drawdownPct.GreaterThanOrEqual(e.cfg.FuseDrawdownPct):
		return types.RiskFuse
	case drawdownPct.GreaterThanOrEqual(e.cfg.CooldownDrawdownPct):
		return types.RiskCooldown
	case drawdownPct.GreaterThanOrEqual(e.cfg.DegradedDrawdownPct):
		return types.RiskDegraded
	default:
		return types.RiskNormal
	}
}

// Apply clamps target into [-max_abs_notional, max_abs_notional], then
// scales it per the active mode, returning the risk-adjusted position.
func (e *Engine) Apply(symbol string, targetNotionalUSD decimal.Decimal, tradeOk bool, drawdownPct decimal.Decimal) types.RiskAdjustedPosition {
	mode := e.ModeFor(tradeOk, drawdownPct)

	clamped := targetNotionalUSD
	if e.cfg.MaxAbsNotionalUSD.IsPositive() {
		if clamped.GreaterThan(e.cfg.MaxAbsNotionalUSD) {
			clamped = e.cfg.MaxAbsNotionalUSD
		}
		if clamped.LessThan(e.cfg.MaxAbsNotionalUSD.Neg()) {
			clamped = e.cfg.MaxAbsNotionalUSD.Neg()
		}
	}

	switch mode {
	case types.RiskFuse, types.RiskCooldown:
		return types.RiskAdjustedPosition{Symbol: symbol, AdjustedNotionalUSD: decimal.Zero, ReduceOnly: true, RiskMode: mode}
	case types.RiskReduceOnly:
		return types.RiskAdjustedPosition{Symbol: symbol, AdjustedNotionalUSD: clamped, ReduceOnly: true, RiskMode: mode}
	case types.RiskDegraded:
		return types.RiskAdjustedPosition{Symbol: symbol, AdjustedNotionalUSD: clamped.Mul(e.cfg.DegradedScale), ReduceOnly: false, RiskMode: mode}
	default:
		return types.RiskAdjustedPosition{Symbol: symbol, AdjustedNotionalUSD: clamped, ReduceOnly: false, RiskMode: mode}
	}
}
