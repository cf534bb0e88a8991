// Package execengine turns a risk-adjusted target position into concrete
// order intents, and turns a protective-order request into a trigger
// intent. Grounded on the teacher's execution.Executor position-delta
// math (updatePosition's VWAP accumulation) generalized into the signed
// notional-delta/flip/clamp algorithm spec.md §4.6 describes.
package execengine

import (
	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/types"
)

// Config holds the per-symbol-independent tunables of the execution engine.
type Config struct {
	MinRebalanceNotionalUSD decimal.Decimal
	MaxOrderNotionalUSD     decimal.Decimal
	DirectFlipEntryEnabled  bool
}

// Engine is stateless aside from its config; every call is pure given its
// arguments.
type Engine struct {
	cfg   Config
	mint  func(symbol string) string
}

// New constructs an Engine. mint produces a fresh client_order_id for a
// symbol (delegated to the caller's clock.IDMinter).
func New(cfg Config, mint func(symbol string) string) *Engine {
	return &Engine{cfg: cfg, mint: mint}
}

func signOf(d decimal.Decimal) int {
	switch {
	case d.IsPositive():
		return 1
	case d.IsNegative():
		return -1
	default:
		return 0
	}
}

func directionOf(sign int) types.Direction {
	switch {
	case sign > 0:
		return types.Long
	case sign < 0:
		return types.Short
	default:
		return types.Flat
	}
}

// BuildIntent implements spec.md §4.6's build_intent: returns (intent,
// true) when an order should be placed, else (zero, false).
func (e *Engine) BuildIntent(adjusted types.RiskAdjustedPosition, currentNotionalUSD, price decimal.Decimal) (types.OrderIntent, bool) {
	if !price.IsPositive() {
		return types.OrderIntent{}, false
	}

	target := adjusted.AdjustedNotionalUSD
	current := currentNotionalUSD

	if adjusted.ReduceOnly {
		if current.IsZero() {
			return types.OrderIntent{}, false
		}
		target = clampTowardZero(target, current)
	}

	delta := target.Sub(current)
	if !adjusted.ReduceOnly && delta.Abs().LessThan(e.cfg.MinRebalanceNotionalUSD) {
		return types.OrderIntent{}, false
	}
	if delta.IsZero() {
		return types.OrderIntent{}, false
	}

	currentSign := signOf(current)
	targetSign := signOf(target)

	if !adjusted.ReduceOnly && currentSign != 0 && targetSign != 0 && currentSign != targetSign {
		return e.buildFlip(adjusted, current, target, price)
	}

	notional := capNotional(delta.Abs(), e.cfg.MaxOrderNotionalUSD)
	qty := notional.Div(price)
	purpose := types.PurposeEntry
	liquidity := types.LiquidityMaker
	if adjusted.ReduceOnly {
		purpose = types.PurposeReduce
		liquidity = types.LiquidityTaker
	}

	return types.OrderIntent{
		ClientOrderID:       e.mint(adjusted.Symbol),
		Symbol:              adjusted.Symbol,
		Purpose:             purpose,
		ReduceOnly:          adjusted.ReduceOnly,
		Direction:           directionOf(signOf(delta)),
		Qty:                 qty,
		Price:               price,
		LiquidityPreference: liquidity,
	}, true
}

func (e *Engine) buildFlip(adjusted types.RiskAdjustedPosition, current, target, price decimal.Decimal) (types.OrderIntent, bool) {
	if e.cfg.DirectFlipEntryEnabled {
		delta := target.Sub(current)
		notional := capNotional(delta.Abs(), e.cfg.MaxOrderNotionalUSD)
		qty := notional.Div(price)
		return types.OrderIntent{
			ClientOrderID:       e.mint(adjusted.Symbol),
			Symbol:              adjusted.Symbol,
			Purpose:             types.PurposeEntry,
			Direction:           directionOf(signOf(delta)),
			Qty:                 qty,
			Price:               price,
			LiquidityPreference: types.LiquidityTaker,
		}, true
	}

	// Default: emit a reduce-only close sized at min(|current|, max_order_notional)
	// opposite current; the new side opens on a subsequent tick.
	notional := capNotional(current.Abs(), e.cfg.MaxOrderNotionalUSD)
	qty := notional.Div(price)
	closeDirection := directionOf(-signOf(current))
	return types.OrderIntent{
		ClientOrderID:       e.mint(adjusted.Symbol),
		Symbol:              adjusted.Symbol,
		Purpose:             types.PurposeReduce,
		ReduceOnly:          true,
		Direction:           closeDirection,
		Qty:                 qty,
		Price:               price,
		LiquidityPreference: types.LiquidityTaker,
	}, true
}

// clampTowardZero clamps target into [0, current] or [current, 0]
// depending on current's sign, implementing the reduce_only clamp.
func clampTowardZero(target, current decimal.Decimal) decimal.Decimal {
	if current.IsPositive() {
		if target.LessThan(decimal.Zero) {
			target = decimal.Zero
		}
		if target.GreaterThan(current) {
			target = current
		}
		return target
	}
	if target.GreaterThan(decimal.Zero) {
		target = decimal.Zero
	}
	if target.LessThan(current) {
		target = current
	}
	return target
}

func capNotional(notional, max decimal.Decimal) decimal.Decimal {
	if max.IsPositive() && notional.GreaterThan(max) {
		return max
	}
	return notional
}

// BuildProtectionIntent implements spec.md §4.6's build_protection_intent:
// price = entry_price·(1 ∓ ratio) for long SL/TP respectively (signs
// flipped for shorts), qty = entry_fill.qty, direction opposite
// entry_fill.direction.
func (e *Engine) BuildProtectionIntent(entryFill types.FillEvent, parentOrderID string, purpose types.Purpose, ratio decimal.Decimal) types.OrderIntent {
	one := decimal.NewFromInt(1)
	var priceMul decimal.Decimal
	switch {
	case entryFill.Direction == types.Long && purpose == types.PurposeSL:
		priceMul = one.Sub(ratio)
	case entryFill.Direction == types.Long && purpose == types.PurposeTP:
		priceMul = one.Add(ratio)
	case entryFill.Direction == types.Short && purpose == types.PurposeSL:
		priceMul = one.Add(ratio)
	default: // Short TP
		priceMul = one.Sub(ratio)
	}

	price := entryFill.Price.Mul(priceMul)
	protectDirection := types.Short
	if entryFill.Direction == types.Short {
		protectDirection = types.Long
	}

	return types.OrderIntent{
		ClientOrderID: e.mint(entryFill.Symbol),
		ParentOrderID: parentOrderID,
		Symbol:        entryFill.Symbol,
		Purpose:       purpose,
		ReduceOnly:    true,
		Direction:     protectDirection,
		Qty:           entryFill.Qty,
		Price:         price,
	}
}
