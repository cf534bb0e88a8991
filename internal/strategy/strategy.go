// Package strategy defines the opaque signal-generation contract the
// decision loop consumes: a market event in, a {direction, notional,
// trend_component, defensive_component} signal out. The bot treats the
// signal's internal derivation as an external collaborator's concern;
// this package carries only the interface plus a minimal reference
// implementation grounded on the teacher's momentum-indicator scoring
// idiom (internal/indicators.MomentumScore), trimmed to the degree the
// bot core requires: a warmup-aware direction call, not a full
// multi-indicator research strategy.
package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/indicators"
	"github.com/nvquant/tradecore/internal/types"
)

// Engine produces a Signal from a market event and the symbol's current
// regime state. Implementations may hold their own per-symbol history;
// the bot core calls Evaluate once per polled market event.
type Engine interface {
	Evaluate(regime types.RegimeState, event types.MarketEvent) types.Signal
}

// ScriptedEngine replays a fixed, pre-built sequence of signals, used by
// deterministic scenario tests that assert on exact controller behavior.
type ScriptedEngine struct {
	script []types.Signal
	idx    int
}

// NewScripted returns a ScriptedEngine over the given signal sequence.
func NewScripted(script []types.Signal) *ScriptedEngine {
	return &ScriptedEngine{script: script}
}

// Evaluate returns the next scripted signal, or a flat signal once the
// script is exhausted.
func (s *ScriptedEngine) Evaluate(_ types.RegimeState, event types.MarketEvent) types.Signal {
	if s.idx >= len(s.script) {
		return types.Signal{Symbol: event.Symbol, Direction: types.Flat}
	}
	sig := s.script[s.idx]
	s.idx++
	return sig
}

// MomentumConfig tunes the reference momentum strategy.
type MomentumConfig struct {
	LookbackTicks  int
	WarmupTicks    int
	MinMoveBps     float64
	BaseNotionalUSD float64
}

type history struct {
	prices []float64
}

// MomentumEngine is a minimal reference strategy: trades the sign of the
// price move over a lookback window once past warmup, sized at a flat
// base notional split evenly between trend and defensive components.
type MomentumEngine struct {
	cfg      MomentumConfig
	bySymbol map[string]*history
}

// NewMomentum constructs a MomentumEngine.
func NewMomentum(cfg MomentumConfig) *MomentumEngine {
	return &MomentumEngine{cfg: cfg, bySymbol: make(map[string]*history)}
}

func (m *MomentumEngine) Evaluate(regime types.RegimeState, event types.MarketEvent) types.Signal {
	h, ok := m.bySymbol[event.Symbol]
	if !ok {
		h = &history{}
		m.bySymbol[event.Symbol] = h
	}

	price := event.RefPrice()
	h.prices = append(h.prices, price.InexactFloat64())
	if len(h.prices) > m.cfg.LookbackTicks+1 {
		h.prices = h.prices[len(h.prices)-(m.cfg.LookbackTicks+1):]
	}

	if len(h.prices) <= m.cfg.WarmupTicks || len(h.prices) <= m.cfg.LookbackTicks {
		return types.Signal{Symbol: event.Symbol, Direction: types.Flat}
	}

	first := h.prices[0]
	last := h.prices[len(h.prices)-1]
	if first <= 0 {
		return types.Signal{Symbol: event.Symbol, Direction: types.Flat}
	}
	moveBps := (last - first) / first * 10000
	rsi := indicators.RSI(h.prices, m.cfg.LookbackTicks)

	// RSI must confirm the lookback-window move direction before the
	// signal fires: a long needs RSI above 55 and a short RSI below 45.
	// There is no overbought/oversold cutoff.
	if moveBps > m.cfg.MinMoveBps && rsi > 55 {
		return m.signal(event.Symbol, types.Long)
	}
	if moveBps < -m.cfg.MinMoveBps && rsi < 45 {
		return m.signal(event.Symbol, types.Short)
	}
	return types.Signal{Symbol: event.Symbol, Direction: types.Flat}
}

func (m *MomentumEngine) signal(symbol string, dir types.Direction) types.Signal {
	half := m.cfg.BaseNotionalUSD / 2
	return types.Signal{
		Symbol:               symbol,
		Direction:            dir,
		SuggestedNotionalUSD: decimal.NewFromFloat(m.cfg.BaseNotionalUSD),
		TrendNotionalUSD:     decimal.NewFromFloat(half),
		DefensiveNotionalUSD: decimal.NewFromFloat(half),
	}
}
