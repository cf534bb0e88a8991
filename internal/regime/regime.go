// Package regime classifies each symbol's market state into a coarse
// bucket (Trend, Range, Extreme) from EWMA-smoothed return and volatility
// estimates. Grounded on the teacher's datafeed EWMA smoothing idiom
// (used there for mid-price smoothing) redirected at the glossary's
// "Regime bucket: coarse market state derived from EWMA return and
// volatility" definition.
package regime

import (
	"math"
	"sync"

	"github.com/nvquant/tradecore/internal/types"
)

// Config holds the regime engine's smoothing and classification tunables.
type Config struct {
	ReturnAlpha        float64 // EWMA decay for instant_return
	TrendAlpha         float64 // EWMA decay for trend_strength (slower)
	VolatilityAlpha    float64 // EWMA decay for volatility_level
	TrendThreshold     float64 // |trend_strength| above this => Trend bucket
	ExtremeVolThreshold float64 // volatility_level above this => Extreme bucket
	WarmupTicks        int64
}

type symbolState struct {
	lastPrice      float64
	hasLastPrice   bool
	instantReturn  float64
	trendStrength  float64
	volatilityLevel float64
	ticks          int64
}

// Engine is the per-symbol EWMA regime classifier.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	states map[string]*symbolState
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, states: make(map[string]*symbolState)}
}

// OnMarket advances the regime state for one symbol given a new reference
// price, returning the updated RegimeState.
func (e *Engine) OnMarket(symbol string, refPrice float64) types.RegimeState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[symbol]
	if !ok {
		st = &symbolState{}
		e.states[symbol] = st
	}

	if !st.hasLastPrice || st.lastPrice <= 0 {
		st.lastPrice = refPrice
		st.hasLastPrice = true
		st.ticks++
		return e.classifyLocked(symbol, st)
	}

	ret := (refPrice - st.lastPrice) / st.lastPrice
	st.lastPrice = refPrice
	st.ticks++

	st.instantReturn = ewma(st.instantReturn, ret, e.cfg.ReturnAlpha)
	st.trendStrength = ewma(st.trendStrength, ret, e.cfg.TrendAlpha)
	st.volatilityLevel = ewma(st.volatilityLevel, math.Abs(ret), e.cfg.VolatilityAlpha)

	return e.classifyLocked(symbol, st)
}

func ewma(prev, sample, alpha float64) float64 {
	if alpha <= 0 {
		alpha = 0.1
	}
	return prev + alpha*(sample-prev)
}

func (e *Engine) classifyLocked(symbol string, st *symbolState) types.RegimeState {
	warmup := st.ticks <= e.cfg.WarmupTicks

	var bucket types.Bucket
	var regime types.Regime
	switch {
	case st.volatilityLevel > e.cfg.ExtremeVolThreshold:
		bucket = types.BucketExtreme
		regime = types.RegimeExtreme
	case math.Abs(st.trendStrength) > e.cfg.TrendThreshold:
		bucket = types.BucketTrend
		if st.trendStrength > 0 {
			regime = types.RegimeUptrend
		} else {
			regime = types.RegimeDowntrend
		}
	default:
		bucket = types.BucketRange
		regime = types.RegimeRange
	}

	return types.RegimeState{
		Symbol:          symbol,
		Regime:          regime,
		Bucket:          bucket,
		InstantReturn:   st.instantReturn,
		TrendStrength:   st.trendStrength,
		VolatilityLevel: st.volatilityLevel,
		Warmup:          warmup,
	}
}
