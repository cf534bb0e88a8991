// Package feegate implements the fee-aware entry gate: a round-trip-cost-
// vs-expected-edge filter applied only to Entry intents, with adaptive
// relaxation and a per-symbol rejection cooldown. Grounded on the
// teacher's internal/risk circuit-breaker style of per-symbol rolling
// counters, generalized into the bps-denominated scoring model of
// spec.md §4.8.
package feegate

import (
	"math"
	"sync"

	"github.com/nvquant/tradecore/internal/types"
)

// Config holds the gate's tunables, all expressed in basis points unless
// named otherwise.
type Config struct {
	EntryFeeBps             float64
	ExitFeeBps              float64
	ExpectedSlippageBps     float64
	MinExpectedEdgeBps      float64
	RequiredEdgeCapBps      float64
	HasRequiredEdgeCap      bool
	NearMissToleranceBps    float64

	AdaptiveRelaxTriggerRatio float64
	AdaptiveRelaxMaxBps       float64

	MakerRelaxBps float64

	TrendBucketReliefBps   float64
	RangeExtremePenaltyBps float64

	VolatilityThreshold     float64
	VolatilityAddPerUnitBps float64
	VolatilitySubPerUnitBps float64

	MakerFillRatioHighThreshold float64
	LiquidityRelaxBps           float64
	UnknownLiquidityHighThreshold float64
	LiquidityPenaltyBps         float64

	QualityGuardPenaltyBps float64

	MakerMaxGapBps float64

	CooldownTriggerCount int
	CooldownTicks        int64

	FilteredRatioDecay float64 // EWMA decay toward new observation, in (0,1]
}

const epsilon = 1e-9

// Inputs is the per-evaluation context the gate scores against.
type Inputs struct {
	Symbol                string
	Direction              types.Direction
	Price                  float64
	Tick                   int64
	TrendStrength          float64
	InstantReturn          float64
	StrategyDeadbandAbs    float64
	Bucket                 types.Bucket
	VolatilityLevel        float64
	MakerFillRatio         float64
	UnknownLiquidityRatio  float64
	MakerEntryViable       bool
	QualityGuardActive     bool
}

// Decision is the gate's verdict for one Entry intent.
type Decision struct {
	Allow          bool
	NearMissMaker  bool
	RequiredEdgeBps float64
	ExpectedEdgeBps float64
	EdgeGapBps     float64
	Reason         string
}

type symbolState struct {
	consecutiveRejects int64
	cooldownUntilTick  int64
}

// Gate is the stateful fee-aware entry filter.
type Gate struct {
	mu             sync.Mutex
	cfg            Config
	observedFiltered float64 // running fraction in [0,1]
	states         map[string]*symbolState
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	if cfg.FilteredRatioDecay <= 0 {
		cfg.FilteredRatioDecay = 0.02
	}
	return &Gate{cfg: cfg, states: make(map[string]*symbolState)}
}

// InCooldown reports whether symbol is currently suppressed upstream.
func (g *Gate) InCooldown(symbol string, tick int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.states[symbol]
	if !ok {
		return false
	}
	return tick < st.cooldownUntilTick
}

// Evaluate applies the gate to a single Entry intent candidate. Non-Entry
// purposes must not be routed through this gate by the caller.
func (g *Gate) Evaluate(in Inputs) Decision {
	expected := g.expectedEdgeBps(in)
	required := g.requiredEdgeBps(in)

	edgeGap := required - expected
	decision := Decision{RequiredEdgeBps: required, ExpectedEdgeBps: expected, EdgeGapBps: edgeGap}

	tolerance := g.cfg.NearMissToleranceBps
	nearMissUpper := tolerance + math.Max(0.05, tolerance)

	if edgeGap <= tolerance+epsilon {
		decision.Allow = true
		g.onDecision(in.Symbol, in.Tick, true)
		g.updateFilteredRatio(false)
		return decision
	}

	if edgeGap <= nearMissUpper {
		decision.NearMissMaker = true
		if in.MakerEntryViable && edgeGap <= tolerance+g.cfg.MakerMaxGapBps {
			decision.Allow = true
			decision.Reason = "near_miss_maker_allow"
			g.onDecision(in.Symbol, in.Tick, true)
			g.updateFilteredRatio(false)
			return decision
		}
	}

	decision.Allow = false
	decision.Reason = "edge_gap_exceeds_tolerance"
	g.onDecision(in.Symbol, in.Tick, false)
	g.updateFilteredRatio(true)
	return decision
}

func (g *Gate) expectedEdgeBps(in Inputs) float64 {
	dirf := float64(in.Direction)
	weighted := 0.6*math.Max(0, in.TrendStrength*dirf*10000) + 0.4*math.Max(0, in.InstantReturn*dirf*10000)
	deadband := 0.0
	if in.Price > 0 {
		deadband = (in.StrategyDeadbandAbs / in.Price) * 10000
	}
	return math.Max(weighted, deadband)
}

func (g *Gate) requiredEdgeBps(in Inputs) float64 {
	roundTripCost := g.cfg.EntryFeeBps + g.cfg.ExitFeeBps + 2*g.cfg.ExpectedSlippageBps
	base := roundTripCost + g.cfg.MinExpectedEdgeBps
	if g.cfg.HasRequiredEdgeCap && base > g.cfg.RequiredEdgeCapBps {
		base = g.cfg.RequiredEdgeCapBps
	}

	g.mu.Lock()
	observed := g.observedFiltered
	g.mu.Unlock()

	adaptiveRelax := 0.0
	if observed > g.cfg.AdaptiveRelaxTriggerRatio && g.cfg.AdaptiveRelaxTriggerRatio < 1 {
		scale := (observed - g.cfg.AdaptiveRelaxTriggerRatio) / (1 - g.cfg.AdaptiveRelaxTriggerRatio)
		if scale > 1 {
			scale = 1
		}
		adaptiveRelax = scale * g.cfg.AdaptiveRelaxMaxBps
	}

	makerRelax := 0.0
	if in.MakerEntryViable {
		makerRelax = g.cfg.MakerRelaxBps
	}

	required := base - adaptiveRelax - makerRelax

	switch in.Bucket {
	case types.BucketTrend:
		required -= g.cfg.TrendBucketReliefBps
	case types.BucketRange, types.BucketExtreme:
		required += g.cfg.RangeExtremePenaltyBps
	}

	if in.VolatilityLevel > g.cfg.VolatilityThreshold {
		required += (in.VolatilityLevel - g.cfg.VolatilityThreshold) * g.cfg.VolatilityAddPerUnitBps
	} else {
		required -= (g.cfg.VolatilityThreshold - in.VolatilityLevel) * g.cfg.VolatilitySubPerUnitBps
	}

	if in.MakerFillRatio >= g.cfg.MakerFillRatioHighThreshold {
		required -= g.cfg.LiquidityRelaxBps
	}
	if in.UnknownLiquidityRatio >= g.cfg.UnknownLiquidityHighThreshold {
		required += g.cfg.LiquidityPenaltyBps
	}

	if in.QualityGuardActive {
		required += g.cfg.QualityGuardPenaltyBps
	}

	if required < 0 {
		required = 0
	}
	return required
}

func (g *Gate) updateFilteredRatio(filtered bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	obs := 0.0
	if filtered {
		obs = 1.0
	}
	g.observedFiltered = g.observedFiltered + g.cfg.FilteredRatioDecay*(obs-g.observedFiltered)
}

func (g *Gate) onDecision(symbol string, tick int64, allowed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.states[symbol]
	if !ok {
		st = &symbolState{}
		g.states[symbol] = st
	}
	if allowed {
		st.consecutiveRejects = 0
		return
	}
	st.consecutiveRejects++
	if st.consecutiveRejects >= int64(g.cfg.CooldownTriggerCount) {
		st.cooldownUntilTick = tick + g.cfg.CooldownTicks
	}
}
