// Package evolution blends the strategy engine's trend and defensive
// notional components per regime bucket, adapting the blend weights from
// windowed P&L/drawdown/churn feedback with a rollback safety net.
// Grounded on the teacher's scripts/ backtest-parameter-sweep idiom
// (grid search over a scoring objective), redirected here at an online,
// bounded-deque degrade/rollback controller per the glossary's "Evolution
// bucket weights" definition.
package evolution

import (
	"math"
	"sync"

	"github.com/nvquant/tradecore/internal/types"
)

// Action is the outcome of a window-close decision.
type Action string

const (
	ActionNone       Action = "None"
	ActionUpdated    Action = "Updated"
	ActionSkipped    Action = "Skipped"
	ActionRolledBack Action = "RolledBack"
)

// ObjectiveWeights are the α/β/γ coefficients of objective_score.
type ObjectiveWeights struct {
	Alpha float64 // pnl weight
	Beta  float64 // drawdown_bps weight
	Gamma float64 // churn weight
}

// Config holds the evolution controller's tunables.
type Config struct {
	Enabled                     bool
	UpdateIntervalTicks         int64
	MinBucketTicksForUpdate     int64
	MinAbsWindowPnlUSD          float64
	MaxWeightStep               float64
	MaxSingleStrategyWeight     float64
	RollbackDegradeWindows      int
	RollbackCooldownTicks       int64
	Objective                   ObjectiveWeights
	InitialTrendWeight          float64
	InitialDefensiveWeight      float64
	EnableFactorICAdaptive      bool
	FactorICMinSamples          int
	FactorICMinAbs              float64
	EnableLearnabilityGate      bool
	LearnabilityMinSamples      int
	LearnabilityMinTStatAbs     float64
	ObjectiveDegradeThreshold   float64
	UseVirtualPnl               bool
	UseCounterfactualSearch     bool
	VirtualCostBps              float64
	CounterfactualGrid          []float64 // candidate trend weights, e.g. 0.0..1.0 step 0.1
	CounterfactualImproveThresh float64
}

type bucketState struct {
	trendWeight     float64
	defensiveWeight float64
	rollbackAnchorT float64
	rollbackAnchorD float64
	degradeHistory  []bool // bounded deque, oldest first

	windowPnl           float64
	windowMaxDrawdownPct float64
	windowNotionalChurn float64
	bucketTicks         int64

	tickPnlSamples []float64 // for learnability t-stat

	prevBlended     float64
	hasPrevBlended  bool

	trendICNum, trendICDen         float64
	defensiveICNum, defensiveICDen float64

	cooldownUntilWindow int64
	windowsSeen         int64
}

func newBucketState(cfg Config) *bucketState {
	return &bucketState{
		trendWeight:     cfg.InitialTrendWeight,
		defensiveWeight: cfg.InitialDefensiveWeight,
		rollbackAnchorT: cfg.InitialTrendWeight,
		rollbackAnchorD: cfg.InitialDefensiveWeight,
	}
}

// Controller owns per-bucket weight state.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	buckets map[types.Bucket]*bucketState
}

// New constructs a Controller with each bucket seeded at the configured
// initial weights.
func New(cfg Config) *Controller {
	c := &Controller{cfg: cfg, buckets: make(map[types.Bucket]*bucketState)}
	for _, b := range []types.Bucket{types.BucketTrend, types.BucketRange, types.BucketExtreme} {
		c.buckets[b] = newBucketState(cfg)
	}
	return c
}

// Weights returns the current (trend_weight, defensive_weight) for a bucket.
func (c *Controller) Weights(bucket types.Bucket) (trend, defensive float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.buckets[bucket]
	return st.trendWeight, st.defensiveWeight
}

// Blend combines a signal's trend/defensive notional components using the
// bucket's current weights into a single suggested notional.
func (c *Controller) Blend(bucket types.Bucket, trendNotional, defensiveNotional float64) float64 {
	t, d := c.Weights(bucket)
	return t*trendNotional + d*defensiveNotional
}

// OnTick accumulates one tick's outcome into the active bucket's window.
func (c *Controller) OnTick(bucket types.Bucket, tickPnl, drawdownPct, notionalChurn, forwardReturn float64) {
	if !c.cfg.Enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.buckets[bucket]
	st.bucketTicks++
	st.windowPnl += tickPnl
	if drawdownPct > st.windowMaxDrawdownPct {
		st.windowMaxDrawdownPct = drawdownPct
	}
	st.windowNotionalChurn += notionalChurn
	st.tickPnlSamples = append(st.tickPnlSamples, tickPnl)

	// prevBlended records the bucket's trend weight at this tick (Blend does
	// not write it); the counterfactual search reads it. No virtual P&L is
	// accumulated: the product below is computed and discarded.
	blended := st.trendWeight
	if c.cfg.UseVirtualPnl && st.hasPrevBlended {
		_ = st.prevBlended * forwardReturn
	}
	st.prevBlended = blended
	st.hasPrevBlended = true

	if c.cfg.EnableFactorICAdaptive {
		st.trendICNum += tickPnl * forwardReturn
		st.trendICDen += forwardReturn * forwardReturn
		st.defensiveICNum += (1 - tickPnl) * forwardReturn
		st.defensiveICDen += forwardReturn * forwardReturn
	}
}

// WindowResult describes one window-close decision.
type WindowResult struct {
	Bucket types.Bucket
	Action Action
	Reason string
}

// CloseWindow selects the bucket with the most accumulated ticks this
// window and decides whether to update, skip, or roll back its weights,
// then resets all bucket window accumulators.
func (c *Controller) CloseWindow() WindowResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return WindowResult{Action: ActionNone}
	}

	active, st := c.mostActiveBucketLocked()
	if st == nil {
		return WindowResult{Action: ActionNone, Reason: "no_activity"}
	}

	result := c.decideLocked(active, st)
	for _, b := range c.buckets {
		c.resetWindowLocked(b)
	}
	return result
}

func (c *Controller) mostActiveBucketLocked() (types.Bucket, *bucketState) {
	var best types.Bucket
	var bestSt *bucketState
	var bestTicks int64 = -1
	for b, st := range c.buckets {
		if st.bucketTicks > bestTicks {
			bestTicks = st.bucketTicks
			best = b
			bestSt = st
		}
	}
	if bestTicks <= 0 {
		return best, nil
	}
	return best, bestSt
}

func (c *Controller) decideLocked(bucket types.Bucket, st *bucketState) WindowResult {
	st.windowsSeen++

	if st.bucketTicks < c.cfg.MinBucketTicksForUpdate {
		return WindowResult{Bucket: bucket, Action: ActionSkipped, Reason: "insufficient_bucket_ticks"}
	}
	if st.windowsSeen <= st.cooldownUntilWindow {
		return WindowResult{Bucket: bucket, Action: ActionSkipped, Reason: "cooldown_active"}
	}
	if absf(st.windowPnl) < c.cfg.MinAbsWindowPnlUSD {
		return WindowResult{Bucket: bucket, Action: ActionSkipped, Reason: "window_pnl_too_small"}
	}
	if c.cfg.EnableLearnabilityGate && !learnable(st.tickPnlSamples, c.cfg.LearnabilityMinSamples, c.cfg.LearnabilityMinTStatAbs) {
		return WindowResult{Bucket: bucket, Action: ActionSkipped, Reason: "not_learnable"}
	}

	drawdownBps := st.windowMaxDrawdownPct * 10000
	objective := c.cfg.Objective.Alpha*st.windowPnl - c.cfg.Objective.Beta*drawdownBps - c.cfg.Objective.Gamma*st.windowNotionalChurn
	degraded := objective <= c.cfg.ObjectiveDegradeThreshold

	st.degradeHistory = append(st.degradeHistory, degraded)
	if len(st.degradeHistory) > c.cfg.RollbackDegradeWindows {
		st.degradeHistory = st.degradeHistory[len(st.degradeHistory)-c.cfg.RollbackDegradeWindows:]
	}

	if len(st.degradeHistory) >= c.cfg.RollbackDegradeWindows && allTrue(st.degradeHistory) {
		st.trendWeight = st.rollbackAnchorT
		st.defensiveWeight = st.rollbackAnchorD
		st.degradeHistory = nil
		st.cooldownUntilWindow = st.windowsSeen + c.cfg.RollbackCooldownTicks
		return WindowResult{Bucket: bucket, Action: ActionRolledBack, Reason: "degrade_streak_exhausted"}
	}

	candidateT := c.proposeCandidateLocked(st, objective)
	candidateD := 1 - candidateT

	if !validWeights(candidateT, candidateD, c.cfg.MaxSingleStrategyWeight) {
		return WindowResult{Bucket: bucket, Action: ActionSkipped, Reason: "PORT_WEIGHT_INVALID_REJECTED"}
	}
	if approxEqual(candidateT, st.trendWeight) && approxEqual(candidateD, st.defensiveWeight) {
		return WindowResult{Bucket: bucket, Action: ActionSkipped, Reason: "weights_unchanged"}
	}

	st.rollbackAnchorT = st.trendWeight
	st.rollbackAnchorD = st.defensiveWeight
	st.trendWeight = candidateT
	st.defensiveWeight = candidateD
	return WindowResult{Bucket: bucket, Action: ActionUpdated}
}

func (c *Controller) proposeCandidateLocked(st *bucketState, objective float64) float64 {
	if c.cfg.UseCounterfactualSearch && len(c.cfg.CounterfactualGrid) > 0 {
		best := st.trendWeight
		bestVirtual := virtualPnl(st.prevBlended, st.trendWeight, c.cfg.VirtualCostBps)
		for _, candidate := range c.cfg.CounterfactualGrid {
			vp := virtualPnl(st.prevBlended, candidate, c.cfg.VirtualCostBps)
			if vp > bestVirtual+c.cfg.CounterfactualImproveThresh {
				bestVirtual = vp
				best = candidate
			}
		}
		return stepToward(st.trendWeight, best, c.cfg.MaxWeightStep)
	}

	if c.cfg.EnableFactorICAdaptive && st.trendICDen > 0 && st.defensiveICDen > 0 {
		trendIC := st.trendICNum / st.trendICDen
		defensiveIC := st.defensiveICNum / st.defensiveICDen
		denom := absf(trendIC) + absf(defensiveIC)
		if denom > c.cfg.FactorICMinAbs {
			target := absf(trendIC) / denom
			return stepToward(st.trendWeight, clamp01(target), c.cfg.MaxWeightStep)
		}
	}

	if objective > c.cfg.ObjectiveDegradeThreshold {
		return clamp01(st.trendWeight + c.cfg.MaxWeightStep)
	}
	return clamp01(st.trendWeight - c.cfg.MaxWeightStep)
}

func (c *Controller) resetWindowLocked(st *bucketState) {
	st.windowPnl = 0
	st.windowMaxDrawdownPct = 0
	st.windowNotionalChurn = 0
	st.bucketTicks = 0
	st.tickPnlSamples = nil
}

func virtualPnl(prevBlended, candidateWeight, costBps float64) float64 {
	turnover := absf(candidateWeight - prevBlended)
	return prevBlended - turnover*(costBps/10000)
}

func stepToward(current, target, maxStep float64) float64 {
	delta := target - current
	if delta > maxStep {
		delta = maxStep
	}
	if delta < -maxStep {
		delta = -maxStep
	}
	return clamp01(current + delta)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func validWeights(trend, defensive, maxSingle float64) bool {
	if trend < 0 || defensive < 0 {
		return false
	}
	if !approxEqual(trend+defensive, 1) {
		return false
	}
	if maxSingle > 0 && (trend > maxSingle || defensive > maxSingle) {
		return false
	}
	return true
}

func approxEqual(a, b float64) bool {
	const eps = 1e-9
	return absf(a-b) < eps
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func allTrue(bs []bool) bool {
	for _, b := range bs {
		if !b {
			return false
		}
	}
	return true
}

func learnable(samples []float64, minSamples int, minTStatAbs float64) bool {
	if len(samples) < minSamples {
		return false
	}
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	variance := 0.0
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	if len(samples) <= 1 {
		return false
	}
	variance /= float64(len(samples) - 1)
	if variance <= 0 {
		return false
	}
	stderr := math.Sqrt(variance / float64(len(samples)))
	if stderr == 0 {
		return false
	}
	tStat := mean / stderr
	return absf(tStat) >= minTStatAbs
}
