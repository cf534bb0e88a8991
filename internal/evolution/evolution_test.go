package evolution

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/types"
)

func baseCfg() Config {
	return Config{
		Enabled:                   true,
		MinBucketTicksForUpdate:   5,
		MinAbsWindowPnlUSD:        1,
		MaxWeightStep:             0.1,
		MaxSingleStrategyWeight:   0.9,
		RollbackDegradeWindows:    3,
		RollbackCooldownTicks:     2,
		Objective:                 ObjectiveWeights{Alpha: 1, Beta: 1, Gamma: 1},
		InitialTrendWeight:        0.5,
		InitialDefensiveWeight:    0.5,
		ObjectiveDegradeThreshold: 0,
	}
}

func TestWeights_StartAtInitial(t *testing.T) {
	c := New(baseCfg())
	trend, defensive := c.Weights(types.BucketTrend)
	require.InDelta(t, 0.5, trend, 1e-9)
	require.InDelta(t, 0.5, defensive, 1e-9)
}

func TestCloseWindow_SkipsBelowMinBucketTicks(t *testing.T) {
	c := New(baseCfg())
	c.OnTick(types.BucketTrend, 10, 0, 0, 0.01)
	res := c.CloseWindow()
	require.Equal(t, ActionSkipped, res.Action)
	require.Equal(t, "insufficient_bucket_ticks", res.Reason)
}

func TestCloseWindow_UpdatesOnSufficientPositivePnl(t *testing.T) {
	c := New(baseCfg())
	for i := 0; i < 6; i++ {
		c.OnTick(types.BucketTrend, 5, 0.001, 1, 0.01)
	}
	res := c.CloseWindow()
	require.Equal(t, types.BucketTrend, res.Bucket)
	require.Equal(t, ActionUpdated, res.Action)
}

func TestCloseWindow_RollsBackAfterDegradeStreak(t *testing.T) {
	cfg := baseCfg()
	cfg.ObjectiveDegradeThreshold = 1000 // force every window to look degraded
	c := New(cfg)

	var last WindowResult
	for w := 0; w < cfg.RollbackDegradeWindows; w++ {
		for i := 0; i < 6; i++ {
			c.OnTick(types.BucketTrend, 5, 0.001, 1, 0.01)
		}
		last = c.CloseWindow()
	}
	require.Equal(t, ActionRolledBack, last.Action)

	// Windows 1 and 2 step the trend weight 0.5 -> 0.4 -> 0.3; the anchor is
	// the weights held before the latest update (0.4/0.6), which the
	// rollback restores.
	trend, defensive := c.Weights(types.BucketTrend)
	require.InDelta(t, 0.4, trend, 1e-9)
	require.InDelta(t, 0.6, defensive, 1e-9)
}

func TestCloseWindow_NoActivityReturnsNone(t *testing.T) {
	c := New(baseCfg())
	res := c.CloseWindow()
	require.Equal(t, ActionNone, res.Action)
}

func TestBlend_WeightsCombineComponents(t *testing.T) {
	c := New(baseCfg())
	blended := c.Blend(types.BucketTrend, 100, 200)
	require.InDelta(t, 150, blended, 1e-9)
}
