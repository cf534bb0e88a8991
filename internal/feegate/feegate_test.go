package feegate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/types"
)

func baseCfg() Config {
	return Config{
		EntryFeeBps: 2, ExitFeeBps: 2, ExpectedSlippageBps: 1,
		MinExpectedEdgeBps:   1,
		NearMissToleranceBps: 2,
		MakerMaxGapBps:       3,
		CooldownTriggerCount: 3,
		CooldownTicks:        10,
	}
}

func TestEvaluate_StrongEdgeAllows(t *testing.T) {
	g := New(baseCfg())
	d := g.Evaluate(Inputs{Symbol: "BTCUSDT", Direction: types.Long, Price: 100, TrendStrength: 0.01, InstantReturn: 0.01, Tick: 1})
	require.True(t, d.Allow)
}

func TestEvaluate_NoEdgeIsFiltered(t *testing.T) {
	g := New(baseCfg())
	d := g.Evaluate(Inputs{Symbol: "BTCUSDT", Direction: types.Long, Price: 100, Tick: 1})
	require.False(t, d.Allow)
}

func TestEvaluate_GapBeyondNearMissBandRejectedEvenWithMaker(t *testing.T) {
	cfg := baseCfg()
	g := New(cfg)
	// round_trip_cost = 2+2+2=6, +min_edge 1 = required 7. expected small.
	d := g.Evaluate(Inputs{Symbol: "BTCUSDT", Direction: types.Long, Price: 100, Tick: 1, MakerEntryViable: true})
	// edge_gap = 7 - 0 = 7 exceeds nearMissUpper (2+2=4), so this is not a near miss and the maker override does not apply.
	require.False(t, d.Allow)
}

func TestEvaluate_NearMissWithinMakerBand(t *testing.T) {
	cfg := Config{
		EntryFeeBps: 1, ExitFeeBps: 1, ExpectedSlippageBps: 0,
		MinExpectedEdgeBps:   0,
		NearMissToleranceBps: 1,
		MakerMaxGapBps:       5,
		CooldownTriggerCount: 3,
		CooldownTicks:        10,
	}
	g := New(cfg)
	// required ~= 2 (entry+exit fee), expected 0 -> edge_gap = 2, tolerance=1, nearMissUpper=1+max(0.05,1)=2
	// edge_gap(2) <= nearMissUpper(2) -> near miss; maker viable and gap(2) <= tolerance+makerMaxGap(1+5=6) -> allow
	d := g.Evaluate(Inputs{Symbol: "ETHUSDT", Direction: types.Long, Price: 100, Tick: 1, MakerEntryViable: true})
	require.True(t, d.Allow)
	require.True(t, d.NearMissMaker)
}

func TestEvaluate_CooldownAfterConsecutiveRejects(t *testing.T) {
	g := New(baseCfg())
	for i := int64(0); i < 3; i++ {
		g.Evaluate(Inputs{Symbol: "BTCUSDT", Direction: types.Long, Price: 100, Tick: i})
	}
	require.True(t, g.InCooldown("BTCUSDT", 5))
	require.False(t, g.InCooldown("BTCUSDT", 20))
}

func TestEvaluate_AllowResetsConsecutiveRejectCounter(t *testing.T) {
	g := New(baseCfg())
	g.Evaluate(Inputs{Symbol: "BTCUSDT", Direction: types.Long, Price: 100, Tick: 1})
	g.Evaluate(Inputs{Symbol: "BTCUSDT", Direction: types.Long, Price: 100, Tick: 2})
	d := g.Evaluate(Inputs{Symbol: "BTCUSDT", Direction: types.Long, Price: 100, Tick: 3, TrendStrength: 1, InstantReturn: 1})
	require.True(t, d.Allow)
	require.False(t, g.InCooldown("BTCUSDT", 4))
}

func TestEvaluate_TrendBucketLowersBar(t *testing.T) {
	cfg := baseCfg()
	cfg.TrendBucketReliefBps = 10
	g := New(cfg)
	d := g.Evaluate(Inputs{Symbol: "BTCUSDT", Direction: types.Long, Price: 100, Tick: 1, Bucket: types.BucketTrend})
	require.Equal(t, 0.0, d.RequiredEdgeBps) // clamped at zero after large relief
}
