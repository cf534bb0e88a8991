package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/types"
)

func cfg() Config {
	return Config{
		MaxAbsNotionalUSD:   decimal.NewFromInt(1000),
		DegradedDrawdownPct: decimal.NewFromFloat(0.05),
		CooldownDrawdownPct: decimal.NewFromFloat(0.10),
		FuseDrawdownPct:     decimal.NewFromFloat(0.20),
	}
}

func TestModeFor_NotTradeOkForcesReduceOnly(t *testing.T) {
	e := New(cfg())
	require.Equal(t, types.RiskReduceOnly, e.ModeFor(false, decimal.Zero))
}

func TestModeFor_DrawdownThresholds(t *testing.T) {
	e := New(cfg())
	require.Equal(t, types.RiskNormal, e.ModeFor(true, decimal.NewFromFloat(0.01)))
	require.Equal(t, types.RiskDegraded, e.ModeFor(true, decimal.NewFromFloat(0.05)))
	require.Equal(t, types.RiskCooldown, e.ModeFor(true, decimal.NewFromFloat(0.10)))
	require.Equal(t, types.RiskFuse, e.ModeFor(true, decimal.NewFromFloat(0.20)))
}

func TestApply_ClampsToMaxAbsNotional(t *testing.T) {
	e := New(cfg())
	adj := e.Apply("BTCUSDT", decimal.NewFromInt(5000), true, decimal.Zero)
	require.True(t, adj.AdjustedNotionalUSD.Equal(decimal.NewFromInt(1000)))
	require.False(t, adj.ReduceOnly)
}

func TestApply_DegradedScalesByHalf(t *testing.T) {
	e := New(cfg())
	adj := e.Apply("BTCUSDT", decimal.NewFromInt(400), true, decimal.NewFromFloat(0.06))
	require.True(t, adj.AdjustedNotionalUSD.Equal(decimal.NewFromInt(200)))
}

func TestApply_FuseZeroesTargetAndReduceOnly(t *testing.T) {
	e := New(cfg())
	adj := e.Apply("BTCUSDT", decimal.NewFromInt(400), true, decimal.NewFromFloat(0.25))
	require.True(t, adj.AdjustedNotionalUSD.IsZero())
	require.True(t, adj.ReduceOnly)
}

func TestApply_ForcedReduceOnlyKeepsClampedTargetButBlocksEntries(t *testing.T) {
	e := New(cfg())
	e.SetForcedReduceOnly(true)
	adj := e.Apply("BTCUSDT", decimal.NewFromInt(400), true, decimal.Zero)
	require.True(t, adj.ReduceOnly)
	require.True(t, adj.AdjustedNotionalUSD.Equal(decimal.NewFromInt(400)))
}
