package integrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/types"
)

func writeReport(t *testing.T, version string, k float64) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	data, err := json.Marshal(Report{ModelVersion: version, K: k})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func signal(dir types.Direction, notional float64) types.Signal {
	return types.Signal{
		Symbol:               "BTCUSDT",
		Direction:            dir,
		SuggestedNotionalUSD: decimal.NewFromFloat(notional),
		TrendNotionalUSD:     decimal.NewFromFloat(notional / 2),
		DefensiveNotionalUSD: decimal.NewFromFloat(notional / 2),
	}
}

func TestNew_CanaryDowngradesToOffWhenReportMissing(t *testing.T) {
	in := New(Config{Mode: ModeCanary, ReportPath: "/nonexistent/report.json"})
	require.Equal(t, ModeOff, in.EffectiveMode())
}

func TestNew_CanaryLoadsReportSuccessfully(t *testing.T) {
	path := writeReport(t, "v1", 2)
	in := New(Config{Mode: ModeCanary, ReportPath: path})
	require.Equal(t, ModeCanary, in.EffectiveMode())
}

func TestApply_ShadowModeNeverMutatesSignal(t *testing.T) {
	path := writeReport(t, "v1", 2)
	in := New(Config{Mode: ModeShadow, ReportPath: path})
	base := signal(types.Long, 100)
	out := in.Apply(types.RegimeState{Regime: types.RegimeUptrend, Bucket: types.BucketTrend}, base)
	require.Equal(t, base, out)
}

func TestApply_CanaryScalesWhenConfident(t *testing.T) {
	path := writeReport(t, "v1", 10)
	in := New(Config{Mode: ModeCanary, ReportPath: path, ConfidenceThreshold: 0.1, CanaryRatio: 0.5, CanaryMinNotionalUSD: 1})
	base := signal(types.Long, 100)
	out := in.Apply(types.RegimeState{Regime: types.RegimeUptrend, Bucket: types.BucketTrend}, base)
	require.True(t, out.SuggestedNotionalUSD.LessThan(base.SuggestedNotionalUSD))
}

func TestApply_ActiveFlattensBelowThreshold(t *testing.T) {
	path := writeReport(t, "v1", 0.01)
	in := New(Config{Mode: ModeActive, ReportPath: path, ActiveThreshold: 0.99, PartialRatio: 0.5, FullThreshold: 0.99})
	base := signal(types.Long, 100)
	out := in.Apply(types.RegimeState{Regime: types.RegimeRange, Bucket: types.BucketRange}, base)
	require.True(t, out.IsFlat())
}

func TestApply_ActiveTakesShadowDirectionWhenConfident(t *testing.T) {
	path := writeReport(t, "v1", 50)
	in := New(Config{Mode: ModeActive, ReportPath: path, ActiveThreshold: 0.01, PartialRatio: 0.5, FullThreshold: 0.9})
	base := signal(types.Short, 100)
	// Shadow raw score = -1 (short signal) + 0.5 (uptrend prior) = -0.5, so
	// the confident shadow direction is Short.
	out := in.Apply(types.RegimeState{Regime: types.RegimeUptrend, Bucket: types.BucketTrend}, base)
	require.Equal(t, types.Short, out.Direction)
}
