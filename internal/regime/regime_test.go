package regime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/types"
)

func cfg() Config {
	return Config{ReturnAlpha: 0.5, TrendAlpha: 0.2, VolatilityAlpha: 0.3, TrendThreshold: 0.01, ExtremeVolThreshold: 0.05, WarmupTicks: 1}
}

func TestOnMarket_FirstTickIsWarmup(t *testing.T) {
	e := New(cfg())
	st := e.OnMarket("BTCUSDT", 100)
	require.True(t, st.Warmup)
}

func TestOnMarket_SustainedUptrendClassifiesTrend(t *testing.T) {
	e := New(cfg())
	price := 100.0
	var st types.RegimeState
	for i := 0; i < 20; i++ {
		price *= 1.02
		st = e.OnMarket("BTCUSDT", price)
	}
	require.Equal(t, types.BucketTrend, st.Bucket)
	require.Equal(t, types.RegimeUptrend, st.Regime)
}

func TestOnMarket_FlatPriceClassifiesRange(t *testing.T) {
	e := New(cfg())
	var st types.RegimeState
	for i := 0; i < 10; i++ {
		st = e.OnMarket("BTCUSDT", 100)
	}
	require.Equal(t, types.BucketRange, st.Bucket)
}

func TestOnMarket_LargeSwingClassifiesExtreme(t *testing.T) {
	e := New(cfg())
	e.OnMarket("BTCUSDT", 100)
	st := e.OnMarket("BTCUSDT", 130)
	require.Equal(t, types.BucketExtreme, st.Bucket)
}
