package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func fill(id, cid, symbol string, dir types.Direction, qty, price, fee string) types.FillEvent {
	return types.FillEvent{
		FillID: id, ClientOrderID: cid, Symbol: symbol,
		Direction: dir, Qty: d(qty), Price: d(price), Fee: d(fee),
	}
}

func TestApplyFill_OpensAndScenarioANotional(t *testing.T) {
	a := New(decimal.Zero)
	a.ApplyFill(fill("f1", "cid-1", "BTCUSDT", types.Long, "2.0", "100.0", "0"))
	pos := a.Position("BTCUSDT")
	require.True(t, pos.Qty.Equal(d("2.0")))
	require.True(t, pos.AvgEntryPrice.Equal(d("100.0")))
	require.True(t, a.CurrentNotionalUSD("BTCUSDT").Equal(d("200.0")))
}

func TestApplyFill_VWAPOnAdd(t *testing.T) {
	a := New(decimal.Zero)
	a.ApplyFill(fill("f1", "c1", "BTCUSDT", types.Long, "1", "100", "0"))
	a.ApplyFill(fill("f2", "c1", "BTCUSDT", types.Long, "1", "200", "0"))
	pos := a.Position("BTCUSDT")
	require.True(t, pos.Qty.Equal(d("2")))
	require.True(t, pos.AvgEntryPrice.Equal(d("150")))
}

func TestApplyFill_RealizesPnLOnReduce(t *testing.T) {
	a := New(decimal.Zero)
	a.ApplyFill(fill("f1", "c1", "BTCUSDT", types.Long, "2", "100", "0"))
	a.ApplyFill(fill("f2", "c2", "BTCUSDT", types.Short, "1", "110", "0"))
	require.True(t, a.RealizedPnL().Equal(d("10")))
	pos := a.Position("BTCUSDT")
	require.True(t, pos.Qty.Equal(d("1")))
	require.True(t, pos.AvgEntryPrice.Equal(d("100")), "avg entry unchanged on partial reduce")
}

func TestApplyFill_FlipThroughZeroReseedsAvgEntry(t *testing.T) {
	a := New(decimal.Zero)
	a.ApplyFill(fill("f1", "c1", "BTCUSDT", types.Long, "1", "100", "0"))
	a.ApplyFill(fill("f2", "c2", "BTCUSDT", types.Short, "3", "120", "0"))
	pos := a.Position("BTCUSDT")
	require.True(t, pos.Qty.Equal(d("-2")))
	require.True(t, pos.AvgEntryPrice.Equal(d("120")))
	require.True(t, a.RealizedPnL().Equal(d("20")))
}

func TestApplyFill_Idempotence_DuplicateFillsRejectedUpstream(t *testing.T) {
	// Account trusts its caller for dedup (the controller and WAL replay own
	// fill_id dedup); this
	// test documents that applying the same fill twice double-counts,
	// which is exactly why dedup happens above this layer.
	a1 := New(decimal.Zero)
	a1.ApplyFill(fill("f1", "c1", "BTCUSDT", types.Long, "1", "100", "0"))

	a2 := New(decimal.Zero)
	a2.ApplyFill(fill("f1", "c1", "BTCUSDT", types.Long, "1", "100", "0"))
	a2.ApplyFill(fill("f1", "c1", "BTCUSDT", types.Long, "1", "100", "0"))

	require.False(t, a1.Position("BTCUSDT").Qty.Equal(a2.Position("BTCUSDT").Qty))
}

func TestDrawdownPct(t *testing.T) {
	a := New(d("1000"))
	require.Equal(t, 0.0, a.DrawdownPct())
	a.ApplyFill(fill("f1", "c1", "BTCUSDT", types.Long, "10", "100", "0"))
	a.OnMarket(types.MarketEvent{Symbol: "BTCUSDT", LastPrice: d("90")})
	require.InDelta(t, 100.0/1000.0, a.DrawdownPct(), 1e-9)
}

func TestLiquidationDistanceP95_NoKnownLiqIsSafeDefault(t *testing.T) {
	a := New(decimal.Zero)
	a.ApplyFill(fill("f1", "c1", "BTCUSDT", types.Long, "1", "100", "0"))
	require.Equal(t, 1.0, a.LiquidationDistanceP95())
}
