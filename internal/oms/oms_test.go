package oms

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/types"
)

func entryIntent(id string) types.OrderIntent {
	return types.OrderIntent{
		ClientOrderID: id, Symbol: "BTCUSDT", Purpose: types.PurposeEntry,
		Direction: types.Long, Qty: decimal.NewFromInt(2), Price: decimal.NewFromInt(100),
	}
}

func TestRegisterIntent_RejectsEmptyAndDuplicate(t *testing.T) {
	o := New()
	require.ErrorIs(t, o.RegisterIntent(types.OrderIntent{}), ErrEmptyClientOrderID)
	require.NoError(t, o.RegisterIntent(entryIntent("c1")))
	require.ErrorIs(t, o.RegisterIntent(entryIntent("c1")), ErrDuplicateClientOrderID)
}

func TestOnFill_PartialThenFilled(t *testing.T) {
	o := New()
	require.NoError(t, o.RegisterIntent(entryIntent("c1")))
	o.OnFill(types.FillEvent{FillID: "f1", ClientOrderID: "c1", Symbol: "BTCUSDT", Direction: types.Long, Qty: decimal.NewFromFloat(0.8), Price: decimal.NewFromInt(100)})
	r, _ := o.Record("c1")
	require.Equal(t, types.OrderPartial, r.State)

	o.OnFill(types.FillEvent{FillID: "f2", ClientOrderID: "c1", Symbol: "BTCUSDT", Direction: types.Long, Qty: decimal.NewFromFloat(1.2), Price: decimal.NewFromInt(100)})
	r, _ = o.Record("c1")
	require.Equal(t, types.OrderFilled, r.State)
	require.True(t, o.NetFilledQty("BTCUSDT").Equal(decimal.NewFromInt(2)))
}

func TestOnFill_UnknownClientOrderIDStillUpdatesNetQty(t *testing.T) {
	o := New()
	o.OnFill(types.FillEvent{FillID: "f1", ClientOrderID: "ghost", Symbol: "ETHUSDT", Direction: types.Short, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(10)})
	require.True(t, o.NetFilledQty("ETHUSDT").Equal(decimal.NewFromInt(-1)))
}

func TestNetFillConsistency_AcrossManyFills(t *testing.T) {
	o := New()
	fills := []types.FillEvent{
		{FillID: "f1", ClientOrderID: "c1", Symbol: "BTCUSDT", Direction: types.Long, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)},
		{FillID: "f2", ClientOrderID: "c1", Symbol: "BTCUSDT", Direction: types.Short, Qty: decimal.NewFromFloat(0.5), Price: decimal.NewFromInt(101)},
		{FillID: "f3", ClientOrderID: "c2", Symbol: "BTCUSDT", Direction: types.Long, Qty: decimal.NewFromFloat(0.25), Price: decimal.NewFromInt(99)},
	}
	want := decimal.Zero
	for _, f := range fills {
		o.OnFill(f)
		want = want.Add(f.Qty.Mul(decimal.NewFromInt(int64(f.Direction))))
	}
	require.True(t, o.NetFilledQty("BTCUSDT").Sub(want).Abs().LessThan(decimal.NewFromFloat(1e-9)))
}

func TestProtectiveSiblingLookup(t *testing.T) {
	o := New()
	require.NoError(t, o.RegisterIntent(entryIntent("entry-1")))
	slIntent := types.OrderIntent{ClientOrderID: "sl-1", ParentOrderID: "entry-1", Symbol: "BTCUSDT", Purpose: types.PurposeSL, Direction: types.Short, Qty: decimal.NewFromInt(2), Price: decimal.NewFromInt(99)}
	tpIntent := types.OrderIntent{ClientOrderID: "tp-1", ParentOrderID: "entry-1", Symbol: "BTCUSDT", Purpose: types.PurposeTP, Direction: types.Short, Qty: decimal.NewFromInt(2), Price: decimal.NewFromInt(102)}
	require.NoError(t, o.RegisterIntent(slIntent))
	require.NoError(t, o.RegisterIntent(tpIntent))

	require.True(t, o.HasOpenProtection("entry-1"))
	sibling, found := o.FindOpenProtectiveSibling("entry-1", types.PurposeSL)
	require.True(t, found)
	require.Equal(t, "tp-1", sibling.Intent.ClientOrderID)

	o.OnFill(types.FillEvent{FillID: "slfill", ClientOrderID: "sl-1", Symbol: "BTCUSDT", Direction: types.Short, Qty: decimal.NewFromInt(2), Price: decimal.NewFromInt(99)})
	_, found = o.FindOpenProtectiveSibling("entry-1", types.PurposeSL)
	require.True(t, found, "TP sibling should still be open after SL fills")
}
