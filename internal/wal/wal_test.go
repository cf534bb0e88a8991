package wal

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/types"
)

func mkIntent(id string) types.OrderIntent {
	return types.OrderIntent{
		ClientOrderID: id,
		Symbol:        "BTCUSDT",
		Purpose:       types.PurposeEntry,
		Direction:     types.Long,
		Qty:           decimal.NewFromInt(2),
		Price:         decimal.NewFromInt(100),
	}
}

func mkFill(fillID, cid string, qty string) types.FillEvent {
	q, _ := decimal.NewFromString(qty)
	return types.FillEvent{
		FillID:        fillID,
		ClientOrderID: cid,
		Symbol:        "BTCUSDT",
		Direction:     types.Long,
		Qty:           q,
		Price:         decimal.NewFromInt(100),
		Fee:           decimal.Zero,
	}
}

func TestWAL_DurabilityAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade.wal")

	w, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, w.AppendIntent(mkIntent("cid-1")))
	require.NoError(t, w.AppendFill(mkFill("f1", "cid-1", "0.8")))
	require.NoError(t, w.AppendFill(mkFill("f2", "cid-1", "1.2")))
	require.NoError(t, w.AppendFill(mkFill("f1", "cid-1", "0.8"))) // duplicate
	require.NoError(t, w.Close())

	state, err := LoadState(path)
	require.NoError(t, err)

	require.Contains(t, state.IntentIDs, "cid-1")
	require.Contains(t, state.FillIDs, "f1")
	require.Contains(t, state.FillIDs, "f2")
	require.Len(t, state.OrderedFills, 2, "duplicate fill_id must not appear twice in ordered list")
}

func TestWAL_LoadMissingFileReturnsEmptyState(t *testing.T) {
	state, err := LoadState(filepath.Join(t.TempDir(), "nope.wal"))
	require.NoError(t, err)
	require.Empty(t, state.IntentIDs)
	require.Empty(t, state.FillIDs)
}

func TestWAL_UnknownRecordTypeIsHardError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade.wal")
	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.appendLine("GARBAGE\tabc"))
	require.NoError(t, w.Close())

	_, err = LoadState(path)
	require.Error(t, err)
}

func TestWAL_ScenarioB_ReplayProducesExpectedNotional(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade.wal")
	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.AppendIntent(mkIntent("cid-1")))
	require.NoError(t, w.AppendFill(mkFill("f1", "cid-1", "0.8")))
	require.NoError(t, w.AppendFill(mkFill("f2", "cid-1", "1.2")))
	require.NoError(t, w.AppendFill(mkFill("f1", "cid-1", "0.8")))
	require.NoError(t, w.Close())

	state, err := LoadState(path)
	require.NoError(t, err)
	require.Len(t, state.OrderedFills, 2)

	total := decimal.Zero
	for _, f := range state.OrderedFills {
		total = total.Add(f.Qty.Mul(f.Price))
	}
	require.True(t, total.Equal(decimal.NewFromInt(200)))
}
