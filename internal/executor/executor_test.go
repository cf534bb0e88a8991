package executor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/exchange"
	"github.com/nvquant/tradecore/internal/types"
)

func TestExecutor_SubmitAndDrainPreservesOrder(t *testing.T) {
	adapter := exchange.NewMock()
	adapter.SetSymbolInfo(types.SymbolInfo{
		Symbol: "BTCUSDT", Tradable: true,
		QtyStep: decimal.NewFromFloat(0.001), MinOrderQty: decimal.NewFromFloat(0.001),
		MinNotionalUSD: decimal.NewFromInt(5), PriceTick: decimal.NewFromFloat(0.01),
	})
	exec := New(adapter, zerolog.Nop())
	go exec.Run()

	exec.Submit(types.OrderIntent{ClientOrderID: "c1", Symbol: "BTCUSDT", Purpose: types.PurposeEntry, Direction: types.Long, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})
	exec.Submit(types.OrderIntent{ClientOrderID: "c2", Symbol: "BTCUSDT", Purpose: types.PurposeEntry, Direction: types.Long, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})
	exec.Stop()
	exec.Wait()

	results := exec.DrainResults()
	require.Len(t, results, 2)
	require.Equal(t, "c1", results[0].ClientOrderID)
	require.Equal(t, "c2", results[1].ClientOrderID)
	require.True(t, results[0].Success)
}

func TestExecutor_FailedSubmitStillPostsResult(t *testing.T) {
	adapter := exchange.NewMock()
	adapter.SetTradeOk(false)
	exec := New(adapter, zerolog.Nop())
	go exec.Run()

	exec.Submit(types.OrderIntent{ClientOrderID: "c1", Symbol: "BTCUSDT", Purpose: types.PurposeEntry, Direction: types.Long, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})
	exec.Stop()
	exec.Wait()

	results := exec.DrainResults()
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
}

func TestExecutor_DrainResultsIsNonBlockingWhenEmpty(t *testing.T) {
	adapter := exchange.NewMock()
	exec := New(adapter, zerolog.Nop())
	go exec.Run()
	defer func() {
		exec.Stop()
		exec.Wait()
	}()

	done := make(chan struct{})
	go func() {
		_ = exec.DrainResults()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DrainResults blocked on empty buffer")
	}
}
