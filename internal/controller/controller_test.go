package controller

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/account"
	"github.com/nvquant/tradecore/internal/clock"
	"github.com/nvquant/tradecore/internal/exchange"
	"github.com/nvquant/tradecore/internal/execengine"
	"github.com/nvquant/tradecore/internal/executor"
	"github.com/nvquant/tradecore/internal/oms"
	"github.com/nvquant/tradecore/internal/protection"
	"github.com/nvquant/tradecore/internal/reconcile"
	"github.com/nvquant/tradecore/internal/regime"
	"github.com/nvquant/tradecore/internal/risk"
	"github.com/nvquant/tradecore/internal/strategy"
	"github.com/nvquant/tradecore/internal/throttle"
	"github.com/nvquant/tradecore/internal/types"
	"github.com/nvquant/tradecore/internal/universe"
	"github.com/nvquant/tradecore/internal/wal"
)

func newTestController(t *testing.T, script []types.Signal) (*Controller, *exchange.Mock) {
	t.Helper()
	mock := exchange.NewMock()
	w, err := wal.Open(t.TempDir() + "/trade.wal")
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	clk := clock.New()
	minter := clock.NewIDMinter("test")
	execEngine := execengine.New(execengine.Config{MaxOrderNotionalUSD: decimal.NewFromInt(10000), MinRebalanceNotionalUSD: decimal.NewFromInt(1)}, func(symbol string) string {
		return minter.Mint(symbol, clk.NowMs())
	})

	omsInstance := oms.New()

	deps := Deps{
		Adapter:      mock,
		WAL:          w,
		OMS:          omsInstance,
		Account:      account.New(decimal.NewFromInt(10000)),
		Executor:     executor.New(mock, zerolog.Nop()),
		Universe:     universe.New(universe.Config{Enabled: false, CandidateSymbols: []string{"BTCUSDT"}}),
		Regime:       regime.New(regime.Config{ReturnAlpha: 0.5, TrendAlpha: 0.2, VolatilityAlpha: 0.3, TrendThreshold: 0.01, ExtremeVolThreshold: 0.2, WarmupTicks: 0}),
		Strategy:     strategy.NewScripted(script),
		Risk:         risk.New(risk.Config{MaxAbsNotionalUSD: decimal.NewFromInt(100000), DegradedDrawdownPct: decimal.NewFromFloat(0.2), CooldownDrawdownPct: decimal.NewFromFloat(0.3), FuseDrawdownPct: decimal.NewFromFloat(0.4)}),
		ExecEngine:   execEngine,
		Throttle:     throttle.New(throttle.Config{MinOrderIntervalMs: 0}),
		Reconcile:    reconcile.NewState(reconcile.Config{ToleranceUSD: decimal.NewFromInt(5), GraceTicks: 2, AutoResyncCooldownTicks: 5, MismatchConfirmations: 3, AnomalyReduceOnlyStreak: 3, AnomalyHaltStreak: 5, AnomalyResumeStreak: 2}),
		ReconcileCfg: reconcile.Config{ToleranceUSD: decimal.NewFromInt(5), GraceTicks: 2, AutoResyncCooldownTicks: 5, MismatchConfirmations: 3, AnomalyReduceOnlyStreak: 3, AnomalyHaltStreak: 5, AnomalyResumeStreak: 2},
		Protection:   protection.New(protection.Config{RequireSL: true, SLRatio: decimal.NewFromFloat(0.01), AttachTimeoutMs: 5000}, execEngine, omsInstance),
		Clock:        clk,
		IDMinter:     minter,
	}

	cfg := Config{
		MinOrderNotionalUSD:        decimal.NewFromInt(1),
		RemoteRiskRefreshIntervalTicks: 1000,
		StatusLogIntervalTicks:     1000,
		ReconcileCheckIntervalTicks: 1000,
		IdleSleep:                  time.Millisecond,
	}

	return New(cfg, deps, zerolog.Nop()), mock
}

func marketEvent(symbol string, price float64, tsMs int64) types.MarketEvent {
	return types.MarketEvent{TsMs: tsMs, Symbol: symbol, LastPrice: decimal.NewFromFloat(price)}
}

func TestOnMarketEvent_EntrySignalProducesFillAndNotional(t *testing.T) {
	script := []types.Signal{
		{Symbol: "BTCUSDT", Direction: types.Long, SuggestedNotionalUSD: decimal.NewFromInt(200), TrendNotionalUSD: decimal.NewFromInt(200), DefensiveNotionalUSD: decimal.Zero},
	}
	c, mock := newTestController(t, script)
	mock.SetSymbolInfo(types.SymbolInfo{Symbol: "BTCUSDT", Tradable: true, QtyStep: decimal.NewFromFloat(0.001), MinOrderQty: decimal.NewFromFloat(0.001), MinNotionalUSD: decimal.NewFromInt(5), PriceTick: decimal.NewFromFloat(0.01), QtyPrecision: 3, PricePrecision: 2})

	go c.deps.Executor.Run()
	t.Cleanup(c.deps.Executor.Stop)

	c.OnMarketEvent(marketEvent("BTCUSDT", 100, 1), 1)

	require.Eventually(t, func() bool {
		c.DrainAsyncResults()
		c.DrainFills()
		return !c.deps.Account.CurrentNotionalUSD("BTCUSDT").IsZero()
	}, time.Second, time.Millisecond)

	require.InDelta(t, 200, c.deps.Account.CurrentNotionalUSD("BTCUSDT").InexactFloat64(), 1)
}

func TestOnMarketEvent_FlatSignalIsNoOp(t *testing.T) {
	script := []types.Signal{{Symbol: "BTCUSDT", Direction: types.Flat}}
	c, _ := newTestController(t, script)
	c.OnMarketEvent(marketEvent("BTCUSDT", 100, 1), 1)
	require.True(t, c.deps.Account.CurrentNotionalUSD("BTCUSDT").IsZero())
}

func TestCheckProtectionTimeouts_ForcesReduceOnlyAfterDeadline(t *testing.T) {
	c, _ := newTestController(t, nil)
	fill := types.FillEvent{FillID: "f1", ClientOrderID: "entry1", Symbol: "BTCUSDT", Direction: types.Long, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)}
	c.deps.Protection.OnEntryFill("entry1", fill, 1000)

	c.CheckProtectionTimeouts(1000)
	require.False(t, c.ForceReduceOnlyActive())

	c.CheckProtectionTimeouts(1000 + 5000)
	require.True(t, c.ForceReduceOnlyActive())
}

func TestRunReconcileCheck_HardHaltsAfterRepeatedMismatch(t *testing.T) {
	c, _ := newTestController(t, nil)
	// Seed a local position with no matching remote position, so every
	// reconcile check this tick reports a mismatch.
	c.deps.Account.ApplyFill(types.FillEvent{FillID: "seed", ClientOrderID: "seed", Symbol: "BTCUSDT", Direction: types.Long, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})

	for i := 0; i < 4; i++ {
		c.runReconcileCheck(int64(i))
	}
	require.True(t, c.TradingHalted())
}

func TestClearReconcileHalt_ReleasesHaltState(t *testing.T) {
	c, _ := newTestController(t, nil)
	c.reconcileHalted = true
	c.ClearReconcileHalt()
	require.False(t, c.TradingHalted())
}

func TestApplyFill_DuplicateFillIDIsNoOp(t *testing.T) {
	c, _ := newTestController(t, nil)
	fill := types.FillEvent{FillID: "dup-1", ClientOrderID: "entry1", Symbol: "BTCUSDT", Direction: types.Long, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)}

	c.applyFill(fill)
	require.InDelta(t, 100, c.deps.Account.CurrentNotionalUSD("BTCUSDT").InexactFloat64(), 0.001)

	c.applyFill(fill)
	require.InDelta(t, 100, c.deps.Account.CurrentNotionalUSD("BTCUSDT").InexactFloat64(), 0.001, "re-applying the same fill_id must not double-count")
}

func TestSeedFromWAL_PreventsReapplyingKnownFill(t *testing.T) {
	c, _ := newTestController(t, nil)
	c.SeedFromWAL(nil, map[string]struct{}{"known-1": {}})

	c.applyFill(types.FillEvent{FillID: "known-1", ClientOrderID: "entry1", Symbol: "BTCUSDT", Direction: types.Long, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)})

	require.True(t, c.deps.Account.CurrentNotionalUSD("BTCUSDT").IsZero(), "a fill_id already known from WAL replay must be suppressed")
}

func TestDurableEnqueue_DuplicateIntentIsSuppressed(t *testing.T) {
	c, _ := newTestController(t, nil)
	intent := types.OrderIntent{ClientOrderID: "intent-1", Symbol: "BTCUSDT", Direction: types.Long, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)}

	c.durableEnqueue(intent, 1)
	require.True(t, c.deps.OMS.Has("intent-1"))

	c.durableEnqueue(intent, 2)
	record, ok := c.deps.OMS.Record("intent-1")
	require.True(t, ok)
	require.Equal(t, types.OrderNew, record.State, "a duplicate client_order_id must not re-register or re-transition the record")
}
