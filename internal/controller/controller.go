// Package controller wires every decision-loop component into the
// orchestrator the teacher's bot/ package plays: own the main loop, own
// the union of safety states, and drive each polled market event through
// the pipeline (universe -> regime -> strategy -> evolution -> integrator
// -> risk -> execution engine -> fee gate -> throttle -> durable enqueue).
// Grounded on the teacher's bot package's manager-owns-everything shape
// and on execution/executor.go's OnFill callback wiring, generalized from
// a single Polymarket market manager to the multi-symbol perpetuals core.
package controller

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/account"
	"github.com/nvquant/tradecore/internal/audit"
	"github.com/nvquant/tradecore/internal/clock"
	"github.com/nvquant/tradecore/internal/coreerr"
	"github.com/nvquant/tradecore/internal/evolution"
	"github.com/nvquant/tradecore/internal/exchange"
	"github.com/nvquant/tradecore/internal/execengine"
	"github.com/nvquant/tradecore/internal/executor"
	"github.com/nvquant/tradecore/internal/feegate"
	"github.com/nvquant/tradecore/internal/gatemonitor"
	"github.com/nvquant/tradecore/internal/integrator"
	"github.com/nvquant/tradecore/internal/notify"
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

// Config holds the orchestrator's own tunables (the rest live inside the
// component configs it's constructed with).
type Config struct {
	MinOrderNotionalUSD            decimal.Decimal
	RemoteRiskRefreshIntervalTicks int64
	StatusLogIntervalTicks     int64
	GateWindowTicks            int64
	EvolutionWindowTicks       int64
	ReconcileCheckIntervalTicks int64
	IdleSleep                  time.Duration

	// MakerEnabled mirrors execution.maker.enabled: whether passive-limit
	// entries are available at all, one of the two signals that make a
	// maker entry viable for the fee gate's near-miss override.
	MakerEnabled bool
	// StrategyDeadbandAbsUSD is the strategy's minimum actionable absolute
	// price move, fed to the fee gate as a floor on expected edge.
	StrategyDeadbandAbsUSD float64
}

// Deps bundles the already-constructed components the controller drives.
// Built this way (rather than each owning its own constructor call inside
// New) so tests can substitute fakes for any one seam.
type Deps struct {
	Adapter        exchange.Adapter
	WAL            *wal.WAL
	OMS            *oms.OMS
	Account        *account.Account
	Executor       *executor.Executor
	Universe       *universe.Selector
	Regime         *regime.Engine
	Strategy       strategy.Engine
	Evolution      *evolution.Controller
	Integrator     *integrator.Integrator
	Risk           *risk.Engine
	ExecEngine     *execengine.Engine
	Throttle       *throttle.Throttle
	FeeGate        *feegate.Gate
	Reconcile      *reconcile.State
	ReconcileCfg   reconcile.Config
	GateMonitor    *gatemonitor.Monitor
	Protection     *protection.Orchestrator
	Clock          *clock.Clock
	IDMinter       *clock.IDMinter
	Audit          *audit.Store   // optional; nil disables audit recording
	Notifier       *notify.Notifier // optional; nil disables operator alerts
}

// Controller is the single-threaded decision loop's owner.
type Controller struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	gateForcedReduceOnly       bool
	reconcileForcedReduceOnly  bool
	protectionForcedReduceOnly bool
	reconcileHalted            bool
	gateHalted                 bool

	parentOfChild map[string]string // child client_order_id -> parent (entry) client_order_id
	lastFillTick  int64
	stopCh        chan struct{}

	lastEquityUSD     decimal.Decimal
	haveLastEquityUSD bool

	pendingIntentIDs map[string]struct{} // client_order_ids already registered/appended
	pendingFillIDs   map[string]struct{} // fill_ids already applied to account/oms
}

// New constructs a Controller over already-built dependencies.
func New(cfg Config, deps Deps, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:              cfg,
		deps:             deps,
		log:              log,
		parentOfChild:    make(map[string]string),
		stopCh:           make(chan struct{}),
		pendingIntentIDs: make(map[string]struct{}),
		pendingFillIDs:   make(map[string]struct{}),
	}
}

// SeedFromWAL primes the controller's pending-id sets from a WAL replay
// performed before Initialize is called, so a fill or intent already
// durable on disk from a prior run is never re-applied (spec.md §4.14's
// pending-fill-id/pending-intent-id sets, I2/I8).
func (c *Controller) SeedFromWAL(intentIDs, fillIDs map[string]struct{}) {
	for id := range intentIDs {
		c.pendingIntentIDs[id] = struct{}{}
	}
	for id := range fillIDs {
		c.pendingFillIDs[id] = struct{}{}
	}
}

// ForceReduceOnlyActive reports whether any safety mechanism currently
// forces reduce-only-only trading (spec.md §4.14).
func (c *Controller) ForceReduceOnlyActive() bool {
	return c.gateForcedReduceOnly || c.reconcileForcedReduceOnly || c.protectionForcedReduceOnly
}

// TradingHalted reports whether trading is fully halted.
func (c *Controller) TradingHalted() bool {
	return c.reconcileHalted || c.gateHalted
}

// Initialize runs the startup sequence: adapter connect, account snapshot
// fetch, executor worker start, remote position and balance sync. The
// snapshot is only logged; its modes are not compared against any expected
// value, and the universe selector is not bootstrapped here. A snapshot
// fetch error aborts startup only when strict is set. WAL init/replay happens
// before Initialize is called (the caller owns WAL lifetime so tests can
// inject a pre-replayed OMS/Account).
func (c *Controller) Initialize(strict bool) error {
	if err := c.deps.Adapter.Connect(); err != nil {
		c.log.Error().Str("kind", string(coreerr.ExchangeConnectFailed)).Err(err).Msg("exchange connect failed")
		return err
	}

	snapshot, err := c.deps.Adapter.GetAccountSnapshot()
	if err != nil {
		c.log.Error().Str("kind", string(coreerr.AccountModeValidationFailed)).Err(err).Msg("account snapshot fetch failed")
		if strict {
			return err
		}
	}
	c.log.Info().Str("account_mode", snapshot.AccountMode).Str("margin_mode", snapshot.MarginMode).Msg("account snapshot validated")

	go c.deps.Executor.Run()

	if positions, err := c.deps.Adapter.GetRemotePositions(); err == nil {
		c.deps.Account.SyncFromRemotePositions(positions, c.deps.Account.PeakEquity())
	}
	if bal, err := c.deps.Adapter.GetRemoteAccountBalance(); err == nil {
		c.deps.Account.SyncFromRemoteBalance(bal, false)
	}

	return nil
}

// Stop signals Run to exit and stops the executor worker.
func (c *Controller) Stop() {
	close(c.stopCh)
	c.deps.Executor.Stop()
}

// Run polls the adapter until Stop is called or maxTicks is reached
// (maxTicks<=0 means unbounded), driving the pipeline on every market
// event and the periodic/fill/timeout housekeeping on every loop pass.
func (c *Controller) Run(maxTicks int64) {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		idle := true
		if event, ok := c.deps.Adapter.PollMarket(); ok {
			idle = false
			tick := c.deps.Clock.Advance()
			c.OnMarketEvent(event, tick)
			if maxTicks > 0 && tick >= maxTicks {
				return
			}
		}

		fillsBefore := len(c.pendingFillIDs)
		c.DrainAsyncResults()
		c.DrainFills()
		if len(c.pendingFillIDs) != fillsBefore {
			idle = false
		}
		c.CheckProtectionTimeouts(c.deps.Clock.NowMs())
		c.RunPeriodicTasks(c.deps.Clock.Tick(), c.deps.Clock.NowMs())

		if idle {
			time.Sleep(c.cfg.IdleSleep)
		}
	}
}

// OnMarketEvent runs the full per-tick pipeline for one polled market event.
func (c *Controller) OnMarketEvent(event types.MarketEvent, tick int64) {
	c.deps.Account.OnMarket(event)

	var gateCounters gatemonitor.Counters
	defer c.closeGateTick(tick, &gateCounters)

	tradable := map[string]bool{event.Symbol: true}
	if tick%maxInt64(c.cfg.ReconcileCheckIntervalTicks, 1) == 0 {
		c.deps.Universe.Update(tradable)
	}
	if !c.deps.Universe.IsActive(event.Symbol) {
		return
	}

	regimeState := c.deps.Regime.OnMarket(event.Symbol, event.RefPrice().InexactFloat64())

	var notionalChurn float64
	if c.deps.Evolution != nil {
		defer func() {
			equity := c.deps.Account.EquityUSD()
			tickPnl := 0.0
			if c.haveLastEquityUSD {
				tickPnl = equity.Sub(c.lastEquityUSD).InexactFloat64()
			}
			c.lastEquityUSD = equity
			c.haveLastEquityUSD = true
			// forwardReturn is approximated by the same-tick instant return:
			// a true k-tick-forward return would need a lag buffer this
			// synchronous loop doesn't otherwise keep (see DESIGN.md).
			c.deps.Evolution.OnTick(regimeState.Bucket, tickPnl, c.deps.Account.DrawdownPct(), notionalChurn, regimeState.InstantReturn)
		}()
	}

	signal := c.deps.Strategy.Evaluate(regimeState, event)
	if c.deps.Evolution != nil {
		blendedF := c.deps.Evolution.Blend(regimeState.Bucket, signal.TrendNotionalUSD.InexactFloat64(), signal.DefensiveNotionalUSD.InexactFloat64())
		signal.SuggestedNotionalUSD = decimal.NewFromFloat(blendedF)
	}
	if c.deps.Integrator != nil {
		signal = c.deps.Integrator.Apply(regimeState, signal)
	}
	if signal.IsFlat() {
		return
	}
	gateCounters.RawSignals++

	targetNotional := signal.SuggestedNotionalUSD
	if signal.Direction == types.Short {
		targetNotional = targetNotional.Neg()
	}

	drawdown := decimal.NewFromFloat(c.deps.Account.DrawdownPct())
	adjusted := c.deps.Risk.Apply(event.Symbol, targetNotional, c.deps.Adapter.TradeOk(), drawdown)

	currentNotional := c.deps.Account.CurrentNotionalUSD(event.Symbol)
	intent, ok := c.deps.ExecEngine.BuildIntent(adjusted, currentNotional, event.RefPrice())
	if !ok {
		return
	}
	gateCounters.OrderIntents++
	notionalChurn = intent.Qty.Mul(intent.Price).InexactFloat64()

	if intent.Qty.Mul(intent.Price).LessThan(c.cfg.MinOrderNotionalUSD) {
		c.log.Debug().Str("kind", string(coreerr.ExecFilterIgnoreMinNotional)).Str("symbol", event.Symbol).Msg("intent below min notional")
		return
	}

	if c.deps.FeeGate != nil && intent.Purpose == types.PurposeEntry {
		if c.deps.FeeGate.InCooldown(event.Symbol, tick) {
			c.log.Debug().Str("kind", string(coreerr.OrderCostFilterCooldownEnter)).Str("symbol", event.Symbol).Msg("symbol in cost-filter cooldown")
			return
		}
		decision := c.deps.FeeGate.Evaluate(feegate.Inputs{
			Symbol:              event.Symbol,
			Direction:           intent.Direction,
			Price:               event.RefPrice().InexactFloat64(),
			Tick:                tick,
			TrendStrength:       regimeState.TrendStrength,
			InstantReturn:       regimeState.InstantReturn,
			Bucket:              regimeState.Bucket,
			VolatilityLevel:     regimeState.VolatilityLevel,
			StrategyDeadbandAbs: c.cfg.StrategyDeadbandAbsUSD,
			MakerEntryViable:    c.cfg.MakerEnabled && intent.LiquidityPreference != types.LiquidityTaker,
		})
		if !decision.Allow {
			c.log.Debug().Str("kind", string(coreerr.OrderFilteredCost)).Str("symbol", event.Symbol).Float64("required_bps", decision.RequiredEdgeBps).Float64("expected_bps", decision.ExpectedEdgeBps).Msg("entry rejected by fee gate")
			return
		}
		if decision.NearMissMaker {
			c.log.Debug().Str("kind", string(coreerr.OrderNearMissMakerAllowed)).Str("symbol", event.Symbol).Msg("near-miss maker override")
			intent.LiquidityPreference = types.LiquidityMaker
		}
	}

	if c.TradingHalted() {
		return
	}
	if c.ForceReduceOnlyActive() && !intent.ReduceOnly {
		return
	}

	if c.deps.Throttle != nil {
		if allowed, reason := c.deps.Throttle.Check(intent, c.deps.Clock.NowMs(), tick); !allowed {
			c.log.Debug().Str("kind", string(coreerr.OrderThrottled)).Str("symbol", event.Symbol).Str("reason", reason).Msg("intent throttled")
			return
		}
	}

	gateCounters.EffectiveSignals++
	c.durableEnqueue(intent, tick)
}

// closeGateTick folds one tick's counters into the gate monitor and, if
// the tick completes a window, runs the window-close/runtime-enforcement
// logic. Deferred so every early return above still reports its tick.
func (c *Controller) closeGateTick(tick int64, counters *gatemonitor.Counters) {
	if c.deps.GateMonitor == nil {
		return
	}
	counters.Fills = c.fillsThisTick(tick)
	if c.deps.GateMonitor.OnTick(tick, *counters) {
		c.log.Warn().Str("kind", "WARN_SIGNAL_HEARTBEAT_GAP").Int64("tick", tick).Msg("no effective signal for heartbeat window")
	}
	if !c.deps.GateMonitor.WindowClosed() {
		return
	}
	result := c.deps.GateMonitor.CloseWindow()
	for _, reason := range result.FailReasons {
		c.log.Warn().Str("kind", reason).Msg("gate window failed")
	}
	outcome := c.deps.GateMonitor.ApplyRuntimeEnforcement(tick)
	if outcome.EnterReduceOnly {
		c.gateForcedReduceOnly = true
		c.log.Warn().Str("kind", string(coreerr.GateRuntimeReduceOnlyEnter)).Msg("gate monitor forced reduce-only")
		c.deps.Audit.RecordSafetyEvent(string(coreerr.GateRuntimeReduceOnlyEnter), "gate window failed", tick)
		c.deps.Notifier.ReduceOnlyEntered("gate", "activity window failed")
	}
	if outcome.EnterHalt {
		c.gateHalted = true
		c.log.Error().Str("kind", string(coreerr.GateRuntimeHaltEnter)).Msg("gate monitor halted trading")
		c.deps.Audit.RecordSafetyEvent(string(coreerr.GateRuntimeHaltEnter), "gate window failed", tick)
		c.deps.Notifier.Halted("gate", "repeated activity window failure")
	}
	if outcome.ReleaseState {
		c.gateForcedReduceOnly = false
		c.gateHalted = false
		c.log.Info().Str("kind", string(coreerr.GateRuntimeAutoResume)).Msg("gate monitor released safety state")
		c.deps.Audit.RecordSafetyEvent(string(coreerr.GateRuntimeAutoResume), "gate window passed", tick)
		c.deps.Notifier.ReduceOnlyExited("gate")
	}
}

func (c *Controller) fillsThisTick(tick int64) int64 {
	if c.lastFillTick == tick {
		return 1
	}
	return 0
}

// durableEnqueue follows spec.md §4.14's order exactly: check the
// pending-intent-id set; register_intent; then wal.append_intent; on WAL
// failure mark the just-registered record rejected and abort.
func (c *Controller) durableEnqueue(intent types.OrderIntent, tick int64) {
	if _, dup := c.pendingIntentIDs[intent.ClientOrderID]; dup {
		c.log.Debug().Str("kind", string(coreerr.IntentDuplicate)).Str("client_order_id", intent.ClientOrderID).Msg("duplicate intent suppressed (pending set)")
		return
	}
	if err := c.deps.OMS.RegisterIntent(intent); err != nil {
		c.log.Warn().Str("kind", string(coreerr.IntentDuplicate)).Err(err).Msg("duplicate intent suppressed")
		return
	}
	c.pendingIntentIDs[intent.ClientOrderID] = struct{}{}

	if err := c.deps.WAL.AppendIntent(intent); err != nil {
		c.log.Error().Str("kind", string(coreerr.IntentWALAppendFailed)).Err(err).Msg("WAL append intent failed")
		c.deps.OMS.MarkRejected(intent.ClientOrderID)
		return
	}
	c.deps.OMS.SetEnqueuedMs(intent.ClientOrderID, c.deps.Clock.NowMs())
	c.deps.Audit.RecordIntent(intent)
	c.deps.Executor.Submit(intent)
	if c.deps.Throttle != nil {
		c.deps.Throttle.OnAccepted(intent, c.deps.Clock.NowMs(), tick)
	}
}

// DrainAsyncResults drains the executor's non-blocking result buffer,
// marking rejected submissions in the OMS.
func (c *Controller) DrainAsyncResults() {
	for _, r := range c.deps.Executor.DrainResults() {
		if r.IsCancel {
			continue
		}
		if !r.Success {
			c.deps.OMS.MarkRejected(r.ClientOrderID)
		}
	}
}

// DrainFills pulls all currently-available fills from the adapter and
// applies them to the WAL, account, OMS, and protection orchestrator.
func (c *Controller) DrainFills() {
	for {
		fill, ok := c.deps.Adapter.PollFill()
		if !ok {
			return
		}
		c.applyFill(fill)
	}
}

// applyFill follows spec.md §4.14's order exactly: dedup by fill_id;
// wal.append_fill; insert id; oms.on_fill; account.apply_fill. A fill_id
// already seen (duplicate delivery across a channel transition, a
// re-primed reconnect, or a WAL-known id from a prior run) is a no-op,
// satisfying invariant I2/testable property 2 (fill idempotence).
func (c *Controller) applyFill(fill types.FillEvent) {
	if _, dup := c.pendingFillIDs[fill.FillID]; dup {
		c.log.Debug().Str("kind", "FillDuplicate").Str("fill_id", fill.FillID).Str("symbol", fill.Symbol).Msg("duplicate fill suppressed")
		return
	}

	if err := c.deps.WAL.AppendFill(fill); err != nil {
		c.log.Error().Str("symbol", fill.Symbol).Err(err).Msg("WAL append fill failed")
	}
	c.pendingFillIDs[fill.FillID] = struct{}{}

	c.deps.OMS.OnFill(fill)
	c.deps.Account.ApplyFill(fill)
	c.deps.Audit.RecordFill(fill)
	c.lastFillTick = c.deps.Clock.Tick()

	record, ok := c.deps.OMS.Record(fill.ClientOrderID)
	if !ok {
		return
	}

	switch record.Intent.Purpose {
	case types.PurposeEntry:
		parentID := fill.ClientOrderID
		intents := c.deps.Protection.OnEntryFill(parentID, fill, c.deps.Clock.NowMs())
		for _, in := range intents {
			c.parentOfChild[in.ClientOrderID] = parentID
			c.durableEnqueue(in, c.deps.Clock.Tick())
			if in.Purpose == types.PurposeSL {
				c.deps.Protection.OnSLAttached(parentID)
			}
		}
	case types.PurposeSL, types.PurposeTP:
		parentID := c.parentOfChild[fill.ClientOrderID]
		siblingID, shouldCancel := c.deps.Protection.OnProtectiveFill(parentID, record.Intent.Purpose)
		if shouldCancel {
			c.deps.Executor.Cancel(siblingID)
		}
	}
}

// CheckProtectionTimeouts forces reduce-only trading if any required SL
// failed to attach within its configured window.
func (c *Controller) CheckProtectionTimeouts(nowMs int64) {
	timedOut := c.deps.Protection.CheckTimeouts(nowMs)
	for _, watch := range timedOut {
		c.protectionForcedReduceOnly = true
		c.log.Error().Str("kind", string(protection.TimeoutErrorKind)).Str("symbol", watch.Symbol).Str("reason", "sl_attach_timeout").Msg("required stop-loss failed to attach in time")
		c.deps.Audit.RecordSafetyEvent(string(protection.TimeoutErrorKind), "sl_attach_timeout:"+watch.Symbol, c.deps.Clock.Tick())
		c.deps.Notifier.ReduceOnlyEntered("protection", "required stop-loss failed to attach for "+watch.Symbol)
	}
}

// RunPeriodicTasks runs tick-boundary-conditional housekeeping: remote
// risk refresh, reconciliation, the gate monitor's flat-account
// auto-resume, evolution-window close, and status logging. Gate windows
// are closed per market event in closeGateTick, not here.
func (c *Controller) RunPeriodicTasks(tick, nowMs int64) {
	if c.cfg.RemoteRiskRefreshIntervalTicks > 0 && tick%c.cfg.RemoteRiskRefreshIntervalTicks == 0 {
		if positions, err := c.deps.Adapter.GetRemotePositions(); err == nil {
			c.deps.Account.RefreshRiskFromRemote(positions)
		}
	}

	if c.cfg.ReconcileCheckIntervalTicks > 0 && tick%c.cfg.ReconcileCheckIntervalTicks == 0 {
		c.runReconcileCheck(tick)
	}

	if c.deps.GateMonitor != nil {
		if flat := c.deps.Account.GrossNotionalUSD().IsZero(); flat {
			outcome := c.deps.GateMonitor.OnAccountFlat(tick, !c.deps.OMS.HasAnyPendingNetPosition())
			if outcome.ReleaseState {
				c.gateForcedReduceOnly = false
				c.gateHalted = false
				c.log.Info().Str("kind", string(coreerr.GateRuntimeAutoResume)).Msg("gate monitor auto-resumed on flat account")
				c.deps.Audit.RecordSafetyEvent(string(coreerr.GateRuntimeAutoResume), "flat account auto-resume", tick)
				c.deps.Notifier.ReduceOnlyExited("gate")
			}
		}
	}

	if c.deps.Evolution != nil && c.cfg.EvolutionWindowTicks > 0 && tick%c.cfg.EvolutionWindowTicks == 0 {
		result := c.deps.Evolution.CloseWindow()
		c.log.Info().Str("kind", string(coreerr.SelfEvolutionAction)).Str("action", string(result.Action)).Str("reason", result.Reason).Msg("evolution window closed")
		c.deps.Audit.RecordSafetyEvent(string(coreerr.SelfEvolutionAction), result.Reason, tick)
		c.deps.Notifier.EvolutionAction(string(result.Bucket), string(result.Action), result.Reason)
	}

	if c.cfg.StatusLogIntervalTicks > 0 && tick%c.cfg.StatusLogIntervalTicks == 0 {
		c.log.Info().
			Int64("tick", tick).
			Bool("force_reduce_only", c.ForceReduceOnlyActive()).
			Bool("trading_halted", c.TradingHalted()).
			Str("equity_usd", c.deps.Account.EquityUSD().String()).
			Msg("status")
	}
}

func (c *Controller) runReconcileCheck(tick int64) {
	var localTotal decimal.Decimal
	for _, p := range c.deps.Account.Positions() {
		localTotal = localTotal.Add(p.NotionalUSD())
	}
	remoteTotal, haveRemote, err := c.deps.Adapter.GetRemoteNotionalUSD()
	if err != nil {
		haveRemote = false
	}

	result := reconcile.Check(c.deps.ReconcileCfg, localTotal, remoteTotal, haveRemote, localTotal)
	outcome := c.deps.Reconcile.OnCheckResult(tick, result)
	c.applyReconcileOutcome(outcome, tick)
}

func (c *Controller) applyReconcileOutcome(outcome reconcile.Outcome, tick int64) {
	if outcome.ShouldAutoResync {
		if positions, err := c.deps.Adapter.GetRemotePositions(); err == nil {
			c.deps.Account.ForceSyncPositionsFromRemote(positions)
		}
		c.log.Warn().Str("kind", string(coreerr.OMSReconcileAutoresync)).Int64("tick", tick).Msg("reconciler auto-resync")
		c.deps.Audit.RecordSafetyEvent(string(coreerr.OMSReconcileAutoresync), "auto-resync", tick)
	}
	if outcome.ShouldHardHalt {
		c.reconcileHalted = true
		c.log.Error().Str("kind", string(coreerr.ReconcileMismatchCritical)).Int64("tick", tick).Msg("reconcile hard halt")
		c.deps.Audit.RecordSafetyEvent(string(coreerr.ReconcileMismatchCritical), "hard halt", tick)
		c.deps.Notifier.Halted("reconcile", "confirmed position/notional mismatch")
	}
	if outcome.EnterAnomalyReduceOnly {
		c.reconcileForcedReduceOnly = true
		c.log.Warn().Str("kind", string(coreerr.OMSReconcileAnomalyProtectionEnter)).Int64("tick", tick).Msg("reconcile anomaly forced reduce-only")
		c.deps.Audit.RecordSafetyEvent(string(coreerr.OMSReconcileAnomalyProtectionEnter), "anomaly reduce-only", tick)
		c.deps.Notifier.ReduceOnlyEntered("reconcile", "unconfirmed position/notional mismatch")
	}
	if outcome.EnterAnomalyHalt {
		c.reconcileHalted = true
		c.log.Error().Str("kind", string(coreerr.OMSReconcileAnomalyHaltEnter)).Int64("tick", tick).Msg("reconcile anomaly halt")
		c.deps.Audit.RecordSafetyEvent(string(coreerr.OMSReconcileAnomalyHaltEnter), "anomaly halt", tick)
		c.deps.Notifier.Halted("reconcile", "repeated unconfirmed mismatch")
	}
	if outcome.ReleaseAnomalyReduceOnly {
		c.reconcileForcedReduceOnly = false
		c.log.Info().Str("kind", string(coreerr.OMSReconcileAnomalyProtectionExit)).Int64("tick", tick).Msg("reconcile anomaly reduce-only released")
		c.deps.Audit.RecordSafetyEvent(string(coreerr.OMSReconcileAnomalyProtectionExit), "anomaly reduce-only released", tick)
		c.deps.Notifier.ReduceOnlyExited("reconcile")
	}
}

// ClearReconcileHalt is the operator-only release for a reconcile hard
// halt (spec.md §4.9: no auto-release).
func (c *Controller) ClearReconcileHalt() {
	c.reconcileHalted = false
	c.deps.Reconcile.ClearAnomalyHalt()
}

func maxInt64(v, floor int64) int64 {
	if v < floor {
		return floor
	}
	return v
}
