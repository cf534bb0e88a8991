// tradecore drives a single-symbol-primary, multi-symbol-capable
// perpetuals decision loop: poll market events, run them through the
// universe/regime/strategy/evolution/integrator/risk/execution/fee-gate/
// throttle pipeline, durably enqueue the resulting intents, and apply
// fills as they arrive. Construction order follows the teacher's
// cmd/polybot/main.go: logging, env, config, components in dependency
// order, graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/nvquant/tradecore/internal/account"
	"github.com/nvquant/tradecore/internal/audit"
	"github.com/nvquant/tradecore/internal/bybitclient"
	"github.com/nvquant/tradecore/internal/clock"
	"github.com/nvquant/tradecore/internal/config"
	"github.com/nvquant/tradecore/internal/controller"
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

const version = "1.0.0"

// defaultStartingCashUSD seeds the in-memory ledger when a config omits
// system.starting_cash_usd and a WAL replay finds no prior fills.
const defaultStartingCashUSD = 10000

// idleSleep is how long Run's poll loop parks between adapter polls when
// a pass saw no market event and applied no new fill.
const idleSleep = 20 * time.Millisecond

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.String("config", "config.yaml", "path to the YAML configuration file")
	exchangeOverride := pflag.String("exchange", "", "override exchange.platform from the config file")
	maxTicks := pflag.Int64("max_ticks", 0, "stop after this many ticks (0 = use config/unbounded)")
	statusLogIntervalTicks := pflag.Int64("status_log_interval_ticks", 0, "override system.status_log_interval_ticks")
	remoteRiskRefreshIntervalTicks := pflag.Int64("remote_risk_refresh_interval_ticks", 0, "override system.remote_risk_refresh_interval_ticks")
	runForever := pflag.Bool("run_forever", false, "ignore max_ticks and run until a safety halt or signal")
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment variables as-is")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}

	if *exchangeOverride != "" {
		cfg.Exchange.Platform = *exchangeOverride
	}
	if *statusLogIntervalTicks > 0 {
		cfg.System.StatusLogIntervalTicks = *statusLogIntervalTicks
	}
	if *remoteRiskRefreshIntervalTicks > 0 {
		cfg.System.RemoteRiskRefreshIntervalTicks = *remoteRiskRefreshIntervalTicks
	}
	effectiveMaxTicks := cfg.System.MaxTicks
	if *maxTicks > 0 {
		effectiveMaxTicks = *maxTicks
	}
	if *runForever {
		effectiveMaxTicks = 0
	}

	log.Info().Str("version", version).Str("mode", cfg.System.Mode).Str("symbol", cfg.System.PrimarySymbol).Str("exchange", cfg.Exchange.Platform).Msg("tradecore starting")

	notifier, err := notify.New(notify.Config{Enabled: cfg.Notify.Enabled, BotToken: cfg.Notify.BotToken, ChatID: cfg.Notify.ChatID}, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("failed to init telegram notifier")
		return 1
	}

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.New(cfg.Audit.DBPath, log.Logger)
		if err != nil {
			log.Error().Err(err).Msg("failed to init audit store")
			return 1
		}
		defer auditStore.Close()
	}

	adapter, err := buildAdapter(*cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to build exchange adapter")
		return 1
	}

	walPath := cfg.System.DataPath
	if walPath == "" {
		walPath = "trade.wal"
	}
	w, err := wal.Open(walPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to open WAL")
		return 1
	}
	defer w.Close()

	startingCash := cfg.System.StartingCashUSD
	if startingCash.IsZero() {
		startingCash = decimal.NewFromInt(defaultStartingCashUSD)
	}
	acct := account.New(startingCash)
	omsInstance := oms.New()
	walState, err := replayWAL(walPath, omsInstance, acct, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("failed to replay WAL")
		return 1
	}

	clk := clock.New()
	minter := clock.NewIDMinter(cfg.Exchange.Platform)

	execEngine := execengine.New(execengine.Config{
		MinRebalanceNotionalUSD: cfg.Execution.MinRebalanceNotionalUSD,
		MaxOrderNotionalUSD:     cfg.Execution.MaxOrderNotionalUSD,
		DirectFlipEntryEnabled:  cfg.Execution.DirectFlipEntryEnabled,
	}, func(symbol string) string { return minter.Mint(symbol, clk.NowMs()) })

	exec := executor.New(adapter, log.Logger)

	universeSelector := universe.New(universe.Config{
		Enabled:             cfg.Universe.Enabled,
		UpdateIntervalTicks: cfg.Universe.UpdateIntervalTicks,
		MaxActiveSymbols:    cfg.Universe.MaxActiveSymbols,
		MinActiveSymbols:    cfg.Universe.MinActiveSymbols,
		CandidateSymbols:    cfg.Universe.CandidateSymbols,
		FallbackSymbols:     cfg.Universe.FallbackSymbols,
	})

	regimeEngine := regime.New(regime.Config{
		ReturnAlpha:         0.3,
		TrendAlpha:          0.05,
		VolatilityAlpha:     0.1,
		TrendThreshold:      0.002,
		ExtremeVolThreshold: 0.02,
		WarmupTicks:         30,
	})

	// The strategy-signal-generation math itself is treated as an opaque,
	// swappable engine (see DESIGN.md); tradecore wires the reference
	// momentum engine with fixed defaults rather than exposing it in the
	// config schema.
	strategyEngine := strategy.NewMomentum(strategy.MomentumConfig{
		LookbackTicks:   20,
		WarmupTicks:     30,
		MinMoveBps:      5,
		BaseNotionalUSD: cfg.Execution.MaxOrderNotionalUSD.InexactFloat64(),
	})

	riskEngine := risk.New(risk.Config{
		MaxAbsNotionalUSD:   cfg.Risk.MaxAbsNotionalUSD,
		DegradedDrawdownPct: decimal.NewFromFloat(cfg.Risk.Thresholds.Degraded),
		CooldownDrawdownPct: decimal.NewFromFloat(cfg.Risk.Thresholds.Cooldown),
		FuseDrawdownPct:     decimal.NewFromFloat(cfg.Risk.Thresholds.Fuse),
	})

	throttleEngine := throttle.New(throttle.Config{
		MinOrderIntervalMs:         cfg.Execution.MinOrderIntervalMs,
		ReverseSignalCooldownTicks: cfg.Execution.ReverseSignalCooldownTicks,
	})

	feeGate := feegate.New(feegate.Config{
		EntryFeeBps:                   cfg.Execution.FeeBps.Entry,
		ExitFeeBps:                    cfg.Execution.FeeBps.Exit,
		ExpectedSlippageBps:           cfg.Execution.FeeBps.ExpectedSlippage,
		MinExpectedEdgeBps:            cfg.Execution.EntryGate.MinExpectedEdgeBps,
		RequiredEdgeCapBps:            cfg.Execution.EntryGate.RequiredEdgeCapBps,
		HasRequiredEdgeCap:            cfg.Execution.EntryGate.HasRequiredEdgeCap,
		NearMissToleranceBps:          cfg.Execution.EntryGate.NearMissToleranceBps,
		AdaptiveRelaxTriggerRatio:     cfg.Execution.AdaptiveFeeGate.TriggerRatio,
		AdaptiveRelaxMaxBps:           cfg.Execution.AdaptiveFeeGate.MaxRelaxBps,
		MakerRelaxBps:                 cfg.Execution.Maker.EdgeRelaxBps,
		TrendBucketReliefBps:          cfg.Execution.DynamicEdge.TrendBucketReliefBps,
		RangeExtremePenaltyBps:        cfg.Execution.DynamicEdge.RangeExtremePenaltyBps,
		VolatilityThreshold:           cfg.Execution.DynamicEdge.VolatilityThreshold,
		VolatilityAddPerUnitBps:       cfg.Execution.DynamicEdge.VolatilityAddPerUnitBps,
		VolatilitySubPerUnitBps:       cfg.Execution.DynamicEdge.VolatilitySubPerUnitBps,
		MakerFillRatioHighThreshold:   cfg.Execution.DynamicEdge.MakerFillRatioHighThreshold,
		LiquidityRelaxBps:             cfg.Execution.DynamicEdge.LiquidityRelaxBps,
		UnknownLiquidityHighThreshold: cfg.Execution.DynamicEdge.UnknownLiquidityHighThreshold,
		LiquidityPenaltyBps:           cfg.Execution.DynamicEdge.LiquidityPenaltyBps,
		QualityGuardPenaltyBps:        cfg.Execution.QualityGuard.PenaltyBps,
		MakerMaxGapBps:                cfg.Execution.EntryGate.NearMissMakerMaxGapBps,
		CooldownTriggerCount:          cfg.Execution.CostFilterCooldown.TriggerCount,
		CooldownTicks:                 cfg.Execution.CostFilterCooldown.Ticks,
	})

	reconcileCfg := reconcile.Config{
		ToleranceUSD:            cfg.Reconcile.ToleranceNotionalUSD,
		GraceTicks:              cfg.Reconcile.GraceTicks,
		AutoResyncCooldownTicks: cfg.Reconcile.AutoResyncCooldownTicks,
		MismatchConfirmations:   cfg.Reconcile.MismatchConfirmations,
		AnomalyReduceOnlyStreak: cfg.Reconcile.AnomalyReduceOnlyStreak,
		AnomalyHaltStreak:       cfg.Reconcile.AnomalyHaltStreak,
		AnomalyResumeStreak:     cfg.Reconcile.AnomalyResumeStreak,
	}
	reconcileState := reconcile.NewState(reconcileCfg)

	// gatemonitor exposes a single runtime cooldown shared by the
	// reduce-only and halt paths; the config schema keeps them separate
	// for operator clarity, so the reduce-only figure drives the shared
	// field (see DESIGN.md).
	gateMonitor := gatemonitor.New(gatemonitor.Config{
		WindowTicks:               cfg.Gate.WindowTicks,
		MinEffectiveSignals:       cfg.Gate.MinEffectiveSignalsPerWindow,
		MinFills:                  cfg.Gate.MinFillsPerWindow,
		HeartbeatEmptySignalTicks: cfg.Gate.HeartbeatEmptySignalTicks,
		FailToReduceOnlyWindows:   cfg.Gate.FailToReduceOnlyWindows,
		FailToHaltWindows:         cfg.Gate.FailToHaltWindows,
		PassToResumeWindows:       cfg.Gate.PassToResumeWindows,
		RuntimeCooldownTicks:      cfg.Gate.ReduceOnlyCooldownTicks,
		AutoResumeFlatTicks:       cfg.Gate.AutoResumeFlatTicks,
	})

	protectionOrchestrator := protection.New(protection.Config{
		RequireSL:       cfg.Protection.RequireSL,
		SLRatio:         cfg.Protection.StopLossRatio,
		TPRatio:         cfg.Protection.TakeProfitRatio,
		HasTP:           cfg.Protection.EnableTP,
		AttachTimeoutMs: cfg.Protection.AttachTimeoutMs,
	}, execEngine, omsInstance)

	var evolutionController *evolution.Controller
	if cfg.Evolution.Enabled {
		evolutionController = evolution.New(evolution.Config{
			Enabled:                     cfg.Evolution.Enabled,
			UpdateIntervalTicks:         cfg.Evolution.UpdateIntervalTicks,
			MinBucketTicksForUpdate:     cfg.Evolution.MinBucketTicksForUpdate,
			MinAbsWindowPnlUSD:          cfg.Evolution.MinAbsWindowPnlUSD,
			MaxWeightStep:               cfg.Evolution.MaxWeightStep,
			MaxSingleStrategyWeight:     cfg.Evolution.MaxSingleStrategyWeight,
			RollbackDegradeWindows:      cfg.Evolution.RollbackDegradeWindows,
			RollbackCooldownTicks:       cfg.Evolution.RollbackCooldownTicks,
			Objective: evolution.ObjectiveWeights{
				Alpha: cfg.Evolution.Objective.Alpha,
				Beta:  cfg.Evolution.Objective.Beta,
				Gamma: cfg.Evolution.Objective.Gamma,
			},
			InitialTrendWeight:      cfg.Evolution.InitialTrendWeight,
			InitialDefensiveWeight:  cfg.Evolution.InitialDefensiveWeight,
			EnableFactorICAdaptive:  cfg.Evolution.EnableFactorICAdaptive,
			FactorICMinSamples:      cfg.Evolution.FactorIC.MinSamples,
			FactorICMinAbs:          cfg.Evolution.FactorIC.MinAbs,
			EnableLearnabilityGate:  cfg.Evolution.EnableLearnabilityGate,
			LearnabilityMinSamples:  cfg.Evolution.Learnability.MinSamples,
			LearnabilityMinTStatAbs: cfg.Evolution.Learnability.MinTStatAbs,
			UseVirtualPnl:           cfg.Evolution.UseVirtualPnl,
			UseCounterfactualSearch: cfg.Evolution.UseCounterfactualSearch,
			VirtualCostBps:          cfg.Evolution.VirtualCostBps,
		})
	}

	var integratorEngine *integrator.Integrator
	if cfg.Integrator.Enabled {
		integratorEngine = integrator.New(integrator.Config{
			Mode:                 integratorMode(cfg.Integrator.Mode),
			ReportPath:           cfg.Integrator.Shadow.ModelReportPath,
			ConfidenceThreshold:  cfg.Integrator.Canary.ConfidenceThreshold,
			CanaryRatio:          cfg.Integrator.Canary.NotionalRatio,
			CanaryMinNotionalUSD: cfg.Integrator.Canary.MinNotionalUSD,
			ActiveThreshold:      cfg.Integrator.Active.ConfidenceThreshold,
			PartialRatio:         cfg.Integrator.Active.PartialNotionalRatio,
			FullThreshold:        cfg.Integrator.Active.FullNotionalConfidenceThreshold,
			CountertrendBlocked:  !cfg.Integrator.Canary.AllowCountertrend,
		})
	}

	deps := controller.Deps{
		Adapter:      adapter,
		WAL:          w,
		OMS:          omsInstance,
		Account:      acct,
		Executor:     exec,
		Universe:     universeSelector,
		Regime:       regimeEngine,
		Strategy:     strategyEngine,
		Evolution:    evolutionController,
		Integrator:   integratorEngine,
		Risk:         riskEngine,
		ExecEngine:   execEngine,
		Throttle:     throttleEngine,
		FeeGate:      feeGate,
		Reconcile:    reconcileState,
		ReconcileCfg: reconcileCfg,
		GateMonitor:  gateMonitor,
		Protection:   protectionOrchestrator,
		Clock:        clk,
		IDMinter:     minter,
		Audit:        auditStore,
		Notifier:     notifier,
	}

	ctrlCfg := controller.Config{
		MinOrderNotionalUSD:            cfg.Execution.MinOrderNotionalUSD,
		RemoteRiskRefreshIntervalTicks: cfg.System.RemoteRiskRefreshIntervalTicks,
		StatusLogIntervalTicks:         cfg.System.StatusLogIntervalTicks,
		GateWindowTicks:                cfg.Gate.WindowTicks,
		EvolutionWindowTicks:           cfg.Evolution.UpdateIntervalTicks,
		ReconcileCheckIntervalTicks:    cfg.Reconcile.IntervalTicks,
		IdleSleep:                      idleSleep,
		MakerEnabled:                   cfg.Execution.Maker.Enabled,
		StrategyDeadbandAbsUSD:         cfg.Execution.EntryGate.StrategyDeadbandAbsUSD,
	}

	ctrl := controller.New(ctrlCfg, deps, log.Logger)
	ctrl.SeedFromWAL(walState.IntentIDs, walState.FillIDs)

	strict := cfg.System.Mode != "paper"
	if err := ctrl.Initialize(strict); err != nil {
		log.Error().Err(err).Msg("controller initialize failed")
		return 1
	}

	notifier.Startup(cfg.System.Mode, cfg.System.PrimarySymbol)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	runDone := make(chan struct{})
	go func() {
		ctrl.Run(effectiveMaxTicks)
		close(runDone)
	}()

	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
		ctrl.Stop()
		<-runDone
	case <-runDone:
	}

	log.Info().Msg("tradecore stopped")
	return 0
}

// buildAdapter selects and constructs the exchange.Adapter named by
// cfg.Exchange.Platform: "", "mock" and "paper" build the in-memory Mock;
// "bybit-like" builds LiveStreaming over internal/bybitclient. "live" is
// not a recognised platform value.
func buildAdapter(cfg config.Config) (exchange.Adapter, error) {
	switch cfg.Exchange.Platform {
	case "", "mock", "paper":
		m := exchange.NewMock()
		if cfg.System.PrimarySymbol != "" {
			m.SetSymbolInfo(types.SymbolInfo{
				Symbol:         cfg.System.PrimarySymbol,
				Tradable:       true,
				QtyStep:        decimal.NewFromFloat(0.001),
				MinOrderQty:    decimal.NewFromFloat(0.001),
				MinNotionalUSD: decimal.NewFromInt(5),
				PriceTick:      decimal.NewFromFloat(0.01),
				QtyPrecision:   3,
				PricePrecision: 2,
			})
		}
		return m, nil
	case "bybit-like":
		creds, err := config.ResolveCredentials("BYBIT", cfg.Exchange.Demo, cfg.Exchange.Testnet)
		if err != nil {
			return nil, err
		}
		baseURL := "https://api.bybit.com"
		wsPublic := "wss://stream.bybit.com/v5/public/linear"
		if cfg.Exchange.Demo {
			baseURL = "https://api-demo.bybit.com"
		} else if cfg.Exchange.Testnet {
			baseURL = "https://api-testnet.bybit.com"
			wsPublic = "wss://stream-testnet.bybit.com/v5/public/linear"
		}
		category := cfg.Exchange.Category
		if category == "" {
			category = "linear"
		}
		client := bybitclient.NewClient(bybitclient.Config{
			BaseURL:   baseURL,
			WSPublic:  wsPublic,
			APIKey:    creds.APIKey,
			APISecret: creds.APISecret,
			Category:  category,
		}, log.Logger)

		reconnect := 5 * time.Second
		return exchange.NewLiveStreaming(exchange.LiveConfig{
			Symbols: symbolsFor(cfg),
			Market: exchange.ChannelConfig{
				StreamEnabled:       cfg.Exchange.PublicWSEnabled,
				RestFallbackEnabled: cfg.Exchange.PublicWSRestFallback,
				ReconnectInterval:   reconnect,
			},
			Private: exchange.ChannelConfig{
				StreamEnabled:       cfg.Exchange.PrivateWSEnabled,
				RestFallbackEnabled: cfg.Exchange.PrivateWSRestFallback,
				ReconnectInterval:   reconnect,
			},
			Maker: exchange.MakerConfig{
				Enabled:          cfg.Execution.Maker.Enabled,
				PostOnly:         cfg.Execution.Maker.PostOnly,
				OffsetBps:        cfg.Execution.Maker.OffsetBps,
				FallbackToMarket: cfg.Execution.Maker.FallbackToMarket,
			},
			ExecutionPollLimit:          cfg.Exchange.ExecutionPollLimit,
			ExecutionSkipHistoryOnStart: cfg.Exchange.ExecutionSkipHistoryOnStart,
		}, client, log.Logger), nil
	default:
		return nil, fmt.Errorf("exchange platform %q has no wired venue client yet", cfg.Exchange.Platform)
	}
}

// symbolsFor returns the symbol set a live adapter should subscribe to:
// the primary symbol plus any universe candidates, deduplicated.
func symbolsFor(cfg config.Config) []string {
	seen := map[string]struct{}{}
	var symbols []string
	add := func(sym string) {
		if sym == "" {
			return
		}
		if _, ok := seen[sym]; ok {
			return
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}
	add(cfg.System.PrimarySymbol)
	for _, sym := range cfg.Universe.CandidateSymbols {
		add(sym)
	}
	return symbols
}

// integratorMode maps the config file's lowercase mode string (spec.md's
// external-interface casing) onto the package's title-case Mode constants.
func integratorMode(s string) integrator.Mode {
	switch s {
	case "shadow":
		return integrator.ModeShadow
	case "canary":
		return integrator.ModeCanary
	case "active":
		return integrator.ModeActive
	default:
		return integrator.ModeOff
	}
}

// replayWAL reconstructs OMS and Account state from a prior run's WAL so
// a restart resumes exactly where it left off, and returns the loaded
// state so the caller can seed the controller's pending-id sets (the
// ids here are already durable; the controller must never re-apply
// them if they resurface, e.g. a re-primed reconnect replaying old
// fills). A fresh WAL (no file yet) is not an error: LoadState returns
// an empty LoadedState.
func replayWAL(path string, o *oms.OMS, acct *account.Account, log zerolog.Logger) (wal.LoadedState, error) {
	state, err := wal.LoadState(path)
	if err != nil {
		return state, err
	}
	for _, intent := range state.OrderedIntents {
		if err := o.RegisterIntent(intent); err != nil {
			log.Warn().Err(err).Str("client_order_id", intent.ClientOrderID).Msg("WAL replay: duplicate intent skipped")
		}
	}
	for _, fill := range state.OrderedFills {
		o.OnFill(fill)
		acct.ApplyFill(fill)
	}
	if len(state.OrderedFills) > 0 || len(state.OrderedIntents) > 0 {
		log.Info().Int("intents", len(state.OrderedIntents)).Int("fills", len(state.OrderedFills)).Msg("WAL replay complete")
	}
	return state, nil
}
