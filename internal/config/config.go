// Package config loads and validates the trading core's configuration:
// a YAML file parsed via gopkg.in/yaml.v3 into nested group structs that
// mirror the external-interface groups, plus env-var credential
// resolution (see credentials.go). Grounded on the teacher's
// internal/config/config.go Load()-returns-(*Config,error) shape and its
// getEnv* override-after-unmarshal idiom, generalized from flat
// Polymarket settings to the ten nested groups a perpetuals core needs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SystemConfig controls run mode and top-level scheduling.
type SystemConfig struct {
	Mode                           string          `yaml:"mode"` // live | paper | replay
	PrimarySymbol                  string          `yaml:"primary_symbol"`
	DataPath                       string          `yaml:"data_path"`
	StartingCashUSD                decimal.Decimal `yaml:"starting_cash_usd"`
	MaxTicks                       int64           `yaml:"max_ticks"`
	StatusLogIntervalTicks         int64           `yaml:"status_log_interval_ticks"`
	RemoteRiskRefreshIntervalTicks int64           `yaml:"remote_risk_refresh_interval_ticks"`
}

// RiskThresholds holds the drawdown-pct breakpoints between risk modes.
type RiskThresholds struct {
	Degraded float64 `yaml:"degraded"`
	Cooldown float64 `yaml:"cooldown"`
	Fuse     float64 `yaml:"fuse"`
}

// RiskConfig controls the risk engine's mode mapping and notional cap.
type RiskConfig struct {
	MaxAbsNotionalUSD decimal.Decimal `yaml:"max_abs_notional_usd"`
	Thresholds        RiskThresholds  `yaml:"thresholds"`
}

// FeeBps holds the round-trip cost assumptions fed to the fee gate.
type FeeBps struct {
	Entry             float64 `yaml:"entry"`
	Exit              float64 `yaml:"exit"`
	ExpectedSlippage  float64 `yaml:"expected_slippage"`
}

// MakerConfig controls passive-limit entry submission.
type MakerConfig struct {
	Enabled          bool            `yaml:"enabled"`
	PostOnly         bool            `yaml:"post_only"`
	OffsetBps        decimal.Decimal `yaml:"offset_bps"`
	FallbackToMarket bool            `yaml:"fallback_to_market"`
	EdgeRelaxBps     float64         `yaml:"edge_relax_bps"`
}

// EntryGateConfig controls the fee-aware entry gate's base thresholds.
type EntryGateConfig struct {
	Enabled                bool    `yaml:"enabled"`
	MinExpectedEdgeBps     float64 `yaml:"min_expected_edge_bps"`
	RequiredEdgeCapBps     float64 `yaml:"required_edge_cap_bps"`
	HasRequiredEdgeCap     bool    `yaml:"has_required_edge_cap"`
	NearMissToleranceBps   float64 `yaml:"near_miss_tolerance_bps"`
	NearMissMakerAllow     bool    `yaml:"near_miss_maker_allow"`
	NearMissMakerMaxGapBps float64 `yaml:"near_miss_maker_max_gap_bps"`
	StrategyDeadbandAbsUSD float64 `yaml:"strategy_deadband_abs_usd"`
}

// AdaptiveFeeGateConfig controls the gate's observed-filtered-ratio relax.
type AdaptiveFeeGateConfig struct {
	Enabled     bool    `yaml:"enabled"`
	TriggerRatio float64 `yaml:"trigger_ratio"`
	MaxRelaxBps  float64 `yaml:"max_relax_bps"`
	MinSamples   int     `yaml:"min_samples"`
}

// DynamicEdgeConfig controls the gate's bucket/volatility/liquidity
// adjustments to the required-edge threshold.
type DynamicEdgeConfig struct {
	Enabled bool `yaml:"enabled"`

	TrendBucketReliefBps   float64 `yaml:"trend_bucket_relief_bps"`
	RangeExtremePenaltyBps float64 `yaml:"range_extreme_penalty_bps"`

	VolatilityThreshold     float64 `yaml:"volatility_threshold"`
	VolatilityAddPerUnitBps float64 `yaml:"volatility_add_per_unit_bps"`
	VolatilitySubPerUnitBps float64 `yaml:"volatility_sub_per_unit_bps"`

	MakerFillRatioHighThreshold   float64 `yaml:"maker_fill_ratio_high_threshold"`
	LiquidityRelaxBps             float64 `yaml:"liquidity_relax_bps"`
	UnknownLiquidityHighThreshold float64 `yaml:"unknown_liquidity_high_threshold"`
	LiquidityPenaltyBps           float64 `yaml:"liquidity_penalty_bps"`
}

// CostFilterCooldownConfig controls the gate's per-symbol rejection cooldown.
type CostFilterCooldownConfig struct {
	TriggerCount int   `yaml:"trigger_count"`
	Ticks        int64 `yaml:"ticks"`
}

// QualityGuardConfig controls the fill-quality penalty applied to the
// required-edge threshold.
type QualityGuardConfig struct {
	Enabled    bool    `yaml:"enabled"`
	MinFills   int     `yaml:"min_fills"`
	PenaltyBps float64 `yaml:"penalty_bps"`
	BadStreak  int     `yaml:"bad_streak"`
	GoodStreak int     `yaml:"good_streak"`
}

// ExecutionConfig controls order sizing, throttling, and the fee gate.
type ExecutionConfig struct {
	MaxOrderNotionalUSD        decimal.Decimal          `yaml:"max_order_notional"`
	MinOrderNotionalUSD        decimal.Decimal          `yaml:"min_order_notional_usd"`
	MinRebalanceNotionalUSD    decimal.Decimal          `yaml:"min_rebalance_notional_usd"`
	DirectFlipEntryEnabled     bool                     `yaml:"direct_flip_entry_enabled"`
	MinOrderIntervalMs         int64                    `yaml:"min_order_interval_ms"`
	ReverseSignalCooldownTicks int64                    `yaml:"reverse_signal_cooldown_ticks"`
	FeeBps                     FeeBps                   `yaml:"fee_bps"`
	Maker                      MakerConfig              `yaml:"maker"`
	EntryGate                  EntryGateConfig          `yaml:"entry_gate"`
	AdaptiveFeeGate            AdaptiveFeeGateConfig    `yaml:"adaptive_fee_gate"`
	DynamicEdge                DynamicEdgeConfig        `yaml:"dynamic_edge"`
	CostFilterCooldown         CostFilterCooldownConfig `yaml:"cost_filter_cooldown"`
	QualityGuard               QualityGuardConfig       `yaml:"quality_guard"`
}

// ProtectionConfig controls mandatory stop-loss/take-profit attachment.
type ProtectionConfig struct {
	Enabled         bool            `yaml:"enabled"`
	RequireSL       bool            `yaml:"require_sl"`
	EnableTP        bool            `yaml:"enable_tp"`
	AttachTimeoutMs int64           `yaml:"attach_timeout_ms"`
	StopLossRatio   decimal.Decimal `yaml:"stop_loss_ratio"`
	TakeProfitRatio decimal.Decimal `yaml:"take_profit_ratio"`
}

// ReconcileConfig controls local/remote position reconciliation.
type ReconcileConfig struct {
	Enabled                 bool            `yaml:"enabled"`
	IntervalTicks           int64           `yaml:"interval_ticks"`
	ToleranceNotionalUSD    decimal.Decimal `yaml:"tolerance_notional_usd"`
	GraceTicks              int64           `yaml:"grace_ticks"`
	AutoResyncCooldownTicks int64           `yaml:"auto_resync_cooldown_ticks"`
	MismatchConfirmations   int64           `yaml:"mismatch_confirmations"`
	PendingOrderStaleMs     int64           `yaml:"pending_order_stale_ms"`
	AnomalyReduceOnlyStreak int64           `yaml:"anomaly_reduce_only_streak"`
	AnomalyHaltStreak       int64           `yaml:"anomaly_halt_streak"`
	AnomalyResumeStreak     int64           `yaml:"anomaly_resume_streak"`
}

// GateConfig controls the activity gate-monitor's windows and runtime
// enforcement.
type GateConfig struct {
	WindowTicks                  int64 `yaml:"window_ticks"`
	MinEffectiveSignalsPerWindow int64 `yaml:"min_effective_signals_per_window"`
	MinFillsPerWindow            int64 `yaml:"min_fills_per_window"`
	HeartbeatEmptySignalTicks    int64 `yaml:"heartbeat_empty_signal_ticks"`
	EnforceRuntimeActions        bool  `yaml:"enforce_runtime_actions"`
	FailToReduceOnlyWindows      int64 `yaml:"fail_to_reduce_only_windows"`
	FailToHaltWindows            int64 `yaml:"fail_to_halt_windows"`
	ReduceOnlyCooldownTicks      int64 `yaml:"reduce_only_cooldown_ticks"`
	HaltCooldownTicks            int64 `yaml:"halt_cooldown_ticks"`
	PassToResumeWindows          int64 `yaml:"pass_to_resume_windows"`
	AutoResumeWhenFlat           bool  `yaml:"auto_resume_when_flat"`
	AutoResumeFlatTicks          int64 `yaml:"auto_resume_flat_ticks"`
}

// UniverseConfig controls the active-symbol selector.
type UniverseConfig struct {
	Enabled             bool     `yaml:"enabled"`
	UpdateIntervalTicks int64    `yaml:"update_interval_ticks"`
	MaxActiveSymbols    int      `yaml:"max_active_symbols"`
	MinActiveSymbols    int      `yaml:"min_active_symbols"`
	CandidateSymbols    []string `yaml:"candidate_symbols"`
	FallbackSymbols     []string `yaml:"fallback_symbols"`
}

// ObjectiveWeights weights the evolution controller's window-close score.
type ObjectiveWeights struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
	Gamma float64 `yaml:"gamma"`
}

// FactorICConfig gates factor-IC-proportional weight proposals.
type FactorICConfig struct {
	MinSamples int     `yaml:"min_samples"`
	MinAbs     float64 `yaml:"min_abs"`
}

// LearnabilityConfig gates updates on a minimum t-stat of the window's
// per-tick P&L samples.
type LearnabilityConfig struct {
	MinSamples    int     `yaml:"min_samples"`
	MinTStatAbs   float64 `yaml:"min_t_stat_abs"`
}

// EvolutionConfig controls the per-regime strategy-weight controller.
type EvolutionConfig struct {
	Enabled                   bool                `yaml:"enabled"`
	UpdateIntervalTicks       int64               `yaml:"update_interval_ticks"`
	MinBucketTicksForUpdate   int64               `yaml:"min_bucket_ticks_for_update"`
	MinAbsWindowPnlUSD        float64             `yaml:"min_abs_window_pnl_usd"`
	MaxWeightStep             float64             `yaml:"max_weight_step"`
	MaxSingleStrategyWeight   float64             `yaml:"max_single_strategy_weight"`
	RollbackDegradeWindows    int                 `yaml:"rollback_degrade_windows"`
	RollbackCooldownTicks     int64               `yaml:"rollback_cooldown_ticks"`
	Objective                 ObjectiveWeights    `yaml:"objective"`
	InitialTrendWeight        float64             `yaml:"initial_trend_weight"`
	InitialDefensiveWeight    float64             `yaml:"initial_defensive_weight"`
	EnableFactorICAdaptive    bool                `yaml:"enable_factor_ic_adaptive_weights"`
	FactorIC                  FactorICConfig      `yaml:"factor_ic"`
	EnableLearnabilityGate    bool                `yaml:"enable_learnability_gate"`
	Learnability              LearnabilityConfig  `yaml:"learnability"`
	UseVirtualPnl             bool                `yaml:"use_virtual_pnl"`
	UseCounterfactualSearch   bool                `yaml:"use_counterfactual_search"`
	VirtualCostBps            float64             `yaml:"virtual_cost_bps"`
}

// IntegratorShadowConfig controls the stateless shadow scorer.
type IntegratorShadowConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ModelReportPath string `yaml:"model_report_path"`
	LogModelScore  bool   `yaml:"log_model_score"`
}

// IntegratorCanaryConfig controls the confidence-gated scaling policy.
type IntegratorCanaryConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	AllowCountertrend   bool    `yaml:"allow_countertrend"`
	NotionalRatio       float64 `yaml:"notional_ratio"`
	MinNotionalUSD      float64 `yaml:"min_notional_usd"`
}

// IntegratorActiveConfig controls the override/flatten policy.
type IntegratorActiveConfig struct {
	ConfidenceThreshold              float64 `yaml:"confidence_threshold"`
	FullNotionalConfidenceThreshold  float64 `yaml:"full_notional_confidence_threshold"`
	PartialNotionalRatio             float64 `yaml:"partial_notional_ratio"`
}

// IntegratorConfig controls the auxiliary shadow-model policy layer.
type IntegratorConfig struct {
	Enabled bool                    `yaml:"enabled"`
	Mode    string                  `yaml:"mode"` // off | shadow | canary | active
	Shadow  IntegratorShadowConfig  `yaml:"shadow"`
	Canary  IntegratorCanaryConfig  `yaml:"canary"`
	Active  IntegratorActiveConfig  `yaml:"active"`
}

// ExpectedAccountState is the account/margin/position mode the adapter
// validates against at startup.
type ExpectedAccountState struct {
	AccountMode  string `yaml:"account_mode"`
	MarginMode   string `yaml:"margin_mode"`
	PositionMode string `yaml:"position_mode"`
}

// ExchangeConfig selects and parameterizes the venue adapter.
type ExchangeConfig struct {
	Platform                    string               `yaml:"platform"` // mock | bybit-like | binance-like
	Testnet                     bool                 `yaml:"testnet"`
	Demo                        bool                 `yaml:"demo"`
	Category                    string               `yaml:"category"`
	AccountType                 string               `yaml:"account_type"`
	Expected                    ExpectedAccountState `yaml:"expected"`
	PublicWSEnabled             bool                 `yaml:"public_ws_enabled"`
	PublicWSRestFallback        bool                 `yaml:"public_ws_rest_fallback"`
	PrivateWSEnabled            bool                 `yaml:"private_ws_enabled"`
	PrivateWSRestFallback       bool                 `yaml:"private_ws_rest_fallback"`
	ExecutionPollLimit          int                  `yaml:"execution_poll_limit"`
	ExecutionSkipHistoryOnStart bool                 `yaml:"execution_skip_history_on_start"`
	WSReconnectIntervalMs       int64                `yaml:"ws_reconnect_interval_ms"`
}

// AuditConfig controls the optional file-local audit-trail sink. It is
// supplementary only: never read back into the decision loop.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// NotifyConfig controls the optional Telegram operator-alert sink.
type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Config is the root configuration, matching spec.md §6's ten groups plus
// the two optional ambient sinks this implementation adds (audit, notify).
type Config struct {
	System     SystemConfig     `yaml:"system"`
	Risk       RiskConfig       `yaml:"risk"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Protection ProtectionConfig `yaml:"protection"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Gate       GateConfig       `yaml:"gate"`
	Universe   UniverseConfig   `yaml:"universe"`
	Evolution  EvolutionConfig  `yaml:"evolution"`
	Integrator IntegratorConfig `yaml:"integrator"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Audit      AuditConfig      `yaml:"audit"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// Load reads path as YAML, applies env-var overrides for the handful of
// settings operators commonly flip without editing the file, and runs
// semantic validation (spec.md §6). A validation failure returns every
// violation joined into one error, not just the first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides layers a small set of operator-facing env vars over
// the YAML-loaded defaults, matching the teacher's override-after-
// unmarshal idiom.
func applyEnvOverrides(cfg *Config) {
	cfg.System.Mode = getEnv("TRADECORE_MODE", cfg.System.Mode)
	cfg.System.PrimarySymbol = getEnv("TRADECORE_PRIMARY_SYMBOL", cfg.System.PrimarySymbol)
	cfg.System.DataPath = getEnv("TRADECORE_DATA_PATH", cfg.System.DataPath)
	cfg.System.MaxTicks = getEnvInt64("TRADECORE_MAX_TICKS", cfg.System.MaxTicks)

	cfg.Exchange.Platform = getEnv("TRADECORE_EXCHANGE", cfg.Exchange.Platform)
	cfg.Exchange.Testnet = getEnvBool("TRADECORE_TESTNET", cfg.Exchange.Testnet)
	cfg.Exchange.Demo = getEnvBool("TRADECORE_DEMO", cfg.Exchange.Demo)

	cfg.Notify.BotToken = getEnv("TRADECORE_TELEGRAM_BOT_TOKEN", cfg.Notify.BotToken)
	cfg.Notify.ChatID = getEnvInt64("TRADECORE_TELEGRAM_CHAT_ID", cfg.Notify.ChatID)
}

// Validate runs the semantic checks spec.md §6 requires at load, joining
// every violation into a single error.
func (c *Config) Validate() error {
	var errs []error

	if c.Execution.MinOrderIntervalMs < 0 {
		errs = append(errs, errors.New("execution.min_order_interval_ms must be >= 0"))
	}
	if c.Universe.MinActiveSymbols > c.Universe.MaxActiveSymbols {
		errs = append(errs, errors.New("universe.min_active_symbols must be <= universe.max_active_symbols"))
	}
	if len(c.Universe.FallbackSymbols) == 0 {
		errs = append(errs, errors.New("universe.fallback_symbols must be non-empty"))
	}
	if c.Protection.Enabled && (!c.Protection.RequireSL || c.Protection.AttachTimeoutMs <= 0) {
		errs = append(errs, errors.New("protection.enabled requires require_sl=true and attach_timeout_ms > 0"))
	}
	if c.Exchange.Demo && c.Exchange.Testnet {
		errs = append(errs, errors.New("exchange.demo and exchange.testnet cannot both be true"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1" || v == "yes"
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}
