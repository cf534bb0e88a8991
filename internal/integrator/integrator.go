// Package integrator runs an auxiliary directional model alongside the
// primary strategy signal: a stateless Shadow scorer plus a Policy layer
// that can observe only, partially scale, or fully override signals once
// trusted. Grounded on the teacher's predictor package's model-report
// loading idiom (versioned JSON artifact with a load-time failsafe),
// redirected at the glossary's Shadow/Policy split.
package integrator

import (
	"encoding/json"
	"math"
	"os"

	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/types"
)

// Mode is the Policy layer's operating mode.
type Mode string

const (
	ModeOff    Mode = "Off"
	ModeShadow Mode = "Shadow"
	ModeCanary Mode = "Canary"
	ModeActive Mode = "Active"
)

// Report is the versioned model artifact loaded at startup.
type Report struct {
	ModelVersion string  `json:"model_version"`
	K            float64 `json:"k"`
}

// Config holds the integrator's tunables.
type Config struct {
	Mode               Mode
	ReportPath         string
	ConfidenceThreshold float64 // canary gate
	CanaryRatio         float64
	CanaryMinNotionalUSD float64
	ActiveThreshold     float64
	PartialRatio        float64
	FullThreshold       float64
	CountertrendBlocked bool
}

// ShadowOutput is the stateless shadow scorer's output.
type ShadowOutput struct {
	Enabled      bool
	ModelVersion string
	ModelScore   float64
	PUp          float64
	PDown        float64
}

// Integrator owns the loaded report and applies the Shadow/Policy logic.
type Integrator struct {
	cfg      Config
	report   Report
	loaded   bool
	effectiveMode Mode
}

// New loads the configured report (if Mode is Canary or Active) and
// returns an Integrator. A load failure downgrades effective mode to Off
// per the spec's failsafe.
func New(cfg Config) *Integrator {
	in := &Integrator{cfg: cfg, effectiveMode: cfg.Mode}

	if cfg.Mode == ModeOff || cfg.Mode == ModeShadow {
		in.loaded = true
		return in
	}

	report, err := loadReport(cfg.ReportPath)
	if err != nil {
		in.effectiveMode = ModeOff
		return in
	}
	in.report = report
	in.loaded = true
	return in
}

func loadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, err
	}
	return r, nil
}

// EffectiveMode returns the mode actually in effect, which may be Off if
// the configured Canary/Active mode failed to load its report.
func (in *Integrator) EffectiveMode() Mode {
	return in.effectiveMode
}

// Shadow computes the stateless shadow score for a regime+signal pair,
// dampened in range/extreme regimes and during warmup.
func (in *Integrator) Shadow(regime types.RegimeState, signal types.Signal) ShadowOutput {
	if in.effectiveMode == ModeOff {
		return ShadowOutput{Enabled: false}
	}

	raw := signalStrength(signal) + regimeDirectionPrior(regime)
	if regime.Warmup || regime.Bucket == types.BucketRange || regime.Bucket == types.BucketExtreme {
		raw *= 0.5
	}

	k := in.report.K
	if k == 0 {
		k = 1
	}
	pUp := sigmoid(k * raw)

	return ShadowOutput{
		Enabled:      true,
		ModelVersion: in.report.ModelVersion,
		ModelScore:   raw,
		PUp:          pUp,
		PDown:        1 - pUp,
	}
}

// Apply runs the Policy layer over a base signal, returning the (possibly
// mutated) signal the bot core should act on.
func (in *Integrator) Apply(regime types.RegimeState, base types.Signal) types.Signal {
	shadow := in.Shadow(regime, base)
	confidence := (shadow.PUp - 0.5) * 2 // in [-1, 1]; sign indicates shadow direction

	switch in.effectiveMode {
	case ModeOff, ModeShadow:
		return base

	case ModeCanary:
		if math.Abs(confidence) < in.cfg.ConfidenceThreshold || in.countertrendBlocked(regime, base, shadow) {
			return base
		}
		scaled := scaleSignal(base, in.cfg.CanaryRatio)
		if scaled.SuggestedNotionalUSD.LessThan(decimal.NewFromFloat(in.cfg.CanaryMinNotionalUSD)) {
			return base
		}
		return scaled

	case ModeActive:
		if math.Abs(confidence) < in.cfg.ActiveThreshold {
			return types.Signal{Symbol: base.Symbol, Direction: types.Flat}
		}
		shadowDir := types.Long
		if shadow.PUp < 0.5 {
			shadowDir = types.Short
		}
		overridden := base
		overridden.Direction = shadowDir
		if math.Abs(confidence) >= in.cfg.FullThreshold {
			return overridden
		}
		return scaleSignal(overridden, in.cfg.PartialRatio)

	default:
		return base
	}
}

func (in *Integrator) countertrendBlocked(regime types.RegimeState, base types.Signal, shadow ShadowOutput) bool {
	if !in.cfg.CountertrendBlocked {
		return false
	}
	shadowDir := types.Long
	if shadow.PUp < 0.5 {
		shadowDir = types.Short
	}
	return base.Direction != types.Flat && base.Direction != shadowDir
}

func scaleSignal(s types.Signal, ratio float64) types.Signal {
	r := decimal.NewFromFloat(ratio)
	s.SuggestedNotionalUSD = s.SuggestedNotionalUSD.Mul(r)
	s.TrendNotionalUSD = s.TrendNotionalUSD.Mul(r)
	s.DefensiveNotionalUSD = s.DefensiveNotionalUSD.Mul(r)
	return s
}

func signalStrength(s types.Signal) float64 {
	switch s.Direction {
	case types.Long:
		return 1
	case types.Short:
		return -1
	default:
		return 0
	}
}

func regimeDirectionPrior(r types.RegimeState) float64 {
	switch r.Regime {
	case types.RegimeUptrend:
		return 0.5
	case types.RegimeDowntrend:
		return -0.5
	default:
		return 0
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
