// Package types holds the wire- and loop-level data model shared by every
// component of the decision-and-execution loop: market events, signals,
// regime state, order intents, fills, and the account/order records they
// mutate. Grounded on the teacher's types/types.go (flat decimal-bearing
// structs) but redesigned for signed-notional perpetual-futures semantics
// rather than Polymarket YES/NO shares.
package types

import (
	"github.com/shopspring/decimal"
)

// Direction is a position/order direction: -1 short, 0 flat, +1 long.
type Direction int8

const (
	Short Direction = -1
	Flat  Direction = 0
	Long  Direction = 1
)

// MarketEvent is one polled market update for a symbol.
type MarketEvent struct {
	TsMs       int64
	Symbol     string
	LastPrice  decimal.Decimal
	MarkPrice  decimal.Decimal
	Volume     decimal.Decimal
	IntervalMs int64
}

// RefPrice returns mark price when present and positive, else last price.
func (m MarketEvent) RefPrice() decimal.Decimal {
	if m.MarkPrice.IsPositive() {
		return m.MarkPrice
	}
	return m.LastPrice
}

// Signal is the opaque output of the (external) strategy engine.
type Signal struct {
	Symbol               string
	SuggestedNotionalUSD decimal.Decimal
	Direction            Direction
	TrendNotionalUSD      decimal.Decimal
	DefensiveNotionalUSD  decimal.Decimal
}

// IsFlat reports whether the signal carries no actionable direction.
func (s Signal) IsFlat() bool {
	return s.Direction == Flat || s.SuggestedNotionalUSD.IsZero()
}

// Regime is the coarse market state for a symbol.
type Regime string

const (
	RegimeUptrend   Regime = "Uptrend"
	RegimeDowntrend Regime = "Downtrend"
	RegimeRange     Regime = "Range"
	RegimeExtreme   Regime = "Extreme"
)

// Bucket groups regimes for evolution-controller and fee-gate purposes.
type Bucket string

const (
	BucketTrend   Bucket = "Trend"
	BucketRange   Bucket = "Range"
	BucketExtreme Bucket = "Extreme"
)

// RegimeState is the per-symbol output of the regime engine.
type RegimeState struct {
	Symbol         string
	Regime         Regime
	Bucket         Bucket
	InstantReturn  float64
	TrendStrength  float64
	VolatilityLevel float64
	Warmup         bool
}

// TargetPosition is the ephemeral blended target before risk adjustment.
type TargetPosition struct {
	Symbol           string
	TargetNotionalUSD decimal.Decimal
}

// RiskMode is the risk engine's current operating mode.
type RiskMode string

const (
	RiskNormal     RiskMode = "Normal"
	RiskDegraded   RiskMode = "Degraded"
	RiskCooldown   RiskMode = "Cooldown"
	RiskFuse       RiskMode = "Fuse"
	RiskReduceOnly RiskMode = "ReduceOnly"
)

// RiskAdjustedPosition is the output of the risk engine.
type RiskAdjustedPosition struct {
	Symbol            string
	AdjustedNotionalUSD decimal.Decimal
	ReduceOnly        bool
	RiskMode          RiskMode
}

// Purpose classifies an order intent's role in the position lifecycle.
type Purpose int8

const (
	PurposeEntry Purpose = iota
	PurposeReduce
	PurposeSL
	PurposeTP
)

func (p Purpose) String() string {
	switch p {
	case PurposeEntry:
		return "Entry"
	case PurposeReduce:
		return "Reduce"
	case PurposeSL:
		return "SL"
	case PurposeTP:
		return "TP"
	default:
		return "Unknown"
	}
}

// LiquidityPreference expresses the intent's preferred execution style.
type LiquidityPreference int8

const (
	LiquidityAuto LiquidityPreference = iota
	LiquidityMaker
	LiquidityTaker
)

// OrderIntent is the unit of work the execution engine hands to the OMS.
type OrderIntent struct {
	ClientOrderID       string
	ParentOrderID       string
	Symbol              string
	Purpose             Purpose
	ReduceOnly          bool
	Direction           Direction
	Qty                 decimal.Decimal
	Price               decimal.Decimal
	LiquidityPreference LiquidityPreference
}

// Liquidity classifies a fill's maker/taker status.
type Liquidity int8

const (
	LiquidityUnknown Liquidity = iota
	LiquidityFillMaker
	LiquidityFillTaker
)

// FillEvent is one exchange-reported execution.
type FillEvent struct {
	FillID        string
	ClientOrderID string
	Symbol        string
	Direction     Direction
	Qty           decimal.Decimal
	Price         decimal.Decimal
	Fee           decimal.Decimal
	Liquidity     Liquidity
	ExecTimeMs    int64
}

// OrderState is the order-record lifecycle state.
type OrderState string

const (
	OrderNew       OrderState = "New"
	OrderSent      OrderState = "Sent"
	OrderPartial   OrderState = "Partial"
	OrderFilled    OrderState = "Filled"
	OrderRejected  OrderState = "Rejected"
	OrderCancelled OrderState = "Cancelled"
)

// IsTerminal reports whether the state never transitions further.
func (s OrderState) IsTerminal() bool {
	return s == OrderFilled || s == OrderRejected || s == OrderCancelled
}

// OrderRecord is the OMS's durable view of one client_order_id's lifecycle.
type OrderRecord struct {
	Intent    OrderIntent
	State     OrderState
	FilledQty decimal.Decimal
	EnqueuedMs int64
}

// PositionState is the per-symbol accounted position.
type PositionState struct {
	Symbol           string
	Qty              decimal.Decimal
	AvgEntryPrice    decimal.Decimal
	MarkPrice        decimal.Decimal
	LiquidationPrice decimal.Decimal
}

// NotionalUSD returns the signed notional value of the position at mark.
func (p PositionState) NotionalUSD() decimal.Decimal {
	return p.Qty.Mul(p.MarkPrice)
}

// RemotePositionSnapshot mirrors PositionState as reported by the venue.
type RemotePositionSnapshot struct {
	Symbol           string
	Qty              decimal.Decimal
	AvgEntryPrice    decimal.Decimal
	MarkPrice        decimal.Decimal
	LiquidationPrice decimal.Decimal
}

// RemoteAccountBalance mirrors venue-reported balance fields, each optional.
type RemoteAccountBalance struct {
	EquityUSD        decimal.Decimal
	HasEquity        bool
	WalletBalanceUSD decimal.Decimal
	HasWalletBalance bool
	UnrealizedPnLUSD decimal.Decimal
	HasUnrealizedPnL bool
}

// SymbolInfo carries exchange trading rules for one symbol.
type SymbolInfo struct {
	Symbol         string
	Tradable       bool
	QtyStep        decimal.Decimal
	MinOrderQty    decimal.Decimal
	MaxMktOrderQty decimal.Decimal
	HasMaxMktQty   bool
	MinNotionalUSD decimal.Decimal
	PriceTick      decimal.Decimal
	QtyPrecision   int32
	PricePrecision int32
}

// OrderType is the venue-facing order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// TimeInForce is the venue-facing time-in-force.
type TimeInForce string

const (
	TIFGTC      TimeInForce = "GTC"
	TIFPostOnly TimeInForce = "PostOnly"
)

// TriggerDirection expresses which side of the market triggers a stop order.
type TriggerDirection int8

const (
	TriggerNone TriggerDirection = 0
	TriggerUp   TriggerDirection = 1
	TriggerDown TriggerDirection = -1
)

// SubmitRequest is the adapter-facing order submission payload.
type SubmitRequest struct {
	Intent           OrderIntent
	OrderType        OrderType
	TimeInForce      TimeInForce
	TriggerPrice     decimal.Decimal
	HasTrigger       bool
	TriggerDirection TriggerDirection
	CloseOnTrigger   bool
}

// SubmitResult is the adapter's response to a submission attempt.
type SubmitResult struct {
	Accepted    bool
	OrderID     string
	Err         error
}
