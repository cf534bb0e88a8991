// Package account maintains per-symbol position and cash-like accumulators:
// cash, cumulative realized P&L, cumulative fees, and peak equity for
// drawdown tracking. Grounded on the original source's oms/account_state
// module and, for the decimal-everywhere style, on the teacher's
// execution/executor.go position bookkeeping (volume-weighted average
// entry recompute on same-side adds).
package account

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/types"
)

// Account is the single-account position/cash accountant.
type Account struct {
	mu         sync.RWMutex
	positions  map[string]*types.PositionState
	cash       decimal.Decimal
	realizedPnL decimal.Decimal
	cumFees    decimal.Decimal
	peakEquity decimal.Decimal
}

// New returns an Account seeded with the given starting cash.
func New(startingCash decimal.Decimal) *Account {
	return &Account{
		positions:  make(map[string]*types.PositionState),
		cash:       startingCash,
		peakEquity: startingCash,
	}
}

func (a *Account) positionLocked(symbol string) *types.PositionState {
	p, ok := a.positions[symbol]
	if !ok {
		p = &types.PositionState{Symbol: symbol}
		a.positions[symbol] = p
	}
	return p
}

// Position returns a copy of the current position for symbol.
func (a *Account) Position(symbol string) types.PositionState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if p, ok := a.positions[symbol]; ok {
		return *p
	}
	return types.PositionState{Symbol: symbol}
}

// Positions returns a copy of all tracked positions.
func (a *Account) Positions() map[string]types.PositionState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]types.PositionState, len(a.positions))
	for k, v := range a.positions {
		out[k] = *v
	}
	return out
}

// OnMarket updates the mark price for event's symbol and refreshes peak
// equity (monotone non-decreasing during normal operation).
func (a *Account) OnMarket(event types.MarketEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.positionLocked(event.Symbol)
	ref := event.RefPrice()
	if ref.IsPositive() {
		p.MarkPrice = ref
	}
	a.refreshPeakEquityLocked()
}

// ApplyFill applies a single fill to cash, realized P&L, and position.
// Callers must guarantee at-most-once application per fill_id (the
// controller's fill_id set and WAL replay own that dedup; Account trusts
// its caller per spec.md invariant I2).
func (a *Account) ApplyFill(fill types.FillEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cash = a.cash.Sub(fill.Fee)
	a.cumFees = a.cumFees.Add(fill.Fee)

	p := a.positionLocked(fill.Symbol)
	signedFillQty := fill.Qty.Mul(decimal.NewFromInt(int64(fill.Direction)))
	oldQty := p.Qty
	newQty := oldQty.Add(signedFillQty)

	switch {
	case oldQty.IsZero():
		p.AvgEntryPrice = fill.Price
	case sameSign(oldQty, signedFillQty):
		// Adding to an existing position: volume-weighted average entry.
		oldAbs := oldQty.Abs()
		addAbs := signedFillQty.Abs()
		p.AvgEntryPrice = oldAbs.Mul(p.AvgEntryPrice).Add(addAbs.Mul(fill.Price)).Div(oldAbs.Add(addAbs))
	default:
		// Reducing, fully closing, or flipping through zero.
		closeQty := decimal.Min(signedFillQty.Abs(), oldQty.Abs())
		oldSign := decimal.NewFromInt(int64(sign(oldQty)))
		realized := closeQty.Mul(fill.Price.Sub(p.AvgEntryPrice)).Mul(oldSign)
		a.realizedPnL = a.realizedPnL.Add(realized)
		if signedFillQty.Abs().GreaterThan(oldQty.Abs()) {
			// Flip through zero: re-seed avg entry from this fill's price.
			p.AvgEntryPrice = fill.Price
		}
	}
	p.Qty = newQty
	if fill.Price.IsPositive() {
		p.MarkPrice = fill.Price
	}
	a.refreshPeakEquityLocked()
}

func sign(d decimal.Decimal) int {
	switch {
	case d.IsPositive():
		return 1
	case d.IsNegative():
		return -1
	default:
		return 0
	}
}

func sameSign(a, b decimal.Decimal) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	return sign(a) == sign(b)
}

// EquityUSD returns cash + unrealized P&L across all positions.
func (a *Account) EquityUSD() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.equityLocked()
}

func (a *Account) equityLocked() decimal.Decimal {
	equity := a.cash
	for _, p := range a.positions {
		equity = equity.Add(p.Qty.Mul(p.MarkPrice.Sub(p.AvgEntryPrice)))
	}
	return equity
}

func (a *Account) refreshPeakEquityLocked() {
	equity := a.equityLocked()
	if equity.GreaterThan(a.peakEquity) {
		a.peakEquity = equity
	}
}

// DrawdownPct returns max(0, (peak-equity)/peak).
func (a *Account) DrawdownPct() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.peakEquity.IsZero() {
		return 0
	}
	equity := a.equityLocked()
	dd := a.peakEquity.Sub(equity).Div(a.peakEquity)
	if dd.IsNegative() {
		return 0
	}
	f, _ := dd.Float64()
	return f
}

// CurrentNotionalUSD returns the signed notional of symbol at mark.
func (a *Account) CurrentNotionalUSD(symbol string) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if p, ok := a.positions[symbol]; ok {
		return p.NotionalUSD()
	}
	return decimal.Zero
}

// LiquidationDistanceP95 computes the notional-weighted 95th percentile of
// per-symbol liquidation distance. Positions with no known liquidation
// price are excluded from weighting; if none have a known liquidation
// price, the distance is the safe default of 1.0.
func (a *Account) LiquidationDistanceP95() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	type sample struct {
		distance float64
		weight   float64
	}
	var samples []sample
	for _, p := range a.positions {
		if p.Qty.IsZero() || !p.LiquidationPrice.IsPositive() || !p.MarkPrice.IsPositive() {
			continue
		}
		var distance decimal.Decimal
		if p.Qty.IsPositive() {
			distance = p.MarkPrice.Sub(p.LiquidationPrice).Div(p.MarkPrice)
		} else {
			distance = p.LiquidationPrice.Sub(p.MarkPrice).Div(p.MarkPrice)
		}
		if distance.IsNegative() {
			distance = decimal.Zero
		}
		weight := p.Qty.Mul(p.MarkPrice).Abs()
		d, _ := distance.Float64()
		w, _ := weight.Float64()
		samples = append(samples, sample{distance: d, weight: w})
	}
	if len(samples) == 0 {
		return 1.0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].distance < samples[j].distance })
	totalWeight := 0.0
	for _, s := range samples {
		totalWeight += s.weight
	}
	if totalWeight == 0 {
		return samples[len(samples)-1].distance
	}
	target := 0.95 * totalWeight
	cum := 0.0
	for _, s := range samples {
		cum += s.weight
		if cum >= target {
			return s.distance
		}
	}
	return samples[len(samples)-1].distance
}

// SyncFromRemotePositions replaces all positions and resets peak equity to
// the supplied baseline (used on reconciler auto-resync and startup sync).
func (a *Account) SyncFromRemotePositions(snapshots []types.RemotePositionSnapshot, peakEquityBaseline decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions = make(map[string]*types.PositionState, len(snapshots))
	for _, s := range snapshots {
		a.positions[s.Symbol] = &types.PositionState{
			Symbol:           s.Symbol,
			Qty:              s.Qty,
			AvgEntryPrice:    s.AvgEntryPrice,
			MarkPrice:        s.MarkPrice,
			LiquidationPrice: s.LiquidationPrice,
		}
	}
	a.peakEquity = peakEquityBaseline
}

// RefreshRiskFromRemote updates mark and liquidation price only for symbols
// present, additively introducing any missing symbol; cash is preserved.
func (a *Account) RefreshRiskFromRemote(snapshots []types.RemotePositionSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range snapshots {
		p := a.positionLocked(s.Symbol)
		p.MarkPrice = s.MarkPrice
		p.LiquidationPrice = s.LiquidationPrice
	}
}

// ForceSyncPositionsFromRemote hard-overwrites the positions table,
// preserving cash (used by reconciler auto-resync, which separately
// decides whether to also reset peak equity).
func (a *Account) ForceSyncPositionsFromRemote(snapshots []types.RemotePositionSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions = make(map[string]*types.PositionState, len(snapshots))
	for _, s := range snapshots {
		a.positions[s.Symbol] = &types.PositionState{
			Symbol:           s.Symbol,
			Qty:              s.Qty,
			AvgEntryPrice:    s.AvgEntryPrice,
			MarkPrice:        s.MarkPrice,
			LiquidationPrice: s.LiquidationPrice,
		}
	}
}

// SyncFromRemoteBalance sets cash from the remote balance snapshot:
// equity-unrealized when equity is present, else wallet balance.
// resetPeakToEquity controls whether peak equity is also reset (open
// question #2 in SPEC_FULL.md: default is false, preserving monotonicity).
func (a *Account) SyncFromRemoteBalance(bal types.RemoteAccountBalance, resetPeakToEquity bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case bal.HasEquity:
		unrealized := decimal.Zero
		if bal.HasUnrealizedPnL {
			unrealized = bal.UnrealizedPnLUSD
		}
		a.cash = bal.EquityUSD.Sub(unrealized)
		if resetPeakToEquity {
			a.peakEquity = bal.EquityUSD
		}
	case bal.HasWalletBalance:
		a.cash = bal.WalletBalanceUSD
	}
	a.refreshPeakEquityLocked()
}

// RealizedPnL returns cumulative realized P&L since account creation.
func (a *Account) RealizedPnL() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.realizedPnL
}

// Cash returns the current cash balance.
func (a *Account) Cash() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cash
}

// PeakEquity returns the tracked peak equity.
func (a *Account) PeakEquity() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.peakEquity
}

// GrossNotionalUSD sums |qty*mark| across all tracked positions, used to
// enforce invariant I4's account gross-notional cap.
func (a *Account) GrossNotionalUSD() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := decimal.Zero
	for _, p := range a.positions {
		total = total.Add(p.NotionalUSD().Abs())
	}
	return total
}
