// Replay adapter: deterministic, pre-recorded market and fill sequences
// with no implicit fill-on-submit behavior, letting a test or backtest
// driver control exactly when a submitted order is later reported filled.
// This is the adapter used by spec.md §8's scenario tests (e.g. Scenario A
// "replay adapter with prices [100.0, 101.0]").
package exchange

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/types"
)

// Replay serves a fixed, ordered market-event script and accepts
// externally-scripted fills; Submit only records acceptance.
type Replay struct {
	mu          sync.Mutex
	marketQueue []types.MarketEvent
	fillQueue   []types.FillEvent
	symbolInfo  map[string]types.SymbolInfo
	accepted    map[string]types.OrderIntent
	tradeOk     bool
}

// NewReplay returns a Replay adapter over the given market-event script.
func NewReplay(script []types.MarketEvent) *Replay {
	return &Replay{
		marketQueue: append([]types.MarketEvent{}, script...),
		symbolInfo:  make(map[string]types.SymbolInfo),
		accepted:    make(map[string]types.OrderIntent),
		tradeOk:     true,
	}
}

func (r *Replay) SetSymbolInfo(info types.SymbolInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbolInfo[info.Symbol] = info
}

// PushFill scripts a fill to be returned by a future PollFill call.
func (r *Replay) PushFill(fill types.FillEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fillQueue = append(r.fillQueue, fill)
}

func (r *Replay) Name() string { return "replay" }

func (r *Replay) Connect() error { return nil }

func (r *Replay) PollMarket() (types.MarketEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.marketQueue) == 0 {
		return types.MarketEvent{}, false
	}
	event := r.marketQueue[0]
	r.marketQueue = r.marketQueue[1:]
	return event, true
}

func (r *Replay) Submit(intent types.OrderIntent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.tradeOk {
		return false
	}
	r.accepted[intent.ClientOrderID] = intent
	return true
}

func (r *Replay) Cancel(clientOrderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accepted, clientOrderID)
	return true
}

func (r *Replay) PollFill() (types.FillEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fillQueue) == 0 {
		return types.FillEvent{}, false
	}
	fill := r.fillQueue[0]
	r.fillQueue = r.fillQueue[1:]
	return fill, true
}

func (r *Replay) GetRemoteNotionalUSD() (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func (r *Replay) GetRemotePositions() ([]types.RemotePositionSnapshot, error) {
	return nil, nil
}

func (r *Replay) GetRemoteAccountBalance() (types.RemoteAccountBalance, error) {
	return types.RemoteAccountBalance{}, nil
}

func (r *Replay) GetRemoteOpenOrderClientIDs() (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{}, len(r.accepted))
	for id := range r.accepted {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *Replay) GetAccountSnapshot() (AccountSnapshot, error) {
	return AccountSnapshot{AccountMode: "unified", MarginMode: "cross", PositionMode: "one_way"}, nil
}

func (r *Replay) GetSymbolInfo(symbol string) (types.SymbolInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.symbolInfo[symbol]
	if !ok {
		return types.SymbolInfo{
			Symbol: symbol, Tradable: true,
			QtyStep: decimal.NewFromFloat(0.001), MinOrderQty: decimal.NewFromFloat(0.001),
			MinNotionalUSD: decimal.NewFromInt(5), PriceTick: decimal.NewFromFloat(0.01),
			QtyPrecision: 3, PricePrecision: 2,
		}, true
	}
	return info, true
}

func (r *Replay) SetTradeOk(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tradeOk = ok
}

func (r *Replay) TradeOk() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tradeOk
}

func (r *Replay) MarketChannelStatus() ChannelStatus {
	return ChannelStatus{Mode: "Stream", Healthy: true}
}

func (r *Replay) FillChannelStatus() ChannelStatus {
	return ChannelStatus{Mode: "Stream", Healthy: true}
}
