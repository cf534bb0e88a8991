// Mock adapter: synchronous, in-memory fill simulation used for tests and
// `mode=paper` smoke runs. Grounded on other_examples' paper-trading
// simulator (sim.Provider): assetIndex-free here since this core is
// already symbol-keyed, but the signed-qty positionState and synchronous
// "submit immediately fills at the requested price" behavior is carried
// over directly.
package exchange

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/types"
)

// Mock is an in-memory adapter: market events are injected by the test
// driver via PushMarket, submissions fill immediately at the intent's
// reference price, and remote snapshot queries mirror the local ledger.
type Mock struct {
	mu          sync.Mutex
	marketQueue []types.MarketEvent
	fillQueue   []types.FillEvent
	symbolInfo  map[string]types.SymbolInfo
	nextFillSeq int
	connected   bool
	tradeOk     bool
	positions   map[string]*types.RemotePositionSnapshot
	feeRateBps  decimal.Decimal
}

// NewMock returns a Mock adapter with a default permissive symbol table.
func NewMock() *Mock {
	return &Mock{
		symbolInfo: make(map[string]types.SymbolInfo),
		positions:  make(map[string]*types.RemotePositionSnapshot),
		tradeOk:    true,
		feeRateBps: decimal.NewFromInt(2), // 2bps taker-like default
	}
}

// SetSymbolInfo registers trading rules for a symbol.
func (m *Mock) SetSymbolInfo(info types.SymbolInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbolInfo[info.Symbol] = info
}

// PushMarket enqueues a market event to be returned by the next PollMarket.
func (m *Mock) PushMarket(event types.MarketEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketQueue = append(m.marketQueue, event)
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *Mock) PollMarket() (types.MarketEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.marketQueue) == 0 {
		return types.MarketEvent{}, false
	}
	event := m.marketQueue[0]
	m.marketQueue = m.marketQueue[1:]
	return event, true
}

func (m *Mock) Submit(intent types.OrderIntent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tradeOk {
		return false
	}
	price := intent.Price
	if price.IsZero() {
		return false
	}
	fee := intent.Qty.Mul(price).Mul(m.feeRateBps).Div(decimal.NewFromInt(10000))
	m.nextFillSeq++
	fill := types.FillEvent{
		FillID:        fmt.Sprintf("mockfill-%d", m.nextFillSeq),
		ClientOrderID: intent.ClientOrderID,
		Symbol:        intent.Symbol,
		Direction:     intent.Direction,
		Qty:           intent.Qty,
		Price:         price,
		Fee:           fee,
		Liquidity:     types.LiquidityFillTaker,
	}
	m.fillQueue = append(m.fillQueue, fill)

	pos, ok := m.positions[intent.Symbol]
	if !ok {
		pos = &types.RemotePositionSnapshot{Symbol: intent.Symbol}
		m.positions[intent.Symbol] = pos
	}
	pos.Qty = pos.Qty.Add(intent.Qty.Mul(decimal.NewFromInt(int64(intent.Direction))))
	pos.MarkPrice = price
	return true
}

func (m *Mock) Cancel(clientOrderID string) bool {
	return true
}

func (m *Mock) PollFill() (types.FillEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.fillQueue) == 0 {
		return types.FillEvent{}, false
	}
	fill := m.fillQueue[0]
	m.fillQueue = m.fillQueue[1:]
	return fill, true
}

func (m *Mock) GetRemoteNotionalUSD() (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, p := range m.positions {
		total = total.Add(p.Qty.Mul(p.MarkPrice))
	}
	return total, true, nil
}

func (m *Mock) GetRemotePositions() ([]types.RemotePositionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.RemotePositionSnapshot, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (m *Mock) GetRemoteAccountBalance() (types.RemoteAccountBalance, error) {
	return types.RemoteAccountBalance{}, nil
}

func (m *Mock) GetRemoteOpenOrderClientIDs() (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (m *Mock) GetAccountSnapshot() (AccountSnapshot, error) {
	return AccountSnapshot{AccountMode: "unified", MarginMode: "cross", PositionMode: "one_way"}, nil
}

func (m *Mock) GetSymbolInfo(symbol string) (types.SymbolInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.symbolInfo[symbol]
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

func (m *Mock) SetTradeOk(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradeOk = ok
}

func (m *Mock) TradeOk() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tradeOk
}

func (m *Mock) MarketChannelStatus() ChannelStatus {
	return ChannelStatus{Mode: "Stream", Healthy: true}
}

func (m *Mock) FillChannelStatus() ChannelStatus {
	return ChannelStatus{Mode: "Stream", Healthy: true}
}
