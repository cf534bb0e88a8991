// LiveStreaming adapter: the hard variant. Two independent channels
// (market, fill), each preferring a websocket stream with REST-polling
// fallback, periodic reconnection attempts, and PUBLIC_*/PRIVATE_* degrade
// and recovery events. Grounded on the teacher's feeds/polymarket_ws.go
// (connectionLoop/reconnectDelay/ping-loop reconnect discipline) for the
// streaming side and feeds/binance.go (fixed-interval poll loop) for the
// REST-fallback side; the quantization and id-mapping algorithms follow
// spec.md §4.4 exactly. Wire-level specifics (venue JSON schemas, REST
// endpoints, HMAC signing details) are isolated behind the VenueClient
// seam below, matching spec.md §6's framing: "the adapter contract is the
// sole wire surface; the spec requires implementers to map to their
// venue's API."
package exchange

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/coreerr"
	"github.com/nvquant/tradecore/internal/types"
)

// RawFill is the venue-native execution row before client_order_id
// resolution; dedup key on the wire is ExecID.
type RawFill struct {
	ExecID      string
	OrderLinkID string // carries our client_order_id when the venue echoes it
	OrderID     string
	Symbol      string
	Direction   types.Direction
	Qty         decimal.Decimal
	Price       decimal.Decimal
	Fee         decimal.Decimal
	IsMaker     bool
	ExecTimeMs  int64
}

// VenueClient is the narrow wire-level contract a concrete venue
// (bybit-like, binance-like) implements; LiveStreaming owns channel
// state, quantization, id-mapping and cursor priming on top of it.
type VenueClient interface {
	ConnectPublicStream(symbols []string) (<-chan types.MarketEvent, error)
	ConnectPrivateStream() (<-chan RawFill, error)

	RestPollMarket(symbol string) (types.MarketEvent, error)
	RestPollFills(sinceExecTimeMs int64, limit int) ([]RawFill, error)

	SubmitOrder(req types.SubmitRequest) types.SubmitResult
	CancelOrder(clientOrderID string) bool

	FetchSymbolInfo(symbol string) (types.SymbolInfo, error)
	FetchPositions() ([]types.RemotePositionSnapshot, error)
	FetchBalance() (types.RemoteAccountBalance, error)
	FetchOpenOrderClientIDs() (map[string]struct{}, error)
	FetchAccountSnapshot() (AccountSnapshot, error)
	FetchRemoteNotionalUSD() (decimal.Decimal, bool, error)

	// IsIdempotentCancelSuccess classifies a venue-specific cancel error as
	// "already cancelled/filled", which the spec treats as cancel success.
	IsIdempotentCancelSuccess(err error) bool
}

// MakerConfig controls passive-limit entry submission per spec.md §4.4.
type MakerConfig struct {
	Enabled            bool
	PostOnly           bool
	OffsetBps          decimal.Decimal
	FallbackToMarket   bool
}

// ChannelConfig controls one channel's stream/REST-fallback policy.
type ChannelConfig struct {
	StreamEnabled       bool
	RestFallbackEnabled bool
	ReconnectInterval   time.Duration
}

// LiveConfig parameterizes the LiveStreaming adapter.
type LiveConfig struct {
	Symbols                     []string
	Market                      ChannelConfig
	Private                     ChannelConfig
	Maker                       MakerConfig
	ExecutionPollLimit          int
	ExecutionSkipHistoryOnStart bool
}

type channelState struct {
	mu         sync.Mutex
	mode       string // "Stream" or "RestPolling"
	healthy    bool
	degraded   bool
	lastAttempt time.Time
}

func (c *channelState) status() ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChannelStatus{Mode: c.mode, Healthy: c.healthy, Degraded: c.degraded}
}

// LiveStreaming is the production exchange adapter.
type LiveStreaming struct {
	cfg    LiveConfig
	client VenueClient
	log    zerolog.Logger

	marketState  channelState
	privateState channelState

	marketStreamCh  <-chan types.MarketEvent
	privateStreamCh <-chan RawFill

	mu sync.Mutex

	// idempotent execution-cursor priming state.
	seenExecIDs map[string]struct{}
	watermarkMs int64
	primed      bool

	// client_order_id <-> exchange order_id mapping.
	orderIDToClientID map[string]string

	tradeOkFlag bool
}

// NewLiveStreaming constructs an adapter bound to client for the given venue.
func NewLiveStreaming(cfg LiveConfig, client VenueClient, log zerolog.Logger) *LiveStreaming {
	return &LiveStreaming{
		cfg:               cfg,
		client:            client,
		log:               log,
		seenExecIDs:       make(map[string]struct{}),
		orderIDToClientID: make(map[string]string),
		tradeOkFlag:       true,
	}
}

func (l *LiveStreaming) Name() string { return "live" }

// Connect brings up both channels, preferring the stream and falling back
// to REST polling per config, and primes the execution cursor.
func (l *LiveStreaming) Connect() error {
	if l.cfg.Market.StreamEnabled {
		ch, err := l.client.ConnectPublicStream(l.cfg.Symbols)
		if err != nil {
			if !l.cfg.Market.RestFallbackEnabled {
				return err
			}
			l.degrade(&l.marketState, coreerr.PublicDegraded)
		} else {
			l.marketStreamCh = ch
			l.setHealthy(&l.marketState, "Stream")
		}
	} else {
		l.setHealthy(&l.marketState, "RestPolling")
	}

	if l.cfg.Private.StreamEnabled {
		ch, err := l.client.ConnectPrivateStream()
		if err != nil {
			if !l.cfg.Private.RestFallbackEnabled {
				return err
			}
			l.degrade(&l.privateState, coreerr.PrivateDegraded)
		} else {
			l.privateStreamCh = ch
			l.setHealthy(&l.privateState, "Stream")
		}
	} else {
		l.setHealthy(&l.privateState, "RestPolling")
	}

	return l.primeExecutionCursor()
}

func (l *LiveStreaming) setHealthy(cs *channelState, mode string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.mode = mode
	cs.healthy = true
	cs.degraded = false
}

func (l *LiveStreaming) degrade(cs *channelState, kind coreerr.Kind) {
	cs.mu.Lock()
	cs.mode = "RestPolling"
	cs.healthy = true
	cs.degraded = true
	cs.mu.Unlock()
	l.log.Warn().Str("kind", string(kind)).Msg("channel degraded to REST polling")
}

func (l *LiveStreaming) recover(cs *channelState, kind coreerr.Kind) {
	cs.mu.Lock()
	wasDegraded := cs.degraded
	cs.mode = "Stream"
	cs.healthy = true
	cs.degraded = false
	cs.mu.Unlock()
	if wasDegraded {
		l.log.Info().Str("kind", string(kind)).Msg("channel recovered to stream")
	}
}

// primeExecutionCursor fetches the most recent fills on startup, seeding
// the seen-set and watermark so historical fills are not re-applied
// (invariant I8).
func (l *LiveStreaming) primeExecutionCursor() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.cfg.ExecutionSkipHistoryOnStart {
		l.primed = true
		return nil
	}
	raws, err := l.client.RestPollFills(0, l.cfg.ExecutionPollLimit)
	if err != nil {
		l.log.Warn().Str("kind", string(coreerr.ExecCursorPrimeDegraded)).Err(err).Msg("execution cursor prime degraded")
		l.primed = true
		return nil
	}
	for _, rf := range raws {
		l.seenExecIDs[rf.ExecID] = struct{}{}
		if rf.ExecTimeMs > l.watermarkMs {
			l.watermarkMs = rf.ExecTimeMs
		}
	}
	l.primed = true
	l.log.Info().Str("kind", string(coreerr.ExecCursorPrimed)).Int("count", len(raws)).Int64("watermark_ms", l.watermarkMs).Msg("execution cursor primed")
	return nil
}

// PollMarket returns at most one event, preferring the stream channel,
// falling back to REST polling on a reconnect-interval cadence.
func (l *LiveStreaming) PollMarket() (types.MarketEvent, bool) {
	status := l.marketState.status()
	if status.Mode == "Stream" && l.marketStreamCh != nil {
		select {
		case event, ok := <-l.marketStreamCh:
			if !ok {
				if l.cfg.Market.RestFallbackEnabled {
					l.degrade(&l.marketState, coreerr.PublicDegraded)
				}
				return types.MarketEvent{}, false
			}
			return event, true
		default:
			l.maybeAttemptReconnectPublic()
			return types.MarketEvent{}, false
		}
	}
	if !l.cfg.Market.RestFallbackEnabled {
		return types.MarketEvent{}, false
	}
	l.maybeAttemptReconnectPublic()
	if len(l.cfg.Symbols) == 0 {
		return types.MarketEvent{}, false
	}
	event, err := l.client.RestPollMarket(l.cfg.Symbols[0])
	if err != nil {
		return types.MarketEvent{}, false
	}
	return event, true
}

func (l *LiveStreaming) maybeAttemptReconnectPublic() {
	if !l.cfg.Market.StreamEnabled {
		return
	}
	l.marketState.mu.Lock()
	due := time.Since(l.marketState.lastAttempt) >= l.cfg.Market.ReconnectInterval
	if due {
		l.marketState.lastAttempt = time.Now()
	}
	l.marketState.mu.Unlock()
	if !due {
		return
	}
	ch, err := l.client.ConnectPublicStream(l.cfg.Symbols)
	if err != nil {
		l.log.Warn().Str("kind", string(coreerr.PublicReconnectFailed)).Err(err).Msg("public reconnect failed")
		return
	}
	l.marketStreamCh = ch
	l.recover(&l.marketState, coreerr.PublicRecovered)
}

// PollFill returns at most one fill, applying execution-cursor dedup:
// fill_ids already seen are discarded, as are rows at or before watermark.
func (l *LiveStreaming) PollFill() (types.FillEvent, bool) {
	status := l.privateState.status()
	var raw RawFill
	var ok bool
	if status.Mode == "Stream" && l.privateStreamCh != nil {
		select {
		case rf, chOk := <-l.privateStreamCh:
			if !chOk {
				if l.cfg.Private.RestFallbackEnabled {
					l.degrade(&l.privateState, coreerr.PrivateDegraded)
				}
				return types.FillEvent{}, false
			}
			raw, ok = rf, true
		default:
			l.maybeAttemptReconnectPrivate()
			return types.FillEvent{}, false
		}
	} else if l.cfg.Private.RestFallbackEnabled {
		l.maybeAttemptReconnectPrivate()
		raws, err := l.client.RestPollFills(l.watermarkMsSnapshot(), l.cfg.ExecutionPollLimit)
		if err != nil || len(raws) == 0 {
			return types.FillEvent{}, false
		}
		for _, rf := range raws {
			if l.admitRaw(rf) {
				return l.resolveFill(rf), true
			}
		}
		return types.FillEvent{}, false
	}
	if !ok {
		return types.FillEvent{}, false
	}
	if !l.admitRaw(raw) {
		return l.PollFill()
	}
	return l.resolveFill(raw), true
}

func (l *LiveStreaming) watermarkMsSnapshot() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watermarkMs
}

// admitRaw applies the cursor-priming dedup rule: reject if exec_id already
// seen or exec_time_ms <= watermark; watermark is monotone across the run.
func (l *LiveStreaming) admitRaw(rf RawFill) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.seenExecIDs[rf.ExecID]; seen {
		return false
	}
	if rf.ExecTimeMs <= l.watermarkMs {
		return false
	}
	l.seenExecIDs[rf.ExecID] = struct{}{}
	if rf.ExecTimeMs > l.watermarkMs {
		l.watermarkMs = rf.ExecTimeMs
	}
	return true
}

// resolveFill maps a raw venue execution to a FillEvent, resolving
// client_order_id via order_link_id first, then the order_id reverse-map,
// falling back to order_id as a stable surrogate.
func (l *LiveStreaming) resolveFill(rf RawFill) types.FillEvent {
	clientOrderID := rf.OrderLinkID
	if clientOrderID == "" {
		l.mu.Lock()
		clientOrderID = l.orderIDToClientID[rf.OrderID]
		l.mu.Unlock()
	}
	if clientOrderID == "" {
		clientOrderID = rf.OrderID
	}
	liq := types.LiquidityUnknown
	if rf.IsMaker {
		liq = types.LiquidityFillMaker
	} else {
		liq = types.LiquidityFillTaker
	}
	return types.FillEvent{
		FillID:        rf.ExecID,
		ClientOrderID: clientOrderID,
		Symbol:        rf.Symbol,
		Direction:     rf.Direction,
		Qty:           rf.Qty,
		Price:         rf.Price,
		Fee:           rf.Fee,
		Liquidity:     liq,
		ExecTimeMs:    rf.ExecTimeMs,
	}
}

func (l *LiveStreaming) maybeAttemptReconnectPrivate() {
	if !l.cfg.Private.StreamEnabled {
		return
	}
	l.privateState.mu.Lock()
	due := time.Since(l.privateState.lastAttempt) >= l.cfg.Private.ReconnectInterval
	if due {
		l.privateState.lastAttempt = time.Now()
	}
	l.privateState.mu.Unlock()
	if !due {
		return
	}
	ch, err := l.client.ConnectPrivateStream()
	if err != nil {
		l.log.Warn().Str("kind", string(coreerr.PrivateReconnectFailed)).Err(err).Msg("private reconnect failed")
		return
	}
	l.privateStreamCh = ch
	l.recover(&l.privateState, coreerr.PrivateRecovered)
}

// Submit implements the quantization and maker-entry algorithm of
// spec.md §4.4.
func (l *LiveStreaming) Submit(intent types.OrderIntent) bool {
	info, err := l.client.FetchSymbolInfo(intent.Symbol)
	if err != nil || !info.Tradable {
		return false
	}
	qty := intent.Qty
	if info.HasMaxMktQty && qty.GreaterThan(info.MaxMktOrderQty) {
		qty = info.MaxMktOrderQty
	}
	if info.QtyStep.IsPositive() {
		steps := qty.Div(info.QtyStep).Floor()
		qty = steps.Mul(info.QtyStep)
	}
	if !intent.ReduceOnly && intent.Price.IsPositive() && info.MinNotionalUSD.IsPositive() {
		if qty.Mul(intent.Price).LessThan(info.MinNotionalUSD) {
			return false
		}
	}
	if qty.LessThan(info.MinOrderQty) {
		return false
	}
	if info.QtyStep.IsPositive() {
		remainder := qty.Div(info.QtyStep)
		if !remainder.Equal(remainder.Round(0)) {
			return false
		}
	}

	req := types.SubmitRequest{Intent: intent, OrderType: types.OrderTypeMarket, TimeInForce: types.TIFGTC}
	req.Intent.Qty = qty

	switch intent.Purpose {
	case types.PurposeSL, types.PurposeTP:
		req.HasTrigger = true
		req.TriggerPrice = intent.Price
		req.CloseOnTrigger = true
		if intent.Direction > 0 {
			req.TriggerDirection = types.TriggerUp
		} else {
			req.TriggerDirection = types.TriggerDown
		}
	case types.PurposeEntry:
		if l.cfg.Maker.Enabled && intent.LiquidityPreference != types.LiquidityTaker {
			req.OrderType = types.OrderTypeLimit
			req.TimeInForce = types.TIFPostOnly
			offset := l.cfg.Maker.OffsetBps.Div(decimal.NewFromInt(10000))
			var limitPrice decimal.Decimal
			if intent.Direction > 0 {
				limitPrice = intent.Price.Mul(decimal.NewFromInt(1).Sub(offset))
				limitPrice = quantizeDown(limitPrice, info.PriceTick)
			} else {
				limitPrice = intent.Price.Mul(decimal.NewFromInt(1).Add(offset))
				limitPrice = quantizeUp(limitPrice, info.PriceTick)
			}
			req.Intent.Price = limitPrice
		}
	}

	result := l.client.SubmitOrder(req)
	if !result.Accepted && req.OrderType == types.OrderTypeLimit && l.cfg.Maker.FallbackToMarket {
		req.OrderType = types.OrderTypeMarket
		req.TimeInForce = types.TIFGTC
		req.Intent.Price = intent.Price
		result = l.client.SubmitOrder(req)
	}
	if result.Accepted && result.OrderID != "" {
		l.mu.Lock()
		l.orderIDToClientID[result.OrderID] = intent.ClientOrderID
		l.mu.Unlock()
	}
	return result.Accepted
}

func quantizeDown(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Floor().Mul(tick)
}

func quantizeUp(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Ceil().Mul(tick)
}

func (l *LiveStreaming) Cancel(clientOrderID string) bool {
	ok := l.client.CancelOrder(clientOrderID)
	return ok
}

func (l *LiveStreaming) GetRemoteNotionalUSD() (decimal.Decimal, bool, error) {
	return l.client.FetchRemoteNotionalUSD()
}

func (l *LiveStreaming) GetRemotePositions() ([]types.RemotePositionSnapshot, error) {
	return l.client.FetchPositions()
}

func (l *LiveStreaming) GetRemoteAccountBalance() (types.RemoteAccountBalance, error) {
	return l.client.FetchBalance()
}

// GetRemoteOpenOrderClientIDs returns the venue client's open-order ids
// unchanged. No status filtering happens here; terminal orders are
// excluded only if the venue client excludes them.
func (l *LiveStreaming) GetRemoteOpenOrderClientIDs() (map[string]struct{}, error) {
	return l.client.FetchOpenOrderClientIDs()
}

func (l *LiveStreaming) GetAccountSnapshot() (AccountSnapshot, error) {
	return l.client.FetchAccountSnapshot()
}

func (l *LiveStreaming) GetSymbolInfo(symbol string) (types.SymbolInfo, bool) {
	info, err := l.client.FetchSymbolInfo(symbol)
	if err != nil {
		return types.SymbolInfo{}, false
	}
	return info, true
}

func (l *LiveStreaming) TradeOk() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tradeOkFlag && l.privateState.status().Healthy
}

func (l *LiveStreaming) SetTradeOk(ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tradeOkFlag = ok
}

func (l *LiveStreaming) MarketChannelStatus() ChannelStatus  { return l.marketState.status() }
func (l *LiveStreaming) FillChannelStatus() ChannelStatus    { return l.privateState.status() }
