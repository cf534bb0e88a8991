// Package bybitclient is a concrete exchange.VenueClient for a Bybit
// v5-style unified-account linear-perpetuals API. Grounded on the
// teacher's exec/client.go for its HTTP-client shape and HMAC request
// signing idiom (timestamp + method/path + body, hex/base64-encoded
// HMAC-SHA256 over an API secret), adapted from Polymarket's L2
// POLY_-header scheme to Bybit's timestamp+apiKey+recvWindow+payload
// recipe. The public WebSocket trade stream is grounded on
// _examples/yohannesjx-sniperterminal's BybitV5 listener (subscribe,
// 20s ping heartbeat, reconnect-on-drop).
package bybitclient

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/exchange"
	"github.com/nvquant/tradecore/internal/types"
)

// Config parameterizes a Client against one of Bybit's mainnet/testnet/
// demo v5 deployments.
type Config struct {
	BaseURL    string
	WSPublic   string
	APIKey     string
	APISecret  string
	Category   string // "linear"
	RecvWindow int64  // ms, 0 uses the package default
}

// Client implements exchange.VenueClient against the Bybit v5 REST API
// plus its public linear-perpetuals WebSocket trade stream.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient constructs a Client. It performs no network I/O; Connect is
// the caller's (exchange.LiveStreaming's) responsibility.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = 5000
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

var _ exchange.VenueClient = (*Client)(nil)

// ConnectPublicStream subscribes to Bybit's public linear-perpetuals
// trade topic for each symbol and emits a types.MarketEvent per trade.
// After a failed dial it waits a fixed 5s and dials again; after a failed
// subscribe or a read error it redials at once. Callers observe this as
// the channel simply continuing to produce events across a reconnect,
// consistent with exchange.LiveStreaming's channel-degrade handling.
func (c *Client) ConnectPublicStream(symbols []string) (<-chan types.MarketEvent, error) {
	out := make(chan types.MarketEvent, 256)
	go c.runPublicStream(symbols, out)
	return out, nil
}

func (c *Client) runPublicStream(symbols []string, out chan<- types.MarketEvent) {
	defer close(out)
	for {
		conn, _, err := websocket.DefaultDialer.Dial(c.cfg.WSPublic, nil)
		if err != nil {
			c.log.Warn().Err(err).Msg("bybitclient: public ws dial failed, retrying in 5s")
			time.Sleep(5 * time.Second)
			continue
		}

		args := make([]string, 0, len(symbols))
		for _, sym := range symbols {
			args = append(args, "publicTrade."+sym)
		}
		if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
			c.log.Warn().Err(err).Msg("bybitclient: public ws subscribe failed")
			conn.Close()
			continue
		}

		stop := make(chan struct{})
		go c.pingLoop(conn, stop)

		c.readPublicLoop(conn, out)
		close(stop)
		conn.Close()
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"ping"}`)); err != nil {
				return
			}
		}
	}
}

type bybitTradeMsg struct {
	Topic string `json:"topic"`
	Data  []struct {
		Symbol string `json:"s"`
		Price  string `json:"p"`
		Time   int64  `json:"T"`
	} `json:"data"`
}

func (c *Client) readPublicLoop(conn *websocket.Conn, out chan<- types.MarketEvent) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg bybitTradeMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		for _, trade := range msg.Data {
			price, err := decimal.NewFromString(trade.Price)
			if err != nil {
				continue
			}
			out <- types.MarketEvent{
				TsMs:      trade.Time,
				Symbol:    trade.Symbol,
				LastPrice: price,
			}
		}
	}
}

// ConnectPrivateStream is unimplemented: Bybit's authenticated
// execution-stream handshake (ws-auth op + signed expiry) is out of
// scope for this client. LiveStreaming's REST-fallback path (RestPollFills)
// is the supported way to observe fills; callers must leave
// Private.StreamEnabled off for this venue.
func (c *Client) ConnectPrivateStream() (<-chan exchange.RawFill, error) {
	return nil, fmt.Errorf("bybitclient: private execution stream not implemented, use REST fallback")
}

// RestPollMarket fetches the latest ticker for symbol.
func (c *Client) RestPollMarket(symbol string) (types.MarketEvent, error) {
	var resp struct {
		Result struct {
			List []struct {
				Symbol    string `json:"symbol"`
				LastPrice string `json:"lastPrice"`
				MarkPrice string `json:"markPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := c.get("/v5/market/tickers", url.Values{
		"category": {c.cfg.Category},
		"symbol":   {symbol},
	}, false, &resp); err != nil {
		return types.MarketEvent{}, err
	}
	if len(resp.Result.List) == 0 {
		return types.MarketEvent{}, fmt.Errorf("bybitclient: no ticker for %s", symbol)
	}
	t := resp.Result.List[0]
	last, _ := decimal.NewFromString(t.LastPrice)
	mark, _ := decimal.NewFromString(t.MarkPrice)
	return types.MarketEvent{TsMs: nowMs(), Symbol: symbol, LastPrice: last, MarkPrice: mark}, nil
}

// RestPollFills lists executions since sinceExecTimeMs, capped at limit.
func (c *Client) RestPollFills(sinceExecTimeMs int64, limit int) ([]exchange.RawFill, error) {
	var resp struct {
		Result struct {
			List []struct {
				ExecID      string `json:"execId"`
				OrderLinkID string `json:"orderLinkId"`
				OrderID     string `json:"orderId"`
				Symbol      string `json:"symbol"`
				Side        string `json:"side"`
				ExecQty     string `json:"execQty"`
				ExecPrice   string `json:"execPrice"`
				ExecFee     string `json:"execFee"`
				IsMaker     bool   `json:"isMaker"`
				ExecTime    string `json:"execTime"`
			} `json:"list"`
		} `json:"result"`
	}
	q := url.Values{"category": {c.cfg.Category}, "limit": {strconv.Itoa(limit)}}
	if sinceExecTimeMs > 0 {
		q.Set("startTime", strconv.FormatInt(sinceExecTimeMs, 10))
	}
	if err := c.get("/v5/execution/list", q, true, &resp); err != nil {
		return nil, err
	}

	fills := make([]exchange.RawFill, 0, len(resp.Result.List))
	for _, e := range resp.Result.List {
		qty, _ := decimal.NewFromString(e.ExecQty)
		price, _ := decimal.NewFromString(e.ExecPrice)
		fee, _ := decimal.NewFromString(e.ExecFee)
		execTimeMs, _ := strconv.ParseInt(e.ExecTime, 10, 64)
		dir := types.Long
		if e.Side == "Sell" {
			dir = types.Short
		}
		fills = append(fills, exchange.RawFill{
			ExecID:      e.ExecID,
			OrderLinkID: e.OrderLinkID,
			OrderID:     e.OrderID,
			Symbol:      e.Symbol,
			Direction:   dir,
			Qty:         qty,
			Price:       price,
			Fee:         fee,
			IsMaker:     e.IsMaker,
			ExecTimeMs:  execTimeMs,
		})
	}
	return fills, nil
}

// SubmitOrder places one order, using req.Intent.ClientOrderID as Bybit's
// orderLinkId so fills reported later can be matched back to the intent.
func (c *Client) SubmitOrder(req types.SubmitRequest) types.SubmitResult {
	side := "Buy"
	if req.Intent.Direction == types.Short {
		side = "Sell"
	}
	body := map[string]any{
		"category":    c.cfg.Category,
		"symbol":      req.Intent.Symbol,
		"side":        side,
		"orderType":   string(req.OrderType),
		"qty":         req.Intent.Qty.String(),
		"orderLinkId": req.Intent.ClientOrderID,
		"reduceOnly":  req.Intent.ReduceOnly,
		"timeInForce": string(req.TimeInForce),
	}
	if req.OrderType == types.OrderTypeLimit {
		body["price"] = req.Intent.Price.String()
	}
	if req.TimeInForce == types.TIFPostOnly {
		body["timeInForce"] = "PostOnly"
	}
	if req.HasTrigger {
		body["triggerPrice"] = req.TriggerPrice.String()
		if req.TriggerDirection == types.TriggerUp {
			body["triggerDirection"] = 1
		} else if req.TriggerDirection == types.TriggerDown {
			body["triggerDirection"] = 2
		}
		body["reduceOnly"] = true
		body["closeOnTrigger"] = req.CloseOnTrigger
	}

	var resp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
		} `json:"result"`
	}
	if err := c.post("/v5/order/create", body, &resp); err != nil {
		return types.SubmitResult{Accepted: false, Err: err}
	}
	if resp.RetCode != 0 {
		return types.SubmitResult{Accepted: false, Err: fmt.Errorf("bybitclient: order/create retCode=%d %s", resp.RetCode, resp.RetMsg)}
	}
	return types.SubmitResult{Accepted: true, OrderID: resp.Result.OrderID}
}

// CancelOrder cancels by orderLinkId (our client_order_id).
func (c *Client) CancelOrder(clientOrderID string) bool {
	body := map[string]any{
		"category":    c.cfg.Category,
		"orderLinkId": clientOrderID,
	}
	var resp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := c.post("/v5/order/cancel", body, &resp); err != nil {
		return c.IsIdempotentCancelSuccess(err)
	}
	if resp.RetCode != 0 {
		return c.IsIdempotentCancelSuccess(fmt.Errorf("retMsg=%s", resp.RetMsg))
	}
	return true
}

// IsIdempotentCancelSuccess treats Bybit's "order not exists or too late
// to cancel" and "already closed" responses as cancel success, since by
// the time the controller asks to cancel, the order may have already
// filled or been cancelled out-of-band.
func (c *Client) IsIdempotentCancelSuccess(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return contains(msg, "order not exists") || contains(msg, "too late to cancel") || contains(msg, "order has been filled") || contains(msg, "order has been canceled")
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

// FetchSymbolInfo fetches the instrument's trading rules.
func (c *Client) FetchSymbolInfo(symbol string) (types.SymbolInfo, error) {
	var resp struct {
		Result struct {
			List []struct {
				Symbol      string `json:"symbol"`
				LotSizeFilter struct {
					QtyStep     string `json:"qtyStep"`
					MinOrderQty string `json:"minOrderQty"`
					MaxMktQty   string `json:"maxMktOrderQty"`
				} `json:"lotSizeFilter"`
				PriceFilter struct {
					TickSize string `json:"tickSize"`
				} `json:"priceFilter"`
				Status string `json:"status"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := c.get("/v5/market/instruments-info", url.Values{
		"category": {c.cfg.Category},
		"symbol":   {symbol},
	}, false, &resp); err != nil {
		return types.SymbolInfo{}, err
	}
	if len(resp.Result.List) == 0 {
		return types.SymbolInfo{}, fmt.Errorf("bybitclient: no instrument info for %s", symbol)
	}
	inst := resp.Result.List[0]
	qtyStep, _ := decimal.NewFromString(inst.LotSizeFilter.QtyStep)
	minQty, _ := decimal.NewFromString(inst.LotSizeFilter.MinOrderQty)
	tick, _ := decimal.NewFromString(inst.PriceFilter.TickSize)
	info := types.SymbolInfo{
		Symbol:         inst.Symbol,
		Tradable:       inst.Status == "Trading",
		QtyStep:        qtyStep,
		MinOrderQty:    minQty,
		PriceTick:      tick,
		QtyPrecision:   decimalPlaces(qtyStep),
		PricePrecision: decimalPlaces(tick),
	}
	if maxQty, err := decimal.NewFromString(inst.LotSizeFilter.MaxMktQty); err == nil && maxQty.IsPositive() {
		info.MaxMktOrderQty = maxQty
		info.HasMaxMktQty = true
	}
	return info, nil
}

func decimalPlaces(step decimal.Decimal) int32 {
	if step.IsZero() {
		return 0
	}
	return int32(-step.Exponent())
}

// FetchPositions lists open linear-perpetual positions.
func (c *Client) FetchPositions() ([]types.RemotePositionSnapshot, error) {
	var resp struct {
		Result struct {
			List []struct {
				Symbol        string `json:"symbol"`
				Size          string `json:"size"`
				Side          string `json:"side"`
				AvgPrice      string `json:"avgPrice"`
				MarkPrice     string `json:"markPrice"`
				LiqPrice      string `json:"liqPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := c.get("/v5/position/list", url.Values{"category": {c.cfg.Category}, "settleCoin": {"USDT"}}, true, &resp); err != nil {
		return nil, err
	}
	snapshots := make([]types.RemotePositionSnapshot, 0, len(resp.Result.List))
	for _, p := range resp.Result.List {
		qty, _ := decimal.NewFromString(p.Size)
		if p.Side == "Sell" {
			qty = qty.Neg()
		}
		avg, _ := decimal.NewFromString(p.AvgPrice)
		mark, _ := decimal.NewFromString(p.MarkPrice)
		liq, _ := decimal.NewFromString(p.LiqPrice)
		snapshots = append(snapshots, types.RemotePositionSnapshot{
			Symbol:           p.Symbol,
			Qty:              qty,
			AvgEntryPrice:    avg,
			MarkPrice:        mark,
			LiquidationPrice: liq,
		})
	}
	return snapshots, nil
}

// FetchBalance fetches the unified-account USDT wallet balance.
func (c *Client) FetchBalance() (types.RemoteAccountBalance, error) {
	var resp struct {
		Result struct {
			List []struct {
				TotalEquity             string `json:"totalEquity"`
				TotalWalletBalance      string `json:"totalWalletBalance"`
				TotalPerpUPL            string `json:"totalPerpUPL"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := c.get("/v5/account/wallet-balance", url.Values{"accountType": {"UNIFIED"}}, true, &resp); err != nil {
		return types.RemoteAccountBalance{}, err
	}
	if len(resp.Result.List) == 0 {
		return types.RemoteAccountBalance{}, fmt.Errorf("bybitclient: empty wallet-balance response")
	}
	acc := resp.Result.List[0]
	bal := types.RemoteAccountBalance{}
	if v, err := decimal.NewFromString(acc.TotalEquity); err == nil {
		bal.EquityUSD, bal.HasEquity = v, true
	}
	if v, err := decimal.NewFromString(acc.TotalWalletBalance); err == nil {
		bal.WalletBalanceUSD, bal.HasWalletBalance = v, true
	}
	if v, err := decimal.NewFromString(acc.TotalPerpUPL); err == nil {
		bal.UnrealizedPnLUSD, bal.HasUnrealizedPnL = v, true
	}
	return bal, nil
}

// FetchOpenOrderClientIDs lists orderLinkIds of currently-open orders.
func (c *Client) FetchOpenOrderClientIDs() (map[string]struct{}, error) {
	var resp struct {
		Result struct {
			List []struct {
				OrderLinkID string `json:"orderLinkId"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := c.get("/v5/order/realtime", url.Values{"category": {c.cfg.Category}, "settleCoin": {"USDT"}}, true, &resp); err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(resp.Result.List))
	for _, o := range resp.Result.List {
		if o.OrderLinkID != "" {
			ids[o.OrderLinkID] = struct{}{}
		}
	}
	return ids, nil
}

// FetchAccountSnapshot calls /v5/account/info and, when the call succeeds,
// reports fixed UNIFIED / REGULAR_MARGIN / OneWay values; the response
// body's fields are not read.
func (c *Client) FetchAccountSnapshot() (exchange.AccountSnapshot, error) {
	var resp struct {
		Result struct {
			UnifiedMarginStatus int `json:"unifiedMarginStatus"`
		} `json:"result"`
	}
	if err := c.get("/v5/account/info", nil, true, &resp); err != nil {
		return exchange.AccountSnapshot{}, err
	}
	return exchange.AccountSnapshot{
		AccountMode:  "UNIFIED",
		MarginMode:   "REGULAR_MARGIN",
		PositionMode: "OneWay",
	}, nil
}

// FetchRemoteNotionalUSD sums the absolute notional across every
// reported linear position.
func (c *Client) FetchRemoteNotionalUSD() (decimal.Decimal, bool, error) {
	positions, err := c.FetchPositions()
	if err != nil {
		return decimal.Zero, false, err
	}
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Qty.Mul(p.MarkPrice).Abs())
	}
	return total, true, nil
}

// get issues a signed or unsigned GET and decodes the JSON body into out.
func (c *Client) get(path string, query url.Values, signed bool, out any) error {
	u := c.cfg.BaseURL + path
	if query != nil && len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if signed {
		c.sign(req, query.Encode())
	}
	return c.doRequest(req, out)
}

// post issues a signed POST with a JSON body.
func (c *Client) post(path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, string(payload))
	return c.doRequest(req, out)
}

// sign attaches Bybit's v5 HMAC-SHA256 auth headers: the signed payload
// is timestamp + apiKey + recvWindow + (queryString for GET, body for
// POST), hex-encoded over the API secret.
func (c *Client) sign(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(nowMs(), 10)
	recvWindow := strconv.FormatInt(c.cfg.RecvWindow, 10)
	message := timestamp + c.cfg.APIKey + recvWindow + payload

	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(message))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-BAPI-API-KEY", c.cfg.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", signature)
	req.Header.Set("X-BAPI-REQUEST-ID", uuid.NewString())
}

func (c *Client) doRequest(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("bybitclient: HTTP %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

var clockMu sync.Mutex

func nowMs() int64 {
	clockMu.Lock()
	defer clockMu.Unlock()
	return time.Now().UnixMilli()
}
