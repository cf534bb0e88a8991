// Package exchange defines the polymorphic exchange-adapter contract and
// its Mock, Replay, and LiveStreaming implementations. Grounded on the
// teacher's exec/client.go (struct-held credentials + HTTP client, dry-run
// short-circuit on every mutating call, low-level get/post/delete helpers)
// for the general shape, and on the original source's exchange/* modules
// for the streaming-with-REST-fallback state machine this package's
// LiveStreaming variant implements.
package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/types"
)

// AccountSnapshot captures the account-mode fields the venue reports at
// startup. The controller logs them; it does not compare them against any
// configured expectation.
type AccountSnapshot struct {
	AccountMode  string
	MarginMode   string
	PositionMode string
}

// ChannelStatus reports the health of one of the two LiveStreaming
// channels (market, fill) for status-log and notification purposes.
type ChannelStatus struct {
	Mode      string // "Stream" or "RestPolling"
	Healthy   bool
	Degraded  bool
}

// Adapter is the capability surface the decision loop drives. Every
// implementation (Mock, Replay, LiveStreaming) must make polling calls
// non-blocking: "no message" returns ok=false rather than waiting.
type Adapter interface {
	Name() string
	Connect() error

	// PollMarket returns at most one market event per call; ok=false means
	// no new event is currently available (not necessarily unhealthy).
	PollMarket() (event types.MarketEvent, ok bool)

	// Submit and Cancel run on the async-executor worker, never the main
	// loop; implementations must be safe to call concurrently with the
	// polling methods below.
	Submit(intent types.OrderIntent) bool
	Cancel(clientOrderID string) bool

	// PollFill returns at most one fill event per call; ok=false means no
	// new fill is currently available.
	PollFill() (fill types.FillEvent, ok bool)

	GetRemoteNotionalUSD() (notional decimal.Decimal, ok bool, err error)
	GetRemotePositions() ([]types.RemotePositionSnapshot, error)
	GetRemoteAccountBalance() (types.RemoteAccountBalance, error)
	GetRemoteOpenOrderClientIDs() (map[string]struct{}, error)
	GetAccountSnapshot() (AccountSnapshot, error)
	GetSymbolInfo(symbol string) (types.SymbolInfo, bool)

	// TradeOk reports whether the adapter currently believes order
	// submission is viable (e.g. private channel not degraded beyond
	// tolerance). The risk engine folds this into its mode mapping.
	TradeOk() bool

	MarketChannelStatus() ChannelStatus
	FillChannelStatus() ChannelStatus
}
