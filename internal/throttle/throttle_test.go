package throttle

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/types"
)

func entry(symbol string, dir types.Direction) types.OrderIntent {
	return types.OrderIntent{Symbol: symbol, Direction: dir, Qty: decimal.NewFromInt(1)}
}

func TestThrottle_AllowsFirstSubmit(t *testing.T) {
	th := New(Config{MinOrderIntervalMs: 1000, ReverseSignalCooldownTicks: 5})
	ok, reason := th.Check(entry("BTCUSDT", types.Long), 1000, 1)
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestThrottle_RejectsWithinMinInterval(t *testing.T) {
	th := New(Config{MinOrderIntervalMs: 1000, ReverseSignalCooldownTicks: 5})
	th.OnAccepted(entry("BTCUSDT", types.Long), 1000, 1)
	ok, reason := th.Check(entry("BTCUSDT", types.Long), 1500, 2)
	require.False(t, ok)
	require.Contains(t, reason, "min_order_interval_ms_remaining")
}

func TestThrottle_RejectsReverseDirectionDuringCooldown(t *testing.T) {
	th := New(Config{MinOrderIntervalMs: 0, ReverseSignalCooldownTicks: 5})
	th.OnAccepted(entry("BTCUSDT", types.Long), 1000, 10)
	ok, reason := th.Check(entry("BTCUSDT", types.Short), 2000, 12)
	require.False(t, ok)
	require.Equal(t, "reverse_signal_cooldown", reason)
}

func TestThrottle_AllowsReverseDirectionAfterCooldown(t *testing.T) {
	th := New(Config{MinOrderIntervalMs: 0, ReverseSignalCooldownTicks: 5})
	th.OnAccepted(entry("BTCUSDT", types.Long), 1000, 10)
	ok, _ := th.Check(entry("BTCUSDT", types.Short), 2000, 16)
	require.True(t, ok)
}

func TestThrottle_ReduceOnlyBypassesReverseCooldownAndDoesNotUpdateDirection(t *testing.T) {
	th := New(Config{MinOrderIntervalMs: 0, ReverseSignalCooldownTicks: 5})
	th.OnAccepted(entry("BTCUSDT", types.Long), 1000, 10)
	reduceIntent := types.OrderIntent{Symbol: "BTCUSDT", Direction: types.Short, ReduceOnly: true, Qty: decimal.NewFromInt(1)}
	ok, _ := th.Check(reduceIntent, 1001, 11)
	require.True(t, ok)
	th.OnAccepted(reduceIntent, 1001, 11)

	ok, reason := th.Check(entry("BTCUSDT", types.Short), 1002, 12)
	require.False(t, ok)
	require.Equal(t, "reverse_signal_cooldown", reason)
}
