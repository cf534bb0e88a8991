package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/types"
)

func event(symbol string, price float64, ts int64) types.MarketEvent {
	return types.MarketEvent{TsMs: ts, Symbol: symbol, LastPrice: decimal.NewFromFloat(price)}
}

func TestScriptedEngine_ReplaysThenGoesFlat(t *testing.T) {
	s := NewScripted([]types.Signal{{Symbol: "BTCUSDT", Direction: types.Long}})
	sig := s.Evaluate(types.RegimeState{}, event("BTCUSDT", 100, 1))
	require.Equal(t, types.Long, sig.Direction)
	sig = s.Evaluate(types.RegimeState{}, event("BTCUSDT", 101, 2))
	require.Equal(t, types.Flat, sig.Direction)
}

func TestMomentumEngine_WarmupThenDirectionalSignal(t *testing.T) {
	m := NewMomentum(MomentumConfig{LookbackTicks: 1, WarmupTicks: 1, MinMoveBps: 10, BaseNotionalUSD: 200})
	sig := m.Evaluate(types.RegimeState{}, event("BTCUSDT", 100, 1))
	require.True(t, sig.IsFlat())
	sig = m.Evaluate(types.RegimeState{}, event("BTCUSDT", 101, 2))
	require.Equal(t, types.Long, sig.Direction)
	require.True(t, sig.SuggestedNotionalUSD.Equal(decimal.NewFromInt(200)))
}

func TestMomentumEngine_SmallMoveStaysFlat(t *testing.T) {
	m := NewMomentum(MomentumConfig{LookbackTicks: 1, WarmupTicks: 1, MinMoveBps: 1000, BaseNotionalUSD: 200})
	m.Evaluate(types.RegimeState{}, event("BTCUSDT", 100, 1))
	sig := m.Evaluate(types.RegimeState{}, event("BTCUSDT", 100.1, 2))
	require.True(t, sig.IsFlat())
}
