package protection

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nvquant/tradecore/internal/execengine"
	"github.com/nvquant/tradecore/internal/oms"
	"github.com/nvquant/tradecore/internal/types"
)

func newOrchestrator(require bool, hasTP bool) (*Orchestrator, *oms.OMS) {
	o := oms.New()
	eng := execengine.New(execengine.Config{MaxOrderNotionalUSD: decimal.NewFromInt(1000)}, mint())
	cfg := Config{RequireSL: require, SLRatio: decimal.NewFromFloat(0.01), TPRatio: decimal.NewFromFloat(0.02), HasTP: hasTP, AttachTimeoutMs: 5000}
	return New(cfg, eng, o), o
}

func mint() func(string) string {
	n := 0
	return func(symbol string) string {
		n++
		return symbol + "-" + string(rune('a'+n))
	}
}

func entryFill() types.FillEvent {
	return types.FillEvent{FillID: "f1", ClientOrderID: "entry1", Symbol: "BTCUSDT", Direction: types.Long, Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)}
}

func TestOnEntryFill_BuildsSLAndTPAndTracksPending(t *testing.T) {
	p, _ := newOrchestrator(true, true)
	intents := p.OnEntryFill("parent1", entryFill(), 1000)
	require.Len(t, intents, 2)
	require.Equal(t, types.PurposeSL, intents[0].Purpose)
	require.Equal(t, types.PurposeTP, intents[1].Purpose)

	timedOut := p.CheckTimeouts(1000)
	require.Empty(t, timedOut)
}

func TestCheckTimeouts_FiresAfterAttachTimeout(t *testing.T) {
	p, _ := newOrchestrator(true, false)
	p.OnEntryFill("parent1", entryFill(), 1000)

	timedOut := p.CheckTimeouts(1000 + 5000)
	require.Len(t, timedOut, 1)
	require.Equal(t, "BTCUSDT", timedOut[0].Symbol)

	// Fires once; second call finds nothing left pending.
	again := p.CheckTimeouts(1000 + 10000)
	require.Empty(t, again)
}

func TestOnSLAttached_ClearsPendingWatch(t *testing.T) {
	p, _ := newOrchestrator(true, false)
	p.OnEntryFill("parent1", entryFill(), 1000)
	p.OnSLAttached("parent1")

	timedOut := p.CheckTimeouts(1000 + 10000)
	require.Empty(t, timedOut)
}

func TestOnProtectiveFill_ReturnsOpenSiblingForCancel(t *testing.T) {
	p, o := newOrchestrator(true, true)
	intents := p.OnEntryFill("parent1", entryFill(), 1000)
	for _, in := range intents {
		require.NoError(t, o.RegisterIntent(in))
	}

	slClientID := intents[0].ClientOrderID
	siblingID, shouldCancel := p.OnProtectiveFill("parent1", types.PurposeSL)
	require.True(t, shouldCancel)
	require.NotEqual(t, slClientID, siblingID)
	require.Equal(t, intents[1].ClientOrderID, siblingID)
}

func TestOnProtectiveFill_NoSiblingWhenNoneOpen(t *testing.T) {
	p, _ := newOrchestrator(true, false)
	p.OnEntryFill("parent1", entryFill(), 1000)

	_, shouldCancel := p.OnProtectiveFill("parent1", types.PurposeSL)
	require.False(t, shouldCancel)
}

func TestOnEntryFill_TPOnlyWhenRequireSLDisabled(t *testing.T) {
	p, _ := newOrchestrator(false, true)
	intents := p.OnEntryFill("parent1", entryFill(), 1000)
	require.Len(t, intents, 1)
	require.Equal(t, types.PurposeTP, intents[0].Purpose)
}
