// Package protection orchestrates stop-loss/take-profit attachment on
// entry fills and OCO-style cancellation of the sibling protective order
// once one leg fills. Grounded on the teacher's execution/executor.go
// fill-callback wiring (OnFill triggering follow-on position bookkeeping),
// generalized to the spec's required-SL invariant (I7): an entry fill
// with no protective order attached within attach_timeout_ms forces
// reduce-only trading for the whole controller, not just that symbol.
package protection

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/coreerr"
	"github.com/nvquant/tradecore/internal/execengine"
	"github.com/nvquant/tradecore/internal/oms"
	"github.com/nvquant/tradecore/internal/types"
)

// Config holds the protection orchestrator's tunables.
type Config struct {
	RequireSL       bool
	SLRatio         decimal.Decimal
	TPRatio         decimal.Decimal
	HasTP           bool
	AttachTimeoutMs int64
}

// PendingRequiredSL tracks an entry fill awaiting its SL attach, keyed by
// parent_order_id.
type PendingRequiredSL struct {
	Symbol      string
	EnqueuedMs  int64
	EntryFill   types.FillEvent
}

// Orchestrator builds and tracks protective orders attached to filled
// entries.
type Orchestrator struct {
	mu      sync.Mutex
	cfg     Config
	engine  *execengine.Engine
	omsRef  *oms.OMS
	pending map[string]*PendingRequiredSL // parent_order_id -> pending SL
}

// New constructs an Orchestrator.
func New(cfg Config, engine *execengine.Engine, o *oms.OMS) *Orchestrator {
	return &Orchestrator{cfg: cfg, engine: engine, omsRef: o, pending: make(map[string]*PendingRequiredSL)}
}

// OnEntryFill builds the protective intents (SL always if configured,
// TP if configured) for an entry fill and records a pending-required-SL
// watch keyed by parent_order_id so the controller can detect attach
// timeout. Returns the intents to durably enqueue.
func (p *Orchestrator) OnEntryFill(parentOrderID string, fill types.FillEvent, nowMs int64) []types.OrderIntent {
	var intents []types.OrderIntent

	if p.cfg.RequireSL {
		sl := p.engine.BuildProtectionIntent(fill, parentOrderID, types.PurposeSL, p.cfg.SLRatio)
		intents = append(intents, sl)

		p.mu.Lock()
		p.pending[parentOrderID] = &PendingRequiredSL{Symbol: fill.Symbol, EnqueuedMs: nowMs, EntryFill: fill}
		p.mu.Unlock()
	}

	if p.cfg.HasTP {
		tp := p.engine.BuildProtectionIntent(fill, parentOrderID, types.PurposeTP, p.cfg.TPRatio)
		intents = append(intents, tp)
	}

	return intents
}

// OnProtectiveFill handles a fill against either SL or TP leg: it looks
// up the still-open sibling (the opposite protective purpose) sharing
// parentOrderID and, if present, returns its client_order_id to cancel
// (the OCO pair). It also clears the required-SL watch once an SL leg
// itself fills.
func (p *Orchestrator) OnProtectiveFill(parentOrderID string, filledPurpose types.Purpose) (siblingClientOrderID string, shouldCancel bool) {
	if filledPurpose == types.PurposeSL {
		p.mu.Lock()
		delete(p.pending, parentOrderID)
		p.mu.Unlock()
	}

	sibling, ok := p.omsRef.FindOpenProtectiveSibling(parentOrderID, filledPurpose)
	if !ok {
		return "", false
	}
	return sibling.Intent.ClientOrderID, true
}

// OnSLAttached clears the required-SL watch for parentOrderID
// unconditionally. The controller calls it right after durably enqueuing
// the SL intent; the SL order's later OMS state is not checked, so a
// submission that fails after enqueue does not re-arm the watch.
func (p *Orchestrator) OnSLAttached(parentOrderID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, parentOrderID)
}

// CheckTimeouts scans pending required-SL watches and returns the ones
// whose attach_timeout_ms has elapsed (each carries its symbol); the
// error kind to log is TimeoutErrorKind. Timed-out watches are removed so
// they fire once.
func (p *Orchestrator) CheckTimeouts(nowMs int64) []PendingRequiredSL {
	p.mu.Lock()
	defer p.mu.Unlock()

	var timedOut []PendingRequiredSL
	for parentID, watch := range p.pending {
		if nowMs-watch.EnqueuedMs >= p.cfg.AttachTimeoutMs {
			timedOut = append(timedOut, *watch)
			delete(p.pending, parentID)
		}
	}
	return timedOut
}

// TimeoutErrorKind is the stable error kind logged when a required SL
// fails to attach in time (spec.md §7: EXEC_PROTECTIVE_ORDER_MISSING
// with reason=sl_attach_timeout).
const TimeoutErrorKind = coreerr.ExecProtectiveOrderMissing
