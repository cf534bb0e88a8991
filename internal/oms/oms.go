// Package oms implements the order lifecycle state machine: registration,
// ACK/reject/cancel transitions, net-fill aggregation per symbol, and
// protective-sibling (SL/TP) lookups. Grounded on the original source's
// oms/order_manager module and, for state-name conventions, on the
// teacher's execution/executor.go OrderState enum (generalized to the
// spec's New/Sent/Partial/Filled/Rejected/Cancelled set).
package oms

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nvquant/tradecore/internal/types"
)

// Epsilon is the tolerance used when comparing filled_qty against
// intent.qty to decide Partial vs Filled (invariant I3).
var Epsilon = decimal.NewFromFloat(1e-9)

var ErrEmptyClientOrderID = errors.New("oms: empty client_order_id")
var ErrDuplicateClientOrderID = errors.New("oms: duplicate client_order_id")

// OMS stores order records by client_order_id and tracks net filled qty.
type OMS struct {
	mu            sync.RWMutex
	records       map[string]*types.OrderRecord
	netFilledQty  map[string]decimal.Decimal // per symbol
	globalNet     decimal.Decimal
	parentIndex   map[string][]string // parent_order_id -> child client_order_ids
}

// New returns an empty OMS.
func New() *OMS {
	return &OMS{
		records:      make(map[string]*types.OrderRecord),
		netFilledQty: make(map[string]decimal.Decimal),
		parentIndex:  make(map[string][]string),
	}
}

// RegisterIntent creates a new record in state New. Fails on empty id or
// an id already present.
func (o *OMS) RegisterIntent(intent types.OrderIntent) error {
	if intent.ClientOrderID == "" {
		return ErrEmptyClientOrderID
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.records[intent.ClientOrderID]; exists {
		return ErrDuplicateClientOrderID
	}
	o.records[intent.ClientOrderID] = &types.OrderRecord{
		Intent:    intent,
		State:     types.OrderNew,
		FilledQty: decimal.Zero,
	}
	if intent.ParentOrderID != "" {
		o.parentIndex[intent.ParentOrderID] = append(o.parentIndex[intent.ParentOrderID], intent.ClientOrderID)
	}
	return nil
}

// SetEnqueuedMs records the wall-clock time an Entry/Reduce intent was
// durably enqueued, for pending-order-stale detection.
func (o *OMS) SetEnqueuedMs(clientOrderID string, ms int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.records[clientOrderID]; ok {
		r.EnqueuedMs = ms
	}
}

// MarkSent transitions a record to Sent; no-op if already terminal.
func (o *OMS) MarkSent(clientOrderID string) {
	o.transition(clientOrderID, types.OrderSent)
}

// MarkRejected transitions a record to Rejected; no-op if already terminal.
func (o *OMS) MarkRejected(clientOrderID string) {
	o.transition(clientOrderID, types.OrderRejected)
}

// MarkCancelled transitions a record to Cancelled; no-op if already terminal.
func (o *OMS) MarkCancelled(clientOrderID string) {
	o.transition(clientOrderID, types.OrderCancelled)
}

func (o *OMS) transition(clientOrderID string, to types.OrderState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.records[clientOrderID]
	if !ok || r.State.IsTerminal() {
		return
	}
	r.State = to
}

// OnFill applies a fill: updates global and per-symbol net signed filled
// qty unconditionally, and if the record exists and is non-terminal, adds
// to filled_qty and transitions to Partial or Filled per invariant I3.
// Fills for unknown client_order_ids still update net qty (externally
// originated fills after a remote resync).
func (o *OMS) OnFill(fill types.FillEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	signedQty := fill.Qty.Mul(decimal.NewFromInt(int64(fill.Direction)))
	o.globalNet = o.globalNet.Add(signedQty)
	o.netFilledQty[fill.Symbol] = o.netFilledQty[fill.Symbol].Add(signedQty)

	r, ok := o.records[fill.ClientOrderID]
	if !ok || r.State.IsTerminal() {
		return
	}
	r.FilledQty = r.FilledQty.Add(fill.Qty)
	remaining := r.Intent.Qty.Sub(r.FilledQty)
	if remaining.LessThanOrEqual(Epsilon) {
		r.State = types.OrderFilled
		r.EnqueuedMs = 0
	} else {
		r.State = types.OrderPartial
	}
}

// NetFilledQty returns the net signed filled quantity for symbol.
func (o *OMS) NetFilledQty(symbol string) decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.netFilledQty[symbol]
}

// SeedNetFilledQty overwrites the net filled qty baseline for symbol,
// used by the reconciler when seeding the OMS net baseline from remote.
func (o *OMS) SeedNetFilledQty(symbol string, qty decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.netFilledQty[symbol] = qty
}

// Record returns a copy of the record for clientOrderID, if present.
func (o *OMS) Record(clientOrderID string) (types.OrderRecord, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.records[clientOrderID]
	if !ok {
		return types.OrderRecord{}, false
	}
	return *r, true
}

// Has reports whether a record exists for clientOrderID.
func (o *OMS) Has(clientOrderID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.records[clientOrderID]
	return ok
}

// FindOpenProtectiveSibling scans for a non-terminal record with the
// opposite protective purpose (SL<->TP) sharing parentID.
func (o *OMS) FindOpenProtectiveSibling(parentID string, purpose types.Purpose) (types.OrderRecord, bool) {
	opposite := oppositeProtective(purpose)
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, childID := range o.parentIndex[parentID] {
		r, ok := o.records[childID]
		if !ok || r.State.IsTerminal() {
			continue
		}
		if r.Intent.Purpose == opposite {
			return *r, true
		}
	}
	return types.OrderRecord{}, false
}

func oppositeProtective(p types.Purpose) types.Purpose {
	if p == types.PurposeSL {
		return types.PurposeTP
	}
	return types.PurposeSL
}

// HasOpenProtection reports whether any non-terminal SL or TP exists for
// parentID.
func (o *OMS) HasOpenProtection(parentID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, childID := range o.parentIndex[parentID] {
		r, ok := o.records[childID]
		if !ok || r.State.IsTerminal() {
			continue
		}
		if r.Intent.Purpose == types.PurposeSL || r.Intent.Purpose == types.PurposeTP {
			return true
		}
	}
	return false
}

// HasPendingNetPosition reports whether any non-terminal Entry/Reduce
// record exists for symbol ("pending" per spec.md §4.3).
func (o *OMS) HasPendingNetPosition(symbol string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, r := range o.records {
		if r.Intent.Symbol != symbol {
			continue
		}
		if r.State.IsTerminal() {
			continue
		}
		if r.Intent.Purpose == types.PurposeEntry || r.Intent.Purpose == types.PurposeReduce {
			return true
		}
	}
	return false
}

// HasAnyPendingNetPosition reports whether any symbol has a non-terminal
// Entry/Reduce record, used by the gate monitor's auto-resume-on-flat check.
func (o *OMS) HasAnyPendingNetPosition() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, r := range o.records {
		if r.State.IsTerminal() {
			continue
		}
		if r.Intent.Purpose == types.PurposeEntry || r.Intent.Purpose == types.PurposeReduce {
			return true
		}
	}
	return false
}

// PendingNetPositionRecords returns all non-terminal Entry/Reduce records,
// used by the reconciler's stale-order pre-check.
func (o *OMS) PendingNetPositionRecords() []types.OrderRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []types.OrderRecord
	for _, r := range o.records {
		if r.State.IsTerminal() {
			continue
		}
		if r.Intent.Purpose == types.PurposeEntry || r.Intent.Purpose == types.PurposeReduce {
			out = append(out, *r)
		}
	}
	return out
}

// ClearEnqueuedMs clears the pending-order timestamp, used after a stale
// order is cancelled or on reconciler auto-resync.
func (o *OMS) ClearEnqueuedMs(clientOrderID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.records[clientOrderID]; ok {
		r.EnqueuedMs = 0
	}
}
