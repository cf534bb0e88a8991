// Package clock provides the monotonic tick counter, wall-clock
// millisecond source, and globally-unique client-order-id minting used
// throughout the decision loop. Kept as a single small seam so tests can
// substitute a deterministic clock without touching call sites.
package clock

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Clock is the loop's time source: a monotonic tick counter plus wall time.
type Clock struct {
	tick int64
	now  func() time.Time
}

// New returns a Clock driven by wall-clock time.
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewWithSource returns a Clock driven by the supplied time source, for tests.
func NewWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// NowMs returns the current wall-clock time in milliseconds.
func (c *Clock) NowMs() int64 {
	return c.now().UnixMilli()
}

// Tick returns the current logical tick count.
func (c *Clock) Tick() int64 {
	return atomic.LoadInt64(&c.tick)
}

// Advance increments and returns the tick counter; called once per polled
// market event per spec.md's "Tick" definition.
func (c *Clock) Advance() int64 {
	return atomic.AddInt64(&c.tick, 1)
}

// IDMinter mints globally-unique client_order_ids as
// symbol+ts_ms+instance_tag+seq.
type IDMinter struct {
	mu          sync.Mutex
	instanceTag string
	seq         uint64
}

// NewIDMinter builds a minter scoped to one process instance.
func NewIDMinter(instanceTag string) *IDMinter {
	return &IDMinter{instanceTag: instanceTag}
}

// Mint returns a new client_order_id for symbol at the given wall time.
func (m *IDMinter) Mint(symbol string, tsMs int64) string {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()
	return fmt.Sprintf("%s-%d-%s-%d", symbol, tsMs, m.instanceTag, seq)
}
