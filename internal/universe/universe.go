// Package universe maintains the bot's dynamic active-symbol set,
// selecting from a candidate list and falling back to a configured safe
// set when too few candidates are tradable. Grounded on the teacher's
// MarketManager (config-driven set of managed markets, each with an
// IsActive flag) generalized from Polymarket per-market configs to
// perpetual-futures symbol selection.
package universe

import "sync"

// Config holds the universe selector's tunables.
type Config struct {
	Enabled             bool
	UpdateIntervalTicks int64
	MaxActiveSymbols    int
	MinActiveSymbols    int
	CandidateSymbols    []string
	FallbackSymbols     []string
}

// Selector owns the currently active symbol set.
type Selector struct {
	mu     sync.Mutex
	cfg    Config
	active map[string]bool
}

// New constructs a Selector, seeded with the fallback set (or all
// candidates if the selector is disabled).
func New(cfg Config) *Selector {
	s := &Selector{cfg: cfg, active: make(map[string]bool)}
	if !cfg.Enabled {
		for _, sym := range cfg.CandidateSymbols {
			s.active[sym] = true
		}
		return s
	}
	for _, sym := range cfg.FallbackSymbols {
		s.active[sym] = true
	}
	return s
}

// Update recomputes the active set from per-candidate tradability,
// capped to max_active_symbols; if the resulting set is smaller than
// min_active_symbols, falls back to the configured fallback set.
func (s *Selector) Update(tradable map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		return
	}

	next := make(map[string]bool)
	count := 0
	for _, sym := range s.cfg.CandidateSymbols {
		if count >= s.cfg.MaxActiveSymbols && s.cfg.MaxActiveSymbols > 0 {
			break
		}
		if tradable[sym] {
			next[sym] = true
			count++
		}
	}

	if len(next) < s.cfg.MinActiveSymbols {
		next = make(map[string]bool)
		for _, sym := range s.cfg.FallbackSymbols {
			next[sym] = true
		}
	}

	s.active = next
}

// IsActive reports whether symbol is currently in the active set.
func (s *Selector) IsActive(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[symbol]
}

// Active returns a snapshot of the active symbol set.
func (s *Selector) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for sym := range s.active {
		out = append(out, sym)
	}
	return out
}
