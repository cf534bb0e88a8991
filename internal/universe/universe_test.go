package universe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func cfg() Config {
	return Config{
		Enabled:          true,
		MaxActiveSymbols: 2,
		MinActiveSymbols: 1,
		CandidateSymbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		FallbackSymbols:  []string{"BTCUSDT"},
	}
}

func TestNew_SeedsFallbackSet(t *testing.T) {
	s := New(cfg())
	require.ElementsMatch(t, []string{"BTCUSDT"}, s.Active())
}

func TestUpdate_SelectsTradableCandidatesUpToMax(t *testing.T) {
	s := New(cfg())
	s.Update(map[string]bool{"BTCUSDT": true, "ETHUSDT": true, "SOLUSDT": true})
	require.Len(t, s.Active(), 2)
	require.True(t, s.IsActive("BTCUSDT"))
}

func TestUpdate_FallsBackWhenBelowMinimum(t *testing.T) {
	s := New(cfg())
	s.Update(map[string]bool{"BTCUSDT": false, "ETHUSDT": false, "SOLUSDT": false})
	require.ElementsMatch(t, []string{"BTCUSDT"}, s.Active())
}

func TestUpdate_DisabledSelectorIsNoOp(t *testing.T) {
	c := cfg()
	c.Enabled = false
	s := New(c)
	before := s.Active()
	s.Update(map[string]bool{"BTCUSDT": false})
	require.ElementsMatch(t, before, s.Active())
}
