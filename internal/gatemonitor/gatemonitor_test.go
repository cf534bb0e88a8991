package gatemonitor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func cfg() Config {
	return Config{
		WindowTicks: 3, MinEffectiveSignals: 1, MinFills: 1,
		HeartbeatEmptySignalTicks: 2,
		FailToReduceOnlyWindows:   2, FailToHaltWindows: 4, PassToResumeWindows: 2,
	}
}

func TestOnTick_HeartbeatGapFiresAtThreshold(t *testing.T) {
	m := New(cfg())
	require.False(t, m.OnTick(1, Counters{}))
	require.True(t, m.OnTick(2, Counters{}))
}

func TestCloseWindow_FailsOnLowActivity(t *testing.T) {
	m := New(cfg())
	m.OnTick(1, Counters{})
	m.OnTick(2, Counters{})
	m.OnTick(3, Counters{})
	require.True(t, m.WindowClosed())
	result := m.CloseWindow()
	require.False(t, result.Pass)
	require.Contains(t, result.FailReasons, FailLowActivitySignals)
	require.Contains(t, result.FailReasons, FailLowActivityFills)
}

func TestRuntimeEnforcement_EntersReduceOnlyThenResumes(t *testing.T) {
	m := New(cfg())
	for i := 0; i < 3; i++ {
		m.OnTick(int64(i), Counters{})
	}
	m.CloseWindow()
	out := m.ApplyRuntimeEnforcement(3)
	require.False(t, out.EnterReduceOnly)

	for i := 3; i < 6; i++ {
		m.OnTick(int64(i), Counters{})
	}
	m.CloseWindow()
	out = m.ApplyRuntimeEnforcement(6)
	require.True(t, out.EnterReduceOnly)
	require.True(t, m.ReduceOnly())

	for w := 0; w < 2; w++ {
		for i := 0; i < 3; i++ {
			m.OnTick(int64(i), Counters{EffectiveSignals: 5, Fills: 5})
		}
		m.CloseWindow()
	}
	out = m.ApplyRuntimeEnforcement(100)
	require.True(t, out.ReleaseState)
	require.False(t, m.ReduceOnly())
}

func TestOnAccountFlat_ReleasesAfterFlatTicks(t *testing.T) {
	c := cfg()
	c.AutoResumeFlatTicks = 5
	m := New(c)
	m.reduceOnly = true
	m.OnAccountFlat(10, true)
	out := m.OnAccountFlat(16, true)
	require.True(t, out.ReleaseState)
}
