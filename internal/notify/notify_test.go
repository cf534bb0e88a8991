package notify

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledIsNoOp(t *testing.T) {
	n, err := New(Config{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)
	require.NotPanics(t, func() {
		n.Startup("paper", "BTCUSDT")
		n.ReduceOnlyEntered("gate", "low_activity")
		n.ReduceOnlyExited("gate")
		n.Halted("reconcile", "mismatch")
		n.EvolutionAction("Trend", "Updated", "objective_improved")
		n.Error(errTest{})
	})
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
