package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_TwoTaskSweep(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/two_task_sweep.yaml")
	require.NoError(t, err)

	// Regenerate with: go test ./internal/harness -update
	require.NoError(t, RunWithGolden(t, scenario))
}
