package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pairTemplate = `
name: pair
tasks:
  - schema: relax
    sequences:
      - path: inputs.x
        values: [1, 2]
`

func TestRun_ScenarioFromFile(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/two_task_sweep.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)

	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
	require.NotNil(t, result.Snapshot)

	wf := result.Snapshot.Workflow
	assert.Equal(t, "sweep", wf.Name)
	assert.Equal(t, "json", wf.Backend)
	require.Len(t, wf.Tasks, 2)
	assert.Equal(t, 3, wf.Tasks[0].Elements)
	assert.Equal(t, []int{2}, wf.Tasks[0].Skipped)
	assert.Equal(t, 1, wf.Tasks[1].Elements)
	assert.Equal(t, 6, wf.Parameters.Set)
	assert.Equal(t, 5, wf.Parameters.Unset)

	// The skipped run drops its element from task 0's jobscript; task 1's
	// differing action resources split into two dependent jobscripts.
	require.Len(t, result.Snapshot.Jobscripts, 2)
	require.Len(t, result.Snapshot.Jobscripts[0].Jobscripts, 1)
	assert.Len(t, result.Snapshot.Jobscripts[0].Jobscripts[0].Elements, 2)
	require.Len(t, result.Snapshot.Jobscripts[1].Jobscripts, 2)
	assert.Equal(t, []int{0}, result.Snapshot.Jobscripts[1].Jobscripts[1].DependsOn)
	assert.Equal(t, 8, result.Snapshot.Jobscripts[1].Jobscripts[1].Resources.NumCores)
}

func TestRun_SQLiteBackend(t *testing.T) {
	scenario := &Scenario{
		Name:        "pair_sqlite",
		Description: "Two-element sweep on the sqlite backend",
		Backend:     "sqlite",
		Template:    pairTemplate,
		Assertions: []Assertion{
			{Type: AssertCount, Kind: "tasks", Count: 1},
			{Type: AssertCount, Kind: "elements", Count: 2},
			{Type: AssertCount, Kind: "runs", Count: 2},
			{Type: AssertCount, Kind: "parameters", Count: 4},
			{Type: AssertCount, Kind: "jobscripts", Count: 1},
		},
	}

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
	assert.Equal(t, "sqlite", result.Snapshot.Workflow.Backend)

	// Both elements share the zero resource spec, so one jobscript covers
	// the whole task.
	js := result.Snapshot.Jobscripts[0].Jobscripts
	require.Len(t, js, 1)
	assert.Len(t, js[0].Elements, 2)
}

func TestRun_FailedAssertionReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "pair_wrong_count",
		Description: "Mismatched count surfaces as an assertion failure",
		Template:    pairTemplate,
		Assertions: []Assertion{
			{Type: AssertCount, Kind: "tasks", Count: 99},
			{Type: AssertCount, Kind: "elements", Count: 2},
		},
	}

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "tasks count is 1, want 99")
}

func TestRun_InvalidTemplateFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_template",
		Description: "Template schema violations abort the scenario",
		Template:    "name: wf\ntasks: []\n",
		Assertions: []Assertion{
			{Type: AssertCount, Kind: "tasks", Count: 0},
		},
	}

	_, err := Run(context.Background(), scenario, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario template")
}
