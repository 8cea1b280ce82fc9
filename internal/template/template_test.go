package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderwm/gridflow/internal/record"
)

const sweepTemplate = `
name: sweep
tasks:
  - schema: simulate
    inputs:
      inputs.model: default
    sequences:
      - path: inputs.x
        values: [1, 2, 3]
        nesting_order: 0
      - path: inputs.y
        values: [10, 20]
        nesting_order: 1
    resources:
      any:
        num_cores: 4
        scheduler: slurm
  - schema: analyse
resources:
  any:
    num_cores: 1
`

func TestLoadValidTemplate(t *testing.T) {
	tpl, err := Load([]byte(sweepTemplate))
	require.NoError(t, err)

	assert.Equal(t, "sweep", tpl.Name)
	require.Len(t, tpl.Tasks, 2)
	assert.Equal(t, "simulate", tpl.Tasks[0].Schema)
	require.Len(t, tpl.Tasks[0].Sequences, 2)
	assert.Equal(t, []any{1, 2, 3}, tpl.Tasks[0].Sequences[0].Values)
	assert.Equal(t, 4, tpl.Tasks[0].Resources["any"].NumCores)
}

func TestLoadRejectsInvalidTemplates(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"missing name", "tasks:\n  - schema: a\n"},
		{"no tasks", "name: x\ntasks: []\n"},
		{"empty schema", "name: x\ntasks:\n  - schema: \"\"\n"},
		{"bad cores", "name: x\ntasks:\n  - schema: a\n    resources:\n      any:\n        num_cores: 0\n"},
		{"bad loop", "name: x\ntasks:\n  - schema: a\nloops:\n  - name: l\n    tasks: [0]\n    num_iterations: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load([]byte(tc.src))
			assert.Error(t, err)
		})
	}
}

func TestResourcesForFallback(t *testing.T) {
	tpl, err := Load([]byte(sweepTemplate))
	require.NoError(t, err)

	// Task scope wins over the template default.
	spec := tpl.ResourcesFor(0, 0)
	assert.Equal(t, record.ResourceSpec{NumCores: 4, Scheduler: "slurm"}, spec)

	// Task 1 declares nothing and falls back to the template default.
	spec = tpl.ResourcesFor(1, 0)
	assert.Equal(t, record.ResourceSpec{NumCores: 1}, spec)
}

func TestExpandSequences(t *testing.T) {
	tpl, err := Load([]byte(sweepTemplate))
	require.NoError(t, err)

	elems, err := Expand(tpl.Tasks[0])
	require.NoError(t, err)
	require.Len(t, elems, 6)

	// Outermost sequence (nesting order 0) varies slowest.
	assert.Equal(t, map[string]int{"inputs.x": 0, "inputs.y": 0}, elems[0].SeqIdx)
	assert.Equal(t, map[string]int{"inputs.x": 0, "inputs.y": 1}, elems[1].SeqIdx)
	assert.Equal(t, map[string]int{"inputs.x": 2, "inputs.y": 1}, elems[5].SeqIdx)

	assert.Equal(t, 1, elems[0].Inputs["inputs.x"])
	assert.Equal(t, 20, elems[1].Inputs["inputs.y"])
	assert.Equal(t, "default", elems[0].Inputs["inputs.model"])
}

func TestExpandNoSequences(t *testing.T) {
	elems, err := Expand(Task{Schema: "a", Inputs: map[string]any{"inputs.p": 7}})
	require.NoError(t, err)
	require.Len(t, elems, 1)
	assert.Equal(t, 7, elems[0].Inputs["inputs.p"])
}

func TestExpandRejectsRaggedZip(t *testing.T) {
	_, err := Expand(Task{
		Schema: "a",
		Sequences: []Sequence{
			{Path: "inputs.x", Values: []any{1, 2}, NestingOrder: 0},
			{Path: "inputs.y", Values: []any{1, 2, 3}, NestingOrder: 0},
		},
	})
	assert.Error(t, err)
}

func TestDocRoundTrip(t *testing.T) {
	tpl, err := Load([]byte(sweepTemplate))
	require.NoError(t, err)
	doc, err := tpl.Doc()
	require.NoError(t, err)
	assert.Equal(t, "sweep", doc["name"])
	require.NoError(t, Validate(doc))
}
