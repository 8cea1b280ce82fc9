package depcache

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderwm/gridflow/internal/record"
	"github.com/calderwm/gridflow/internal/store"
)

// chainWorkflow builds a 4-task linear chain: only task 0 has a local input,
// and each task's run consumes the previous task's output parameter.
func chainWorkflow(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := store.Create(ctx, store.CreateOptions{
		Path: t.TempDir(),
		Name: "chain",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	inputID, err := s.AddSetParameter(ctx, 1.0, record.ParamSource{Type: "local_input"})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		taskID, err := s.AddTask(ctx, i, nil)
		require.NoError(t, err)
		elemID, err := s.AddElement(ctx, taskID, 0, nil, nil)
		require.NoError(t, err)

		runID := i
		outID, err := s.AddUnsetParameter(ctx, record.ParamSource{
			Type:  "EAR_output",
			RunID: &runID,
		})
		require.NoError(t, err)

		dataIdx := record.DataIndex{
			"inputs.x":  record.SingleRef(inputID),
			"outputs.x": record.SingleRef(outID),
		}
		iterID, err := s.AddElementIteration(ctx, elemID, dataIdx, []string{"x"}, nil)
		require.NoError(t, err)
		_, err = s.AddRun(ctx, iterID, 0, []int{0}, dataIdx, nil)
		require.NoError(t, err)

		// The next task consumes this task's output.
		inputID = outID
	}
	return s
}

func TestChainElementDependentsRecursive(t *testing.T) {
	s := chainWorkflow(t)
	c, err := Build(context.Background(), s)
	require.NoError(t, err)

	want := map[int][]int{
		0: {1, 2, 3},
		1: {2, 3},
		2: {3},
		3: {},
	}
	for elemID, deps := range want {
		assert.Equal(t, deps, c.ElementDependentsRecursive(elemID), "element %d", elemID)
	}
}

func TestChainDirectEdges(t *testing.T) {
	s := chainWorkflow(t)
	c, err := Build(context.Background(), s)
	require.NoError(t, err)

	assert.Empty(t, c.RunDependencies(0))
	assert.Equal(t, []int{0}, c.RunDependencies(1))
	assert.Equal(t, []int{2}, c.RunDependencies(3))
	assert.Equal(t, []int{1}, c.RunDependents(0))
	assert.Empty(t, c.RunDependents(3))

	assert.Equal(t, []int{0}, c.IterationDependencies(1))
	assert.Equal(t, []int{2}, c.ElementDependencies(3))
	assert.Equal(t, []int{1}, c.ElementDependents(0))
	assert.Empty(t, c.ElementDependencies(0))
}

func TestCacheIncludesPendingEntities(t *testing.T) {
	// The cache builds over the merged view: nothing needs to be committed
	// first.
	s := chainWorkflow(t)
	require.True(t, s.HasPending())
	c, err := Build(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, c.ElementDependentsRecursive(0))

	// Identical after a commit.
	require.NoError(t, s.Save(context.Background()))
	c2, err := Build(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, c2.ElementDependentsRecursive(0))
}
