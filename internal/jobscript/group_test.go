package jobscript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderwm/gridflow/internal/record"
)

func TestGroupResourceMapMultiResource(t *testing.T) {
	resourceMap := [][]int{
		{1, 1, 1, 2, -1, 2, 4, -1, 1},
		{1, 3, 1, 2, 2, 2, 4, 4, 1},
		{1, 1, 3, 2, 2, 2, 4, -1, 1},
	}
	want := []Descriptor{
		{Resources: 1, Elements: map[int][]int{0: {0, 1, 2}, 1: {0}, 2: {0, 1}, 8: {0, 1, 2}}},
		{Resources: 2, Elements: map[int][]int{3: {0, 1, 2}, 4: {1, 2}, 5: {0, 1, 2}}},
		{Resources: 4, Elements: map[int][]int{6: {0, 1, 2}, 7: {1}}},
		{Resources: 3, Elements: map[int][]int{1: {1}}},
		{Resources: 1, Elements: map[int][]int{1: {2}}},
		{Resources: 3, Elements: map[int][]int{2: {2}}},
	}
	got, jsMap := GroupResourceMap(resourceMap, -1)
	assert.Equal(t, want, got)

	// Every "no run" cell stays unallocated, every other cell is covered.
	for i, row := range resourceMap {
		for j, v := range row {
			if v == -1 {
				assert.Equal(t, -1, jsMap[i][j], "cell (%d,%d)", i, j)
			} else {
				assert.GreaterOrEqual(t, jsMap[i][j], 0, "cell (%d,%d)", i, j)
			}
		}
	}
	// The input matrix is left untouched.
	assert.Equal(t, -1, resourceMap[0][4])
	assert.Equal(t, -1, resourceMap[2][7])
}

func TestGroupResourceMapDownwardExtension(t *testing.T) {
	resourceMap := [][]int{
		{2, 2, -1},
		{4, 4, 1},
		{4, 4, -1},
		{1, 1, 1},
	}
	want := []Descriptor{
		{Resources: 2, Elements: map[int][]int{0: {0}, 1: {0}}},
		{Resources: 1, Elements: map[int][]int{2: {1, 3}}},
		{Resources: 4, Elements: map[int][]int{0: {1, 2}, 1: {1, 2}}},
		{Resources: 1, Elements: map[int][]int{0: {3}, 1: {3}}},
	}
	got, _ := GroupResourceMap(resourceMap, -1)
	assert.Equal(t, want, got)
}

func TestGroupResourceMapEmpty(t *testing.T) {
	got, jsMap := GroupResourceMap(nil, -1)
	assert.Nil(t, got)
	assert.Nil(t, jsMap)

	got, jsMap = GroupResourceMap([][]int{{-1, -1}}, -1)
	assert.Empty(t, got)
	assert.Equal(t, [][]int{{-1, -1}}, jsMap)
}

func TestGroupResourceMapSingleCell(t *testing.T) {
	got, jsMap := GroupResourceMap([][]int{{0}}, -1)
	require.Len(t, got, 1)
	assert.Equal(t, Descriptor{Resources: 0, Elements: map[int][]int{0: {0}}}, got[0])
	assert.Equal(t, 0, jsMap[0][0])
}

func TestResolveSignaturesAndDependencies(t *testing.T) {
	small := record.ResourceSpec{NumCores: 1, Scheduler: "slurm"}
	big := record.ResourceSpec{NumCores: 16, Scheduler: "slurm"}
	specs := [][]record.ResourceSpec{
		{small, small},
		{big, big},
	}
	fn := func(actIdx, elemIdx int) (record.ResourceSpec, bool) {
		return specs[actIdx][elemIdx], true
	}
	jobscripts, jsMap := Resolve(2, 2, fn)
	require.Len(t, jobscripts, 2)

	assert.Equal(t, 0, jobscripts[0].Index)
	assert.Equal(t, small, jobscripts[0].Resources)
	assert.Equal(t, small.Signature(), jobscripts[0].Signature)
	assert.Empty(t, jobscripts[0].DependsOn)
	assert.Equal(t, map[int][]int{0: {0}, 1: {0}}, jobscripts[0].Elements)

	// The second action's jobscript depends on the first's.
	assert.Equal(t, big, jobscripts[1].Resources)
	assert.Equal(t, []int{0}, jobscripts[1].DependsOn)
	assert.Equal(t, map[int][]int{0: {1}, 1: {1}}, jobscripts[1].Elements)

	assert.Equal(t, [][]int{{0, 0}, {1, 1}}, jsMap)
}

func TestResolveMergesUniformPipeline(t *testing.T) {
	// One resource signature across all actions and elements collapses to a
	// single jobscript carrying the whole pipeline.
	spec := record.ResourceSpec{NumCores: 4}
	fn := func(actIdx, elemIdx int) (record.ResourceSpec, bool) {
		return spec, true
	}
	jobscripts, _ := Resolve(3, 2, fn)
	require.Len(t, jobscripts, 1)
	assert.Equal(t, map[int][]int{0: {0, 1, 2}, 1: {0, 1, 2}}, jobscripts[0].Elements)
	assert.Empty(t, jobscripts[0].DependsOn)
}
