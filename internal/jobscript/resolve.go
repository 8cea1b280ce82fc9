package jobscript

import (
	"context"
	"slices"

	"github.com/calderwm/gridflow/internal/record"
	"github.com/calderwm/gridflow/internal/store"
)

// NoneVal is the sentinel matrix cell for an (action, element) pair with no
// pending run.
const NoneVal = -1

// ResourceFunc resolves the resource requirements of one (action, element)
// cell. The second return is false where the pair has no pending run. The
// template/schema layer supplies this; the resolver only consumes it.
type ResourceFunc func(actIdx, elemIdx int) (record.ResourceSpec, bool)

// BuildResourceMap evaluates the resource function over the full action by
// element grid, deduplicating resource signatures in first-appearance order.
func BuildResourceMap(numActions, numElements int, resources ResourceFunc) ([][]int, *record.SignatureSet) {
	sigs := record.NewSignatureSet()
	m := make([][]int, numActions)
	for actIdx := range m {
		m[actIdx] = make([]int, numElements)
		for elemIdx := range m[actIdx] {
			spec, ok := resources(actIdx, elemIdx)
			if !ok {
				m[actIdx][elemIdx] = NoneVal
				continue
			}
			m[actIdx][elemIdx] = sigs.Index(spec)
		}
	}
	return m, sigs
}

// Resolve groups the resource grid into jobscript records ready to attach to
// a submission. Dependencies between jobscripts follow from action order:
// a jobscript covering a later action of an element depends on the jobscript
// covering that element's earlier actions.
func Resolve(numActions, numElements int, resources ResourceFunc) ([]record.Jobscript, [][]int) {
	m, sigs := BuildResourceMap(numActions, numElements, resources)
	descriptors, jsMap := GroupResourceMap(m, NoneVal)
	specs := sigs.Specs()

	out := make([]record.Jobscript, len(descriptors))
	for i, d := range descriptors {
		spec := specs[d.Resources]
		out[i] = record.Jobscript{
			Index:       i,
			ResourceIdx: d.Resources,
			Signature:   spec.Signature(),
			Resources:   spec,
			Elements:    d.Elements,
			DependsOn:   dependsOn(i, d, jsMap),
		}
	}
	return out, jsMap
}

// dependsOn finds the jobscripts covering earlier actions of this
// jobscript's elements.
func dependsOn(jsIdx int, d Descriptor, jsMap [][]int) []int {
	var deps []int
	for elemIdx, actIdxs := range d.Elements {
		for _, actIdx := range actIdxs {
			for earlier := 0; earlier < actIdx; earlier++ {
				dep := jsMap[earlier][elemIdx]
				if dep >= 0 && dep != jsIdx && !slices.Contains(deps, dep) {
					deps = append(deps, dep)
				}
			}
		}
	}
	slices.Sort(deps)
	return deps
}

// PendingRunsResourceFunc builds a ResourceFunc for one task from its
// unsubmitted runs: cell (action, element) is live when the element's latest
// iteration holds a run for that action which has not been assigned to a
// submission and is not skipped.
func PendingRunsResourceFunc(ctx context.Context, s *store.Store, taskID int, specFor func(actIdx, elemIdx int) record.ResourceSpec) (ResourceFunc, int, int, error) {
	views, err := s.GetTaskElements(ctx, taskID)
	if err != nil {
		return nil, 0, 0, err
	}
	numActions := 0
	pending := map[[2]int]bool{}
	for elemIdx, view := range views {
		if len(view.Iterations) == 0 {
			continue
		}
		latest := view.Iterations[len(view.Iterations)-1]
		for actIdx, runs := range latest.Runs {
			if actIdx+1 > numActions {
				numActions = actIdx + 1
			}
			for _, run := range runs {
				if !run.Submitted() && !run.Skip {
					pending[[2]int{actIdx, elemIdx}] = true
				}
			}
		}
	}
	fn := func(actIdx, elemIdx int) (record.ResourceSpec, bool) {
		if !pending[[2]int{actIdx, elemIdx}] {
			return record.ResourceSpec{}, false
		}
		return specFor(actIdx, elemIdx), true
	}
	return fn, numActions, len(views), nil
}
