// Package depcache bulk-computes the dependency closure between runs,
// iterations and elements of one workflow.
//
// The naive per-call recursive dependency walk is unacceptable once a
// workflow has thousands of elements; building the whole table once
// amortises the cost across all operations of one batch. A cache never
// changes after Build: rebuild after any mutating batch.
package depcache

import (
	"context"
	"strings"

	"github.com/calderwm/gridflow/internal/store"
)

type intSet map[int]struct{}

func (s intSet) add(v int) { s[v] = struct{}{} }

// Cache holds the dependency tables of one workflow snapshot, keyed by
// entity ID. Dependency direction: a run depends on the runs that produced
// the parameters it consumes.
type Cache struct {
	runDeps          map[int]intSet
	runDependents    map[int]intSet
	iterRunDeps      map[int]intSet
	iterIterDeps     map[int]intSet
	elemIterDeps     map[int]intSet
	elemElemDeps     map[int]intSet
	elemDependents   map[int]intSet
	elemDependentsTC map[int]intSet
}

// Build derives the full dependency closure from parameter provenance:
// which run produced the parameter each run consumes, folded upward through
// iterations to elements, then closed transitively over elements.
func Build(ctx context.Context, s *store.Store) (*Cache, error) {
	var c *Cache
	err := s.WithCache(func() error {
		var berr error
		c, berr = build(ctx, s)
		return berr
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func build(ctx context.Context, s *store.Store) (*Cache, error) {
	numRuns, err := s.NumRuns(ctx)
	if err != nil {
		return nil, err
	}
	numIters, err := s.NumIterations(ctx)
	if err != nil {
		return nil, err
	}
	numElems, err := s.NumElements(ctx)
	if err != nil {
		return nil, err
	}
	numParams, err := s.NumParameters(ctx)
	if err != nil {
		return nil, err
	}

	runs, err := s.GetRuns(ctx, seq(numRuns))
	if err != nil {
		return nil, err
	}
	iters, err := s.GetElementIterations(ctx, seq(numIters))
	if err != nil {
		return nil, err
	}
	elems, err := s.GetElements(ctx, seq(numElems))
	if err != nil {
		return nil, err
	}
	sources, err := s.GetParameterSources(ctx, seq(numParams))
	if err != nil {
		return nil, err
	}

	c := &Cache{
		runDeps:          map[int]intSet{},
		runDependents:    map[int]intSet{},
		iterRunDeps:      map[int]intSet{},
		iterIterDeps:     map[int]intSet{},
		elemIterDeps:     map[int]intSet{},
		elemElemDeps:     map[int]intSet{},
		elemDependents:   map[int]intSet{},
		elemDependentsTC: map[int]intSet{},
	}

	// Run-level edges from parameter provenance. Repeat counters carry no
	// data dependency.
	for runID, run := range runs {
		deps := intSet{}
		for path, ref := range run.DataIdx {
			if strings.HasPrefix(path, "repeats.") {
				continue
			}
			for _, paramID := range ref.All() {
				if paramID < 0 || paramID >= numParams {
					continue
				}
				if src := sources[paramID].RunID; src != nil && *src != runID {
					deps.add(*src)
				}
			}
		}
		c.runDeps[runID] = deps
	}
	for runID := range runs {
		c.runDependents[runID] = intSet{}
	}
	for runID, deps := range c.runDeps {
		for dep := range deps {
			c.runDependents[dep].add(runID)
		}
	}

	// Fold run edges up to iterations.
	runIterID := map[int]int{}
	for iterID, iter := range iters {
		deps := intSet{}
		for _, runIDs := range iter.RunIDs {
			for _, runID := range runIDs {
				runIterID[runID] = iterID
				for dep := range c.runDeps[runID] {
					deps.add(dep)
				}
			}
		}
		c.iterRunDeps[iterID] = deps
	}
	for iterID, runDeps := range c.iterRunDeps {
		deps := intSet{}
		for runID := range runDeps {
			deps.add(runIterID[runID])
		}
		c.iterIterDeps[iterID] = deps
	}

	// Fold iteration edges up to elements.
	iterElemID := map[int]int{}
	for elemID, elem := range elems {
		deps := intSet{}
		for _, iterID := range elem.IterationIDs {
			iterElemID[iterID] = elemID
			for dep := range c.iterIterDeps[iterID] {
				deps.add(dep)
			}
		}
		c.elemIterDeps[elemID] = deps
	}
	for elemID, iterDeps := range c.elemIterDeps {
		deps := intSet{}
		for iterID := range iterDeps {
			deps.add(iterElemID[iterID])
		}
		c.elemElemDeps[elemID] = deps
	}

	for elemID := range elems {
		c.elemDependents[elemID] = intSet{}
	}
	for elemID, deps := range c.elemElemDeps {
		for dep := range deps {
			c.elemDependents[dep].add(elemID)
		}
	}

	// Transitive closure of element dependents, to a fix point.
	for elemID := range elems {
		closure := intSet{}
		stack := make([]int, 0, len(c.elemDependents[elemID]))
		for dep := range c.elemDependents[elemID] {
			stack = append(stack, dep)
		}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, seen := closure[cur]; seen || cur == elemID {
				continue
			}
			closure.add(cur)
			for next := range c.elemDependents[cur] {
				stack = append(stack, next)
			}
		}
		c.elemDependentsTC[elemID] = closure
	}

	return c, nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
