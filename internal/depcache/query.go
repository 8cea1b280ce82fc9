package depcache

import "slices"

func sorted(s intSet) []int {
	out := make([]int, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// RunDependencies returns the IDs of the runs whose outputs the given run
// consumes.
func (c *Cache) RunDependencies(runID int) []int {
	return sorted(c.runDeps[runID])
}

// RunDependents returns the IDs of the runs that consume the given run's
// outputs.
func (c *Cache) RunDependents(runID int) []int {
	return sorted(c.runDependents[runID])
}

// IterationRunDependencies returns the IDs of the runs an iteration's own
// runs depend on.
func (c *Cache) IterationRunDependencies(iterID int) []int {
	return sorted(c.iterRunDeps[iterID])
}

// IterationDependencies returns the IDs of the iterations an iteration
// depends on.
func (c *Cache) IterationDependencies(iterID int) []int {
	return sorted(c.iterIterDeps[iterID])
}

// ElementIterationDependencies returns the IDs of the iterations an element
// depends on.
func (c *Cache) ElementIterationDependencies(elemID int) []int {
	return sorted(c.elemIterDeps[elemID])
}

// ElementDependencies returns the IDs of the elements an element directly
// depends on.
func (c *Cache) ElementDependencies(elemID int) []int {
	return sorted(c.elemElemDeps[elemID])
}

// ElementDependents returns the IDs of the elements that directly depend on
// an element.
func (c *Cache) ElementDependents(elemID int) []int {
	return sorted(c.elemDependents[elemID])
}

// ElementDependentsRecursive returns the IDs of the elements that directly
// or transitively depend on an element.
func (c *Cache) ElementDependentsRecursive(elemID int) []int {
	return sorted(c.elemDependentsTC[elemID])
}
