package record

import (
	"slices"
)

// LoopIterEntry records, for one combination of parent-loop iteration
// indices, how many iterations of this loop have been added. The key always
// has one component per parent loop, so a child loop's keys are one longer
// than its immediate parent's.
type LoopIterEntry struct {
	Parents []int `json:"parents"`
	Count   int   `json:"count"`
}

// Loop is an iterative sub-range of contiguous tasks. Iteration counts grow
// monotonically per parent-index key; parents may be extended when a loop is
// nested inside a later-added outer loop.
type Loop struct {
	Index              int             `json:"index"`
	IsPending          bool            `json:"-"`
	Template           map[string]any  `json:"template"`
	IterableParameters map[string]any  `json:"iterable_parameters"`
	Parents            []string        `json:"parents"`
	NumAddedIterations []LoopIterEntry `json:"num_added_iterations"`
}

// WithNumAddedIterations returns a copy with the iteration-count entries
// replaced. The replacement must not shrink any existing entry's count.
func (l Loop) WithNumAddedIterations(entries []LoopIterEntry) Loop {
	l.NumAddedIterations = cloneIterEntries(entries)
	return l
}

// WithParents returns a copy with the parent loop names replaced.
func (l Loop) WithParents(parents []string) Loop {
	l.Parents = slices.Clone(parents)
	return l
}

// IterCount returns the added-iteration count for one parent-index key, or
// zero when the key has no entry.
func (l Loop) IterCount(parents []int) int {
	for _, e := range l.NumAddedIterations {
		if slices.Equal(e.Parents, parents) {
			return e.Count
		}
	}
	return 0
}

func cloneIterEntries(entries []LoopIterEntry) []LoopIterEntry {
	out := make([]LoopIterEntry, len(entries))
	for i, e := range entries {
		out[i] = LoopIterEntry{Parents: slices.Clone(e.Parents), Count: e.Count}
	}
	return out
}
