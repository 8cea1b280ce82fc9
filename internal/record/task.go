package record

import (
	"maps"
	"slices"
)

// Task is one node of the template DAG.
//
// The element_IDs list only grows; committed prefixes are never reordered.
// Template is the raw task template document, carried for encoding into the
// workflow template; it is not needed when decoding from the store.
type Task struct {
	ID         int            `json:"id"`
	Index      int            `json:"index"`
	IsPending  bool           `json:"-"`
	ElementIDs []int          `json:"element_ids"`
	Template   map[string]any `json:"-"`
}

// AppendElementIDs returns a copy with additional element IDs.
func (t Task) AppendElementIDs(pendIDs []int) Task {
	t.ElementIDs = append(slices.Clone(t.ElementIDs), pendIDs...)
	return t
}

// Element is one parametrised repetition of a task.
//
// SeqIdx and SrcIdx record, per parameter path, the sequence and source
// indices within the originating element set. The iteration_IDs list only
// grows.
type Element struct {
	ID           int            `json:"id"`
	IsPending    bool           `json:"-"`
	Index        int            `json:"index"`
	SetIndex     int            `json:"set_index"`
	SeqIdx       map[string]int `json:"seq_idx"`
	SrcIdx       map[string]int `json:"src_idx"`
	TaskID       int            `json:"task_id"`
	IterationIDs []int          `json:"iteration_ids"`
}

// AppendIterationIDs returns a copy with additional iteration IDs.
func (e Element) AppendIterationIDs(pendIDs []int) Element {
	e.IterationIDs = append(slices.Clone(e.IterationIDs), pendIDs...)
	return e
}

// Iteration is one loop pass over an element. It owns the data index and the
// runs for that pass.
//
// RunIDs maps schema action indices to run IDs; both the map and the ID lists
// only grow. LoopIdx maps loop names to this iteration's position within each
// enclosing loop. RunsInitialised flips to true exactly once, when the
// iteration's runs have been created.
type Iteration struct {
	ID               int            `json:"id"`
	IsPending        bool           `json:"-"`
	ElementID        int            `json:"element_id"`
	RunsInitialised  bool           `json:"runs_initialised"`
	RunIDs           map[int][]int  `json:"run_ids"`
	DataIdx          DataIndex      `json:"data_idx"`
	SchemaParameters []string       `json:"schema_parameters"`
	LoopIdx          map[string]int `json:"loop_idx,omitempty"`
}

// AppendRunIDs returns a copy with additional run IDs per action index.
func (it Iteration) AppendRunIDs(pendIDs map[int][]int) Iteration {
	runIDs := make(map[int][]int, len(it.RunIDs)+len(pendIDs))
	for actIdx, ids := range it.RunIDs {
		runIDs[actIdx] = slices.Clone(ids)
	}
	for actIdx, ids := range pendIDs {
		runIDs[actIdx] = append(runIDs[actIdx], ids...)
	}
	it.RunIDs = runIDs
	return it
}

// UpdateLoopIdx returns a copy with the loop-position map merged with
// loopIdx.
func (it Iteration) UpdateLoopIdx(loopIdx map[string]int) Iteration {
	merged := make(map[string]int, len(it.LoopIdx)+len(loopIdx))
	maps.Copy(merged, it.LoopIdx)
	maps.Copy(merged, loopIdx)
	it.LoopIdx = merged
	return it
}

// SetRunsInitialised returns a copy with RunsInitialised set.
func (it Iteration) SetRunsInitialised() Iteration {
	it.RunsInitialised = true
	return it
}
