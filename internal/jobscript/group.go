// Package jobscript turns the resource requirements of pending action runs
// into scheduler submission units.
//
// The grouping algorithm is a single deterministic forward pass over the
// action-by-element resource matrix. It is not a globally optimal bin
// packing: it never reorders actions or re-examines abandoned grouping
// opportunities. Jobscript count is a throughput concern, not a correctness
// one, so the simple pass is sufficient.
package jobscript

import (
	"slices"
	"sort"
)

// Descriptor is one grouped jobscript: a resource-signature index and the
// action indices it covers per element.
type Descriptor struct {
	Resources int           `json:"resources"`
	Elements  map[int][]int `json:"elements"`
}

// GroupResourceMap groups a resource matrix R[action][element] into
// jobscripts. Each cell holds an index into a deduplicated resource
// signature list, or noneVal where the (action, element) pair has no pending
// run. It returns the jobscripts in creation order and a same-shaped map
// J[action][element] recording which jobscript covers each cell (-1 for
// none).
//
// Actions are processed top to bottom; within one action, signatures are
// tried in ascending index order. Each jobscript greedily extends downward
// into strictly later actions for the same elements wherever the per-column
// signature is unchanged across the contiguous action range. "No run" cells
// are transparent for extension purposes but never allocated themselves.
func GroupResourceMap(resourceMap [][]int, noneVal int) ([]Descriptor, [][]int) {
	numActs := len(resourceMap)
	if numActs == 0 {
		return nil, nil
	}
	numElems := len(resourceMap[0])

	// Work on a copy: none cells get overwritten during the scan.
	m := make([][]int, numActs)
	nones := make([][]bool, numActs)
	allocated := make([][]bool, numActs)
	jsMap := make([][]int, numActs)
	seen := map[int]struct{}{}
	var resourceIdx []int
	for i, row := range resourceMap {
		m[i] = slices.Clone(row)
		nones[i] = make([]bool, numElems)
		allocated[i] = make([]bool, numElems)
		jsMap[i] = make([]int, numElems)
		for j, v := range row {
			nones[i][j] = v == noneVal
			jsMap[i][j] = -1
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				resourceIdx = append(resourceIdx, v)
			}
		}
	}
	sort.Ints(resourceIdx)

	allAllocated := func() bool {
		for i := range allocated {
			for j, ok := range allocated[i] {
				if !ok && !nones[i][j] {
					return false
				}
			}
		}
		return true
	}

	var jobscripts []Descriptor
	stop := false
	for actIdx := 0; actIdx < numActs && !stop; actIdx++ {
		for _, resI := range resourceIdx {
			if resI == noneVal {
				continue
			}
			if !slices.Contains(m[actIdx], resI) {
				continue
			}

			// None cells take the current signature so they read as
			// "unchanged" in the column-constancy scan below.
			for i := range m {
				for j := range m[i] {
					if nones[i][j] {
						m[i][j] = resI
					}
				}
			}

			// diff[k][j] == 0 means column j's signature is constant from
			// actIdx through actIdx+1+k.
			diff := make([][]int, numActs-actIdx-1)
			for k := range diff {
				diff[k] = make([]int, numElems)
				for j := 0; j < numElems; j++ {
					d := m[actIdx+k+1][j] - m[actIdx+k][j]
					if d < 0 {
						d = -d
					}
					if k > 0 {
						d += diff[k-1][j]
					}
					diff[k][j] = d
				}
			}

			var elemIdx, actElemIdx []int
			for j := 0; j < numElems; j++ {
				if m[actIdx][j] == resI && !allocated[actIdx][j] {
					elemIdx = append(elemIdx, j)
					if !nones[actIdx][j] {
						actElemIdx = append(actElemIdx, j)
					}
				}
			}

			type cell struct{ act, elem int }
			var cells []cell
			elements := map[int][]int{}
			for _, j := range actElemIdx {
				elements[j] = []int{actIdx}
				cells = append(cells, cell{actIdx, j})
			}
			// Extend downward through contiguous equal-signature ranges.
			for k := range diff {
				for _, j := range elemIdx {
					if diff[k][j] == 0 && !nones[actIdx+1+k][j] {
						elements[j] = append(elements[j], actIdx+1+k)
						cells = append(cells, cell{actIdx + 1 + k, j})
					}
				}
			}
			if len(cells) == 0 {
				continue
			}

			for _, c := range cells {
				allocated[c.act][c.elem] = true
				jsMap[c.act][c.elem] = len(jobscripts)
			}
			jobscripts = append(jobscripts, Descriptor{Resources: resI, Elements: elements})

			if allAllocated() {
				stop = true
				break
			}
		}
	}
	return jobscripts, jsMap
}
