package template

import (
	"fmt"
	"sort"
)

// ElementSpec is one expanded element of a task: the per-sequence value
// indices it was generated from and its resolved input values.
type ElementSpec struct {
	SeqIdx map[string]int
	Inputs map[string]any
}

// Expand generates the elements of one task from its sequences. Sequences
// sharing a nesting order are zipped and must have equal lengths; distinct
// nesting orders multiply, outermost (lowest order) first. A task with no
// sequences yields a single element.
func Expand(task Task) ([]ElementSpec, error) {
	if len(task.Sequences) == 0 {
		inputs := map[string]any{}
		for k, v := range task.Inputs {
			inputs[k] = v
		}
		return []ElementSpec{{SeqIdx: map[string]int{}, Inputs: inputs}}, nil
	}

	byOrder := map[int][]Sequence{}
	for _, seq := range task.Sequences {
		if len(seq.Values) == 0 {
			return nil, fmt.Errorf("sequence %q has no values", seq.Path)
		}
		byOrder[seq.NestingOrder] = append(byOrder[seq.NestingOrder], seq)
	}
	orders := make([]int, 0, len(byOrder))
	for order := range byOrder {
		orders = append(orders, order)
	}
	sort.Ints(orders)

	lengths := make([]int, len(orders))
	for i, order := range orders {
		group := byOrder[order]
		n := len(group[0].Values)
		for _, seq := range group[1:] {
			if len(seq.Values) != n {
				return nil, fmt.Errorf(
					"sequences %q and %q share nesting order %d but have %d and %d values",
					group[0].Path, seq.Path, order, n, len(seq.Values))
			}
		}
		lengths[i] = n
	}

	total := 1
	for _, n := range lengths {
		total *= n
	}

	elements := make([]ElementSpec, 0, total)
	idx := make([]int, len(orders))
	for {
		spec := ElementSpec{SeqIdx: map[string]int{}, Inputs: map[string]any{}}
		for k, v := range task.Inputs {
			spec.Inputs[k] = v
		}
		for i, order := range orders {
			for _, seq := range byOrder[order] {
				spec.SeqIdx[seq.Path] = idx[i]
				spec.Inputs[seq.Path] = seq.Values[idx[i]]
			}
		}
		elements = append(elements, spec)

		// Odometer increment, innermost (last) order fastest.
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < lengths[pos] {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return elements, nil
}
