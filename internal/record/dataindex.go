package record

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ParamRef is the parameter ID (or grouped IDs) backing one data-index path.
//
// A path normally resolves to a single parameter ID. Grouped paths (one value
// gathered from several elements) resolve to an ordered ID list instead. The
// JSON form is a bare number for the single case and an array for the grouped
// case.
type ParamRef struct {
	ID      int
	IDs     []int
	Grouped bool
}

// SingleRef returns a ParamRef for one parameter ID.
func SingleRef(id int) ParamRef {
	return ParamRef{ID: id}
}

// GroupRef returns a ParamRef for an ordered group of parameter IDs.
func GroupRef(ids []int) ParamRef {
	return ParamRef{IDs: slices.Clone(ids), Grouped: true}
}

// All returns every parameter ID referenced, grouped or not.
func (r ParamRef) All() []int {
	if r.Grouped {
		return slices.Clone(r.IDs)
	}
	return []int{r.ID}
}

// Equal reports whether two refs point at the same parameter ID(s).
func (r ParamRef) Equal(o ParamRef) bool {
	if r.Grouped != o.Grouped {
		return false
	}
	if r.Grouped {
		return slices.Equal(r.IDs, o.IDs)
	}
	return r.ID == o.ID
}

// MarshalJSON encodes a single ref as a number and a grouped ref as an array.
func (r ParamRef) MarshalJSON() ([]byte, error) {
	if r.Grouped {
		return json.Marshal(r.IDs)
	}
	return json.Marshal(r.ID)
}

// UnmarshalJSON accepts either a number or an array of numbers.
func (r *ParamRef) UnmarshalJSON(data []byte) error {
	var id int
	if err := json.Unmarshal(data, &id); err == nil {
		*r = ParamRef{ID: id}
		return nil
	}
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("param ref must be an integer or integer array: %w", err)
	}
	*r = ParamRef{IDs: ids, Grouped: true}
	return nil
}

// DataIndex maps a parameter path (e.g. "inputs.x") to the parameter ID(s)
// backing it. Sub-parameter paths ("inputs.x.a") are additive: they never
// replace their parent path's entry.
type DataIndex map[string]ParamRef

// Clone returns a deep copy.
func (d DataIndex) Clone() DataIndex {
	if d == nil {
		return nil
	}
	out := make(DataIndex, len(d))
	for k, v := range d {
		if v.Grouped {
			v.IDs = slices.Clone(v.IDs)
		}
		out[k] = v
	}
	return out
}

// ParamIDs returns every parameter ID referenced by the index, in
// unspecified order.
func (d DataIndex) ParamIDs() []int {
	var ids []int
	for _, ref := range d {
		ids = append(ids, ref.All()...)
	}
	return ids
}
