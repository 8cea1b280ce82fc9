package record

import (
	"fmt"
	"maps"
)

// ParamSource records the provenance of one parameter value: where it came
// from (a task input, a run output, a default) and which entities produced
// it. A source can be amended after creation; amendments merge field-wise
// over the existing source, they never replace it wholesale.
type ParamSource struct {
	Type         string `json:"type,omitempty"`
	TaskInsertID *int   `json:"task_insert_id,omitempty"`
	ElementIdx   *int   `json:"element_idx,omitempty"`
	RunID        *int   `json:"run_id,omitempty"`
	ActionIdx    *int   `json:"action_idx,omitempty"`
	Path         string `json:"path,omitempty"`
}

// Merge returns s with the non-zero fields of o applied over it.
func (s ParamSource) Merge(o ParamSource) ParamSource {
	if o.Type != "" {
		s.Type = o.Type
	}
	if o.TaskInsertID != nil {
		s.TaskInsertID = o.TaskInsertID
	}
	if o.ElementIdx != nil {
		s.ElementIdx = o.ElementIdx
	}
	if o.RunID != nil {
		s.RunID = o.RunID
	}
	if o.ActionIdx != nil {
		s.ActionIdx = o.ActionIdx
	}
	if o.Path != "" {
		s.Path = o.Path
	}
	return s
}

// FileRef points a parameter at a file in the workflow content area instead
// of an inline payload.
type FileRef struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Contents  string `json:"contents,omitempty"`
	Extension string `json:"extension,omitempty"`
	Store     bool   `json:"store"`
}

// Parameter is one unit of value data. It is created set or unset; the
// unset→set transition happens exactly once. The payload is either inline
// data or a file reference, never both.
type Parameter struct {
	ID        int         `json:"id"`
	IsPending bool        `json:"-"`
	IsSet     bool        `json:"is_set"`
	Data      any         `json:"data,omitempty"`
	File      *FileRef    `json:"file,omitempty"`
	Source    ParamSource `json:"source"`
}

// SetData returns a copy with inline data set. Re-setting an already-set
// parameter is an error and leaves the receiver unchanged.
func (p Parameter) SetData(value any) (Parameter, error) {
	if p.IsSet {
		return Parameter{}, fmt.Errorf("parameter ID %d is already set", p.ID)
	}
	p.IsSet = true
	p.Data = value
	p.File = nil
	return p, nil
}

// SetFile returns a copy with a file reference set. Re-setting an
// already-set parameter is an error.
func (p Parameter) SetFile(ref FileRef) (Parameter, error) {
	if p.IsSet {
		return Parameter{}, fmt.Errorf("parameter ID %d is already set", p.ID)
	}
	p.IsSet = true
	p.Data = nil
	p.File = &ref
	return p, nil
}

// UpdateSource returns a copy with src merged over the existing source.
func (p Parameter) UpdateSource(src ParamSource) Parameter {
	p.Source = p.Source.Merge(src)
	return p
}

// TemplateComponents is the persisted template-components document: component
// type name → component hash → component document.
type TemplateComponents map[string]map[string]map[string]any

// Clone returns a deep copy (two levels; leaf documents are shared).
func (tc TemplateComponents) Clone() TemplateComponents {
	out := make(TemplateComponents, len(tc))
	for typ, byHash := range tc {
		out[typ] = maps.Clone(byHash)
	}
	return out
}
