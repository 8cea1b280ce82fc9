// Package template decodes and validates workflow templates.
//
// Templates are authored in YAML and validated against an embedded CUE
// schema before a workflow is created, so a malformed template fails before
// anything is persisted.
package template

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/calderwm/gridflow/internal/record"
)

//go:embed schema.cue
var schemaSrc string

// Sequence assigns one input path a list of values, one per element along
// the sequence axis.
type Sequence struct {
	Path         string `yaml:"path" json:"path"`
	Values       []any  `yaml:"values" json:"values"`
	NestingOrder int    `yaml:"nesting_order" json:"nesting_order"`
}

// Task is one node of the template DAG.
type Task struct {
	Schema    string                         `yaml:"schema" json:"schema"`
	Inputs    map[string]any                 `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Sequences []Sequence                     `yaml:"sequences,omitempty" json:"sequences,omitempty"`
	Resources map[string]record.ResourceSpec `yaml:"resources,omitempty" json:"resources,omitempty"`
	// Actions is the number of schema actions the task runs per element.
	Actions int `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// Loop names a contiguous ascending range of task indices to iterate.
type Loop struct {
	Name          string `yaml:"name" json:"name"`
	Tasks         []int  `yaml:"tasks" json:"tasks"`
	NumIterations int    `yaml:"num_iterations" json:"num_iterations"`
}

// Template is a decoded workflow template.
type Template struct {
	Name      string                         `yaml:"name" json:"name"`
	Tasks     []Task                         `yaml:"tasks" json:"tasks"`
	Loops     []Loop                         `yaml:"loops,omitempty" json:"loops,omitempty"`
	Resources map[string]record.ResourceSpec `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// LoadFile reads, decodes and validates a YAML template file.
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return Load(data)
}

// Load decodes and validates a YAML template.
func Load(data []byte) (*Template, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	return &t, nil
}

// Validate unifies a decoded template document against the embedded schema.
func Validate(doc map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile template schema: %w", err)
	}
	val := schema.Unify(ctx.Encode(doc))
	if err := val.Validate(); err != nil {
		return fmt.Errorf("invalid template: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// ResourcesFor resolves the resource requirements of one task action,
// falling back to the task's "any" scope and then the template-level
// defaults. A zero spec means "no requirements declared".
func (t *Template) ResourcesFor(taskIdx, actIdx int) record.ResourceSpec {
	if taskIdx < 0 || taskIdx >= len(t.Tasks) {
		return record.ResourceSpec{}
	}
	task := t.Tasks[taskIdx]
	scope := fmt.Sprintf("action_%d", actIdx)
	if spec, ok := task.Resources[scope]; ok {
		return spec
	}
	if spec, ok := task.Resources["any"]; ok {
		return spec
	}
	if spec, ok := t.Resources["any"]; ok {
		return spec
	}
	return record.ResourceSpec{}
}

// NumActions returns the action count of one task, defaulting to a single
// action when the template does not say.
func (t *Template) NumActions(taskIdx int) int {
	if taskIdx < 0 || taskIdx >= len(t.Tasks) {
		return 0
	}
	if n := t.Tasks[taskIdx].Actions; n > 0 {
		return n
	}
	return 1
}

// Doc re-encodes the template as a plain document for persistence.
func (t *Template) Doc() (map[string]any, error) {
	data, err := yaml.Marshal(t)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
