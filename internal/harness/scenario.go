package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a workflow template to
// build, lifecycle operations to apply, and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the golden file
	// name when the scenario runs under RunWithGolden.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend selects the persistence encoding, "json" (default) or
	// "sqlite".
	Backend string `yaml:"backend,omitempty"`

	// Template is the inline workflow template document (YAML).
	Template string `yaml:"template"`

	// SkipRuns lists run IDs to mark skipped after the workflow is built.
	// Skipped runs are excluded from jobscript resolution.
	SkipRuns []int `yaml:"skip_runs,omitempty"`

	// Assertions validate the final state and resolved jobscripts.
	// Supported types: count, run_skipped, jobscript_depends.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one aspect of the scenario outcome.
type Assertion struct {
	// Type specifies the assertion type:
	// - "count": an entity kind has exactly Count instances
	// - "run_skipped": run Run carries the skip flag
	// - "jobscript_depends": a jobscript has dependencies DependsOn
	Type string `yaml:"type"`

	// Kind is the entity kind counted by "count": tasks, elements,
	// iterations, runs, parameters, or jobscripts.
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected instance count (used by "count").
	Count int `yaml:"count,omitempty"`

	// Run is the run ID checked by "run_skipped".
	Run int `yaml:"run,omitempty"`

	// Task and Jobscript locate the jobscript checked by
	// "jobscript_depends": Jobscript is an index within the task's
	// resolved jobscript list.
	Task      int `yaml:"task,omitempty"`
	Jobscript int `yaml:"jobscript,omitempty"`

	// DependsOn is the expected dependency list (used by
	// "jobscript_depends"). An absent list asserts no dependencies.
	DependsOn []int `yaml:"depends_on,omitempty"`
}

// Assertion type constants.
const (
	AssertCount            = "count"
	AssertRunSkipped       = "run_skipped"
	AssertJobscriptDepends = "jobscript_depends"
)

// LoadScenario reads and parses a scenario YAML file. Returns an error if
// the file doesn't exist, is malformed, contains unknown fields (typos), or
// is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Backend {
	case "", "json", "sqlite":
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}

	if s.Template == "" {
		return fmt.Errorf("template is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertCount:
			switch a.Kind {
			case "tasks", "elements", "iterations", "runs", "parameters", "jobscripts":
			default:
				return fmt.Errorf("assertions[%d]: unknown count kind %q", i, a.Kind)
			}
		case AssertRunSkipped, AssertJobscriptDepends:
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}

	return nil
}
