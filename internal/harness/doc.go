// Package harness provides conformance testing for workflow scenarios.
//
// A scenario describes a workflow template, the lifecycle operations to
// apply after the workflow is built, and assertions over the resulting
// persistent state and resolved jobscripts.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	backend: json
//	template: |
//	  name: sweep
//	  tasks:
//	    - schema: simulate
//	      sequences:
//	        - path: inputs.x
//	          values: [1, 2, 3]
//	skip_runs: [2]
//	assertions:
//	  - type: count
//	    kind: elements
//	    count: 3
//	  - type: run_skipped
//	    run: 2
//	  - type: jobscript_depends
//	    task: 0
//	    jobscript: 1
//	    depends_on: [0]
//
// # Assertion Types
//
//   - count: an entity kind (tasks, elements, iterations, runs, parameters,
//     jobscripts) has exactly N instances
//   - run_skipped: a run carries the skip flag
//   - jobscript_depends: a resolved jobscript has the given dependencies
//
// # Deterministic Testing
//
// Scenario execution stages every entity in template order, so entity IDs,
// jobscript grouping, and the state snapshot are identical across runs. The
// snapshot deliberately excludes workflow IDs and timestamps; it is suitable
// for golden file comparison via RunWithGolden.
package harness
