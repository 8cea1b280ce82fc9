// Package record defines the immutable entity snapshots persisted by the
// workflow store: tasks, elements, element iterations, action runs,
// parameters, loops, jobscripts and submissions.
//
// This package contains type definitions and pure evolve operations only.
// All other internal packages import record; record imports nothing internal.
//
// Key design constraints:
//   - Records are never mutated in place. Every mutation (appending an ID,
//     setting a timestamp, flipping a flag) returns a new copy, so a record
//     already handed to a caller remains a valid snapshot.
//   - Entity IDs are dense, monotonically increasing integers per kind,
//     allocated by the store, never by callers.
//   - ID lists (a task's element IDs, an element's iteration IDs, an
//     iteration's run IDs) are append-only.
//   - All JSON tags use snake_case.
package record
