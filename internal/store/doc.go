// Package store provides the staged-commit persistent store for workflow
// execution graphs.
//
// The store coordinates three layers:
//   - Pending stage: an in-memory buffer of not-yet-durable creations and
//     mutations, addressed by the same IDs the durable store will use.
//   - Backends: interchangeable durable encodings, a plain hierarchical
//     JSON document store and a SQLite store with chunked binary storage
//     for bulk numeric parameter data.
//   - Commit protocol: pending buckets are applied in a fixed declared
//     order, grouped by the named storage resources each step touches, so a
//     costly resource (a file handle, a database transaction) is opened once
//     per contiguous group rather than once per step.
//
// IDs are store-allocated: the next ID per kind is the persisted count plus
// the pending count, so the ID space depends only on allocation order and
// entities can cross-reference before anything is durable.
//
// Reads merge the pending stage: every read splits the requested IDs into
// durable and pending subsets, fetches both, and folds pending partial
// updates over durable records. Nothing partially committed is ever
// visible; commit is explicit.
//
// Commits are bucket-atomic. A failing commit step leaves its bucket
// intact, so a retried commit resubmits exactly the unapplied work, while
// buckets fully applied in earlier groups of the same commit stay applied.
//
// One process mutates a workflow at a time. Commit groups run sequentially
// because each may hold an exclusive resource handle.
package store
