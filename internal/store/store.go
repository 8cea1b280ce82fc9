package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/calderwm/gridflow/internal/record"
)

// AppVersion is stamped into every new workflow's creation info.
const AppVersion = "0.1.0"

// Store coordinates the pending stage, the read caches and one durable
// backend for a single workflow.
//
// Thread-safety model: the store is single-writer. One goroutine performs
// mutations and commits; there is no internal locking. Reads issued after a
// write in the same goroutine always observe the write.
type Store struct {
	backend Backend
	pending *pendingChanges
	groups  []commitGroup
	logger  *slog.Logger

	// Read caches, used only inside WithCache; keyed by ID per kind and
	// invalidated precisely on commits of that kind and on pending
	// mutations that would change the cached value.
	useCache      bool
	taskCache     map[int]record.Task
	elementCache  map[int]record.Element
	iterCache     map[int]record.Iteration
	runCache      map[int]record.Run
	paramCache    map[int]record.Parameter
	paramSrcCache map[int]record.ParamSource
	numTasksCache *int
	numRunsCache  *int
}

// New wraps an opened backend in a store coordinator.
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		pending: newPendingChanges(),
		groups:  groupCommitSteps(commitSteps, backend.ResourceMap()),
		logger:  logger.With("backend", backend.Name()),
	}
}

// CreateOptions configures a new empty workflow store.
type CreateOptions struct {
	Path               string
	Name               string
	Backend            string // "json" or "sqlite"
	Template           map[string]any
	TemplateComponents record.TemplateComponents
}

// Create writes an empty persistent workflow and returns an open store on
// it. The creation info carries a UUIDv7 workflow ID, so workflow IDs sort
// by creation time.
func Create(ctx context.Context, opts CreateOptions, logger *slog.Logger) (*Store, error) {
	info := record.CreationInfo{
		WorkflowID: uuid.Must(uuid.NewV7()).String(),
		AppVersion: AppVersion,
		CreateTime: time.Now().UTC().Format(record.TimestampFormat),
	}
	var backend Backend
	var err error
	switch opts.Backend {
	case "", "json":
		backend, err = createJSONBackend(opts.Path, opts.Name, info, opts.Template, opts.TemplateComponents)
	case "sqlite":
		backend, err = createSQLiteBackend(ctx, opts.Path, opts.Name, info, opts.Template, opts.TemplateComponents)
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	return New(backend, logger), nil
}

// Open opens an existing workflow directory, detecting the backend encoding
// from its contents.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	backend, err := detectBackend(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open workflow: %w", err)
	}
	return New(backend, logger), nil
}

// Close releases the backend. Pending changes that were not saved are
// discarded; nothing partially committed is ever visible.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Backend exposes the underlying backend. Use with caution - prefer store
// methods when available.
func (s *Store) Backend() Backend {
	return s.backend
}

// HasPending returns true if any staged mutation awaits commit.
func (s *Store) HasPending() bool {
	return s.pending.hasPending()
}

// WherePending names the non-empty pending buckets.
func (s *Store) WherePending() []string {
	return s.pending.wherePending()
}

// Save commits all pending changes. It is a no-op when the stage is empty,
// and otherwise triggers exactly one CommitAll.
func (s *Store) Save(ctx context.Context) error {
	if !s.pending.hasPending() {
		return nil
	}
	return s.CommitAll(ctx)
}

// DiscardPending drops every staged mutation without committing.
func (s *Store) DiscardPending() {
	s.pending.reset()
}

// WithCache enables the read caches for the duration of fn, then resets
// them. Bulk operations (dependency-cache builds, loop-iteration additions)
// use this to avoid refetching the same records.
func (s *Store) WithCache(fn func() error) error {
	s.useCache = true
	s.resetCache()
	defer func() {
		s.useCache = false
		s.resetCache()
	}()
	return fn()
}

func (s *Store) resetCache() {
	s.taskCache = map[int]record.Task{}
	s.elementCache = map[int]record.Element{}
	s.iterCache = map[int]record.Iteration{}
	s.runCache = map[int]record.Run{}
	s.paramCache = map[int]record.Parameter{}
	s.paramSrcCache = map[int]record.ParamSource{}
	s.numTasksCache = nil
	s.numRunsCache = nil
}

// cachedItems splits ids into cache hits and misses.
func cachedItems[T any](useCache bool, cache map[int]T, ids []int) (map[int]T, []int) {
	if !useCache {
		return map[int]T{}, ids
	}
	hits := map[int]T{}
	var misses []int
	for _, id := range ids {
		if v, ok := cache[id]; ok {
			hits[id] = v
		} else {
			misses = append(misses, id)
		}
	}
	return hits, misses
}

// NumTasks returns the total task count, pending included.
func (s *Store) NumTasks(ctx context.Context) (int, error) {
	n, err := s.numPersistentTasks(ctx)
	if err != nil {
		return 0, err
	}
	return n + len(s.pending.addTasks), nil
}

func (s *Store) numPersistentTasks(ctx context.Context) (int, error) {
	if s.useCache && s.numTasksCache != nil {
		return *s.numTasksCache, nil
	}
	n, err := s.backend.NumTasks(ctx)
	if err != nil {
		return 0, err
	}
	if s.useCache {
		s.numTasksCache = &n
	}
	return n, nil
}

// NumAddedTasks counts every task ever added, pending included. Task IDs
// are allocated from this counter, so a removed task never frees its ID.
func (s *Store) NumAddedTasks(ctx context.Context) (int, error) {
	n, err := s.backend.NumAddedTasks(ctx)
	if err != nil {
		return 0, err
	}
	return n + len(s.pending.addTasks), nil
}

// NumElements returns the total element count, pending included.
func (s *Store) NumElements(ctx context.Context) (int, error) {
	n, err := s.backend.NumElements(ctx)
	if err != nil {
		return 0, err
	}
	return n + len(s.pending.addElements), nil
}

// NumIterations returns the total element-iteration count, pending included.
func (s *Store) NumIterations(ctx context.Context) (int, error) {
	n, err := s.backend.NumIterations(ctx)
	if err != nil {
		return 0, err
	}
	return n + len(s.pending.addIterations), nil
}

// NumRuns returns the total run count, pending included.
func (s *Store) NumRuns(ctx context.Context) (int, error) {
	n, err := s.numPersistentRuns(ctx)
	if err != nil {
		return 0, err
	}
	return n + len(s.pending.addRuns), nil
}

func (s *Store) numPersistentRuns(ctx context.Context) (int, error) {
	if s.useCache && s.numRunsCache != nil {
		return *s.numRunsCache, nil
	}
	n, err := s.backend.NumRuns(ctx)
	if err != nil {
		return 0, err
	}
	if s.useCache {
		s.numRunsCache = &n
	}
	return n, nil
}

// NumParameters returns the total parameter count, pending included.
func (s *Store) NumParameters(ctx context.Context) (int, error) {
	n, err := s.backend.NumParameters(ctx)
	if err != nil {
		return 0, err
	}
	return n + len(s.pending.addParameters), nil
}

// NumLoops returns the total loop count, pending included.
func (s *Store) NumLoops(ctx context.Context) (int, error) {
	n, err := s.backend.NumLoops(ctx)
	if err != nil {
		return 0, err
	}
	return n + len(s.pending.addLoops), nil
}

// NumSubmissions returns the total submission count, pending included.
func (s *Store) NumSubmissions(ctx context.Context) (int, error) {
	n, err := s.backend.NumSubmissions(ctx)
	if err != nil {
		return 0, err
	}
	return n + len(s.pending.addSubmissions), nil
}

// taskNumElements returns the element count of one task, pending included;
// element indices within a task are allocated from it.
func (s *Store) taskNumElements(ctx context.Context, taskID int) (int, error) {
	tasks, err := s.GetTasksByID(ctx, []int{taskID})
	if err != nil {
		return 0, err
	}
	return len(tasks[0].ElementIDs), nil
}

// CreationInfo returns the workflow's creation info.
func (s *Store) CreationInfo(ctx context.Context) (record.CreationInfo, error) {
	return s.backend.GetCreationInfo(ctx)
}
