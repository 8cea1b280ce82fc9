package store

import (
	"context"
	"time"

	"github.com/calderwm/gridflow/internal/record"
)

// ResourceAction is the mode a named storage resource is opened in.
type ResourceAction string

const (
	// ResourceRead opens a resource for reading only.
	ResourceRead ResourceAction = "read"

	// ResourceUpdate opens a resource for modification; closing flushes.
	ResourceUpdate ResourceAction = "update"
)

// RunStart is the staged payload of one run-start lifecycle update.
type RunStart struct {
	Time     time.Time
	Snapshot record.Snapshot
	Hostname string
}

// RunEnd is the staged payload of one run-end lifecycle update.
type RunEnd struct {
	Time     time.Time
	Snapshot record.Snapshot
	ExitCode int
	Success  bool
}

// SetParam is the staged payload of one parameter unset→set transition.
type SetParam struct {
	Value any
	File  *record.FileRef
}

// Backend is one durable encoding of a workflow store. Implementations:
// jsonBackend (plain hierarchical document store) and sqliteBackend (chunked
// binary array store for bulk numeric parameter data).
//
// Append/update methods are called only between OpenResource and
// CloseResource for the resource(s) named in the backend's resource map;
// read methods open resources transiently when needed. Nested opens of the
// same resource are reference-counted.
type Backend interface {
	// Name identifies the backend encoding ("json" or "sqlite").
	Name() string

	// ResourceMap gives, per commit-step name, the storage resource labels
	// the step requires. Steps absent from the map require none.
	ResourceMap() map[string][]string

	OpenResource(ctx context.Context, label string, action ResourceAction) error
	CloseResource(label string) error
	Close() error

	// Counts of persisted entities per kind.
	NumTasks(ctx context.Context) (int, error)
	NumAddedTasks(ctx context.Context) (int, error)
	NumElements(ctx context.Context) (int, error)
	NumIterations(ctx context.Context) (int, error)
	NumRuns(ctx context.Context) (int, error)
	NumParameters(ctx context.Context) (int, error)
	NumLoops(ctx context.Context) (int, error)
	NumSubmissions(ctx context.Context) (int, error)

	// Reads by ID. Implementations return an UNKNOWN_ID error for any
	// requested ID that is not persisted.
	GetTasks(ctx context.Context, ids []int) (map[int]record.Task, error)
	GetLoops(ctx context.Context, ids []int) (map[int]record.Loop, error)
	GetSubmissions(ctx context.Context, ids []int) (map[int]record.Submission, error)
	GetElements(ctx context.Context, ids []int) (map[int]record.Element, error)
	GetIterations(ctx context.Context, ids []int) (map[int]record.Iteration, error)
	GetRuns(ctx context.Context, ids []int) (map[int]record.Run, error)
	GetParameters(ctx context.Context, ids []int) (map[int]record.Parameter, error)
	GetParameterSources(ctx context.Context, ids []int) (map[int]record.ParamSource, error)
	GetParameterSetStatuses(ctx context.Context, ids []int) (map[int]bool, error)
	AllParameterIDs(ctx context.Context) ([]int, error)
	GetTemplateComponents(ctx context.Context) (record.TemplateComponents, error)
	GetTemplate(ctx context.Context) (map[string]any, error)
	GetCreationInfo(ctx context.Context) (record.CreationInfo, error)

	// Appends and updates, one per commit step.
	AppendTasks(ctx context.Context, tasks []record.Task) error
	AppendLoops(ctx context.Context, loops []record.Loop) error
	AppendSubmissions(ctx context.Context, subs []record.Submission) error
	AppendSubmissionParts(ctx context.Context, parts map[int]map[string][]int) error
	AppendTaskElementIDs(ctx context.Context, taskID int, elemIDs []int) error
	AppendElements(ctx context.Context, elems []record.Element) error
	AppendElementSets(ctx context.Context, taskID int, sets []map[string]any) error
	AppendElementIterIDs(ctx context.Context, elemID int, iterIDs []int) error
	AppendIterations(ctx context.Context, iters []record.Iteration) error
	AppendIterationRunIDs(ctx context.Context, iterID, actIdx int, runIDs []int) error
	AppendRuns(ctx context.Context, runs []record.Run) error
	SetIterationRunsInitialised(ctx context.Context, iterID int) error
	UpdateRunSubmissionIdxs(ctx context.Context, subIdxs map[int]int) error
	UpdateRunStart(ctx context.Context, runID int, start RunStart) error
	UpdateRunEnd(ctx context.Context, runID int, end RunEnd) error
	UpdateRunSkip(ctx context.Context, runID int) error
	UpdateJobscriptMeta(ctx context.Context, meta map[int]map[int]record.JobscriptMeta) error
	AppendParameters(ctx context.Context, params []record.Parameter) error
	SetParameterValues(ctx context.Context, values map[int]SetParam) error
	AppendFiles(ctx context.Context, files []record.FileRef) error
	UpdateTemplateComponents(ctx context.Context, tc record.TemplateComponents) error
	UpdateParameterSources(ctx context.Context, sources map[int]record.ParamSource) error
	UpdateIterationLoopIdx(ctx context.Context, iterID int, loopIdx map[string]int) error
	UpdateLoopNumIters(ctx context.Context, index int, entries []record.LoopIterEntry) error
	UpdateLoopParents(ctx context.Context, index int, parents []string) error
}
