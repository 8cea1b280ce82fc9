package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/calderwm/gridflow/internal/record"
)

//go:embed schema.sql
var schemaSQL string

const sqliteFileName = "workflow.db"

// resDB is the single storage resource of the SQLite backend: every commit
// step maps to it, so a full commit runs inside one transaction.
const resDB = "db"

// paramChunkLen is the number of float64 values per parameter chunk row.
const paramChunkLen = 512

// sqliteBackend is the chunked binary array encoding: entity records as JSON
// documents in SQLite, bulk numeric parameter payloads as chunked BLOB rows.
// WAL mode allows concurrent reads during a commit.
type sqliteBackend struct {
	dir    string
	db     *sql.DB
	tx     *sql.Tx
	txRefs int
}

func sqliteResourceMap() map[string][]string {
	m := make(map[string][]string, len(commitSteps))
	for _, step := range commitSteps {
		m[step.name] = []string{resDB}
	}
	return m
}

// openSQLiteDB opens the database with the pragmas the store requires:
// WAL mode, NORMAL synchronous, a 5-second busy timeout and foreign key
// enforcement. SQLite supports one writer, so the pool is capped at one
// connection.
func openSQLiteDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

func openSQLiteBackend(dir string) (*sqliteBackend, error) {
	db, err := openSQLiteDB(filepath.Join(dir, sqliteFileName))
	if err != nil {
		return nil, err
	}
	return &sqliteBackend{dir: dir, db: db}, nil
}

// createSQLiteBackend writes an empty workflow directory in the SQLite
// encoding.
func createSQLiteBackend(ctx context.Context, path, name string, info record.CreationInfo, template map[string]any, tc record.TemplateComponents) (Backend, error) {
	dir := filepath.Join(path, name)
	if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755); err != nil {
		return nil, err
	}
	b, err := openSQLiteBackend(dir)
	if err != nil {
		return nil, err
	}
	if template == nil {
		template = map[string]any{}
	}
	if tc == nil {
		tc = record.TemplateComponents{}
	}
	metaInit := map[string]any{
		"creation_info":       info,
		"template":            template,
		"template_components": tc,
		"num_added_tasks":     0,
	}
	for key, val := range metaInit {
		doc, err := json.Marshal(val)
		if err != nil {
			b.Close()
			return nil, err
		}
		if _, err := b.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO workflow_meta (key, value) VALUES (?, ?)`,
			key, string(doc)); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

// detectBackend inspects an existing workflow directory and opens the
// matching backend encoding.
func detectBackend(ctx context.Context, dir string) (Backend, error) {
	if _, err := os.Stat(filepath.Join(dir, "metadata.json")); err == nil {
		return newJSONBackend(dir), nil
	}
	if _, err := os.Stat(filepath.Join(dir, sqliteFileName)); err == nil {
		return openSQLiteBackend(dir)
	}
	return nil, fmt.Errorf("no workflow store found in %s", dir)
}

func (b *sqliteBackend) Name() string                     { return "sqlite" }
func (b *sqliteBackend) ResourceMap() map[string][]string { return sqliteResourceMap() }

func (b *sqliteBackend) OpenResource(ctx context.Context, label string, action ResourceAction) error {
	if label != resDB {
		return fmt.Errorf("unknown resource %q", label)
	}
	if b.txRefs == 0 {
		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		b.tx = tx
	}
	b.txRefs++
	return nil
}

func (b *sqliteBackend) CloseResource(label string) error {
	if label != resDB {
		return fmt.Errorf("unknown resource %q", label)
	}
	if b.txRefs == 0 {
		return fmt.Errorf("resource %q not open", label)
	}
	b.txRefs--
	if b.txRefs > 0 {
		return nil
	}
	tx := b.tx
	b.tx = nil
	return tx.Commit()
}

func (b *sqliteBackend) Close() error {
	if b.tx != nil {
		b.tx.Rollback()
		b.tx = nil
		b.txRefs = 0
	}
	return b.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx; reads issued during a
// commit see the transaction's own writes.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (b *sqliteBackend) q() querier {
	if b.tx != nil {
		return b.tx
	}
	return b.db
}

func (b *sqliteBackend) count(ctx context.Context, table string) (int, error) {
	var n int
	err := b.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}

func (b *sqliteBackend) NumTasks(ctx context.Context) (int, error) {
	return b.count(ctx, "tasks")
}

func (b *sqliteBackend) NumAddedTasks(ctx context.Context) (int, error) {
	var n int
	if err := b.metaValue(ctx, "num_added_tasks", &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *sqliteBackend) NumElements(ctx context.Context) (int, error) {
	return b.count(ctx, "elements")
}

func (b *sqliteBackend) NumIterations(ctx context.Context) (int, error) {
	return b.count(ctx, "iterations")
}

func (b *sqliteBackend) NumRuns(ctx context.Context) (int, error) {
	return b.count(ctx, "runs")
}

func (b *sqliteBackend) NumParameters(ctx context.Context) (int, error) {
	return b.count(ctx, "parameters")
}

func (b *sqliteBackend) NumLoops(ctx context.Context) (int, error) {
	return b.count(ctx, "loops")
}

func (b *sqliteBackend) NumSubmissions(ctx context.Context) (int, error) {
	return b.count(ctx, "submissions")
}

func (b *sqliteBackend) metaValue(ctx context.Context, key string, out any) error {
	var doc string
	err := b.q().QueryRowContext(ctx,
		`SELECT value FROM workflow_meta WHERE key = ?`, key).Scan(&doc)
	if err != nil {
		return fmt.Errorf("read meta %q: %w", key, err)
	}
	return json.Unmarshal([]byte(doc), out)
}

func (b *sqliteBackend) setMetaValue(ctx context.Context, key string, val any) error {
	doc, err := json.Marshal(val)
	if err != nil {
		return err
	}
	_, err = b.q().ExecContext(ctx,
		`INSERT OR REPLACE INTO workflow_meta (key, value) VALUES (?, ?)`,
		key, string(doc))
	return err
}

// getDocs reads JSON document rows by ID and decodes each into T.
func getDocs[T any](ctx context.Context, b *sqliteBackend, table, kind string, ids []int) (map[int]T, error) {
	out := map[int]T{}
	for _, id := range ids {
		var doc string
		err := b.q().QueryRowContext(ctx,
			`SELECT doc FROM `+table+` WHERE id = ?`, id).Scan(&doc)
		if err == sql.ErrNoRows {
			return nil, unknownIDError(kind, id)
		}
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("decode %s %d: %w", kind, id, err)
		}
		out[id] = v
	}
	return out, nil
}

// putDoc writes one JSON document row, replacing any existing row so a
// retried commit is idempotent.
func putDoc(ctx context.Context, b *sqliteBackend, table string, id int, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = b.q().ExecContext(ctx,
		`INSERT OR REPLACE INTO `+table+` (id, doc) VALUES (?, ?)`, id, string(doc))
	return err
}

// updateDoc reads one document row, applies fn and writes it back.
func updateDoc[T any](ctx context.Context, b *sqliteBackend, table, kind string, id int, fn func(v *T)) error {
	docs, err := getDocs[T](ctx, b, table, kind, []int{id})
	if err != nil {
		return err
	}
	v := docs[id]
	fn(&v)
	return putDoc(ctx, b, table, id, v)
}

func (b *sqliteBackend) GetTasks(ctx context.Context, ids []int) (map[int]record.Task, error) {
	docs, err := getDocs[jsonTask](ctx, b, "tasks", "task", ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int]record.Task, len(docs))
	for id, jt := range docs {
		t := jt.Task
		t.Template = jt.Template
		out[id] = t
	}
	return out, nil
}

func (b *sqliteBackend) GetLoops(ctx context.Context, ids []int) (map[int]record.Loop, error) {
	return getDocs[record.Loop](ctx, b, "loops", "loop", ids)
}

func (b *sqliteBackend) GetSubmissions(ctx context.Context, ids []int) (map[int]record.Submission, error) {
	return getDocs[record.Submission](ctx, b, "submissions", "submission", ids)
}

func (b *sqliteBackend) GetElements(ctx context.Context, ids []int) (map[int]record.Element, error) {
	return getDocs[record.Element](ctx, b, "elements", "element", ids)
}

func (b *sqliteBackend) GetIterations(ctx context.Context, ids []int) (map[int]record.Iteration, error) {
	return getDocs[record.Iteration](ctx, b, "iterations", "iteration", ids)
}

func (b *sqliteBackend) GetRuns(ctx context.Context, ids []int) (map[int]record.Run, error) {
	return getDocs[record.Run](ctx, b, "runs", "run", ids)
}

// encodeChunks splits a float64 slice into little-endian binary chunk rows.
func encodeChunks(values []float64) [][]byte {
	var chunks [][]byte
	for start := 0; start < len(values); start += paramChunkLen {
		end := min(start+paramChunkLen, len(values))
		buf := make([]byte, (end-start)*8)
		for i, v := range values[start:end] {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		chunks = append(chunks, buf)
	}
	return chunks
}

func decodeChunks(chunks [][]byte) []float64 {
	var out []float64
	for _, buf := range chunks {
		for i := 0; i+8 <= len(buf); i += 8 {
			out = append(out, math.Float64frombits(binary.LittleEndian.Uint64(buf[i:])))
		}
	}
	return out
}

func (b *sqliteBackend) writeParameter(ctx context.Context, p record.Parameter) error {
	source, err := json.Marshal(p.Source)
	if err != nil {
		return err
	}
	kind := "json"
	var data, file sql.NullString
	var chunks [][]byte
	switch {
	case p.File != nil:
		kind = "file"
		doc, err := json.Marshal(p.File)
		if err != nil {
			return err
		}
		file = sql.NullString{String: string(doc), Valid: true}
	case p.IsSet:
		if values, ok := p.Data.([]float64); ok {
			kind = "array"
			chunks = encodeChunks(values)
		} else {
			doc, err := json.Marshal(p.Data)
			if err != nil {
				return err
			}
			data = sql.NullString{String: string(doc), Valid: true}
		}
	}
	if _, err := b.q().ExecContext(ctx,
		`INSERT OR REPLACE INTO parameters (id, is_set, kind, data, file, source)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.IsSet, kind, data, file, string(source)); err != nil {
		return err
	}
	if _, err := b.q().ExecContext(ctx,
		`DELETE FROM parameter_chunks WHERE param_id = ?`, p.ID); err != nil {
		return err
	}
	for idx, chunk := range chunks {
		if _, err := b.q().ExecContext(ctx,
			`INSERT INTO parameter_chunks (param_id, chunk_idx, data) VALUES (?, ?, ?)`,
			p.ID, idx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) readParameter(ctx context.Context, id int) (record.Parameter, error) {
	var (
		isSet        bool
		kind, source string
		data, file   sql.NullString
	)
	err := b.q().QueryRowContext(ctx,
		`SELECT is_set, kind, data, file, source FROM parameters WHERE id = ?`, id).
		Scan(&isSet, &kind, &data, &file, &source)
	if err == sql.ErrNoRows {
		return record.Parameter{}, unknownIDError("parameter", id)
	}
	if err != nil {
		return record.Parameter{}, err
	}
	p := record.Parameter{ID: id, IsSet: isSet}
	if err := json.Unmarshal([]byte(source), &p.Source); err != nil {
		return record.Parameter{}, err
	}
	switch kind {
	case "file":
		if file.Valid {
			var ref record.FileRef
			if err := json.Unmarshal([]byte(file.String), &ref); err != nil {
				return record.Parameter{}, err
			}
			p.File = &ref
		}
	case "array":
		rows, err := b.q().QueryContext(ctx,
			`SELECT data FROM parameter_chunks WHERE param_id = ? ORDER BY chunk_idx`, id)
		if err != nil {
			return record.Parameter{}, err
		}
		var chunks [][]byte
		for rows.Next() {
			var chunk []byte
			if err := rows.Scan(&chunk); err != nil {
				rows.Close()
				return record.Parameter{}, err
			}
			chunks = append(chunks, chunk)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return record.Parameter{}, err
		}
		rows.Close()
		p.Data = decodeChunks(chunks)
	default:
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &p.Data); err != nil {
				return record.Parameter{}, err
			}
		}
	}
	return p, nil
}

func (b *sqliteBackend) GetParameters(ctx context.Context, ids []int) (map[int]record.Parameter, error) {
	out := make(map[int]record.Parameter, len(ids))
	for _, id := range ids {
		p, err := b.readParameter(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

func (b *sqliteBackend) GetParameterSources(ctx context.Context, ids []int) (map[int]record.ParamSource, error) {
	out := make(map[int]record.ParamSource, len(ids))
	for _, id := range ids {
		var source string
		err := b.q().QueryRowContext(ctx,
			`SELECT source FROM parameters WHERE id = ?`, id).Scan(&source)
		if err == sql.ErrNoRows {
			return nil, unknownIDError("parameter", id)
		}
		if err != nil {
			return nil, err
		}
		var src record.ParamSource
		if err := json.Unmarshal([]byte(source), &src); err != nil {
			return nil, err
		}
		out[id] = src
	}
	return out, nil
}

func (b *sqliteBackend) GetParameterSetStatuses(ctx context.Context, ids []int) (map[int]bool, error) {
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		var isSet bool
		err := b.q().QueryRowContext(ctx,
			`SELECT is_set FROM parameters WHERE id = ?`, id).Scan(&isSet)
		if err == sql.ErrNoRows {
			return nil, unknownIDError("parameter", id)
		}
		if err != nil {
			return nil, err
		}
		out[id] = isSet
	}
	return out, nil
}

func (b *sqliteBackend) AllParameterIDs(ctx context.Context) ([]int, error) {
	rows, err := b.q().QueryContext(ctx, `SELECT id FROM parameters ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) GetTemplateComponents(ctx context.Context) (record.TemplateComponents, error) {
	var tc record.TemplateComponents
	if err := b.metaValue(ctx, "template_components", &tc); err != nil {
		return nil, err
	}
	return tc, nil
}

func (b *sqliteBackend) GetTemplate(ctx context.Context) (map[string]any, error) {
	var t map[string]any
	if err := b.metaValue(ctx, "template", &t); err != nil {
		return nil, err
	}
	return t, nil
}

func (b *sqliteBackend) GetCreationInfo(ctx context.Context) (record.CreationInfo, error) {
	var info record.CreationInfo
	if err := b.metaValue(ctx, "creation_info", &info); err != nil {
		return record.CreationInfo{}, err
	}
	return info, nil
}

func (b *sqliteBackend) AppendTasks(ctx context.Context, tasks []record.Task) error {
	n, err := b.NumAddedTasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		t.IsPending = false
		if err := putDoc(ctx, b, "tasks", t.ID, jsonTask{Task: t, Template: t.Template}); err != nil {
			return err
		}
		n++
	}
	return b.setMetaValue(ctx, "num_added_tasks", n)
}

func (b *sqliteBackend) AppendLoops(ctx context.Context, loops []record.Loop) error {
	for _, l := range loops {
		l.IsPending = false
		if err := putDoc(ctx, b, "loops", l.Index, l); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) AppendSubmissions(ctx context.Context, subs []record.Submission) error {
	for _, sub := range subs {
		sub.IsPending = false
		if err := putDoc(ctx, b, "submissions", sub.Index, sub); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) AppendSubmissionParts(ctx context.Context, parts map[int]map[string][]int) error {
	for subIdx, byTime := range parts {
		err := updateDoc(ctx, b, "submissions", "submission", subIdx, func(sub *record.Submission) {
			if sub.SubmissionParts == nil {
				sub.SubmissionParts = map[string][]int{}
			}
			for ts, jsIndices := range byTime {
				sub.SubmissionParts[ts] = append(sub.SubmissionParts[ts], jsIndices...)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) AppendTaskElementIDs(ctx context.Context, taskID int, elemIDs []int) error {
	return updateDoc(ctx, b, "tasks", "task", taskID, func(t *jsonTask) {
		t.ElementIDs = append(t.ElementIDs, elemIDs...)
	})
}

func (b *sqliteBackend) AppendElements(ctx context.Context, elems []record.Element) error {
	for _, e := range elems {
		e.IsPending = false
		if err := putDoc(ctx, b, "elements", e.ID, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) AppendElementSets(ctx context.Context, taskID int, sets []map[string]any) error {
	return updateDoc(ctx, b, "tasks", "task", taskID, func(t *jsonTask) {
		t.ElementSets = append(t.ElementSets, sets...)
	})
}

func (b *sqliteBackend) AppendElementIterIDs(ctx context.Context, elemID int, iterIDs []int) error {
	return updateDoc(ctx, b, "elements", "element", elemID, func(e *record.Element) {
		e.IterationIDs = append(e.IterationIDs, iterIDs...)
	})
}

func (b *sqliteBackend) AppendIterations(ctx context.Context, iters []record.Iteration) error {
	for _, it := range iters {
		it.IsPending = false
		if err := putDoc(ctx, b, "iterations", it.ID, it); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) AppendIterationRunIDs(ctx context.Context, iterID, actIdx int, runIDs []int) error {
	return updateDoc(ctx, b, "iterations", "iteration", iterID, func(it *record.Iteration) {
		if it.RunIDs == nil {
			it.RunIDs = map[int][]int{}
		}
		it.RunIDs[actIdx] = append(it.RunIDs[actIdx], runIDs...)
	})
}

func (b *sqliteBackend) AppendRuns(ctx context.Context, runs []record.Run) error {
	for _, r := range runs {
		r.IsPending = false
		if err := putDoc(ctx, b, "runs", r.ID, r); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) SetIterationRunsInitialised(ctx context.Context, iterID int) error {
	return updateDoc(ctx, b, "iterations", "iteration", iterID, func(it *record.Iteration) {
		it.RunsInitialised = true
	})
}

func (b *sqliteBackend) UpdateRunSubmissionIdxs(ctx context.Context, subIdxs map[int]int) error {
	for runID, subIdx := range subIdxs {
		v := subIdx
		err := updateDoc(ctx, b, "runs", "run", runID, func(r *record.Run) {
			r.SubmissionIdx = &v
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) UpdateRunStart(ctx context.Context, runID int, start RunStart) error {
	return updateDoc(ctx, b, "runs", "run", runID, func(r *record.Run) {
		t := start.Time
		r.StartTime = &t
		r.SnapshotStart = start.Snapshot
		r.RunHostname = start.Hostname
	})
}

func (b *sqliteBackend) UpdateRunEnd(ctx context.Context, runID int, end RunEnd) error {
	return updateDoc(ctx, b, "runs", "run", runID, func(r *record.Run) {
		t := end.Time
		ec := end.ExitCode
		suc := end.Success
		r.EndTime = &t
		r.SnapshotEnd = end.Snapshot
		r.ExitCode = &ec
		r.Success = &suc
	})
}

func (b *sqliteBackend) UpdateRunSkip(ctx context.Context, runID int) error {
	return updateDoc(ctx, b, "runs", "run", runID, func(r *record.Run) {
		r.Skip = true
	})
}

func (b *sqliteBackend) UpdateJobscriptMeta(ctx context.Context, meta map[int]map[int]record.JobscriptMeta) error {
	for subIdx, byJs := range meta {
		var badJs *int
		err := updateDoc(ctx, b, "submissions", "submission", subIdx, func(sub *record.Submission) {
			for jsIdx, m := range byJs {
				if jsIdx < 0 || jsIdx >= len(sub.Jobscripts) {
					v := jsIdx
					badJs = &v
					return
				}
				js := &sub.Jobscripts[jsIdx]
				if js.Metadata == nil {
					js.Metadata = record.JobscriptMeta{}
				}
				for k, val := range m {
					js.Metadata[k] = val
				}
			}
		})
		if err != nil {
			return err
		}
		if badJs != nil {
			return unknownIDError("jobscript", *badJs)
		}
	}
	return nil
}

func (b *sqliteBackend) AppendParameters(ctx context.Context, params []record.Parameter) error {
	for _, p := range params {
		p.IsPending = false
		if err := b.writeParameter(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) SetParameterValues(ctx context.Context, values map[int]SetParam) error {
	for id, val := range values {
		p, err := b.readParameter(ctx, id)
		if err != nil {
			return err
		}
		if p.IsSet {
			return alreadySetError(id)
		}
		if val.File != nil {
			p, err = p.SetFile(*val.File)
		} else {
			p, err = p.SetData(val.Value)
		}
		if err != nil {
			return err
		}
		if err := b.writeParameter(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) AppendFiles(ctx context.Context, files []record.FileRef) error {
	n, err := b.count(ctx, "files")
	if err != nil {
		return err
	}
	for i, f := range files {
		if err := putDoc(ctx, b, "files", n+i, f); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) UpdateTemplateComponents(ctx context.Context, tc record.TemplateComponents) error {
	cur, err := b.GetTemplateComponents(ctx)
	if err != nil {
		return err
	}
	if cur == nil {
		cur = record.TemplateComponents{}
	}
	for typ, byHash := range tc {
		if cur[typ] == nil {
			cur[typ] = map[string]map[string]any{}
		}
		for hash, comp := range byHash {
			cur[typ][hash] = comp
		}
	}
	return b.setMetaValue(ctx, "template_components", cur)
}

func (b *sqliteBackend) UpdateParameterSources(ctx context.Context, sources map[int]record.ParamSource) error {
	for id, src := range sources {
		cur, err := b.GetParameterSources(ctx, []int{id})
		if err != nil {
			return err
		}
		merged, err := json.Marshal(cur[id].Merge(src))
		if err != nil {
			return err
		}
		if _, err := b.q().ExecContext(ctx,
			`UPDATE parameters SET source = ? WHERE id = ?`, string(merged), id); err != nil {
			return err
		}
	}
	return nil
}

func (b *sqliteBackend) UpdateIterationLoopIdx(ctx context.Context, iterID int, loopIdx map[string]int) error {
	return updateDoc(ctx, b, "iterations", "iteration", iterID, func(it *record.Iteration) {
		if it.LoopIdx == nil {
			it.LoopIdx = map[string]int{}
		}
		for name, pos := range loopIdx {
			it.LoopIdx[name] = pos
		}
	})
}

func (b *sqliteBackend) UpdateLoopNumIters(ctx context.Context, index int, entries []record.LoopIterEntry) error {
	return updateDoc(ctx, b, "loops", "loop", index, func(l *record.Loop) {
		l.NumAddedIterations = entries
	})
}

func (b *sqliteBackend) UpdateLoopParents(ctx context.Context, index int, parents []string) error {
	return updateDoc(ctx, b, "loops", "loop", index, func(l *record.Loop) {
		l.Parents = parents
	})
}
