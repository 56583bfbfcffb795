// Package store implements the Store component: transactional persistence
// for specs, tasks, execution log entries, and short-lived agent
// registrations, backed by a single SQLite file with an optional JSONL
// mirror for cross-machine sync.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ralph-run/ralph/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS specs (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	source_kind TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	spec_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	depends_on TEXT NOT NULL DEFAULT '[]',
	dependency_policy TEXT NOT NULL DEFAULT 'wait',
	iteration INTEGER NOT NULL DEFAULT 0,
	worktree_id TEXT NOT NULL DEFAULT '',
	assignee TEXT NOT NULL DEFAULT '',
	acceptance_criteria TEXT NOT NULL DEFAULT '[]',
	completion TEXT,
	created_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT,
	metadata TEXT NOT NULL DEFAULT '{}',
	rowid_seq INTEGER
);

CREATE TABLE IF NOT EXISTS execution_log (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	stage_name TEXT NOT NULL,
	agent_role TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	output TEXT NOT NULL,
	passed INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_registrations (
	task_id TEXT PRIMARY KEY,
	slot_id INTEGER NOT NULL,
	agent_role TEXT NOT NULL,
	worktree_path TEXT NOT NULL,
	started_at TEXT NOT NULL
);
`

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = fmt.Errorf("not found")

// Store persists specs, tasks, execution logs, and the active-agent
// registry. All writes are transactional; try_claim_task is the atomic
// compare-and-swap the Scheduler relies on to avoid double assignment.
type Store struct {
	db        *sql.DB
	mu        sync.Mutex
	jsonlPath string
	syncJSONL bool
}

// Open opens (creating if necessary) a Store backed by the sqlite file at
// path. If syncJSONL is set, every mutation is additionally appended to
// jsonlPath as one JSON line (the afterCommit hook from the design notes).
func Open(path string, syncJSONL bool, jsonlPath string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // a single writer connection avoids SQLITE_BUSY under our own mutex
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	s := &Store{db: db, jsonlPath: jsonlPath, syncJSONL: syncJSONL}
	if syncJSONL && jsonlPath != "" {
		if err := s.replayJSONLIfEmpty(jsonlPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: replay jsonl: %w", err)
		}
	}
	return s, nil
}

// replayJSONLIfEmpty rebuilds specs/tasks/execution_log from the JSONL
// mirror when this is a fresh database (no rows yet) — the case of
// cloning a repo whose specs.jsonl is tracked in git but whose sqlite file
// is a local, gitignored artifact. A non-empty database is assumed to
// already be ahead of (or equal to) the mirror and is left untouched.
func (s *Store) replayJSONLIfEmpty(jsonlPath string) error {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM tasks`).Scan(&n); err != nil {
		return fmt.Errorf("count tasks: %w", err)
	}
	if n > 0 {
		return nil
	}

	f, err := os.Open(jsonlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", jsonlPath, err)
	}
	defer f.Close()

	s.syncJSONL = false
	defer func() { s.syncJSONL = true }()

	dec := json.NewDecoder(f)
	for {
		var raw struct {
			Kind string          `json:"kind"`
			At   time.Time       `json:"at"`
			Data json.RawMessage `json:"data"`
		}
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("decode record: %w", err)
		}
		if err := s.applyMirrorRecord(raw.Kind, raw.Data); err != nil {
			return fmt.Errorf("apply %s record: %w", raw.Kind, err)
		}
	}
	return nil
}

func (s *Store) applyMirrorRecord(kind string, data json.RawMessage) error {
	switch kind {
	case "create_spec":
		var spec model.Spec
		if err := json.Unmarshal(data, &spec); err != nil {
			return err
		}
		_, err := s.db.Exec(
			`INSERT OR REPLACE INTO specs (id, title, status, source_kind, created_at, updated_at, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			spec.ID, spec.Title, string(spec.Status), string(spec.SourceKind),
			spec.CreatedAt.Format(time.RFC3339Nano), spec.UpdatedAt.Format(time.RFC3339Nano),
			marshalJSON(spec.Metadata),
		)
		return err
	case "update_spec_status":
		var payload struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		_, err := s.db.Exec(`UPDATE specs SET status=?, updated_at=? WHERE id=?`, payload.Status, time.Now().Format(time.RFC3339Nano), payload.ID)
		return err
	case "create_task", "update_task":
		var t model.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		_, err := s.db.Exec(
			`INSERT OR REPLACE INTO tasks (id, spec_id, title, description, status, priority, depends_on,
				dependency_policy, iteration, worktree_id, assignee, acceptance_criteria, completion,
				created_at, started_at, completed_at, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.SpecID, t.Title, t.Description, string(t.Status), t.Priority,
			marshalJSON(t.DependsOn), string(t.DependencyPolicy), t.Iteration, t.WorktreeID, t.Assignee,
			marshalJSON(t.AcceptanceCriteria), nullableCompletion(t.Completion),
			t.CreatedAt.Format(time.RFC3339Nano), nullableTime(t.StartedAt), nullableTime(t.CompletedAt),
			marshalJSON(t.Metadata),
		)
		return err
	case "log_execution":
		var e model.ExecutionLogEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		_, err := s.db.Exec(
			`INSERT OR IGNORE INTO execution_log (id, task_id, stage_name, agent_role, iteration, output, passed, duration_ms, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.TaskID, e.StageName, string(e.AgentRole), e.Iteration, e.Output, boolToInt(e.Passed), e.DurationMS,
			e.Timestamp.Format(time.RFC3339Nano),
		)
		return err
	default:
		// try_claim_task/register_agent/deregister_agent are transient
		// pool-claim bookkeeping, not durable board state, so they are not
		// replayed.
		return nil
	}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// mirrorRecord is one line of the JSONL afterCommit mirror.
type mirrorRecord struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

func (s *Store) mirror(kind string, data any) {
	if !s.syncJSONL || s.jsonlPath == "" {
		return
	}
	f, err := os.OpenFile(s.jsonlPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	_ = enc.Encode(mirrorRecord{Kind: kind, At: time.Now(), Data: data})
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalJSON[T any](s string, out *T) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), out)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// CreateSpec inserts a new spec.
func (s *Store) CreateSpec(spec *model.Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO specs (id, title, status, source_kind, created_at, updated_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		spec.ID, spec.Title, string(spec.Status), string(spec.SourceKind),
		spec.CreatedAt.Format(time.RFC3339Nano), spec.UpdatedAt.Format(time.RFC3339Nano),
		marshalJSON(spec.Metadata),
	)
	if err != nil {
		return fmt.Errorf("store: create spec: %w", err)
	}
	s.mirror("create_spec", spec)
	return nil
}

// GetSpec fetches a spec by id.
func (s *Store) GetSpec(id string) (*model.Spec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT id, title, status, source_kind, created_at, updated_at, metadata FROM specs WHERE id = ?`, id)
	return scanSpec(row)
}

func scanSpec(row *sql.Row) (*model.Spec, error) {
	var spec model.Spec
	var status, sourceKind, createdAt, updatedAt, metadata string
	if err := row.Scan(&spec.ID, &spec.Title, &status, &sourceKind, &createdAt, &updatedAt, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get spec: %w", err)
	}
	spec.Status = model.SpecStatus(status)
	spec.SourceKind = model.SourceKind(sourceKind)
	spec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	spec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	spec.Metadata = map[string]any{}
	unmarshalJSON(metadata, &spec.Metadata)
	return &spec, nil
}

// ListSpecs returns all specs, optionally filtered by status.
func (s *Store) ListSpecs(status model.SpecStatus) ([]*model.Spec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, title, status, source_kind, created_at, updated_at, metadata FROM specs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list specs: %w", err)
	}
	defer rows.Close()

	var out []*model.Spec
	for rows.Next() {
		var spec model.Spec
		var st, sk, ca, ua, md string
		if err := rows.Scan(&spec.ID, &spec.Title, &st, &sk, &ca, &ua, &md); err != nil {
			return nil, fmt.Errorf("store: scan spec: %w", err)
		}
		spec.Status = model.SpecStatus(st)
		spec.SourceKind = model.SourceKind(sk)
		spec.CreatedAt, _ = time.Parse(time.RFC3339Nano, ca)
		spec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ua)
		spec.Metadata = map[string]any{}
		unmarshalJSON(md, &spec.Metadata)
		out = append(out, &spec)
	}
	return out, rows.Err()
}

// UpdateSpecStatus transitions a spec to a new status.
func (s *Store) UpdateSpecStatus(id string, status model.SpecStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE specs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("store: update spec status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.mirror("update_spec_status", map[string]any{"id": id, "status": status})
	return nil
}

// CreateTask inserts a new task.
func (s *Store) CreateTask(t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO tasks (id, spec_id, title, description, status, priority, depends_on,
			dependency_policy, iteration, worktree_id, assignee, acceptance_criteria, completion,
			created_at, started_at, completed_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SpecID, t.Title, t.Description, string(t.Status), t.Priority,
		marshalJSON(t.DependsOn), string(t.DependencyPolicy), t.Iteration, t.WorktreeID, t.Assignee,
		marshalJSON(t.AcceptanceCriteria), nullableCompletion(t.Completion),
		t.CreatedAt.Format(time.RFC3339Nano), nullableTime(t.StartedAt), nullableTime(t.CompletedAt),
		marshalJSON(t.Metadata),
	)
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	s.mirror("create_task", t)
	return nil
}

func nullableCompletion(c *model.CompletionSpec) any {
	if c == nil {
		return nil
	}
	return marshalJSON(c)
}

// GetTask fetches a task by id.
func (s *Store) GetTask(id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(taskSelect+` WHERE id = ?`, id)
	return scanTaskRow(row)
}

const taskSelect = `SELECT id, spec_id, title, description, status, priority, depends_on,
	dependency_policy, iteration, worktree_id, assignee, acceptance_criteria, completion,
	created_at, started_at, completed_at, metadata FROM tasks`

func scanTaskRow(row *sql.Row) (*model.Task, error) {
	var t model.Task
	var status, dependsOn, policy, criteria, completion, createdAt, metadata string
	var startedAt, completedAt sql.NullString
	if err := row.Scan(&t.ID, &t.SpecID, &t.Title, &t.Description, &status, &t.Priority,
		&dependsOn, &policy, &t.Iteration, &t.WorktreeID, &t.Assignee, &criteria, &completion,
		&createdAt, &startedAt, &completedAt, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get task: %w", err)
	}
	fillTask(&t, status, dependsOn, policy, criteria, completion, createdAt, startedAt, completedAt, metadata)
	return &t, nil
}

func fillTask(t *model.Task, status, dependsOn, policy, criteria, completion, createdAt string, startedAt, completedAt sql.NullString, metadata string) {
	t.Status = model.TaskStatus(status)
	t.DependencyPolicy = model.DependencyPolicy(policy)
	unmarshalJSON(dependsOn, &t.DependsOn)
	unmarshalJSON(criteria, &t.AcceptanceCriteria)
	if completion != "" {
		var c model.CompletionSpec
		unmarshalJSON(completion, &c)
		t.Completion = &c
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	t.Metadata = map[string]any{}
	unmarshalJSON(metadata, &t.Metadata)
}

// ListTasks returns tasks for a spec (or all specs if specID is empty),
// optionally filtered by status.
func (s *Store) ListTasks(specID string, status model.TaskStatus) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := taskSelect
	var clauses []string
	var args []any
	if specID != "" {
		clauses = append(clauses, "spec_id = ?")
		args = append(args, specID)
	}
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + clauses[0]
		for _, c := range clauses[1:] {
			query += " AND " + c
		}
	}
	query += " ORDER BY priority DESC, created_at ASC, rowid ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		var t model.Task
		var st, dependsOn, policy, criteria, completion, createdAt, metadata string
		var startedAt, completedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.SpecID, &t.Title, &t.Description, &st, &t.Priority,
			&dependsOn, &policy, &t.Iteration, &t.WorktreeID, &t.Assignee, &criteria, &completion,
			&createdAt, &startedAt, &completedAt, &metadata); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		fillTask(&t, st, dependsOn, policy, criteria, completion, createdAt, startedAt, completedAt, metadata)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// UpdateTask persists the full task record, superseding whatever was
// previously stored at t.ID.
func (s *Store) UpdateTask(t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE tasks SET spec_id=?, title=?, description=?, status=?, priority=?, depends_on=?,
			dependency_policy=?, iteration=?, worktree_id=?, assignee=?, acceptance_criteria=?,
			completion=?, started_at=?, completed_at=?, metadata=? WHERE id=?`,
		t.SpecID, t.Title, t.Description, string(t.Status), t.Priority, marshalJSON(t.DependsOn),
		string(t.DependencyPolicy), t.Iteration, t.WorktreeID, t.Assignee, marshalJSON(t.AcceptanceCriteria),
		nullableCompletion(t.Completion), nullableTime(t.StartedAt), nullableTime(t.CompletedAt),
		marshalJSON(t.Metadata), t.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.mirror("update_task", t)
	return nil
}

// TryClaimTask atomically transitions a task from TaskStatusTodo to
// TaskStatusImplementing, returning whether the claim succeeded. This is
// the compare-and-swap invariant 3 depends on: at most one caller's claim
// can succeed for a given task.
func (s *Store) TryClaimTask(taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("store: begin claim: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(model.TaskStatusImplementing), time.Now().Format(time.RFC3339Nano), taskID, string(model.TaskStatusTodo))
	if err != nil {
		return false, fmt.Errorf("store: claim task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim task rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit claim: %w", err)
	}
	claimed := n > 0
	if claimed {
		s.mirror("try_claim_task", map[string]any{"task_id": taskID})
	}
	return claimed, nil
}

// GetReadyTasks returns tasks satisfying invariant 2 (every dependency
// task is in terminal success state and the owning spec is approved or
// further), sorted by descending priority then ascending creation time,
// with insertion order (sqlite rowid) as the final tie-break.
func (s *Store) GetReadyTasks(specID string) ([]*model.Task, error) {
	candidates, err := s.ListTasks(specID, model.TaskStatusTodo)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	specApproval := map[string]bool{}
	doneStatus := map[string]model.TaskStatus{}

	ready := make([]*model.Task, 0, len(candidates))
	for _, t := range candidates {
		approved, ok := specApproval[t.SpecID]
		if !ok {
			spec, err := s.GetSpec(t.SpecID)
			if err != nil {
				return nil, fmt.Errorf("store: ready tasks: spec %s: %w", t.SpecID, err)
			}
			approved = spec.Status.IsApprovedOrFurther()
			specApproval[t.SpecID] = approved
		}
		if !approved {
			continue
		}

		depsOK := true
		for _, dep := range t.DependsOn {
			st, ok := doneStatus[dep]
			if !ok {
				depTask, err := s.GetTask(dep)
				if err != nil {
					if err == ErrNotFound {
						depsOK = false
						break
					}
					return nil, fmt.Errorf("store: ready tasks: dep %s: %w", dep, err)
				}
				st = depTask.Status
				doneStatus[dep] = st
			}
			switch t.DependencyPolicy {
			case model.DependencyPolicySkip:
				// A skipped dependency never blocks readiness.
			default:
				if st != model.TaskStatusDone {
					depsOK = false
				}
			}
			if !depsOK {
				break
			}
		}
		if depsOK {
			ready = append(ready, t)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	return ready, nil
}

// LogExecution appends an execution log entry.
func (s *Store) LogExecution(e *model.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO execution_log (id, task_id, stage_name, agent_role, iteration, output, passed, duration_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TaskID, e.StageName, string(e.AgentRole), e.Iteration, e.Output, boolToInt(e.Passed), e.DurationMS,
		e.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: log execution: %w", err)
	}
	s.mirror("log_execution", e)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ListExecutionLog returns the append-only log for one task, in the order
// entries were written.
func (s *Store) ListExecutionLog(taskID string) ([]*model.ExecutionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, task_id, stage_name, agent_role, iteration, output, passed, duration_ms, timestamp
		 FROM execution_log WHERE task_id = ? ORDER BY rowid ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: list execution log: %w", err)
	}
	defer rows.Close()

	var out []*model.ExecutionLogEntry
	for rows.Next() {
		var e model.ExecutionLogEntry
		var role string
		var passed int
		var ts string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.StageName, &role, &e.Iteration, &e.Output, &passed, &e.DurationMS, &ts); err != nil {
			return nil, fmt.Errorf("store: scan execution log: %w", err)
		}
		e.AgentRole = model.AgentRole(role)
		e.Passed = passed != 0
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// RegisterAgent records that slotID is working on taskID in role, rooted
// at worktreePath.
func (s *Store) RegisterAgent(taskID string, role model.AgentRole, slotID int, worktreePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO agent_registrations (task_id, slot_id, agent_role, worktree_path, started_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET slot_id=excluded.slot_id, agent_role=excluded.agent_role,
			worktree_path=excluded.worktree_path, started_at=excluded.started_at`,
		taskID, slotID, string(role), worktreePath, time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: register agent: %w", err)
	}
	s.mirror("register_agent", map[string]any{"task_id": taskID, "role": role, "slot_id": slotID})
	return nil
}

// DeregisterAgent removes the short-lived registration for taskID.
func (s *Store) DeregisterAgent(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM agent_registrations WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("store: deregister agent: %w", err)
	}
	s.mirror("deregister_agent", map[string]any{"task_id": taskID})
	return nil
}

// ListAgentRegistrations returns every currently-active registration, used
// by the Scheduler's startup reconciliation pass and by `ralph status`.
func (s *Store) ListAgentRegistrations() ([]*model.AgentRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT task_id, slot_id, agent_role, worktree_path, started_at FROM agent_registrations`)
	if err != nil {
		return nil, fmt.Errorf("store: list agent registrations: %w", err)
	}
	defer rows.Close()

	var out []*model.AgentRegistration
	for rows.Next() {
		var r model.AgentRegistration
		var role, ts string
		if err := rows.Scan(&r.TaskID, &r.SlotID, &role, &r.WorktreePath, &ts); err != nil {
			return nil, fmt.Errorf("store: scan agent registration: %w", err)
		}
		r.AgentRole = model.AgentRole(role)
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, &r)
	}
	return out, rows.Err()
}
