package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kyashrathore/formlink-sub001/internal/domain/agenttask"
	"github.com/kyashrathore/formlink-sub001/internal/domain/form"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Tasks ---

const upsertTaskSQL = `INSERT INTO agent_tasks (id, form_id, kind, definition, status, output, error, task_order)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	 ON CONFLICT (id) DO UPDATE SET
	   status = EXCLUDED.status, output = EXCLUDED.output, error = EXCLUDED.error, updated_at = now()`

func taskArgs(t *agenttask.Task) ([]any, error) {
	def, err := agenttask.MarshalDefinition(t.Definition)
	if err != nil {
		return nil, err
	}
	return []any{t.ID, t.FormID, t.TaskType(), def, string(t.Status), nullJSON(t.Output), t.Error, t.Order}, nil
}

// CreateTasks inserts all tasks in one transaction.
func (s *Store) CreateTasks(ctx context.Context, tasks []agenttask.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("create tasks: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := range tasks {
		args, err := taskArgs(&tasks[i])
		if err != nil {
			return fmt.Errorf("create task %s: %w", tasks[i].ID, err)
		}
		batch.Queue(upsertTaskSQL, args...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create tasks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("create tasks: commit: %w", err)
	}
	return nil
}

// UpsertTask writes the task's status, output and error.
func (s *Store) UpsertTask(ctx context.Context, t *agenttask.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	if _, err := s.pool.Exec(ctx, upsertTaskSQL, args...); err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status agenttask.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_tasks SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	return execExpectOne(tag, err, "update task status %s", id)
}

// ListTasks returns the form's tasks in plan order.
func (s *Store) ListTasks(ctx context.Context, formID string) ([]agenttask.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, form_id, definition, status, output, error, task_order
		 FROM agent_tasks WHERE form_id = $1 ORDER BY task_order, id`, formID)
	if err != nil {
		return nil, fmt.Errorf("list tasks %s: %w", formID, err)
	}
	defer rows.Close()

	var tasks []agenttask.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row scannable) (agenttask.Task, error) {
	var (
		t      agenttask.Task
		def    []byte
		status string
		output []byte
	)
	if err := row.Scan(&t.ID, &t.FormID, &def, &status, &output, &t.Error, &t.Order); err != nil {
		return t, fmt.Errorf("scan task: %w", err)
	}
	d, err := agenttask.UnmarshalDefinition(def)
	if err != nil {
		return t, fmt.Errorf("scan task %s: %w", t.ID, err)
	}
	t.Definition = d
	t.Status = agenttask.Status(status)
	if len(output) > 0 {
		t.Output = json.RawMessage(output)
	}
	return t, nil
}

// --- Forms ---

func (s *Store) GetForm(ctx context.Context, id string) (*form.Form, error) {
	var (
		f         form.Form
		versionID *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, current_version_id::text, created_at, updated_at
		 FROM forms WHERE id = $1`, id).
		Scan(&f.ID, &f.UserID, &f.Title, &versionID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get form %s", id)
	}
	if versionID != nil {
		f.CurrentVersionID = *versionID
	}
	return &f, nil
}

// InsertFormVersion stores an immutable version and returns its id. The
// parent form row is created on first use.
func (s *Store) InsertFormVersion(ctx context.Context, v *form.Version) (string, error) {
	questions, err := json.Marshal(orEmpty(v.Questions))
	if err != nil {
		return "", fmt.Errorf("marshal questions: %w", err)
	}
	var settings []byte
	if v.Settings != nil {
		if settings, err = json.Marshal(v.Settings); err != nil {
			return "", fmt.Errorf("marshal settings: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("insert form version: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO forms (id, user_id, title) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, updated_at = now()`,
		v.FormID, v.UserID, v.Title); err != nil {
		return "", fmt.Errorf("ensure form %s: %w", v.FormID, err)
	}

	var id string
	err = tx.QueryRow(ctx,
		`INSERT INTO form_versions (form_id, user_id, title, description, questions, journey_script, results_page, settings)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id::text, created_at`,
		v.FormID, v.UserID, v.Title, v.Description, questions, v.JourneyScript, v.ResultsPage, nullJSON(settings)).
		Scan(&id, &v.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert form version %s: %w", v.FormID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("insert form version: commit: %w", err)
	}
	v.ID = id
	return id, nil
}

// UpdateFormPointer makes versionID the form's current version.
func (s *Store) UpdateFormPointer(ctx context.Context, formID, versionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE forms SET current_version_id = $2::uuid, updated_at = now() WHERE id = $1`,
		formID, nullIfEmpty(versionID))
	return execExpectOne(tag, err, "update form pointer %s", formID)
}
