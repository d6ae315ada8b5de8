package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL,
	created_by    TEXT NOT NULL DEFAULT '',
	assigned_to   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	priority      INTEGER NOT NULL DEFAULT 2,
	parent_id     TEXT NOT NULL DEFAULT '',
	depends_on    TEXT NOT NULL DEFAULT '[]',
	artifacts     TEXT NOT NULL DEFAULT '[]',
	qa_required   INTEGER NOT NULL DEFAULT 0,
	qa_assignee   TEXT NOT NULL DEFAULT '',
	result        TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	started_at    DATETIME,
	completed_at  DATETIME,
	deleted_at    DATETIME
);
`

// SQLiteStore persists tasks in a SQLite database. Rows are only ever
// soft-deleted; hierarchy and lifecycle code never observes a removed task.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the tasks table exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create persists a new task, generating a UUID when the ID is unset.
func (s *SQLiteStore) Create(ctx context.Context, t *Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == 0 {
		t.Priority = PriorityMedium
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	dependsOn, _ := json.Marshal(t.DependsOn)
	artifacts, _ := json.Marshal(t.Artifacts)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks
			(id, title, description, created_by, assigned_to, status, priority, parent_id,
			 depends_on, artifacts, qa_required, qa_assignee, result, error,
			 input_tokens, output_tokens, created_at, updated_at, started_at, completed_at, deleted_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,NULL)`,
		t.ID, t.Title, t.Description, t.CreatedBy, t.AssignedTo,
		string(t.Status), int(t.Priority), t.ParentID,
		string(dependsOn), string(artifacts),
		boolInt(t.QARequired), t.QAAssignee,
		t.Result, t.Error,
		t.Usage.InputTokens, t.Usage.OutputTokens,
		t.CreatedAt, t.UpdatedAt,
		nullTime(t.StartedAt), nullTime(t.CompletedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return t.ID, nil
}

// Get retrieves a task by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT * FROM tasks WHERE id = ? AND deleted_at IS NULL`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

// Update saves changes to an existing task, bumping UpdatedAt automatically.
func (s *SQLiteStore) Update(ctx context.Context, t *Task) error {
	t.UpdatedAt = time.Now().UTC()
	dependsOn, _ := json.Marshal(t.DependsOn)
	artifacts, _ := json.Marshal(t.Artifacts)

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title=?, description=?, created_by=?, assigned_to=?, status=?, priority=?, parent_id=?,
			depends_on=?, artifacts=?, qa_required=?, qa_assignee=?, result=?, error=?,
			input_tokens=?, output_tokens=?, updated_at=?, started_at=?, completed_at=?
		WHERE id=? AND deleted_at IS NULL`,
		t.Title, t.Description, t.CreatedBy, t.AssignedTo,
		string(t.Status), int(t.Priority), t.ParentID,
		string(dependsOn), string(artifacts),
		boolInt(t.QARequired), t.QAAssignee,
		t.Result, t.Error,
		t.Usage.InputTokens, t.Usage.OutputTokens,
		t.UpdatedAt, nullTime(t.StartedAt), nullTime(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	return nil
}

// List returns tasks matching the filter, oldest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString("SELECT * FROM tasks WHERE deleted_at IS NULL")
	args := []any{}

	if filter.Status != nil {
		q.WriteString(" AND status=?")
		args = append(args, string(*filter.Status))
	}
	if filter.AssignedTo != "" {
		q.WriteString(" AND assigned_to=?")
		args = append(args, filter.AssignedTo)
	}
	if filter.CreatedBy != "" {
		q.WriteString(" AND created_by=?")
		args = append(args, filter.CreatedBy)
	}
	q.WriteString(" ORDER BY created_at ASC, id ASC")
	if filter.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
		if filter.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET %d", filter.Offset))
		}
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// SoftDelete marks a task as removed at the persistence boundary. The record
// stays in the table but disappears from Get and List.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET deleted_at=? WHERE id=? AND deleted_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var status, dependsOnJSON, artifactsJSON string
	var priority, qaRequired int
	var startedAt, completedAt, deletedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &t.CreatedBy, &t.AssignedTo,
		&status, &priority, &t.ParentID,
		&dependsOnJSON, &artifactsJSON,
		&qaRequired, &t.QAAssignee,
		&t.Result, &t.Error,
		&t.Usage.InputTokens, &t.Usage.OutputTokens,
		&t.CreatedAt, &t.UpdatedAt,
		&startedAt, &completedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = Status(status)
	t.Priority = Priority(priority)
	t.QARequired = qaRequired != 0

	_ = json.Unmarshal([]byte(dependsOnJSON), &t.DependsOn)
	_ = json.Unmarshal([]byte(artifactsJSON), &t.Artifacts)

	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
