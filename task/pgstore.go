package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgColumns = `id, title, description, created_by, assigned_to, status, priority, parent_id,
	depends_on, artifacts, qa_required, qa_assignee, result, error,
	input_tokens, output_tokens, created_at, updated_at, started_at, completed_at`

// PostgresStore is a PostgreSQL-backed task store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore around an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// EnsureTable creates the tasks table and indexes if they don't exist.
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			created_by    TEXT NOT NULL DEFAULT '',
			assigned_to   TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'pending',
			priority      INTEGER NOT NULL DEFAULT 2,
			parent_id     TEXT NOT NULL DEFAULT '',
			depends_on    TEXT[] DEFAULT '{}',
			artifacts     JSONB NOT NULL DEFAULT '[]',
			qa_required   BOOLEAN NOT NULL DEFAULT FALSE,
			qa_assignee   TEXT NOT NULL DEFAULT '',
			result        TEXT NOT NULL DEFAULT '',
			error         TEXT NOT NULL DEFAULT '',
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			updated_at    TIMESTAMPTZ DEFAULT NOW(),
			started_at    TIMESTAMPTZ,
			completed_at  TIMESTAMPTZ,
			deleted_at    TIMESTAMPTZ
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks(assigned_to) WHERE assigned_to != ''`)
	return err
}

// Create inserts a new task, generating a time-ordered UUID when the ID is
// unset.
func (s *PostgresStore) Create(ctx context.Context, t *Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == 0 {
		t.Priority = PriorityMedium
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.DependsOn == nil {
		t.DependsOn = []string{}
	}

	artifacts, err := json.Marshal(t.Artifacts)
	if err != nil {
		return "", fmt.Errorf("marshal artifacts: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (`+pgColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		t.ID, t.Title, t.Description, t.CreatedBy, t.AssignedTo,
		string(t.Status), int(t.Priority), t.ParentID,
		t.DependsOn, string(artifacts),
		t.QARequired, t.QAAssignee,
		t.Result, t.Error,
		t.Usage.InputTokens, t.Usage.OutputTokens,
		t.CreatedAt, t.UpdatedAt, t.StartedAt, t.CompletedAt)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	return t.ID, nil
}

// Get retrieves a single task by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+pgColumns+` FROM tasks WHERE id = $1 AND deleted_at IS NULL`, id)
	t, err := scanPgTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// Update saves changes to an existing task, bumping UpdatedAt automatically.
func (s *PostgresStore) Update(ctx context.Context, t *Task) error {
	t.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	if t.DependsOn == nil {
		t.DependsOn = []string{}
	}
	artifacts, err := json.Marshal(t.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET
			title=$1, description=$2, created_by=$3, assigned_to=$4, status=$5, priority=$6, parent_id=$7,
			depends_on=$8, artifacts=$9::jsonb, qa_required=$10, qa_assignee=$11, result=$12, error=$13,
			input_tokens=$14, output_tokens=$15, updated_at=$16, started_at=$17, completed_at=$18
		WHERE id=$19 AND deleted_at IS NULL`,
		t.Title, t.Description, t.CreatedBy, t.AssignedTo,
		string(t.Status), int(t.Priority), t.ParentID,
		t.DependsOn, string(artifacts),
		t.QARequired, t.QAAssignee,
		t.Result, t.Error,
		t.Usage.InputTokens, t.Usage.OutputTokens,
		t.UpdatedAt, t.StartedAt, t.CompletedAt,
		t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	return nil
}

// List returns tasks matching the filter, oldest first.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT ` + pgColumns + ` FROM tasks WHERE deleted_at IS NULL`)
	args := []any{}
	argIdx := 1

	if filter.Status != nil {
		q.WriteString(fmt.Sprintf(" AND status = $%d", argIdx))
		args = append(args, string(*filter.Status))
		argIdx++
	}
	if filter.AssignedTo != "" {
		q.WriteString(fmt.Sprintf(" AND assigned_to = $%d", argIdx))
		args = append(args, filter.AssignedTo)
		argIdx++
	}
	if filter.CreatedBy != "" {
		q.WriteString(fmt.Sprintf(" AND created_by = $%d", argIdx))
		args = append(args, filter.CreatedBy)
		argIdx++
	}
	q.WriteString(" ORDER BY created_at ASC, id ASC")
	if filter.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT $%d", argIdx))
		args = append(args, filter.Limit)
		argIdx++
		if filter.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET $%d", argIdx))
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

// SoftDelete marks a task as removed at the persistence boundary.
func (s *PostgresStore) SoftDelete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET deleted_at=$1 WHERE id=$2 AND deleted_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func scanPgTask(row pgx.Row) (*Task, error) {
	var t Task
	var status, artifactsJSON string
	var priority int

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.CreatedBy, &t.AssignedTo,
		&status, &priority, &t.ParentID,
		&t.DependsOn, &artifactsJSON,
		&t.QARequired, &t.QAAssignee,
		&t.Result, &t.Error,
		&t.Usage.InputTokens, &t.Usage.OutputTokens,
		&t.CreatedAt, &t.UpdatedAt,
		&t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	if err := json.Unmarshal([]byte(artifactsJSON), &t.Artifacts); err != nil {
		t.Artifacts = nil
	}
	return &t, nil
}
