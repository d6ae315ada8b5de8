package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT PRIMARY KEY,
	time TIMESTAMP NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	task_id TEXT NOT NULL,
	from_desk TEXT NOT NULL DEFAULT '',
	to_desk TEXT NOT NULL,
	authorized INTEGER NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_task ON audit_entries(task_id);
CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_entries(actor);
`

// SQLiteLog is a Log persisted to a SQLite database.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLiteLog opens (creating if needed) a SQLite audit log at dbPath.
func NewSQLiteLog(dbPath string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &SQLiteLog{db: db}, nil
}

// Close closes the underlying database.
func (l *SQLiteLog) Close() error { return l.db.Close() }

// Record appends an entry.
func (l *SQLiteLog) Record(ctx context.Context, e *Entry) error {
	stamp(e)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, time, actor, action, task_id, from_desk, to_desk, authorized, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time, e.Actor, string(e.Action), e.TaskID, e.FromDesk, e.ToDesk, boolInt(e.Authorized), e.Reason,
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// List returns matching entries oldest first.
func (l *SQLiteLog) List(ctx context.Context, f Filter) ([]*Entry, error) {
	query := `SELECT id, time, actor, action, task_id, from_desk, to_desk, authorized, reason
		FROM audit_entries WHERE 1=1`
	var args []any
	if f.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, f.TaskID)
	}
	if f.Actor != "" {
		query += " AND actor = ?"
		args = append(args, f.Actor)
	}
	query += " ORDER BY time ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var action string
		var authorized int
		if err := rows.Scan(&e.ID, &e.Time, &e.Actor, &action, &e.TaskID, &e.FromDesk, &e.ToDesk, &authorized, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		e.Authorized = authorized != 0
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
