package desk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS desks (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	role         TEXT NOT NULL,
	capabilities TEXT NOT NULL DEFAULT '[]',
	level        INTEGER NOT NULL DEFAULT 0,
	reports_to   TEXT NOT NULL DEFAULT '',
	team_id      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	current_task TEXT NOT NULL DEFAULT '',
	memory       TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL,
	position     INTEGER NOT NULL,
	deleted_at   DATETIME
);
CREATE TABLE IF NOT EXISTS teams (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	lead       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	position   INTEGER NOT NULL
);
`

// Store snapshots a Registry to SQLite and restores it at startup. The
// registry stays the in-memory source of truth; the store is only the
// persistence boundary (and the only place desks can be soft-deleted).
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database at dbPath and ensures the
// desk and team tables exist. The caller is responsible for calling Close.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// SaveRegistry replaces the stored snapshot with the registry's current
// desks and teams, preserving registration order.
func (s *Store) SaveRegistry(ctx context.Context, r *Registry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM desks`); err != nil {
		return fmt.Errorf("clear desks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM teams`); err != nil {
		return fmt.Errorf("clear teams: %w", err)
	}

	for i, d := range r.List() {
		capabilities, _ := json.Marshal(d.Capabilities)
		memory, _ := json.Marshal(d.Memory)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO desks
				(id, title, role, capabilities, level, reports_to, team_id,
				 status, current_task, memory, created_at, position, deleted_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,NULL)`,
			d.ID, d.Title, string(d.Role), string(capabilities), d.Level,
			d.ReportsTo, d.TeamID, string(d.Status), d.CurrentTask,
			string(memory), d.CreatedAt, i,
		)
		if err != nil {
			return fmt.Errorf("insert desk %s: %w", d.ID, err)
		}
	}
	for i, t := range r.Teams() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO teams (id, name, lead, created_at, position)
			VALUES (?,?,?,?,?)`,
			t.ID, t.Name, t.Lead, t.CreatedAt, i,
		)
		if err != nil {
			return fmt.Errorf("insert team %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadRegistry rebuilds a registry from the stored snapshot in registration
// order. Busy desks come back idle with the current task cleared; in-flight
// work does not survive a restart.
func (s *Store) LoadRegistry(ctx context.Context) (*Registry, error) {
	r := NewRegistry()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, role, capabilities, level, reports_to, team_id,
		       status, current_task, memory, created_at
		FROM desks WHERE deleted_at IS NULL ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("load desks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d Desk
		var role, status, capabilitiesJSON, memoryJSON string
		err := rows.Scan(
			&d.ID, &d.Title, &role, &capabilitiesJSON, &d.Level,
			&d.ReportsTo, &d.TeamID, &status, &d.CurrentTask,
			&memoryJSON, &d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan desk: %w", err)
		}
		d.Role = Role(role)
		d.Status = Status(status)
		_ = json.Unmarshal([]byte(capabilitiesJSON), &d.Capabilities)
		_ = json.Unmarshal([]byte(memoryJSON), &d.Memory)
		if d.Status == StatusBusy {
			d.Status = StatusIdle
			d.CurrentTask = ""
		}

		// Snapshots are trusted: replay directly, keeping stored order even
		// if a soft-deleted parent left a dangling reports_to.
		r.desks[d.ID] = &d
		r.order = append(r.order, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load desks: %w", err)
	}

	teamRows, err := s.db.QueryContext(ctx, `
		SELECT id, name, lead, created_at FROM teams ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	defer teamRows.Close()

	for teamRows.Next() {
		var t Team
		if err := teamRows.Scan(&t.ID, &t.Name, &t.Lead, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		r.teams[t.ID] = &t
		r.teamOrder = append(r.teamOrder, t.ID)
	}
	if err := teamRows.Err(); err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	return r, nil
}

// SoftDeleteDesk marks a desk as removed at the persistence boundary. The
// row stays in the table but is skipped by LoadRegistry. Registries already
// in memory are unaffected.
func (s *Store) SoftDeleteDesk(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE desks SET deleted_at=? WHERE id=? AND deleted_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete desk: %w", err)
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
