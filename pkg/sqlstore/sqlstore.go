// Package sqlstore is a TaskStore backed by a local SQLite database. It serves
// as the stand-in for the hosted data service and as the fallback cache in
// the store chain.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	assigned_to TEXT NOT NULL,
	team_id TEXT NOT NULL DEFAULT '',
	department_type TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	visibility_scope TEXT NOT NULL,
	date TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_department ON tasks(department_type);
CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks(assigned_to);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
CREATE INDEX IF NOT EXISTS idx_tasks_team ON tasks(team_id);
`

const columns = `id, title, description, status, priority, owner_id, assigned_to,
	team_id, department_type, location, visibility_scope, date, created_at, updated_at`

// Store implements store.TaskStore on SQLite. Rows come back in insertion
// order.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.TaskStore = (*Store)(nil)

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// where translates a filter into a WHERE clause with the same semantics as
// model.Filter.Match.
func where(f model.Filter) (string, []any, bool) {
	switch f.Scope {
	case model.ViewPersonal:
		if f.MemberID == "" {
			return "", nil, false
		}
		return "(assigned_to = ? OR owner_id = ?) AND visibility_scope = ?",
			[]any{f.MemberID, f.MemberID, string(model.ScopePersonal)}, true
	case model.ViewShared:
		if f.DepartmentType == "" {
			return "", nil, false
		}
		return "visibility_scope = ? AND department_type = ?",
			[]any{string(model.ScopeShared), f.DepartmentType}, true
	case model.ViewTeam:
		if f.TeamID == "" {
			return "", nil, false
		}
		clause := "visibility_scope = ? AND team_id = ?"
		args := []any{string(model.ScopeTeam), f.TeamID}
		if f.DepartmentType != "" {
			clause += " AND department_type = ?"
			args = append(args, f.DepartmentType)
		}
		return clause, args, true
	case model.ViewIndividual:
		members := f.Members()
		if len(members) == 0 {
			return "", nil, false
		}
		clause := "assigned_to IN (?" + strings.Repeat(", ?", len(members)-1) + ")"
		args := make([]any, 0, len(members)+1)
		for _, m := range members {
			args = append(args, m)
		}
		if f.DepartmentType != "" {
			clause += " AND department_type = ?"
			args = append(args, f.DepartmentType)
		}
		return clause, args, true
	case model.ViewDepartment:
		if f.DepartmentType == "" {
			return "", nil, false
		}
		return "department_type = ?", []any{f.DepartmentType}, true
	}
	return "", nil, false
}

func (s *Store) Fetch(ctx context.Context, f model.Filter) ([]model.Task, error) {
	clause, args, ok := where(f)
	if !ok {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+columns+" FROM tasks WHERE "+clause+" ORDER BY seq", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) get(ctx context.Context, id string) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM tasks WHERE id = ?", id)
	t, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return t, err
}

func (s *Store) Create(ctx context.Context, t model.Task) (model.Task, error) {
	t.Normalize()
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Pending = false

	_, err := s.db.ExecContext(ctx, "INSERT INTO tasks ("+columns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.OwnerID, t.AssignedTo,
		t.TeamID, t.DepartmentType, t.Location, string(t.VisibilityScope), t.Date,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if isUniqueViolation(err) {
		return model.Task{}, fmt.Errorf("%w: %s", store.ErrConflict, t.ID)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return t, nil
}

func (s *Store) Update(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	current, err := s.get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	t := patch.Apply(current)
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}
	t.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?,
		assigned_to = ?, location = ?, visibility_scope = ?, date = ?, updated_at = ? WHERE id = ?`,
		t.Title, t.Description, string(t.Status), string(t.Priority), t.AssignedTo, t.Location,
		string(t.VisibilityScope), t.Date, formatTime(t.UpdatedAt), id)
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (model.Task, error) {
	var (
		t                    model.Task
		status, priority     string
		scope                string
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &t.OwnerID, &t.AssignedTo,
		&t.TeamID, &t.DepartmentType, &t.Location, &scope, &t.Date, &createdAt, &updatedAt)
	if err != nil {
		return model.Task{}, err
	}
	t.Status = model.Status(status)
	t.Priority = model.Priority(priority)
	t.VisibilityScope = model.Scope(scope)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
