// Package sqlite is the single-file store driver, backed by database/sql and
// mattn/go-sqlite3. The schema is created on open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/store"
)

const schema = `
	CREATE TABLE IF NOT EXISTS task_states (
		name                   TEXT PRIMARY KEY,
		emoji                  TEXT NOT NULL,
		description            TEXT NOT NULL DEFAULT '',
		color                  TEXT NOT NULL DEFAULT '',
		order_num              INTEGER NOT NULL,
		is_terminal            INTEGER NOT NULL DEFAULT 0,
		allowed_transitions_to TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		channel          TEXT NOT NULL,
		message_ts       TEXT NOT NULL,
		author           TEXT NOT NULL,
		status           TEXT NOT NULL,
		created_at       DATETIME NOT NULL,
		state_changed_at DATETIME NOT NULL,
		state_changed_by TEXT NOT NULL,
		completed_at     DATETIME,
		completed_by     TEXT,
		UNIQUE (channel, message_ts)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks (status, created_at DESC);
`

const taskColumns = `id, channel, message_ts, author, status, created_at,
	state_changed_at, state_changed_by, completed_at, completed_by`

// Store is the SQLite store driver.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open creates the database file (and its directory) if needed and applies
// the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer keeps SQLITE_BUSY out of the event path.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Find(ctx context.Context, key domain.TaskKey) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE channel = ? AND message_ts = ?
	`, key.Channel, key.MessageTS)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.TaskNotFoundError{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("find task %s: %w", key, err)
	}
	return task, nil
}

func (s *Store) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (channel, message_ts, author, status, created_at, state_changed_at, state_changed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, task.Channel, task.MessageTS, task.Author, task.Status,
		task.CreatedAt.UTC(), task.StateChangedAt.UTC(), task.StateChangedBy)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, &domain.DuplicateTaskError{Key: task.Key()}
		}
		return nil, fmt.Errorf("create task %s: %w", task.Key(), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create task %s: %w", task.Key(), err)
	}
	out := *task
	out.ID = id
	out.CreatedAt = task.CreatedAt.UTC()
	out.StateChangedAt = task.StateChangedAt.UTC()
	return &out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, change domain.StatusChange) error {
	at := change.ChangedAt.UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?,
		    state_changed_at = ?,
		    state_changed_by = ?,
		    completed_at = CASE WHEN ? THEN ? ELSE completed_at END,
		    completed_by = CASE WHEN ? THEN ? ELSE completed_by END
		WHERE channel = ? AND message_ts = ?
	`, change.Status, at, change.Actor,
		change.Terminal, at, change.Terminal, change.Actor,
		change.Key.Channel, change.Key.MessageTS)
	if err != nil {
		return fmt.Errorf("update status for task %s: %w", change.Key, err)
	}
	return affected(res, change.Key)
}

func (s *Store) Delete(ctx context.Context, key domain.TaskKey) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE channel = ? AND message_ts = ?`,
		key.Channel, key.MessageTS)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", key, err)
	}
	return affected(res, key)
}

func (s *Store) ListByStatus(ctx context.Context, statuses []string, limit int) ([]*domain.Task, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses)+1)
	for _, st := range statuses {
		args = append(args, st)
	}
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE status IN (` + marks + `) ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks by status %v: %w", statuses, err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *Store) LoadStates(ctx context.Context) ([]domain.TaskState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, emoji, description, color, order_num, is_terminal, allowed_transitions_to
		FROM task_states ORDER BY order_num
	`)
	if err != nil {
		return nil, fmt.Errorf("load task states: %w", err)
	}
	defer rows.Close()

	var states []domain.TaskState
	for rows.Next() {
		var st domain.TaskState
		var transitions string
		if err := rows.Scan(&st.Name, &st.Emoji, &st.Description, &st.Color,
			&st.OrderNum, &st.IsTerminal, &transitions); err != nil {
			return nil, fmt.Errorf("scan task state: %w", err)
		}
		st.AllowedTransitionsTo = domain.SplitTransitions(transitions)
		states = append(states, st)
	}
	return states, rows.Err()
}

func (s *Store) SeedStates(ctx context.Context, states []domain.TaskState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed task states: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, st := range states {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_states
				(name, emoji, description, color, order_num, is_terminal, allowed_transitions_to)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, st.Name, st.Emoji, st.Description, st.Color, st.OrderNum, st.IsTerminal,
			domain.JoinTransitions(st.AllowedTransitionsTo)); err != nil {
			return fmt.Errorf("seed state %s: %w", st.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE task_states SET emoji = ? WHERE name = ?`,
			st.Emoji, st.Name); err != nil {
			return fmt.Errorf("refresh emoji for %s: %w", st.Name, err)
		}
	}
	return tx.Commit()
}

func affected(res sql.Result, key domain.TaskKey) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for task %s: %w", key, err)
	}
	if n == 0 {
		return &domain.TaskNotFoundError{Key: key}
	}
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (*domain.Task, error) {
	var task domain.Task
	var completedAt sql.NullTime
	var completedBy sql.NullString
	if err := row.Scan(
		&task.ID, &task.Channel, &task.MessageTS, &task.Author, &task.Status,
		&task.CreatedAt, &task.StateChangedAt, &task.StateChangedBy,
		&completedAt, &completedBy,
	); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		task.CompletedAt = &t
	}
	task.CompletedBy = completedBy.String
	task.CreatedAt = task.CreatedAt.UTC()
	task.StateChangedAt = task.StateChangedAt.UTC()
	return &task, nil
}
