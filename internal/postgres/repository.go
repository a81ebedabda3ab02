package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/postgres/migrations"
	"github.com/krskas/slack-task-tracker/internal/store"
)

const uniqueViolation = "23505"

const taskColumns = `id, channel, message_ts, author, status, created_at,
	state_changed_at, state_changed_by, completed_at, completed_by`

// Store is the PostgreSQL store driver.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps a pgxpool with the store interfaces.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// Migrate applies every embedded migration. Each file is idempotent.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	files, err := migrations.Files()
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	for _, f := range files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return nil, fmt.Errorf("execute migration %s: %w", f, err)
		}
	}
	return files, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Find(ctx context.Context, key domain.TaskKey) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE channel = $1 AND message_ts = $2
	`, key.Channel, key.MessageTS)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.TaskNotFoundError{Key: key}
	}
	return task, err
}

func (s *Store) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks
			(channel, message_ts, author, status, created_at, state_changed_at, state_changed_by)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+taskColumns,
		task.Channel, task.MessageTS, task.Author, task.Status,
		task.CreatedAt.UTC(), task.StateChangedAt.UTC(), task.StateChangedBy,
	)

	created, err := scanTask(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, &domain.DuplicateTaskError{Key: task.Key()}
		}
		return nil, fmt.Errorf("create task %s: %w", task.Key(), err)
	}
	return created, nil
}

func (s *Store) UpdateStatus(ctx context.Context, change domain.StatusChange) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET status = $1,
		    state_changed_at = $2,
		    state_changed_by = $3,
		    completed_at = CASE WHEN $4 THEN $2 ELSE completed_at END,
		    completed_by = CASE WHEN $4 THEN $3 ELSE completed_by END
		WHERE channel = $5 AND message_ts = $6
	`, change.Status, change.ChangedAt.UTC(), change.Actor, change.Terminal,
		change.Key.Channel, change.Key.MessageTS)
	if err != nil {
		return fmt.Errorf("update status for task %s: %w", change.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{Key: change.Key}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key domain.TaskKey) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM tasks WHERE channel = $1 AND message_ts = $2
	`, key.Channel, key.MessageTS)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{Key: key}
	}
	return nil
}

func (s *Store) ListByStatus(ctx context.Context, statuses []string, limit int) ([]*domain.Task, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	q := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = ANY($1)
		ORDER BY created_at DESC, id DESC`
	args := []any{statuses}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
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

// scanTask reads a task row from any pgx row type.
func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var completedBy *string
	err := row.Scan(
		&task.ID, &task.Channel, &task.MessageTS, &task.Author, &task.Status,
		&task.CreatedAt, &task.StateChangedAt, &task.StateChangedBy,
		&task.CompletedAt, &completedBy,
	)
	if err != nil {
		return nil, err
	}
	if completedBy != nil {
		task.CompletedBy = *completedBy
	}
	return &task, nil
}
