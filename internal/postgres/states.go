package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

func (s *Store) LoadStates(ctx context.Context) ([]domain.TaskState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, emoji, description, color, order_num, is_terminal, allowed_transitions_to
		FROM task_states
		ORDER BY order_num
	`)
	if err != nil {
		return nil, fmt.Errorf("load task states: %w", err)
	}
	defer rows.Close()

	var states []domain.TaskState
	for rows.Next() {
		var st domain.TaskState
		if err := rows.Scan(&st.Name, &st.Emoji, &st.Description, &st.Color,
			&st.OrderNum, &st.IsTerminal, &st.AllowedTransitionsTo); err != nil {
			return nil, fmt.Errorf("scan task state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// SeedStates runs in one transaction so a partially seeded catalog is never
// visible to LoadStates.
func (s *Store) SeedStates(ctx context.Context, states []domain.TaskState) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, st := range states {
			transitions := st.AllowedTransitionsTo
			if transitions == nil {
				transitions = []string{}
			}
			batch.Queue(`
				INSERT INTO task_states
					(name, emoji, description, color, order_num, is_terminal, allowed_transitions_to)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (name) DO NOTHING
			`, st.Name, st.Emoji, st.Description, st.Color, st.OrderNum, st.IsTerminal, transitions)
			batch.Queue(`UPDATE task_states SET emoji = $1 WHERE name = $2`, st.Emoji, st.Name)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("seed task states: %w", err)
		}
		return nil
	})
}
