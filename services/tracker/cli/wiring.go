package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"

	"github.com/krskas/slack-task-tracker/internal/catalog"
	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/internal/postgres"
	"github.com/krskas/slack-task-tracker/internal/slackchat"
	"github.com/krskas/slack-task-tracker/internal/sqlite"
	"github.com/krskas/slack-task-tracker/internal/store"
	"github.com/krskas/slack-task-tracker/internal/store/memory"
	"github.com/krskas/slack-task-tracker/pkg/retry"
	"github.com/krskas/slack-task-tracker/services/tracker/config"
)

// openStore connects the configured driver. Postgres gets a few attempts
// since it commonly starts alongside the tracker.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres_dsn is required for store_driver postgres")
		}
		var st *postgres.Store
		err := retry.Do(ctx, retry.Config{
			MaxAttempts: 5,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			OnRetry: func(attempt int, err error) {
				logger.Warn("postgres not ready", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			},
		}, func() error {
			pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			st = postgres.New(pool)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if _, err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil

	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return st, nil

	case config.DriverMemory:
		logger.Warn("using in-memory store; tasks are lost on restart")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store_driver %q", cfg.StoreDriver)
}

// configuredStates returns the states file (or built-in states) with emoji
// overrides applied, validated.
func configuredStates(cfg config.Config) ([]domain.TaskState, error) {
	states := catalog.DefaultStates()
	if cfg.StatesFile != "" {
		loaded, err := catalog.LoadFile(cfg.StatesFile)
		if err != nil {
			return nil, err
		}
		states = loaded
	}
	states = catalog.WithEmojiOverrides(states, cfg.EmojiOverrides)
	if err := catalog.Validate(states); err != nil {
		return nil, err
	}
	return states, nil
}

// seedCatalog writes the configured states to storage and loads the catalog
// back from it, so the store stays the source of truth.
func seedCatalog(ctx context.Context, cfg config.Config, st store.StateSource) (*catalog.Catalog, error) {
	states, err := configuredStates(cfg)
	if err != nil {
		return nil, err
	}
	if err := st.SeedStates(ctx, states); err != nil {
		return nil, fmt.Errorf("seed states: %w", err)
	}
	cat, err := catalog.Load(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}
	return cat, nil
}

func newChat(cfg config.Config, logger *slog.Logger) (*slack.Client, *slackchat.Client, error) {
	if cfg.SlackBotToken == "" {
		return nil, nil, errors.New("slack_bot_token is required")
	}
	api := slackchat.NewAPI(cfg.SlackBotToken, cfg.SlackAppToken)
	return api, slackchat.NewClient(api, logger), nil
}
