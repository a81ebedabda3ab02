package tracker

import (
	"context"
	"log/slog"

	"github.com/krskas/slack-task-tracker/internal/catalog"
)

// CatalogReloader swaps the live catalog for what storage holds now.
type CatalogReloader struct {
	Catalog *catalog.Catalog
	Source  catalog.Source
	Logger  *slog.Logger
}

func (r CatalogReloader) ReloadCatalog(ctx context.Context) error {
	if err := r.Catalog.Reload(ctx, r.Source); err != nil {
		return err
	}
	if r.Logger != nil {
		r.Logger.Info("state catalog reloaded", slog.Int("states", len(r.Catalog.States())))
	}
	return nil
}
