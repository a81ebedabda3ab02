package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krskas/slack-task-tracker/services/tracker/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema and seed the task states",
	Long: `Connect to the configured store, apply schema migrations and seed the
task states (insert-if-absent, then refresh emoji overrides).

Reads the driver from --store-driver / STORE_DRIVER and the connection from
--postgres-dsn or --sqlite-path.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, serviceName)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// openStore applies the schema for every driver.
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cat, err := seedCatalog(ctx, cfg, st)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "schema ready (%s)\n", cfg.StoreDriver)
	fmt.Fprintf(out, "seeded %d task states\n", len(cat.States()))
	return nil
}
