package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krskas/slack-task-tracker/internal/commands"
	"github.com/krskas/slack-task-tracker/internal/domain"
	"github.com/krskas/slack-task-tracker/services/tracker/config"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Print the task states",
	Long: `Print the task states the tracker would seed, after the states file and
emoji overrides are applied. With --stored the states are read from the store
instead.`,
	RunE: runStates,
}

func init() {
	statesCmd.Flags().Bool("stored", false, "read the states from the configured store")
}

func runStates(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())

	var states []domain.TaskState
	if stored, _ := cmd.Flags().GetBool("stored"); stored {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := openStore(ctx, cfg, buildLogger(cfg.LogLevel, serviceName))
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		if states, err = st.LoadStates(ctx); err != nil {
			return err
		}
	} else {
		var err error
		if states, err = configuredStates(cfg); err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), commands.RenderStates(states))
	return nil
}
