package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krskas/slack-task-tracker/internal/reconcile"
	"github.com/krskas/slack-task-tracker/services/tracker/config"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Backfill tasks from channel history once",
	Long: `Scan one channel (--channel) or every channel the bot is a member of and
create tasks for messages that carry the entry state's reaction but are not
tracked yet. Existing tasks are never modified.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().String("channel", "", "channel ID to scan; empty scans every member channel")
	scanCmd.Flags().Duration("lookback", 0, "how far back to read history (default scan_lookback)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, serviceName)
	if d, _ := cmd.Flags().GetDuration("lookback"); d > 0 {
		cfg.ScanLookback = d
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cat, err := seedCatalog(ctx, cfg, st)
	if err != nil {
		return err
	}
	_, chat, err := newChat(cfg, logger)
	if err != nil {
		return err
	}
	scanner := reconcile.NewScanner(cat, st, chat,
		reconcile.WithLookback(cfg.ScanLookback),
		reconcile.WithMaxMessages(cfg.ScanMaxMessages),
		reconcile.WithLogger(logger),
	)

	var result any
	if channel, _ := cmd.Flags().GetString("channel"); channel != "" {
		result, err = scanner.ScanChannel(ctx, channel)
	} else {
		result, err = scanner.ScanAllChannels(ctx)
	}
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
