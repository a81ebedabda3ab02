package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/krskas/slack-task-tracker/services/tracker/config"
)

const serviceName = "tracker"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "tracker",
	Short:        "Slack task tracker: turns emoji reactions into tracked tasks",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/tracker/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./tracker.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug | info | warn | error")
	rootCmd.PersistentFlags().String("store-driver", config.DriverSQLite, "task store: postgres | sqlite | memory")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "PostgreSQL DSN (store-driver=postgres)")
	rootCmd.PersistentFlags().String("sqlite-path", "/data/tasks.db", "SQLite database file (store-driver=sqlite)")
	rootCmd.PersistentFlags().String("states-file", "", "YAML file of task states; empty uses the built-in states")

	bindFlag("log_level", rootCmd.PersistentFlags(), "log-level")
	bindFlag("store_driver", rootCmd.PersistentFlags(), "store-driver")
	bindFlag("postgres_dsn", rootCmd.PersistentFlags(), "postgres-dsn")
	bindFlag("sqlite_path", rootCmd.PersistentFlags(), "sqlite-path")
	bindFlag("states_file", rootCmd.PersistentFlags(), "states-file")

	config.Defaults(viper.GetViper())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statesCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(newInitCmd(serviceName, defaultTrackerYAML))
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.SetConfigName(serviceName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(home + "/.slack-task-tracker")
		viper.AddConfigPath("/etc/slack-task-tracker")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "error reading config file:", err)
			os.Exit(1)
		}
	} else {
		fmt.Fprintln(os.Stderr, "config:", viper.ConfigFileUsed())
	}
}

func buildLogger(level, service string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})).
		With(slog.String("service", service))
}

func bindFlag(viperKey string, fs *pflag.FlagSet, flagName string) {
	if err := viper.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("bindFlag %q → %q: %v", flagName, viperKey, err))
	}
}
