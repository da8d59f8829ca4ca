package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/okian/ttlink/internal/config"
	"github.com/okian/ttlink/pkg/logger"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ttlink",
	Short: "Link calendar events to TimeTracker work items",
	Long: `ttlink reconciles calendar events with TimeTracker work items. Links are
learned from earlier choices, derived from time off and work schedule rules
or suggested by AI, then registered as time entries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setup(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.PathEnv),
		"YAML config file (defaults to $"+config.PathEnv+")")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
		os.Exit(1)
	}
}

// setup loads configuration (defaults -> optional file -> env) and
// initializes logging. Logs go to stderr so command output stays clean.
func setup(ctx context.Context) error {
	loaded, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(logger.Format(loaded.LogFormat)), logger.WithOutput(os.Stderr)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(loaded.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", loaded.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	cfg = loaded
	return nil
}
