package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"KnowledgeSync/internal/app"
	"KnowledgeSync/internal/config"
	"KnowledgeSync/internal/logging"
)

var version = "dev"

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:           "knowledgesync",
		Short:         "Crawl a site and sync its pages into a knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command until it returns or the process is signalled.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (overrides $KNOWLEDGESYNC_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "knowledgesync %s\n", version)
		},
	})
	rootCmd.AddCommand(syncCommand())
	rootCmd.AddCommand(retryCommand())
	rootCmd.AddCommand(failedCommand())
	rootCmd.AddCommand(clearFailedCommand())
	rootCmd.AddCommand(scheduleCommand())
}

func loadConfig() (config.Config, *slog.Logger) {
	if cfgFile != "" {
		_ = os.Setenv("KNOWLEDGESYNC_CONFIG", cfgFile)
	}
	cfg := config.Load()
	if debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, logging.FromConfig(cfg.Logging)
}

func buildApp(ctx context.Context, hooks app.Hooks, override func(*config.Config)) (*app.Application, config.Config, *slog.Logger, error) {
	cfg, logger := loadConfig()
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfg, logger, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("configuration loaded", "config", cfg.String())

	application, err := app.New(ctx, cfg, logger, hooks)
	if err != nil {
		return nil, cfg, logger, err
	}
	return application, cfg, logger, nil
}
