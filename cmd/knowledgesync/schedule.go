package main

import (
	"github.com/spf13/cobra"

	"KnowledgeSync/internal/app"
)

func scheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run syncs on the configured cron schedule",
		Long: `Runs a sync whenever scheduler.cronExpression fires, uploading without
confirmation. Overlapping runs are skipped. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			application, _, _, err := buildApp(ctx, app.Hooks{}, nil)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.RunScheduled(ctx)
		},
	}
}
