package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"KnowledgeSync/internal/config"
	"KnowledgeSync/internal/domain"
)

// warnEphemeralStore notes that failures from earlier processes are not visible
// when sessions live in memory.
func warnEphemeralStore(out io.Writer, cfg config.Config) {
	if cfg.Session.Store != "" && cfg.Session.Store != config.StoreMemory {
		return
	}
	fmt.Fprintln(out, "warning: session.store is \"memory\"; failures recorded by earlier runs are not kept between processes."+
		" Configure a redis or postgres session store to retry them.")
}

func retryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Upload the articles that failed in earlier runs again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, out := cmd.Context(), cmd.OutOrStdout()
			hooks := progressHooks(out)
			hooks.OnProgress = nil

			application, cfg, _, err := buildApp(ctx, hooks, nil)
			if err != nil {
				return err
			}
			defer application.Close()
			warnEphemeralStore(out, cfg)

			report, path, err := application.Pipeline().RetryFailed(ctx)
			if errors.Is(err, domain.ErrNoArticles) {
				fmt.Fprintln(out, "No failed articles to retry.")
				return nil
			}
			if err != nil {
				return err
			}
			printReport(out, report, path)
			return nil
		},
	}
}

func failedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List articles waiting for a retry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, out := cmd.Context(), cmd.OutOrStdout()
			application, cfg, _, err := buildApp(ctx, progressHooks(out), nil)
			if err != nil {
				return err
			}
			defer application.Close()
			warnEphemeralStore(out, cfg)

			failed, err := application.Pipeline().FailedArticles(ctx)
			if err != nil {
				return err
			}
			if len(failed) == 0 {
				fmt.Fprintln(out, "No failed articles.")
				return nil
			}
			for i, f := range failed {
				status := "N/A"
				if f.StatusCode != 0 {
					status = fmt.Sprint(f.StatusCode)
				}
				fmt.Fprintf(out, "%2d. %s (%s) status %s after %d attempts: %s\n",
					i+1, f.Article.Name, f.Article.ID, status, f.Retries, f.LastError)
			}
			return nil
		},
	}
}

func clearFailedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-failed",
		Short: "Forget failed articles without uploading them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, out := cmd.Context(), cmd.OutOrStdout()
			application, cfg, _, err := buildApp(ctx, progressHooks(out), nil)
			if err != nil {
				return err
			}
			defer application.Close()
			warnEphemeralStore(out, cfg)

			if err := application.Pipeline().ClearFailed(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Failed articles cleared.")
			return nil
		},
	}
}
