package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"KnowledgeSync/internal/app"
	"KnowledgeSync/internal/config"
	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/usecase"
)

const previewLimit = 20

type syncOptions struct {
	url       string
	limit     int
	search    string
	language  string
	urlTitles bool
	yes       bool
}

func syncCommand() *cobra.Command {
	opts := &syncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Crawl the configured site and upload its pages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", "", "site to crawl (overrides crawl.url)")
	flags.IntVar(&opts.limit, "limit", 0, "maximum pages to crawl (overrides crawl.limit)")
	flags.StringVar(&opts.search, "search", "", "only upload articles whose name or URL contains this term")
	flags.StringVar(&opts.language, "language", "", "article language code, or \"auto\" to detect per page")
	flags.BoolVar(&opts.urlTitles, "url-titles", false, "derive article names from URLs instead of page titles")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "upload without asking for confirmation")
	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, opts *syncOptions) error {
	out := cmd.OutOrStdout()
	hooks := progressHooks(out)
	if !opts.yes {
		hooks.Confirm = confirmPrompt(cmd.InOrStdin(), out)
	}

	application, _, logger, err := buildApp(ctx, hooks, func(cfg *config.Config) {
		if opts.url != "" {
			cfg.Crawl.URL = opts.url
		}
		if opts.limit > 0 {
			cfg.Crawl.Limit = opts.limit
		}
		if opts.language != "" {
			cfg.Knowledge.Language = opts.language
		}
		if opts.urlTitles {
			cfg.Knowledge.URLTitles = true
		}
	})
	if err != nil {
		return err
	}
	defer application.Close()

	result, err := application.Run(ctx, opts.search)
	switch {
	case errors.Is(err, domain.ErrNoArticles):
		fmt.Fprintln(out, "No articles to upload.")
		return nil
	case err != nil:
		if usecase.IsHalting(err) {
			logger.Error("crawl did not produce pages", "error", err)
		}
		return err
	case result.Declined:
		fmt.Fprintln(out, "Upload cancelled.")
		return nil
	}

	printReport(out, result.Report, result.ResultsPath)
	return nil
}

func progressHooks(out io.Writer) app.Hooks {
	return app.Hooks{
		OnProgress: func(p usecase.Progress) {
			fmt.Fprintf(out, "crawl %-9s %3.0f%% (%d/%d pages, check %d)\n", p.State, p.Fraction*100, p.Completed, p.Total, p.Attempt)
		},
		OnArticle: func(index, total int, o domain.UploadOutcome) {
			mark := "ok"
			if !o.Success {
				mark = "FAILED: " + o.Error
			}
			fmt.Fprintf(out, "[%d/%d] %s %s\n", index+1, total, o.ArticleName, mark)
		},
	}
}

func confirmPrompt(in io.Reader, out io.Writer) func(context.Context, []domain.ArticleRecord) bool {
	reader := bufio.NewReader(in)
	return func(_ context.Context, articles []domain.ArticleRecord) bool {
		fmt.Fprintf(out, "%d articles ready for upload:\n", len(articles))
		for i, a := range articles {
			if i == previewLimit {
				fmt.Fprintf(out, "  ... and %d more\n", len(articles)-previewLimit)
				break
			}
			fmt.Fprintf(out, "  %2d. %s (%s)\n", i+1, a.Name, a.URL)
		}
		fmt.Fprint(out, "Upload these articles? [y/N]: ")

		answer, err := reader.ReadString('\n')
		if err != nil && answer == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

func printReport(out io.Writer, report usecase.UploadReport, resultsPath string) {
	fmt.Fprint(out, usecase.BuildSummary(report))
	if resultsPath != "" {
		fmt.Fprintf(out, "Results saved to %s\n", resultsPath)
	}
}
