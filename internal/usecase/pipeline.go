package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/ports"
)

// PipelineDeps wires all driven adapters into the sync pipeline.
type PipelineDeps struct {
	Crawl      ports.CrawlService
	Poller     *JobPoller
	Converter  *Converter
	Uploader   *Uploader
	Store      ports.SessionStore
	Results    ports.ResultsWriter
	Notifier   ports.Notifier
	SessionKey string
	// Confirm gates resolution and upload; nil means always proceed.
	Confirm func(ctx context.Context, articles []domain.ArticleRecord) bool
	Logger  *slog.Logger
}

// SyncRequest describes one crawl-and-upload run.
type SyncRequest struct {
	Crawl  domain.CrawlRequest
	Search string
}

// SyncResult is everything a sync run produced.
type SyncResult struct {
	Job         domain.CrawlJob
	Articles    []domain.ArticleRecord
	Declined    bool
	Report      UploadReport
	ResultsPath string
}

// Pipeline implements the crawl → convert → resolve → upload workflow.
type Pipeline struct {
	crawl      ports.CrawlService
	poller     *JobPoller
	converter  *Converter
	uploader   *Uploader
	store      ports.SessionStore
	results    ports.ResultsWriter
	notifier   ports.Notifier
	sessionKey string
	confirm    func(ctx context.Context, articles []domain.ArticleRecord) bool
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		crawl:      deps.Crawl,
		poller:     deps.Poller,
		converter:  deps.Converter,
		uploader:   deps.Uploader,
		store:      deps.Store,
		results:    deps.Results,
		notifier:   deps.Notifier,
		sessionKey: deps.SessionKey,
		confirm:    deps.Confirm,
		logger:     deps.Logger,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if p.converter == nil {
		p.converter = NewConverter(ConverterConfig{})
	}
	if p.poller == nil {
		p.poller = NewJobPoller(PollerDeps{Crawl: deps.Crawl, Logger: p.logger})
	}
	return p
}

// Crawl starts a job and waits for its pages. JobFailed and JobTimeout halt the pipeline.
func (p *Pipeline) Crawl(ctx context.Context, req domain.CrawlRequest) (domain.CrawlJob, error) {
	start, err := p.crawl.StartCrawl(ctx, req)
	if err != nil {
		return domain.CrawlJob{}, fmt.Errorf("start crawl: %w", err)
	}
	if start.Job != nil {
		p.logger.Info("crawl returned synchronously", "url", req.URL, "pages", len(start.Job.Pages))
		return *start.Job, nil
	}

	p.logger.Info("crawl job started", "url", req.URL, "job_id", start.ID, "limit", req.Limit)
	job, err := p.poller.Poll(ctx, start.ID)
	if err != nil {
		return domain.CrawlJob{}, fmt.Errorf("poll crawl: %w", err)
	}
	return job, nil
}

// Prepare converts crawled pages into articles and applies the search filter.
func (p *Pipeline) Prepare(job domain.CrawlJob, search string) []domain.ArticleRecord {
	articles := p.converter.Convert(job.Pages)
	selected := FilterArticles(articles, search)
	p.logger.Info("articles prepared", "pages", len(job.Pages), "selected", len(selected), "search", search)
	return selected
}

// Sync runs a full crawl and, once confirmed, uploads the selected articles.
func (p *Pipeline) Sync(ctx context.Context, req SyncRequest) (SyncResult, error) {
	job, err := p.Crawl(ctx, req.Crawl)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{Job: job, Articles: p.Prepare(job, req.Search)}
	if len(result.Articles) == 0 {
		return result, domain.ErrNoArticles
	}

	if p.confirm != nil && !p.confirm(ctx, result.Articles) {
		p.logger.Info("upload declined", "articles", len(result.Articles))
		result.Declined = true
		return result, nil
	}

	report, path, err := p.Upload(ctx, result.Articles)
	result.Report, result.ResultsPath = report, path
	return result, err
}

// Upload loads the session, delivers the articles and persists the session again.
func (p *Pipeline) Upload(ctx context.Context, articles []domain.ArticleRecord) (UploadReport, string, error) {
	session, err := p.loadSession(ctx, p.sessionKey)
	if err != nil {
		return UploadReport{}, "", err
	}

	report, session, err := p.uploader.Upload(ctx, articles, session)
	if err != nil {
		return report, "", err
	}
	if err := p.saveSession(ctx, session); err != nil {
		p.logger.Error("persist upload session", "key", session.Key, "error", err)
	}

	return report, p.finishRun(ctx, report), nil
}

// RetryFailed re-uploads the session's failed articles from the start of the
// list. Articles that succeed leave the failure list; the rest keep their
// latest error. Articles not reached because of an interruption stay as they were.
func (p *Pipeline) RetryFailed(ctx context.Context) (UploadReport, string, error) {
	main, err := p.loadSession(ctx, p.sessionKey)
	if err != nil {
		return UploadReport{}, "", err
	}
	articles := main.FailedRecords()
	if len(articles) == 0 {
		return UploadReport{}, "", domain.ErrNoArticles
	}

	// Retry progress is not persisted; entries not reached stay in the main list.
	report, _, err := p.uploader.detached().Upload(ctx, articles, domain.UploadSession{Key: p.sessionKey})
	if err != nil {
		return report, "", err
	}

	remaining := make([]domain.FailedArticle, 0, len(main.FailedArticles))
	for i, f := range main.FailedArticles {
		if i < len(report.Outcomes) {
			outcome := report.Outcomes[i]
			if outcome.Success {
				continue
			}
			f.Article.ID = outcome.ArticleID
			f.LastError = outcome.Error
			f.StatusCode = outcome.StatusCode
			f.Retries = outcome.Retries
		}
		remaining = append(remaining, f)
	}
	main.FailedArticles = remaining

	if err := p.saveSession(ctx, main); err != nil {
		p.logger.Error("persist upload session", "key", main.Key, "error", err)
	}
	return report, p.finishRun(ctx, report), nil
}

// FailedArticles lists the articles waiting for a retry.
func (p *Pipeline) FailedArticles(ctx context.Context) ([]domain.FailedArticle, error) {
	session, err := p.loadSession(ctx, p.sessionKey)
	if err != nil {
		return nil, err
	}
	return session.FailedArticles, nil
}

// ClearFailed empties the failure list without uploading.
func (p *Pipeline) ClearFailed(ctx context.Context) error {
	session, err := p.loadSession(ctx, p.sessionKey)
	if err != nil {
		return err
	}
	session.FailedArticles = nil
	return p.saveSession(ctx, session)
}

func (p *Pipeline) finishRun(ctx context.Context, report UploadReport) string {
	var path string
	if p.results != nil && len(report.Outcomes) > 0 {
		written, err := p.results.WriteResults(ctx, report.RunID, report.Outcomes)
		if err != nil {
			p.logger.Error("write upload results", "run_id", report.RunID, "error", err)
		} else {
			path = written
			p.logger.Info("upload results written", "path", path)
		}
	}

	if p.notifier != nil {
		if err := p.notifier.PublishSummary(ctx, BuildSummary(report)); err != nil {
			p.logger.Warn("publish summary", "error", err)
		}
	}
	return path
}

func (p *Pipeline) loadSession(ctx context.Context, key string) (domain.UploadSession, error) {
	if p.store == nil {
		return domain.UploadSession{Key: key}, nil
	}
	session, err := p.store.Load(ctx, key)
	if err != nil {
		return domain.UploadSession{}, fmt.Errorf("load upload session %s: %w", key, err)
	}
	session.Key = key
	return session, nil
}

func (p *Pipeline) saveSession(ctx context.Context, session domain.UploadSession) error {
	if p.store == nil {
		return nil
	}
	if err := p.store.Save(context.WithoutCancel(ctx), session); err != nil {
		return fmt.Errorf("save upload session %s: %w", session.Key, err)
	}
	return nil
}

// BuildSummary renders a human-readable run summary.
func BuildSummary(report UploadReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Upload %s\n", report.RunID)
	if report.Interrupted {
		b.WriteString("Status: interrupted, will resume on next run\n")
	}
	fmt.Fprintf(&b, "Total: %d, Successful: %d, Failed: %d, Skipped: %d\n", report.Total, report.Succeeded, report.Failed, report.Skipped)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n", report.SuccessRate())
	fmt.Fprintf(&b, "Will update: %d, will create: %d\n", report.Updates, report.Creates)
	if report.FetchErr != nil {
		fmt.Fprintf(&b, "Existing articles could not be fetched: %v\n", report.FetchErr)
	}
	for _, o := range report.Outcomes {
		if o.Success {
			continue
		}
		status := "N/A"
		if o.StatusCode != 0 {
			status = fmt.Sprint(o.StatusCode)
		}
		fmt.Fprintf(&b, "- %s (%s) status %s: %s\n", o.ArticleName, o.ArticleID, status, o.Error)
	}
	return b.String()
}

// IsHalting reports whether err stops the pipeline before any upload is possible.
func IsHalting(err error) bool {
	return errors.Is(err, domain.ErrJobFailed) || errors.Is(err, domain.ErrJobTimeout) || errors.Is(err, domain.ErrCrawlStart)
}
