package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"KnowledgeSync/internal/config"
	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/infrastructure/firecrawl"
	"KnowledgeSync/internal/infrastructure/knowledge"
	"KnowledgeSync/internal/infrastructure/report"
	"KnowledgeSync/internal/infrastructure/scheduler"
	"KnowledgeSync/internal/infrastructure/session"
	"KnowledgeSync/internal/infrastructure/telegram"
	"KnowledgeSync/internal/logging"
	"KnowledgeSync/internal/metrics"
	"KnowledgeSync/internal/ports"
	"KnowledgeSync/internal/usecase"
)

// Hooks lets the caller observe and gate a run.
type Hooks struct {
	Confirm    func(ctx context.Context, articles []domain.ArticleRecord) bool
	OnProgress func(usecase.Progress)
	OnArticle  func(index, total int, outcome domain.UploadOutcome)
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	closers  []func() error
}

// New builds the application. Close releases the session store connections.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, hooks Hooks) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.FromConfig(cfg.Logging)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	store, err := a.sessionStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	crawlClient := firecrawl.NewClient(cfg.Crawl, &http.Client{Timeout: cfg.Crawl.RequestTimeout})
	kbClient := knowledge.NewClient(cfg.Knowledge, &http.Client{Timeout: cfg.Knowledge.RequestTimeout})

	resolver := usecase.NewIdentityResolver(usecase.ResolverDeps{
		KnowledgeBase: kbClient,
		PageDelay:     cfg.Knowledge.PageDelay,
		Logger:        baseLogger.With("component", "resolver"),
	})
	uploader := usecase.NewUploader(usecase.UploaderDeps{
		Resolver:          resolver,
		KnowledgeBase:     kbClient,
		Store:             store,
		KnowledgeSourceID: cfg.Knowledge.KnowledgeSourceID,
		BatchSize:         cfg.Upload.BatchSize,
		MaxRetries:        cfg.Upload.MaxRetries,
		BackoffBase:       cfg.Upload.BackoffBase,
		BatchRest:         cfg.Upload.BatchRest,
		Logger:            baseLogger.With("component", "uploader"),
		OnArticle:         hooks.OnArticle,
	})
	poller := usecase.NewJobPoller(usecase.PollerDeps{
		Crawl:       crawlClient,
		Interval:    cfg.Crawl.PollInterval,
		MaxAttempts: cfg.Crawl.MaxPollAttempts,
		Logger:      baseLogger.With("component", "poller"),
		OnProgress:  hooks.OnProgress,
	})
	converter := usecase.NewConverter(usecase.ConverterConfig{
		Language:          cfg.Knowledge.Language,
		KnowledgeSourceID: cfg.Knowledge.KnowledgeSourceID,
		URLTitles:         cfg.Knowledge.URLTitles,
	})

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg)
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Crawl:      crawlClient,
		Poller:     poller,
		Converter:  converter,
		Uploader:   uploader,
		Store:      store,
		Results:    report.NewFileWriter(cfg.Upload.ResultsDir, cfg.Knowledge.Instance),
		Notifier:   notifier,
		SessionKey: cfg.SessionKey(),
		Confirm:    hooks.Confirm,
		Logger:     baseLogger.With("component", "pipeline"),
	})
	return a, nil
}

func (a *Application) sessionStore(ctx context.Context) (ports.SessionStore, error) {
	cfg := a.cfg.Session
	switch cfg.Store {
	case "", config.StoreMemory:
		return session.NewMemoryStore(), nil
	case config.StoreRedis:
		client, err := session.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connect session redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return session.NewRedisStore(client, 0), nil
	case config.StorePostgres:
		db, err := session.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect session database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return a.postgresStore(ctx, db, cfg.Table)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

func (a *Application) postgresStore(ctx context.Context, db *sql.DB, table string) (ports.SessionStore, error) {
	store := session.NewPostgresStore(db, table)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("prepare session table: %w", err)
	}
	return store, nil
}

// Pipeline exposes the wired use case.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// CrawlRequest builds the crawl request from configuration.
func (a *Application) CrawlRequest() domain.CrawlRequest {
	return domain.CrawlRequest{
		URL:             a.cfg.Crawl.URL,
		Limit:           a.cfg.Crawl.Limit,
		OnlyMainContent: a.cfg.Crawl.MainContentOnly(),
		Formats:         a.cfg.Crawl.Formats,
		ProxyMode:       a.cfg.Crawl.ProxyMode,
	}
}

// Run performs a single sync.
func (a *Application) Run(ctx context.Context, search string) (usecase.SyncResult, error) {
	go a.serveMetrics(ctx)
	return a.pipeline.Sync(ctx, usecase.SyncRequest{Crawl: a.CrawlRequest(), Search: search})
}

// RunScheduled syncs on the configured cron schedule until ctx is done.
func (a *Application) RunScheduled(ctx context.Context) error {
	go a.serveMetrics(ctx)

	sched := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location())
	log := a.logger.With("component", "scheduler")
	err := sched.Start(ctx, func(at time.Time) {
		log.Info("scheduled sync starting", "at", at)
		result, err := a.pipeline.Sync(ctx, usecase.SyncRequest{Crawl: a.CrawlRequest()})
		switch {
		case errors.Is(err, domain.ErrNoArticles):
			log.Warn("scheduled sync found no articles")
		case err != nil:
			log.Error("scheduled sync failed", "halting", usecase.IsHalting(err), "error", err)
		default:
			log.Info("scheduled sync done", "succeeded", result.Report.Succeeded, "failed", result.Report.Failed, "results", result.ResultsPath)
		}
	})
	if err != nil {
		return err
	}
	log.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "timezone", a.cfg.Scheduler.Location().String())

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return sched.Stop(stopCtx)
}

func (a *Application) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger.With("component", "metrics"))
}

// Close releases external connections.
func (a *Application) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
