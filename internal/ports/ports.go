package ports

import (
	"context"
	"time"

	"KnowledgeSync/internal/domain"
)

// CrawlService starts and observes remote crawl jobs.
type CrawlService interface {
	StartCrawl(ctx context.Context, req domain.CrawlRequest) (domain.CrawlStart, error)
	JobStatus(ctx context.Context, jobID string) (domain.CrawlJob, error)
}

// KnowledgeBase lists and upserts articles in the remote knowledge store.
type KnowledgeBase interface {
	// ListArticles fetches one page; an empty cursor requests the first page.
	ListArticles(ctx context.Context, knowledgeSourceID, cursor string) (domain.ArticlePage, error)
	UpsertArticle(ctx context.Context, article domain.ArticleRecord) (domain.UploadResult, error)
}

// SessionStore persists upload sessions between invocations.
type SessionStore interface {
	Load(ctx context.Context, key string) (domain.UploadSession, error)
	Save(ctx context.Context, session domain.UploadSession) error
}

// ResultsWriter produces the structured outcome log at the end of a run.
type ResultsWriter interface {
	WriteResults(ctx context.Context, runID string, outcomes []domain.UploadOutcome) (string, error)
}

// Notifier publishes run summaries to chat channels.
type Notifier interface {
	PublishSummary(ctx context.Context, summary string) error
}

// Scheduler controls when recurring syncs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
