package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"KnowledgeSync/internal/domain"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type fakeKB struct {
	mu        sync.Mutex
	pages     map[string]domain.ArticlePage
	listErr   error
	listCalls []string
	upsert    func(article domain.ArticleRecord) (domain.UploadResult, error)
	uploaded  []domain.ArticleRecord
}

func (f *fakeKB) ListArticles(_ context.Context, _ string, cursor string) (domain.ArticlePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, cursor)
	if f.listErr != nil {
		return domain.ArticlePage{}, f.listErr
	}
	return f.pages[cursor], nil
}

func (f *fakeKB) UpsertArticle(_ context.Context, article domain.ArticleRecord) (domain.UploadResult, error) {
	f.mu.Lock()
	f.uploaded = append(f.uploaded, article)
	fn := f.upsert
	f.mu.Unlock()
	if fn != nil {
		return fn(article)
	}
	return domain.UploadResult{StatusCode: 200}, nil
}

func (f *fakeKB) Uploaded() []domain.ArticleRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ArticleRecord(nil), f.uploaded...)
}

type fakeCrawl struct {
	start    domain.CrawlStart
	startErr error
	statuses []statusStep
	calls    int
}

type statusStep struct {
	job domain.CrawlJob
	err error
}

func (f *fakeCrawl) StartCrawl(context.Context, domain.CrawlRequest) (domain.CrawlStart, error) {
	return f.start, f.startErr
}

func (f *fakeCrawl) JobStatus(_ context.Context, jobID string) (domain.CrawlJob, error) {
	step := f.statuses[min(f.calls, len(f.statuses)-1)]
	f.calls++
	step.job.ID = jobID
	return step.job, step.err
}

func makeArticles(n int) []domain.ArticleRecord {
	out := make([]domain.ArticleRecord, n)
	for i := range out {
		out[i] = domain.ArticleRecord{
			ID:                fmt.Sprintf("page_%d", i+1),
			Name:              fmt.Sprintf("Article %d", i+1),
			Content:           "body",
			URL:               fmt.Sprintf("https://example.com/%d", i+1),
			Language:          "en",
			KnowledgeSourceID: "kb",
			ExternalUpdated:   "2025-01-01T00:00:00.000000Z",
		}
	}
	return out
}
