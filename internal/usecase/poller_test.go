package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"KnowledgeSync/internal/domain"
)

func scraping(completed, total int) statusStep {
	return statusStep{job: domain.CrawlJob{Status: domain.JobScraping, RawStatus: "scraping", Completed: completed, Total: total}}
}

func TestPollCompletesAfterTransientErrors(t *testing.T) {
	t.Parallel()

	pages := []domain.PageRecord{{SourceURL: "https://example.com/a"}, {SourceURL: "https://example.com/b"}}
	crawl := &fakeCrawl{statuses: []statusStep{
		{err: errors.New("connection reset")},
		scraping(2, 4),
		{job: domain.CrawlJob{Status: domain.JobUnknown, RawStatus: "waiting"}},
		{job: domain.CrawlJob{Status: domain.JobCompleted, RawStatus: "completed", Completed: 2, Total: 2, Pages: pages}},
	}}
	sleeps := &sleepRecorder{}
	var progress []Progress

	poller := NewJobPoller(PollerDeps{
		Crawl:      crawl,
		Sleep:      sleeps.Sleep,
		OnProgress: func(p Progress) { progress = append(progress, p) },
	})

	job, err := poller.Poll(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if len(job.Pages) != 2 || job.ID != "job-1" {
		t.Fatalf("unexpected job: %+v", job)
	}

	waits := sleeps.Waits()
	if len(waits) != 3 {
		t.Fatalf("expected 3 sleeps, got %v", waits)
	}
	for _, w := range waits {
		if w != 5*time.Second {
			t.Fatalf("expected default 5s interval, got %v", w)
		}
	}

	if len(progress) != 3 {
		t.Fatalf("expected 3 progress reports, got %d", len(progress))
	}
	if progress[0].State != PollScraping || progress[0].Fraction != 0.5 {
		t.Fatalf("unexpected scraping progress: %+v", progress[0])
	}
	if progress[1].State != PollScraping || progress[1].RawStatus != "waiting" || progress[1].Fraction != 0.1 {
		t.Fatalf("unexpected other-status progress: %+v", progress[1])
	}
	if progress[2].State != PollCompleted || progress[2].Fraction != 1 {
		t.Fatalf("unexpected final progress: %+v", progress[2])
	}
}

func TestScrapingFractionClamped(t *testing.T) {
	t.Parallel()

	cases := []struct {
		completed, total int
		want             float64
	}{
		{completed: 0, total: 0, want: 0.1},
		{completed: 1, total: 4, want: 0.25},
		{completed: 10, total: 10, want: 0.9},
		{completed: 95, total: 100, want: 0.9},
	}
	for _, tc := range cases {
		got := scrapingFraction(domain.CrawlJob{Completed: tc.completed, Total: tc.total})
		if got != tc.want {
			t.Fatalf("scrapingFraction(%d/%d) = %v, want %v", tc.completed, tc.total, got, tc.want)
		}
	}
}

func TestPollFailed(t *testing.T) {
	t.Parallel()

	crawl := &fakeCrawl{statuses: []statusStep{
		scraping(1, 3),
		{job: domain.CrawlJob{Status: domain.JobFailed, RawStatus: "failed"}},
	}}
	poller := NewJobPoller(PollerDeps{Crawl: crawl, Sleep: (&sleepRecorder{}).Sleep})

	_, err := poller.Poll(context.Background(), "job-2")
	if !errors.Is(err, domain.ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
}

func TestPollTimeout(t *testing.T) {
	t.Parallel()

	crawl := &fakeCrawl{statuses: []statusStep{scraping(1, 100)}}
	sleeps := &sleepRecorder{}
	var last Progress
	poller := NewJobPoller(PollerDeps{
		Crawl:       crawl,
		Interval:    time.Second,
		MaxAttempts: 4,
		Sleep:       sleeps.Sleep,
		OnProgress:  func(p Progress) { last = p },
	})

	_, err := poller.Poll(context.Background(), "job-3")
	if !errors.Is(err, domain.ErrJobTimeout) {
		t.Fatalf("expected ErrJobTimeout, got %v", err)
	}
	if crawl.calls != 4 {
		t.Fatalf("expected 4 status calls, got %d", crawl.calls)
	}
	if len(sleeps.Waits()) != 4 {
		t.Fatalf("expected 4 sleeps, got %d", len(sleeps.Waits()))
	}
	if last.State != PollTimeout {
		t.Fatalf("expected final timeout state, got %s", last.State)
	}
}

func TestPollStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poller := NewJobPoller(PollerDeps{Crawl: &fakeCrawl{statuses: []statusStep{scraping(0, 0)}}})

	if _, err := poller.Poll(ctx, "job-4"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
