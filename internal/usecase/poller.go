package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/metrics"
	"KnowledgeSync/internal/ports"
)

// PollState is the poller's view of a crawl job.
type PollState string

const (
	PollQueued    PollState = "queued"
	PollScraping  PollState = "scraping"
	PollCompleted PollState = "completed"
	PollFailed    PollState = "failed"
	PollTimeout   PollState = "timeout"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultMaxPollAttempts = 60
	// maxRunningProgress keeps the bar short of 100% until the job is confirmed complete.
	maxRunningProgress = 0.9
	nominalProgress    = 0.1
)

// Progress is reported after every poll tick.
type Progress struct {
	State     PollState
	RawStatus string
	Completed int
	Total     int
	Fraction  float64
	Attempt   int
}

// PollerDeps wires the job poller.
type PollerDeps struct {
	Crawl       ports.CrawlService
	Interval    time.Duration
	MaxAttempts int
	Sleep       Sleeper
	Logger      *slog.Logger
	OnProgress  func(Progress)
}

// JobPoller drives a remote crawl job to a terminal state.
type JobPoller struct {
	crawl       ports.CrawlService
	interval    time.Duration
	maxAttempts int
	sleep       Sleeper
	logger      *slog.Logger
	onProgress  func(Progress)
}

// NewJobPoller constructs a poller with defaults for zero values.
func NewJobPoller(deps PollerDeps) *JobPoller {
	p := &JobPoller{
		crawl:       deps.Crawl,
		interval:    deps.Interval,
		maxAttempts: deps.MaxAttempts,
		sleep:       deps.Sleep,
		logger:      deps.Logger,
		onProgress:  deps.OnProgress,
	}
	if p.interval <= 0 {
		p.interval = defaultPollInterval
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = defaultMaxPollAttempts
	}
	if p.sleep == nil {
		p.sleep = Sleep
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Poll queries the job every interval until it completes, fails, or the attempt
// ceiling is reached. Status query errors are logged and do not change state.
func (p *JobPoller) Poll(ctx context.Context, jobID string) (domain.CrawlJob, error) {
	state := PollQueued

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		job, err := p.crawl.JobStatus(ctx, jobID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return domain.CrawlJob{}, ctx.Err()
			}
			metrics.PollTicks.WithLabelValues("error").Inc()
			p.logger.Warn("crawl status check failed", "job_id", jobID, "attempt", attempt, "error", err)

		case job.Status == domain.JobCompleted:
			metrics.PollTicks.WithLabelValues(string(domain.JobCompleted)).Inc()
			p.report(Progress{State: PollCompleted, RawStatus: job.RawStatus, Completed: job.Completed, Total: job.Total, Fraction: 1, Attempt: attempt})
			p.logger.Info("crawl completed", "job_id", jobID, "pages", len(job.Pages), "attempts", attempt)
			return job, nil

		case job.Status == domain.JobFailed:
			metrics.PollTicks.WithLabelValues(string(domain.JobFailed)).Inc()
			p.report(Progress{State: PollFailed, RawStatus: job.RawStatus, Completed: job.Completed, Total: job.Total, Attempt: attempt})
			return domain.CrawlJob{}, fmt.Errorf("job %s: %w", jobID, domain.ErrJobFailed)

		case job.Status == domain.JobScraping:
			state = PollScraping
			metrics.PollTicks.WithLabelValues(string(domain.JobScraping)).Inc()
			p.report(Progress{State: state, RawStatus: job.RawStatus, Completed: job.Completed, Total: job.Total, Fraction: scrapingFraction(job), Attempt: attempt})

		default:
			metrics.PollTicks.WithLabelValues("other").Inc()
			p.logger.Debug("crawl status", "job_id", jobID, "status", job.RawStatus, "completed", job.Completed, "total", job.Total)
			p.report(Progress{State: state, RawStatus: job.RawStatus, Completed: job.Completed, Total: job.Total, Fraction: nominalProgress, Attempt: attempt})
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return domain.CrawlJob{}, err
		}
	}

	p.report(Progress{State: PollTimeout, Attempt: p.maxAttempts})
	p.logger.Warn("crawl polling timed out, job may still be running", "job_id", jobID, "attempts", p.maxAttempts)
	return domain.CrawlJob{}, fmt.Errorf("job %s after %d attempts: %w", jobID, p.maxAttempts, domain.ErrJobTimeout)
}

func (p *JobPoller) report(progress Progress) {
	if p.onProgress != nil {
		p.onProgress(progress)
	}
}

func scrapingFraction(job domain.CrawlJob) float64 {
	fraction := nominalProgress
	if job.Total > 0 {
		fraction = float64(job.Completed) / float64(job.Total)
	}
	if fraction > maxRunningProgress {
		fraction = maxRunningProgress
	}
	return fraction
}
