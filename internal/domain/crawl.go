package domain

import "strings"

// JobStatus is the lifecycle state the crawl service reports for a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobScraping  JobStatus = "scraping"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobUnknown   JobStatus = "unknown"
)

// ParseJobStatus maps a raw status string onto a known JobStatus.
func ParseJobStatus(raw string) JobStatus {
	switch JobStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case JobQueued:
		return JobQueued
	case JobScraping:
		return JobScraping
	case JobCompleted:
		return JobCompleted
	case JobFailed:
		return JobFailed
	default:
		return JobUnknown
	}
}

// CrawlJob is a snapshot of a remote crawl job as observed by the poller.
type CrawlJob struct {
	ID        string
	Status    JobStatus
	RawStatus string
	Completed int
	Total     int
	Pages     []PageRecord
}

// PageRecord is a raw scraped unit received from the crawl service.
type PageRecord struct {
	MarkdownContent string
	SourceURL       string
	Title           string
	// HTML is only populated when the html format was requested.
	HTML string
}

// CrawlRequest describes a crawl to start.
type CrawlRequest struct {
	URL             string
	Limit           int
	OnlyMainContent bool
	Formats         []string
	ProxyMode       string
}

// CrawlStart is the normalized start-job response. When the service crawled
// synchronously, Job is set and ID is empty.
type CrawlStart struct {
	ID  string
	Job *CrawlJob
}
