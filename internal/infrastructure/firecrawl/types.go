package firecrawl

import (
	"strings"

	"KnowledgeSync/internal/domain"
)

type scrapeOptions struct {
	OnlyMainContent bool     `json:"onlyMainContent"`
	Formats         []string `json:"formats,omitempty"`
	Proxy           string   `json:"proxy,omitempty"`
}

type startRequest struct {
	URL           string        `json:"url"`
	Limit         int           `json:"limit,omitempty"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

// startResponse accepts both id spellings and the synchronous variant carrying data.
type startResponse struct {
	Success *bool  `json:"success"`
	ID      string `json:"id"`
	JobID   string `json:"jobId"`
	Error   string `json:"error"`
	statusResponse
}

type statusResponse struct {
	Status    string     `json:"status"`
	Completed int        `json:"completed"`
	Total     int        `json:"total"`
	Next      string     `json:"next"`
	Data      []pageData `json:"data"`
}

type pageData struct {
	Markdown string       `json:"markdown"`
	Content  string       `json:"content"`
	HTML     string       `json:"html"`
	RawHTML  string       `json:"rawHtml"`
	Metadata pageMetadata `json:"metadata"`
}

type pageMetadata struct {
	Title     string `json:"title"`
	SourceURL string `json:"sourceURL"`
	URL       string `json:"url"`
}

func (s startResponse) jobID() string {
	if s.ID != "" {
		return s.ID
	}
	return s.JobID
}

func (s startResponse) accepted() bool {
	return s.Success == nil || *s.Success
}

func (p pageData) toRecord() domain.PageRecord {
	content := p.Markdown
	if content == "" {
		content = p.Content
	}

	source := p.Metadata.SourceURL
	if source == "" {
		source = p.Metadata.URL
	}

	html := p.HTML
	if html == "" {
		html = p.RawHTML
	}

	title := strings.TrimSpace(p.Metadata.Title)
	if title == "" && html != "" {
		title = extractTitle(html)
	}

	return domain.PageRecord{
		MarkdownContent: content,
		SourceURL:       source,
		Title:           title,
		HTML:            html,
	}
}

func (s statusResponse) toJob(id string) domain.CrawlJob {
	job := domain.CrawlJob{
		ID:        id,
		Status:    domain.ParseJobStatus(s.Status),
		RawStatus: s.Status,
		Completed: s.Completed,
		Total:     s.Total,
		Pages:     make([]domain.PageRecord, 0, len(s.Data)),
	}
	for _, p := range s.Data {
		job.Pages = append(job.Pages, p.toRecord())
	}
	return job
}
