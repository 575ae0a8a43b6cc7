package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"KnowledgeSync/internal/config"
	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/ports"
)

const maxErrorBody = 1024

// Client implements ports.CrawlService against the Firecrawl v1 REST API.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.CrawlService = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.CrawlConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		http:     httpClient,
	}
}

// StartCrawl submits a crawl job. A response that already carries page data is
// returned as a completed job.
func (c *Client) StartCrawl(ctx context.Context, req domain.CrawlRequest) (domain.CrawlStart, error) {
	body := startRequest{
		URL:   req.URL,
		Limit: req.Limit,
		ScrapeOptions: scrapeOptions{
			OnlyMainContent: req.OnlyMainContent,
			Formats:         req.Formats,
			Proxy:           req.ProxyMode,
		},
	}

	var resp startResponse
	if err := c.call(ctx, http.MethodPost, c.endpoint+"/v1/crawl", body, &resp); err != nil {
		return domain.CrawlStart{}, fmt.Errorf("%w: %w", domain.ErrCrawlStart, err)
	}

	id := resp.jobID()
	if id == "" && resp.Data != nil {
		job := resp.statusResponse.toJob("")
		job.Status = domain.JobCompleted
		if job.RawStatus == "" {
			job.RawStatus = string(domain.JobCompleted)
		}
		if job.Total == 0 {
			job.Total = len(job.Pages)
			job.Completed = len(job.Pages)
		}
		return domain.CrawlStart{Job: &job}, nil
	}

	if !resp.accepted() || id == "" {
		reason := resp.Error
		if reason == "" {
			reason = "no job id returned"
		}
		return domain.CrawlStart{}, fmt.Errorf("%w: %s", domain.ErrCrawlStart, reason)
	}

	return domain.CrawlStart{ID: id}, nil
}

// JobStatus reads the job status. For completed jobs every page of data is
// collected by following next links.
func (c *Client) JobStatus(ctx context.Context, jobID string) (domain.CrawlJob, error) {
	var resp statusResponse
	if err := c.call(ctx, http.MethodGet, c.endpoint+"/v1/crawl/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return domain.CrawlJob{}, fmt.Errorf("crawl status %s: %w", jobID, err)
	}

	job := resp.toJob(jobID)
	if job.Status != domain.JobCompleted {
		return job, nil
	}

	seen := map[string]struct{}{}
	next := resp.Next
	for next != "" {
		if _, ok := seen[next]; ok {
			break
		}
		seen[next] = struct{}{}

		var page statusResponse
		if err := c.call(ctx, http.MethodGet, next, nil, &page); err != nil {
			return domain.CrawlJob{}, fmt.Errorf("crawl status %s next page: %w", jobID, err)
		}
		job.Pages = append(job.Pages, page.toJob(jobID).Pages...)
		next = page.Next
	}

	return job, nil
}

func (c *Client) call(ctx context.Context, method, target string, payload any, v any) error {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
