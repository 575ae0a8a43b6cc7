package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"KnowledgeSync/internal/config"
	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/ports"
)

const (
	articlesPath = "/knowledge/articles/"
	bulkPath     = "/knowledge/bulk/articles/"
	maxErrorBody = 1024
)

// Client talks to the knowledge-base REST API with bearer auth.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

var _ ports.KnowledgeBase = (*Client)(nil)

// NewClient builds a client from configuration; a nil httpClient gets the configured timeout.
func NewClient(cfg config.KnowledgeConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL: cfg.Endpoint(),
		apiKey:  cfg.APIKey,
		http:    httpClient,
		limiter: limiter,
	}
}

// ListArticles fetches one page of stored articles. The first page is addressed by
// knowledge source; later pages by the server-provided next URL.
func (c *Client) ListArticles(ctx context.Context, knowledgeSourceID, cursor string) (domain.ArticlePage, error) {
	pageURL := cursor
	if pageURL == "" {
		pageURL = c.baseURL + articlesPath + "?knowledge_source_id=" + url.QueryEscape(knowledgeSourceID)
	}

	req, err := c.newRequest(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.ArticlePage{}, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return domain.ArticlePage{}, fmt.Errorf("%w: %w", domain.ErrFetch, classify(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ArticlePage{}, fmt.Errorf("%w: read body: %w", domain.ErrFetch, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.ArticlePage{}, fmt.Errorf("%w: %w", domain.ErrFetch, httpError(resp.StatusCode, body))
	}

	page, err := decodeListPage(body)
	if err != nil {
		return domain.ArticlePage{}, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}
	return page, nil
}

// UpsertArticle posts one article to the bulk endpoint. Any non-2xx status is an UploadError.
func (c *Client) UpsertArticle(ctx context.Context, article domain.ArticleRecord) (domain.UploadResult, error) {
	payload, err := json.Marshal([]domain.ArticleRecord{article})
	if err != nil {
		return domain.UploadResult{}, &domain.UploadError{Kind: domain.UploadUnexpected, Message: "marshal article: " + err.Error(), Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+bulkPath, payload)
	if err != nil {
		return domain.UploadResult{}, &domain.UploadError{Kind: domain.UploadUnexpected, Message: err.Error(), Err: err}
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return domain.UploadResult{}, classify(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	result := domain.UploadResult{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, httpError(resp.StatusCode, body)
	}
	return result, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func httpError(status int, body []byte) *domain.UploadError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &domain.UploadError{
		Kind:       domain.UploadHTTPError,
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
	}
}

// classify maps transport errors onto the upload error taxonomy.
func classify(err error) *domain.UploadError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.UploadError{Kind: domain.UploadTimeout, Message: err.Error(), Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.UploadError{Kind: domain.UploadTimeout, Message: err.Error(), Err: err}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return &domain.UploadError{Kind: domain.UploadConnectionError, Message: err.Error(), Err: err}
	}

	return &domain.UploadError{Kind: domain.UploadUnexpected, Message: err.Error(), Err: err}
}

type listEnvelope struct {
	Data    []remoteItem `json:"data"`
	Results []remoteItem `json:"results"`
	Next    *string      `json:"next"`
}

type remoteItem struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name"`
}

// decodeListPage accepts {data|results, next} envelopes and bare arrays.
func decodeListPage(body []byte) (domain.ArticlePage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return domain.ArticlePage{}, nil
	}

	var items []remoteItem
	var page domain.ArticlePage

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return domain.ArticlePage{}, fmt.Errorf("decode article list: %w", err)
		}
	} else {
		var env listEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return domain.ArticlePage{}, fmt.Errorf("decode article page: %w", err)
		}
		items = env.Data
		if items == nil {
			items = env.Results
		}
		if env.Next != nil {
			page.Next = *env.Next
		}
	}

	page.Articles = make([]domain.RemoteArticle, 0, len(items))
	for _, item := range items {
		page.Articles = append(page.Articles, domain.RemoteArticle{ID: rawID(item.ID), Name: item.Name})
	}
	return page, nil
}

// rawID renders string or numeric ids as a plain string.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}
