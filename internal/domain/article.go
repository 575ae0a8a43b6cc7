package domain

// ArticleRecord is the unit exchanged with the knowledge-base service.
type ArticleRecord struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Content           string `json:"content"`
	URL               string `json:"url"`
	Language          string `json:"language"`
	KnowledgeSourceID string `json:"knowledge_source_id"`
	ExternalUpdated   string `json:"external_updated"`
}

// RemoteArticle is the subset of a stored knowledge-base article used for identity lookup.
type RemoteArticle struct {
	ID   string
	Name string
}

// ArticlePage is one page of a cursor-paginated listing.
type ArticlePage struct {
	Articles []RemoteArticle
	// Next is the absolute URL of the following page; empty on the last page.
	Next string
}

// UploadResult is what a single delivery attempt returned.
type UploadResult struct {
	StatusCode int
	Body       string
}

// UploadOutcome records how one article fared during an upload run.
type UploadOutcome struct {
	ArticleID   string `json:"article_id"`
	ArticleName string `json:"article_name"`
	Success     bool   `json:"success"`
	StatusCode  int    `json:"status_code,omitempty"`
	Error       string `json:"error,omitempty"`
	Retries     int    `json:"retries"`
}
