package domain

// FailedArticle is an article that exhausted its retries, kept for a later retry.
type FailedArticle struct {
	Article    ArticleRecord `json:"article"`
	LastError  string        `json:"last_error"`
	StatusCode int           `json:"status_code,omitempty"`
	Retries    int           `json:"retries"`
}

// UploadSession carries resume and failure state between upload invocations.
type UploadSession struct {
	Key               string          `json:"key"`
	CompletedCount    int             `json:"completed_count"`
	CurrentBatchIndex int             `json:"current_batch_index"`
	Fingerprint       string          `json:"fingerprint,omitempty"`
	FailedArticles    []FailedArticle `json:"failed_articles"`
}

// ResetProgress clears the resume position and keeps the failure list.
func (s *UploadSession) ResetProgress() {
	s.CompletedCount = 0
	s.CurrentBatchIndex = 0
	s.Fingerprint = ""
}

// RecordFailure stores an article failure, replacing an older entry for the
// same article. Articles are the same when both id and URL match; distinct
// pages may share a generated id.
func (s *UploadSession) RecordFailure(f FailedArticle) {
	for i := range s.FailedArticles {
		existing := s.FailedArticles[i].Article
		if existing.ID == f.Article.ID && existing.URL == f.Article.URL {
			s.FailedArticles[i] = f
			return
		}
	}
	s.FailedArticles = append(s.FailedArticles, f)
}

// FailedRecords returns the articles held in the failure list, in order.
func (s UploadSession) FailedRecords() []ArticleRecord {
	out := make([]ArticleRecord, 0, len(s.FailedArticles))
	for _, f := range s.FailedArticles {
		out = append(out, f.Article)
	}
	return out
}
