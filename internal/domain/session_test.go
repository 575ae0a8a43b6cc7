package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRecordFailureReplacesByID(t *testing.T) {
	var s UploadSession
	s.RecordFailure(FailedArticle{Article: ArticleRecord{ID: "a"}, LastError: "first"})
	s.RecordFailure(FailedArticle{Article: ArticleRecord{ID: "b"}, LastError: "other"})
	s.RecordFailure(FailedArticle{Article: ArticleRecord{ID: "a"}, LastError: "second"})

	if len(s.FailedArticles) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(s.FailedArticles))
	}
	if s.FailedArticles[0].LastError != "second" {
		t.Fatalf("expected replaced entry to keep its position, got %+v", s.FailedArticles[0])
	}
	records := s.FailedRecords()
	if records[0].ID != "a" || records[1].ID != "b" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestResetProgressKeepsFailures(t *testing.T) {
	s := UploadSession{Key: "k", CompletedCount: 7, CurrentBatchIndex: 1, Fingerprint: "f"}
	s.RecordFailure(FailedArticle{Article: ArticleRecord{ID: "a"}})

	s.ResetProgress()
	if s.CompletedCount != 0 || s.CurrentBatchIndex != 0 || s.Fingerprint != "" {
		t.Fatalf("progress not reset: %+v", s)
	}
	if len(s.FailedArticles) != 1 || s.Key != "k" {
		t.Fatalf("reset dropped state: %+v", s)
	}
}

func TestAsUploadError(t *testing.T) {
	typed := &UploadError{Kind: UploadHTTPError, StatusCode: 404, Message: "not found"}
	if got := AsUploadError(fmt.Errorf("wrapped: %w", typed)); got != typed {
		t.Fatalf("expected wrapped UploadError to be returned, got %v", got)
	}
	if got := AsUploadError(context.Canceled); got.Kind != UploadUnexpected || !errors.Is(got, context.Canceled) {
		t.Fatalf("unexpected classification %+v", got)
	}
	if AsUploadError(nil) != nil {
		t.Fatal("nil error should stay nil")
	}
	if typed.Error() != "HTTP 404: not found" {
		t.Fatalf("unexpected message %q", typed.Error())
	}
}

func TestRecordFailureKeepsDistinctPagesWithSameID(t *testing.T) {
	var s UploadSession
	s.RecordFailure(FailedArticle{Article: ArticleRecord{ID: "docs_a_b", URL: "https://example.com/docs/a-b"}, LastError: "HTTP 500"})
	s.RecordFailure(FailedArticle{Article: ArticleRecord{ID: "docs_a_b", URL: "https://example.com/docs/a_b"}, LastError: "HTTP 500"})

	if len(s.FailedArticles) != 2 {
		t.Fatalf("expected both pages to be kept, got %d", len(s.FailedArticles))
	}

	s.RecordFailure(FailedArticle{Article: ArticleRecord{ID: "docs_a_b", URL: "https://example.com/docs/a_b"}, LastError: "HTTP 502"})
	if len(s.FailedArticles) != 2 || s.FailedArticles[1].LastError != "HTTP 502" {
		t.Fatalf("expected the matching page to be replaced in place, got %+v", s.FailedArticles)
	}
}
