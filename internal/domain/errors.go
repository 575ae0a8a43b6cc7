package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobFailed means the crawl service reported the job as failed.
	ErrJobFailed = errors.New("crawl job failed")
	// ErrJobTimeout means polling gave up; the remote job may still be running.
	ErrJobTimeout = errors.New("crawl job polling timed out")
	// ErrCrawlStart means the crawl service did not accept the job.
	ErrCrawlStart = errors.New("crawl job not started")
	// ErrFetch wraps listing failures against the knowledge base.
	ErrFetch = errors.New("fetch existing articles")
	// ErrNoArticles means there was nothing to upload.
	ErrNoArticles = errors.New("no articles selected")
)

// UploadErrorKind classifies a failed delivery attempt.
type UploadErrorKind string

const (
	UploadTimeout         UploadErrorKind = "timeout"
	UploadConnectionError UploadErrorKind = "connection_error"
	UploadHTTPError       UploadErrorKind = "http_error"
	UploadUnexpected      UploadErrorKind = "unexpected"
)

// UploadError is returned by knowledge-base adapters when a delivery attempt fails.
type UploadError struct {
	Kind       UploadErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	switch e.Kind {
	case UploadHTTPError:
		if e.Message != "" {
			return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	case UploadTimeout:
		return "request timeout: " + e.Message
	case UploadConnectionError:
		return "connection error: " + e.Message
	default:
		return "unexpected error: " + e.Message
	}
}

func (e *UploadError) Unwrap() error { return e.Err }

// AsUploadError classifies any error as an UploadError, defaulting to unexpected.
func AsUploadError(err error) *UploadError {
	if err == nil {
		return nil
	}
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue
	}
	return &UploadError{Kind: UploadUnexpected, Message: err.Error(), Err: err}
}
