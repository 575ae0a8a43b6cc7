package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KnowledgeSync/internal/domain"
)

type recordingStore struct {
	mu    sync.Mutex
	saves []domain.UploadSession
}

func (s *recordingStore) Load(_ context.Context, key string) (domain.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.saves) - 1; i >= 0; i-- {
		if s.saves[i].Key == key {
			return s.saves[i], nil
		}
	}
	return domain.UploadSession{Key: key}, nil
}

func (s *recordingStore) Save(_ context.Context, session domain.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.FailedArticles = append([]domain.FailedArticle(nil), session.FailedArticles...)
	s.saves = append(s.saves, session)
	return nil
}

func failingFor(name string, err error) func(domain.ArticleRecord) (domain.UploadResult, error) {
	return func(a domain.ArticleRecord) (domain.UploadResult, error) {
		if a.Name == name {
			return domain.UploadResult{}, err
		}
		return domain.UploadResult{StatusCode: 200}, nil
	}
}

func TestUploadTwelveArticlesWithOnePersistentTimeout(t *testing.T) {
	t.Parallel()

	kb := &fakeKB{upsert: failingFor("Article 5", &domain.UploadError{Kind: domain.UploadTimeout, Message: "request timed out"})}
	sleeps := &sleepRecorder{}
	store := &recordingStore{}
	u := NewUploader(UploaderDeps{
		KnowledgeBase:     kb,
		Store:             store,
		KnowledgeSourceID: "kb",
		BatchSize:         10,
		MaxRetries:        3,
		Sleep:             sleeps.Sleep,
	})

	report, session, err := u.Upload(context.Background(), makeArticles(12), domain.UploadSession{Key: "k"})
	require.NoError(t, err)

	assert.Equal(t, 11, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Batches)
	assert.False(t, report.Interrupted)
	assert.Len(t, report.Outcomes, 12)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, sleeps.Waits())

	require.Len(t, session.FailedArticles, 1)
	failed := session.FailedArticles[0]
	assert.Equal(t, "Article 5", failed.Article.Name)
	assert.Equal(t, 3, failed.Retries)
	assert.Contains(t, failed.LastError, "timed out")

	assert.Zero(t, session.CompletedCount, "resume position resets after a full pass")
	assert.Len(t, kb.Uploaded(), 14, "11 single attempts plus 3 for the failing article")

	last, _ := store.Load(context.Background(), "k")
	assert.Zero(t, last.CompletedCount)
	assert.Len(t, last.FailedArticles, 1)
	assert.Len(t, store.saves, 13, "one checkpoint per article plus the final reset")
}

func TestUploadBackoffDoubles(t *testing.T) {
	t.Parallel()

	kb := &fakeKB{upsert: failingFor("Article 1", &domain.UploadError{Kind: domain.UploadHTTPError, StatusCode: 500, Message: "HTTP 500"})}
	sleeps := &sleepRecorder{}
	u := NewUploader(UploaderDeps{
		KnowledgeBase: kb,
		MaxRetries:    4,
		BackoffBase:   250 * time.Millisecond,
		Sleep:         sleeps.Sleep,
	})

	report, session, err := u.Upload(context.Background(), makeArticles(1), domain.UploadSession{Key: "k"})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}, sleeps.Waits())
	assert.Equal(t, 1, report.Failed)
	require.Len(t, session.FailedArticles, 1)
	assert.Equal(t, 500, session.FailedArticles[0].StatusCode)
	assert.Equal(t, 4, session.FailedArticles[0].Retries)
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Second, BackoffDelay(time.Second, 0))
	assert.Equal(t, 2*time.Second, BackoffDelay(time.Second, 1))
	assert.Equal(t, 8*time.Second, BackoffDelay(time.Second, 3))
}

func TestUploadSucceedsOnRetry(t *testing.T) {
	t.Parallel()

	var calls int
	kb := &fakeKB{upsert: func(domain.ArticleRecord) (domain.UploadResult, error) {
		calls++
		if calls == 1 {
			return domain.UploadResult{}, &domain.UploadError{Kind: domain.UploadConnectionError, Message: "refused"}
		}
		return domain.UploadResult{StatusCode: 201}, nil
	}}
	u := NewUploader(UploaderDeps{KnowledgeBase: kb, Sleep: (&sleepRecorder{}).Sleep})

	report, _, err := u.Upload(context.Background(), makeArticles(1), domain.UploadSession{Key: "k"})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.True(t, report.Outcomes[0].Success)
	assert.Equal(t, 201, report.Outcomes[0].StatusCode)
	assert.Equal(t, 2, report.Outcomes[0].Retries)
}

func TestUploadResumesAfterInterruption(t *testing.T) {
	t.Parallel()

	const stopAt = 3
	articles := makeArticles(12)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &fakeKB{upsert: func(a domain.ArticleRecord) (domain.UploadResult, error) {
		if a.Name == articles[stopAt].Name {
			cancel()
			return domain.UploadResult{}, context.Canceled
		}
		return domain.UploadResult{StatusCode: 200}, nil
	}}
	store := &recordingStore{}
	u := NewUploader(UploaderDeps{KnowledgeBase: first, Store: store, BatchSize: 5, Sleep: (&sleepRecorder{}).Sleep})

	report, session, err := u.Upload(ctx, articles, domain.UploadSession{Key: "k"})
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.Equal(t, stopAt, report.Succeeded)
	assert.Equal(t, stopAt, session.CompletedCount)
	assert.Empty(t, session.FailedArticles, "an interrupted article is not a failure")

	saved, _ := store.Load(context.Background(), "k")
	assert.Equal(t, stopAt, saved.CompletedCount)

	second := &fakeKB{}
	u = NewUploader(UploaderDeps{KnowledgeBase: second, Store: store, BatchSize: 5, Sleep: (&sleepRecorder{}).Sleep})
	report, session, err = u.Upload(context.Background(), articles, saved)
	require.NoError(t, err)

	assert.Equal(t, stopAt, report.Skipped)
	assert.Equal(t, len(articles)-stopAt, report.Succeeded)
	uploaded := second.Uploaded()
	require.Len(t, uploaded, len(articles)-stopAt)
	assert.Equal(t, articles[stopAt].Name, uploaded[0].Name)
	assert.Equal(t, articles[len(articles)-1].Name, uploaded[len(uploaded)-1].Name)
	assert.Zero(t, session.CompletedCount)
}

func TestUploadInterruptedDuringBatchRest(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	u := NewUploader(UploaderDeps{KnowledgeBase: &fakeKB{}, BatchSize: 2, Sleep: sleep})

	report, session, err := u.Upload(ctx, makeArticles(4), domain.UploadSession{Key: "k"})
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.Equal(t, 2, session.CompletedCount)
	assert.Equal(t, 0, session.CurrentBatchIndex)
}

func TestUploadSelectionChangeRestarts(t *testing.T) {
	t.Parallel()

	kb := &fakeKB{}
	u := NewUploader(UploaderDeps{KnowledgeBase: kb, Sleep: (&sleepRecorder{}).Sleep})
	stale := domain.UploadSession{Key: "k", CompletedCount: 2, Fingerprint: "something-else"}

	report, _, err := u.Upload(context.Background(), makeArticles(3), stale)
	require.NoError(t, err)
	assert.Zero(t, report.Skipped)
	assert.Len(t, kb.Uploaded(), 3)
}

func TestUploadRecoversPanics(t *testing.T) {
	t.Parallel()

	kb := &fakeKB{upsert: func(a domain.ArticleRecord) (domain.UploadResult, error) {
		if a.Name == "Article 2" {
			panic("boom")
		}
		return domain.UploadResult{StatusCode: 200}, nil
	}}
	u := NewUploader(UploaderDeps{KnowledgeBase: kb, Sleep: (&sleepRecorder{}).Sleep})

	report, session, err := u.Upload(context.Background(), makeArticles(3), domain.UploadSession{Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, session.FailedArticles, 1)
	assert.Contains(t, session.FailedArticles[0].LastError, "boom")
}

type panickingStore struct{ recordingStore }

func (s *panickingStore) Save(context.Context, domain.UploadSession) error {
	panic("store unavailable")
}

func TestUploadSurvivesPanickingProgressHook(t *testing.T) {
	t.Parallel()

	var calls int
	store := &recordingStore{}
	u := NewUploader(UploaderDeps{
		KnowledgeBase: &fakeKB{},
		Store:         store,
		BatchSize:     3,
		Sleep:         (&sleepRecorder{}).Sleep,
		OnArticle: func(int, int, domain.UploadOutcome) {
			calls++
			panic("sink down")
		},
	})

	var (
		report  UploadReport
		session domain.UploadSession
		err     error
	)
	require.NotPanics(t, func() {
		report, session, err = u.Upload(context.Background(), makeArticles(5), domain.UploadSession{Key: "k"})
	})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Len(t, report.Outcomes, 5)
	assert.Equal(t, 5, calls)
	assert.Zero(t, session.CompletedCount)

	last, _ := store.Load(context.Background(), "k")
	assert.Zero(t, last.CompletedCount, "final reset is still checkpointed")
	assert.Len(t, store.saves, 6)
}

func TestUploadSurvivesPanickingStore(t *testing.T) {
	t.Parallel()

	kb := &fakeKB{upsert: failingFor("Article 2", &domain.UploadError{Kind: domain.UploadHTTPError, StatusCode: 500})}
	u := NewUploader(UploaderDeps{
		KnowledgeBase: kb,
		Store:         &panickingStore{},
		BatchSize:     2,
		Sleep:         (&sleepRecorder{}).Sleep,
	})

	var (
		report  UploadReport
		session domain.UploadSession
	)
	require.NotPanics(t, func() {
		report, session, _ = u.Upload(context.Background(), makeArticles(4), domain.UploadSession{Key: "k"})
	})

	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, session.FailedArticles, 1)
}

func TestUploadKeepsFailuresWithCollidingIDs(t *testing.T) {
	t.Parallel()

	kb := &fakeKB{upsert: func(domain.ArticleRecord) (domain.UploadResult, error) {
		return domain.UploadResult{StatusCode: 500}, &domain.UploadError{Kind: domain.UploadHTTPError, StatusCode: 500}
	}}
	u := NewUploader(UploaderDeps{KnowledgeBase: kb, MaxRetries: 1, Sleep: (&sleepRecorder{}).Sleep})
	articles := []domain.ArticleRecord{
		{Name: "A-B", URL: "https://example.com/docs/a-b"},
		{Name: "A_B", URL: "https://example.com/docs/a_b"},
	}

	report, session, err := u.Upload(context.Background(), articles, domain.UploadSession{Key: "k"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Failed)
	require.Len(t, session.FailedArticles, report.Failed)
	assert.Equal(t, "docs_a_b", session.FailedArticles[0].Article.ID)
	assert.Equal(t, "docs_a_b", session.FailedArticles[1].Article.ID)
	assert.NotEqual(t, session.FailedArticles[0].Article.URL, session.FailedArticles[1].Article.URL)
}

func TestUploadFallsBackToCreatesWhenListingFails(t *testing.T) {
	t.Parallel()

	kb := &fakeKB{listErr: errors.New("listing unavailable")}
	u := NewUploader(UploaderDeps{KnowledgeBase: kb, Sleep: (&sleepRecorder{}).Sleep})

	report, _, err := u.Upload(context.Background(), makeArticles(2), domain.UploadSession{Key: "k"})
	require.NoError(t, err)
	assert.Error(t, report.FetchErr)
	assert.Equal(t, 2, report.Creates)
	assert.Equal(t, 2, report.Succeeded)
}

func TestUploadEmptySelection(t *testing.T) {
	t.Parallel()

	u := NewUploader(UploaderDeps{KnowledgeBase: &fakeKB{}})
	_, _, err := u.Upload(context.Background(), nil, domain.UploadSession{Key: "k"})
	assert.ErrorIs(t, err, domain.ErrNoArticles)
}

func TestUploadFillsMissingIDs(t *testing.T) {
	t.Parallel()

	kb := &fakeKB{}
	u := NewUploader(UploaderDeps{KnowledgeBase: kb, Sleep: (&sleepRecorder{}).Sleep})
	articles := []domain.ArticleRecord{{Name: "Zoo", URL: "https://example.com/7-petting-zoo-animals"}}

	_, _, err := u.Upload(context.Background(), articles, domain.UploadSession{Key: "k"})
	require.NoError(t, err)
	require.Len(t, kb.Uploaded(), 1)
	assert.Equal(t, "page_7_petting_zoo_animals", kb.Uploaded()[0].ID)
}
