package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/identity"
	"KnowledgeSync/internal/metrics"
	"KnowledgeSync/internal/ports"
)

const (
	defaultBatchSize   = 10
	defaultMaxRetries  = 3
	defaultBackoffBase = time.Second
	defaultBatchRest   = 3 * time.Second
)

// UploaderDeps wires the upload orchestrator.
type UploaderDeps struct {
	Resolver          *IdentityResolver
	KnowledgeBase     ports.KnowledgeBase
	Store             ports.SessionStore
	KnowledgeSourceID string
	BatchSize         int
	MaxRetries        int
	BackoffBase       time.Duration
	BatchRest         time.Duration
	Sleep             Sleeper
	Logger            *slog.Logger
	OnArticle         func(index, total int, outcome domain.UploadOutcome)
}

// UploadReport summarizes one upload invocation.
type UploadReport struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	// Skipped counts articles already completed by an earlier, interrupted invocation.
	Skipped     int
	Updates     int
	Creates     int
	Batches     int
	Outcomes    []domain.UploadOutcome
	Interrupted bool
	FetchErr    error
}

// SuccessRate is the percentage of attempted articles that succeeded.
func (r UploadReport) SuccessRate() float64 {
	attempted := r.Succeeded + r.Failed
	if attempted == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(attempted) * 100
}

// Uploader delivers resolved articles in order, in batches, with per-article retries.
type Uploader struct {
	resolver    *IdentityResolver
	kb          ports.KnowledgeBase
	store       ports.SessionStore
	sourceID    string
	batchSize   int
	maxRetries  int
	backoffBase time.Duration
	batchRest   time.Duration
	sleep       Sleeper
	logger      *slog.Logger
	onArticle   func(index, total int, outcome domain.UploadOutcome)
}

// NewUploader constructs the orchestrator with defaults for zero values.
func NewUploader(deps UploaderDeps) *Uploader {
	u := &Uploader{
		resolver:    deps.Resolver,
		kb:          deps.KnowledgeBase,
		store:       deps.Store,
		sourceID:    deps.KnowledgeSourceID,
		batchSize:   deps.BatchSize,
		maxRetries:  deps.MaxRetries,
		backoffBase: deps.BackoffBase,
		batchRest:   deps.BatchRest,
		sleep:       deps.Sleep,
		logger:      deps.Logger,
		onArticle:   deps.OnArticle,
	}
	if u.batchSize <= 0 {
		u.batchSize = defaultBatchSize
	}
	if u.maxRetries <= 0 {
		u.maxRetries = defaultMaxRetries
	}
	if u.backoffBase <= 0 {
		u.backoffBase = defaultBackoffBase
	}
	if u.batchRest < 0 {
		u.batchRest = 0
	} else if u.batchRest == 0 {
		u.batchRest = defaultBatchRest
	}
	if u.sleep == nil {
		u.sleep = Sleep
	}
	if u.logger == nil {
		u.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if u.resolver == nil {
		u.resolver = NewIdentityResolver(ResolverDeps{KnowledgeBase: u.kb, Sleep: u.sleep, Logger: u.logger})
	}
	return u
}

// BackoffDelay is the wait after the retryIndex-th failed attempt.
func BackoffDelay(base time.Duration, retryIndex int) time.Duration {
	return base << uint(retryIndex)
}

// Fingerprint identifies an ordered article selection.
func Fingerprint(articles []domain.ArticleRecord) string {
	h := sha256.New()
	for _, a := range articles {
		h.Write([]byte(a.Name))
		h.Write([]byte{0})
		h.Write([]byte(a.URL))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Upload resolves identities, then delivers articles starting at the session's
// resume point. The updated session is returned and also checkpointed to the
// store after every article. A run that is not interrupted resets the resume
// position; failed articles stay in the session until retried or cleared.
func (u *Uploader) Upload(ctx context.Context, articles []domain.ArticleRecord, session domain.UploadSession) (UploadReport, domain.UploadSession, error) {
	report := UploadReport{RunID: uuid.NewString(), Total: len(articles)}
	if len(articles) == 0 {
		return report, session, domain.ErrNoArticles
	}

	fingerprint := Fingerprint(articles)
	if session.Fingerprint != fingerprint || session.CompletedCount > len(articles) {
		if session.CompletedCount > 0 {
			u.logger.Info("article selection changed, restarting upload from the beginning", "previous_completed", session.CompletedCount)
		}
		session.ResetProgress()
		session.Fingerprint = fingerprint
	}
	report.Skipped = session.CompletedCount

	resolution := u.resolver.Resolve(ctx, articles, u.sourceID)
	report.Updates, report.Creates, report.FetchErr = resolution.Updates, resolution.Creates, resolution.FetchErr
	resolved := resolution.Articles
	for i := range resolved {
		if resolved[i].ID == "" {
			resolved[i].ID = identity.GenerateID(resolved[i].URL)
		}
	}

	report.Batches = (len(resolved) + u.batchSize - 1) / u.batchSize
	log := u.logger.With("run_id", report.RunID)
	log.Info("upload started", "articles", len(resolved), "batches", report.Batches, "resume_from", session.CompletedCount)

	for b := 0; b < report.Batches; b++ {
		start := b * u.batchSize
		end := min(start+u.batchSize, len(resolved))
		if end <= session.CompletedCount {
			continue
		}

		session.CurrentBatchIndex = b
		if interrupted := u.runBatch(ctx, log, resolved, start, end, &session, &report); interrupted {
			return u.interrupt(ctx, log, report, session)
		}

		if b < report.Batches-1 && u.batchRest > 0 {
			log.Debug("resting between batches", "batch", b+1, "rest", u.batchRest)
			if err := u.sleep(ctx, u.batchRest); err != nil {
				return u.interrupt(ctx, log, report, session)
			}
		}
	}

	session.ResetProgress()
	u.checkpoint(ctx, log, session)
	metrics.CompletedIndex.Set(0)
	log.Info("upload finished", "succeeded", report.Succeeded, "failed", report.Failed, "skipped", report.Skipped)
	return report, session, nil
}

func (u *Uploader) interrupt(ctx context.Context, log *slog.Logger, report UploadReport, session domain.UploadSession) (UploadReport, domain.UploadSession, error) {
	report.Interrupted = true
	u.checkpoint(ctx, log, session)
	log.Warn("upload interrupted, progress saved", "completed", session.CompletedCount, "total", report.Total)
	return report, session, nil
}

// runBatch handles one batch. A panic escaping the batch is recovered and
// every article it left unfinished is recorded as failed.
func (u *Uploader) runBatch(ctx context.Context, log *slog.Logger, articles []domain.ArticleRecord, start, end int, session *domain.UploadSession, report *UploadReport) (interrupted bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("batch aborted", "batch", start/u.batchSize+1, "panic", r)
			for i := max(session.CompletedCount, start); i < end; i++ {
				outcome := u.failure(articles[i], &domain.UploadError{
					Kind:    domain.UploadUnexpected,
					Message: fmt.Sprintf("batch aborted: %v", r),
				}, 0)
				guard(log, "batch recovery", func() { u.finish(ctx, log, i, articles[i], outcome, session, report) })
			}
			interrupted = false
		}
	}()

	log.Info("processing batch", "batch", start/u.batchSize+1, "of", report.Batches, "from", start, "to", end)
	for i := max(session.CompletedCount, start); i < end; i++ {
		outcome, stopped := u.processArticle(ctx, log, articles[i])
		if stopped {
			return true
		}
		u.finish(ctx, log, i, articles[i], outcome, session, report)
	}
	return false
}

// processArticle delivers one article, recovering any panic as an unexpected failure.
func (u *Uploader) processArticle(ctx context.Context, log *slog.Logger, article domain.ArticleRecord) (outcome domain.UploadOutcome, interrupted bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("article handling panicked", "article", article.Name, "id", article.ID, "panic", r)
			outcome = u.failure(article, &domain.UploadError{Kind: domain.UploadUnexpected, Message: fmt.Sprint(r)}, outcome.Retries)
			interrupted = false
		}
	}()
	return u.deliver(ctx, log, article)
}

func (u *Uploader) deliver(ctx context.Context, log *slog.Logger, article domain.ArticleRecord) (domain.UploadOutcome, bool) {
	var lastErr *domain.UploadError
	for attempt := 0; attempt < u.maxRetries; attempt++ {
		result, err := u.kb.UpsertArticle(ctx, article)
		if err == nil {
			metrics.UploadAttempts.WithLabelValues("success").Inc()
			return domain.UploadOutcome{
				ArticleID:   article.ID,
				ArticleName: article.Name,
				Success:     true,
				StatusCode:  result.StatusCode,
				Retries:     attempt + 1,
			}, false
		}
		if ctx.Err() != nil {
			return domain.UploadOutcome{}, true
		}

		lastErr = domain.AsUploadError(err)
		metrics.UploadAttempts.WithLabelValues(string(lastErr.Kind)).Inc()
		log.Warn("upload attempt failed",
			"article", article.Name, "id", article.ID, "attempt", attempt+1, "of", u.maxRetries,
			"status_code", lastErr.StatusCode, "error", lastErr.Error())

		if attempt < u.maxRetries-1 {
			if err := u.sleep(ctx, BackoffDelay(u.backoffBase, attempt)); err != nil {
				return domain.UploadOutcome{}, true
			}
		}
	}
	return u.failure(article, lastErr, u.maxRetries), false
}

func (u *Uploader) failure(article domain.ArticleRecord, err *domain.UploadError, retries int) domain.UploadOutcome {
	return domain.UploadOutcome{
		ArticleID:   article.ID,
		ArticleName: article.Name,
		StatusCode:  err.StatusCode,
		Error:       err.Error(),
		Retries:     retries,
	}
}

// finish records an outcome and advances the resume position.
func (u *Uploader) finish(ctx context.Context, log *slog.Logger, index int, article domain.ArticleRecord, outcome domain.UploadOutcome, session *domain.UploadSession, report *UploadReport) {
	if outcome.Success {
		report.Succeeded++
		metrics.ArticlesUploaded.WithLabelValues("success").Inc()
		log.Info("article uploaded", "article", article.Name, "id", article.ID, "status_code", outcome.StatusCode, "retries", outcome.Retries)
	} else {
		report.Failed++
		metrics.ArticlesUploaded.WithLabelValues("failed").Inc()
		session.RecordFailure(domain.FailedArticle{
			Article:    article,
			LastError:  outcome.Error,
			StatusCode: outcome.StatusCode,
			Retries:    outcome.Retries,
		})
		log.Error("article failed",
			"article", article.Name, "id", article.ID, "status_code", outcome.StatusCode,
			"error", outcome.Error, "retries", outcome.Retries)
	}

	report.Outcomes = append(report.Outcomes, outcome)
	session.CompletedCount = index + 1
	metrics.CompletedIndex.Set(float64(session.CompletedCount))
	u.checkpoint(ctx, log, *session)

	if u.onArticle != nil {
		guard(log, "progress hook", func() { u.onArticle(index, report.Total, outcome) })
	}
}

func (u *Uploader) checkpoint(ctx context.Context, log *slog.Logger, session domain.UploadSession) {
	if u.store == nil {
		return
	}
	guard(log, "session checkpoint", func() {
		if err := u.store.Save(context.WithoutCancel(ctx), session); err != nil {
			log.Error("save upload session", "key", session.Key, "error", err)
		}
	})
}

// guard runs fn and logs a panic instead of propagating it.
func guard(log *slog.Logger, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(what+" panicked", "panic", r)
		}
	}()
	fn()
}

// detached returns a copy of the uploader that does not checkpoint to the store.
func (u *Uploader) detached() *Uploader {
	c := *u
	c.store = nil
	return &c
}
