package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"KnowledgeSync/internal/domain"
	"KnowledgeSync/internal/metrics"
	"KnowledgeSync/internal/ports"
)

const defaultPageDelay = 500 * time.Millisecond

// Resolution is the outcome of reconciling scraped articles with the remote store.
type Resolution struct {
	Articles []domain.ArticleRecord
	Updates  int
	Creates  int
	// Remote is the number of existing records fetched.
	Remote int
	// FetchErr is set when listing failed; every article is then classified as new.
	FetchErr error
}

// ResolverDeps wires the identity resolver.
type ResolverDeps struct {
	KnowledgeBase ports.KnowledgeBase
	PageDelay     time.Duration
	Sleep         Sleeper
	Logger        *slog.Logger
}

// IdentityResolver rewrites scraped article ids to reuse matching remote records.
type IdentityResolver struct {
	kb        ports.KnowledgeBase
	pageDelay time.Duration
	sleep     Sleeper
	logger    *slog.Logger
}

// NewIdentityResolver constructs a resolver.
func NewIdentityResolver(deps ResolverDeps) *IdentityResolver {
	r := &IdentityResolver{
		kb:        deps.KnowledgeBase,
		pageDelay: deps.PageDelay,
		sleep:     deps.Sleep,
		logger:    deps.Logger,
	}
	switch {
	case r.pageDelay == 0:
		r.pageDelay = defaultPageDelay
	case r.pageDelay < 0:
		r.pageDelay = 0
	}
	if r.sleep == nil {
		r.sleep = Sleep
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Resolve matches articles by name against the knowledge source. Input order is
// preserved and the input slice is not modified.
func (r *IdentityResolver) Resolve(ctx context.Context, articles []domain.ArticleRecord, knowledgeSourceID string) Resolution {
	res := Resolution{Articles: make([]domain.ArticleRecord, len(articles))}
	copy(res.Articles, articles)

	remote, err := r.FetchAll(ctx, knowledgeSourceID)
	if err != nil {
		r.logger.Error("fetch existing articles failed, treating all as new", "knowledge_source_id", knowledgeSourceID, "error", err)
		res.FetchErr = err
		res.Creates = len(articles)
		metrics.ResolvedArticles.WithLabelValues("create").Add(float64(res.Creates))
		return res
	}
	res.Remote = len(remote)

	byName := r.nameIndex(remote)
	claimed := make(map[string]string, len(byName))

	for i := range res.Articles {
		article := &res.Articles[i]
		remoteID, ok := byName[article.Name]
		if !ok {
			res.Creates++
			continue
		}
		if owner, taken := claimed[remoteID]; taken {
			r.logger.Warn("remote article already matched by an earlier page, keeping generated id",
				"name", article.Name, "remote_id", remoteID, "matched_url", owner, "url", article.URL)
			res.Creates++
			continue
		}
		claimed[remoteID] = article.URL
		r.logger.Debug("article will update existing record", "name", article.Name, "remote_id", remoteID, "generated_id", article.ID)
		article.ID = remoteID
		res.Updates++
	}

	metrics.ResolvedArticles.WithLabelValues("update").Add(float64(res.Updates))
	metrics.ResolvedArticles.WithLabelValues("create").Add(float64(res.Creates))
	r.logger.Info("identity resolution done", "remote", res.Remote, "updates", res.Updates, "creates", res.Creates)
	return res
}

// FetchAll walks the listing cursor until no next page remains. Any failure
// discards the partial result.
func (r *IdentityResolver) FetchAll(ctx context.Context, knowledgeSourceID string) ([]domain.RemoteArticle, error) {
	var (
		all    []domain.RemoteArticle
		cursor string
		seen   = map[string]struct{}{}
	)

	for page := 1; ; page++ {
		result, err := r.kb.ListArticles(ctx, knowledgeSourceID, cursor)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		metrics.ListPagesFetched.Inc()
		r.logger.Debug("fetched existing articles page", "page", page, "count", len(result.Articles))
		all = append(all, result.Articles...)

		if result.Next == "" {
			return all, nil
		}
		if _, loop := seen[result.Next]; loop {
			r.logger.Warn("pagination cursor repeated, stopping", "next", result.Next)
			return all, nil
		}
		seen[result.Next] = struct{}{}
		cursor = result.Next

		if err := r.sleep(ctx, r.pageDelay); err != nil {
			return nil, err
		}
	}
}

// nameIndex maps names to remote ids. The first record for a name wins.
func (r *IdentityResolver) nameIndex(remote []domain.RemoteArticle) map[string]string {
	index := make(map[string]string, len(remote))
	for _, article := range remote {
		if article.Name == "" || article.ID == "" {
			continue
		}
		if existing, dup := index[article.Name]; dup {
			if existing != article.ID {
				r.logger.Warn("duplicate remote article name, keeping first", "name", article.Name, "kept_id", existing, "ignored_id", article.ID)
			}
			continue
		}
		index[article.Name] = article.ID
	}
	return index
}
