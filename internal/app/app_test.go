package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KnowledgeSync/internal/config"
	"KnowledgeSync/internal/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg, err := config.Parse([]byte(`
crawl:
  url: https://example.com/help
  limit: 7
  formats: [markdown, html]
knowledge:
  instance: acme
  knowledgeSourceId: kb1
  language: en
`))
	require.NoError(t, err)
	cfg.Upload.ResultsDir = t.TempDir()
	return cfg
}

func TestNewWithMemoryStore(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)), Hooks{})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Pipeline())
	req := a.CrawlRequest()
	assert.Equal(t, "https://example.com/help", req.URL)
	assert.Equal(t, 7, req.Limit)
	assert.True(t, req.OnlyMainContent)
	assert.Equal(t, []string{"markdown", "html"}, req.Formats)

	failed, err := a.Pipeline().FailedArticles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestNewWithRedisStore(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Session = config.SessionConfig{Store: config.StoreRedis, RedisAddr: srv.Addr()}

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Hooks{})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Pipeline().ClearFailed(context.Background()))
	assert.True(t, srv.Exists("knowledgesync:session:"+cfg.SessionKey()))
}

func TestNewRejectsUnknownStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Store = "etcd"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Hooks{})
	assert.ErrorContains(t, err, "unknown session store")
}

func TestNewRedisStoreRequiresAddress(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session = config.SessionConfig{Store: config.StoreRedis}

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Hooks{
		Confirm: func(context.Context, []domain.ArticleRecord) bool { return true },
	})
	assert.Error(t, err)
}
