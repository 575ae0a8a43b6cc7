// Package metrics holds the Prometheus instruments of the sync pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledgesync_poll_ticks_total",
			Help: "Crawl status polls, labeled by observed status.",
		},
		[]string{"status"},
	)
	ListPagesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledgesync_list_pages_fetched_total",
			Help: "Pages of existing articles fetched from the knowledge base.",
		},
	)
	ResolvedArticles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledgesync_resolved_articles_total",
			Help: "Articles classified during identity resolution, labeled update or create.",
		},
		[]string{"kind"},
	)
	UploadAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledgesync_upload_attempts_total",
			Help: "Upload attempts, labeled by outcome (success, timeout, connection_error, http_error, unexpected).",
		},
		[]string{"outcome"},
	)
	ArticlesUploaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledgesync_articles_total",
			Help: "Articles finished by the uploader, labeled success or failed.",
		},
		[]string{"result"},
	)
	CompletedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "knowledgesync_upload_completed_index",
			Help: "Resume position of the current upload session.",
		},
	)
)

func init() {
	prometheus.MustRegister(PollTicks)
	prometheus.MustRegister(ListPagesFetched)
	prometheus.MustRegister(ResolvedArticles)
	prometheus.MustRegister(UploadAttempts)
	prometheus.MustRegister(ArticlesUploaded)
	prometheus.MustRegister(CompletedIndex)
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("exposing prometheus metrics", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "error", err)
	}
}
