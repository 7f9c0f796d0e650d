package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/deusflow/topicnews/internal/api"
	"github.com/deusflow/topicnews/internal/config"
	"github.com/deusflow/topicnews/internal/logger"
	"github.com/deusflow/topicnews/internal/metrics"
	"github.com/deusflow/topicnews/internal/news"
	"github.com/deusflow/topicnews/internal/retry"
	"github.com/deusflow/topicnews/internal/rss"
	"github.com/deusflow/topicnews/internal/scheduler"
	"github.com/deusflow/topicnews/internal/source"
	"github.com/deusflow/topicnews/internal/storage"
	"github.com/deusflow/topicnews/internal/store"
)

const shutdownTimeout = 10 * time.Second

// App is the assembled service: aggregator, sinks, scheduler and HTTP API.
type App struct {
	cfg        *config.Config
	log        *slog.Logger
	aggregator *news.Aggregator
	store      *store.SectionStore
	scheduler  *scheduler.Scheduler
	archive    *storage.PostgresArchive
	router     *gin.Engine
}

// New wires every component from cfg. It restores the snapshot file when
// present and connects the archive when DATABASE_URL is set.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.Logger

	categories, err := config.LoadCategories(cfg.CategoriesPath)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	client := &http.Client{Timeout: cfg.FetchTimeout}
	var primary, secondary rss.Transport
	if cfg.JSONProxyBase != "" {
		primary = rss.NewJSONProxy(cfg.JSONProxyBase, client)
	}
	if cfg.RelayBase != "" {
		secondary = rss.NewRelay(cfg.RelayBase, client)
	}
	fetcher := &rss.FallbackFetcher{
		Primary:   primary,
		Secondary: secondary,
		Timeout:   cfg.FetchTimeout,
		Retry:     retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true},
		Logger:    log,
	}
	if cfg.FetchRate > 0 {
		fetcher.Limiter = rate.NewLimiter(rate.Limit(cfg.FetchRate), cfg.FetchBurst)
	}

	resolver := source.NewGoogleNews(cfg.SearchHL, cfg.SearchGL, cfg.SearchCEID)
	resolver.BaseURL = cfg.SearchBase

	st := store.New()
	a := &App{cfg: cfg, log: log, store: st}

	var sinks []Sink
	if cfg.SnapshotPath != "" {
		file := storage.NewSnapshotFile(cfg.SnapshotPath)
		snap, ok, err := file.Load()
		switch {
		case err != nil:
			logger.Warn("snapshot ignored", "path", file.Path(), "error", err)
		case ok:
			restored := baseline(snap, categories)
			st.Restore(restored)
			logger.Info("snapshot restored",
				"path", file.Path(),
				"sections", len(restored.Sections),
				"dropped", len(snap.Sections)-len(restored.Sections),
				"generated_at", snap.GeneratedAt)
		}
		sinks = append(sinks, &SnapshotSink{file: file})
	}
	if cfg.DatabaseURL != "" {
		archive, err := storage.NewPostgresArchive(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect archive: %w", err)
		}
		a.archive = archive
		sinks = append(sinks, &ArchiveSink{archive: archive})
	}

	agg := news.New(categories, resolver, fetcher, st)
	agg.MaxItems = cfg.MaxItemsPerCategory
	agg.DescriptionLimit = cfg.DescriptionMaxRunes
	agg.Logger = log
	if len(sinks) > 0 {
		agg.OnCommit = fanOut(st, log, sinks...)
	}
	a.aggregator = agg

	sched, err := scheduler.New(cfg.RefreshInterval, agg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.scheduler = sched

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.NewServer(agg, st, metrics.Global).RegisterRoutes(r)
	a.router = r

	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) Aggregator() *news.Aggregator {
	return a.aggregator
}

// Run starts the scheduler and serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.scheduler.Start(ctx)
	a.log.Info("service started",
		"addr", a.cfg.HTTPAddr,
		"categories", len(a.aggregator.Categories()),
		"interval", a.cfg.RefreshInterval)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http shutdown", "error", err)
	}
	a.scheduler.Stop()
	a.Close()

	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

func (a *App) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.log.Error("close archive", "error", err)
		}
		a.archive = nil
	}
}

// Run loads configuration, assembles the service and blocks until ctx ends.
func Run(ctx context.Context) error {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Debug("configuration loaded",
		"categories_path", cfg.CategoriesPath,
		"refresh_interval", cfg.RefreshInterval,
		"fetch_timeout", cfg.FetchTimeout,
		"snapshot", cfg.SnapshotPath != "",
		"archive", cfg.DatabaseURL != "")

	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
