package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/alex-user-go/fares/internal/config"
	"github.com/alex-user-go/fares/internal/handler"
	"github.com/alex-user-go/fares/internal/middleware"
	"github.com/alex-user-go/fares/internal/obs"
	"github.com/alex-user-go/fares/internal/search"
	"github.com/alex-user-go/fares/internal/search/cache"
	"github.com/alex-user-go/fares/internal/search/normalize"
	"github.com/alex-user-go/fares/internal/search/ratelimit"
	"github.com/alex-user-go/fares/internal/sources"
	"github.com/alex-user-go/fares/internal/storage"
)

// NewLogger builds a logger from the log section. Unknown levels fall back
// to info.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// NewPipeline builds the configured sources and the pipeline around them.
// When a database DSN is set, the run history store is attached as a sink.
// The returned cleanup releases the store and must be called once.
func NewPipeline(ctx context.Context, cfg *config.Config, metrics *obs.Metrics, logger *slog.Logger) (*search.Pipeline, func(), error) {
	adapters, err := sources.Build(cfg.Sources, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "build sources")
	}

	opts := []search.Option{
		search.WithTimeouts(cfg.Collect.PerSourceTimeout, cfg.Collect.OverallDeadline),
		search.WithGracePeriod(cfg.Collect.GracePeriod),
		search.WithNormalizeOptions(normalize.Options{
			MinPrice:     cfg.Normalize.MinPrice,
			MaxPrice:     cfg.Normalize.MaxPrice,
			DefaultCabin: cfg.Normalize.DefaultCabin,
		}),
		search.WithPriority(cfg.SourcePriority()),
		search.WithRequireResults(cfg.Collect.RequireResults),
		search.WithMetrics(metrics),
		search.WithLogger(logger),
	}

	cleanup := func() {}
	if cfg.Database.DSN != "" {
		store, err := storage.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		opts = append(opts, search.WithSinks(store))
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Error("close history store", "error", err)
			}
		}
		logger.Info("run history enabled")
	}

	p, err := search.New(adapters, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}

// NewServer wires the HTTP API around a pipeline. The returned cleanup
// stops the cache and limiter janitors.
func NewServer(cfg *config.Config, p *search.Pipeline, metrics *obs.Metrics, logger *slog.Logger) (*http.Server, func()) {
	searchCache := cache.New(cfg.Cache.TTL)
	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	h := handler.New(p, searchCache, limiter, metrics, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", h.SearchHandler)
	mux.HandleFunc("GET /healthz", obs.HealthHandler(logger))
	mux.HandleFunc("GET /metrics", metrics.MetricsHandler())

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      middleware.Logging(logger)(middleware.Recover(logger)(mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return srv, func() {
		searchCache.Close()
		limiter.Close()
	}
}

// Run serves the API until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics := obs.NewMetrics(logger)

	p, closePipeline, err := NewPipeline(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closePipeline()

	srv, closeServer := NewServer(cfg, p, metrics, logger)
	defer closeServer()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "sources", p.Sources())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return errors.Wrap(err, "shutdown")
	}

	logger.Info("server stopped")
	return nil
}
