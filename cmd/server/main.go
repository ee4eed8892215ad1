package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/tubelens/backend/internal/api"
	"github.com/tubelens/backend/internal/cache"
	"github.com/tubelens/backend/internal/config"
	"github.com/tubelens/backend/internal/download"
	"github.com/tubelens/backend/internal/gallery"
	"github.com/tubelens/backend/internal/health"
	"github.com/tubelens/backend/internal/logger"
	"github.com/tubelens/backend/internal/metrics"
	"github.com/tubelens/backend/internal/middleware"
	"github.com/tubelens/backend/internal/processor"
	"github.com/tubelens/backend/internal/storage"
	"github.com/tubelens/backend/internal/summary"
	"github.com/tubelens/backend/internal/validators"
	"github.com/tubelens/backend/internal/websocket"
	"github.com/tubelens/backend/internal/ytdlp"
)

const version = "1.0.0"

func main() {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	cfg := config.Load()

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), "server")
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	removed, err := download.PrepareScratch(cfg.TempDir, log)
	if err != nil {
		log.Error(ctx, "failed to prepare scratch directory", err, map[string]interface{}{"dir": cfg.TempDir})
		os.Exit(1)
	}
	if removed > 0 {
		log.Info(ctx, "removed stale job directories", map[string]interface{}{"count": removed})
	}

	m := metrics.Default()

	// Optional Redis cache
	var metaCache *cache.Cache
	if cfg.CacheEnabled() {
		metaCache, err = cache.New(cfg.RedisURL, cfg.CacheTTL, log)
		if err != nil {
			log.Warn(ctx, "redis unavailable, continuing without cache", map[string]interface{}{"error": err.Error()})
			metaCache = nil
		} else {
			defer metaCache.Close()
		}
	}

	// Optional object storage mirror
	var mirror *storage.Mirror
	if cfg.MirrorEnabled() {
		mirror, err = storage.NewMirror(&storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		}, log)
		if err == nil {
			initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = mirror.Init(initCtx)
			cancel()
		}
		if err != nil {
			log.Warn(ctx, "object storage unavailable, mirroring disabled", map[string]interface{}{"error": err.Error()})
			mirror = nil
		}
	}

	var galleryMirror gallery.Mirror
	if mirror != nil {
		galleryMirror = mirror
	}
	store, err := gallery.New(cfg.DownloadDir, galleryMirror, log)
	if err != nil {
		log.Error(ctx, "failed to prepare downloads directory", err, map[string]interface{}{"dir": cfg.DownloadDir})
		os.Exit(1)
	}

	ytdlpSvc, err := ytdlp.New(&ytdlp.Config{
		YtdlpPath:               cfg.YtdlpPath,
		UserAgent:               cfg.UserAgent,
		TitleTimeout:            cfg.TitleTimeout,
		MetadataTimeout:         cfg.MetadataTimeout,
		MetadataFallbackTimeout: cfg.MetadataFallbackTimeout,
		FormatsTimeout:          cfg.FormatsTimeout,
	}, log)
	if err != nil {
		log.Error(ctx, "yt-dlp not available", err, map[string]interface{}{"path": cfg.YtdlpPath})
		os.Exit(1)
	}

	registry := download.NewRegistry()
	hub := websocket.NewHub()
	registry.Observe(hub)

	manager := download.NewManager(download.Config{
		TempDir:      cfg.TempDir,
		UserAgent:    cfg.UserAgent,
		TickInterval: cfg.TickInterval,
		TickStep:     cfg.TickStep,
		TickCeiling:  cfg.TickCeiling,
	}, registry, ytdlpSvc, store, log, download.WithRecorder(m))

	summarizer := summary.New(summary.NewLLMCompleter(summary.LLMConfig{
		APIBase:     cfg.LLMAPIBase,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
	}), log)
	if !summarizer.Enabled() {
		log.Warn(ctx, "no language model API key configured, summaries disabled")
	}

	checks := &health.CheckerConfig{
		Downloader: ytdlpSvc.Check,
		Version:    version,
	}
	if metaCache != nil {
		checks.Redis = metaCache.Ping
	}
	if mirror != nil {
		checks.Storage = mirror.Ping
	}

	router := api.NewRouter(api.Config{
		Jobs:       manager,
		Videos:     processor.New(ytdlpSvc, summarizer, metaCache, log),
		Gallery:    store,
		Validators: validators.DefaultRegistry(),
		WebSocket:  websocket.NewHandler(hub, registry, m, log),
		Health:     health.NewHandler(health.NewChecker(checks)),
		Metrics:    m,
		Logger:     log,
	})

	handler := middleware.Chain(router,
		middleware.RequestID,
		middleware.Logging(log.WithComponent("http")),
		middleware.Recoverer(log),
		metrics.MetricsMiddleware(m),
		middleware.Gzip("/api/download"),
	)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
	})

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           c.Handler(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "server starting", map[string]interface{}{
			"addr":         cfg.ServerAddr,
			"download_dir": cfg.DownloadDir,
			"temp_dir":     cfg.TempDir,
			"cache":        metaCache != nil,
			"mirror":       mirror != nil,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error(context.Background(), "server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http server shutdown failed", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "download manager shutdown incomplete", err)
	}
	log.Info(shutdownCtx, "server stopped")
}
