package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/audio-scribe/backend/internal/api"
	"github.com/audio-scribe/backend/internal/config"
	"github.com/audio-scribe/backend/internal/db"
	"github.com/audio-scribe/backend/internal/ffmpeg"
	"github.com/audio-scribe/backend/internal/job"
	"github.com/audio-scribe/backend/internal/metrics"
	"github.com/audio-scribe/backend/internal/storage"
	"github.com/audio-scribe/backend/internal/transcribe"
	"github.com/audio-scribe/backend/internal/translate"
)

const shutdownTimeout = 30 * time.Second

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func main() {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrMissingAPIKey) {
		log.Fatalf("GOOGLE_API_KEY must be set (environment or .env) before starting the server")
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataPath, 0755); err != nil {
		logger.Fatalw("failed to create data directory", "path", cfg.DataPath, "error", err)
	}

	// Initialize database
	database, err := db.NewSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatalw("failed to initialize database", "path", cfg.DBPath, "error", err)
	}
	defer database.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	uploads, err := storage.NewUploads(cfg.UploadPath, cfg.MaxUploadBytes)
	if err != nil {
		logger.Fatalw("failed to initialize upload storage", "error", err)
	}
	// Nothing owns leftover uploads once interrupted jobs are failed
	if n, err := uploads.Purge(); err != nil {
		logger.Warnw("failed to purge stale uploads", "error", err)
	} else if n > 0 {
		logger.Infow("purged stale uploads", "count", n)
	}

	converter := ffmpeg.NewConverter(ffmpeg.WithTempDir(cfg.DataPath))

	// Translation engines
	setting := func(key string) func() string {
		return func() string { return database.GetSetting(key, "") }
	}
	translator := translate.NewService("gemini", setting(db.SettingTranslateEngine), m, logger.With("component", "translate"))
	translator.RegisterEngine(translate.NewGeminiTranslator(cfg.GoogleAPIKey, cfg.GeminiModel,
		setting(db.SettingGeminiModel), logger.With("component", "gemini")))
	if cfg.OpenAIKey != "" {
		translator.RegisterEngine(translate.NewOpenAITranslator(cfg.OpenAIKey, ""))
	}
	if cfg.DeepLKey != "" {
		translator.RegisterEngine(translate.NewDeepLTranslator(cfg.DeepLKey))
	}

	// Recognition engines
	transcriber := transcribe.NewService(uploads, converter, translator, transcribe.Settings{
		Engine:   setting(db.SettingRecognitionEngine),
		Language: setting(db.SettingRecognitionLanguage),
	}, transcribe.Options{
		ChunkSeconds: cfg.Pipeline.ChunkSeconds,
		SampleRate:   cfg.Pipeline.SampleRate,
		Channels:     cfg.Pipeline.Channels,
		Language:     cfg.Pipeline.Language,
		TargetLang:   cfg.Pipeline.TargetLanguage,
		Placeholder:  cfg.Pipeline.Placeholder,
		Pause:        cfg.Pipeline.ProgressPause,
	}, m, logger.With("component", "transcribe"))
	transcriber.RegisterEngine(transcribe.NewGoogleRecognizer(cfg.GoogleAPIKey))
	if cfg.WhisperURL != "" {
		transcriber.RegisterEngine(transcribe.NewWhisperCppClient(cfg.WhisperURL))
	}
	if cfg.OpenAIKey != "" {
		transcriber.RegisterEngine(transcribe.NewOpenAIWhisperClient(cfg.OpenAIKey))
	}

	queue := job.NewJobQueue(database.DB(), m, logger.With("component", "jobs"))
	queue.RegisterHandler(job.JobTranscribe, transcriber.HandleJob)
	queue.RegisterCleanup(job.JobTranscribe, transcriber.Cleanup)
	queue.SetErrorMessage(transcribe.UserMessage)

	router := api.NewRouter(api.Deps{
		Config:      cfg,
		Database:    database,
		Queue:       queue,
		Uploads:     uploads,
		Transcriber: transcriber,
		Translator:  translator,
		Metrics:     m,
		Gatherer:    reg,
		Logger:      logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("http shutdown", "error", err)
		}
	}()

	logger.Infow("starting server",
		"addr", addr,
		"recognition_engines", transcriber.Engines(),
		"translation_engines", translator.Engines(),
		"target_language", cfg.Pipeline.TargetLanguage,
		"chunk_seconds", cfg.Pipeline.ChunkSeconds,
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalw("server failed", "error", err)
	}

	// Running jobs are cancelled and recorded as interrupted
	queue.Stop()
	logger.Infow("stopped")
}
