package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/audio-scribe/backend/internal/api/handlers"
	"github.com/audio-scribe/backend/internal/api/middleware"
	"github.com/audio-scribe/backend/internal/config"
	"github.com/audio-scribe/backend/internal/db"
	"github.com/audio-scribe/backend/internal/job"
	"github.com/audio-scribe/backend/internal/metrics"
	"github.com/audio-scribe/backend/internal/storage"
	"github.com/audio-scribe/backend/internal/transcribe"
	"github.com/audio-scribe/backend/internal/translate"
)

const (
	jsonBodyLimit   = 1 << 20
	uploadRateLimit = 10
	uploadWindow    = time.Minute
)

// Deps are the services the HTTP layer is wired to
type Deps struct {
	Config      *config.Config
	Database    *db.Database
	Queue       *job.JobQueue
	Uploads     *storage.Uploads
	Transcriber *transcribe.Service
	Translator  *translate.Service
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Logger      *zap.SugaredLogger
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger.With("component", "http"), d.Metrics))
	r.Use(cors.Handler(middleware.CORSHandler(d.Config.CORSOrigins)))

	// Handlers
	metaHandler := handlers.NewMetaHandler(d.Config.Pipeline.TargetLanguage, d.Transcriber.Engines, d.Translator.Engines)
	transcriptionHandler := handlers.NewTranscriptionHandler(d.Uploads, d.Queue,
		d.Config.Pipeline.TargetLanguage, d.Config.MaxUploadBytes, d.Logger.With("component", "upload"))
	jobHandler := handlers.NewJobHandler(d.Queue)
	translateHandler := handlers.NewTranslateHandler(d.Translator)
	settingsHandler := handlers.NewSettingsHandler(d.Database, d.Transcriber.Engines, d.Translator.Engines)
	geminiModelsHandler := handlers.NewGeminiModelsHandler(d.Config.GoogleAPIKey)

	uploadLimiter := middleware.NewRateLimiter(uploadRateLimit, uploadWindow)

	r.Get("/", handlers.Index)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", metaHandler.Health)
		r.Get("/languages", metaHandler.Languages)
		r.Get("/engines", metaHandler.Engines)
		r.Get("/gemini/models", geminiModelsHandler.ListModels)

		// Uploads: no JSON body limit, MAX_UPLOAD_BYTES applies in the handler
		r.With(uploadLimiter.Handler).Post("/transcriptions", transcriptionHandler.Create)

		// Jobs
		r.Get("/jobs", jobHandler.ListJobs)
		r.Get("/jobs/{id}", jobHandler.GetJob)
		r.Delete("/jobs/{id}", jobHandler.CancelJob)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(jsonBodyLimit))

			r.Post("/translate", translateHandler.Translate)

			r.Get("/settings", settingsHandler.GetSettings)
			r.Put("/settings", settingsHandler.UpdateSettings)
		})
	})

	return r
}
