package app

import (
	"database/sql"
	"net/http"
	"time"

	"quizimport/internal/app/observability"
	"quizimport/internal/importer"
	"quizimport/internal/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg Config, db *sql.DB, engine *importer.Engine, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	metrics := observability.NewCollector(db, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	importHandler := importer.NewHandler(engine, importer.HandlerConfig{
		Workers:        cfg.ImportWorkers,
		MaxUploadBytes: int64(cfg.ImportMaxUploadMB) << 20,
		Recorder:       metrics,
		Logger:         log,
	})
	limiter := NewUploadRateLimiter(cfg.ImportRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", metrics.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/courses/{courseID}/imports", func(imp chi.Router) {
			imp.Use(UploadRateLimitMiddleware(limiter))
			imp.Post("/", importHandler.Import)
			imp.Post("/archive", importHandler.ImportArchive)
		})
	})

	return r
}
