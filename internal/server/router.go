package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/api"
	"github.com/cloo-solutions/crmkb/internal/api/handlers"
	"github.com/cloo-solutions/crmkb/internal/api/middleware"
)

const (
	maxJSONBodyBytes      int64 = 5 * 1024 * 1024
	defaultMaxUploadBytes int64 = 25 * 1024 * 1024
)

type RouterConfig struct {
	Logger          *zap.Logger
	MaxUploadBytes  int64
	DocumentHandler *handlers.DocumentHandler
	UploadHandler   *handlers.UploadHandler
	SearchHandler   *handlers.SearchHandler
	RecordHandler   *handlers.RecordHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodyBytes(maxJSONBodyBytes))

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", cfg.DocumentHandler.List)
			r.Post("/", cfg.DocumentHandler.Create)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Get("/{id}/chunks", cfg.DocumentHandler.Chunks)
			r.Get("/{id}/file", cfg.DocumentHandler.File)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
		})

		r.Post("/search", cfg.SearchHandler.Search)
		r.Post("/search/context", cfg.SearchHandler.Context)

		r.Post("/records/embed", cfg.RecordHandler.Embed)
		r.Post("/records/backfill", cfg.RecordHandler.Backfill)
	})

	r.Route("/uploads", func(r chi.Router) {
		r.With(middleware.MaxBodyBytes(maxUpload)).Post("/", cfg.UploadHandler.Create)
		r.Get("/", cfg.UploadHandler.List)
		r.Delete("/completed", cfg.UploadHandler.ClearCompleted)
		r.Get("/{id}", cfg.UploadHandler.Get)
		r.Delete("/{id}", cfg.UploadHandler.Cancel)
	})

	return r
}
