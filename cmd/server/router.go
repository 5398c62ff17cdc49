package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/isplitter/internal/api"
	apiMiddleware "github.com/phrazzld/isplitter/internal/api/middleware"
)

// setupRouter registers every route and the middleware stack.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.CORS)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	cfg := app.config
	prefix := cfg.Server.APIPrefix
	maxUpload := cfg.Server.MaxUploadBytes()

	healthHandler := api.NewHealthHandler(app.storage, cfg.Storage.Bucket, app.logger)
	splitHandler := api.NewSplitHandler(app.splitService, maxUpload, app.logger)
	tryOnHandler := api.NewTryOnHandler(app.tryOnService, maxUpload, prefix+"/status", app.logger)

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)
	r.Get("/health/storage", healthHandler.Storage)

	r.Route(prefix, func(r chi.Router) {
		if app.jwtService != nil {
			r.Use(apiMiddleware.NewAuthMiddleware(app.jwtService).Authenticate)
		}

		r.Post("/split-image/", splitHandler.SplitImage)
		r.Post("/virtual-tryon/try-on", tryOnHandler.TryOn)
		r.Post("/virtual-tryon/try-on/async", tryOnHandler.TryOnAsync)
		r.Get("/status/{task_id}", tryOnHandler.Status)
	})

	if app.objects != nil {
		r.Mount("/objects", http.StripPrefix("/objects", app.objects))
	}

	return r
}
