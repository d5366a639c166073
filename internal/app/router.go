package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stockbridge/stockbridge/internal/documents"
	"github.com/stockbridge/stockbridge/internal/masterdata/warehouses"
	"github.com/stockbridge/stockbridge/internal/observability"
	"github.com/stockbridge/stockbridge/internal/posting"
	"github.com/stockbridge/stockbridge/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	DocumentsHandler *documents.Handler
	PostingHandler   *posting.Handler
	WarehouseHandler *warehouses.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Stockbridge defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(ActorMiddleware(params.Logger))
		params.DocumentsHandler.MountRoutes(api)
		params.PostingHandler.MountRoutes(api)
		params.WarehouseHandler.MountRoutes(api)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			params.JobHandler.MountRoutes(jr)
		})
	}

	return r
}
