package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/clinicdesk/internal/auth"
	"github.com/clinicdesk/clinicdesk/internal/inventory"
	"github.com/clinicdesk/clinicdesk/internal/observability"
	"github.com/clinicdesk/clinicdesk/internal/platform/httpx"
	"github.com/clinicdesk/clinicdesk/internal/sales"
	"github.com/clinicdesk/clinicdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Verifier         *auth.Verifier
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	Pool             *pgxpool.Pool
	Redis            *redis.Client
}

// NewRouter constructs the chi.Router with clinicdesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if params.Verifier != nil {
			r.Use(params.Verifier.Middleware(params.Logger))
		}
		if params.InventoryHandler != nil {
			r.Route("/stock", params.InventoryHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})
	return r
}

func readiness(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := map[string]string{}
		ready := true
		if params.Pool != nil {
			checks["postgres"] = "ok"
			if err := params.Pool.Ping(ctx); err != nil {
				checks["postgres"] = err.Error()
				ready = false
			}
		}
		if params.Redis != nil {
			checks["redis"] = "ok"
			if err := params.Redis.Ping(ctx).Err(); err != nil {
				checks["redis"] = err.Error()
				ready = false
			}
		}
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		httpx.JSON(w, status, map[string]any{"ready": ready, "checks": checks})
	}
}
