package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/devicehub/devicehub/internal/catalog"
	"github.com/devicehub/devicehub/internal/commission"
	"github.com/devicehub/devicehub/internal/customers"
	"github.com/devicehub/devicehub/internal/dashboard"
	"github.com/devicehub/devicehub/internal/inventory"
	"github.com/devicehub/devicehub/internal/invoices"
	"github.com/devicehub/devicehub/internal/observability"
	"github.com/devicehub/devicehub/internal/payouts"
	"github.com/devicehub/devicehub/internal/platform/httpx"
	"github.com/devicehub/devicehub/internal/repairs"
	"github.com/devicehub/devicehub/internal/sales"
	"github.com/devicehub/devicehub/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	// Checks are pinged by /healthz, keyed by dependency name.
	Checks map[string]Pinger

	InventoryHandler  *inventory.Handler
	CatalogHandler    *catalog.Handler
	InvoicesHandler   *invoices.Handler
	CustomersHandler  *customers.Handler
	CommissionHandler *commission.Handler
	RepairsHandler    *repairs.Handler
	SalesHandler      *sales.Handler
	PayoutsHandler    *payouts.Handler
	DashboardHandler  *dashboard.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with devicehub defaults.
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

	r.Get("/healthz", healthz(params.Logger, params.Checks))

	if params.InventoryHandler != nil {
		r.Route("/devices", params.InventoryHandler.MountRoutes)
	}
	if params.CatalogHandler != nil {
		r.Route("/catalog", params.CatalogHandler.MountRoutes)
	}
	if params.CustomersHandler != nil {
		r.Route("/customers", params.CustomersHandler.MountRoutes)
	}
	if params.CommissionHandler != nil {
		r.Route("/commission", params.CommissionHandler.MountRoutes)
	}
	if params.RepairsHandler != nil {
		r.Route("/repairs", params.RepairsHandler.MountRoutes)
	}
	if params.SalesHandler != nil {
		r.Route("/sales", params.SalesHandler.MountRoutes)
	}
	if params.InvoicesHandler != nil {
		r.Route("/invoices", params.InvoicesHandler.MountRoutes)
	}
	if params.PayoutsHandler != nil {
		r.Route("/payouts", params.PayoutsHandler.MountRoutes)
	}
	if params.DashboardHandler != nil {
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	return r
}

func healthz(logger *slog.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
				status[name] = "down"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	}
}
