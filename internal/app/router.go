package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/apgms/apgms/internal/audit"
	"github.com/apgms/apgms/internal/auth"
	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/idempotency"
	"github.com/apgms/apgms/internal/ledger"
	"github.com/apgms/apgms/internal/lodgment"
	"github.com/apgms/apgms/internal/observability"
	"github.com/apgms/apgms/internal/reconcile"
	"github.com/apgms/apgms/internal/settlement"
	"github.com/apgms/apgms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AuthService       *auth.Service
	AuthHandler       *auth.Handler
	DesignatedHandler *designated.Handler
	LedgerHandler     *ledger.Handler
	SettlementHandler *settlement.Handler
	LodgmentHandler   *lodgment.Handler
	ReconcileHandler  *reconcile.Handler
	AuditHandler      *audit.Handler
	JobHandler        *jobs.Handler
	IdempotencyStore  *idempotency.Store
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router for the API.
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
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(params.AuthService))

		r.Route("/tokens", params.AuthHandler.MountRoutes)
		r.Route("/designated-accounts", params.DesignatedHandler.MountRoutes)
		r.Route("/journals", params.LedgerHandler.MountRoutes)
		r.Route("/recon", params.ReconcileHandler.MountRoutes)
		r.Route("/audit", params.AuditHandler.MountRoutes)

		// Money-moving endpoints require an Idempotency-Key.
		r.Route("/settlements", func(r chi.Router) {
			r.Use(idempotency.Middleware(params.Logger, params.IdempotencyStore, "settlements"))
			params.SettlementHandler.MountRoutes(r)
		})
		r.Route("/lodgments", func(r chi.Router) {
			r.Use(idempotency.Middleware(params.Logger, params.IdempotencyStore, "lodgments"))
			params.LodgmentHandler.MountRoutes(r)
		})
	})

	return r
}
