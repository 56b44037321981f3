package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/austral-erp/austral-erp/internal/documents"
	"github.com/austral-erp/austral-erp/internal/pricing"
	"github.com/austral-erp/austral-erp/internal/stock"
	"github.com/austral-erp/austral-erp/internal/tax"
	"github.com/austral-erp/austral-erp/internal/treasury"
	"github.com/austral-erp/austral-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	DocumentsHandler *documents.Handler
	TaxHandler       *tax.Handler
	PricingHandler   *pricing.Handler
	StockHandler     *stock.Handler
	TreasuryHandler  *treasury.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		params.DocumentsHandler.MountRoutes(r)
		params.TaxHandler.MountRoutes(r)
		params.PricingHandler.MountRoutes(r)
		params.StockHandler.MountRoutes(r)
		params.TreasuryHandler.MountRoutes(r)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
