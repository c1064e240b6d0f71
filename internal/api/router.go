// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/dvloznov/sheets-ledger/internal/api/handlers"
	"github.com/dvloznov/sheets-ledger/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Config holds router configuration.
type Config struct {
	Logger         zerolog.Logger
	AllowedOrigins []string

	// Credentials resolves the bearer token on every /api route.
	Credentials func(http.Handler) http.Handler
	// AddressLimiter runs before Credentials and is keyed by client address.
	AddressLimiter *middleware.RateLimiter
	// RateLimiter runs after Credentials and is keyed by user.
	RateLimiter *middleware.RateLimiter

	Transactions *handlers.TransactionsHandler
	Lookups      *handlers.LookupsHandler
	Imports      *handlers.ImportsHandler
	Jobs         *handlers.JobsHandler
}

// NewRouter creates the HTTP router.
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		if cfg.AddressLimiter != nil {
			r.Use(cfg.AddressLimiter.Middleware)
		}
		if cfg.Credentials != nil {
			r.Use(cfg.Credentials)
		}
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		if cfg.Transactions != nil {
			r.Post("/transactions", cfg.Transactions.CreateTransactions)
			r.Get("/transactions", cfg.Transactions.ListTransactions)
			r.Post("/income", cfg.Transactions.CreateIncome)
			r.Post("/income/query", cfg.Transactions.QueryIncome)
		}

		if cfg.Lookups != nil {
			r.Get("/categories", cfg.Lookups.ListCategories)
			r.Get("/payment-methods", cfg.Lookups.ListPaymentMethods)
			r.Get("/spending", cfg.Lookups.GetSpending)
		}

		if cfg.Imports != nil {
			r.Post("/imports", cfg.Imports.CreateImport)
			r.Post("/imports/upload", cfg.Imports.UploadImport)
		}

		if cfg.Jobs != nil {
			r.Get("/jobs", cfg.Jobs.ListJobs)
			r.Get("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
				cfg.Jobs.GetJob(w, r, chi.URLParam(r, "id"))
			})
		}
	})

	return r
}
