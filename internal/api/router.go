// Package api exposes extraction, bundle, export and credit endpoints over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/observability"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/orchestrator"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/storage"
)

// Runner executes extraction requests.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error)
}

// Extractions reads committed extractions.
type Extractions interface {
	List(ctx context.Context, companyID string) ([]storage.Record, error)
	LoadTable(ctx context.Context, key domain.RequestKey, index int) (domain.Table, error)
	Bundle(ctx context.Context, companyID string, w io.Writer) error
}

// CreditReporter reports the remaining remote credits.
type CreditReporter interface {
	Remaining(ctx context.Context) (int, error)
}

// Config holds router settings.
type Config struct {
	RequestTimeout time.Duration
	// MaxUploadBytes bounds multipart document uploads.
	MaxUploadBytes int64
}

// NewRouter creates the API router. credits may be nil when no remote
// backend is configured.
func NewRouter(logger *observability.Logger, runner Runner, extractions Extractions, credits CreditReporter, cfg Config) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	h := &Handler{
		logger:      logger.WithComponent("api"),
		runner:      runner,
		extractions: extractions,
		credits:     credits,
		maxUpload:   cfg.MaxUploadBytes,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"filings-extractor"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/extractions", h.Extract)
		r.Get("/credits", h.Credits)

		r.Route("/companies/{companyId}", func(r chi.Router) {
			r.Get("/extractions", h.ListExtractions)
			r.Get("/bundle", h.Bundle)
			r.Get("/extractions/{year}/{backend}/tables/{index}", h.ExportTable)
		})
	})

	return r
}
