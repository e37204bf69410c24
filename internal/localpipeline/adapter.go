// Package localpipeline runs table detection and cell extraction through
// the local model services.
package localpipeline

import (
	"context"
	"fmt"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/observability"
)

// Detector finds candidate table regions in a document.
type Detector interface {
	Detect(ctx context.Context, document []byte) ([]Crop, error)
}

// CellExtractor reads the cell grid of one detected region.
type CellExtractor interface {
	Extract(ctx context.Context, crop Crop) (domain.Grid, *domain.ConfidenceGrid, error)
}

// Trimmer restricts a document to a page window.
type Trimmer interface {
	Trim(document []byte, window domain.PageWindow) ([]byte, error)
}

// Adapter is the local pipeline backend. Tables it returns never carry
// confidence.
type Adapter struct {
	trimmer   Trimmer
	detector  Detector
	extractor CellExtractor
	logger    *observability.Logger
}

// NewAdapter creates the local pipeline backend.
func NewAdapter(trimmer Trimmer, detector Detector, extractor CellExtractor, logger *observability.Logger) *Adapter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Adapter{
		trimmer:   trimmer,
		detector:  detector,
		extractor: extractor,
		logger:    logger.WithComponent("localpipeline"),
	}
}

// Backend returns domain.BackendLocalPipeline.
func (a *Adapter) Backend() domain.Backend {
	return domain.BackendLocalPipeline
}

// Extract detects tables in the window and extracts each one, in detector order.
func (a *Adapter) Extract(ctx context.Context, document []byte, window domain.PageWindow) ([]domain.Table, error) {
	trimmed, err := a.trimmer.Trim(document, window)
	if err != nil {
		return nil, err
	}

	crops, err := a.detector.Detect(ctx, trimmed)
	if err != nil {
		return nil, asBackendError("table detection failed", err)
	}

	log := a.logger.WithContext(ctx)
	log.Info().Int("crops", len(crops)).Str("window", window.String()).Msg("tables detected")

	tables := make([]domain.Table, 0, len(crops))
	for i, crop := range crops {
		if err := ctx.Err(); err != nil {
			return nil, domain.BackendUnavailableError("local extraction cancelled", err)
		}

		cells, _, err := a.extractor.Extract(ctx, crop)
		if err != nil {
			return nil, asBackendError(fmt.Sprintf("cell extraction failed for crop %d", i), err)
		}

		table, err := domain.NewTable(cells, nil)
		if err != nil {
			return nil, fmt.Errorf("crop %d: %w", i, err)
		}
		tables = append(tables, table)
	}

	return tables, nil
}

// asBackendError keeps typed errors and wraps the rest as backend failures.
func asBackendError(message string, err error) error {
	if domain.TypeOf(err) != "" {
		return fmt.Errorf("%s: %w", message, err)
	}
	return domain.BackendUnavailableError(message, err)
}
