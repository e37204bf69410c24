package remotejob

import (
	"context"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

// Trimmer restricts a document to a page window.
type Trimmer interface {
	Trim(document []byte, window domain.PageWindow) ([]byte, error)
}

// BudgetGuard refuses work when the account budget is too low.
type BudgetGuard interface {
	EnsureBudget(ctx context.Context, minRequired int) error
}

// Submitter runs one remote job.
type Submitter interface {
	SubmitAndFetch(ctx context.Context, document []byte, apiKey string) ([]domain.Table, error)
}

// Extractor is the remote job backend. It checks the budget immediately
// before every submission.
type Extractor struct {
	trimmer    Trimmer
	guard      BudgetGuard
	submitter  Submitter
	apiKey     string
	minCredits int
}

// NewExtractor creates the remote job backend.
func NewExtractor(trimmer Trimmer, guard BudgetGuard, submitter Submitter, apiKey string, minCredits int) *Extractor {
	if minCredits < 1 {
		minCredits = 1
	}
	return &Extractor{
		trimmer:    trimmer,
		guard:      guard,
		submitter:  submitter,
		apiKey:     apiKey,
		minCredits: minCredits,
	}
}

// Backend returns domain.BackendRemoteJob.
func (e *Extractor) Backend() domain.Backend {
	return domain.BackendRemoteJob
}

// Extract submits the window of document and returns its tables.
func (e *Extractor) Extract(ctx context.Context, document []byte, window domain.PageWindow) ([]domain.Table, error) {
	trimmed, err := e.trimmer.Trim(document, window)
	if err != nil {
		return nil, err
	}
	if err := e.guard.EnsureBudget(ctx, e.minCredits); err != nil {
		return nil, err
	}
	return e.submitter.SubmitAndFetch(ctx, trimmed, e.apiKey)
}
