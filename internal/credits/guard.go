// Package credits guards remote submissions against an exhausted budget.
package credits

import (
	"context"
	"fmt"

	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/observability"
)

// UsageSource reports the remaining credits of an account.
type UsageSource interface {
	RemainingCredits(ctx context.Context, apiKey string) (int, error)
}

// Guard queries the usage source on every call. It keeps no copy of the
// budget since several callers may share one account.
type Guard struct {
	source UsageSource
	apiKey string
	logger *observability.Logger
}

// NewGuard creates a Guard for the account identified by apiKey.
func NewGuard(source UsageSource, apiKey string, logger *observability.Logger) *Guard {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Guard{
		source: source,
		apiKey: apiKey,
		logger: logger.WithComponent("credits"),
	}
}

// Remaining returns the freshly queried remaining credits.
func (g *Guard) Remaining(ctx context.Context) (int, error) {
	return g.source.RemainingCredits(ctx, g.apiKey)
}

// EnsureBudget fails with an insufficient credits error when fewer than
// minRequired credits remain. minRequired below 1 is treated as 1.
func (g *Guard) EnsureBudget(ctx context.Context, minRequired int) error {
	if minRequired < 1 {
		minRequired = 1
	}

	remaining, err := g.Remaining(ctx)
	if err != nil {
		return err
	}

	if remaining < minRequired {
		g.logger.WithContext(ctx).Warn().
			Int("remaining", remaining).
			Int("required", minRequired).
			Msg("refusing remote submission")
		return domain.InsufficientCreditsError(
			fmt.Sprintf("%d credits remaining, %d required; provide a token with enough credits", remaining, minRequired), nil)
	}

	g.logger.WithContext(ctx).Debug().Int("remaining", remaining).Msg("credit budget ok")
	return nil
}
