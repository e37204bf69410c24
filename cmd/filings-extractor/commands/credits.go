package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/filings-extractor/cmd/filings-extractor/ui"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Show the remaining remote job credits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *services) error {
			if svc.guard == nil {
				return domain.ConfigError("no remote API key configured (set EXTRACTTABLE_API_KEY)", nil)
			}
			remaining, err := svc.guard.Remaining(cmd.Context())
			if err != nil {
				return err
			}
			if remaining < svc.cfg.Remote.MinCredits {
				ui.Warning("%d credit(s) remaining, below the minimum of %d", remaining, svc.cfg.Remote.MinCredits)
				return nil
			}
			ui.Success("%d credit(s) remaining", remaining)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(creditsCmd)
}
