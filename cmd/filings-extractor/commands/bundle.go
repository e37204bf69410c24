package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/filings-extractor/cmd/filings-extractor/ui"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
)

var bundleOutput string

var bundleCmd = &cobra.Command{
	Use:   "bundle <company-id>",
	Short: "Zip every stored extraction of a company as CSV files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		companyID := args[0]
		if err := domain.ValidateCompanyID(companyID); err != nil {
			return err
		}
		output := bundleOutput
		if output == "" {
			output = companyID + ".zip"
		}

		return withServices(cmd.Context(), func(svc *services) error {
			records, err := svc.store.List(cmd.Context(), companyID)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return domain.NotFoundError(fmt.Sprintf("no extractions stored for %s", companyID), nil)
			}

			// Write beside the target and rename so a failed bundle never
			// leaves a truncated zip at output.
			tmp, err := os.CreateTemp(filepath.Dir(output), ".bundle-*.zip")
			if err != nil {
				return domain.IOError("create bundle", err)
			}
			defer os.Remove(tmp.Name())

			if err := svc.store.Bundle(cmd.Context(), companyID, tmp); err != nil {
				_ = tmp.Close()
				return err
			}
			if err := tmp.Close(); err != nil {
				return domain.IOError("close bundle", err)
			}
			if err := os.Rename(tmp.Name(), output); err != nil {
				return domain.IOError("write bundle", err)
			}

			ui.Success("Bundled %d extraction(s) into %s", len(records), output)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(bundleCmd)
	bundleCmd.Flags().StringVarP(&bundleOutput, "output", "o", "", "Output zip path (default: <company-id>.zip)")
}
