package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/filings-extractor/cmd/filings-extractor/ui"
)

var listCmd = &cobra.Command{
	Use:   "list <company-id>",
	Short: "List stored extractions of a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *services) error {
			records, err := svc.store.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				ui.Info("No extractions stored for %s", args[0])
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					fmt.Sprint(r.Year),
					string(r.Backend),
					fmt.Sprint(r.TableCount),
					r.CreatedAt.Format("2006-01-02 15:04"),
					r.RunID,
				})
			}
			ui.Table([]string{"YEAR", "BACKEND", "TABLES", "CREATED", "RUN"}, rows)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
