package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/filings-extractor/cmd/filings-extractor/ui"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/export"
)

var (
	exportYear          int
	exportBackend       string
	exportIndex         int
	exportFormat        string
	exportOutput        string
	exportLowConfidence float64
)

var exportCmd = &cobra.Command{
	Use:   "export <company-id>",
	Short: "Export one stored table as CSV or XLSX",
	Long: `Export one stored table. Formats:
  csv             cell values, ';' separated, UTF-8 with BOM
  confidence-csv  per-cell confidence scores (remote_job only)
  xlsx            workbook with a Table sheet and, when present, a Confidence
                  sheet; low-confidence cells are shaded`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().IntVarP(&exportYear, "year", "y", 0, "Fiscal year (required)")
	exportCmd.Flags().StringVarP(&exportBackend, "backend", "b", string(domain.BackendRemoteJob), "Backend the table was extracted with")
	exportCmd.Flags().IntVarP(&exportIndex, "table", "t", 0, "Table index within the extraction")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv, confidence-csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout for CSV)")
	exportCmd.Flags().Float64Var(&exportLowConfidence, "low-confidence", export.DefaultLowConfidence, "Shade XLSX cells scoring below this")
	_ = exportCmd.MarkFlagRequired("year")
}

func runExport(cmd *cobra.Command, args []string) error {
	backend, err := domain.ParseBackend(exportBackend)
	if err != nil {
		return err
	}
	key := domain.RequestKey{CompanyID: args[0], Year: exportYear, Backend: backend}
	if err := key.Validate(); err != nil {
		return err
	}

	var write func(io.Writer, domain.Table) error
	switch exportFormat {
	case "csv":
		write = export.TableCSV
	case "confidence-csv":
		write = export.ConfidenceCSV
	case "xlsx":
		if exportOutput == "" {
			return fmt.Errorf("xlsx export requires --output")
		}
		write = func(w io.Writer, t domain.Table) error {
			return export.WriteXLSX(w, t, export.XLSXOptions{LowConfidence: exportLowConfidence})
		}
	default:
		return domain.ValidationError(fmt.Sprintf("unsupported format %q", exportFormat), nil)
	}

	return withServices(cmd.Context(), func(svc *services) error {
		table, err := svc.store.LoadTable(cmd.Context(), key, exportIndex)
		if err != nil {
			return err
		}

		if exportOutput == "" {
			return write(os.Stdout, table)
		}

		f, err := os.Create(exportOutput)
		if err != nil {
			return domain.IOError("create output", err)
		}
		if err := write(f, table); err != nil {
			_ = f.Close()
			_ = os.Remove(exportOutput)
			return err
		}
		if err := f.Close(); err != nil {
			return domain.IOError("close output", err)
		}
		ui.Success("Wrote table %d of %s to %s", exportIndex, key, exportOutput)
		return nil
	})
}
