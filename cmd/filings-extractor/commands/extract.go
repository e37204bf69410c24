package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/filings-extractor/cmd/filings-extractor/ui"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/domain"
	"github.com/spherical-ai/spherical/libs/filings-extractor/internal/orchestrator"
)

var (
	extractYear    int
	extractBackend string
	extractFile    string
	extractDocsDir string
)

var extractCmd = &cobra.Command{
	Use:   "extract <company-id> [company-id...]",
	Short: "Extract the subsidiaries table for one or more companies",
	Long: `Extract the subsidiaries and equity holdings table for each company.

With a single company, --file names its annual report. With several, each
report is read from <documents-dir>/<company-id>.pdf. Companies already
extracted for the same year and backend are reported and skipped.`,
	Example: `  filings-extractor extract 552032534 --year 2021 --backend remote --file report.pdf
  filings-extractor extract 552032534 542051180 --year 2022 --documents-dir ./reports`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().IntVarP(&extractYear, "year", "y", 0, "Fiscal year of the report (required)")
	extractCmd.Flags().StringVarP(&extractBackend, "backend", "b", string(domain.BackendRemoteJob), "Backend: remote_job or local_pipeline")
	extractCmd.Flags().StringVarP(&extractFile, "file", "f", "", "Annual-report PDF (single company)")
	extractCmd.Flags().StringVarP(&extractDocsDir, "documents-dir", "d", "", "Directory holding <company-id>.pdf reports")
	_ = extractCmd.MarkFlagRequired("year")
	extractCmd.MarkFlagsMutuallyExclusive("file", "documents-dir")
}

func runExtract(cmd *cobra.Command, args []string) error {
	backend, err := domain.ParseBackend(extractBackend)
	if err != nil {
		return err
	}
	if len(args) > 1 && extractFile != "" {
		return fmt.Errorf("--file takes a single company; use --documents-dir for several")
	}
	if extractFile == "" && extractDocsDir == "" {
		return fmt.Errorf("one of --file or --documents-dir is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withServices(ctx, func(svc *services) error {
		if len(args) == 1 {
			return extractOne(ctx, svc, args[0], backend)
		}
		return extractBatch(ctx, svc, args, backend)
	})
}

func documentPath(companyID string) string {
	if extractFile != "" {
		return extractFile
	}
	return filepath.Join(extractDocsDir, companyID+".pdf")
}

func runOne(ctx context.Context, svc *services, companyID string, backend domain.Backend) (*orchestrator.Outcome, error) {
	key := domain.RequestKey{CompanyID: companyID, Year: extractYear, Backend: backend}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	doc, err := os.ReadFile(documentPath(companyID))
	if err != nil {
		return nil, domain.IOError("read document", err)
	}
	return svc.orchestrator.Run(ctx, orchestrator.Request{Key: key, Document: doc})
}

func extractOne(ctx context.Context, svc *services, companyID string, backend domain.Backend) error {
	s := ui.NewSpinner(fmt.Sprintf("Extracting %s/%d with %s...", companyID, extractYear, backend))
	s.Start()
	outcome, err := runOne(ctx, svc, companyID, backend)
	s.Stop()
	if err != nil {
		return err
	}
	printOutcome(outcome)
	return nil
}

func extractBatch(ctx context.Context, svc *services, companies []string, backend domain.Backend) error {
	bar := ui.NewProgressBar(len(companies), "Extracting")
	outcomes := make([]*orchestrator.Outcome, 0, len(companies))
	failures := map[string]error{}

	for _, companyID := range companies {
		if ctx.Err() != nil {
			break
		}
		bar.Describe(companyID)
		outcome, err := runOne(ctx, svc, companyID, backend)
		bar.Add()
		if err != nil {
			failures[companyID] = err
			// Out of credits affects every remaining company.
			if domain.IsType(err, domain.ErrorTypeInsufficientCredits) {
				break
			}
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	bar.Finish()

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{o.CompanyID, string(o.Status), fmt.Sprint(o.TableCount), windowLabel(o)})
	}
	if len(rows) > 0 {
		ui.Section("Extractions")
		ui.Table([]string{"COMPANY", "STATUS", "TABLES", "PAGES"}, rows)
	}

	for _, companyID := range companies {
		if err, ok := failures[companyID]; ok {
			ui.Error("%s: %v", companyID, err)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d extractions failed", len(failures), len(companies))
	}
	return ctx.Err()
}

func printOutcome(o *orchestrator.Outcome) {
	switch o.Status {
	case orchestrator.StatusAlreadyExtracted:
		ui.Warning("%s already extracted, nothing to do", o.Key)
	default:
		ui.Success("Extracted %d table(s) for %s from pages %s in %s", o.TableCount, o.Key, windowLabel(o), o.Duration.Round(time.Millisecond))
		if o.RunID != "" {
			ui.Info("Run %s", o.RunID)
		}
	}
}

func windowLabel(o *orchestrator.Outcome) string {
	if o.Window == nil {
		return "-"
	}
	return o.Window.String()
}
