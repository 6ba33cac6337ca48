// cmd/process.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/config"
	"github.com/xtechon/vatflow/pkg/pipeline"
	"github.com/xtechon/vatflow/pkg/store"
	"github.com/xtechon/vatflow/pkg/vat"
)

var (
	processOutput    string
	processWarehouse string
)

var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Validate and enrich a data file in one run",
	Long: `Run the full pipeline against a local CSV, TSV or XLSX file (or a
warehouse table with --warehouse) and write the enriched report
workbook. Validation findings are printed; rows without a VAT rule are
written to a separate manual-review workbook.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processOutput, "output", "o", "", "Path for the report workbook (default: <input>_vat_report.xlsx)")
	processCmd.Flags().StringVar(&processWarehouse, "warehouse", "", "Process a warehouse table (schema.table) instead of a local file")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && processWarehouse == "" {
		return fmt.Errorf("either a file argument or --warehouse is required")
	}
	if len(args) > 0 && processWarehouse != "" {
		return fmt.Errorf("a file argument and --warehouse are mutually exclusive")
	}

	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()

	stores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	processor, sessions, err := buildProcessor(cfg, stores, logger)
	if err != nil {
		return err
	}
	defer sessions.Close()

	var (
		outcome   *validationResult
		inputName string
	)
	if processWarehouse != "" {
		outcome, inputName, err = validateWarehouse(ctx, cfg, processor, logger)
	} else {
		outcome, inputName, err = validateLocalFile(ctx, processor, args[0])
	}
	if err != nil {
		return err
	}

	printFindings(outcome)
	if !outcome.CanProcess {
		return fmt.Errorf("missing required columns; cannot process")
	}

	processed, err := processor.ProcessVAT(ctx, outcome.SessionID)
	if err != nil {
		return err
	}

	reportPath := processOutput
	if reportPath == "" {
		reportPath = strings.TrimSuffix(inputName, filepath.Ext(inputName)) + "_vat_report.xlsx"
	}

	data, _, err := processor.Report(outcome.SessionID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(reportPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Printf("Report written to %s\n", reportPath)

	if processed.Status == vat.StatusManualReviewRequired {
		issuesPath := strings.TrimSuffix(reportPath, filepath.Ext(reportPath)) + "_manual_review.xlsx"
		issues, err := processor.ManualReviewWorkbook(outcome.SessionID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(issuesPath, issues, 0o644); err != nil {
			return fmt.Errorf("failed to write manual-review workbook: %w", err)
		}
		fmt.Printf("%d row(s) need manual review; written to %s\n", processed.ManualCount, issuesPath)
	}

	fmt.Printf("Totals: net %.2f, VAT %.2f, gross %.2f %s\n",
		processed.Totals.Net, processed.Totals.VAT, processed.Totals.Gross, cfg.BaseCurrency)
	return nil
}

// validationResult narrows the pipeline outcome to what the CLI needs
type validationResult struct {
	SessionID  string
	CanProcess bool
	Missing    []string
	Issues     []string
}

func narrowOutcome(outcome *pipeline.ValidationOutcome) *validationResult {
	res := &validationResult{
		SessionID:  outcome.SessionID,
		CanProcess: outcome.CanProcess,
	}
	for _, m := range outcome.MissingColumns {
		res.Missing = append(res.Missing, m.Description)
	}
	for _, issue := range outcome.Issues {
		res.Issues = append(res.Issues, fmt.Sprintf("%s [%s]: %s", issue.Column, issue.Type, issue.Description))
	}
	return res
}

func validateLocalFile(ctx context.Context, processor *pipeline.Processor, path string) (*validationResult, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	outcome, err := processor.ValidateFile(ctx, data, filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	return narrowOutcome(outcome), path, nil
}

func validateWarehouse(ctx context.Context, cfg *config.Config, processor *pipeline.Processor, logger *zap.Logger) (*validationResult, string, error) {
	if cfg.Snowflake == nil {
		return nil, "", fmt.Errorf("--warehouse requires Snowflake configuration (SNOWFLAKE_ACCOUNT etc.)")
	}

	source, err := store.NewWarehouseSource(ctx, cfg.Snowflake, logger)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer source.Close()

	f, err := source.FetchFrame(ctx, processWarehouse)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", processWarehouse, err)
	}

	outcome, err := processor.ValidateFrame(ctx, f, processWarehouse)
	if err != nil {
		return nil, "", err
	}
	return narrowOutcome(outcome), strings.ReplaceAll(processWarehouse, ".", "_"), nil
}

func printFindings(res *validationResult) {
	for _, m := range res.Missing {
		fmt.Printf("MISSING COLUMN: %s\n", m)
	}
	for _, issue := range res.Issues {
		fmt.Println(issue)
	}
	if len(res.Missing) == 0 && len(res.Issues) == 0 {
		fmt.Println("No validation findings")
	}
}
