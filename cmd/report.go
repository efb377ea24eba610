// File: cmd/report.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/audit"
	"github.com/xkilldash9x/selfheal/internal/observability"
	"github.com/xkilldash9x/selfheal/internal/reporting"
)

type reportOptions struct {
	Target     string
	OutputPath string
	Format     string
	Status     string
}

func newReportCmd() *cobra.Command {
	var opts reportOptions
	var asJSON bool

	reportCmd := &cobra.Command{
		Use:   "report RUN_DIR",
		Short: "Summarize the healing report of a run",
		Long: `Reads self_healing/healing_report.json from a run directory (or a report file
given directly) and renders it as a text table, JSON or SARIF 2.1.0.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Target = args[0]
			if asJSON {
				opts.Format = reporting.FormatJSON
			}
			return runReport(cmd.Context(), observability.GetLogger(), opts)
		},
	}

	reportCmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "", "Output file path. If unset, the report is printed to stdout.")
	reportCmd.Flags().StringVarP(&opts.Format, "format", "f", reporting.FormatText, "Output format: text, json or sarif")
	reportCmd.Flags().BoolVar(&asJSON, "json", false, "Shorthand for --format json")
	reportCmd.Flags().StringVar(&opts.Status, "status", "", "Only include entries with this status (healed, manual_required, failed)")
	return reportCmd
}

// runReport contains the core, testable logic for rendering a report.
func runReport(ctx context.Context, logger *zap.Logger, opts reportOptions) error {
	path, err := reportPath(opts.Target)
	if err != nil {
		return err
	}
	entries, err := audit.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read healing report: %w", err)
	}
	logger.Debug("Loaded healing report", zap.String("path", path), zap.Int("entries", len(entries)))

	r, err := reporting.New(opts.Format, opts.OutputPath, Version)
	if err != nil {
		return err
	}
	for i := range entries {
		if err := ctx.Err(); err != nil {
			_ = r.Close()
			return err
		}
		if opts.Status != "" && entries[i].Status != schemas.HealingStatus(opts.Status) {
			continue
		}
		if err := r.Write(&entries[i]); err != nil {
			_ = r.Close()
			return fmt.Errorf("failed to write report entry %d: %w", entries[i].Sequence, err)
		}
	}
	if err := r.Close(); err != nil {
		return err
	}
	if opts.OutputPath != "" && opts.OutputPath != "stdout" {
		logger.Info("Report written", zap.String("path", opts.OutputPath), zap.String("format", opts.Format))
	}
	return nil
}

// reportPath accepts either a run directory or the report file itself.
func reportPath(target string) (string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", target, err)
	}
	if !info.IsDir() {
		return target, nil
	}
	path := audit.ReportPath(target)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("no healing report in %s", target)
	}
	return path, nil
}
