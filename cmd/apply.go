// File: cmd/apply.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/internal/autofix"
	"github.com/xkilldash9x/selfheal/internal/capture"
	"github.com/xkilldash9x/selfheal/internal/config"
	"github.com/xkilldash9x/selfheal/internal/observability"
)

type applyOptions struct {
	CandidatesPath string
	Locator        string
	Index          int
}

func newApplyCmd() *cobra.Command {
	var opts applyOptions

	cmd := &cobra.Command{
		Use:   "apply CANDIDATES.json",
		Short: "Write a candidate from a candidates file into the locator definitions",
		Long: `Applies a reviewed candidate to the locator definition it replaces. The
locator defaults to the one recorded in the candidates file. In manual mode the
change is only printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			opts.CandidatesPath = args[0]
			return runApply(ctx, observability.GetLogger(), cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Locator, "locator", "", "Locator definition to update (default: the one in the candidates file)")
	cmd.Flags().IntVar(&opts.Index, "index", 0, "Zero-based rank of the candidate to apply")
	cmd.Flags().String("mode", "", "Override self_healing.mode (auto or manual)")
	return cmd
}

// runApply contains the testable logic of the apply command.
func runApply(ctx context.Context, logger *zap.Logger, cfg *config.Config, opts applyOptions, out io.Writer) error {
	file, err := capture.ReadCandidates(opts.CandidatesPath)
	if err != nil {
		return err
	}
	if opts.Index < 0 || opts.Index >= len(file.Candidates) {
		return fmt.Errorf("candidate index %d out of range; %s has %d candidates", opts.Index, opts.CandidatesPath, len(file.Candidates))
	}
	name := opts.Locator
	if name == "" {
		name = file.LocatorBefore.Name
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	def, err := registry.Lookup(name)
	if err != nil {
		return err
	}

	winner := file.Candidates[opts.Index]
	persister := autofix.NewPersister(cfg.SelfHealing.Mode, cfg.Autofix, logger)
	audit, err := persister.Apply(ctx, def, winner)
	if err != nil {
		return fmt.Errorf("failed to apply candidate to %q: %w", name, err)
	}

	fmt.Fprintf(out, "%s: (%s, %s) -> (%s, %s) [%s]\n", name,
		audit.LocatorBefore.Strategy, audit.LocatorBefore.Value,
		audit.LocatorAfter.Strategy, audit.LocatorAfter.Value,
		audit.Status)
	if audit.File != "" {
		fmt.Fprintf(out, "  file: %s\n", audit.File)
	}
	if audit.Method != "" {
		fmt.Fprintf(out, "  method: %s\n  before: %s\n  after:  %s\n", audit.Method, audit.BeforeHash, audit.AfterHash)
	}
	return nil
}
