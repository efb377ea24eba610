// File: cmd/analyze.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/selfheal/api/schemas"
	"github.com/xkilldash9x/selfheal/internal/capture"
	"github.com/xkilldash9x/selfheal/internal/config"
	"github.com/xkilldash9x/selfheal/internal/observability"
	"github.com/xkilldash9x/selfheal/internal/suggest"
)

const defaultAnalyzeConcurrency = 4

// analysis is the outcome for one context file.
type analysis struct {
	ContextPath    string
	CandidatesPath string
	File           schemas.CandidatesFile
	Err            error
}

func newAnalyzeCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "analyze CONTEXT.json...",
		Short: "Rebuild candidates files from captured failure contexts",
		Long: `Runs the suggestion source over failure-context files captured earlier and writes
a candidates file next to each one. No browser is needed, so files are processed in
parallel.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			src, cleanup, err := newSource(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := runAnalyze(ctx, logger, cfg.SelfHealing, src, args, concurrency)
			printAnalyses(cmd.OutOrStdout(), results)
			return err
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", defaultAnalyzeConcurrency, "Number of context files analyzed in parallel")
	cmd.Flags().String("analyzer", "", "Override self_healing.analyzer (heuristic or workflow)")
	return cmd
}

// runAnalyze processes every context file, at most concurrency at a time.
// Results keep the order of paths. A failed file does not stop the others;
// the joined error lists every failure.
func runAnalyze(ctx context.Context, logger *zap.Logger, cfg config.SelfHealingConfig, src suggest.Source, paths []string, concurrency int) ([]analysis, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]analysis, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			results[i] = analyzeOne(gctx, logger, cfg, src, path)
			// Only cancellation aborts the group.
			if errors.Is(results[i].Err, context.Canceled) {
				return results[i].Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.ContextPath, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func analyzeOne(ctx context.Context, logger *zap.Logger, cfg config.SelfHealingConfig, src suggest.Source, path string) analysis {
	res := analysis{ContextPath: path}
	fc, err := capture.ReadContext(path)
	if err != nil {
		res.Err = err
		return res
	}

	var file schemas.CandidatesFile
	dom, err := capture.ReadDOM(fc)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("No DOM snapshot for context", zap.String("context", path))
		file = capture.NewCandidatesFile(fc, path, capture.SourceNoDOM, cfg.ConfidenceThreshold, true, false, nil)
	case err != nil:
		res.Err = fmt.Errorf("reading DOM snapshot: %w", err)
		return res
	default:
		sug, err := src.Suggest(ctx, fc, dom)
		if err != nil {
			res.Err = err
			return res
		}
		file = capture.NewCandidatesFile(fc, path, sug.Source, cfg.ConfidenceThreshold, sug.HumanRequired, sug.FallbackUsed, sug.Candidates)
	}

	res.CandidatesPath = capture.CandidatesPath(path)
	if err := capture.WriteCandidates(res.CandidatesPath, file); err != nil {
		res.Err = err
		return res
	}
	res.File = file
	logger.Info("Wrote candidates",
		zap.String("context", path),
		zap.String("candidates", res.CandidatesPath),
		zap.Int("count", len(file.Candidates)))
	return res
}

func printAnalyses(out io.Writer, results []analysis) {
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(out, "%s: error: %v\n", r.ContextPath, r.Err)
			continue
		}
		top := "none"
		if len(r.File.Candidates) > 0 {
			c := r.File.Candidates[0]
			top = fmt.Sprintf("(%s, %s) %.3f", c.Strategy, c.Selector, c.Confidence)
		}
		review := ""
		if r.File.HumanRequired {
			review = " [human review]"
		}
		fmt.Fprintf(out, "%s: %d candidates, top %s%s -> %s\n", r.ContextPath, len(r.File.Candidates), top, review, r.CandidatesPath)
	}
}
