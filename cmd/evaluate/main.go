package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/zatekoja/kpitelemetry/internal/evaluation"
)

var errGuardrails = errors.New("guardrails violated")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "evaluate",
		Short: "Offline retrieval quality evaluation and judgment management",
		Long: `evaluate scores ranked search results against graded relevance judgments.

The run command works on files only. seed-judgments, analyze and report use
the configured PostgreSQL store (and Redis, when enabled) through the same
retrieval quality service the collector process uses.`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newSeedJudgmentsCmd(), newAnalyzeCmd(), newReportCmd())
	return root
}

type runOptions struct {
	goldenPath string
	runPath    string
	asJSON     bool
	guardrails evaluation.GuardrailConfig
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score a run file against a golden query set",
		Long: `Score a run file (query id -> ranked result ids) against the golden
query set and check the results against the configured guardrails.

Exits non-zero when any guardrail is violated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.goldenPath, "golden", "config/golden_queries.json", "golden query set")
	cmd.Flags().StringVar(&opts.runPath, "run", "", "run file mapping query ids to ranked result ids")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the full summary as JSON")
	cmd.Flags().Float64Var(&opts.guardrails.MinMRR, "min-mrr", 0, "minimum mean reciprocal rank")
	cmd.Flags().Float64Var(&opts.guardrails.MinNDCGAt10, "min-ndcg", 0, "minimum mean NDCG@10")
	cmd.Flags().Float64Var(&opts.guardrails.MinRecallAt5, "min-recall", 0, "minimum mean Recall@5")
	cmd.Flags().IntVar(&opts.guardrails.MaxFailedQueries, "max-failed", 0, "maximum queries missing from the run")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func loadGolden(path string) ([]evaluation.GoldenQuery, error) {
	queries, err := evaluation.LoadGoldenQueries(path)
	if err != nil {
		return nil, err
	}
	if err := evaluation.ValidateGoldenQueries(queries); err != nil {
		return nil, fmt.Errorf("invalid golden set %s: %w", path, err)
	}
	return queries, nil
}

func runEvaluation(cmd *cobra.Command, opts *runOptions) error {
	queries, err := loadGolden(opts.goldenPath)
	if err != nil {
		return err
	}
	run, err := evaluation.LoadRun(opts.runPath)
	if err != nil {
		return err
	}

	summary, err := evaluation.NewRunner(evaluation.StaticRun(run)).Run(cmd.Context(), queries)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		printSummary(out, summary)
	}

	violations := evaluation.NewGuardrails(opts.guardrails).Check(summary)
	for _, v := range violations {
		fmt.Fprintf(cmd.ErrOrStderr(), "guardrail: %s\n", v)
	}
	if len(violations) > 0 {
		return fmt.Errorf("%w: %d check(s) failed", errGuardrails, len(violations))
	}
	return nil
}

func printSummary(w io.Writer, s *evaluation.EvalSummary) {
	fmt.Fprintf(w, "queries:   %d evaluated, %d failed, %d with hits\n", s.Evaluated, s.Failed, s.QueriesWithHits)
	fmt.Fprintf(w, "P@5:       %.4f\n", s.MeanPrecisionAt5)
	fmt.Fprintf(w, "Recall@5:  %.4f\n", s.MeanRecallAt5)
	fmt.Fprintf(w, "NDCG@10:   %.4f\n", s.MeanNDCGAt10)
	fmt.Fprintf(w, "MRR:       %.4f\n", s.MRR)
	fmt.Fprintf(w, "MAP:       %.4f\n", s.MAP)

	difficulties := make([]string, 0, len(s.ByDifficulty))
	for d := range s.ByDifficulty {
		difficulties = append(difficulties, string(d))
	}
	sort.Strings(difficulties)
	for _, d := range difficulties {
		ds := s.ByDifficulty[evaluation.Difficulty(d)]
		fmt.Fprintf(w, "  %-7s n=%-4d NDCG@10 %.4f  MRR %.4f\n", d, ds.Count, ds.MeanNDCGAt10, ds.MRR)
	}
}
