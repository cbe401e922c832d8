package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zatekoja/kpitelemetry/internal/adapters/cache"
	"github.com/zatekoja/kpitelemetry/internal/adapters/database"
	"github.com/zatekoja/kpitelemetry/internal/application/services"
	"github.com/zatekoja/kpitelemetry/internal/domain/entities"
	"github.com/zatekoja/kpitelemetry/internal/domain/repositories"
	"github.com/zatekoja/kpitelemetry/internal/evaluation"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/clients/redis"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/observability"
	"github.com/zatekoja/kpitelemetry/pkg/config"
)

// qualityStack is the store-backed quality service plus the collector it
// reports through.
type qualityStack struct {
	quality   *services.RetrievalQualityService
	collector *services.Collector
	logger    zerolog.Logger
	closers   []func() error
}

func (s *qualityStack) Close(ctx context.Context) {
	if s.collector != nil {
		if err := s.collector.ForceFlush(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Failed to flush collected events")
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openQualityStack(ctx context.Context) (*qualityStack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	observability.InitLogger(cfg.App.Name+"-evaluate", cfg.App.Environment)
	logger := observability.ComponentLogger("evaluate")
	metrics := observability.MustInitMetrics()

	pgClient, err := postgres.NewClient(ctx, &cfg.Database, observability.ComponentLogger("postgres"))
	if err != nil {
		return nil, err
	}
	stack := &qualityStack{logger: logger, closers: []func() error{pgClient.Close}}

	if err := database.EnsureSchema(ctx, pgClient); err != nil {
		stack.Close(ctx)
		return nil, err
	}

	var judgments repositories.JudgmentRepository = database.NewRelevanceJudgmentAdapter(pgClient)
	if cfg.Redis.Enabled && cfg.Quality.JudgmentCacheTTL > 0 {
		// Shares cache keys with running collectors, so seeding invalidates them.
		redisClient, err := redis.NewClient(ctx, &cfg.Redis, observability.ComponentLogger("redis"))
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, judgments are read uncached")
		} else {
			stack.closers = append(stack.closers, redisClient.Close)
			judgments = database.NewCachedJudgmentAdapter(judgments, cache.NewRedisAdapter(redisClient),
				cfg.Quality.JudgmentCacheTTL, observability.ComponentLogger("judgment-cache"))
		}
	}

	sink := database.NewBreakerSink(database.NewEventSinkAdapter(pgClient), cfg.Sink, observability.ComponentLogger("sink"), metrics)
	stack.collector = services.NewCollector(sink, nil, cfg.Collector, observability.ComponentLogger("collector"), metrics)
	stack.quality = services.NewRetrievalQualityService(
		judgments,
		database.NewQualityMetricsAdapter(pgClient),
		stack.collector,
		observability.ComponentLogger("retrieval-quality"),
		metrics,
	)
	return stack, nil
}

func newSeedJudgmentsCmd() *cobra.Command {
	var (
		goldenPath string
		judgedBy   string
	)
	cmd := &cobra.Command{
		Use:   "seed-judgments",
		Short: "Store the golden set's graded judgments as relevance judgments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := loadGolden(goldenPath)
			if err != nil {
				return err
			}
			stack, err := openQualityStack(cmd.Context())
			if err != nil {
				return err
			}
			defer stack.Close(context.WithoutCancel(cmd.Context()))

			stored := 0
			for _, q := range queries {
				for _, j := range q.Judgments {
					if err := stack.quality.AddRelevanceJudgment(cmd.Context(), q.Query, j.ResultID, j.Score, judgedBy); err != nil {
						return fmt.Errorf("query %s result %s: %w", q.ID, j.ResultID, err)
					}
					stored++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d judgments for %d queries\n", stored, len(queries))
			return nil
		},
	}
	cmd.Flags().StringVar(&goldenPath, "golden", "config/golden_queries.json", "golden query set")
	cmd.Flags().StringVar(&judgedBy, "judged-by", "golden-set", "judge recorded with each judgment")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var (
		goldenPath string
		runPath    string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score a run against stored judgments and record quality snapshots",
		Long: `Score every golden query's results from the run file against the stored
relevance judgments, persist one quality snapshot per query and report each
analysis as a search event.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := loadGolden(goldenPath)
			if err != nil {
				return err
			}
			run, err := evaluation.LoadRun(runPath)
			if err != nil {
				return err
			}
			stack, err := openQualityStack(cmd.Context())
			if err != nil {
				return err
			}
			defer stack.Close(context.WithoutCancel(cmd.Context()))

			sessionID := stack.collector.GenerateSessionID()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %-8s %-8s %-8s %s\n", "QUERY", "P@5", "NDCG@10", "MRR", "RESULTS")
			for _, q := range queries {
				ids, ok := run[q.ID]
				if !ok {
					stack.logger.Warn().Str("query_id", q.ID).Msg("No run entry for query")
					continue
				}
				results := make([]entities.SearchResult, len(ids))
				for i, id := range ids {
					results[i] = entities.SearchResult{ID: id, Rank: i + 1}
				}
				m := stack.quality.AnalyzeSearchQuality(cmd.Context(), q.Query, results, sessionID, 0)
				fmt.Fprintf(out, "%-12s %-8.4f %-8.4f %-8.4f %d\n", q.ID, m.PrecisionAtK[5], m.NDCGAtK[10], m.MRR, m.TotalResults)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&goldenPath, "golden", "config/golden_queries.json", "golden query set")
	cmd.Flags().StringVar(&runPath, "run", "", "run file mapping query ids to ranked result ids")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newReportCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize recorded quality snapshots per query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := openQualityStack(cmd.Context())
			if err != nil {
				return err
			}
			defer stack.Close(context.WithoutCancel(cmd.Context()))

			perf, err := stack.quality.QueryPerformanceAnalysis(cmd.Context(), hours)
			if err != nil {
				return err
			}
			printPerformance(cmd, perf)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "look-back window in hours")
	return cmd
}

func printPerformance(cmd *cobra.Command, perf []entities.QueryPerformance) {
	out := cmd.OutOrStdout()
	if len(perf) == 0 {
		fmt.Fprintln(out, "No quality snapshots in range.")
		return
	}
	fmt.Fprintf(out, "%-30s %5s %8s %8s %8s %8s\n", "QUERY", "N", "P@5", "R@5", "MRR", "SUCCESS")
	for _, p := range perf {
		fmt.Fprintf(out, "%-30.30s %5d %8.4f %8.4f %8.4f %7.0f%%\n",
			p.Query, p.Frequency, p.AvgPrecisionAt5, p.AvgRecallAt5, p.AvgMRR, p.SuccessRate*100)
	}
}
