package evaluation

import (
	"context"
	"fmt"
	"time"
)

// ResultProvider returns the ranked result ids a system produced for a query.
type ResultProvider interface {
	Results(ctx context.Context, q GoldenQuery) ([]string, error)
}

// StaticRun serves results from a pre-computed run file.
type StaticRun map[string][]string

// Results implements ResultProvider.
func (r StaticRun) Results(_ context.Context, q GoldenQuery) ([]string, error) {
	ids, ok := r[q.ID]
	if !ok {
		return nil, fmt.Errorf("no run entry for query %q", q.ID)
	}
	return ids, nil
}

// Runner runs evaluation across a set of golden queries.
type Runner struct {
	provider ResultProvider
}

func NewRunner(p ResultProvider) *Runner {
	return &Runner{provider: p}
}

// Run scores every golden query. Provider failures are counted and skipped.
func (r *Runner) Run(ctx context.Context, queries []GoldenQuery) (*EvalSummary, error) {
	summary := &EvalSummary{
		TotalQueries: len(queries),
		ByDifficulty: make(map[Difficulty]*DifficultySummary),
	}

	for _, gq := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		ids, err := r.provider.Results(ctx, gq)
		latency := time.Since(start)
		if err != nil {
			summary.Failed++
			continue
		}

		result := EvalResult{
			QueryID:     gq.ID,
			Query:       gq.Query,
			Difficulty:  gq.Difficulty,
			Scores:      Score(gq.JudgmentMap(), ids),
			ResultCount: len(ids),
			Latency:     latency,
		}
		r.updateSummary(summary, result)
	}

	r.finalizeSummary(summary)
	return summary, nil
}

func (r *Runner) updateSummary(s *EvalSummary, res EvalResult) {
	s.Evaluated++
	s.Results = append(s.Results, res)
	s.MeanPrecisionAt5 += res.Scores.PrecisionAtK[5]
	s.MeanRecallAt5 += res.Scores.RecallAtK[5]
	s.MeanNDCGAt10 += res.Scores.NDCGAtK[10]
	s.MRR += res.Scores.MRR
	s.MAP += res.Scores.AveragePrecision
	s.AvgLatency += res.Latency
	if res.Scores.MRR > 0 {
		s.QueriesWithHits++
	}

	ds, ok := s.ByDifficulty[res.Difficulty]
	if !ok {
		ds = &DifficultySummary{}
		s.ByDifficulty[res.Difficulty] = ds
	}
	ds.Count++
	ds.MeanNDCGAt10 += res.Scores.NDCGAtK[10]
	ds.MRR += res.Scores.MRR
}

func (r *Runner) finalizeSummary(s *EvalSummary) {
	if s.Evaluated > 0 {
		n := float64(s.Evaluated)
		s.MeanPrecisionAt5 /= n
		s.MeanRecallAt5 /= n
		s.MeanNDCGAt10 /= n
		s.MRR /= n
		s.MAP /= n
		s.AvgLatency /= time.Duration(s.Evaluated)
	}

	for _, ds := range s.ByDifficulty {
		if ds.Count > 0 {
			n := float64(ds.Count)
			ds.MeanNDCGAt10 /= n
			ds.MRR /= n
		}
	}
}
