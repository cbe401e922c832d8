package evaluation

import "fmt"

// GuardrailConfig sets the minimum acceptable mean scores for a run.
// Zero disables a check.
type GuardrailConfig struct {
	MinMRR           float64
	MinNDCGAt10      float64
	MinRecallAt5     float64
	MaxFailedQueries int
}

type Guardrails struct {
	config GuardrailConfig
}

func NewGuardrails(config GuardrailConfig) *Guardrails {
	if config.MaxFailedQueries < 0 {
		config.MaxFailedQueries = 0
	}
	return &Guardrails{config: config}
}

// Check returns one message per violated threshold.
func (g *Guardrails) Check(s *EvalSummary) []string {
	var violations []string
	if g.config.MinMRR > 0 && s.MRR < g.config.MinMRR {
		violations = append(violations, fmt.Sprintf("MRR %.4f below %.4f", s.MRR, g.config.MinMRR))
	}
	if g.config.MinNDCGAt10 > 0 && s.MeanNDCGAt10 < g.config.MinNDCGAt10 {
		violations = append(violations, fmt.Sprintf("NDCG@10 %.4f below %.4f", s.MeanNDCGAt10, g.config.MinNDCGAt10))
	}
	if g.config.MinRecallAt5 > 0 && s.MeanRecallAt5 < g.config.MinRecallAt5 {
		violations = append(violations, fmt.Sprintf("Recall@5 %.4f below %.4f", s.MeanRecallAt5, g.config.MinRecallAt5))
	}
	if s.Failed > g.config.MaxFailedQueries {
		violations = append(violations, fmt.Sprintf("%d queries failed (max %d)", s.Failed, g.config.MaxFailedQueries))
	}
	return violations
}
