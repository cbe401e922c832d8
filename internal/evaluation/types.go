package evaluation

import "time"

// Difficulty labels how hard a golden query is expected to be.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid checks if the difficulty is one of the defined constants.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// GoldenJudgment is one graded result for a golden query.
type GoldenJudgment struct {
	ResultID string `json:"result_id"`
	Score    int    `json:"score"`
}

// GoldenQuery represents a labeled query with graded relevance judgments.
type GoldenQuery struct {
	ID         string           `json:"id"`
	Query      string           `json:"query"`
	Judgments  []GoldenJudgment `json:"judgments"`
	Difficulty Difficulty       `json:"difficulty"`
}

// JudgmentMap converts the golden judgments into metric input.
func (q GoldenQuery) JudgmentMap() Judgments {
	j := make(Judgments, len(q.Judgments))
	for _, gj := range q.Judgments {
		j[gj.ResultID] = gj.Score
	}
	return j
}

// EvalResult holds the evaluation outcome for a single query.
type EvalResult struct {
	QueryID     string
	Query       string
	Difficulty  Difficulty
	Scores      Scores
	ResultCount int
	Latency     time.Duration
}

// EvalSummary holds mean metrics across all golden queries.
type EvalSummary struct {
	TotalQueries     int
	Evaluated        int
	Failed           int
	MeanPrecisionAt5 float64
	MeanRecallAt5    float64
	MeanNDCGAt10     float64
	MRR              float64
	MAP              float64
	AvgLatency       time.Duration
	QueriesWithHits  int // queries with at least one relevant result retrieved
	ByDifficulty     map[Difficulty]*DifficultySummary
	Results          []EvalResult
}

// DifficultySummary holds metrics grouped by difficulty.
type DifficultySummary struct {
	Count        int
	MeanNDCGAt10 float64
	MRR          float64
}
