package entities

import (
	"strings"
	"time"
)

// Relevance scale bounds for judgments.
const (
	MinRelevanceScore = 0
	MaxRelevanceScore = 4
)

// SearchResult is one ranked item returned by a search.
type SearchResult struct {
	ID       string  `json:"id"`
	SKU      string  `json:"sku,omitempty"`
	Name     string  `json:"name,omitempty"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Rank     int     `json:"rank,omitempty"`
}

// RelevanceJudgment rates how relevant a result is to a query.
type RelevanceJudgment struct {
	Query    string    `json:"query" db:"query"`
	ResultID string    `json:"result_id" db:"result_id"`
	Score    int       `json:"relevance_score" db:"relevance_score"`
	JudgedBy string    `json:"judged_by" db:"judged_by"`
	JudgedAt time.Time `json:"judged_at" db:"judged_at"`
}

// NormalizeQuery is the key under which judgments for a query are stored.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// ClampRelevance forces a score onto the 0-4 scale.
func ClampRelevance(score int) int {
	if score < MinRelevanceScore {
		return MinRelevanceScore
	}
	if score > MaxRelevanceScore {
		return MaxRelevanceScore
	}
	return score
}

// RetrievalQualityMetrics is the score snapshot for one evaluated search.
type RetrievalQualityMetrics struct {
	ID               string          `json:"id"`
	Query            string          `json:"query"`
	TotalResults     int             `json:"total_results"`
	PrecisionAtK     map[int]float64 `json:"precision_at_k"`
	RecallAtK        map[int]float64 `json:"recall_at_k"`
	NDCGAtK          map[int]float64 `json:"ndcg_at_k"`
	MRR              float64         `json:"mean_reciprocal_rank"`
	AveragePrecision float64         `json:"average_precision"`
	ResponseTimeMs   float64         `json:"response_time_ms"`
	SessionID        string          `json:"session_id"`
	Timestamp        time.Time       `json:"timestamp"`
}

// QueryPerformance aggregates stored snapshots for one query text.
type QueryPerformance struct {
	Query             string    `json:"query"`
	Frequency         int       `json:"frequency"`
	AvgPrecisionAt5   float64   `json:"avg_precision_at_5"`
	AvgRecallAt5      float64   `json:"avg_recall_at_5"`
	AvgMRR            float64   `json:"avg_mrr"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
	SuccessRate       float64   `json:"success_rate"`
	LastAnalyzed      time.Time `json:"last_analyzed"`
}
