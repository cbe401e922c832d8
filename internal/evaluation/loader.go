package evaluation

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// LoadGoldenQueries reads and parses a golden query set from a JSON file.
func LoadGoldenQueries(path string) ([]GoldenQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden queries file: %w", err)
	}

	var queries []GoldenQuery
	if err := json.Unmarshal(data, &queries); err != nil {
		return nil, fmt.Errorf("failed to parse golden queries: %w", err)
	}

	return queries, nil
}

// LoadRun reads a run file mapping golden query ids to ranked result ids.
func LoadRun(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	run := make(map[string][]string)
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse run file: %w", err)
	}
	return run, nil
}

// ValidateGoldenQueries checks ids, query text, scores and difficulty labels.
func ValidateGoldenQueries(queries []GoldenQuery) error {
	seen := make(map[string]struct{}, len(queries))

	for i, q := range queries {
		if q.ID == "" {
			return fmt.Errorf("query at index %d: missing id", i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("query at index %d: duplicate id %q", i, q.ID)
		}
		seen[q.ID] = struct{}{}

		if q.Query == "" {
			return fmt.Errorf("query %q: missing query text", q.ID)
		}
		if !q.Difficulty.IsValid() {
			return fmt.Errorf("query %q: invalid difficulty %q (must be easy/medium/hard)", q.ID, q.Difficulty)
		}

		judged := make(map[string]struct{}, len(q.Judgments))
		for _, j := range q.Judgments {
			if j.ResultID == "" {
				return fmt.Errorf("query %q: judgment without result_id", q.ID)
			}
			if _, dup := judged[j.ResultID]; dup {
				return fmt.Errorf("query %q: duplicate judgment for %q", q.ID, j.ResultID)
			}
			judged[j.ResultID] = struct{}{}
			if j.Score < 0 || j.Score > 4 {
				return fmt.Errorf("query %q: score %d for %q outside 0-4", q.ID, j.Score, j.ResultID)
			}
		}
	}

	return nil
}
