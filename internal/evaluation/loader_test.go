package evaluation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadGoldenQueries_ValidFile(t *testing.T) {
	content := `[
		{"id": "q1", "query": "green tea", "judgments": [{"result_id": "sku-1", "score": 4}, {"result_id": "sku-9", "score": 1}], "difficulty": "easy"},
		{"id": "q2", "query": "oolong", "judgments": [], "difficulty": "hard"}
	]`
	path := writeTempFile(t, content)

	queries, err := LoadGoldenQueries(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(queries))
	}
	if queries[0].ID != "q1" {
		t.Errorf("expected id q1, got %s", queries[0].ID)
	}
	j := queries[0].JudgmentMap()
	if j["sku-1"] != 4 || j["sku-9"] != 1 {
		t.Errorf("unexpected judgments %v", j)
	}
	if queries[1].Difficulty != DifficultyHard {
		t.Errorf("expected difficulty hard, got %s", queries[1].Difficulty)
	}
}

func TestLoadGoldenQueries_InvalidFile(t *testing.T) {
	_, err := LoadGoldenQueries("/nonexistent/path.json")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadGoldenQueries_InvalidJSON(t *testing.T) {
	path := writeTempFile(t, `not valid json`)
	_, err := LoadGoldenQueries(path)
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadRun(t *testing.T) {
	path := writeTempFile(t, `{"q1": ["sku-1", "sku-2"], "q2": []}`)
	run, err := LoadRun(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(run["q1"]) != 2 || run["q1"][0] != "sku-1" {
		t.Errorf("unexpected run %v", run)
	}
}

func TestValidateGoldenQueries(t *testing.T) {
	tests := []struct {
		name    string
		queries []GoldenQuery
		wantErr bool
	}{
		{"valid", []GoldenQuery{{ID: "q1", Query: "tea", Difficulty: DifficultyEasy, Judgments: []GoldenJudgment{{ResultID: "a", Score: 4}}}}, false},
		{"missing id", []GoldenQuery{{Query: "tea", Difficulty: DifficultyEasy}}, true},
		{"missing query", []GoldenQuery{{ID: "q1", Difficulty: DifficultyEasy}}, true},
		{"bad difficulty", []GoldenQuery{{ID: "q1", Query: "tea", Difficulty: "impossible"}}, true},
		{"duplicate ids", []GoldenQuery{{ID: "q1", Query: "a", Difficulty: DifficultyEasy}, {ID: "q1", Query: "b", Difficulty: DifficultyEasy}}, true},
		{"score out of range", []GoldenQuery{{ID: "q1", Query: "tea", Difficulty: DifficultyEasy, Judgments: []GoldenJudgment{{ResultID: "a", Score: 7}}}}, true},
		{"duplicate judgment", []GoldenQuery{{ID: "q1", Query: "tea", Difficulty: DifficultyEasy, Judgments: []GoldenJudgment{{ResultID: "a", Score: 1}, {ResultID: "a", Score: 2}}}}, true},
	}
	for _, tt := range tests {
		err := ValidateGoldenQueries(tt.queries)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}
