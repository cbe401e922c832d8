package evaluation

import (
	"math"
	"testing"
)

const floatTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// --- PrecisionAtK tests ---

func TestPrecisionAtK_JudgedScenario(t *testing.T) {
	j := Judgments{"r1": 4, "r2": 0}
	retrieved := []string{"r1", "r2"}

	if got := PrecisionAtK(j, retrieved, 1); !almostEqual(got, 1.0) {
		t.Errorf("P@1: expected 1.0, got %f", got)
	}
	if got := PrecisionAtK(j, retrieved, 2); !almostEqual(got, 0.5) {
		t.Errorf("P@2: expected 0.5, got %f", got)
	}
	if got := MRR(j, retrieved); !almostEqual(got, 1.0) {
		t.Errorf("MRR: expected 1.0, got %f", got)
	}
	if got := RecallAtK(j, retrieved, 1); !almostEqual(got, 1.0) {
		t.Errorf("R@1: expected 1.0, got %f", got)
	}
}

func TestPrecisionAtK_DividesByRetrievedWhenShorterThanK(t *testing.T) {
	j := Judgments{"a": 3, "b": 4}
	got := PrecisionAtK(j, []string{"a", "x"}, 10)
	// 1 relevant of min(10, 2) results
	if !almostEqual(got, 0.5) {
		t.Errorf("expected 0.5, got %f", got)
	}
}

func TestPrecisionAtK_ScoreBelowThresholdIsNotRelevant(t *testing.T) {
	j := Judgments{"a": 2, "b": 3}
	got := PrecisionAtK(j, []string{"a", "b"}, 2)
	if !almostEqual(got, 0.5) {
		t.Errorf("expected 0.5, got %f", got)
	}
}

// --- RecallAtK tests ---

func TestRecallAtK_CountsUnretrievedJudgments(t *testing.T) {
	j := Judgments{"a": 4, "b": 4, "c": 3, "d": 4}
	retrieved := []string{"a", "b", "x", "y"}
	got := RecallAtK(j, retrieved, 10)
	// 2 of 4 relevant found
	if !almostEqual(got, 0.5) {
		t.Errorf("expected 0.5, got %f", got)
	}
}

func TestRecallAtK_KSmallerThanRetrieved(t *testing.T) {
	j := Judgments{"a": 4, "b": 4, "c": 4}
	retrieved := []string{"a", "b", "x", "y", "c"}
	got := RecallAtK(j, retrieved, 3)
	if !almostEqual(got, 2.0/3.0) {
		t.Errorf("expected %f, got %f", 2.0/3.0, got)
	}
}

func TestRecallAtK_NoRelevantJudgments(t *testing.T) {
	j := Judgments{"a": 1}
	got := RecallAtK(j, []string{"a"}, 5)
	if !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0, got %f", got)
	}
}

// --- MRR tests ---

func TestMRR_FirstRelevantAtRank3(t *testing.T) {
	j := Judgments{"c": 3}
	got := MRR(j, []string{"a", "b", "c"})
	if !almostEqual(got, 1.0/3.0) {
		t.Errorf("expected %f, got %f", 1.0/3.0, got)
	}
}

func TestMRR_NoRelevant(t *testing.T) {
	got := MRR(Judgments{"a": 2}, []string{"a", "b"})
	if !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0, got %f", got)
	}
}

// --- AveragePrecision tests ---

func TestAveragePrecision_DividesByAllRelevant(t *testing.T) {
	j := Judgments{"a": 4, "c": 4, "z": 4}
	retrieved := []string{"a", "b", "c"}
	// precision at rank 1 = 1, at rank 3 = 2/3; 3 relevant judged in total
	want := (1.0 + 2.0/3.0) / 3.0
	if got := AveragePrecision(j, retrieved); !almostEqual(got, want) {
		t.Errorf("expected %f, got %f", want, got)
	}
}

// --- NDCGAtK tests ---

func TestNDCGAtK_IdealOrderingIsOne(t *testing.T) {
	j := Judgments{"a": 4, "b": 3, "c": 1}
	got := NDCGAtK(j, []string{"a", "b", "c"}, 3)
	if !almostEqual(got, 1.0) {
		t.Errorf("expected 1.0, got %f", got)
	}
}

func TestNDCGAtK_ReversedOrdering(t *testing.T) {
	j := Judgments{"a": 4, "b": 0, "c": 2}
	retrieved := []string{"b", "c", "a"}

	dcg := 0.0 + 2.0/math.Log2(2) + 4.0/math.Log2(3)
	idcg := 4.0 + 2.0/math.Log2(2) + 0.0
	want := dcg / idcg

	if got := NDCGAtK(j, retrieved, 3); !almostEqual(got, want) {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestNDCGAtK_UnjudgedResultsHaveZeroGain(t *testing.T) {
	j := Judgments{"a": 4}
	got := NDCGAtK(j, []string{"x", "a"}, 1)
	if !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0, got %f", got)
	}
}

func TestNDCGAtK_NoJudgments(t *testing.T) {
	got := NDCGAtK(Judgments{}, []string{"a"}, 5)
	if !almostEqual(got, 0.0) {
		t.Errorf("expected 0.0, got %f", got)
	}
}

// --- Score tests ---

func TestScore_EmptyResultsAreAllZero(t *testing.T) {
	s := Score(Judgments{"a": 4}, nil)
	for _, k := range KValues {
		if s.PrecisionAtK[k] != 0 || s.RecallAtK[k] != 0 || s.NDCGAtK[k] != 0 {
			t.Errorf("k=%d: expected zero metrics, got P=%f R=%f N=%f", k, s.PrecisionAtK[k], s.RecallAtK[k], s.NDCGAtK[k])
		}
	}
	if s.MRR != 0 || s.AveragePrecision != 0 {
		t.Errorf("expected zero MRR/AP, got %f/%f", s.MRR, s.AveragePrecision)
	}
}

func TestScore_DuplicateResultsCountOnce(t *testing.T) {
	s := Score(Judgments{"a": 4}, []string{"a", "a", "a"})
	if !almostEqual(s.PrecisionAtK[3], 1.0) {
		t.Errorf("P@3: expected 1.0, got %f", s.PrecisionAtK[3])
	}
	if !almostEqual(s.RecallAtK[3], 1.0) {
		t.Errorf("R@3: expected 1.0, got %f", s.RecallAtK[3])
	}
}

func TestSyntheticJudgments(t *testing.T) {
	j := SyntheticJudgments([]string{"a", "b"}, []string{"b", "zzz"})
	if j["a"] != 0 || j["b"] != 4 {
		t.Errorf("unexpected judgments %v", j)
	}
	if _, ok := j["zzz"]; ok {
		t.Error("ground truth outside the result list must not be judged")
	}
}
