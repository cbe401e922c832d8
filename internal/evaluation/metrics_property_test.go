package evaluation

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func drawCase(rt *rapid.T) (Judgments, []string) {
	pool := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	judged := rapid.SliceOfDistinct(rapid.SampledFrom(pool), rapid.ID[string]).Draw(rt, "judged")
	j := make(Judgments, len(judged))
	for i, id := range judged {
		j[id] = rapid.IntRange(0, 4).Draw(rt, fmt.Sprintf("score_%d", i))
	}

	retrieved := rapid.SliceOfN(rapid.SampledFrom(pool), 0, 25).Draw(rt, "retrieved")
	return j, retrieved
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1+floatTolerance
}

func TestProperty_MetricsStayInUnitRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		j, retrieved := drawCase(rt)
		s := Score(j, retrieved)

		for _, k := range KValues {
			if !inUnitRange(s.PrecisionAtK[k]) {
				rt.Fatalf("P@%d=%f out of range", k, s.PrecisionAtK[k])
			}
			if !inUnitRange(s.RecallAtK[k]) {
				rt.Fatalf("R@%d=%f out of range", k, s.RecallAtK[k])
			}
			if !inUnitRange(s.NDCGAtK[k]) {
				rt.Fatalf("NDCG@%d=%f out of range", k, s.NDCGAtK[k])
			}
		}
		if !inUnitRange(s.MRR) {
			rt.Fatalf("MRR=%f out of range", s.MRR)
		}
		if !inUnitRange(s.AveragePrecision) {
			rt.Fatalf("AP=%f out of range", s.AveragePrecision)
		}
	})
}

func TestProperty_RecallIsMonotonicInK(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		j, retrieved := drawCase(rt)
		s := Score(j, retrieved)

		prev := 0.0
		for _, k := range KValues {
			if s.RecallAtK[k]+floatTolerance < prev {
				rt.Fatalf("recall decreased at k=%d: %f < %f", k, s.RecallAtK[k], prev)
			}
			prev = s.RecallAtK[k]
		}
	})
}

func TestProperty_MRRZeroIffNoRelevantRetrieved(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		j, retrieved := drawCase(rt)
		anyRelevant := false
		for _, id := range retrieved {
			if j.IsRelevant(id) {
				anyRelevant = true
				break
			}
		}
		got := MRR(j, Dedupe(retrieved))
		if anyRelevant == (got == 0) {
			rt.Fatalf("MRR=%f with relevant retrieved=%v", got, anyRelevant)
		}
	})
}
