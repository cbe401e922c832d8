package evaluation

import (
	"math"
	"sort"
)

// RelevanceThreshold is the minimum judged score counted as relevant.
const RelevanceThreshold = 3

// KValues are the cut-offs reported for precision, recall and NDCG.
var KValues = []int{1, 3, 5, 10, 20}

// Judgments maps a result id to its 0-4 relevance score for one query.
type Judgments map[string]int

// IsRelevant reports whether id is judged at or above RelevanceThreshold.
func (j Judgments) IsRelevant(id string) bool {
	score, ok := j[id]
	return ok && score >= RelevanceThreshold
}

// RelevantCount is the number of judged-relevant items for the query,
// whether or not they were retrieved.
func (j Judgments) RelevantCount() int {
	n := 0
	for _, score := range j {
		if score >= RelevanceThreshold {
			n++
		}
	}
	return n
}

// SyntheticJudgments scores each retrieved id 4 when it is in groundTruth and
// 0 otherwise. Ids outside the result list are not judged.
func SyntheticJudgments(retrieved, groundTruth []string) Judgments {
	truth := make(map[string]struct{}, len(groundTruth))
	for _, id := range groundTruth {
		truth[id] = struct{}{}
	}
	j := make(Judgments, len(retrieved))
	for _, id := range retrieved {
		if _, ok := truth[id]; ok {
			j[id] = 4
		} else {
			j[id] = 0
		}
	}
	return j
}

// Dedupe drops repeated ids, keeping the first occurrence.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func topK(retrieved []string, k int) []string {
	if k < 0 {
		k = 0
	}
	if k < len(retrieved) {
		return retrieved[:k]
	}
	return retrieved
}

// PrecisionAtK is the relevant share of the top-K, divided by min(K, len(retrieved)).
func PrecisionAtK(j Judgments, retrieved []string, k int) float64 {
	top := topK(retrieved, k)
	if len(top) == 0 {
		return 0.0
	}
	hits := 0
	for _, id := range top {
		if j.IsRelevant(id) {
			hits++
		}
	}
	return float64(hits) / float64(len(top))
}

// RecallAtK is the share of all judged-relevant items found in the top-K.
// Returns 0.0 when nothing is judged relevant.
func RecallAtK(j Judgments, retrieved []string, k int) float64 {
	total := j.RelevantCount()
	if total == 0 {
		return 0.0
	}
	hits := 0
	for _, id := range topK(retrieved, k) {
		if j.IsRelevant(id) {
			hits++
		}
	}
	return float64(hits) / float64(total)
}

// MRR is the reciprocal rank of the first relevant result, or 0.
func MRR(j Judgments, retrieved []string) float64 {
	for i, id := range retrieved {
		if j.IsRelevant(id) {
			return 1.0 / float64(i+1)
		}
	}
	return 0.0
}

// AveragePrecision averages precision at each relevant rank over the total
// number of judged-relevant items.
func AveragePrecision(j Judgments, retrieved []string) float64 {
	total := j.RelevantCount()
	if total == 0 {
		return 0.0
	}
	hits := 0
	sum := 0.0
	for i, id := range retrieved {
		if j.IsRelevant(id) {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	return sum / float64(total)
}

// dcg uses gain rel at rank 1 and rel/log2(rank) afterwards.
func dcg(gains []int) float64 {
	sum := 0.0
	for i, rel := range gains {
		rank := i + 1
		if rank == 1 {
			sum += float64(rel)
			continue
		}
		sum += float64(rel) / math.Log2(float64(rank))
	}
	return sum
}

// NDCGAtK normalizes the DCG of the top-K results by the DCG of the best
// possible ordering of the query's judgments. Unjudged results have gain 0.
func NDCGAtK(j Judgments, retrieved []string, k int) float64 {
	top := topK(retrieved, k)
	gains := make([]int, len(top))
	for i, id := range top {
		gains[i] = j[id]
	}

	ideal := make([]int, 0, len(j))
	for _, score := range j {
		ideal = append(ideal, score)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))
	ideal = ideal[:min(max(k, 0), len(ideal))]

	idcg := dcg(ideal)
	if idcg == 0 {
		return 0.0
	}
	return dcg(gains) / idcg
}

// Scores holds every metric for one ranked list.
type Scores struct {
	PrecisionAtK     map[int]float64
	RecallAtK        map[int]float64
	NDCGAtK          map[int]float64
	MRR              float64
	AveragePrecision float64
}

// Score de-duplicates retrieved and computes all metrics at KValues.
func Score(j Judgments, retrieved []string) Scores {
	ranked := Dedupe(retrieved)
	s := Scores{
		PrecisionAtK:     make(map[int]float64, len(KValues)),
		RecallAtK:        make(map[int]float64, len(KValues)),
		NDCGAtK:          make(map[int]float64, len(KValues)),
		MRR:              MRR(j, ranked),
		AveragePrecision: AveragePrecision(j, ranked),
	}
	for _, k := range KValues {
		s.PrecisionAtK[k] = PrecisionAtK(j, ranked, k)
		s.RecallAtK[k] = RecallAtK(j, ranked, k)
		s.NDCGAtK[k] = NDCGAtK(j, ranked, k)
	}
	return s
}
