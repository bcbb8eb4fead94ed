package service

import (
	"math"
	"mooc_exam_backend/internal/model"
	"sort"
)

const passEpsilon = 1e-9

// GradedQuestion is the per-question outcome written back to the answer ledger.
type GradedQuestion struct {
	QuestionID    uint    `json:"questionId"`
	Correct       bool    `json:"correct"`
	PointsEarned  float64 `json:"pointsEarned"`
	MaxPoints     float64 `json:"maxPoints"`
	SelectedIDs   []uint  `json:"selectedOptionIds"`
	CorrectIDs    []uint  `json:"correctOptionIds"`
	Answered      bool    `json:"answered"`
	ExcludedEssay bool    `json:"-"`
}

type GradeResult struct {
	Score        float64          `json:"score"`
	MaxScore     float64          `json:"maxScore"`
	Percentage   float64          `json:"percentage"`
	CorrectCount int              `json:"correctCount"`
	Passed       bool             `json:"passed"`
	Questions    []GradedQuestion `json:"questions"`
}

// Grade scores the frozen questions against the learner's selections.
// A question earns its full points only when the selected set equals the correct set;
// essays are skipped entirely. selections is keyed by question id.
func Grade(questions []model.Question, selections map[uint][]uint, passThreshold float64) GradeResult {
	var res GradeResult
	for _, q := range questions {
		selected, answered := selections[q.ID]
		g := GradedQuestion{
			QuestionID:  q.ID,
			MaxPoints:   q.Points,
			SelectedIDs: uniqueSorted(selected),
			Answered:    answered,
		}
		if !q.Type.AutoGraded() {
			g.ExcludedEssay = true
			g.MaxPoints = 0
			res.Questions = append(res.Questions, g)
			continue
		}

		for _, o := range q.Options {
			if o.IsCorrect {
				g.CorrectIDs = append(g.CorrectIDs, o.ID)
			}
		}
		g.CorrectIDs = uniqueSorted(g.CorrectIDs)

		if sameSet(g.SelectedIDs, g.CorrectIDs) {
			g.Correct = true
			g.PointsEarned = q.Points
			res.CorrectCount++
		}
		res.Score += g.PointsEarned
		res.MaxScore += q.Points
		res.Questions = append(res.Questions, g)
	}

	if res.MaxScore > 0 {
		raw := res.Score / res.MaxScore * 100
		res.Percentage = roundTo2(raw)
		// 用未取整的比例判定是否通过，仅容忍浮点误差
		res.Passed = raw+passEpsilon >= passThreshold
	}
	return res
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// uniqueSorted returns a sorted copy without duplicates; nil and empty both yield an empty slice.
func uniqueSorted(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sameSet(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
