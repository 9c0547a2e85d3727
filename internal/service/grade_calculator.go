package service

import (
	"math"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// RoundGrade rounds half away from zero to two decimals.
func RoundGrade(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputePeriodGrade returns the weighted period grade for one enrollment.
//
// Each detail contributes (score/max_score) * detail_weight * (item_weight/100).
// A detail without a score counts as zero. Details whose max_score is not positive
// cannot be normalised and are left out. The result is not clamped, so weights that do
// not sum to 100 can push it outside [0, 100].
func ComputePeriodGrade(period models.GradingPeriod, scores map[string]float64) float64 {
	total := 0.0
	for _, item := range period.Items {
		for _, detail := range item.Details {
			if detail.MaxScore <= 0 {
				continue
			}
			score := scores[detail.ID]
			total += (score / detail.MaxScore) * detail.Weight * (item.Weight / 100)
		}
	}
	return RoundGrade(total)
}

// ComputeFinalGrade returns Σ grade_p * weight_p/100 across periods; absent grades count as zero.
func ComputeFinalGrade(periods []models.GradingPeriod, grades map[string]float64) float64 {
	total := 0.0
	for _, period := range periods {
		total += grades[period.ID] * (period.Weight / 100)
	}
	return RoundGrade(total)
}

// MeetsPassingGrade reports whether grade reaches passing.
func MeetsPassingGrade(grade, passing float64) bool {
	return grade >= passing
}
