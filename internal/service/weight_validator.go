package service

import (
	"fmt"
	"math"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

const weightTolerance = 0.01

// SumWeights adds child weights.
func SumWeights(weights ...float64) float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	return total
}

// IsComplete reports whether a level's weights add up to 100.
func IsComplete(sum float64) bool {
	return math.Abs(sum-100) < weightTolerance
}

// ValidateWeights classifies every level of the gradebook tree. It is advisory and never
// blocks writes; callers surface NEEDS_ADJUSTMENT entries as warnings.
func ValidateWeights(gradebook models.Gradebook) models.WeightReport {
	report := models.WeightReport{GradebookID: gradebook.ID, Complete: true}

	periodWeights := make([]float64, 0, len(gradebook.Periods))
	for _, period := range gradebook.Periods {
		periodWeights = append(periodWeights, period.Weight)
	}
	report.Add(levelReport(models.WeightLevelGradebook, gradebook.ID, gradebook.Title, periodWeights))

	for _, period := range gradebook.Periods {
		itemWeights := make([]float64, 0, len(period.Items))
		for _, item := range period.Items {
			itemWeights = append(itemWeights, item.Weight)
		}
		report.Add(levelReport(models.WeightLevelPeriod, period.ID, period.Title, itemWeights))

		for _, item := range period.Items {
			detailWeights := make([]float64, 0, len(item.Details))
			for _, detail := range item.Details {
				detailWeights = append(detailWeights, detail.Weight)
			}
			report.Add(levelReport(models.WeightLevelItem, item.ID, item.Title, detailWeights))

			for _, detail := range item.Details {
				if detail.MinScore > detail.MaxScore {
					report.Add(models.WeightLevelReport{
						Level:   models.WeightLevelDetail,
						ID:      detail.ID,
						Title:   detail.Title,
						Status:  models.WeightStatusNeedsAdjustment,
						Message: fmt.Sprintf("min score %.2f exceeds max score %.2f", detail.MinScore, detail.MaxScore),
					})
				}
			}
		}
	}
	return report
}

func levelReport(level models.WeightLevel, id, title string, weights []float64) models.WeightLevelReport {
	sum := RoundGrade(SumWeights(weights...))
	entry := models.WeightLevelReport{
		Level:       level,
		ID:          id,
		Title:       title,
		Sum:         sum,
		Status:      models.WeightStatusComplete,
		CanAddChild: sum < 100,
	}
	if !IsComplete(sum) {
		entry.Status = models.WeightStatusNeedsAdjustment
		entry.Message = fmt.Sprintf("weights sum to %.2f, expected 100", sum)
	}
	return entry
}
