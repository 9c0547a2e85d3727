package service

import (
	"fmt"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

// StateOf derives the posting state of a grade record.
func StateOf(persisted, posted bool) models.PostingState {
	switch {
	case !persisted:
		return models.PostingStateUngraded
	case posted:
		return models.PostingStatePosted
	default:
		return models.PostingStateSaved
	}
}

// ensureMutable is the single guard for the one-way POSTED state.
func ensureMutable(state models.PostingState, scope models.GradeScope, enrollmentID string) error {
	if state == models.PostingStatePosted {
		return appErrors.Clone(appErrors.ErrAlreadyPosted, fmt.Sprintf("%s grade for enrollment %s is already posted", scope, enrollmentID))
	}
	return nil
}

func validateGradeValue(value float64) error {
	if value < 0 || value > 100 {
		return appErrors.Clone(appErrors.ErrGradeOutOfRange, fmt.Sprintf("grade %.2f must be between 0 and 100", value))
	}
	return nil
}

func validateScore(detail models.GradebookItemDetail, score float64) error {
	if !detail.InRange(score) {
		return appErrors.Clone(appErrors.ErrScoreOutOfRange, fmt.Sprintf("score %.2f for %q must be between %.2f and %.2f", score, detail.Title, detail.MinScore, detail.MaxScore))
	}
	return nil
}

// isOverride compares at storage precision so float noise never flags an override.
func isOverride(value, recommended float64) bool {
	return RoundGrade(value) != RoundGrade(recommended)
}
