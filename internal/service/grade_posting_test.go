package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

func TestStateOf(t *testing.T) {
	assert.Equal(t, models.PostingStateUngraded, StateOf(false, false))
	assert.Equal(t, models.PostingStateSaved, StateOf(true, false))
	assert.Equal(t, models.PostingStatePosted, StateOf(true, true))
}

func TestEnsureMutable(t *testing.T) {
	assert.NoError(t, ensureMutable(models.PostingStateUngraded, models.GradeScopePeriod, "enr-1"))
	assert.NoError(t, ensureMutable(models.PostingStateSaved, models.GradeScopePeriod, "enr-1"))

	err := ensureMutable(models.PostingStatePosted, models.GradeScopeFinal, "enr-1")
	assert.Equal(t, appErrors.ErrAlreadyPosted.Code, errCode(err))
	assert.Contains(t, err.Error(), "final grade")
}

func TestValidateGradeValue(t *testing.T) {
	for _, v := range []float64{0, 74.5, 100} {
		assert.NoError(t, validateGradeValue(v))
	}
	for _, v := range []float64{-0.01, 100.01} {
		assert.Equal(t, appErrors.ErrGradeOutOfRange.Code, errCode(validateGradeValue(v)))
	}
}

func TestValidateScoreBounds(t *testing.T) {
	quiz := models.GradebookItemDetail{Title: "Quiz", MinScore: 5, MaxScore: 10}
	exam := models.GradebookItemDetail{Title: "Exam", MinScore: 0, MaxScore: 100}

	cases := []struct {
		name   string
		detail models.GradebookItemDetail
		score  float64
		valid  bool
	}{
		{"quiz lower bound", quiz, 5, true},
		{"quiz upper bound", quiz, 10, true},
		{"quiz below minimum", quiz, 4.99, false},
		{"quiz above maximum", quiz, 10.5, false},
		{"exam zero", exam, 0, true},
		{"exam perfect", exam, 100, true},
		{"exam negative", exam, -1, false},
		{"exam above maximum", exam, 101, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateScore(tc.detail, tc.score)
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, appErrors.ErrScoreOutOfRange.Code, errCode(err))
		})
	}
}

func TestIsOverrideUsesStoragePrecision(t *testing.T) {
	assert.False(t, isOverride(80.004, 80))
	assert.True(t, isOverride(80.01, 80))
}
