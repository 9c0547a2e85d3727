package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

func TestRoundGradeHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 0.13, RoundGrade(0.125))
	assert.Equal(t, -0.13, RoundGrade(-0.125))
	assert.Equal(t, 80.0, RoundGrade(79.999))
	assert.Equal(t, 66.67, RoundGrade(200.0/3))
}

func TestComputePeriodGrade(t *testing.T) {
	tree := sampleTree("gb-1", strPtr("sec-1"), false)
	midterm := tree.Periods[0]

	cases := []struct {
		name   string
		scores map[string]float64
		want   float64
	}{
		{"perfect scores", map[string]float64{"d-q1": 10, "d-q2": 10, "d-mid": 100}, 100},
		{"weighted mix", map[string]float64{"d-q1": 8, "d-q2": 6, "d-mid": 90}, 80},
		{"missing score counts as zero", map[string]float64{"d-q1": 10, "d-mid": 100}, 75},
		{"no scores", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ComputePeriodGrade(midterm, tc.scores), 0.001)
		})
	}
}

func TestComputePeriodGradeSingleItem(t *testing.T) {
	period := models.GradingPeriod{
		ID: "p1",
		Items: []models.GradebookItem{{
			ID: "i1", Weight: 100,
			Details: []models.GradebookItemDetail{
				{ID: "d1", Weight: 50, MaxScore: 100},
				{ID: "d2", Weight: 50, MaxScore: 100},
			},
		}},
	}

	cases := []struct {
		name   string
		scores map[string]float64
		want   float64
	}{
		{"half and half", map[string]float64{"d1": 80, "d2": 60}, 70},
		{"one detail unscored", map[string]float64{"d1": 80}, 40},
		{"both perfect", map[string]float64{"d1": 100, "d2": 100}, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputePeriodGrade(period, tc.scores))
		})
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	tree := sampleTree("gb-1", nil, false)
	scores := map[string]float64{"d-q1": 7, "d-q2": 3, "d-mid": 67}
	grades := map[string]float64{"p-mid": 66.67, "p-fin": 33.33}

	assert.Equal(t, ComputePeriodGrade(tree.Periods[0], scores), ComputePeriodGrade(tree.Periods[0], scores))
	assert.Equal(t, ComputeFinalGrade(tree.Periods, grades), ComputeFinalGrade(tree.Periods, grades))
}

func TestComputePeriodGradeSkipsUnnormalisableDetails(t *testing.T) {
	period := models.GradingPeriod{
		ID: "p1",
		Items: []models.GradebookItem{{
			ID: "i1", Weight: 100,
			Details: []models.GradebookItemDetail{
				{ID: "d1", Weight: 50, MaxScore: 20},
				{ID: "d2", Weight: 50, MaxScore: 0},
			},
		}},
	}
	assert.InDelta(t, 50.0, ComputePeriodGrade(period, map[string]float64{"d1": 20, "d2": 5}), 0.001)
}

func TestComputePeriodGradeEmptyItem(t *testing.T) {
	period := models.GradingPeriod{ID: "p1", Items: []models.GradebookItem{{ID: "i1", Weight: 100}}}
	assert.Equal(t, 0.0, ComputePeriodGrade(period, map[string]float64{"x": 10}))
}

func TestComputePeriodGradeIsNotClamped(t *testing.T) {
	period := models.GradingPeriod{
		ID: "p1",
		Items: []models.GradebookItem{{
			ID: "i1", Weight: 100,
			Details: []models.GradebookItemDetail{{ID: "d1", Weight: 120, MaxScore: 10}},
		}},
	}
	assert.InDelta(t, 120.0, ComputePeriodGrade(period, map[string]float64{"d1": 10}), 0.001)
}

func TestComputeFinalGrade(t *testing.T) {
	periods := sampleTree("gb-1", nil, false).Periods
	sixtyForty := []models.GradingPeriod{{ID: "p1", Weight: 60}, {ID: "p2", Weight: 40}}

	cases := []struct {
		name    string
		periods []models.GradingPeriod
		grades  map[string]float64
		want    float64
	}{
		{"forty sixty split", periods, map[string]float64{"p-mid": 80, "p-fin": 70}, 74},
		{"missing period counts as zero", periods, map[string]float64{"p-mid": 80}, 32},
		{"no grades", periods, nil, 0},
		{"sixty forty split", sixtyForty, map[string]float64{"p1": 90, "p2": 70}, 82},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ComputeFinalGrade(tc.periods, tc.grades), 0.001)
		})
	}
}

func TestMeetsPassingGrade(t *testing.T) {
	assert.True(t, MeetsPassingGrade(75, 75))
	assert.False(t, MeetsPassingGrade(74.99, 75))
}
