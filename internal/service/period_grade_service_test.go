package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type periodFixture struct {
	svc    *PeriodGradeService
	scores *stubScores
	grades *stubPeriodGrades
}

// newPeriodFixture seeds enr-1 with scores worth 80 on the midterm and 70 on finals.
func newPeriodFixture() *periodFixture {
	store := newStubGradebookStore(sampleTree("gb-1", strPtr("sec-1"), false))
	scores := newStubScores()
	scores.put("enr-1", "d-q1", 8)
	scores.put("enr-1", "d-q2", 6)
	scores.put("enr-1", "d-mid", 90)
	scores.put("enr-1", "d-fin", 35)
	grades := newStubPeriodGrades()
	svc := NewPeriodGradeService(store, newStubRoster(), scores, grades, NewMetricsService(), nil, zap.NewNop())
	return &periodFixture{svc: svc, scores: scores, grades: grades}
}

func TestPeriodGradeRecommended(t *testing.T) {
	f := newPeriodFixture()
	ctx := context.Background()

	mid, err := f.svc.Recommended(ctx, "enr-1", "p-mid")
	require.NoError(t, err)
	assert.InDelta(t, 80.0, mid, 0.001)

	fin, err := f.svc.Recommended(ctx, "enr-1", "p-fin")
	require.NoError(t, err)
	assert.InDelta(t, 70.0, fin, 0.001)

	none, err := f.svc.Recommended(ctx, "enr-2", "p-mid")
	require.NoError(t, err)
	assert.Equal(t, 0.0, none)
}

func TestPeriodGradeDisplayPrefersStoredRecord(t *testing.T) {
	f := newPeriodFixture()
	ctx := context.Background()

	computed, err := f.svc.DisplayGrade(ctx, "enr-1", "p-mid")
	require.NoError(t, err)
	assert.True(t, computed.Computed)
	assert.Equal(t, models.PostingStateUngraded, computed.State)
	assert.InDelta(t, 80.0, computed.Grade, 0.001)

	f.grades.put(models.GradingPeriodGrade{EnrollmentID: "enr-1", GradingPeriodID: "p-mid", Grade: 85, RecommendedGrade: 80, IsOverridden: true})
	stored, err := f.svc.DisplayGrade(ctx, "enr-1", "p-mid")
	require.NoError(t, err)
	assert.False(t, stored.Computed)
	assert.Equal(t, models.PostingStateSaved, stored.State)
	assert.Equal(t, 85.0, stored.Grade)
	assert.True(t, stored.IsOverridden)
}

func TestPeriodGradeSaveTracksOverride(t *testing.T) {
	f := newPeriodFixture()
	ctx := context.Background()

	record, err := f.svc.Save(ctx, "enr-1", "p-mid", 80)
	require.NoError(t, err)
	assert.False(t, record.IsOverridden)
	assert.False(t, record.IsPosted)
	assert.NotEmpty(t, record.ID)

	record, err = f.svc.Save(ctx, "enr-1", "p-mid", 85)
	require.NoError(t, err)
	assert.True(t, record.IsOverridden)
	assert.InDelta(t, 80.0, record.RecommendedGrade, 0.001)
	assert.Equal(t, "pg-enr-1-p-mid", record.ID, "second save updates the same record")
}

func TestPeriodGradePostLocksRecord(t *testing.T) {
	f := newPeriodFixture()
	ctx := context.Background()

	record, err := f.svc.Post(ctx, "enr-1", "p-mid", 82)
	require.NoError(t, err)
	assert.True(t, record.IsPosted)

	_, err = f.svc.Save(ctx, "enr-1", "p-mid", 90)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyPosted))

	_, err = f.svc.Post(ctx, "enr-1", "p-mid", 82)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyPosted))
	assert.Equal(t, 82.0, f.grades.data["enr-1"]["p-mid"].Grade)
}

func TestPeriodGradeRejectsInvalidTargets(t *testing.T) {
	f := newPeriodFixture()
	ctx := context.Background()

	cases := []struct {
		name       string
		enrollment string
		period     string
		value      float64
		want       *appErrors.Error
	}{
		{"grade above 100", "enr-1", "p-mid", 100.5, appErrors.ErrGradeOutOfRange},
		{"negative grade", "enr-1", "p-mid", -1, appErrors.ErrGradeOutOfRange},
		{"enrollment not approved", "enr-3", "p-mid", 80, appErrors.ErrValidation},
		{"unknown enrollment", "enr-404", "p-mid", 80, appErrors.ErrNotFound},
		{"period of another gradebook", "enr-1", "p-other", 80, appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Save(ctx, tc.enrollment, tc.period, tc.value)
			assert.Equal(t, tc.want.Code, errCode(err))
		})
	}
}

func TestPeriodGradeConcurrentPostMapsToAlreadyPosted(t *testing.T) {
	f := newPeriodFixture()
	f.grades.upsertErr = repository.ErrPostedRecord

	_, err := f.svc.Save(context.Background(), "enr-1", "p-mid", 80)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyPosted))
}

func TestPeriodGradeSyncRows(t *testing.T) {
	f := newPeriodFixture()
	f.grades.put(models.GradingPeriodGrade{EnrollmentID: "enr-1", GradingPeriodID: "p-fin", Grade: 72, RecommendedGrade: 70, IsOverridden: true, IsPosted: true})

	rows, err := f.svc.SyncRows(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	byKey := make(map[string]dto.PeriodGradeRow)
	for _, row := range rows {
		byKey[row.EnrollmentID+"/"+row.GradingPeriodID] = row
	}
	mid := byKey["enr-1/p-mid"]
	assert.Nil(t, mid.ID)
	assert.InDelta(t, 80.0, mid.Grade, 0.001)
	assert.Equal(t, models.PostingStateUngraded, mid.State)

	fin := byKey["enr-1/p-fin"]
	require.NotNil(t, fin.ID)
	assert.Equal(t, 72.0, fin.Grade)
	assert.Equal(t, models.PostingStatePosted, fin.State)
	assert.Equal(t, "Finals", fin.PeriodTitle)
}

func TestPeriodGradeSaveBatch(t *testing.T) {
	f := newPeriodFixture()
	ctx := context.Background()

	records, err := f.svc.SaveBatch(ctx, "sec-1", dto.PeriodGradeSyncRequest{Grades: []dto.PeriodGradeInput{
		{EnrollmentID: "enr-1", GradingPeriodID: "p-mid", Grade: floatPtr(80), Post: true},
		{EnrollmentID: "enr-2", GradingPeriodID: "p-mid", Grade: floatPtr(60)},
	}})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].IsPosted)
	assert.False(t, records[0].IsOverridden)
	assert.True(t, records[1].IsOverridden, "enr-2 has no scores so 60 overrides 0")

	_, err = f.svc.SaveBatch(ctx, "sec-1", dto.PeriodGradeSyncRequest{Grades: []dto.PeriodGradeInput{
		{EnrollmentID: "enr-2", GradingPeriodID: "p-mid", Grade: floatPtr(65)},
		{EnrollmentID: "enr-1", GradingPeriodID: "p-mid", Grade: floatPtr(90)},
		{EnrollmentID: "enr-1", GradingPeriodID: "p-nope", Grade: floatPtr(90)},
	}})
	failures := batchFailures(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, appErrors.ErrAlreadyPosted.Code, failures[0].Code)
	assert.Equal(t, 1, failures[0].Index)
	assert.Equal(t, 2, failures[1].Index)
	assert.Equal(t, 60.0, f.grades.data["enr-2"]["p-mid"].Grade, "rejected batch leaves earlier values")
	assert.Equal(t, 1, f.grades.bulkCalls)
}

func TestPeriodGradeSaveBatchRequiresGrade(t *testing.T) {
	f := newPeriodFixture()
	ctx := context.Background()

	var req dto.PeriodGradeSyncRequest
	require.NoError(t, json.Unmarshal([]byte(`{"grades":[{"enrollment_id":"enr-1","grading_period_id":"p-mid","post":true}]}`), &req))

	_, err := f.svc.SaveBatch(ctx, "sec-1", req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Zero(t, f.grades.bulkCalls)

	record, err := f.svc.Save(ctx, "enr-1", "p-mid", 80)
	require.NoError(t, err)
	assert.False(t, record.IsPosted)

	// an explicit zero is a real grade
	var zero dto.PeriodGradeSyncRequest
	require.NoError(t, json.Unmarshal([]byte(`{"grades":[{"enrollment_id":"enr-2","grading_period_id":"p-mid","grade":0}]}`), &zero))
	records, err := f.svc.SaveBatch(ctx, "sec-1", zero)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.0, records[0].Grade)
}
