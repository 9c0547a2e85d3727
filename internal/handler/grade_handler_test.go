package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type scoreServiceStub struct {
	rows []dto.ScoreRow
	req  dto.ScoreSyncRequest
	err  error
}

func (s *scoreServiceStub) SyncRows(ctx context.Context, sectionID string) ([]dto.ScoreRow, error) {
	return s.rows, s.err
}

func (s *scoreServiceStub) SaveScores(ctx context.Context, sectionID string, req dto.ScoreSyncRequest) ([]models.GradebookScore, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return []models.GradebookScore{{ID: "s-1"}}, nil
}

type periodGradeServiceStub struct {
	periodGradeService
	saved  []float64
	posted []float64
	err    error
}

func (s *periodGradeServiceStub) Save(ctx context.Context, enrollmentID, periodID string, value float64) (*models.GradingPeriodGrade, error) {
	s.saved = append(s.saved, value)
	return &models.GradingPeriodGrade{EnrollmentID: enrollmentID, GradingPeriodID: periodID, Grade: value}, s.err
}

func (s *periodGradeServiceStub) Post(ctx context.Context, enrollmentID, periodID string, value float64) (*models.GradingPeriodGrade, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.posted = append(s.posted, value)
	return &models.GradingPeriodGrade{EnrollmentID: enrollmentID, GradingPeriodID: periodID, Grade: value, IsPosted: true}, nil
}

type finalGradeServiceStub struct {
	finalGradeService
	display *dto.DisplayGrade
	req     dto.FinalGradeValueRequest
	err     error
}

func (s *finalGradeServiceStub) DisplayGrade(ctx context.Context, enrollmentID string) (*dto.DisplayGrade, error) {
	return s.display, s.err
}

func (s *finalGradeServiceStub) Post(ctx context.Context, enrollmentID string, req dto.FinalGradeValueRequest) (*models.FinalGrade, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.FinalGrade{EnrollmentID: enrollmentID, Grade: *req.Grade, IsPosted: true}, nil
}

type gradeStubs struct {
	scores  *scoreServiceStub
	periods *periodGradeServiceStub
	finals  *finalGradeServiceStub
}

func newGradeRouter(stubs gradeStubs) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewGradeHandler(stubs.scores, stubs.periods, stubs.finals)
	r := gin.New()
	r.GET("/sections/:sectionId/scores", h.ScoreRows)
	r.POST("/sections/:sectionId/scores/sync", h.SyncScores)
	r.PUT("/enrollments/:id/period-grades/:periodId", h.SavePeriodGrade)
	r.POST("/enrollments/:id/period-grades/:periodId/post", h.PostPeriodGrade)
	r.GET("/enrollments/:id/final-grade", h.FinalGrade)
	r.POST("/enrollments/:id/final-grade/post", h.PostFinalGrade)
	return r
}

func newGradeStubs() gradeStubs {
	return gradeStubs{scores: &scoreServiceStub{}, periods: &periodGradeServiceStub{}, finals: &finalGradeServiceStub{}}
}

func TestGradeHandlerScoreRows(t *testing.T) {
	stubs := newGradeStubs()
	stubs.scores.rows = []dto.ScoreRow{{EnrollmentID: "enr-1", DetailID: "d-q1", Score: 8}}

	w := performJSON(newGradeRouter(stubs), http.MethodGet, "/sections/sec-1/scores", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rows []dto.ScoreRow
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 8.0, rows[0].Score)
}

func TestGradeHandlerSyncScoresBatchRejected(t *testing.T) {
	stubs := newGradeStubs()
	stubs.scores.err = appErrors.WithDetails(appErrors.ErrBatchRejected, "", []dto.BatchItemError{
		{Index: 1, Code: appErrors.ErrScoreOutOfRange.Code, Reason: "score 11 outside 0..10"},
	})

	w := performJSON(newGradeRouter(stubs), http.MethodPost, "/sections/sec-1/scores/sync", `{"scores":[{"enrollment_id":"enr-1","gradebook_item_detail_id":"d-q1","score":11}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, appErrors.ErrBatchRejected.Code, env.Error.Code)
	assert.NotNil(t, env.Error.Details)
	require.Len(t, stubs.scores.req.Scores, 1)
}

func TestGradeHandlerPeriodGradeRequiresValue(t *testing.T) {
	stubs := newGradeStubs()
	w := performJSON(newGradeRouter(stubs), http.MethodPut, "/enrollments/enr-1/period-grades/p-mid", `{}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, stubs.periods.saved)
}

func TestGradeHandlerSaveAndPostPeriodGrade(t *testing.T) {
	stubs := newGradeStubs()
	r := newGradeRouter(stubs)

	w := performJSON(r, http.MethodPut, "/enrollments/enr-1/period-grades/p-mid", `{"grade":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []float64{0}, stubs.periods.saved, "zero is a valid grade")

	w = performJSON(r, http.MethodPost, "/enrollments/enr-1/period-grades/p-mid/post", `{"grade":82.5}`)
	require.Equal(t, http.StatusOK, w.Code)
	var grade models.GradingPeriodGrade
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &grade))
	assert.True(t, grade.IsPosted)
	assert.Equal(t, 82.5, grade.Grade)
}

func TestGradeHandlerPostPeriodGradeAlreadyPosted(t *testing.T) {
	stubs := newGradeStubs()
	stubs.periods.err = appErrors.ErrAlreadyPosted

	w := performJSON(newGradeRouter(stubs), http.MethodPost, "/enrollments/enr-1/period-grades/p-mid/post", `{"grade":80}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrAlreadyPosted.Code, decodeEnvelope(t, w).Error.Code)
}

func TestGradeHandlerPostFinalGradePrecondition(t *testing.T) {
	stubs := newGradeStubs()
	stubs.finals.err = appErrors.Clone(appErrors.ErrPreconditionFailed, "all grading periods must be posted first")

	w := performJSON(newGradeRouter(stubs), http.MethodPost, "/enrollments/enr-1/final-grade/post", `{"grade":74,"credited_units":3}`)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	require.NotNil(t, stubs.finals.req.CreditedUnits)
	assert.Equal(t, 3, *stubs.finals.req.CreditedUnits)
}

func TestGradeHandlerFinalGradeDisplay(t *testing.T) {
	stubs := newGradeStubs()
	passed := false
	stubs.finals.display = &dto.DisplayGrade{EnrollmentID: "enr-1", Grade: 32, IsPassed: &passed, State: models.PostingStateUngraded, Computed: true}

	w := performJSON(newGradeRouter(stubs), http.MethodGet, "/enrollments/enr-1/final-grade", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var display dto.DisplayGrade
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &display))
	assert.True(t, display.Computed)
	assert.Equal(t, models.PostingStateUngraded, display.State)
}
