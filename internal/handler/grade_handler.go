package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type scoreService interface {
	SyncRows(ctx context.Context, sectionID string) ([]dto.ScoreRow, error)
	SaveScores(ctx context.Context, sectionID string, req dto.ScoreSyncRequest) ([]models.GradebookScore, error)
}

type periodGradeService interface {
	DisplayGrade(ctx context.Context, enrollmentID, periodID string) (*dto.DisplayGrade, error)
	Save(ctx context.Context, enrollmentID, periodID string, value float64) (*models.GradingPeriodGrade, error)
	Post(ctx context.Context, enrollmentID, periodID string, value float64) (*models.GradingPeriodGrade, error)
	SyncRows(ctx context.Context, sectionID string) ([]dto.PeriodGradeRow, error)
	SaveBatch(ctx context.Context, sectionID string, req dto.PeriodGradeSyncRequest) ([]models.GradingPeriodGrade, error)
}

type finalGradeService interface {
	DisplayGrade(ctx context.Context, enrollmentID string) (*dto.DisplayGrade, error)
	Save(ctx context.Context, enrollmentID string, req dto.FinalGradeValueRequest) (*models.FinalGrade, error)
	Post(ctx context.Context, enrollmentID string, req dto.FinalGradeValueRequest) (*models.FinalGrade, error)
	SyncRows(ctx context.Context, sectionID string) ([]dto.FinalGradeRow, error)
	SaveBatch(ctx context.Context, sectionID string, req dto.FinalGradeSyncRequest) ([]models.FinalGrade, error)
}

// GradeHandler exposes score entry and grade posting endpoints.
type GradeHandler struct {
	scores  scoreService
	periods periodGradeService
	finals  finalGradeService
}

// NewGradeHandler constructs handler.
func NewGradeHandler(scores scoreService, periods periodGradeService, finals finalGradeService) *GradeHandler {
	return &GradeHandler{scores: scores, periods: periods, finals: finals}
}

// ScoreRows godoc
// @Summary Score grid of a section
// @Tags Scores
// @Produce json
// @Param sectionId path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{sectionId}/scores [get]
func (h *GradeHandler) ScoreRows(c *gin.Context) {
	rows, err := h.scores.SyncRows(c.Request.Context(), c.Param("sectionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// SyncScores godoc
// @Summary Save a batch of scores
// @Description All entries are validated first; any invalid entry rejects the whole batch.
// @Tags Scores
// @Accept json
// @Produce json
// @Param sectionId path string true "Section ID"
// @Param payload body dto.ScoreSyncRequest true "Scores"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sections/{sectionId}/scores/sync [post]
func (h *GradeHandler) SyncScores(c *gin.Context) {
	var req dto.ScoreSyncRequest
	if !bindJSON(c, &req) {
		return
	}
	scores, err := h.scores.SaveScores(c.Request.Context(), c.Param("sectionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scores, nil)
}

// PeriodGradeRows godoc
// @Summary Period grade grid of a section
// @Tags Period Grades
// @Produce json
// @Param sectionId path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{sectionId}/period-grades [get]
func (h *GradeHandler) PeriodGradeRows(c *gin.Context) {
	rows, err := h.periods.SyncRows(c.Request.Context(), c.Param("sectionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// SyncPeriodGrades godoc
// @Summary Save or post a batch of period grades
// @Tags Period Grades
// @Accept json
// @Produce json
// @Param sectionId path string true "Section ID"
// @Param payload body dto.PeriodGradeSyncRequest true "Period grades"
// @Success 200 {object} response.Envelope
// @Router /sections/{sectionId}/period-grades/sync [post]
func (h *GradeHandler) SyncPeriodGrades(c *gin.Context) {
	var req dto.PeriodGradeSyncRequest
	if !bindJSON(c, &req) {
		return
	}
	grades, err := h.periods.SaveBatch(c.Request.Context(), c.Param("sectionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// PeriodGrade godoc
// @Summary Display grade of an enrollment for a period
// @Tags Period Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param periodId path string true "Grading period ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/period-grades/{periodId} [get]
func (h *GradeHandler) PeriodGrade(c *gin.Context) {
	grade, err := h.periods.DisplayGrade(c.Request.Context(), c.Param("id"), c.Param("periodId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// SavePeriodGrade godoc
// @Summary Save a period grade
// @Tags Period Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param periodId path string true "Grading period ID"
// @Param payload body dto.GradeValueRequest true "Grade"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/period-grades/{periodId} [put]
func (h *GradeHandler) SavePeriodGrade(c *gin.Context) {
	h.writePeriodGrade(c, h.periods.Save)
}

// PostPeriodGrade godoc
// @Summary Post a period grade
// @Tags Period Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param periodId path string true "Grading period ID"
// @Param payload body dto.GradeValueRequest true "Grade"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/period-grades/{periodId}/post [post]
func (h *GradeHandler) PostPeriodGrade(c *gin.Context) {
	h.writePeriodGrade(c, h.periods.Post)
}

func (h *GradeHandler) writePeriodGrade(c *gin.Context, write func(ctx context.Context, enrollmentID, periodID string, value float64) (*models.GradingPeriodGrade, error)) {
	var req dto.GradeValueRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Grade == nil {
		response.Error(c, missingGrade())
		return
	}
	grade, err := write(c.Request.Context(), c.Param("id"), c.Param("periodId"), *req.Grade)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// FinalGradeRows godoc
// @Summary Final grade grid of a section
// @Tags Final Grades
// @Produce json
// @Param sectionId path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{sectionId}/final-grades [get]
func (h *GradeHandler) FinalGradeRows(c *gin.Context) {
	rows, err := h.finals.SyncRows(c.Request.Context(), c.Param("sectionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// SyncFinalGrades godoc
// @Summary Save or post a batch of final grades
// @Tags Final Grades
// @Accept json
// @Produce json
// @Param sectionId path string true "Section ID"
// @Param payload body dto.FinalGradeSyncRequest true "Final grades"
// @Success 200 {object} response.Envelope
// @Router /sections/{sectionId}/final-grades/sync [post]
func (h *GradeHandler) SyncFinalGrades(c *gin.Context) {
	var req dto.FinalGradeSyncRequest
	if !bindJSON(c, &req) {
		return
	}
	grades, err := h.finals.SaveBatch(c.Request.Context(), c.Param("sectionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// FinalGrade godoc
// @Summary Display final grade of an enrollment
// @Tags Final Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/final-grade [get]
func (h *GradeHandler) FinalGrade(c *gin.Context) {
	grade, err := h.finals.DisplayGrade(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// SaveFinalGrade godoc
// @Summary Save a final grade
// @Tags Final Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.FinalGradeValueRequest true "Final grade"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/final-grade [put]
func (h *GradeHandler) SaveFinalGrade(c *gin.Context) {
	h.writeFinalGrade(c, h.finals.Save)
}

// PostFinalGrade godoc
// @Summary Post a final grade
// @Tags Final Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.FinalGradeValueRequest true "Final grade"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/final-grade/post [post]
func (h *GradeHandler) PostFinalGrade(c *gin.Context) {
	h.writeFinalGrade(c, h.finals.Post)
}

func (h *GradeHandler) writeFinalGrade(c *gin.Context, write func(ctx context.Context, enrollmentID string, req dto.FinalGradeValueRequest) (*models.FinalGrade, error)) {
	var req dto.FinalGradeValueRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Grade == nil {
		response.Error(c, missingGrade())
		return
	}
	grade, err := write(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}
