package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type gradebookService interface {
	TreeWithCacheStatus(ctx context.Context, id string) (*models.Gradebook, bool, error)
	GetBySection(ctx context.Context, sectionID string) (*models.Gradebook, error)
	WeightReport(ctx context.Context, id string) (*models.WeightReport, error)
	GenerateFromTemplate(ctx context.Context, templateID, sectionID string) (*models.Gradebook, error)
	CreatePeriod(ctx context.Context, req dto.CreatePeriodRequest) (*models.GradingPeriod, error)
	UpdatePeriod(ctx context.Context, id string, req dto.UpdateNodeRequest) (*models.GradingPeriod, error)
	DeletePeriod(ctx context.Context, id string) error
	CreateItem(ctx context.Context, req dto.CreateItemRequest) (*models.GradebookItem, error)
	UpdateItem(ctx context.Context, id string, req dto.UpdateNodeRequest) (*models.GradebookItem, error)
	DeleteItem(ctx context.Context, id string) error
	CreateDetail(ctx context.Context, req dto.CreateDetailRequest) (*models.GradebookItemDetail, error)
	UpdateDetail(ctx context.Context, id string, req dto.UpdateDetailRequest) (*models.GradebookItemDetail, error)
	DeleteDetail(ctx context.Context, id string) error
}

// GradebookHandler exposes gradebook tree endpoints.
type GradebookHandler struct {
	gradebooks gradebookService
}

// NewGradebookHandler constructs handler.
func NewGradebookHandler(gradebooks gradebookService) *GradebookHandler {
	return &GradebookHandler{gradebooks: gradebooks}
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// Get godoc
// @Summary Get gradebook tree
// @Tags Gradebooks
// @Produce json
// @Param id path string true "Gradebook ID"
// @Success 200 {object} response.Envelope
// @Router /gradebooks/{id} [get]
func (h *GradebookHandler) Get(c *gin.Context) {
	gradebook, hit, err := h.gradebooks.TreeWithCacheStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, gradebook, nil, middleware.ExtractMeta(c))
}

// Weights godoc
// @Summary Weight completeness report
// @Tags Gradebooks
// @Produce json
// @Param id path string true "Gradebook ID"
// @Success 200 {object} response.Envelope
// @Router /gradebooks/{id}/weights [get]
func (h *GradebookHandler) Weights(c *gin.Context) {
	report, err := h.gradebooks.WeightReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// BySection godoc
// @Summary Get a section's gradebook tree
// @Tags Gradebooks
// @Produce json
// @Param sectionId path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{sectionId}/gradebook [get]
func (h *GradebookHandler) BySection(c *gin.Context) {
	gradebook, err := h.gradebooks.GetBySection(c.Request.Context(), c.Param("sectionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gradebook, nil)
}

// Generate godoc
// @Summary Copy a template gradebook into a section
// @Tags Gradebooks
// @Produce json
// @Param id path string true "Template gradebook ID"
// @Param sectionId path string true "Section ID"
// @Success 201 {object} response.Envelope
// @Router /gradebooks/{id}/generate/{sectionId} [post]
func (h *GradebookHandler) Generate(c *gin.Context) {
	gradebook, err := h.gradebooks.GenerateFromTemplate(c.Request.Context(), c.Param("id"), c.Param("sectionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gradebook)
}

// CreatePeriod godoc
// @Summary Create grading period
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param payload body dto.CreatePeriodRequest true "Grading period"
// @Success 201 {object} response.Envelope
// @Router /grading-periods [post]
func (h *GradebookHandler) CreatePeriod(c *gin.Context) {
	var req dto.CreatePeriodRequest
	if !bindJSON(c, &req) {
		return
	}
	period, err := h.gradebooks.CreatePeriod(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// UpdatePeriod godoc
// @Summary Update grading period
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param id path string true "Grading period ID"
// @Param payload body dto.UpdateNodeRequest true "Grading period"
// @Success 200 {object} response.Envelope
// @Router /grading-periods/{id} [put]
func (h *GradebookHandler) UpdatePeriod(c *gin.Context) {
	var req dto.UpdateNodeRequest
	if !bindJSON(c, &req) {
		return
	}
	period, err := h.gradebooks.UpdatePeriod(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// DeletePeriod godoc
// @Summary Delete grading period
// @Tags Gradebooks
// @Param id path string true "Grading period ID"
// @Success 204
// @Router /grading-periods/{id} [delete]
func (h *GradebookHandler) DeletePeriod(c *gin.Context) {
	if err := h.gradebooks.DeletePeriod(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateItem godoc
// @Summary Create gradebook item
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param payload body dto.CreateItemRequest true "Item"
// @Success 201 {object} response.Envelope
// @Router /gradebook-items [post]
func (h *GradebookHandler) CreateItem(c *gin.Context) {
	var req dto.CreateItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.gradebooks.CreateItem(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateItem godoc
// @Summary Update gradebook item
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param id path string true "Item ID"
// @Param payload body dto.UpdateNodeRequest true "Item"
// @Success 200 {object} response.Envelope
// @Router /gradebook-items/{id} [put]
func (h *GradebookHandler) UpdateItem(c *gin.Context) {
	var req dto.UpdateNodeRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.gradebooks.UpdateItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteItem godoc
// @Summary Delete gradebook item
// @Tags Gradebooks
// @Param id path string true "Item ID"
// @Success 204
// @Router /gradebook-items/{id} [delete]
func (h *GradebookHandler) DeleteItem(c *gin.Context) {
	if err := h.gradebooks.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreateDetail godoc
// @Summary Create item detail
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param payload body dto.CreateDetailRequest true "Detail"
// @Success 201 {object} response.Envelope
// @Router /gradebook-item-details [post]
func (h *GradebookHandler) CreateDetail(c *gin.Context) {
	var req dto.CreateDetailRequest
	if !bindJSON(c, &req) {
		return
	}
	detail, err := h.gradebooks.CreateDetail(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// UpdateDetail godoc
// @Summary Update item detail
// @Tags Gradebooks
// @Accept json
// @Produce json
// @Param id path string true "Detail ID"
// @Param payload body dto.UpdateDetailRequest true "Detail"
// @Success 200 {object} response.Envelope
// @Router /gradebook-item-details/{id} [put]
func (h *GradebookHandler) UpdateDetail(c *gin.Context) {
	var req dto.UpdateDetailRequest
	if !bindJSON(c, &req) {
		return
	}
	detail, err := h.gradebooks.UpdateDetail(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// DeleteDetail godoc
// @Summary Delete item detail
// @Tags Gradebooks
// @Param id path string true "Detail ID"
// @Success 204
// @Router /gradebook-item-details/{id} [delete]
func (h *GradebookHandler) DeleteDetail(c *gin.Context) {
	if err := h.gradebooks.DeleteDetail(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
