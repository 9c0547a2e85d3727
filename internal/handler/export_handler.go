package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

type gradeSheetExporter interface {
	GradeSheet(ctx context.Context, sectionID string, format service.ExportFormat) (*service.ExportFile, error)
}

// ExportHandler serves grade sheet downloads.
type ExportHandler struct {
	exports gradeSheetExporter
}

// NewExportHandler constructs handler.
func NewExportHandler(exports gradeSheetExporter) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// GradeSheet godoc
// @Summary Download a section grade sheet
// @Tags Final Grades
// @Produce text/csv
// @Produce application/pdf
// @Param sectionId path string true "Section ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} binary
// @Router /sections/{sectionId}/final-grades/export [get]
func (h *ExportHandler) GradeSheet(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.GradeSheet(c.Request.Context(), c.Param("sectionId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
