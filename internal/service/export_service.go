package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/pkg/export"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

// ExportFormat is the rendering of a grade sheet.
type ExportFormat string

// Supported export formats.
const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type periodGridReader interface {
	SyncRows(ctx context.Context, sectionID string) ([]dto.PeriodGradeRow, error)
}

type finalGridReader interface {
	SyncRows(ctx context.Context, sectionID string) ([]dto.FinalGradeRow, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, opts export.PDFOptions) ([]byte, error)
}

// ExportFile is a rendered grade sheet ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders section grade sheets.
type ExportService struct {
	periods periodGridReader
	finals  finalGridReader
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
	enabled bool
}

// NewExportService constructs an ExportService. Nil renderers fall back to the package defaults.
func NewExportService(periods periodGridReader, finals finalGridReader, enabled bool, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{periods: periods, finals: finals, csv: csv, pdf: pdf, logger: logger, enabled: enabled}
}

// ParseExportFormat validates a format query value; empty means CSV.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatPDF:
		return ExportFormatPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", raw))
	}
}

// GradeSheet renders the period and final grades of every gradable enrollment in a section.
func (s *ExportService) GradeSheet(ctx context.Context, sectionID string, format ExportFormat) (*ExportFile, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled")
	}
	dataset, err := s.buildDataset(ctx, sectionID)
	if err != nil {
		return nil, err
	}

	var (
		payload     []byte
		contentType string
	)
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, export.PDFOptions{
			Title:     "Grade Sheet",
			Subtitle:  fmt.Sprintf("Section %s - generated %s", sectionID, time.Now().UTC().Format("2006-01-02 15:04 MST")),
			Landscape: len(dataset.Headers) > 7,
		})
		contentType = "application/pdf"
	default:
		err = fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render grade sheet")
	}

	s.logger.Info("grade sheet exported", zap.String("section_id", sectionID), zap.String("format", string(format)), zap.Int("rows", len(dataset.Rows)))
	return &ExportFile{
		Filename:    buildFilename(sectionID, format),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func (s *ExportService) buildDataset(ctx context.Context, sectionID string) (export.Dataset, error) {
	periodRows, err := s.periods.SyncRows(ctx, sectionID)
	if err != nil {
		return export.Dataset{}, err
	}
	finalRows, err := s.finals.SyncRows(ctx, sectionID)
	if err != nil {
		return export.Dataset{}, err
	}

	var periodTitles []string
	seen := make(map[string]bool)
	grades := make(map[string]map[string]float64)
	for _, row := range periodRows {
		if !seen[row.GradingPeriodID] {
			seen[row.GradingPeriodID] = true
			periodTitles = append(periodTitles, row.PeriodTitle)
		}
		if grades[row.EnrollmentID] == nil {
			grades[row.EnrollmentID] = make(map[string]float64)
		}
		grades[row.EnrollmentID][row.PeriodTitle] = row.Grade
	}

	headers := []string{"Student No", "Student Name"}
	headers = append(headers, periodTitles...)
	headers = append(headers, "Recommended", "Final Grade", "Units", "Status", "Result")
	dataset := export.Dataset{Headers: headers}
	for _, row := range finalRows {
		values := []string{row.StudentNo, row.StudentName}
		for _, title := range periodTitles {
			values = append(values, formatGrade(grades[row.EnrollmentID][title]))
		}
		result := "FAILED"
		if row.IsPassed {
			result = "PASSED"
		}
		values = append(values,
			formatGrade(row.RecommendedGrade),
			formatGrade(row.Grade),
			fmt.Sprintf("%d", row.CreditedUnits),
			string(row.State),
			result,
		)
		dataset.AddRow(values...)
	}
	return dataset, nil
}

func formatGrade(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func buildFilename(sectionID string, format ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("grades_%s_%s.%s", sanitizeFilename(sectionID), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
