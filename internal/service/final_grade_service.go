package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type finalGradeStore interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.FinalGrade, error)
	FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]models.FinalGrade, error)
	Upsert(ctx context.Context, grade *models.FinalGrade) error
	BulkUpsert(ctx context.Context, grades []models.FinalGrade) error
}

// FinalGradeOptions tunes final grade policy.
type FinalGradeOptions struct {
	PassingGrade         float64
	RequirePostedPeriods bool
}

// FinalGradeService implements the save and post workflow for final course grades.
type FinalGradeService struct {
	gradebooks   sectionGradebookReader
	enrollments  rosterReader
	periodGrades periodGradeFetcher
	grades       finalGradeStore
	opts         FinalGradeOptions
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewFinalGradeService constructs FinalGradeService.
func NewFinalGradeService(gradebooks sectionGradebookReader, enrollments rosterReader, periodGrades periodGradeFetcher, grades finalGradeStore, opts FinalGradeOptions, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *FinalGradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PassingGrade <= 0 || opts.PassingGrade > 100 {
		opts.PassingGrade = 75
	}
	return &FinalGradeService{
		gradebooks:   gradebooks,
		enrollments:  enrollments,
		periodGrades: periodGrades,
		grades:       grades,
		opts:         opts,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
	}
}

// IsPassed reports whether a final grade meets the passing grade.
func (s *FinalGradeService) IsPassed(grade float64) bool {
	return MeetsPassingGrade(grade, s.opts.PassingGrade)
}

// postedPeriodGrades keeps only posted grades keyed by period ID.
func postedPeriodGrades(records map[string]models.GradingPeriodGrade) map[string]float64 {
	out := make(map[string]float64, len(records))
	for periodID, record := range records {
		if record.IsPosted {
			out[periodID] = record.Grade
		}
	}
	return out
}

// Recommended computes the final grade from the enrollment's posted period grades.
func (s *FinalGradeService) Recommended(ctx context.Context, enrollmentID string) (float64, error) {
	enrollment, gradebook, err := loadGradableEnrollment(ctx, s.gradebooks, s.enrollments, enrollmentID)
	if err != nil {
		return 0, err
	}
	records, err := s.periodRecords(ctx, []string{enrollment.ID})
	if err != nil {
		return 0, err
	}
	return ComputeFinalGrade(gradebook.Periods, postedPeriodGrades(records[enrollment.ID])), nil
}

func (s *FinalGradeService) periodRecords(ctx context.Context, enrollmentIDs []string) (map[string]map[string]models.GradingPeriodGrade, error) {
	records, err := s.periodGrades.FetchByEnrollments(ctx, enrollmentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period grades")
	}
	return records, nil
}

func (s *FinalGradeService) findRecord(ctx context.Context, enrollmentID string) (*models.FinalGrade, error) {
	record, err := s.grades.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load final grade")
	}
	return record, nil
}

// DisplayGrade returns the stored final grade when present, otherwise the live recommendation.
func (s *FinalGradeService) DisplayGrade(ctx context.Context, enrollmentID string) (*dto.DisplayGrade, error) {
	enrollment, gradebook, err := loadGradableEnrollment(ctx, s.gradebooks, s.enrollments, enrollmentID)
	if err != nil {
		return nil, err
	}
	stored, err := s.findRecord(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		units := stored.CreditedUnits
		passed := s.IsPassed(stored.Grade)
		return &dto.DisplayGrade{
			EnrollmentID:     enrollment.ID,
			Grade:            stored.Grade,
			RecommendedGrade: stored.RecommendedGrade,
			CreditedUnits:    &units,
			IsOverridden:     stored.IsOverridden,
			IsPosted:         stored.IsPosted,
			IsPassed:         &passed,
			State:            StateOf(true, stored.IsPosted),
		}, nil
	}
	records, err := s.periodRecords(ctx, []string{enrollment.ID})
	if err != nil {
		return nil, err
	}
	recommended := ComputeFinalGrade(gradebook.Periods, postedPeriodGrades(records[enrollment.ID]))
	passed := s.IsPassed(recommended)
	return &dto.DisplayGrade{
		EnrollmentID:     enrollment.ID,
		Grade:            recommended,
		RecommendedGrade: recommended,
		IsPassed:         &passed,
		State:            models.PostingStateUngraded,
		Computed:         true,
	}, nil
}

// Save stores a final grade.
func (s *FinalGradeService) Save(ctx context.Context, enrollmentID string, req dto.FinalGradeValueRequest) (*models.FinalGrade, error) {
	return s.write(ctx, enrollmentID, req, false)
}

// Post stores a final grade and locks it.
func (s *FinalGradeService) Post(ctx context.Context, enrollmentID string, req dto.FinalGradeValueRequest) (*models.FinalGrade, error) {
	return s.write(ctx, enrollmentID, req, true)
}

func (s *FinalGradeService) write(ctx context.Context, enrollmentID string, req dto.FinalGradeValueRequest, post bool) (*models.FinalGrade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid final grade payload")
	}
	value := *req.Grade
	if err := validateGradeValue(value); err != nil {
		return nil, err
	}
	enrollment, gradebook, err := loadGradableEnrollment(ctx, s.gradebooks, s.enrollments, enrollmentID)
	if err != nil {
		return nil, err
	}
	existing, err := s.findRecord(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}
	if err := ensureMutable(StateOf(existing != nil, existing != nil && existing.IsPosted), models.GradeScopeFinal, enrollment.ID); err != nil {
		return nil, err
	}
	records, err := s.periodRecords(ctx, []string{enrollment.ID})
	if err != nil {
		return nil, err
	}
	if post {
		if err := s.checkPeriodsPosted(gradebook, records[enrollment.ID], enrollment.ID); err != nil {
			return nil, err
		}
	}
	recommended := ComputeFinalGrade(gradebook.Periods, postedPeriodGrades(records[enrollment.ID]))

	record := buildFinalGrade(existing, enrollment.ID, value, recommended, req.CreditedUnits, post)
	if err := s.grades.Upsert(ctx, record); err != nil {
		if errors.Is(err, repository.ErrPostedRecord) {
			return nil, ensureMutable(models.PostingStatePosted, models.GradeScopeFinal, enrollment.ID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save final grade")
	}
	s.observe(record)
	return record, nil
}

// checkPeriodsPosted enforces GRADES_REQUIRE_POSTED_PERIODS when enabled.
func (s *FinalGradeService) checkPeriodsPosted(gradebook *models.Gradebook, records map[string]models.GradingPeriodGrade, enrollmentID string) error {
	if !s.opts.RequirePostedPeriods {
		return nil
	}
	for _, period := range gradebook.Periods {
		if record, ok := records[period.ID]; !ok || !record.IsPosted {
			return appErrors.Clone(appErrors.ErrPreconditionFailed,
				fmt.Sprintf("period %q must be posted before the final grade of enrollment %s", period.Title, enrollmentID))
		}
	}
	return nil
}

func buildFinalGrade(existing *models.FinalGrade, enrollmentID string, value, recommended float64, units *int, post bool) *models.FinalGrade {
	record := &models.FinalGrade{
		EnrollmentID:     enrollmentID,
		Grade:            RoundGrade(value),
		RecommendedGrade: recommended,
		IsOverridden:     isOverride(value, recommended),
		IsPosted:         post,
	}
	if existing != nil {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		record.CreditedUnits = existing.CreditedUnits
	}
	if units != nil {
		record.CreditedUnits = *units
	}
	return record
}

func (s *FinalGradeService) observe(record *models.FinalGrade) {
	if record.IsOverridden {
		s.metrics.RecordGradeOverride(models.GradeScopeFinal)
	}
	if record.IsPosted {
		s.metrics.RecordGradePosted(models.GradeScopeFinal)
	}
	s.logger.Info("final grade saved",
		zap.String("enrollment_id", record.EnrollmentID),
		zap.Float64("grade", record.Grade),
		zap.Float64("recommended_grade", record.RecommendedGrade),
		zap.Bool("overridden", record.IsOverridden),
		zap.Bool("posted", record.IsPosted))
}

// SyncRows returns the final grade grid of a section.
func (s *FinalGradeService) SyncRows(ctx context.Context, sectionID string) ([]dto.FinalGradeRow, error) {
	roster, err := loadSectionRoster(ctx, s.gradebooks, s.enrollments, sectionID)
	if err != nil {
		return nil, err
	}
	ids := roster.enrollmentIDs()
	periodRecords, err := s.periodRecords(ctx, ids)
	if err != nil {
		return nil, err
	}
	stored, err := s.grades.FetchByEnrollments(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load final grades")
	}

	rows := make([]dto.FinalGradeRow, 0, len(ids))
	for _, enrollment := range roster.enrollments {
		row := dto.FinalGradeRow{
			EnrollmentID: enrollment.ID,
			StudentName:  enrollment.StudentName,
			StudentNo:    enrollment.StudentNo,
		}
		if record, ok := stored[enrollment.ID]; ok {
			id := record.ID
			row.ID = &id
			row.Grade = record.Grade
			row.RecommendedGrade = record.RecommendedGrade
			row.CreditedUnits = record.CreditedUnits
			row.IsOverridden = record.IsOverridden
			row.IsPosted = record.IsPosted
			row.State = StateOf(true, record.IsPosted)
		} else {
			recommended := ComputeFinalGrade(roster.gradebook.Periods, postedPeriodGrades(periodRecords[enrollment.ID]))
			row.Grade = recommended
			row.RecommendedGrade = recommended
			row.State = models.PostingStateUngraded
		}
		row.IsPassed = s.IsPassed(row.Grade)
		rows = append(rows, row)
	}
	return rows, nil
}

// SaveBatch saves or posts many final grades of a section in one transaction.
func (s *FinalGradeService) SaveBatch(ctx context.Context, sectionID string, req dto.FinalGradeSyncRequest) ([]models.FinalGrade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid final grade payload")
	}
	roster, err := loadSectionRoster(ctx, s.gradebooks, s.enrollments, sectionID)
	if err != nil {
		return nil, err
	}
	ids := roster.enrollmentIDs()
	periodRecords, err := s.periodRecords(ctx, ids)
	if err != nil {
		return nil, err
	}
	stored, err := s.grades.FetchByEnrollments(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load final grades")
	}

	batch := &batchCollector{}
	records := make([]models.FinalGrade, 0, len(req.Grades))
	for i, input := range req.Grades {
		if _, ok := roster.byID[input.EnrollmentID]; !ok {
			batch.fail(i, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("enrollment %s is not gradable in this section", input.EnrollmentID)))
			continue
		}
		if err := validateGradeValue(*input.Grade); err != nil {
			batch.fail(i, err)
			continue
		}
		var existing *models.FinalGrade
		if record, ok := stored[input.EnrollmentID]; ok {
			existing = &record
		}
		if err := ensureMutable(StateOf(existing != nil, existing != nil && existing.IsPosted), models.GradeScopeFinal, input.EnrollmentID); err != nil {
			batch.fail(i, err)
			continue
		}
		if input.Post {
			if err := s.checkPeriodsPosted(roster.gradebook, periodRecords[input.EnrollmentID], input.EnrollmentID); err != nil {
				batch.fail(i, err)
				continue
			}
		}
		recommended := ComputeFinalGrade(roster.gradebook.Periods, postedPeriodGrades(periodRecords[input.EnrollmentID]))
		records = append(records, *buildFinalGrade(existing, input.EnrollmentID, *input.Grade, recommended, input.CreditedUnits, input.Post))
	}
	if err := batch.err("final grade batch"); err != nil {
		return nil, err
	}

	if err := s.grades.BulkUpsert(ctx, records); err != nil {
		if errors.Is(err, repository.ErrPostedRecord) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyPosted, "a final grade in the batch was posted concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save final grades")
	}
	for i := range records {
		s.observe(&records[i])
	}
	return records, nil
}
