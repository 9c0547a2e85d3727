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

type periodGradeStore interface {
	Find(ctx context.Context, enrollmentID, periodID string) (*models.GradingPeriodGrade, error)
	FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]map[string]models.GradingPeriodGrade, error)
	Upsert(ctx context.Context, grade *models.GradingPeriodGrade) error
	BulkUpsert(ctx context.Context, grades []models.GradingPeriodGrade) error
}

type scoreFetcher interface {
	FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]map[string]models.GradebookScore, error)
}

// PeriodGradeService implements the save and post workflow for grading period grades.
type PeriodGradeService struct {
	gradebooks  sectionGradebookReader
	enrollments rosterReader
	scores      scoreFetcher
	grades      periodGradeStore
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPeriodGradeService constructs PeriodGradeService.
func NewPeriodGradeService(gradebooks sectionGradebookReader, enrollments rosterReader, scores scoreFetcher, grades periodGradeStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PeriodGradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodGradeService{
		gradebooks:  gradebooks,
		enrollments: enrollments,
		scores:      scores,
		grades:      grades,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

type periodTarget struct {
	enrollment *models.Enrollment
	period     models.GradingPeriod
}

func (s *PeriodGradeService) target(ctx context.Context, enrollmentID, periodID string) (*periodTarget, error) {
	enrollment, gradebook, err := loadGradableEnrollment(ctx, s.gradebooks, s.enrollments, enrollmentID)
	if err != nil {
		return nil, err
	}
	period, ok := gradebook.Period(periodID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "grading period not found in section gradebook")
	}
	return &periodTarget{enrollment: enrollment, period: period}, nil
}

func (s *PeriodGradeService) scoresFor(ctx context.Context, enrollmentIDs []string) (map[string]map[string]float64, error) {
	stored, err := s.scores.FetchByEnrollments(ctx, enrollmentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scores")
	}
	out := make(map[string]map[string]float64, len(stored))
	for enrollmentID, byDetail := range stored {
		values := make(map[string]float64, len(byDetail))
		for detailID, score := range byDetail {
			values[detailID] = score.Score
		}
		out[enrollmentID] = values
	}
	return out, nil
}

// Recommended computes the live period grade from current scores.
func (s *PeriodGradeService) Recommended(ctx context.Context, enrollmentID, periodID string) (float64, error) {
	target, err := s.target(ctx, enrollmentID, periodID)
	if err != nil {
		return 0, err
	}
	return s.recommend(ctx, target)
}

func (s *PeriodGradeService) recommend(ctx context.Context, target *periodTarget) (float64, error) {
	scores, err := s.scoresFor(ctx, []string{target.enrollment.ID})
	if err != nil {
		return 0, err
	}
	return ComputePeriodGrade(target.period, scores[target.enrollment.ID]), nil
}

// DisplayGrade returns the stored grade when a record exists and only otherwise the live computation.
func (s *PeriodGradeService) DisplayGrade(ctx context.Context, enrollmentID, periodID string) (*dto.DisplayGrade, error) {
	target, err := s.target(ctx, enrollmentID, periodID)
	if err != nil {
		return nil, err
	}
	stored, err := s.findRecord(ctx, enrollmentID, periodID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return &dto.DisplayGrade{
			EnrollmentID:     enrollmentID,
			GradingPeriodID:  periodID,
			Grade:            stored.Grade,
			RecommendedGrade: stored.RecommendedGrade,
			IsOverridden:     stored.IsOverridden,
			IsPosted:         stored.IsPosted,
			State:            StateOf(true, stored.IsPosted),
		}, nil
	}
	recommended, err := s.recommend(ctx, target)
	if err != nil {
		return nil, err
	}
	return &dto.DisplayGrade{
		EnrollmentID:     enrollmentID,
		GradingPeriodID:  periodID,
		Grade:            recommended,
		RecommendedGrade: recommended,
		State:            models.PostingStateUngraded,
		Computed:         true,
	}, nil
}

func (s *PeriodGradeService) findRecord(ctx context.Context, enrollmentID, periodID string) (*models.GradingPeriodGrade, error) {
	record, err := s.grades.Find(ctx, enrollmentID, periodID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period grade")
	}
	return record, nil
}

// Save stores a period grade, creating the record on first save.
func (s *PeriodGradeService) Save(ctx context.Context, enrollmentID, periodID string, value float64) (*models.GradingPeriodGrade, error) {
	return s.write(ctx, enrollmentID, periodID, value, false)
}

// Post stores a period grade and locks it.
func (s *PeriodGradeService) Post(ctx context.Context, enrollmentID, periodID string, value float64) (*models.GradingPeriodGrade, error) {
	return s.write(ctx, enrollmentID, periodID, value, true)
}

func (s *PeriodGradeService) write(ctx context.Context, enrollmentID, periodID string, value float64, post bool) (*models.GradingPeriodGrade, error) {
	if err := validateGradeValue(value); err != nil {
		return nil, err
	}
	target, err := s.target(ctx, enrollmentID, periodID)
	if err != nil {
		return nil, err
	}
	existing, err := s.findRecord(ctx, enrollmentID, periodID)
	if err != nil {
		return nil, err
	}
	if err := ensureMutable(StateOf(existing != nil, existing != nil && existing.IsPosted), models.GradeScopePeriod, enrollmentID); err != nil {
		return nil, err
	}
	recommended, err := s.recommend(ctx, target)
	if err != nil {
		return nil, err
	}

	record := buildPeriodGrade(existing, enrollmentID, periodID, value, recommended, post)
	if err := s.grades.Upsert(ctx, record); err != nil {
		if errors.Is(err, repository.ErrPostedRecord) {
			return nil, ensureMutable(models.PostingStatePosted, models.GradeScopePeriod, enrollmentID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save period grade")
	}
	s.observe(record)
	return record, nil
}

func buildPeriodGrade(existing *models.GradingPeriodGrade, enrollmentID, periodID string, value, recommended float64, post bool) *models.GradingPeriodGrade {
	record := &models.GradingPeriodGrade{
		GradingPeriodID:  periodID,
		EnrollmentID:     enrollmentID,
		Grade:            RoundGrade(value),
		RecommendedGrade: recommended,
		IsOverridden:     isOverride(value, recommended),
		IsPosted:         post,
	}
	if existing != nil {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}
	return record
}

func (s *PeriodGradeService) observe(record *models.GradingPeriodGrade) {
	if record.IsOverridden {
		s.metrics.RecordGradeOverride(models.GradeScopePeriod)
	}
	if record.IsPosted {
		s.metrics.RecordGradePosted(models.GradeScopePeriod)
	}
	s.logger.Info("period grade saved",
		zap.String("enrollment_id", record.EnrollmentID),
		zap.String("grading_period_id", record.GradingPeriodID),
		zap.Float64("grade", record.Grade),
		zap.Float64("recommended_grade", record.RecommendedGrade),
		zap.Bool("overridden", record.IsOverridden),
		zap.Bool("posted", record.IsPosted))
}

// SyncRows returns the period grade grid of a section.
func (s *PeriodGradeService) SyncRows(ctx context.Context, sectionID string) ([]dto.PeriodGradeRow, error) {
	roster, err := loadSectionRoster(ctx, s.gradebooks, s.enrollments, sectionID)
	if err != nil {
		return nil, err
	}
	ids := roster.enrollmentIDs()
	scores, err := s.scoresFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	stored, err := s.grades.FetchByEnrollments(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period grades")
	}

	rows := make([]dto.PeriodGradeRow, 0, len(ids)*len(roster.gradebook.Periods))
	for _, enrollment := range roster.enrollments {
		for _, period := range roster.gradebook.Periods {
			row := dto.PeriodGradeRow{
				EnrollmentID:    enrollment.ID,
				StudentName:     enrollment.StudentName,
				StudentNo:       enrollment.StudentNo,
				GradingPeriodID: period.ID,
				PeriodTitle:     period.Title,
			}
			if record, ok := stored[enrollment.ID][period.ID]; ok {
				id := record.ID
				row.ID = &id
				row.Grade = record.Grade
				row.RecommendedGrade = record.RecommendedGrade
				row.IsOverridden = record.IsOverridden
				row.IsPosted = record.IsPosted
				row.State = StateOf(true, record.IsPosted)
			} else {
				recommended := ComputePeriodGrade(period, scores[enrollment.ID])
				row.Grade = recommended
				row.RecommendedGrade = recommended
				row.State = models.PostingStateUngraded
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// SaveBatch saves or posts many period grades of a section in one transaction.
func (s *PeriodGradeService) SaveBatch(ctx context.Context, sectionID string, req dto.PeriodGradeSyncRequest) ([]models.GradingPeriodGrade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period grade payload")
	}
	roster, err := loadSectionRoster(ctx, s.gradebooks, s.enrollments, sectionID)
	if err != nil {
		return nil, err
	}
	ids := roster.enrollmentIDs()
	scores, err := s.scoresFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	stored, err := s.grades.FetchByEnrollments(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period grades")
	}

	batch := &batchCollector{}
	records := make([]models.GradingPeriodGrade, 0, len(req.Grades))
	for i, input := range req.Grades {
		if _, ok := roster.byID[input.EnrollmentID]; !ok {
			batch.fail(i, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("enrollment %s is not gradable in this section", input.EnrollmentID)))
			continue
		}
		period, ok := roster.gradebook.Period(input.GradingPeriodID)
		if !ok {
			batch.fail(i, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grading period %s is not part of this section's gradebook", input.GradingPeriodID)))
			continue
		}
		if err := validateGradeValue(*input.Grade); err != nil {
			batch.fail(i, err)
			continue
		}
		var existing *models.GradingPeriodGrade
		if record, ok := stored[input.EnrollmentID][period.ID]; ok {
			existing = &record
		}
		if err := ensureMutable(StateOf(existing != nil, existing != nil && existing.IsPosted), models.GradeScopePeriod, input.EnrollmentID); err != nil {
			batch.fail(i, err)
			continue
		}
		recommended := ComputePeriodGrade(period, scores[input.EnrollmentID])
		records = append(records, *buildPeriodGrade(existing, input.EnrollmentID, period.ID, *input.Grade, recommended, input.Post))
	}
	if err := batch.err("period grade batch"); err != nil {
		return nil, err
	}

	if err := s.grades.BulkUpsert(ctx, records); err != nil {
		if errors.Is(err, repository.ErrPostedRecord) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyPosted, "a period grade in the batch was posted concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save period grades")
	}
	for i := range records {
		s.observe(&records[i])
	}
	return records, nil
}
