package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type scoreStore interface {
	FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]map[string]models.GradebookScore, error)
	BulkUpsert(ctx context.Context, scores []models.GradebookScore) error
}

type periodGradeFetcher interface {
	FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]map[string]models.GradingPeriodGrade, error)
}

// ScoreService handles score entry for a section gradebook.
type ScoreService struct {
	gradebooks   sectionGradebookReader
	enrollments  rosterReader
	scores       scoreStore
	periodGrades periodGradeFetcher
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewScoreService constructs ScoreService.
func NewScoreService(gradebooks sectionGradebookReader, enrollments rosterReader, scores scoreStore, periodGrades periodGradeFetcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ScoreService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreService{
		gradebooks:   gradebooks,
		enrollments:  enrollments,
		scores:       scores,
		periodGrades: periodGrades,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
	}
}

// SyncRows returns one row per enrollment and detail, filling unsaved cells with zero.
func (s *ScoreService) SyncRows(ctx context.Context, sectionID string) ([]dto.ScoreRow, error) {
	roster, err := loadSectionRoster(ctx, s.gradebooks, s.enrollments, sectionID)
	if err != nil {
		return nil, err
	}
	existing, err := s.scores.FetchByEnrollments(ctx, roster.enrollmentIDs())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scores")
	}

	rows := make([]dto.ScoreRow, 0)
	for _, enrollment := range roster.enrollments {
		for _, period := range roster.gradebook.Periods {
			for _, item := range period.Items {
				for _, detail := range item.Details {
					row := dto.ScoreRow{
						EnrollmentID:    enrollment.ID,
						StudentName:     enrollment.StudentName,
						StudentNo:       enrollment.StudentNo,
						GradingPeriodID: period.ID,
						ItemID:          item.ID,
						DetailID:        detail.ID,
						DetailTitle:     detail.Title,
						MinScore:        detail.MinScore,
						MaxScore:        detail.MaxScore,
					}
					if score, ok := existing[enrollment.ID][detail.ID]; ok {
						id := score.ID
						row.ID = &id
						row.Score = score.Score
					}
					rows = append(rows, row)
				}
			}
		}
	}
	return rows, nil
}

// SaveScores validates every entry and writes them all in one transaction. A single
// invalid entry rejects the whole batch with the index of every failure.
func (s *ScoreService) SaveScores(ctx context.Context, sectionID string, req dto.ScoreSyncRequest) ([]models.GradebookScore, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}
	roster, err := loadSectionRoster(ctx, s.gradebooks, s.enrollments, sectionID)
	if err != nil {
		return nil, err
	}
	ids := roster.enrollmentIDs()
	existing, err := s.scores.FetchByEnrollments(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scores")
	}
	periodGrades, err := s.periodGrades.FetchByEnrollments(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period grades")
	}

	details := roster.gradebook.DetailIndex()
	batch := &batchCollector{}
	scores := make([]models.GradebookScore, 0, len(req.Scores))
	for i, input := range req.Scores {
		ref, ok := details[input.DetailID]
		if !ok {
			batch.fail(i, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("detail %s is not part of this section's gradebook", input.DetailID)))
			continue
		}
		if _, ok := roster.byID[input.EnrollmentID]; !ok {
			batch.fail(i, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("enrollment %s is not gradable in this section", input.EnrollmentID)))
			continue
		}
		if err := validateScore(ref.Detail, *input.Score); err != nil {
			batch.fail(i, err)
			continue
		}
		grade, persisted := periodGrades[input.EnrollmentID][ref.PeriodID]
		if err := ensureMutable(StateOf(persisted, grade.IsPosted), models.GradeScopePeriod, input.EnrollmentID); err != nil {
			batch.fail(i, err)
			continue
		}
		score := models.GradebookScore{
			DetailID:     input.DetailID,
			EnrollmentID: input.EnrollmentID,
			Score:        *input.Score,
		}
		if current, ok := existing[input.EnrollmentID][input.DetailID]; ok {
			score.ID = current.ID
			score.CreatedAt = current.CreatedAt
		}
		scores = append(scores, score)
	}
	if err := batch.err("score batch"); err != nil {
		return nil, err
	}

	if err := s.scores.BulkUpsert(ctx, scores); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save scores")
	}
	s.metrics.RecordScoresSaved(len(scores))
	s.logger.Info("scores saved", zap.String("section_id", sectionID), zap.Int("count", len(scores)))
	return scores, nil
}
