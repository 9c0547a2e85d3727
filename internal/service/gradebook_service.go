package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type gradebookStore interface {
	FindByID(ctx context.Context, id string) (*models.Gradebook, error)
	FindBySection(ctx context.Context, sectionID string) (*models.Gradebook, error)
	ExistsForSection(ctx context.Context, sectionID string) (bool, error)
	CreateTree(ctx context.Context, gradebook *models.Gradebook) error

	FindPeriod(ctx context.Context, id string) (*models.GradingPeriod, error)
	CreatePeriod(ctx context.Context, period *models.GradingPeriod) error
	UpdatePeriod(ctx context.Context, period *models.GradingPeriod) error
	DeletePeriod(ctx context.Context, id string) error
	HasPostedGrades(ctx context.Context, periodID string) (bool, error)

	FindItem(ctx context.Context, id string) (*models.GradebookItem, string, error)
	CreateItem(ctx context.Context, item *models.GradebookItem) error
	UpdateItem(ctx context.Context, item *models.GradebookItem) error
	DeleteItem(ctx context.Context, id string) error

	FindDetail(ctx context.Context, id string) (*models.GradebookItemDetail, string, error)
	CreateDetail(ctx context.Context, detail *models.GradebookItemDetail) error
	UpdateDetail(ctx context.Context, detail *models.GradebookItemDetail) error
	DeleteDetail(ctx context.Context, id string) error
}

// GradebookService manages the gradebook weight tree.
type GradebookService struct {
	store     gradebookStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradebookService constructs GradebookService. cache may be nil.
func NewGradebookService(store gradebookStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *GradebookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradebookService{store: store, cache: cache, validator: validate, logger: logger}
}

// GetTree returns a gradebook with its full tree.
func (s *GradebookService) GetTree(ctx context.Context, id string) (*models.Gradebook, error) {
	gradebook, _, err := s.TreeWithCacheStatus(ctx, id)
	return gradebook, err
}

// TreeWithCacheStatus returns the tree and whether it was served from cache.
func (s *GradebookService) TreeWithCacheStatus(ctx context.Context, id string) (*models.Gradebook, bool, error) {
	key := GradebookCacheKey(id)
	var cached models.Gradebook
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}
	gradebook, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, false, notFoundOr(err, "gradebook not found", "failed to load gradebook")
	}
	_ = s.cache.Set(ctx, key, gradebook, 0)
	return gradebook, false, nil
}

// GetBySection returns the gradebook attached to a section.
func (s *GradebookService) GetBySection(ctx context.Context, sectionID string) (*models.Gradebook, error) {
	gradebook, err := s.store.FindBySection(ctx, sectionID)
	if err != nil {
		return nil, notFoundOr(err, "section has no gradebook", "failed to load section gradebook")
	}
	return gradebook, nil
}

// WeightReport returns the advisory weight completeness report.
func (s *GradebookService) WeightReport(ctx context.Context, id string) (*models.WeightReport, error) {
	gradebook, err := s.GetTree(ctx, id)
	if err != nil {
		return nil, err
	}
	report := ValidateWeights(*gradebook)
	if !report.Complete {
		s.logger.Debug("gradebook weights need adjustment", zap.String("gradebook_id", id))
	}
	return &report, nil
}

// GenerateFromTemplate copies a template gradebook into a section.
func (s *GradebookService) GenerateFromTemplate(ctx context.Context, templateID, sectionID string) (*models.Gradebook, error) {
	template, err := s.store.FindByID(ctx, templateID)
	if err != nil {
		return nil, notFoundOr(err, "template gradebook not found", "failed to load template gradebook")
	}
	if !template.IsTemplate {
		return nil, appErrors.Clone(appErrors.ErrValidation, "gradebook is not a template")
	}
	exists, err := s.store.ExistsForSection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check section gradebook")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "section already has a gradebook")
	}

	copied := *template
	copied.IsTemplate = false
	copied.SectionID = &sectionID
	copied.Periods = copyPeriods(template.Periods)
	if err := s.store.CreateTree(ctx, &copied); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate gradebook")
	}
	s.logger.Info("gradebook generated from template",
		zap.String("template_id", templateID),
		zap.String("section_id", sectionID),
		zap.String("gradebook_id", copied.ID))
	return &copied, nil
}

// copyPeriods deep-copies the tree so CreateTree can assign IDs without touching the source.
func copyPeriods(periods []models.GradingPeriod) []models.GradingPeriod {
	out := make([]models.GradingPeriod, len(periods))
	for i, period := range periods {
		out[i] = period
		out[i].Items = make([]models.GradebookItem, len(period.Items))
		for j, item := range period.Items {
			out[i].Items[j] = item
			out[i].Items[j].Details = append([]models.GradebookItemDetail(nil), item.Details...)
		}
	}
	return out
}

// CreatePeriod adds a grading period.
func (s *GradebookService) CreatePeriod(ctx context.Context, req dto.CreatePeriodRequest) (*models.GradingPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading period payload")
	}
	if _, err := s.store.FindByID(ctx, req.GradebookID); err != nil {
		return nil, notFoundOr(err, "gradebook not found", "failed to load gradebook")
	}
	period := &models.GradingPeriod{GradebookID: req.GradebookID, Title: req.Title, Weight: req.Weight}
	if err := s.store.CreatePeriod(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grading period")
	}
	s.cache.InvalidateGradebook(ctx, period.GradebookID)
	return period, nil
}

// UpdatePeriod changes a grading period.
func (s *GradebookService) UpdatePeriod(ctx context.Context, id string, req dto.UpdateNodeRequest) (*models.GradingPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading period payload")
	}
	period, err := s.store.FindPeriod(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "grading period not found", "failed to load grading period")
	}
	period.Title = req.Title
	period.Weight = req.Weight
	if err := s.store.UpdatePeriod(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grading period")
	}
	s.cache.InvalidateGradebook(ctx, period.GradebookID)
	return period, nil
}

// DeletePeriod removes a grading period and its subtree.
func (s *GradebookService) DeletePeriod(ctx context.Context, id string) error {
	period, err := s.store.FindPeriod(ctx, id)
	if err != nil {
		return notFoundOr(err, "grading period not found", "failed to load grading period")
	}
	if err := s.ensureNoPostedGrades(ctx, period.ID); err != nil {
		return err
	}
	if err := s.store.DeletePeriod(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grading period")
	}
	s.cache.InvalidateGradebook(ctx, period.GradebookID)
	return nil
}

// CreateItem adds an item to a grading period.
func (s *GradebookService) CreateItem(ctx context.Context, req dto.CreateItemRequest) (*models.GradebookItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid gradebook item payload")
	}
	period, err := s.store.FindPeriod(ctx, req.GradingPeriodID)
	if err != nil {
		return nil, notFoundOr(err, "grading period not found", "failed to load grading period")
	}
	item := &models.GradebookItem{GradingPeriodID: period.ID, Title: req.Title, Weight: req.Weight}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create gradebook item")
	}
	s.cache.InvalidateGradebook(ctx, period.GradebookID)
	return item, nil
}

// UpdateItem changes an item.
func (s *GradebookService) UpdateItem(ctx context.Context, id string, req dto.UpdateNodeRequest) (*models.GradebookItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid gradebook item payload")
	}
	item, gradebookID, err := s.store.FindItem(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "gradebook item not found", "failed to load gradebook item")
	}
	item.Title = req.Title
	item.Weight = req.Weight
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update gradebook item")
	}
	s.cache.InvalidateGradebook(ctx, gradebookID)
	return item, nil
}

// DeleteItem removes an item and its details.
func (s *GradebookService) DeleteItem(ctx context.Context, id string) error {
	item, gradebookID, err := s.store.FindItem(ctx, id)
	if err != nil {
		return notFoundOr(err, "gradebook item not found", "failed to load gradebook item")
	}
	if err := s.ensureNoPostedGrades(ctx, item.GradingPeriodID); err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete gradebook item")
	}
	s.cache.InvalidateGradebook(ctx, gradebookID)
	return nil
}

// CreateDetail adds a scored detail to an item.
func (s *GradebookService) CreateDetail(ctx context.Context, req dto.CreateDetailRequest) (*models.GradebookItemDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid item detail payload")
	}
	item, gradebookID, err := s.store.FindItem(ctx, req.GradebookItemID)
	if err != nil {
		return nil, notFoundOr(err, "gradebook item not found", "failed to load gradebook item")
	}
	detail := &models.GradebookItemDetail{
		ItemID:   item.ID,
		Title:    req.Title,
		Weight:   req.Weight,
		MinScore: req.MinScore,
		MaxScore: req.MaxScore,
	}
	if err := s.store.CreateDetail(ctx, detail); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create item detail")
	}
	s.cache.InvalidateGradebook(ctx, gradebookID)
	return detail, nil
}

// UpdateDetail changes a detail. Existing scores are not re-checked against a new range.
func (s *GradebookService) UpdateDetail(ctx context.Context, id string, req dto.UpdateDetailRequest) (*models.GradebookItemDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid item detail payload")
	}
	detail, gradebookID, err := s.store.FindDetail(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "item detail not found", "failed to load item detail")
	}
	detail.Title = req.Title
	detail.Weight = req.Weight
	detail.MinScore = req.MinScore
	detail.MaxScore = req.MaxScore
	if err := s.store.UpdateDetail(ctx, detail); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update item detail")
	}
	s.cache.InvalidateGradebook(ctx, gradebookID)
	return detail, nil
}

// DeleteDetail removes a detail and its scores.
func (s *GradebookService) DeleteDetail(ctx context.Context, id string) error {
	detail, gradebookID, err := s.store.FindDetail(ctx, id)
	if err != nil {
		return notFoundOr(err, "item detail not found", "failed to load item detail")
	}
	item, _, err := s.store.FindItem(ctx, detail.ItemID)
	if err != nil {
		return notFoundOr(err, "gradebook item not found", "failed to load gradebook item")
	}
	if err := s.ensureNoPostedGrades(ctx, item.GradingPeriodID); err != nil {
		return err
	}
	if err := s.store.DeleteDetail(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete item detail")
	}
	s.cache.InvalidateGradebook(ctx, gradebookID)
	return nil
}

// ensureNoPostedGrades blocks removing tree nodes whose deletion would cascade into posted grades.
func (s *GradebookService) ensureNoPostedGrades(ctx context.Context, periodID string) error {
	posted, err := s.store.HasPostedGrades(ctx, periodID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check posted grades")
	}
	if posted {
		return appErrors.Clone(appErrors.ErrAlreadyPosted, "grading period has posted grades and cannot lose its items")
	}
	return nil
}

// notFoundOr maps sql.ErrNoRows to a not found error and anything else to an internal error.
func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
