package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type sectionGradebookReader interface {
	FindBySection(ctx context.Context, sectionID string) (*models.Gradebook, error)
}

type rosterReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListGradableBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error)
}

// sectionRoster is a section's gradebook tree plus its gradable enrollments.
type sectionRoster struct {
	gradebook   *models.Gradebook
	enrollments []models.Enrollment
	byID        map[string]models.Enrollment
}

func (r *sectionRoster) enrollmentIDs() []string {
	ids := make([]string, len(r.enrollments))
	for i, enrollment := range r.enrollments {
		ids[i] = enrollment.ID
	}
	return ids
}

func loadSectionRoster(ctx context.Context, gradebooks sectionGradebookReader, enrollments rosterReader, sectionID string) (*sectionRoster, error) {
	gradebook, err := gradebooks.FindBySection(ctx, sectionID)
	if err != nil {
		return nil, notFoundOr(err, "section has no gradebook", "failed to load section gradebook")
	}
	list, err := enrollments.ListGradableBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section enrollments")
	}
	byID := make(map[string]models.Enrollment, len(list))
	for _, enrollment := range list {
		byID[enrollment.ID] = enrollment
	}
	return &sectionRoster{gradebook: gradebook, enrollments: list, byID: byID}, nil
}

// loadGradableEnrollment returns an enrollment that participates in grading along with its section gradebook.
func loadGradableEnrollment(ctx context.Context, gradebooks sectionGradebookReader, enrollments rosterReader, enrollmentID string) (*models.Enrollment, *models.Gradebook, error) {
	enrollment, err := enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	if !enrollment.Status.Gradable() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("enrollment %s is not approved for grading", enrollmentID))
	}
	gradebook, err := gradebooks.FindBySection(ctx, enrollment.SectionID)
	if err != nil {
		return nil, nil, notFoundOr(err, "section has no gradebook", "failed to load section gradebook")
	}
	return enrollment, gradebook, nil
}

// batchCollector accumulates per-item failures of an all-or-nothing batch.
type batchCollector struct {
	failures []dto.BatchItemError
}

func (b *batchCollector) fail(index int, err error) {
	appErr := appErrors.FromError(err)
	b.failures = append(b.failures, dto.BatchItemError{Index: index, Code: appErr.Code, Reason: appErr.Message})
}

func (b *batchCollector) err(what string) error {
	if len(b.failures) == 0 {
		return nil
	}
	return appErrors.WithDetails(appErrors.ErrBatchRejected,
		fmt.Sprintf("%s rejected: %d invalid entries", what, len(b.failures)), b.failures)
}
