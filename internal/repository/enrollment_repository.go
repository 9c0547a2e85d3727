package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// EnrollmentRepository reads section enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentSelect = `SELECT e.id, e.student_id, e.section_id, e.status, e.enrolled_at,
        COALESCE(s.full_name, '') AS student_name, COALESCE(s.student_no, '') AS student_no
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id`

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, enrollmentSelect+` WHERE e.id = $1`, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListGradableBySection returns the approved, non-dropped enrollments of a section ordered by student name.
func (r *EnrollmentRepository) ListGradableBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	query := enrollmentSelect + ` WHERE e.section_id = $1 AND e.status IN ($2, $3) ORDER BY s.full_name, e.id`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, sectionID,
		models.EnrollmentStatusRegistrarApproved, models.EnrollmentStatusDropRequested); err != nil {
		return nil, fmt.Errorf("list section enrollments: %w", err)
	}
	return enrollments, nil
}
