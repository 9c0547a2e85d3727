package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// FinalGradeRepository persists final course grades.
type FinalGradeRepository struct {
	db *sqlx.DB
}

// NewFinalGradeRepository creates a final grade repository.
func NewFinalGradeRepository(db *sqlx.DB) *FinalGradeRepository {
	return &FinalGradeRepository{db: db}
}

const finalGradeColumns = `id, enrollment_id, grade, recommended_grade, credited_units, is_overridden, is_posted, created_at, updated_at`

// FindByEnrollment returns the final grade of an enrollment.
func (r *FinalGradeRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.FinalGrade, error) {
	var grade models.FinalGrade
	if err := r.db.GetContext(ctx, &grade, `SELECT `+finalGradeColumns+` FROM final_grades WHERE enrollment_id = $1`, enrollmentID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// FetchByEnrollments returns final grades keyed by enrollment ID.
func (r *FinalGradeRepository) FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]models.FinalGrade, error) {
	result := make(map[string]models.FinalGrade, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return result, nil
	}
	clause, args := inClause(enrollmentIDs, 0)
	query := fmt.Sprintf(`SELECT `+finalGradeColumns+` FROM final_grades WHERE enrollment_id IN (%s)`, clause)
	var grades []models.FinalGrade
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, fmt.Errorf("fetch final grades: %w", err)
	}
	for _, grade := range grades {
		result[grade.EnrollmentID] = grade
	}
	return result, nil
}

const upsertFinalGradeQuery = `INSERT INTO final_grades (` + finalGradeColumns + `)
        VALUES (:id, :enrollment_id, :grade, :recommended_grade, :credited_units, :is_overridden, :is_posted, :created_at, :updated_at)
        ON CONFLICT (enrollment_id)
        DO UPDATE SET grade = EXCLUDED.grade, recommended_grade = EXCLUDED.recommended_grade, credited_units = EXCLUDED.credited_units,
            is_overridden = EXCLUDED.is_overridden, is_posted = EXCLUDED.is_posted, updated_at = EXCLUDED.updated_at
        WHERE final_grades.is_posted = FALSE`

// Upsert inserts or updates a final grade. It returns ErrPostedRecord when the stored row is posted.
func (r *FinalGradeRepository) Upsert(ctx context.Context, grade *models.FinalGrade) error {
	return upsertFinalGrade(ctx, r.db, grade)
}

// BulkUpsert writes all final grades in one transaction; any posted row aborts the batch.
func (r *FinalGradeRepository) BulkUpsert(ctx context.Context, grades []models.FinalGrade) error {
	if len(grades) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for i := range grades {
		if err := upsertFinalGrade(ctx, tx, &grades[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit final grades: %w", err)
	}
	return nil
}

func upsertFinalGrade(ctx context.Context, exec sqlx.ExtContext, grade *models.FinalGrade) error {
	stampRecord(&grade.ID, &grade.CreatedAt, &grade.UpdatedAt)
	res, err := sqlx.NamedExecContext(ctx, exec, upsertFinalGradeQuery, grade)
	if err != nil {
		return fmt.Errorf("upsert final grade: %w", err)
	}
	return checkWritten(res)
}
