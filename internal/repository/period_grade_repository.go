package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ErrPostedRecord is returned when an upsert targets a row that is already posted.
var ErrPostedRecord = errors.New("grade record already posted")

// PeriodGradeRepository persists grading period grades.
type PeriodGradeRepository struct {
	db *sqlx.DB
}

// NewPeriodGradeRepository creates a period grade repository.
func NewPeriodGradeRepository(db *sqlx.DB) *PeriodGradeRepository {
	return &PeriodGradeRepository{db: db}
}

const periodGradeColumns = `id, grading_period_id, enrollment_id, grade, recommended_grade, is_overridden, is_posted, created_at, updated_at`

// Find returns the grade of an enrollment for a period.
func (r *PeriodGradeRepository) Find(ctx context.Context, enrollmentID, periodID string) (*models.GradingPeriodGrade, error) {
	var grade models.GradingPeriodGrade
	query := `SELECT ` + periodGradeColumns + ` FROM grading_period_grades WHERE enrollment_id = $1 AND grading_period_id = $2`
	if err := r.db.GetContext(ctx, &grade, query, enrollmentID, periodID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// FetchByEnrollments returns period grades keyed by enrollment ID then period ID.
func (r *PeriodGradeRepository) FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]map[string]models.GradingPeriodGrade, error) {
	result := make(map[string]map[string]models.GradingPeriodGrade, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return result, nil
	}
	clause, args := inClause(enrollmentIDs, 0)
	query := fmt.Sprintf(`SELECT `+periodGradeColumns+` FROM grading_period_grades WHERE enrollment_id IN (%s)`, clause)
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch period grades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var grade models.GradingPeriodGrade
		if err := rows.StructScan(&grade); err != nil {
			return nil, fmt.Errorf("scan period grade: %w", err)
		}
		if result[grade.EnrollmentID] == nil {
			result[grade.EnrollmentID] = make(map[string]models.GradingPeriodGrade)
		}
		result[grade.EnrollmentID][grade.GradingPeriodID] = grade
	}
	return result, rows.Err()
}

// The conflict branch only fires for unposted rows, so a posted grade is never overwritten
// even when two writers race past the service-level check.
const upsertPeriodGradeQuery = `INSERT INTO grading_period_grades (` + periodGradeColumns + `)
        VALUES (:id, :grading_period_id, :enrollment_id, :grade, :recommended_grade, :is_overridden, :is_posted, :created_at, :updated_at)
        ON CONFLICT (grading_period_id, enrollment_id)
        DO UPDATE SET grade = EXCLUDED.grade, recommended_grade = EXCLUDED.recommended_grade,
            is_overridden = EXCLUDED.is_overridden, is_posted = EXCLUDED.is_posted, updated_at = EXCLUDED.updated_at
        WHERE grading_period_grades.is_posted = FALSE`

// Upsert inserts or updates a period grade. It returns ErrPostedRecord when the stored row is posted.
func (r *PeriodGradeRepository) Upsert(ctx context.Context, grade *models.GradingPeriodGrade) error {
	return upsertPeriodGrade(ctx, r.db, grade)
}

// BulkUpsert writes all period grades in one transaction; any posted row aborts the batch.
func (r *PeriodGradeRepository) BulkUpsert(ctx context.Context, grades []models.GradingPeriodGrade) error {
	if len(grades) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for i := range grades {
		if err := upsertPeriodGrade(ctx, tx, &grades[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit period grades: %w", err)
	}
	return nil
}

func upsertPeriodGrade(ctx context.Context, exec sqlx.ExtContext, grade *models.GradingPeriodGrade) error {
	stampRecord(&grade.ID, &grade.CreatedAt, &grade.UpdatedAt)
	res, err := sqlx.NamedExecContext(ctx, exec, upsertPeriodGradeQuery, grade)
	if err != nil {
		return fmt.Errorf("upsert period grade: %w", err)
	}
	return checkWritten(res)
}

func stampRecord(id *string, createdAt, updatedAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}

func checkWritten(res rowsAffecter) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPostedRecord
	}
	return nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}
