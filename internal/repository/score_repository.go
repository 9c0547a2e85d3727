package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ScoreRepository persists gradebook scores.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository creates a score repository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// inClause renders $n placeholders for ids starting after offset existing args.
func inClause(ids []string, offset int) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", offset+i+1)
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

// FetchByEnrollments returns scores keyed by enrollment ID then detail ID.
func (r *ScoreRepository) FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]map[string]models.GradebookScore, error) {
	result := make(map[string]map[string]models.GradebookScore, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return result, nil
	}
	clause, args := inClause(enrollmentIDs, 0)
	query := fmt.Sprintf(`SELECT id, gradebook_item_detail_id, enrollment_id, score, created_at, updated_at
        FROM gradebook_scores WHERE enrollment_id IN (%s)`, clause)
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch scores: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var score models.GradebookScore
		if err := rows.StructScan(&score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		if result[score.EnrollmentID] == nil {
			result[score.EnrollmentID] = make(map[string]models.GradebookScore)
		}
		result[score.EnrollmentID][score.DetailID] = score
	}
	return result, rows.Err()
}

// BulkUpsert writes all scores in a single transaction.
func (r *ScoreRepository) BulkUpsert(ctx context.Context, scores []models.GradebookScore) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const query = `INSERT INTO gradebook_scores (id, gradebook_item_detail_id, enrollment_id, score, created_at, updated_at)
        VALUES (:id, :gradebook_item_detail_id, :enrollment_id, :score, :created_at, :updated_at)
        ON CONFLICT (gradebook_item_detail_id, enrollment_id)
        DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range scores {
		if scores[i].ID == "" {
			scores[i].ID = uuid.NewString()
		}
		if scores[i].CreatedAt.IsZero() {
			scores[i].CreatedAt = now
		}
		scores[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, scores[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("upsert score: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scores: %w", err)
	}
	return nil
}
