package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// GradebookRepository persists the gradebook weight tree.
type GradebookRepository struct {
	db *sqlx.DB
}

// NewGradebookRepository creates a gradebook repository.
func NewGradebookRepository(db *sqlx.DB) *GradebookRepository {
	return &GradebookRepository{db: db}
}

const gradebookColumns = `id, section_id, academic_program_id, is_template, title, created_at, updated_at`

// FindByID loads a gradebook with its periods, items and details.
func (r *GradebookRepository) FindByID(ctx context.Context, id string) (*models.Gradebook, error) {
	var gradebook models.Gradebook
	if err := r.db.GetContext(ctx, &gradebook, `SELECT `+gradebookColumns+` FROM gradebooks WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := r.loadTree(ctx, &gradebook); err != nil {
		return nil, err
	}
	return &gradebook, nil
}

// FindBySection loads the gradebook attached to a section.
func (r *GradebookRepository) FindBySection(ctx context.Context, sectionID string) (*models.Gradebook, error) {
	var gradebook models.Gradebook
	if err := r.db.GetContext(ctx, &gradebook, `SELECT `+gradebookColumns+` FROM gradebooks WHERE section_id = $1 AND is_template = FALSE LIMIT 1`, sectionID); err != nil {
		return nil, err
	}
	if err := r.loadTree(ctx, &gradebook); err != nil {
		return nil, err
	}
	return &gradebook, nil
}

func (r *GradebookRepository) loadTree(ctx context.Context, gradebook *models.Gradebook) error {
	const periodsQuery = `SELECT id, gradebook_id, title, weight, created_at, updated_at
        FROM grading_periods WHERE gradebook_id = $1 ORDER BY created_at, title`
	var periods []models.GradingPeriod
	if err := r.db.SelectContext(ctx, &periods, periodsQuery, gradebook.ID); err != nil {
		return fmt.Errorf("load grading periods: %w", err)
	}

	const itemsQuery = `SELECT gi.id, gi.grading_period_id, gi.title, gi.weight, gi.created_at, gi.updated_at
        FROM gradebook_items gi
        JOIN grading_periods gp ON gp.id = gi.grading_period_id
        WHERE gp.gradebook_id = $1 ORDER BY gi.created_at, gi.title`
	var items []models.GradebookItem
	if err := r.db.SelectContext(ctx, &items, itemsQuery, gradebook.ID); err != nil {
		return fmt.Errorf("load gradebook items: %w", err)
	}

	const detailsQuery = `SELECT d.id, d.gradebook_item_id, d.title, d.weight, d.min_score, d.max_score, d.created_at, d.updated_at
        FROM gradebook_item_details d
        JOIN gradebook_items gi ON gi.id = d.gradebook_item_id
        JOIN grading_periods gp ON gp.id = gi.grading_period_id
        WHERE gp.gradebook_id = $1 ORDER BY d.created_at, d.title`
	var details []models.GradebookItemDetail
	if err := r.db.SelectContext(ctx, &details, detailsQuery, gradebook.ID); err != nil {
		return fmt.Errorf("load gradebook item details: %w", err)
	}

	gradebook.Periods = assembleTree(periods, items, details)
	return nil
}

func assembleTree(periods []models.GradingPeriod, items []models.GradebookItem, details []models.GradebookItemDetail) []models.GradingPeriod {
	detailsByItem := make(map[string][]models.GradebookItemDetail)
	for _, detail := range details {
		detailsByItem[detail.ItemID] = append(detailsByItem[detail.ItemID], detail)
	}
	itemsByPeriod := make(map[string][]models.GradebookItem)
	for _, item := range items {
		item.Details = detailsByItem[item.ID]
		itemsByPeriod[item.GradingPeriodID] = append(itemsByPeriod[item.GradingPeriodID], item)
	}
	for i := range periods {
		periods[i].Items = itemsByPeriod[periods[i].ID]
	}
	return periods
}

// ExistsForSection checks whether a section already has a gradebook.
func (r *GradebookRepository) ExistsForSection(ctx context.Context, sectionID string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM gradebooks WHERE section_id = $1 AND is_template = FALSE LIMIT 1`, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check section gradebook: %w", err)
	}
	return true, nil
}

// CreateTree inserts a gradebook and its whole tree in one transaction, assigning fresh IDs.
func (r *GradebookRepository) CreateTree(ctx context.Context, gradebook *models.Gradebook) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	gradebook.ID = uuid.NewString()
	gradebook.CreatedAt, gradebook.UpdatedAt = now, now
	const insertGradebook = `INSERT INTO gradebooks (id, section_id, academic_program_id, is_template, title, created_at, updated_at)
        VALUES (:id, :section_id, :academic_program_id, :is_template, :title, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertGradebook, gradebook); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert gradebook: %w", err)
	}
	for i := range gradebook.Periods {
		period := &gradebook.Periods[i]
		period.ID = uuid.NewString()
		period.GradebookID = gradebook.ID
		period.CreatedAt, period.UpdatedAt = now, now
		if _, err := tx.NamedExecContext(ctx, insertPeriodQuery, period); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert grading period: %w", err)
		}
		for j := range period.Items {
			item := &period.Items[j]
			item.ID = uuid.NewString()
			item.GradingPeriodID = period.ID
			item.CreatedAt, item.UpdatedAt = now, now
			if _, err := tx.NamedExecContext(ctx, insertItemQuery, item); err != nil {
				tx.Rollback() //nolint:errcheck
				return fmt.Errorf("insert gradebook item: %w", err)
			}
			for k := range item.Details {
				detail := &item.Details[k]
				detail.ID = uuid.NewString()
				detail.ItemID = item.ID
				detail.CreatedAt, detail.UpdatedAt = now, now
				if _, err := tx.NamedExecContext(ctx, insertDetailQuery, detail); err != nil {
					tx.Rollback() //nolint:errcheck
					return fmt.Errorf("insert gradebook item detail: %w", err)
				}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit gradebook: %w", err)
	}
	return nil
}

const (
	insertPeriodQuery = `INSERT INTO grading_periods (id, gradebook_id, title, weight, created_at, updated_at)
        VALUES (:id, :gradebook_id, :title, :weight, :created_at, :updated_at)`
	insertItemQuery = `INSERT INTO gradebook_items (id, grading_period_id, title, weight, created_at, updated_at)
        VALUES (:id, :grading_period_id, :title, :weight, :created_at, :updated_at)`
	insertDetailQuery = `INSERT INTO gradebook_item_details (id, gradebook_item_id, title, weight, min_score, max_score, created_at, updated_at)
        VALUES (:id, :gradebook_item_id, :title, :weight, :min_score, :max_score, :created_at, :updated_at)`
)

// FindPeriod returns a grading period without children.
func (r *GradebookRepository) FindPeriod(ctx context.Context, id string) (*models.GradingPeriod, error) {
	var period models.GradingPeriod
	if err := r.db.GetContext(ctx, &period, `SELECT id, gradebook_id, title, weight, created_at, updated_at FROM grading_periods WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// CreatePeriod inserts a grading period.
func (r *GradebookRepository) CreatePeriod(ctx context.Context, period *models.GradingPeriod) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	period.CreatedAt, period.UpdatedAt = now, now
	if _, err := r.db.NamedExecContext(ctx, insertPeriodQuery, period); err != nil {
		return fmt.Errorf("create grading period: %w", err)
	}
	return nil
}

// UpdatePeriod updates title and weight of a grading period.
func (r *GradebookRepository) UpdatePeriod(ctx context.Context, period *models.GradingPeriod) error {
	period.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grading_periods SET title = :title, weight = :weight, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("update grading period: %w", err)
	}
	return nil
}

// HasPostedGrades reports whether any enrollment has a posted grade for the period.
func (r *GradebookRepository) HasPostedGrades(ctx context.Context, periodID string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM grading_period_grades WHERE grading_period_id = $1 AND is_posted = TRUE LIMIT 1`, periodID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check posted period grades: %w", err)
	}
	return true, nil
}

// DeletePeriod removes a grading period; children cascade in the schema.
func (r *GradebookRepository) DeletePeriod(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM grading_periods WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete grading period: %w", err)
	}
	return nil
}

// FindItem returns a gradebook item along with its gradebook ID.
func (r *GradebookRepository) FindItem(ctx context.Context, id string) (*models.GradebookItem, string, error) {
	var row struct {
		models.GradebookItem
		GradebookID string `db:"gradebook_id"`
	}
	const query = `SELECT gi.id, gi.grading_period_id, gi.title, gi.weight, gi.created_at, gi.updated_at, gp.gradebook_id
        FROM gradebook_items gi JOIN grading_periods gp ON gp.id = gi.grading_period_id WHERE gi.id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, "", err
	}
	return &row.GradebookItem, row.GradebookID, nil
}

// CreateItem inserts a gradebook item.
func (r *GradebookRepository) CreateItem(ctx context.Context, item *models.GradebookItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	if _, err := r.db.NamedExecContext(ctx, insertItemQuery, item); err != nil {
		return fmt.Errorf("create gradebook item: %w", err)
	}
	return nil
}

// UpdateItem updates title and weight of an item.
func (r *GradebookRepository) UpdateItem(ctx context.Context, item *models.GradebookItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE gradebook_items SET title = :title, weight = :weight, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("update gradebook item: %w", err)
	}
	return nil
}

// DeleteItem removes an item.
func (r *GradebookRepository) DeleteItem(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM gradebook_items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete gradebook item: %w", err)
	}
	return nil
}

// FindDetail returns an item detail along with its gradebook ID.
func (r *GradebookRepository) FindDetail(ctx context.Context, id string) (*models.GradebookItemDetail, string, error) {
	var row struct {
		models.GradebookItemDetail
		GradebookID string `db:"gradebook_id"`
	}
	const query = `SELECT d.id, d.gradebook_item_id, d.title, d.weight, d.min_score, d.max_score, d.created_at, d.updated_at, gp.gradebook_id
        FROM gradebook_item_details d
        JOIN gradebook_items gi ON gi.id = d.gradebook_item_id
        JOIN grading_periods gp ON gp.id = gi.grading_period_id
        WHERE d.id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, "", err
	}
	return &row.GradebookItemDetail, row.GradebookID, nil
}

// CreateDetail inserts an item detail.
func (r *GradebookRepository) CreateDetail(ctx context.Context, detail *models.GradebookItemDetail) error {
	if detail.ID == "" {
		detail.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	detail.CreatedAt, detail.UpdatedAt = now, now
	if _, err := r.db.NamedExecContext(ctx, insertDetailQuery, detail); err != nil {
		return fmt.Errorf("create gradebook item detail: %w", err)
	}
	return nil
}

// UpdateDetail updates an item detail's title, weight and score range.
func (r *GradebookRepository) UpdateDetail(ctx context.Context, detail *models.GradebookItemDetail) error {
	detail.UpdatedAt = time.Now().UTC()
	const query = `UPDATE gradebook_item_details SET title = :title, weight = :weight, min_score = :min_score, max_score = :max_score, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, detail); err != nil {
		return fmt.Errorf("update gradebook item detail: %w", err)
	}
	return nil
}

// DeleteDetail removes an item detail.
func (r *GradebookRepository) DeleteDetail(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM gradebook_item_details WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete gradebook item detail: %w", err)
	}
	return nil
}
