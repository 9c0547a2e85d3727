package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() { db.Close() }
}

func TestGradebookRepositoryFindByIDAssemblesTree(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradebookRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM gradebooks WHERE id = $1")).
		WithArgs("gb-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "section_id", "academic_program_id", "is_template", "title", "created_at", "updated_at"}).
			AddRow("gb-1", "sec-1", "prog-1", false, "Algebra", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM grading_periods WHERE gradebook_id = $1")).
		WithArgs("gb-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "gradebook_id", "title", "weight", "created_at", "updated_at"}).
			AddRow("p-mid", "gb-1", "Midterm", 40.0, now, now).
			AddRow("p-fin", "gb-1", "Finals", 60.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM gradebook_items gi")).
		WithArgs("gb-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "grading_period_id", "title", "weight", "created_at", "updated_at"}).
			AddRow("i-quiz", "p-mid", "Quizzes", 100.0, now, now).
			AddRow("i-final", "p-fin", "Final Exam", 100.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM gradebook_item_details d")).
		WithArgs("gb-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "gradebook_item_id", "title", "weight", "min_score", "max_score", "created_at", "updated_at"}).
			AddRow("d-q1", "i-quiz", "Quiz 1", 50.0, 0.0, 10.0, now, now).
			AddRow("d-q2", "i-quiz", "Quiz 2", 50.0, 0.0, 10.0, now, now).
			AddRow("d-fin", "i-final", "Paper", 100.0, 0.0, 50.0, now, now))

	gradebook, err := repo.FindByID(context.Background(), "gb-1")
	require.NoError(t, err)
	require.NotNil(t, gradebook.SectionID)
	assert.Equal(t, "sec-1", *gradebook.SectionID)
	require.Len(t, gradebook.Periods, 2)
	require.Len(t, gradebook.Periods[0].Items, 1)
	assert.Len(t, gradebook.Periods[0].Items[0].Details, 2)
	assert.Equal(t, 50.0, gradebook.Periods[1].Items[0].Details[0].MaxScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradebookRepositoryExistsForSection(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradebookRepository(db)
	query := regexp.QuoteMeta("SELECT 1 FROM gradebooks WHERE section_id = $1 AND is_template = FALSE LIMIT 1")

	mock.ExpectQuery(query).WithArgs("sec-1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(query).WithArgs("sec-2").WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsForSection(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForSection(context.Background(), "sec-2")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradebookRepositoryHasPostedGrades(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradebookRepository(db)
	query := regexp.QuoteMeta("SELECT 1 FROM grading_period_grades WHERE grading_period_id = $1 AND is_posted = TRUE LIMIT 1")

	mock.ExpectQuery(query).WithArgs("p-mid").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(query).WithArgs("p-fin").WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	posted, err := repo.HasPostedGrades(context.Background(), "p-mid")
	require.NoError(t, err)
	assert.True(t, posted)

	posted, err = repo.HasPostedGrades(context.Background(), "p-fin")
	require.NoError(t, err)
	assert.False(t, posted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradebookRepositoryCreateTree(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradebookRepository(db)

	section := "sec-9"
	gradebook := &models.Gradebook{
		ID:        "gb-tpl",
		SectionID: &section,
		Title:     "Algebra",
		Periods: []models.GradingPeriod{{
			ID:     "p-old",
			Title:  "Midterm",
			Weight: 100,
			Items: []models.GradebookItem{{
				ID:      "i-old",
				Title:   "Quizzes",
				Weight:  100,
				Details: []models.GradebookItemDetail{{ID: "d-old", Title: "Quiz 1", Weight: 100, MaxScore: 10}},
			}},
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO gradebooks")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grading_periods")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO gradebook_items")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO gradebook_item_details")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateTree(context.Background(), gradebook))
	assert.NotEqual(t, "gb-tpl", gradebook.ID)
	period := gradebook.Periods[0]
	assert.NotEqual(t, "p-old", period.ID)
	assert.Equal(t, gradebook.ID, period.GradebookID)
	assert.Equal(t, period.ID, period.Items[0].GradingPeriodID)
	assert.Equal(t, period.Items[0].ID, period.Items[0].Details[0].ItemID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradebookRepositoryCreateTreeRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradebookRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO gradebooks")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grading_periods")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.CreateTree(context.Background(), &models.Gradebook{Title: "Algebra", Periods: []models.GradingPeriod{{Title: "Midterm", Weight: 100}}})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradebookRepositoryFindDetailReturnsGradebookID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradebookRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE d.id = $1")).
		WithArgs("d-q1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "gradebook_item_id", "title", "weight", "min_score", "max_score", "created_at", "updated_at", "gradebook_id"}).
			AddRow("d-q1", "i-quiz", "Quiz 1", 50.0, 0.0, 10.0, now, now, "gb-1"))

	detail, gradebookID, err := repo.FindDetail(context.Background(), "d-q1")
	require.NoError(t, err)
	assert.Equal(t, "gb-1", gradebookID)
	assert.Equal(t, "i-quiz", detail.ItemID)
	require.NoError(t, mock.ExpectationsWereMet())
}
