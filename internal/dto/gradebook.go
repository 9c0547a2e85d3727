package dto

import "github.com/noah-isme/sma-gradebook-api/internal/models"

// CreatePeriodRequest adds a grading period to a gradebook.
type CreatePeriodRequest struct {
	GradebookID string  `json:"gradebook_id" validate:"required"`
	Title       string  `json:"title" validate:"required,max=255"`
	Weight      float64 `json:"weight" validate:"gte=0,lte=100"`
}

// CreateItemRequest adds an item to a grading period.
type CreateItemRequest struct {
	GradingPeriodID string  `json:"grading_period_id" validate:"required"`
	Title           string  `json:"title" validate:"required,max=255"`
	Weight          float64 `json:"weight" validate:"gte=0,lte=100"`
}

// CreateDetailRequest adds a scored detail to an item.
type CreateDetailRequest struct {
	GradebookItemID string  `json:"gradebook_item_id" validate:"required"`
	Title           string  `json:"title" validate:"required,max=255"`
	Weight          float64 `json:"weight" validate:"gte=0,lte=100"`
	MinScore        float64 `json:"min_score" validate:"gte=0"`
	MaxScore        float64 `json:"max_score" validate:"gte=0"`
}

// UpdateNodeRequest changes the title and weight of a period or item.
type UpdateNodeRequest struct {
	Title  string  `json:"title" validate:"required,max=255"`
	Weight float64 `json:"weight" validate:"gte=0,lte=100"`
}

// UpdateDetailRequest changes a detail.
type UpdateDetailRequest struct {
	Title    string  `json:"title" validate:"required,max=255"`
	Weight   float64 `json:"weight" validate:"gte=0,lte=100"`
	MinScore float64 `json:"min_score" validate:"gte=0"`
	MaxScore float64 `json:"max_score" validate:"gte=0"`
}

// ScoreInput is one entry of a score sync batch.
type ScoreInput struct {
	EnrollmentID string   `json:"enrollment_id" validate:"required"`
	DetailID     string   `json:"gradebook_item_detail_id" validate:"required"`
	Score        *float64 `json:"score" validate:"required"`
}

// ScoreSyncRequest is the payload of the score sync endpoint.
type ScoreSyncRequest struct {
	Scores []ScoreInput `json:"scores" validate:"required,min=1,dive"`
}

// ScoreRow is one cell of the score grid. ID is nil when no score has been saved.
type ScoreRow struct {
	ID              *string `json:"id"`
	EnrollmentID    string  `json:"enrollment_id"`
	StudentName     string  `json:"student_name"`
	StudentNo       string  `json:"student_no"`
	GradingPeriodID string  `json:"grading_period_id"`
	ItemID          string  `json:"gradebook_item_id"`
	DetailID        string  `json:"gradebook_item_detail_id"`
	DetailTitle     string  `json:"detail_title"`
	MinScore        float64 `json:"min_score"`
	MaxScore        float64 `json:"max_score"`
	Score           float64 `json:"score"`
}

// GradeValueRequest saves or posts a single grade.
type GradeValueRequest struct {
	Grade *float64 `json:"grade" validate:"required"`
}

// FinalGradeValueRequest saves or posts a final grade.
type FinalGradeValueRequest struct {
	Grade         *float64 `json:"grade" validate:"required"`
	CreditedUnits *int     `json:"credited_units" validate:"omitempty,gte=0"`
}

// PeriodGradeInput is one entry of a period grade sync batch.
type PeriodGradeInput struct {
	EnrollmentID    string   `json:"enrollment_id" validate:"required"`
	GradingPeriodID string   `json:"grading_period_id" validate:"required"`
	Grade           *float64 `json:"grade" validate:"required"`
	Post            bool     `json:"post"`
}

// PeriodGradeSyncRequest is the payload of the period grade sync endpoint.
type PeriodGradeSyncRequest struct {
	Grades []PeriodGradeInput `json:"grades" validate:"required,min=1,dive"`
}

// FinalGradeInput is one entry of a final grade sync batch.
type FinalGradeInput struct {
	EnrollmentID  string   `json:"enrollment_id" validate:"required"`
	Grade         *float64 `json:"grade" validate:"required"`
	CreditedUnits *int     `json:"credited_units" validate:"omitempty,gte=0"`
	Post          bool     `json:"post"`
}

// FinalGradeSyncRequest is the payload of the final grade sync endpoint.
type FinalGradeSyncRequest struct {
	Grades []FinalGradeInput `json:"grades" validate:"required,min=1,dive"`
}

// PeriodGradeRow is one cell of the period grade grid.
type PeriodGradeRow struct {
	ID               *string             `json:"id"`
	EnrollmentID     string              `json:"enrollment_id"`
	StudentName      string              `json:"student_name"`
	StudentNo        string              `json:"student_no"`
	GradingPeriodID  string              `json:"grading_period_id"`
	PeriodTitle      string              `json:"period_title"`
	Grade            float64             `json:"grade"`
	RecommendedGrade float64             `json:"recommended_grade"`
	IsOverridden     bool                `json:"is_overridden"`
	IsPosted         bool                `json:"is_posted"`
	State            models.PostingState `json:"state"`
}

// FinalGradeRow is one row of the final grade grid.
type FinalGradeRow struct {
	ID               *string             `json:"id"`
	EnrollmentID     string              `json:"enrollment_id"`
	StudentName      string              `json:"student_name"`
	StudentNo        string              `json:"student_no"`
	Grade            float64             `json:"grade"`
	RecommendedGrade float64             `json:"recommended_grade"`
	CreditedUnits    int                 `json:"credited_units"`
	IsOverridden     bool                `json:"is_overridden"`
	IsPosted         bool                `json:"is_posted"`
	IsPassed         bool                `json:"is_passed"`
	State            models.PostingState `json:"state"`
}

// DisplayGrade is the grade shown for one enrollment, stored or computed.
type DisplayGrade struct {
	EnrollmentID     string              `json:"enrollment_id"`
	GradingPeriodID  string              `json:"grading_period_id,omitempty"`
	Grade            float64             `json:"grade"`
	RecommendedGrade float64             `json:"recommended_grade"`
	CreditedUnits    *int                `json:"credited_units,omitempty"`
	IsOverridden     bool                `json:"is_overridden"`
	IsPosted         bool                `json:"is_posted"`
	IsPassed         *bool               `json:"is_passed,omitempty"`
	State            models.PostingState `json:"state"`
	Computed         bool                `json:"computed"`
}

// BatchItemError describes why one batch entry was rejected.
type BatchItemError struct {
	Index  int    `json:"index"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}
