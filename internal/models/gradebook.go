package models

import "time"

// Gradebook is the grading configuration for one section, or a reusable template.
type Gradebook struct {
	ID                string          `db:"id" json:"id"`
	SectionID         *string         `db:"section_id" json:"section_id,omitempty"`
	AcademicProgramID string          `db:"academic_program_id" json:"academic_program_id"`
	IsTemplate        bool            `db:"is_template" json:"is_template"`
	Title             string          `db:"title" json:"title"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	Periods           []GradingPeriod `db:"-" json:"periods,omitempty"`
}

// GradingPeriod is a weighted slice of the course, e.g. "Midterm".
type GradingPeriod struct {
	ID          string          `db:"id" json:"id"`
	GradebookID string          `db:"gradebook_id" json:"gradebook_id"`
	Title       string          `db:"title" json:"title"`
	Weight      float64         `db:"weight" json:"weight"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	Items       []GradebookItem `db:"-" json:"items,omitempty"`
}

// GradebookItem is a weighted assessment category within a period.
type GradebookItem struct {
	ID              string                `db:"id" json:"id"`
	GradingPeriodID string                `db:"grading_period_id" json:"grading_period_id"`
	Title           string                `db:"title" json:"title"`
	Weight          float64               `db:"weight" json:"weight"`
	CreatedAt       time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time             `db:"updated_at" json:"updated_at"`
	Details         []GradebookItemDetail `db:"-" json:"details,omitempty"`
}

// GradebookItemDetail is the smallest scored unit.
type GradebookItemDetail struct {
	ID        string    `db:"id" json:"id"`
	ItemID    string    `db:"gradebook_item_id" json:"gradebook_item_id"`
	Title     string    `db:"title" json:"title"`
	Weight    float64   `db:"weight" json:"weight"`
	MinScore  float64   `db:"min_score" json:"min_score"`
	MaxScore  float64   `db:"max_score" json:"max_score"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// InRange reports whether score lies within the detail's inclusive bounds.
func (d GradebookItemDetail) InRange(score float64) bool {
	return score >= d.MinScore && score <= d.MaxScore
}

// GradebookScore is one score per enrollment and item detail.
type GradebookScore struct {
	ID           string    `db:"id" json:"id"`
	DetailID     string    `db:"gradebook_item_detail_id" json:"gradebook_item_detail_id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Score        float64   `db:"score" json:"score"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// GradingPeriodGrade stores the saved or posted grade of an enrollment for one period.
type GradingPeriodGrade struct {
	ID               string    `db:"id" json:"id"`
	GradingPeriodID  string    `db:"grading_period_id" json:"grading_period_id"`
	EnrollmentID     string    `db:"enrollment_id" json:"enrollment_id"`
	Grade            float64   `db:"grade" json:"grade"`
	RecommendedGrade float64   `db:"recommended_grade" json:"recommended_grade"`
	IsOverridden     bool      `db:"is_overridden" json:"is_overridden"`
	IsPosted         bool      `db:"is_posted" json:"is_posted"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// FinalGrade stores the course grade of an enrollment.
type FinalGrade struct {
	ID               string    `db:"id" json:"id"`
	EnrollmentID     string    `db:"enrollment_id" json:"enrollment_id"`
	Grade            float64   `db:"grade" json:"grade"`
	RecommendedGrade float64   `db:"recommended_grade" json:"recommended_grade"`
	CreditedUnits    int       `db:"credited_units" json:"credited_units"`
	IsOverridden     bool      `db:"is_overridden" json:"is_overridden"`
	IsPosted         bool      `db:"is_posted" json:"is_posted"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// PostingState is the lifecycle of a period or final grade record.
type PostingState string

const (
	PostingStateUngraded PostingState = "UNGRADED"
	PostingStateSaved    PostingState = "SAVED"
	PostingStatePosted   PostingState = "POSTED"
)

// GradeScope identifies which kind of grade record an operation targets.
type GradeScope string

const (
	GradeScopePeriod GradeScope = "period"
	GradeScopeFinal  GradeScope = "final"
)

// WeightStatus classifies a level of the weight tree.
type WeightStatus string

const (
	WeightStatusComplete        WeightStatus = "COMPLETE"
	WeightStatusNeedsAdjustment WeightStatus = "NEEDS_ADJUSTMENT"
)

// WeightLevel names the tree level a report entry describes.
type WeightLevel string

const (
	WeightLevelGradebook WeightLevel = "gradebook"
	WeightLevelPeriod    WeightLevel = "period"
	WeightLevelItem      WeightLevel = "item"
	WeightLevelDetail    WeightLevel = "detail"
)

// WeightLevelReport summarises the children of one node of the weight tree.
type WeightLevelReport struct {
	Level       WeightLevel  `json:"level"`
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Sum         float64      `json:"sum"`
	Status      WeightStatus `json:"status"`
	CanAddChild bool         `json:"can_add_child"`
	Message     string       `json:"message,omitempty"`
}

// WeightReport is the advisory completeness report of a gradebook.
type WeightReport struct {
	GradebookID string              `json:"gradebook_id"`
	Complete    bool                `json:"complete"`
	Levels      []WeightLevelReport `json:"levels"`
}

// Add appends an entry and tracks overall completeness.
func (r *WeightReport) Add(entry WeightLevelReport) {
	r.Levels = append(r.Levels, entry)
	if entry.Status != WeightStatusComplete {
		r.Complete = false
	}
}

// DetailRef locates a detail inside its gradebook.
type DetailRef struct {
	Detail   GradebookItemDetail
	PeriodID string
}

// DetailIndex maps detail IDs to their detail and owning period.
func (g Gradebook) DetailIndex() map[string]DetailRef {
	index := make(map[string]DetailRef)
	for _, period := range g.Periods {
		for _, item := range period.Items {
			for _, detail := range item.Details {
				index[detail.ID] = DetailRef{Detail: detail, PeriodID: period.ID}
			}
		}
	}
	return index
}

// Period returns the period with the given ID.
func (g Gradebook) Period(id string) (GradingPeriod, bool) {
	for _, period := range g.Periods {
		if period.ID == id {
			return period, true
		}
	}
	return GradingPeriod{}, false
}
