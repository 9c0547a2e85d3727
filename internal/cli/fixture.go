package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// Fixture is a gradebook tree plus the raw scores of its students.
type Fixture struct {
	Gradebook FixtureGradebook `yaml:"gradebook"`
	Students  []FixtureStudent `yaml:"students"`
}

// FixtureGradebook mirrors the weight tree.
type FixtureGradebook struct {
	ID      string          `yaml:"id"`
	Title   string          `yaml:"title"`
	Periods []FixturePeriod `yaml:"periods"`
}

// FixturePeriod is a weighted grading period.
type FixturePeriod struct {
	ID     string        `yaml:"id"`
	Title  string        `yaml:"title"`
	Weight float64       `yaml:"weight"`
	Items  []FixtureItem `yaml:"items"`
}

// FixtureItem is a weighted assessment category.
type FixtureItem struct {
	ID      string          `yaml:"id"`
	Title   string          `yaml:"title"`
	Weight  float64         `yaml:"weight"`
	Details []FixtureDetail `yaml:"details"`
}

// FixtureDetail is a scored unit.
type FixtureDetail struct {
	ID       string  `yaml:"id"`
	Title    string  `yaml:"title"`
	Weight   float64 `yaml:"weight"`
	MinScore float64 `yaml:"min_score"`
	MaxScore float64 `yaml:"max_score"`
}

// FixtureStudent carries the detail scores of one enrollment.
type FixtureStudent struct {
	EnrollmentID string             `yaml:"enrollment_id"`
	Name         string             `yaml:"name"`
	Scores       map[string]float64 `yaml:"scores"`
}

// LoadFixture reads and decodes a YAML fixture.
func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fixture Fixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(fixture.Gradebook.Periods) == 0 {
		return nil, fmt.Errorf("%s: gradebook has no periods", path)
	}
	return &fixture, nil
}

// Model converts the fixture tree into the domain gradebook.
func (f FixtureGradebook) Model() models.Gradebook {
	gradebook := models.Gradebook{ID: f.ID, Title: f.Title}
	for _, p := range f.Periods {
		period := models.GradingPeriod{ID: p.ID, GradebookID: f.ID, Title: p.Title, Weight: p.Weight}
		for _, i := range p.Items {
			item := models.GradebookItem{ID: i.ID, GradingPeriodID: p.ID, Title: i.Title, Weight: i.Weight}
			for _, d := range i.Details {
				item.Details = append(item.Details, models.GradebookItemDetail{
					ID:       d.ID,
					ItemID:   i.ID,
					Title:    d.Title,
					Weight:   d.Weight,
					MinScore: d.MinScore,
					MaxScore: d.MaxScore,
				})
			}
			period.Items = append(period.Items, item)
		}
		gradebook.Periods = append(gradebook.Periods, period)
	}
	return gradebook
}
