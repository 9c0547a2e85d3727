package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

// sampleTree is a two-period gradebook: Midterm 40% (quizzes 50%, exam 50%) and Finals 60%.
func sampleTree(id string, sectionID *string, template bool) *models.Gradebook {
	return &models.Gradebook{
		ID:         id,
		SectionID:  sectionID,
		IsTemplate: template,
		Title:      "Algebra I",
		Periods: []models.GradingPeriod{
			{
				ID: "p-mid", GradebookID: id, Title: "Midterm", Weight: 40,
				Items: []models.GradebookItem{
					{ID: "i-quiz", GradingPeriodID: "p-mid", Title: "Quizzes", Weight: 50, Details: []models.GradebookItemDetail{
						{ID: "d-q1", ItemID: "i-quiz", Title: "Quiz 1", Weight: 50, MinScore: 0, MaxScore: 10},
						{ID: "d-q2", ItemID: "i-quiz", Title: "Quiz 2", Weight: 50, MinScore: 0, MaxScore: 10},
					}},
					{ID: "i-exam", GradingPeriodID: "p-mid", Title: "Exam", Weight: 50, Details: []models.GradebookItemDetail{
						{ID: "d-mid", ItemID: "i-exam", Title: "Midterm Exam", Weight: 100, MinScore: 0, MaxScore: 100},
					}},
				},
			},
			{
				ID: "p-fin", GradebookID: id, Title: "Finals", Weight: 60,
				Items: []models.GradebookItem{
					{ID: "i-final", GradingPeriodID: "p-fin", Title: "Final Exam", Weight: 100, Details: []models.GradebookItemDetail{
						{ID: "d-fin", ItemID: "i-final", Title: "Final Exam", Weight: 100, MinScore: 0, MaxScore: 50},
					}},
				},
			},
		},
	}
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

type stubGradebookStore struct {
	gradebooks    map[string]*models.Gradebook
	findByID      int
	createdTrees  []*models.Gradebook
	updated       []string
	deleted       []string
	postedPeriods map[string]bool
}

func newStubGradebookStore(books ...*models.Gradebook) *stubGradebookStore {
	s := &stubGradebookStore{gradebooks: make(map[string]*models.Gradebook)}
	for _, b := range books {
		s.gradebooks[b.ID] = b
	}
	return s
}

func (s *stubGradebookStore) FindByID(ctx context.Context, id string) (*models.Gradebook, error) {
	s.findByID++
	if b, ok := s.gradebooks[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubGradebookStore) FindBySection(ctx context.Context, sectionID string) (*models.Gradebook, error) {
	for _, b := range s.gradebooks {
		if !b.IsTemplate && b.SectionID != nil && *b.SectionID == sectionID {
			return b, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubGradebookStore) ExistsForSection(ctx context.Context, sectionID string) (bool, error) {
	_, err := s.FindBySection(ctx, sectionID)
	return err == nil, nil
}

func (s *stubGradebookStore) CreateTree(ctx context.Context, gradebook *models.Gradebook) error {
	gradebook.ID = fmt.Sprintf("gb-new-%d", len(s.createdTrees)+1)
	for i := range gradebook.Periods {
		gradebook.Periods[i].ID = fmt.Sprintf("%s-p%d", gradebook.ID, i)
		gradebook.Periods[i].GradebookID = gradebook.ID
	}
	s.createdTrees = append(s.createdTrees, gradebook)
	s.gradebooks[gradebook.ID] = gradebook
	return nil
}

func (s *stubGradebookStore) FindPeriod(ctx context.Context, id string) (*models.GradingPeriod, error) {
	for _, b := range s.gradebooks {
		if p, ok := b.Period(id); ok {
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubGradebookStore) CreatePeriod(ctx context.Context, period *models.GradingPeriod) error {
	period.ID = "p-created"
	return nil
}

func (s *stubGradebookStore) UpdatePeriod(ctx context.Context, period *models.GradingPeriod) error {
	s.updated = append(s.updated, period.ID)
	return nil
}

func (s *stubGradebookStore) DeletePeriod(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubGradebookStore) HasPostedGrades(ctx context.Context, periodID string) (bool, error) {
	return s.postedPeriods[periodID], nil
}

func (s *stubGradebookStore) FindItem(ctx context.Context, id string) (*models.GradebookItem, string, error) {
	for _, b := range s.gradebooks {
		for _, p := range b.Periods {
			for _, item := range p.Items {
				if item.ID == id {
					found := item
					return &found, b.ID, nil
				}
			}
		}
	}
	return nil, "", sql.ErrNoRows
}

func (s *stubGradebookStore) CreateItem(ctx context.Context, item *models.GradebookItem) error {
	item.ID = "i-created"
	return nil
}

func (s *stubGradebookStore) UpdateItem(ctx context.Context, item *models.GradebookItem) error {
	s.updated = append(s.updated, item.ID)
	return nil
}

func (s *stubGradebookStore) DeleteItem(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubGradebookStore) FindDetail(ctx context.Context, id string) (*models.GradebookItemDetail, string, error) {
	for _, b := range s.gradebooks {
		if ref, ok := b.DetailIndex()[id]; ok {
			found := ref.Detail
			return &found, b.ID, nil
		}
	}
	return nil, "", sql.ErrNoRows
}

func (s *stubGradebookStore) CreateDetail(ctx context.Context, detail *models.GradebookItemDetail) error {
	detail.ID = "d-created"
	return nil
}

func (s *stubGradebookStore) UpdateDetail(ctx context.Context, detail *models.GradebookItemDetail) error {
	s.updated = append(s.updated, detail.ID)
	return nil
}

func (s *stubGradebookStore) DeleteDetail(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type stubRoster struct {
	enrollments []models.Enrollment
}

// newStubRoster seeds section sec-1 with two gradable enrollments and one that is not.
func newStubRoster() *stubRoster {
	return &stubRoster{enrollments: []models.Enrollment{
		{ID: "enr-1", SectionID: "sec-1", Status: models.EnrollmentStatusRegistrarApproved, StudentName: "Ana Cruz", StudentNo: "2024-001"},
		{ID: "enr-2", SectionID: "sec-1", Status: models.EnrollmentStatusDropRequested, StudentName: "Ben Reyes", StudentNo: "2024-002"},
		{ID: "enr-3", SectionID: "sec-1", Status: models.EnrollmentStatusEnrolled, StudentName: "Cy Lim", StudentNo: "2024-003"},
	}}
}

func (s *stubRoster) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	for _, e := range s.enrollments {
		if e.ID == id {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubRoster) ListGradableBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if e.SectionID == sectionID && e.Status.Gradable() {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubScores struct {
	data      map[string]map[string]models.GradebookScore
	bulkCalls int
	saved     []models.GradebookScore
}

func newStubScores() *stubScores {
	return &stubScores{data: make(map[string]map[string]models.GradebookScore)}
}

func (s *stubScores) put(enrollmentID, detailID string, score float64) {
	if s.data[enrollmentID] == nil {
		s.data[enrollmentID] = make(map[string]models.GradebookScore)
	}
	s.data[enrollmentID][detailID] = models.GradebookScore{
		ID:           "s-" + enrollmentID + "-" + detailID,
		DetailID:     detailID,
		EnrollmentID: enrollmentID,
		Score:        score,
	}
}

func (s *stubScores) FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]map[string]models.GradebookScore, error) {
	out := make(map[string]map[string]models.GradebookScore)
	for _, id := range enrollmentIDs {
		if byDetail, ok := s.data[id]; ok {
			out[id] = byDetail
		}
	}
	return out, nil
}

func (s *stubScores) BulkUpsert(ctx context.Context, scores []models.GradebookScore) error {
	s.bulkCalls++
	s.saved = append(s.saved, scores...)
	for _, score := range scores {
		s.put(score.EnrollmentID, score.DetailID, score.Score)
	}
	return nil
}

type stubPeriodGrades struct {
	data      map[string]map[string]models.GradingPeriodGrade
	upsertErr error
	bulkCalls int
}

func newStubPeriodGrades() *stubPeriodGrades {
	return &stubPeriodGrades{data: make(map[string]map[string]models.GradingPeriodGrade)}
}

func (s *stubPeriodGrades) put(grade models.GradingPeriodGrade) {
	if grade.ID == "" {
		grade.ID = "pg-" + grade.EnrollmentID + "-" + grade.GradingPeriodID
	}
	if s.data[grade.EnrollmentID] == nil {
		s.data[grade.EnrollmentID] = make(map[string]models.GradingPeriodGrade)
	}
	s.data[grade.EnrollmentID][grade.GradingPeriodID] = grade
}

func (s *stubPeriodGrades) Find(ctx context.Context, enrollmentID, periodID string) (*models.GradingPeriodGrade, error) {
	if grade, ok := s.data[enrollmentID][periodID]; ok {
		return &grade, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubPeriodGrades) FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]map[string]models.GradingPeriodGrade, error) {
	out := make(map[string]map[string]models.GradingPeriodGrade)
	for _, id := range enrollmentIDs {
		if byPeriod, ok := s.data[id]; ok {
			out[id] = byPeriod
		}
	}
	return out, nil
}

func (s *stubPeriodGrades) Upsert(ctx context.Context, grade *models.GradingPeriodGrade) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if grade.ID == "" {
		grade.ID = "pg-" + grade.EnrollmentID + "-" + grade.GradingPeriodID
	}
	s.put(*grade)
	return nil
}

func (s *stubPeriodGrades) BulkUpsert(ctx context.Context, grades []models.GradingPeriodGrade) error {
	s.bulkCalls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, g := range grades {
		s.put(g)
	}
	return nil
}

type stubFinalGrades struct {
	data      map[string]models.FinalGrade
	upsertErr error
	bulkCalls int
}

func newStubFinalGrades() *stubFinalGrades {
	return &stubFinalGrades{data: make(map[string]models.FinalGrade)}
}

func (s *stubFinalGrades) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.FinalGrade, error) {
	if grade, ok := s.data[enrollmentID]; ok {
		return &grade, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubFinalGrades) FetchByEnrollments(ctx context.Context, enrollmentIDs []string) (map[string]models.FinalGrade, error) {
	out := make(map[string]models.FinalGrade)
	for _, id := range enrollmentIDs {
		if grade, ok := s.data[id]; ok {
			out[id] = grade
		}
	}
	return out, nil
}

func (s *stubFinalGrades) Upsert(ctx context.Context, grade *models.FinalGrade) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if grade.ID == "" {
		grade.ID = "fg-" + grade.EnrollmentID
	}
	s.data[grade.EnrollmentID] = *grade
	return nil
}

func (s *stubFinalGrades) BulkUpsert(ctx context.Context, grades []models.FinalGrade) error {
	s.bulkCalls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for i := range grades {
		if err := s.Upsert(ctx, &grades[i]); err != nil {
			return err
		}
	}
	return nil
}

// memoryCache is an in-process CacheRepository that round-trips values through JSON like Redis does.
type memoryCache struct {
	entries  map[string][]byte
	deleted  []string
	failWith error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if m.failWith != nil {
		return m.failWith
	}
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	if m.failWith != nil {
		return m.failWith
	}
	for _, key := range keys {
		m.deleted = append(m.deleted, key)
		delete(m.entries, key)
	}
	return nil
}

func errCode(err error) string {
	if appErr := appErrors.FromError(err); appErr != nil {
		return appErr.Code
	}
	return ""
}
