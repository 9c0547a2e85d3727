package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

func newGradebookServiceWithCache(store *stubGradebookStore) (*GradebookService, *memoryCache) {
	repo := newMemoryCache()
	cache := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)
	return NewGradebookService(store, cache, nil, zap.NewNop()), repo
}

func TestGradebookServiceGenerateFromTemplate(t *testing.T) {
	template := sampleTree("gb-tpl", nil, true)
	store := newStubGradebookStore(template)
	svc := NewGradebookService(store, nil, nil, nil)

	generated, err := svc.GenerateFromTemplate(context.Background(), "gb-tpl", "sec-9")
	require.NoError(t, err)
	require.Len(t, store.createdTrees, 1)

	assert.False(t, generated.IsTemplate)
	require.NotNil(t, generated.SectionID)
	assert.Equal(t, "sec-9", *generated.SectionID)
	assert.Equal(t, "gb-new-1", generated.ID)
	require.Len(t, generated.Periods, 2)
	assert.Equal(t, "gb-new-1", generated.Periods[0].GradebookID)
	assert.Equal(t, "Quiz 2", generated.Periods[0].Items[0].Details[1].Title)

	// template tree is untouched
	assert.True(t, template.IsTemplate)
	assert.Nil(t, template.SectionID)
	assert.Equal(t, "p-mid", template.Periods[0].ID)
	assert.Equal(t, "gb-tpl", template.Periods[0].GradebookID)
}

func TestGradebookServiceGenerateRejections(t *testing.T) {
	store := newStubGradebookStore(
		sampleTree("gb-tpl", nil, true),
		sampleTree("gb-1", strPtr("sec-1"), false),
	)
	svc := NewGradebookService(store, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.GenerateFromTemplate(ctx, "gb-tpl", "sec-1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.GenerateFromTemplate(ctx, "gb-1", "sec-2")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.GenerateFromTemplate(ctx, "gb-missing", "sec-2")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, store.createdTrees)
}

func TestGradebookServiceCachesTree(t *testing.T) {
	store := newStubGradebookStore(sampleTree("gb-1", strPtr("sec-1"), false))
	svc, cache := newGradebookServiceWithCache(store)
	ctx := context.Background()

	first, hit, err := svc.TreeWithCacheStatus(ctx, "gb-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, store.findByID)

	second, hit, err := svc.TreeWithCacheStatus(ctx, "gb-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, store.findByID)
	assert.Equal(t, first.Periods[1].Items[0].Details[0].MaxScore, second.Periods[1].Items[0].Details[0].MaxScore)

	_, err = svc.UpdatePeriod(ctx, "p-mid", dto.UpdateNodeRequest{Title: "Midterm", Weight: 45})
	require.NoError(t, err)
	assert.Contains(t, cache.deleted, GradebookCacheKey("gb-1"))

	_, hit, err = svc.TreeWithCacheStatus(ctx, "gb-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, store.findByID)
}

func TestGradebookServiceMutationsInvalidateOwningTree(t *testing.T) {
	store := newStubGradebookStore(sampleTree("gb-1", strPtr("sec-1"), false))
	svc, cache := newGradebookServiceWithCache(store)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, dto.CreateItemRequest{GradingPeriodID: "p-fin", Title: "Project", Weight: 20})
	require.NoError(t, err)
	assert.Equal(t, "p-fin", item.GradingPeriodID)

	detail, err := svc.CreateDetail(ctx, dto.CreateDetailRequest{GradebookItemID: "i-quiz", Title: "Quiz 3", Weight: 10, MaxScore: 10})
	require.NoError(t, err)
	assert.Equal(t, "i-quiz", detail.ItemID)

	_, err = svc.UpdateDetail(ctx, "d-q1", dto.UpdateDetailRequest{Title: "Quiz 1", Weight: 50, MinScore: 0, MaxScore: 20})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteItem(ctx, "i-exam"))
	require.NoError(t, svc.DeletePeriod(ctx, "p-fin"))

	assert.Len(t, cache.deleted, 5)
	for _, key := range cache.deleted {
		assert.Equal(t, GradebookCacheKey("gb-1"), key)
	}
	assert.Equal(t, []string{"i-exam", "p-fin"}, store.deleted)
}

func TestGradebookServiceTreeEditErrors(t *testing.T) {
	store := newStubGradebookStore(sampleTree("gb-1", strPtr("sec-1"), false))
	svc := NewGradebookService(store, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreatePeriod(ctx, dto.CreatePeriodRequest{GradebookID: "gb-404", Title: "Prelim", Weight: 10})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.CreatePeriod(ctx, dto.CreatePeriodRequest{GradebookID: "gb-1", Weight: 10})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.UpdateItem(ctx, "i-404", dto.UpdateNodeRequest{Title: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.CreateItem(ctx, dto.CreateItemRequest{GradingPeriodID: "p-mid", Title: "Heavy", Weight: 101})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	assert.True(t, errors.Is(svc.DeleteDetail(ctx, "d-404"), appErrors.ErrNotFound))
}

func TestGradebookServiceWeightReportAndSection(t *testing.T) {
	tree := sampleTree("gb-1", strPtr("sec-1"), false)
	tree.Periods[1].Weight = 50
	svc := NewGradebookService(newStubGradebookStore(tree), nil, nil, nil)
	ctx := context.Background()

	report, err := svc.WeightReport(ctx, "gb-1")
	require.NoError(t, err)
	assert.False(t, report.Complete)

	bySection, err := svc.GetBySection(ctx, "sec-1")
	require.NoError(t, err)
	assert.Equal(t, "gb-1", bySection.ID)

	_, err = svc.GetBySection(ctx, "sec-2")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestGradebookServiceDeleteKeepsPostedGrades(t *testing.T) {
	store := newStubGradebookStore(sampleTree("gb-1", strPtr("sec-1"), false))
	store.postedPeriods = map[string]bool{"p-mid": true}
	svc, cache := newGradebookServiceWithCache(store)
	ctx := context.Background()

	assert.True(t, errors.Is(svc.DeletePeriod(ctx, "p-mid"), appErrors.ErrAlreadyPosted))
	assert.True(t, errors.Is(svc.DeleteItem(ctx, "i-quiz"), appErrors.ErrAlreadyPosted))
	assert.True(t, errors.Is(svc.DeleteDetail(ctx, "d-q1"), appErrors.ErrAlreadyPosted))
	assert.Empty(t, store.deleted)
	assert.Empty(t, cache.deleted)

	// the unposted period can still be edited
	require.NoError(t, svc.DeleteDetail(ctx, "d-fin"))
	assert.Equal(t, []string{"d-fin"}, store.deleted)
}
