package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/dto"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

// gradebookServiceStub overrides the calls a test needs; the rest panic through the nil interface.
type gradebookServiceStub struct {
	gradebookService
	tree        *models.Gradebook
	hit         bool
	err         error
	periodReq   dto.CreatePeriodRequest
	deletedItem string
}

func (s *gradebookServiceStub) TreeWithCacheStatus(ctx context.Context, id string) (*models.Gradebook, bool, error) {
	return s.tree, s.hit, s.err
}

func (s *gradebookServiceStub) GenerateFromTemplate(ctx context.Context, templateID, sectionID string) (*models.Gradebook, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Gradebook{ID: "gb-new", SectionID: &sectionID}, nil
}

func (s *gradebookServiceStub) CreatePeriod(ctx context.Context, req dto.CreatePeriodRequest) (*models.GradingPeriod, error) {
	s.periodReq = req
	return &models.GradingPeriod{ID: "p-new", GradebookID: req.GradebookID, Title: req.Title, Weight: req.Weight}, s.err
}

func (s *gradebookServiceStub) DeleteItem(ctx context.Context, id string) error {
	s.deletedItem = id
	return s.err
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func performJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, _ := json.Marshal(v)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newGradebookRouter(stub *gradebookServiceStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewGradebookHandler(stub)
	r := gin.New()
	r.Use(middleware.WithResponseMeta())
	r.GET("/gradebooks/:id", h.Get)
	r.POST("/gradebooks/:id/generate/:sectionId", h.Generate)
	r.POST("/grading-periods", h.CreatePeriod)
	r.DELETE("/gradebook-items/:id", h.DeleteItem)
	return r
}

func TestGradebookHandlerGetReportsCacheHit(t *testing.T) {
	stub := &gradebookServiceStub{tree: &models.Gradebook{ID: "gb-1", Title: "Algebra"}, hit: true}
	w := performJSON(newGradebookRouter(stub), http.MethodGet, "/gradebooks/gb-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	var tree models.Gradebook
	require.NoError(t, json.Unmarshal(env.Data, &tree))
	assert.Equal(t, "Algebra", tree.Title)
}

func TestGradebookHandlerGetNotFound(t *testing.T) {
	stub := &gradebookServiceStub{err: appErrors.Clone(appErrors.ErrNotFound, "gradebook not found")}
	w := performJSON(newGradebookRouter(stub), http.MethodGet, "/gradebooks/gb-404", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, appErrors.ErrNotFound.Code, decodeEnvelope(t, w).Error.Code)
}

func TestGradebookHandlerGenerateConflict(t *testing.T) {
	stub := &gradebookServiceStub{err: appErrors.Clone(appErrors.ErrConflict, "section already has a gradebook")}
	w := performJSON(newGradebookRouter(stub), http.MethodPost, "/gradebooks/gb-tpl/generate/sec-1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	stub.err = nil
	w = performJSON(newGradebookRouter(stub), http.MethodPost, "/gradebooks/gb-tpl/generate/sec-2", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestGradebookHandlerCreatePeriod(t *testing.T) {
	stub := &gradebookServiceStub{}
	w := performJSON(newGradebookRouter(stub), http.MethodPost, "/grading-periods",
		dto.CreatePeriodRequest{GradebookID: "gb-1", Title: "Prelim", Weight: 20})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Prelim", stub.periodReq.Title)
	assert.Equal(t, 20.0, stub.periodReq.Weight)
}

func TestGradebookHandlerCreatePeriodInvalidBody(t *testing.T) {
	w := performJSON(newGradebookRouter(&gradebookServiceStub{}), http.MethodPost, "/grading-periods", `{"weight":`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
}

func TestGradebookHandlerDeleteItem(t *testing.T) {
	stub := &gradebookServiceStub{}
	w := performJSON(newGradebookRouter(stub), http.MethodDelete, "/gradebook-items/i-exam", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "i-exam", stub.deletedItem)
}
