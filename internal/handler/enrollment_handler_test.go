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

	"github.com/noah-isme/vial-compliance-api/internal/dto"
	"github.com/noah-isme/vial-compliance-api/internal/middleware"
	"github.com/noah-isme/vial-compliance-api/internal/models"
	"github.com/noah-isme/vial-compliance-api/internal/service"
	appErrors "github.com/noah-isme/vial-compliance-api/pkg/errors"
)

type enrollmentServiceMock struct {
	view          *dto.EnrollmentView
	err           error
	lastFilter    models.EnrollmentFilter
	lastRequest   dto.TransitionRequest
	lastActor     service.Actor
	lastCreate    dto.CreateEnrollmentRequest
	deletedID     string
	transitionIDs []string
}

func (m *enrollmentServiceMock) Create(ctx context.Context, req dto.CreateEnrollmentRequest, actor service.Actor) (*dto.EnrollmentView, error) {
	m.lastCreate = req
	m.lastActor = actor
	return m.view, m.err
}

func (m *enrollmentServiceMock) Get(ctx context.Context, id string) (*dto.EnrollmentView, error) {
	return m.view, m.err
}

func (m *enrollmentServiceMock) List(ctx context.Context, filter models.EnrollmentFilter) ([]dto.EnrollmentView, *models.Pagination, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, nil, m.err
	}
	return []dto.EnrollmentView{*m.view}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *enrollmentServiceMock) Transition(ctx context.Context, id string, req dto.TransitionRequest, actor service.Actor) (*dto.EnrollmentView, error) {
	m.transitionIDs = append(m.transitionIDs, id)
	m.lastRequest = req
	m.lastActor = actor
	return m.view, m.err
}

func (m *enrollmentServiceMock) Delete(ctx context.Context, id string, actor service.Actor) error {
	m.deletedID = id
	return m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withUser(c *gin.Context, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-" + string(role), Role: role, DNI: "12345678"})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *appErrors.Error {
	t.Helper()
	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error
}

func sampleView() *dto.EnrollmentView {
	return &dto.EnrollmentView{ID: "e1", Status: models.EnrollmentStatusPending, EffectiveStatus: models.EnrollmentStatusPending}
}

func TestEnrollmentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{view: sampleView()}
	h := NewEnrollmentHandler(svc)

	payload, _ := json.Marshal(dto.CreateEnrollmentRequest{PersonID: "p1", CourseID: "c1"})
	c, w := newGinContext(http.MethodPost, "/enrollments", payload)
	withUser(c, models.RoleAdmin)

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "p1", svc.lastCreate.PersonID)
	assert.Equal(t, models.RoleAdmin, svc.lastActor.Role)
}

func TestEnrollmentHandlerCreateRequiresAuthentication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewEnrollmentHandler(&enrollmentServiceMock{view: sampleView()})

	c, w := newGinContext(http.MethodPost, "/enrollments", []byte(`{}`))
	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnrollmentHandlerListParsesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{view: sampleView()}
	h := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodGet, "/enrollments?personId=p1&status=completed&page=2&limit=5&sort=deadline_date&order=desc", nil)
	withUser(c, models.RoleInspector)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EnrollmentFilter{
		PersonID:  "p1",
		Status:    models.EnrollmentStatusCompleted,
		Page:      2,
		PageSize:  5,
		SortBy:    "deadline_date",
		SortOrder: "desc",
	}, svc.lastFilter)
}

func TestEnrollmentHandlerTransitionNormalisesStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{view: sampleView()}
	h := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/enrollments/e1/status", []byte(`{"status":" used ","judge_id":"j1"}`))
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	withUser(c, models.RoleJudge)

	h.Transition(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EnrollmentStatusUsed, svc.lastRequest.Status)
	require.NotNil(t, svc.lastRequest.JudgeID)
	assert.Equal(t, "j1", *svc.lastRequest.JudgeID)
	assert.Equal(t, []string{"e1"}, svc.transitionIDs)
}

func TestEnrollmentHandlerShortcuts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{view: sampleView()}
	h := NewEnrollmentHandler(svc)

	c, _ := newGinContext(http.MethodPost, "/enrollments/e1/complete", nil)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	withUser(c, models.RoleNormal)
	h.Complete(c)
	assert.Equal(t, models.EnrollmentStatusCompleted, svc.lastRequest.Status)

	c, _ = newGinContext(http.MethodPost, "/enrollments/e1/use", []byte(`{"inspector_id":"i1"}`))
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	withUser(c, models.RoleInspector)
	h.Use(c)
	assert.Equal(t, models.EnrollmentStatusUsed, svc.lastRequest.Status)
	require.NotNil(t, svc.lastRequest.InspectorID)
	assert.Nil(t, svc.lastRequest.JudgeID)

	c, _ = newGinContext(http.MethodPost, "/enrollments/e1/expire", nil)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	withUser(c, models.RoleAdmin)
	h.Expire(c)
	assert.Equal(t, models.EnrollmentStatusExpired, svc.lastRequest.Status)
}

func TestEnrollmentHandlerMapsServiceErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{appErrors.Clone(appErrors.ErrInvalidTransition, "transition USED -> COMPLETED is not allowed"), http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
		{appErrors.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{appErrors.Clone(appErrors.ErrNotFound, "enrollment e1 not found"), http.StatusNotFound, "NOT_FOUND"},
		{appErrors.ErrConflict, http.StatusConflict, "CONFLICT"},
	}
	for _, tc := range cases {
		h := NewEnrollmentHandler(&enrollmentServiceMock{err: tc.err})
		c, w := newGinContext(http.MethodPost, "/enrollments/e1/complete", nil)
		c.Params = gin.Params{{Key: "id", Value: "e1"}}
		withUser(c, models.RoleAdmin)

		h.Complete(c)
		assert.Equal(t, tc.status, w.Code)
		assert.Equal(t, tc.code, decodeError(t, w).Code)
	}
}

func TestEnrollmentHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &enrollmentServiceMock{}
	h := NewEnrollmentHandler(svc)

	c, _ := newGinContext(http.MethodDelete, "/enrollments/e1", nil)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	withUser(c, models.RoleAdmin)

	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "e1", svc.deletedID)
}
