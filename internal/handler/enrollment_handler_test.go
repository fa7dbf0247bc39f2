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

	"github.com/noah-isme/academy-enrollment-api/internal/dto"
	"github.com/noah-isme/academy-enrollment-api/internal/middleware"
	"github.com/noah-isme/academy-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
)

type enrollmentServiceMock struct {
	enrollReq       dto.EnrollRequest
	enrollPrincipal *models.Principal
	enrollResp      []models.EnrollmentReceipt
	enrollErr       error

	statusID    string
	statusValue models.EnrollmentStatus
	statusAdmin string
	statusErr   error

	studentID    string
	studentViews []models.EnrollmentView
	adminFilter  *models.EnrollmentFilter
	adminHit     bool
}

func (m *enrollmentServiceMock) Enroll(ctx context.Context, principal *models.Principal, req dto.EnrollRequest) ([]models.EnrollmentReceipt, error) {
	m.enrollPrincipal = principal
	m.enrollReq = req
	return m.enrollResp, m.enrollErr
}

func (m *enrollmentServiceMock) SetStatus(ctx context.Context, id string, status models.EnrollmentStatus, adminID string) (*models.Enrollment, error) {
	m.statusID, m.statusValue, m.statusAdmin = id, status, adminID
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return &models.Enrollment{ID: id, Status: status}, nil
}

func (m *enrollmentServiceMock) ListTransitions(ctx context.Context, id string) ([]models.EnrollmentTransitionRecord, error) {
	return []models.EnrollmentTransitionRecord{}, nil
}

func (m *enrollmentServiceMock) GetEnrollmentsForStudent(ctx context.Context, studentID string) ([]models.EnrollmentView, error) {
	m.studentID = studentID
	return m.studentViews, nil
}

func (m *enrollmentServiceMock) GetAllEnrollmentsAdmin(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentView, bool, error) {
	m.adminFilter = &filter
	return []models.EnrollmentView{}, m.adminHit, nil
}

func newTestContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

var (
	studentClaims = &models.JWTClaims{SubjectID: "stu-1", Role: models.RoleStudent}
	adminClaims   = &models.JWTClaims{SubjectID: "admin-1", Role: models.RoleAdmin}
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func TestEnrollmentHandlerCreate(t *testing.T) {
	mockSvc := &enrollmentServiceMock{enrollResp: []models.EnrollmentReceipt{{EnrollmentID: "enr-1", Amount: 50000}}}
	handler := NewEnrollmentHandler(mockSvc, mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments", []byte(`{"items":[{"type":"course","offering_id":"co-1"}]}`), studentClaims)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, mockSvc.enrollPrincipal)
	assert.Equal(t, "stu-1", mockSvc.enrollPrincipal.SubjectID)
	require.Len(t, mockSvc.enrollReq.Items, 1)
	assert.Equal(t, models.OfferingTypeCourse, mockSvc.enrollReq.Items[0].Type)

	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	receipts := data["enrollments"].([]interface{})
	assert.Equal(t, "enr-1", receipts[0].(map[string]interface{})["enrollment_id"])
}

func TestEnrollmentHandlerCreateInvalidBody(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc, mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments", []byte(`{"items":`), studentClaims)
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, mockSvc.enrollPrincipal)
}

func TestEnrollmentHandlerCreatePropagatesServiceError(t *testing.T) {
	mockSvc := &enrollmentServiceMock{enrollErr: appErrors.Clone(appErrors.ErrNotFound, "offering not found")}
	handler := NewEnrollmentHandler(mockSvc, mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments", []byte(`{"items":[{"type":"course","offering_id":"missing"}]}`), studentClaims)
	handler.Create(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnrollmentHandlerListScopesStudents(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc, mockSvc)

	c, w := newTestContext(http.MethodGet, "/enrollments", nil, studentClaims)
	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", mockSvc.studentID)

	c, w = newTestContext(http.MethodGet, "/enrollments?student_id=stu-2", nil, studentClaims)
	handler.List(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newTestContext(http.MethodGet, "/enrollments?student_id=stu-2", nil, adminClaims)
	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-2", mockSvc.studentID)
}

func TestEnrollmentHandlerAdminListFiltersAndCacheMeta(t *testing.T) {
	mockSvc := &enrollmentServiceMock{adminHit: true}
	handler := NewEnrollmentHandler(mockSvc, mockSvc)

	c, w := newTestContext(http.MethodGet, "/admin/enrollments?status=PENDIENTE&type=course&cycle_id=cy-1", nil, adminClaims)
	handler.AdminList(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.adminFilter)
	assert.Equal(t, models.EnrollmentStatusPending, mockSvc.adminFilter.Status)
	assert.Equal(t, models.OfferingTypeCourse, mockSvc.adminFilter.Type)
	assert.Equal(t, "cy-1", mockSvc.adminFilter.CycleID)

	meta := decodeEnvelope(t, w)["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["cache_hit"])
}

func TestEnrollmentHandlerSetStatus(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc, mockSvc)

	c, w := newTestContext(http.MethodPut, "/admin/enrollments/enr-1/status", []byte(`{"status":"aceptado"}`), adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	handler.SetStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "enr-1", mockSvc.statusID)
	assert.Equal(t, models.EnrollmentStatusAccepted, mockSvc.statusValue)
	assert.Equal(t, "admin-1", mockSvc.statusAdmin)
}

func TestEnrollmentHandlerSetStatusConflict(t *testing.T) {
	mockSvc := &enrollmentServiceMock{statusErr: appErrors.Clone(appErrors.ErrConflict, "enrollment already aceptado")}
	handler := NewEnrollmentHandler(mockSvc, mockSvc)

	c, w := newTestContext(http.MethodPut, "/admin/enrollments/enr-1/status", []byte(`{"status":"rechazado"}`), adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	handler.SetStatus(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}
