package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
)

func TestMetricsServiceCountsLifecycleEvents(t *testing.T) {
	m := NewMetricsService()

	m.EnrollmentCreated(models.OfferingTypeCourse)
	m.EnrollmentCreated(models.OfferingTypeCourse)
	m.EnrollmentTransitioned(models.TriggerSystemCascade, models.EnrollmentStatusAccepted)
	m.EnrollmentTransitioned(models.TriggerManualDecision, models.EnrollmentStatusRejected)
	m.InstallmentApproved()
	m.NotificationOutcome("dropped")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.enrollmentsCreated.WithLabelValues("course")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cascades))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.installmentsApproved))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.notifications.WithLabelValues("dropped")))

	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	assert.Equal(t, 0.5, testutil.ToFloat64(m.cacheHitRatio))

	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "enrollment_cascades_total 1"))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.EnrollmentCreated(models.OfferingTypePackage)
		m.InstallmentApproved()
		m.ApprovalConflict()
		m.VoucherEvent("attached")
		m.RecordCacheOperation(true, time.Millisecond)
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
