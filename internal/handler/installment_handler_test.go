package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
	"github.com/noah-isme/academy-enrollment-api/internal/service"
)

type reportServiceMock struct {
	filter models.InstallmentFilter
	format string
	called bool
}

func (m *reportServiceMock) ListInstallments(ctx context.Context, filter models.InstallmentFilter) ([]models.InstallmentReportRow, *models.Pagination, error) {
	m.called = true
	m.filter = filter
	return []models.InstallmentReportRow{}, &models.Pagination{Page: filter.Page, PageSize: 50, TotalCount: 0}, nil
}

func (m *reportServiceMock) ExportInstallments(ctx context.Context, filter models.InstallmentFilter, format string) (*service.ExportFile, error) {
	m.called = true
	m.filter = filter
	m.format = format
	return &service.ExportFile{Filename: "cuotas-20240304.csv", ContentType: "text/csv", Data: []byte("dni\n")}, nil
}

func TestInstallmentHandlerListParsesFilter(t *testing.T) {
	mockSvc := &reportServiceMock{}
	handler := NewInstallmentHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/admin/installments?status=Overdue&cycle_id=cy-1&due_from=2024-03-01&due_to=2024-03-31&page=2&page_size=20", nil, adminClaims)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.InstallmentStatusOverdue, mockSvc.filter.Status)
	assert.Equal(t, "cy-1", mockSvc.filter.CycleID)
	assert.Equal(t, 2, mockSvc.filter.Page)
	assert.Equal(t, 20, mockSvc.filter.PageSize)
	require.NotNil(t, mockSvc.filter.DueFrom)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), *mockSvc.filter.DueFrom)

	pagination := decodeEnvelope(t, w)["pagination"].(map[string]interface{})
	assert.Equal(t, float64(2), pagination["page"])
}

func TestInstallmentHandlerListRejectsBadDate(t *testing.T) {
	mockSvc := &reportServiceMock{}
	handler := NewInstallmentHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/admin/installments?due_from=03/01/2024", nil, adminClaims)
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.called)
}

func TestInstallmentHandlerExport(t *testing.T) {
	mockSvc := &reportServiceMock{}
	handler := NewInstallmentHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/admin/installments/export?status=paid", nil, adminClaims)
	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", mockSvc.format)
	assert.Equal(t, models.InstallmentStatusPaid, mockSvc.filter.Status)
	assert.Equal(t, `attachment; filename="cuotas-20240304.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "dni\n", w.Body.String())
}
