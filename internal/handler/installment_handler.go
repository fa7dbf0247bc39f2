package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
	"github.com/noah-isme/academy-enrollment-api/internal/service"
	"github.com/noah-isme/academy-enrollment-api/pkg/response"
)

type installmentReports interface {
	ListInstallments(ctx context.Context, filter models.InstallmentFilter) ([]models.InstallmentReportRow, *models.Pagination, error)
	ExportInstallments(ctx context.Context, filter models.InstallmentFilter, format string) (*service.ExportFile, error)
}

// InstallmentHandler serves the admin installment report.
type InstallmentHandler struct {
	reports installmentReports
}

// NewInstallmentHandler constructs InstallmentHandler.
func NewInstallmentHandler(reports installmentReports) *InstallmentHandler {
	return &InstallmentHandler{reports: reports}
}

// List godoc
// @Summary List installments across enrollments
// @Tags Admin
// @Produce json
// @Param status query string false "pending|paid|overdue"
// @Param cycle_id query string false "Cycle"
// @Param student_id query string false "Student"
// @Param due_from query string false "YYYY-MM-DD"
// @Param due_to query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/installments [get]
func (h *InstallmentHandler) List(c *gin.Context) {
	filter, err := installmentFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, pagination, err := h.reports.ListInstallments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Export godoc
// @Summary Export the installment report
// @Tags Admin
// @Produce text/csv,application/pdf
// @Param format query string false "csv|pdf"
// @Param status query string false "pending|paid|overdue"
// @Param cycle_id query string false "Cycle"
// @Param student_id query string false "Student"
// @Param due_from query string false "YYYY-MM-DD"
// @Param due_to query string false "YYYY-MM-DD"
// @Success 200 {file} file
// @Router /admin/installments/export [get]
func (h *InstallmentHandler) Export(c *gin.Context) {
	filter, err := installmentFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.reports.ExportInstallments(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

func installmentFilterFromQuery(c *gin.Context) (models.InstallmentFilter, error) {
	filter := models.InstallmentFilter{
		Status:    models.InstallmentStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		CycleID:   strings.TrimSpace(c.Query("cycle_id")),
		StudentID: strings.TrimSpace(c.Query("student_id")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 0),
	}
	var err error
	if filter.DueFrom, err = queryDate(c, "due_from"); err != nil {
		return filter, err
	}
	if filter.DueTo, err = queryDate(c, "due_to"); err != nil {
		return filter, err
	}
	return filter, nil
}
