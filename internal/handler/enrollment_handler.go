package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-enrollment-api/internal/dto"
	"github.com/noah-isme/academy-enrollment-api/internal/middleware"
	"github.com/noah-isme/academy-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
	"github.com/noah-isme/academy-enrollment-api/pkg/response"
)

type enrollmentCommands interface {
	Enroll(ctx context.Context, principal *models.Principal, req dto.EnrollRequest) ([]models.EnrollmentReceipt, error)
	SetStatus(ctx context.Context, id string, status models.EnrollmentStatus, adminID string) (*models.Enrollment, error)
	ListTransitions(ctx context.Context, id string) ([]models.EnrollmentTransitionRecord, error)
}

type enrollmentQueries interface {
	GetEnrollmentsForStudent(ctx context.Context, studentID string) ([]models.EnrollmentView, error)
	GetAllEnrollmentsAdmin(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentView, bool, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	commands enrollmentCommands
	queries  enrollmentQueries
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(commands enrollmentCommands, queries enrollmentQueries) *EnrollmentHandler {
	return &EnrollmentHandler{commands: commands, queries: queries}
}

// Create godoc
// @Summary Enroll the authenticated student into one or more offerings
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Offerings"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	receipts, err := h.commands.Enroll(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.EnrollResponse{Enrollments: receipts})
}

// List godoc
// @Summary List enrollments of the caller, or of any student for admins
// @Tags Enrollments
// @Produce json
// @Param student_id query string false "Student (admin only)"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}
	studentID := principal.SubjectID
	requested := strings.TrimSpace(c.Query("student_id"))
	if principal.IsAdmin() {
		if requested == "" {
			h.AdminList(c)
			return
		}
		studentID = requested
	} else if requested != "" && requested != studentID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "cannot list another student's enrollments"))
		return
	}
	views, err := h.queries.GetEnrollmentsForStudent(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}

// AdminList godoc
// @Summary List all enrollments with filters
// @Tags Admin
// @Produce json
// @Param student_id query string false "Student"
// @Param cycle_id query string false "Cycle"
// @Param status query string false "pendiente|aceptado|rechazado|cancelado"
// @Param type query string false "course|package"
// @Success 200 {object} response.Envelope
// @Router /admin/enrollments [get]
func (h *EnrollmentHandler) AdminList(c *gin.Context) {
	filter := models.EnrollmentFilter{
		StudentID: strings.TrimSpace(c.Query("student_id")),
		CycleID:   strings.TrimSpace(c.Query("cycle_id")),
		Status:    models.EnrollmentStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Type:      models.OfferingType(strings.ToLower(strings.TrimSpace(c.Query("type")))),
	}
	views, hit, err := h.queries.GetAllEnrollmentsAdmin(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, views, nil, middleware.ExtractMeta(c))
}

// SetStatus godoc
// @Summary Accept, reject or cancel a pending enrollment
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.SetEnrollmentStatusRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/enrollments/{id}/status [put]
func (h *EnrollmentHandler) SetStatus(c *gin.Context) {
	var req dto.SetEnrollmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}
	enrollment, err := h.commands.SetStatus(c.Request.Context(), c.Param("id"), req.Status, principal.SubjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Transitions godoc
// @Summary Status history of an enrollment
// @Tags Admin
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /admin/enrollments/{id}/transitions [get]
func (h *EnrollmentHandler) Transitions(c *gin.Context) {
	records, err := h.commands.ListTransitions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
