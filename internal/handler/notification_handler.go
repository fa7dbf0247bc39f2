package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
	"github.com/noah-isme/academy-enrollment-api/pkg/response"
)

type notificationLister interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.NotificationRecord, error)
}

// NotificationHandler exposes the parent notification log.
type NotificationHandler struct {
	notifications notificationLister
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications notificationLister) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// ListForStudent godoc
// @Summary Notifications recorded for a student's parent
// @Tags Admin
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id}/notifications [get]
func (h *NotificationHandler) ListForStudent(c *gin.Context) {
	records, err := h.notifications.ListForStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
