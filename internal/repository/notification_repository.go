package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
)

// NotificationRepository appends to the notification log.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create appends a notification record.
func (r *NotificationRepository) Create(ctx context.Context, record *models.NotificationRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Status == "" {
		record.Status = models.NotificationStatusPending
	}
	const query = `INSERT INTO notifications_log (id, student_id, parent_phone, type, message, status, created_at)
        VALUES (:id, :student_id, :parent_phone, :type, :message, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByStudent returns the notifications addressed to a student's parent, newest first.
func (r *NotificationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.NotificationRecord, error) {
	const query = `SELECT id, student_id, parent_phone, type, message, status, created_at
        FROM notifications_log WHERE student_id = $1 ORDER BY created_at DESC`
	records := make([]models.NotificationRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return records, nil
}
