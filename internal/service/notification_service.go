package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
	"github.com/noah-isme/academy-enrollment-api/pkg/jobs"
)

// JobTypePaymentReceived is the queue job type for approved-payment notices.
const JobTypePaymentReceived = "notification.payment_received"

type notificationStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type notificationStore interface {
	Create(ctx context.Context, record *models.NotificationRecord) error
	ListByStudent(ctx context.Context, studentID string) ([]models.NotificationRecord, error)
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationService records messages for a student's parent. Dispatch is
// asynchronous; callers never see delivery failures.
type NotificationService struct {
	students notificationStudentReader
	store    notificationStore
	queue    jobEnqueuer
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService constructs NotificationService. Without a queue,
// notifications are written inline.
func NewNotificationService(students notificationStudentReader, store notificationStore, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{students: students, store: store, metrics: metrics, logger: logger}
}

// UseQueue routes dispatch through q. The queue's handler is expected to be Handle.
func (s *NotificationService) UseQueue(q jobEnqueuer) {
	s.queue = q
}

// PaymentReceived schedules the "payment received" notice for the student's parent.
func (s *NotificationService) PaymentReceived(ctx context.Context, notification models.PaymentNotification) {
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypePaymentReceived, Payload: notification}
	if s.queue == nil {
		if err := s.Handle(ctx, job); err != nil {
			s.logger.Warn("payment notification failed", zap.String("enrollment_id", notification.EnrollmentID), zap.Error(err))
			s.metrics.NotificationOutcome("failed")
			return
		}
		s.metrics.NotificationOutcome("sent")
		return
	}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Warn("payment notification dropped",
			zap.String("enrollment_id", notification.EnrollmentID),
			zap.String("installment_id", notification.InstallmentID),
			zap.Error(err),
		)
		s.metrics.NotificationOutcome("dropped")
		return
	}
	s.metrics.NotificationOutcome("queued")
}

// Handle processes one notification job.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.PaymentNotification)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
	}

	student, err := s.students.FindByID(ctx, notification.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("notification target missing", zap.String("student_id", notification.StudentID))
			return nil
		}
		return fmt.Errorf("load student: %w", err)
	}
	if student.ParentPhone == nil || strings.TrimSpace(*student.ParentPhone) == "" {
		s.logger.Warn("student has no parent phone, notification skipped",
			zap.String("student_id", student.ID),
			zap.String("enrollment_id", notification.EnrollmentID),
		)
		return nil
	}

	record := &models.NotificationRecord{
		StudentID:   student.ID,
		ParentPhone: strings.TrimSpace(*student.ParentPhone),
		Type:        models.NotificationTypePayment,
		Message:     PaymentReceivedMessage(notification.EnrollmentID),
		Status:      models.NotificationStatusPending,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	s.logger.Debug("payment notification stored", zap.String("notification_id", record.ID), zap.String("student_id", student.ID))
	return nil
}

// OnOutcome reports the final result of a queued job.
func (s *NotificationService) OnOutcome(job jobs.Job, err error) {
	if err != nil {
		s.metrics.NotificationOutcome("failed")
		return
	}
	s.metrics.NotificationOutcome("sent")
}

// ListForStudent returns the notification log of a student.
func (s *NotificationService) ListForStudent(ctx context.Context, studentID string) ([]models.NotificationRecord, error) {
	records, err := s.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, internalError(err, "failed to list notifications")
	}
	return records, nil
}

// PaymentReceivedMessage is the text sent to a parent once a payment is approved.
func PaymentReceivedMessage(enrollmentID string) string {
	return "Pago recibido para la matrícula " + enrollmentID
}
