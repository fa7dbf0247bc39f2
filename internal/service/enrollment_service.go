package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-enrollment-api/internal/dto"
	"github.com/noah-isme/academy-enrollment-api/internal/models"
	"github.com/noah-isme/academy-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
)

type enrollmentStore interface {
	enrollmentTransitioner
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	LockByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error)
	ListTransitions(ctx context.Context, enrollmentID string) ([]models.EnrollmentTransitionRecord, error)
}

type paymentPlanWriter interface {
	CreatePlanWithTx(ctx context.Context, tx *sqlx.Tx, plan *models.PaymentPlan) error
	BulkCreateInstallmentsWithTx(ctx context.Context, tx *sqlx.Tx, installments []models.Installment) error
}

type priceResolver interface {
	Resolve(ctx context.Context, tx *sqlx.Tx, offeringType models.OfferingType, offeringID string) (models.Money, error)
}

// EnrollmentServiceParams groups constructor dependencies.
type EnrollmentServiceParams struct {
	Tx          txProvider
	Enrollments enrollmentStore
	Plans       paymentPlanWriter
	Pricing     priceResolver
	Schedule    models.SchedulePolicy
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// EnrollmentService creates enrollments with their payment plans and applies
// admin decisions.
type EnrollmentService struct {
	tx          txProvider
	enrollments enrollmentStore
	plans       paymentPlanWriter
	pricing     priceResolver
	schedule    models.SchedulePolicy
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(params EnrollmentServiceParams) *EnrollmentService {
	schedule := params.Schedule
	if schedule.Count <= 0 {
		schedule = models.DefaultSchedulePolicy
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		tx:          params.Tx,
		enrollments: params.Enrollments,
		plans:       params.Plans,
		pricing:     params.Pricing,
		schedule:    schedule,
		cache:       params.Cache,
		metrics:     params.Metrics,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Enroll creates one pending enrollment per item, each with a payment plan and
// its installments. The batch is all-or-nothing.
func (s *EnrollmentService) Enroll(ctx context.Context, principal *models.Principal, req dto.EnrollRequest) ([]models.EnrollmentReceipt, error) {
	if principal == nil || principal.SubjectID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "login required to enroll")
	}
	if principal.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can enroll")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid enrollment payload")
	}

	today := s.now().UTC()
	receipts := make([]models.EnrollmentReceipt, 0, len(req.Items))
	err := database.WithTx(ctx, s.tx, database.WriteTx, func(tx *sqlx.Tx) error {
		for _, item := range req.Items {
			receipt, err := s.enrollOne(ctx, tx, principal.SubjectID, item, today)
			if err != nil {
				return err
			}
			receipts = append(receipts, *receipt)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("enrollment batch rolled back", zap.String("student_id", principal.SubjectID), zap.Int("items", len(req.Items)), zap.Error(err))
		return nil, internalError(err, "failed to create enrollments")
	}

	for _, receipt := range receipts {
		s.metrics.EnrollmentCreated(receipt.Type)
	}
	s.cache.InvalidateEnrollments(ctx)
	s.logger.Info("enrollments created", zap.String("student_id", principal.SubjectID), zap.Int("count", len(receipts)))
	return receipts, nil
}

func (s *EnrollmentService) enrollOne(ctx context.Context, tx *sqlx.Tx, studentID string, item dto.EnrollItem, today time.Time) (*models.EnrollmentReceipt, error) {
	price, err := s.pricing.Resolve(ctx, tx, item.Type, item.OfferingID)
	if err != nil {
		return nil, err
	}

	enrollment := models.NewEnrollment(uuid.NewString(), studentID, item.Type, item.OfferingID, today)
	if err := s.enrollments.CreateWithTx(ctx, tx, &enrollment); err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student or offering not found")
		}
		return nil, internalError(err, "failed to create enrollment")
	}

	plan := models.PaymentPlan{
		ID:               uuid.NewString(),
		EnrollmentID:     enrollment.ID,
		TotalAmount:      price,
		InstallmentCount: s.schedule.Count,
		CreatedAt:        today,
	}
	if err := s.plans.CreatePlanWithTx(ctx, tx, &plan); err != nil {
		return nil, internalError(err, "failed to create payment plan")
	}

	installments, err := s.schedule.Schedule(plan.ID, price, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid offering price")
	}
	ids := make([]string, len(installments))
	for i := range installments {
		installments[i].ID = uuid.NewString()
		ids[i] = installments[i].ID
	}
	if err := s.plans.BulkCreateInstallmentsWithTx(ctx, tx, installments); err != nil {
		return nil, internalError(err, "failed to create installments")
	}

	return &models.EnrollmentReceipt{
		EnrollmentID:   enrollment.ID,
		PaymentPlanID:  plan.ID,
		InstallmentID:  ids[0],
		InstallmentIDs: ids,
		Type:           item.Type,
		OfferingID:     item.OfferingID,
		Amount:         price,
	}, nil
}

// SetStatus records an admin decision on a pending enrollment.
func (s *EnrollmentService) SetStatus(ctx context.Context, id string, status models.EnrollmentStatus, adminID string) (*models.Enrollment, error) {
	if adminID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "admin identity required")
	}
	if !status.IsDecision() {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("status %q cannot be assigned", status))
	}

	decision := models.ManualDecision{AdminID: adminID, Decision: status}
	now := s.now().UTC()
	var updated *models.Enrollment
	err := database.WithTx(ctx, s.tx, database.WriteTx, func(tx *sqlx.Tx) error {
		enrollment, err := s.enrollments.LockByIDTx(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return internalError(err, "failed to load enrollment")
		}
		if enrollment.Status != models.EnrollmentStatusPending {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("enrollment already %s", enrollment.Status))
		}
		applied, err := applyTransition(ctx, tx, s.enrollments, id, enrollment.Status, decision, now)
		if err != nil {
			return err
		}
		if !applied {
			return appErrors.Clone(appErrors.ErrConflict, "enrollment was decided concurrently")
		}

		source := decision.Source()
		enrollment.Status = status
		enrollment.DecisionSource = &source
		enrollment.AcceptedBy, enrollment.AcceptedAt = nil, nil
		if status == models.EnrollmentStatusAccepted {
			enrollment.AcceptedBy = decision.Actor()
			enrollment.AcceptedAt = &now
		}
		updated = enrollment
		return nil
	})
	if err != nil {
		return nil, internalError(err, "failed to update enrollment status")
	}

	s.metrics.EnrollmentTransitioned(decision.Trigger(), status)
	s.cache.InvalidateEnrollments(ctx)
	s.logger.Info("enrollment decided",
		zap.String("enrollment_id", id),
		zap.String("status", string(status)),
		zap.String("admin_id", adminID),
	)
	return updated, nil
}

// ListTransitions returns the audit trail of an enrollment.
func (s *EnrollmentService) ListTransitions(ctx context.Context, id string) ([]models.EnrollmentTransitionRecord, error) {
	if _, err := s.enrollments.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	records, err := s.enrollments.ListTransitions(ctx, id)
	if err != nil {
		return nil, internalError(err, "failed to list enrollment transitions")
	}
	return records, nil
}
