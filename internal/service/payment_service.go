package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-enrollment-api/internal/dto"
	"github.com/noah-isme/academy-enrollment-api/internal/models"
	"github.com/noah-isme/academy-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
)

type installmentStore interface {
	LockOwnershipTx(ctx context.Context, tx *sqlx.Tx, installmentID string) (*models.InstallmentOwnership, error)
	MarkPaidTx(ctx context.Context, tx *sqlx.Tx, installmentID string, paidAt time.Time) (bool, error)
	CountUnpaidTx(ctx context.Context, tx *sqlx.Tx, planID string) (int, error)
	AttachVoucherTx(ctx context.Context, tx *sqlx.Tx, installmentID, ref string, submittedAt time.Time) (bool, error)
	RejectVoucherTx(ctx context.Context, tx *sqlx.Tx, installmentID, reason string, rejectedAt time.Time) (bool, error)
	FindInstallment(ctx context.Context, id string) (*models.Installment, error)
}

type paymentNotifier interface {
	PaymentReceived(ctx context.Context, notification models.PaymentNotification)
}

// PaymentServiceParams groups constructor dependencies.
type PaymentServiceParams struct {
	Tx           txProvider
	Installments installmentStore
	Enrollments  enrollmentTransitioner
	Notifier     paymentNotifier
	Cache        *CacheService
	Metrics      *MetricsService
	Validator    *validator.Validate
	Logger       *zap.Logger
}

// PaymentService drives installments from pending to paid and cascades plan
// completion into enrollment acceptance.
type PaymentService struct {
	tx           txProvider
	installments installmentStore
	enrollments  enrollmentTransitioner
	notifier     paymentNotifier
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(params PaymentServiceParams) *PaymentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &PaymentService{
		tx:           params.Tx,
		installments: params.Installments,
		enrollments:  params.Enrollments,
		notifier:     params.Notifier,
		cache:        params.Cache,
		metrics:      params.Metrics,
		validator:    validate,
		logger:       logger,
		now:          time.Now,
	}
}

// AttachVoucher records a payment voucher on a pending installment. Only the
// owning student or an admin may attach one; a resubmission replaces the
// previous reference and clears an earlier rejection.
func (s *PaymentService) AttachVoucher(ctx context.Context, installmentID, voucherRef string, requester *models.Principal) (*models.Installment, error) {
	if requester == nil || requester.SubjectID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "login required to attach a voucher")
	}
	voucherRef = strings.TrimSpace(voucherRef)
	now := s.now().UTC()

	err := database.WithTx(ctx, s.tx, database.WriteTx, func(tx *sqlx.Tx) error {
		ownership, err := s.lockOwnership(ctx, tx, installmentID)
		if err != nil {
			return err
		}
		if !requester.IsAdmin() && !(requester.Role == models.RoleStudent && requester.SubjectID == ownership.StudentID) {
			return appErrors.Clone(appErrors.ErrForbidden, "installment belongs to another student")
		}
		if voucherRef == "" {
			return appErrors.Clone(appErrors.ErrInvalidInput, "voucher reference is required")
		}
		if err := s.validator.Struct(dto.AttachVoucherRequest{VoucherRef: voucherRef}); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid voucher payload")
		}
		if ownership.Status == models.InstallmentStatusPaid {
			return alreadyPaid(installmentID)
		}
		attached, err := s.installments.AttachVoucherTx(ctx, tx, installmentID, voucherRef, now)
		if err != nil {
			return internalError(err, "failed to attach voucher")
		}
		if !attached {
			return alreadyPaid(installmentID)
		}
		return nil
	})
	if err != nil {
		if appErrors.Is(err, appErrors.ErrForbidden) {
			s.logger.Warn("voucher attach refused",
				zap.String("installment_id", installmentID),
				zap.String("subject_id", requester.SubjectID),
			)
		}
		return nil, internalError(err, "failed to attach voucher")
	}

	s.metrics.VoucherEvent("attached")
	s.cache.InvalidateEnrollments(ctx)
	return s.reload(ctx, installmentID)
}

// ApproveInstallment marks a pending installment paid. When it was the last
// unpaid installment of its plan, a pending enrollment is accepted by the
// system in the same transaction. Installments of rejected or cancelled
// enrollments cannot be approved. The parent notification is dispatched after
// commit and never affects the result.
func (s *PaymentService) ApproveInstallment(ctx context.Context, installmentID, adminID string) (*models.ApprovalResult, error) {
	if adminID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "admin identity required")
	}
	now := s.now().UTC()

	var (
		result    models.ApprovalResult
		ownership *models.InstallmentOwnership
		cascaded  bool
	)
	err := database.WithTx(ctx, s.tx, database.WriteTx, func(tx *sqlx.Tx) error {
		var err error
		ownership, err = s.lockOwnership(ctx, tx, installmentID)
		if err != nil {
			return err
		}
		if ownership.Status == models.InstallmentStatusPaid {
			return alreadyPaid(installmentID)
		}
		if closedEnrollment(ownership.EnrollmentStatus) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("enrollment %s is %s", ownership.EnrollmentID, ownership.EnrollmentStatus))
		}
		paid, err := s.installments.MarkPaidTx(ctx, tx, installmentID, now)
		if err != nil {
			return internalError(err, "failed to mark installment paid")
		}
		if !paid {
			return alreadyPaid(installmentID)
		}

		unpaid, err := s.installments.CountUnpaidTx(ctx, tx, ownership.PaymentPlanID)
		if err != nil {
			return internalError(err, "failed to count unpaid installments")
		}
		result = models.ApprovalResult{
			InstallmentID: installmentID,
			EnrollmentID:  ownership.EnrollmentID,
			PlanCompleted: unpaid == 0,
		}
		if !result.PlanCompleted {
			return nil
		}

		if ownership.EnrollmentStatus == models.EnrollmentStatusAccepted {
			result.EnrollmentAccepted = true
			return nil
		}
		cascade := models.SystemCascade{Cause: models.CascadeAllInstallmentsPaid}
		applied, err := applyTransition(ctx, tx, s.enrollments, ownership.EnrollmentID, models.EnrollmentStatusPending, cascade, now)
		if err != nil {
			return err
		}
		if !applied {
			return appErrors.Clone(appErrors.ErrConflict, "enrollment "+ownership.EnrollmentID+" is no longer pending")
		}
		result.EnrollmentAccepted = true
		cascaded = true
		return nil
	})
	if err != nil {
		if appErrors.Is(err, appErrors.ErrAlreadyPaid) {
			s.metrics.ApprovalConflict()
		}
		return nil, internalError(err, "failed to approve installment")
	}

	s.metrics.InstallmentApproved()
	if cascaded {
		s.metrics.EnrollmentTransitioned(models.TriggerSystemCascade, models.EnrollmentStatusAccepted)
	}
	s.cache.InvalidateEnrollments(ctx)
	s.logger.Info("installment approved",
		zap.String("installment_id", installmentID),
		zap.String("enrollment_id", ownership.EnrollmentID),
		zap.String("admin_id", adminID),
		zap.Bool("plan_completed", result.PlanCompleted),
		zap.Bool("cascaded", cascaded),
	)

	if s.notifier != nil {
		s.notifier.PaymentReceived(ctx, models.PaymentNotification{
			StudentID:     ownership.StudentID,
			EnrollmentID:  ownership.EnrollmentID,
			InstallmentID: installmentID,
		})
	}
	return &result, nil
}

// RejectVoucher flags the current voucher of a pending installment as not
// accepted. The installment stays pending so the student can resubmit.
func (s *PaymentService) RejectVoucher(ctx context.Context, installmentID, adminID, reason string) (*models.Installment, error) {
	if adminID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "admin identity required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "rejection reason is required")
	}
	if err := s.validator.Struct(dto.RejectVoucherRequest{Reason: reason}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid rejection payload")
	}
	now := s.now().UTC()

	err := database.WithTx(ctx, s.tx, database.WriteTx, func(tx *sqlx.Tx) error {
		ownership, err := s.lockOwnership(ctx, tx, installmentID)
		if err != nil {
			return err
		}
		if ownership.Status == models.InstallmentStatusPaid {
			return alreadyPaid(installmentID)
		}
		if ownership.VoucherRef == nil {
			return appErrors.Clone(appErrors.ErrConflict, "installment has no voucher to reject")
		}
		rejected, err := s.installments.RejectVoucherTx(ctx, tx, installmentID, reason, now)
		if err != nil {
			return internalError(err, "failed to reject voucher")
		}
		if !rejected {
			return appErrors.Clone(appErrors.ErrConflict, "voucher changed concurrently")
		}
		return nil
	})
	if err != nil {
		return nil, internalError(err, "failed to reject voucher")
	}

	s.metrics.VoucherEvent("rejected")
	s.cache.InvalidateEnrollments(ctx)
	s.logger.Info("voucher rejected", zap.String("installment_id", installmentID), zap.String("admin_id", adminID))
	return s.reload(ctx, installmentID)
}

func (s *PaymentService) lockOwnership(ctx context.Context, tx *sqlx.Tx, installmentID string) (*models.InstallmentOwnership, error) {
	ownership, err := s.installments.LockOwnershipTx(ctx, tx, installmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "installment not found")
		}
		return nil, internalError(err, "failed to load installment")
	}
	return ownership, nil
}

func (s *PaymentService) reload(ctx context.Context, installmentID string) (*models.Installment, error) {
	inst, err := s.installments.FindInstallment(ctx, installmentID)
	if err != nil {
		return nil, internalError(err, "failed to load installment")
	}
	return inst, nil
}

func alreadyPaid(installmentID string) error {
	return appErrors.Clone(appErrors.ErrAlreadyPaid, fmt.Sprintf("installment %s already paid", installmentID))
}

func closedEnrollment(status models.EnrollmentStatus) bool {
	return status == models.EnrollmentStatusRejected || status == models.EnrollmentStatusCancelled
}
