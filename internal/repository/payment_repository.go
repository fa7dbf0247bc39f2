package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
)

const installmentColumns = `id, payment_plan_id, installment_number, amount_cents, due_date, status, voucher_ref, voucher_submitted_at, voucher_rejected_at, voucher_rejection_reason, paid_at`

const ownershipQuery = `SELECT i.id AS installment_id, i.payment_plan_id, p.enrollment_id, e.student_id, i.status, i.voucher_ref, e.status AS enrollment_status
        FROM installments i
        JOIN payment_plans p ON p.id = i.payment_plan_id
        JOIN enrollments e ON e.id = p.enrollment_id
        WHERE i.id = $1`

// PaymentRepository persists payment plans and installments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreatePlanWithTx inserts a payment plan inside the caller's transaction.
func (r *PaymentRepository) CreatePlanWithTx(ctx context.Context, tx *sqlx.Tx, plan *models.PaymentPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO payment_plans (id, enrollment_id, total_amount_cents, installment_count, created_at)
        VALUES (:id, :enrollment_id, :total_amount_cents, :installment_count, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, plan); err != nil {
		return fmt.Errorf("create payment plan: %w", err)
	}
	return nil
}

// BulkCreateInstallmentsWithTx inserts every installment of a plan in one statement.
func (r *PaymentRepository) BulkCreateInstallmentsWithTx(ctx context.Context, tx *sqlx.Tx, installments []models.Installment) error {
	if len(installments) == 0 {
		return nil
	}
	builder := psql.Insert("installments").
		Columns("id", "payment_plan_id", "installment_number", "amount_cents", "due_date", "status")
	for i := range installments {
		if installments[i].ID == "" {
			installments[i].ID = uuid.NewString()
		}
		if installments[i].Status == "" {
			installments[i].Status = models.InstallmentStatusPending
		}
		inst := installments[i]
		builder = builder.Values(inst.ID, inst.PaymentPlanID, inst.Number, inst.Amount, inst.DueDate, inst.Status)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build installment insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create installments: %w", err)
	}
	return nil
}

// FindOwnership resolves the installment → plan → enrollment → student chain.
func (r *PaymentRepository) FindOwnership(ctx context.Context, installmentID string) (*models.InstallmentOwnership, error) {
	var ownership models.InstallmentOwnership
	if err := r.db.GetContext(ctx, &ownership, ownershipQuery, installmentID); err != nil {
		return nil, err
	}
	return &ownership, nil
}

// LockOwnershipTx resolves ownership and locks the installment and its
// enrollment until the transaction ends, so approvals within one plan serialize.
func (r *PaymentRepository) LockOwnershipTx(ctx context.Context, tx *sqlx.Tx, installmentID string) (*models.InstallmentOwnership, error) {
	var ownership models.InstallmentOwnership
	if err := tx.GetContext(ctx, &ownership, ownershipQuery+" FOR UPDATE OF i, e", installmentID); err != nil {
		return nil, err
	}
	return &ownership, nil
}

// MarkPaidTx flips a pending installment to paid. It reports false when the
// installment was no longer pending.
func (r *PaymentRepository) MarkPaidTx(ctx context.Context, tx *sqlx.Tx, installmentID string, paidAt time.Time) (bool, error) {
	const query = `UPDATE installments SET status = $1, paid_at = $2 WHERE id = $3 AND status = $4`
	return execAffected(ctx, tx, "mark installment paid", query, models.InstallmentStatusPaid, paidAt, installmentID, models.InstallmentStatusPending)
}

// CountUnpaidTx counts installments of a plan that are not yet paid.
func (r *PaymentRepository) CountUnpaidTx(ctx context.Context, tx *sqlx.Tx, planID string) (int, error) {
	const query = `SELECT COUNT(*) FROM installments WHERE payment_plan_id = $1 AND status <> $2`
	var count int
	if err := tx.GetContext(ctx, &count, query, planID, models.InstallmentStatusPaid); err != nil {
		return 0, fmt.Errorf("count unpaid installments: %w", err)
	}
	return count, nil
}

// AttachVoucherTx records a voucher on a pending installment, clearing any
// earlier rejection. It reports false when the installment was already paid.
func (r *PaymentRepository) AttachVoucherTx(ctx context.Context, tx *sqlx.Tx, installmentID, ref string, submittedAt time.Time) (bool, error) {
	const query = `UPDATE installments SET voucher_ref = $1, voucher_submitted_at = $2, voucher_rejected_at = NULL, voucher_rejection_reason = NULL
        WHERE id = $3 AND status = $4`
	return execAffected(ctx, tx, "attach voucher", query, ref, submittedAt, installmentID, models.InstallmentStatusPending)
}

// RejectVoucherTx marks the current voucher of a pending installment as rejected.
func (r *PaymentRepository) RejectVoucherTx(ctx context.Context, tx *sqlx.Tx, installmentID, reason string, rejectedAt time.Time) (bool, error) {
	const query = `UPDATE installments SET voucher_rejected_at = $1, voucher_rejection_reason = $2
        WHERE id = $3 AND status = $4 AND voucher_ref IS NOT NULL`
	return execAffected(ctx, tx, "reject voucher", query, rejectedAt, reason, installmentID, models.InstallmentStatusPending)
}

// FindInstallment returns one installment by ID.
func (r *PaymentRepository) FindInstallment(ctx context.Context, id string) (*models.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE id = $1`
	var inst models.Installment
	if err := r.db.GetContext(ctx, &inst, query, id); err != nil {
		return nil, err
	}
	return &inst, nil
}

// PlansByEnrollmentTx loads the plans of the given enrollments.
func (r *PaymentRepository) PlansByEnrollmentTx(ctx context.Context, tx *sqlx.Tx, enrollmentIDs []string) ([]models.PaymentPlan, error) {
	plans := make([]models.PaymentPlan, 0, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return plans, nil
	}
	query, args, err := psql.Select("id", "enrollment_id", "total_amount_cents", "installment_count", "created_at").
		From("payment_plans").
		Where(sq.Eq{"enrollment_id": enrollmentIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build plan query: %w", err)
	}
	if err := tx.SelectContext(ctx, &plans, query, args...); err != nil {
		return nil, fmt.Errorf("list payment plans: %w", err)
	}
	return plans, nil
}

// InstallmentsByPlanTx loads installments of the given plans ordered by plan and number.
func (r *PaymentRepository) InstallmentsByPlanTx(ctx context.Context, tx *sqlx.Tx, planIDs []string) ([]models.Installment, error) {
	installments := make([]models.Installment, 0)
	if len(planIDs) == 0 {
		return installments, nil
	}
	query, args, err := psql.Select(installmentColumns).
		From("installments").
		Where(sq.Eq{"payment_plan_id": planIDs}).
		OrderBy("payment_plan_id", "installment_number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build installment query: %w", err)
	}
	if err := tx.SelectContext(ctx, &installments, query, args...); err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	return installments, nil
}

// ListReportTx returns the admin installment report page and the total count
// of matching rows. Overdue is resolved against today.
func (r *PaymentRepository) ListReportTx(ctx context.Context, tx *sqlx.Tx, filter models.InstallmentFilter, today time.Time) ([]models.InstallmentReportRow, int, error) {
	base := psql.Select().
		From("installments i").
		Join("payment_plans pp ON pp.id = i.payment_plan_id").
		Join("enrollments e ON e.id = pp.enrollment_id").
		Join("students s ON s.id = e.student_id").
		LeftJoin("course_offerings co ON co.id = e.course_offering_id").
		LeftJoin("courses c ON c.id = co.course_id").
		LeftJoin("package_offerings po ON po.id = e.package_offering_id").
		LeftJoin("packages p ON p.id = po.package_id").
		LeftJoin("cycles cy ON cy.id = COALESCE(co.cycle_id, po.cycle_id)")

	switch filter.Status {
	case models.InstallmentStatusPaid:
		base = base.Where(sq.Eq{"i.status": models.InstallmentStatusPaid})
	case models.InstallmentStatusPending:
		base = base.Where(sq.Eq{"i.status": models.InstallmentStatusPending})
	case models.InstallmentStatusOverdue:
		base = base.Where(sq.Eq{"i.status": models.InstallmentStatusPending}).Where("i.due_date < ?::date", sqlDate(today))
	}
	if filter.CycleID != "" {
		base = base.Where(sq.Eq{"cy.id": filter.CycleID})
	}
	if filter.StudentID != "" {
		base = base.Where(sq.Eq{"e.student_id": filter.StudentID})
	}
	if filter.DueFrom != nil {
		base = base.Where("i.due_date >= ?::date", sqlDate(*filter.DueFrom))
	}
	if filter.DueTo != nil {
		base = base.Where("i.due_date <= ?::date", sqlDate(*filter.DueTo))
	}

	countQuery, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build installment count: %w", err)
	}
	var total int
	if err := tx.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count installments: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	query, args, err := base.Columns(
		"i.id", "i.payment_plan_id", "i.installment_number", "i.amount_cents", "i.due_date", "i.status",
		"i.voucher_ref", "i.voucher_submitted_at", "i.voucher_rejected_at", "i.voucher_rejection_reason", "i.paid_at",
		"e.id AS enrollment_id", "e.status AS enrollment_status", "e.student_id",
		"TRIM(s.first_name || ' ' || s.last_name) AS student_name", "s.dni AS student_dni", "s.parent_phone",
		"COALESCE(c.name, p.name) AS item_name", "cy.id AS cycle_id", "cy.name AS cycle_name",
	).
		OrderBy("i.due_date ASC", "i.installment_number ASC", "i.id ASC").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build installment report: %w", err)
	}
	rows := make([]models.InstallmentReportRow, 0)
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list installment report: %w", err)
	}
	for i := range rows {
		rows[i].Overdue = rows[i].Installment.Overdue(today)
		rows[i].EffectiveStatus = rows[i].Installment.EffectiveStatus(today)
	}
	return rows, total, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func execAffected(ctx context.Context, tx *sqlx.Tx, op, query string, args ...interface{}) (bool, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows: %w", op, err)
	}
	return affected == 1, nil
}

// sqlDate binds a calendar date as text so the DATE comparison does not depend
// on the session TimeZone.
func sqlDate(t time.Time) string {
	return t.Format("2006-01-02")
}
