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

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const enrollmentColumns = `id, student_id, course_offering_id, package_offering_id, enrollment_type, status, decision_source, accepted_by, accepted_at, registered_at`

var enrollmentViewColumns = []string{
	"e.id",
	"e.student_id",
	"TRIM(s.first_name || ' ' || s.last_name) AS student_name",
	"s.dni AS student_dni",
	"e.enrollment_type",
	"COALESCE(e.course_offering_id, e.package_offering_id) AS offering_id",
	"COALESCE(co.course_id, po.package_id) AS item_id",
	"COALESCE(c.name, p.name) AS item_name",
	"COALESCE(co.group_label, po.group_label) AS group_label",
	"COALESCE(co.price_override_cents, c.base_price_cents, po.price_override_cents, p.base_price_cents, 0) AS price_cents",
	"cy.id AS cycle_id",
	"cy.name AS cycle_name",
	"cy.start_date AS cycle_start_date",
	"cy.end_date AS cycle_end_date",
	"e.status",
	"e.decision_source",
	"e.accepted_by",
	"e.accepted_at",
	"e.registered_at",
}

// enrollmentViewBase joins an enrollment to its student, offering, item and cycle.
// Exactly one of the course/package branches matches per row.
func enrollmentViewBase() sq.SelectBuilder {
	return psql.Select(enrollmentViewColumns...).
		From("enrollments e").
		Join("students s ON s.id = e.student_id").
		LeftJoin("course_offerings co ON co.id = e.course_offering_id").
		LeftJoin("courses c ON c.id = co.course_id").
		LeftJoin("package_offerings po ON po.id = e.package_offering_id").
		LeftJoin("packages p ON p.id = po.package_id").
		LeftJoin("cycles cy ON cy.id = COALESCE(co.cycle_id, po.cycle_id)")
}

// EnrollmentRepository handles persistence of enrollments and their transition log.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateWithTx inserts a new enrollment inside the caller's transaction.
func (r *EnrollmentRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.RegisteredAt.IsZero() {
		enrollment.RegisteredAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	const query = `INSERT INTO enrollments (id, student_id, course_offering_id, package_offering_id, enrollment_type, status, registered_at)
        VALUES (:id, :student_id, :course_offering_id, :package_offering_id, :enrollment_type, :status, :registered_at)`
	if _, err := tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// LockByIDTx loads an enrollment and holds a row lock until the transaction ends.
func (r *EnrollmentRepository) LockByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 FOR UPDATE`
	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// TransitionTx moves an enrollment from one status to another only if it is
// still in the expected status. It reports whether the row changed.
func (r *EnrollmentRepository) TransitionTx(ctx context.Context, tx *sqlx.Tx, id string, from, to models.EnrollmentStatus, source models.DecisionSource, acceptedBy *string, acceptedAt *time.Time) (bool, error) {
	const query = `UPDATE enrollments SET status = $1, decision_source = $2, accepted_by = $3, accepted_at = $4 WHERE id = $5 AND status = $6`
	res, err := tx.ExecContext(ctx, query, to, source, acceptedBy, acceptedAt, id, from)
	if err != nil {
		return false, fmt.Errorf("transition enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition enrollment rows: %w", err)
	}
	return affected == 1, nil
}

// InsertTransitionTx appends a transition audit row.
func (r *EnrollmentRepository) InsertTransitionTx(ctx context.Context, tx *sqlx.Tx, record *models.EnrollmentTransitionRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollment_transitions (id, enrollment_id, from_status, to_status, trigger, actor_id, reason, created_at)
        VALUES (:id, :enrollment_id, :from_status, :to_status, :trigger, :actor_id, :reason, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("record enrollment transition: %w", err)
	}
	return nil
}

// ListTransitions returns the audit trail of one enrollment, oldest first.
func (r *EnrollmentRepository) ListTransitions(ctx context.Context, enrollmentID string) ([]models.EnrollmentTransitionRecord, error) {
	const query = `SELECT id, enrollment_id, from_status, to_status, trigger, actor_id, reason, created_at
        FROM enrollment_transitions WHERE enrollment_id = $1 ORDER BY created_at ASC, id ASC`
	records := make([]models.EnrollmentTransitionRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment transitions: %w", err)
	}
	return records, nil
}

// ListViewsTx returns enrollment projections matching the filter, newest first.
func (r *EnrollmentRepository) ListViewsTx(ctx context.Context, tx *sqlx.Tx, filter models.EnrollmentFilter) ([]models.EnrollmentView, error) {
	builder := enrollmentViewBase()
	if filter.StudentID != "" {
		builder = builder.Where(sq.Eq{"e.student_id": filter.StudentID})
	}
	if filter.CycleID != "" {
		builder = builder.Where(sq.Eq{"cy.id": filter.CycleID})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"e.status": filter.Status})
	}
	if filter.Type != "" {
		builder = builder.Where(sq.Eq{"e.enrollment_type": filter.Type})
	}
	query, args, err := builder.OrderBy("e.registered_at DESC", "e.id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build enrollment view query: %w", err)
	}

	views := make([]models.EnrollmentView, 0)
	if err := tx.SelectContext(ctx, &views, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollment views: %w", err)
	}
	return views, nil
}
