package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-enrollment-api/internal/dto"
	"github.com/noah-isme/academy-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
)

var fixedNow = time.Date(2024, time.March, 4, 15, 30, 0, 0, time.UTC)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type enrollmentStoreStub struct {
	mu          sync.Mutex
	enrollments map[string]*models.Enrollment
	transitions []models.EnrollmentTransitionRecord
	createErr   error
}

func newEnrollmentStoreStub(seed ...models.Enrollment) *enrollmentStoreStub {
	stub := &enrollmentStoreStub{enrollments: make(map[string]*models.Enrollment)}
	for i := range seed {
		e := seed[i]
		stub.enrollments[e.ID] = &e
	}
	return stub
}

func (s *enrollmentStoreStub) CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *enrollment
	s.enrollments[e.ID] = &e
	return nil
}

func (s *enrollmentStoreStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *e
	return &clone, nil
}

func (s *enrollmentStoreStub) LockByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	return s.FindByID(ctx, id)
}

func (s *enrollmentStoreStub) TransitionTx(ctx context.Context, tx *sqlx.Tx, id string, from, to models.EnrollmentStatus, source models.DecisionSource, acceptedBy *string, acceptedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	e.DecisionSource = &source
	e.AcceptedBy = acceptedBy
	e.AcceptedAt = acceptedAt
	return true, nil
}

func (s *enrollmentStoreStub) InsertTransitionTx(ctx context.Context, tx *sqlx.Tx, record *models.EnrollmentTransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, *record)
	return nil
}

func (s *enrollmentStoreStub) ListTransitions(ctx context.Context, enrollmentID string) ([]models.EnrollmentTransitionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EnrollmentTransitionRecord
	for _, record := range s.transitions {
		if record.EnrollmentID == enrollmentID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *enrollmentStoreStub) get(id string) models.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.enrollments[id]
}

type planWriterStub struct {
	plans          []models.PaymentPlan
	installments   []models.Installment
	planErr        error
	installmentErr error
}

func (p *planWriterStub) CreatePlanWithTx(ctx context.Context, tx *sqlx.Tx, plan *models.PaymentPlan) error {
	if p.planErr != nil {
		return p.planErr
	}
	p.plans = append(p.plans, *plan)
	return nil
}

func (p *planWriterStub) BulkCreateInstallmentsWithTx(ctx context.Context, tx *sqlx.Tx, installments []models.Installment) error {
	if p.installmentErr != nil {
		return p.installmentErr
	}
	p.installments = append(p.installments, installments...)
	return nil
}

func studentPrincipal(id string) *models.Principal {
	return &models.Principal{SubjectID: id, Role: models.RoleStudent}
}

type enrollmentFixture struct {
	svc         *EnrollmentService
	mock        sqlmock.Sqlmock
	enrollments *enrollmentStoreStub
	plans       *planWriterStub
}

func newEnrollmentFixture(t *testing.T, schedule models.SchedulePolicy, seed ...models.Enrollment) enrollmentFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	enrollments := newEnrollmentStoreStub(seed...)
	plans := &planWriterStub{}
	catalog := newCatalogStub()
	catalog.offerings["course:co-500"] = &models.Offering{ID: "co-500", ItemID: "course-500"}
	catalog.offerings["course:co-450"] = &models.Offering{ID: "co-450", ItemID: "course-500", PriceOverride: moneyPtr(45000)}
	catalog.basePrices["course-500"] = moneyPtr(50000)

	svc := NewEnrollmentService(EnrollmentServiceParams{
		Tx:          tx,
		Enrollments: enrollments,
		Plans:       plans,
		Pricing:     NewPricingService(catalog, nil),
		Schedule:    schedule,
		Metrics:     NewMetricsService(),
	})
	svc.now = func() time.Time { return fixedNow }
	return enrollmentFixture{svc: svc, mock: mock, enrollments: enrollments, plans: plans}
}

func TestEnrollCreatesPendingEnrollmentWithSingleInstallment(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	receipts, err := f.svc.Enroll(context.Background(), studentPrincipal("stu-1"), dto.EnrollRequest{
		Items: []dto.EnrollItem{{Type: models.OfferingTypeCourse, OfferingID: "co-500"}},
	})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.NoError(t, f.mock.ExpectationsWereMet())

	receipt := receipts[0]
	assert.Equal(t, models.Money(50000), receipt.Amount)
	assert.Equal(t, "co-500", receipt.OfferingID)
	assert.Equal(t, []string{receipt.InstallmentID}, receipt.InstallmentIDs)

	enrollment := f.enrollments.get(receipt.EnrollmentID)
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	assert.Equal(t, "stu-1", enrollment.StudentID)
	require.NotNil(t, enrollment.CourseOfferingID)
	assert.Nil(t, enrollment.PackageOfferingID)

	require.Len(t, f.plans.plans, 1)
	assert.Equal(t, models.Money(50000), f.plans.plans[0].TotalAmount)
	assert.Equal(t, 1, f.plans.plans[0].InstallmentCount)

	require.Len(t, f.plans.installments, 1)
	inst := f.plans.installments[0]
	assert.Equal(t, receipt.InstallmentID, inst.ID)
	assert.Equal(t, models.Money(50000), inst.Amount)
	assert.Equal(t, models.InstallmentStatusPending, inst.Status)
	assert.Equal(t, time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), inst.DueDate)
}

func TestEnrollUsesPriceOverride(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	receipts, err := f.svc.Enroll(context.Background(), studentPrincipal("stu-1"), dto.EnrollRequest{
		Items: []dto.EnrollItem{{Type: models.OfferingTypeCourse, OfferingID: "co-450"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.Money(45000), receipts[0].Amount)
	assert.Equal(t, models.Money(45000), f.plans.installments[0].Amount)
}

func TestEnrollSplitsPlanAcrossInstallments(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{Count: 3, FirstDueDays: 7, IntervalDays: 30})
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	receipts, err := f.svc.Enroll(context.Background(), studentPrincipal("stu-1"), dto.EnrollRequest{
		Items: []dto.EnrollItem{
			{Type: models.OfferingTypeCourse, OfferingID: "co-500"},
			{Type: models.OfferingTypePackage, OfferingID: "po-1"},
		},
	})
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	require.Len(t, f.plans.installments, 6)

	for _, plan := range f.plans.plans {
		var sum models.Money
		for _, inst := range f.plans.installments {
			if inst.PaymentPlanID == plan.ID {
				sum += inst.Amount
			}
		}
		assert.Equal(t, plan.TotalAmount, sum)
	}
	assert.Equal(t, []models.Money{16666, 16666, 16668}, []models.Money{
		f.plans.installments[0].Amount, f.plans.installments[1].Amount, f.plans.installments[2].Amount,
	})
	assert.Equal(t, time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC), f.plans.installments[2].DueDate)

	pkg := f.enrollments.get(receipts[1].EnrollmentID)
	assert.Equal(t, models.OfferingTypePackage, pkg.Type)
	require.NotNil(t, pkg.PackageOfferingID)
	assert.Equal(t, "po-1", *pkg.PackageOfferingID)
}

func TestEnrollRollsBackWholeBatchOnMissingOffering(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{})
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	receipts, err := f.svc.Enroll(context.Background(), studentPrincipal("stu-1"), dto.EnrollRequest{
		Items: []dto.EnrollItem{
			{Type: models.OfferingTypeCourse, OfferingID: "co-500"},
			{Type: models.OfferingTypeCourse, OfferingID: "missing"},
		},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Nil(t, receipts)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollRollsBackWhenInstallmentInsertFails(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{})
	f.plans.installmentErr = errors.New("connection reset by peer")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	receipts, err := f.svc.Enroll(context.Background(), studentPrincipal("stu-1"), dto.EnrollRequest{
		Items: []dto.EnrollItem{{Type: models.OfferingTypeCourse, OfferingID: "co-500"}},
	})
	require.Error(t, err)
	assert.Nil(t, receipts)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Len(t, f.plans.plans, 1)
	assert.Empty(t, f.plans.installments)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollRollsBackWhenPlanInsertFails(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{})
	f.plans.planErr = errors.New("deadlock detected")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	receipts, err := f.svc.Enroll(context.Background(), studentPrincipal("stu-1"), dto.EnrollRequest{
		Items: []dto.EnrollItem{{Type: models.OfferingTypeCourse, OfferingID: "co-500"}},
	})
	require.Error(t, err)
	assert.Nil(t, receipts)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, f.plans.installments)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEnrollRejectsBadCallers(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{})
	req := dto.EnrollRequest{Items: []dto.EnrollItem{{Type: models.OfferingTypeCourse, OfferingID: "co-500"}}}

	_, err := f.svc.Enroll(context.Background(), nil, req)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthenticated))

	_, err = f.svc.Enroll(context.Background(), &models.Principal{Role: models.RoleStudent}, req)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthenticated))

	_, err = f.svc.Enroll(context.Background(), &models.Principal{SubjectID: "adm-1", Role: models.RoleAdmin}, req)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.Enroll(context.Background(), studentPrincipal("stu-1"), dto.EnrollRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidInput))

	_, err = f.svc.Enroll(context.Background(), studentPrincipal("stu-1"), dto.EnrollRequest{
		Items: []dto.EnrollItem{{Type: "bundle", OfferingID: "co-500"}},
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidInput))

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func pendingEnrollment(id string) models.Enrollment {
	return models.NewEnrollment(id, "stu-1", models.OfferingTypeCourse, "co-500", fixedNow.Add(-24*time.Hour))
}

func TestSetStatusAcceptsPendingEnrollment(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{}, pendingEnrollment("enr-1"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	updated, err := f.svc.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusAccepted, "adm-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusAccepted, updated.Status)
	require.NotNil(t, updated.AcceptedBy)
	assert.Equal(t, "adm-1", *updated.AcceptedBy)

	stored := f.enrollments.get("enr-1")
	assert.Equal(t, models.EnrollmentStatusAccepted, stored.Status)
	require.NotNil(t, stored.AcceptedAt)
	assert.Equal(t, fixedNow, *stored.AcceptedAt)
	require.NotNil(t, stored.DecisionSource)
	assert.Equal(t, models.DecisionSourceManual, *stored.DecisionSource)

	require.Len(t, f.enrollments.transitions, 1)
	record := f.enrollments.transitions[0]
	assert.Equal(t, models.TriggerManualDecision, record.Trigger)
	assert.Equal(t, models.EnrollmentStatusPending, record.FromStatus)
	assert.Equal(t, models.EnrollmentStatusAccepted, record.ToStatus)
	require.NotNil(t, record.ActorID)
	assert.Equal(t, "adm-1", *record.ActorID)
}

func TestSetStatusRejectionClearsAcceptanceFields(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{}, pendingEnrollment("enr-1"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	updated, err := f.svc.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusRejected, "adm-1")
	require.NoError(t, err)
	assert.Nil(t, updated.AcceptedBy)
	assert.Nil(t, updated.AcceptedAt)

	stored := f.enrollments.get("enr-1")
	assert.Equal(t, models.EnrollmentStatusRejected, stored.Status)
	assert.Nil(t, stored.AcceptedBy)
	assert.Nil(t, stored.AcceptedAt)
}

func TestSetStatusRefusesDecidedEnrollment(t *testing.T) {
	decided := pendingEnrollment("enr-1")
	decided.Status = models.EnrollmentStatusRejected
	f := newEnrollmentFixture(t, models.SchedulePolicy{}, decided)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusAccepted, "adm-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, models.EnrollmentStatusRejected, f.enrollments.get("enr-1").Status)
	assert.Empty(t, f.enrollments.transitions)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSetStatusValidatesInput(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{})

	_, err := f.svc.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusPending, "adm-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidInput))

	_, err = f.svc.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusAccepted, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthenticated))

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.SetStatus(context.Background(), "missing", models.EnrollmentStatusCancelled, "adm-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListTransitionsReturnsAuditTrail(t *testing.T) {
	f := newEnrollmentFixture(t, models.SchedulePolicy{}, pendingEnrollment("enr-1"))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := f.svc.SetStatus(context.Background(), "enr-1", models.EnrollmentStatusCancelled, "adm-1")
	require.NoError(t, err)

	records, err := f.svc.ListTransitions(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.EnrollmentStatusCancelled, records[0].ToStatus)

	_, err = f.svc.ListTransitions(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
