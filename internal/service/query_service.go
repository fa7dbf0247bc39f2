package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
	"github.com/noah-isme/academy-enrollment-api/pkg/database"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
	"github.com/noah-isme/academy-enrollment-api/pkg/export"
)

const (
	defaultReportPageSize = 50
	maxReportPageSize     = 500
)

type enrollmentViewReader interface {
	ListViewsTx(ctx context.Context, tx *sqlx.Tx, filter models.EnrollmentFilter) ([]models.EnrollmentView, error)
}

type paymentViewReader interface {
	PlansByEnrollmentTx(ctx context.Context, tx *sqlx.Tx, enrollmentIDs []string) ([]models.PaymentPlan, error)
	InstallmentsByPlanTx(ctx context.Context, tx *sqlx.Tx, planIDs []string) ([]models.Installment, error)
	ListReportTx(ctx context.Context, tx *sqlx.Tx, filter models.InstallmentFilter, today time.Time) ([]models.InstallmentReportRow, int, error)
}

// EnrollmentQueryServiceParams groups constructor dependencies.
type EnrollmentQueryServiceParams struct {
	Tx          txProvider
	Enrollments enrollmentViewReader
	Payments    paymentViewReader
	Cache       *CacheService
	CacheTTL    time.Duration
	Renderers   map[string]export.Renderer
	Logger      *zap.Logger
}

// EnrollmentQueryService serves read projections of enrollments, plans and installments.
type EnrollmentQueryService struct {
	tx          txProvider
	enrollments enrollmentViewReader
	payments    paymentViewReader
	cache       *CacheService
	cacheTTL    time.Duration
	renderers   map[string]export.Renderer
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentQueryService constructs EnrollmentQueryService. CSV and PDF
// renderers are registered when none are supplied.
func NewEnrollmentQueryService(params EnrollmentQueryServiceParams) *EnrollmentQueryService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	renderers := params.Renderers
	if len(renderers) == 0 {
		renderers = map[string]export.Renderer{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		}
	}
	return &EnrollmentQueryService{
		tx:          params.Tx,
		enrollments: params.Enrollments,
		payments:    params.Payments,
		cache:       params.Cache,
		cacheTTL:    params.CacheTTL,
		renderers:   renderers,
		logger:      logger,
		now:         time.Now,
	}
}

// GetEnrollmentsForStudent lists a student's enrollments, newest first.
func (s *EnrollmentQueryService) GetEnrollmentsForStudent(ctx context.Context, studentID string) ([]models.EnrollmentView, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "student id is required")
	}
	return s.listViews(ctx, models.EnrollmentFilter{StudentID: studentID})
}

// GetAllEnrollmentsAdmin lists enrollments matching filter. The bool reports a cache hit.
func (s *EnrollmentQueryService) GetAllEnrollmentsAdmin(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentView, bool, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown type %q", filter.Type))
	}

	generation, cacheable := s.cache.EnrollmentsGeneration(ctx)
	key := adminEnrollmentsCacheKey(filter, generation, s.now())
	if cacheable {
		var cached []models.EnrollmentView
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, true, nil
		}
	}

	views, err := s.listViews(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	if cacheable {
		_ = s.cache.Set(ctx, key, views, s.cacheTTL)
	}
	return views, false, nil
}

func (s *EnrollmentQueryService) listViews(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentView, error) {
	today := s.now().UTC()
	var views []models.EnrollmentView
	err := database.WithTx(ctx, s.tx, database.SnapshotTx, func(tx *sqlx.Tx) error {
		var err error
		views, err = s.enrollments.ListViewsTx(ctx, tx, filter)
		if err != nil {
			return internalError(err, "failed to list enrollments")
		}
		if len(views) == 0 {
			return nil
		}

		enrollmentIDs := make([]string, len(views))
		for i, view := range views {
			enrollmentIDs[i] = view.ID
		}
		plans, err := s.payments.PlansByEnrollmentTx(ctx, tx, enrollmentIDs)
		if err != nil {
			return internalError(err, "failed to load payment plans")
		}
		if len(plans) == 0 {
			return nil
		}

		planIDs := make([]string, len(plans))
		for i, plan := range plans {
			planIDs[i] = plan.ID
		}
		installments, err := s.payments.InstallmentsByPlanTx(ctx, tx, planIDs)
		if err != nil {
			return internalError(err, "failed to load installments")
		}

		byPlan := make(map[string][]models.Installment, len(plans))
		for _, inst := range installments {
			byPlan[inst.PaymentPlanID] = append(byPlan[inst.PaymentPlanID], inst)
		}
		byEnrollment := make(map[string]*models.PaymentPlanView, len(plans))
		for _, plan := range plans {
			byEnrollment[plan.EnrollmentID] = models.NewPaymentPlanView(plan, byPlan[plan.ID], today)
		}
		for i := range views {
			views[i].Plan = byEnrollment[views[i].ID]
		}
		return nil
	})
	if err != nil {
		return nil, internalError(err, "failed to list enrollments")
	}
	if views == nil {
		views = []models.EnrollmentView{}
	}
	return views, nil
}

// ListInstallments returns one page of the installment report.
func (s *EnrollmentQueryService) ListInstallments(ctx context.Context, filter models.InstallmentFilter) ([]models.InstallmentReportRow, *models.Pagination, error) {
	if err := validateInstallmentFilter(filter); err != nil {
		return nil, nil, err
	}
	filter.Page, filter.PageSize = normalizeReportPage(filter.Page, filter.PageSize)
	today := s.now().UTC()

	var (
		rows  []models.InstallmentReportRow
		total int
	)
	err := database.WithTx(ctx, s.tx, database.SnapshotTx, func(tx *sqlx.Tx) error {
		var err error
		rows, total, err = s.payments.ListReportTx(ctx, tx, filter, today)
		return err
	})
	if err != nil {
		return nil, nil, internalError(err, "failed to list installments")
	}
	deriveOverdue(rows, today)
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ExportFile is a rendered report ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportInstallments renders every installment matching filter in the given format.
func (s *EnrollmentQueryService) ExportInstallments(ctx context.Context, filter models.InstallmentFilter, format string) (*ExportFile, error) {
	renderer, ok := s.renderers[strings.ToLower(format)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unsupported export format %q", format))
	}
	if err := validateInstallmentFilter(filter); err != nil {
		return nil, err
	}
	today := s.now().UTC()

	var all []models.InstallmentReportRow
	err := database.WithTx(ctx, s.tx, database.SnapshotTx, func(tx *sqlx.Tx) error {
		page := filter
		page.PageSize = maxReportPageSize
		for page.Page = 1; ; page.Page++ {
			rows, total, err := s.payments.ListReportTx(ctx, tx, page, today)
			if err != nil {
				return err
			}
			all = append(all, rows...)
			if len(rows) == 0 || len(all) >= total {
				return nil
			}
		}
	})
	if err != nil {
		return nil, internalError(err, "failed to export installments")
	}
	deriveOverdue(all, today)

	data, err := renderer.Render(installmentDataset(all))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("installments exported", zap.String("format", format), zap.Int("rows", len(all)))
	return &ExportFile{
		Filename:    "cuotas-" + today.Format("20060102") + renderer.Extension(),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func installmentDataset(rows []models.InstallmentReportRow) export.Dataset {
	dataset := export.Dataset{
		Title:   "Reporte de cuotas",
		Headers: []string{"dni", "estudiante", "curso", "ciclo", "cuota", "monto", "vencimiento", "estado", "voucher"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		cycle := ""
		if row.CycleName != nil {
			cycle = *row.CycleName
		}
		voucher := ""
		if row.VoucherRef != nil {
			voucher = *row.VoucherRef
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"dni":         row.StudentDNI,
			"estudiante":  row.StudentName,
			"curso":       row.ItemName,
			"ciclo":       cycle,
			"cuota":       strconv.Itoa(row.Number),
			"monto":       row.Amount.String(),
			"vencimiento": row.DueDate.Format("2006-01-02"),
			"estado":      string(row.EffectiveStatus),
			"voucher":     voucher,
		})
	}
	return dataset
}

func deriveOverdue(rows []models.InstallmentReportRow, today time.Time) {
	for i := range rows {
		rows[i].Overdue = rows[i].Installment.Overdue(today)
		rows[i].EffectiveStatus = rows[i].Installment.EffectiveStatus(today)
	}
}

func validateInstallmentFilter(filter models.InstallmentFilter) error {
	switch filter.Status {
	case "", models.InstallmentStatusPending, models.InstallmentStatusPaid, models.InstallmentStatusOverdue:
	default:
		return appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("unknown installment status %q", filter.Status))
	}
	if filter.DueFrom != nil && filter.DueTo != nil && filter.DueTo.Before(*filter.DueFrom) {
		return appErrors.Clone(appErrors.ErrInvalidInput, "due_to is before due_from")
	}
	return nil
}

func normalizeReportPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultReportPageSize
	}
	if size > maxReportPageSize {
		size = maxReportPageSize
	}
	return page, size
}

// adminEnrollmentsCacheKey includes the date because overdue flags change at midnight.
func adminEnrollmentsCacheKey(filter models.EnrollmentFilter, generation int64, now time.Time) string {
	return cacheKeyAdminEnrollments + strings.Join([]string{
		"g" + strconv.FormatInt(generation, 10),
		now.UTC().Format("20060102"),
		filter.StudentID,
		filter.CycleID,
		string(filter.Status),
		string(filter.Type),
	}, ":")
}
