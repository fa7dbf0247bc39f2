package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
)

const migrationsTable = "schema_migrations"

// Migration is one forward-only schema step.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	AppliedAt *time.Time
}

const migration001Identity = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    username VARCHAR(64) NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role VARCHAR(16) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT users_role_check CHECK (role IN ('admin', 'teacher'))
);

CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY,
    dni VARCHAR(20) NOT NULL UNIQUE,
    first_name VARCHAR(100) NOT NULL,
    last_name VARCHAR(100) NOT NULL,
    phone VARCHAR(32),
    parent_name VARCHAR(150),
    parent_phone VARCHAR(32),
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration002Catalog = `
CREATE TABLE IF NOT EXISTS cycles (
    id UUID PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    start_date DATE NOT NULL,
    end_date DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
    id UUID PRIMARY KEY,
    name VARCHAR(150) NOT NULL,
    base_price_cents BIGINT
);

CREATE TABLE IF NOT EXISTS packages (
    id UUID PRIMARY KEY,
    name VARCHAR(150) NOT NULL,
    base_price_cents BIGINT
);

CREATE TABLE IF NOT EXISTS course_offerings (
    id UUID PRIMARY KEY,
    course_id UUID NOT NULL REFERENCES courses(id),
    cycle_id UUID REFERENCES cycles(id),
    group_label VARCHAR(50),
    price_override_cents BIGINT,
    capacity INTEGER
);

CREATE TABLE IF NOT EXISTS package_offerings (
    id UUID PRIMARY KEY,
    package_id UUID NOT NULL REFERENCES packages(id),
    cycle_id UUID REFERENCES cycles(id),
    group_label VARCHAR(50),
    price_override_cents BIGINT,
    capacity INTEGER
);
`

const migration003Enrollments = `
CREATE TABLE IF NOT EXISTS enrollments (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id),
    course_offering_id UUID REFERENCES course_offerings(id),
    package_offering_id UUID REFERENCES package_offerings(id),
    enrollment_type VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pendiente',
    decision_source VARCHAR(16),
    accepted_by UUID,
    accepted_at TIMESTAMPTZ,
    registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT enrollments_status_check CHECK (status IN ('pendiente', 'aceptado', 'rechazado', 'cancelado')),
    CONSTRAINT enrollments_offering_check CHECK (
        (enrollment_type = 'course' AND course_offering_id IS NOT NULL AND package_offering_id IS NULL) OR
        (enrollment_type = 'package' AND package_offering_id IS NOT NULL AND course_offering_id IS NULL)
    )
);

CREATE INDEX IF NOT EXISTS idx_enrollments_student ON enrollments(student_id, registered_at DESC);
CREATE INDEX IF NOT EXISTS idx_enrollments_status ON enrollments(status);

CREATE TABLE IF NOT EXISTS enrollment_transitions (
    id UUID PRIMARY KEY,
    enrollment_id UUID NOT NULL REFERENCES enrollments(id),
    from_status VARCHAR(16) NOT NULL,
    to_status VARCHAR(16) NOT NULL,
    trigger VARCHAR(32) NOT NULL,
    actor_id UUID,
    reason VARCHAR(64) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_enrollment_transitions_enrollment ON enrollment_transitions(enrollment_id, created_at);
`

const migration004Payments = `
CREATE TABLE IF NOT EXISTS payment_plans (
    id UUID PRIMARY KEY,
    enrollment_id UUID NOT NULL UNIQUE REFERENCES enrollments(id) ON DELETE CASCADE,
    total_amount_cents BIGINT NOT NULL CHECK (total_amount_cents >= 0),
    installment_count INTEGER NOT NULL CHECK (installment_count > 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS installments (
    id UUID PRIMARY KEY,
    payment_plan_id UUID NOT NULL REFERENCES payment_plans(id) ON DELETE CASCADE,
    installment_number INTEGER NOT NULL CHECK (installment_number > 0),
    amount_cents BIGINT NOT NULL CHECK (amount_cents >= 0),
    due_date DATE NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    voucher_ref TEXT,
    voucher_submitted_at TIMESTAMPTZ,
    voucher_rejected_at TIMESTAMPTZ,
    voucher_rejection_reason TEXT,
    paid_at TIMESTAMPTZ,
    CONSTRAINT installments_status_check CHECK (status IN ('pending', 'paid')),
    CONSTRAINT installments_plan_number_key UNIQUE (payment_plan_id, installment_number)
);

CREATE INDEX IF NOT EXISTS idx_installments_due ON installments(status, due_date);

CREATE TABLE IF NOT EXISTS notifications_log (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL,
    parent_phone VARCHAR(32) NOT NULL,
    type VARCHAR(32) NOT NULL,
    message TEXT NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrations returns the embedded schema history in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_identity", UpSQL: migration001Identity},
		{Version: 2, Name: "create_catalog", UpSQL: migration002Catalog},
		{Version: 3, Name: "create_enrollments", UpSQL: migration003Enrollments},
		{Version: 4, Name: "create_payments", UpSQL: migration004Payments},
	}
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	db         *sqlx.DB
	migrations []Migration
}

// NewMigrator builds a migrator over the embedded migrations.
func NewMigrator(db *sqlx.DB) *Migrator {
	migrations := Migrations()
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return &Migrator{db: db, migrations: migrations}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    version INTEGER PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, migrationsTable)
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows := []struct {
		Version   int       `db:"version"`
		AppliedAt time.Time `db:"applied_at"`
	}{}
	query := fmt.Sprintf("SELECT version, applied_at FROM %s", migrationsTable)
	if err := m.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	applied := make(map[int]time.Time, len(rows))
	for _, row := range rows {
		applied[row.Version] = row.AppliedAt
	}
	return applied, nil
}

// Up applies every pending migration, each in its own transaction, and returns
// the versions it applied.
func (m *Migrator) Up(ctx context.Context) ([]int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	var done []int
	insert := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", migrationsTable)
	for _, migration := range m.migrations {
		if _, ok := applied[migration.Version]; ok {
			continue
		}
		err := WithTx(ctx, m.db, nil, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, insert, migration.Version, migration.Name)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("apply migration %03d_%s: %w", migration.Version, migration.Name, err)
		}
		done = append(done, migration.Version)
	}
	return done, nil
}

// Status reports every embedded migration with its applied timestamp when present.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			at := at
			result[i].AppliedAt = &at
		}
	}
	return result, nil
}
