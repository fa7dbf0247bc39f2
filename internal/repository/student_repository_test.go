package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
)

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewStudentRepository(db)
	parentPhone := "999111222"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students (id, dni, first_name, last_name, phone, parent_name, parent_phone, password_hash, created_at)")).
		WithArgs(sqlmock.AnyArg(), "12345678", "Ana", "Quispe", nil, nil, parentPhone, "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	student := &models.Student{DNI: "12345678", FirstName: "Ana", LastName: "Quispe", ParentPhone: &parentPhone, PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByDNI(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE dni = $1 LIMIT 1")).
		WithArgs("12345678").
		WillReturnRows(sqlmock.NewRows([]string{"id", "dni", "first_name", "last_name", "phone", "parent_name", "parent_phone", "password_hash", "created_at"}).
			AddRow("stu-1", "12345678", "Ana", "Quispe", nil, "Rosa", "999111222", "hash", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1 LIMIT 1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	student, err := repo.FindByDNI(context.Background(), "12345678")
	require.NoError(t, err)
	assert.Equal(t, "Ana Quispe", student.FullName())
	require.NotNil(t, student.ParentPhone)
	assert.Equal(t, "999111222", *student.ParentPhone)

	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByUsername(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, password_hash, role, created_at FROM users WHERE username = $1 LIMIT 1")).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "role", "created_at"}).
			AddRow("usr-1", "admin", "hash", "admin", time.Now()))

	user, err := repo.FindByUsername(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpsertReturnsStoredID(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash, role = EXCLUDED.role")).
		WithArgs(sqlmock.AnyArg(), "admin", "hash", models.RoleAdmin, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("usr-existing"))

	user := &models.User{Username: "admin", PasswordHash: "hash", Role: models.RoleAdmin}
	require.NoError(t, repo.Upsert(context.Background(), user))
	assert.Equal(t, "usr-existing", user.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCreateDefaultsStatus(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications_log (id, student_id, parent_phone, type, message, status, created_at)")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "999111222", models.NotificationTypePayment, "Pago recibido para la matrícula enr-1", models.NotificationStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &models.NotificationRecord{StudentID: "stu-1", ParentPhone: "999111222", Type: models.NotificationTypePayment, Message: "Pago recibido para la matrícula enr-1"}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.Equal(t, models.NotificationStatusPending, record.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryWithoutClientMisses(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest []string
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", []string{"v"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "k*"))
	generation, err := repo.Incr(context.Background(), "g")
	assert.NoError(t, err)
	assert.Zero(t, generation)
	assert.NoError(t, repo.Close())
}
