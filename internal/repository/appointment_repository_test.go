package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalogic/clinic-api/internal/models"
)

func newAppointmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func appointmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "clinic_id", "patient_id", "patient_name", "dentist_id", "start_time", "duration_minutes", "status", "title", "treatment_type", "notes", "created_at", "updated_at"})
}

func TestAppointmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	rows := appointmentRows().
		AddRow("a1", "clinic-1", "p1", "Jane Roe", "d1", time.Now(), 30, "confirmed", "Cleaning", "cleaning", nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT a.id, a.clinic_id, .+ FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id WHERE a.clinic_id = \\$1 AND a.dentist_id = \\$2 ORDER BY a.start_time ASC, a.id ASC LIMIT 20 OFFSET 0").
		WithArgs("clinic-1", "d1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id WHERE a.clinic_id = $1 AND a.dentist_id = $2")).
		WithArgs("clinic-1", "d1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	appointments, total, err := repo.List(context.Background(), models.AppointmentFilter{ClinicID: "clinic-1", DentistID: "d1"})
	require.NoError(t, err)
	assert.Len(t, appointments, 1)
	assert.Equal(t, 1, total)
	require.NotNil(t, appointments[0].PatientName)
	assert.Equal(t, "Jane Roe", *appointments[0].PatientName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryListWindow(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	rows := appointmentRows().
		AddRow("a1", "clinic-1", nil, nil, nil, from.Add(9*time.Hour), nil, "scheduled", "Block", "block", nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT a.id, a.clinic_id, .+ FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id WHERE a.clinic_id = \\$1 AND a.start_time >= \\$2 AND a.start_time <= \\$3").
		WithArgs("clinic-1", from, to).
		WillReturnRows(rows)

	appointments, err := repo.ListWindow(context.Background(), "clinic-1", from, to)
	require.NoError(t, err)
	require.Len(t, appointments, 1)
	assert.True(t, appointments[0].IsBlockedTime())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryFindOverlapping(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	from := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	mock.ExpectQuery("SELECT a.id, a.clinic_id, .+ LOWER\\(a.status\\) NOT IN \\('cancelled', 'no_show'\\)").
		WithArgs("clinic-1", "d1", from, to).
		WillReturnRows(appointmentRows())

	overlaps, err := repo.FindOverlapping(context.Background(), "clinic-1", "d1", from, to)
	require.NoError(t, err)
	assert.Empty(t, overlaps)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	appointment := &models.Appointment{
		ClinicID:  "clinic-1",
		StartTime: time.Now().UTC(),
		Status:    "scheduled",
		Title:     "Cleaning",
	}
	err := repo.Create(context.Background(), appointment)
	require.NoError(t, err)
	assert.NotEmpty(t, appointment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("DELETE FROM appointments").
		WithArgs("clinic-1", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "clinic-1", "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
