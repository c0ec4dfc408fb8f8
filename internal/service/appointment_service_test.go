package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalogic/clinic-api/internal/models"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
)

type mockAppointmentRepo struct {
	appointments map[string]models.Appointment
	overlaps     []models.Appointment
	windowCalls  int
	deleted      []string
}

func (m *mockAppointmentRepo) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	out := make([]models.Appointment, 0, len(m.appointments))
	for _, a := range m.appointments {
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *mockAppointmentRepo) ListWindow(ctx context.Context, clinicID string, from, to time.Time) ([]models.Appointment, error) {
	m.windowCalls++
	out := make([]models.Appointment, 0, len(m.appointments))
	for _, a := range m.appointments {
		if a.ClinicID == clinicID && !a.StartTime.Before(from) && !a.StartTime.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) FindByID(ctx context.Context, clinicID, id string) (*models.Appointment, error) {
	if a, ok := m.appointments[id]; ok && a.ClinicID == clinicID {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAppointmentRepo) FindOverlapping(ctx context.Context, clinicID, dentistID string, from, to time.Time) ([]models.Appointment, error) {
	return m.overlaps, nil
}

func (m *mockAppointmentRepo) Create(ctx context.Context, appointment *models.Appointment) error {
	if m.appointments == nil {
		m.appointments = make(map[string]models.Appointment)
	}
	m.appointments[appointment.ID] = *appointment
	return nil
}

func (m *mockAppointmentRepo) Update(ctx context.Context, appointment *models.Appointment) error {
	m.appointments[appointment.ID] = *appointment
	return nil
}

func (m *mockAppointmentRepo) Delete(ctx context.Context, clinicID, id string) error {
	if _, ok := m.appointments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.appointments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockCacheStore struct {
	entries     map[string][]byte
	invalidated []string
}

func (m *mockCacheStore) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = raw
	return nil
}

func (m *mockCacheStore) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	m.entries = make(map[string][]byte)
	return nil
}

func TestAppointmentServiceCreate(t *testing.T) {
	repo := &mockAppointmentRepo{}
	svc := NewAppointmentService(repo, nil, nil, nil, nil, AppointmentServiceConfig{})

	appointment, err := svc.Create(context.Background(), "clinic-1", CreateAppointmentRequest{
		PatientID: strPtr("patient-1"),
		DentistID: strPtr("dentist-1"),
		StartTime: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		Title:     "Cleaning",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, appointment.ID)
	assert.Equal(t, "clinic-1", appointment.ClinicID)
	assert.Equal(t, string(models.StatusScheduled), appointment.Status)
	assert.Len(t, repo.appointments, 1)
}

func TestAppointmentServiceNotesOptional(t *testing.T) {
	repo := &mockAppointmentRepo{}
	svc := NewAppointmentService(repo, nil, nil, nil, nil, AppointmentServiceConfig{})

	withNotes, err := svc.Create(context.Background(), "clinic-1", CreateAppointmentRequest{
		PatientID: strPtr("patient-1"),
		StartTime: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		Title:     "Cleaning",
		Notes:     strPtr("sensitive gums"),
	})
	require.NoError(t, err)
	require.NotNil(t, withNotes.Notes)
	assert.Equal(t, "sensitive gums", *withNotes.Notes)

	withoutNotes, err := svc.Create(context.Background(), "clinic-1", CreateAppointmentRequest{
		PatientID: strPtr("patient-2"),
		StartTime: time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC),
		Title:     "Checkup",
	})
	require.NoError(t, err)
	assert.Nil(t, withoutNotes.Notes)

	updated, err := svc.Update(context.Background(), "clinic-1", withoutNotes.ID, UpdateAppointmentRequest{
		PatientID: withoutNotes.PatientID,
		StartTime: withoutNotes.StartTime,
		Status:    withoutNotes.Status,
		Title:     withoutNotes.Title,
		Notes:     strPtr("allergic to lidocaine"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "allergic to lidocaine", *updated.Notes)
}

func TestAppointmentServiceCreateDoubleBooked(t *testing.T) {
	conflicting := models.Appointment{
		ID:        "existing",
		ClinicID:  "clinic-1",
		DentistID: strPtr("dentist-1"),
		StartTime: time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC),
		Status:    "confirmed",
		Title:     "Filling",
	}
	repo := &mockAppointmentRepo{overlaps: []models.Appointment{conflicting}}
	svc := NewAppointmentService(repo, nil, nil, nil, nil, AppointmentServiceConfig{})

	_, err := svc.Create(context.Background(), "clinic-1", CreateAppointmentRequest{
		DentistID: strPtr("dentist-1"),
		StartTime: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		Title:     "Cleaning",
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrDoubleBooked.Code, appErr.Code)
	assert.Empty(t, repo.appointments)
}

func TestAppointmentServiceCreateUnassignedSkipsConflictCheck(t *testing.T) {
	// Overlap data present, but a slot without a dentist never conflicts.
	repo := &mockAppointmentRepo{overlaps: []models.Appointment{{ID: "existing"}}}
	svc := NewAppointmentService(repo, nil, nil, nil, nil, AppointmentServiceConfig{})

	_, err := svc.Create(context.Background(), "clinic-1", CreateAppointmentRequest{
		StartTime: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		Title:     "Walk-in",
	})
	require.NoError(t, err)
}

func TestAppointmentServiceCancel(t *testing.T) {
	repo := &mockAppointmentRepo{appointments: map[string]models.Appointment{
		"a1": {ID: "a1", ClinicID: "clinic-1", Status: "confirmed", Title: "Checkup"},
	}}
	svc := NewAppointmentService(repo, nil, nil, nil, nil, AppointmentServiceConfig{})

	appointment, err := svc.Cancel(context.Background(), "clinic-1", "a1")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusCancelled), appointment.Status)
}

func TestAppointmentServiceGetWrongClinic(t *testing.T) {
	repo := &mockAppointmentRepo{appointments: map[string]models.Appointment{
		"a1": {ID: "a1", ClinicID: "clinic-1", Title: "Checkup"},
	}}
	svc := NewAppointmentService(repo, nil, nil, nil, nil, AppointmentServiceConfig{})

	_, err := svc.Get(context.Background(), "clinic-2", "a1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestAppointmentServiceCalendarCaching(t *testing.T) {
	ref := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	repo := &mockAppointmentRepo{appointments: map[string]models.Appointment{
		"a1": {ID: "a1", ClinicID: "clinic-1", StartTime: ref.Add(9 * time.Hour), Status: "confirmed", Title: "Checkup"},
	}}
	store := &mockCacheStore{}
	cacheSvc := NewCacheService(store, nil, time.Minute, nil, true)
	svc := NewAppointmentService(repo, nil, cacheSvc, nil, nil, AppointmentServiceConfig{})

	state := models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityDay,
		StatusScope:   models.ScopeAll,
		CallerRole:    models.RoleAdmin,
	}

	view, cached, err := svc.Calendar(context.Background(), "clinic-1", state)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, view.Summary.Total)
	assert.Equal(t, 1, repo.windowCalls)

	again, cached, err := svc.Calendar(context.Background(), "clinic-1", state)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, again.Summary.Total)
	assert.Equal(t, 1, repo.windowCalls, "cache hit must not refetch the snapshot")
}

func TestAppointmentServiceWritesInvalidateCalendar(t *testing.T) {
	repo := &mockAppointmentRepo{}
	store := &mockCacheStore{entries: map[string][]byte{"calendar:clinic-1:stale": []byte("{}")}}
	cacheSvc := NewCacheService(store, nil, time.Minute, nil, true)
	svc := NewAppointmentService(repo, nil, cacheSvc, nil, nil, AppointmentServiceConfig{})

	_, err := svc.Create(context.Background(), "clinic-1", CreateAppointmentRequest{
		StartTime: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		Title:     "Cleaning",
	})
	require.NoError(t, err)
	require.Len(t, store.invalidated, 1)
	assert.Equal(t, "calendar:clinic-1:*", store.invalidated[0])
}

func TestAppointmentServiceCalendarKeyCollapsesAdmins(t *testing.T) {
	svc := NewAppointmentService(&mockAppointmentRepo{}, nil, nil, nil, nil, AppointmentServiceConfig{})
	ref := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	adminA := svc.calendarCacheKey("clinic-1", models.ViewState{ReferenceDate: ref, Granularity: models.GranularityDay, StatusScope: models.ScopeAll, CallerRole: models.RoleAdmin, CallerStaffID: "staff-1"})
	adminB := svc.calendarCacheKey("clinic-1", models.ViewState{ReferenceDate: ref, Granularity: models.GranularityDay, StatusScope: models.ScopeAll, CallerRole: models.RoleAdmin, CallerStaffID: "staff-2"})
	staff := svc.calendarCacheKey("clinic-1", models.ViewState{ReferenceDate: ref, Granularity: models.GranularityDay, StatusScope: models.ScopeAll, CallerRole: models.RoleStaff, CallerStaffID: "staff-2"})

	assert.Equal(t, adminA, adminB)
	assert.NotEqual(t, adminA, staff)
}
