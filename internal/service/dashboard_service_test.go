package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalogic/clinic-api/internal/models"
)

type stubAppointmentSource struct {
	views map[models.Granularity]*models.ResolvedView
	calls int
}

func (s *stubAppointmentSource) Calendar(ctx context.Context, clinicID string, state models.ViewState) (*models.ResolvedView, bool, error) {
	s.calls++
	if view, ok := s.views[state.Granularity]; ok {
		return view, false, nil
	}
	return &models.ResolvedView{}, false, nil
}

type stubPatientCounter struct{ active int }

func (s *stubPatientCounter) CountActive(ctx context.Context, clinicID string) (int, error) {
	return s.active, nil
}

type stubDentistLister struct{ dentists []models.Dentist }

func (s *stubDentistLister) List(ctx context.Context, filter models.DentistFilter) ([]models.Dentist, int, error) {
	return s.dentists, len(s.dentists), nil
}

type stubRevenueProvider struct {
	summary *models.RevenueSummary
	err     error
}

func (s *stubRevenueProvider) Revenue(ctx context.Context, clinicID string, from, to time.Time) (*models.RevenueSummary, error) {
	return s.summary, s.err
}

func dashboardFixture() (*stubAppointmentSource, *DashboardService) {
	day := &models.ResolvedView{Summary: models.ViewSummary{Total: 4, Confirmed: 2, Scheduled: 2, TotalMinutes: 240}}
	week := &models.ResolvedView{Items: []models.DisplayAppointment{
		{ID: "a", DentistID: "d1", DurationMinutes: 60},
		{ID: "b", DentistID: "d1", DurationMinutes: 30},
		{ID: "c", DentistID: "d2", DurationMinutes: 45},
		{ID: "block", DentistID: "d2", DurationMinutes: 120, IsBlockedTime: true},
		{ID: "unassigned", DurationMinutes: 60},
	}}
	appointments := &stubAppointmentSource{views: map[models.Granularity]*models.ResolvedView{
		models.GranularityDay:  day,
		models.GranularityWeek: week,
	}}
	svc := NewDashboardService(DashboardServiceParams{
		Appointments: appointments,
		Patients:     &stubPatientCounter{active: 128},
		Dentists: &stubDentistLister{dentists: []models.Dentist{
			{ID: "d1", FullName: "Dr. Lee"},
			{ID: "d2", FullName: "Dr. Adams"},
			{ID: "d3", FullName: "Dr. Zhou"},
		}},
		Billing: &stubRevenueProvider{summary: &models.RevenueSummary{PaidCents: 120000}},
		Config:  DashboardServiceConfig{RevenueEnabled: true},
	})
	return appointments, svc
}

func TestDashboardOverview(t *testing.T) {
	_, svc := dashboardFixture()
	date := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	overview, cached, err := svc.Overview(context.Background(), "clinic-1", date)
	require.NoError(t, err)
	assert.False(t, cached)

	assert.Equal(t, 4, overview.Today.Total)
	assert.Equal(t, 128, overview.ActivePatients)
	require.NotNil(t, overview.Revenue)
	assert.Equal(t, int64(120000), overview.Revenue.PaidCents)

	// Busiest dentist first; blocked time and unassigned slots don't count.
	require.Len(t, overview.WeekLoad, 3)
	assert.Equal(t, "d1", overview.WeekLoad[0].DentistID)
	assert.Equal(t, 90, overview.WeekLoad[0].BookedMinutes)
	assert.Equal(t, 2, overview.WeekLoad[0].Appointments)
	assert.Equal(t, "d2", overview.WeekLoad[1].DentistID)
	assert.Equal(t, 45, overview.WeekLoad[1].BookedMinutes)
	assert.Equal(t, "d3", overview.WeekLoad[2].DentistID)
	assert.Equal(t, 0, overview.WeekLoad[2].BookedMinutes)
}

func TestDashboardOverviewRequiresClinic(t *testing.T) {
	_, svc := dashboardFixture()

	_, _, err := svc.Overview(context.Background(), "", time.Now().UTC())
	require.Error(t, err)
}

func TestDashboardOverviewSurvivesRevenueFailure(t *testing.T) {
	appointments := &stubAppointmentSource{views: map[models.Granularity]*models.ResolvedView{}}
	svc := NewDashboardService(DashboardServiceParams{
		Appointments: appointments,
		Patients:     &stubPatientCounter{},
		Dentists:     &stubDentistLister{},
		Billing:      &stubRevenueProvider{err: assert.AnError},
		Config:       DashboardServiceConfig{RevenueEnabled: true},
	})

	overview, _, err := svc.Overview(context.Background(), "clinic-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, overview.Revenue)
}

func TestDashboardOverviewUsesCache(t *testing.T) {
	appointments, svc := dashboardFixture()
	store := &mockCacheStore{}
	svc.cache = NewCacheService(store, nil, time.Minute, nil, true)
	date := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	_, cached, err := svc.Overview(context.Background(), "clinic-1", date)
	require.NoError(t, err)
	assert.False(t, cached)
	firstCalls := appointments.calls

	_, cached, err = svc.Overview(context.Background(), "clinic-1", date)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, firstCalls, appointments.calls)
}
