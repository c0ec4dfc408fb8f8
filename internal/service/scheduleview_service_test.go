package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalogic/clinic-api/internal/models"
)

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func apptAt(id string, start time.Time, status string) models.Appointment {
	return models.Appointment{
		ID:        id,
		ClinicID:  "clinic-1",
		StartTime: start,
		Status:    status,
		Title:     "Checkup",
	}
}

func TestResolveViewDayWindow(t *testing.T) {
	svc := NewScheduleViewService(nil)
	ref := time.Date(2026, 3, 11, 14, 30, 0, 0, time.UTC) // a Wednesday

	records := []models.Appointment{
		apptAt("in-morning", time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), "scheduled"),
		apptAt("in-last-moment", time.Date(2026, 3, 11, 23, 59, 59, 0, time.UTC), "scheduled"),
		apptAt("prev-day", time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC), "scheduled"),
		apptAt("next-day", time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), "scheduled"),
	}

	view, err := svc.ResolveView(records, models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityDay,
		CallerRole:    models.RoleAdmin,
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), view.WindowStart)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "in-morning", view.Items[0].ID)
	assert.Equal(t, "in-last-moment", view.Items[1].ID)
}

func TestResolveViewWeekRunsMondayThroughSunday(t *testing.T) {
	svc := NewScheduleViewService(nil)
	// Wednesday March 11 2026: week is Monday the 9th through Sunday the 15th.
	ref := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

	records := []models.Appointment{
		apptAt("monday", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), "scheduled"),
		apptAt("sunday", time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC), "scheduled"),
		apptAt("before", time.Date(2026, 3, 8, 23, 59, 0, 0, time.UTC), "scheduled"),
		apptAt("after", time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), "scheduled"),
	}

	view, err := svc.ResolveView(records, models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityWeek,
		CallerRole:    models.RoleAdmin,
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), view.WindowStart)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "monday", view.Items[0].ID)
	assert.Equal(t, "sunday", view.Items[1].ID)
}

func TestResolveViewMonthWindow(t *testing.T) {
	svc := NewScheduleViewService(nil)
	ref := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	records := []models.Appointment{
		apptAt("first", time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC), "scheduled"),
		apptAt("last", time.Date(2026, 2, 28, 18, 0, 0, 0, time.UTC), "scheduled"),
		apptAt("march", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "scheduled"),
	}

	view, err := svc.ResolveView(records, models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityMonth,
		CallerRole:    models.RoleAdmin,
	})
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
}

func TestResolveViewEmptyGranularityDefaultsToDay(t *testing.T) {
	svc := NewScheduleViewService(nil)
	ref := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	view, err := svc.ResolveView(nil, models.ViewState{
		ReferenceDate: ref,
		CallerRole:    models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), view.WindowStart)
	assert.True(t, view.WindowEnd.Before(time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)))
}

func TestResolveViewEmptySnapshot(t *testing.T) {
	svc := NewScheduleViewService(nil)

	view, err := svc.ResolveView([]models.Appointment{}, models.ViewState{
		ReferenceDate: time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC),
		Granularity:   models.GranularityDay,
		CallerRole:    models.RoleAdmin,
	})
	require.NoError(t, err)
	require.NotNil(t, view.Items)
	assert.Empty(t, view.Items)
	assert.Equal(t, models.ViewSummary{}, view.Summary)
}

func TestResolveViewKeepsDuplicateIDs(t *testing.T) {
	svc := NewScheduleViewService(nil)
	ref := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	records := []models.Appointment{
		apptAt("dup", time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), "scheduled"),
		apptAt("dup", time.Date(2026, 3, 11, 11, 0, 0, 0, time.UTC), "confirmed"),
	}

	view, err := svc.ResolveView(records, models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityDay,
		CallerRole:    models.RoleAdmin,
	})
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "dup", view.Items[0].ID)
	assert.Equal(t, "dup", view.Items[1].ID)
	assert.Equal(t, 2, view.Summary.Total)
}

func TestResolveViewUnknownGranularity(t *testing.T) {
	svc := NewScheduleViewService(nil)

	_, err := svc.ResolveView(nil, models.ViewState{
		ReferenceDate: time.Now().UTC(),
		Granularity:   "fortnight",
		CallerRole:    models.RoleAdmin,
	})
	require.Error(t, err)
}

func TestResolveViewUnknownScope(t *testing.T) {
	svc := NewScheduleViewService(nil)

	_, err := svc.ResolveView(nil, models.ViewState{
		ReferenceDate: time.Now().UTC(),
		Granularity:   models.GranularityDay,
		StatusScope:   "archived",
		CallerRole:    models.RoleAdmin,
	})
	require.Error(t, err)
}

func TestResolveViewOpenScopeNormalizesStatus(t *testing.T) {
	svc := NewScheduleViewService(nil)
	ref := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	records := []models.Appointment{
		apptAt("mixed-case", ref.Add(9*time.Hour), " Confirmed "),
		apptAt("done", ref.Add(10*time.Hour), "completed"),
		apptAt("gone", ref.Add(11*time.Hour), "cancelled"),
		apptAt("unknown", ref.Add(12*time.Hour), "???"),
	}

	view, err := svc.ResolveView(records, models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityDay,
		StatusScope:   models.ScopeOpen,
		CallerRole:    models.RoleAdmin,
	})
	require.NoError(t, err)

	// "Confirmed" normalizes into the open set; unknown text falls back to
	// scheduled which is also open.
	require.Len(t, view.Items, 2)
	assert.Equal(t, models.StatusConfirmed, view.Items[0].Status)
	assert.Equal(t, models.StatusScheduled, view.Items[1].Status)
	assert.Equal(t, 1, view.Summary.Confirmed)
	assert.Equal(t, 1, view.Summary.Scheduled)
}

func TestResolveViewStaffScoping(t *testing.T) {
	svc := NewScheduleViewService(nil)
	ref := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	mine := apptAt("mine", ref.Add(9*time.Hour), "scheduled")
	mine.DentistID = strPtr("staff-7")
	other := apptAt("other", ref.Add(10*time.Hour), "scheduled")
	other.DentistID = strPtr("staff-9")
	unassigned := apptAt("unassigned", ref.Add(11*time.Hour), "scheduled")
	block := apptAt("block", ref.Add(12*time.Hour), "scheduled")
	block.DentistID = strPtr("staff-9")
	block.TreatmentType = strPtr("block")
	block.Title = "Equipment maintenance"

	view, err := svc.ResolveView([]models.Appointment{mine, other, unassigned, block}, models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityDay,
		CallerRole:    models.RoleStaff,
		CallerStaffID: "staff-7",
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(view.Items))
	for _, item := range view.Items {
		ids = append(ids, item.ID)
	}
	// Another dentist's appointment is hidden; their blocked time is not.
	assert.Equal(t, []string{"mine", "unassigned", "block"}, ids)
}

func TestResolveViewBlockedTimeDisplay(t *testing.T) {
	svc := NewScheduleViewService(nil)
	ref := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	block := apptAt("block", ref.Add(13*time.Hour), "scheduled")
	block.TreatmentType = strPtr("Block")
	block.Title = "Staff meeting"
	block.PatientName = strPtr("should not show")

	view, err := svc.ResolveView([]models.Appointment{block}, models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityDay,
		CallerRole:    models.RoleAdmin,
	})
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	item := view.Items[0]
	assert.True(t, item.IsBlockedTime)
	assert.Equal(t, "Staff meeting", item.Subject)
	assert.Equal(t, BlockedTimeLabel, item.TypeLabel)
}

func TestResolveViewDisplayFallbacks(t *testing.T) {
	svc := NewScheduleViewService(nil)
	ref := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	named := apptAt("named", ref.Add(9*time.Hour), "scheduled")
	named.PatientName = strPtr("Jane Roe")
	named.TreatmentType = strPtr("Cleaning")
	bare := apptAt("bare", ref.Add(10*time.Hour), "scheduled")
	bare.PatientName = strPtr("   ")

	view, err := svc.ResolveView([]models.Appointment{named, bare}, models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityDay,
		CallerRole:    models.RoleAdmin,
	})
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	assert.Equal(t, "Jane Roe", view.Items[0].Subject)
	assert.Equal(t, "Cleaning", view.Items[0].TypeLabel)
	assert.Equal(t, "Checkup", view.Items[1].Subject)
	assert.Equal(t, "Checkup", view.Items[1].TypeLabel)
	assert.Equal(t, "9:00 AM", view.Items[0].TimeLabel)
}

func TestResolveViewSortAndSummary(t *testing.T) {
	svc := NewScheduleViewService(nil)
	ref := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	a := apptAt("b-second", ref.Add(9*time.Hour), "confirmed")
	a.DurationMinutes = intPtr(30)
	b := apptAt("a-first", ref.Add(9*time.Hour), "pending")
	b.DurationMinutes = intPtr(45)
	c := apptAt("later", ref.Add(8*time.Hour), "scheduled")
	// No duration stored, defaults to 60.

	view, err := svc.ResolveView([]models.Appointment{a, b, c}, models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityDay,
		CallerRole:    models.RoleAdmin,
	})
	require.NoError(t, err)

	require.Len(t, view.Items, 3)
	assert.Equal(t, "later", view.Items[0].ID)
	// Ties on start time break by ID for a stable ordering.
	assert.Equal(t, "a-first", view.Items[1].ID)
	assert.Equal(t, "b-second", view.Items[2].ID)
	assert.Equal(t, 60, view.Items[0].DurationMinutes)

	assert.Equal(t, 3, view.Summary.Total)
	assert.Equal(t, 1, view.Summary.Confirmed)
	assert.Equal(t, 1, view.Summary.Pending)
	assert.Equal(t, 1, view.Summary.Scheduled)
	assert.Equal(t, 135, view.Summary.TotalMinutes)
}

func TestResolveViewIsIdempotent(t *testing.T) {
	svc := NewScheduleViewService(nil)
	ref := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	records := []models.Appointment{
		apptAt("x", ref.Add(9*time.Hour), "confirmed"),
		apptAt("y", ref.Add(10*time.Hour), "pending"),
	}
	state := models.ViewState{
		ReferenceDate: ref,
		Granularity:   models.GranularityWeek,
		StatusScope:   models.ScopeOpen,
		CallerRole:    models.RoleAdmin,
	}

	first, err := svc.ResolveView(records, state)
	require.NoError(t, err)
	second, err := svc.ResolveView(records, state)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// Input snapshot is untouched.
	assert.Equal(t, "confirmed", records[0].Status)
}
