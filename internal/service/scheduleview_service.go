package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dentalogic/clinic-api/internal/models"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
)

// BlockedTimeLabel is the display type for administrative blocks.
const BlockedTimeLabel = "Blocked Time"

// statusScopePredicates is the decision table mapping a status scope onto
// its membership predicate. Scopes match on the normalized status.
var statusScopePredicates = map[models.StatusScope]func(models.AppointmentStatus) bool{
	models.ScopeAll: func(models.AppointmentStatus) bool { return true },
	models.ScopeOpen: func(status models.AppointmentStatus) bool {
		switch status {
		case models.StatusScheduled, models.StatusConfirmed, models.StatusPending:
			return true
		}
		return false
	},
	models.ScopeCompleted: func(status models.AppointmentStatus) bool {
		return status == models.StatusCompleted
	},
}

// ScheduleViewService turns a flat snapshot of appointment rows into the
// windowed, filtered, role-scoped list a calendar view renders. It is pure:
// no I/O, no retained state, input records are never mutated.
type ScheduleViewService struct {
	logger *zap.Logger
}

// NewScheduleViewService constructs a ScheduleViewService.
func NewScheduleViewService(logger *zap.Logger) *ScheduleViewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleViewService{logger: logger}
}

// ResolveView computes the display-ready calendar view for the given
// snapshot and view state. The only error condition is an unknown
// granularity, which is caller programmer error rather than bad data.
func (s *ScheduleViewService) ResolveView(records []models.Appointment, state models.ViewState) (*models.ResolvedView, error) {
	start, end, err := viewWindow(state.ReferenceDate, state.Granularity)
	if err != nil {
		return nil, err
	}

	scope := state.StatusScope
	if scope == "" {
		scope = models.ScopeAll
	}
	inScope, ok := statusScopePredicates[scope]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status scope %q", scope))
	}

	items := make([]models.DisplayAppointment, 0, len(records))
	var summary models.ViewSummary

	for _, record := range records {
		if record.StartTime.Before(start) || record.StartTime.After(end) {
			continue
		}
		if !visibleToCaller(record, state) {
			continue
		}
		status := record.NormalizedStatus()
		if !inScope(status) {
			continue
		}

		items = append(items, shapeForDisplay(record, status))

		summary.Total++
		summary.TotalMinutes += record.Duration()
		switch status {
		case models.StatusConfirmed:
			summary.Confirmed++
		case models.StatusScheduled:
			summary.Scheduled++
		case models.StatusPending:
			summary.Pending++
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].StartTime.Equal(items[j].StartTime) {
			return items[i].ID < items[j].ID
		}
		return items[i].StartTime.Before(items[j].StartTime)
	})

	return &models.ResolvedView{
		WindowStart: start,
		WindowEnd:   end,
		Items:       items,
		Summary:     summary,
	}, nil
}

// viewWindow returns the inclusive [start, end] window for the reference
// date at the requested granularity. Weeks run Monday through Sunday;
// months span the first through last calendar day.
func viewWindow(ref time.Time, granularity models.Granularity) (time.Time, time.Time, error) {
	if granularity == "" {
		granularity = models.GranularityDay
	}

	year, month, day := ref.Date()
	dayStart := time.Date(year, month, day, 0, 0, 0, 0, ref.Location())

	switch granularity {
	case models.GranularityDay:
		return dayStart, dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	case models.GranularityWeek:
		offset := (int(dayStart.Weekday()) + 6) % 7
		monday := dayStart.AddDate(0, 0, -offset)
		return monday, monday.AddDate(0, 0, 7).Add(-time.Nanosecond), nil
	case models.GranularityMonth:
		first := time.Date(year, month, 1, 0, 0, 0, 0, ref.Location())
		return first, first.AddDate(0, 1, 0).Add(-time.Nanosecond), nil
	default:
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown calendar granularity %q", granularity))
	}
}

// visibleToCaller applies role scoping. Staff see only rows assigned to
// their own dentist profile; blocked time belongs to no one and stays
// visible on the owning calendar. Admins see every row.
func visibleToCaller(record models.Appointment, state models.ViewState) bool {
	if state.CallerRole != models.RoleStaff {
		return true
	}
	if record.IsBlockedTime() {
		return true
	}
	if record.DentistID == nil || *record.DentistID == "" {
		return true
	}
	return *record.DentistID == state.CallerStaffID
}

func shapeForDisplay(record models.Appointment, status models.AppointmentStatus) models.DisplayAppointment {
	display := models.DisplayAppointment{
		ID:              record.ID,
		StartTime:       record.StartTime,
		TimeLabel:       record.StartTime.Format("3:04 PM"),
		DurationMinutes: record.Duration(),
		Status:          status,
		IsBlockedTime:   record.IsBlockedTime(),
	}
	if record.DentistID != nil {
		display.DentistID = *record.DentistID
	}

	if display.IsBlockedTime {
		display.Subject = record.Title
		display.TypeLabel = BlockedTimeLabel
		return display
	}

	if record.PatientName != nil && strings.TrimSpace(*record.PatientName) != "" {
		display.Subject = *record.PatientName
	} else {
		display.Subject = record.Title
	}
	if record.TreatmentType != nil && strings.TrimSpace(*record.TreatmentType) != "" {
		display.TypeLabel = *record.TreatmentType
	} else {
		display.TypeLabel = record.Title
	}
	return display
}
