package models

import "time"

// Granularity is the calendar zoom level determining the date window.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// StatusScope narrows a calendar view by appointment status.
type StatusScope string

const (
	ScopeAll StatusScope = "all"
	// ScopeOpen covers appointments that have not yet concluded.
	ScopeOpen      StatusScope = "open"
	ScopeCompleted StatusScope = "completed"
)

// ViewState is the ephemeral caller-held state driving a calendar view.
// Caller identity is passed explicitly rather than read from ambient
// session state.
type ViewState struct {
	ReferenceDate time.Time
	Granularity   Granularity
	StatusScope   StatusScope
	CallerRole    UserRole
	CallerStaffID string
}

// DisplayAppointment is the display-ready shape of a calendar entry.
type DisplayAppointment struct {
	ID              string            `json:"id"`
	StartTime       time.Time         `json:"start_time"`
	TimeLabel       string            `json:"time_label"`
	DurationMinutes int               `json:"duration_minutes"`
	Subject         string            `json:"subject"`
	TypeLabel       string            `json:"type_label"`
	Status          AppointmentStatus `json:"status"`
	DentistID       string            `json:"dentist_id,omitempty"`
	IsBlockedTime   bool              `json:"is_blocked_time"`
}

// ViewSummary aggregates the surviving set of a resolved view.
type ViewSummary struct {
	Total        int `json:"total"`
	Confirmed    int `json:"confirmed"`
	Scheduled    int `json:"scheduled"`
	Pending      int `json:"pending"`
	TotalMinutes int `json:"total_minutes"`
}

// ResolvedView is the full output of resolving a calendar view.
type ResolvedView struct {
	WindowStart time.Time            `json:"window_start"`
	WindowEnd   time.Time            `json:"window_end"`
	Items       []DisplayAppointment `json:"items"`
	Summary     ViewSummary          `json:"summary"`
}
