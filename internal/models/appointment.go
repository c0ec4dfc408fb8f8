package models

import (
	"strings"
	"time"
)

// AppointmentStatus is the closed set of statuses the application reasons
// about. The store keeps status as free text, so raw values are normalized
// at the decode boundary via NormalizeStatus.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusPending   AppointmentStatus = "pending"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// NormalizeStatus maps a raw status string onto the closed enum. Unknown or
// empty values fall back to scheduled so malformed store rows never fail.
func NormalizeStatus(raw string) AppointmentStatus {
	switch AppointmentStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusConfirmed:
		return StatusConfirmed
	case StatusPending:
		return StatusPending
	case StatusCompleted:
		return StatusCompleted
	case StatusCancelled:
		return StatusCancelled
	case StatusNoShow:
		return StatusNoShow
	default:
		return StatusScheduled
	}
}

// TreatmentTypeBlock marks a row as administrative blocked time rather
// than a patient visit.
const TreatmentTypeBlock = "block"

// DefaultDurationMinutes applies when a row has no stored duration.
const DefaultDurationMinutes = 60

// Appointment represents a calendar entry: a patient visit or blocked time.
type Appointment struct {
	ID              string    `db:"id" json:"id"`
	ClinicID        string    `db:"clinic_id" json:"clinic_id"`
	PatientID       *string   `db:"patient_id" json:"patient_id,omitempty"`
	PatientName     *string   `db:"patient_name" json:"patient_name,omitempty"`
	DentistID       *string   `db:"dentist_id" json:"dentist_id,omitempty"`
	StartTime       time.Time `db:"start_time" json:"start_time"`
	DurationMinutes *int      `db:"duration_minutes" json:"duration_minutes,omitempty"`
	Status          string    `db:"status" json:"status"`
	Title           string    `db:"title" json:"title"`
	TreatmentType   *string   `db:"treatment_type" json:"treatment_type,omitempty"`
	Notes           *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// IsBlockedTime reports whether the row is an administrative block.
func (a Appointment) IsBlockedTime() bool {
	return a.TreatmentType != nil && strings.EqualFold(strings.TrimSpace(*a.TreatmentType), TreatmentTypeBlock)
}

// Duration returns the stored duration, defaulting when absent or invalid.
func (a Appointment) Duration() int {
	if a.DurationMinutes == nil || *a.DurationMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return *a.DurationMinutes
}

// NormalizedStatus returns the enum value for the stored free-form status.
func (a Appointment) NormalizedStatus() AppointmentStatus {
	return NormalizeStatus(a.Status)
}

// AppointmentFilter describes query params for listing appointments.
type AppointmentFilter struct {
	ClinicID  string
	PatientID string
	DentistID string
	Status    string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
