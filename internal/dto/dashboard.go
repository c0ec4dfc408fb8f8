package dto

import (
	"time"

	"github.com/dentalogic/clinic-api/internal/models"
)

// DentistLoad summarises one practitioner's booked workload for a week.
type DentistLoad struct {
	DentistID     string `json:"dentist_id"`
	FullName      string `json:"full_name"`
	Appointments  int    `json:"appointments"`
	BookedMinutes int    `json:"booked_minutes"`
}

// PracticeDashboardResponse is the aggregated front-desk overview.
type PracticeDashboardResponse struct {
	Date           time.Time              `json:"date"`
	Today          models.ViewSummary     `json:"today"`
	WeekLoad       []DentistLoad          `json:"week_load"`
	ActivePatients int                    `json:"active_patients"`
	Revenue        *models.RevenueSummary `json:"revenue,omitempty"`
	GeneratedAt    time.Time              `json:"generated_at"`
}
