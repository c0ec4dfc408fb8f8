package models

import "time"

// Patient represents a patient record owned by a clinic.
type Patient struct {
	ID               string     `db:"id" json:"id"`
	ClinicID         string     `db:"clinic_id" json:"clinic_id"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Email            *string    `db:"email" json:"email,omitempty"`
	Phone            *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth      *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	InsuranceCarrier *string    `db:"insurance_carrier" json:"insurance_carrier,omitempty"`
	InsuranceNumber  *string    `db:"insurance_number" json:"insurance_number,omitempty"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	Active           bool       `db:"active" json:"active"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name used across calendar and billing views.
func (p Patient) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// PatientFilter captures filtering criteria for listing patients.
type PatientFilter struct {
	ClinicID  string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
