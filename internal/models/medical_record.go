package models

import "time"

// MedicalRecord is a clinical history entry for a patient.
type MedicalRecord struct {
	ID        string    `db:"id" json:"id"`
	ClinicID  string    `db:"clinic_id" json:"clinic_id"`
	PatientID string    `db:"patient_id" json:"patient_id"`
	DentistID *string   `db:"dentist_id" json:"dentist_id,omitempty"`
	VisitDate time.Time `db:"visit_date" json:"visit_date"`
	ToothRef  *string   `db:"tooth_ref" json:"tooth_ref,omitempty"`
	Diagnosis string    `db:"diagnosis" json:"diagnosis"`
	Procedure *string   `db:"procedure" json:"procedure,omitempty"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MedicalRecordFilter narrows down clinical history queries.
type MedicalRecordFilter struct {
	ClinicID  string
	PatientID string
	DentistID string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}
