package models

import "time"

// ConsentStatus tracks the lifecycle of a consent form.
type ConsentStatus string

const (
	ConsentDraft    ConsentStatus = "draft"
	ConsentSigned   ConsentStatus = "signed"
	ConsentDeclined ConsentStatus = "declined"
)

// ConsentTemplate is a reusable consent form body.
type ConsentTemplate struct {
	ID        string    `db:"id" json:"id"`
	ClinicID  string    `db:"clinic_id" json:"clinic_id"`
	Name      string    `db:"name" json:"name"`
	Body      string    `db:"body" json:"body"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ConsentRecord is a per-patient instance of a template.
type ConsentRecord struct {
	ID         string        `db:"id" json:"id"`
	ClinicID   string        `db:"clinic_id" json:"clinic_id"`
	TemplateID string        `db:"template_id" json:"template_id"`
	PatientID  string        `db:"patient_id" json:"patient_id"`
	Status     ConsentStatus `db:"status" json:"status"`
	SignedBy   *string       `db:"signed_by" json:"signed_by,omitempty"`
	SignedAt   *time.Time    `db:"signed_at" json:"signed_at,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// ConsentFilter narrows down consent record queries.
type ConsentFilter struct {
	ClinicID  string
	PatientID string
	Status    *ConsentStatus
	Page      int
	PageSize  int
}
