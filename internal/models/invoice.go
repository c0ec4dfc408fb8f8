package models

import "time"

// InvoiceStatus tracks the billing lifecycle of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft"
	InvoiceSent  InvoiceStatus = "sent"
	InvoicePaid  InvoiceStatus = "paid"
	InvoiceVoid  InvoiceStatus = "void"
)

// Invoice represents a billable charge against a patient.
type Invoice struct {
	ID            string        `db:"id" json:"id"`
	ClinicID      string        `db:"clinic_id" json:"clinic_id"`
	PatientID     string        `db:"patient_id" json:"patient_id"`
	AppointmentID *string       `db:"appointment_id" json:"appointment_id,omitempty"`
	Description   string        `db:"description" json:"description"`
	AmountCents   int64         `db:"amount_cents" json:"amount_cents"`
	Status        InvoiceStatus `db:"status" json:"status"`
	IssuedAt      *time.Time    `db:"issued_at" json:"issued_at,omitempty"`
	PaidAt        *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// InvoiceFilter narrows down invoice queries.
type InvoiceFilter struct {
	ClinicID  string
	PatientID string
	Status    *InvoiceStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// RevenueSummary aggregates invoice totals for dashboards.
type RevenueSummary struct {
	TotalCents       int64 `db:"total_cents" json:"total_cents"`
	PaidCents        int64 `db:"paid_cents" json:"paid_cents"`
	OutstandingCents int64 `db:"outstanding_cents" json:"outstanding_cents"`
	InvoiceCount     int   `db:"invoice_count" json:"invoice_count"`
	PaidCount        int   `db:"paid_count" json:"paid_count"`
}
