package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dentalogic/clinic-api/internal/models"
)

const invoiceColumns = `id, clinic_id, patient_id, appointment_id, description, amount_cents, status, issued_at, paid_at, created_at, updated_at`

// InvoiceRepository provides persistence for billing records.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository creates a new invoice repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// List returns invoices matching the filter together with the total count.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	base := "FROM invoices WHERE clinic_id = $1"
	args := []interface{}{filter.ClinicID}
	var conditions []string

	if filter.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)+1))
		args = append(args, filter.PatientID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":   true,
		"issued_at":    true,
		"amount_cents": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", invoiceColumns, base, sortBy, order, size, offset)
	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	return invoices, total, nil
}

// FindByID loads an invoice by id within a clinic.
func (r *InvoiceRepository) FindByID(ctx context.Context, clinicID, id string) (*models.Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE clinic_id = $1 AND id = $2`, invoiceColumns)
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, clinicID, id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// RevenueSummary aggregates invoice totals for a clinic within a window.
func (r *InvoiceRepository) RevenueSummary(ctx context.Context, clinicID string, from, to time.Time) (*models.RevenueSummary, error) {
	const query = `SELECT
		COALESCE(SUM(amount_cents) FILTER (WHERE status <> 'void'), 0) AS total_cents,
		COALESCE(SUM(amount_cents) FILTER (WHERE status = 'paid'), 0) AS paid_cents,
		COALESCE(SUM(amount_cents) FILTER (WHERE status IN ('draft', 'sent')), 0) AS outstanding_cents,
		COUNT(*) FILTER (WHERE status <> 'void') AS invoice_count,
		COUNT(*) FILTER (WHERE status = 'paid') AS paid_count
		FROM invoices WHERE clinic_id = $1 AND created_at >= $2 AND created_at <= $3`
	var summary models.RevenueSummary
	if err := r.db.GetContext(ctx, &summary, query, clinicID, from, to); err != nil {
		return nil, fmt.Errorf("revenue summary: %w", err)
	}
	return &summary, nil
}

// Create stores a new invoice.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now

	const query = `INSERT INTO invoices (id, clinic_id, patient_id, appointment_id, description, amount_cents, status, issued_at, paid_at, created_at, updated_at)
		VALUES (:id, :clinic_id, :patient_id, :appointment_id, :description, :amount_cents, :status, :issued_at, :paid_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// Update modifies an invoice.
func (r *InvoiceRepository) Update(ctx context.Context, invoice *models.Invoice) error {
	invoice.UpdatedAt = time.Now().UTC()
	const query = `UPDATE invoices SET description = :description, amount_cents = :amount_cents, status = :status, issued_at = :issued_at, paid_at = :paid_at, updated_at = :updated_at WHERE id = :id AND clinic_id = :clinic_id`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}
