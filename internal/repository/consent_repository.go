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

// ConsentRepository provides persistence for consent templates and records.
type ConsentRepository struct {
	db *sqlx.DB
}

// NewConsentRepository creates a new consent repository.
func NewConsentRepository(db *sqlx.DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// ListTemplates returns active consent templates for a clinic.
func (r *ConsentRepository) ListTemplates(ctx context.Context, clinicID string) ([]models.ConsentTemplate, error) {
	const query = `SELECT id, clinic_id, name, body, active, created_at, updated_at FROM consent_templates WHERE clinic_id = $1 AND active = TRUE ORDER BY name ASC`
	var templates []models.ConsentTemplate
	if err := r.db.SelectContext(ctx, &templates, query, clinicID); err != nil {
		return nil, fmt.Errorf("list consent templates: %w", err)
	}
	return templates, nil
}

// FindTemplate loads a consent template by id within a clinic.
func (r *ConsentRepository) FindTemplate(ctx context.Context, clinicID, id string) (*models.ConsentTemplate, error) {
	const query = `SELECT id, clinic_id, name, body, active, created_at, updated_at FROM consent_templates WHERE clinic_id = $1 AND id = $2`
	var template models.ConsentTemplate
	if err := r.db.GetContext(ctx, &template, query, clinicID, id); err != nil {
		return nil, err
	}
	return &template, nil
}

// CreateTemplate stores a new consent template.
func (r *ConsentRepository) CreateTemplate(ctx context.Context, template *models.ConsentTemplate) error {
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}
	template.UpdatedAt = now

	const query = `INSERT INTO consent_templates (id, clinic_id, name, body, active, created_at, updated_at)
		VALUES (:id, :clinic_id, :name, :body, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, template); err != nil {
		return fmt.Errorf("create consent template: %w", err)
	}
	return nil
}

// ListRecords returns consent records matching the filter.
func (r *ConsentRepository) ListRecords(ctx context.Context, filter models.ConsentFilter) ([]models.ConsentRecord, int, error) {
	base := "FROM consent_records WHERE clinic_id = $1"
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

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf("SELECT id, clinic_id, template_id, patient_id, status, signed_by, signed_at, created_at, updated_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d", base, size, offset)
	var records []models.ConsentRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list consent records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count consent records: %w", err)
	}

	return records, total, nil
}

// FindRecord loads a consent record by id within a clinic.
func (r *ConsentRepository) FindRecord(ctx context.Context, clinicID, id string) (*models.ConsentRecord, error) {
	const query = `SELECT id, clinic_id, template_id, patient_id, status, signed_by, signed_at, created_at, updated_at FROM consent_records WHERE clinic_id = $1 AND id = $2`
	var record models.ConsentRecord
	if err := r.db.GetContext(ctx, &record, query, clinicID, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// CreateRecord stores a new consent record.
func (r *ConsentRepository) CreateRecord(ctx context.Context, record *models.ConsentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO consent_records (id, clinic_id, template_id, patient_id, status, signed_by, signed_at, created_at, updated_at)
		VALUES (:id, :clinic_id, :template_id, :patient_id, :status, :signed_by, :signed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create consent record: %w", err)
	}
	return nil
}

// UpdateRecord modifies a consent record.
func (r *ConsentRepository) UpdateRecord(ctx context.Context, record *models.ConsentRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE consent_records SET status = :status, signed_by = :signed_by, signed_at = :signed_at, updated_at = :updated_at WHERE id = :id AND clinic_id = :clinic_id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update consent record: %w", err)
	}
	return nil
}
